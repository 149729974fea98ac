package service

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLicenseKey(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9A-F]{5}(-[0-9A-F]{5}){3}$`)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		key := newLicenseKey("")
		assert.Regexp(t, pattern, key)
		assert.False(t, seen[key], "license keys must not repeat")
		seen[key] = true
	}
}

func TestNewLicenseKeyEditionPrefix(t *testing.T) {
	key := newLicenseKey("PRO")
	assert.Regexp(t, regexp.MustCompile(`^PRO-[0-9A-F]{5}(-[0-9A-F]{5}){3}$`), key)
}
