package service

import (
	"testing"

	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCartViewAllDigital(t *testing.T) {
	empty := &CartView{}
	assert.False(t, empty.AllDigital(), "empty cart is not digital-only")

	mixed := &CartView{Lines: []models.CartLine{
		{IsDigital: true},
		{IsDigital: false},
	}}
	assert.False(t, mixed.AllDigital())

	digital := &CartView{Lines: []models.CartLine{
		{IsDigital: true},
		{IsDigital: true},
	}}
	assert.True(t, digital.AllDigital())
}

func TestCartViewTotalQuantity(t *testing.T) {
	cart := &CartView{Lines: []models.CartLine{
		{Quantity: 2},
		{Quantity: 3},
	}}
	assert.Equal(t, 5, cart.TotalQuantity())
}

func TestCartViewTotalWeight(t *testing.T) {
	cart := &CartView{Lines: []models.CartLine{
		{Weight: decimal.NewFromFloat(0.5), Quantity: 2},
		{Weight: decimal.NewFromFloat(1.2), Quantity: 1},
		{Weight: decimal.NewFromFloat(99), Quantity: 1, IsDigital: true},
	}}
	assert.Equal(t, "2.20", cart.TotalWeight().StringFixed(2))
}
