package service

import (
	"context"
	"regexp"
	"testing"

	"checkout-service/internal/checkout"
	"checkout-service/internal/models"
	"checkout-service/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.NewStoreWithDB(sqlx.NewDb(db, "sqlmock")), mock
}

func TestNewOrderNumberFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^ORD-\d{8}-[0-9A-F]{8}$`)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		number := newOrderNumber()
		assert.Regexp(t, pattern, number)
		assert.False(t, seen[number], "order numbers must not repeat")
		seen[number] = true
	}
}

func TestValidateCommitRequest(t *testing.T) {
	valid := func() *CommitRequest {
		return &CommitRequest{
			Email:    "buyer@example.com",
			Billing:  models.Address{Name: "A Buyer", Line1: "1 Main St", City: "Springfield", Country: "US"},
			Shipping: models.Address{Name: "A Buyer", Line1: "1 Main St", City: "Springfield", Country: "US"},
		}
	}

	tests := []struct {
		name       string
		mutate     func(r *CommitRequest)
		wantReason string
	}{
		{
			name:   "valid",
			mutate: func(r *CommitRequest) {},
		},
		{
			name:       "missing email",
			mutate:     func(r *CommitRequest) { r.Email = "" },
			wantReason: "invalid_email",
		},
		{
			name:       "malformed email",
			mutate:     func(r *CommitRequest) { r.Email = "not-an-email" },
			wantReason: "invalid_email",
		},
		{
			name:       "billing missing line1",
			mutate:     func(r *CommitRequest) { r.Billing.Line1 = "" },
			wantReason: "invalid_address",
		},
		{
			name:       "shipping missing country",
			mutate:     func(r *CommitRequest) { r.Shipping.Country = "" },
			wantReason: "invalid_address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(req)

			err := validateCommitRequest(req)
			if tt.wantReason == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, checkout.KindValidation, checkout.KindOf(err))
			assert.Equal(t, tt.wantReason, checkout.ReasonOf(err))
		})
	}
}

func TestMonthlyCeilingDisabled(t *testing.T) {
	st, mock := mockStore(t)

	// No query may run when the limit is zero.
	ceiling := NewMonthlyCeiling(st, 0)
	assert.NoError(t, ceiling.Allow(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMonthlyCeilingUnderLimit(t *testing.T) {
	st, mock := mockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM orders WHERE created_at >= $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	ceiling := NewMonthlyCeiling(st, 10)
	assert.NoError(t, ceiling.Allow(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMonthlyCeilingReached(t *testing.T) {
	st, mock := mockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM orders WHERE created_at >= $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))

	ceiling := NewMonthlyCeiling(st, 10)
	err := ceiling.Allow(context.Background())
	require.Error(t, err)
	assert.Equal(t, checkout.KindBusinessRule, checkout.KindOf(err))
	assert.Equal(t, checkout.ReasonCeilingReached, checkout.ReasonOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
