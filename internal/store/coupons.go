package store

import (
	"context"
	"database/sql"
	"fmt"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetCouponByCode retrieves a persistent coupon by its case-insensitive code.
// A missing code returns (nil, nil); callers decide how to report it.
func (s *Store) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := s.db.GetContext(ctx, &coupon,
		"SELECT * FROM coupons WHERE LOWER(code) = LOWER($1)", code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// HasAccountUsedCoupon checks the usage ledger for a one-per-customer coupon.
func (s *Store) HasAccountUsedCoupon(ctx context.Context, couponID, accountID int64) (bool, error) {
	var used bool
	err := s.db.GetContext(ctx, &used,
		"SELECT EXISTS(SELECT 1 FROM coupon_usages WHERE coupon_id = $1 AND account_id = $2)",
		couponID, accountID)
	return used, err
}

// RecordCouponUsageTx appends a usage ledger row and bumps the coupon's
// counter. Runs inside the commit transaction so a crash cannot leave a used
// coupon without an order, or an order without the usage.
func (s *Store) RecordCouponUsageTx(ctx context.Context, tx *sqlx.Tx, couponID int64, accountID *int64, orderID int64) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO coupon_usages (coupon_id, account_id, order_id) VALUES ($1, $2, $3)",
		couponID, accountID, orderID)
	if err != nil {
		return fmt.Errorf("failed to insert coupon usage: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE coupons SET use_count = use_count + 1 WHERE id = $1", couponID)
	if err != nil {
		return fmt.Errorf("failed to increment coupon use count: %w", err)
	}
	return nil
}

// GetPopupCouponByCode retrieves a popup coupon by code. Popup codes live in
// their own table; a missing code returns (nil, nil).
func (s *Store) GetPopupCouponByCode(ctx context.Context, code string) (*models.PopupCoupon, error) {
	var coupon models.PopupCoupon
	err := s.db.GetContext(ctx, &coupon,
		"SELECT * FROM popup_coupons WHERE LOWER(code) = LOWER($1)", code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// MarkPopupCouponUsedTx flips the single-use flag inside the commit
// transaction. The guard on used keeps a replayed commit from double
// spending the code.
func (s *Store) MarkPopupCouponUsedTx(ctx context.Context, tx *sqlx.Tx, couponID int64) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE popup_coupons SET used = TRUE WHERE id = $1 AND NOT used", couponID)
	if err != nil {
		return fmt.Errorf("failed to mark popup coupon used: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("popup coupon %d already used", couponID)
	}
	return nil
}
