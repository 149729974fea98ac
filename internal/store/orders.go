package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// InsertAddressTx persists a billing or shipping address. Addresses are
// insert-only; every order gets fresh rows.
func (s *Store) InsertAddressTx(ctx context.Context, tx *sqlx.Tx, addr *models.Address) error {
	query := `
		INSERT INTO addresses (name, line1, line2, city, state, postal_code, country, phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	return tx.GetContext(ctx, &addr.ID, query,
		addr.Name, addr.Line1, addr.Line2, addr.City, addr.State, addr.PostalCode, addr.Country, addr.Phone)
}

// InsertOrderTx creates the order header inside the commit transaction.
func (s *Store) InsertOrderTx(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	query := `
		INSERT INTO orders (order_number, owner_key, account_id, email, status, payment_status,
			reservation_id, subtotal, tax, shipping_cost, shipping_method, discount, coupon_code,
			total, billing_address_id, shipping_address_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at`

	return tx.QueryRowxContext(ctx, query,
		order.OrderNumber, order.OwnerKey, order.AccountID, order.Email, order.Status,
		order.PaymentStatus, order.ReservationID, order.Subtotal, order.Tax, order.ShippingCost,
		order.ShippingMethod, order.Discount, order.CouponCode, order.Total,
		order.BillingAddressID, order.ShippingAddressID,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
}

// InsertOrderItemTx freezes a cart line as an order item.
func (s *Store) InsertOrderItemTx(ctx context.Context, tx *sqlx.Tx, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, variant_id, name, sku, unit_price, quantity, is_digital, is_license)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	return tx.GetContext(ctx, &item.ID, query,
		item.OrderID, item.ProductID, item.VariantID, item.Name, item.SKU,
		item.UnitPrice, item.Quantity, item.IsDigital, item.IsLicense)
}

// InsertStatusHistoryTx appends a status history row inside a transaction.
func (s *Store) InsertStatusHistoryTx(ctx context.Context, tx *sqlx.Tx, orderID int64, status, note string) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO order_status_history (order_id, status, note) VALUES ($1, $2, $3)",
		orderID, status, note)
	return err
}

// GetOrderByNumber retrieves an order by its human-readable number.
func (s *Store) GetOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE order_number = $1", number)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order not found: %s", number)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByReservationID matches a gateway webhook back to its order.
func (s *Store) GetOrderByReservationID(ctx context.Context, reservationID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE reservation_id = $1", reservationID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// GetStatusHistory retrieves the append-only history for an order.
func (s *Store) GetStatusHistory(ctx context.Context, orderID int64) ([]models.OrderStatusHistory, error) {
	var history []models.OrderStatusHistory
	err := s.db.SelectContext(ctx, &history,
		"SELECT * FROM order_status_history WHERE order_id = $1 ORDER BY id", orderID)
	return history, err
}

// TransitionOrderStatus updates the status column and appends the history
// row in one transaction.
func (s *Store) TransitionOrderStatus(ctx context.Context, orderID int64, status, note string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2", status, orderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	if err := s.InsertStatusHistoryTx(ctx, tx, orderID, status, note); err != nil {
		return fmt.Errorf("failed to append status history: %w", err)
	}

	return tx.Commit()
}

// CountOrdersSince counts orders created at or after the given time; the
// monthly ceiling policy consults it.
func (s *Store) CountOrdersSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM orders WHERE created_at >= $1", since)
	return count, err
}

// InsertLicense issues one license key. The (order_item_id, sequence)
// conflict target makes retries idempotent per key.
func (s *Store) InsertLicense(ctx context.Context, lic *models.OrderLicense) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_licenses (order_item_id, sequence, license_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (order_item_id, sequence) DO NOTHING`,
		lic.OrderItemID, lic.Sequence, lic.LicenseKey)
	return err
}

// InsertDownload creates one download grant per item; retries are no-ops.
func (s *Store) InsertDownload(ctx context.Context, dl *models.OrderDownload) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_downloads (order_item_id, token, file_ref, remaining, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_item_id) DO NOTHING`,
		dl.OrderItemID, dl.Token, dl.FileRef, dl.Remaining, dl.ExpiresAt)
	return err
}

// GetLicensesByOrderItem lists issued keys for an item.
func (s *Store) GetLicensesByOrderItem(ctx context.Context, orderItemID int64) ([]models.OrderLicense, error) {
	var licenses []models.OrderLicense
	err := s.db.SelectContext(ctx, &licenses,
		"SELECT * FROM order_licenses WHERE order_item_id = $1 ORDER BY sequence", orderItemID)
	return licenses, err
}
