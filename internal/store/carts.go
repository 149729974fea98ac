package store

import (
	"context"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const cartLinesQuery = `
	SELECT cl.id, cl.owner_key, cl.product_id, cl.variant_id, cl.quantity,
	       p.name AS product_name,
	       COALESCE(v.sku, p.sku) AS sku,
	       p.category_id, p.price, p.sale_price,
	       v.price_adjustment,
	       COALESCE(v.stock, p.stock) AS stock,
	       p.weight, p.is_digital, p.is_license,
	       p.ships_free, p.ships_free_us, p.shipping_price
	FROM cart_lines cl
	JOIN products p ON p.id = cl.product_id
	LEFT JOIN product_variants v ON v.id = cl.variant_id
	WHERE cl.owner_key = $1
	ORDER BY cl.product_id, cl.variant_id NULLS FIRST`

// GetCartLines returns the owner's cart joined with current pricing and
// stock. The ordering is stable so commit acquires row locks in the same
// order for every checkout that shares products.
func (s *Store) GetCartLines(ctx context.Context, ownerKey string) ([]models.CartLine, error) {
	var lines []models.CartLine
	err := s.db.SelectContext(ctx, &lines, cartLinesQuery, ownerKey)
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// AddCartLine inserts a line or bumps the quantity of an existing
// (owner, product, variant) line.
func (s *Store) AddCartLine(ctx context.Context, ownerKey string, productID int64, variantID *int64, quantity int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cart_lines (owner_key, product_id, variant_id, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_key, product_id, COALESCE(variant_id, 0))
		DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity`,
		ownerKey, productID, variantID, quantity)
	return err
}

// ClearCartTx empties the owner's cart inside the commit transaction.
func (s *Store) ClearCartTx(ctx context.Context, tx *sqlx.Tx, ownerKey string) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM cart_lines WHERE owner_key = $1", ownerKey)
	return err
}
