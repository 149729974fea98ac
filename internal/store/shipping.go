package store

import (
	"context"
	"database/sql"
	"fmt"

	"checkout-service/internal/models"
)

// GetZoneByCountry resolves the shipping zone covering a destination
// country, falling back to the wildcard "*" rest-of-world zone. No zone at
// all returns (nil, nil).
func (s *Store) GetZoneByCountry(ctx context.Context, country string) (*models.ShippingZone, error) {
	var zone models.ShippingZone
	err := s.db.GetContext(ctx, &zone, `
		SELECT z.id, z.name FROM shipping_zones z
		JOIN shipping_zone_countries c ON c.zone_id = z.id
		WHERE c.country = $1
		LIMIT 1`, country)
	if err == sql.ErrNoRows {
		err = s.db.GetContext(ctx, &zone, `
			SELECT z.id, z.name FROM shipping_zones z
			JOIN shipping_zone_countries c ON c.zone_id = z.id
			WHERE c.country = '*'
			LIMIT 1`)
	}
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &zone, nil
}

// GetMethodsByZone lists the zone's shipping methods.
func (s *Store) GetMethodsByZone(ctx context.Context, zoneID int64) ([]models.ShippingMethod, error) {
	var methods []models.ShippingMethod
	err := s.db.SelectContext(ctx, &methods,
		"SELECT * FROM shipping_methods WHERE zone_id = $1 ORDER BY id", zoneID)
	return methods, err
}

// GetMethodByID retrieves a shipping method.
func (s *Store) GetMethodByID(ctx context.Context, id int64) (*models.ShippingMethod, error) {
	var method models.ShippingMethod
	err := s.db.GetContext(ctx, &method,
		"SELECT * FROM shipping_methods WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("shipping method not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &method, nil
}

// GetRateBands lists a table method's bands ordered for the
// weight > subtotal > quantity lookup priority.
func (s *Store) GetRateBands(ctx context.Context, methodID int64) ([]models.ShippingRateBand, error) {
	var bands []models.ShippingRateBand
	err := s.db.SelectContext(ctx, &bands, `
		SELECT * FROM shipping_rate_bands
		WHERE method_id = $1
		ORDER BY CASE basis WHEN 'weight' THEN 0 WHEN 'subtotal' THEN 1 ELSE 2 END, min`,
		methodID)
	return bands, err
}
