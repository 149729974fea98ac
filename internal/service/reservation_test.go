package service

import (
	"context"
	"testing"
	"time"

	"checkout-service/internal/checkout"
	"checkout-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cartLineColumns = []string{
	"id", "owner_key", "product_id", "variant_id", "quantity",
	"product_name", "sku", "category_id", "price", "sale_price",
	"price_adjustment", "stock", "weight", "is_digital", "is_license",
	"ships_free", "ships_free_us", "shipping_price",
}

func TestReservePriceRejectsKnownShortfall(t *testing.T) {
	st, mock := mockStore(t)

	mock.ExpectQuery("SELECT cl.id, cl.owner_key").
		WithArgs("sess:s1").
		WillReturnRows(sqlmock.NewRows(cartLineColumns).
			AddRow(1, "sess:s1", 1, nil, 2, "Widget", "W-1", nil, "25.00", nil,
				nil, 1, "0.50", false, false, false, false, nil))

	// Downstream collaborators are nil on purpose: the shortfall must be
	// rejected before the discount, shipping, or gateway steps run.
	svc := NewReservationService(nil, nil, NewCartService(st), nil, nil, time.Minute)

	_, err := svc.ReservePrice(context.Background(), &ReserveRequest{
		Owner:   models.CartOwner{SessionID: "s1"},
		Country: "US",
	})
	require.Error(t, err)
	assert.Equal(t, checkout.KindBusinessRule, checkout.KindOf(err))
	assert.Equal(t, "insufficient_stock", checkout.ReasonOf(err))
	assert.Contains(t, err.Error(), "Widget")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckAvailability(t *testing.T) {
	short := testCart(models.CartLine{
		ProductID: 1, ProductName: "Widget", Quantity: 3, Stock: 2,
	})
	err := checkAvailability(short)
	require.Error(t, err)
	assert.Equal(t, "insufficient_stock", checkout.ReasonOf(err))

	exact := testCart(models.CartLine{ProductID: 1, Quantity: 2, Stock: 2})
	assert.NoError(t, checkAvailability(exact))

	// Digital lines carry no stock and never block a reservation.
	digital := testCart(models.CartLine{ProductID: 1, Quantity: 5, Stock: 0, IsDigital: true})
	assert.NoError(t, checkAvailability(digital))
}
