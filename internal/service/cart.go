package service

import (
	"context"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartView is the aggregated cart: priced lines in stable order plus the
// running subtotal.
type CartView struct {
	Lines    []models.CartLine
	Subtotal decimal.Decimal
}

// AllDigital reports whether every line is a digital product.
func (v *CartView) AllDigital() bool {
	if len(v.Lines) == 0 {
		return false
	}
	for i := range v.Lines {
		if !v.Lines[i].IsDigital {
			return false
		}
	}
	return true
}

// TotalQuantity sums line quantities.
func (v *CartView) TotalQuantity() int {
	var qty int
	for i := range v.Lines {
		qty += v.Lines[i].Quantity
	}
	return qty
}

// TotalWeight sums weight × quantity over physical lines.
func (v *CartView) TotalWeight() decimal.Decimal {
	weight := decimal.Zero
	for i := range v.Lines {
		if v.Lines[i].IsDigital {
			continue
		}
		weight = weight.Add(v.Lines[i].Weight.Mul(decimal.NewFromInt(int64(v.Lines[i].Quantity))))
	}
	return weight
}

// CartService resolves a cart owner into priced lines. Read-only.
type CartService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store *store.Store) *CartService {
	return &CartService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// Load aggregates the owner's cart. An empty cart returns an empty view
// with a zero subtotal; callers decide whether that is an error.
func (s *CartService) Load(ctx context.Context, owner models.CartOwner) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Load")
	defer span.End()

	lines, err := s.store.GetCartLines(ctx, owner.Key())
	if err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	for i := range lines {
		subtotal = subtotal.Add(lines[i].LineTotal())
	}

	return &CartView{
		Lines:    lines,
		Subtotal: subtotal.Round(2),
	}, nil
}
