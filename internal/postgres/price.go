package postgres

import (
	"context"
	"errors"

	"github.com/dukerupert/feedgen/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// PriceService implements domain.PriceService using PostgreSQL.
type PriceService struct {
	db DBTX
}

// Compile-time check that PriceService implements domain.PriceService.
var _ domain.PriceService = (*PriceService)(nil)

// NewPriceService creates a new PostgreSQL-backed price service.
func NewPriceService(db DBTX) *PriceService {
	return &PriceService{db: db}
}

// Picks the lowest price whose quantity range covers the requested quantity
// and which is either site-wide or bound to the site.
const optimalPriceQuery = `
SELECT amount::text, currency
FROM catalog_prices
WHERE element_id = $1
  AND amount >= 0
  AND (quantity_from IS NULL OR quantity_from <= $2)
  AND (quantity_to IS NULL OR quantity_to >= $2)
  AND (site_id IS NULL OR site_id = $3)
ORDER BY amount ASC, id ASC
LIMIT 1`

// OptimalPrice returns the lowest applicable price of a product.
func (s *PriceService) OptimalPrice(ctx context.Context, productID int64, quantity int, siteID string) (*domain.Price, error) {
	var amount, currency string
	err := s.db.QueryRow(ctx, optimalPriceQuery, productID, quantity, siteID).Scan(&amount, &currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPriceNotFound
		}
		return nil, domain.Internal(err, "price.optimal", "failed to get price")
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, domain.Internal(err, "price.optimal", "invalid price amount")
	}
	return &domain.Price{Amount: d, Currency: currency}, nil
}
