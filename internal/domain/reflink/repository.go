package reflink

import "context"

// Repository stores daily reference links
type Repository interface {
	// ExpireBefore marks active links with trade_date < tradeDate as expired
	ExpireBefore(ctx context.Context, tradeDate string) (int64, error)

	// GetByTradeDate returns errors.ErrNotFound when no link exists for tradeDate
	GetByTradeDate(ctx context.Context, tradeDate string) (*Link, error)

	// Upsert writes the link for its trade date and stamps updated_at
	Upsert(ctx context.Context, link *Link) error
}
