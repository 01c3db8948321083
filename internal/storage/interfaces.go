package storage

import (
	"context"

	"solana-sniper-bot/internal/domain"
)

// PositionFilter selects which open positions ListOpen returns.
type PositionFilter string

const (
	// FirstSellPending selects positions with first_sell = false
	// (still waiting for a sell trigger).
	FirstSellPending PositionFilter = "FIRST_SELL_PENDING"

	// SecondSellPending selects positions with first_sell = true and
	// second_sell = false (waiting for the price target).
	SecondSellPending PositionFilter = "SECOND_SELL_PENDING"
)

// PositionStore is the durable record of each opened position and its
// exit flags. It is the single source of truth for what must be
// watched; the mark operations are conditional guard-and-set updates so
// that the trigger-driven and timer-driven exit paths cannot double-mark.
type PositionStore interface {
	// Create adds a new position. Returns ErrDuplicateKey if the mint
	// already has a position.
	Create(ctx context.Context, p *domain.Position) error

	// GetByMint retrieves a position. Returns ErrNotFound if missing.
	GetByMint(ctx context.Context, mint string) (*domain.Position, error)

	// ListOpen retrieves open positions matching the filter, ordered by
	// purchased_at ASC.
	ListOpen(ctx context.Context, filter PositionFilter) ([]*domain.Position, error)

	// MarkFirstSell sets first_sell = true and target_price, guarded on
	// first_sell still being false. Returns ErrNotFound if the record is
	// missing or already marked; callers treat that as a benign no-op.
	MarkFirstSell(ctx context.Context, mint string, targetPrice float64) error

	// MarkSecondSell sets second_sell = true, guarded on first_sell
	// being true and second_sell still false. Returns ErrNotFound if the
	// guard does not hold.
	MarkSecondSell(ctx context.Context, mint string) error
}

// TradeLogStore archives observed triggers and executed fills for
// offline analysis. Append-only.
type TradeLogStore interface {
	// Insert adds a fill record.
	Insert(ctx context.Context, f *domain.TradeFill) error

	// GetByMint retrieves all fills for a mint, ordered by observed_at ASC.
	GetByMint(ctx context.Context, mint string) ([]*domain.TradeFill, error)
}
