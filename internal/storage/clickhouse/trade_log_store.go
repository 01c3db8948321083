package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-sniper-bot/internal/domain"
	"solana-sniper-bot/internal/observability"
	"solana-sniper-bot/internal/storage"
)

// observe records query duration and outcome.
func observe(operation string, start time.Time, errp *error) {
	observability.RecordDBQuery("clickhouse", operation, time.Since(start).Seconds(), *errp)
}

// TradeLogStore implements storage.TradeLogStore using ClickHouse.
// The log is append-only analytics data; duplicates are acceptable and
// not checked, matching MergeTree semantics.
type TradeLogStore struct {
	conn *Conn
}

// NewTradeLogStore creates a new TradeLogStore.
func NewTradeLogStore(conn *Conn) *TradeLogStore {
	return &TradeLogStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeLogStore = (*TradeLogStore)(nil)

// Insert adds a fill record.
func (s *TradeLogStore) Insert(ctx context.Context, f *domain.TradeFill) (err error) {
	if f == nil || f.Mint == "" {
		return storage.ErrInvalidInput
	}
	defer observe("insert", time.Now(), &err)

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trade_log (
			mint, side, amount, quote_lamports, signature, observed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		f.Mint, string(f.Side), f.Amount, f.QuoteLamports,
		f.Signature, uint64(f.ObservedAt),
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByMint retrieves all fills for a mint, ordered by observed_at ASC.
func (s *TradeLogStore) GetByMint(ctx context.Context, mint string) (_ []*domain.TradeFill, err error) {
	defer observe("get_by_mint", time.Now(), &err)

	query := `
		SELECT mint, side, amount, quote_lamports, signature, observed_at
		FROM trade_log
		WHERE mint = ?
		ORDER BY observed_at ASC
	`

	rows, err := s.conn.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("query trade log: %w", err)
	}
	defer rows.Close()

	var fills []*domain.TradeFill
	for rows.Next() {
		var f domain.TradeFill
		var side string
		var observedAt uint64

		err := rows.Scan(&f.Mint, &side, &f.Amount, &f.QuoteLamports, &f.Signature, &observedAt)
		if err != nil {
			return nil, fmt.Errorf("scan trade log row: %w", err)
		}

		f.Side = domain.FillSide(side)
		f.ObservedAt = int64(observedAt)
		fills = append(fills, &f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade log rows: %w", err)
	}

	return fills, nil
}
