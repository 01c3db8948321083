package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-sniper-bot/internal/domain"
	"solana-sniper-bot/internal/observability"
	"solana-sniper-bot/internal/storage"
)

// observe records query duration and outcome. Guard misses and
// duplicates are outcomes, not failures.
func observe(operation string, start time.Time, errp *error) {
	err := *errp
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrDuplicateKey) {
		err = nil
	}
	observability.RecordDBQuery("postgres", operation, time.Since(start).Seconds(), err)
}

// PositionStore implements storage.PositionStore using PostgreSQL.
// The mark operations are single conditional UPDATEs; the WHERE clause
// carries the guard, so two racing markers cannot both succeed.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

// Create adds a new position. Returns ErrDuplicateKey if mint exists.
func (s *PositionStore) Create(ctx context.Context, p *domain.Position) (err error) {
	if p == nil || p.Mint == "" {
		return storage.ErrInvalidInput
	}
	defer observe("create", time.Now(), &err)

	query := `
		INSERT INTO positions (
			mint, amount, decimals, purchased_at, first_sell, second_sell
		) VALUES ($1, $2, $3, $4, FALSE, FALSE)
	`

	_, err = s.pool.Exec(ctx, query, p.Mint, p.Amount, p.Decimals, p.PurchasedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// GetByMint retrieves a position. Returns ErrNotFound if missing.
func (s *PositionStore) GetByMint(ctx context.Context, mint string) (_ *domain.Position, err error) {
	defer observe("get_by_mint", time.Now(), &err)

	query := `
		SELECT mint, amount, decimals, purchased_at,
		       first_sell, first_sell_at, target_price,
		       second_sell, second_sell_at
		FROM positions
		WHERE mint = $1
	`

	row := s.pool.QueryRow(ctx, query, mint)
	p, err := scanPosition(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position by mint: %w", err)
	}
	return p, nil
}

// ListOpen retrieves open positions matching the filter, ordered by
// purchased_at ASC.
func (s *PositionStore) ListOpen(ctx context.Context, filter storage.PositionFilter) (_ []*domain.Position, err error) {
	var cond string
	switch filter {
	case storage.FirstSellPending:
		cond = "first_sell = FALSE"
	case storage.SecondSellPending:
		cond = "first_sell = TRUE AND second_sell = FALSE"
	default:
		return nil, storage.ErrInvalidInput
	}
	defer observe("list_open", time.Now(), &err)

	query := `
		SELECT mint, amount, decimals, purchased_at,
		       first_sell, first_sell_at, target_price,
		       second_sell, second_sell_at
		FROM positions
		WHERE ` + cond + `
		ORDER BY purchased_at ASC, mint ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list open positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// MarkFirstSell sets first_sell and target_price, guarded on first_sell
// still being false. Returns ErrNotFound if the guard does not hold.
func (s *PositionStore) MarkFirstSell(ctx context.Context, mint string, targetPrice float64) (err error) {
	defer observe("mark_first_sell", time.Now(), &err)

	query := `
		UPDATE positions
		SET first_sell = TRUE,
		    first_sell_at = (EXTRACT(EPOCH FROM now()) * 1000)::BIGINT,
		    target_price = $2
		WHERE mint = $1 AND first_sell = FALSE
	`

	tag, err := s.pool.Exec(ctx, query, mint, targetPrice)
	if err != nil {
		return fmt.Errorf("mark first sell: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkSecondSell sets second_sell, guarded on first_sell being set and
// second_sell still being false.
func (s *PositionStore) MarkSecondSell(ctx context.Context, mint string) (err error) {
	defer observe("mark_second_sell", time.Now(), &err)

	query := `
		UPDATE positions
		SET second_sell = TRUE,
		    second_sell_at = (EXTRACT(EPOCH FROM now()) * 1000)::BIGINT
		WHERE mint = $1 AND first_sell = TRUE AND second_sell = FALSE
	`

	tag, err := s.pool.Exec(ctx, query, mint)
	if err != nil {
		return fmt.Errorf("mark second sell: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanPosition scans a single row into a Position.
func scanPosition(row pgx.Row) (*domain.Position, error) {
	var p domain.Position
	err := row.Scan(
		&p.Mint,
		&p.Amount,
		&p.Decimals,
		&p.PurchasedAt,
		&p.FirstSell,
		&p.FirstSellAt,
		&p.TargetPrice,
		&p.SecondSell,
		&p.SecondSellAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// scanPositions scans multiple rows into a slice of Position.
func scanPositions(rows pgx.Rows) ([]*domain.Position, error) {
	var positions []*domain.Position

	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		positions = append(positions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}

	return positions, nil
}
