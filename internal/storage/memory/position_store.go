package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-sniper-bot/internal/domain"
	"solana-sniper-bot/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
// The single mutex serializes concurrent writers per mint, which gives
// the same guard-and-set semantics as the conditional SQL UPDATE.
type PositionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Position // keyed by mint
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		data: make(map[string]*domain.Position),
	}
}

// Create adds a new position. Returns ErrDuplicateKey if mint exists.
func (s *PositionStore) Create(_ context.Context, p *domain.Position) error {
	if p == nil || p.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.Mint]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	posCopy := *p
	s.data[p.Mint] = &posCopy
	return nil
}

// GetByMint retrieves a position. Returns ErrNotFound if missing.
func (s *PositionStore) GetByMint(_ context.Context, mint string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}

	posCopy := *p
	return &posCopy, nil
}

// ListOpen retrieves open positions matching the filter.
func (s *PositionStore) ListOpen(_ context.Context, filter storage.PositionFilter) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Position
	for _, p := range s.data {
		switch filter {
		case storage.FirstSellPending:
			if p.FirstSell {
				continue
			}
		case storage.SecondSellPending:
			if !p.FirstSell || p.SecondSell {
				continue
			}
		default:
			return nil, storage.ErrInvalidInput
		}
		posCopy := *p
		result = append(result, &posCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].PurchasedAt < result[j].PurchasedAt
	})

	return result, nil
}

// MarkFirstSell flips first_sell and records the target price, guarded
// on first_sell still being false.
func (s *PositionStore) MarkFirstSell(_ context.Context, mint string, targetPrice float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.data[mint]
	if !exists || p.FirstSell {
		return storage.ErrNotFound
	}

	now := time.Now().UnixMilli()
	p.FirstSell = true
	p.FirstSellAt = &now
	p.TargetPrice = &targetPrice
	return nil
}

// MarkSecondSell flips second_sell, guarded on first_sell being set and
// second_sell still being false.
func (s *PositionStore) MarkSecondSell(_ context.Context, mint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.data[mint]
	if !exists || !p.FirstSell || p.SecondSell {
		return storage.ErrNotFound
	}

	now := time.Now().UnixMilli()
	p.SecondSell = true
	p.SecondSellAt = &now
	return nil
}

// Verify interface compliance at compile time.
var _ storage.PositionStore = (*PositionStore)(nil)
