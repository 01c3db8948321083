package memory

import (
	"context"
	"sort"
	"sync"

	"solana-sniper-bot/internal/domain"
	"solana-sniper-bot/internal/storage"
)

// TradeLogStore is an in-memory implementation of storage.TradeLogStore.
type TradeLogStore struct {
	mu   sync.RWMutex
	data []*domain.TradeFill
}

// NewTradeLogStore creates a new in-memory trade log store.
func NewTradeLogStore() *TradeLogStore {
	return &TradeLogStore{}
}

// Insert adds a fill record.
func (s *TradeLogStore) Insert(_ context.Context, f *domain.TradeFill) error {
	if f == nil || f.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fillCopy := *f
	s.data = append(s.data, &fillCopy)
	return nil
}

// GetByMint retrieves all fills for a mint, ordered by observed_at ASC.
func (s *TradeLogStore) GetByMint(_ context.Context, mint string) ([]*domain.TradeFill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeFill
	for _, f := range s.data {
		if f.Mint == mint {
			fillCopy := *f
			result = append(result, &fillCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ObservedAt < result[j].ObservedAt
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.TradeLogStore = (*TradeLogStore)(nil)
