package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"solana-sniper-bot/internal/domain"
	"solana-sniper-bot/internal/storage"
)

func TestPositionStore_CreateAndGet(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	p := &domain.Position{
		Mint:        "mint123",
		Amount:      1000000,
		Decimals:    6,
		PurchasedAt: 1704067200000,
	}

	if err := store.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.GetByMint(ctx, "mint123")
	if err != nil {
		t.Fatalf("GetByMint failed: %v", err)
	}

	if got.Mint != p.Mint {
		t.Errorf("Mint mismatch: got %s, want %s", got.Mint, p.Mint)
	}
	if got.FirstSell || got.SecondSell {
		t.Error("new position must start with both sell flags false")
	}
	if got.TargetPrice != nil {
		t.Error("new position must not have a target price")
	}
}

func TestPositionStore_DuplicateKey(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	p := &domain.Position{Mint: "mint123", Amount: 100, Decimals: 6, PurchasedAt: 1000}

	if err := store.Create(ctx, p); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}

	err := store.Create(ctx, p)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestPositionStore_NotFound(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	_, err := store.GetByMint(ctx, "nonexistent")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPositionStore_MarkFirstSell(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	p := &domain.Position{Mint: "mint123", Amount: 100, Decimals: 6, PurchasedAt: 1000}
	if err := store.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.MarkFirstSell(ctx, "mint123", 77160); err != nil {
		t.Fatalf("MarkFirstSell failed: %v", err)
	}

	got, err := store.GetByMint(ctx, "mint123")
	if err != nil {
		t.Fatalf("GetByMint failed: %v", err)
	}
	if !got.FirstSell {
		t.Error("FirstSell not set")
	}
	if got.TargetPrice == nil || *got.TargetPrice != 77160 {
		t.Errorf("TargetPrice mismatch: got %v, want 77160", got.TargetPrice)
	}
	if got.FirstSellAt == nil {
		t.Error("FirstSellAt not set")
	}
}

func TestPositionStore_MarkFirstSellIdempotent(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	p := &domain.Position{Mint: "mint123", Amount: 100, Decimals: 6, PurchasedAt: 1000}
	if err := store.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.MarkFirstSell(ctx, "mint123", 77160); err != nil {
		t.Fatalf("first MarkFirstSell failed: %v", err)
	}

	// Second mark must report not found and leave the record unchanged.
	err := store.MarkFirstSell(ctx, "mint123", 99999)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on double mark, got %v", err)
	}

	got, _ := store.GetByMint(ctx, "mint123")
	if *got.TargetPrice != 77160 {
		t.Errorf("target price overwritten by second mark: got %v", *got.TargetPrice)
	}
}

func TestPositionStore_MarkSecondSellRequiresFirst(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	p := &domain.Position{Mint: "mint123", Amount: 100, Decimals: 6, PurchasedAt: 1000}
	if err := store.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// second_sell implies first_sell; the guard must reject this.
	err := store.MarkSecondSell(ctx, "mint123")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound before first sell, got %v", err)
	}

	if err := store.MarkFirstSell(ctx, "mint123", 100); err != nil {
		t.Fatalf("MarkFirstSell failed: %v", err)
	}
	if err := store.MarkSecondSell(ctx, "mint123"); err != nil {
		t.Fatalf("MarkSecondSell failed: %v", err)
	}

	err = store.MarkSecondSell(ctx, "mint123")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on double mark, got %v", err)
	}

	got, _ := store.GetByMint(ctx, "mint123")
	if got.SecondSell && !got.FirstSell {
		t.Error("invariant violated: second_sell without first_sell")
	}
}

func TestPositionStore_ListOpenFilters(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	positions := []*domain.Position{
		{Mint: "m1", Amount: 1, Decimals: 6, PurchasedAt: 1000},
		{Mint: "m2", Amount: 1, Decimals: 6, PurchasedAt: 2000},
		{Mint: "m3", Amount: 1, Decimals: 6, PurchasedAt: 3000},
	}
	for _, p := range positions {
		if err := store.Create(ctx, p); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	// m2 -> first sell done, m3 -> fully closed
	if err := store.MarkFirstSell(ctx, "m2", 10); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkFirstSell(ctx, "m3", 10); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkSecondSell(ctx, "m3"); err != nil {
		t.Fatal(err)
	}

	firstPending, err := store.ListOpen(ctx, storage.FirstSellPending)
	if err != nil {
		t.Fatalf("ListOpen(FirstSellPending) failed: %v", err)
	}
	if len(firstPending) != 1 || firstPending[0].Mint != "m1" {
		t.Errorf("FirstSellPending: got %v, want [m1]", mints(firstPending))
	}

	secondPending, err := store.ListOpen(ctx, storage.SecondSellPending)
	if err != nil {
		t.Fatalf("ListOpen(SecondSellPending) failed: %v", err)
	}
	if len(secondPending) != 1 || secondPending[0].Mint != "m2" {
		t.Errorf("SecondSellPending: got %v, want [m2]", mints(secondPending))
	}
}

func TestPositionStore_ConcurrentMarks(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	p := &domain.Position{Mint: "mint123", Amount: 100, Decimals: 6, PurchasedAt: 1000}
	if err := store.Create(ctx, p); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Many racing markers: exactly one must win.
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(tp float64) {
			defer wg.Done()
			if err := store.MarkFirstSell(ctx, "mint123", tp); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(float64(i + 1))
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly 1 winning mark, got %d", wins)
	}
}

func mints(ps []*domain.Position) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Mint
	}
	return out
}
