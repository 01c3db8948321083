package memory

import (
	"context"
	"testing"

	"solana-sniper-bot/internal/domain"
	"solana-sniper-bot/internal/storage"
)

func TestTradeLogStore_InsertAndGetByMint(t *testing.T) {
	store := NewTradeLogStore()
	ctx := context.Background()

	fills := []*domain.TradeFill{
		{Mint: "MintX", Side: domain.FillSideSell1, Amount: 50, ObservedAt: 200},
		{Mint: "MintX", Side: domain.FillSideBuy, Amount: 100, ObservedAt: 100},
		{Mint: "MintY", Side: domain.FillSideBuy, Amount: 5, ObservedAt: 150},
	}
	for _, f := range fills {
		if err := store.Insert(ctx, f); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	got, err := store.GetByMint(ctx, "MintX")
	if err != nil {
		t.Fatalf("GetByMint: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 fills, got %d", len(got))
	}
	if got[0].Side != domain.FillSideBuy || got[1].Side != domain.FillSideSell1 {
		t.Errorf("fills not ordered by observed_at: %+v", got)
	}

	// Stored fills are copies, mutation must not leak back.
	got[0].Amount = 999
	again, _ := store.GetByMint(ctx, "MintX")
	if again[0].Amount != 100 {
		t.Errorf("store leaked a mutable reference")
	}
}

func TestTradeLogStore_InvalidInput(t *testing.T) {
	store := NewTradeLogStore()

	if err := store.Insert(context.Background(), nil); err != storage.ErrInvalidInput {
		t.Errorf("expected ErrInvalidInput for nil, got %v", err)
	}
	if err := store.Insert(context.Background(), &domain.TradeFill{}); err != storage.ErrInvalidInput {
		t.Errorf("expected ErrInvalidInput for empty mint, got %v", err)
	}
}

func TestTradeLogStore_UnknownMintEmpty(t *testing.T) {
	store := NewTradeLogStore()
	got, err := store.GetByMint(context.Background(), "Nope")
	if err != nil {
		t.Fatalf("GetByMint: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no fills, got %d", len(got))
	}
}
