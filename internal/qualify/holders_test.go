package qualify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"solana-sniper-bot/internal/solana"
)

type stubRPC struct {
	solana.RPCClient
	accounts []solana.TokenAccountBalance
	owners   map[string]string
}

func (s *stubRPC) GetTokenLargestAccounts(ctx context.Context, mint string) ([]solana.TokenAccountBalance, error) {
	return s.accounts, nil
}

func (s *stubRPC) GetTokenAccountOwner(ctx context.Context, account string) (string, error) {
	owner, ok := s.owners[account]
	if !ok {
		return "", errors.New("account not found")
	}
	return owner, nil
}

func TestHolderInspector_TopHolders(t *testing.T) {
	rpc := &stubRPC{
		accounts: []solana.TokenAccountBalance{
			{Address: "acc1", UIAmount: 5000},
			{Address: "acc2", UIAmount: 3000},
			{Address: "acc3", UIAmount: 100},
		},
		owners: map[string]string{
			"acc1": "WalletA",
			"acc2": "WalletB",
			// acc3 deliberately unresolvable
		},
	}

	inspector := NewHolderInspector(rpc)
	holders, err := inspector.TopHolders(context.Background(), "MintX", 10)
	if err != nil {
		t.Fatalf("TopHolders: %v", err)
	}

	if len(holders) != 3 {
		t.Fatalf("expected 3 holders, got %d", len(holders))
	}
	if holders[0].Rank != 1 || holders[0].Owner != "WalletA" || holders[0].Amount != 5000 {
		t.Errorf("unexpected first holder: %+v", holders[0])
	}
	if holders[2].Owner != "" {
		t.Errorf("unresolvable account should have empty owner, got %q", holders[2].Owner)
	}
}

func TestHolderInspector_LimitApplied(t *testing.T) {
	var accounts []solana.TokenAccountBalance
	owners := map[string]string{}
	for i := 0; i < 20; i++ {
		addr := fmt.Sprintf("acc%d", i)
		accounts = append(accounts, solana.TokenAccountBalance{Address: addr, UIAmount: float64(20 - i)})
		owners[addr] = fmt.Sprintf("Wallet%d", i)
	}
	rpc := &stubRPC{accounts: accounts, owners: owners}

	inspector := NewHolderInspector(rpc)
	holders, err := inspector.TopHolders(context.Background(), "MintX", TopHolderCount)
	if err != nil {
		t.Fatalf("TopHolders: %v", err)
	}
	if len(holders) != TopHolderCount {
		t.Errorf("expected %d holders, got %d", TopHolderCount, len(holders))
	}
}
