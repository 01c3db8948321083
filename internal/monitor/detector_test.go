package monitor

import (
	"context"
	"testing"

	"solana-sniper-bot/internal/solana"
)

type stubRPC struct {
	solana.RPCClient
	tx    *solana.Transaction
	calls int
}

func (s *stubRPC) GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error) {
	s.calls++
	return s.tx, nil
}

func balance(idx int, owner string, amount float64) solana.TokenBalance {
	return solana.TokenBalance{
		AccountIndex: idx,
		Mint:         "MintX",
		Owner:        owner,
		UIAmount:     amount,
		Decimals:     6,
	}
}

func transferEvent() LogEvent {
	return LogEvent{
		Mint:      "MintX",
		Signature: "sig1",
		Slot:      42,
		Logs:      []string{"Program log: Instruction: Transfer"},
	}
}

func TestDetector_BalanceDecrease(t *testing.T) {
	rpc := &stubRPC{tx: &solana.Transaction{
		Slot: 42,
		Meta: &solana.TransactionMeta{
			PreTokenBalances:  []solana.TokenBalance{balance(1, "OwnerA", 1000)},
			PostTokenBalances: []solana.TokenBalance{balance(1, "OwnerA", 400)},
		},
	}}

	detector := NewSellTriggerDetector(rpc, nil)
	sells, err := detector.Detect(context.Background(), transferEvent())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}

	if len(sells) != 1 {
		t.Fatalf("expected 1 sell event, got %d", len(sells))
	}
	sell := sells[0]
	if sell.Owner != "OwnerA" || sell.Amount != 600 {
		t.Errorf("unexpected sell: %+v", sell)
	}
	if sell.Mint != "MintX" || sell.Signature != "sig1" || sell.Slot != 42 {
		t.Errorf("unexpected sell attribution: %+v", sell)
	}
}

func TestDetector_IncreaseAndUnchangedIgnored(t *testing.T) {
	rpc := &stubRPC{tx: &solana.Transaction{
		Meta: &solana.TransactionMeta{
			PreTokenBalances: []solana.TokenBalance{
				balance(1, "Buyer", 100),
				balance(2, "Idle", 500),
			},
			PostTokenBalances: []solana.TokenBalance{
				balance(1, "Buyer", 900),
				balance(2, "Idle", 500),
			},
		},
	}}

	detector := NewSellTriggerDetector(rpc, nil)
	sells, err := detector.Detect(context.Background(), transferEvent())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(sells) != 0 {
		t.Errorf("expected no sells, got %+v", sells)
	}
}

func TestDetector_SkipsFailedTransaction(t *testing.T) {
	rpc := &stubRPC{tx: &solana.Transaction{
		Meta: &solana.TransactionMeta{
			Err:               map[string]interface{}{"InstructionError": []interface{}{}},
			PreTokenBalances:  []solana.TokenBalance{balance(1, "OwnerA", 1000)},
			PostTokenBalances: []solana.TokenBalance{balance(1, "OwnerA", 0)},
		},
	}}

	detector := NewSellTriggerDetector(rpc, nil)
	sells, err := detector.Detect(context.Background(), transferEvent())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(sells) != 0 {
		t.Errorf("failed transaction must not produce sells, got %+v", sells)
	}
}

func TestDetector_SkipsFailedLogEvent(t *testing.T) {
	rpc := &stubRPC{}
	detector := NewSellTriggerDetector(rpc, nil)

	event := transferEvent()
	event.Err = map[string]interface{}{"InstructionError": []interface{}{}}

	sells, err := detector.Detect(context.Background(), event)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(sells) != 0 {
		t.Errorf("expected no sells, got %+v", sells)
	}
	if rpc.calls != 0 {
		t.Errorf("failed log event must not be fetched, got %d calls", rpc.calls)
	}
}

func TestDetector_NonTransferLogsNotFetched(t *testing.T) {
	rpc := &stubRPC{}
	detector := NewSellTriggerDetector(rpc, nil)

	event := transferEvent()
	event.Logs = []string{"Program log: Instruction: Swap"}

	sells, err := detector.Detect(context.Background(), event)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(sells) != 0 {
		t.Errorf("expected no sells, got %+v", sells)
	}
	if rpc.calls != 0 {
		t.Errorf("non-transfer logs must not trigger a fetch, got %d calls", rpc.calls)
	}
}

func TestDetector_OtherMintIgnored(t *testing.T) {
	other := balance(1, "OwnerA", 1000)
	other.Mint = "OtherMint"
	otherPost := balance(1, "OwnerA", 100)
	otherPost.Mint = "OtherMint"

	rpc := &stubRPC{tx: &solana.Transaction{
		Meta: &solana.TransactionMeta{
			PreTokenBalances:  []solana.TokenBalance{other},
			PostTokenBalances: []solana.TokenBalance{otherPost},
		},
	}}

	detector := NewSellTriggerDetector(rpc, nil)
	sells, err := detector.Detect(context.Background(), transferEvent())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(sells) != 0 {
		t.Errorf("decrease on a different mint must not count, got %+v", sells)
	}
}

func TestDetector_ClosedAccountCountsAsDecrease(t *testing.T) {
	rpc := &stubRPC{tx: &solana.Transaction{
		Meta: &solana.TransactionMeta{
			PreTokenBalances:  []solana.TokenBalance{balance(3, "OwnerB", 250)},
			PostTokenBalances: nil,
		},
	}}

	detector := NewSellTriggerDetector(rpc, nil)
	sells, err := detector.Detect(context.Background(), transferEvent())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(sells) != 1 {
		t.Fatalf("expected 1 sell event, got %d", len(sells))
	}
	if sells[0].Owner != "OwnerB" || sells[0].Amount != 250 {
		t.Errorf("unexpected sell: %+v", sells[0])
	}
}

func TestDetector_TransactionNotFound(t *testing.T) {
	rpc := &stubRPC{tx: nil}
	detector := NewSellTriggerDetector(rpc, nil)

	sells, err := detector.Detect(context.Background(), transferEvent())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(sells) != 0 {
		t.Errorf("expected no sells for missing transaction, got %+v", sells)
	}
}
