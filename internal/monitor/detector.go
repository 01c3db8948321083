package monitor

import (
	"context"
	"fmt"
	"log"
	"strings"

	"solana-sniper-bot/internal/domain"
	"solana-sniper-bot/internal/observability"
	"solana-sniper-bot/internal/solana"
)

// SellTriggerDetector inspects transactions behind log notifications and
// reports every holder whose balance of the watched mint decreased.
type SellTriggerDetector struct {
	rpc    solana.RPCClient
	logger *log.Logger
}

// NewSellTriggerDetector creates a detector.
func NewSellTriggerDetector(rpc solana.RPCClient, logger *log.Logger) *SellTriggerDetector {
	if logger == nil {
		logger = log.Default()
	}
	return &SellTriggerDetector{rpc: rpc, logger: logger}
}

// Detect fetches the transaction for the event and diffs its pre/post
// token balances for the event's mint. One SellEvent is emitted per
// token account with a strict balance decrease. Failed transactions and
// transactions without a transfer instruction yield nothing.
func (d *SellTriggerDetector) Detect(ctx context.Context, event LogEvent) ([]domain.SellEvent, error) {
	if event.Err != nil {
		return nil, nil
	}
	if !mentionsTransfer(event.Logs) {
		return nil, nil
	}

	tx, err := d.rpc.GetTransaction(ctx, event.Signature)
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", event.Signature, err)
	}
	if tx == nil || tx.Meta == nil || tx.Meta.Failed() {
		return nil, nil
	}

	pre := make(map[int]solana.TokenBalance)
	for _, b := range tx.Meta.PreTokenBalances {
		if b.Mint == event.Mint {
			pre[b.AccountIndex] = b
		}
	}

	var sells []domain.SellEvent
	for _, post := range tx.Meta.PostTokenBalances {
		if post.Mint != event.Mint {
			continue
		}
		before, ok := pre[post.AccountIndex]
		if !ok {
			continue
		}
		if post.UIAmount < before.UIAmount {
			sells = append(sells, domain.SellEvent{
				Mint:      event.Mint,
				Owner:     before.Owner,
				Amount:    before.UIAmount - post.UIAmount,
				Signature: event.Signature,
				Slot:      event.Slot,
			})
		}
	}

	// Accounts present in pre but absent from post were closed; a close
	// empties the balance, which is a decrease too.
	postSeen := make(map[int]bool, len(tx.Meta.PostTokenBalances))
	for _, post := range tx.Meta.PostTokenBalances {
		if post.Mint == event.Mint {
			postSeen[post.AccountIndex] = true
		}
	}
	for idx, before := range pre {
		if !postSeen[idx] && before.UIAmount > 0 {
			sells = append(sells, domain.SellEvent{
				Mint:      event.Mint,
				Owner:     before.Owner,
				Amount:    before.UIAmount,
				Signature: event.Signature,
				Slot:      event.Slot,
			})
		}
	}

	for range sells {
		observability.RecordSellTrigger()
	}

	return sells, nil
}

// mentionsTransfer prefilters log lines so only transactions that moved
// tokens cost a getTransaction call.
func mentionsTransfer(logs []string) bool {
	for _, line := range logs {
		if strings.Contains(line, "Transfer") {
			return true
		}
	}
	return false
}
