package swap

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"solana-sniper-bot/internal/solana"
)

// Signer signs base64-encoded transactions as the fee payer.
type Signer interface {
	PublicKey() string
	SignTransaction(txBase64 string) (string, error)
}

// Result describes an executed swap in raw base units of each side.
type Result struct {
	Signature string
	InAmount  uint64
	OutAmount uint64
}

// Executor turns a quote into a confirmed on-chain swap.
type Executor struct {
	quotes         *Client
	rpc            solana.RPCClient
	signer         Signer
	logger         *log.Logger
	slippageBps    int
	confirmTimeout time.Duration
}

// NewExecutor creates a swap executor.
func NewExecutor(quotes *Client, rpc solana.RPCClient, signer Signer, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.Default()
	}
	return &Executor{
		quotes:         quotes,
		rpc:            rpc,
		signer:         signer,
		logger:         logger,
		slippageBps:    DefaultSlippageBps,
		confirmTimeout: 60 * time.Second,
	}
}

// Swap quotes, builds, signs, submits, and confirms a swap of amount
// (raw base units) of inputMint into outputMint. The returned OutAmount
// is the quoted output; fills within slippage tolerance may differ
// slightly.
func (e *Executor) Swap(ctx context.Context, inputMint, outputMint string, amount uint64) (*Result, error) {
	quote, err := e.quotes.GetQuote(ctx, inputMint, outputMint, amount, e.slippageBps)
	if err != nil {
		return nil, fmt.Errorf("quote %s -> %s: %w", inputMint, outputMint, err)
	}

	unsigned, err := e.quotes.BuildSwapTransaction(ctx, quote, e.signer.PublicKey())
	if err != nil {
		return nil, fmt.Errorf("build swap transaction: %w", err)
	}

	signed, err := e.signer.SignTransaction(unsigned)
	if err != nil {
		return nil, fmt.Errorf("sign swap transaction: %w", err)
	}

	sig, err := e.rpc.SendTransaction(ctx, signed)
	if err != nil {
		return nil, fmt.Errorf("send swap transaction: %w", err)
	}

	e.logger.Printf("swap submitted: %s -> %s in=%d out=%d sig=%s",
		inputMint, outputMint, quote.InAmount, quote.OutAmount, sig)

	confirmCtx, cancel := context.WithTimeout(ctx, e.confirmTimeout)
	defer cancel()

	confirmed, err := e.rpc.ConfirmTransaction(confirmCtx, sig)
	if err != nil {
		return nil, fmt.Errorf("confirm %s: %w", sig, err)
	}
	if !confirmed {
		return nil, fmt.Errorf("transaction %s not confirmed", sig)
	}

	return &Result{
		Signature: sig,
		InAmount:  quote.InAmount,
		OutAmount: quote.OutAmount,
	}, nil
}

// ToBaseUnits converts a UI amount to raw base units for a mint with
// the given decimals, truncating any sub-unit fraction.
func ToBaseUnits(ui float64, decimals int) uint64 {
	return uint64(ui * math.Pow10(decimals))
}

// ToUIAmount converts raw base units back to a UI amount.
func ToUIAmount(raw uint64, decimals int) float64 {
	return float64(raw) / math.Pow10(decimals)
}
