package qualify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"solana-sniper-bot/internal/domain"
	"solana-sniper-bot/internal/observability"
	"solana-sniper-bot/internal/storage"
	"solana-sniper-bot/internal/swap"
)

// Swapper executes a swap of raw base units between two mints.
type Swapper interface {
	Swap(ctx context.Context, inputMint, outputMint string, amount uint64) (*swap.Result, error)
}

// Watcher subscribes a mint's on-chain activity after a buy.
type Watcher interface {
	Watch(ctx context.Context, mint string) error
}

// PositionOpener buys a qualified pair and records the position.
type PositionOpener struct {
	swapper     Swapper
	positions   storage.PositionStore
	tradeLog    storage.TradeLogStore // nil disables archiving
	watcher     Watcher               // nil if no live subscription is wanted
	buyLamports uint64
	logger      *log.Logger
}

// NewPositionOpener creates an opener that spends buyLamports of SOL
// per position.
func NewPositionOpener(swapper Swapper, positions storage.PositionStore, tradeLog storage.TradeLogStore, watcher Watcher, buyLamports uint64, logger *log.Logger) *PositionOpener {
	if logger == nil {
		logger = log.Default()
	}
	return &PositionOpener{
		swapper:     swapper,
		positions:   positions,
		tradeLog:    tradeLog,
		watcher:     watcher,
		buyLamports: buyLamports,
		logger:      logger,
	}
}

// Buy swaps SOL into the pair's token, persists the position, and
// subscribes the mint. A mint that already has a position is skipped;
// one mint is never bought twice.
func (o *PositionOpener) Buy(ctx context.Context, pair domain.PairInfo) error {
	return o.BuyWithSpend(ctx, pair, o.buyLamports)
}

// BuyWithSpend is Buy with an explicit spend, used by the manual buy
// endpoint to override the configured amount.
func (o *PositionOpener) BuyWithSpend(ctx context.Context, pair domain.PairInfo, lamports uint64) error {
	if _, err := o.positions.GetByMint(ctx, pair.Mint); err == nil {
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("check position %s: %w", pair.Mint, err)
	}

	result, err := o.swapper.Swap(ctx, swap.SOLMint, pair.Mint, lamports)
	if err != nil {
		observability.RecordTradeError("buy")
		return fmt.Errorf("buy %s: %w", pair.Mint, err)
	}

	tokens := swap.ToUIAmount(result.OutAmount, pair.Decimals)
	pos := &domain.Position{
		Mint:        pair.Mint,
		Amount:      tokens,
		Decimals:    pair.Decimals,
		PurchasedAt: time.Now().UnixMilli(),
	}
	if err := o.positions.Create(ctx, pos); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			o.logger.Printf("[qualify] position for %s already exists, bought twice (sig %s)",
				pair.Mint, result.Signature)
			return nil
		}
		return fmt.Errorf("persist position %s: %w", pair.Mint, err)
	}

	observability.DefaultMetrics.BuysExecuted.Inc()
	o.logger.Printf("[qualify] bought %v %s (%s) for %d lamports, sig=%s",
		tokens, pair.Symbol, pair.Mint, lamports, result.Signature)

	if o.tradeLog != nil {
		fill := &domain.TradeFill{
			Mint:          pair.Mint,
			Side:          domain.FillSideBuy,
			Amount:        tokens,
			QuoteLamports: int64(lamports),
			Signature:     result.Signature,
			ObservedAt:    time.Now().UnixMilli(),
		}
		if err := o.tradeLog.Insert(ctx, fill); err != nil {
			o.logger.Printf("[qualify] archive buy fill for %s: %v", pair.Mint, err)
		}
	}

	if o.watcher != nil {
		if err := o.watcher.Watch(ctx, pair.Mint); err != nil {
			o.logger.Printf("[qualify] watch %s: %v", pair.Mint, err)
		}
	}
	return nil
}
