// Package exits runs the two-phase liquidation of a position: half on
// the first observed holder exit, the remainder when the price returns
// to the level the first half sold at.
package exits

import (
	"context"
	"log"
	"time"
)

// DefaultPollInterval is how often the price watcher re-quotes.
const DefaultPollInterval = 2 * time.Second

// PriceFunc returns the current price of a mint as token units per SOL.
// Higher means the token got cheaper.
type PriceFunc func(ctx context.Context, mint string, decimals int) (float64, error)

// PriceWatcher polls the price of one mint until it reaches the target,
// then fires the exit callback exactly once.
type PriceWatcher struct {
	mint     string
	decimals int

	// target is token units per SOL fixed by the first sell. The exit
	// fires when the current ratio drops to the target or below, i.e.
	// when one SOL buys at most as many tokens as it did at the first
	// sell.
	target float64

	interval    time.Duration
	maxDuration time.Duration // 0 = watch until target or shutdown

	price    PriceFunc
	onTarget func(ctx context.Context) error
	logger   *log.Logger
}

// NewPriceWatcher creates a watcher. onTarget is retried on the next
// tick if it errors; the watcher exits after the first success.
func NewPriceWatcher(mint string, decimals int, target float64, price PriceFunc, onTarget func(ctx context.Context) error, logger *log.Logger) *PriceWatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &PriceWatcher{
		mint:     mint,
		decimals: decimals,
		target:   target,
		interval: DefaultPollInterval,
		price:    price,
		onTarget: onTarget,
		logger:   logger,
	}
}

// SetInterval overrides the poll interval.
func (w *PriceWatcher) SetInterval(d time.Duration) {
	w.interval = d
}

// SetMaxDuration bounds how long the watcher runs. Zero means no bound.
func (w *PriceWatcher) SetMaxDuration(d time.Duration) {
	w.maxDuration = d
}

// Run polls until the target is hit and the callback succeeds, the
// context is canceled, or the optional max duration elapses.
func (w *PriceWatcher) Run(ctx context.Context) {
	if w.maxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.maxDuration)
		defer cancel()
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				w.logger.Printf("[exits] price watch for %s expired without reaching target %v", w.mint, w.target)
			}
			return
		case <-ticker.C:
		}

		current, err := w.price(ctx, w.mint, w.decimals)
		if err != nil {
			w.logger.Printf("[exits] price poll for %s: %v", w.mint, err)
			continue
		}

		if current > w.target {
			continue
		}

		w.logger.Printf("[exits] %s hit target: current=%v target=%v", w.mint, current, w.target)

		if err := w.onTarget(ctx); err != nil {
			w.logger.Printf("[exits] exit for %s failed, will retry: %v", w.mint, err)
			continue
		}
		return
	}
}
