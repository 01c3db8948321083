package exits

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
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

// Unwatcher drops the log subscription for a fully closed position.
type Unwatcher interface {
	Unwatch(ctx context.Context, mint string) error
}

// Controller drives position exits. The first observed holder exit for
// a mint sells half the position and fixes the target price; a price
// watcher then polls until the target is reached and sells the rest.
//
// Both steps are guarded by conditional store updates, so a restart or
// a duplicate trigger can never sell the same tranche twice.
type Controller struct {
	positions storage.PositionStore
	tradeLog  storage.TradeLogStore // nil disables archiving
	swapper   Swapper
	price     PriceFunc
	unwatcher Unwatcher // nil if no subscription cleanup is needed
	logger    *log.Logger

	pollInterval time.Duration
	maxWatch     time.Duration // 0 = watch forever

	mu       sync.Mutex
	watchers map[string]context.CancelFunc
	inFlight map[string]bool

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ControllerOption configures the controller.
type ControllerOption func(*Controller)

// WithPollInterval overrides the price poll interval.
func WithPollInterval(d time.Duration) ControllerOption {
	return func(c *Controller) { c.pollInterval = d }
}

// WithMaxWatchDuration bounds each price watch. Off by default.
func WithMaxWatchDuration(d time.Duration) ControllerOption {
	return func(c *Controller) { c.maxWatch = d }
}

// NewController creates an exit controller.
func NewController(positions storage.PositionStore, tradeLog storage.TradeLogStore, swapper Swapper, price PriceFunc, unwatcher Unwatcher, logger *log.Logger, opts ...ControllerOption) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	c := &Controller{
		positions:    positions,
		tradeLog:     tradeLog,
		swapper:      swapper,
		price:        price,
		unwatcher:    unwatcher,
		logger:       logger,
		pollInterval: DefaultPollInterval,
		watchers:     make(map[string]context.CancelFunc),
		inFlight:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start resumes price watchers for positions that already sold their
// first half before a restart. Canceling ctx cancels the watchers.
func (c *Controller) Start(ctx context.Context) error {
	c.runCtx, c.cancel = context.WithCancel(ctx)

	pending, err := c.positions.ListOpen(ctx, storage.SecondSellPending)
	if err != nil {
		return fmt.Errorf("list second-sell pending: %w", err)
	}

	for _, pos := range pending {
		if pos.TargetPrice == nil {
			// The store enforces first_sell => target_price, so this
			// would be data corruption.
			c.logger.Printf("[exits] %s is first-sold without a target price, skipping", pos.Mint)
			continue
		}
		c.startWatcher(pos.Mint, pos.Decimals, pos.HalfAmount(), *pos.TargetPrice)
	}

	if len(pending) > 0 {
		c.logger.Printf("[exits] resumed %d price watcher(s)", len(pending))
	}
	return nil
}

// Stop cancels all price watchers and waits for them.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// ActiveWatchers returns the number of running price watchers.
func (c *Controller) ActiveWatchers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.watchers)
}

// HandleSellTrigger reacts to a holder exit for a mint. The first
// trigger sells half; later triggers for the same mint are no-ops
// beyond making sure the price watcher is running.
func (c *Controller) HandleSellTrigger(ctx context.Context, sell domain.SellEvent) error {
	mint := sell.Mint

	c.mu.Lock()
	if c.inFlight[mint] {
		c.mu.Unlock()
		return nil
	}
	c.inFlight[mint] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inFlight, mint)
		c.mu.Unlock()
	}()

	pos, err := c.positions.GetByMint(ctx, mint)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("get position %s: %w", mint, err)
	}
	if pos.SecondSell {
		return nil
	}

	c.archiveFill(ctx, &domain.TradeFill{
		Mint:       mint,
		Side:       domain.FillSideTrigger,
		Amount:     sell.Amount,
		Signature:  sell.Signature,
		ObservedAt: time.Now().UnixMilli(),
	})

	if pos.FirstSell {
		// Already half out; the watcher may have died with the process.
		if pos.TargetPrice != nil {
			c.ensureWatcher(pos.Mint, pos.Decimals, pos.HalfAmount(), *pos.TargetPrice)
		}
		return nil
	}

	return c.executeFirstSell(ctx, pos)
}

// executeFirstSell sells half the position and fixes the target price
// at the realized ratio of tokens sold per SOL received.
func (c *Controller) executeFirstSell(ctx context.Context, pos *domain.Position) error {
	half := pos.HalfAmount()
	raw := swap.ToBaseUnits(half, pos.Decimals)

	result, err := c.swapper.Swap(ctx, pos.Mint, swap.SOLMint, raw)
	if err != nil {
		observability.RecordTradeError("first_sell")
		return fmt.Errorf("first sell %s: %w", pos.Mint, err)
	}

	solReceived := swap.ToUIAmount(result.OutAmount, 9)
	if solReceived <= 0 {
		observability.RecordTradeError("first_sell")
		return fmt.Errorf("first sell %s returned zero SOL", pos.Mint)
	}
	target := half / solReceived

	if err := c.positions.MarkFirstSell(ctx, pos.Mint, target); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Another path won the mark after our swap went out. The
			// tranche accounting is off; surface it, nothing to unwind.
			c.logger.Printf("[exits] first sell for %s executed but was already marked (sig %s)",
				pos.Mint, result.Signature)
			return nil
		}
		return fmt.Errorf("mark first sell %s: %w", pos.Mint, err)
	}

	observability.DefaultMetrics.FirstSellsExecuted.Inc()
	c.logger.Printf("[exits] first sell %s: sold=%v received=%v SOL target=%v sig=%s",
		pos.Mint, half, solReceived, target, result.Signature)

	c.archiveFill(ctx, &domain.TradeFill{
		Mint:          pos.Mint,
		Side:          domain.FillSideSell1,
		Amount:        half,
		QuoteLamports: int64(result.OutAmount),
		Signature:     result.Signature,
		ObservedAt:    time.Now().UnixMilli(),
	})

	c.startWatcher(pos.Mint, pos.Decimals, half, target)
	return nil
}

// ensureWatcher starts a watcher unless one is already running.
func (c *Controller) ensureWatcher(mint string, decimals int, amount, target float64) {
	c.mu.Lock()
	_, running := c.watchers[mint]
	c.mu.Unlock()
	if !running {
		c.startWatcher(mint, decimals, amount, target)
	}
}

func (c *Controller) startWatcher(mint string, decimals int, amount, target float64) {
	ctx, cancel := context.WithCancel(c.runCtx)

	c.mu.Lock()
	if _, exists := c.watchers[mint]; exists {
		c.mu.Unlock()
		cancel()
		return
	}
	c.watchers[mint] = cancel
	c.mu.Unlock()

	watcher := NewPriceWatcher(mint, decimals, target, c.price, func(ctx context.Context) error {
		return c.executeSecondSell(ctx, mint, decimals, amount)
	}, c.logger)
	watcher.SetInterval(c.pollInterval)
	if c.maxWatch > 0 {
		watcher.SetMaxDuration(c.maxWatch)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.watchers, mint)
			c.mu.Unlock()
			cancel()
		}()
		watcher.Run(ctx)
	}()
}

// executeSecondSell liquidates the remaining half and closes the
// position. Errors leave the position open; the watcher retries.
func (c *Controller) executeSecondSell(ctx context.Context, mint string, decimals int, amount float64) error {
	raw := swap.ToBaseUnits(amount, decimals)

	result, err := c.swapper.Swap(ctx, mint, swap.SOLMint, raw)
	if err != nil {
		observability.RecordTradeError("second_sell")
		return fmt.Errorf("second sell %s: %w", mint, err)
	}

	if err := c.positions.MarkSecondSell(ctx, mint); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.logger.Printf("[exits] second sell for %s executed but was already marked (sig %s)",
				mint, result.Signature)
		} else {
			return fmt.Errorf("mark second sell %s: %w", mint, err)
		}
	} else {
		observability.DefaultMetrics.SecondSellsExecuted.Inc()
	}

	c.logger.Printf("[exits] second sell %s: sold=%v sig=%s, position closed", mint, amount, result.Signature)

	c.archiveFill(ctx, &domain.TradeFill{
		Mint:          mint,
		Side:          domain.FillSideSell2,
		Amount:        amount,
		QuoteLamports: int64(result.OutAmount),
		Signature:     result.Signature,
		ObservedAt:    time.Now().UnixMilli(),
	})

	if c.unwatcher != nil {
		if err := c.unwatcher.Unwatch(ctx, mint); err != nil {
			c.logger.Printf("[exits] unwatch %s: %v", mint, err)
		}
	}
	return nil
}

func (c *Controller) archiveFill(ctx context.Context, f *domain.TradeFill) {
	if c.tradeLog == nil {
		return
	}
	if err := c.tradeLog.Insert(ctx, f); err != nil {
		c.logger.Printf("[exits] archive %s fill for %s: %v", f.Side, f.Mint, err)
	}
}

// QuoterPrice adapts the aggregator into a PriceFunc: it quotes one SOL
// into the mint and reports how many tokens that SOL buys.
func QuoterPrice(quotes *swap.Client) PriceFunc {
	return func(ctx context.Context, mint string, decimals int) (float64, error) {
		start := time.Now()
		quote, err := quotes.GetQuote(ctx, swap.SOLMint, mint, swap.ToBaseUnits(1, 9), swap.DefaultSlippageBps)
		observability.DefaultMetrics.QuoteLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			return 0, err
		}
		return swap.ToUIAmount(quote.OutAmount, decimals), nil
	}
}
