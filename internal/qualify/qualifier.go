package qualify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"solana-sniper-bot/internal/domain"
	"solana-sniper-bot/internal/observability"
)

// DefaultPollInterval is how often the pool feed is polled.
const DefaultPollInterval = 30 * time.Second

// Buyer opens a position for a qualified pair.
type Buyer interface {
	Buy(ctx context.Context, pair domain.PairInfo) error
}

// Status is a snapshot of the qualifier for the control surface.
type Status struct {
	Running        bool  `json:"running"`
	PairsSeen      int   `json:"pairsSeen"`
	PairsQualified int   `json:"pairsQualified"`
	LastPollAt     int64 `json:"lastPollAt"` // Unix ms, 0 before first poll
}

// Qualifier polls the pool feed for new SOL pairs and buys each pair
// whose top holders include at least one domain owner.
type Qualifier struct {
	feed    *PoolFeed
	holders *HolderInspector
	sns     *SNSClient
	buyer   Buyer
	logger  *log.Logger

	interval time.Duration

	mu        sync.Mutex
	seen      map[string]bool // pool IDs, per process lifetime
	qualified int
	lastPoll  int64
	cancel    context.CancelFunc

	running atomic.Bool
	wg      sync.WaitGroup
}

// QualifierOption configures the qualifier.
type QualifierOption func(*Qualifier)

// WithInterval overrides the feed poll interval.
func WithInterval(d time.Duration) QualifierOption {
	return func(q *Qualifier) { q.interval = d }
}

// NewQualifier creates a qualifier.
func NewQualifier(feed *PoolFeed, holders *HolderInspector, sns *SNSClient, buyer Buyer, logger *log.Logger, opts ...QualifierOption) *Qualifier {
	if logger == nil {
		logger = log.Default()
	}
	q := &Qualifier{
		feed:     feed,
		holders:  holders,
		sns:      sns,
		buyer:    buyer,
		logger:   logger,
		interval: DefaultPollInterval,
		seen:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start begins polling. Canceling ctx halts the loop as Stop does.
// Starting a running qualifier is an error.
func (q *Qualifier) Start(ctx context.Context) error {
	if q.running.Swap(true) {
		return fmt.Errorf("qualifier already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	q.mu.Lock()
	q.cancel = cancel
	q.mu.Unlock()

	q.wg.Add(1)
	go q.loop(runCtx)
	return nil
}

// Stop halts polling and waits for the current pass.
func (q *Qualifier) Stop() error {
	if !q.running.Swap(false) {
		return nil
	}
	q.mu.Lock()
	cancel := q.cancel
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	q.wg.Wait()
	return nil
}

// Status reports poll progress.
func (q *Qualifier) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{
		Running:        q.running.Load(),
		PairsSeen:      len(q.seen),
		PairsQualified: q.qualified,
		LastPollAt:     q.lastPoll,
	}
}

func (q *Qualifier) loop(ctx context.Context) {
	defer q.wg.Done()

	// First pass immediately, then on the ticker.
	q.poll(ctx)

	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.poll(ctx)
		}
	}
}

// poll fetches the feed once and processes every pair not yet seen.
func (q *Qualifier) poll(ctx context.Context) {
	pairs, err := q.feed.FetchNewSOLPairs(ctx)

	q.mu.Lock()
	q.lastPoll = time.Now().UnixMilli()
	q.mu.Unlock()

	if err != nil {
		q.logger.Printf("[qualify] feed poll: %v", err)
		return
	}

	for _, pair := range pairs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		q.mu.Lock()
		if q.seen[pair.PoolID] {
			q.mu.Unlock()
			continue
		}
		q.seen[pair.PoolID] = true
		q.mu.Unlock()

		observability.DefaultMetrics.PairsSeen.Inc()

		ok, err := q.qualifyPair(ctx, pair)
		if err != nil {
			q.logger.Printf("[qualify] qualify %s: %v", pair.Mint, err)
			continue
		}
		if !ok {
			continue
		}

		observability.DefaultMetrics.PairsQualified.Inc()
		q.mu.Lock()
		q.qualified++
		q.mu.Unlock()

		q.logger.Printf("[qualify] %s (%s) qualified, buying", pair.Symbol, pair.Mint)
		if err := q.buyer.Buy(ctx, pair); err != nil {
			q.logger.Printf("[qualify] buy %s: %v", pair.Mint, err)
		}
	}
}

// qualifyPair checks the pair's top holders one by one and stops at the
// first holder that owns a domain name.
func (q *Qualifier) qualifyPair(ctx context.Context, pair domain.PairInfo) (bool, error) {
	holders, err := q.holders.TopHolders(ctx, pair.Mint, TopHolderCount)
	if err != nil {
		return false, err
	}

	for _, holder := range holders {
		if holder.Owner == "" {
			continue
		}
		observability.DefaultMetrics.HoldersChecked.Inc()

		has, err := q.sns.HasDomain(ctx, holder.Owner)
		if err != nil {
			// A failed lookup disqualifies nobody; move to the next holder.
			q.logger.Printf("[qualify] domain lookup for %s: %v", holder.Owner, err)
			continue
		}
		if has {
			return true, nil
		}
	}
	return false, nil
}
