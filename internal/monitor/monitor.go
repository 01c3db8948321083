package monitor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"solana-sniper-bot/internal/domain"
)

// SellHandler reacts to a detected holder exit.
type SellHandler interface {
	HandleSellTrigger(ctx context.Context, sell domain.SellEvent) error
}

// Status is a snapshot of the monitor for the control surface.
type Status struct {
	Running           bool   `json:"running"`
	State             string `json:"state"`
	Connected         bool   `json:"connected"`
	WatchedAssetCount int    `json:"watchedAssetCount"`
	ReconnectAttempts int    `json:"reconnectAttempts"`
}

// Monitor wires the subscription client to the sell trigger detector and
// forwards the first observed exit per mint to the handler.
type Monitor struct {
	endpoint    string
	watchSource WatchSource
	detector    *SellTriggerDetector
	handler     SellHandler
	logger      *log.Logger
	config      *Config

	mu      sync.Mutex
	client  *SubscriptionClient
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// New creates a monitor.
func New(endpoint string, watchSource WatchSource, detector *SellTriggerDetector, handler SellHandler, logger *log.Logger, config *Config) *Monitor {
	if logger == nil {
		logger = log.Default()
	}
	return &Monitor{
		endpoint:    endpoint,
		watchSource: watchSource,
		detector:    detector,
		handler:     handler,
		logger:      logger,
		config:      config,
	}
}

// Start connects and begins processing log events. Canceling ctx shuts
// the monitor down. Starting a running monitor is an error.
func (m *Monitor) Start(ctx context.Context) error {
	if m.running.Swap(true) {
		return fmt.Errorf("monitor already running")
	}

	runCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.cancel = cancel
	m.client = NewSubscriptionClient(m.endpoint, m.watchSource, m.logger, m.config)
	client := m.client
	m.mu.Unlock()

	client.Start(runCtx)

	m.wg.Add(2)
	go m.processEvents(runCtx, client)
	go func() {
		// A live session outlasts its context otherwise: the reader only
		// stops when the connection does.
		defer m.wg.Done()
		<-runCtx.Done()
		client.Close()
	}()

	return nil
}

// Stop disconnects and waits for in-flight event processing.
func (m *Monitor) Stop() error {
	if !m.running.Swap(false) {
		return nil
	}

	m.mu.Lock()
	cancel := m.cancel
	client := m.client
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if client != nil {
		client.Close()
	}
	m.wg.Wait()
	return nil
}

// Watch subscribes the mint immediately if connected. ErrNotConnected is
// swallowed: the mint is in the watch source and is picked up on the
// next connect.
func (m *Monitor) Watch(ctx context.Context, mint string) error {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	if client == nil {
		return nil
	}
	if err := client.Watch(ctx, mint); err != nil {
		if err == ErrNotConnected {
			m.logger.Printf("[monitor] not connected, %s will be watched on reconnect", mint)
			return nil
		}
		return err
	}
	return nil
}

// Unwatch drops the mint's subscription.
func (m *Monitor) Unwatch(ctx context.Context, mint string) error {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Unwatch(ctx, mint)
}

// Status reports the current connection state and watch set size.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	s := Status{Running: m.running.Load(), State: StateDisconnected.String()}
	if client != nil {
		state := client.State()
		s.State = state.String()
		s.Connected = state == StateConnected
		s.WatchedAssetCount = client.WatchedCount()
		s.ReconnectAttempts = client.ReconnectAttempts()
	}
	return s
}

// processEvents drains log events, runs detection, and hands each mint
// with at least one balance decrease to the sell handler.
func (m *Monitor) processEvents(ctx context.Context, client *SubscriptionClient) {
	defer m.wg.Done()

	for event := range client.Events() {
		sells, err := m.detector.Detect(ctx, event)
		if err != nil {
			m.logger.Printf("[monitor] detect %s: %v", event.Signature, err)
			continue
		}
		if len(sells) == 0 {
			continue
		}

		m.logger.Printf("[monitor] %d balance decrease(s) for %s in %s",
			len(sells), event.Mint, event.Signature)

		// One trigger per transaction is enough; the exit path is
		// idempotent per mint regardless of how many holders left.
		if err := m.handler.HandleSellTrigger(ctx, sells[0]); err != nil {
			m.logger.Printf("[monitor] sell handler for %s: %v", event.Mint, err)
		}
	}
}
