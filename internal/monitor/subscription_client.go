// Package monitor watches on-chain activity for held mints over a
// Solana WebSocket subscription and detects holder exits.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"solana-sniper-bot/internal/observability"
)

// State is the connection lifecycle state of the subscription client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	// StateFailed is terminal: the reconnect budget was exhausted and the
	// client will not dial again.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned when a subscribe is attempted without a
// live connection. The watch set is re-derived from storage on the next
// connect, so callers can treat this as deferred rather than lost.
var ErrNotConnected = fmt.Errorf("websocket not connected")

// Config configures subscription client behavior.
type Config struct {
	// ReconnectDelay is the fixed delay between reconnect attempts.
	ReconnectDelay time.Duration
	// MaxReconnectAttempts bounds consecutive failed attempts before the
	// client enters StateFailed. A successful connection resets the count.
	MaxReconnectAttempts int
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
}

// DefaultConfig returns default subscription client configuration.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:       2 * time.Second,
		MaxReconnectAttempts: 10,
		PingInterval:         30 * time.Second,
		ReadTimeout:          60 * time.Second,
		WriteTimeout:         10 * time.Second,
		SubscribeTimeout:     30 * time.Second,
	}
}

// LogEvent is one logsNotification attributed to a watched mint.
type LogEvent struct {
	Mint      string
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
}

// WatchSource lists the mints that must have an active subscription.
// It is consulted on every connect so the watch set always reflects
// persistent state, never what this process remembered.
type WatchSource func(ctx context.Context) ([]string, error)

// SubscriptionClient maintains per-mint logsSubscribe subscriptions over
// a single WebSocket connection, reconnecting with a fixed delay up to a
// bounded number of attempts.
type SubscriptionClient struct {
	endpoint    string
	config      Config
	watchSource WatchSource
	logger      *log.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	state     atomic.Int32
	attempts  atomic.Int32
	requestID atomic.Uint64

	// mintToSub and subToMint track live subscriptions both ways:
	// subscribe/unsubscribe by mint, notification dispatch by sub ID.
	mintToSub map[string]int64
	subToMint map[int64]string
	watchMu   sync.RWMutex

	// pendingSubs maps request ID to the in-flight subscribe. The reader
	// resolves it: mapping install and waiter wakeup both happen there.
	pendingSubs   map[uint64]pendingSub
	pendingSubsMu sync.Mutex

	events chan LogEvent
	done   chan struct{}
	wg     sync.WaitGroup
}

// pendingSub is a logsSubscribe awaiting its confirmation.
type pendingSub struct {
	mint    string
	confirm chan int64
}

// NewSubscriptionClient creates a client. It does not connect; call Start.
func NewSubscriptionClient(endpoint string, watchSource WatchSource, logger *log.Logger, config *Config) *SubscriptionClient {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}
	return &SubscriptionClient{
		endpoint:    endpoint,
		config:      cfg,
		watchSource: watchSource,
		logger:      logger,
		mintToSub:   make(map[string]int64),
		subToMint:   make(map[int64]string),
		pendingSubs: make(map[uint64]pendingSub),
		events:      make(chan LogEvent, 1024),
		done:        make(chan struct{}),
	}
}

// Events returns the stream of log notifications for watched mints.
// The channel is closed when the client stops or fails permanently.
func (c *SubscriptionClient) Events() <-chan LogEvent {
	return c.events
}

// State returns the current connection state.
func (c *SubscriptionClient) State() State {
	return State(c.state.Load())
}

// ReconnectAttempts returns the current consecutive failed attempt count.
func (c *SubscriptionClient) ReconnectAttempts() int {
	return int(c.attempts.Load())
}

// WatchedCount returns the number of mints with a live subscription.
func (c *SubscriptionClient) WatchedCount() int {
	c.watchMu.RLock()
	defer c.watchMu.RUnlock()
	return len(c.mintToSub)
}

// Start launches the connection manager. It returns immediately; use
// State to observe progress.
func (c *SubscriptionClient) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.run(ctx)
}

// run is the connection state machine: dial, sync the watch set, pump
// messages until the connection drops, then retry after a fixed delay
// until the attempt budget is spent.
func (c *SubscriptionClient) run(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.events)

	first := true
	for {
		if c.closed.Load() {
			return
		}

		if !first {
			attempt := c.attempts.Add(1)
			observability.RecordReconnect()
			if int(attempt) > c.config.MaxReconnectAttempts {
				c.state.Store(int32(StateFailed))
				c.logger.Printf("[monitor] reconnect budget exhausted after %d attempts, giving up", attempt-1)
				return
			}
			c.logger.Printf("[monitor] reconnecting (attempt %d/%d)", attempt, c.config.MaxReconnectAttempts)

			select {
			case <-c.done:
				return
			case <-ctx.Done():
				return
			case <-time.After(c.config.ReconnectDelay):
			}
		}
		first = false

		c.state.Store(int32(StateConnecting))

		conn, err := c.dial(ctx)
		if err != nil {
			c.state.Store(int32(StateDisconnected))
			c.logger.Printf("[monitor] dial failed: %v", err)
			continue
		}

		c.connMu.Lock()
		c.conn = conn
		c.connMu.Unlock()

		// The reader must be live before subscribing: confirmations for
		// the initial watch set arrive on this same connection.
		sessionDone := make(chan struct{})
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer close(sessionDone)
			c.readSession(conn)
		}()

		if err := c.syncWatchSet(ctx); err != nil {
			c.logger.Printf("[monitor] watch set sync failed: %v", err)
			c.teardownConn()
			<-sessionDone
			c.state.Store(int32(StateDisconnected))
			continue
		}

		c.attempts.Store(0)
		c.state.Store(int32(StateConnected))
		c.logger.Printf("[monitor] connected, watching %d mints", c.WatchedCount())

		<-sessionDone

		c.teardownConn()
		c.state.Store(int32(StateDisconnected))

		if c.closed.Load() {
			return
		}
	}
}

func (c *SubscriptionClient) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

// syncWatchSet rebuilds all subscriptions from the watch source. Any
// stale in-memory mapping from a previous connection is discarded first;
// subscription IDs are connection-scoped.
func (c *SubscriptionClient) syncWatchSet(ctx context.Context) error {
	c.watchMu.Lock()
	c.mintToSub = make(map[string]int64)
	c.subToMint = make(map[int64]string)
	c.watchMu.Unlock()

	mints, err := c.watchSource(ctx)
	if err != nil {
		return fmt.Errorf("list watch set: %w", err)
	}

	for _, mint := range mints {
		if err := c.subscribeMint(ctx, mint); err != nil {
			return fmt.Errorf("subscribe %s: %w", mint, err)
		}
	}

	observability.UpdateWatchedAssets(len(mints))
	return nil
}

// Watch subscribes to log notifications mentioning the mint. Requires a
// live connection; on ErrNotConnected the mint is picked up from the
// watch source at the next connect.
func (c *SubscriptionClient) Watch(ctx context.Context, mint string) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}

	c.watchMu.RLock()
	_, exists := c.mintToSub[mint]
	c.watchMu.RUnlock()
	if exists {
		return nil
	}

	if err := c.subscribeMint(ctx, mint); err != nil {
		return err
	}
	observability.UpdateWatchedAssets(c.WatchedCount())
	return nil
}

// Unwatch removes the mint's subscription if one is live.
func (c *SubscriptionClient) Unwatch(ctx context.Context, mint string) error {
	c.watchMu.Lock()
	subID, ok := c.mintToSub[mint]
	if ok {
		delete(c.mintToSub, mint)
		delete(c.subToMint, subID)
	}
	c.watchMu.Unlock()

	if !ok {
		return nil
	}
	observability.UpdateWatchedAssets(c.WatchedCount())

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  "logsUnsubscribe",
		Params:  []interface{}{subID},
	}
	return c.writeJSON(req)
}

// subscribeMint sends logsSubscribe for the mint and waits for the
// subscription ID, correlating by request ID.
func (c *SubscriptionClient) subscribeMint(ctx context.Context, mint string) error {
	if c.closed.Load() {
		return fmt.Errorf("client closed")
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params: []interface{}{
			map[string]interface{}{"mentions": []string{mint}},
			map[string]string{"commitment": "confirmed"},
		},
	}

	confirm := make(chan int64, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = pendingSub{mint: mint, confirm: confirm}
	c.pendingSubsMu.Unlock()

	dropPending := func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
		c.dropMapping(mint)
	}

	if err := c.writeJSON(req); err != nil {
		dropPending()
		return err
	}

	// The reader installs the subToMint mapping before signaling, so a
	// notification arriving right behind the confirmation is never lost.
	select {
	case _, ok := <-confirm:
		if !ok {
			return fmt.Errorf("client closed")
		}
		return nil
	case <-time.After(c.config.SubscribeTimeout):
		dropPending()
		return fmt.Errorf("subscription timeout after %s", c.config.SubscribeTimeout)
	case <-c.done:
		return fmt.Errorf("client closed")
	case <-ctx.Done():
		dropPending()
		return ctx.Err()
	}
}

// dropMapping removes the mint's subscription mapping, if a confirmation
// raced a timeout or cancellation and installed one.
func (c *SubscriptionClient) dropMapping(mint string) {
	c.watchMu.Lock()
	if subID, ok := c.mintToSub[mint]; ok {
		delete(c.mintToSub, mint)
		delete(c.subToMint, subID)
	}
	c.watchMu.Unlock()
}

func (c *SubscriptionClient) writeJSON(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(v)
}

// readSession pumps messages from one connection until it errors. A
// per-session ping loop keeps the connection alive.
func (c *SubscriptionClient) readSession(conn *websocket.Conn) {
	pingStop := make(chan struct{})
	c.wg.Add(1)
	go c.pingLoop(pingStop)
	defer close(pingStop)

	for {
		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.logger.Printf("[monitor] read error: %v", err)
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *SubscriptionClient) pingLoop(stop <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

func (c *SubscriptionClient) teardownConn() {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
}

// Close shuts the client down and waits for its goroutines.
func (c *SubscriptionClient) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.pendingSubsMu.Lock()
	for id, p := range c.pendingSubs {
		close(p.confirm)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	c.wg.Wait()
	return nil
}

// handleMessage processes one incoming WebSocket message.
func (c *SubscriptionClient) handleMessage(message []byte) {
	// Try to parse as subscription response first
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.Result > 0 {
		c.handleSubscribeResponse(&resp)
		return
	}

	// Try to parse as notification
	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "logsNotification" {
		c.handleLogsNotification(&notif)
		return
	}

	// Check for error response
	var errResp struct {
		JSONRPC string `json:"jsonrpc"`
		ID      uint64 `json:"id"`
		Error   *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
		// Pending subscribe will time out; nothing else to unwind.
		c.logger.Printf("[monitor] error response: code=%d msg=%s", errResp.Error.Code, errResp.Error.Message)
	}
}

// handleSubscribeResponse handles subscription confirmation. The mint
// mapping is installed here, on the reader goroutine, before the waiter
// wakes: any notification dispatched after this message already finds
// its mint.
func (c *SubscriptionClient) handleSubscribeResponse(resp *wsSubscribeResponse) {
	c.pendingSubsMu.Lock()
	p, ok := c.pendingSubs[resp.ID]
	if ok {
		delete(c.pendingSubs, resp.ID)
	}
	c.pendingSubsMu.Unlock()
	if !ok {
		return
	}

	c.watchMu.Lock()
	c.mintToSub[p.mint] = resp.Result
	c.subToMint[resp.Result] = p.mint
	c.watchMu.Unlock()

	select {
	case p.confirm <- resp.Result:
	default:
	}
}

// handleLogsNotification attributes the notification to its mint and
// emits it on the events channel.
func (c *SubscriptionClient) handleLogsNotification(notif *wsNotification) {
	if notif.Params == nil {
		return
	}

	c.watchMu.RLock()
	mint, ok := c.subToMint[notif.Params.Subscription]
	c.watchMu.RUnlock()
	if !ok {
		// Late notification from an unsubscribed or stale subscription.
		return
	}

	value := notif.Params.Result.Value
	event := LogEvent{
		Mint:      mint,
		Signature: value.Signature,
		Logs:      value.Logs,
		Err:       value.Err,
	}
	if notif.Params.Result.Context != nil {
		event.Slot = notif.Params.Result.Context.Slot
	}

	observability.DefaultMetrics.LogEventsProcessed.Inc()

	// Block until delivered; dropping an event could mean missing the
	// holder exit entirely.
	select {
	case c.events <- event:
	case <-c.done:
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  int64  `json:"result"` // subscription ID
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext  `json:"context"`
	Value   wsLogsValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}
