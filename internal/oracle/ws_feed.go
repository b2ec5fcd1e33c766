// Package oracle subscribes to a signed price publisher over websocket and
// serves the latest verified reading per feed.
package oracle

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mr-tron/base58"

	"dynamic-pricing-ledger/internal/domain"
	"dynamic-pricing-ledger/internal/idhash"
	"dynamic-pricing-ledger/internal/observability"
	"dynamic-pricing-ledger/internal/protocol"
)

var (
	// ErrNoPrice is returned when no verified reading has arrived for a feed.
	ErrNoPrice = errors.New("oracle: no price for feed")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("oracle: feed closed")
)

// Update statuses reported to metrics.
const (
	statusAccepted     = "accepted"
	statusBadSignature = "bad_signature"
	statusOutOfOrder   = "out_of_order"
	statusUnknownFeed  = "unknown_feed"
)

// WSFeedConfig configures WebSocket feed behavior.
type WSFeedConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
}

// DefaultWSFeedConfig returns default WebSocket feed configuration.
func DefaultWSFeedConfig() WSFeedConfig {
	return WSFeedConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
	}
}

// WSFeed implements protocol.Oracle over a publisher websocket stream.
type WSFeed struct {
	endpoint  string
	publisher ed25519.PublicKey
	feeds     []string
	config    WSFeedConfig
	logger    *log.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// latest holds the newest verified reading per feed
	latest   map[string]protocol.OraclePrice
	latestMu sync.RWMutex

	// pendingSubs maps request ID to channel waiting for subscription ID
	pendingSubs   map[uint64]chan int64
	pendingSubsMu sync.Mutex

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	// reconnecting indicates reconnection in progress
	reconnecting atomic.Bool
}

// NewWSFeed connects to endpoint and subscribes to feeds signed by publisher.
func NewWSFeed(ctx context.Context, endpoint string, publisher domain.Identity, feeds []string, config *WSFeedConfig, logger *log.Logger) (*WSFeed, error) {
	if len(feeds) == 0 {
		return nil, errors.New("at least one feed is required")
	}
	cfg := DefaultWSFeedConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	f := &WSFeed{
		endpoint:    endpoint,
		publisher:   ed25519.PublicKey(publisher[:]),
		feeds:       append([]string(nil), feeds...),
		config:      cfg,
		logger:      logger,
		latest:      make(map[string]protocol.OraclePrice),
		pendingSubs: make(map[uint64]chan int64),
		done:        make(chan struct{}),
	}

	if err := f.connect(ctx); err != nil {
		return nil, err
	}

	// Start reader goroutine
	f.wg.Add(1)
	go f.readLoop()

	// Start ping goroutine
	f.wg.Add(1)
	go f.pingLoop()

	if _, err := f.subscribe(ctx); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// connect establishes WebSocket connection.
func (f *WSFeed) connect(ctx context.Context) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	f.conn = conn
	return nil
}

// LatestPrice returns the newest verified reading of feedID.
func (f *WSFeed) LatestPrice(_ context.Context, feedID string) (protocol.OraclePrice, error) {
	if f.closed.Load() {
		return protocol.OraclePrice{}, ErrClosed
	}

	f.latestMu.RLock()
	reading, ok := f.latest[feedID]
	f.latestMu.RUnlock()

	if !ok {
		return protocol.OraclePrice{}, fmt.Errorf("%w %s", ErrNoPrice, feedID)
	}
	return reading, nil
}

// Close closes the WebSocket connection.
func (f *WSFeed) Close() error {
	if f.closed.Swap(true) {
		return nil // Already closed
	}

	close(f.done)

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		f.conn.Close()
	}
	f.connMu.Unlock()

	// Close pending subscription channels
	f.pendingSubsMu.Lock()
	for id, ch := range f.pendingSubs {
		close(ch)
		delete(f.pendingSubs, id)
	}
	f.pendingSubsMu.Unlock()

	f.wg.Wait()
	return nil
}

// subscribe requests price notifications for every configured feed and
// waits for the subscription ID.
func (f *WSFeed) subscribe(ctx context.Context) (int64, error) {
	if f.closed.Load() {
		return 0, ErrClosed
	}

	reqID := f.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "priceSubscribe",
		Params:  []interface{}{map[string]interface{}{"feeds": f.feeds}},
	}

	confirmCh := make(chan int64, 1)
	f.pendingSubsMu.Lock()
	f.pendingSubs[reqID] = confirmCh
	f.pendingSubsMu.Unlock()

	f.connMu.Lock()
	if f.conn == nil {
		f.connMu.Unlock()
		f.dropPending(reqID)
		return 0, fmt.Errorf("not connected")
	}

	f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
	err := f.conn.WriteJSON(req)
	f.connMu.Unlock()

	if err != nil {
		f.dropPending(reqID)
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case subID, ok := <-confirmCh:
		if !ok {
			return 0, ErrClosed
		}
		return subID, nil
	case <-time.After(f.config.SubscribeTimeout):
		f.dropPending(reqID)
		return 0, fmt.Errorf("subscription timeout after %s", f.config.SubscribeTimeout)
	case <-f.done:
		return 0, ErrClosed
	case <-ctx.Done():
		f.dropPending(reqID)
		return 0, ctx.Err()
	}
}

func (f *WSFeed) dropPending(reqID uint64) {
	f.pendingSubsMu.Lock()
	delete(f.pendingSubs, reqID)
	f.pendingSubsMu.Unlock()
}

// readLoop reads messages from WebSocket and dispatches them.
func (f *WSFeed) readLoop() {
	defer f.wg.Done()

	reconnectDelay := f.config.ReconnectDelay

	for !f.closed.Load() {
		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()

		if conn == nil {
			select {
			case <-f.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if f.closed.Load() {
				return
			}

			// Connection error - attempt reconnect with exponential backoff
			if !f.reconnecting.Swap(true) {
				f.logger.Printf("connection lost: %v (reconnecting in %s)", err, reconnectDelay)
				go f.reconnect(reconnectDelay)
			}

			reconnectDelay *= 2
			if reconnectDelay > f.config.MaxReconnectDelay {
				reconnectDelay = f.config.MaxReconnectDelay
			}

			select {
			case <-f.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = f.config.ReconnectDelay

		f.handleMessage(message)
	}
}

// reconnect replaces the connection and renews the subscription.
func (f *WSFeed) reconnect(delay time.Duration) {
	defer f.reconnecting.Store(false)

	if f.closed.Load() {
		return
	}

	select {
	case <-f.done:
		return
	case <-time.After(delay):
	}

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := f.connect(ctx); err != nil {
		// Retried on the next read error
		f.logger.Printf("reconnect failed: %v", err)
		return
	}

	// The response arrives through readLoop, so wait asynchronously.
	go func() {
		if _, err := f.subscribe(ctx); err != nil && !f.closed.Load() {
			f.logger.Printf("resubscribe failed: %v", err)
		}
	}()
}

// handleMessage processes incoming WebSocket message.
func (f *WSFeed) handleMessage(message []byte) {
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.Result > 0 {
		f.handleSubscribeResponse(&resp)
		return
	}

	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "priceNotification" {
		if notif.Params != nil {
			f.handlePriceUpdate(notif.Params.Result)
		}
		return
	}

	var errResp wsErrorResponse
	if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
		// Subscription waiters time out on their own
		f.logger.Printf("error response: code=%d msg=%s", errResp.Error.Code, errResp.Error.Message)
	}
}

// handleSubscribeResponse handles subscription confirmation.
func (f *WSFeed) handleSubscribeResponse(resp *wsSubscribeResponse) {
	f.pendingSubsMu.Lock()
	ch, ok := f.pendingSubs[resp.ID]
	if ok {
		delete(f.pendingSubs, resp.ID)
	}
	f.pendingSubsMu.Unlock()

	if ok {
		select {
		case ch <- resp.Result:
		default:
		}
	}
}

// handlePriceUpdate verifies a signed reading and caches it if newer.
func (f *WSFeed) handlePriceUpdate(u wsPriceUpdate) {
	if !f.watches(u.FeedID) {
		observability.RecordOracleUpdate(u.FeedID, statusUnknownFeed, u.PublishTime)
		return
	}

	reading := protocol.OraclePrice{
		FeedID:      u.FeedID,
		Price:       u.Price,
		Expo:        u.Expo,
		Confidence:  u.Conf,
		PublishTime: u.PublishTime,
	}
	if !VerifyReading(f.publisher, reading, u.Signature) {
		observability.RecordOracleUpdate(u.FeedID, statusBadSignature, u.PublishTime)
		f.logger.Printf("dropping %s update at %d: bad signature", u.FeedID, u.PublishTime)
		return
	}

	f.latestMu.Lock()
	current, ok := f.latest[u.FeedID]
	if ok && current.PublishTime > reading.PublishTime {
		f.latestMu.Unlock()
		observability.RecordOracleUpdate(u.FeedID, statusOutOfOrder, u.PublishTime)
		return
	}
	f.latest[u.FeedID] = reading
	f.latestMu.Unlock()

	observability.RecordOracleUpdate(u.FeedID, statusAccepted, u.PublishTime)
}

func (f *WSFeed) watches(feedID string) bool {
	for _, feed := range f.feeds {
		if feed == feedID {
			return true
		}
	}
	return false
}

// pingLoop sends periodic ping frames to keep connection alive.
func (f *WSFeed) pingLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.connMu.Lock()
			if f.conn != nil {
				f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
				// A dead connection surfaces as a read error and triggers reconnect.
				_ = f.conn.WriteMessage(websocket.PingMessage, nil)
			}
			f.connMu.Unlock()
		}
	}
}

// SignReading returns the base58 signature a publisher attaches to reading.
func SignReading(key ed25519.PrivateKey, reading protocol.OraclePrice) string {
	digest := idhash.ComputeOracleDigest(reading.FeedID, reading.Price, reading.Expo, reading.Confidence, reading.PublishTime)
	return base58.Encode(ed25519.Sign(key, digest))
}

// VerifyReading reports whether signature is publisher's signature over reading.
func VerifyReading(publisher ed25519.PublicKey, reading protocol.OraclePrice, signature string) bool {
	sig, err := base58.Decode(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	digest := idhash.ComputeOracleDigest(reading.FeedID, reading.Price, reading.Expo, reading.Confidence, reading.PublishTime)
	return ed25519.Verify(publisher, digest, sig)
}

var _ protocol.Oracle = (*WSFeed)(nil)

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

type wsErrorResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64         `json:"subscription"`
	Result       wsPriceUpdate `json:"result"`
}

type wsPriceUpdate struct {
	FeedID      string `json:"feed_id"`
	Price       int64  `json:"price"`
	Expo        int32  `json:"expo"`
	Conf        uint64 `json:"conf"`
	PublishTime int64  `json:"publish_time"`
	Signature   string `json:"signature"` // base58 ed25519
}
