package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionLost means the socket dropped while waits were in flight.
// Callers fall back to RPC status polling.
var ErrConnectionLost = errors.New("websocket connection lost")

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		PingInterval:     30 * time.Second,
		ReadTimeout:      120 * time.Second,
		WriteTimeout:     10 * time.Second,
		SubscribeTimeout: 30 * time.Second,
	}
}

// WSClientImpl implements SignatureWatcher using gorilla/websocket.
// Signature subscriptions are one-shot: the server fires a single
// notification once the transaction reaches the commitment and cancels
// the subscription itself, so there is no resubscribe bookkeeping.
// A dropped connection fails in-flight waits; callers fall back to RPC
// status polling.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// pendingSubs maps request ID to channel waiting for subscription ID.
	pendingSubs   map[uint64]chan int64
	pendingSubsMu sync.Mutex

	// waiters maps subscription ID to the wait channel. early holds
	// notifications that arrived before their waiter registered.
	waiters   map[int64]chan SignatureResult
	early     map[int64]SignatureResult
	waitersMu sync.Mutex

	// connFailed closes when the read loop hits a terminal error.
	// connErr holds the cause and is written before the close.
	connFailed chan struct{}
	connErr    error
	failOnce   sync.Once

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSClientImpl{
		endpoint:    endpoint,
		config:      cfg,
		pendingSubs: make(map[uint64]chan int64),
		waiters:     make(map[int64]chan SignatureResult),
		early:       make(map[int64]SignatureResult),
		connFailed:  make(chan struct{}),
		done:        make(chan struct{}),
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	c.conn = conn

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// Compile-time interface check.
var _ SignatureWatcher = (*WSClientImpl)(nil)

// WaitForSignature subscribes to the signature and blocks until the
// confirmation notification arrives or ctx ends.
func (c *WSClientImpl) WaitForSignature(ctx context.Context, signature string) (*SignatureResult, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}
	select {
	case <-c.connFailed:
		return nil, c.connErr
	default:
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "signatureSubscribe",
		Params: []interface{}{
			signature,
			map[string]string{"commitment": "confirmed"},
		},
	}

	confirmCh := make(chan int64, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = confirmCh
	c.pendingSubsMu.Unlock()

	cleanupPending := func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
	}

	c.connMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()
	if err != nil {
		cleanupPending()
		return nil, fmt.Errorf("write subscribe: %w", err)
	}

	var subID int64
	select {
	case subID = <-confirmCh:
	case <-time.After(c.config.SubscribeTimeout):
		cleanupPending()
		return nil, fmt.Errorf("subscription confirmation timeout")
	case <-c.connFailed:
		cleanupPending()
		return nil, c.connErr
	case <-c.done:
		return nil, fmt.Errorf("client closed")
	case <-ctx.Done():
		cleanupPending()
		return nil, ctx.Err()
	}

	resultCh := make(chan SignatureResult, 1)
	c.waitersMu.Lock()
	if result, ok := c.early[subID]; ok {
		delete(c.early, subID)
		c.waitersMu.Unlock()
		return &result, nil
	}
	c.waiters[subID] = resultCh
	c.waitersMu.Unlock()

	defer func() {
		c.waitersMu.Lock()
		delete(c.waiters, subID)
		delete(c.early, subID)
		c.waitersMu.Unlock()
	}()

	select {
	case result := <-resultCh:
		return &result, nil
	case <-c.connFailed:
		return nil, c.connErr
	case <-c.done:
		return nil, fmt.Errorf("client closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the WebSocket connection.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.conn.Close()
	c.connMu.Unlock()

	c.pendingSubsMu.Lock()
	for id, ch := range c.pendingSubs {
		close(ch)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	c.wg.Wait()
	return nil
}

// readLoop reads messages from the WebSocket and dispatches them. A read
// error while the client is open is terminal: all in-flight waits fail
// with ErrConnectionLost and the loop exits.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.failConn(err)
			}
			return
		}

		c.handleMessage(message)
	}
}

// failConn records the cause and wakes every blocked wait.
func (c *WSClientImpl) failConn(cause error) {
	c.failOnce.Do(func() {
		c.connErr = fmt.Errorf("%w: %v", ErrConnectionLost, cause)
		close(c.connFailed)
	})
}

// handleMessage processes one incoming WebSocket message.
func (c *WSClientImpl) handleMessage(message []byte) {
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.Result > 0 {
		c.pendingSubsMu.Lock()
		ch, ok := c.pendingSubs[resp.ID]
		if ok {
			delete(c.pendingSubs, resp.ID)
		}
		c.pendingSubsMu.Unlock()
		if ok {
			select {
			case ch <- resp.Result:
			default:
			}
		}
		return
	}

	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil &&
		notif.Method == "signatureNotification" && notif.Params != nil {
		result := SignatureResult{Err: notif.Params.Result.Value.Err}
		if notif.Params.Result.Context != nil {
			result.Slot = notif.Params.Result.Context.Slot
		}

		c.waitersMu.Lock()
		ch, ok := c.waiters[notif.Params.Subscription]
		if ok {
			delete(c.waiters, notif.Params.Subscription)
		} else {
			// Confirmed but not yet registered; hold the result for the
			// waiter to pick up.
			c.early[notif.Params.Subscription] = result
		}
		c.waitersMu.Unlock()
		if ok {
			select {
			case ch <- result:
			default:
			}
		}
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-c.connFailed:
			return
		case <-ticker.C:
			c.connMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			// Reader notices a dead connection; nothing to do on ping error.
			c.conn.WriteMessage(websocket.PingMessage, nil)
			c.connMu.Unlock()
		}
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
	Context *wsContext       `json:"context"`
	Value   wsSignatureValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsSignatureValue struct {
	Err interface{} `json:"err"`
}
