package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Reconnection defaults shared by both client variants.
const (
	// DefaultReconnectDelay is the fixed wait before each reconnect attempt.
	DefaultReconnectDelay = 3 * time.Second

	// DefaultMaxReconnects bounds the attempts made after an unexpected
	// closure before the client gives up with a terminal error.
	DefaultMaxReconnects = 5
)

// ErrRetriesExhausted is delivered to the error callback when all reconnect
// attempts after an unexpected closure have failed. It is the only
// user-visible transport failure; everything before it is recovered locally.
var ErrRetriesExhausted = errors.New("speech: reconnect attempts exhausted")

// ConnectionState describes where a speech client is in its connection
// lifecycle.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateReady
	StateClosing
)

// String returns the human-readable name of the state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Option configures a client variant during construction.
type Option func(*conn)

// WithReconnectDelay overrides the fixed delay before reconnect attempts.
// Primarily used in tests to keep suites fast.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *conn) { c.reconnectDelay = d }
}

// WithMaxReconnects overrides the bounded reconnect attempt count.
func WithMaxReconnects(n int) Option {
	return func(c *conn) { c.maxReconnects = n }
}

// WithHTTPHeader adds HTTP headers to the WebSocket handshake, e.g. an
// Authorization bearer token.
func WithHTTPHeader(header http.Header) Option {
	return func(c *conn) { c.header = header }
}

// conn is the connection core shared by [Transcriber] and [Synthesizer]: one
// persistent WebSocket, session setup on dial, a read loop dispatching events,
// and bounded fixed-delay reconnection on unexpected closure.
type conn struct {
	url    string
	header http.Header
	name   string // variant label for logs

	// setup builds the session-setup message sent on every (re)dial.
	setup func() sessionSetupMessage

	// handle dispatches variant-specific events from the read loop.
	handle func(*serverEvent)

	reconnectDelay time.Duration
	maxReconnects  int

	onReady  func()
	onClosed func()
	onError  func(error)

	mu       sync.Mutex
	ws       *websocket.Conn
	state    ConnectionState
	attempts int

	writeMu sync.Mutex

	ctx        context.Context
	cancel     context.CancelFunc
	closedOnce sync.Once
	wg         sync.WaitGroup
}

func newConn(url, name string, setup func() sessionSetupMessage) *conn {
	return &conn{
		url:            url,
		name:           name,
		setup:          setup,
		reconnectDelay: DefaultReconnectDelay,
		maxReconnects:  DefaultMaxReconnects,
		state:          StateDisconnected,
	}
}

// State returns the current connection state.
func (c *conn) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *conn) setState(s ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// connect opens the stream and sends the session-setup message. The client
// reaches [StateReady] only once the service acknowledges setup; until then
// audio sends are dropped by the variant. ctx bounds the initial dial only.
func (c *conn) connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("speech: %s client already connected", c.name)
	}
	c.state = StateConnecting
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		c.setState(StateDisconnected)
		c.cancel()
		return err
	}
	return nil
}

// dial establishes the WebSocket, sends session setup, and starts a read
// loop. Used for both the initial connect and reconnect attempts.
func (c *conn) dial(ctx context.Context) error {
	ws, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{
		HTTPHeader: c.header,
	})
	if err != nil {
		return fmt.Errorf("speech: %s dial: %w", c.name, err)
	}

	data, err := json.Marshal(c.setup())
	if err != nil {
		ws.Close(websocket.StatusInternalError, "setup marshal failed")
		return fmt.Errorf("speech: %s marshal setup: %w", c.name, err)
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		ws.Close(websocket.StatusInternalError, "setup send failed")
		return fmt.Errorf("speech: %s send setup: %w", c.name, err)
	}

	c.mu.Lock()
	c.ws = ws
	c.state = StateConnecting
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop(ws)
	return nil
}

// send marshals v and writes it as one text message. It fails when the
// client is not Ready.
func (c *conn) send(v any) error {
	c.mu.Lock()
	ws, state := c.ws, c.state
	c.mu.Unlock()

	if state != StateReady || ws == nil {
		return fmt.Errorf("speech: %s client not ready (state %s)", c.name, state)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("speech: %s marshal: %w", c.name, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.Write(c.ctx, websocket.MessageText, data)
}

func (c *conn) readLoop(ws *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := ws.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil || c.State() == StateClosing {
				c.emitClosed()
				return
			}
			c.scheduleReconnect(err)
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			slog.Debug("speech: discarding unparseable message", "client", c.name, "error", err)
			continue
		}

		switch evt.Type {
		case typeSessionReady:
			c.mu.Lock()
			c.state = StateReady
			c.attempts = 0
			c.mu.Unlock()
			if c.onReady != nil {
				c.onReady()
			}

		case typeError:
			msg := "unknown error"
			if evt.Error != nil && evt.Error.Message != "" {
				msg = evt.Error.Message
			}
			if c.onError != nil {
				c.onError(fmt.Errorf("speech: %s service error: %s", c.name, msg))
			}

		default:
			c.handle(&evt)
		}
	}
}

// scheduleReconnect runs the bounded fixed-delay reconnect cycle after an
// unexpected closure. The attempt counter persists across closures until a
// Ready acknowledgement resets it, so a flapping connection cannot retry
// forever.
func (c *conn) scheduleReconnect(cause error) {
	c.mu.Lock()
	c.state = StateConnecting
	c.ws = nil
	c.mu.Unlock()

	slog.Warn("speech: connection lost, reconnecting",
		"client", c.name,
		"delay", c.reconnectDelay,
		"error", cause,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			c.mu.Lock()
			c.attempts++
			attempt := c.attempts
			c.mu.Unlock()

			if attempt > c.maxReconnects {
				slog.Error("speech: giving up after max reconnect attempts",
					"client", c.name,
					"max_attempts", c.maxReconnects,
				)
				c.setState(StateDisconnected)
				if c.onError != nil {
					c.onError(fmt.Errorf("%w: %s: last failure: %v", ErrRetriesExhausted, c.name, cause))
				}
				c.emitClosed()
				return
			}

			select {
			case <-c.ctx.Done():
				c.emitClosed()
				return
			case <-time.After(c.reconnectDelay):
			}

			err := c.dial(c.ctx)
			if err == nil {
				slog.Info("speech: reconnected", "client", c.name, "attempt", attempt)
				return
			}
			cause = err
			slog.Warn("speech: reconnect attempt failed",
				"client", c.name,
				"attempt", attempt,
				"error", err,
			)
		}
	}()
}

func (c *conn) emitClosed() {
	c.closedOnce.Do(func() {
		c.setState(StateDisconnected)
		if c.onClosed != nil {
			c.onClosed()
		}
	})
}

// close tears the connection down and suppresses any in-flight reconnect
// cycle. Idempotent. Must not be called from inside a client callback.
func (c *conn) close() error {
	c.mu.Lock()
	if c.state == StateDisconnected && c.ctx == nil {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosing
	ws := c.ws
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ws != nil {
		ws.Close(websocket.StatusNormalClosure, "client closed")
	}
	c.wg.Wait()
	c.emitClosed()
	c.setState(StateDisconnected)
	return nil
}
