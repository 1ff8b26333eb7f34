package duplex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/novafeed/sessionkit-go/pkg/log"
	"github.com/novafeed/sessionkit-go/pkg/sesserr"
	"github.com/novafeed/sessionkit-go/pkg/version"
)

// Connection defaults.
const (
	// DefaultHeartbeatInterval is the interval between heartbeat pings.
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultReconnectDelay is the flat delay before each reconnect
	// attempt. Reconnects deliberately do not grow this delay the way
	// request retries do.
	DefaultReconnectDelay = 5 * time.Second

	// DefaultMaxReconnectAttempts bounds automatic reconnection. Once
	// exceeded the connection stays disconnected until the application
	// explicitly reconnects.
	DefaultMaxReconnectAttempts = 5

	// DefaultHandshakeTimeout bounds the wait for the server's
	// acknowledgement frame.
	DefaultHandshakeTimeout = 10 * time.Second
)

// Connection errors.
var (
	ErrNotConnected      = errors.New("not connected")
	ErrConnectInProgress = errors.New("connect already in progress")
)

// TokenSource provides a currently-valid access secret for authenticating
// the connection. Implemented by credentials.Session.
type TokenSource interface {
	AccessSecret(ctx context.Context) (string, error)
}

// Config configures a duplex connection.
type Config struct {
	// Endpoint is the base URL of the messaging endpoint,
	// e.g. "wss://realtime.example.com/v1/stream". The identity is
	// appended as the final path segment.
	Endpoint string

	// HeartbeatInterval between pings (default: 30s).
	HeartbeatInterval time.Duration

	// ReconnectDelay is the flat delay before each reconnect attempt
	// (default: 5s).
	ReconnectDelay time.Duration

	// MaxReconnectAttempts bounds automatic reconnection (default: 5).
	MaxReconnectAttempts int

	// HandshakeTimeout bounds the wait for the acknowledgement frame
	// (default: 10s).
	HandshakeTimeout time.Duration

	// Transport dials the connection (default: WebsocketTransport).
	Transport Transport

	// Logger is the operational logger (default: slog.Default()).
	Logger *slog.Logger

	// EventLogger receives session events (default: NoopLogger).
	EventLogger log.Logger
}

// Handler receives frames of a subscribed type.
type Handler func(Frame)

// Conn maintains one logical persistent connection to the backend
// messaging endpoint, transparently surviving transient disconnects.
//
// State machine: disconnected -> connecting -> connected ->
// {reconnecting | disconnecting} -> disconnected. Only one connect or
// reconnect attempt is in flight at a time; explicit Connect and
// automatic reconnection serialize on the connection mutex.
type Conn struct {
	config Config
	tokens TokenSource
	logger *slog.Logger
	events log.Logger
	id     string

	mu                sync.Mutex
	state             State
	identity          string
	mc                MessageConn
	gen               int // bumped on teardown; stale loops check it and stand down
	reconnectAttempts int
	reconnectTimer    *time.Timer
	loopCancel        context.CancelFunc

	// writeMu serializes writes from Send and the heartbeat.
	writeMu sync.Mutex

	subMu     sync.RWMutex
	subs      map[string]map[int]Handler
	nextSubID int

	cbMu          sync.Mutex
	onStateChange func(oldState, newState State)
	onError       func(err error)
}

// NewConn creates a duplex connection (not yet connected).
func NewConn(config Config, tokens TokenSource) (*Conn, error) {
	if config.Endpoint == "" {
		return nil, errors.New("Endpoint is required")
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = DefaultReconnectDelay
	}
	if config.MaxReconnectAttempts <= 0 {
		config.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if config.Transport == nil {
		config.Transport = NewWebsocketTransport()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.EventLogger == nil {
		config.EventLogger = log.NoopLogger{}
	}

	return &Conn{
		config: config,
		tokens: tokens,
		logger: config.Logger.With("conn_id", uuid.NewString()[:8]),
		events: config.EventLogger,
		id:     uuid.NewString(),
		state:  StateDisconnected,
		subs:   make(map[string]map[int]Handler),
	}, nil
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange sets a callback for state changes.
func (c *Conn) OnStateChange(fn func(oldState, newState State)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onStateChange = fn
}

// OnError sets a callback for connection errors, including the terminal
// error after the reconnect budget is exhausted.
func (c *Conn) OnError(fn func(err error)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onError = fn
}

// Subscribe registers a handler for frames of the given type. The
// returned cancel function unregisters it.
func (c *Conn) Subscribe(frameType string, handler Handler) (cancel func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	if c.subs[frameType] == nil {
		c.subs[frameType] = make(map[int]Handler)
	}
	c.subs[frameType][id] = handler

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.subs[frameType], id)
	}
}

// Connect opens the connection for the given identity. Any prior
// connection or pending reconnect is torn down first, so calling Connect
// on a live connection is safe. Authentication failures are terminal for
// the attempt: the caller must refresh credentials before retrying.
func (c *Conn) Connect(ctx context.Context, identity string) error {
	c.mu.Lock()
	if c.state == StateConnecting {
		c.mu.Unlock()
		return ErrConnectInProgress
	}
	c.teardownLocked()
	c.identity = identity
	c.reconnectAttempts = 0
	gen := c.gen
	notify := c.changeStateLocked(StateConnecting, "connect")
	c.mu.Unlock()
	notify()

	if err := c.establish(ctx, gen, identity); err != nil {
		c.mu.Lock()
		var notify func()
		if c.gen == gen && c.state == StateConnecting {
			notify = c.changeStateLocked(StateDisconnected, "connect failed")
		}
		c.mu.Unlock()
		if notify != nil {
			notify()
		}
		return err
	}
	return nil
}

// Disconnect tears the connection down: heartbeat, receive loop and any
// pending reconnect timer are all cancelled together. Safe to call from
// any state, including when no connection exists.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	notifyClosing := c.changeStateLocked(StateDisconnecting, "disconnect")
	c.teardownLocked()
	notifyClosed := c.changeStateLocked(StateDisconnected, "disconnect")
	c.mu.Unlock()

	notifyClosing()
	notifyClosed()
}

// Send transmits one frame. Valid only while connected; there is no
// implicit queueing - frames sent while disconnected are rejected and the
// caller owns the resubmission policy.
func (c *Conn) Send(f Frame) error {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	mc := c.mc
	c.mu.Unlock()

	data, err := EncodeFrame(f)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	err = mc.WriteMessage(data)
	c.writeMu.Unlock()
	if err != nil {
		return sesserr.Transport(fmt.Errorf("send: %w", err))
	}

	c.logFrame(log.DirectionOut, f.Type, len(data))
	return nil
}

// establish performs one dial + handshake and, on success, installs the
// connection and starts its loops. gen guards against a Disconnect (or a
// newer Connect) racing the attempt.
func (c *Conn) establish(ctx context.Context, gen int, identity string) error {
	token, err := c.tokens.AccessSecret(ctx)
	if err != nil {
		return fmt.Errorf("obtaining access secret: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("User-Agent", version.UserAgent())

	endpoint := strings.TrimRight(c.config.Endpoint, "/") + "/" + url.PathEscape(identity)
	mc, err := c.config.Transport.Dial(ctx, endpoint, header)
	if err != nil {
		return err
	}

	if err := c.awaitAck(ctx, mc); err != nil {
		mc.Close()
		return err
	}

	c.mu.Lock()
	if c.gen != gen || (c.state != StateConnecting && c.state != StateReconnecting) {
		c.mu.Unlock()
		mc.Close()
		return sesserr.Transport(errors.New("connection aborted during handshake"))
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.mc = mc
	c.loopCancel = cancel
	c.reconnectAttempts = 0
	notify := c.changeStateLocked(StateConnected, "handshake acknowledged")

	go c.receiveLoop(loopCtx, gen, mc)
	go c.heartbeatLoop(loopCtx, mc)
	c.mu.Unlock()
	notify()

	return nil
}

// awaitAck reads the first frame and requires it to be the server's
// handshake acknowledgement.
func (c *Conn) awaitAck(ctx context.Context, mc MessageConn) error {
	type readResult struct {
		data []byte
		err  error
	}
	ch := make(chan readResult, 1)
	go func() {
		data, err := mc.ReadMessage()
		ch <- readResult{data, err}
	}()

	timer := time.NewTimer(c.config.HandshakeTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return sesserr.Transport(fmt.Errorf("handshake read: %w", res.err))
		}
		frame, err := DecodeFrame(res.data)
		if err != nil {
			return sesserr.Transport(fmt.Errorf("handshake frame: %w", err))
		}
		if frame.Type != FrameTypeAck {
			return sesserr.Transport(fmt.Errorf("expected %s, got %q", FrameTypeAck, frame.Type))
		}
		c.logControl(log.DirectionIn, log.ControlMsgAck)
		return nil
	case <-timer.C:
		// Closing unblocks the pending read; its result lands in the
		// buffered channel and is discarded.
		mc.Close()
		return sesserr.Transport(errors.New("handshake timeout"))
	case <-ctx.Done():
		mc.Close()
		return ctx.Err()
	}
}

// receiveLoop reads frames until the transport fails or teardown cancels
// it. A decode failure for one frame is logged and does not terminate the
// loop; only transport-level errors do.
func (c *Conn) receiveLoop(ctx context.Context, gen int, mc MessageConn) {
	for {
		data, err := mc.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return // expected during teardown
			}
			c.handleTransportFailure(gen, fmt.Errorf("read: %w", err))
			return
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			c.logger.Warn("dropping undecodable frame", "error", err, "size", len(data))
			c.logError(log.LayerTransport, err, "decode inbound frame")
			continue
		}

		c.logFrame(log.DirectionIn, frame.Type, len(data))

		switch frame.Type {
		case FrameTypePong:
			// Informational only; the transport error callback is the
			// failure detector.
			c.logControl(log.DirectionIn, log.ControlMsgPong)
		case FrameTypeAck:
			// Late or duplicate ack; nothing to do.
		default:
			c.dispatch(frame)
		}
	}
}

// heartbeatLoop sends a ping on a fixed interval to keep the connection
// alive and detect silent death. It shares the receive loop's context so
// both are cancelled together on teardown.
func (c *Conn) heartbeatLoop(ctx context.Context, mc MessageConn) {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			data, err := EncodeFrame(Frame{Type: FrameTypePing})
			if err != nil {
				return
			}
			c.writeMu.Lock()
			err = mc.WriteMessage(data)
			c.writeMu.Unlock()
			if err != nil {
				// The receive loop observes the dead transport and
				// drives reconnection.
				c.logger.Debug("heartbeat write failed", "error", err)
				continue
			}
			c.logControl(log.DirectionOut, log.ControlMsgPing)
		}
	}
}

// dispatch fans a frame out to its subscribers.
func (c *Conn) dispatch(frame Frame) {
	c.subMu.RLock()
	handlers := make([]Handler, 0, len(c.subs[frame.Type]))
	for _, h := range c.subs[frame.Type] {
		handlers = append(handlers, h)
	}
	c.subMu.RUnlock()

	for _, h := range handlers {
		h(frame)
	}
}

// handleTransportFailure reacts to a transport error observed by the
// receive loop while connected: tear down the transport and begin bounded
// reconnection.
func (c *Conn) handleTransportFailure(gen int, err error) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.teardownLocked()
	notify := c.changeStateLocked(StateReconnecting, err.Error())
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	notify()
	c.logger.Warn("connection lost, reconnecting", "error", err)
	c.notifyError(sesserr.Transport(err))
}

// scheduleReconnectLocked arms the reconnect timer for the next attempt.
// Callers must hold c.mu and have verified the attempt budget.
func (c *Conn) scheduleReconnectLocked() {
	c.reconnectAttempts++
	attempt := c.reconnectAttempts
	c.logger.Debug("reconnect scheduled",
		"attempt", attempt, "max", c.config.MaxReconnectAttempts, "delay", c.config.ReconnectDelay)
	c.reconnectTimer = time.AfterFunc(c.config.ReconnectDelay, func() {
		c.attemptReconnect()
	})
}

// attemptReconnect performs one reconnect attempt after the flat delay.
func (c *Conn) attemptReconnect() {
	c.mu.Lock()
	if c.state != StateReconnecting {
		c.mu.Unlock()
		return // Disconnect or a fresh Connect intervened
	}
	gen := c.gen
	identity := c.identity
	c.mu.Unlock()

	err := c.establish(context.Background(), gen, identity)
	if err == nil {
		return
	}

	c.mu.Lock()
	if c.gen != gen || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}

	if sesserr.KindOf(err) == sesserr.KindAuthorization {
		// Retrying with the same credential cannot succeed; the
		// application must refresh identity and reconnect explicitly.
		notify := c.changeStateLocked(StateDisconnected, "authorization failed")
		c.mu.Unlock()
		notify()
		c.notifyError(err)
		return
	}

	if c.reconnectAttempts >= c.config.MaxReconnectAttempts {
		notify := c.changeStateLocked(StateDisconnected, "reconnect attempts exhausted")
		c.mu.Unlock()
		notify()
		terminal := sesserr.Exhausted(fmt.Errorf(
			"reconnect failed after %d attempts: %w", c.config.MaxReconnectAttempts, err))
		c.logger.Warn("giving up on reconnection", "error", err)
		c.notifyError(terminal)
		return
	}

	c.scheduleReconnectLocked()
	c.mu.Unlock()
}

// teardownLocked cancels the reconnect timer and both connection loops,
// closes the transport, and invalidates the generation so stale loop
// callbacks stand down. Callers must hold c.mu.
func (c *Conn) teardownLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.loopCancel != nil {
		c.loopCancel()
		c.loopCancel = nil
	}
	if c.mc != nil {
		c.mc.Close()
		c.mc = nil
	}
	c.gen++
}

// changeStateLocked transitions the state and returns a notifier to run
// after releasing c.mu, so callbacks never execute under the lock.
func (c *Conn) changeStateLocked(newState State, reason string) (notify func()) {
	oldState := c.state
	c.state = newState

	c.events.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    log.DirectionNone,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		RemoteAddr:   c.config.Endpoint,
		Identity:     c.identity,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState.String(),
			NewState: newState.String(),
			Reason:   reason,
		},
	})

	return func() {
		if oldState == newState {
			return
		}
		c.cbMu.Lock()
		fn := c.onStateChange
		c.cbMu.Unlock()
		if fn != nil {
			fn(oldState, newState)
		}
	}
}

// notifyError invokes the error callback if set.
func (c *Conn) notifyError(err error) {
	c.cbMu.Lock()
	fn := c.onError
	c.cbMu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// logFrame emits a frame event.
func (c *Conn) logFrame(direction log.Direction, frameType string, size int) {
	c.events.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame: &log.FrameEvent{
			Type: frameType,
			Size: size,
		},
	})
}

// logControl emits a control frame event.
func (c *Conn) logControl(direction log.Direction, msgType log.ControlMsgType) {
	c.events.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		ControlMsg:   &log.ControlMsgEvent{Type: msgType},
	})
}

// logError emits an error event.
func (c *Conn) logError(layer log.Layer, err error, context string) {
	c.events.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    log.DirectionNone,
		Layer:        layer,
		Category:     log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Kind:    sesserr.KindOf(err).String(),
			Context: context,
		},
	})
}
