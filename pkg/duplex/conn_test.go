package duplex

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/novafeed/sessionkit-go/pkg/sesserr"
)

// staticTokens is a TokenSource handing out a fixed secret.
type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) AccessSecret(ctx context.Context) (string, error) {
	return s.token, s.err
}

// fakeConn is a scripted MessageConn.
type fakeConn struct {
	incoming chan []byte

	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	written [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data, ok := <-c.incoming:
		if !ok {
			return nil, errors.New("connection dropped")
		}
		return data, nil
	case <-c.closed:
		return nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return errors.New("write on closed connection")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// push delivers a frame to the receive loop.
func (c *fakeConn) push(t *testing.T, f Frame) {
	t.Helper()
	data, err := EncodeFrame(f)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	c.incoming <- data
}

// drop simulates the server side going away.
func (c *fakeConn) drop() {
	close(c.incoming)
}

// sentTypes decodes the types of all written frames.
func (c *fakeConn) sentTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var types []string
	for _, data := range c.written {
		f, err := DecodeFrame(data)
		if err == nil {
			types = append(types, f.Type)
		}
	}
	return types
}

// fakeTransport scripts Dial outcomes. Dial errors are consumed in order;
// once the script is empty every dial succeeds (with an immediate ack
// frame when autoAck is set).
type fakeTransport struct {
	mu       sync.Mutex
	dialErrs []error
	autoAck  bool

	conns   []*fakeConn
	urls    []string
	headers []http.Header
}

func (t *fakeTransport) Dial(ctx context.Context, url string, header http.Header) (MessageConn, error) {
	t.mu.Lock()
	t.urls = append(t.urls, url)
	t.headers = append(t.headers, header)

	if len(t.dialErrs) > 0 {
		err := t.dialErrs[0]
		t.dialErrs = t.dialErrs[1:]
		if err != nil {
			t.mu.Unlock()
			return nil, err
		}
	}

	c := newFakeConn()
	t.conns = append(t.conns, c)
	autoAck := t.autoAck
	t.mu.Unlock()

	if autoAck {
		data, _ := EncodeFrame(Frame{Type: FrameTypeAck})
		c.incoming <- data
	}
	return c, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.urls)
}

func (t *fakeTransport) conn(i int) *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[i]
}

// testConn builds a Conn over the fake transport with test-scale timing.
func testConn(t *testing.T, transport *fakeTransport) *Conn {
	t.Helper()
	c, err := NewConn(Config{
		Endpoint:             "wss://realtime.test/v1/stream",
		HeartbeatInterval:    25 * time.Millisecond,
		ReconnectDelay:       10 * time.Millisecond,
		MaxReconnectAttempts: 3,
		HandshakeTimeout:     200 * time.Millisecond,
		Transport:            transport,
	}, staticTokens{token: "test-access"})
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}
	return c
}

// waitForState polls until the connection reaches the wanted state.
func waitForState(t *testing.T, c *Conn, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", c.State(), want)
}

func TestConnectHandshake(t *testing.T) {
	transport := &fakeTransport{autoAck: true}
	c := testConn(t, transport)
	defer c.Disconnect()

	if err := c.Connect(context.Background(), "user-17"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if c.State() != StateConnected {
		t.Errorf("state = %v, want StateConnected", c.State())
	}

	transport.mu.Lock()
	url := transport.urls[0]
	auth := transport.headers[0].Get("Authorization")
	transport.mu.Unlock()

	if !strings.HasSuffix(url, "/user-17") {
		t.Errorf("dial url = %q, want identity as last path segment", url)
	}
	if auth != "Bearer test-access" {
		t.Errorf("Authorization = %q, want bearer access secret", auth)
	}
}

func TestConnectRejectsNonAckFirstFrame(t *testing.T) {
	transport := &fakeTransport{}
	c := testConn(t, transport)

	done := make(chan error, 1)
	go func() { done <- c.Connect(context.Background(), "id") }()

	// Wait for the dial, then answer with the wrong frame.
	deadline := time.Now().Add(time.Second)
	for transport.dialCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	transport.conn(0).push(t, Frame{Type: "feed.update"})

	err := <-done
	if err == nil {
		t.Fatal("Connect should fail on a non-ack first frame")
	}
	if c.State() != StateDisconnected {
		t.Errorf("state = %v, want StateDisconnected", c.State())
	}
}

func TestConnectHandshakeTimeout(t *testing.T) {
	transport := &fakeTransport{} // never sends the ack
	c := testConn(t, transport)

	start := time.Now()
	err := c.Connect(context.Background(), "id")
	if err == nil {
		t.Fatal("Connect should time out without an ack")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("handshake timeout took %v, configured 200ms", elapsed)
	}
	if !sesserr.Retryable(err) {
		t.Errorf("handshake timeout should be retryable, got %v", err)
	}
}

func TestConnectTokenFailureIsTerminal(t *testing.T) {
	transport := &fakeTransport{autoAck: true}
	c, err := NewConn(Config{
		Endpoint:  "wss://realtime.test/v1/stream",
		Transport: transport,
	}, staticTokens{err: sesserr.Authorization(errors.New("refresh rejected"))})
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	err = c.Connect(context.Background(), "id")
	if err == nil {
		t.Fatal("Connect should fail when no access secret is available")
	}
	if sesserr.KindOf(err) != sesserr.KindAuthorization {
		t.Errorf("error kind = %v, want KindAuthorization", sesserr.KindOf(err))
	}
	if transport.dialCount() != 0 {
		t.Error("must not dial without an access secret")
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	c := testConn(t, &fakeTransport{autoAck: true})

	err := c.Send(Frame{Type: "feed.subscribe"})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send while disconnected = %v, want ErrNotConnected", err)
	}
}

func TestSendDeliversFrame(t *testing.T) {
	transport := &fakeTransport{autoAck: true}
	c := testConn(t, transport)
	defer c.Disconnect()

	if err := c.Connect(context.Background(), "id"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := c.Send(Frame{Type: "feed.subscribe", ID: "req-1"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	types := transport.conn(0).sentTypes()
	found := false
	for _, ft := range types {
		if ft == "feed.subscribe" {
			found = true
		}
	}
	if !found {
		t.Errorf("sent frames %v, want feed.subscribe among them", types)
	}
}

func TestSubscribeDispatch(t *testing.T) {
	transport := &fakeTransport{autoAck: true}
	c := testConn(t, transport)
	defer c.Disconnect()

	received := make(chan Frame, 4)
	cancel := c.Subscribe("feed.update", func(f Frame) {
		received <- f
	})

	if err := c.Connect(context.Background(), "id"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	transport.conn(0).push(t, Frame{Type: "feed.update", ID: "u1"})

	select {
	case f := <-received:
		if f.ID != "u1" {
			t.Errorf("frame ID = %q, want u1", f.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("handler did not receive the frame")
	}

	// After cancel, no further dispatch.
	cancel()
	transport.conn(0).push(t, Frame{Type: "feed.update", ID: "u2"})
	select {
	case f := <-received:
		t.Errorf("handler received %v after cancel", f.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReceiveLoopSurvivesBadFrame(t *testing.T) {
	transport := &fakeTransport{autoAck: true}
	c := testConn(t, transport)
	defer c.Disconnect()

	received := make(chan Frame, 1)
	c.Subscribe("feed.update", func(f Frame) { received <- f })

	if err := c.Connect(context.Background(), "id"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Garbage, then a missing-type frame, then a valid one.
	transport.conn(0).incoming <- []byte("{not json")
	transport.conn(0).incoming <- []byte(`{"payload":{}}`)
	transport.conn(0).push(t, Frame{Type: "feed.update", ID: "after-garbage"})

	select {
	case f := <-received:
		if f.ID != "after-garbage" {
			t.Errorf("frame ID = %q", f.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("receive loop died on an undecodable frame")
	}

	if c.State() != StateConnected {
		t.Errorf("state = %v, want StateConnected after bad frames", c.State())
	}
}

func TestHeartbeatPings(t *testing.T) {
	transport := &fakeTransport{autoAck: true}
	c := testConn(t, transport)
	defer c.Disconnect()

	if err := c.Connect(context.Background(), "id"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Heartbeat interval is 25ms; expect several pings.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		pings := 0
		for _, ft := range transport.conn(0).sentTypes() {
			if ft == FrameTypePing {
				pings++
			}
		}
		if pings >= 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected at least 2 heartbeat pings")
}

func TestPongIsInformational(t *testing.T) {
	transport := &fakeTransport{autoAck: true}
	c := testConn(t, transport)
	defer c.Disconnect()

	if err := c.Connect(context.Background(), "id"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	transport.conn(0).push(t, Frame{Type: FrameTypePong})
	time.Sleep(20 * time.Millisecond)

	if c.State() != StateConnected {
		t.Errorf("state = %v after pong, want StateConnected", c.State())
	}
}

func TestReconnectAfterTransportFailure(t *testing.T) {
	transport := &fakeTransport{autoAck: true}
	c := testConn(t, transport)
	defer c.Disconnect()

	if err := c.Connect(context.Background(), "id"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	transport.conn(0).drop()

	// The next dial succeeds; the connection must come back by itself.
	waitForState(t, c, StateConnected)

	if transport.dialCount() != 2 {
		t.Errorf("dials = %d, want 2", transport.dialCount())
	}
}

func TestReconnectBudgetExhausted(t *testing.T) {
	dialErr := sesserr.Transport(errors.New("dial refused"))
	transport := &fakeTransport{
		autoAck: true,
		// First dial (Connect) succeeds, every reconnect dial fails.
		dialErrs: []error{nil, dialErr, dialErr, dialErr, dialErr, dialErr},
	}
	c := testConn(t, transport) // MaxReconnectAttempts: 3

	var terminal atomic.Value
	c.OnError(func(err error) {
		if sesserr.KindOf(err) == sesserr.KindExhausted {
			terminal.Store(err)
		}
	})

	if err := c.Connect(context.Background(), "id"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	transport.conn(0).drop()

	waitForState(t, c, StateDisconnected)

	// Initial connect plus exactly MaxReconnectAttempts reconnect dials.
	if got := transport.dialCount(); got != 4 {
		t.Errorf("dials = %d, want 4 (1 connect + 3 reconnects)", got)
	}

	deadline := time.Now().Add(time.Second)
	for terminal.Load() == nil && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if terminal.Load() == nil {
		t.Error("expected a terminal exhausted error through OnError")
	}

	// The budget stays spent: no further dials happen on their own.
	time.Sleep(50 * time.Millisecond)
	if got := transport.dialCount(); got != 4 {
		t.Errorf("dials after giving up = %d, want still 4", got)
	}
}

func TestReconnectAttemptsResetOnSuccess(t *testing.T) {
	transport := &fakeTransport{autoAck: true}
	c := testConn(t, transport)
	defer c.Disconnect()

	if err := c.Connect(context.Background(), "id"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Two full failure/recovery cycles. If the attempt counter did not
	// reset on success the second cycle would eat into the budget.
	for cycle := 0; cycle < 2; cycle++ {
		dials := transport.dialCount()
		transport.conn(dials - 1).drop()
		waitForState(t, c, StateConnected)
	}

	if transport.dialCount() != 3 {
		t.Errorf("dials = %d, want 3", transport.dialCount())
	}
}

func TestReconnectAuthorizationFailureStops(t *testing.T) {
	transport := &fakeTransport{
		autoAck:  true,
		dialErrs: []error{nil, sesserr.Authorization(errors.New("upgrade rejected: status 401"))},
	}
	c := testConn(t, transport)

	var gotErr atomic.Value
	c.OnError(func(err error) {
		if sesserr.KindOf(err) == sesserr.KindAuthorization {
			gotErr.Store(err)
		}
	})

	if err := c.Connect(context.Background(), "id"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	transport.conn(0).drop()

	waitForState(t, c, StateDisconnected)

	// Authorization is terminal: one reconnect dial, no more.
	if got := transport.dialCount(); got != 2 {
		t.Errorf("dials = %d, want 2", got)
	}
	if gotErr.Load() == nil {
		t.Error("expected the authorization error through OnError")
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	transport := &fakeTransport{autoAck: true}
	c := testConn(t, transport)

	// Disconnect without ever connecting.
	c.Disconnect()
	c.Disconnect()

	if err := c.Connect(context.Background(), "id"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	c.Disconnect()
	c.Disconnect()

	if c.State() != StateDisconnected {
		t.Errorf("state = %v, want StateDisconnected", c.State())
	}
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	dialErr := sesserr.Transport(errors.New("dial refused"))
	transport := &fakeTransport{
		autoAck:  true,
		dialErrs: []error{nil, dialErr, dialErr, dialErr},
	}
	c, err := NewConn(Config{
		Endpoint:             "wss://realtime.test/v1/stream",
		ReconnectDelay:       200 * time.Millisecond, // long enough to cancel inside
		MaxReconnectAttempts: 3,
		Transport:            transport,
	}, staticTokens{token: "t"})
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	if err := c.Connect(context.Background(), "id"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	transport.conn(0).drop()
	waitForState(t, c, StateReconnecting)

	c.Disconnect()
	if c.State() != StateDisconnected {
		t.Fatalf("state = %v, want StateDisconnected", c.State())
	}

	// The armed reconnect must not fire after Disconnect.
	time.Sleep(300 * time.Millisecond)
	if got := transport.dialCount(); got != 1 {
		t.Errorf("dials = %d, want 1 (reconnect cancelled)", got)
	}
}

func TestConnectTearsDownExistingConnection(t *testing.T) {
	transport := &fakeTransport{autoAck: true}
	c := testConn(t, transport)
	defer c.Disconnect()

	if err := c.Connect(context.Background(), "first"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := c.Connect(context.Background(), "second"); err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}

	if c.State() != StateConnected {
		t.Errorf("state = %v, want StateConnected", c.State())
	}
	if transport.dialCount() != 2 {
		t.Fatalf("dials = %d, want 2", transport.dialCount())
	}

	transport.mu.Lock()
	secondURL := transport.urls[1]
	transport.mu.Unlock()
	if !strings.HasSuffix(secondURL, "/second") {
		t.Errorf("second dial url = %q, want identity 'second'", secondURL)
	}

	// The first fake conn must have been closed by the teardown.
	select {
	case <-transport.conn(0).closed:
	default:
		t.Error("first connection was not closed")
	}
}

func TestStateChangeNotifications(t *testing.T) {
	transport := &fakeTransport{autoAck: true}
	c := testConn(t, transport)

	var mu sync.Mutex
	var transitions []string
	c.OnStateChange(func(oldState, newState State) {
		mu.Lock()
		transitions = append(transitions, oldState.String()+">"+newState.String())
		mu.Unlock()
	})

	if err := c.Connect(context.Background(), "id"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	c.Disconnect()

	mu.Lock()
	defer mu.Unlock()
	want := []string{
		"DISCONNECTED>CONNECTING",
		"CONNECTING>CONNECTED",
		"CONNECTED>DISCONNECTING",
		"DISCONNECTING>DISCONNECTED",
	}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestNewConnRequiresEndpoint(t *testing.T) {
	_, err := NewConn(Config{}, staticTokens{token: "t"})
	if err == nil {
		t.Error("NewConn without endpoint should fail")
	}
}
