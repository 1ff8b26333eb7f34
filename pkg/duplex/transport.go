package duplex

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/novafeed/sessionkit-go/pkg/sesserr"
)

// MessageConn is one established bidirectional message connection.
type MessageConn interface {
	// ReadMessage blocks until the next message arrives or the
	// connection fails.
	ReadMessage() ([]byte, error)

	// WriteMessage sends one message.
	WriteMessage(data []byte) error

	// Close tears down the connection. Unblocks a pending ReadMessage.
	Close() error
}

// Transport dials message connections. Injected so tests can swap the
// network for a scripted fake.
type Transport interface {
	// Dial opens a connection to url. Authorization rejections during
	// the upgrade must classify as authorization errors.
	Dial(ctx context.Context, url string, header http.Header) (MessageConn, error)
}

// DefaultDialTimeout bounds the websocket upgrade when the caller's
// context carries no deadline.
const DefaultDialTimeout = 30 * time.Second

// WebsocketTransport dials WebSocket connections.
type WebsocketTransport struct {
	// Dialer is the underlying websocket dialer
	// (default: websocket.DefaultDialer).
	Dialer *websocket.Dialer
}

// NewWebsocketTransport creates a websocket transport with the default
// dialer.
func NewWebsocketTransport() *WebsocketTransport {
	return &WebsocketTransport{Dialer: websocket.DefaultDialer}
}

// Dial opens a websocket connection.
func (t *WebsocketTransport) Dial(ctx context.Context, url string, header http.Header) (MessageConn, error) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultDialTimeout)
		defer cancel()
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, sesserr.Authorization(fmt.Errorf("websocket upgrade rejected: status %d", resp.StatusCode))
		}
		return nil, sesserr.Transport(fmt.Errorf("websocket dial: %w", err))
	}
	return &websocketConn{conn: conn}, nil
}

// websocketConn adapts *websocket.Conn to MessageConn.
type websocketConn struct {
	conn *websocket.Conn
}

func (c *websocketConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *websocketConn) WriteMessage(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *websocketConn) Close() error {
	return c.conn.Close()
}

// Compile-time interface satisfaction checks.
var (
	_ Transport   = (*WebsocketTransport)(nil)
	_ MessageConn = (*websocketConn)(nil)
)
