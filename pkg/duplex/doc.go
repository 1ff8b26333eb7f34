// Package duplex maintains a persistent bidirectional message connection
// to the backend over WebSocket.
//
// A Conn owns one logical connection through its whole lifecycle: dial,
// authenticated handshake (Authorization bearer header plus a
// connection_ack frame from the server), heartbeat pings, and bounded
// automatic reconnection after transport failures. Reconnects use a flat
// delay and a fixed attempt budget; once the budget is spent the
// connection stays down and the application decides when to try again.
//
// Frames are UTF-8 JSON with a mandatory "type" discriminator.
// Application frames fan out to handlers registered with Subscribe;
// control frames (ping, pong, connection_ack) are consumed internally.
// There is no outbound queueing: Send fails immediately while the
// connection is down.
package duplex
