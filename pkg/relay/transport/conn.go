// Package transport wraps a WebSocket upgrade into the framed,
// bidirectional MessageConn the rest of the relay depends on. The core
// packages (peer registry, rendezvous table, bridge) never talk to
// net/http or gorilla/websocket directly: they only see MessageConn and
// Frame, so they can be exercised with an in-memory fake in tests.
//
// Grounded on the WebSocket transport shape used throughout the retrieved
// pack (upgrader construction, one read-loop goroutine per connection,
// a write mutex serializing outbound frames, read-size limits).
package transport

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/okdistribute/relay/pkg/relay/relayerr"
)

// FrameType distinguishes the two WebSocket message kinds. The relay
// never interprets frame contents on connection endpoints; it only
// preserves this tag so framing survives the bridge untouched.
type FrameType int

const (
	TextFrame FrameType = iota
	BinaryFrame
)

// Frame is a single message read from or written to a MessageConn.
type Frame struct {
	Type FrameType
	Data []byte
}

// MessageConn is a long-lived bidirectional framed message connection, as
// described in §6 of the spec. Both kinds of endpoint (introduction and
// connection) implement it identically; only the handler atop it differs.
type MessageConn interface {
	// ReadMessage blocks until the next frame arrives, or returns an
	// error once the connection is closed or fails.
	ReadMessage() (Frame, error)

	// WriteMessage sends a single frame. Safe for concurrent use.
	WriteMessage(Frame) error

	// Close closes the underlying connection. Idempotent.
	Close() error
}

// DefaultMaxMessageSize bounds a single inbound frame to guard against
// unbounded memory growth from a misbehaving client.
const DefaultMaxMessageSize = 1 << 20 // 1MB

// Upgrader upgrades incoming HTTP requests to MessageConn. CheckOrigin
// always allows: the relay is unauthenticated by design (§9), any client
// may claim any id or fingerprint.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsConn adapts *websocket.Conn to MessageConn.
type wsConn struct {
	conn    *websocket.Conn
	writeMu chan struct{} // 1-buffered mutex; gorilla forbids concurrent writers
}

// Accept upgrades an HTTP request to a MessageConn.
func Accept(w http.ResponseWriter, r *http.Request) (MessageConn, error) {
	c, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	c.SetReadLimit(DefaultMaxMessageSize)
	return Wrap(c), nil
}

// Wrap adapts an already-established *websocket.Conn.
func Wrap(c *websocket.Conn) MessageConn {
	wc := &wsConn{conn: c, writeMu: make(chan struct{}, 1)}
	wc.writeMu <- struct{}{}
	return wc
}

// ReadMessage wraps a failed read with relayerr.ErrTransport (§7
// TransportError) so callers can classify it with errors.Is without
// caring about the underlying gorilla/websocket error.
func (w *wsConn) ReadMessage() (Frame, error) {
	kind, data, err := w.conn.ReadMessage()
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", relayerr.ErrTransport, err)
	}
	ft := TextFrame
	if kind == websocket.BinaryMessage {
		ft = BinaryFrame
	}
	return Frame{Type: ft, Data: data}, nil
}

// WriteMessage wraps a failed write with relayerr.ErrTransport, same as
// ReadMessage.
func (w *wsConn) WriteMessage(f Frame) error {
	<-w.writeMu
	defer func() { w.writeMu <- struct{}{} }()

	kind := websocket.TextMessage
	if f.Type == BinaryFrame {
		kind = websocket.BinaryMessage
	}
	if err := w.conn.WriteMessage(kind, f.Data); err != nil {
		return fmt.Errorf("%w: %v", relayerr.ErrTransport, err)
	}
	return nil
}

func (w *wsConn) Close() error {
	return w.conn.Close()
}
