package core_test

import (
	"io"
	"sync"

	"github.com/okdistribute/relay/pkg/relay/transport"
)

// fakeConn is an in-memory MessageConn used to drive core's state
// machines without a real WebSocket upgrade, mirroring the teacher's
// TestInvoker-style hand-rolled test doubles (test/testing.go).
type fakeConn struct {
	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
	readCh  chan transport.Frame
	written []transport.Frame
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		closeCh: make(chan struct{}),
		readCh:  make(chan transport.Frame, 32),
	}
}

func (f *fakeConn) ReadMessage() (transport.Frame, error) {
	select {
	case fr, ok := <-f.readCh:
		if !ok {
			return transport.Frame{}, io.EOF
		}
		return fr, nil
	case <-f.closeCh:
		return transport.Frame{}, io.ErrClosedPipe
	}
}

func (f *fakeConn) WriteMessage(fr transport.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return io.ErrClosedPipe
	}
	f.written = append(f.written, fr)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.closeCh)
	}
	return nil
}

// push simulates an inbound frame arriving on this connection.
func (f *fakeConn) push(fr transport.Frame) {
	f.readCh <- fr
}

func (f *fakeConn) Written() []transport.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]transport.Frame, len(f.written))
	copy(out, f.written)
	return out
}

func (f *fakeConn) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func text(s string) transport.Frame {
	return transport.Frame{Type: transport.TextFrame, Data: []byte(s)}
}

func binary(b ...byte) transport.Frame {
	return transport.Frame{Type: transport.BinaryFrame, Data: b}
}
