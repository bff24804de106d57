package transport

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Send on a closed bearer.
var ErrClosed = errors.New("bearer closed")

// Bearer carries access PDUs between nodes.
type Bearer interface {
	// Send transmits one PDU.
	Send(pdu []byte) error

	// Close releases the bearer. Later sends fail with ErrClosed.
	Close() error
}

// ReceiveFunc is called with every inbound PDU.
// Bearers call it from a single goroutine per link.
type ReceiveFunc func(pdu []byte)

// LoopbackBearer is one end of an in-process link.
// Send delivers synchronously to the other end's receiver.
type LoopbackBearer struct {
	mu      sync.RWMutex
	peer    *LoopbackBearer
	receive ReceiveFunc
	closed  bool
}

// NewLoopback returns two connected bearers.
func NewLoopback() (*LoopbackBearer, *LoopbackBearer) {
	a, b := &LoopbackBearer{}, &LoopbackBearer{}
	a.peer, b.peer = b, a
	return a, b
}

// SetReceiver sets the function inbound PDUs are delivered to.
func (l *LoopbackBearer) SetReceiver(fn ReceiveFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.receive = fn
}

// Send copies pdu to the peer's receiver. A peer without a receiver drops it.
func (l *LoopbackBearer) Send(pdu []byte) error {
	l.mu.RLock()
	closed := l.closed
	l.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	l.peer.mu.RLock()
	fn, peerClosed := l.peer.receive, l.peer.closed
	l.peer.mu.RUnlock()

	if fn != nil && !peerClosed {
		fn(append([]byte(nil), pdu...))
	}
	return nil
}

// Close closes this end.
func (l *LoopbackBearer) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

var _ Bearer = (*LoopbackBearer)(nil)
