// Package core implements the relay's two coupled state machines: peer
// introduction/matching (C2, C3) and connection rendezvous/bridging
// (C4, C5). Both follow the teacher's shape for a stateful participant —
// a small struct guarded by a mutex, so the read loops of different
// connections can mutate it concurrently (a Slot, for instance, is paired
// by the goroutine of the arriving request, not its own read loop), and
// read through snapshot-and-copy accessors.
package core

import (
	"sync"

	"github.com/okdistribute/relay/pkg/relay/keyset"
	"github.com/okdistribute/relay/pkg/relay/transport"
)

// PeerID identifies one application instance across its single live
// introduction connection. Equality is byte-exact; no ordering assumed.
type PeerID string

// Peer is the live record for one introduction connection: an id, its
// transport, and its evolving key set (I4: duplicate-free).
type Peer struct {
	ID   PeerID
	Conn transport.MessageConn

	mu   sync.Mutex
	keys keyset.Set
}

func newPeer(id PeerID, conn transport.MessageConn) *Peer {
	return &Peer{ID: id, Conn: conn, keys: keyset.New()}
}

// UpdateKeys applies a join/leave delta and returns the resulting set.
func (p *Peer) UpdateKeys(join, leave []keyset.Key) keyset.Set {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = keyset.ApplyJoinLeave(p.keys, join, leave)
	return p.keys.Clone()
}

// Keys returns a snapshot of the peer's current key set.
func (p *Peer) Keys() keyset.Set {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keys.Clone()
}
