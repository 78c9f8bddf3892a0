package core

import (
	"sync"

	"github.com/okdistribute/relay/pkg/relay/relaylog"
	"github.com/okdistribute/relay/pkg/relay/transport"
)

// Registry is the peer-id → live introduction transport mapping (C2). At
// most one Peer record exists per PeerID at any instant (I1).
type Registry struct {
	mu    sync.Mutex
	peers map[PeerID]*Peer
	log   relaylog.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry(log relaylog.Logger) *Registry {
	return &Registry{peers: make(map[PeerID]*Peer), log: log}
}

// Register inserts a new Peer for id, evicting any pre-existing one. The
// eviction closes the superseded transport so its own read loop observes
// the close and runs Unregister for itself — a compare-and-remove that is
// a no-op by the time it runs, since the map entry has already moved on.
func (r *Registry) Register(id PeerID, conn transport.MessageConn) *Peer {
	p := newPeer(id, conn)

	r.mu.Lock()
	old, existed := r.peers[id]
	r.peers[id] = p
	r.mu.Unlock()

	if existed {
		r.log.WithFields(relaylog.Fields{"peer": string(id)}).Debug("superseding existing introduction connection")
		_ = old.Conn.Close()
	}
	return p
}

// Unregister removes the peer iff its current transport is conn
// (compare-and-remove), so a late close from an already-evicted transport
// can't wipe out a fresher registration.
func (r *Registry) Unregister(id PeerID, conn transport.MessageConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.peers[id]; ok && cur.Conn == conn {
		delete(r.peers, id)
	}
}

// Get returns the current peer for id, if any.
func (r *Registry) Get(id PeerID) (*Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	return p, ok
}

// Snapshot returns every currently-registered peer at this instant. Used
// by the matcher to iterate without holding the registry lock while it
// sends messages.
func (r *Registry) Snapshot() []*Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}

// Len reports the number of currently-registered peers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}
