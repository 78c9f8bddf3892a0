package core

import (
	"sync"

	"github.com/okdistribute/relay/pkg/relay/keyset"
	"github.com/okdistribute/relay/pkg/relay/relaylog"
	"github.com/okdistribute/relay/pkg/relay/transport"
)

// Fingerprint is the ordered identity of a rendezvous slot: the requester,
// its desired counterpart, and the shared discovery key. The triple stays
// ordered (not a symmetric pair) so each party's transport is routed to
// the right side of the bridge.
type Fingerprint struct {
	From PeerID
	To   PeerID
	Key  keyset.Key
}

func (f Fingerprint) mate() Fingerprint {
	return Fingerprint{From: f.To, To: f.From, Key: f.Key}
}

// Slot is a half-open rendezvous record, owned by the goroutine reading
// its waiting transport. It holds both the backlog buffer and, once
// paired, the forward target — one table entry owning both, so I2/I3
// can't drift out of sync the way two parallel maps would.
type Slot struct {
	mu      sync.Mutex
	conn    transport.MessageConn
	buffer  []transport.Frame
	forward transport.MessageConn
}

// Feed is called by the slot's owning read loop for every frame it reads
// from its transport. While unpaired it appends to the backlog (I3);
// once paired it forwards the frame directly to the bridge partner.
//
// Feed and pair share s.mu so a frame fed after pairing begins can never
// reach the forward target ahead of the backlog: pair holds the lock for
// its entire flush, so any Feed racing it simply blocks until the flush
// (and the switch to forwarding) has completed.
func (s *Slot) Feed(f transport.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forward == nil {
		s.buffer = append(s.buffer, f)
		return nil
	}
	return s.forward.WriteMessage(f)
}

// pair flushes the accumulated backlog directly onto target, in order,
// then switches the slot to forwarding mode — all under s.mu, so no frame
// Fed concurrently by the slot's own read loop can land on target before
// the backlog does (§4.5, §8). If a flush write fails partway, the
// unflushed remainder is kept and the slot is left unpaired so a future
// arrival can still complete the rendezvous.
func (s *Slot) pair(target transport.MessageConn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.buffer) > 0 {
		f := s.buffer[0]
		if err := target.WriteMessage(f); err != nil {
			return err
		}
		s.buffer = s.buffer[1:]
	}
	s.forward = target
	return nil
}

// Teardown closes the slot's bridge partner, if pairing had begun. Called
// by the owning read loop once its own transport closes or errors.
func (s *Slot) Teardown() {
	s.mu.Lock()
	fwd := s.forward
	s.mu.Unlock()
	if fwd != nil {
		_ = fwd.Close()
	}
}

// Rendezvous is the half-open table from §4.4.
type Rendezvous struct {
	mu    sync.Mutex
	slots map[Fingerprint]*Slot
	log   relaylog.Logger
}

// NewRendezvous builds an empty rendezvous table.
func NewRendezvous(log relaylog.Logger) *Rendezvous {
	return &Rendezvous{slots: make(map[Fingerprint]*Slot), log: log}
}

// Paired is returned from Arrive when the reciprocal request was already
// present: the caller owns conn (T), whose backlog flush onto it has
// already completed by the time Arrive returns. The caller should forward
// every subsequent frame it reads from conn to Waiter, closing both on
// any error (C5).
type Paired struct {
	Waiter transport.MessageConn
}

// Arrive handles a new connection request with fingerprint fp on conn.
//
// If the mate slot (fp reversed) is present, it is atomically removed
// from the table and paired against conn: pairing flushes the mate's
// backlog onto conn synchronously, in order, before Arrive returns, so
// the caller never needs a separate flush phase. Arrive then returns the
// Paired descriptor and a nil slot, since self is never inserted once its
// mate answers.
//
// If the mate's flush fails (conn died before pairing completed), the
// mate's slot is restored so a future arrival can still complete the
// rendezvous, and conn is returned as evicted for the caller to close.
//
// Otherwise a new half-open Slot is created and returned for self. If a
// stale, unpaired slot already occupied fp (a duplicate retry), it is
// evicted and its transport returned so the caller can close it.
func (r *Rendezvous) Arrive(fp Fingerprint, conn transport.MessageConn) (mine *Slot, paired *Paired, evicted transport.MessageConn) {
	mate := fp.mate()

	r.mu.Lock()
	mateSlot, hasMate := r.slots[mate]
	if hasMate {
		delete(r.slots, mate)
	}
	r.mu.Unlock()

	if hasMate {
		if err := mateSlot.pair(conn); err != nil {
			r.mu.Lock()
			r.slots[mate] = mateSlot
			r.mu.Unlock()
			return nil, nil, conn
		}
		return nil, &Paired{Waiter: mateSlot.conn}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prior, ok := r.slots[fp]; ok {
		evicted = prior.conn
	}

	s := &Slot{conn: conn}
	r.slots[fp] = s
	return s, nil, evicted
}

// Depart removes fp's slot iff it is still exactly s (compare-and-remove),
// so a close from a since-superseded or since-paired slot can't disturb
// a fresher entry.
func (r *Rendezvous) Depart(fp Fingerprint, s *Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.slots[fp]; ok && cur == s {
		delete(r.slots, fp)
	}
}

// Len reports the number of half-open slots, for diagnostics and tests.
func (r *Rendezvous) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}
