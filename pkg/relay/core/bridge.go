package core

import (
	"github.com/okdistribute/relay/pkg/relay/relaylog"
	"github.com/okdistribute/relay/pkg/relay/transport"
)

// Bridge runs the winning side (T) of a just-paired connection request:
// the splice phase, forwarding every frame read from t verbatim to
// paired.Waiter. It blocks until t's connection closes or errors, then
// tears down both sides.
//
// The waiter's backlog has already been flushed onto t by
// Rendezvous.Arrive before Bridge ever runs, so there is no separate
// flush phase here — Bridge never writes to t, only reads from it.
//
// The waiter side (U) needs no symmetric loop here: it was already
// running before pairing (reading frames into its Slot's backlog) and,
// once Rendezvous.Arrive pairs it, that same loop's calls to Slot.Feed
// start forwarding directly to t instead of buffering. Bridge and
// Slot.Feed are the two halves of one splice; each transport has exactly
// one reader for its whole lifetime.
func Bridge(log relaylog.Logger, t transport.MessageConn, paired *Paired) {
	defer func() {
		_ = t.Close()
		_ = paired.Waiter.Close()
	}()

	for {
		f, err := t.ReadMessage()
		if err != nil {
			return
		}
		if err := paired.Waiter.WriteMessage(f); err != nil {
			log.Debugf("bridge splice write failed: %v", err)
			return
		}
	}
}
