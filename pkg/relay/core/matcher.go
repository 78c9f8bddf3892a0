package core

import (
	"fmt"

	"github.com/okdistribute/relay/pkg/relay/keyset"
	"github.com/okdistribute/relay/pkg/relay/relayerr"
	"github.com/okdistribute/relay/pkg/relay/relaylog"
	"github.com/okdistribute/relay/pkg/relay/transport"
)

// Matcher drives the introduction state machine (C2 registration plus C3
// matching) for one server instance.
type Matcher struct {
	registry *Registry
	log      relaylog.Logger
}

// NewMatcher builds a Matcher backed by a fresh Registry.
func NewMatcher(log relaylog.Logger) *Matcher {
	return &Matcher{registry: NewRegistry(log), log: log}
}

// Join registers a new introduction connection for id, superseding any
// prior connection under the same id.
func (m *Matcher) Join(id PeerID, conn transport.MessageConn) *Peer {
	return m.registry.Register(id, conn)
}

// Leave removes the peer iff it still owns conn.
func (m *Matcher) Leave(id PeerID, conn transport.MessageConn) {
	m.registry.Unregister(id, conn)
}

// HandleMessage parses one inbound frame from peer A, applies its
// join/leave delta (C1), and emits reciprocal Introduction messages to
// every other currently-registered peer sharing at least one key (C3).
// A malformed frame returns relayerr.ErrProtocol; the caller is
// responsible for closing that connection (§7 ProtocolError).
func (m *Matcher) HandleMessage(a *Peer, raw []byte) error {
	msg, err := parseInbound(raw)
	if err != nil {
		return relayerr.ErrProtocol
	}

	aKeys := a.UpdateKeys(msg.Join, msg.Leave)

	for _, b := range m.registry.Snapshot() {
		if b.ID == a.ID {
			// I5: a peer is never introduced to itself.
			continue
		}

		bKeys := b.Keys()
		common := keyset.Intersect(aKeys, bKeys)
		if len(common) == 0 {
			continue
		}

		m.notify(a, b.ID, common)
		m.notify(b, a.ID, common)
	}

	return nil
}

func (m *Matcher) notify(recipient *Peer, other PeerID, shared keyset.Set) {
	payload, err := marshalIntroduction(other, shared)
	if err != nil {
		m.log.Errorf("failed marshalling introduction %s->%s: %v", other, recipient.ID, err)
		return
	}

	if err := recipient.Conn.WriteMessage(transport.Frame{Type: transport.TextFrame, Data: payload}); err != nil {
		// From the matcher's perspective a failed send always means the
		// recipient lost the race against a close, whatever the
		// underlying transport error was; classify it as ErrPeerGone and
		// never escalate.
		err = fmt.Errorf("%w: %v", relayerr.ErrPeerGone, err)
		m.log.WithFields(relaylog.Fields{"recipient": string(recipient.ID)}).Debugf("introduction send failed: %v", err)
	}
}
