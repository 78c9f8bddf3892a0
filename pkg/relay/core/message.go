package core

import (
	"encoding/json"

	"github.com/okdistribute/relay/pkg/relay/keyset"
)

// inboundMessage is the client → server shape on an introduction
// connection. Only Join and Leave are consumed; Type is informational.
// Missing arrays are treated as empty.
type inboundMessage struct {
	Type  string       `json:"type"`
	Join  []keyset.Key `json:"join"`
	Leave []keyset.Key `json:"leave"`
}

// outboundIntroduction is the server → client Introduction notification.
type outboundIntroduction struct {
	Type string       `json:"type"`
	ID   PeerID       `json:"id"`
	Keys []keyset.Key `json:"keys"`
}

func parseInbound(raw []byte) (inboundMessage, error) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return inboundMessage{}, err
	}
	return msg, nil
}

func marshalIntroduction(other PeerID, shared keyset.Set) ([]byte, error) {
	return json.Marshal(outboundIntroduction{
		Type: "Introduction",
		ID:   other,
		Keys: shared.Slice(),
	})
}
