package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/goleak"

	"github.com/okdistribute/relay/pkg/relay/relaylog"
)

// testServer boots a Server atop httptest so the six scenarios in §8 can
// be driven with real WebSocket clients, mirroring the teacher's
// CreateUnity/CreateCluster harness of standing up a real component
// rather than mocking it.
func testServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New(relaylog.New(), ":0")
	hs := httptest.NewServer(s.router())
	t.Cleanup(func() {
		hs.Close()
		_ = s.Close()
	})
	return s, hs
}

func wsURL(hs *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(hs.URL, "http") + path
}

func dial(t *testing.T, hs *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(wsURL(hs, path), nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	return c
}

type introductionMsg struct {
	Type string   `json:"type"`
	ID   string   `json:"id"`
	Keys []string `json:"keys"`
}

func readIntroduction(t *testing.T, c *websocket.Conn) introductionMsg {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("expected an introduction message: %v", err)
	}
	var msg introductionMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("malformed introduction: %v", err)
	}
	return msg
}

// Scenario: a single peer joins with no others present — no introduction
// should ever arrive.
func TestServer_SinglePeerJoinNoIntroduction(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	_, hs := testServer(t)

	conn := dial(t, hs, "/introduction/alice")
	defer conn.Close()

	if err := conn.WriteJSON(map[string]interface{}{"join": []string{"doc1"}}); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected no introduction for a lone peer")
	}
}

// Scenario: two peers join the same key and are reciprocally introduced.
func TestServer_PairDiscovery(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	_, hs := testServer(t)

	alice := dial(t, hs, "/introduction/alice")
	defer alice.Close()
	bob := dial(t, hs, "/introduction/bob")
	defer bob.Close()

	if err := alice.WriteJSON(map[string]interface{}{"join": []string{"doc1"}}); err != nil {
		t.Fatalf("alice write: %v", err)
	}
	if err := bob.WriteJSON(map[string]interface{}{"join": []string{"doc1"}}); err != nil {
		t.Fatalf("bob write: %v", err)
	}

	toAlice := readIntroduction(t, alice)
	if toAlice.ID != "bob" {
		t.Fatalf("expected alice to be introduced to bob, got %+v", toAlice)
	}
	toBob := readIntroduction(t, bob)
	if toBob.ID != "alice" {
		t.Fatalf("expected bob to be introduced to alice, got %+v", toBob)
	}
}

// Scenario: Alice's connection request arrives first and waits; Bob's
// reciprocal request then bridges the two transports, flushing whatever
// Alice sent while waiting.
func TestServer_BridgeAliceFirst(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	_, hs := testServer(t)

	alice := dial(t, hs, "/connection/alice/bob/k1")
	defer alice.Close()

	if err := alice.WriteMessage(websocket.TextMessage, []byte("hello-from-alice")); err != nil {
		t.Fatalf("alice write: %v", err)
	}

	bob := dial(t, hs, "/connection/bob/alice/k1")
	defer bob.Close()

	_ = bob.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := bob.ReadMessage()
	if err != nil {
		t.Fatalf("bob expected alice's buffered frame: %v", err)
	}
	if string(data) != "hello-from-alice" {
		t.Fatalf("expected buffered frame, got %q", data)
	}

	if err := bob.WriteMessage(websocket.TextMessage, []byte("hi-from-bob")); err != nil {
		t.Fatalf("bob write: %v", err)
	}
	_ = alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err = alice.ReadMessage()
	if err != nil {
		t.Fatalf("alice expected bob's spliced frame: %v", err)
	}
	if string(data) != "hi-from-bob" {
		t.Fatalf("expected spliced frame, got %q", data)
	}
}

// Scenario: Bob's connection request arrives first and waits; Alice's
// reciprocal request then bridges them — the mirror of the prior case.
func TestServer_BridgeBobFirst(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	_, hs := testServer(t)

	bob := dial(t, hs, "/connection/bob/alice/k1")
	defer bob.Close()

	alice := dial(t, hs, "/connection/alice/bob/k1")
	defer alice.Close()

	if err := alice.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
		t.Fatalf("alice write: %v", err)
	}
	_ = bob.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := bob.ReadMessage()
	if err != nil {
		t.Fatalf("bob expected alice's frame: %v", err)
	}
	if string(data) != "ping" {
		t.Fatalf("expected ping, got %q", data)
	}
}

// Scenario: the waiting side disconnects before any reciprocal request
// arrives; its slot must be released rather than left dangling.
func TestServer_WaiterDisconnectReleasesSlot(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	s, hs := testServer(t)

	alice := dial(t, hs, "/connection/alice/bob/k1")
	if err := alice.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.rendezvous.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected the waiter's slot to be released after disconnect, still %d open", s.rendezvous.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Scenario: a peer reconnecting under the same id supersedes its prior
// introduction connection, which observes its own closure.
func TestServer_ReconnectionSupersedesPriorConnection(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	_, hs := testServer(t)

	first := dial(t, hs, "/introduction/alice")
	defer first.Close()

	second := dial(t, hs, "/introduction/alice")
	defer second.Close()

	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := first.ReadMessage(); err == nil {
		t.Fatalf("expected the superseded connection to observe a close")
	}
}
