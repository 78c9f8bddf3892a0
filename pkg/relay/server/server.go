// Package server implements the transport front-end (C6): it accepts the
// two WebSocket URL shapes from §6, drives the introduction and
// rendezvous state machines in pkg/relay/core, and owns the process-wide
// shutdown sequence. Apart from pkg/relay/transport, which performs the
// WebSocket upgrade, it is the only package that imports net/http.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/julienschmidt/httprouter"

	"github.com/okdistribute/relay/pkg/relay/core"
	"github.com/okdistribute/relay/pkg/relay/keyset"
	"github.com/okdistribute/relay/pkg/relay/relayerr"
	"github.com/okdistribute/relay/pkg/relay/relaylog"
	"github.com/okdistribute/relay/pkg/relay/transport"
)

const livenessBody = `<!doctype html>
<html>
<head><title>relay</title></head>
<body>ok</body>
</html>
`

// Server wires the transport front-end to the introduction matcher and
// rendezvous table, and tracks every open client transport so shutdown
// can force them closed.
type Server struct {
	log        relaylog.Logger
	matcher    *core.Matcher
	rendezvous *core.Rendezvous

	httpServer *http.Server
	wg         sync.WaitGroup

	mu     sync.Mutex
	closed bool
	conns  map[transport.MessageConn]struct{}
}

// New builds a Server listening on addr (e.g. ":8080") once
// ListenAndServe is called.
func New(log relaylog.Logger, addr string) *Server {
	s := &Server{
		log:        log,
		matcher:    core.NewMatcher(log),
		rendezvous: core.NewRendezvous(log),
		conns:      make(map[transport.MessageConn]struct{}),
	}
	s.httpServer = &http.Server{Addr: addr, Handler: s.router()}
	return s
}

func (s *Server) router() http.Handler {
	r := httprouter.New()
	r.GET("/", s.handleLiveness)
	r.GET("/introduction/:id", s.handleIntroduction)
	r.GET("/connection/:from/:to/:key", s.handleConnection)
	return r
}

// ListenAndServe binds the listener and blocks serving requests. It
// returns relayerr.ErrBind-wrapping errors from a failed bind, or nil
// once Close has been called.
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("%w: %v", relayerr.ErrBind, err)
}

// Close stops accepting new connections, forcibly closes every currently
// open client transport, and waits for every per-connection goroutine to
// exit before returning. No graceful in-flight drain is performed.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	open := make([]transport.MessageConn, 0, len(s.conns))
	for c := range s.conns {
		open = append(open, c)
	}
	s.mu.Unlock()

	_ = s.httpServer.Close()
	for _, c := range open {
		_ = c.Close()
	}

	s.wg.Wait()
	return nil
}

// Shutdown is a graceful variant using the standard library's draining
// listener shutdown before falling back to the same forced-close path;
// exposed for callers that want a context-bounded attempt first.
func (s *Server) Shutdown(ctx context.Context) error {
	_ = s.httpServer.Shutdown(ctx)
	return s.Close()
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(livenessBody))
}

func (s *Server) trackConn(c transport.MessageConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrackConn(c transport.MessageConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func pathParam(ps httprouter.Params, name string) (string, bool) {
	raw := ps.ByName(name)
	if raw == "" {
		return "", false
	}
	v, err := url.PathUnescape(raw)
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

// handleIntroduction serves GET /introduction/{id} (§6): it registers the
// peer (C2) and drives the introduction matcher (C3) for every subsequent
// message, until the connection closes or sends a malformed message.
func (s *Server) handleIntroduction(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := pathParam(ps, "id")
	if !ok {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}

	conn, err := transport.Accept(w, r)
	if err != nil {
		s.log.Debugf("introduction upgrade failed for %s: %v", id, err)
		return
	}
	if !s.trackConn(conn) {
		_ = conn.Close()
		return
	}
	defer s.untrackConn(conn)

	s.wg.Add(1)
	defer s.wg.Done()

	peer := s.matcher.Join(core.PeerID(id), conn)
	log := s.log.WithFields(relaylog.Fields{"peer": id})

	for {
		f, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, relayerr.ErrTransport) {
				log.Debugf("introduction connection lost: %v", err)
			}
			s.matcher.Leave(core.PeerID(id), conn)
			return
		}

		if err := s.matcher.HandleMessage(peer, f.Data); err != nil {
			log.Debugf("closing introduction connection on malformed message: %v", err)
			s.matcher.Leave(core.PeerID(id), conn)
			_ = conn.Close()
			return
		}
	}
}

// handleConnection serves GET /connection/{from}/{to}/{key} (§6): it
// either becomes the half-open waiter for (from,to,key), or — if the
// reciprocal request is already waiting — immediately bridges the two
// transports (C4, C5).
func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	from, ok := pathParam(ps, "from")
	if !ok {
		http.Error(w, "missing from", http.StatusBadRequest)
		return
	}
	to, ok := pathParam(ps, "to")
	if !ok {
		http.Error(w, "missing to", http.StatusBadRequest)
		return
	}
	key, ok := pathParam(ps, "key")
	if !ok {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}

	conn, err := transport.Accept(w, r)
	if err != nil {
		s.log.Debugf("connection upgrade failed for %s->%s/%s: %v", from, to, key, err)
		return
	}
	if !s.trackConn(conn) {
		_ = conn.Close()
		return
	}
	defer s.untrackConn(conn)

	s.wg.Add(1)
	defer s.wg.Done()

	fp := core.Fingerprint{From: core.PeerID(from), To: core.PeerID(to), Key: keyset.Key(key)}
	mine, paired, evicted := s.rendezvous.Arrive(fp, conn)
	if evicted != nil {
		_ = evicted.Close()
	}

	if paired != nil {
		core.Bridge(s.log, conn, paired)
		return
	}

	// mine is nil only when conn itself was the evicted side: its
	// reciprocal request was waiting, but flushing its backlog onto conn
	// failed before pairing completed. conn has already been closed above.
	if mine == nil {
		return
	}

	for {
		f, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, relayerr.ErrTransport) {
				s.log.Debugf("connection %s->%s/%s lost: %v", from, to, key, err)
			}
			s.rendezvous.Depart(fp, mine)
			mine.Teardown()
			_ = conn.Close()
			return
		}
		if err := mine.Feed(f); err != nil {
			mine.Teardown()
			_ = conn.Close()
			return
		}
	}
}
