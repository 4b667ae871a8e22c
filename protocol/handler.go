package protocol

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/relcore/relcore/session"
)

// Handler owns every connection's shared collaborators plus the connection registry both concurrency models
// (farmer, thread-per-connection; see pool.go) consult.
//
// Grounded on server/handler_test.go's Handler/SessionManager/NewConnection
// shape — go-mysql-server's Handler owns a sql.SessionManager and dispatches
// mysql wire commands to it; this Handler owns a session.Shared and
// dispatches own opcode set to a session.Context per
// connection instead.
type Handler struct {
	Shared *session.Shared
	Parser Parser

	nextConnID uint32

	mu    sync.Mutex
	conns map[uint32]*Connection

	log *logrus.Entry
}

// NewHandler wires a fresh dispatcher around shared (the catalog-wide
// collaborators) and parser (the out-of-scope grammar/lexer collaborator,
// ).
func NewHandler(shared *session.Shared, parser Parser) *Handler {
	return &Handler{
		Shared: shared,
		Parser: parser,
		conns:  map[uint32]*Connection{},
		log:    shared.Log.WithField("component", "protocol"),
	}
}

// Accept registers a fresh connection over rw and returns it positioned at
// state=0, ready for RunHandshakeAndLogin.
func (h *Handler) Accept(rw Conn) *Connection {
	id := atomic.AddUint32(&h.nextConnID, 1)
	c := newConnection(h, rw, id)
	h.mu.Lock()
	h.conns[id] = c
	h.mu.Unlock()
	return c
}

// remove drops a connection from the registry.
func (h *Handler) remove(id uint32) {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
}

// Connections returns a snapshot of the live connection set, consulted by
// the farmer poll loop and the ping loop (pool.go).
func (h *Handler) Connections() []*Connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Connection, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c)
	}
	return out
}

// CloseAll tears down every live connection's session (used at server
// shutdown).
func (h *Handler) CloseAll(ctx context.Context) {
	for _, c := range h.Connections() {
		c.closeSession(ctx)
	}
}
