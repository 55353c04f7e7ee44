package session

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/chatcore/internal/logging"
	"github.com/dmitrijs2005/chatcore/internal/server/engine"
	"github.com/dmitrijs2005/chatcore/internal/server/replication"
)

// Hub is the connection-lifecycle surface the transport layer talks to: it
// creates sessions on connect and tears them down on disconnect or when the
// replication manager drops a slow consumer.
type Hub struct {
	mu       sync.Mutex
	engine   *engine.Engine
	repl     *replication.Manager
	buffer   int
	sessions map[engine.Conn]*Session
	log      logging.Logger
}

func NewHub(e *engine.Engine, m *replication.Manager, buffer int, log logging.Logger) *Hub {
	h := &Hub{
		engine:   e,
		repl:     m,
		buffer:   buffer,
		sessions: map[engine.Conn]*Session{},
		log:      log,
	}
	m.OnDrop(h.drop)
	return h
}

// Connect creates a session with a fresh connection identity and runs the
// connect hooks.
func (h *Hub) Connect(ctx context.Context) (*Session, error) {
	s, err := newSession(ctx, h.engine, h.repl, h.buffer)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.sessions[s.conn] = s
	h.mu.Unlock()

	h.log.Info(ctx, "connection attached", "conn", s.conn)
	return s, nil
}

// Disconnect tears a session down: presence unbinding, upload abandonment
// and query removal happen atomically via the disconnect hooks.
func (h *Hub) Disconnect(ctx context.Context, s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.conn)
	h.mu.Unlock()

	s.close(ctx)
	h.log.Info(ctx, "connection detached", "conn", s.conn)
}

// Close terminates every live session.
func (h *Hub) Close(ctx context.Context) {
	h.mu.Lock()
	all := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		all = append(all, s)
	}
	h.sessions = map[engine.Conn]*Session{}
	h.mu.Unlock()

	for _, s := range all {
		s.close(ctx)
	}
}

func (h *Hub) drop(conn engine.Conn) {
	h.mu.Lock()
	s, ok := h.sessions[conn]
	if ok {
		delete(h.sessions, conn)
	}
	h.mu.Unlock()

	if ok {
		s.close(context.Background())
	}
}
