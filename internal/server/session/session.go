// Package session ties one live connection to the core: a command channel
// in, an outbound channel of command results and replicated row events out,
// and the connect/disconnect lifecycle hooks around them. Commands submitted
// on one session are applied in submission order; the result of a command
// and the row events it caused travel independently and are not synchronized
// with each other.
package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/chatcore/internal/common"
	"github.com/dmitrijs2005/chatcore/internal/server/engine"
	"github.com/dmitrijs2005/chatcore/internal/server/replication"
	"github.com/dmitrijs2005/chatcore/internal/store"
)

// Invocation is one command submission: catalog name plus typed positional
// arguments.
type Invocation struct {
	Name string
	Args []any
}

// Message is one outbound item: exactly one of Result or Event is set.
type Message struct {
	Result *engine.Result
	Event  *replication.Event
}

// Session is one live connection's handle on the core.
type Session struct {
	conn   engine.Conn
	engine *engine.Engine
	repl   *replication.Manager
	events <-chan replication.Event

	in  chan Invocation
	out chan Message

	done      chan struct{}
	closeOnce sync.Once
}

func newSession(ctx context.Context, e *engine.Engine, m *replication.Manager, buffer int) (*Session, error) {
	conn := uuid.New()
	if err := e.Connected(ctx, conn); err != nil {
		return nil, err
	}
	return &Session{
		conn:   conn,
		engine: e,
		repl:   m,
		events: m.Attach(conn, buffer),
		in:     make(chan Invocation, buffer),
		out:    make(chan Message, buffer),
		done:   make(chan struct{}),
	}, nil
}

// Conn returns the session's connection identity.
func (s *Session) Conn() engine.Conn { return s.conn }

// Commands is the inbound command channel. Closing it ends the session.
func (s *Session) Commands() chan<- Invocation { return s.in }

// Out carries command results and replicated row events, each ordered with
// respect to its own kind.
func (s *Session) Out() <-chan Message { return s.out }

// Run pumps the session until the context ends, the command channel closes,
// or the session is dropped. It owns the out channel and closes it on exit.
func (s *Session) Run(ctx context.Context) {
	defer close(s.out)
	defer s.close(ctx)

	for {
		select {
		case inv, ok := <-s.in:
			if !ok {
				return
			}
			res := s.engine.Invoke(ctx, s.conn, inv.Name, inv.Args...)
			if !s.push(Message{Result: &res}) {
				return
			}
		case ev, ok := <-s.events:
			if !ok {
				// Dropped by the replication manager (slow consumer).
				return
			}
			e := ev
			if !s.push(Message{Event: &e}) {
				return
			}
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

func (s *Session) push(msg Message) bool {
	select {
	case s.out <- msg:
		return true
	case <-s.done:
		return false
	}
}

// Do invokes a command synchronously, bypassing the channels. Callers that
// use Do from a single goroutine keep the per-connection ordering guarantee.
// After the session has closed, every invocation fails without reaching the
// engine.
func (s *Session) Do(ctx context.Context, name string, args ...any) engine.Result {
	select {
	case <-s.done:
		return engine.Result{Command: name, Err: common.ErrorSessionClosed.Error()}
	default:
	}
	return s.engine.Invoke(ctx, s.conn, name, args...)
}

// Subscribe registers interest in all rows of table, optionally narrowed by
// clause.
func (s *Session) Subscribe(table string, clause replication.Filter) error {
	return s.repl.Subscribe(s.conn, table, clause)
}

// Unsubscribe stops future matches for table.
func (s *Session) Unsubscribe(table string) {
	s.repl.Unsubscribe(s.conn, table)
}

// Fetch runs a point query against current state and keeps it registered
// until Cancel.
func (s *Session) Fetch(ctx context.Context, table string, key any) error {
	return s.repl.Fetch(ctx, s.conn, table, key)
}

// Cancel removes a point query.
func (s *Session) Cancel(table string, key any) {
	s.repl.Cancel(s.conn, table, key)
}

// View exposes a read-only snapshot for ad-hoc non-mutating queries.
func (s *Session) View(ctx context.Context, fn func(ctx context.Context, tx *store.Tx) error) error {
	return s.engine.View(ctx, fn)
}

// close runs the disconnect path exactly once: detach replication queries,
// unbind presence, abandon any in-flight upload. All three are covered by
// the engine's disconnect hooks plus Detach.
func (s *Session) close(ctx context.Context) {
	s.closeOnce.Do(func() {
		close(s.done)
		s.repl.Detach(s.conn)
		_ = s.engine.Disconnected(ctx, s.conn)
	})
}

// Close terminates the session from outside the Run loop.
func (s *Session) Close(ctx context.Context) {
	s.close(ctx)
}
