package replication

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/chatcore/internal/logging"
	"github.com/dmitrijs2005/chatcore/internal/server/engine"
	"github.com/dmitrijs2005/chatcore/internal/store"
)

// Event is one replicated row change delivered to a subscriber. Old and New
// follow the change op; for an update that crosses a visibility boundary the
// op is rewritten to insert (row entered the viewer's scope) or delete (row
// left it).
type Event struct {
	Seq   uint64
	Table string
	Op    store.Op
	Old   any
	New   any
}

// Resolve maps a connection identity to its bound account, read through tx.
type Resolve func(tx *store.Tx, conn engine.Conn) (uint32, bool)

// DropFunc is called (on its own goroutine) when a subscriber's outbound
// buffer overflows and its session must be terminated. Only that one session
// is affected.
type DropFunc func(conn engine.Conn)

type subscriber struct {
	conn   engine.Conn
	out    chan Event
	tables map[string]Filter
	points map[pointKey]struct{}
	dead   bool
}

type pointKey struct {
	table string
	key   any
}

// Manager tracks each connection's active queries and fans committed changes
// out to the connections whose filters match. Apply is installed as the
// store's commit hook, so delivery order per connection equals commit order.
type Manager struct {
	mu      sync.Mutex
	store   *store.Store
	tables  map[string]*TableSpec
	resolve Resolve
	onDrop  DropFunc
	subs    map[engine.Conn]*subscriber
	log     logging.Logger
}

func NewManager(s *store.Store, resolve Resolve, log logging.Logger) *Manager {
	m := &Manager{
		store:   s,
		tables:  map[string]*TableSpec{},
		resolve: resolve,
		subs:    map[engine.Conn]*subscriber{},
		log:     log,
	}
	s.OnCommit(m.Apply)
	return m
}

// RegisterTable declares a table replicable. Wiring-time only.
func (m *Manager) RegisterTable(spec *TableSpec) {
	if _, ok := m.tables[spec.Name]; ok {
		panic(fmt.Sprintf("replication: table %q registered twice", spec.Name))
	}
	m.tables[spec.Name] = spec
}

// OnDrop installs the session-termination callback. Wiring-time only.
func (m *Manager) OnDrop(fn DropFunc) { m.onDrop = fn }

// Attach creates the outbound event channel for conn. buffer bounds the
// number of undelivered events before the connection is dropped as a slow
// consumer.
func (m *Manager) Attach(conn engine.Conn, buffer int) <-chan Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub := &subscriber{
		conn:   conn,
		out:    make(chan Event, buffer),
		tables: map[string]Filter{},
		points: map[pointKey]struct{}{},
	}
	m.subs[conn] = sub
	return sub.out
}

// Detach removes all of conn's queries and closes its channel. Previously
// delivered events are not retracted.
func (m *Manager) Detach(conn engine.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[conn]
	if !ok {
		return
	}
	delete(m.subs, conn)
	if !sub.dead {
		close(sub.out)
	}
}

// Subscribe registers interest in all rows of table, optionally narrowed by
// clause (ANDed with the table's visibility filter).
func (m *Manager) Subscribe(conn engine.Conn, table string, clause Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tables[table]; !ok {
		return fmt.Errorf("replication: table %q is not replicable", table)
	}
	sub, ok := m.subs[conn]
	if !ok {
		return fmt.Errorf("replication: connection %s is not attached", conn)
	}
	sub.tables[table] = clause
	return nil
}

// Unsubscribe removes the table query. Future matches stop; nothing already
// sent is retracted.
func (m *Manager) Unsubscribe(conn engine.Conn, table string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sub, ok := m.subs[conn]; ok {
		delete(sub.tables, table)
	}
}

// Fetch runs a point query against current state, emitting the row as an
// insert event if it exists and is visible, and registers the key so future
// matching changes keep flowing until Cancel.
func (m *Manager) Fetch(ctx context.Context, conn engine.Conn, table string, key any) error {
	return m.store.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		m.mu.Lock()
		defer m.mu.Unlock()

		spec, ok := m.tables[table]
		if !ok {
			return fmt.Errorf("replication: table %q is not replicable", table)
		}
		sub, ok := m.subs[conn]
		if !ok || sub.dead {
			return fmt.Errorf("replication: connection %s is not attached", conn)
		}
		sub.points[pointKey{table: table, key: key}] = struct{}{}

		row, ok := spec.Lookup(tx, key)
		if !ok {
			return nil
		}
		if spec.visible(tx, m.viewer(tx, conn), row) {
			m.send(sub, Event{Table: table, Op: store.OpInsert, New: row})
		}
		return nil
	})
}

// Cancel removes a point query registered by Fetch.
func (m *Manager) Cancel(conn engine.Conn, table string, key any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sub, ok := m.subs[conn]; ok {
		delete(sub.points, pointKey{table: table, key: key})
	}
}

// Apply is the commit hook: it intersects the committed change batch with
// every subscriber's queries and emits matching deltas in commit order. It
// runs under the store lock, so batches are observed in a total order shared
// by all connections.
func (m *Manager) Apply(tx *store.Tx, seq uint64, changes []store.Change) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Viewer resolution is cached per connection within one batch only;
	// filters themselves are still evaluated per change per connection.
	viewers := map[engine.Conn]Viewer{}

	for _, c := range changes {
		spec, ok := m.tables[c.Table]
		if !ok {
			continue // private table
		}
		for _, sub := range m.subs {
			if sub.dead {
				continue
			}
			clause, subscribed := sub.tables[c.Table]
			if !subscribed && !sub.pointMatch(spec, c) {
				continue
			}

			v, ok := viewers[sub.conn]
			if !ok {
				v = m.viewer(tx, sub.conn)
				viewers[sub.conn] = v
			}

			oldVis := spec.visible(tx, v, c.Old) && (clause == nil || c.Old == nil || clause(tx, v, c.Old))
			newVis := spec.visible(tx, v, c.New) && (clause == nil || c.New == nil || clause(tx, v, c.New))

			switch {
			case oldVis && newVis:
				m.send(sub, Event{Seq: seq, Table: c.Table, Op: store.OpUpdate, Old: c.Old, New: c.New})
			case newVis:
				m.send(sub, Event{Seq: seq, Table: c.Table, Op: store.OpInsert, New: c.New})
			case oldVis:
				m.send(sub, Event{Seq: seq, Table: c.Table, Op: store.OpDelete, Old: c.Old})
			}
		}
	}
}

func (sub *subscriber) pointMatch(spec *TableSpec, c store.Change) bool {
	if len(sub.points) == 0 {
		return false
	}
	for _, row := range []any{c.Old, c.New} {
		if row == nil {
			continue
		}
		if _, ok := sub.points[pointKey{table: c.Table, key: spec.KeyOf(row)}]; ok {
			return true
		}
	}
	return false
}

func (m *Manager) viewer(tx *store.Tx, conn engine.Conn) Viewer {
	account, ok := m.resolve(tx, conn)
	return Viewer{Conn: conn, Account: account, Authenticated: ok}
}

// send delivers without blocking. A full buffer means the consumer has
// stalled while holding a live subscription; that one session is dropped so
// the commit path never blocks on a slow connection.
func (m *Manager) send(sub *subscriber, ev Event) {
	select {
	case sub.out <- ev:
	default:
		sub.dead = true
		close(sub.out)
		m.log.Warn(context.Background(), "dropping slow subscriber", "conn", sub.conn)
		if m.onDrop != nil {
			go m.onDrop(sub.conn)
		}
	}
}
