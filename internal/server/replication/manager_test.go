package replication

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/chatcore/internal/logging"
	"github.com/dmitrijs2005/chatcore/internal/server/engine"
	"github.com/dmitrijs2005/chatcore/internal/store"
)

// memo is the test row type: Owner scopes visibility, Shared lifts it.
type memo struct {
	ID     uint32
	Owner  uint32
	Shared bool
	Text   string
}

type fixture struct {
	store    *store.Store
	manager  *Manager
	memos    *store.Table[uint32, memo]
	secrets  *store.Table[uint32, memo]
	accounts map[engine.Conn]uint32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s := store.New()
	memos := store.NewTable(s, "memo", func(m memo) uint32 { return m.ID }).
		AutoInc(func(m memo, id uint32) memo { m.ID = id; return m })
	// Registered with no TableSpec: must stay private.
	secrets := store.NewTable(s, "secret", func(m memo) uint32 { return m.ID }).
		AutoInc(func(m memo, id uint32) memo { m.ID = id; return m })

	f := &fixture{store: s, memos: memos, secrets: secrets, accounts: map[engine.Conn]uint32{}}

	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.manager = NewManager(s, func(tx *store.Tx, conn engine.Conn) (uint32, bool) {
		acc, ok := f.accounts[conn]
		return acc, ok
	}, log)

	f.manager.RegisterTable(&TableSpec{
		Name:  "memo",
		KeyOf: memos.KeyOf,
		Lookup: func(tx *store.Tx, key any) (any, bool) {
			m, ok := memos.Get(tx, key.(uint32))
			if !ok {
				return nil, false
			}
			return m, true
		},
		Filter: func(tx *store.Tx, v Viewer, row any) bool {
			m := row.(memo)
			return m.Shared || (v.Authenticated && m.Owner == v.Account)
		},
	})

	return f
}

func (f *fixture) put(t *testing.T, m memo) memo {
	t.Helper()
	err := f.store.WithTx(context.Background(), func(ctx context.Context, tx *store.Tx) error {
		id, err := f.memos.Insert(tx, m)
		m.ID = id
		return err
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) update(t *testing.T, m memo) {
	t.Helper()
	err := f.store.WithTx(context.Background(), func(ctx context.Context, tx *store.Tx) error {
		return f.memos.Update(tx, m)
	})
	require.NoError(t, err)
}

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
		return Event{}
	}
}

func requireNoEvent(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %+v", ev)
	default:
	}
}

func TestSubscribeUnknownTable(t *testing.T) {
	f := newFixture(t)
	conn := uuid.New()
	f.manager.Attach(conn, 8)

	require.Error(t, f.manager.Subscribe(conn, "credential", nil))
	require.NoError(t, f.manager.Subscribe(conn, "memo", nil))
}

func TestInsertDeliveredInCommitOrder(t *testing.T) {
	f := newFixture(t)
	conn := uuid.New()
	ch := f.manager.Attach(conn, 8)
	require.NoError(t, f.manager.Subscribe(conn, "memo", nil))

	first := f.put(t, memo{Shared: true, Text: "first"})
	second := f.put(t, memo{Shared: true, Text: "second"})

	ev := recv(t, ch)
	require.Equal(t, store.OpInsert, ev.Op)
	require.Equal(t, first.ID, ev.New.(memo).ID)

	ev2 := recv(t, ch)
	require.Equal(t, second.ID, ev2.New.(memo).ID)
	require.Greater(t, ev2.Seq, ev.Seq)
}

func TestFilterScopesRowsPerViewer(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	other := uuid.New()
	f.accounts[owner] = 1
	f.accounts[other] = 2

	ownerCh := f.manager.Attach(owner, 8)
	otherCh := f.manager.Attach(other, 8)
	require.NoError(t, f.manager.Subscribe(owner, "memo", nil))
	require.NoError(t, f.manager.Subscribe(other, "memo", nil))

	f.put(t, memo{Owner: 1, Text: "private to 1"})

	ev := recv(t, ownerCh)
	require.Equal(t, "private to 1", ev.New.(memo).Text)
	requireNoEvent(t, otherCh)
}

func TestVisibilityTransitionsRewriteOps(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()
	other := uuid.New()
	f.accounts[owner] = 1
	f.accounts[other] = 2

	ownerCh := f.manager.Attach(owner, 8)
	otherCh := f.manager.Attach(other, 8)
	require.NoError(t, f.manager.Subscribe(owner, "memo", nil))
	require.NoError(t, f.manager.Subscribe(other, "memo", nil))

	m := f.put(t, memo{Owner: 1, Text: "mine"})
	recv(t, ownerCh)

	// Sharing the memo: plain update for the owner, insert for everyone else.
	m.Shared = true
	f.update(t, m)
	require.Equal(t, store.OpUpdate, recv(t, ownerCh).Op)
	require.Equal(t, store.OpInsert, recv(t, otherCh).Op)

	// Unsharing: update for the owner, delete for everyone else.
	m.Shared = false
	f.update(t, m)
	require.Equal(t, store.OpUpdate, recv(t, ownerCh).Op)
	ev := recv(t, otherCh)
	require.Equal(t, store.OpDelete, ev.Op)
	require.Equal(t, m.ID, ev.Old.(memo).ID)
}

func TestPrivateTableNeverReplicated(t *testing.T) {
	f := newFixture(t)
	conn := uuid.New()
	ch := f.manager.Attach(conn, 8)
	require.NoError(t, f.manager.Subscribe(conn, "memo", nil))

	err := f.store.WithTx(context.Background(), func(ctx context.Context, tx *store.Tx) error {
		_, err := f.secrets.Insert(tx, memo{Text: "hidden"})
		return err
	})
	require.NoError(t, err)
	requireNoEvent(t, ch)
}

func TestSubscribeClauseNarrowsVisibility(t *testing.T) {
	f := newFixture(t)
	conn := uuid.New()
	ch := f.manager.Attach(conn, 8)
	require.NoError(t, f.manager.Subscribe(conn, "memo", func(tx *store.Tx, v Viewer, row any) bool {
		return row.(memo).Text == "wanted"
	}))

	f.put(t, memo{Shared: true, Text: "ignored"})
	f.put(t, memo{Shared: true, Text: "wanted"})

	ev := recv(t, ch)
	require.Equal(t, "wanted", ev.New.(memo).Text)
	requireNoEvent(t, ch)
}

func TestUnsubscribeStopsFutureMatches(t *testing.T) {
	f := newFixture(t)
	conn := uuid.New()
	ch := f.manager.Attach(conn, 8)
	require.NoError(t, f.manager.Subscribe(conn, "memo", nil))

	f.put(t, memo{Shared: true})
	recv(t, ch)

	f.manager.Unsubscribe(conn, "memo")
	f.put(t, memo{Shared: true})
	requireNoEvent(t, ch)
}

func TestFetchEmitsRowAndTracksKey(t *testing.T) {
	f := newFixture(t)
	conn := uuid.New()
	ch := f.manager.Attach(conn, 8)

	m := f.put(t, memo{Shared: true, Text: "v1"})

	require.NoError(t, f.manager.Fetch(context.Background(), conn, "memo", m.ID))
	ev := recv(t, ch)
	require.Equal(t, store.OpInsert, ev.Op)
	require.Equal(t, "v1", ev.New.(memo).Text)

	// The point query stays registered: a later change to the row flows.
	m.Text = "v2"
	f.update(t, m)
	require.Equal(t, "v2", recv(t, ch).New.(memo).Text)

	f.manager.Cancel(conn, "memo", m.ID)
	m.Text = "v3"
	f.update(t, m)
	requireNoEvent(t, ch)
}

func TestFetchMissingRowIsSilent(t *testing.T) {
	f := newFixture(t)
	conn := uuid.New()
	ch := f.manager.Attach(conn, 8)

	require.NoError(t, f.manager.Fetch(context.Background(), conn, "memo", uint32(99)))
	requireNoEvent(t, ch)
}

func TestSlowConsumerIsDropped(t *testing.T) {
	f := newFixture(t)
	conn := uuid.New()
	ch := f.manager.Attach(conn, 1)
	require.NoError(t, f.manager.Subscribe(conn, "memo", nil))

	dropped := make(chan engine.Conn, 1)
	f.manager.OnDrop(func(c engine.Conn) { dropped <- c })

	// Two inserts with a one-slot buffer: the second overflows.
	err := f.store.WithTx(context.Background(), func(ctx context.Context, tx *store.Tx) error {
		for i := 0; i < 2; i++ {
			if _, err := f.memos.Insert(tx, memo{Shared: true}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	select {
	case c := <-dropped:
		require.Equal(t, conn, c)
	case <-time.After(time.Second):
		t.Fatal("drop callback not invoked")
	}

	recv(t, ch) // the one buffered event
	_, open := <-ch
	require.False(t, open)
}

func TestDetachClosesChannel(t *testing.T) {
	f := newFixture(t)
	conn := uuid.New()
	ch := f.manager.Attach(conn, 8)
	require.NoError(t, f.manager.Subscribe(conn, "memo", nil))

	f.manager.Detach(conn)
	_, open := <-ch
	require.False(t, open)

	f.put(t, memo{Shared: true})
}
