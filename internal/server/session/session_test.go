package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/chatcore/internal/common"
	"github.com/dmitrijs2005/chatcore/internal/logging"
	"github.com/dmitrijs2005/chatcore/internal/server/engine"
	"github.com/dmitrijs2005/chatcore/internal/server/replication"
	"github.com/dmitrijs2005/chatcore/internal/store"
)

type entry struct {
	ID   uint32
	Text string
}

type fixture struct {
	store   *store.Store
	engine  *engine.Engine
	manager *replication.Manager
	hub     *Hub
	entries *store.Table[uint32, entry]
}

func newFixture(t *testing.T, buffer int) *fixture {
	t.Helper()

	s := store.New()
	entries := store.NewTable(s, "entry", func(e entry) uint32 { return e.ID }).
		AutoInc(func(e entry, id uint32) entry { e.ID = id; return e })

	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	eng := engine.New(s, log)
	eng.Register(&engine.Command{
		Name: "put",
		Args: []engine.ArgKind{engine.ArgString},
		Handler: func(ctx context.Context, tx *store.Tx, call *engine.Call) (any, error) {
			return entries.Insert(tx, entry{Text: call.String(0)})
		},
	})

	m := replication.NewManager(s, func(tx *store.Tx, conn engine.Conn) (uint32, bool) {
		return 0, false
	}, log)
	m.RegisterTable(&replication.TableSpec{
		Name:  "entry",
		KeyOf: entries.KeyOf,
		Lookup: func(tx *store.Tx, key any) (any, bool) {
			e, ok := entries.Get(tx, key.(uint32))
			if !ok {
				return nil, false
			}
			return e, true
		},
	})

	return &fixture{
		store:   s,
		engine:  eng,
		manager: m,
		hub:     NewHub(eng, m, buffer, log),
		entries: entries,
	}
}

func read(t *testing.T, out <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-out:
		require.True(t, ok, "out closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message")
		return Message{}
	}
}

func TestDoAfterCloseFails(t *testing.T) {
	f := newFixture(t, 8)
	ctx := context.Background()

	s, err := f.hub.Connect(ctx)
	require.NoError(t, err)
	f.hub.Disconnect(ctx, s)

	res := s.Do(ctx, "put", "late")
	require.False(t, res.OK)
	require.Equal(t, common.ErrorSessionClosed.Error(), res.Err)
}

func TestSessionsGetDistinctConnections(t *testing.T) {
	f := newFixture(t, 8)

	a, err := f.hub.Connect(context.Background())
	require.NoError(t, err)
	b, err := f.hub.Connect(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, a.Conn(), b.Conn())
}

func TestDoInvokesSynchronously(t *testing.T) {
	f := newFixture(t, 8)

	s, err := f.hub.Connect(context.Background())
	require.NoError(t, err)

	res := s.Do(context.Background(), "put", "hello")
	require.True(t, res.OK)
	require.Equal(t, uint32(1), res.Key)
}

func TestRunDeliversResultsAndEvents(t *testing.T) {
	f := newFixture(t, 8)
	ctx := context.Background()

	s, err := f.hub.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Subscribe("entry", nil))
	go s.Run(ctx)

	s.Commands() <- Invocation{Name: "put", Args: []any{"hello"}}

	var result *engine.Result
	var event *replication.Event
	for result == nil || event == nil {
		msg := read(t, s.Out())
		if msg.Result != nil {
			result = msg.Result
		}
		if msg.Event != nil {
			event = msg.Event
		}
	}

	require.True(t, result.OK)
	require.Equal(t, "put", result.Command)
	require.Equal(t, store.OpInsert, event.Op)
	require.Equal(t, "hello", event.New.(entry).Text)
}

func TestClosingCommandsEndsRun(t *testing.T) {
	f := newFixture(t, 8)
	ctx := context.Background()

	s, err := f.hub.Connect(ctx)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	close(s.Commands())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit")
	}
	_, open := <-s.Out()
	require.False(t, open)
}

func TestDisconnectDetachesReplication(t *testing.T) {
	f := newFixture(t, 8)
	ctx := context.Background()

	s, err := f.hub.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Subscribe("entry", nil))

	f.hub.Disconnect(ctx, s)

	// A post-disconnect commit must not reach the detached session.
	res := f.engine.Invoke(ctx, s.Conn(), "put", "after")
	require.True(t, res.OK)
}

func TestSlowSessionIsDropped(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	s, err := f.hub.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Subscribe("entry", nil))
	go s.Run(ctx)

	// Nobody reads Out; a burst larger than both buffers overflows the
	// replication channel and the manager drops the session.
	err = f.store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		for i := 0; i < 8; i++ {
			if _, err := f.entries.Insert(tx, entry{Text: "burst"}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	deadline := time.After(time.Second)
	for {
		select {
		case _, open := <-s.Out():
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("session was not dropped")
		}
	}
}

func TestHubCloseTearsDownAllSessions(t *testing.T) {
	f := newFixture(t, 8)
	ctx := context.Background()

	a, err := f.hub.Connect(ctx)
	require.NoError(t, err)
	b, err := f.hub.Connect(ctx)
	require.NoError(t, err)

	ra := make(chan struct{})
	rb := make(chan struct{})
	go func() { a.Run(ctx); close(ra) }()
	go func() { b.Run(ctx); close(rb) }()

	f.hub.Close(ctx)

	for _, done := range []chan struct{}{ra, rb} {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("session still running after hub close")
		}
	}
}

func TestFetchDeliversPointQuery(t *testing.T) {
	f := newFixture(t, 8)
	ctx := context.Background()

	s, err := f.hub.Connect(ctx)
	require.NoError(t, err)
	go s.Run(ctx)

	res := s.Do(ctx, "put", "target")
	require.True(t, res.OK)

	require.NoError(t, s.Fetch(ctx, "entry", res.Key))
	msg := read(t, s.Out())
	require.NotNil(t, msg.Event)
	require.Equal(t, "target", msg.Event.New.(entry).Text)
}
