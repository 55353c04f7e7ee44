package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/chatcore/internal/common"
	"github.com/dmitrijs2005/chatcore/internal/logging"
	"github.com/dmitrijs2005/chatcore/internal/store"
)

const errBoom ValidationError = "boom"

type note struct {
	ID   uint32
	Text string
}

type fixture struct {
	store  *store.Store
	engine *Engine
	notes  *store.Table[uint32, note]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s := store.New()
	notes := store.NewTable(s, "note", func(n note) uint32 { return n.ID }).
		AutoInc(func(n note, id uint32) note { n.ID = id; return n })

	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	e := New(s, log)

	e.Register(&Command{
		Name: "put",
		Args: []ArgKind{ArgString},
		Handler: func(ctx context.Context, tx *store.Tx, call *Call) (any, error) {
			text := call.String(0)
			switch text {
			case "reject":
				return nil, errBoom
			case "explode":
				return nil, errors.New("wiring snapped")
			}
			return notes.Insert(tx, note{Text: text})
		},
	})

	return &fixture{store: s, engine: e, notes: notes}
}

func (f *fixture) countNotes(t *testing.T) int {
	t.Helper()
	var n int
	err := f.store.View(context.Background(), func(ctx context.Context, tx *store.Tx) error {
		n = f.notes.Len(tx)
		return nil
	})
	require.NoError(t, err)
	return n
}

func TestInvokeUnknownCommand(t *testing.T) {
	f := newFixture(t)

	res := f.engine.Invoke(context.Background(), uuid.New(), "nope")
	require.False(t, res.OK)
	require.Equal(t, string(ErrUnknownCommand), res.Err)
}

func TestInvokeBadArguments(t *testing.T) {
	f := newFixture(t)
	conn := uuid.New()

	tests := []struct {
		name string
		args []any
	}{
		{name: "missing", args: nil},
		{name: "wrong type", args: []any{42}},
		{name: "extra", args: []any{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.engine.Invoke(context.Background(), conn, "put", tt.args...)
			require.False(t, res.OK)
			require.Equal(t, string(ErrBadArguments), res.Err)
		})
	}
}

func TestInvokeSuccessReturnsKey(t *testing.T) {
	f := newFixture(t)

	res := f.engine.Invoke(context.Background(), uuid.New(), "put", "hello")
	require.True(t, res.OK)
	require.Equal(t, uint32(1), res.Key)
	require.Equal(t, 1, f.countNotes(t))
}

func TestInvokeValidationErrorSurfacesCode(t *testing.T) {
	f := newFixture(t)

	res := f.engine.Invoke(context.Background(), uuid.New(), "put", "reject")
	require.False(t, res.OK)
	require.Equal(t, string(errBoom), res.Err)
	require.Equal(t, 0, f.countNotes(t))
}

func TestInvokeInternalErrorIsMasked(t *testing.T) {
	f := newFixture(t)

	res := f.engine.Invoke(context.Background(), uuid.New(), "put", "explode")
	require.False(t, res.OK)
	require.Equal(t, common.ErrorInternal.Error(), res.Err)
	require.NotContains(t, res.Err, "wiring")
}

func TestLifecycleHooksRunInOrder(t *testing.T) {
	f := newFixture(t)

	var order []string
	f.engine.OnConnect(func(ctx context.Context, tx *store.Tx, conn Conn) error {
		order = append(order, "first")
		return nil
	})
	f.engine.OnConnect(func(ctx context.Context, tx *store.Tx, conn Conn) error {
		order = append(order, "second")
		return nil
	})
	f.engine.OnDisconnect(func(ctx context.Context, tx *store.Tx, conn Conn) error {
		order = append(order, "bye")
		return nil
	})

	conn := uuid.New()
	require.NoError(t, f.engine.Connected(context.Background(), conn))
	require.NoError(t, f.engine.Disconnected(context.Background(), conn))
	require.Equal(t, []string{"first", "second", "bye"}, order)
}

func TestHookErrorRollsBack(t *testing.T) {
	f := newFixture(t)

	f.engine.OnDisconnect(func(ctx context.Context, tx *store.Tx, conn Conn) error {
		if _, err := f.notes.Insert(tx, note{Text: "leftover"}); err != nil {
			return err
		}
		return errors.New("hook failed")
	})

	err := f.engine.Disconnected(context.Background(), uuid.New())
	require.Error(t, err)
	require.Equal(t, 0, f.countNotes(t))
}
