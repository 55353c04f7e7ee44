// Package engine implements the command engine: a fixed catalog of named
// mutating operations, each executed against the table store inside one
// all-or-nothing transaction. It also runs the connection lifecycle hooks
// with the same transactional guarantee.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/chatcore/internal/common"
	"github.com/dmitrijs2005/chatcore/internal/logging"
	"github.com/dmitrijs2005/chatcore/internal/store"
)

// Conn identifies one live client connection. It is distinct from an account
// id: one account may have several simultaneous connections bound to it.
type Conn = uuid.UUID

// ValidationError is a user-facing command failure from a command's fixed
// error set. Returning one from a handler rolls the transaction back and
// reports the code to the caller; the caller can always retry with corrected
// input. Any other error from a handler is an internal invariant violation:
// the transaction is rolled back, the error is logged, and the caller sees
// only a generic internal failure.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

// Engine-level validation errors, shared by every command.
const (
	ErrUnknownCommand ValidationError = "unknown command"
	ErrBadArguments   ValidationError = "bad arguments"
)

// Handler executes one command inside the given transaction. The returned
// value, if any, is the created row's key (or other small result) reported to
// the caller on success.
type Handler func(ctx context.Context, tx *store.Tx, call *Call) (any, error)

// Command is one catalog entry: name, positional argument schema, the fixed
// validation error set (introspection only, not enforced), and the handler.
type Command struct {
	Name    string
	Args    []ArgKind
	Errors  []ValidationError
	Handler Handler
}

// Hook runs on a connection lifecycle event, inside the same transaction
// discipline as commands.
type Hook func(ctx context.Context, tx *store.Tx, conn Conn) error

// Result is the outcome of one command invocation, delivered to the invoking
// connection. Err carries the validation error string, or "internal error"
// for invariant violations; it is empty on success.
type Result struct {
	Command string
	OK      bool
	Key     any
	Err     string
}

// Engine holds the command catalog and dispatches invocations.
type Engine struct {
	store      *store.Store
	commands   map[string]*Command
	connect    []Hook
	disconnect []Hook
	log        logging.Logger
}

func New(s *store.Store, log logging.Logger) *Engine {
	return &Engine{
		store:    s,
		commands: map[string]*Command{},
		log:      log,
	}
}

// Register adds a command to the catalog. Wiring-time only; a duplicate name
// panics.
func (e *Engine) Register(cmd *Command) {
	if _, ok := e.commands[cmd.Name]; ok {
		panic(fmt.Sprintf("engine: command %q registered twice", cmd.Name))
	}
	e.commands[cmd.Name] = cmd
}

// OnConnect registers a hook run when a connection attaches.
func (e *Engine) OnConnect(h Hook) { e.connect = append(e.connect, h) }

// OnDisconnect registers a hook run when a connection detaches.
func (e *Engine) OnDisconnect(h Hook) { e.disconnect = append(e.disconnect, h) }

// Invoke validates and executes the named command for conn. All mutations
// are visible atomically on commit or fully discarded on any error. Commands
// submitted on the same connection must be invoked sequentially by the
// session loop; invocations from different connections serialize on the
// store lock in arbitrary order.
func (e *Engine) Invoke(ctx context.Context, conn Conn, name string, args ...any) Result {
	cmd, ok := e.commands[name]
	if !ok {
		return Result{Command: name, Err: string(ErrUnknownCommand)}
	}
	if err := checkArgs(cmd.Args, args); err != nil {
		return Result{Command: name, Err: string(ErrBadArguments)}
	}

	var key any
	err := e.store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		var err error
		key, err = cmd.Handler(ctx, tx, &Call{Conn: conn, Args: args})
		return err
	})
	if err != nil {
		var verr ValidationError
		if errors.As(err, &verr) {
			return Result{Command: name, Err: string(verr)}
		}
		e.log.Error(ctx, "command failed", "command", name, "conn", conn, "error", err)
		return Result{Command: name, Err: common.ErrorInternal.Error()}
	}
	return Result{Command: name, OK: true, Key: key}
}

// Connected runs the connect hooks for conn in one transaction.
func (e *Engine) Connected(ctx context.Context, conn Conn) error {
	return e.runHooks(ctx, conn, e.connect)
}

// Disconnected runs the disconnect hooks for conn in one transaction:
// presence unbinding and upload abandonment happen atomically.
func (e *Engine) Disconnected(ctx context.Context, conn Conn) error {
	return e.runHooks(ctx, conn, e.disconnect)
}

func (e *Engine) runHooks(ctx context.Context, conn Conn, hooks []Hook) error {
	err := e.store.WithTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		for _, h := range hooks {
			if err := h(ctx, tx, conn); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		e.log.Error(ctx, "lifecycle hook failed", "conn", conn, "error", err)
	}
	return err
}

// View exposes a read-only snapshot for non-mutating queries.
func (e *Engine) View(ctx context.Context, fn func(ctx context.Context, tx *store.Tx) error) error {
	return e.store.View(ctx, fn)
}
