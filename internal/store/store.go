// Package store implements the in-memory transactional table store backing the
// chat core: typed row collections with primary keys and unique indices,
// all-or-nothing transactions, and change records handed to a commit hook in
// commit order.
//
// Concurrency model: a single store-wide mutex serializes transactions. A
// command handler runs synchronously inside one transaction and never blocks,
// so the lock is held only for short, CPU-bound sections. Readers outside a
// transaction use View, which takes the same lock.
package store

import (
	"context"
	"sync"
)

// Op classifies a committed row change.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change describes one committed row mutation. Old is set for updates and
// deletes, New for inserts and updates. Rows are stored by value; consumers
// must not mutate slice fields of Old/New in place.
type Change struct {
	Table string
	Op    Op
	Old   any
	New   any
}

// CommitHook receives every committed change batch, in commit order, with a
// monotonically increasing sequence number. The hook runs under the store
// lock with a read-only transaction over the post-commit state: it may read
// tables but must not start nested transactions or block.
type CommitHook func(tx *Tx, seq uint64, changes []Change)

// Store owns the table set and serializes all mutation.
type Store struct {
	mu     sync.Mutex
	names  map[string]struct{}
	seq    uint64
	hook   CommitHook
	hookMu sync.Mutex
}

func New() *Store {
	return &Store{names: map[string]struct{}{}}
}

// OnCommit installs the commit hook. Wiring-time only; the previous hook, if
// any, is replaced.
func (s *Store) OnCommit(hook CommitHook) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hook = hook
}

func (s *Store) commitHook() CommitHook {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	return s.hook
}

// Tx is a handle to one serialized transaction (or read snapshot). All table
// access goes through a Tx, which proves the store lock is held.
type Tx struct {
	s        *Store
	readOnly bool
	changes  []Change
	undo     []func()
}

func (tx *Tx) record(c Change, undo func()) {
	tx.changes = append(tx.changes, c)
	tx.undo = append(tx.undo, undo)
}

func (tx *Tx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
	tx.changes = nil
}

// WithTx runs fn inside one transaction: every mutation fn performs becomes
// visible atomically on commit, or is fully rolled back if fn returns an
// error or panics. Panics are rethrown after rollback.
//
// On commit, the change batch is passed to the commit hook before the store
// lock is released, so hooks observe batches in a total order matching commit
// order.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{s: s}

	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
		if err != nil {
			tx.rollback()
			return
		}
		s.commit(tx)
	}()

	err = fn(ctx, tx)
	return err
}

// View runs fn with a read-only snapshot. Mutations through a View
// transaction fail with ErrorInternal.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fn(ctx, &Tx{s: s, readOnly: true})
}

func (s *Store) commit(tx *Tx) {
	if len(tx.changes) == 0 {
		return
	}
	s.seq++
	if hook := s.commitHook(); hook != nil {
		hook(&Tx{s: s, readOnly: true}, s.seq, tx.changes)
	}
}
