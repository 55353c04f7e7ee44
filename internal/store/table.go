package store

import (
	"fmt"

	"github.com/dmitrijs2005/chatcore/internal/common"
)

// Table is a typed row collection keyed by primary key K. Tables are created
// at process start (the explicit schema registry) and are not safe to create
// once transactions are running.
type Table[K comparable, R any] struct {
	store  *Store
	name   string
	key    func(R) K
	assign func(R, uint32) R
	next   uint32
	rows   map[K]R
	unique []uniqueIndex[K, R]
}

// NewTable registers a table with caller-supplied primary keys. key extracts
// the primary key from a row. Panics on a duplicate table name; schema
// construction is wiring-time code.
func NewTable[K comparable, R any](s *Store, name string, key func(R) K) *Table[K, R] {
	if _, ok := s.names[name]; ok {
		panic(fmt.Sprintf("store: table %q registered twice", name))
	}
	s.names[name] = struct{}{}
	return &Table[K, R]{
		store: s,
		name:  name,
		key:   key,
		rows:  map[K]R{},
	}
}

// AutoInc switches the table to auto-assigned primary keys: every Insert
// stamps the row with the next counter value via assign before storing it.
func (t *Table[K, R]) AutoInc(assign func(R, uint32) R) *Table[K, R] {
	t.assign = assign
	return t
}

func (t *Table[K, R]) Name() string { return t.name }

func (tx *Tx) writable(table string) error {
	if tx.readOnly {
		return fmt.Errorf("table %s: mutation in read-only transaction: %w", table, common.ErrorInternal)
	}
	return nil
}

// Insert adds a row, assigning the primary key first when the table is
// auto-incremented. Fails with ErrorDuplicateKey when the primary key or any
// unique index value is already taken.
func (t *Table[K, R]) Insert(tx *Tx, row R) (K, error) {
	var zero K
	if err := tx.writable(t.name); err != nil {
		return zero, err
	}

	if t.assign != nil {
		t.next++
		row = t.assign(row, t.next)
	}
	k := t.key(row)

	if _, ok := t.rows[k]; ok {
		return zero, fmt.Errorf("table %s: primary key: %w", t.name, common.ErrorDuplicateKey)
	}
	for _, u := range t.unique {
		if err := u.check(row, k); err != nil {
			return zero, err
		}
	}

	t.rows[k] = row
	for _, u := range t.unique {
		u.put(row, k)
	}

	tx.record(Change{Table: t.name, Op: OpInsert, New: row}, func() {
		for _, u := range t.unique {
			u.del(row)
		}
		delete(t.rows, k)
	})
	return k, nil
}

// Update replaces the row with the same primary key. Fails with ErrorNotFound
// if the key is absent and ErrorDuplicateKey if a unique index value would
// collide with another row.
func (t *Table[K, R]) Update(tx *Tx, row R) error {
	if err := tx.writable(t.name); err != nil {
		return err
	}

	k := t.key(row)
	old, ok := t.rows[k]
	if !ok {
		return fmt.Errorf("table %s: update: %w", t.name, common.ErrorNotFound)
	}
	for _, u := range t.unique {
		if err := u.check(row, k); err != nil {
			return err
		}
	}

	for _, u := range t.unique {
		u.del(old)
		u.put(row, k)
	}
	t.rows[k] = row

	tx.record(Change{Table: t.name, Op: OpUpdate, Old: old, New: row}, func() {
		for _, u := range t.unique {
			u.del(row)
			u.put(old, k)
		}
		t.rows[k] = old
	})
	return nil
}

// Delete removes the row by primary key. The contract requires callers to
// have checked existence; an absent key fails with ErrorNotFound, which
// handlers treat as an internal invariant violation.
func (t *Table[K, R]) Delete(tx *Tx, k K) error {
	if err := tx.writable(t.name); err != nil {
		return err
	}

	old, ok := t.rows[k]
	if !ok {
		return fmt.Errorf("table %s: delete: %w", t.name, common.ErrorNotFound)
	}

	for _, u := range t.unique {
		u.del(old)
	}
	delete(t.rows, k)

	tx.record(Change{Table: t.name, Op: OpDelete, Old: old}, func() {
		t.rows[k] = old
		for _, u := range t.unique {
			u.put(old, k)
		}
	})
	return nil
}

// Get returns the row with the given primary key.
func (t *Table[K, R]) Get(tx *Tx, k K) (R, bool) {
	row, ok := t.rows[k]
	return row, ok
}

// Len reports the number of rows.
func (t *Table[K, R]) Len(tx *Tx) int { return len(t.rows) }

// Iter calls fn for every row until fn returns false. Iteration order is
// unspecified.
func (t *Table[K, R]) Iter(tx *Tx, fn func(R) bool) {
	for _, row := range t.rows {
		if !fn(row) {
			return
		}
	}
}

// KeyOf applies the table's key function to an untyped row, as carried by a
// Change. It panics if row is not this table's row type.
func (t *Table[K, R]) KeyOf(row any) any { return t.key(row.(R)) }

type uniqueIndex[K comparable, R any] interface {
	check(row R, self K) error
	put(row R, k K)
	del(row R)
}

// Unique is a secondary unique index over one extracted value per row.
type Unique[K comparable, R any, V comparable] struct {
	table *Table[K, R]
	name  string
	of    func(R) V
	idx   map[V]K
}

// AddUnique attaches a unique index named name to t, extracting the indexed
// value with of. Wiring-time only.
func AddUnique[K comparable, R any, V comparable](t *Table[K, R], name string, of func(R) V) *Unique[K, R, V] {
	u := &Unique[K, R, V]{table: t, name: name, of: of, idx: map[V]K{}}
	t.unique = append(t.unique, u)
	return u
}

// Find returns the row whose indexed value equals v.
func (u *Unique[K, R, V]) Find(tx *Tx, v V) (R, bool) {
	var zero R
	k, ok := u.idx[v]
	if !ok {
		return zero, false
	}
	return u.table.rows[k], true
}

func (u *Unique[K, R, V]) check(row R, self K) error {
	if k, ok := u.idx[u.of(row)]; ok && k != self {
		return fmt.Errorf("table %s: unique index %s: %w", u.table.name, u.name, common.ErrorDuplicateKey)
	}
	return nil
}

func (u *Unique[K, R, V]) put(row R, k K) { u.idx[u.of(row)] = k }

func (u *Unique[K, R, V]) del(row R) { delete(u.idx, u.of(row)) }
