// Package replication mirrors committed row changes to subscribed
// connections, restricted by per-table visibility filters. Filters are typed
// predicate functions compiled in code at wiring time (not interpreted
// queries), parameterized by the viewing connection's identity, and
// re-evaluated for every change and every subscriber: a filter's verdict is
// never shared between connections.
package replication

import (
	"github.com/dmitrijs2005/chatcore/internal/server/engine"
	"github.com/dmitrijs2005/chatcore/internal/store"
)

// Viewer is the identity a filter is evaluated for. Account is the bound
// account id, valid only when Authenticated is true.
type Viewer struct {
	Conn          engine.Conn
	Account       uint32
	Authenticated bool
}

// Filter decides whether row is visible to v. It may read tables through tx
// (e.g. a membership join) but must not mutate. A nil Filter means every row
// of the table is visible to every connection.
type Filter func(tx *store.Tx, v Viewer, row any) bool

// TableSpec registers one replicable table. Tables never registered here
// (credentials, staging, pending uploads) are private: their changes are
// dropped before any subscriber sees them.
type TableSpec struct {
	Name string

	// KeyOf extracts the primary key from an untyped row, for point-query
	// matching.
	KeyOf func(row any) any

	// Lookup fetches a row by primary key, for running point queries against
	// current state.
	Lookup func(tx *store.Tx, key any) (any, bool)

	// Filter is the table's visibility predicate, nil for always-visible.
	Filter Filter
}

func (s *TableSpec) visible(tx *store.Tx, v Viewer, row any) bool {
	if row == nil {
		return false
	}
	if s.Filter == nil {
		return true
	}
	return s.Filter(tx, v, row)
}
