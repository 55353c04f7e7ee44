// Package models defines the row types held by the table store. Rows are
// plain value types: a row read from a table is a copy, and code that changes
// a slice field must clone it first so committed rows stay immutable.
package models

import "github.com/google/uuid"

// Account is the public user row. Online holds the connection identities
// currently authenticated as this account; clients derive boolean presence
// from it. Avatar is the raw encoded image, empty when unset.
type Account struct {
	ID     uint32
	Name   string
	Admin  bool
	Avatar []byte
	Online []uuid.UUID
}

// Credential is the private per-account secret row, keyed by account id.
// Connections mirrors Account.Online; a connection identity appears in at
// most one Credential's set at any time. Never replicated.
type Credential struct {
	AccountID   uint32
	Salt        []byte
	Hash        []byte
	Connections []uuid.UUID
}

// Bound reports whether conn is currently authenticated as this account.
func (c Credential) Bound(conn uuid.UUID) bool {
	for _, b := range c.Connections {
		if b == conn {
			return true
		}
	}
	return false
}
