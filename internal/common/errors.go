// Package common defines shared constants and sentinel errors used across
// the chat core. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Store-level errors.
	ErrorNotFound     = errors.New("not found")
	ErrorDuplicateKey = errors.New("duplicate key")

	// Engine-level errors (generic/internal flow control).
	//
	// ErrorInternal marks a broken invariant inside a transaction: a lookup
	// that an upstream check guarantees must succeed, an index out of step
	// with its table, and so on. It must never be surfaced to a client as a
	// validation failure.
	ErrorInternal = errors.New("internal error")

	// Session-level errors.
	ErrorSessionClosed = errors.New("session closed")
)
