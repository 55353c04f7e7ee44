package models

import "github.com/google/uuid"

// PendingUpload tracks one in-flight chunked upload, keyed by the connection
// identity that requested it. At most one exists per connection. Finished is
// set once the staging buffer reaches Target bytes; the upload then waits to
// be folded into a File by send_message, or abandoned on disconnect.
type PendingUpload struct {
	Conn      uuid.UUID
	StagingID uint32
	Target    int64
	Finished  bool
}

// Staging is the accumulating byte buffer of a pending upload. It exists only
// while the upload is in progress and is deleted on finalize or abandonment.
type Staging struct {
	ID     uint32
	Name   string
	Target int64
	Data   []byte
}
