package models

// Message is one chat message. ReplyTo is a message id, 0 when not a reply;
// the referenced message may have been deleted since, so a dangling id is
// tolerated. Sent and Edited are Unix milliseconds; Edited is 0 until the
// first edit. FileID references an attached File, 0 when none.
type Message struct {
	ID      uint32
	Sender  uint32
	ReplyTo uint32
	Sent    int64
	Edited  int64
	Text    string
	FileID  uint32
}

// File is a finalized, immutable attachment. Created only by promoting a
// completed staging buffer inside the same transaction as the message that
// references it.
type File struct {
	ID   uint32
	Name string
	Size int64
	Data []byte
}
