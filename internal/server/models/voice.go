package models

// VoiceRoom groups accounts for voice transmission. Members holds account
// ids.
type VoiceRoom struct {
	ID      uint32
	Members []uint32
}

// HasMember reports whether account is in the room.
func (r VoiceRoom) HasMember(account uint32) bool {
	for _, m := range r.Members {
		if m == account {
			return true
		}
	}
	return false
}

// VoicePacket is an ephemeral write-once row: inserted, delivered to room
// members, never updated. Clients are expected to discard packets after
// playback.
type VoicePacket struct {
	ID      uint32
	Room    uint32
	Sender  uint32
	Samples []byte
}
