package server

import (
	"github.com/dmitrijs2005/chatcore/internal/server/models"
	"github.com/dmitrijs2005/chatcore/internal/server/replication"
	"github.com/dmitrijs2005/chatcore/internal/server/schema"
	"github.com/dmitrijs2005/chatcore/internal/store"
)

// registerFilters declares which tables replicate and under which visibility
// predicate. Credentials, staging buffers and pending uploads are private:
// they are deliberately absent here and never leave the store.
//
// In the single global chat, accounts, messages and files carry the identity
// predicate (visible to everyone). Voice packets carry a membership join:
// a packet is visible to a connection only when that connection's account is
// a member of the packet's room — the same predicate shape a multi-room chat
// would attach to messages.
func registerFilters(m *replication.Manager, sch *schema.Schema) {
	m.RegisterTable(&replication.TableSpec{
		Name:  schema.TableAccount,
		KeyOf: sch.Accounts.KeyOf,
		Lookup: func(tx *store.Tx, key any) (any, bool) {
			k, ok := key.(uint32)
			if !ok {
				return nil, false
			}
			return sch.Accounts.Get(tx, k)
		},
	})

	m.RegisterTable(&replication.TableSpec{
		Name:  schema.TableMessage,
		KeyOf: sch.Messages.KeyOf,
		Lookup: func(tx *store.Tx, key any) (any, bool) {
			k, ok := key.(uint32)
			if !ok {
				return nil, false
			}
			return sch.Messages.Get(tx, k)
		},
	})

	m.RegisterTable(&replication.TableSpec{
		Name:  schema.TableFile,
		KeyOf: sch.Files.KeyOf,
		Lookup: func(tx *store.Tx, key any) (any, bool) {
			k, ok := key.(uint32)
			if !ok {
				return nil, false
			}
			return sch.Files.Get(tx, k)
		},
	})

	m.RegisterTable(&replication.TableSpec{
		Name:  schema.TableVoiceRoom,
		KeyOf: sch.VoiceRooms.KeyOf,
		Lookup: func(tx *store.Tx, key any) (any, bool) {
			k, ok := key.(uint32)
			if !ok {
				return nil, false
			}
			return sch.VoiceRooms.Get(tx, k)
		},
	})

	m.RegisterTable(&replication.TableSpec{
		Name:  schema.TableVoicePacket,
		KeyOf: sch.VoicePkts.KeyOf,
		Lookup: func(tx *store.Tx, key any) (any, bool) {
			k, ok := key.(uint32)
			if !ok {
				return nil, false
			}
			return sch.VoicePkts.Get(tx, k)
		},
		Filter: func(tx *store.Tx, v replication.Viewer, row any) bool {
			if !v.Authenticated {
				return false
			}
			pkt, ok := row.(models.VoicePacket)
			if !ok {
				return false
			}
			room, ok := sch.VoiceRooms.Get(tx, pkt.Room)
			return ok && room.HasMember(v.Account)
		},
	})
}
