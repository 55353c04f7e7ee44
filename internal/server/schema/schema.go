// Package schema builds the explicit table registry at process start: every
// table the core uses, with its key functions and unique indices, constructed
// in code and bundled into one value that services share.
package schema

import (
	"github.com/google/uuid"

	"github.com/dmitrijs2005/chatcore/internal/server/models"
	"github.com/dmitrijs2005/chatcore/internal/store"
)

// Table names, used by replication registration and change records.
const (
	TableAccount     = "account"
	TableCredential  = "credential"
	TableMessage     = "message"
	TableFile        = "file"
	TableStaging     = "staging"
	TablePending     = "pending_upload"
	TableVoiceRoom   = "voice_room"
	TableVoicePacket = "voice_packet"
)

// Schema bundles the store and the typed table handles. Credential, Staging
// and PendingUpload are private tables: they are never registered with the
// replication manager.
type Schema struct {
	Store *store.Store

	Accounts    *store.Table[uint32, models.Account]
	AccountName *store.Unique[uint32, models.Account, string]
	Credentials *store.Table[uint32, models.Credential]
	Messages    *store.Table[uint32, models.Message]
	Files       *store.Table[uint32, models.File]
	Stagings    *store.Table[uint32, models.Staging]
	Pending     *store.Table[uuid.UUID, models.PendingUpload]
	VoiceRooms  *store.Table[uint32, models.VoiceRoom]
	VoicePkts   *store.Table[uint32, models.VoicePacket]
}

func New() *Schema {
	s := store.New()

	accounts := store.NewTable(s, TableAccount, func(a models.Account) uint32 { return a.ID }).
		AutoInc(func(a models.Account, id uint32) models.Account { a.ID = id; return a })
	name := store.AddUnique(accounts, "name", func(a models.Account) string { return a.Name })

	credentials := store.NewTable(s, TableCredential, func(c models.Credential) uint32 { return c.AccountID })

	messages := store.NewTable(s, TableMessage, func(m models.Message) uint32 { return m.ID }).
		AutoInc(func(m models.Message, id uint32) models.Message { m.ID = id; return m })

	files := store.NewTable(s, TableFile, func(f models.File) uint32 { return f.ID }).
		AutoInc(func(f models.File, id uint32) models.File { f.ID = id; return f })

	stagings := store.NewTable(s, TableStaging, func(st models.Staging) uint32 { return st.ID }).
		AutoInc(func(st models.Staging, id uint32) models.Staging { st.ID = id; return st })

	pending := store.NewTable(s, TablePending, func(p models.PendingUpload) uuid.UUID { return p.Conn })

	rooms := store.NewTable(s, TableVoiceRoom, func(r models.VoiceRoom) uint32 { return r.ID }).
		AutoInc(func(r models.VoiceRoom, id uint32) models.VoiceRoom { r.ID = id; return r })

	packets := store.NewTable(s, TableVoicePacket, func(p models.VoicePacket) uint32 { return p.ID }).
		AutoInc(func(p models.VoicePacket, id uint32) models.VoicePacket { p.ID = id; return p })

	return &Schema{
		Store:       s,
		Accounts:    accounts,
		AccountName: name,
		Credentials: credentials,
		Messages:    messages,
		Files:       files,
		Stagings:    stagings,
		Pending:     pending,
		VoiceRooms:  rooms,
		VoicePkts:   packets,
	}
}

// CredentialOf finds the credential whose binding set contains conn.
func (s *Schema) CredentialOf(tx *store.Tx, conn uuid.UUID) (models.Credential, bool) {
	var found models.Credential
	ok := false
	s.Credentials.Iter(tx, func(c models.Credential) bool {
		if c.Bound(conn) {
			found, ok = c, true
			return false
		}
		return true
	})
	return found, ok
}

// BoundAccount resolves the account a connection is authenticated as.
func (s *Schema) BoundAccount(tx *store.Tx, conn uuid.UUID) (models.Account, bool) {
	cred, ok := s.CredentialOf(tx, conn)
	if !ok {
		return models.Account{}, false
	}
	acc, ok := s.Accounts.Get(tx, cred.AccountID)
	return acc, ok
}

// RoomOf finds the voice room the account is currently a member of.
func (s *Schema) RoomOf(tx *store.Tx, account uint32) (models.VoiceRoom, bool) {
	var found models.VoiceRoom
	ok := false
	s.VoiceRooms.Iter(tx, func(r models.VoiceRoom) bool {
		if r.HasMember(account) {
			found, ok = r, true
			return false
		}
		return true
	})
	return found, ok
}
