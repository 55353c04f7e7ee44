// Package accounts implements the account-related command handlers: signup,
// login, logout, set_avatar, plus the presence bookkeeping that keeps
// Account.Online and Credential.Connections in step across logins and
// disconnects.
package accounts

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"image"
	"unicode/utf8"

	_ "image/jpeg"
	_ "image/png"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"

	"github.com/dmitrijs2005/chatcore/internal/common"
	"github.com/dmitrijs2005/chatcore/internal/logging"
	"github.com/dmitrijs2005/chatcore/internal/server/config"
	"github.com/dmitrijs2005/chatcore/internal/server/engine"
	"github.com/dmitrijs2005/chatcore/internal/server/models"
	"github.com/dmitrijs2005/chatcore/internal/server/schema"
	"github.com/dmitrijs2005/chatcore/internal/store"
)

const (
	ErrAlreadyAuthenticated engine.ValidationError = "already authenticated"
	ErrNotAuthenticated     engine.ValidationError = "not authenticated"
	ErrNameTooShort         engine.ValidationError = "name too short"
	ErrPasswordTooShort     engine.ValidationError = "password too short"
	ErrNameTaken            engine.ValidationError = "name taken"
	ErrNoSuchUser           engine.ValidationError = "no such user"
	ErrBadPassword          engine.ValidationError = "bad password"
	ErrInvalidImage         engine.ValidationError = "invalid image"
)

type Service struct {
	schema *schema.Schema
	cfg    *config.Config
	log    logging.Logger
}

func NewService(s *schema.Schema, cfg *config.Config, log logging.Logger) *Service {
	return &Service{schema: s, cfg: cfg, log: log}
}

// Register adds the account commands and the presence lifecycle hook to the
// engine catalog.
func (s *Service) Register(e *engine.Engine) {
	e.Register(&engine.Command{
		Name:    "signup",
		Args:    []engine.ArgKind{engine.ArgString, engine.ArgString},
		Errors:  []engine.ValidationError{ErrAlreadyAuthenticated, ErrNameTooShort, ErrPasswordTooShort, ErrNameTaken},
		Handler: s.signup,
	})
	e.Register(&engine.Command{
		Name:    "login",
		Args:    []engine.ArgKind{engine.ArgString, engine.ArgString},
		Errors:  []engine.ValidationError{ErrAlreadyAuthenticated, ErrNoSuchUser, ErrBadPassword},
		Handler: s.login,
	})
	e.Register(&engine.Command{
		Name:    "logout",
		Errors:  []engine.ValidationError{ErrNotAuthenticated},
		Handler: s.logout,
	})
	e.Register(&engine.Command{
		Name:    "set_avatar",
		Args:    []engine.ArgKind{engine.ArgBytes},
		Errors:  []engine.ValidationError{ErrNotAuthenticated, ErrInvalidImage},
		Handler: s.setAvatar,
	})
	e.OnDisconnect(s.onDisconnect)
}

func (s *Service) signup(ctx context.Context, tx *store.Tx, call *engine.Call) (any, error) {
	name, password := call.String(0), call.String(1)

	if _, ok := s.schema.CredentialOf(tx, call.Conn); ok {
		return nil, ErrAlreadyAuthenticated
	}
	if utf8.RuneCountInString(name) < s.cfg.MinNameLen {
		return nil, ErrNameTooShort
	}
	if utf8.RuneCountInString(password) < s.cfg.MinPasswordLen {
		return nil, ErrPasswordTooShort
	}
	if _, ok := s.schema.AccountName.Find(tx, name); ok {
		return nil, ErrNameTaken
	}

	// The first account to sign up becomes the administrator.
	admin := s.schema.Accounts.Len(tx) == 0

	id, err := s.schema.Accounts.Insert(tx, models.Account{
		Name:   name,
		Admin:  admin,
		Online: []uuid.UUID{call.Conn},
	})
	if err != nil {
		return nil, fmt.Errorf("inserting account: %w", err)
	}

	salt := randomSalt()
	if _, err := s.schema.Credentials.Insert(tx, models.Credential{
		AccountID:   id,
		Salt:        salt,
		Hash:        hashPassword(password, salt),
		Connections: []uuid.UUID{call.Conn},
	}); err != nil {
		return nil, fmt.Errorf("inserting credential: %w", err)
	}

	s.log.Info(ctx, "account created", "account", id, "name", name, "admin", admin)
	return id, nil
}

func (s *Service) login(ctx context.Context, tx *store.Tx, call *engine.Call) (any, error) {
	name, password := call.String(0), call.String(1)

	if _, ok := s.schema.CredentialOf(tx, call.Conn); ok {
		return nil, ErrAlreadyAuthenticated
	}
	acc, ok := s.schema.AccountName.Find(tx, name)
	if !ok {
		return nil, ErrNoSuchUser
	}
	cred, ok := s.schema.Credentials.Get(tx, acc.ID)
	if !ok {
		return nil, fmt.Errorf("account %d has no credential: %w", acc.ID, common.ErrorInternal)
	}
	if !checkPassword(cred, password) {
		return nil, ErrBadPassword
	}

	if err := s.bind(tx, acc, cred, call.Conn); err != nil {
		return nil, err
	}
	return acc.ID, nil
}

func (s *Service) logout(ctx context.Context, tx *store.Tx, call *engine.Call) (any, error) {
	cred, ok := s.schema.CredentialOf(tx, call.Conn)
	if !ok {
		return nil, ErrNotAuthenticated
	}
	return nil, s.unbind(tx, cred, call.Conn)
}

func (s *Service) setAvatar(ctx context.Context, tx *store.Tx, call *engine.Call) (any, error) {
	data := call.Bytes(0)

	acc, ok := s.schema.BoundAccount(tx, call.Conn)
	if !ok {
		return nil, ErrNotAuthenticated
	}
	if s.cfg.MaxAvatarBytes > 0 && len(data) > s.cfg.MaxAvatarBytes {
		return nil, ErrInvalidImage
	}
	img, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || img.Width != img.Height {
		return nil, ErrInvalidImage
	}

	acc.Avatar = bytes.Clone(data)
	if err := s.schema.Accounts.Update(tx, acc); err != nil {
		return nil, fmt.Errorf("updating avatar: %w", err)
	}
	return nil, nil
}

// onDisconnect removes the connection from the presence sets of the account
// it was bound to, if any. Upload abandonment is handled by the uploads
// service's own hook; both run inside the same transaction.
func (s *Service) onDisconnect(ctx context.Context, tx *store.Tx, conn engine.Conn) error {
	cred, ok := s.schema.CredentialOf(tx, conn)
	if !ok {
		return nil
	}
	return s.unbind(tx, cred, conn)
}

func (s *Service) bind(tx *store.Tx, acc models.Account, cred models.Credential, conn uuid.UUID) error {
	acc.Online = append(cloneUUIDs(acc.Online), conn)
	cred.Connections = append(cloneUUIDs(cred.Connections), conn)

	if err := s.schema.Accounts.Update(tx, acc); err != nil {
		return fmt.Errorf("binding account: %w", err)
	}
	if err := s.schema.Credentials.Update(tx, cred); err != nil {
		return fmt.Errorf("binding credential: %w", err)
	}
	return nil
}

func (s *Service) unbind(tx *store.Tx, cred models.Credential, conn uuid.UUID) error {
	acc, ok := s.schema.Accounts.Get(tx, cred.AccountID)
	if !ok {
		return fmt.Errorf("credential %d has no account: %w", cred.AccountID, common.ErrorInternal)
	}

	acc.Online = removeUUID(acc.Online, conn)
	cred.Connections = removeUUID(cred.Connections, conn)

	if err := s.schema.Accounts.Update(tx, acc); err != nil {
		return fmt.Errorf("unbinding account: %w", err)
	}
	if err := s.schema.Credentials.Update(tx, cred); err != nil {
		return fmt.Errorf("unbinding credential: %w", err)
	}
	return nil
}

func hashPassword(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
}

func checkPassword(cred models.Credential, candidate string) bool {
	return subtle.ConstantTimeCompare(cred.Hash, hashPassword(candidate, cred.Salt)) == 1
}

func randomSalt() []byte {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		panic(err)
	}
	return salt
}

func cloneUUIDs(in []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, len(in))
	copy(out, in)
	return out
}

func removeUUID(in []uuid.UUID, x uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(in))
	for _, v := range in {
		if v != x {
			out = append(out, v)
		}
	}
	return out
}
