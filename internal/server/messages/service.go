// Package messages implements the message command handlers: send_message,
// edit_message, remove_message. Sending folds the caller's finished upload
// (if any) into a File inside the same transaction, so the File row and the
// Message row referencing it commit together.
package messages

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/chatcore/internal/common"
	"github.com/dmitrijs2005/chatcore/internal/logging"
	"github.com/dmitrijs2005/chatcore/internal/server/accounts"
	"github.com/dmitrijs2005/chatcore/internal/server/engine"
	"github.com/dmitrijs2005/chatcore/internal/server/models"
	"github.com/dmitrijs2005/chatcore/internal/server/schema"
	"github.com/dmitrijs2005/chatcore/internal/server/uploads"
	"github.com/dmitrijs2005/chatcore/internal/store"
)

const (
	ErrEmptyMessage     engine.ValidationError = "empty message"
	ErrMessageNotFound  engine.ValidationError = "message not found"
	ErrPermissionDenied engine.ValidationError = "permission denied"
)

type Service struct {
	schema  *schema.Schema
	uploads *uploads.Service
	log     logging.Logger

	// now returns the current time in Unix milliseconds. Test seam.
	now func() int64
}

func NewService(s *schema.Schema, up *uploads.Service, log logging.Logger) *Service {
	return &Service{
		schema:  s,
		uploads: up,
		log:     log,
		now:     func() int64 { return time.Now().UnixMilli() },
	}
}

func (s *Service) Register(e *engine.Engine) {
	e.Register(&engine.Command{
		Name:    "send_message",
		Args:    []engine.ArgKind{engine.ArgString, engine.ArgOptUint32},
		Errors:  []engine.ValidationError{accounts.ErrNotAuthenticated, ErrEmptyMessage},
		Handler: s.sendMessage,
	})
	e.Register(&engine.Command{
		Name:    "edit_message",
		Args:    []engine.ArgKind{engine.ArgUint32, engine.ArgString},
		Errors:  []engine.ValidationError{accounts.ErrNotAuthenticated, ErrMessageNotFound, ErrPermissionDenied},
		Handler: s.editMessage,
	})
	e.Register(&engine.Command{
		Name:    "remove_message",
		Args:    []engine.ArgKind{engine.ArgUint32},
		Errors:  []engine.ValidationError{accounts.ErrNotAuthenticated, ErrMessageNotFound, ErrPermissionDenied},
		Handler: s.removeMessage,
	})
}

func (s *Service) sendMessage(ctx context.Context, tx *store.Tx, call *engine.Call) (any, error) {
	text := strings.TrimSpace(call.String(0))
	reply, _ := call.OptUint32(1)

	acc, ok := s.schema.BoundAccount(tx, call.Conn)
	if !ok {
		return nil, accounts.ErrNotAuthenticated
	}

	file, haveFile, err := s.uploads.Finalize(tx, call.Conn)
	if err != nil {
		return nil, err
	}
	if text == "" && !haveFile {
		return nil, ErrEmptyMessage
	}

	// The reply target is stored as a bare id: it may reference a message
	// deleted since the client composed the reply, and that is fine.
	id, err := s.schema.Messages.Insert(tx, models.Message{
		Sender:  acc.ID,
		ReplyTo: reply,
		Sent:    s.now(),
		Text:    text,
		FileID:  file.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}
	return id, nil
}

func (s *Service) editMessage(ctx context.Context, tx *store.Tx, call *engine.Call) (any, error) {
	id, text := call.Uint32(0), call.String(1)

	acc, ok := s.schema.BoundAccount(tx, call.Conn)
	if !ok {
		return nil, accounts.ErrNotAuthenticated
	}
	msg, ok := s.schema.Messages.Get(tx, id)
	if !ok {
		return nil, ErrMessageNotFound
	}
	if msg.Sender != acc.ID {
		return nil, ErrPermissionDenied
	}
	if msg.Text == text {
		return nil, nil
	}

	msg.Text = text
	msg.Edited = s.now()
	if err := s.schema.Messages.Update(tx, msg); err != nil {
		return nil, fmt.Errorf("editing message: %w", err)
	}
	return nil, nil
}

func (s *Service) removeMessage(ctx context.Context, tx *store.Tx, call *engine.Call) (any, error) {
	id := call.Uint32(0)

	acc, ok := s.schema.BoundAccount(tx, call.Conn)
	if !ok {
		return nil, accounts.ErrNotAuthenticated
	}
	msg, ok := s.schema.Messages.Get(tx, id)
	if !ok {
		return nil, ErrMessageNotFound
	}
	if msg.Sender != acc.ID && !acc.Admin {
		return nil, ErrPermissionDenied
	}

	if err := s.schema.Messages.Delete(tx, id); err != nil {
		return nil, fmt.Errorf("deleting message: %w", err)
	}
	if msg.FileID != 0 {
		if _, ok := s.schema.Files.Get(tx, msg.FileID); !ok {
			return nil, fmt.Errorf("message %d references missing file %d: %w", id, msg.FileID, common.ErrorInternal)
		}
		if err := s.schema.Files.Delete(tx, msg.FileID); err != nil {
			return nil, fmt.Errorf("deleting attached file: %w", err)
		}
	}
	return nil, nil
}

// List returns messages sorted by sent time, clamped to [start, end).
func (s *Service) List(tx *store.Tx, start, end int) []models.Message {
	all := make([]models.Message, 0, s.schema.Messages.Len(tx))
	s.schema.Messages.Iter(tx, func(m models.Message) bool {
		all = append(all, m)
		return true
	})
	// Sort on (sent, id) so messages sharing a millisecond keep insert order.
	sort.Slice(all, func(i, j int) bool {
		if all[i].Sent != all[j].Sent {
			return all[i].Sent < all[j].Sent
		}
		return all[i].ID < all[j].ID
	})

	if end > len(all) {
		end = len(all)
	}
	if start > end {
		start = end
	}
	if start < 0 {
		start = 0
	}
	return all[start:end]
}
