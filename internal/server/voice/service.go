// Package voice implements voice-room membership and packet commands. Voice
// packets are write-once rows replicated only to members of their room; they
// are never updated and clients discard them after playback.
package voice

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/chatcore/internal/logging"
	"github.com/dmitrijs2005/chatcore/internal/server/accounts"
	"github.com/dmitrijs2005/chatcore/internal/server/engine"
	"github.com/dmitrijs2005/chatcore/internal/server/models"
	"github.com/dmitrijs2005/chatcore/internal/server/schema"
	"github.com/dmitrijs2005/chatcore/internal/store"
)

const (
	ErrNotInRoom     engine.ValidationError = "not in a voice room"
	ErrAlreadyInRoom engine.ValidationError = "already in a voice room"
	ErrRoomNotFound  engine.ValidationError = "voice room not found"
)

type Service struct {
	schema *schema.Schema
	log    logging.Logger
}

func NewService(s *schema.Schema, log logging.Logger) *Service {
	return &Service{schema: s, log: log}
}

func (s *Service) Register(e *engine.Engine) {
	e.Register(&engine.Command{
		Name:    "join_voice",
		Args:    []engine.ArgKind{engine.ArgOptUint32},
		Errors:  []engine.ValidationError{accounts.ErrNotAuthenticated, ErrAlreadyInRoom, ErrRoomNotFound},
		Handler: s.join,
	})
	e.Register(&engine.Command{
		Name:    "leave_voice",
		Errors:  []engine.ValidationError{accounts.ErrNotAuthenticated, ErrNotInRoom},
		Handler: s.leave,
	})
	e.Register(&engine.Command{
		Name:    "send_voice_packet",
		Args:    []engine.ArgKind{engine.ArgBytes},
		Errors:  []engine.ValidationError{accounts.ErrNotAuthenticated, ErrNotInRoom},
		Handler: s.sendPacket,
	})
	e.OnDisconnect(s.onDisconnect)
}

// join adds the caller's account to a room. With no room argument a new room
// is created; with one, the caller joins the existing room.
func (s *Service) join(ctx context.Context, tx *store.Tx, call *engine.Call) (any, error) {
	acc, ok := s.schema.BoundAccount(tx, call.Conn)
	if !ok {
		return nil, accounts.ErrNotAuthenticated
	}
	if _, ok := s.schema.RoomOf(tx, acc.ID); ok {
		return nil, ErrAlreadyInRoom
	}

	if roomID, ok := call.OptUint32(0); ok {
		room, ok := s.schema.VoiceRooms.Get(tx, roomID)
		if !ok {
			return nil, ErrRoomNotFound
		}
		room.Members = append(cloneMembers(room.Members), acc.ID)
		if err := s.schema.VoiceRooms.Update(tx, room); err != nil {
			return nil, fmt.Errorf("joining voice room: %w", err)
		}
		return roomID, nil
	}

	id, err := s.schema.VoiceRooms.Insert(tx, models.VoiceRoom{Members: []uint32{acc.ID}})
	if err != nil {
		return nil, fmt.Errorf("creating voice room: %w", err)
	}
	return id, nil
}

func (s *Service) leave(ctx context.Context, tx *store.Tx, call *engine.Call) (any, error) {
	acc, ok := s.schema.BoundAccount(tx, call.Conn)
	if !ok {
		return nil, accounts.ErrNotAuthenticated
	}
	room, ok := s.schema.RoomOf(tx, acc.ID)
	if !ok {
		return nil, ErrNotInRoom
	}
	return nil, s.removeMember(tx, room, acc.ID)
}

func (s *Service) sendPacket(ctx context.Context, tx *store.Tx, call *engine.Call) (any, error) {
	samples := call.Bytes(0)

	acc, ok := s.schema.BoundAccount(tx, call.Conn)
	if !ok {
		return nil, accounts.ErrNotAuthenticated
	}
	room, ok := s.schema.RoomOf(tx, acc.ID)
	if !ok {
		return nil, ErrNotInRoom
	}

	id, err := s.schema.VoicePkts.Insert(tx, models.VoicePacket{
		Room:    room.ID,
		Sender:  acc.ID,
		Samples: samples,
	})
	if err != nil {
		return nil, fmt.Errorf("inserting voice packet: %w", err)
	}
	return id, nil
}

// onDisconnect drops accounts from their rooms once they have no live
// connections left. The accounts hook runs first in the same transaction, so
// the disconnecting connection is already unbound here.
func (s *Service) onDisconnect(ctx context.Context, tx *store.Tx, conn engine.Conn) error {
	type stale struct {
		room   models.VoiceRoom
		member uint32
	}
	var out []stale
	s.schema.VoiceRooms.Iter(tx, func(r models.VoiceRoom) bool {
		for _, m := range r.Members {
			acc, ok := s.schema.Accounts.Get(tx, m)
			if !ok || len(acc.Online) == 0 {
				out = append(out, stale{room: r, member: m})
			}
		}
		return true
	})
	for _, st := range out {
		room, ok := s.schema.VoiceRooms.Get(tx, st.room.ID)
		if !ok {
			continue
		}
		if err := s.removeMember(tx, room, st.member); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) removeMember(tx *store.Tx, room models.VoiceRoom, account uint32) error {
	members := make([]uint32, 0, len(room.Members))
	for _, m := range room.Members {
		if m != account {
			members = append(members, m)
		}
	}

	// Last member out deletes the room.
	if len(members) == 0 {
		if err := s.schema.VoiceRooms.Delete(tx, room.ID); err != nil {
			return fmt.Errorf("deleting voice room: %w", err)
		}
		return nil
	}
	room.Members = members
	if err := s.schema.VoiceRooms.Update(tx, room); err != nil {
		return fmt.Errorf("leaving voice room: %w", err)
	}
	return nil
}

func cloneMembers(in []uint32) []uint32 {
	out := make([]uint32, len(in))
	copy(out, in)
	return out
}
