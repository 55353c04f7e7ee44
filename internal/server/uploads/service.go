// Package uploads implements the chunked binary-transfer coordinator. Each
// connection owns at most one pending upload, moving through
// requested -> accumulating -> finished, and is then either folded into a
// File by send_message or abandoned on disconnect or a superseding request.
//
// The transfer is size-terminated: there is no explicit end-flag on the wire;
// an upload is finished exactly when the accumulated length reaches the
// declared size. Chunk arrival order on the connection is the authoritative
// accumulation order.
package uploads

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/chatcore/internal/common"
	"github.com/dmitrijs2005/chatcore/internal/logging"
	"github.com/dmitrijs2005/chatcore/internal/server/accounts"
	"github.com/dmitrijs2005/chatcore/internal/server/config"
	"github.com/dmitrijs2005/chatcore/internal/server/engine"
	"github.com/dmitrijs2005/chatcore/internal/server/models"
	"github.com/dmitrijs2005/chatcore/internal/server/schema"
	"github.com/dmitrijs2005/chatcore/internal/store"
)

const (
	ErrAlreadyInProgress     engine.ValidationError = "upload already in progress"
	ErrNoActiveUpload        engine.ValidationError = "no active upload"
	ErrUploadAlreadyFinished engine.ValidationError = "upload already finished"
	ErrUploadTooLarge        engine.ValidationError = "upload too large"
)

type Service struct {
	schema *schema.Schema
	cfg    *config.Config
	log    logging.Logger
}

func NewService(s *schema.Schema, cfg *config.Config, log logging.Logger) *Service {
	return &Service{schema: s, cfg: cfg, log: log}
}

func (s *Service) Register(e *engine.Engine) {
	e.Register(&engine.Command{
		Name:    "request_upload",
		Args:    []engine.ArgKind{engine.ArgString, engine.ArgInt64},
		Errors:  []engine.ValidationError{accounts.ErrNotAuthenticated, ErrAlreadyInProgress, ErrUploadTooLarge},
		Handler: s.requestUpload,
	})
	e.Register(&engine.Command{
		Name:    "send_chunk",
		Args:    []engine.ArgKind{engine.ArgBytes},
		Errors:  []engine.ValidationError{accounts.ErrNotAuthenticated, ErrNoActiveUpload, ErrUploadAlreadyFinished},
		Handler: s.sendChunk,
	})
	e.OnDisconnect(s.onDisconnect)
}

func (s *Service) requestUpload(ctx context.Context, tx *store.Tx, call *engine.Call) (any, error) {
	name, target := call.String(0), call.Int64(1)

	if _, ok := s.schema.CredentialOf(tx, call.Conn); !ok {
		return nil, accounts.ErrNotAuthenticated
	}
	if target < 0 {
		return nil, engine.ErrBadArguments
	}
	if s.cfg.MaxUploadBytes > 0 && target > s.cfg.MaxUploadBytes {
		return nil, ErrUploadTooLarge
	}

	if prev, ok := s.schema.Pending.Get(tx, call.Conn); ok {
		// A finished-but-unclaimed upload is superseded by the new request;
		// an upload still accumulating is not.
		if !prev.Finished {
			return nil, ErrAlreadyInProgress
		}
		if err := s.Abandon(tx, call.Conn); err != nil {
			return nil, err
		}
	}

	stagingID, err := s.schema.Stagings.Insert(tx, models.Staging{Name: name, Target: target})
	if err != nil {
		return nil, fmt.Errorf("inserting staging: %w", err)
	}
	if _, err := s.schema.Pending.Insert(tx, models.PendingUpload{
		Conn:      call.Conn,
		StagingID: stagingID,
		Target:    target,
		Finished:  target == 0,
	}); err != nil {
		return nil, fmt.Errorf("inserting pending upload: %w", err)
	}
	return stagingID, nil
}

func (s *Service) sendChunk(ctx context.Context, tx *store.Tx, call *engine.Call) (any, error) {
	chunk := call.Bytes(0)

	if _, ok := s.schema.CredentialOf(tx, call.Conn); !ok {
		return nil, accounts.ErrNotAuthenticated
	}
	pending, ok := s.schema.Pending.Get(tx, call.Conn)
	if !ok {
		return nil, ErrNoActiveUpload
	}
	if pending.Finished {
		return nil, ErrUploadAlreadyFinished
	}
	staging, ok := s.schema.Stagings.Get(tx, pending.StagingID)
	if !ok {
		return nil, fmt.Errorf("pending upload %s has no staging row: %w", call.Conn, common.ErrorInternal)
	}

	staging.Data = append(bytes.Clone(staging.Data), chunk...)
	if err := s.schema.Stagings.Update(tx, staging); err != nil {
		return nil, fmt.Errorf("appending chunk: %w", err)
	}

	if int64(len(staging.Data)) >= pending.Target {
		pending.Finished = true
		if err := s.schema.Pending.Update(tx, pending); err != nil {
			return nil, fmt.Errorf("finishing upload: %w", err)
		}
	}
	return nil, nil
}

// Finalize promotes the caller's finished upload into an immutable File and
// deletes the staging pair, all inside the caller's transaction. It reports
// ok=false when there is no finished upload to fold.
func (s *Service) Finalize(tx *store.Tx, conn uuid.UUID) (models.File, bool, error) {
	pending, ok := s.schema.Pending.Get(tx, conn)
	if !ok || !pending.Finished {
		return models.File{}, false, nil
	}
	staging, ok := s.schema.Stagings.Get(tx, pending.StagingID)
	if !ok {
		return models.File{}, false, fmt.Errorf("pending upload %s has no staging row: %w", conn, common.ErrorInternal)
	}

	id, err := s.schema.Files.Insert(tx, models.File{
		Name: staging.Name,
		Size: int64(len(staging.Data)),
		Data: bytes.Clone(staging.Data),
	})
	if err != nil {
		return models.File{}, false, fmt.Errorf("inserting file: %w", err)
	}
	if err := s.schema.Stagings.Delete(tx, staging.ID); err != nil {
		return models.File{}, false, fmt.Errorf("deleting staging: %w", err)
	}
	if err := s.schema.Pending.Delete(tx, conn); err != nil {
		return models.File{}, false, fmt.Errorf("deleting pending upload: %w", err)
	}

	file, ok := s.schema.Files.Get(tx, id)
	if !ok {
		return models.File{}, false, fmt.Errorf("file %d vanished after insert: %w", id, common.ErrorInternal)
	}
	return file, true, nil
}

// Abandon drops the connection's staging pair, if any. Called on disconnect
// and on a superseding request.
func (s *Service) Abandon(tx *store.Tx, conn uuid.UUID) error {
	pending, ok := s.schema.Pending.Get(tx, conn)
	if !ok {
		return nil
	}
	if err := s.schema.Stagings.Delete(tx, pending.StagingID); err != nil {
		return fmt.Errorf("abandoning staging: %w", err)
	}
	if err := s.schema.Pending.Delete(tx, conn); err != nil {
		return fmt.Errorf("abandoning pending upload: %w", err)
	}
	return nil
}

func (s *Service) onDisconnect(ctx context.Context, tx *store.Tx, conn engine.Conn) error {
	return s.Abandon(tx, conn)
}
