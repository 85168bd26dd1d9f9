package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/orionsky/obsdb-backend/internal/apperr"
	"github.com/orionsky/obsdb-backend/internal/logger"
	"github.com/orionsky/obsdb-backend/internal/observability"
	"github.com/orionsky/obsdb-backend/internal/repos"
	"github.com/orionsky/obsdb-backend/internal/types"
)

// ObscalcResult is the payload a worker writes on completion.
type ObscalcResult struct {
	ItcResult       datatypes.JSON
	ExecutionDigest datatypes.JSON
}

// ObscalcService runs the invalidation / claim / completion protocol for the
// derived observation calculations.
//
// Invalidate is called from every mutation path that changes an
// observation's computed inputs. It serializes on the entry row lock, so two
// concurrent invalidations (or an invalidation racing a completion) resolve
// one after the other. A calculating entry is never redirected mid-flight:
// only its last_invalidation moves, which the completion write then notices.
type ObscalcService interface {
	Invalidate(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) error
	Claim(ctx context.Context) (*types.Obscalc, error)
	CompleteSuccess(ctx context.Context, observationID uuid.UUID, claimedInvalidation time.Time, result *ObscalcResult) error
	CompleteError(ctx context.Context, observationID uuid.UUID, claimedInvalidation time.Time, odbError datatypes.JSON) error
	Fail(ctx context.Context, observationID uuid.UUID, claimedInvalidation time.Time, detail string) error
	Get(ctx context.Context, observationID uuid.UUID) (*types.Obscalc, error)
	ListByProgram(ctx context.Context, programID uuid.UUID) ([]*types.Obscalc, error)
	DeleteEntry(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) error
}

type obscalcService struct {
	db       *gorm.DB
	log      *logger.Logger
	entries  repos.ObscalcRepo
	obs      repos.ObservationRepo
	backoff  BackoffSchedule
	notifier CalcNotifier
}

func NewObscalcService(
	db *gorm.DB,
	baseLog *logger.Logger,
	entries repos.ObscalcRepo,
	obs repos.ObservationRepo,
	backoff BackoffSchedule,
	notifier CalcNotifier,
) ObscalcService {
	return &obscalcService{
		db:       db,
		log:      baseLog.With("service", "ObscalcService"),
		entries:  entries,
		obs:      obs,
		backoff:  backoff,
		notifier: notifier,
	}
}

func (s *obscalcService) Invalidate(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) error {
	if observationID == uuid.Nil {
		return apperr.ValidationError("missing observation id")
	}
	run := func(txx *gorm.DB) error {
		return s.invalidate(ctx, txx, observationID)
	}
	var err error
	source := "api"
	if tx != nil {
		// Called from inside an edit transaction.
		source = "edit"
		err = run(tx)
	} else {
		err = s.db.Transaction(run)
	}
	if err == nil {
		observability.Current().IncInvalidation("obscalc", source)
	}
	return apperr.Map(err)
}

func (s *obscalcService) invalidate(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) error {
	now := time.Now()
	entry, err := s.entries.LockByID(ctx, tx, observationID)
	if err != nil {
		return err
	}
	if entry == nil {
		obs, err := s.obs.GetByID(ctx, tx, observationID)
		if err != nil {
			return err
		}
		if obs == nil {
			return apperr.NotFoundError(fmt.Sprintf("observation %s", observationID))
		}
		created := &types.Obscalc{
			ObservationID:    observationID,
			ProgramID:        obs.ProgramID,
			State:            types.CalcStatePending,
			LastInvalidation: now,
			LastUpdate:       now,
		}
		if _, err := s.entries.Create(ctx, tx, created); err != nil {
			return err
		}
		s.notify(created.ProgramID, observationID, "", types.CalcStatePending, "invalidate")
		return nil
	}

	updates := map[string]interface{}{
		"last_invalidation": now,
		"failure_count":     0,
		"retry_at":          nil,
	}
	newState := entry.State
	if entry.State != types.CalcStateCalculating {
		// A calculating entry keeps its state; the worker's completion
		// write will see the newer last_invalidation and requeue.
		updates["state"] = types.CalcStatePending
		newState = types.CalcStatePending
	}
	if err := s.entries.UpdateFields(ctx, tx, observationID, updates); err != nil {
		return err
	}
	if newState != entry.State {
		s.notify(entry.ProgramID, observationID, entry.State, newState, "invalidate")
	}
	return nil
}

func (s *obscalcService) Claim(ctx context.Context) (*types.Obscalc, error) {
	entry, err := s.entries.ClaimNext(ctx, nil, time.Now())
	if err != nil {
		return nil, apperr.Map(err)
	}
	if entry == nil {
		return nil, nil
	}
	// failure_count survives the claim and is nonzero only for rows that
	// were sitting in retry.
	oldState := types.CalcStatePending
	if entry.FailureCount > 0 {
		oldState = types.CalcStateRetry
	}
	s.notify(entry.ProgramID, entry.ObservationID, oldState, types.CalcStateCalculating, "claim")
	return entry, nil
}

func (s *obscalcService) CompleteSuccess(ctx context.Context, observationID uuid.UUID, claimedInvalidation time.Time, result *ObscalcResult) error {
	if result == nil {
		return apperr.ValidationError("missing result payload")
	}
	updates := map[string]interface{}{
		"itc_result":       result.ItcResult,
		"execution_digest": result.ExecutionDigest,
		"odb_error":        nil,
	}
	return s.complete(ctx, observationID, claimedInvalidation, updates, "complete")
}

// CompleteError stores the unrecoverable error as data. Errors are not a
// terminal state: the entry goes back to ready (or pending when edited
// mid-computation) with the odb_error payload attached.
func (s *obscalcService) CompleteError(ctx context.Context, observationID uuid.UUID, claimedInvalidation time.Time, odbError datatypes.JSON) error {
	updates := map[string]interface{}{
		"odb_error": odbError,
	}
	return s.complete(ctx, observationID, claimedInvalidation, updates, "complete_error")
}

func (s *obscalcService) complete(ctx context.Context, observationID uuid.UUID, claimedInvalidation time.Time, updates map[string]interface{}, op string) error {
	if observationID == uuid.Nil {
		return apperr.ValidationError("missing observation id")
	}
	var programID uuid.UUID
	var oldState, newState types.CalcState
	err := s.db.Transaction(func(tx *gorm.DB) error {
		entry, err := s.entries.LockByID(ctx, tx, observationID)
		if err != nil {
			return err
		}
		if entry == nil {
			return apperr.NotFoundError(fmt.Sprintf("obscalc entry for observation %s", observationID))
		}
		programID = entry.ProgramID
		oldState = entry.State
		// The staleness comparison: inputs edited since the claim mean
		// the payload no longer reflects them, so the entry goes back
		// on the queue. The payload is stored either way.
		if entry.LastInvalidation.Equal(claimedInvalidation) {
			newState = types.CalcStateReady
		} else {
			newState = types.CalcStatePending
		}
		updates["state"] = newState
		updates["last_update"] = time.Now()
		updates["failure_count"] = 0
		updates["retry_at"] = nil
		return s.entries.UpdateFields(ctx, tx, observationID, updates)
	})
	if err != nil {
		return apperr.Map(err)
	}
	s.notify(programID, observationID, oldState, newState, op)
	return nil
}

// Fail handles a recoverable computation failure: back off and retry. If the
// observation was edited while we computed, the failure is moot and the
// entry goes straight back to pending.
func (s *obscalcService) Fail(ctx context.Context, observationID uuid.UUID, claimedInvalidation time.Time, detail string) error {
	if observationID == uuid.Nil {
		return apperr.ValidationError("missing observation id")
	}
	var programID uuid.UUID
	var oldState, newState types.CalcState
	err := s.db.Transaction(func(tx *gorm.DB) error {
		entry, err := s.entries.LockByID(ctx, tx, observationID)
		if err != nil {
			return err
		}
		if entry == nil {
			return apperr.NotFoundError(fmt.Sprintf("obscalc entry for observation %s", observationID))
		}
		programID = entry.ProgramID
		oldState = entry.State
		updates := map[string]interface{}{
			"last_update": time.Now(),
		}
		if !entry.LastInvalidation.Equal(claimedInvalidation) {
			newState = types.CalcStatePending
			updates["state"] = newState
			updates["failure_count"] = 0
			updates["retry_at"] = nil
		} else {
			failures := entry.FailureCount + 1
			newState = types.CalcStateRetry
			updates["state"] = newState
			updates["failure_count"] = failures
			updates["retry_at"] = time.Now().Add(s.backoff.Delay(failures))
		}
		return s.entries.UpdateFields(ctx, tx, observationID, updates)
	})
	if err != nil {
		return apperr.Map(err)
	}
	s.log.Warn("obscalc computation failed, scheduling retry", "observation_id", observationID, "detail", detail)
	s.notify(programID, observationID, oldState, newState, "fail")
	return nil
}

func (s *obscalcService) Get(ctx context.Context, observationID uuid.UUID) (*types.Obscalc, error) {
	entry, err := s.entries.Get(ctx, nil, observationID)
	if err != nil {
		return nil, apperr.Map(err)
	}
	return entry, nil
}

func (s *obscalcService) ListByProgram(ctx context.Context, programID uuid.UUID) ([]*types.Obscalc, error) {
	entries, err := s.entries.ListByProgram(ctx, nil, programID)
	if err != nil {
		return nil, apperr.Map(err)
	}
	return entries, nil
}

func (s *obscalcService) DeleteEntry(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) error {
	return apperr.Map(s.entries.Delete(ctx, tx, observationID))
}

func (s *obscalcService) notify(programID, observationID uuid.UUID, oldState, newState types.CalcState, op string) {
	if s.notifier == nil {
		return
	}
	s.notifier.ObscalcStateChanged(programID, observationID, oldState, newState, op)
}
