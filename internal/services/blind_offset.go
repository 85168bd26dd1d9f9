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

// BlindOffsetService is the second instance of the invalidation protocol,
// keyed off target-coordinate and asterism-base edits. Same transitions as
// ObscalcService, smaller payload.
type BlindOffsetService interface {
	Invalidate(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) error
	Claim(ctx context.Context) (*types.BlindOffset, error)
	CompleteSuccess(ctx context.Context, observationID uuid.UUID, claimedInvalidation time.Time, offset datatypes.JSON) error
	Fail(ctx context.Context, observationID uuid.UUID, claimedInvalidation time.Time, detail string) error
	Get(ctx context.Context, observationID uuid.UUID) (*types.BlindOffset, error)
	DeleteEntry(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) error
}

type blindOffsetService struct {
	db       *gorm.DB
	log      *logger.Logger
	entries  repos.BlindOffsetRepo
	obs      repos.ObservationRepo
	backoff  BackoffSchedule
	notifier CalcNotifier
}

func NewBlindOffsetService(
	db *gorm.DB,
	baseLog *logger.Logger,
	entries repos.BlindOffsetRepo,
	obs repos.ObservationRepo,
	backoff BackoffSchedule,
	notifier CalcNotifier,
) BlindOffsetService {
	return &blindOffsetService{
		db:       db,
		log:      baseLog.With("service", "BlindOffsetService"),
		entries:  entries,
		obs:      obs,
		backoff:  backoff,
		notifier: notifier,
	}
}

func (s *blindOffsetService) Invalidate(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) error {
	if observationID == uuid.Nil {
		return apperr.ValidationError("missing observation id")
	}
	run := func(txx *gorm.DB) error {
		return s.invalidate(ctx, txx, observationID)
	}
	var err error
	source := "api"
	if tx != nil {
		source = "edit"
		err = run(tx)
	} else {
		err = s.db.Transaction(run)
	}
	if err == nil {
		observability.Current().IncInvalidation("blind_offset", source)
	}
	return apperr.Map(err)
}

func (s *blindOffsetService) invalidate(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) error {
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
		created := &types.BlindOffset{
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

func (s *blindOffsetService) Claim(ctx context.Context) (*types.BlindOffset, error) {
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

func (s *blindOffsetService) CompleteSuccess(ctx context.Context, observationID uuid.UUID, claimedInvalidation time.Time, offset datatypes.JSON) error {
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
			return apperr.NotFoundError(fmt.Sprintf("blind-offset entry for observation %s", observationID))
		}
		programID = entry.ProgramID
		oldState = entry.State
		if entry.LastInvalidation.Equal(claimedInvalidation) {
			newState = types.CalcStateReady
		} else {
			newState = types.CalcStatePending
		}
		return s.entries.UpdateFields(ctx, tx, observationID, map[string]interface{}{
			"state":         newState,
			"offset":        offset,
			"odb_error":     nil,
			"last_update":   time.Now(),
			"failure_count": 0,
			"retry_at":      nil,
		})
	})
	if err != nil {
		return apperr.Map(err)
	}
	s.notify(programID, observationID, oldState, newState, "complete")
	return nil
}

func (s *blindOffsetService) Fail(ctx context.Context, observationID uuid.UUID, claimedInvalidation time.Time, detail string) error {
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
			return apperr.NotFoundError(fmt.Sprintf("blind-offset entry for observation %s", observationID))
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
	s.log.Warn("blind-offset computation failed, scheduling retry", "observation_id", observationID, "detail", detail)
	s.notify(programID, observationID, oldState, newState, "fail")
	return nil
}

func (s *blindOffsetService) Get(ctx context.Context, observationID uuid.UUID) (*types.BlindOffset, error) {
	entry, err := s.entries.Get(ctx, nil, observationID)
	if err != nil {
		return nil, apperr.Map(err)
	}
	return entry, nil
}

func (s *blindOffsetService) DeleteEntry(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) error {
	return apperr.Map(s.entries.Delete(ctx, tx, observationID))
}

func (s *blindOffsetService) notify(programID, observationID uuid.UUID, oldState, newState types.CalcState, op string) {
	if s.notifier == nil {
		return
	}
	s.notifier.BlindOffsetStateChanged(programID, observationID, oldState, newState, op)
}
