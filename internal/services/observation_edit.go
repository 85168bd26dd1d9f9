package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/orionsky/obsdb-backend/internal/apperr"
	"github.com/orionsky/obsdb-backend/internal/logger"
	"github.com/orionsky/obsdb-backend/internal/repos"
	"github.com/orionsky/obsdb-backend/internal/types"
)

// ObservationEditService is the fan-in point for "observation inputs
// changed". Every mutation path below updates its rows and calls the calc
// invalidations inside the same transaction, so the dirty mark commits (or
// rolls back) together with the edit itself.
type ObservationEditService interface {
	UpdateObservation(ctx context.Context, observationID uuid.UUID, updates map[string]interface{}) error
	SetGmosLongSlit(ctx context.Context, mode *types.GmosLongSlit) error
	UpdateGmosLongSlit(ctx context.Context, observationID uuid.UUID, updates map[string]interface{}) error
	AddAsterismTarget(ctx context.Context, observationID, targetID uuid.UUID) error
	RemoveAsterismTarget(ctx context.Context, observationID, targetID uuid.UUID) error
	GetObservation(ctx context.Context, observationID uuid.UUID) (*types.Observation, error)
	ListAsterism(ctx context.Context, observationID uuid.UUID) ([]*types.Target, error)
}

type observationEditService struct {
	db       *gorm.DB
	log      *logger.Logger
	obs      repos.ObservationRepo
	targets  repos.TargetRepo
	asterism repos.AsterismRepo
	gmos     repos.GmosLongSlitRepo
	obscalc  ObscalcService
	blind    BlindOffsetService
	notifier EditNotifier
}

func NewObservationEditService(
	db *gorm.DB,
	baseLog *logger.Logger,
	obs repos.ObservationRepo,
	targets repos.TargetRepo,
	asterism repos.AsterismRepo,
	gmos repos.GmosLongSlitRepo,
	obscalc ObscalcService,
	blind BlindOffsetService,
	notifier EditNotifier,
) ObservationEditService {
	return &observationEditService{
		db:       db,
		log:      baseLog.With("service", "ObservationEditService"),
		obs:      obs,
		targets:  targets,
		asterism: asterism,
		gmos:     gmos,
		obscalc:  obscalc,
		blind:    blind,
		notifier: notifier,
	}
}

// Structural columns move through GroupTreeService only; an edit here must
// not bypass the hole open/close discipline.
var structuralObservationColumns = map[string]bool{
	"group_id":    true,
	"group_index": true,
	"existence":   true,
}

func (s *observationEditService) UpdateObservation(ctx context.Context, observationID uuid.UUID, updates map[string]interface{}) error {
	if observationID == uuid.Nil {
		return apperr.ValidationError("missing observation id")
	}
	if len(updates) == 0 {
		return nil
	}
	for column := range updates {
		if structuralObservationColumns[column] {
			return apperr.ValidationError(fmt.Sprintf("column %s is structural; use the tree operations", column))
		}
	}
	var programID uuid.UUID
	err := s.db.Transaction(func(tx *gorm.DB) error {
		obs, err := s.obs.LockByID(ctx, tx, observationID)
		if err != nil {
			return err
		}
		if obs == nil || obs.Existence != types.ExistencePresent {
			return apperr.NotFoundError(fmt.Sprintf("observation %s", observationID))
		}
		programID = obs.ProgramID
		if err := s.obs.UpdateFields(ctx, tx, observationID, updates); err != nil {
			return err
		}
		return s.obscalc.Invalidate(ctx, tx, observationID)
	})
	if err != nil {
		return apperr.Map(err)
	}
	if s.notifier != nil {
		s.notifier.ObservationEdit(programID, observationID, "update")
	}
	return nil
}

func (s *observationEditService) SetGmosLongSlit(ctx context.Context, mode *types.GmosLongSlit) error {
	if mode == nil || mode.ObservationID == uuid.Nil {
		return apperr.ValidationError("missing observation id")
	}
	var programID uuid.UUID
	err := s.db.Transaction(func(tx *gorm.DB) error {
		obs, err := s.obs.GetByID(ctx, tx, mode.ObservationID)
		if err != nil {
			return err
		}
		if obs == nil || obs.Existence != types.ExistencePresent {
			return apperr.NotFoundError(fmt.Sprintf("observation %s", mode.ObservationID))
		}
		programID = obs.ProgramID
		if err := s.gmos.Upsert(ctx, tx, mode); err != nil {
			return err
		}
		return s.obscalc.Invalidate(ctx, tx, mode.ObservationID)
	})
	if err != nil {
		return apperr.Map(err)
	}
	if s.notifier != nil {
		s.notifier.ObservationEdit(programID, mode.ObservationID, "mode_update")
	}
	return nil
}

func (s *observationEditService) UpdateGmosLongSlit(ctx context.Context, observationID uuid.UUID, updates map[string]interface{}) error {
	if observationID == uuid.Nil {
		return apperr.ValidationError("missing observation id")
	}
	if len(updates) == 0 {
		return nil
	}
	var programID uuid.UUID
	err := s.db.Transaction(func(tx *gorm.DB) error {
		obs, err := s.obs.GetByID(ctx, tx, observationID)
		if err != nil {
			return err
		}
		if obs == nil || obs.Existence != types.ExistencePresent {
			return apperr.NotFoundError(fmt.Sprintf("observation %s", observationID))
		}
		programID = obs.ProgramID
		mode, err := s.gmos.GetByObservation(ctx, tx, observationID)
		if err != nil {
			return err
		}
		if mode == nil {
			return apperr.NotFoundError(fmt.Sprintf("long-slit mode for observation %s", observationID))
		}
		if err := s.gmos.UpdateFields(ctx, tx, observationID, updates); err != nil {
			return err
		}
		return s.obscalc.Invalidate(ctx, tx, observationID)
	})
	if err != nil {
		return apperr.Map(err)
	}
	if s.notifier != nil {
		s.notifier.ObservationEdit(programID, observationID, "mode_update")
	}
	return nil
}

// Asterism membership feeds both machines: the target list changes the ITC
// inputs, and the asterism base changes the blind offset.
func (s *observationEditService) AddAsterismTarget(ctx context.Context, observationID, targetID uuid.UUID) error {
	return s.editAsterism(ctx, observationID, targetID, "asterism_add", func(tx *gorm.DB) error {
		return s.asterism.Add(ctx, tx, observationID, targetID)
	})
}

func (s *observationEditService) RemoveAsterismTarget(ctx context.Context, observationID, targetID uuid.UUID) error {
	return s.editAsterism(ctx, observationID, targetID, "asterism_remove", func(tx *gorm.DB) error {
		return s.asterism.Remove(ctx, tx, observationID, targetID)
	})
}

func (s *observationEditService) editAsterism(ctx context.Context, observationID, targetID uuid.UUID, op string, mutate func(tx *gorm.DB) error) error {
	if observationID == uuid.Nil || targetID == uuid.Nil {
		return apperr.ValidationError("missing observation or target id")
	}
	var programID uuid.UUID
	err := s.db.Transaction(func(tx *gorm.DB) error {
		obs, err := s.obs.GetByID(ctx, tx, observationID)
		if err != nil {
			return err
		}
		if obs == nil || obs.Existence != types.ExistencePresent {
			return apperr.NotFoundError(fmt.Sprintf("observation %s", observationID))
		}
		programID = obs.ProgramID
		target, err := s.targets.GetByID(ctx, tx, targetID)
		if err != nil {
			return err
		}
		if target == nil || target.ProgramID != obs.ProgramID {
			return apperr.NotFoundError(fmt.Sprintf("target %s", targetID))
		}
		if err := mutate(tx); err != nil {
			return err
		}
		if err := s.obscalc.Invalidate(ctx, tx, observationID); err != nil {
			return err
		}
		return s.blind.Invalidate(ctx, tx, observationID)
	})
	if err != nil {
		return apperr.Map(err)
	}
	if s.notifier != nil {
		s.notifier.ObservationEdit(programID, observationID, op)
	}
	return nil
}

func (s *observationEditService) GetObservation(ctx context.Context, observationID uuid.UUID) (*types.Observation, error) {
	obs, err := s.obs.GetByID(ctx, nil, observationID)
	if err != nil {
		return nil, apperr.Map(err)
	}
	if obs == nil || obs.Existence != types.ExistencePresent {
		return nil, apperr.NotFoundError(fmt.Sprintf("observation %s", observationID))
	}
	return obs, nil
}

func (s *observationEditService) ListAsterism(ctx context.Context, observationID uuid.UUID) ([]*types.Target, error) {
	ids, err := s.asterism.ListTargetIDs(ctx, nil, observationID)
	if err != nil {
		return nil, apperr.Map(err)
	}
	targets, err := s.targets.GetByIDs(ctx, nil, ids)
	if err != nil {
		return nil, apperr.Map(err)
	}
	return targets, nil
}
