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

// TargetEditService fans a target edit out to every observation whose
// asterism references it. Coordinate-bearing edits also invalidate the
// blind-offset entries.
type TargetEditService interface {
	CreateTarget(ctx context.Context, target *types.Target) (*types.Target, error)
	UpdateTarget(ctx context.Context, targetID uuid.UUID, updates map[string]interface{}) error
	DeleteTarget(ctx context.Context, targetID uuid.UUID) error
	GetTarget(ctx context.Context, targetID uuid.UUID) (*types.Target, error)
	ListTargets(ctx context.Context, programID uuid.UUID) ([]*types.Target, error)
}

type targetEditService struct {
	db       *gorm.DB
	log      *logger.Logger
	targets  repos.TargetRepo
	asterism repos.AsterismRepo
	obscalc  ObscalcService
	blind    BlindOffsetService
	notifier EditNotifier
}

func NewTargetEditService(
	db *gorm.DB,
	baseLog *logger.Logger,
	targets repos.TargetRepo,
	asterism repos.AsterismRepo,
	obscalc ObscalcService,
	blind BlindOffsetService,
	notifier EditNotifier,
) TargetEditService {
	return &targetEditService{
		db:       db,
		log:      baseLog.With("service", "TargetEditService"),
		targets:  targets,
		asterism: asterism,
		obscalc:  obscalc,
		blind:    blind,
		notifier: notifier,
	}
}

// Columns whose edit moves the target on the sky, and with it the blind
// offset.
var coordinateColumns = map[string]bool{
	"ra_uas":       true,
	"dec_uas":      true,
	"epoch":        true,
	"pm_ra_uas_y":  true,
	"pm_dec_uas_y": true,
	"rv_m_s":       true,
	"parallax_uas": true,
}

func (s *targetEditService) CreateTarget(ctx context.Context, target *types.Target) (*types.Target, error) {
	if target == nil || target.ProgramID == uuid.Nil {
		return nil, apperr.ValidationError("missing program id")
	}
	if target.Name == "" {
		return nil, apperr.ValidationError("missing target name")
	}
	target.Existence = types.ExistencePresent
	created, err := s.targets.Create(ctx, nil, target)
	if err != nil {
		return nil, apperr.Map(err)
	}
	if s.notifier != nil {
		s.notifier.TargetEdit(created.ProgramID, created.ID, "insert")
	}
	return created, nil
}

func (s *targetEditService) UpdateTarget(ctx context.Context, targetID uuid.UUID, updates map[string]interface{}) error {
	if targetID == uuid.Nil {
		return apperr.ValidationError("missing target id")
	}
	if len(updates) == 0 {
		return nil
	}
	coordinatesTouched := false
	for column := range updates {
		if coordinateColumns[column] {
			coordinatesTouched = true
			break
		}
	}
	var programID uuid.UUID
	err := s.db.Transaction(func(tx *gorm.DB) error {
		target, err := s.targets.GetByID(ctx, tx, targetID)
		if err != nil {
			return err
		}
		if target == nil || target.Existence != types.ExistencePresent {
			return apperr.NotFoundError(fmt.Sprintf("target %s", targetID))
		}
		programID = target.ProgramID
		if err := s.targets.UpdateFields(ctx, tx, targetID, updates); err != nil {
			return err
		}
		return s.invalidateReferencing(ctx, tx, targetID, coordinatesTouched)
	})
	if err != nil {
		return apperr.Map(err)
	}
	if s.notifier != nil {
		s.notifier.TargetEdit(programID, targetID, "update")
	}
	return nil
}

func (s *targetEditService) DeleteTarget(ctx context.Context, targetID uuid.UUID) error {
	if targetID == uuid.Nil {
		return apperr.ValidationError("missing target id")
	}
	var programID uuid.UUID
	err := s.db.Transaction(func(tx *gorm.DB) error {
		target, err := s.targets.GetByID(ctx, tx, targetID)
		if err != nil {
			return err
		}
		if target == nil || target.Existence != types.ExistencePresent {
			return apperr.NotFoundError(fmt.Sprintf("target %s", targetID))
		}
		programID = target.ProgramID
		if err := s.targets.SoftDelete(ctx, tx, targetID); err != nil {
			return err
		}
		return s.invalidateReferencing(ctx, tx, targetID, true)
	})
	if err != nil {
		return apperr.Map(err)
	}
	if s.notifier != nil {
		s.notifier.TargetEdit(programID, targetID, "delete")
	}
	return nil
}

func (s *targetEditService) invalidateReferencing(ctx context.Context, tx *gorm.DB, targetID uuid.UUID, coordinates bool) error {
	obsIDs, err := s.asterism.ListObservationIDs(ctx, tx, targetID)
	if err != nil {
		return err
	}
	for _, obsID := range obsIDs {
		if err := s.obscalc.Invalidate(ctx, tx, obsID); err != nil {
			return err
		}
		if coordinates {
			if err := s.blind.Invalidate(ctx, tx, obsID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *targetEditService) GetTarget(ctx context.Context, targetID uuid.UUID) (*types.Target, error) {
	target, err := s.targets.GetByID(ctx, nil, targetID)
	if err != nil {
		return nil, apperr.Map(err)
	}
	if target == nil || target.Existence != types.ExistencePresent {
		return nil, apperr.NotFoundError(fmt.Sprintf("target %s", targetID))
	}
	return target, nil
}

func (s *targetEditService) ListTargets(ctx context.Context, programID uuid.UUID) ([]*types.Target, error) {
	targets, err := s.targets.ListByProgram(ctx, nil, programID)
	if err != nil {
		return nil, apperr.Map(err)
	}
	return targets, nil
}
