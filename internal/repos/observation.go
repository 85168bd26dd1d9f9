package repos

import (
	"context"
	"errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"github.com/orionsky/obsdb-backend/internal/logger"
	"github.com/orionsky/obsdb-backend/internal/types"
)

// ObservationRepo owns the observation half of the sibling index space.
// Soft-deleted rows (existence = deleted) do not occupy index slots.
type ObservationRepo interface {
	Create(ctx context.Context, tx *gorm.DB, obs *types.Observation) (*types.Observation, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Observation, error)
	LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Observation, error)
	ListByProgram(ctx context.Context, tx *gorm.DB, programID uuid.UUID) ([]*types.Observation, error)
	ListBucket(ctx context.Context, tx *gorm.DB, programID uuid.UUID, groupID *uuid.UUID) ([]*types.Observation, error)
	ListIDsByTarget(ctx context.Context, tx *gorm.DB, targetID uuid.UUID) ([]uuid.UUID, error)
	MaxIndex(ctx context.Context, tx *gorm.DB, programID uuid.UUID, groupID *uuid.UUID) (int16, bool, error)
	ShiftIndices(ctx context.Context, tx *gorm.DB, programID uuid.UUID, groupID *uuid.UUID, from int16, delta int16) error
	SetPosition(ctx context.Context, tx *gorm.DB, id uuid.UUID, groupID *uuid.UUID, index int16) error
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	CountInGroup(ctx context.Context, tx *gorm.DB, programID uuid.UUID, groupID uuid.UUID) (int64, error)
	SoftDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type observationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewObservationRepo(db *gorm.DB, baseLog *logger.Logger) ObservationRepo {
	return &observationRepo{
		db:  db,
		log: baseLog.With("repo", "ObservationRepo"),
	}
}

func (r *observationRepo) Create(ctx context.Context, tx *gorm.DB, obs *types.Observation) (*types.Observation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if obs == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).Create(obs).Error; err != nil {
		return nil, err
	}
	return obs, nil
}

func (r *observationRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Observation, error) {
	return r.getByID(ctx, tx, id, false)
}

func (r *observationRepo) LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Observation, error) {
	return r.getByID(ctx, tx, id, true)
}

func (r *observationRepo) getByID(ctx context.Context, tx *gorm.DB, id uuid.UUID, forUpdate bool) (*types.Observation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	q := transaction.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var obs types.Observation
	err := q.Where("id = ?", id).First(&obs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &obs, nil
}

func (r *observationRepo) ListByProgram(ctx context.Context, tx *gorm.DB, programID uuid.UUID) ([]*types.Observation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Observation
	if programID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("program_id = ? AND existence = ?", programID, types.ExistencePresent).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *observationRepo) ListBucket(ctx context.Context, tx *gorm.DB, programID uuid.UUID, groupID *uuid.UUID) ([]*types.Observation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Observation
	if programID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("program_id = ? AND group_id IS NOT DISTINCT FROM ? AND existence = ?", programID, groupID, types.ExistencePresent).
		Order("group_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *observationRepo) ListIDsByTarget(ctx context.Context, tx *gorm.DB, targetID uuid.UUID) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var ids []uuid.UUID
	if targetID == uuid.Nil {
		return ids, nil
	}
	err := transaction.WithContext(ctx).
		Model(&types.AsterismTarget{}).
		Select("t_asterism_target.observation_id").
		Joins("JOIN t_observation ON t_observation.id = t_asterism_target.observation_id").
		Where("t_asterism_target.target_id = ? AND t_observation.existence = ?", targetID, types.ExistencePresent).
		Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *observationRepo) MaxIndex(ctx context.Context, tx *gorm.DB, programID uuid.UUID, groupID *uuid.UUID) (int16, bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row struct {
		Max *int16
	}
	err := transaction.WithContext(ctx).
		Model(&types.Observation{}).
		Select("max(group_index) as max").
		Where("program_id = ? AND group_id IS NOT DISTINCT FROM ? AND existence = ?", programID, groupID, types.ExistencePresent).
		Scan(&row).Error
	if err != nil {
		return 0, false, err
	}
	if row.Max == nil {
		return 0, false, nil
	}
	return *row.Max, true, nil
}

func (r *observationRepo) ShiftIndices(ctx context.Context, tx *gorm.DB, programID uuid.UUID, groupID *uuid.UUID, from int16, delta int16) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if delta == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Observation{}).
		Where("program_id = ? AND group_id IS NOT DISTINCT FROM ? AND group_index >= ? AND existence = ?", programID, groupID, from, types.ExistencePresent).
		Update("group_index", gorm.Expr("group_index + ?", delta)).Error
}

func (r *observationRepo) SetPosition(ctx context.Context, tx *gorm.DB, id uuid.UUID, groupID *uuid.UUID, index int16) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Observation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"group_id":    groupID,
			"group_index": index,
		}).Error
}

func (r *observationRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Observation{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *observationRepo) CountInGroup(ctx context.Context, tx *gorm.DB, programID uuid.UUID, groupID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.Observation{}).
		Where("program_id = ? AND group_id = ? AND existence = ?", programID, groupID, types.ExistencePresent).
		Count(&count).Error
	return count, err
}

func (r *observationRepo) SoftDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Observation{}).
		Where("id = ?", id).
		Update("existence", types.ExistenceDeleted).Error
}
