package repos

import (
	"context"
	"errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"github.com/orionsky/obsdb-backend/internal/logger"
	"github.com/orionsky/obsdb-backend/internal/types"
)

type TargetRepo interface {
	Create(ctx context.Context, tx *gorm.DB, target *types.Target) (*types.Target, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Target, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Target, error)
	ListByProgram(ctx context.Context, tx *gorm.DB, programID uuid.UUID) ([]*types.Target, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	SoftDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type targetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTargetRepo(db *gorm.DB, baseLog *logger.Logger) TargetRepo {
	return &targetRepo{
		db:  db,
		log: baseLog.With("repo", "TargetRepo"),
	}
}

func (r *targetRepo) Create(ctx context.Context, tx *gorm.DB, target *types.Target) (*types.Target, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if target == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).Create(target).Error; err != nil {
		return nil, err
	}
	return target, nil
}

func (r *targetRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Target, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var target types.Target
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&target).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &target, nil
}

func (r *targetRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Target, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Target
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *targetRepo) ListByProgram(ctx context.Context, tx *gorm.DB, programID uuid.UUID) ([]*types.Target, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Target
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

func (r *targetRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Target{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *targetRepo) SoftDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Target{}).
		Where("id = ?", id).
		Update("existence", types.ExistenceDeleted).Error
}
