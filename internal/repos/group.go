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

// GroupRepo owns the group half of the sibling index space. Bucket queries
// match parents null-safely: a nil parent id selects the top-level bucket of
// the program, never "all parents".
type GroupRepo interface {
	Create(ctx context.Context, tx *gorm.DB, group *types.Group) (*types.Group, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Group, error)
	LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Group, error)
	ListByProgram(ctx context.Context, tx *gorm.DB, programID uuid.UUID) ([]*types.Group, error)
	ListBucket(ctx context.Context, tx *gorm.DB, programID uuid.UUID, parentID *uuid.UUID) ([]*types.Group, error)
	MaxIndex(ctx context.Context, tx *gorm.DB, programID uuid.UUID, parentID *uuid.UUID) (int16, bool, error)
	ShiftIndices(ctx context.Context, tx *gorm.DB, programID uuid.UUID, parentID *uuid.UUID, from int16, delta int16) error
	SetPosition(ctx context.Context, tx *gorm.DB, id uuid.UUID, parentID *uuid.UUID, index int16) error
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	CountChildGroups(ctx context.Context, tx *gorm.DB, programID uuid.UUID, parentID uuid.UUID) (int64, error)
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type groupRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGroupRepo(db *gorm.DB, baseLog *logger.Logger) GroupRepo {
	return &groupRepo{
		db:  db,
		log: baseLog.With("repo", "GroupRepo"),
	}
}

func (r *groupRepo) Create(ctx context.Context, tx *gorm.DB, group *types.Group) (*types.Group, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if group == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).Create(group).Error; err != nil {
		return nil, err
	}
	return group, nil
}

func (r *groupRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Group, error) {
	return r.getByID(ctx, tx, id, false)
}

func (r *groupRepo) LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Group, error) {
	return r.getByID(ctx, tx, id, true)
}

func (r *groupRepo) getByID(ctx context.Context, tx *gorm.DB, id uuid.UUID, forUpdate bool) (*types.Group, error) {
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
	var group types.Group
	err := q.Where("id = ?", id).First(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *groupRepo) ListByProgram(ctx context.Context, tx *gorm.DB, programID uuid.UUID) ([]*types.Group, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Group
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

func (r *groupRepo) ListBucket(ctx context.Context, tx *gorm.DB, programID uuid.UUID, parentID *uuid.UUID) ([]*types.Group, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Group
	if programID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("program_id = ? AND parent_id IS NOT DISTINCT FROM ? AND existence = ?", programID, parentID, types.ExistencePresent).
		Order("parent_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *groupRepo) MaxIndex(ctx context.Context, tx *gorm.DB, programID uuid.UUID, parentID *uuid.UUID) (int16, bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row struct {
		Max *int16
	}
	err := transaction.WithContext(ctx).
		Model(&types.Group{}).
		Select("max(parent_index) as max").
		Where("program_id = ? AND parent_id IS NOT DISTINCT FROM ? AND existence = ?", programID, parentID, types.ExistencePresent).
		Scan(&row).Error
	if err != nil {
		return 0, false, err
	}
	if row.Max == nil {
		return 0, false, nil
	}
	return *row.Max, true, nil
}

// ShiftIndices moves every sibling at or after `from` by `delta`. Open a hole
// with delta=+1, close one with from=hole+1, delta=-1. Intermediate
// duplicate indices inside the surrounding transaction are expected; the
// service verifies the final state before commit.
func (r *groupRepo) ShiftIndices(ctx context.Context, tx *gorm.DB, programID uuid.UUID, parentID *uuid.UUID, from int16, delta int16) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if delta == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Group{}).
		Where("program_id = ? AND parent_id IS NOT DISTINCT FROM ? AND parent_index >= ? AND existence = ?", programID, parentID, from, types.ExistencePresent).
		Update("parent_index", gorm.Expr("parent_index + ?", delta)).Error
}

func (r *groupRepo) SetPosition(ctx context.Context, tx *gorm.DB, id uuid.UUID, parentID *uuid.UUID, index int16) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Group{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"parent_id":    parentID,
			"parent_index": index,
		}).Error
}

func (r *groupRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Group{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *groupRepo) CountChildGroups(ctx context.Context, tx *gorm.DB, programID uuid.UUID, parentID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.Group{}).
		Where("program_id = ? AND parent_id = ? AND existence = ?", programID, parentID, types.ExistencePresent).
		Count(&count).Error
	return count, err
}

func (r *groupRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.Group{}).Error
}
