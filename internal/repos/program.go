package repos

import (
	"context"
	"errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"github.com/orionsky/obsdb-backend/internal/logger"
	"github.com/orionsky/obsdb-backend/internal/types"
)

type ProgramRepo interface {
	Create(ctx context.Context, tx *gorm.DB, program *types.Program) (*types.Program, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Program, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type programRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProgramRepo(db *gorm.DB, baseLog *logger.Logger) ProgramRepo {
	return &programRepo{
		db:  db,
		log: baseLog.With("repo", "ProgramRepo"),
	}
}

func (r *programRepo) Create(ctx context.Context, tx *gorm.DB, program *types.Program) (*types.Program, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if program == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).Create(program).Error; err != nil {
		return nil, err
	}
	return program, nil
}

func (r *programRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Program, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var program types.Program
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&program).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &program, nil
}

func (r *programRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.Program{}).
		Where("id = ?", id).
		Updates(updates).Error
}
