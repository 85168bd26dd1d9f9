package repos

import (
	"context"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"github.com/orionsky/obsdb-backend/internal/logger"
	"github.com/orionsky/obsdb-backend/internal/types"
)

type AsterismRepo interface {
	Add(ctx context.Context, tx *gorm.DB, observationID, targetID uuid.UUID) error
	Remove(ctx context.Context, tx *gorm.DB, observationID, targetID uuid.UUID) error
	ListTargetIDs(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) ([]uuid.UUID, error)
	ListObservationIDs(ctx context.Context, tx *gorm.DB, targetID uuid.UUID) ([]uuid.UUID, error)
}

type asterismRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAsterismRepo(db *gorm.DB, baseLog *logger.Logger) AsterismRepo {
	return &asterismRepo{
		db:  db,
		log: baseLog.With("repo", "AsterismRepo"),
	}
}

func (r *asterismRepo) Add(ctx context.Context, tx *gorm.DB, observationID, targetID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if observationID == uuid.Nil || targetID == uuid.Nil {
		return nil
	}
	link := types.AsterismTarget{ObservationID: observationID, TargetID: targetID}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&link).Error
}

func (r *asterismRepo) Remove(ctx context.Context, tx *gorm.DB, observationID, targetID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if observationID == uuid.Nil || targetID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("observation_id = ? AND target_id = ?", observationID, targetID).
		Delete(&types.AsterismTarget{}).Error
}

func (r *asterismRepo) ListTargetIDs(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var ids []uuid.UUID
	if observationID == uuid.Nil {
		return ids, nil
	}
	err := transaction.WithContext(ctx).
		Model(&types.AsterismTarget{}).
		Select("target_id").
		Where("observation_id = ?", observationID).
		Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *asterismRepo) ListObservationIDs(ctx context.Context, tx *gorm.DB, targetID uuid.UUID) ([]uuid.UUID, error) {
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
		Select("observation_id").
		Where("target_id = ?", targetID).
		Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
