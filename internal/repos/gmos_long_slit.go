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

type GmosLongSlitRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, mode *types.GmosLongSlit) error
	GetByObservation(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) (*types.GmosLongSlit, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, observationID uuid.UUID, updates map[string]interface{}) error
	Delete(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) error
}

type gmosLongSlitRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGmosLongSlitRepo(db *gorm.DB, baseLog *logger.Logger) GmosLongSlitRepo {
	return &gmosLongSlitRepo{
		db:  db,
		log: baseLog.With("repo", "GmosLongSlitRepo"),
	}
}

func (r *gmosLongSlitRepo) Upsert(ctx context.Context, tx *gorm.DB, mode *types.GmosLongSlit) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if mode == nil || mode.ObservationID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "observation_id"}},
			UpdateAll: true,
		}).
		Create(mode).Error
}

func (r *gmosLongSlitRepo) GetByObservation(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) (*types.GmosLongSlit, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if observationID == uuid.Nil {
		return nil, nil
	}
	var mode types.GmosLongSlit
	err := transaction.WithContext(ctx).
		Where("observation_id = ?", observationID).
		First(&mode).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mode, nil
}

func (r *gmosLongSlitRepo) UpdateFields(ctx context.Context, tx *gorm.DB, observationID uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if observationID == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.GmosLongSlit{}).
		Where("observation_id = ?", observationID).
		Updates(updates).Error
}

func (r *gmosLongSlitRepo) Delete(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if observationID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("observation_id = ?", observationID).
		Delete(&types.GmosLongSlit{}).Error
}
