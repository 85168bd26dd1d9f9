package repos

import (
	"context"
	"errors"
	"time"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"github.com/orionsky/obsdb-backend/internal/logger"
	"github.com/orionsky/obsdb-backend/internal/types"
)

// ObscalcRepo guards the one mutable row per observation. Every
// read-modify-write path locks the row first (LockByID / ClaimNext with
// SKIP LOCKED) so concurrent invalidations and worker completions serialize
// per observation.
type ObscalcRepo interface {
	Get(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) (*types.Obscalc, error)
	LockByID(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) (*types.Obscalc, error)
	Create(ctx context.Context, tx *gorm.DB, entry *types.Obscalc) (*types.Obscalc, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, observationID uuid.UUID, updates map[string]interface{}) error
	ClaimNext(ctx context.Context, tx *gorm.DB, now time.Time) (*types.Obscalc, error)
	CountByState(ctx context.Context, tx *gorm.DB) (map[types.CalcState]int64, error)
	ListByProgram(ctx context.Context, tx *gorm.DB, programID uuid.UUID) ([]*types.Obscalc, error)
	Delete(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) error
}

type obscalcRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewObscalcRepo(db *gorm.DB, baseLog *logger.Logger) ObscalcRepo {
	return &obscalcRepo{
		db:  db,
		log: baseLog.With("repo", "ObscalcRepo"),
	}
}

func (r *obscalcRepo) Get(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) (*types.Obscalc, error) {
	return r.get(ctx, tx, observationID, false)
}

func (r *obscalcRepo) LockByID(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) (*types.Obscalc, error) {
	return r.get(ctx, tx, observationID, true)
}

func (r *obscalcRepo) get(ctx context.Context, tx *gorm.DB, observationID uuid.UUID, forUpdate bool) (*types.Obscalc, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if observationID == uuid.Nil {
		return nil, nil
	}
	q := transaction.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var entry types.Obscalc
	err := q.Where("observation_id = ?", observationID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *obscalcRepo) Create(ctx context.Context, tx *gorm.DB, entry *types.Obscalc) (*types.Obscalc, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if entry == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *obscalcRepo) UpdateFields(ctx context.Context, tx *gorm.DB, observationID uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if observationID == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.Obscalc{}).
		Where("observation_id = ?", observationID).
		Updates(updates).Error
}

// ClaimNext dequeues the oldest pending (or due retry) entry and flips it to
// calculating in one transaction. SKIP LOCKED keeps competing workers off
// each other's rows.
func (r *obscalcRepo) ClaimNext(ctx context.Context, tx *gorm.DB, now time.Time) (*types.Obscalc, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var claimed *types.Obscalc
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var entry types.Obscalc
		qErr := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
				state = ?
				OR (state = ? AND retry_at IS NOT NULL AND retry_at <= ?)
			`, types.CalcStatePending, types.CalcStateRetry, now).
			Order("last_invalidation ASC").
			First(&entry).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.Obscalc{}).
			Where("observation_id = ?", entry.ObservationID).
			Updates(map[string]interface{}{
				"state":      types.CalcStateCalculating,
				"retry_at":   nil,
				"updated_at": now,
			}).Error
		if uErr != nil {
			return uErr
		}
		entry.State = types.CalcStateCalculating
		entry.RetryAt = nil
		claimed = &entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *obscalcRepo) CountByState(ctx context.Context, tx *gorm.DB) (map[types.CalcState]int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []struct {
		State types.CalcState
		Count int64
	}
	if err := transaction.WithContext(ctx).
		Model(&types.Obscalc{}).
		Select("state, count(*) as count").
		Group("state").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := map[types.CalcState]int64{}
	for _, row := range rows {
		out[row.State] = row.Count
	}
	return out, nil
}

func (r *obscalcRepo) Delete(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if observationID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("observation_id = ?", observationID).
		Delete(&types.Obscalc{}).Error
}

func (r *obscalcRepo) ListByProgram(ctx context.Context, tx *gorm.DB, programID uuid.UUID) ([]*types.Obscalc, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Obscalc
	if programID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("program_id = ?", programID).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
