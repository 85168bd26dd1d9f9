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

// BlindOffsetRepo mirrors ObscalcRepo for the blind-offset entries.
type BlindOffsetRepo interface {
	Get(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) (*types.BlindOffset, error)
	LockByID(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) (*types.BlindOffset, error)
	Create(ctx context.Context, tx *gorm.DB, entry *types.BlindOffset) (*types.BlindOffset, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, observationID uuid.UUID, updates map[string]interface{}) error
	ClaimNext(ctx context.Context, tx *gorm.DB, now time.Time) (*types.BlindOffset, error)
	CountByState(ctx context.Context, tx *gorm.DB) (map[types.CalcState]int64, error)
	Delete(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) error
}

type blindOffsetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBlindOffsetRepo(db *gorm.DB, baseLog *logger.Logger) BlindOffsetRepo {
	return &blindOffsetRepo{
		db:  db,
		log: baseLog.With("repo", "BlindOffsetRepo"),
	}
}

func (r *blindOffsetRepo) Get(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) (*types.BlindOffset, error) {
	return r.get(ctx, tx, observationID, false)
}

func (r *blindOffsetRepo) LockByID(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) (*types.BlindOffset, error) {
	return r.get(ctx, tx, observationID, true)
}

func (r *blindOffsetRepo) get(ctx context.Context, tx *gorm.DB, observationID uuid.UUID, forUpdate bool) (*types.BlindOffset, error) {
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
	var entry types.BlindOffset
	err := q.Where("observation_id = ?", observationID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *blindOffsetRepo) Create(ctx context.Context, tx *gorm.DB, entry *types.BlindOffset) (*types.BlindOffset, error) {
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

func (r *blindOffsetRepo) UpdateFields(ctx context.Context, tx *gorm.DB, observationID uuid.UUID, updates map[string]interface{}) error {
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
		Model(&types.BlindOffset{}).
		Where("observation_id = ?", observationID).
		Updates(updates).Error
}

func (r *blindOffsetRepo) ClaimNext(ctx context.Context, tx *gorm.DB, now time.Time) (*types.BlindOffset, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var claimed *types.BlindOffset
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var entry types.BlindOffset
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
		uErr := txx.Model(&types.BlindOffset{}).
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

func (r *blindOffsetRepo) Delete(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if observationID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("observation_id = ?", observationID).
		Delete(&types.BlindOffset{}).Error
}

func (r *blindOffsetRepo) CountByState(ctx context.Context, tx *gorm.DB) (map[types.CalcState]int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []struct {
		State types.CalcState
		Count int64
	}
	if err := transaction.WithContext(ctx).
		Model(&types.BlindOffset{}).
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
