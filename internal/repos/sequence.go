package repos

import (
	"context"
	"strings"
	"gorm.io/gorm"
	"github.com/orionsky/obsdb-backend/internal/logger"
)

// SequenceRepo hands out the next integer for a namespaced counter key.
// The increment is a single upsert so concurrent callers never see the same
// value twice.
type SequenceRepo interface {
	Next(ctx context.Context, tx *gorm.DB, key string) (int64, error)
}

type sequenceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSequenceRepo(db *gorm.DB, baseLog *logger.Logger) SequenceRepo {
	return &sequenceRepo{
		db:  db,
		log: baseLog.With("repo", "SequenceRepo"),
	}
}

func (r *sequenceRepo) Next(ctx context.Context, tx *gorm.DB, key string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return 0, nil
	}
	var value int64
	err := transaction.WithContext(ctx).Raw(`
		INSERT INTO t_sequence ("key", "value")
		VALUES (?, 1)
		ON CONFLICT ("key")
		DO UPDATE SET "value" = t_sequence."value" + 1
		RETURNING "value"
	`, key).Scan(&value).Error
	if err != nil {
		return 0, err
	}
	return value, nil
}
