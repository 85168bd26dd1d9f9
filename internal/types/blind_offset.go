package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// BlindOffset tracks the blind-offset recomputation for an observation. It
// runs the same state machine as Obscalc, keyed off target coordinate and
// asterism-base edits rather than the full obscalc input set.
type BlindOffset struct {
	ObservationID    uuid.UUID      `gorm:"type:uuid;primaryKey" json:"observation_id"`
	Observation      *Observation   `gorm:"constraint:OnDelete:CASCADE;foreignKey:ObservationID;references:ID" json:"observation,omitempty"`
	ProgramID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"program_id"`
	State            CalcState      `gorm:"column:state;not null;default:'pending';index:idx_blind_offset_queue" json:"state"`
	LastInvalidation time.Time      `gorm:"column:last_invalidation;not null;default:now()" json:"last_invalidation"`
	LastUpdate       time.Time      `gorm:"column:last_update;not null;default:now()" json:"last_update"`
	RetryAt          *time.Time     `gorm:"column:retry_at;index:idx_blind_offset_queue" json:"retry_at,omitempty"`
	FailureCount     int            `gorm:"column:failure_count;not null;default:0" json:"failure_count"`
	Offset           datatypes.JSON `gorm:"type:jsonb;column:offset" json:"offset,omitempty"`
	OdbError         datatypes.JSON `gorm:"type:jsonb;column:odb_error" json:"odb_error,omitempty"`
	CreatedAt        time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (BlindOffset) TableName() string { return "t_blind_offset" }
