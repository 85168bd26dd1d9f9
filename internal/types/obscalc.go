package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Obscalc is the 1:1 derived-computation entry for an observation, created
// lazily on first invalidation. RetryAt is non-null exactly when State is
// retry; FailureCount is zero outside retry/calculating. Both rules are also
// check constraints in the schema bootstrap.
type Obscalc struct {
	ObservationID    uuid.UUID      `gorm:"type:uuid;primaryKey" json:"observation_id"`
	Observation      *Observation   `gorm:"constraint:OnDelete:CASCADE;foreignKey:ObservationID;references:ID" json:"observation,omitempty"`
	ProgramID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"program_id"`
	State            CalcState      `gorm:"column:state;not null;default:'pending';index:idx_obscalc_queue" json:"state"`
	LastInvalidation time.Time      `gorm:"column:last_invalidation;not null;default:now()" json:"last_invalidation"`
	LastUpdate       time.Time      `gorm:"column:last_update;not null;default:now()" json:"last_update"`
	RetryAt          *time.Time     `gorm:"column:retry_at;index:idx_obscalc_queue" json:"retry_at,omitempty"`
	FailureCount     int            `gorm:"column:failure_count;not null;default:0" json:"failure_count"`
	ItcResult        datatypes.JSON `gorm:"type:jsonb;column:itc_result" json:"itc_result,omitempty"`
	ExecutionDigest  datatypes.JSON `gorm:"type:jsonb;column:execution_digest" json:"execution_digest,omitempty"`
	OdbError         datatypes.JSON `gorm:"type:jsonb;column:odb_error" json:"odb_error,omitempty"`
	CreatedAt        time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Obscalc) TableName() string { return "t_obscalc" }
