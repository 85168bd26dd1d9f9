package types

import (
	"time"
	"github.com/google/uuid"
)

// AsterismTarget links an observation to one member of its asterism.
type AsterismTarget struct {
	ObservationID uuid.UUID    `gorm:"type:uuid;primaryKey" json:"observation_id"`
	Observation   *Observation `gorm:"constraint:OnDelete:CASCADE;foreignKey:ObservationID;references:ID" json:"observation,omitempty"`
	TargetID      uuid.UUID    `gorm:"type:uuid;primaryKey;index" json:"target_id"`
	Target        *Target      `gorm:"constraint:OnDelete:CASCADE;foreignKey:TargetID;references:ID" json:"target,omitempty"`
	CreatedAt     time.Time    `gorm:"not null;default:now()" json:"created_at"`
}

func (AsterismTarget) TableName() string { return "t_asterism_target" }
