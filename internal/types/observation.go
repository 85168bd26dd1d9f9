package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Observation lives in the same sibling index space as groups: for one
// (program, group) bucket the union of group.parent_index and
// observation.group_index values must be contiguous from zero.
type Observation struct {
	ID                  uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProgramID           uuid.UUID      `gorm:"type:uuid;not null;index:idx_observation_bucket" json:"program_id"`
	Program             *Program       `gorm:"constraint:OnDelete:CASCADE;foreignKey:ProgramID;references:ID" json:"program,omitempty"`
	GroupID             *uuid.UUID     `gorm:"type:uuid;index:idx_observation_bucket" json:"group_id,omitempty"`
	Group               *Group         `gorm:"foreignKey:GroupID;references:ID" json:"group,omitempty"`
	GroupIndex          int16          `gorm:"column:group_index;not null" json:"group_index"`
	Title               string         `gorm:"column:title" json:"title"`
	Subtitle            string         `gorm:"column:subtitle" json:"subtitle"`
	Status              string         `gorm:"column:status;not null;default:'new'" json:"status"`
	Instrument          *string        `gorm:"column:instrument" json:"instrument,omitempty"`
	ObservingModeType   *string        `gorm:"column:observing_mode_type" json:"observing_mode_type,omitempty"`
	ScienceBand         *string        `gorm:"column:science_band" json:"science_band,omitempty"`
	ExposureTimeMode    datatypes.JSON `gorm:"type:jsonb;column:exposure_time_mode" json:"exposure_time_mode,omitempty"`
	ScienceRequirements datatypes.JSON `gorm:"type:jsonb;column:science_requirements" json:"science_requirements,omitempty"`
	Existence           Existence      `gorm:"column:existence;not null;default:'present'" json:"existence"`
	CreatedAt           time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Observation) TableName() string { return "t_observation" }
