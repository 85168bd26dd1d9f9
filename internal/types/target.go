package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Target coordinates are stored in microarcseconds so that arithmetic stays
// exact; callers convert to degrees at the edge.
type Target struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProgramID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"program_id"`
	Program        *Program       `gorm:"constraint:OnDelete:CASCADE;foreignKey:ProgramID;references:ID" json:"program,omitempty"`
	Name           string         `gorm:"column:name;not null" json:"name"`
	RA             int64          `gorm:"column:ra_uas;not null" json:"ra_uas"`
	Dec            int64          `gorm:"column:dec_uas;not null" json:"dec_uas"`
	Epoch          string         `gorm:"column:epoch;not null;default:'J2000.000'" json:"epoch"`
	PmRA           *int64         `gorm:"column:pm_ra_uas_y" json:"pm_ra_uas_y,omitempty"`
	PmDec          *int64         `gorm:"column:pm_dec_uas_y" json:"pm_dec_uas_y,omitempty"`
	RadialVelocity *int64         `gorm:"column:rv_m_s" json:"rv_m_s,omitempty"`
	Parallax       *int64         `gorm:"column:parallax_uas" json:"parallax_uas,omitempty"`
	SourceProfile  datatypes.JSON `gorm:"type:jsonb;column:source_profile" json:"source_profile,omitempty"`
	Existence      Existence      `gorm:"column:existence;not null;default:'present'" json:"existence"`
	CreatedAt      time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Target) TableName() string { return "t_target" }
