package types

import (
	"time"
	"github.com/google/uuid"
)

// GmosLongSlit is the long-slit observing-mode configuration for one
// observation. Any edit here invalidates the observation's obscalc entry.
type GmosLongSlit struct {
	ObservationID     uuid.UUID    `gorm:"type:uuid;primaryKey" json:"observation_id"`
	Observation       *Observation `gorm:"constraint:OnDelete:CASCADE;foreignKey:ObservationID;references:ID" json:"observation,omitempty"`
	Grating           string       `gorm:"column:grating;not null" json:"grating"`
	Filter            *string      `gorm:"column:filter" json:"filter,omitempty"`
	Fpu               string       `gorm:"column:fpu;not null" json:"fpu"`
	CentralWavelength int64        `gorm:"column:central_wavelength_pm;not null" json:"central_wavelength_pm"`
	XBin              int16        `gorm:"column:xbin;not null;default:1" json:"xbin"`
	YBin              int16        `gorm:"column:ybin;not null;default:1" json:"ybin"`
	CreatedAt         time.Time    `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"not null;default:now()" json:"updated_at"`
}

func (GmosLongSlit) TableName() string { return "t_gmos_long_slit" }
