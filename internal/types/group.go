package types

import (
	"time"
	"github.com/google/uuid"
)

// Group is a node in the per-program tree. ParentID nil means the node sits
// at the top level of its program; top-level is a real sibling bucket, not
// absence of one. ParentIndex shares one index space with the observations
// under the same parent.
type Group struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProgramID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_group_bucket" json:"program_id"`
	Program     *Program   `gorm:"constraint:OnDelete:CASCADE;foreignKey:ProgramID;references:ID" json:"program,omitempty"`
	ParentID    *uuid.UUID `gorm:"type:uuid;index:idx_group_bucket" json:"parent_id,omitempty"`
	Parent      *Group     `gorm:"foreignKey:ParentID;references:ID" json:"parent,omitempty"`
	ParentIndex int16      `gorm:"column:parent_index;not null" json:"parent_index"`
	Name        string     `gorm:"column:name" json:"name"`
	Description string     `gorm:"column:description" json:"description"`
	MinRequired *int16     `gorm:"column:min_required" json:"min_required,omitempty"`
	Ordered     bool       `gorm:"column:ordered;not null;default:false" json:"ordered"`
	MinInterval *int64     `gorm:"column:min_interval_us" json:"min_interval_us,omitempty"`
	MaxInterval *int64     `gorm:"column:max_interval_us" json:"max_interval_us,omitempty"`
	System      bool       `gorm:"column:system;not null;default:false" json:"system"`
	Existence   Existence  `gorm:"column:existence;not null;default:'present'" json:"existence"`
	CreatedAt   time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (Group) TableName() string { return "t_group" }
