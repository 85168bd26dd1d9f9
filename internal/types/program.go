package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Program struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProgramIndex   int64          `gorm:"column:program_index;not null;uniqueIndex" json:"program_index"`
	Name           string         `gorm:"column:name" json:"name"`
	Description    string         `gorm:"column:description" json:"description"`
	ProposalStatus string         `gorm:"column:proposal_status;not null;default:'not_submitted'" json:"proposal_status"`
	Properties     datatypes.JSON `gorm:"type:jsonb;column:properties" json:"properties,omitempty"`
	Existence      Existence      `gorm:"column:existence;not null;default:'present'" json:"existence"`
	CreatedAt      time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Program) TableName() string { return "t_program" }
