package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/orionsky/obsdb-backend/internal/apperr"
	"github.com/orionsky/obsdb-backend/internal/logger"
	"github.com/orionsky/obsdb-backend/internal/repos"
	"github.com/orionsky/obsdb-backend/internal/types"
)

const programSequenceKey = "program"

type ProgramService interface {
	CreateProgram(ctx context.Context, program *types.Program) (*types.Program, error)
	GetProgram(ctx context.Context, programID uuid.UUID) (*types.Program, error)
}

type programService struct {
	db        *gorm.DB
	log       *logger.Logger
	programs  repos.ProgramRepo
	sequences repos.SequenceRepo
}

func NewProgramService(db *gorm.DB, baseLog *logger.Logger, programs repos.ProgramRepo, sequences repos.SequenceRepo) ProgramService {
	return &programService{
		db:        db,
		log:       baseLog.With("service", "ProgramService"),
		programs:  programs,
		sequences: sequences,
	}
}

func (s *programService) CreateProgram(ctx context.Context, program *types.Program) (*types.Program, error) {
	if program == nil {
		return nil, apperr.ValidationError("missing program")
	}
	var created *types.Program
	err := s.db.Transaction(func(tx *gorm.DB) error {
		index, err := s.sequences.Next(ctx, tx, programSequenceKey)
		if err != nil {
			return err
		}
		program.ProgramIndex = index
		program.Existence = types.ExistencePresent
		created, err = s.programs.Create(ctx, tx, program)
		return err
	})
	if err != nil {
		return nil, apperr.Map(err)
	}
	return created, nil
}

func (s *programService) GetProgram(ctx context.Context, programID uuid.UUID) (*types.Program, error) {
	program, err := s.programs.GetByID(ctx, nil, programID)
	if err != nil {
		return nil, apperr.Map(err)
	}
	if program == nil || program.Existence != types.ExistencePresent {
		return nil, apperr.NotFoundError(fmt.Sprintf("program %s", programID))
	}
	return program, nil
}
