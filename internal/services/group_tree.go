package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/orionsky/obsdb-backend/internal/apperr"
	"github.com/orionsky/obsdb-backend/internal/logger"
	"github.com/orionsky/obsdb-backend/internal/observability"
	"github.com/orionsky/obsdb-backend/internal/repos"
	"github.com/orionsky/obsdb-backend/internal/types"
)

// parkedIndex is the sentinel a node sits at mid-move. It is below every
// legal index, so neither the close-hole pass at the source nor the
// open-hole pass at the destination touches the moving node.
const parkedIndex int16 = -1

// GroupTreeService maintains the per-program forest of groups and
// observations. Every sibling bucket (one parent, one program, groups and
// observations together) holds indices exactly {0..n-1}, and the group
// parent chain is acyclic. Both invariants are checked once per structural
// transaction, just before commit, so multi-step moves may pass through
// intermediate states that would not verify on their own.
type GroupTreeService interface {
	InsertGroup(ctx context.Context, group *types.Group, at *int16) (*types.Group, error)
	InsertObservation(ctx context.Context, obs *types.Observation, at *int16) (*types.Observation, error)
	MoveGroup(ctx context.Context, groupID uuid.UUID, destParentID *uuid.UUID, destIndex *int16) error
	MoveObservation(ctx context.Context, obsID uuid.UUID, destGroupID *uuid.UUID, destIndex *int16) error
	DeleteGroup(ctx context.Context, groupID uuid.UUID) error
	DeleteObservation(ctx context.Context, obsID uuid.UUID) error
	ListChildren(ctx context.Context, programID uuid.UUID, parentID *uuid.UUID) ([]*TreeChild, error)
	VerifyProgram(ctx context.Context, tx *gorm.DB, programID uuid.UUID) error
}

// TreeChild is one slot of a sibling bucket: either a group or an
// observation, never both.
type TreeChild struct {
	Index       int16              `json:"index"`
	Group       *types.Group       `json:"group,omitempty"`
	Observation *types.Observation `json:"observation,omitempty"`
}

type groupTreeService struct {
	db       *gorm.DB
	log      *logger.Logger
	groups   repos.GroupRepo
	obs      repos.ObservationRepo
	obscalc  ObscalcService
	blind    BlindOffsetService
	notifier EditNotifier
}

func NewGroupTreeService(
	db *gorm.DB,
	baseLog *logger.Logger,
	groups repos.GroupRepo,
	obs repos.ObservationRepo,
	obscalc ObscalcService,
	blind BlindOffsetService,
	notifier EditNotifier,
) GroupTreeService {
	return &groupTreeService{
		db:       db,
		log:      baseLog.With("service", "GroupTreeService"),
		groups:   groups,
		obs:      obs,
		obscalc:  obscalc,
		blind:    blind,
		notifier: notifier,
	}
}

func (s *groupTreeService) InsertGroup(ctx context.Context, group *types.Group, at *int16) (*types.Group, error) {
	if group == nil {
		return nil, apperr.ValidationError("missing group")
	}
	if group.ProgramID == uuid.Nil {
		return nil, apperr.ValidationError("missing program id")
	}
	var created *types.Group
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if group.ParentID != nil {
			parent, err := s.groups.GetByID(ctx, tx, *group.ParentID)
			if err != nil {
				return err
			}
			if parent == nil || parent.ProgramID != group.ProgramID {
				return apperr.NotFoundError(fmt.Sprintf("parent group %s", *group.ParentID))
			}
		}
		index, err := s.resolveIndex(ctx, tx, group.ProgramID, group.ParentID, at)
		if err != nil {
			return err
		}
		if err := s.openHole(ctx, tx, group.ProgramID, group.ParentID, index); err != nil {
			return err
		}
		group.ParentIndex = index
		group.Existence = types.ExistencePresent
		if _, err := s.groups.Create(ctx, tx, group); err != nil {
			return err
		}
		created = group
		return s.VerifyProgram(ctx, tx, group.ProgramID)
	})
	if err != nil {
		observability.Current().IncTreeOp("insert_group", "error")
		return nil, apperr.Map(err)
	}
	observability.Current().IncTreeOp("insert_group", "ok")
	if s.notifier != nil {
		s.notifier.GroupEdit(created.ProgramID, created.ID, "insert")
	}
	return created, nil
}

func (s *groupTreeService) InsertObservation(ctx context.Context, obs *types.Observation, at *int16) (*types.Observation, error) {
	if obs == nil {
		return nil, apperr.ValidationError("missing observation")
	}
	if obs.ProgramID == uuid.Nil {
		return nil, apperr.ValidationError("missing program id")
	}
	var created *types.Observation
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if obs.GroupID != nil {
			parent, err := s.groups.GetByID(ctx, tx, *obs.GroupID)
			if err != nil {
				return err
			}
			if parent == nil || parent.ProgramID != obs.ProgramID {
				return apperr.NotFoundError(fmt.Sprintf("group %s", *obs.GroupID))
			}
		}
		index, err := s.resolveIndex(ctx, tx, obs.ProgramID, obs.GroupID, at)
		if err != nil {
			return err
		}
		if err := s.openHole(ctx, tx, obs.ProgramID, obs.GroupID, index); err != nil {
			return err
		}
		obs.GroupIndex = index
		obs.Existence = types.ExistencePresent
		if _, err := s.obs.Create(ctx, tx, obs); err != nil {
			return err
		}
		created = obs
		return s.VerifyProgram(ctx, tx, obs.ProgramID)
	})
	if err != nil {
		observability.Current().IncTreeOp("insert_observation", "error")
		return nil, apperr.Map(err)
	}
	observability.Current().IncTreeOp("insert_observation", "ok")
	if s.notifier != nil {
		s.notifier.ObservationEdit(created.ProgramID, created.ID, "insert")
	}
	return created, nil
}

// MoveGroup relocates a group in four steps inside one transaction: park the
// node at the sentinel index, close the hole it left, open a hole at the
// destination, land the node there. Verification runs once at the end.
func (s *groupTreeService) MoveGroup(ctx context.Context, groupID uuid.UUID, destParentID *uuid.UUID, destIndex *int16) error {
	var programID uuid.UUID
	moved := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		group, err := s.groups.LockByID(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if group == nil || group.Existence != types.ExistencePresent {
			return apperr.NotFoundError(fmt.Sprintf("group %s", groupID))
		}
		programID = group.ProgramID
		if destParentID != nil {
			if *destParentID == groupID {
				return apperr.InvariantError(fmt.Sprintf("group hierarchy cycle detected between %s and %s", groupID, groupID))
			}
			dest, err := s.groups.GetByID(ctx, tx, *destParentID)
			if err != nil {
				return err
			}
			if dest == nil || dest.ProgramID != group.ProgramID {
				return apperr.NotFoundError(fmt.Sprintf("destination group %s", *destParentID))
			}
		}
		if sameBucket(group.ParentID, destParentID) && destIndex != nil && *destIndex == group.ParentIndex {
			// Same slot: a no-op with respect to every sibling.
			return nil
		}
		srcParent := group.ParentID
		srcIndex := group.ParentIndex
		if err := s.groups.SetPosition(ctx, tx, groupID, srcParent, parkedIndex); err != nil {
			return err
		}
		if err := s.closeHole(ctx, tx, programID, srcParent, srcIndex); err != nil {
			return err
		}
		index, err := s.resolveIndex(ctx, tx, programID, destParentID, destIndex)
		if err != nil {
			return err
		}
		if err := s.openHole(ctx, tx, programID, destParentID, index); err != nil {
			return err
		}
		if err := s.groups.SetPosition(ctx, tx, groupID, destParentID, index); err != nil {
			return err
		}
		moved = true
		return s.VerifyProgram(ctx, tx, programID)
	})
	if err != nil {
		observability.Current().IncTreeOp("move_group", "error")
		return apperr.Map(err)
	}
	if !moved {
		return nil
	}
	observability.Current().IncTreeOp("move_group", "ok")
	if s.notifier != nil {
		s.notifier.GroupEdit(programID, groupID, "move")
	}
	return nil
}

func (s *groupTreeService) MoveObservation(ctx context.Context, obsID uuid.UUID, destGroupID *uuid.UUID, destIndex *int16) error {
	var programID uuid.UUID
	moved := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		obs, err := s.obs.LockByID(ctx, tx, obsID)
		if err != nil {
			return err
		}
		if obs == nil || obs.Existence != types.ExistencePresent {
			return apperr.NotFoundError(fmt.Sprintf("observation %s", obsID))
		}
		programID = obs.ProgramID
		if destGroupID != nil {
			dest, err := s.groups.GetByID(ctx, tx, *destGroupID)
			if err != nil {
				return err
			}
			if dest == nil || dest.ProgramID != obs.ProgramID {
				return apperr.NotFoundError(fmt.Sprintf("destination group %s", *destGroupID))
			}
		}
		if sameBucket(obs.GroupID, destGroupID) && destIndex != nil && *destIndex == obs.GroupIndex {
			return nil
		}
		srcGroup := obs.GroupID
		srcIndex := obs.GroupIndex
		if err := s.obs.SetPosition(ctx, tx, obsID, srcGroup, parkedIndex); err != nil {
			return err
		}
		if err := s.closeHole(ctx, tx, programID, srcGroup, srcIndex); err != nil {
			return err
		}
		index, err := s.resolveIndex(ctx, tx, programID, destGroupID, destIndex)
		if err != nil {
			return err
		}
		if err := s.openHole(ctx, tx, programID, destGroupID, index); err != nil {
			return err
		}
		if err := s.obs.SetPosition(ctx, tx, obsID, destGroupID, index); err != nil {
			return err
		}
		moved = true
		return s.VerifyProgram(ctx, tx, programID)
	})
	if err != nil {
		observability.Current().IncTreeOp("move_observation", "error")
		return apperr.Map(err)
	}
	if !moved {
		return nil
	}
	observability.Current().IncTreeOp("move_observation", "ok")
	if s.notifier != nil {
		s.notifier.ObservationEdit(programID, obsID, "move")
	}
	return nil
}

func (s *groupTreeService) DeleteGroup(ctx context.Context, groupID uuid.UUID) error {
	var programID uuid.UUID
	err := s.db.Transaction(func(tx *gorm.DB) error {
		group, err := s.groups.LockByID(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if group == nil || group.Existence != types.ExistencePresent {
			return apperr.NotFoundError(fmt.Sprintf("group %s", groupID))
		}
		programID = group.ProgramID
		childGroups, err := s.groups.CountChildGroups(ctx, tx, programID, groupID)
		if err != nil {
			return err
		}
		childObs, err := s.obs.CountInGroup(ctx, tx, programID, groupID)
		if err != nil {
			return err
		}
		if childGroups+childObs > 0 {
			return apperr.ValidationError(fmt.Sprintf("group %s still has %d children", groupID, childGroups+childObs))
		}
		if err := s.groups.Delete(ctx, tx, groupID); err != nil {
			return err
		}
		if err := s.closeHole(ctx, tx, programID, group.ParentID, group.ParentIndex); err != nil {
			return err
		}
		return s.VerifyProgram(ctx, tx, programID)
	})
	if err != nil {
		observability.Current().IncTreeOp("delete_group", "error")
		return apperr.Map(err)
	}
	observability.Current().IncTreeOp("delete_group", "ok")
	if s.notifier != nil {
		s.notifier.GroupEdit(programID, groupID, "delete")
	}
	return nil
}

// DeleteObservation soft-deletes: the row stays, but it leaves the index
// space, so the bucket compacts. The calc entries go with it.
func (s *groupTreeService) DeleteObservation(ctx context.Context, obsID uuid.UUID) error {
	var programID uuid.UUID
	err := s.db.Transaction(func(tx *gorm.DB) error {
		obs, err := s.obs.LockByID(ctx, tx, obsID)
		if err != nil {
			return err
		}
		if obs == nil || obs.Existence != types.ExistencePresent {
			return apperr.NotFoundError(fmt.Sprintf("observation %s", obsID))
		}
		programID = obs.ProgramID
		if err := s.obs.SoftDelete(ctx, tx, obsID); err != nil {
			return err
		}
		if s.obscalc != nil {
			if err := s.obscalc.DeleteEntry(ctx, tx, obsID); err != nil {
				return err
			}
		}
		if s.blind != nil {
			if err := s.blind.DeleteEntry(ctx, tx, obsID); err != nil {
				return err
			}
		}
		if err := s.closeHole(ctx, tx, programID, obs.GroupID, obs.GroupIndex); err != nil {
			return err
		}
		return s.VerifyProgram(ctx, tx, programID)
	})
	if err != nil {
		observability.Current().IncTreeOp("delete_observation", "error")
		return apperr.Map(err)
	}
	observability.Current().IncTreeOp("delete_observation", "ok")
	if s.notifier != nil {
		s.notifier.ObservationEdit(programID, obsID, "delete")
	}
	return nil
}

func (s *groupTreeService) ListChildren(ctx context.Context, programID uuid.UUID, parentID *uuid.UUID) ([]*TreeChild, error) {
	groups, err := s.groups.ListBucket(ctx, nil, programID, parentID)
	if err != nil {
		return nil, apperr.Map(err)
	}
	observations, err := s.obs.ListBucket(ctx, nil, programID, parentID)
	if err != nil {
		return nil, apperr.Map(err)
	}
	children := make([]*TreeChild, 0, len(groups)+len(observations))
	for _, g := range groups {
		children = append(children, &TreeChild{Index: g.ParentIndex, Group: g})
	}
	for _, o := range observations {
		children = append(children, &TreeChild{Index: o.GroupIndex, Observation: o})
	}
	sortChildren(children)
	return children, nil
}

// openHole makes room at `at`: every group and observation sibling at or
// after it shifts up by one.
func (s *groupTreeService) openHole(ctx context.Context, tx *gorm.DB, programID uuid.UUID, parentID *uuid.UUID, at int16) error {
	if err := s.groups.ShiftIndices(ctx, tx, programID, parentID, at, 1); err != nil {
		return err
	}
	return s.obs.ShiftIndices(ctx, tx, programID, parentID, at, 1)
}

// closeHole removes the gap at `at`: every sibling after it shifts down by
// one. Exact inverse of openHole at the same position.
func (s *groupTreeService) closeHole(ctx context.Context, tx *gorm.DB, programID uuid.UUID, parentID *uuid.UUID, at int16) error {
	if err := s.groups.ShiftIndices(ctx, tx, programID, parentID, at+1, -1); err != nil {
		return err
	}
	return s.obs.ShiftIndices(ctx, tx, programID, parentID, at+1, -1)
}

// resolveIndex turns an optional requested index into a concrete one.
// Appending resolves to max+1 rather than count, which stays correct even if
// soft-deleted members once occupied higher slots.
func (s *groupTreeService) resolveIndex(ctx context.Context, tx *gorm.DB, programID uuid.UUID, parentID *uuid.UUID, at *int16) (int16, error) {
	if at != nil {
		if *at < 0 {
			return 0, apperr.ValidationError(fmt.Sprintf("negative index %d", *at))
		}
		return *at, nil
	}
	groupMax, groupFound, err := s.groups.MaxIndex(ctx, tx, programID, parentID)
	if err != nil {
		return 0, err
	}
	obsMax, obsFound, err := s.obs.MaxIndex(ctx, tx, programID, parentID)
	if err != nil {
		return 0, err
	}
	next := int16(0)
	if groupFound && groupMax+1 > next {
		next = groupMax + 1
	}
	if obsFound && obsMax+1 > next {
		next = obsMax + 1
	}
	return next, nil
}

func sameBucket(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
