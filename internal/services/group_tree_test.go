package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/orionsky/obsdb-backend/internal/apperr"
	"github.com/orionsky/obsdb-backend/internal/types"
)

type treeFixture struct {
	svc      GroupTreeService
	groups   *fakeGroupRepo
	obs      *fakeObservationRepo
	obscalc  *fakeObscalcService
	blind    *fakeBlindOffsetService
	notifier *recordingNotifier
	program  uuid.UUID
}

func newTreeFixture(t *testing.T) *treeFixture {
	t.Helper()
	f := &treeFixture{
		groups:   newFakeGroupRepo(),
		obs:      newFakeObservationRepo(),
		obscalc:  &fakeObscalcService{},
		blind:    &fakeBlindOffsetService{},
		notifier: &recordingNotifier{},
		program:  uuid.New(),
	}
	f.svc = NewGroupTreeService(newTestDB(t), testLogger(t), f.groups, f.obs, f.obscalc, f.blind, f.notifier)
	return f
}

func (f *treeFixture) mustInsertGroup(t *testing.T, parentID *uuid.UUID, at *int16) *types.Group {
	t.Helper()
	g, err := f.svc.InsertGroup(context.Background(), &types.Group{ProgramID: f.program, ParentID: parentID}, at)
	if err != nil {
		t.Fatalf("insert group: %v", err)
	}
	return g
}

func (f *treeFixture) mustInsertObservation(t *testing.T, groupID *uuid.UUID, at *int16) *types.Observation {
	t.Helper()
	o, err := f.svc.InsertObservation(context.Background(), &types.Observation{ProgramID: f.program, GroupID: groupID}, at)
	if err != nil {
		t.Fatalf("insert observation: %v", err)
	}
	return o
}

func int16p(v int16) *int16 { return &v }

func TestInsertAppendsAcrossSharedIndexSpace(t *testing.T) {
	f := newTreeFixture(t)

	g0 := f.mustInsertGroup(t, nil, nil)
	g1 := f.mustInsertGroup(t, nil, nil)
	o2 := f.mustInsertObservation(t, nil, nil)

	if g0.ParentIndex != 0 || g1.ParentIndex != 1 {
		t.Fatalf("group indices = %d, %d; want 0, 1", g0.ParentIndex, g1.ParentIndex)
	}
	if o2.GroupIndex != 2 {
		t.Fatalf("observation index = %d; want 2 (appended after groups)", o2.GroupIndex)
	}
}

func TestInsertAtIndexOpensHole(t *testing.T) {
	f := newTreeFixture(t)

	g0 := f.mustInsertGroup(t, nil, nil)
	o1 := f.mustInsertObservation(t, nil, nil)

	mid := f.mustInsertGroup(t, nil, int16p(1))
	if mid.ParentIndex != 1 {
		t.Fatalf("inserted index = %d; want 1", mid.ParentIndex)
	}
	if got, _ := f.groups.GetByID(context.Background(), nil, g0.ID); got.ParentIndex != 0 {
		t.Fatalf("first sibling moved to %d; want 0", got.ParentIndex)
	}
	if got, _ := f.obs.GetByID(context.Background(), nil, o1.ID); got.GroupIndex != 2 {
		t.Fatalf("observation shifted to %d; want 2", got.GroupIndex)
	}
}

func TestInsertNegativeIndexRejected(t *testing.T) {
	f := newTreeFixture(t)

	_, err := f.svc.InsertGroup(context.Background(), &types.Group{ProgramID: f.program}, int16p(-3))
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v; want validation error", err)
	}
}

func TestInsertUnderMissingParentRejected(t *testing.T) {
	f := newTreeFixture(t)

	missing := uuid.New()
	_, err := f.svc.InsertGroup(context.Background(), &types.Group{ProgramID: f.program, ParentID: &missing}, nil)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v; want not-found error", err)
	}
}

func TestMoveObservationAcrossBuckets(t *testing.T) {
	f := newTreeFixture(t)

	parent := f.mustInsertGroup(t, nil, nil)
	inner0 := f.mustInsertObservation(t, &parent.ID, nil)
	inner1 := f.mustInsertObservation(t, &parent.ID, nil)
	top1 := f.mustInsertObservation(t, nil, nil)

	// Pull inner0 out to the top level at index 1; top1 shifts, inner1
	// compacts down to 0.
	if err := f.svc.MoveObservation(context.Background(), inner0.ID, nil, int16p(1)); err != nil {
		t.Fatalf("move observation: %v", err)
	}

	moved, _ := f.obs.GetByID(context.Background(), nil, inner0.ID)
	if moved.GroupID != nil || moved.GroupIndex != 1 {
		t.Fatalf("moved to (%v, %d); want (top-level, 1)", moved.GroupID, moved.GroupIndex)
	}
	if got, _ := f.obs.GetByID(context.Background(), nil, top1.ID); got.GroupIndex != 2 {
		t.Fatalf("destination sibling at %d; want 2", got.GroupIndex)
	}
	if got, _ := f.obs.GetByID(context.Background(), nil, inner1.ID); got.GroupIndex != 0 {
		t.Fatalf("source sibling at %d; want 0 after compaction", got.GroupIndex)
	}
}

func TestMoveGroupSameSlotIsNoop(t *testing.T) {
	f := newTreeFixture(t)

	g0 := f.mustInsertGroup(t, nil, nil)
	g1 := f.mustInsertGroup(t, nil, nil)

	if err := f.svc.MoveGroup(context.Background(), g1.ID, nil, int16p(1)); err != nil {
		t.Fatalf("same-slot move: %v", err)
	}
	if got, _ := f.groups.GetByID(context.Background(), nil, g0.ID); got.ParentIndex != 0 {
		t.Fatalf("untouched sibling at %d; want 0", got.ParentIndex)
	}
	if got, _ := f.groups.GetByID(context.Background(), nil, g1.ID); got.ParentIndex != 1 {
		t.Fatalf("moved group at %d; want 1", got.ParentIndex)
	}
	if f.notifier.has("group:move") {
		t.Fatalf("events = %v; same-slot move should not notify", f.notifier.events)
	}
}

func TestMoveObservationSameSlotIsNoop(t *testing.T) {
	f := newTreeFixture(t)

	f.mustInsertObservation(t, nil, nil)
	o1 := f.mustInsertObservation(t, nil, nil)

	if err := f.svc.MoveObservation(context.Background(), o1.ID, nil, int16p(1)); err != nil {
		t.Fatalf("same-slot move: %v", err)
	}
	if got, _ := f.obs.GetByID(context.Background(), nil, o1.ID); got.GroupIndex != 1 {
		t.Fatalf("observation at %d; want 1", got.GroupIndex)
	}
	if f.notifier.has("observation:move") {
		t.Fatalf("events = %v; same-slot move should not notify", f.notifier.events)
	}
}

func TestMoveGroupWithinBucketReorders(t *testing.T) {
	f := newTreeFixture(t)

	g0 := f.mustInsertGroup(t, nil, nil)
	g1 := f.mustInsertGroup(t, nil, nil)
	g2 := f.mustInsertGroup(t, nil, nil)

	// Pull the last group to the front; the displaced siblings shift up.
	if err := f.svc.MoveGroup(context.Background(), g2.ID, nil, int16p(0)); err != nil {
		t.Fatalf("reorder move: %v", err)
	}

	want := map[uuid.UUID]int16{g2.ID: 0, g0.ID: 1, g1.ID: 2}
	for id, index := range want {
		if got, _ := f.groups.GetByID(context.Background(), nil, id); got.ParentIndex != index {
			t.Fatalf("group %s at %d; want %d", id, got.ParentIndex, index)
		}
	}
	if !f.notifier.has("group:move") {
		t.Fatal("reorder move should notify")
	}
}

func TestMoveGroupUnderItselfRejected(t *testing.T) {
	f := newTreeFixture(t)

	g := f.mustInsertGroup(t, nil, nil)
	err := f.svc.MoveGroup(context.Background(), g.ID, &g.ID, nil)
	if !errors.Is(err, apperr.ErrInvariant) {
		t.Fatalf("err = %v; want invariant error", err)
	}
}

func TestMoveGroupUnderDescendantRejected(t *testing.T) {
	f := newTreeFixture(t)

	parent := f.mustInsertGroup(t, nil, nil)
	child := f.mustInsertGroup(t, &parent.ID, nil)
	grandchild := f.mustInsertGroup(t, &child.ID, nil)

	err := f.svc.MoveGroup(context.Background(), parent.ID, &grandchild.ID, nil)
	if !errors.Is(err, apperr.ErrInvariant) {
		t.Fatalf("err = %v; want invariant error", err)
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("err = %v; want cycle detection message", err)
	}
}

func TestDeleteGroupCompactsBucket(t *testing.T) {
	f := newTreeFixture(t)

	g0 := f.mustInsertGroup(t, nil, nil)
	f.mustInsertGroup(t, nil, nil)
	o2 := f.mustInsertObservation(t, nil, nil)

	victim, _ := f.svc.ListChildren(context.Background(), f.program, nil)
	if len(victim) != 3 {
		t.Fatalf("children = %d; want 3", len(victim))
	}

	if err := f.svc.DeleteGroup(context.Background(), victim[1].Group.ID); err != nil {
		t.Fatalf("delete group: %v", err)
	}
	if got, _ := f.groups.GetByID(context.Background(), nil, g0.ID); got.ParentIndex != 0 {
		t.Fatalf("first sibling at %d; want 0", got.ParentIndex)
	}
	if got, _ := f.obs.GetByID(context.Background(), nil, o2.ID); got.GroupIndex != 1 {
		t.Fatalf("observation at %d; want 1 after compaction", got.GroupIndex)
	}
}

func TestDeleteGroupWithChildrenRejected(t *testing.T) {
	f := newTreeFixture(t)

	parent := f.mustInsertGroup(t, nil, nil)
	f.mustInsertObservation(t, &parent.ID, nil)

	err := f.svc.DeleteGroup(context.Background(), parent.ID)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v; want validation error for non-empty group", err)
	}
}

func TestDeleteObservationRemovesCalcEntries(t *testing.T) {
	f := newTreeFixture(t)

	f.mustInsertObservation(t, nil, nil)
	victim := f.mustInsertObservation(t, nil, nil)
	trailing := f.mustInsertObservation(t, nil, nil)

	if err := f.svc.DeleteObservation(context.Background(), victim.ID); err != nil {
		t.Fatalf("delete observation: %v", err)
	}
	if len(f.obscalc.deleted) != 1 || f.obscalc.deleted[0] != victim.ID {
		t.Fatalf("obscalc entries deleted = %v; want [%s]", f.obscalc.deleted, victim.ID)
	}
	if len(f.blind.deleted) != 1 || f.blind.deleted[0] != victim.ID {
		t.Fatalf("blind-offset entries deleted = %v; want [%s]", f.blind.deleted, victim.ID)
	}
	if got, _ := f.obs.GetByID(context.Background(), nil, victim.ID); got.Existence != types.ExistenceDeleted {
		t.Fatalf("victim existence = %s; want deleted", got.Existence)
	}
	if got, _ := f.obs.GetByID(context.Background(), nil, trailing.ID); got.GroupIndex != 1 {
		t.Fatalf("trailing observation at %d; want 1 after compaction", got.GroupIndex)
	}
}

func TestDeleteMissingObservation(t *testing.T) {
	f := newTreeFixture(t)

	err := f.svc.DeleteObservation(context.Background(), uuid.New())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v; want not-found error", err)
	}
}

func TestListChildrenSortsMixedSiblings(t *testing.T) {
	f := newTreeFixture(t)

	f.mustInsertObservation(t, nil, nil)
	f.mustInsertGroup(t, nil, nil)
	f.mustInsertObservation(t, nil, int16p(1))

	children, err := f.svc.ListChildren(context.Background(), f.program, nil)
	if err != nil {
		t.Fatalf("list children: %v", err)
	}
	if len(children) != 3 {
		t.Fatalf("children = %d; want 3", len(children))
	}
	for i, child := range children {
		if child.Index != int16(i) {
			t.Fatalf("child %d has index %d", i, child.Index)
		}
	}
	if children[0].Observation == nil || children[1].Observation == nil || children[2].Group == nil {
		t.Fatalf("child kinds out of order: %+v", children)
	}
}

func TestVerifyProgramReportsDiscontinuity(t *testing.T) {
	f := newTreeFixture(t)

	g := f.mustInsertGroup(t, nil, nil)
	f.groups.groups[g.ID].ParentIndex = 2

	err := f.svc.VerifyProgram(context.Background(), nil, f.program)
	if !errors.Is(err, apperr.ErrInvariant) {
		t.Fatalf("err = %v; want invariant error", err)
	}
	if !strings.Contains(err.Error(), "not contiguous") {
		t.Fatalf("err = %v; want contiguity message", err)
	}
}
