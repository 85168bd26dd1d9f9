package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/orionsky/obsdb-backend/internal/apperr"
	"github.com/orionsky/obsdb-backend/internal/types"
)

type editFixture struct {
	svc      ObservationEditService
	obs      *fakeObservationRepo
	targets  *fakeTargetRepo
	asterism *fakeAsterismRepo
	gmos     *fakeGmosLongSlitRepo
	obscalc  *fakeObscalcService
	blind    *fakeBlindOffsetService
	program  uuid.UUID
	obsID    uuid.UUID
}

func newEditFixture(t *testing.T) *editFixture {
	t.Helper()
	f := &editFixture{
		obs:      newFakeObservationRepo(),
		targets:  newFakeTargetRepo(),
		asterism: newFakeAsterismRepo(),
		gmos:     newFakeGmosLongSlitRepo(),
		obscalc:  &fakeObscalcService{},
		blind:    &fakeBlindOffsetService{},
		program:  uuid.New(),
	}
	obs, err := f.obs.Create(context.Background(), nil, &types.Observation{
		ProgramID: f.program,
		Existence: types.ExistencePresent,
	})
	if err != nil {
		t.Fatalf("seed observation: %v", err)
	}
	f.obsID = obs.ID
	f.svc = NewObservationEditService(newTestDB(t), testLogger(t), f.obs, f.targets, f.asterism, f.gmos, f.obscalc, f.blind, &recordingNotifier{})
	return f
}

func (f *editFixture) seedTarget(t *testing.T) *types.Target {
	t.Helper()
	target, err := f.targets.Create(context.Background(), nil, &types.Target{
		ProgramID: f.program,
		Name:      "HD 12345",
		Existence: types.ExistencePresent,
	})
	if err != nil {
		t.Fatalf("seed target: %v", err)
	}
	return target
}

func TestUpdateObservationInvalidatesObscalc(t *testing.T) {
	f := newEditFixture(t)

	err := f.svc.UpdateObservation(context.Background(), f.obsID, map[string]interface{}{"title": "deep field"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(f.obscalc.invalidated) != 1 || f.obscalc.invalidated[0] != f.obsID {
		t.Fatalf("obscalc invalidations = %v; want [%s]", f.obscalc.invalidated, f.obsID)
	}
	if len(f.blind.invalidated) != 0 {
		t.Fatalf("blind-offset invalidations = %v; title edits do not move the pointing", f.blind.invalidated)
	}
}

func TestUpdateObservationRejectsStructuralColumns(t *testing.T) {
	f := newEditFixture(t)

	for _, column := range []string{"group_id", "group_index", "existence"} {
		err := f.svc.UpdateObservation(context.Background(), f.obsID, map[string]interface{}{column: nil})
		if !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("update %s: err = %v; want validation error", column, err)
		}
	}
	if len(f.obscalc.invalidated) != 0 {
		t.Fatalf("rejected edits still invalidated: %v", f.obscalc.invalidated)
	}
}

func TestSetGmosLongSlitInvalidatesObscalc(t *testing.T) {
	f := newEditFixture(t)

	mode := &types.GmosLongSlit{
		ObservationID:     f.obsID,
		Grating:           "B600",
		Fpu:               "1.0arcsec",
		CentralWavelength: 520_000,
	}
	if err := f.svc.SetGmosLongSlit(context.Background(), mode); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	stored, _ := f.gmos.GetByObservation(context.Background(), nil, f.obsID)
	if stored == nil || stored.Grating != "B600" {
		t.Fatalf("stored mode = %+v", stored)
	}
	if len(f.obscalc.invalidated) != 1 {
		t.Fatalf("obscalc invalidations = %v; want one", f.obscalc.invalidated)
	}
}

func TestUpdateGmosLongSlitRequiresExistingMode(t *testing.T) {
	f := newEditFixture(t)

	err := f.svc.UpdateGmosLongSlit(context.Background(), f.obsID, map[string]interface{}{"grating": "R831"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v; want not-found for an observation without a mode", err)
	}
}

func TestAsterismEditInvalidatesBothMachines(t *testing.T) {
	f := newEditFixture(t)
	target := f.seedTarget(t)

	if err := f.svc.AddAsterismTarget(context.Background(), f.obsID, target.ID); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(f.obscalc.invalidated) != 1 || len(f.blind.invalidated) != 1 {
		t.Fatalf("invalidations = obscalc %v, blind %v; want one each", f.obscalc.invalidated, f.blind.invalidated)
	}

	ids, _ := f.asterism.ListTargetIDs(context.Background(), nil, f.obsID)
	if len(ids) != 1 || ids[0] != target.ID {
		t.Fatalf("asterism = %v; want [%s]", ids, target.ID)
	}

	if err := f.svc.RemoveAsterismTarget(context.Background(), f.obsID, target.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(f.obscalc.invalidated) != 2 || len(f.blind.invalidated) != 2 {
		t.Fatalf("invalidations after remove = obscalc %v, blind %v", f.obscalc.invalidated, f.blind.invalidated)
	}
}

func TestAddAsterismTargetFromOtherProgramRejected(t *testing.T) {
	f := newEditFixture(t)
	foreign, err := f.targets.Create(context.Background(), nil, &types.Target{
		ProgramID: uuid.New(),
		Name:      "interloper",
		Existence: types.ExistencePresent,
	})
	if err != nil {
		t.Fatalf("seed target: %v", err)
	}

	addErr := f.svc.AddAsterismTarget(context.Background(), f.obsID, foreign.ID)
	if !errors.Is(addErr, apperr.ErrNotFound) {
		t.Fatalf("err = %v; want not-found for a cross-program target", addErr)
	}
}

func TestTargetEditFansOutToReferencingObservations(t *testing.T) {
	f := newEditFixture(t)
	target := f.seedTarget(t)
	if err := f.asterism.Add(context.Background(), nil, f.obsID, target.ID); err != nil {
		t.Fatalf("seed asterism: %v", err)
	}

	obscalc := &fakeObscalcService{}
	blind := &fakeBlindOffsetService{}
	svc := NewTargetEditService(newTestDB(t), testLogger(t), f.targets, f.asterism, obscalc, blind, &recordingNotifier{})

	// A name edit touches the ITC inputs but not the pointing.
	if err := svc.UpdateTarget(context.Background(), target.ID, map[string]interface{}{"name": "HD 12345 B"}); err != nil {
		t.Fatalf("update name: %v", err)
	}
	if len(obscalc.invalidated) != 1 || len(blind.invalidated) != 0 {
		t.Fatalf("after name edit: obscalc %v, blind %v", obscalc.invalidated, blind.invalidated)
	}

	// A coordinate edit moves the target, so both machines go dirty.
	if err := svc.UpdateTarget(context.Background(), target.ID, map[string]interface{}{"ra_uas": int64(99)}); err != nil {
		t.Fatalf("update coordinates: %v", err)
	}
	if len(obscalc.invalidated) != 2 || len(blind.invalidated) != 1 {
		t.Fatalf("after coordinate edit: obscalc %v, blind %v", obscalc.invalidated, blind.invalidated)
	}

	if err := svc.DeleteTarget(context.Background(), target.ID); err != nil {
		t.Fatalf("delete target: %v", err)
	}
	if len(obscalc.invalidated) != 3 || len(blind.invalidated) != 2 {
		t.Fatalf("after delete: obscalc %v, blind %v", obscalc.invalidated, blind.invalidated)
	}
	if _, err := svc.GetTarget(context.Background(), target.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("get after delete: err = %v; want not-found", err)
	}
}
