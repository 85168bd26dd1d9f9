package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"github.com/orionsky/obsdb-backend/internal/logger"
	"github.com/orionsky/obsdb-backend/internal/types"
)

// The services only need *gorm.DB for transaction demarcation; the fakes
// below ignore the handle entirely. The nop dialector gives us a DB whose
// Begin/Commit/Rollback are no-ops so the real transaction plumbing runs.

type nopConnPool struct{}

func (nopConnPool) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return nil, nil
}
func (nopConnPool) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (nopConnPool) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (nopConnPool) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

type nopTx struct{ nopConnPool }

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }

type nopBeginner struct{ nopConnPool }

func (nopBeginner) BeginTx(ctx context.Context, opts *sql.TxOptions) (gorm.ConnPool, error) {
	// Must be a pointer: gorm's commit path nil-checks the committer via
	// reflection, which is only legal for pointer kinds.
	return &nopTx{}, nil
}

type nopDialector struct{}

func (nopDialector) Name() string                   { return "nop" }
func (nopDialector) Initialize(db *gorm.DB) error   { db.ConnPool = nopBeginner{}; return nil }
func (nopDialector) Migrator(db *gorm.DB) gorm.Migrator { return nil }
func (nopDialector) DataTypeOf(field *schema.Field) string { return "" }
func (nopDialector) DefaultValueOf(field *schema.Field) clause.Expression {
	return clause.Expr{}
}
func (nopDialector) BindVarTo(writer clause.Writer, stmt *gorm.Statement, v interface{}) {}
func (nopDialector) QuoteTo(writer clause.Writer, str string)                            {}
func (nopDialector) Explain(sql string, vars ...interface{}) string                      { return sql }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(nopDialector{}, &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return db
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("production")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func sameParentID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ---- group repo fake ----

type fakeGroupRepo struct {
	mu     sync.Mutex
	groups map[uuid.UUID]*types.Group
}

func newFakeGroupRepo() *fakeGroupRepo {
	return &fakeGroupRepo{groups: map[uuid.UUID]*types.Group{}}
}

func (f *fakeGroupRepo) Create(ctx context.Context, tx *gorm.DB, group *types.Group) (*types.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if group.ID == uuid.Nil {
		group.ID = uuid.New()
	}
	f.groups[group.ID] = group
	return group, nil
}

func (f *fakeGroupRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.groups[id], nil
}

func (f *fakeGroupRepo) LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Group, error) {
	return f.GetByID(ctx, tx, id)
}

func (f *fakeGroupRepo) ListByProgram(ctx context.Context, tx *gorm.DB, programID uuid.UUID) ([]*types.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Group
	for _, g := range f.groups {
		if g.ProgramID == programID && g.Existence == types.ExistencePresent {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeGroupRepo) ListBucket(ctx context.Context, tx *gorm.DB, programID uuid.UUID, parentID *uuid.UUID) ([]*types.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Group
	for _, g := range f.groups {
		if g.ProgramID == programID && sameParentID(g.ParentID, parentID) && g.Existence == types.ExistencePresent {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParentIndex < out[j].ParentIndex })
	return out, nil
}

func (f *fakeGroupRepo) MaxIndex(ctx context.Context, tx *gorm.DB, programID uuid.UUID, parentID *uuid.UUID) (int16, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	max := int16(0)
	found := false
	for _, g := range f.groups {
		if g.ProgramID != programID || !sameParentID(g.ParentID, parentID) || g.Existence != types.ExistencePresent {
			continue
		}
		if !found || g.ParentIndex > max {
			max = g.ParentIndex
		}
		found = true
	}
	return max, found, nil
}

func (f *fakeGroupRepo) ShiftIndices(ctx context.Context, tx *gorm.DB, programID uuid.UUID, parentID *uuid.UUID, from int16, delta int16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.groups {
		if g.ProgramID == programID && sameParentID(g.ParentID, parentID) && g.Existence == types.ExistencePresent && g.ParentIndex >= from {
			g.ParentIndex += delta
		}
	}
	return nil
}

func (f *fakeGroupRepo) SetPosition(ctx context.Context, tx *gorm.DB, id uuid.UUID, parentID *uuid.UUID, index int16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.groups[id]; ok {
		g.ParentID = parentID
		g.ParentIndex = index
	}
	return nil
}

func (f *fakeGroupRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (f *fakeGroupRepo) CountChildGroups(ctx context.Context, tx *gorm.DB, programID uuid.UUID, parentID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, g := range f.groups {
		if g.ProgramID == programID && g.ParentID != nil && *g.ParentID == parentID && g.Existence == types.ExistencePresent {
			count++
		}
	}
	return count, nil
}

func (f *fakeGroupRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.groups, id)
	return nil
}

// ---- observation repo fake ----

type fakeObservationRepo struct {
	mu  sync.Mutex
	obs map[uuid.UUID]*types.Observation
}

func newFakeObservationRepo() *fakeObservationRepo {
	return &fakeObservationRepo{obs: map[uuid.UUID]*types.Observation{}}
}

func (f *fakeObservationRepo) Create(ctx context.Context, tx *gorm.DB, obs *types.Observation) (*types.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if obs.ID == uuid.Nil {
		obs.ID = uuid.New()
	}
	f.obs[obs.ID] = obs
	return obs, nil
}

func (f *fakeObservationRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.obs[id], nil
}

func (f *fakeObservationRepo) LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Observation, error) {
	return f.GetByID(ctx, tx, id)
}

func (f *fakeObservationRepo) ListByProgram(ctx context.Context, tx *gorm.DB, programID uuid.UUID) ([]*types.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Observation
	for _, o := range f.obs {
		if o.ProgramID == programID && o.Existence == types.ExistencePresent {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeObservationRepo) ListBucket(ctx context.Context, tx *gorm.DB, programID uuid.UUID, groupID *uuid.UUID) ([]*types.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Observation
	for _, o := range f.obs {
		if o.ProgramID == programID && sameParentID(o.GroupID, groupID) && o.Existence == types.ExistencePresent {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupIndex < out[j].GroupIndex })
	return out, nil
}

func (f *fakeObservationRepo) ListIDsByTarget(ctx context.Context, tx *gorm.DB, targetID uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

func (f *fakeObservationRepo) MaxIndex(ctx context.Context, tx *gorm.DB, programID uuid.UUID, groupID *uuid.UUID) (int16, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	max := int16(0)
	found := false
	for _, o := range f.obs {
		if o.ProgramID != programID || !sameParentID(o.GroupID, groupID) || o.Existence != types.ExistencePresent {
			continue
		}
		if !found || o.GroupIndex > max {
			max = o.GroupIndex
		}
		found = true
	}
	return max, found, nil
}

func (f *fakeObservationRepo) ShiftIndices(ctx context.Context, tx *gorm.DB, programID uuid.UUID, groupID *uuid.UUID, from int16, delta int16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.obs {
		if o.ProgramID == programID && sameParentID(o.GroupID, groupID) && o.Existence == types.ExistencePresent && o.GroupIndex >= from {
			o.GroupIndex += delta
		}
	}
	return nil
}

func (f *fakeObservationRepo) SetPosition(ctx context.Context, tx *gorm.DB, id uuid.UUID, groupID *uuid.UUID, index int16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.obs[id]; ok {
		o.GroupID = groupID
		o.GroupIndex = index
	}
	return nil
}

func (f *fakeObservationRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (f *fakeObservationRepo) CountInGroup(ctx context.Context, tx *gorm.DB, programID uuid.UUID, groupID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, o := range f.obs {
		if o.ProgramID == programID && o.GroupID != nil && *o.GroupID == groupID && o.Existence == types.ExistencePresent {
			count++
		}
	}
	return count, nil
}

func (f *fakeObservationRepo) SoftDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.obs[id]; ok {
		o.Existence = types.ExistenceDeleted
	}
	return nil
}

// ---- obscalc repo fake ----

type fakeObscalcRepo struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*types.Obscalc
}

func newFakeObscalcRepo() *fakeObscalcRepo {
	return &fakeObscalcRepo{entries: map[uuid.UUID]*types.Obscalc{}}
}

func (f *fakeObscalcRepo) Get(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) (*types.Obscalc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[observationID], nil
}

func (f *fakeObscalcRepo) LockByID(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) (*types.Obscalc, error) {
	return f.Get(ctx, tx, observationID)
}

func (f *fakeObscalcRepo) Create(ctx context.Context, tx *gorm.DB, entry *types.Obscalc) (*types.Obscalc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[entry.ObservationID] = entry
	return entry, nil
}

func (f *fakeObscalcRepo) UpdateFields(ctx context.Context, tx *gorm.DB, observationID uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[observationID]
	if !ok {
		return nil
	}
	applyCalcUpdates(updates, &entry.State, &entry.LastInvalidation, &entry.LastUpdate, &entry.RetryAt, &entry.FailureCount)
	if v, ok := updates["itc_result"]; ok {
		entry.ItcResult = asJSON(v)
	}
	if v, ok := updates["execution_digest"]; ok {
		entry.ExecutionDigest = asJSON(v)
	}
	if v, ok := updates["odb_error"]; ok {
		entry.OdbError = asJSON(v)
	}
	return nil
}

func (f *fakeObscalcRepo) ClaimNext(ctx context.Context, tx *gorm.DB, now time.Time) (*types.Obscalc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *types.Obscalc
	for _, e := range f.entries {
		due := e.State == types.CalcStatePending ||
			(e.State == types.CalcStateRetry && e.RetryAt != nil && !e.RetryAt.After(now))
		if !due {
			continue
		}
		if best == nil || e.LastInvalidation.Before(best.LastInvalidation) {
			best = e
		}
	}
	if best == nil {
		return nil, nil
	}
	best.State = types.CalcStateCalculating
	best.RetryAt = nil
	copied := *best
	return &copied, nil
}

func (f *fakeObscalcRepo) CountByState(ctx context.Context, tx *gorm.DB) (map[types.CalcState]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[types.CalcState]int64{}
	for _, e := range f.entries {
		out[e.State]++
	}
	return out, nil
}

func (f *fakeObscalcRepo) ListByProgram(ctx context.Context, tx *gorm.DB, programID uuid.UUID) ([]*types.Obscalc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Obscalc
	for _, e := range f.entries {
		if e.ProgramID == programID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeObscalcRepo) Delete(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, observationID)
	return nil
}

// ---- blind offset repo fake ----

type fakeBlindOffsetRepo struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*types.BlindOffset
}

func newFakeBlindOffsetRepo() *fakeBlindOffsetRepo {
	return &fakeBlindOffsetRepo{entries: map[uuid.UUID]*types.BlindOffset{}}
}

func (f *fakeBlindOffsetRepo) Get(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) (*types.BlindOffset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[observationID], nil
}

func (f *fakeBlindOffsetRepo) LockByID(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) (*types.BlindOffset, error) {
	return f.Get(ctx, tx, observationID)
}

func (f *fakeBlindOffsetRepo) Create(ctx context.Context, tx *gorm.DB, entry *types.BlindOffset) (*types.BlindOffset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[entry.ObservationID] = entry
	return entry, nil
}

func (f *fakeBlindOffsetRepo) UpdateFields(ctx context.Context, tx *gorm.DB, observationID uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[observationID]
	if !ok {
		return nil
	}
	applyCalcUpdates(updates, &entry.State, &entry.LastInvalidation, &entry.LastUpdate, &entry.RetryAt, &entry.FailureCount)
	if v, ok := updates["offset"]; ok {
		entry.Offset = asJSON(v)
	}
	if v, ok := updates["odb_error"]; ok {
		entry.OdbError = asJSON(v)
	}
	return nil
}

func (f *fakeBlindOffsetRepo) ClaimNext(ctx context.Context, tx *gorm.DB, now time.Time) (*types.BlindOffset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *types.BlindOffset
	for _, e := range f.entries {
		due := e.State == types.CalcStatePending ||
			(e.State == types.CalcStateRetry && e.RetryAt != nil && !e.RetryAt.After(now))
		if !due {
			continue
		}
		if best == nil || e.LastInvalidation.Before(best.LastInvalidation) {
			best = e
		}
	}
	if best == nil {
		return nil, nil
	}
	best.State = types.CalcStateCalculating
	best.RetryAt = nil
	copied := *best
	return &copied, nil
}

func (f *fakeBlindOffsetRepo) CountByState(ctx context.Context, tx *gorm.DB) (map[types.CalcState]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[types.CalcState]int64{}
	for _, e := range f.entries {
		out[e.State]++
	}
	return out, nil
}

func (f *fakeBlindOffsetRepo) Delete(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, observationID)
	return nil
}

func applyCalcUpdates(updates map[string]interface{}, state *types.CalcState, lastInvalidation, lastUpdate *time.Time, retryAt **time.Time, failureCount *int) {
	if v, ok := updates["state"]; ok {
		*state = v.(types.CalcState)
	}
	if v, ok := updates["last_invalidation"]; ok {
		*lastInvalidation = v.(time.Time)
	}
	if v, ok := updates["last_update"]; ok {
		*lastUpdate = v.(time.Time)
	}
	if v, ok := updates["retry_at"]; ok {
		if v == nil {
			*retryAt = nil
		} else {
			at := v.(time.Time)
			*retryAt = &at
		}
	}
	if v, ok := updates["failure_count"]; ok {
		*failureCount = v.(int)
	}
}

func asJSON(v interface{}) datatypes.JSON {
	if v == nil {
		return nil
	}
	return v.(datatypes.JSON)
}

// ---- target / asterism / mode repo fakes ----

type fakeTargetRepo struct {
	mu      sync.Mutex
	targets map[uuid.UUID]*types.Target
}

func newFakeTargetRepo() *fakeTargetRepo {
	return &fakeTargetRepo{targets: map[uuid.UUID]*types.Target{}}
}

func (f *fakeTargetRepo) Create(ctx context.Context, tx *gorm.DB, target *types.Target) (*types.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if target.ID == uuid.Nil {
		target.ID = uuid.New()
	}
	f.targets[target.ID] = target
	return target, nil
}

func (f *fakeTargetRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.targets[id]
	if !ok || t.Existence != types.ExistencePresent {
		return nil, nil
	}
	return t, nil
}

func (f *fakeTargetRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Target
	for _, id := range ids {
		if t, ok := f.targets[id]; ok && t.Existence == types.ExistencePresent {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTargetRepo) ListByProgram(ctx context.Context, tx *gorm.DB, programID uuid.UUID) ([]*types.Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Target
	for _, t := range f.targets {
		if t.ProgramID == programID && t.Existence == types.ExistencePresent {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTargetRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (f *fakeTargetRepo) SoftDelete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.targets[id]; ok {
		t.Existence = types.ExistenceDeleted
	}
	return nil
}

type asterismKey struct {
	observationID uuid.UUID
	targetID      uuid.UUID
}

type fakeAsterismRepo struct {
	mu      sync.Mutex
	members map[asterismKey]bool
}

func newFakeAsterismRepo() *fakeAsterismRepo {
	return &fakeAsterismRepo{members: map[asterismKey]bool{}}
}

func (f *fakeAsterismRepo) Add(ctx context.Context, tx *gorm.DB, observationID, targetID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[asterismKey{observationID, targetID}] = true
	return nil
}

func (f *fakeAsterismRepo) Remove(ctx context.Context, tx *gorm.DB, observationID, targetID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members, asterismKey{observationID, targetID})
	return nil
}

func (f *fakeAsterismRepo) ListTargetIDs(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uuid.UUID
	for k := range f.members {
		if k.observationID == observationID {
			out = append(out, k.targetID)
		}
	}
	return out, nil
}

func (f *fakeAsterismRepo) ListObservationIDs(ctx context.Context, tx *gorm.DB, targetID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uuid.UUID
	for k := range f.members {
		if k.targetID == targetID {
			out = append(out, k.observationID)
		}
	}
	return out, nil
}

type fakeGmosLongSlitRepo struct {
	mu    sync.Mutex
	modes map[uuid.UUID]*types.GmosLongSlit
}

func newFakeGmosLongSlitRepo() *fakeGmosLongSlitRepo {
	return &fakeGmosLongSlitRepo{modes: map[uuid.UUID]*types.GmosLongSlit{}}
}

func (f *fakeGmosLongSlitRepo) Upsert(ctx context.Context, tx *gorm.DB, mode *types.GmosLongSlit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes[mode.ObservationID] = mode
	return nil
}

func (f *fakeGmosLongSlitRepo) GetByObservation(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) (*types.GmosLongSlit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.modes[observationID], nil
}

func (f *fakeGmosLongSlitRepo) UpdateFields(ctx context.Context, tx *gorm.DB, observationID uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (f *fakeGmosLongSlitRepo) Delete(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.modes, observationID)
	return nil
}

// ---- notifier / calc-service fakes ----

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) record(ev string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) has(ev string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, got := range n.events {
		if got == ev {
			return true
		}
	}
	return false
}

func (n *recordingNotifier) ObscalcStateChanged(programID, observationID uuid.UUID, oldState, newState types.CalcState, op string) {
	n.record("obscalc:" + op + ":" + string(oldState) + ">" + string(newState))
}

func (n *recordingNotifier) BlindOffsetStateChanged(programID, observationID uuid.UUID, oldState, newState types.CalcState, op string) {
	n.record("blind:" + op + ":" + string(oldState) + ">" + string(newState))
}

func (n *recordingNotifier) GroupEdit(programID, groupID uuid.UUID, op string) {
	n.record("group:" + op)
}

func (n *recordingNotifier) ObservationEdit(programID, observationID uuid.UUID, op string) {
	n.record("observation:" + op)
}

func (n *recordingNotifier) TargetEdit(programID, targetID uuid.UUID, op string) {
	n.record("target:" + op)
}

type fakeObscalcService struct {
	mu           sync.Mutex
	invalidated  []uuid.UUID
	deleted      []uuid.UUID
}

func (f *fakeObscalcService) Invalidate(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, observationID)
	return nil
}

func (f *fakeObscalcService) Claim(ctx context.Context) (*types.Obscalc, error) { return nil, nil }

func (f *fakeObscalcService) CompleteSuccess(ctx context.Context, observationID uuid.UUID, claimedInvalidation time.Time, result *ObscalcResult) error {
	return nil
}

func (f *fakeObscalcService) CompleteError(ctx context.Context, observationID uuid.UUID, claimedInvalidation time.Time, odbError datatypes.JSON) error {
	return nil
}

func (f *fakeObscalcService) Fail(ctx context.Context, observationID uuid.UUID, claimedInvalidation time.Time, detail string) error {
	return nil
}

func (f *fakeObscalcService) Get(ctx context.Context, observationID uuid.UUID) (*types.Obscalc, error) {
	return nil, nil
}

func (f *fakeObscalcService) ListByProgram(ctx context.Context, programID uuid.UUID) ([]*types.Obscalc, error) {
	return nil, nil
}

func (f *fakeObscalcService) DeleteEntry(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, observationID)
	return nil
}

type fakeBlindOffsetService struct {
	mu          sync.Mutex
	invalidated []uuid.UUID
	deleted     []uuid.UUID
}

func (f *fakeBlindOffsetService) Invalidate(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, observationID)
	return nil
}

func (f *fakeBlindOffsetService) Claim(ctx context.Context) (*types.BlindOffset, error) {
	return nil, nil
}

func (f *fakeBlindOffsetService) CompleteSuccess(ctx context.Context, observationID uuid.UUID, claimedInvalidation time.Time, offset datatypes.JSON) error {
	return nil
}

func (f *fakeBlindOffsetService) Fail(ctx context.Context, observationID uuid.UUID, claimedInvalidation time.Time, detail string) error {
	return nil
}

func (f *fakeBlindOffsetService) Get(ctx context.Context, observationID uuid.UUID) (*types.BlindOffset, error) {
	return nil, nil
}

func (f *fakeBlindOffsetService) DeleteEntry(ctx context.Context, tx *gorm.DB, observationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, observationID)
	return nil
}
