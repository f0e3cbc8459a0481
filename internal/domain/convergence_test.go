package domain_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/drydock-deploy/drydock/internal/domain"
)

// syncRunnerImpl runs activities synchronously (no durability).
type syncRunnerImpl struct {
	ctx context.Context
}

func (s *syncRunnerImpl) ID() string               { return "test-sync" }
func (s *syncRunnerImpl) Context() context.Context { return s.ctx }
func (s *syncRunnerImpl) Run(activity domain.Activity[any, any], in any) (any, error) {
	return activity.Run(s.ctx, in)
}

// recordingRunner records activity names in execution order.
type recordingRunner struct {
	ctx      context.Context
	names    []string
	delegate domain.DurableRunner
}

func (r *recordingRunner) ID() string               { return r.delegate.ID() }
func (r *recordingRunner) Context() context.Context { return r.ctx }

func (r *recordingRunner) Run(activity domain.Activity[any, any], in any) (any, error) {
	r.names = append(r.names, activity.Name())
	return r.delegate.Run(activity, in)
}

// stubIntentRepo returns a fixed intent for Get.
type stubIntentRepo struct {
	intent domain.DeploymentIntent
}

func (s *stubIntentRepo) Create(_ context.Context, in domain.DeploymentIntent) error {
	s.intent = in
	return nil
}

func (s *stubIntentRepo) Get(_ context.Context, id domain.IntentID) (domain.DeploymentIntent, error) {
	if id != s.intent.ID {
		return domain.DeploymentIntent{}, domain.ErrNotFound
	}
	return s.intent, nil
}

func (s *stubIntentRepo) List(_ context.Context) ([]domain.DeploymentIntent, error) {
	return []domain.DeploymentIntent{s.intent}, nil
}

func (s *stubIntentRepo) SetState(_ context.Context, _ domain.IntentID, state domain.IntentState) error {
	s.intent.State = state
	return nil
}

// stubTargetRepo serves a fixed target pool and records SetLastApplied.
type stubTargetRepo struct {
	targets     map[string]domain.Target
	lastApplied map[string]string
}

func (s *stubTargetRepo) Create(_ context.Context, t domain.Target) error {
	s.targets[t.Name] = t
	return nil
}

func (s *stubTargetRepo) Get(_ context.Context, name string) (domain.Target, error) {
	t, ok := s.targets[name]
	if !ok {
		return domain.Target{}, domain.ErrNotFound
	}
	return t, nil
}

func (s *stubTargetRepo) List(_ context.Context) ([]domain.Target, error) {
	var out []domain.Target
	for _, t := range s.targets {
		out = append(out, t)
	}
	return out, nil
}

func (s *stubTargetRepo) SetLastApplied(_ context.Context, name, ref string) error {
	if s.lastApplied == nil {
		s.lastApplied = make(map[string]string)
	}
	s.lastApplied[name] = ref
	return nil
}

func (s *stubTargetRepo) Delete(_ context.Context, name string) error {
	delete(s.targets, name)
	return nil
}

// memLedger is a minimal in-memory [domain.ReleaseLedger] for workflow tests.
type memLedger struct {
	nextID  int64
	records map[int64]domain.ReleaseRecord
}

func newMemLedger() *memLedger {
	return &memLedger{records: make(map[int64]domain.ReleaseRecord)}
}

func (l *memLedger) Begin(_ context.Context, rec domain.ReleaseRecord) (int64, error) {
	for id, existing := range l.records {
		if existing.TargetName == rec.TargetName && existing.Outcome == domain.ReleasePending {
			if existing.IntentID == rec.IntentID {
				return id, nil
			}
			return 0, domain.ErrReleaseInFlight
		}
	}
	l.nextID++
	rec.ID = l.nextID
	rec.Outcome = domain.ReleasePending
	l.records[rec.ID] = rec
	return rec.ID, nil
}

func (l *memLedger) Resolve(_ context.Context, id int64, outcome domain.ReleaseOutcome, detail string) error {
	rec, ok := l.records[id]
	if !ok || rec.Outcome != domain.ReleasePending {
		return domain.ErrNotFound
	}
	rec.Outcome = outcome
	rec.Detail = detail
	l.records[id] = rec
	return nil
}

func (l *memLedger) MarkRolledBack(_ context.Context, id int64) error {
	rec, ok := l.records[id]
	if !ok || rec.Outcome != domain.ReleaseApplied {
		return domain.ErrNotFound
	}
	rec.Outcome = domain.ReleaseRolledBack
	l.records[id] = rec
	return nil
}

func (l *memLedger) Get(_ context.Context, id int64) (domain.ReleaseRecord, error) {
	rec, ok := l.records[id]
	if !ok {
		return domain.ReleaseRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (l *memLedger) ListByIntent(_ context.Context, intentID domain.IntentID) ([]domain.ReleaseRecord, error) {
	var out []domain.ReleaseRecord
	for _, rec := range l.records {
		if rec.IntentID == intentID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (l *memLedger) LatestApplied(_ context.Context, _, _ string) (domain.ReleaseRecord, error) {
	return domain.ReleaseRecord{}, domain.ErrNotFound
}

func (l *memLedger) PriorApplied(_ context.Context, _, _ string) (domain.ReleaseRecord, error) {
	return domain.ReleaseRecord{}, domain.ErrNoPriorRelease
}

func (l *memLedger) History(_ context.Context, _ string, _ int) ([]domain.ReleaseRecord, error) {
	return nil, nil
}

func (l *memLedger) Pending(_ context.Context) ([]domain.ReleaseRecord, error) {
	var out []domain.ReleaseRecord
	for _, rec := range l.records {
		if rec.Outcome == domain.ReleasePending {
			out = append(out, rec)
		}
	}
	return out, nil
}

// scriptedAdapter serves a current state and scripted apply failures.
type scriptedAdapter struct {
	state      domain.AppliedState
	applyErrs  []error
	applyCalls int
}

func (a *scriptedAdapter) Apply(_ context.Context, _ domain.Target, ref string, replicas int) (domain.AppliedState, error) {
	a.applyCalls++
	if len(a.applyErrs) > 0 {
		err := a.applyErrs[0]
		a.applyErrs = a.applyErrs[1:]
		return domain.AppliedState{}, err
	}
	a.state = domain.AppliedState{ArtifactRef: ref, Replicas: replicas, Healthy: true}
	return a.state, nil
}

func (a *scriptedAdapter) CurrentState(_ context.Context, _ domain.Target) (domain.AppliedState, error) {
	return a.state, nil
}

type harness struct {
	wf      *domain.ConvergenceWorkflow
	ledger  *memLedger
	targets *stubTargetRepo
	adapter *scriptedAdapter
}

func newHarness(intent domain.DeploymentIntent) harness {
	adapter := &scriptedAdapter{}
	ledger := newMemLedger()
	targets := &stubTargetRepo{targets: map[string]domain.Target{}}
	for _, name := range intent.Targets {
		targets.targets[name] = domain.Target{Name: name, Kind: domain.AdapterDokploy}
	}
	wf := &domain.ConvergenceWorkflow{
		Intents:  &stubIntentRepo{intent: intent},
		Targets:  targets,
		Ledger:   ledger,
		Adapters: domain.AdapterRegistry{domain.AdapterDokploy: adapter},
		Retry:    domain.RetryPolicy{Base: time.Millisecond, Cap: time.Millisecond, MaxAttempts: 5},
	}
	return harness{wf: wf, ledger: ledger, targets: targets, adapter: adapter}
}

func runWorkflow(t *testing.T, h harness, target string) (domain.ConvergenceResult, *recordingRunner) {
	t.Helper()
	ctx := context.Background()
	recorder := &recordingRunner{ctx: ctx, delegate: &syncRunnerImpl{ctx: ctx}}
	result, err := h.wf.Run(recorder, domain.ConvergenceInput{IntentID: "i1", TargetName: target})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return result, recorder
}

func intentFixture() domain.DeploymentIntent {
	return domain.DeploymentIntent{
		ID:          "i1",
		App:         "demo",
		ArtifactRef: "demo:v2",
		Replicas:    2,
		Targets:     []string{"a"},
		State:       domain.IntentStateRunning,
	}
}

func TestConvergence_AppliesAndRecords(t *testing.T) {
	h := newHarness(intentFixture())
	result, recorder := runWorkflow(t, h, "a")

	if result.Outcome != domain.ReleaseApplied {
		t.Fatalf("Outcome = %q, want applied", result.Outcome)
	}
	rec, err := h.ledger.Get(context.Background(), result.RecordID)
	if err != nil {
		t.Fatalf("ledger Get: %v", err)
	}
	if rec.Outcome != domain.ReleaseApplied || rec.ArtifactRef != "demo:v2" {
		t.Errorf("record = %+v, want applied demo:v2", rec)
	}
	if h.targets.lastApplied["a"] != "demo:v2" {
		t.Errorf("target LastApplied = %q, want demo:v2", h.targets.lastApplied["a"])
	}

	want := []string{
		"load-intent", "load-target", "open-release",
		"read-target-state", "plan-action", "apply-to-target", "record-outcome",
	}
	if fmt.Sprint(recorder.names) != fmt.Sprint(want) {
		t.Errorf("activity order = %v, want %v", recorder.names, want)
	}
}

func TestConvergence_ConvergedTargetSkipsApply(t *testing.T) {
	h := newHarness(intentFixture())
	h.adapter.state = domain.AppliedState{ArtifactRef: "demo:v2", Replicas: 2, Healthy: true}

	result, recorder := runWorkflow(t, h, "a")

	if result.Outcome != domain.ReleaseApplied {
		t.Fatalf("Outcome = %q, want applied", result.Outcome)
	}
	if result.Detail != "already converged" {
		t.Errorf("Detail = %q, want already converged", result.Detail)
	}
	if h.adapter.applyCalls != 0 {
		t.Errorf("applyCalls = %d, want 0", h.adapter.applyCalls)
	}
	for _, name := range recorder.names {
		if name == "apply-to-target" {
			t.Error("apply-to-target must not run for a converged target")
		}
	}
}

func TestConvergence_TransientFailureExhaustsRetries(t *testing.T) {
	h := newHarness(intentFixture())
	for i := 0; i < 8; i++ {
		h.adapter.applyErrs = append(h.adapter.applyErrs,
			domain.TransientError("deploy", errors.New("gateway timeout")))
	}

	result, _ := runWorkflow(t, h, "a")

	if result.Outcome != domain.ReleaseFailed {
		t.Fatalf("Outcome = %q, want failed", result.Outcome)
	}
	if h.adapter.applyCalls != 5 {
		t.Errorf("applyCalls = %d, want 5 (max attempts)", h.adapter.applyCalls)
	}
	rec, err := h.ledger.Get(context.Background(), result.RecordID)
	if err != nil {
		t.Fatalf("ledger Get: %v", err)
	}
	if rec.Outcome != domain.ReleaseFailed {
		t.Errorf("record outcome = %q, want failed", rec.Outcome)
	}
	if len(h.targets.lastApplied) != 0 {
		t.Errorf("LastApplied updated on failure: %v", h.targets.lastApplied)
	}
}

func TestConvergence_PermanentFailureNotRetried(t *testing.T) {
	h := newHarness(intentFixture())
	h.adapter.applyErrs = []error{domain.PermanentError("deploy", errors.New("invalid api key"))}

	result, _ := runWorkflow(t, h, "a")

	if result.Outcome != domain.ReleaseFailed {
		t.Fatalf("Outcome = %q, want failed", result.Outcome)
	}
	if h.adapter.applyCalls != 1 {
		t.Errorf("applyCalls = %d, want 1", h.adapter.applyCalls)
	}
}

func TestConvergence_RollbackMarksSuperseded(t *testing.T) {
	intent := intentFixture()
	h := newHarness(intent)

	// Seed the history: v1 applied, then v2 applied on top of it.
	ctx := context.Background()
	r1, _ := h.ledger.Begin(ctx, domain.ReleaseRecord{IntentID: "i0", App: "demo", TargetName: "a", ArtifactRef: "demo:v1"})
	_ = h.ledger.Resolve(ctx, r1, domain.ReleaseApplied, "")
	r2, _ := h.ledger.Begin(ctx, domain.ReleaseRecord{IntentID: "i0b", App: "demo", TargetName: "a", ArtifactRef: "demo:v2"})
	_ = h.ledger.Resolve(ctx, r2, domain.ReleaseApplied, "")

	rollback := intent
	rollback.ArtifactRef = ""
	rollback.TargetRefs = map[string]string{"a": "demo:v1"}
	rollback.RollbackOf = map[string]int64{"a": r2}
	h.wf.Intents = &stubIntentRepo{intent: rollback}
	h.adapter.state = domain.AppliedState{ArtifactRef: "demo:v2", Replicas: 2}

	result, _ := runWorkflow(t, h, "a")

	if result.Outcome != domain.ReleaseApplied {
		t.Fatalf("Outcome = %q, want applied", result.Outcome)
	}
	superseded, err := h.ledger.Get(ctx, r2)
	if err != nil {
		t.Fatalf("ledger Get: %v", err)
	}
	if superseded.Outcome != domain.ReleaseRolledBack {
		t.Errorf("superseded outcome = %q, want rolled_back", superseded.Outcome)
	}
	if h.targets.lastApplied["a"] != "demo:v1" {
		t.Errorf("LastApplied = %q, want demo:v1", h.targets.lastApplied["a"])
	}
}

func TestConvergence_UnknownTarget(t *testing.T) {
	h := newHarness(intentFixture())
	ctx := context.Background()
	runner := &syncRunnerImpl{ctx: ctx}
	_, err := h.wf.Run(runner, domain.ConvergenceInput{IntentID: "i1", TargetName: "missing"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Run: got %v, want ErrNotFound", err)
	}
}
