package application_test

import (
	"context"
	"errors"
	"testing"

	"github.com/drydock-deploy/drydock/internal/domain"
)

// beginPending seeds a dangling pending record, as left behind by a crash
// between an adapter apply and the ledger write.
func beginPending(t *testing.T, h testHarness, target, ref string, replicas int) int64 {
	t.Helper()
	id, err := h.ledger.Begin(context.Background(), domain.ReleaseRecord{
		IntentID:    "crashed-intent",
		App:         "demo",
		TargetName:  target,
		ArtifactRef: ref,
		Replicas:    replicas,
	})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return id
}

func TestReconcileConfirmsObservedRelease(t *testing.T) {
	h := setup(t)
	registerTargets(t, h, "a")
	ctx := context.Background()

	// The apply landed before the crash: the platform runs the pending ref.
	h.fake.SetState("a", domain.AppliedState{ArtifactRef: "demo:v2", Replicas: 2, Healthy: true})
	id := beginPending(t, h, "a", "demo:v2", 2)

	settled, err := h.reconciler.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if settled != 1 {
		t.Fatalf("settled = %d, want 1", settled)
	}

	rec, err := h.ledger.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Outcome != domain.ReleaseApplied {
		t.Errorf("Outcome = %q, want %q", rec.Outcome, domain.ReleaseApplied)
	}
	target, err := h.targets.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get target: %v", err)
	}
	if target.LastApplied != "demo:v2" {
		t.Errorf("LastApplied = %q, want demo:v2", target.LastApplied)
	}
}

func TestReconcileFailsUnobservedRelease(t *testing.T) {
	h := setup(t)
	registerTargets(t, h, "a")
	ctx := context.Background()

	h.fake.SetState("a", domain.AppliedState{ArtifactRef: "demo:v1", Replicas: 2, Healthy: true})
	id := beginPending(t, h, "a", "demo:v2", 2)

	settled, err := h.reconciler.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if settled != 1 {
		t.Fatalf("settled = %d, want 1", settled)
	}

	rec, err := h.ledger.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Outcome != domain.ReleaseFailed {
		t.Errorf("Outcome = %q, want %q", rec.Outcome, domain.ReleaseFailed)
	}
}

func TestReconcileFailsScaleOnlyRelease(t *testing.T) {
	h := setup(t)
	registerTargets(t, h, "a")
	ctx := context.Background()

	// A crash during a scale-only release: the artifact matches the
	// platform by definition, so only the replica count tells whether the
	// apply landed. Here it did not.
	h.fake.SetState("a", domain.AppliedState{ArtifactRef: "demo:v1", Replicas: 3, Healthy: true})
	id := beginPending(t, h, "a", "demo:v1", 5)

	settled, err := h.reconciler.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if settled != 1 {
		t.Fatalf("settled = %d, want 1", settled)
	}

	rec, err := h.ledger.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Outcome != domain.ReleaseFailed {
		t.Errorf("Outcome = %q, want %q", rec.Outcome, domain.ReleaseFailed)
	}
	target, err := h.targets.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get target: %v", err)
	}
	if target.LastApplied != "" {
		t.Errorf("LastApplied = %q, want unchanged", target.LastApplied)
	}
}

// downAdapter simulates an unreachable platform.
type downAdapter struct{}

func (downAdapter) Apply(context.Context, domain.Target, string, int) (domain.AppliedState, error) {
	return domain.AppliedState{}, domain.TransientError("apply", errors.New("connection refused"))
}

func (downAdapter) CurrentState(context.Context, domain.Target) (domain.AppliedState, error) {
	return domain.AppliedState{}, domain.TransientError("read state", errors.New("connection refused"))
}

func TestReconcileKeepsPendingWhenTargetUnreachable(t *testing.T) {
	h := setup(t)
	registerTargets(t, h, "a")
	ctx := context.Background()

	h.reconciler.Adapters = domain.AdapterRegistry{domain.AdapterDokploy: downAdapter{}}
	id := beginPending(t, h, "a", "demo:v2", 2)

	settled, err := h.reconciler.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if settled != 0 {
		t.Fatalf("settled = %d, want 0", settled)
	}

	rec, err := h.ledger.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Outcome != domain.ReleasePending {
		t.Errorf("Outcome = %q, want %q (stays pending)", rec.Outcome, domain.ReleasePending)
	}
}

func TestReconcileNothingPending(t *testing.T) {
	h := setup(t)
	settled, err := h.reconciler.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if settled != 0 {
		t.Fatalf("settled = %d, want 0", settled)
	}
}

func TestEnsureRegistersConfiguredTargets(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	targets := []domain.Target{
		{Name: "a", Kind: domain.AdapterDokploy},
		{Name: "b", Kind: domain.AdapterNorthflank},
	}

	if err := h.targets.Ensure(ctx, targets); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	// Re-running is a no-op for targets already present.
	if err := h.targets.Ensure(ctx, targets); err != nil {
		t.Fatalf("Ensure again: %v", err)
	}

	got, err := h.targets.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List: got %d targets, want 2", len(got))
	}
}
