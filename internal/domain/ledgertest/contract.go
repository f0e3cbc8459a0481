// Package ledgertest provides contract tests for [domain.ReleaseLedger]
// implementations.
package ledgertest

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/drydock-deploy/drydock/internal/domain"
)

// Factory creates a fresh [domain.ReleaseLedger] for each test invocation.
type Factory func(t *testing.T) domain.ReleaseLedger

func begin(t *testing.T, ledger domain.ReleaseLedger, intentID domain.IntentID, target, ref string) int64 {
	t.Helper()
	id, err := ledger.Begin(context.Background(), domain.ReleaseRecord{
		IntentID:    intentID,
		App:         "demo",
		TargetName:  target,
		ArtifactRef: ref,
		Replicas:    1,
		Outcome:     domain.ReleasePending,
	})
	if err != nil {
		t.Fatalf("Begin(%s, %s, %s): %v", intentID, target, ref, err)
	}
	return id
}

func resolve(t *testing.T, ledger domain.ReleaseLedger, id int64, outcome domain.ReleaseOutcome) {
	t.Helper()
	if err := ledger.Resolve(context.Background(), id, outcome, ""); err != nil {
		t.Fatalf("Resolve(%d, %s): %v", id, outcome, err)
	}
}

// Run exercises the [domain.ReleaseLedger] contract.
func Run(t *testing.T, factory Factory) {
	t.Run("BeginAndGet", func(t *testing.T) {
		ledger := factory(t)
		id := begin(t, ledger, "i1", "a", "demo:v1")

		rec, err := ledger.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if rec.Outcome != domain.ReleasePending {
			t.Errorf("Outcome = %q, want pending", rec.Outcome)
		}
		if rec.TargetName != "a" || rec.ArtifactRef != "demo:v1" {
			t.Errorf("record = %+v, want target a, ref demo:v1", rec)
		}
	})

	t.Run("SinglePendingPerTarget", func(t *testing.T) {
		ledger := factory(t)
		begin(t, ledger, "i1", "a", "demo:v1")

		_, err := ledger.Begin(context.Background(), domain.ReleaseRecord{
			IntentID: "i2", App: "demo", TargetName: "a",
			ArtifactRef: "demo:v2", Outcome: domain.ReleasePending,
		})
		if !errors.Is(err, domain.ErrReleaseInFlight) {
			t.Fatalf("second Begin: got %v, want ErrReleaseInFlight", err)
		}

		// A different target is unaffected.
		begin(t, ledger, "i2", "b", "demo:v2")
	})

	t.Run("BeginIsIdempotentPerIntent", func(t *testing.T) {
		// At-least-once activity execution re-runs Begin with the same
		// intent and target; it must return the existing pending record.
		ledger := factory(t)
		first := begin(t, ledger, "i1", "a", "demo:v1")
		second := begin(t, ledger, "i1", "a", "demo:v1")
		if first != second {
			t.Fatalf("re-Begin returned %d, want existing record %d", second, first)
		}
	})

	t.Run("ResolveTransitionsPending", func(t *testing.T) {
		ledger := factory(t)
		ctx := context.Background()
		id := begin(t, ledger, "i1", "a", "demo:v1")

		if err := ledger.Resolve(ctx, id, domain.ReleaseApplied, "ok"); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		rec, err := ledger.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if rec.Outcome != domain.ReleaseApplied || rec.Detail != "ok" {
			t.Errorf("record = %+v, want applied/ok", rec)
		}

		// A resolved record cannot be resolved again.
		err = ledger.Resolve(ctx, id, domain.ReleaseFailed, "")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("double Resolve: got %v, want ErrNotFound", err)
		}
	})

	t.Run("LatestAndPriorApplied", func(t *testing.T) {
		ledger := factory(t)
		ctx := context.Background()

		_, err := ledger.LatestApplied(ctx, "demo", "a")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("LatestApplied empty: got %v, want ErrNotFound", err)
		}

		r1 := begin(t, ledger, "i1", "a", "demo:v1")
		resolve(t, ledger, r1, domain.ReleaseApplied)

		_, err = ledger.PriorApplied(ctx, "demo", "a")
		if !errors.Is(err, domain.ErrNoPriorRelease) {
			t.Fatalf("PriorApplied single: got %v, want ErrNoPriorRelease", err)
		}

		r2 := begin(t, ledger, "i2", "a", "demo:v2")
		resolve(t, ledger, r2, domain.ReleaseApplied)

		latest, err := ledger.LatestApplied(ctx, "demo", "a")
		if err != nil {
			t.Fatalf("LatestApplied: %v", err)
		}
		if latest.ArtifactRef != "demo:v2" {
			t.Errorf("LatestApplied ref = %q, want demo:v2", latest.ArtifactRef)
		}
		prior, err := ledger.PriorApplied(ctx, "demo", "a")
		if err != nil {
			t.Fatalf("PriorApplied: %v", err)
		}
		if prior.ArtifactRef != "demo:v1" {
			t.Errorf("PriorApplied ref = %q, want demo:v1", prior.ArtifactRef)
		}
	})

	t.Run("FailedReleasesDoNotCount", func(t *testing.T) {
		ledger := factory(t)
		ctx := context.Background()

		r1 := begin(t, ledger, "i1", "a", "demo:v1")
		resolve(t, ledger, r1, domain.ReleaseApplied)
		r2 := begin(t, ledger, "i2", "a", "demo:v2")
		resolve(t, ledger, r2, domain.ReleaseFailed)

		latest, err := ledger.LatestApplied(ctx, "demo", "a")
		if err != nil {
			t.Fatalf("LatestApplied: %v", err)
		}
		if latest.ArtifactRef != "demo:v1" {
			t.Errorf("LatestApplied ref = %q, want demo:v1 (failed release must not count)", latest.ArtifactRef)
		}
	})

	t.Run("MarkRolledBack", func(t *testing.T) {
		ledger := factory(t)
		ctx := context.Background()

		r1 := begin(t, ledger, "i1", "a", "demo:v1")
		resolve(t, ledger, r1, domain.ReleaseApplied)
		r2 := begin(t, ledger, "i2", "a", "demo:v2")
		resolve(t, ledger, r2, domain.ReleaseApplied)

		if err := ledger.MarkRolledBack(ctx, r2); err != nil {
			t.Fatalf("MarkRolledBack: %v", err)
		}
		rec, err := ledger.Get(ctx, r2)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if rec.Outcome != domain.ReleaseRolledBack {
			t.Errorf("Outcome = %q, want rolled_back", rec.Outcome)
		}

		// Rolled-back releases no longer count as applied.
		latest, err := ledger.LatestApplied(ctx, "demo", "a")
		if err != nil {
			t.Fatalf("LatestApplied: %v", err)
		}
		if latest.ID != r1 {
			t.Errorf("LatestApplied = record %d, want %d", latest.ID, r1)
		}

		// Only applied records can be marked.
		err = ledger.MarkRolledBack(ctx, r1+1000)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("MarkRolledBack missing: got %v, want ErrNotFound", err)
		}
	})

	t.Run("History", func(t *testing.T) {
		ledger := factory(t)
		ctx := context.Background()

		for i, ref := range []string{"demo:v1", "demo:v2", "demo:v3"} {
			id := begin(t, ledger, domain.IntentID("i"+strconv.Itoa(i)), "a", ref)
			resolve(t, ledger, id, domain.ReleaseApplied)
		}

		history, err := ledger.History(ctx, "a", 2)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("History: got %d records, want 2", len(history))
		}
		if history[0].ArtifactRef != "demo:v3" || history[1].ArtifactRef != "demo:v2" {
			t.Errorf("History order = [%s, %s], want [demo:v3, demo:v2]",
				history[0].ArtifactRef, history[1].ArtifactRef)
		}
	})

	t.Run("ListByIntent", func(t *testing.T) {
		ledger := factory(t)
		ctx := context.Background()

		ra := begin(t, ledger, "i1", "a", "demo:v1")
		resolve(t, ledger, ra, domain.ReleaseApplied)
		rb := begin(t, ledger, "i1", "b", "demo:v1")
		resolve(t, ledger, rb, domain.ReleaseFailed)
		begin(t, ledger, "i2", "c", "demo:v2")

		records, err := ledger.ListByIntent(ctx, "i1")
		if err != nil {
			t.Fatalf("ListByIntent: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("ListByIntent: got %d records, want 2", len(records))
		}
	})

	t.Run("Pending", func(t *testing.T) {
		ledger := factory(t)
		ctx := context.Background()

		r1 := begin(t, ledger, "i1", "a", "demo:v1")
		resolve(t, ledger, r1, domain.ReleaseApplied)
		r2 := begin(t, ledger, "i2", "b", "demo:v2")

		pending, err := ledger.Pending(ctx)
		if err != nil {
			t.Fatalf("Pending: %v", err)
		}
		if len(pending) != 1 || pending[0].ID != r2 {
			t.Fatalf("Pending = %+v, want the single dangling record %d", pending, r2)
		}
	})
}
