// Package intentrepotest provides contract tests for [domain.IntentRepository]
// implementations.
package intentrepotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/drydock-deploy/drydock/internal/domain"
)

// Factory creates a fresh [domain.IntentRepository] for each test invocation.
type Factory func(t *testing.T) domain.IntentRepository

// Run exercises the [domain.IntentRepository] contract.
func Run(t *testing.T, factory Factory) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	t.Run("CreateAndGet", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		in := domain.DeploymentIntent{
			ID:          "i1",
			App:         "demo",
			ArtifactRef: "demo:v2",
			Replicas:    2,
			Targets:     []string{"a", "b"},
			State:       domain.IntentStatePending,
			CreatedAt:   now,
		}

		if err := repo.Create(ctx, in); err != nil {
			t.Fatalf("Create: %v", err)
		}

		got, err := repo.Get(ctx, "i1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.App != "demo" || got.ArtifactRef != "demo:v2" || got.Replicas != 2 {
			t.Errorf("Get = %+v, want app demo, ref demo:v2, replicas 2", got)
		}
		if len(got.Targets) != 2 {
			t.Errorf("Targets len = %d, want 2", len(got.Targets))
		}
		if got.State != domain.IntentStatePending {
			t.Errorf("State = %q, want %q", got.State, domain.IntentStatePending)
		}
	})

	t.Run("RoundTripsRollbackFields", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		in := domain.DeploymentIntent{
			ID:             "i1",
			App:            "demo",
			Targets:        []string{"a"},
			TargetRefs:     map[string]string{"a": "demo:v1"},
			TargetReplicas: map[string]int{"a": 3},
			RollbackOf:     map[string]int64{"a": 7},
			State:          domain.IntentStatePending,
			CreatedAt:      now,
		}

		if err := repo.Create(ctx, in); err != nil {
			t.Fatalf("Create: %v", err)
		}
		got, err := repo.Get(ctx, "i1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.TargetRefs["a"] != "demo:v1" {
			t.Errorf("TargetRefs[a] = %q, want %q", got.TargetRefs["a"], "demo:v1")
		}
		if got.TargetReplicas["a"] != 3 {
			t.Errorf("TargetReplicas[a] = %d, want 3", got.TargetReplicas["a"])
		}
		if got.RollbackOf["a"] != 7 {
			t.Errorf("RollbackOf[a] = %d, want 7", got.RollbackOf["a"])
		}
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		in := domain.DeploymentIntent{ID: "i1", App: "demo", State: domain.IntentStatePending, CreatedAt: now}

		if err := repo.Create(ctx, in); err != nil {
			t.Fatalf("first Create: %v", err)
		}
		err := repo.Create(ctx, in)
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("second Create: got %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		repo := factory(t)
		_, err := repo.Get(context.Background(), "missing")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get missing: got %v, want ErrNotFound", err)
		}
	})

	t.Run("SetState", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		in := domain.DeploymentIntent{ID: "i1", App: "demo", State: domain.IntentStatePending, CreatedAt: now}
		if err := repo.Create(ctx, in); err != nil {
			t.Fatalf("Create: %v", err)
		}

		if err := repo.SetState(ctx, "i1", domain.IntentStateDone); err != nil {
			t.Fatalf("SetState: %v", err)
		}
		got, err := repo.Get(ctx, "i1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.State != domain.IntentStateDone {
			t.Errorf("State = %q, want %q", got.State, domain.IntentStateDone)
		}

		err = repo.SetState(ctx, "missing", domain.IntentStateDone)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("SetState missing: got %v, want ErrNotFound", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		for _, id := range []string{"i1", "i2"} {
			in := domain.DeploymentIntent{ID: domain.IntentID(id), App: "demo", State: domain.IntentStatePending, CreatedAt: now}
			if err := repo.Create(ctx, in); err != nil {
				t.Fatalf("Create %s: %v", id, err)
			}
		}
		intents, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(intents) != 2 {
			t.Fatalf("List: got %d intents, want 2", len(intents))
		}
	})
}
