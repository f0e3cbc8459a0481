// Package targetrepotest provides contract tests for [domain.TargetRepository]
// implementations.
package targetrepotest

import (
	"context"
	"errors"
	"testing"

	"github.com/drydock-deploy/drydock/internal/domain"
)

// Factory creates a fresh [domain.TargetRepository] for each test invocation.
type Factory func(t *testing.T) domain.TargetRepository

// Run exercises the [domain.TargetRepository] contract.
func Run(t *testing.T, factory Factory) {
	t.Run("CreateAndGet", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		target := domain.Target{
			Name:     "dokploy-prod",
			Kind:     domain.AdapterDokploy,
			Endpoint: "https://dokploy.example.com",
			AppID:    "app-1",
			TokenEnv: "DOKPLOY_TOKEN",
		}

		if err := repo.Create(ctx, target); err != nil {
			t.Fatalf("Create: %v", err)
		}

		got, err := repo.Get(ctx, "dokploy-prod")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Kind != domain.AdapterDokploy {
			t.Errorf("Kind = %q, want %q", got.Kind, domain.AdapterDokploy)
		}
		if got.Endpoint != "https://dokploy.example.com" {
			t.Errorf("Endpoint = %q, want %q", got.Endpoint, "https://dokploy.example.com")
		}
		if got.TokenEnv != "DOKPLOY_TOKEN" {
			t.Errorf("TokenEnv = %q, want %q", got.TokenEnv, "DOKPLOY_TOKEN")
		}
		if got.LastApplied != "" {
			t.Errorf("LastApplied = %q, want empty", got.LastApplied)
		}
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		target := domain.Target{Name: "t1", Kind: domain.AdapterDokploy}

		if err := repo.Create(ctx, target); err != nil {
			t.Fatalf("first Create: %v", err)
		}
		err := repo.Create(ctx, target)
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

	t.Run("List", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		for _, name := range []string{"t1", "t2", "t3"} {
			if err := repo.Create(ctx, domain.Target{Name: name, Kind: domain.AdapterNorthflank}); err != nil {
				t.Fatalf("Create %s: %v", name, err)
			}
		}

		targets, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(targets) != 3 {
			t.Fatalf("List: got %d targets, want 3", len(targets))
		}
	})

	t.Run("SetLastApplied", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		if err := repo.Create(ctx, domain.Target{Name: "t1", Kind: domain.AdapterDokploy}); err != nil {
			t.Fatalf("Create: %v", err)
		}

		if err := repo.SetLastApplied(ctx, "t1", "demo:v2"); err != nil {
			t.Fatalf("SetLastApplied: %v", err)
		}
		got, err := repo.Get(ctx, "t1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.LastApplied != "demo:v2" {
			t.Errorf("LastApplied = %q, want %q", got.LastApplied, "demo:v2")
		}

		err = repo.SetLastApplied(ctx, "missing", "demo:v2")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("SetLastApplied missing: got %v, want ErrNotFound", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		if err := repo.Create(ctx, domain.Target{Name: "t1", Kind: domain.AdapterDokploy}); err != nil {
			t.Fatalf("Create: %v", err)
		}

		if err := repo.Delete(ctx, "t1"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		_, err := repo.Get(ctx, "t1")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get after delete: got %v, want ErrNotFound", err)
		}

		err = repo.Delete(ctx, "t1")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("second Delete: got %v, want ErrNotFound", err)
		}
	})
}
