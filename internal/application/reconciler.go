package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/drydock-deploy/drydock/internal/domain"
)

// Reconciler resolves release records left pending by a crash between an
// adapter apply and the ledger write. It reads the platform state back and
// settles each dangling record accordingly.
type Reconciler struct {
	Targets  domain.TargetRepository
	Ledger   domain.ReleaseLedger
	Adapters domain.AdapterRegistry
	Log      *zap.Logger
}

// Reconcile settles all pending release records. A record whose artifact
// reference and replica count are both observed on the target resolves to
// applied; anything else resolves to failed. The replica comparison matters
// for scale-only releases, where the reference matches the platform by
// definition. Targets that cannot be reached stay pending for the next pass.
// Returns the number of records settled.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	pending, err := r.Ledger.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending releases: %w", err)
	}

	settled := 0
	for _, rec := range pending {
		log := r.log().With(
			zap.Int64("release", rec.ID),
			zap.String("target", rec.TargetName),
			zap.String("artifact", rec.ArtifactRef))

		target, err := r.Targets.Get(ctx, rec.TargetName)
		if err != nil {
			log.Warn("pending release references unknown target", zap.Error(err))
			continue
		}
		adapter, err := r.Adapters.Adapter(target.Kind)
		if err != nil {
			log.Warn("no adapter for pending release", zap.Error(err))
			continue
		}

		state, err := adapter.CurrentState(ctx, target)
		if err != nil {
			log.Warn("target unreachable, release stays pending", zap.Error(err))
			continue
		}

		if state.ArtifactRef == rec.ArtifactRef && state.Replicas == rec.Replicas {
			if err := r.Ledger.Resolve(ctx, rec.ID, domain.ReleaseApplied, "confirmed by reconciliation"); err != nil {
				return settled, fmt.Errorf("resolve release %d: %w", rec.ID, err)
			}
			if err := r.Targets.SetLastApplied(ctx, target.Name, rec.ArtifactRef); err != nil {
				return settled, fmt.Errorf("update target %q: %w", target.Name, err)
			}
			log.Info("pending release confirmed applied")
		} else {
			if err := r.Ledger.Resolve(ctx, rec.ID, domain.ReleaseFailed, "not observed on target after restart"); err != nil {
				return settled, fmt.Errorf("resolve release %d: %w", rec.ID, err)
			}
			log.Info("pending release marked failed",
				zap.String("observed", state.ArtifactRef),
				zap.Int("observedReplicas", state.Replicas))
		}
		settled++
	}
	return settled, nil
}

func (r *Reconciler) log() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}
