package domain

import (
	"context"
	"fmt"
)

// ConvergenceInput identifies one unit of convergence work: a single
// intent-target pair. Each target of an intent runs its own workflow so
// that failure isolation and durability are per-target.
type ConvergenceInput struct {
	IntentID   IntentID
	TargetName string
}

// ConvergenceResult is the terminal per-target outcome of a workflow run.
// Adapter failures are outcomes, not workflow errors; a workflow error
// means the run itself could not complete (for example a ledger write
// failed) and the pending record is left for restart reconciliation.
type ConvergenceResult struct {
	TargetName string
	Outcome    ReleaseOutcome
	Detail     string
	RecordID   int64
}

// OpenReleaseInput opens the pending ledger record for a run.
type OpenReleaseInput struct {
	IntentID    IntentID
	App         string
	TargetName  string
	ArtifactRef string
	Replicas    int
}

// PlanInput feeds the observed and desired state into action planning.
type PlanInput struct {
	Current         AppliedState
	DesiredRef      string
	DesiredReplicas int
}

// ApplyInput drives one adapter apply call.
type ApplyInput struct {
	Target      Target
	ArtifactRef string
	Replicas    int
}

// RecordOutcomeInput finalizes a release record.
type RecordOutcomeInput struct {
	RecordID    int64
	Outcome     ReleaseOutcome
	Detail      string
	TargetName  string
	ArtifactRef string
	// RollbackOf, when set, is the applied record this release supersedes;
	// it transitions to rolled_back once the apply is confirmed.
	RollbackOf int64
}

// ConvergenceWorkflow drives one target to an intent's desired state:
// open a pending release, read back the platform state, plan, apply with
// retries, record the outcome. All I/O happens in activities so the
// workflow body replays deterministically on durable engines.
type ConvergenceWorkflow struct {
	Intents  IntentRepository
	Targets  TargetRepository
	Ledger   ReleaseLedger
	Adapters AdapterRegistry
	Retry    RetryPolicy
}

// Name is the stable workflow registration name.
func (w *ConvergenceWorkflow) Name() string { return "target-convergence" }

func (w *ConvergenceWorkflow) LoadIntent() Activity[IntentID, DeploymentIntent] {
	return NewActivity("load-intent", w.Intents.Get)
}

func (w *ConvergenceWorkflow) LoadTarget() Activity[string, Target] {
	return NewActivity("load-target", w.Targets.Get)
}

func (w *ConvergenceWorkflow) OpenRelease() Activity[OpenReleaseInput, int64] {
	return NewActivity("open-release", func(ctx context.Context, in OpenReleaseInput) (int64, error) {
		return w.Ledger.Begin(ctx, ReleaseRecord{
			IntentID:    in.IntentID,
			App:         in.App,
			TargetName:  in.TargetName,
			ArtifactRef: in.ArtifactRef,
			Replicas:    in.Replicas,
			Outcome:     ReleasePending,
		})
	})
}

func (w *ConvergenceWorkflow) ReadTargetState() Activity[Target, AppliedState] {
	return NewActivity("read-target-state", func(ctx context.Context, target Target) (AppliedState, error) {
		adapter, err := w.Adapters.Adapter(target.Kind)
		if err != nil {
			return AppliedState{}, err
		}
		return adapter.CurrentState(ctx, target)
	})
}

func (w *ConvergenceWorkflow) PlanConvergence() Activity[PlanInput, Action] {
	return NewActivity("plan-action", func(_ context.Context, in PlanInput) (Action, error) {
		return PlanAction(in.Current, in.DesiredRef, in.DesiredReplicas), nil
	})
}

func (w *ConvergenceWorkflow) ApplyToTarget() Activity[ApplyInput, AppliedState] {
	return NewActivity("apply-to-target", func(ctx context.Context, in ApplyInput) (AppliedState, error) {
		adapter, err := w.Adapters.Adapter(in.Target.Kind)
		if err != nil {
			return AppliedState{}, err
		}
		var state AppliedState
		err = Retry(ctx, w.Retry, func(ctx context.Context) error {
			var applyErr error
			state, applyErr = adapter.Apply(ctx, in.Target, in.ArtifactRef, in.Replicas)
			return applyErr
		})
		return state, err
	})
}

func (w *ConvergenceWorkflow) RecordOutcome() Activity[RecordOutcomeInput, struct{}] {
	return NewActivity("record-outcome", func(ctx context.Context, in RecordOutcomeInput) (struct{}, error) {
		if err := w.Ledger.Resolve(ctx, in.RecordID, in.Outcome, in.Detail); err != nil {
			return struct{}{}, fmt.Errorf("resolve release %d: %w", in.RecordID, err)
		}
		if in.Outcome != ReleaseApplied {
			return struct{}{}, nil
		}
		if err := w.Targets.SetLastApplied(ctx, in.TargetName, in.ArtifactRef); err != nil {
			return struct{}{}, fmt.Errorf("update target %q: %w", in.TargetName, err)
		}
		if in.RollbackOf != 0 {
			if err := w.Ledger.MarkRolledBack(ctx, in.RollbackOf); err != nil {
				return struct{}{}, fmt.Errorf("mark release %d rolled back: %w", in.RollbackOf, err)
			}
		}
		return struct{}{}, nil
	})
}

// Run executes the convergence pipeline for one intent-target pair.
func (w *ConvergenceWorkflow) Run(runner DurableRunner, in ConvergenceInput) (ConvergenceResult, error) {
	intent, err := RunActivity(runner, w.LoadIntent(), in.IntentID)
	if err != nil {
		return ConvergenceResult{}, fmt.Errorf("load intent %s: %w", in.IntentID, err)
	}
	target, err := RunActivity(runner, w.LoadTarget(), in.TargetName)
	if err != nil {
		return ConvergenceResult{}, fmt.Errorf("load target %q: %w", in.TargetName, err)
	}

	desiredRef := intent.RefFor(in.TargetName)
	desiredReplicas := intent.ReplicasFor(in.TargetName)
	recordID, err := RunActivity(runner, w.OpenRelease(), OpenReleaseInput{
		IntentID:    intent.ID,
		App:         intent.App,
		TargetName:  target.Name,
		ArtifactRef: desiredRef,
		Replicas:    desiredReplicas,
	})
	if err != nil {
		return ConvergenceResult{}, fmt.Errorf("open release for %q: %w", in.TargetName, err)
	}

	result := ConvergenceResult{TargetName: target.Name, RecordID: recordID}
	outcome := RecordOutcomeInput{
		RecordID:    recordID,
		TargetName:  target.Name,
		ArtifactRef: desiredRef,
		RollbackOf:  intent.RollbackOf[target.Name],
	}

	current, err := RunActivity(runner, w.ReadTargetState(), target)
	if err != nil {
		return w.fail(runner, result, outcome, fmt.Errorf("read target state: %w", err))
	}

	action, err := RunActivity(runner, w.PlanConvergence(), PlanInput{
		Current:         current,
		DesiredRef:      desiredRef,
		DesiredReplicas: desiredReplicas,
	})
	if err != nil {
		return result, err
	}

	switch action.Kind {
	case ActionNoop:
		outcome.Detail = "already converged"
	default:
		if _, err := RunActivity(runner, w.ApplyToTarget(), ApplyInput{
			Target:      target,
			ArtifactRef: action.ArtifactRef,
			Replicas:    action.Replicas,
		}); err != nil {
			return w.fail(runner, result, outcome, err)
		}
	}

	outcome.Outcome = ReleaseApplied
	if _, err := RunActivity(runner, w.RecordOutcome(), outcome); err != nil {
		return result, err
	}
	result.Outcome = ReleaseApplied
	result.Detail = outcome.Detail
	return result, nil
}

// fail records a failed outcome for the open release. The adapter failure
// becomes the result, not a workflow error; only a ledger write failure
// aborts the run (leaving the pending record for reconciliation).
func (w *ConvergenceWorkflow) fail(runner DurableRunner, result ConvergenceResult, outcome RecordOutcomeInput, cause error) (ConvergenceResult, error) {
	outcome.Outcome = ReleaseFailed
	outcome.Detail = cause.Error()
	if _, err := RunActivity(runner, w.RecordOutcome(), outcome); err != nil {
		return result, err
	}
	result.Outcome = ReleaseFailed
	result.Detail = cause.Error()
	return result, nil
}
