package domain

// AggregateState summarizes an intent across all its targets.
type AggregateState string

const (
	AggregateInProgress      AggregateState = "in_progress"
	AggregateSucceeded       AggregateState = "succeeded"
	AggregatePartiallyFailed AggregateState = "partially_failed"
	AggregateFailed          AggregateState = "failed"
	AggregateCanceled        AggregateState = "canceled"
)

// ReleaseSkipped marks a target that was never dispatched because the
// intent was canceled first. Status-only; never written to the ledger.
const ReleaseSkipped ReleaseOutcome = "skipped"

// TargetOutcome is the per-target slice of an intent status.
type TargetOutcome struct {
	TargetName  string
	Outcome     ReleaseOutcome
	Detail      string
	ArtifactRef string
}

// IntentStatus is the aggregate answer to a status query: one state for
// the intent and exactly one outcome per intent target.
type IntentStatus struct {
	IntentID IntentID
	App      string
	State    AggregateState
	Targets  []TargetOutcome
}

// AggregateStatus folds an intent's release records into its status.
// Records are matched per target; targets without a record are pending
// while the intent runs and skipped once it is canceled. A record that was
// applied and later rolled back still counts as a success of this intent.
func AggregateStatus(intent DeploymentIntent, records []ReleaseRecord) IntentStatus {
	byTarget := make(map[string]ReleaseRecord, len(records))
	for _, rec := range records {
		if prev, ok := byTarget[rec.TargetName]; !ok || rec.ID > prev.ID {
			byTarget[rec.TargetName] = rec
		}
	}

	status := IntentStatus{IntentID: intent.ID, App: intent.App}
	var succeeded, failed, unresolved int
	for _, name := range intent.Targets {
		out := TargetOutcome{TargetName: name, ArtifactRef: intent.RefFor(name)}
		rec, ok := byTarget[name]
		switch {
		case ok:
			out.Outcome = rec.Outcome
			out.Detail = rec.Detail
			out.ArtifactRef = rec.ArtifactRef
		case intent.State == IntentStateCanceled:
			out.Outcome = ReleaseSkipped
		case intent.State == IntentStateDone:
			// The intent finished without this target ever opening a
			// release record: the dispatch itself failed.
			out.Outcome = ReleaseFailed
			out.Detail = "no release record"
		default:
			out.Outcome = ReleasePending
		}
		switch out.Outcome {
		case ReleaseApplied, ReleaseRolledBack:
			succeeded++
		case ReleaseFailed:
			failed++
		case ReleasePending:
			unresolved++
		}
		status.Targets = append(status.Targets, out)
	}

	switch {
	case intent.State == IntentStateCanceled:
		status.State = AggregateCanceled
	case unresolved > 0 || intent.State == IntentStatePending || intent.State == IntentStateRunning:
		status.State = AggregateInProgress
	case failed == 0:
		status.State = AggregateSucceeded
	case succeeded == 0:
		status.State = AggregateFailed
	default:
		status.State = AggregatePartiallyFailed
	}
	return status
}
