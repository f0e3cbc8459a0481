package domain

import "context"

// IntentRepository persists and retrieves deployment intents.
type IntentRepository interface {
	Create(ctx context.Context, in DeploymentIntent) error
	Get(ctx context.Context, id IntentID) (DeploymentIntent, error)
	List(ctx context.Context) ([]DeploymentIntent, error)
	SetState(ctx context.Context, id IntentID, state IntentState) error
}

// TargetRepository persists and retrieves target metadata.
type TargetRepository interface {
	Create(ctx context.Context, t Target) error
	Get(ctx context.Context, name string) (Target, error)
	List(ctx context.Context) ([]Target, error)
	SetLastApplied(ctx context.Context, name, artifactRef string) error
	Delete(ctx context.Context, name string) error
}

// ReleaseLedger is the durable per-target release history.
//
// Begin opens a pending record and enforces the single-pending invariant:
// a target with a release already in flight yields [ErrReleaseInFlight].
// Resolve transitions a pending record to its final outcome. Rows are never
// deleted; Pending exposes dangling records for restart reconciliation.
type ReleaseLedger interface {
	Begin(ctx context.Context, rec ReleaseRecord) (int64, error)
	Resolve(ctx context.Context, id int64, outcome ReleaseOutcome, detail string) error
	MarkRolledBack(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (ReleaseRecord, error)
	ListByIntent(ctx context.Context, intentID IntentID) ([]ReleaseRecord, error)
	LatestApplied(ctx context.Context, app, target string) (ReleaseRecord, error)
	PriorApplied(ctx context.Context, app, target string) (ReleaseRecord, error)
	History(ctx context.Context, target string, limit int) ([]ReleaseRecord, error)
	Pending(ctx context.Context) ([]ReleaseRecord, error)
}
