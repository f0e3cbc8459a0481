package domain

import "time"

// ReleaseOutcome indicates the state of one release attempt against a target.
type ReleaseOutcome string

const (
	ReleasePending    ReleaseOutcome = "pending"
	ReleaseApplied    ReleaseOutcome = "applied"
	ReleaseFailed     ReleaseOutcome = "failed"
	ReleaseRolledBack ReleaseOutcome = "rolled_back"
)

// ReleaseRecord captures one attempt to put an artifact on a target. Rows
// are append-only; the only mutation is the outcome transition
// (pending -> applied/failed, applied -> rolled_back).
type ReleaseRecord struct {
	ID          int64
	IntentID    IntentID
	App         string
	TargetName  string
	ArtifactRef string
	Replicas    int
	Outcome     ReleaseOutcome
	Detail      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
