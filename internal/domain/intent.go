package domain

import (
	"fmt"
	"strings"
	"time"
)

// IntentID uniquely identifies a submitted deployment intent.
type IntentID string

// IntentState indicates the lifecycle state of an intent.
type IntentState string

const (
	IntentStatePending  IntentState = "pending"
	IntentStateRunning  IntentState = "running"
	IntentStateDone     IntentState = "done"
	IntentStateCanceled IntentState = "canceled"
)

// DeploymentIntent is a requested desired deployment state: one artifact
// reference driven to a set of targets. Immutable once submitted; only the
// lifecycle state changes afterwards.
type DeploymentIntent struct {
	ID          IntentID
	App         string
	ArtifactRef string
	Replicas    int
	Targets     []string

	// TargetRefs overrides ArtifactRef per target. Set by rollback, where
	// each target reverts to its own prior reference.
	TargetRefs map[string]string

	// TargetReplicas overrides Replicas per target. Set by rollback to
	// restore the replica count of the release being reverted to.
	TargetReplicas map[string]int

	// RollbackOf maps a target to the release record superseded by this
	// intent. On a confirmed apply that record transitions to rolled_back.
	RollbackOf map[string]int64

	State     IntentState
	CreatedAt time.Time
}

// RefFor returns the artifact reference the intent wants on the given target.
func (in DeploymentIntent) RefFor(target string) string {
	if ref, ok := in.TargetRefs[target]; ok {
		return ref
	}
	return in.ArtifactRef
}

// ReplicasFor returns the replica count the intent wants on the given target.
func (in DeploymentIntent) ReplicasFor(target string) int {
	if n, ok := in.TargetReplicas[target]; ok {
		return n
	}
	return in.Replicas
}

// ValidateArtifactRef checks that ref is a well-formed image reference of the
// form name[:tag]. The name may contain a registry host and path segments.
func ValidateArtifactRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("%w: artifact reference is required", ErrInvalidIntent)
	}
	if strings.ContainsAny(ref, " \t\n") {
		return fmt.Errorf("%w: artifact reference %q contains whitespace", ErrInvalidIntent, ref)
	}
	name, tag := ref, ""
	// A colon after the last slash separates the tag; earlier colons belong
	// to a registry host:port.
	if i := strings.LastIndex(ref, ":"); i > strings.LastIndex(ref, "/") {
		name, tag = ref[:i], ref[i+1:]
		if tag == "" {
			return fmt.Errorf("%w: artifact reference %q has an empty tag", ErrInvalidIntent, ref)
		}
	}
	if name == "" {
		return fmt.Errorf("%w: artifact reference %q has an empty name", ErrInvalidIntent, ref)
	}
	return nil
}
