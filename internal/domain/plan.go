package domain

// ActionKind is the convergence decision for one target.
type ActionKind string

const (
	// ActionNoop: target already runs the desired reference and replica count.
	ActionNoop ActionKind = "noop"
	// ActionApply: the artifact reference differs.
	ActionApply ActionKind = "apply"
	// ActionScale: only the replica count differs.
	ActionScale ActionKind = "scale"
)

// Action is the planned convergence step for a target.
type Action struct {
	Kind        ActionKind
	ArtifactRef string
	Replicas    int
}

// PlanAction compares the observed platform state with the desired state and
// decides the convergence step.
func PlanAction(current AppliedState, desiredRef string, desiredReplicas int) Action {
	action := Action{ArtifactRef: desiredRef, Replicas: desiredReplicas}
	switch {
	case current.ArtifactRef != desiredRef:
		action.Kind = ActionApply
	case current.Replicas != desiredReplicas:
		action.Kind = ActionScale
	default:
		action.Kind = ActionNoop
	}
	return action
}
