// Package adaptertest provides a scriptable in-memory [domain.TargetAdapter]
// and a contract suite for real adapter implementations.
package adaptertest

import (
	"context"
	"sync"

	"github.com/drydock-deploy/drydock/internal/domain"
)

// Fake is an in-memory adapter keyed by target name. Tests script failures
// per target and inspect call counts and observed state afterwards.
type Fake struct {
	mu      sync.Mutex
	states  map[string]domain.AppliedState
	failure map[string]*scriptedFailure
	applies map[string]int
}

type scriptedFailure struct {
	err   error
	times int
}

func NewFake() *Fake {
	return &Fake{
		states:  make(map[string]domain.AppliedState),
		failure: make(map[string]*scriptedFailure),
		applies: make(map[string]int),
	}
}

// SetState seeds the platform state observed for a target.
func (f *Fake) SetState(target string, state domain.AppliedState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[target] = state
}

// State returns the current platform state for a target.
func (f *Fake) State(target string) domain.AppliedState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[target]
}

// FailApplies makes the next n Apply calls for a target return err.
// n <= 0 fails every call.
func (f *Fake) FailApplies(target string, err error, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failure[target] = &scriptedFailure{err: err, times: n}
}

// ApplyCalls returns how many times Apply ran for a target.
func (f *Fake) ApplyCalls(target string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applies[target]
}

func (f *Fake) Apply(_ context.Context, target domain.Target, artifactRef string, replicas int) (domain.AppliedState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applies[target.Name]++

	if fail := f.failure[target.Name]; fail != nil {
		if fail.times <= 0 {
			return domain.AppliedState{}, fail.err
		}
		fail.times--
		if fail.times == 0 {
			delete(f.failure, target.Name)
		}
		return domain.AppliedState{}, fail.err
	}

	state := domain.AppliedState{ArtifactRef: artifactRef, Replicas: replicas, Healthy: true}
	f.states[target.Name] = state
	return state, nil
}

func (f *Fake) CurrentState(_ context.Context, target domain.Target) (domain.AppliedState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[target.Name], nil
}
