// Package application wires the domain into services: intent submission and
// fan-out, status aggregation, rollback computation, target management, and
// restart reconciliation.
package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/drydock-deploy/drydock/internal/domain"
)

// SubmitInput is the caller-provided input for submitting a deployment intent.
type SubmitInput struct {
	App         string
	ArtifactRef string
	Replicas    int
	Targets     []string
}

// Controller accepts deployment intents and drives them to completion by
// fanning out one convergence workflow per target. It owns intent lifecycle
// state; per-target release state lives in the ledger.
type Controller struct {
	Intents  domain.IntentRepository
	Targets  domain.TargetRepository
	Ledger   domain.ReleaseLedger
	Workflow domain.ConvergenceRunner
	Log      *zap.Logger

	// Limit caps concurrently converging targets across all intents.
	// Zero means the default of 4.
	Limit int

	// Now overrides the clock in tests. Nil means time.Now.
	Now func() time.Time

	mu       sync.Mutex
	inflight map[domain.IntentID]*intentRun
	// locks serializes convergence per app/target key. Entries are
	// refcounted and dropped when the last holder releases, so the map
	// stays bounded by in-flight work rather than growing with every
	// app the process ever touched.
	locks map[string]*targetLock
}

// targetLock is one refcounted entry in the controller's lock map.
type targetLock struct {
	mu   sync.Mutex
	refs int
}

// intentRun tracks one dispatched intent until its fan-out completes.
type intentRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

const defaultConcurrency = 4

// Submit validates and persists an intent, then dispatches convergence
// asynchronously. It returns as soon as the intent is durably recorded;
// callers observe progress through Status or Await.
func (c *Controller) Submit(ctx context.Context, in SubmitInput) (domain.DeploymentIntent, error) {
	if in.App == "" {
		return domain.DeploymentIntent{}, fmt.Errorf("%w: app is required", domain.ErrInvalidIntent)
	}
	if len(in.Targets) == 0 {
		return domain.DeploymentIntent{}, fmt.Errorf("%w: at least one target is required", domain.ErrInvalidIntent)
	}
	if in.Replicas < 0 {
		return domain.DeploymentIntent{}, fmt.Errorf("%w: replicas must not be negative", domain.ErrInvalidIntent)
	}
	if err := domain.ValidateArtifactRef(in.ArtifactRef); err != nil {
		return domain.DeploymentIntent{}, err
	}
	for _, name := range in.Targets {
		if _, err := c.Targets.Get(ctx, name); err != nil {
			return domain.DeploymentIntent{}, fmt.Errorf("target %q: %w", name, err)
		}
	}

	intent := domain.DeploymentIntent{
		ID:          domain.IntentID(uuid.NewString()),
		App:         in.App,
		ArtifactRef: in.ArtifactRef,
		Replicas:    in.Replicas,
		Targets:     in.Targets,
		State:       domain.IntentStatePending,
		CreatedAt:   c.now(),
	}
	return c.dispatch(ctx, intent)
}

// dispatch persists the intent and starts its asynchronous fan-out.
func (c *Controller) dispatch(ctx context.Context, intent domain.DeploymentIntent) (domain.DeploymentIntent, error) {
	if err := c.Intents.Create(ctx, intent); err != nil {
		return domain.DeploymentIntent{}, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run := &intentRun{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	if c.inflight == nil {
		c.inflight = make(map[domain.IntentID]*intentRun)
	}
	c.inflight[intent.ID] = run
	c.mu.Unlock()

	c.log().Info("intent accepted",
		zap.String("intent", string(intent.ID)),
		zap.String("app", intent.App),
		zap.Int("targets", len(intent.Targets)))

	go c.execute(runCtx, intent, run)
	return intent, nil
}

// execute fans the intent out across its targets and records the final
// lifecycle state. Runs on its own goroutine per intent.
func (c *Controller) execute(ctx context.Context, intent domain.DeploymentIntent, run *intentRun) {
	defer close(run.done)
	defer func() {
		c.mu.Lock()
		delete(c.inflight, intent.ID)
		c.mu.Unlock()
	}()

	if err := c.Intents.SetState(ctx, intent.ID, domain.IntentStateRunning); err != nil {
		c.log().Error("mark intent running", zap.String("intent", string(intent.ID)), zap.Error(err))
		return
	}

	limit := c.Limit
	if limit <= 0 {
		limit = defaultConcurrency
	}
	g := &errgroup.Group{}
	g.SetLimit(limit)

	for _, name := range intent.Targets {
		name := name
		g.Go(func() error {
			// Targets not yet dispatched when the intent is canceled
			// stay untouched; status reports them as skipped.
			if ctx.Err() != nil {
				return nil
			}
			c.converge(ctx, intent, name)
			return nil
		})
	}
	g.Wait()

	final := domain.IntentStateDone
	if ctx.Err() != nil {
		final = domain.IntentStateCanceled
	}
	// Lifecycle writes use a fresh context: the run context may already be
	// canceled and the final state must still land.
	if err := c.Intents.SetState(context.Background(), intent.ID, final); err != nil {
		c.log().Error("finalize intent", zap.String("intent", string(intent.ID)), zap.Error(err))
	}
}

// converge runs one target's convergence workflow. The per-app-target lock
// serializes concurrent intents for the same app on the same target so the
// ledger's single-pending constraint surfaces as ordering, not as failures.
func (c *Controller) converge(ctx context.Context, intent domain.DeploymentIntent, target string) {
	key := intent.App + "/" + target
	lock := c.acquireTargetLock(key)
	defer c.releaseTargetLock(key, lock)

	log := c.log().With(
		zap.String("intent", string(intent.ID)),
		zap.String("app", intent.App),
		zap.String("target", target))

	// The workflow runs shielded from cancellation: once a target is
	// dispatched it runs to completion, otherwise an interrupted apply
	// would leave the platform in an unknown state.
	wfCtx := context.WithoutCancel(ctx)
	handle, err := c.Workflow.Run(wfCtx, domain.ConvergenceInput{IntentID: intent.ID, TargetName: target})
	if err != nil {
		log.Error("start convergence workflow", zap.Error(err))
		return
	}
	result, err := handle.AwaitResult(wfCtx)
	if err != nil {
		// The workflow run itself failed (ledger write, engine fault). Any
		// pending record it opened is picked up by reconciliation.
		log.Error("convergence workflow failed", zap.String("workflow", handle.WorkflowID()), zap.Error(err))
		return
	}
	log.Info("target converged",
		zap.String("outcome", string(result.Outcome)),
		zap.String("detail", result.Detail))
}

// acquireTargetLock registers interest in the key, then blocks until the
// lock is held. Registration under c.mu keeps the entry alive while this
// caller waits on it.
func (c *Controller) acquireTargetLock(key string) *targetLock {
	c.mu.Lock()
	if c.locks == nil {
		c.locks = make(map[string]*targetLock)
	}
	lock, ok := c.locks[key]
	if !ok {
		lock = &targetLock{}
		c.locks[key] = lock
	}
	lock.refs++
	c.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (c *Controller) releaseTargetLock(key string, lock *targetLock) {
	lock.mu.Unlock()
	c.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(c.locks, key)
	}
	c.mu.Unlock()
}

// Status reports the aggregate state of an intent and the per-target
// outcomes of its release records.
func (c *Controller) Status(ctx context.Context, id domain.IntentID) (domain.IntentStatus, error) {
	intent, err := c.Intents.Get(ctx, id)
	if err != nil {
		return domain.IntentStatus{}, err
	}
	records, err := c.Ledger.ListByIntent(ctx, id)
	if err != nil {
		return domain.IntentStatus{}, fmt.Errorf("list releases for %s: %w", id, err)
	}
	return domain.AggregateStatus(intent, records), nil
}

// Await blocks until the intent's fan-out completes, then returns its status.
func (c *Controller) Await(ctx context.Context, id domain.IntentID) (domain.IntentStatus, error) {
	c.mu.Lock()
	run, ok := c.inflight[id]
	c.mu.Unlock()
	if ok {
		select {
		case <-run.done:
		case <-ctx.Done():
			return domain.IntentStatus{}, ctx.Err()
		}
	}
	return c.Status(ctx, id)
}

// Cancel stops dispatching further targets of an in-flight intent. Targets
// already converging run to completion; canceling mid-apply would leave the
// platform in an unknown state.
func (c *Controller) Cancel(ctx context.Context, id domain.IntentID) error {
	c.mu.Lock()
	run, ok := c.inflight[id]
	c.mu.Unlock()
	if !ok {
		intent, err := c.Intents.Get(ctx, id)
		if err != nil {
			return err
		}
		if intent.State == domain.IntentStateDone || intent.State == domain.IntentStateCanceled {
			return fmt.Errorf("intent %s already %s: %w", id, intent.State, domain.ErrInvalidIntent)
		}
		// Pending but not in flight: a crash left it behind. Mark it
		// canceled directly.
		return c.Intents.SetState(ctx, id, domain.IntentStateCanceled)
	}
	run.cancel()
	return nil
}

// RollbackInput selects what to roll back: one app, optionally a subset of
// its targets. An explicit ArtifactRef pins the revert reference; otherwise
// each target reverts to its own previous applied release.
type RollbackInput struct {
	App         string
	Targets     []string
	ArtifactRef string
}

// Rollback submits a compensating intent that drives each selected target
// back to its prior applied release. Targets that never had two applied
// releases yield [domain.ErrNoPriorRelease].
func (c *Controller) Rollback(ctx context.Context, in RollbackInput) (domain.DeploymentIntent, error) {
	if in.App == "" {
		return domain.DeploymentIntent{}, fmt.Errorf("%w: app is required", domain.ErrInvalidIntent)
	}

	targets := in.Targets
	if len(targets) == 0 {
		all, err := c.Targets.List(ctx)
		if err != nil {
			return domain.DeploymentIntent{}, fmt.Errorf("list targets: %w", err)
		}
		// Auto-selection picks every target that can actually be
		// reverted; targets with nothing to revert to stay untouched.
		// Naming a target explicitly makes a missing prior an error.
		for _, t := range all {
			if _, err := c.Ledger.LatestApplied(ctx, in.App, t.Name); err != nil {
				continue
			}
			if in.ArtifactRef == "" {
				if _, err := c.Ledger.PriorApplied(ctx, in.App, t.Name); err != nil {
					continue
				}
			}
			targets = append(targets, t.Name)
		}
		if len(targets) == 0 {
			return domain.DeploymentIntent{}, fmt.Errorf("app %q has no release to revert: %w", in.App, domain.ErrNoPriorRelease)
		}
	}

	intent := domain.DeploymentIntent{
		ID:             domain.IntentID(uuid.NewString()),
		App:            in.App,
		Targets:        targets,
		TargetRefs:     make(map[string]string, len(targets)),
		TargetReplicas: make(map[string]int, len(targets)),
		RollbackOf:     make(map[string]int64, len(targets)),
		State:          domain.IntentStatePending,
		CreatedAt:      c.now(),
	}

	for _, name := range targets {
		current, err := c.Ledger.LatestApplied(ctx, in.App, name)
		if err != nil {
			return domain.DeploymentIntent{}, fmt.Errorf("target %q has no applied release: %w", name, domain.ErrNoPriorRelease)
		}

		var prior domain.ReleaseRecord
		if in.ArtifactRef != "" {
			if err := domain.ValidateArtifactRef(in.ArtifactRef); err != nil {
				return domain.DeploymentIntent{}, err
			}
			prior = domain.ReleaseRecord{ArtifactRef: in.ArtifactRef, Replicas: current.Replicas}
		} else {
			prior, err = c.Ledger.PriorApplied(ctx, in.App, name)
			if err != nil {
				return domain.DeploymentIntent{}, fmt.Errorf("target %q: %w", name, err)
			}
		}

		intent.TargetRefs[name] = prior.ArtifactRef
		intent.TargetReplicas[name] = prior.Replicas
		intent.RollbackOf[name] = current.ID
	}

	return c.dispatch(ctx, intent)
}

// List returns all known intents.
func (c *Controller) List(ctx context.Context) ([]domain.DeploymentIntent, error) {
	return c.Intents.List(ctx)
}

func (c *Controller) now() time.Time {
	if c.Now == nil {
		return time.Now().UTC()
	}
	return c.Now()
}

func (c *Controller) log() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}
