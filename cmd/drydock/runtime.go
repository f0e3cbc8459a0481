package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/cschleiden/go-workflows/backend"
	wfsqlite "github.com/cschleiden/go-workflows/backend/sqlite"
	wfclient "github.com/cschleiden/go-workflows/client"
	"github.com/cschleiden/go-workflows/worker"
	"github.com/dbos-inc/dbos-transact-golang/dbos"

	"github.com/drydock-deploy/drydock/internal/application"
	"github.com/drydock-deploy/drydock/internal/config"
	"github.com/drydock-deploy/drydock/internal/domain"
	"github.com/drydock-deploy/drydock/internal/infrastructure/dbosworkflows"
	"github.com/drydock-deploy/drydock/internal/infrastructure/goworkflows"
	"github.com/drydock-deploy/drydock/internal/infrastructure/sqlite"
	"github.com/drydock-deploy/drydock/internal/infrastructure/syncworkflow"
	"github.com/drydock-deploy/drydock/internal/platform/dokploy"
	"github.com/drydock-deploy/drydock/internal/platform/northflank"
)

// runtime bundles the wired services for one CLI invocation.
type runtime struct {
	cfg        config.Config
	db         *sql.DB
	controller *application.Controller
	targets    *application.TargetService
	reconciler *application.Reconciler
	ledger     *sqlite.ReleaseLedger

	stopEngine func()
}

// openRuntime loads the config and wires storage, adapters, the selected
// workflow engine and the controller.
func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, usageErr(err)
	}

	db, err := sqlite.Open(cfg.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	intents := &sqlite.IntentRepo{DB: db}
	targets := &sqlite.TargetRepo{DB: db}
	ledger := &sqlite.ReleaseLedger{DB: db}

	httpClient := &http.Client{Timeout: time.Duration(cfg.AdapterTimeout)}
	registry := domain.AdapterRegistry{
		domain.AdapterDokploy:    &dokploy.Adapter{HTTP: httpClient},
		domain.AdapterNorthflank: &northflank.Adapter{HTTP: httpClient},
	}

	wf := &domain.ConvergenceWorkflow{
		Intents:  intents,
		Targets:  targets,
		Ledger:   ledger,
		Adapters: registry,
	}

	engine, launch, stopEngine, err := buildEngine(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	runner, err := engine.ConvergenceRunner(wf)
	if err == nil && launch != nil {
		err = launch()
	}
	if err != nil {
		stopEngine()
		db.Close()
		return nil, fmt.Errorf("start %s engine: %w", cfg.Engine, err)
	}

	rt := &runtime{
		cfg: cfg,
		db:  db,
		controller: &application.Controller{
			Intents:  intents,
			Targets:  targets,
			Ledger:   ledger,
			Workflow: runner,
			Log:      logger,
			Limit:    cfg.Concurrency,
		},
		targets:    &application.TargetService{Targets: targets, Log: logger},
		reconciler: &application.Reconciler{Targets: targets, Ledger: ledger, Adapters: registry, Log: logger},
		ledger:     ledger,
		stopEngine: stopEngine,
	}

	// Configured targets are synced into the store on every invocation so
	// the config file stays the source of truth.
	if err := rt.targets.Ensure(ctx, cfg.DomainTargets()); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) Close() {
	rt.stopEngine()
	rt.db.Close()
}

// buildEngine constructs the configured workflow engine. The returned
// launch hook runs after workflow registration; stop tears the engine down.
func buildEngine(ctx context.Context, cfg config.Config) (domain.WorkflowEngine, func() error, func(), error) {
	noop := func() {}
	switch cfg.Engine {
	case config.EngineSync:
		return &syncworkflow.Engine{}, nil, noop, nil

	case config.EngineDurable:
		// In-memory backend: workflow state survives activity failures
		// and replays within this process. The intent and release ledger
		// stay durable in SQLite regardless.
		var b backend.Backend = wfsqlite.NewInMemoryBackend()
		w := worker.New(b, nil)
		workerCtx, cancel := context.WithCancel(ctx)
		launch := func() error { return w.Start(workerCtx) }
		stop := func() {
			cancel()
			_ = w.WaitForCompletion()
		}
		engine := &goworkflows.Engine{
			Worker:  w,
			Client:  wfclient.New(b),
			Timeout: 10 * time.Minute,
		}
		return engine, launch, stop, nil

	case config.EngineDBOS:
		dbosCtx, err := dbos.NewDBOSContext(ctx, dbos.Config{
			AppName:     "drydock",
			DatabaseURL: cfg.DatabaseURL,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect DBOS: %w", err)
		}
		launch := func() error { return dbos.Launch(dbosCtx) }
		stop := func() { dbos.Shutdown(dbosCtx, 5*time.Second) }
		return &dbosworkflows.Engine{DBOSCtx: dbosCtx}, launch, stop, nil

	default:
		return nil, nil, nil, usageErr(fmt.Errorf("unknown engine %q", cfg.Engine))
	}
}
