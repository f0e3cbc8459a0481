// Command drydock drives application releases across heterogeneous
// deployment platforms from a declarative intent: submit, watch, roll back.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/drydock-deploy/drydock/internal/domain"
)

// Exit codes. Partial failure is distinguished from total failure so
// wrapping scripts can decide whether a retry or a rollback is in order.
const (
	exitOK      = 0
	exitPartial = 1
	exitFailed  = 2
	exitUsage   = 3
)

var (
	configPath string
	verbose    bool

	logger *zap.Logger
)

// exitCodeError carries a process exit code through cobra's error return.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func usageErr(err error) error  { return &exitCodeError{code: exitUsage, err: err} }
func failedErr(err error) error { return &exitCodeError{code: exitFailed, err: err} }

// usageArgs marks a positional-argument validation failure as invalid input.
func usageArgs(pos cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := pos(cmd, args); err != nil {
			return usageErr(err)
		}
		return nil
	}
}

// exitCode maps a command error to the process exit code. Errors that carry
// no explicit code are operational failures (ledger I/O, platform calls),
// not bad input.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var coded *exitCodeError
	if errors.As(err, &coded) {
		return coded.code
	}
	return exitFailed
}

var rootCmd = &cobra.Command{
	Use:   "drydock",
	Short: "Deployment orchestration across Dokploy and Northflank targets",
	Long: `drydock converges a set of deployment targets onto a desired artifact.

Submit an intent (app, artifact reference, replica count, targets) and
drydock drives each target to that state through its platform API,
recording every release in a durable ledger. Failed targets never block
healthy ones, and any applied release can be rolled back to its
predecessor.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "drydock.toml", "path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageErr(err)
	})

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(targetsCmd)
	rootCmd.AddCommand(reconcileCmd)
}

// exitForStatus maps an intent's aggregate state to the process exit code.
func exitForStatus(status domain.IntentStatus) error {
	switch status.State {
	case domain.AggregateSucceeded:
		return nil
	case domain.AggregatePartiallyFailed:
		return &exitCodeError{code: exitPartial, err: fmt.Errorf("intent %s partially failed", status.IntentID)}
	case domain.AggregateInProgress:
		return nil
	default:
		return failedErr(fmt.Errorf("intent %s %s", status.IntentID, status.State))
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "drydock: %v\n", err)
		os.Exit(exitCode(err))
	}
}
