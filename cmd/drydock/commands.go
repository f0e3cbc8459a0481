package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/drydock-deploy/drydock/internal/application"
	"github.com/drydock-deploy/drydock/internal/domain"
)

var (
	deployTargets  []string
	deployReplicas int
	deployDetach   bool

	rollbackTargets []string
	rollbackRef     string
)

var deployCmd = &cobra.Command{
	Use:   "deploy <app> <artifact-ref>",
	Short: "Submit a deployment intent and wait for it to converge",
	Long: `Drives the named targets (or all configured targets) to the given
artifact reference. Waits for every target to resolve and exits 0 when all
applied, 1 when some failed, 2 when none did.`,
	Args: usageArgs(cobra.ExactArgs(2)),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()
		ctx := cmd.Context()

		targets := deployTargets
		if len(targets) == 0 {
			all, err := rt.targets.List(ctx)
			if err != nil {
				return err
			}
			for _, t := range all {
				targets = append(targets, t.Name)
			}
		}

		intent, err := rt.controller.Submit(ctx, application.SubmitInput{
			App:         args[0],
			ArtifactRef: args[1],
			Replicas:    deployReplicas,
			Targets:     targets,
		})
		if err != nil {
			if errors.Is(err, domain.ErrInvalidIntent) || errors.Is(err, domain.ErrNotFound) {
				return usageErr(err)
			}
			return err
		}

		if deployDetach {
			fmt.Fprintln(cmd.OutOrStdout(), intent.ID)
			return nil
		}

		status, err := rt.controller.Await(ctx, intent.ID)
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), status)
		return exitForStatus(status)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [intent-id]",
	Short: "Show the aggregate and per-target state of an intent",
	Long:  `Without an intent ID, lists all known intents.`,
	Args:  usageArgs(cobra.MaximumNArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()
		ctx := cmd.Context()

		if len(args) == 0 {
			intents, err := rt.controller.List(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INTENT\tAPP\tARTIFACT\tSTATE\tCREATED")
			for _, in := range intents {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					in.ID, in.App, in.ArtifactRef, in.State, in.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		}

		status, err := rt.controller.Status(ctx, domain.IntentID(args[0]))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return usageErr(err)
			}
			return err
		}
		printStatus(cmd.OutOrStdout(), status)
		return nil
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback <app>",
	Short: "Revert targets to their previous applied release",
	Long: `Submits a compensating intent driving each selected target back to the
release that preceded its current one. With --ref the revert reference is
pinned instead of looked up per target. Targets default to every target
with an applied release for the app.`,
	Args: usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()
		ctx := cmd.Context()

		intent, err := rt.controller.Rollback(ctx, application.RollbackInput{
			App:         args[0],
			Targets:     rollbackTargets,
			ArtifactRef: rollbackRef,
		})
		if err != nil {
			if errors.Is(err, domain.ErrInvalidIntent) {
				return usageErr(err)
			}
			if errors.Is(err, domain.ErrNoPriorRelease) {
				return failedErr(err)
			}
			return err
		}

		status, err := rt.controller.Await(ctx, intent.ID)
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), status)
		return exitForStatus(status)
	},
}

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Manage deployment targets",
}

var targetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered targets",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		targets, err := rt.targets.List(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tKIND\tENDPOINT\tLAST APPLIED")
		for _, t := range targets {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Name, t.Kind, t.Endpoint, t.LastApplied)
		}
		return w.Flush()
	},
}

var targetsHistoryCmd = &cobra.Command{
	Use:   "history <target>",
	Short: "Show a target's release history, newest first",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		records, err := rt.ledger.History(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tAPP\tARTIFACT\tREPLICAS\tOUTCOME\tDETAIL")
		for _, rec := range records {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
				rec.ID, rec.App, rec.ArtifactRef, rec.Replicas, rec.Outcome, rec.Detail)
		}
		return w.Flush()
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Settle release records left pending by a crash",
	Long: `Reads the platform state back for every pending release record and
resolves it: applied when the record's artifact is observed on the target,
failed when it is not. Unreachable targets stay pending.`,
	Args: usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		settled, err := rt.reconciler.Reconcile(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "settled %d pending release(s)\n", settled)
		return nil
	},
}

func init() {
	deployCmd.Flags().StringSliceVar(&deployTargets, "targets", nil, "targets to deploy to (default: all configured)")
	deployCmd.Flags().IntVar(&deployReplicas, "replicas", 1, "desired replica count")
	deployCmd.Flags().BoolVar(&deployDetach, "detach", false, "print the intent ID and return without waiting")

	rollbackCmd.Flags().StringSliceVar(&rollbackTargets, "target", nil, "targets to roll back (default: all with an applied release)")
	rollbackCmd.Flags().StringVar(&rollbackRef, "ref", "", "revert to this artifact reference instead of the prior release")

	targetsHistoryCmd.Flags().Int("limit", 20, "maximum records to show")
	targetsCmd.AddCommand(targetsListCmd)
	targetsCmd.AddCommand(targetsHistoryCmd)
}

func printStatus(out io.Writer, status domain.IntentStatus) {
	fmt.Fprintf(out, "intent %s (%s): %s\n", status.IntentID, status.App, status.State)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tOUTCOME\tARTIFACT\tDETAIL")
	for _, t := range status.Targets {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.TargetName, t.Outcome, t.ArtifactRef, t.Detail)
	}
	w.Flush()
}
