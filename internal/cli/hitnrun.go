package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lnkbike/crashes/internal/curate"
	"github.com/lnkbike/crashes/internal/model"
	"github.com/lnkbike/crashes/internal/source"
)

var (
	hitnrunLimit int
	hitnrunForce bool
)

// hitnrunCmd represents the hitnrun command
var hitnrunCmd = &cobra.Command{
	Use:   "hitnrun",
	Short: "Record who left the scene of bicycle hit-and-runs",
	Long: `Hitnrun presents every classified bicycle crash that was reported as a
hit-and-run and records which party left the scene. Pressing Enter
records the driver. Each answer is saved immediately.

Example:
  crashes hitnrun
  crashes hitnrun --limit 10
  crashes hitnrun set B3-063805 cyclist`,
	Args: cobra.NoArgs,
	RunE: runHitnrun,
}

var hitnrunSetCmd = &cobra.Command{
	Use:   "set <case> <status>",
	Short: "Set the hit-and-run status of one report",
	Long: `Set records a status without the interactive review. Changing a
status that is already set requires --force.

Statuses: driver, cyclist, both, unknown`,
	Args: cobra.ExactArgs(2),
	RunE: runHitnrunSet,
}

func init() {
	rootCmd.AddCommand(hitnrunCmd)
	hitnrunCmd.AddCommand(hitnrunSetCmd)

	hitnrunCmd.Flags().IntVar(&hitnrunLimit, "limit", 0, "review at most this many cases (0 = all)")
	hitnrunSetCmd.Flags().BoolVar(&hitnrunForce, "force", false, "replace an existing status")
}

func runHitnrun(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	queue := curate.NewHitAndRun(a.store, a.log)
	queue.Sync()
	if err := a.store.Save(); err != nil {
		return err
	}

	rv := curate.NewHitAndRunReviewer(queue, a.store.Save, os.Stdin, os.Stdout)
	rv.Color = isTerminal(os.Stdout)
	summary, err := rv.Review(context.Background(), hitnrunLimit)
	if err != nil {
		return err
	}

	remaining := len(queue.Pending(0))
	fmt.Fprintf(os.Stderr, "✓ Recorded %d, skipped %d, %d still unreviewed\n", summary.Classified, summary.Skipped, remaining)
	return nil
}

func runHitnrunSet(cmd *cobra.Command, args []string) error {
	caseNo, err := source.NormalizeCaseNo(args[0])
	if err != nil {
		return err
	}
	st, err := model.ParseHitAndRunStatus(args[1])
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	queue := curate.NewHitAndRun(a.store, a.log)
	if err := queue.Record(caseNo, st, hitnrunForce); err != nil {
		if errors.Is(err, model.ErrInvalidTransition) {
			return fmt.Errorf("%w (use --force to replace it)", err)
		}
		return err
	}
	if err := a.store.Save(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s: %s\n", caseNo, st)
	return nil
}
