package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lnkbike/crashes/internal/curate"
	"github.com/lnkbike/crashes/internal/llm"
	"github.com/lnkbike/crashes/internal/model"
	"github.com/lnkbike/crashes/internal/source"
)

var (
	curateLimit   int
	curateSuggest bool
	curateForce   bool
)

// curateCmd represents the curate command
var curateCmd = &cobra.Command{
	Use:   "curate",
	Short: "Classify reports that mention a bicycle",
	Long: `Curate presents every unclassified candidate (a report whose narrative
mentions a bicycle, bike or cyclist) and records the category you choose.
Each answer is saved immediately; quit at any time and resume later.

With --suggest the configured language model proposes a category, which
is offered as the default answer and never applied on its own.

Example:
  crashes curate
  crashes curate --limit 20
  crashes curate --suggest
  crashes curate set B3-063805 crosswalk`,
	Args: cobra.NoArgs,
	RunE: runCurate,
}

var curateSetCmd = &cobra.Command{
	Use:   "set <case> <category>",
	Short: "Set the category of one report",
	Long: `Set records a category without the interactive review. Changing a
category that is already set requires --force.

Categories: crosswalk, sidewalk, road, intersection, elsewhere, not_involved`,
	Args: cobra.ExactArgs(2),
	RunE: runCurateSet,
}

func init() {
	rootCmd.AddCommand(curateCmd)
	curateCmd.AddCommand(curateSetCmd)

	curateCmd.Flags().IntVar(&curateLimit, "limit", 0, "review at most this many candidates (0 = all)")
	curateCmd.Flags().BoolVar(&curateSuggest, "suggest", false, "offer a suggested category from the configured LLM")
	curateSetCmd.Flags().BoolVar(&curateForce, "force", false, "replace an existing category")
}

func runCurate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	var suggester llm.Provider
	if curateSuggest {
		suggester, err = llm.NewProvider(llm.ConfigFromModel(a.cfg.LLM, a.cfg.HTTP))
		if err != nil {
			return fmt.Errorf("create suggester: %w", err)
		}
		if suggester == nil {
			return errors.New("--suggest needs llm.provider in the config (openai, anthropic, ollama)")
		}
		fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", suggester.Name(), a.cfg.LLM.Model)
	}

	curator := curate.New(a.store, suggester, a.log)
	curator.Sync()
	if err := a.store.Save(); err != nil {
		return err
	}

	rv := curate.NewReviewer(curator, a.store.Save, os.Stdin, os.Stdout)
	rv.Color = isTerminal(os.Stdout)
	// Answers are saved one by one, so Ctrl-C needs no handling here
	summary, err := rv.Review(context.Background(), curateLimit)
	if err != nil {
		return err
	}

	remaining := len(curator.Pending(0))
	fmt.Fprintf(os.Stderr, "✓ Classified %d, skipped %d, %d still unclassified\n", summary.Classified, summary.Skipped, remaining)

	// New classifications can make a hit-and-run reviewable
	if hr := curate.NewHitAndRun(a.store, a.log).Sync(); len(hr.Added) > 0 {
		if err := a.store.Save(); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "  %d hit-and-run cases to review → crashes hitnrun\n", len(hr.Added))
	}
	return nil
}

func runCurateSet(cmd *cobra.Command, args []string) error {
	caseNo, err := source.NormalizeCaseNo(args[0])
	if err != nil {
		return err
	}
	cat, err := model.ParseCategory(args[1])
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	curator := curate.New(a.store, nil, a.log)
	if err := curator.Classify(caseNo, cat, curateForce); err != nil {
		if errors.Is(err, model.ErrInvalidTransition) {
			return fmt.Errorf("%w (use --force to replace it)", err)
		}
		return err
	}
	if err := a.store.Save(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s: %s\n", caseNo, cat)
	return nil
}
