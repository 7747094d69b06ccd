package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lnkbike/crashes/internal/curate"
	"github.com/lnkbike/crashes/internal/model"
	"github.com/lnkbike/crashes/internal/pipeline"
	"github.com/lnkbike/crashes/internal/source"
	"github.com/lnkbike/crashes/internal/worker"
)

var (
	reparseCases   []string
	reparseFile    string
	reparseCurated bool
	reparseAll     bool
	prune          bool
	summaryJSON    bool
	maxDocBytes    int64
)

// parseCmd represents the parse command
var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Extract records from new crash report documents",
	Long: `Parse reads every document in the documents directory that has no
record yet, extracts its fields in parallel and merges the results into
reports.json. Existing records are only replaced when asked for.

Example:
  crashes parse
  crashes parse --reparse B3-063805,B2035865
  crashes parse --reparse-file cases.txt --workers 4
  crashes parse --reparse-curated
  crashes parse --reparse-all --prune`,
	Args: cobra.NoArgs,
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringSliceVar(&reparseCases, "reparse", nil, "case numbers to parse again, overwriting their records")
	parseCmd.Flags().StringVar(&reparseFile, "reparse-file", "", "file of case numbers to parse again (one per line)")
	parseCmd.Flags().BoolVar(&reparseCurated, "reparse-curated", false, "parse again every case classified as bicycle-involved")
	parseCmd.Flags().BoolVar(&reparseAll, "reparse-all", false, "parse every document again")
	parseCmd.Flags().BoolVar(&prune, "prune", false, "drop records whose document is gone")
	parseCmd.Flags().BoolVar(&summaryJSON, "json", false, "print the run summary as JSON on stdout")
	parseCmd.Flags().Int64Var(&maxDocBytes, "max-bytes", 50<<20, "skip documents larger than this")
	parseCmd.Flags().Int("workers", 0, "number of parse workers (default: number of CPUs)")
	parseCmd.Flags().Int("checkpoint", 0, "save after this many merged records")

	_ = viper.BindPFlag("parse.workers", parseCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("parse.checkpoint_every", parseCmd.Flags().Lookup("checkpoint"))
}

func runParse(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	targets, err := reparseTargets()
	if err != nil {
		return err
	}

	// Ctrl-C stops dispatch; records merged so far are saved
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "⚙️  Parsing %s with %d workers...\n", a.cfg.Paths.Documents, a.cfg.Parse.Workers)

	p := pipeline.NewPipeline(source.NewLoader(maxDocBytes), a.log)
	runner := pipeline.NewRunner(a.cfg.Paths.Documents, a.store, p, curate.New(a.store, nil, a.log), a.log)
	summary, err := runner.Run(ctx, pipeline.RunOptions{
		Reparse:         targets,
		ReparseCurated:  reparseCurated,
		ReparseAll:      reparseAll,
		Prune:           prune,
		Workers:         a.cfg.Parse.Workers,
		CheckpointEvery: a.cfg.Parse.CheckpointEvery,
	})
	if err != nil {
		return fmt.Errorf("parse failed: %w", err)
	}

	printRunSummary(os.Stderr, summary)
	if summaryJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
	}
	if summary.Cancelled {
		return context.Canceled
	}
	return nil
}

// reparseTargets merges --reparse and --reparse-file into canonical case numbers
func reparseTargets() ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(caseNo string) {
		if !seen[caseNo] {
			seen[caseNo] = true
			out = append(out, caseNo)
		}
	}

	for _, raw := range reparseCases {
		caseNo, err := source.NormalizeCaseNo(raw)
		if err != nil {
			return nil, fmt.Errorf("--reparse: %w", err)
		}
		add(caseNo)
	}
	if reparseFile != "" {
		caseNos, err := worker.ReadCaseNumbers(reparseFile)
		if err != nil {
			return nil, fmt.Errorf("--reparse-file: %w", err)
		}
		if len(caseNos) == 0 {
			return nil, fmt.Errorf("--reparse-file: no case numbers in %s", reparseFile)
		}
		for _, caseNo := range caseNos {
			add(caseNo)
		}
	}
	return out, nil
}

func printRunSummary(w io.Writer, s *model.RunSummary) {
	title := "Parse Complete"
	if s.Cancelled {
		title = "Parse Interrupted"
	}
	banner(w, title)

	fmt.Fprintf(w, "  Documents:    %d\n", s.Documents)
	fmt.Fprintf(w, "  Parsed:       %d\n", s.Queued)
	fmt.Fprintf(w, "  Inserted:     %d\n", s.Inserted)
	fmt.Fprintf(w, "  Updated:      %d\n", s.Updated)
	fmt.Fprintf(w, "  Unchanged:    %d\n", s.Skipped)
	fmt.Fprintf(w, "  Status:       %d complete, %d partial, %d unparseable\n",
		s.ByStatus[model.StatusComplete], s.ByStatus[model.StatusPartial], s.ByStatus[model.StatusUnparseable])
	fmt.Fprintf(w, "  Candidates:   %d new, %d dropped, %d to review\n",
		len(s.Candidates.Added), len(s.Candidates.Removed), s.Candidates.Pending)
	if len(s.Pruned) > 0 {
		fmt.Fprintf(w, "  Pruned:       %s\n", joinLimited(s.Pruned, 10))
	}
	fmt.Fprintf(w, "  Duration:     %v\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintln(w)

	if len(s.Unparseable) > 0 {
		fmt.Fprintf(w, "✗ Unparseable: %s\n", joinLimited(s.Unparseable, 10))
	}
	for _, caseNo := range s.Missing {
		fmt.Fprintf(w, "✗ %s: no document\n", caseNo)
	}
	if verbose && len(s.Unparsed) > 0 {
		caseNos := make([]string, 0, len(s.Unparsed))
		for caseNo := range s.Unparsed {
			caseNos = append(caseNos, caseNo)
		}
		sort.Strings(caseNos)
		for _, caseNo := range caseNos {
			fmt.Fprintf(w, "  %s: missing %v\n", caseNo, s.Unparsed[caseNo])
		}
	}
	if s.Candidates.Pending > 0 {
		fmt.Fprintf(w, "\nNext: crashes curate  (%d candidates to review)\n", s.Candidates.Pending)
	}
	fmt.Fprintln(w)
}
