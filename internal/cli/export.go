package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lnkbike/crashes/internal/export"
	"github.com/lnkbike/crashes/internal/store"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the dataset as a workbook or SQLite database",
	Long: `Export writes reports, curation and locations as tables for
spreadsheets, charts and SQL queries. The JSON files stay the source of
truth; exports are rebuilt on every call.

Example:
  crashes export xlsx
  crashes export sqlite out/crashes.db`,
}

var exportXLSXCmd = &cobra.Command{
	Use:   "xlsx [path]",
	Short: "Write an Excel workbook (default: <data dir>/crashes.xlsx)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(args, "crashes.xlsx", export.WriteWorkbook)
	},
}

var exportSQLiteCmd = &cobra.Command{
	Use:   "sqlite [path]",
	Short: "Write a SQLite database (default: <data dir>/crashes.db)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(args, "crashes.db", export.WriteSQLite)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportXLSXCmd, exportSQLiteCmd)
}

type exportFunc func(ctx context.Context, path string, s *store.Store, log logrus.FieldLogger) error

func runExport(args []string, defaultName string, write exportFunc) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	path := filepath.Join(a.cfg.Paths.Data, defaultName)
	if len(args) == 1 {
		path = args[0]
	}
	if err := write(context.Background(), path, a.store, a.log); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Exported %d reports to %s\n", a.store.Len(), path)
	return nil
}
