// cmd/import.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gewnthar/sanctions/database"
	"github.com/gewnthar/sanctions/services"
)

var (
	importThreshold float64
	importFile      string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Download the screening list export and import it as the fallback data",
	Long: "Downloads the consolidated screening list CSV, refuses files not larger " +
		"than the threshold, imports it and promotes it to the Current snapshot. " +
		"With --file a local export is imported instead and no threshold applies.",
	RunE: runImport,
}

func init() {
	importCmd.Flags().Float64Var(&importThreshold, "threshold", 0, "minimum file size in MB (default: export.threshold_mb)")
	importCmd.Flags().StringVar(&importFile, "file", "", "import a local CSV export instead of downloading")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer database.CloseDB()

	var res *services.ImportResult
	if importFile != "" {
		data, err := os.ReadFile(importFile)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", importFile, err)
		}
		res, err = a.job.ImportText(ctx, string(data))
		if err != nil {
			return err
		}
	} else {
		res, err = a.job.Run(ctx, importThreshold)
		if err != nil {
			return err
		}
	}

	if res.Changed {
		fmt.Fprintf(cmd.OutOrStdout(), "imported snapshot %d with %d rows\n", res.Snapshot.ID, res.RowCount)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "export unchanged; snapshot %d stays Current with %d rows\n", res.Snapshot.ID, res.RowCount)
	}
	return nil
}
