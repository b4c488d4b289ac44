// cmd/admin.go
package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gewnthar/sanctions/config"
	"github.com/gewnthar/sanctions/database"
	"github.com/gewnthar/sanctions/models"
	"github.com/gewnthar/sanctions/services"
)

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Run the snapshot lifecycle swap (New -> Current -> Discard) once",
	Long: "Deletes the Discard snapshot, retires Current to Discard and promotes New " +
		"to Current. Fails and rolls back if no Current snapshot would remain.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer database.CloseDB()

		if err := a.snaps.PromotePipeline(ctx, time.Now()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "snapshot states swapped")
		return nil
	},
}

var purgeForce bool

var purgeCmd = &cobra.Command{
	Use:   "purge-check-failures",
	Short: "Delete every sanctions check failure record",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !purgeForce {
			return fmt.Errorf("refusing to delete check failure records without --force")
		}
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer database.CloseDB()

		n, err := a.failures.DeleteAll(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d sanctions check failure records\n", n)
		return nil
	},
}

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "Send one fallback job heartbeat ping",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Only the heartbeat config is needed; no database connection.
		return services.NewHeartbeat(config.AppConfig.Heartbeat).Ping(cmd.Context())
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List fallback snapshots, their row counts and the last export check",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer database.CloseDB()

		list, err := a.snaps.ListSnapshots(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATE\tROWS\tCHECKSUM\tDOWNLOADED\tIMPORTED")
		for _, s := range list {
			imported := "-"
			if s.ImportTimestamp != nil {
				imported = s.ImportTimestamp.Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n", s.ID, s.ImportState, s.RowCount,
				s.FileChecksum, s.DownloadTimestamp.Format(time.RFC3339), imported)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		src, err := a.sources.Get(ctx, models.ExportSourceCSL)
		if err != nil {
			return err
		}
		if src == nil {
			fmt.Fprintln(out, "\nexport source: never checked")
			return nil
		}
		checked := "-"
		if src.LastCheckedAt != nil {
			checked = src.LastCheckedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(out, "\nexport source: last check %s (%s, %d bytes)\n", checked, src.LastResult, src.SizeBytes)
		if src.LastError != "" {
			fmt.Fprintf(out, "last error: %s\n", src.LastError)
		}
		return nil
	},
}

func init() {
	purgeCmd.Flags().BoolVar(&purgeForce, "force", false, "confirm deletion")
}
