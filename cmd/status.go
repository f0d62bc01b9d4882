package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/license-map/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show how much of the checkpointed dataset has coordinates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ds, err := loadCheckpoint(cmd.Context(), cfg.Checkpoint.Path)
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), cfg.Checkpoint.Path, ds)
		return nil
	},
}

func printStatus(w io.Writer, path string, ds *model.Dataset) {
	s := ds.Stats()
	fmt.Fprintf(w, "checkpoint: %s\n", path)
	if ds.Meta.Source != "" {
		fmt.Fprintf(w, "source:     %s\n", ds.Meta.Source)
	}
	if !ds.Meta.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "updated:    %s\n", ds.Meta.UpdatedAt.Format(time.RFC3339))
	}
	if ds.Meta.RunID != "" {
		fmt.Fprintf(w, "last run:   %s\n", ds.Meta.RunID)
	}
	fmt.Fprintf(w, "records:    %d\n", s.Total)
	fmt.Fprintf(w, "  located   %d (%.1f%%)\n", s.WithCoordinate, percent(s.WithCoordinate, s.Total))
	fmt.Fprintf(w, "  pending   %d\n", s.Pending)
	fmt.Fprintf(w, "  failed    %d\n", s.Failed)
	fmt.Fprintf(w, "  no match  %d\n", s.NoMatch)
	fmt.Fprintf(w, "  invalid   %d\n", s.InvalidAddress)
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
