package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/license-map/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "license-map",
	Short: "Geocode BC licensed establishments and answer proximity queries",
	Long: "Imports the BC licensed establishments workbook, resolves missing coordinates through a " +
		"rate-limited geocoding provider with a resumable checkpoint, and finds establishments near a point.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		if cmd.Flags().Changed("checkpoint") {
			cfg.Checkpoint.Path = checkpointPath
		}

		return cfg.Validate()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

var checkpointPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&checkpointPath, "checkpoint", "", "checkpoint file (.json, or .db/.sqlite for SQLite; default from config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
