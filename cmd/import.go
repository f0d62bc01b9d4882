package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/license-map/internal/checkpoint"
	"github.com/sells-group/license-map/internal/config"
	"github.com/sells-group/license-map/internal/dataset"
	"github.com/sells-group/license-map/internal/model"
)

var (
	importSource      string
	importColumnsPath string
	importMainSheet   string
)

// importResult reports what an import wrote to the checkpoint.
type importResult struct {
	Stats   model.DatasetStats
	Carried int
	Fresh   bool
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load the licence workbook into the checkpoint, keeping coordinates already resolved",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		src, err := sourceFromConfig(cfg)
		if err != nil {
			return err
		}
		if importSource != "" {
			src.Location = importSource
		}
		if importMainSheet != "" {
			src.MainSheet = importMainSheet
		}
		if importColumnsPath != "" {
			cols, err := dataset.LoadColumns(importColumnsPath)
			if err != nil {
				return err
			}
			src.Columns = &cols
		}

		res, err := runImport(ctx, cfg.Checkpoint.Path, src)
		if err != nil {
			return eris.Wrap(err, "import")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "imported %d records (%d with coordinates, %d carried over) into %s\n",
			res.Stats.Total, res.Stats.WithCoordinate, res.Carried, cfg.Checkpoint.Path)
		return nil
	},
}

// sourceFromConfig builds the dataset source described by the dataset section.
func sourceFromConfig(c *config.Config) (dataset.Source, error) {
	src := dataset.Source{
		Location:     c.Dataset.Source,
		MainSheet:    c.Dataset.MainSheet,
		ServiceSheet: c.Dataset.ServiceSheet,
	}
	if c.Dataset.ColumnsFile != "" {
		cols, err := dataset.LoadColumns(c.Dataset.ColumnsFile)
		if err != nil {
			return dataset.Source{}, err
		}
		src.Columns = &cols
	}
	return src, nil
}

// runImport loads src, merges state from any existing checkpoint at path and
// saves the result there.
func runImport(ctx context.Context, path string, src dataset.Source) (*importResult, error) {
	ds, err := dataset.Load(ctx, src)
	if err != nil {
		return nil, err
	}

	st, err := checkpoint.Open(path)
	if err != nil {
		return nil, err
	}
	defer st.Close() //nolint:errcheck

	res := &importResult{}
	previous, err := st.Load(ctx)
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		res.Fresh = true
	case err != nil:
		return nil, eris.Wrap(err, "load previous checkpoint")
	default:
		res.Carried = checkpoint.Merge(ds, previous)
	}

	if err := st.Save(ctx, ds); err != nil {
		return nil, eris.Wrap(err, "save checkpoint")
	}
	res.Stats = ds.Stats()

	zap.L().Info("import complete",
		zap.String("source", src.Location),
		zap.String("checkpoint", path),
		zap.Int("records", res.Stats.Total),
		zap.Int("with_coordinate", res.Stats.WithCoordinate),
		zap.Int("carried", res.Carried),
		zap.Bool("fresh", res.Fresh),
	)
	return res, nil
}

func init() {
	importCmd.Flags().StringVar(&importSource, "source", "", "workbook/CSV path or URL (default from config)")
	importCmd.Flags().StringVar(&importColumnsPath, "columns", "", "YAML column map overriding the default headers")
	importCmd.Flags().StringVar(&importMainSheet, "sheet", "", "main sheet name (default: BC sheet, else first)")
	rootCmd.AddCommand(importCmd)
}
