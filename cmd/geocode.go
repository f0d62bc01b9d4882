package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/license-map/internal/checkpoint"
	"github.com/sells-group/license-map/internal/pipeline"
)

var (
	geocodeLimit   int
	geocodeRequeue bool
	geocodeJSON    bool
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Resolve missing coordinates, checkpointing after every record",
	Long: "Geocodes records without coordinates in dataset order, one rate-limited request at a time. " +
		"Interrupting (Ctrl-C) keeps every completed record; the next run resumes with the rest.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts := pipeline.Options{
			Limit:          geocodeLimit,
			RequeueNoMatch: geocodeRequeue,
			Progress:       progressBar(os.Stderr),
		}
		env, err := initPipeline(cfg, opts)
		if err != nil {
			return err
		}
		defer env.Close()

		sum, err := runGeocode(ctx, env)
		if sum != nil {
			printSummary(cmd.OutOrStdout(), sum, geocodeJSON)
		}
		if sum != nil && errors.Is(err, context.Canceled) {
			zap.L().Warn("geocoding interrupted; rerun to resume", zap.Int("remaining", sum.Remaining))
			return nil
		}
		return err
	},
}

// runGeocode loads the checkpoint and runs the pipeline over it.
func runGeocode(ctx context.Context, env *pipelineEnv) (*pipeline.Summary, error) {
	ds, err := env.Store.Load(ctx)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil, eris.Wrap(err, "nothing to geocode; run `license-map import` first")
	}
	if err != nil {
		return nil, eris.Wrap(err, "load checkpoint")
	}

	return env.Pipeline.Run(ctx, ds)
}

// progressBar returns a Progress callback drawing to f, or nil when f is not
// a terminal.
func progressBar(f *os.File) func(pipeline.Progress) {
	if f == nil || !isatty.IsTerminal(f.Fd()) {
		return nil
	}
	var bar *progressbar.ProgressBar
	return func(p pipeline.Progress) {
		if bar == nil {
			bar = progressbar.NewOptions(p.Total,
				progressbar.OptionSetDescription("Geocoding"),
				progressbar.OptionSetWriter(f),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = bar.Set(p.Done)
	}
}

func printSummary(w io.Writer, sum *pipeline.Summary, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(sum)
		return
	}
	fmt.Fprintf(w, "run %s: attempted %d of %d pending (%d already resolved)\n",
		sum.RunID, sum.Attempted, sum.Attempted+sum.Remaining, sum.AlreadyResolved)
	fmt.Fprintf(w, "  resolved %d, no match %d, invalid %d, failed %d, remaining %d\n",
		sum.Resolved, sum.NoMatch, sum.Invalid, sum.Failed, sum.Remaining)
	if sum.CacheHits > 0 {
		fmt.Fprintf(w, "  %d answered from records at the same address\n", sum.CacheHits)
	}
	if sum.Interrupted {
		fmt.Fprintln(w, "  interrupted: rerun to resume")
	}
	if sum.Tripped {
		fmt.Fprintln(w, "  stopped early after repeated provider failures")
	}
}

func init() {
	geocodeCmd.Flags().IntVar(&geocodeLimit, "limit", 0, "max records to geocode this run (0 = config/unlimited)")
	geocodeCmd.Flags().BoolVar(&geocodeRequeue, "requeue-no-match", false, "retry records a provider found no match for")
	geocodeCmd.Flags().BoolVar(&geocodeJSON, "json", false, "print the run summary as JSON")
	rootCmd.AddCommand(geocodeCmd)
}
