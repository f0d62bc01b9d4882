package main

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/license-map/internal/checkpoint"
	"github.com/sells-group/license-map/internal/config"
	"github.com/sells-group/license-map/internal/model"
	"github.com/sells-group/license-map/internal/pipeline"
	"github.com/sells-group/license-map/internal/ratelimit"
	"github.com/sells-group/license-map/internal/resilience"
	"github.com/sells-group/license-map/pkg/geocode"
)

// pipelineEnv holds the checkpoint store and the geocoding pipeline used by
// the geocode command.
type pipelineEnv struct {
	Store    checkpoint.Store
	Client   geocode.Client
	Limiter  *ratelimit.Limiter
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline opens the checkpoint, builds the geocoding client and its
// limiter, and assembles the Pipeline. Callers should defer env.Close().
func initPipeline(c *config.Config, opts pipeline.Options) (*pipelineEnv, error) {
	st, err := checkpoint.Open(c.Checkpoint.Path)
	if err != nil {
		return nil, err
	}

	registry := ratelimit.NewRegistry(c.Geocode.Intervals())
	client, err := buildGeocoder(c.Geocode, registry)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	limiter := registry.For(client.Name())

	if opts.AddressSuffix == "" {
		opts.AddressSuffix = c.Dataset.AddressSuffix
	}
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = c.Pipeline.MaxAttempts
	opts.Retry = retry
	opts.BreakerThreshold = c.Pipeline.BreakerThreshold
	opts.RequeueNoMatch = opts.RequeueNoMatch || c.Pipeline.RequeueNoMatch
	if opts.Limit == 0 {
		opts.Limit = c.Pipeline.Limit
	}

	zap.L().Info("geocoder ready",
		zap.String("provider", client.Name()),
		zap.String("fallback", c.Geocode.Fallback),
		zap.Duration("min_interval", limiter.MinInterval()),
		zap.String("checkpoint", c.Checkpoint.Path),
	)

	return &pipelineEnv{
		Store:    st,
		Client:   client,
		Limiter:  limiter,
		Pipeline: pipeline.New(client, limiter, st, opts),
	}, nil
}

// buildGeocoder creates the configured provider client, wrapped in a
// Fallback policy when a secondary provider is configured.
func buildGeocoder(gc config.GeocodeConfig, registry *ratelimit.Registry) (geocode.Client, error) {
	primary, err := newProvider(gc, gc.Provider)
	if err != nil {
		return nil, err
	}
	if gc.Fallback == "" {
		return primary, nil
	}

	secondary, err := newProvider(gc, gc.Fallback)
	if err != nil {
		return nil, err
	}
	return geocode.NewFallback(primary, secondary, registry.For(secondary.Name()).Acquire), nil
}

func newProvider(gc config.GeocodeConfig, name string) (geocode.Client, error) {
	opts := []geocode.Option{
		geocode.WithTimeout(gc.Timeout()),
		geocode.WithUserAgent(gc.UserAgent),
	}
	switch strings.ToLower(name) {
	case "google":
		opts = append(opts, geocode.WithAPIKey(gc.GoogleAPIKey))
	case "nominatim":
		if gc.NominatimURL != "" {
			opts = append(opts, geocode.WithBaseURL(gc.NominatimURL))
		}
	}
	return geocode.New(name, opts...)
}

// loadCheckpoint reads the dataset saved by import. A missing checkpoint is
// reported with a hint instead of ErrNotFound's bare message.
func loadCheckpoint(ctx context.Context, path string) (*model.Dataset, error) {
	st, err := checkpoint.Open(path)
	if err != nil {
		return nil, err
	}
	defer st.Close() //nolint:errcheck

	ds, err := st.Load(ctx)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil, eris.Wrapf(err, "no dataset at %s; run `license-map import` first", path)
	}
	if err != nil {
		return nil, eris.Wrap(err, "load checkpoint")
	}
	return ds, nil
}
