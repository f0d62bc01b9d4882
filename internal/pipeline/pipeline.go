// Package pipeline geocodes a dataset record by record, checkpointing after
// every outcome so an interrupted run resumes without repeating work.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/license-map/internal/checkpoint"
	"github.com/sells-group/license-map/internal/model"
	"github.com/sells-group/license-map/internal/resilience"
	"github.com/sells-group/license-map/pkg/geocode"
)

// ErrCheckpointWrite marks a failed checkpoint save. It is fatal to the run:
// continuing would let in-memory progress drift from what a resume sees.
var ErrCheckpointWrite = eris.New("pipeline: checkpoint write failed")

// checkpointError carries both ErrCheckpointWrite and the store's error.
type checkpointError struct {
	err error
}

func (e *checkpointError) Error() string {
	return ErrCheckpointWrite.Error() + ": " + e.err.Error()
}

func (e *checkpointError) Unwrap() []error { return []error{ErrCheckpointWrite, e.err} }

// Limiter gates outbound provider requests.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Progress is reported after each record's outcome has been checkpointed.
type Progress struct {
	Done   int
	Total  int
	Record *model.Record
	Status geocode.Status
}

// Options tune a Pipeline. The zero value geocodes every pending record once
// with no circuit breaker.
type Options struct {
	// AddressSuffix is appended to street and city. Empty means model.DefaultAddressSuffix.
	AddressSuffix string

	// Retry controls in-run retries of transient failures. MaxAttempts <= 1
	// leaves failed records for the next run.
	Retry resilience.RetryConfig

	// BreakerThreshold stops the run after this many consecutive transient
	// failures. Zero disables the breaker.
	BreakerThreshold int

	// RequeueNoMatch sends records a provider previously found no match for
	// back to the provider.
	RequeueNoMatch bool

	// Limit caps how many records are geocoded in one run. Zero means no cap.
	Limit int

	Progress func(Progress)

	// Now stamps record and dataset updates. Defaults to time.Now.
	Now func() time.Time
}

// Summary reports what a run did.
type Summary struct {
	RunID           string        `json:"run_id"`
	Total           int           `json:"total"`
	AlreadyResolved int           `json:"already_resolved"`
	Attempted       int           `json:"attempted"`
	Resolved        int           `json:"resolved"`
	NoMatch         int           `json:"no_match"`
	Invalid         int           `json:"invalid"`
	Failed          int           `json:"failed"`
	CacheHits       int           `json:"cache_hits"`
	Remaining       int           `json:"remaining"`
	Interrupted     bool          `json:"interrupted"`
	Tripped         bool          `json:"tripped"`
	Duration        time.Duration `json:"duration"`
}

// Pipeline runs the geocode-and-checkpoint loop. It is single-threaded: one
// request is in flight at a time and it is the checkpoint's only writer.
type Pipeline struct {
	client  geocode.Client
	limiter Limiter
	store   checkpoint.Store
	opts    Options
}

// New creates a Pipeline.
func New(client geocode.Client, limiter Limiter, store checkpoint.Store, opts Options) *Pipeline {
	if opts.AddressSuffix == "" {
		opts.AddressSuffix = model.DefaultAddressSuffix
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry.MaxAttempts = 1
	}
	return &Pipeline{
		client:  client,
		limiter: limiter,
		store:   store,
		opts:    opts,
	}
}

// NeedsGeocode reports whether r should be sent to a provider: it has no
// coordinate and its last outcome was not a definitive miss.
func NeedsGeocode(r *model.Record, requeueNoMatch bool) bool {
	if r.HasCoordinate() {
		return false
	}
	switch r.Geocode.Status {
	case model.GeocodeStatusInvalidAddress:
		return false
	case model.GeocodeStatusNoMatch:
		return requeueNoMatch
	default:
		return true
	}
}

// Run geocodes every pending record of ds in order, saving ds to the store
// after each one. A record whose address matches a resolved record, or one
// settled earlier in the run, takes that outcome without a request. Each run
// starts with a closed breaker. Transient per-record failures do not stop
// the run. It returns early with a wrapped ErrCheckpointWrite if a save
// fails, or with the context's error when ctx is cancelled; the summary is
// valid in both cases.
func (p *Pipeline) Run(ctx context.Context, ds *model.Dataset) (*Summary, error) {
	start := time.Now()
	sum := &Summary{RunID: uuid.NewString(), Total: len(ds.Records)}
	log := zap.L().With(
		zap.String("component", "pipeline"),
		zap.String("run_id", sum.RunID),
		zap.String("provider", p.client.Name()),
	)

	breaker := resilience.NewBreaker(p.opts.BreakerThreshold, 0)
	cache := geocode.NewCache()

	var pending []*model.Record
	for _, r := range ds.Records {
		if r.HasCoordinate() {
			sum.AlreadyResolved++
			cache.Seed(model.BuildRequest(r, p.opts.AddressSuffix), r)
		}
		if NeedsGeocode(r, p.opts.RequeueNoMatch) {
			pending = append(pending, r)
		}
	}
	batch := pending
	if p.opts.Limit > 0 && len(batch) > p.opts.Limit {
		batch = batch[:p.opts.Limit]
	}
	log.Info("pipeline: starting",
		zap.Int("total", sum.Total),
		zap.Int("already_resolved", sum.AlreadyResolved),
		zap.Int("pending", len(pending)),
		zap.Int("batch", len(batch)),
		zap.Int("cached_addresses", cache.Len()),
	)

	var runErr error
	done := 0
	for _, r := range batch {
		if err := ctx.Err(); err != nil {
			sum.Interrupted = true
			runErr = eris.Wrap(err, "pipeline: interrupted")
			break
		}
		if err := breaker.Allow(); err != nil {
			sum.Tripped = true
			log.Warn("pipeline: provider failing, leaving remaining records for the next run",
				zap.Int("consecutive_failures", p.opts.BreakerThreshold))
			break
		}

		res, attempts, cached, err := p.resolve(ctx, cache, r)
		if err != nil || ctx.Err() != nil {
			// A result that raced with cancellation is discarded so the
			// checkpoint only reflects fully completed records.
			sum.Interrupted = true
			if err == nil {
				err = ctx.Err()
			}
			runErr = eris.Wrap(err, "pipeline: interrupted")
			break
		}

		p.apply(r, res, attempts)
		sum.Attempted++
		p.count(sum, res.Status)
		if cached {
			sum.CacheHits++
		} else {
			breaker.Record(res.Status == geocode.StatusTransient)
		}

		ds.Meta.RunID = sum.RunID
		ds.Meta.UpdatedAt = p.opts.Now().UTC()
		if err := p.store.Save(context.WithoutCancel(ctx), ds); err != nil {
			log.Error("pipeline: checkpoint save failed", zap.String("license", r.LicenseNumber), zap.Error(err))
			sum.Remaining = len(pending) - sum.Attempted
			sum.Duration = time.Since(start)
			return sum, &checkpointError{err: err}
		}

		done++
		logRecord(log, r, res, attempts)
		if p.opts.Progress != nil {
			p.opts.Progress(Progress{Done: done, Total: len(batch), Record: r, Status: res.Status})
		}
	}

	sum.Remaining = len(pending) - sum.Attempted
	sum.Duration = time.Since(start)
	log.Info("pipeline: finished",
		zap.Int("attempted", sum.Attempted),
		zap.Int("resolved", sum.Resolved),
		zap.Int("no_match", sum.NoMatch),
		zap.Int("invalid", sum.Invalid),
		zap.Int("failed", sum.Failed),
		zap.Int("cache_hits", sum.CacheHits),
		zap.Int("remaining", sum.Remaining),
		zap.Bool("interrupted", sum.Interrupted),
		zap.Bool("tripped", sum.Tripped),
		zap.Duration("duration", sum.Duration),
	)
	return sum, runErr
}

// resolve geocodes one record. Records without a usable address are settled
// locally without a request, and cached addresses are answered from cache.
// The error is non-nil only when waiting for the limiter was cut short.
func (p *Pipeline) resolve(ctx context.Context, cache *geocode.Cache, r *model.Record) (geocode.Result, int, bool, error) {
	address := model.BuildRequest(r, p.opts.AddressSuffix)
	if address == "" {
		return geocode.Result{
			Status:   geocode.StatusInvalidAddress,
			Provider: p.client.Name(),
			Err:      geocode.ErrInvalidAddress,
		}, 0, false, nil
	}
	if res, ok := cache.Get(address); ok {
		return res, 0, true, nil
	}

	cfg := p.opts.Retry
	cfg.OnRetry = resilience.RetryLogger(p.client.Name(), r.LicenseNumber)

	var attempts int
	res, err := resilience.DoVal(ctx, cfg, func(ctx context.Context, attempt int) (geocode.Result, error) {
		if err := p.limiter.Acquire(ctx); err != nil {
			return geocode.Result{Status: geocode.StatusTransient, Provider: p.client.Name(), Err: err}, err
		}
		attempts = attempt
		res := p.client.Resolve(ctx, address)
		if res.Status == geocode.StatusTransient {
			return res, res.Err
		}
		return res, nil
	})
	if attempts == 0 {
		// The limiter refused before any request was made.
		return geocode.Result{}, 0, false, err
	}
	cache.Put(address, res)
	return res, attempts, false, nil
}

// apply writes the outcome onto the record. The coordinate is only ever
// set or cleared as a whole.
func (p *Pipeline) apply(r *model.Record, res geocode.Result, attempts int) {
	now := p.opts.Now().UTC()
	r.Geocode.Attempts += attempts

	var lastErr string
	if res.Err != nil {
		lastErr = res.Err.Error()
	}

	switch res.Status {
	case geocode.StatusResolved:
		r.SetCoordinate(res.Coordinate, res.Provider, res.Quality, now)
	case geocode.StatusNoMatch:
		r.ClearCoordinate(model.GeocodeStatusNoMatch, res.Provider, lastErr, now)
	case geocode.StatusInvalidAddress:
		r.ClearCoordinate(model.GeocodeStatusInvalidAddress, res.Provider, lastErr, now)
	default:
		r.ClearCoordinate(model.GeocodeStatusFailed, res.Provider, lastErr, now)
	}
}

func (p *Pipeline) count(sum *Summary, status geocode.Status) {
	switch status {
	case geocode.StatusResolved:
		sum.Resolved++
	case geocode.StatusNoMatch:
		sum.NoMatch++
	case geocode.StatusInvalidAddress:
		sum.Invalid++
	default:
		sum.Failed++
	}
}

func logRecord(log *zap.Logger, r *model.Record, res geocode.Result, attempts int) {
	fields := []zap.Field{
		zap.String("license", r.LicenseNumber),
		zap.String("status", res.Status.String()),
		zap.Int("attempts", attempts),
	}
	switch res.Status {
	case geocode.StatusResolved:
		log.Debug("pipeline: record geocoded", append(fields,
			zap.Float64("lat", res.Coordinate.Lat),
			zap.Float64("lon", res.Coordinate.Lon),
			zap.String("quality", res.Quality),
		)...)
	case geocode.StatusTransient:
		log.Warn("pipeline: geocode failed, will retry next run", append(fields, zap.Error(res.Err))...)
	default:
		log.Info("pipeline: no coordinate for record", append(fields, zap.String("name", r.Name))...)
	}
}
