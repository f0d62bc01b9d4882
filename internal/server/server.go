// Package server exposes proximity queries over the geocoded dataset as JSON.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/license-map/internal/model"
	"github.com/sells-group/license-map/internal/spatial"
)

// LoadFunc returns the dataset to serve. It is called at start and on reload.
type LoadFunc func(ctx context.Context) (*model.Dataset, error)

// Options configures a Server.
type Options struct {
	Load            LoadFunc
	Fallback        model.ReferencePoint
	DefaultRadiusKm float64
	CORSOrigins     []string
	Now             func() time.Time
}

// snapshot is an immutable view of one loaded dataset.
type snapshot struct {
	dataset  *model.Dataset
	index    *spatial.Index
	byID     map[string]int
	loadedAt time.Time
}

// Server answers proximity queries against the latest loaded snapshot.
type Server struct {
	opts Options

	mu   sync.RWMutex
	snap *snapshot
}

// New creates a Server and loads the initial snapshot.
func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.Load == nil {
		return nil, eris.New("server: load func is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Fallback == (model.ReferencePoint{}) {
		opts.Fallback = model.FallbackReference
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	s := &Server{opts: opts}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload replaces the served snapshot. On error the previous snapshot stays.
func (s *Server) Reload(ctx context.Context) error {
	ds, err := s.opts.Load(ctx)
	if err != nil {
		return eris.Wrap(err, "server: load dataset")
	}
	if ds == nil {
		ds = &model.Dataset{}
	}

	byID := make(map[string]int, len(ds.Records))
	for i, r := range ds.Records {
		if _, ok := byID[r.LicenseNumber]; !ok {
			byID[r.LicenseNumber] = i
		}
	}
	snap := &snapshot{
		dataset:  ds,
		index:    spatial.NewIndex(ds.Records),
		byID:     byID,
		loadedAt: s.opts.Now().UTC(),
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	zap.L().Info("server: snapshot loaded",
		zap.Int("records", len(ds.Records)),
		zap.Int("indexed", snap.index.Len()),
	)
	return nil
}

func (s *Server) current() *snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}
