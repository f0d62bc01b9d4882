package pipeline

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/license-map/internal/model"
	"github.com/sells-group/license-map/pkg/geocode"
)

// --- Geocoder Mock ---

type mockGeocoder struct {
	mock.Mock
}

func (m *mockGeocoder) Name() string { return "mock" }

func (m *mockGeocoder) Resolve(ctx context.Context, address string) geocode.Result {
	args := m.Called(ctx, address)
	return args.Get(0).(geocode.Result)
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Load(ctx context.Context) (*model.Dataset, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Dataset), args.Error(1)
}

func (m *mockStore) Save(ctx context.Context, ds *model.Dataset) error {
	args := m.Called(ctx, ds)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

// --- In-memory store ---

// memStore keeps deep copies of every saved snapshot, like a file on disk.
type memStore struct {
	mu        sync.Mutex
	snapshots []*model.Dataset
	failAfter int // fail saves once this many have succeeded; 0 never fails
	err       error
}

func (s *memStore) Load(_ context.Context) (*model.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snapshots) == 0 {
		return nil, nil
	}
	return cloneDataset(s.snapshots[len(s.snapshots)-1]), nil
}

func (s *memStore) Save(_ context.Context, ds *model.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && len(s.snapshots) >= s.failAfter {
		return s.err
	}
	s.snapshots = append(s.snapshots, cloneDataset(ds))
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

func cloneDataset(ds *model.Dataset) *model.Dataset {
	out := &model.Dataset{Meta: ds.Meta, Records: make([]*model.Record, len(ds.Records))}
	for i, r := range ds.Records {
		c := r.Clone()
		out.Records[i] = &c
	}
	return out
}

// --- Scripted geocoder ---

// scriptGeocoder answers by address and records every request it receives.
type scriptGeocoder struct {
	mu       sync.Mutex
	answers  map[string]geocode.Result
	fallback geocode.Result
	requests []string
	onCall   func(address string)
}

func (g *scriptGeocoder) Name() string { return "script" }

func (g *scriptGeocoder) Resolve(_ context.Context, address string) geocode.Result {
	g.mu.Lock()
	g.requests = append(g.requests, address)
	res, ok := g.answers[address]
	if !ok {
		res = g.fallback
	}
	hook := g.onCall
	g.mu.Unlock()

	if hook != nil {
		hook(address)
	}
	res.Provider = "script"
	return res
}

func (g *scriptGeocoder) calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.requests...)
}

// --- Limiter ---

type countingLimiter struct {
	mu    sync.Mutex
	count int
	err   error
}

func (l *countingLimiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.count++
	return nil
}

func (l *countingLimiter) acquired() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}
