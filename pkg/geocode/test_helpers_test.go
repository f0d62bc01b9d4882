package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// newJSONServer serves body with the given status and counts requests.
func newJSONServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

// stubClient is a Client that returns a canned result and counts calls.
type stubClient struct {
	name   string
	result Result
	calls  int
}

func (s *stubClient) Name() string { return s.name }

func (s *stubClient) Resolve(_ context.Context, _ string) Result {
	s.calls++
	r := s.result
	r.Provider = s.name
	return r
}
