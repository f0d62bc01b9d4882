// Package geocode resolves postal addresses to coordinates through a single
// external provider per call (Nominatim, Google, or the US Census geocoder).
// Every outcome, including network failures, is reported as a typed Result
// rather than an error so a batch can keep going.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/license-map/internal/model"
	"github.com/sells-group/license-map/internal/resilience"
)

// Client resolves one address with exactly one outbound request.
type Client interface {
	// Name identifies the provider (used for rate limiting and provenance).
	Name() string

	// Resolve geocodes a single address. It never returns an error; failures
	// are reported through Result.Status.
	Resolve(ctx context.Context, address string) Result
}

// Status classifies a geocoding outcome.
type Status int

const (
	// StatusResolved means the provider returned a coordinate.
	StatusResolved Status = iota
	// StatusNoMatch means the provider answered definitively with no result.
	StatusNoMatch
	// StatusTransient means the request failed and is worth retrying later.
	StatusTransient
	// StatusInvalidAddress means the address was unusable; no request was made.
	StatusInvalidAddress
)

func (s Status) String() string {
	switch s {
	case StatusResolved:
		return "resolved"
	case StatusNoMatch:
		return "no_match"
	case StatusTransient:
		return "transient"
	case StatusInvalidAddress:
		return "invalid_address"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidAddress is the cause attached to StatusInvalidAddress results.
	ErrInvalidAddress = eris.New("geocode: invalid address")
	// ErrNoMatch is the cause attached to StatusNoMatch results.
	ErrNoMatch = eris.New("geocode: no match")
)

// Result is the normalized outcome of a single Resolve call.
type Result struct {
	Status      Status
	Coordinate  model.Coordinate // meaningful only when Status == StatusResolved
	Provider    string
	Quality     string // "rooftop", "range", "centroid", "approximate"
	DisplayName string
	Err         error // cause when Status != StatusResolved
}

// Resolved reports whether the result carries a coordinate.
func (r Result) Resolved() bool { return r.Status == StatusResolved }

// Retriable reports whether a later run should try this address again.
func (r Result) Retriable() bool { return r.Status == StatusTransient }

func resolved(provider string, lat, lon float64, quality, display string) Result {
	if !validCoordinate(lat, lon) {
		return transient(provider, eris.Errorf("geocode: %s returned out-of-range coordinate (%f, %f)", provider, lat, lon), 0)
	}
	return Result{
		Status:      StatusResolved,
		Coordinate:  model.Coordinate{Lat: lat, Lon: lon},
		Provider:    provider,
		Quality:     quality,
		DisplayName: display,
	}
}

func noMatch(provider string) Result {
	return Result{Status: StatusNoMatch, Provider: provider, Err: ErrNoMatch}
}

func invalidAddress(provider string) Result {
	return Result{Status: StatusInvalidAddress, Provider: provider, Err: ErrInvalidAddress}
}

func transient(provider string, err error, statusCode int) Result {
	return Result{
		Status:   StatusTransient,
		Provider: provider,
		Err:      resilience.NewTransientError(err, statusCode),
	}
}

func validCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// DefaultTimeout bounds each provider request.
const DefaultTimeout = 10 * time.Second

// DefaultUserAgent identifies this application to providers that require it.
const DefaultUserAgent = "license-map/1.0"

// Option configures a provider client.
type Option func(*httpProvider)

// WithHTTPClient sets the HTTP client used for provider requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *httpProvider) {
		p.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(p *httpProvider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithBaseURL overrides the provider endpoint (self-hosted Nominatim, tests).
func WithBaseURL(u string) Option {
	return func(p *httpProvider) {
		if u != "" {
			p.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(p *httpProvider) {
		if ua != "" {
			p.userAgent = ua
		}
	}
}

// WithAPIKey sets the provider API key.
func WithAPIKey(key string) Option {
	return func(p *httpProvider) {
		p.apiKey = key
	}
}

// httpProvider holds what every HTTP-backed provider shares.
type httpProvider struct {
	name       string
	baseURL    string
	apiKey     string
	userAgent  string
	timeout    time.Duration
	httpClient *http.Client
}

func newHTTPProvider(name, baseURL string, opts []Option) httpProvider {
	p := httpProvider{
		name:      name,
		baseURL:   baseURL,
		userAgent: DefaultUserAgent,
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&p)
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{Timeout: p.timeout}
	}
	return p
}

// errHTTPStatus is returned by get for any non-200 response.
type errHTTPStatus struct {
	code int
}

func (e *errHTTPStatus) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

// maxBodyBytes caps a provider response. Geocoding answers are a few KiB.
const maxBodyBytes = 1 << 20

// ErrBodyTooLarge reports a provider response over maxBodyBytes. It is
// reported as a transient failure.
var ErrBodyTooLarge = eris.New("response body too large")

// get performs one GET request and returns the body of a 200 response.
func (p *httpProvider) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: %s build request", p.name)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: %s request", p.name)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &errHTTPStatus{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: %s read body", p.name)
	}
	if len(body) > maxBodyBytes {
		return nil, eris.Wrapf(ErrBodyTooLarge, "geocode: %s", p.name)
	}
	return body, nil
}

// failure converts a get error into a Result. notFoundIsNoMatch lets
// providers that use 404 for "nothing found" report a definitive miss.
func (p *httpProvider) failure(err error, notFoundIsNoMatch bool) Result {
	var se *errHTTPStatus
	if errors.As(err, &se) {
		if se.code == http.StatusNotFound && notFoundIsNoMatch {
			return noMatch(p.name)
		}
		return transient(p.name, eris.Errorf("geocode: %s returned status %d", p.name, se.code), se.code)
	}
	return transient(p.name, err, 0)
}
