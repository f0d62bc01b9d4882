package fetcher

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/license-map/internal/ratelimit"
	"github.com/sells-group/license-map/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent   string
	Timeout     time.Duration
	MaxRetries  int
	MinInterval time.Duration // minimum spacing between requests; 0 disables
	Backoff     time.Duration // initial retry backoff
	Client      *http.Client  // optional; overrides Timeout
}

// HTTPFetcher implements Fetcher using net/http with retry and rate limiting.
type HTTPFetcher struct {
	client  *http.Client
	opts    HTTPOptions
	limiter *ratelimit.Limiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "license-map/1.0"
	}
	if opts.Backoff == 0 {
		opts.Backoff = time.Second
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &HTTPFetcher{
		client:  client,
		opts:    opts,
		limiter: ratelimit.New(opts.MinInterval),
	}
}

// Download fetches the URL and returns the response body. Network errors,
// 429 and 5xx responses are retried with backoff; other statuses fail at once.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	log := zap.L().With(zap.String("component", "fetcher"), zap.String("url", rawURL))

	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = f.opts.MaxRetries
	cfg.InitialBackoff = f.opts.Backoff
	cfg.MaxBackoff = 30 * time.Second
	cfg.OnRetry = func(attempt int, err error) {
		log.Warn("fetcher: download failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
	}

	resp, err := resilience.DoVal(ctx, cfg, func(ctx context.Context, _ int) (*http.Response, error) {
		if err := f.limiter.Acquire(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: create request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(err, "fetcher: request")
			}
			return nil, resilience.NewTransientError(eris.Wrap(err, "fetcher: request"), 0)
		}

		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
			statusErr := eris.Errorf("fetcher: unexpected status %d from %s", resp.StatusCode, rawURL)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
			}
			return nil, statusErr
		}
		return resp, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: download")
	}
	return resp.Body, nil
}

// DownloadToFile fetches the URL and writes it to path. The file is written
// under a temporary name and renamed into place once complete.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".part-*")
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create file")
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return n, eris.Wrap(err, "fetcher: write file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return n, eris.Wrap(err, "fetcher: rename file")
	}

	zap.L().Debug("fetcher: downloaded", zap.String("url", rawURL), zap.String("path", path), zap.Int64("bytes", n))
	return n, nil
}
