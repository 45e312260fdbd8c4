package pipeline

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/avast/retry-go/v4"
	"github.com/ppiankov/patentscan/internal/metrics"
	"github.com/ppiankov/patentscan/internal/model"
	"github.com/ppiankov/patentscan/internal/util"
	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"
)

// Request is one document fetch as presented to the register
type Request struct {
	URL       string
	UserAgent string
	Headers   map[string]string
	Proxy     string // Empty for direct
}

// FetchResult contains the decoded page
type FetchResult struct {
	HTML     string
	FinalURL string // After redirects
	Attempts uint
}

// Transport retrieves a document page
type Transport interface {
	Fetch(ctx context.Context, req Request) (*FetchResult, error)
}

// RateLimiter throttles requests per host
type RateLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// hostRater is implemented by limiters that accept per-host overrides
type hostRater interface {
	SetHostRate(host string, requestsPerSecond float64, burst int)
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.StatusCode, e.Status)
}

var (
	// ErrRobotsDisallowed is returned when robots.txt forbids the document path
	ErrRobotsDisallowed = errors.New("disallowed by robots.txt")
	// ErrBodyTooLarge is returned for pages longer than http.max_body_bytes
	ErrBodyTooLarge = errors.New("response body exceeds size limit")
)

// Fetcher fetches register pages over HTTP with retries
type Fetcher struct {
	cfg     model.HTTPConfig
	limiter RateLimiter
	robots  *util.RobotsChecker
	logger  zerolog.Logger

	mu      sync.Mutex
	clients map[string]*http.Client // Keyed by proxy URL, "" for direct
}

// FetcherOption customizes a Fetcher
type FetcherOption func(*Fetcher)

// WithRateLimiter consults limiter before every attempt
func WithRateLimiter(limiter RateLimiter) FetcherOption {
	return func(f *Fetcher) { f.limiter = limiter }
}

// WithRobots refuses paths disallowed by robots.txt
func WithRobots(robots *util.RobotsChecker) FetcherOption {
	return func(f *Fetcher) { f.robots = robots }
}

// WithLogger sets the fetcher logger
func WithLogger(logger zerolog.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = logger }
}

// NewFetcher creates a new Fetcher with the given configuration
func NewFetcher(cfg model.HTTPConfig, opts ...FetcherOption) *Fetcher {
	if cfg.Retries == 0 {
		cfg.Retries = 1
	}
	f := &Fetcher{
		cfg:     cfg,
		logger:  zerolog.Nop(),
		clients: make(map[string]*http.Client),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// client returns the HTTP client for an egress proxy, creating it on first use
func (f *Fetcher) client(proxy string) (*http.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[proxy]; ok {
		return c, nil
	}

	proxyFunc, err := util.NewProxyFunc(proxy)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = proxyFunc
	if f.cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for the register's broken chain
	}

	c := &http.Client{
		Timeout:   f.cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return fmt.Errorf("stopped after 3 redirects")
			}
			return nil
		},
	}
	f.clients[proxy] = c
	return c, nil
}

// Fetch retrieves and decodes a page. 429, 5xx and network errors are
// retried with exponential backoff; any other failure returns at once.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*FetchResult, error) {
	httpClient, err := f.client(req.Proxy)
	if err != nil {
		return nil, err
	}

	if f.robots != nil {
		allowed, crawlDelay, err := f.robots.CanFetch(ctx, req.URL, req.UserAgent)
		if err != nil {
			return nil, fmt.Errorf("robots: %w", err)
		}
		if !allowed {
			return nil, ErrRobotsDisallowed
		}
		if rater, ok := f.limiter.(hostRater); ok && crawlDelay > 0 {
			if u, err := url.Parse(req.URL); err == nil {
				rater.SetHostRate(u.Host, 1/crawlDelay.Seconds(), 1)
			}
		}
	}

	var attempts uint
	result, err := retry.DoWithData(
		func() (*FetchResult, error) {
			attempts++
			res, err := f.fetchOnce(ctx, httpClient, req)
			switch {
			case err == nil:
				metrics.FetchAttemptsTotal.WithLabelValues("ok").Inc()
			case isRetryableFetchError(err):
				metrics.FetchAttemptsTotal.WithLabelValues("retry").Inc()
			default:
				metrics.FetchAttemptsTotal.WithLabelValues("error").Inc()
			}
			return res, err
		},
		retry.Context(ctx),
		retry.Attempts(f.cfg.Retries),
		retry.Delay(f.cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isRetryableFetchError),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			f.logger.Warn().
				Err(err).
				Uint("attempt", n+1).
				Str("url", req.URL).
				Str("proxy", util.RedactProxy(req.Proxy)).
				Msg("fetch failed, retrying")
		}),
	)
	if err != nil {
		return nil, err
	}

	result.Attempts = attempts
	return result, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, httpClient *http.Client, r Request) (*FetchResult, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, r.URL); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en;q=0.8")
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if r.UserAgent != "" {
		req.Header.Set("User-Agent", r.UserAgent)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	contentType := resp.Header.Get("Content-Type")

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(raw)) > f.cfg.MaxBodyBytes {
		return nil, retry.Unrecoverable(fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, f.cfg.MaxBodyBytes))
	}

	// The register serves windows-1251; charset sniffs the header and meta tags
	body, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("decode body: %w", err))
	}
	html, err := io.ReadAll(body)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("decode body: %w", err))
	}

	return &FetchResult{
		HTML:     string(html),
		FinalURL: resp.Request.URL.String(),
	}, nil
}

// isRetryableFetchError returns true for throttling, server errors and
// network failures. Cancellation, client errors and errors marked
// unrecoverable are final.
func isRetryableFetchError(err error) bool {
	if err == nil || !retry.IsRecoverable(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}

	return true
}
