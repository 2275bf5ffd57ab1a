package transport

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/llehouerou/ripple/internal/config"
	"github.com/llehouerou/ripple/internal/metrics"
)

// Options configures the transports.
type Options struct {
	Timeout     time.Duration // per attempt
	DialTimeout time.Duration // websocket handshake
	MaxRetries  int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	RateLimit   rate.Limit // 0 disables limiting
	Burst       int
	UserAgent   string
	Client      *http.Client
}

const (
	defaultTimeout    = 10 * time.Second
	defaultRetries    = 2
	defaultBackoff    = 200 * time.Millisecond
	defaultMaxBackoff = 2 * time.Second
	defaultBurst      = 4
)

// OptionsFromConfig converts a transport config section.
func OptionsFromConfig(cfg config.TransportConfig) Options {
	return Options{
		Timeout:     cfg.Timeout(),
		DialTimeout: cfg.DialTimeout(),
		MaxRetries:  cfg.MaxRetries,
		Backoff:     cfg.Backoff(),
		RateLimit:   rate.Limit(cfg.RateLimit),
		UserAgent:   cfg.UserAgent,
	}
}

func normalizeOptions(opts Options) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = "ripple/1.0"
	}
	return opts
}

// HTTP fetches ranges with "Range: bytes=start-end" requests.
type HTTP struct {
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	timeout    time.Duration
	userAgent  string
	log        zerolog.Logger
}

var _ Fetcher = (*HTTP)(nil)

// NewHTTP creates the HTTP binding.
func NewHTTP(opts Options, logger zerolog.Logger) *HTTP {
	opts = normalizeOptions(opts)
	client := opts.Client
	if client == nil {
		client = &http.Client{Transport: &http.Transport{
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		}}
	}
	h := &HTTP{
		client:     client,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		maxBackoff: opts.MaxBackoff,
		timeout:    opts.Timeout,
		userAgent:  opts.UserAgent,
		log:        logger,
	}
	if opts.RateLimit > 0 {
		h.limiter = rate.NewLimiter(opts.RateLimit, opts.Burst)
	}
	return h
}

// GetSize asks for the resource length with HEAD, falling back to GET when
// the server does not report a length.
func (h *HTTP) GetSize(ctx context.Context, url string) (SizeInfo, error) {
	var info SizeInfo
	err := h.do(ctx, "size", func(ctx context.Context) (int, error) {
		size, status, err := h.size(ctx, http.MethodHead, url)
		if (err == nil && size < 0) || status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented {
			size, status, err = h.size(ctx, http.MethodGet, url)
		}
		info = SizeInfo{Size: size, Status: status}
		return status, err
	})
	if err != nil {
		return SizeInfo{Status: StatusOf(err)}, fmt.Errorf("get size of %s: %w", url, err)
	}
	if info.Size < 0 {
		return info, fmt.Errorf("get size of %s: no content length", url)
	}
	return info, nil
}

func (h *HTTP) size(ctx context.Context, method, url string) (int64, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return -1, 0, err
	}
	h.applyHeaders(req)
	resp, err := h.client.Do(req)
	if err != nil {
		return -1, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return -1, resp.StatusCode, &StatusError{Status: resp.StatusCode}
	}
	return resp.ContentLength, resp.StatusCode, nil
}

// FetchRange downloads bytes [start, end] of url.
func (h *HTTP) FetchRange(ctx context.Context, url string, start, end, seq int64) (Chunk, error) {
	var data []byte
	err := h.do(ctx, "range", func(ctx context.Context) (int, error) {
		var status int
		var err error
		data, status, err = h.fetch(ctx, url, start, end)
		return status, err
	})
	if err != nil {
		return Chunk{Start: start, End: end, Seq: seq}, fmt.Errorf("fetch %s bytes=%d-%d: %w", url, start, end, err)
	}
	return Chunk{Data: data, Start: start, End: end, Seq: seq}, nil
}

func (h *HTTP) fetch(ctx context.Context, url string, start, end int64) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	h.applyHeaders(req)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	want := end - start + 1
	body := io.Reader(resp.Body)
	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		// Range ignored: skip to start.
		if _, err := io.CopyN(io.Discard, resp.Body, start); err != nil {
			return nil, resp.StatusCode, fmt.Errorf("skip to %d: %w", start, err)
		}
	default:
		return nil, resp.StatusCode, &StatusError{Status: resp.StatusCode}
	}

	data := make([]byte, want)
	n, err := io.ReadFull(body, data)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: got %d of %d bytes: %w", ErrShortRead, n, want, err)
	}
	return data, resp.StatusCode, nil
}

func (h *HTTP) applyHeaders(req *http.Request) {
	req.Header.Set("User-Agent", h.userAgent)
}

// do runs attempt with rate limiting, a per-attempt timeout and bounded
// retries on transport errors and 5xx responses.
func (h *HTTP) do(ctx context.Context, op string, attempt func(context.Context) (int, error)) error {
	maxAttempts := h.maxRetries + 1
	var lastErr error
	for n := 1; n <= maxAttempts; n++ {
		if h.limiter != nil {
			if err := h.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, h.timeout)
		start := time.Now()
		status, err := attempt(attemptCtx)
		cancel()
		metrics.ObserveFetch("http", op, status, err, time.Since(start))

		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if n == maxAttempts || !shouldRetry(err) {
			break
		}

		wait := h.backoffFor(n - 1)
		metrics.IncRetry("http")
		h.log.Debug().Err(err).Int("attempt", n).Dur("wait", wait).Str("op", op).Msg("retrying")
		if err := sleepWithContext(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

func shouldRetry(err error) bool {
	status := StatusOf(err)
	return status == 0 || status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
}

func (h *HTTP) backoffFor(attempt int) time.Duration {
	wait := min(h.backoff*time.Duration(1<<attempt), h.maxBackoff)
	jitter := time.Duration(rand.Int64N(int64(wait/5 + 1)))
	return wait + jitter
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
