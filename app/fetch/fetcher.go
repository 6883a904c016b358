package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/lysyi3m/research-comb/app/metrics"
)

const (
	DefaultMaxSizeBytes int64 = 2 * 1024 * 1024
	DefaultTimeout            = 30 * time.Second
	DefaultUserAgent          = "ResearchComb/1.0 (Legal Research Tool)"

	maxRedirects = 5
)

var (
	ErrHTTPStatus = errors.New("unexpected HTTP status")
	ErrTooLarge   = errors.New("response too large")
	ErrTimeout    = errors.New("fetch timed out")
)

type Options struct {
	MaxSizeBytes int64
	Timeout      time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxSizeBytes <= 0 {
		o.MaxSizeBytes = DefaultMaxSizeBytes
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

type Response struct {
	Content     string
	Headers     map[string]string // lower-cased keys
	ContentType string
	StatusCode  int
	FinalURL    string
}

// Fetcher retrieves pages from user supplied URLs. Every URL, including each
// redirect hop, goes through Validate before a connection is made.
type Fetcher struct {
	client    *http.Client
	userAgent string
	validate  func(string) Outcome
}

func NewFetcher(userAgent string) *Fetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	f := &Fetcher{
		userAgent: userAgent,
		validate:  Validate,
	}

	transport := &http.Transport{
		Proxy: nil,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
	}

	f.client = &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects (max %d)", maxRedirects)
			}
			if err := f.check(req.URL.String()); err != nil {
				return fmt.Errorf("redirect blocked: %w", err)
			}
			return nil
		},
	}

	return f
}

func (f *Fetcher) check(rawURL string) error {
	outcome := f.validate(rawURL)
	if outcome.Valid {
		return nil
	}
	return &RejectedError{URL: rawURL, Reason: outcome.Reason}
}

// Fetch downloads rawURL and returns its body. It fails instead of returning
// partial content when the URL is rejected, the status is not 2xx, the body
// exceeds opts.MaxSizeBytes or opts.Timeout elapses.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	resp, err := f.fetch(ctx, rawURL, opts.withDefaults())
	metrics.FetchRequests.WithLabelValues(outcomeLabel(err)).Inc()
	if err != nil {
		slog.Debug("Fetch failed", "url", rawURL, "error", err)
		return nil, err
	}
	return resp, nil
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	if err := f.check(rawURL); err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, f.transportError(timeoutCtx, err, opts.Timeout)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d %s", ErrHTTPStatus, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if resp.ContentLength > opts.MaxSizeBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d byte limit", ErrTooLarge, resp.ContentLength, opts.MaxSizeBytes)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, opts.MaxSizeBytes+1))
	if err != nil {
		return nil, f.transportError(timeoutCtx, err, opts.Timeout)
	}

	if int64(len(body)) > opts.MaxSizeBytes {
		return nil, fmt.Errorf("%w: exceeds %d byte limit", ErrTooLarge, opts.MaxSizeBytes)
	}

	headers := make(map[string]string, len(resp.Header))
	for key, values := range resp.Header {
		headers[strings.ToLower(key)] = strings.Join(values, ", ")
	}

	return &Response{
		Content:     string(body),
		Headers:     headers,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
		FinalURL:    resp.Request.URL.String(),
	}, nil
}

func (f *Fetcher) transportError(ctx context.Context, err error, timeout time.Duration) error {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	return fmt.Errorf("failed to fetch URL: %w", err)
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrHTTPStatus):
		return "http_error"
	case errors.Is(err, ErrTooLarge):
		return "too_large"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}
