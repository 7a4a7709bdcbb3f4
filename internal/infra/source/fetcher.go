package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

const defaultTimeout = 15 * time.Second

// Page is a fetched document decoded to UTF-8.
type Page struct {
	Content string
	URL     string
}

// FetchError is returned once every attempt for a URL has failed.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// errStatus is a non-2xx response.
type errStatus struct{ code int }

func (e errStatus) Error() string { return fmt.Sprintf("unexpected status %d", e.code) }

// AttemptRecorder receives the outcome of every HTTP attempt ("ok", "error").
type AttemptRecorder interface {
	ObserveFetchAttempt(outcome string)
}

// Options configures a Fetcher.
type Options struct {
	Timeout time.Duration
	// RateLimit caps requests per second; zero disables limiting.
	RateLimit float64
	Retry     RetryPolicy
	Client    *http.Client
	Recorder  AttemptRecorder
}

// Fetcher downloads pages relative to the timetable site's base URL.
type Fetcher struct {
	base     *url.URL
	client   *http.Client
	policy   RetryPolicy
	limiter  *rate.Limiter
	recorder AttemptRecorder
	logger   *logrus.Entry
}

// NewFetcher validates baseURL and builds a fetcher.
func NewFetcher(baseURL string, opts Options, logger *logrus.Entry) (*Fetcher, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid source base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid source base URL %q: scheme and host are required", baseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Fetcher{
		base:     base,
		client:   client,
		policy:   opts.Retry.normalized(),
		limiter:  limiter,
		recorder: opts.Recorder,
		logger:   logger,
	}, nil
}

// Resolve returns the absolute URL for a path relative to the base URL.
func (f *Fetcher) Resolve(relativePath string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(relativePath))
	if err != nil {
		return "", fmt.Errorf("invalid page path %q: %w", relativePath, err)
	}
	return f.base.ResolveReference(ref).String(), nil
}

// Fetch GETs relativePath, retrying per the configured policy. An empty body
// is a valid result.
func (f *Fetcher) Fetch(ctx context.Context, relativePath string) (*Page, error) {
	target, err := f.Resolve(relativePath)
	if err != nil {
		return nil, err
	}

	var lastErr error
	attempt := 0
	for attempt < f.policy.MaxAttempts {
		attempt++
		content, err := f.fetchOnce(ctx, target)
		if err == nil {
			f.observe("ok")
			return &Page{Content: content, URL: target}, nil
		}
		f.observe("error")
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if attempt < f.policy.MaxAttempts {
			wait := f.policy.Backoff(attempt)
			f.logger.WithFields(logrus.Fields{
				"url":     target,
				"attempt": attempt,
				"wait":    wait.String(),
			}).WithError(err).Warn("Fetch attempt failed, retrying")
			if err := f.policy.Sleep(ctx, wait); err != nil {
				lastErr = errors.Join(lastErr, err)
				break
			}
		}
	}

	return nil, &FetchError{URL: target, Attempts: attempt, Err: lastErr}
}

func (f *Fetcher) fetchOnce(ctx context.Context, target string) (string, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", errStatus{code: resp.StatusCode}
	}

	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("decode body: %w", err)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

func (f *Fetcher) observe(outcome string) {
	if f.recorder != nil {
		f.recorder.ObserveFetchAttempt(outcome)
	}
}
