// Package fetch implements the paginated page fetcher with bounded retry,
// rate-limit tolerance, and continuation-cursor pagination.
package fetch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/refharvest/refharvest/pkg/cache"
	"github.com/refharvest/refharvest/pkg/config"
)

// Prometheus metrics for fetch operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refharvest_requests_total",
		Help: "Total request attempts by outcome",
	}, []string{"outcome"})

	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refharvest_pages_fetched_total",
		Help: "Total pages fetched successfully",
	})

	retryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "refharvest_retry_backoff_seconds",
		Help:    "Backoff durations between retry attempts",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30},
	})

	retriesExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refharvest_retries_exhausted_total",
		Help: "Total page fetches that exhausted their retry budget",
	})
)

// RequestTimeout bounds each individual HTTP call. No timeout governs the
// overall run.
const RequestTimeout = 10 * time.Second

// Payload is one decoded page of the reference-data response.
type Payload struct {
	Results []map[string]any `json:"results"`
	NextURL string           `json:"next_url"`
	Status  string           `json:"status"`
	Count   int              `json:"count"`
}

// Recorder receives request accounting from the fetcher. The collection
// statistics implement it.
type Recorder interface {
	// RequestStarted is called once per FetchPage invocation.
	RequestStarted()

	// RequestSucceeded is called once per successful page.
	RequestSucceeded()

	// RequestFailed is called once per failed attempt, 429s included.
	RequestFailed()

	// PageFetched is called after a page payload has been captured.
	PageFetched()
}

// Fetcher issues one paginated request at a time. It remembers the
// continuation cursor from the most recent successful response and the last
// status/header snapshot for the pacing gate. Owned by the single collection
// loop; no locking.
type Fetcher struct {
	cfg        *config.Config
	httpClient *http.Client
	recorder   Recorder
	pageCache  *cache.Manager
	logger     zerolog.Logger

	nextURL     string
	lastStatus  int
	lastHeaders http.Header

	sleepFn func(time.Duration)
}

// NewFetcher creates a fetcher for the configured endpoint.
func NewFetcher(cfg *config.Config, recorder Recorder, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: RequestTimeout,
		},
		recorder: recorder,
		logger:   logger,
		sleepFn:  time.Sleep,
	}
}

// SetCache enables the optional page cache.
func (f *Fetcher) SetCache(manager *cache.Manager) {
	f.pageCache = manager
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (f *Fetcher) SetHTTPClient(client *http.Client) {
	f.httpClient = client
}

// LastStatus returns the status code of the most recent response, 0 before
// any response has arrived.
func (f *Fetcher) LastStatus() int {
	return f.lastStatus
}

// LastHeaders returns the header snapshot of the most recent response for
// the pacing gate. May be nil before any response has arrived.
func (f *Fetcher) LastHeaders() http.Header {
	return f.lastHeaders
}

// FetchPage fetches one page. On success it captures the continuation cursor
// for the next call and returns the decoded payload. Exhausting the retry
// budget returns nil: the page is treated as empty and the outer loop
// continues. Failures never propagate as errors.
func (f *Fetcher) FetchPage(ctx context.Context) *Payload {
	f.recorder.RequestStarted()

	target := f.target()
	if target == "" {
		f.recorder.RequestFailed()
		return nil
	}

	if payload := f.fromCache(ctx, target); payload != nil {
		return payload
	}

	tries := f.cfg.Retry.Tries
	var lastErr *APIError

	for attempt := 1; attempt <= tries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			// A malformed target will not improve with retries.
			f.recorder.RequestFailed()
			f.logger.Error().Err(err).Msg("Cannot build request")
			return nil
		}
		req.Header.Set("Accept", "application/json")

		resp, err := f.httpClient.Do(req)
		if err != nil {
			lastErr = &APIError{Class: ErrorClassNetwork, Message: "request failed", Err: err}
			f.recorder.RequestFailed()
			requestsTotal.WithLabelValues("network_error").Inc()
			f.logger.Error().
				Err(err).
				Int("attempt", attempt).
				Int("tries", tries).
				Msg("Request attempt failed")
			if attempt < tries {
				f.backoffSleep(attempt)
			}
			continue
		}

		f.lastStatus = resp.StatusCode
		f.lastHeaders = resp.Header.Clone()

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			lastErr = &APIError{StatusCode: resp.StatusCode, Class: ErrorClassRateLimit, Message: resp.Status}
			f.recorder.RequestFailed()
			requestsTotal.WithLabelValues("rate_limited").Inc()
			f.logger.Warn().
				Int("attempt", attempt).
				Int("tries", tries).
				Msg("429 rate limit hit, backing off")
			// Soft failure: back off and keep trying, even on the last
			// attempt.
			f.backoffSleep(attempt)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			class := classifyStatus(resp.StatusCode)
			lastErr = &APIError{StatusCode: resp.StatusCode, Class: class, Message: resp.Status}
			f.recorder.RequestFailed()
			requestsTotal.WithLabelValues(string(class) + "_error").Inc()
			f.logger.Error().
				Int("status", resp.StatusCode).
				Str("error_class", string(class)).
				Int("attempt", attempt).
				Int("tries", tries).
				Msg("Request attempt failed")
			if attempt < tries {
				f.backoffSleep(attempt)
			}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = &APIError{StatusCode: resp.StatusCode, Class: ErrorClassNetwork, Message: "read body", Err: err}
			f.recorder.RequestFailed()
			requestsTotal.WithLabelValues("network_error").Inc()
			f.logger.Error().Err(err).Int("attempt", attempt).Msg("Cannot read response body")
			if attempt < tries {
				f.backoffSleep(attempt)
			}
			continue
		}

		var payload Payload
		if err := json.Unmarshal(body, &payload); err != nil {
			lastErr = &APIError{StatusCode: resp.StatusCode, Class: ErrorClassDecode, Message: "decode body", Err: err}
			f.recorder.RequestFailed()
			requestsTotal.WithLabelValues("decode_error").Inc()
			f.logger.Error().Err(err).Int("attempt", attempt).Msg("Cannot decode response body")
			if attempt < tries {
				f.backoffSleep(attempt)
			}
			continue
		}

		f.recorder.RequestSucceeded()
		f.nextURL = payload.NextURL
		f.recorder.PageFetched()
		requestsTotal.WithLabelValues("success").Inc()
		pagesFetchedTotal.Inc()

		f.storeInCache(ctx, target, body, resp.StatusCode)

		f.logger.Info().
			Int("results", len(payload.Results)).
			Bool("has_next", payload.NextURL != "").
			Int("attempt", attempt).
			Msg("Page fetched")

		return &payload
	}

	retriesExhaustedTotal.Inc()
	f.logger.Warn().
		Int("tries", tries).
		Err(lastErr).
		Msg("Retry attempts exhausted, treating page as empty")

	return nil
}

// target selects the request URL: the continuation cursor verbatim with only
// the credential reattached, or the configured base endpoint with the full
// query parameters. An empty cursor means the base query. Returns "" for an
// unbuildable configuration.
func (f *Fetcher) target() string {
	if f.nextURL != "" {
		u, err := url.Parse(f.nextURL)
		if err != nil {
			f.logger.Error().Err(err).Str("next_url", f.nextURL).Msg("Cannot parse continuation cursor")
			return ""
		}
		q := u.Query()
		q.Set(f.cfg.APIKeyParam, f.cfg.APIKey)
		u.RawQuery = q.Encode()
		return u.String()
	}

	u, err := url.Parse(f.cfg.BaseURL + f.cfg.Endpoint)
	if err != nil {
		f.logger.Error().Err(err).Msg("Cannot parse base endpoint")
		return ""
	}
	q := u.Query()
	for name, value := range f.cfg.Params {
		q.Set(name, value)
	}
	q.Set(f.cfg.APIKeyParam, f.cfg.APIKey)
	u.RawQuery = q.Encode()
	return u.String()
}

// backoffSleep applies the linear backoff rule: attempt n sleeps n times the
// configured backoff unit.
func (f *Fetcher) backoffSleep(attempt int) {
	backoff := time.Duration(f.cfg.Retry.BackoffSeconds * float64(attempt) * float64(time.Second))
	retryBackoffSeconds.Observe(backoff.Seconds())
	f.sleepFn(backoff)
}

// fromCache serves a page from the optional page cache. A hit counts as a
// successful request and a fetched page; the cached payload carries its
// cursor so pagination continues identically.
func (f *Fetcher) fromCache(ctx context.Context, target string) *Payload {
	if f.pageCache == nil {
		return nil
	}

	entry, err := f.pageCache.Get(ctx, cache.NewKey(target, f.cfg.APIKeyParam))
	if err != nil {
		if err != cache.ErrCacheMiss {
			f.logger.Warn().Err(err).Msg("Page cache get error")
		}
		return nil
	}

	var payload Payload
	if err := json.Unmarshal(entry.Data, &payload); err != nil {
		f.logger.Warn().Err(err).Msg("Corrupt page cache entry, refetching")
		return nil
	}

	f.recorder.RequestSucceeded()
	f.nextURL = payload.NextURL
	f.recorder.PageFetched()
	requestsTotal.WithLabelValues("cache_hit").Inc()
	pagesFetchedTotal.Inc()

	f.logger.Debug().
		Int("results", len(payload.Results)).
		Msg("Page served from cache")

	return &payload
}

// storeInCache records a successful page body in the optional page cache.
func (f *Fetcher) storeInCache(ctx context.Context, target string, body []byte, status int) {
	if f.pageCache == nil {
		return
	}

	entry := &cache.Entry{
		Data:       body,
		StatusCode: status,
		CachedAt:   time.Now(),
	}
	if err := f.pageCache.Set(ctx, cache.NewKey(target, f.cfg.APIKeyParam), entry); err != nil {
		f.logger.Warn().Err(err).Msg("Page cache set error")
	}
}
