// Package httpclient implements the shared, per-host rate-limited HTTP
// client (SPEC_FULL §4.2): one process-wide instance, passed explicitly to
// every adapter rather than reached for as a package-level singleton (see
// the design note in spec §9 on process-wide state).
package httpclient

import (
	"context"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	apperrors "github.com/sunwoo0067/wholesale-ingest/pkg/errors"
	"github.com/sunwoo0067/wholesale-ingest/pkg/logger"
	"github.com/sunwoo0067/wholesale-ingest/pkg/metrics"
)

// Config configures client-wide defaults; per-adapter RPS overrides the
// default for that adapter's host (spec §4.2).
type Config struct {
	DefaultRPS         float64
	MaxRetries         int
	BackoffCeiling     time.Duration
	ConnectTimeout     time.Duration
	TotalTimeout       time.Duration
	MaxInFlightPerHost int
}

func (c Config) withDefaults() Config {
	if c.DefaultRPS <= 0 {
		c.DefaultRPS = 5
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffCeiling <= 0 {
		c.BackoffCeiling = 30 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.TotalTimeout <= 0 {
		c.TotalTimeout = 30 * time.Second
	}
	if c.MaxInFlightPerHost <= 0 {
		c.MaxInFlightPerHost = 8
	}
	return c
}

// hostState is the per-host contention point named in SPEC_FULL §5: the
// token bucket, the in-flight semaphore, and any externally-signalled pause.
type hostState struct {
	limiter     *rate.Limiter
	inFlight    *semaphore.Weighted
	pausedUntil pauseGate
}

// pauseGate holds a mutex-guarded unix-nano deadline set on 429/Retry-After.
type pauseGate struct {
	mu    sync.Mutex
	value int64
}

func (a *pauseGate) set(t time.Time) {
	a.mu.Lock()
	a.value = t.UnixNano()
	a.mu.Unlock()
}

func (a *pauseGate) get() time.Time {
	a.mu.Lock()
	v := a.value
	a.mu.Unlock()
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v)
}

// Client is the shared, concurrency-safe rate-limited HTTP client. One
// instance is created at process startup and passed to every adapter.
type Client struct {
	cfg    Config
	hosts  sync.Map // host -> *hostState
	http   *http.Client
	log    *logger.Logger
}

// New builds the process-wide client. transport is typically
// http.DefaultTransport with MaxConnsPerHost tuned; callers may pass nil to
// accept the package default.
func New(cfg Config, transport http.RoundTripper) *Client {
	cfg = cfg.withDefaults()
	if transport == nil {
		transport = &http.Transport{
			MaxConnsPerHost:     cfg.MaxInFlightPerHost * 2,
			MaxIdleConnsPerHost: cfg.MaxInFlightPerHost,
		}
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.TotalTimeout,
		},
		log: logger.Get().WithField("component", "httpclient"),
	}
}

func (c *Client) stateFor(host string, rps float64) *hostState {
	if v, ok := c.hosts.Load(host); ok {
		return v.(*hostState)
	}
	if rps <= 0 {
		rps = c.cfg.DefaultRPS
	}
	hs := &hostState{
		limiter:  rate.NewLimiter(rate.Limit(rps), int(math.Ceil(rps*2))),
		inFlight: semaphore.NewWeighted(int64(c.cfg.MaxInFlightPerHost)),
	}
	actual, _ := c.hosts.LoadOrStore(host, hs)
	return actual.(*hostState)
}

// Override replaces the token bucket for host with one at the given rps,
// used when a supplier's rate-limit headers override the default (spec
// §4.1: "Rate-limit headers, if present, override the default token bucket
// for this host for the duration indicated").
func (c *Client) Override(host string, rps float64, duration time.Duration) {
	hs := c.stateFor(host, rps)
	hs.limiter.SetLimit(rate.Limit(rps))
	hs.limiter.SetBurst(int(math.Ceil(rps * 2)))
	if duration > 0 {
		go func() {
			time.Sleep(duration)
			hs.limiter.SetLimit(rate.Limit(c.cfg.DefaultRPS))
			hs.limiter.SetBurst(int(math.Ceil(c.cfg.DefaultRPS * 2)))
		}()
	}
}

// Do executes req honoring the per-host token bucket, in-flight bound,
// retry/backoff policy, and rate-limit pause (spec §4.2). idempotent
// should be true for GET/HEAD and any supplier call documented safe to
// retry; non-idempotent requests are attempted once.
func (c *Client) Do(ctx context.Context, req *http.Request, rps float64, idempotent bool) (*http.Response, error) {
	host := req.URL.Host
	hs := c.stateFor(host, rps)

	maxAttempts := 1
	if idempotent {
		maxAttempts = c.cfg.MaxRetries + 1
	}

	var lastResp *http.Response
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if until := hs.pausedUntil.get(); !until.IsZero() {
			if wait := time.Until(until); wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
		}

		if err := hs.inFlight.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		if err := hs.limiter.Wait(ctx); err != nil {
			hs.inFlight.Release(1)
			return nil, err
		}

		resp, err := c.http.Do(req.Clone(ctx))
		hs.inFlight.Release(1)

		if err == nil && resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := parseRetryAfter(resp)
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			hs.pausedUntil.set(time.Now().Add(retryAfter))
			metrics.RecordRateLimitPause(host)
			lastErr = apperrors.RateLimited(host, retryAfter)
			continue
		}

		if err != nil || (resp.StatusCode >= 500 && resp.StatusCode < 600) {
			lastResp = resp
			lastErr = classifyTransient(host, err, resp)
			if !idempotent || attempt == maxAttempts-1 {
				break
			}
			metrics.RecordHTTPRetry(host)
			if resp != nil {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
			c.sleepBackoff(ctx, attempt)
			continue
		}

		if err == nil && resp.StatusCode >= 400 {
			// Non-retryable 4xx: permanent failure, return immediately.
			return resp, nil
		}

		return resp, nil
	}

	status := 0
	if lastResp != nil {
		status = lastResp.StatusCode
	}
	if idempotent {
		return nil, apperrors.TransientExhausted(host, maxAttempts, status)
	}
	return lastResp, lastErr
}

// sleepBackoff implements exponential backoff with full jitter, capped at
// BackoffCeiling (spec §4.2).
func (c *Client) sleepBackoff(ctx context.Context, attempt int) {
	ceiling := c.cfg.BackoffCeiling
	backoff := time.Duration(math.Min(float64(ceiling), float64(time.Second)*math.Pow(2, float64(attempt))))
	jittered := time.Duration(rand.Int63n(int64(backoff) + 1))
	select {
	case <-time.After(jittered):
	case <-ctx.Done():
	}
}

func parseRetryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return 2 * time.Second
}

func classifyTransient(host string, err error, resp *http.Response) error {
	if err != nil {
		return apperrors.TransientIO(host, err)
	}
	return apperrors.TransientIO(host, nil)
}
