// Package timesource provides a server-anchored clock used to defeat local
// clock rollback. The oracle caches a trusted timestamp from the remote time
// endpoint and extends it by locally elapsed wall-clock time, so protected
// reads do not pay a network round-trip while large rollbacks still surface
// once the cache expires.
package timesource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ConnectivityProbe reports whether the environment currently has network
// connectivity. When it returns false the oracle answers from the local
// clock immediately, with no network attempt.
type ConnectivityProbe func() bool

// Oracle fetches and caches a trusted timestamp from a remote time endpoint,
// falling back to the local clock when the endpoint is unreachable.
type Oracle struct {
	endpoint string
	client   *http.Client
	ttl      time.Duration
	online   ConnectivityProbe
	logger   *slog.Logger

	mu         sync.RWMutex
	serverTime time.Time
	fetchedAt  time.Time

	group singleflight.Group
}

// Option configures an Oracle
type Option func(*Oracle)

// WithConnectivityProbe overrides the connectivity check
func WithConnectivityProbe(probe ConnectivityProbe) Option {
	return func(o *Oracle) { o.online = probe }
}

// WithHTTPClient overrides the HTTP client. The client's timeout bounds
// every fetch.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Oracle) { o.client = client }
}

// WithCacheTTL overrides the cache refresh interval
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *Oracle) { o.ttl = ttl }
}

// New creates an Oracle against the given time endpoint. Defaults: 2s fetch
// timeout, 30s cache, always-online probe.
func New(endpoint string, logger *slog.Logger, opts ...Option) *Oracle {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Oracle{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 2 * time.Second},
		ttl:      30 * time.Second,
		online:   func() bool { return true },
		logger:   logger.With(slog.String("component", "time_oracle")),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Now returns the best available trusted timestamp. Offline or on fetch
// failure it degrades to the local clock for this call only; a fresh cached
// server time is extended by the wall-clock time elapsed since the fetch.
func (o *Oracle) Now(ctx context.Context) time.Time {
	if !o.online() {
		return time.Now()
	}

	if t, ok := o.cachedNow(); ok {
		return t
	}

	// Concurrent refreshes collapse into one fetch
	_, err, _ := o.group.Do("refresh", func() (interface{}, error) {
		return nil, o.refresh(ctx)
	})
	if err != nil {
		o.logger.WarnContext(ctx, "server time fetch failed, using local clock",
			slog.String("error", err.Error()),
		)
		return time.Now()
	}

	if t, ok := o.cachedNow(); ok {
		return t
	}
	return time.Now()
}

// LastSync returns when the cache was last refreshed, zero if never
func (o *Oracle) LastSync() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.fetchedAt
}

func (o *Oracle) cachedNow() (time.Time, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.fetchedAt.IsZero() || time.Since(o.fetchedAt) > o.ttl {
		return time.Time{}, false
	}
	return o.serverTime.Add(time.Since(o.fetchedAt)), true
}

type timeResponse struct {
	Timestamp int64 `json:"timestamp"` // epoch milliseconds
}

func (o *Oracle) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build time request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("time endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("time endpoint returned status %d", resp.StatusCode)
	}

	var body timeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("failed to decode time response: %w", err)
	}
	if body.Timestamp <= 0 {
		return fmt.Errorf("time endpoint returned invalid timestamp %d", body.Timestamp)
	}

	serverTime := time.UnixMilli(body.Timestamp)

	o.mu.Lock()
	o.serverTime = serverTime
	o.fetchedAt = time.Now()
	o.mu.Unlock()

	skew := time.Since(serverTime)
	o.logger.DebugContext(ctx, "server time cache refreshed",
		slog.Time("server_time", serverTime),
		slog.Duration("local_skew", skew),
	)
	if skew < -time.Minute || skew > time.Minute {
		o.logger.WarnContext(ctx, "local clock deviates from server time",
			slog.Duration("skew", skew),
		)
	}
	return nil
}
