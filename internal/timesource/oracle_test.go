package timesource

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timeServer(t *testing.T, serverNow func() time.Time, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		fmt.Fprintf(w, `{"timestamp": %d}`, serverNow().UnixMilli())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNowUsesServerTime(t *testing.T) {
	serverTime := time.Now().Add(45 * time.Minute) // server well ahead of local clock
	srv := timeServer(t, func() time.Time { return serverTime }, nil)

	o := New(srv.URL, nil)
	got := o.Now(context.Background())

	assert.WithinDuration(t, serverTime, got, 2*time.Second,
		"oracle must report server time, not the rolled-back local clock")
	assert.False(t, o.LastSync().IsZero())
}

func TestNowCachesWithinTTL(t *testing.T) {
	var calls atomic.Int64
	srv := timeServer(t, time.Now, &calls)

	o := New(srv.URL, nil, WithCacheTTL(30*time.Second))

	first := o.Now(context.Background())
	for i := 0; i < 20; i++ {
		o.Now(context.Background())
	}
	assert.EqualValues(t, 1, calls.Load(), "repeated reads within the TTL hit the cache")

	later := o.Now(context.Background())
	assert.False(t, later.Before(first), "cached time still advances with wall clock")
}

func TestNowRefetchesAfterTTL(t *testing.T) {
	var calls atomic.Int64
	srv := timeServer(t, time.Now, &calls)

	o := New(srv.URL, nil, WithCacheTTL(10*time.Millisecond))

	o.Now(context.Background())
	time.Sleep(25 * time.Millisecond)
	o.Now(context.Background())

	assert.EqualValues(t, 2, calls.Load())
}

func TestNowFallsBackToLocalClockOnFetchFailure(t *testing.T) {
	o := New("http://127.0.0.1:1/api/time", nil,
		WithHTTPClient(&http.Client{Timeout: 100 * time.Millisecond}))

	before := time.Now()
	got := o.Now(context.Background())
	after := time.Now()

	assert.False(t, got.Before(before) || got.After(after),
		"unreachable endpoint degrades to the local clock for this call")
	assert.True(t, o.LastSync().IsZero(), "failed fetch must not populate the cache")
}

func TestNowOfflineSkipsNetwork(t *testing.T) {
	var calls atomic.Int64
	srv := timeServer(t, time.Now, &calls)

	o := New(srv.URL, nil, WithConnectivityProbe(func() bool { return false }))

	before := time.Now()
	got := o.Now(context.Background())

	assert.WithinDuration(t, before, got, time.Second)
	assert.EqualValues(t, 0, calls.Load(), "offline mode makes no network attempt")
}

func TestNowRejectsMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"timestamp": -5}`))
	}))
	defer srv.Close()

	o := New(srv.URL, nil)
	got := o.Now(context.Background())

	require.WithinDuration(t, time.Now(), got, time.Second)
	assert.True(t, o.LastSync().IsZero())
}
