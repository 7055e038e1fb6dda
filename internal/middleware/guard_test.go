package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"invodesk/internal/session"
)

type stubSessionReader struct {
	session *session.Session
	err     error
	reads   int
}

func (s *stubSessionReader) Read(ctx context.Context) (*session.Session, error) {
	s.reads++
	return s.session, s.err
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func testSession() *session.Session {
	return &session.Session{
		UserID:    "user-1",
		Email:     "owner@example.com",
		Role:      "owner",
		IssuedAt:  time.Now().UnixMilli(),
		ExpiresAt: time.Now().Add(time.Hour).UnixMilli(),
		Signature: "aabbcc",
	}
}

func TestGuardAllowsAuthenticatedRequest(t *testing.T) {
	reader := &stubSessionReader{session: testSession()}
	guard := NewSessionGuard(reader, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	guard.Handler(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, reader.reads)
}

func TestGuardRejectsWithoutSession(t *testing.T) {
	reader := &stubSessionReader{}
	guard := NewSessionGuard(reader, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	guard.Handler(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuardExcludedPathsBypassCheck(t *testing.T) {
	reader := &stubSessionReader{}
	guard := NewSessionGuard(reader, slog.New(slog.NewTextHandler(io.Discard, nil)))

	paths := []string{
		"/api/session/signin",
		"/api/session/status",
		"/api/license/status",
		"/api/license/activate",
		"/api/health",
		"/metrics",
	}
	for _, path := range paths {
		rec := httptest.NewRecorder()
		guard.Handler(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, "path %s should bypass the guard", path)
	}
	assert.Zero(t, reader.reads)
}

func TestGuardCachesPositiveVerdict(t *testing.T) {
	reader := &stubSessionReader{session: testSession()}
	guard := NewSessionGuard(reader, slog.New(slog.NewTextHandler(io.Discard, nil)))
	guard.SetCacheTTL(time.Minute)

	h := guard.Handler(okHandler())
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 1, reader.reads, "one full validation per TTL")
}

func TestGuardNegativeVerdictNotCached(t *testing.T) {
	reader := &stubSessionReader{}
	guard := NewSessionGuard(reader, slog.New(slog.NewTextHandler(io.Discard, nil)))
	guard.SetCacheTTL(time.Minute)

	h := guard.Handler(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Sign-in between requests must take effect immediately
	reader.session = testSession()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, reader.reads)
}

func TestGuardInvalidateCache(t *testing.T) {
	reader := &stubSessionReader{session: testSession()}
	guard := NewSessionGuard(reader, slog.New(slog.NewTextHandler(io.Discard, nil)))
	guard.SetCacheTTL(time.Minute)

	h := guard.Handler(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Sign-out clears the record and the cached verdict
	reader.session = nil
	guard.InvalidateCache()

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetReqID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDHonorsInboundHeader(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetReqID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-supplied-id")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "client-supplied-id", seen)
}

func TestRecovererConvertsPanicTo500(t *testing.T) {
	h := Recoverer(slog.New(slog.NewTextHandler(io.Discard, nil)))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}),
	)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_SERVER_ERROR")
}
