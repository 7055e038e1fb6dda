package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/render"

	apierrors "invodesk/internal/errors"
	"invodesk/internal/session"
)

// SessionReader is the slice of the session manager the guard depends on
type SessionReader interface {
	Read(ctx context.Context) (*session.Session, error)
}

// SessionGuard rejects requests to protected routes when no valid session
// exists. A short-lived cache keeps the per-request overhead down; the full
// validation pipeline still runs at most once per TTL.
type SessionGuard struct {
	sessions SessionReader
	logger   *slog.Logger

	mu    sync.RWMutex
	cache guardCache

	cacheTTL        time.Duration
	excludePaths    map[string]bool
	excludePrefixes []string
}

type guardCache struct {
	authenticated bool
	checkedAt     time.Time
}

// NewSessionGuard creates a guard over the given session reader. Sign-in,
// licensing, health and metrics endpoints are excluded by default so the
// frontend can always reach them.
func NewSessionGuard(sessions SessionReader, logger *slog.Logger) *SessionGuard {
	return &SessionGuard{
		sessions: sessions,
		logger:   logger.With(slog.String("component", "session_guard")),
		cacheTTL: 5 * time.Second,
		excludePaths: map[string]bool{
			"/api/session/signin": true,
			"/api/session/status": true,
			"/api/health":         true,
			"/metrics":            true,
		},
		excludePrefixes: []string{"/api/license"},
	}
}

// SetCacheTTL overrides the positive-result cache TTL
func (g *SessionGuard) SetCacheTTL(ttl time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cacheTTL = ttl
}

// AddExcludePath exempts an exact path from the guard
func (g *SessionGuard) AddExcludePath(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.excludePaths[path] = true
}

// InvalidateCache drops the cached verdict; called on sign-out
func (g *SessionGuard) InvalidateCache() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache = guardCache{}
}

// Handler is the middleware entry point
func (g *SessionGuard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.shouldExclude(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if g.cachedVerdict() {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := g.sessions.Read(r.Context())
		if err != nil {
			g.logger.ErrorContext(r.Context(), "session read failed in guard",
				slog.String("error", err.Error()),
			)
			render.Render(w, r, apierrors.ErrInternalServer)
			return
		}
		if sess == nil {
			render.Render(w, r, apierrors.ErrUnauthorized)
			return
		}

		g.updateCache(true)
		next.ServeHTTP(w, r)
	})
}

func (g *SessionGuard) shouldExclude(path string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.excludePaths[path] {
		return true
	}
	for _, prefix := range g.excludePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// cachedVerdict reports whether a recent read already proved a valid
// session. Only positive verdicts are cached; a missing session is always
// re-checked so sign-in takes effect immediately.
func (g *SessionGuard) cachedVerdict() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cache.authenticated && time.Since(g.cache.checkedAt) < g.cacheTTL
}

func (g *SessionGuard) updateCache(authenticated bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache = guardCache{authenticated: authenticated, checkedAt: time.Now()}
}
