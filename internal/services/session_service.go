package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"invodesk/internal/infrastructure"
	"invodesk/internal/session"
)

// SessionService provides business logic for session operations
type SessionService interface {
	SignIn(ctx context.Context, data session.Data) (*SessionStatusResponse, error)
	Status(ctx context.Context) (*SessionStatusResponse, error)
	Refresh(ctx context.Context) (*SessionStatusResponse, error)
	SignOut(ctx context.Context) error
}

// CacheInvalidator drops a cached positive authentication verdict. The
// session guard implements it; sign-out must invalidate the guard cache or
// protected requests would keep passing until the cache TTL elapses.
type CacheInvalidator interface {
	InvalidateCache()
}

// SessionStatusResponse is the transport-facing view of the session state.
// The signature never leaves the process.
type SessionStatusResponse struct {
	Authenticated bool       `json:"authenticated"`
	UserID        string     `json:"user_id,omitempty"`
	Email         string     `json:"email,omitempty"`
	Role          string     `json:"role,omitempty"`
	StoreID       *string    `json:"store_id,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	TraceID       string     `json:"trace_id"`
	Timestamp     time.Time  `json:"timestamp"`
}

type sessionService struct {
	manager *session.Manager
	guard   CacheInvalidator
	logger  *slog.Logger
}

// NewSessionService creates the session service. guard may be nil when no
// verdict cache sits in front of the manager.
func NewSessionService(manager *session.Manager, guard CacheInvalidator, logger *slog.Logger) SessionService {
	return &sessionService{
		manager: manager,
		guard:   guard,
		logger:  logger.With(slog.String("service", "session")),
	}
}

func (s *sessionService) SignIn(ctx context.Context, data session.Data) (*SessionStatusResponse, error) {
	sess, err := s.manager.Issue(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("sign-in failed: %w", err)
	}
	return s.response(ctx, sess), nil
}

func (s *sessionService) Status(ctx context.Context) (*SessionStatusResponse, error) {
	sess, err := s.manager.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("session read failed: %w", err)
	}
	return s.response(ctx, sess), nil
}

func (s *sessionService) Refresh(ctx context.Context) (*SessionStatusResponse, error) {
	sess, err := s.manager.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("session refresh failed: %w", err)
	}
	return s.response(ctx, sess), nil
}

func (s *sessionService) SignOut(ctx context.Context) error {
	if err := s.manager.Clear(ctx); err != nil {
		return fmt.Errorf("sign-out failed: %w", err)
	}
	if s.guard != nil {
		s.guard.InvalidateCache()
	}
	return nil
}

// response maps a session (or its absence) to the API shape
func (s *sessionService) response(ctx context.Context, sess *session.Session) *SessionStatusResponse {
	resp := &SessionStatusResponse{
		TraceID:   infrastructure.TraceIDFromContext(ctx),
		Timestamp: time.Now().UTC(),
	}
	if sess == nil {
		return resp
	}
	expires := sess.ExpiresAtTime()
	resp.Authenticated = true
	resp.UserID = sess.UserID
	resp.Email = sess.Email
	resp.Role = sess.Role
	resp.StoreID = sess.StoreID
	resp.ExpiresAt = &expires
	return resp
}
