package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"invodesk/internal/security"
	"invodesk/internal/store"
)

// validationCountWarnThreshold flags possible automated replay. Detection
// hook only, never fatal.
const validationCountWarnThreshold = 1000

// Clock supplies trusted time; production wires the server time oracle
type Clock interface {
	Now(ctx context.Context) time.Time
}

// ManagerConfig wires a Manager's collaborators. Store, Secret and Clock are
// required; Validator is optional (nil disables the server round-trip,
// leaving client-only verification).
type ManagerConfig struct {
	Store           store.Store
	Secret          []byte
	Clock           Clock
	Validator       RemoteValidator
	SessionDuration time.Duration // default 24h
	RefreshWindow   time.Duration // default 1h
	Logger          *slog.Logger
	Metrics         *Metrics
}

// Manager issues, reads, refreshes and invalidates the singleton local
// session record.
//
// State machine: absent -> valid -> (refreshed | expired | tampered |
// logged-out). Every terminal state deletes the record: on any failed trust
// check the safe default is to discard trust, not to keep a partially
// trusted record around.
type Manager struct {
	store         store.Store
	secret        []byte
	clock         Clock
	validator     RemoteValidator
	duration      time.Duration
	refreshWindow time.Duration
	logger        *slog.Logger
	metrics       *Metrics
}

// NewManager validates the configuration and creates a Manager
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("session manager requires a store")
	}
	if len(cfg.Secret) == 0 {
		return nil, errors.New("session manager requires a signing secret")
	}
	if cfg.Clock == nil {
		return nil, errors.New("session manager requires a clock")
	}
	if cfg.SessionDuration <= 0 {
		cfg.SessionDuration = 24 * time.Hour
	}
	if cfg.RefreshWindow <= 0 {
		cfg.RefreshWindow = time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:         cfg.Store,
		secret:        cfg.Secret,
		clock:         cfg.Clock,
		validator:     cfg.Validator,
		duration:      cfg.SessionDuration,
		refreshWindow: cfg.RefreshWindow,
		logger:        logger.With(slog.String("component", "session_manager")),
	}, nil
}

// SetMetrics attaches OpenTelemetry metrics to the manager
func (m *Manager) SetMetrics(metrics *Metrics) {
	m.metrics = metrics
}

// Issue creates and persists a new signed session for the given identity,
// replacing any existing record. The email is normalized to lower case
// before signing.
func (m *Manager) Issue(ctx context.Context, data Data) (*Session, error) {
	if data.UserID == "" || data.Email == "" || data.Role == "" {
		return nil, errors.New("session identity requires userId, email and role")
	}

	now := m.clock.Now(ctx)
	s := &Session{
		UserID:    data.UserID,
		Email:     strings.ToLower(data.Email),
		Role:      data.Role,
		StoreID:   data.StoreID,
		IssuedAt:  now.UnixMilli(),
		ExpiresAt: now.Add(m.duration).UnixMilli(),
	}

	sig, err := security.Sign(s.SignedFields(), m.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session: %w", err)
	}
	s.Signature = sig

	if err := m.persist(ctx, s); err != nil {
		return nil, err
	}

	m.logInfo(ctx, "session_issued", "session issued",
		slog.String("user_id", s.UserID),
		slog.String("role", s.Role),
		slog.Time("expires_at", s.ExpiresAtTime()),
	)
	return s, nil
}

// Read loads and fully validates the current session. It returns (nil, nil)
// when no trustworthy session exists: absent, tampered (record deleted),
// expired (record deleted), or revoked server-side (record deleted). Network
// trouble during the server round-trip degrades to client-only verification.
//
// The record is only written back after every check for this call has
// completed, so an abandoned call never leaves partial state.
func (m *Manager) Read(ctx context.Context) (*Session, error) {
	data, err := m.store.Read(ctx, store.SessionKey)
	if errors.Is(err, store.ErrNotFound) {
		m.record(ctx, outcomeAbsent)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session record: %w", err)
	}

	s, err := decodeSession(data)
	if err != nil {
		// A record we cannot strictly decode gets the same treatment as a
		// forged one: fail closed.
		m.logWarn(ctx, "session_malformed", "session record failed strict decode, clearing",
			slog.String("error", err.Error()),
		)
		m.record(ctx, outcomeTampered)
		return nil, m.clearSilently(ctx)
	}

	if !security.Verify(s.SignedFields(), s.Signature, m.secret) {
		m.logWarn(ctx, "session_tampered", "session signature mismatch, clearing",
			slog.String("user_id", s.UserID),
		)
		m.record(ctx, outcomeTampered)
		return nil, m.clearSilently(ctx)
	}

	now := m.clock.Now(ctx)
	if now.After(s.ExpiresAtTime()) {
		m.logInfo(ctx, "session_expired", "session expired, clearing",
			slog.String("user_id", s.UserID),
			slog.Time("expired_at", s.ExpiresAtTime()),
		)
		m.record(ctx, outcomeExpired)
		return nil, m.clearSilently(ctx)
	}

	if m.validator != nil && m.validator.Online() {
		valid, err := m.validator.Validate(ctx, s.SignedFields(), s.Signature, now)
		switch {
		case err != nil:
			// Accepted offline-security trade-off: degrade to the
			// client-only verification already performed above.
			m.logWarn(ctx, "session_validation_degraded", "server validation unreachable, using client-only verification",
				slog.String("error", err.Error()),
			)
			m.record(ctx, outcomeDegraded)
		case !valid:
			m.logWarn(ctx, "session_revoked", "server rejected session, clearing",
				slog.String("user_id", s.UserID),
			)
			m.record(ctx, outcomeRevoked)
			return nil, m.clearSilently(ctx)
		}
	}

	s.ValidationCount++
	s.LastValidated = now.UnixMilli()
	if s.ValidationCount > validationCountWarnThreshold {
		m.logWarn(ctx, "session_replay_suspicion", "validation count unusually high for one session",
			slog.String("user_id", s.UserID),
			slog.Int64("validation_count", s.ValidationCount),
		)
	}

	if err := m.persist(ctx, s); err != nil {
		// Bookkeeping write failure does not invalidate an otherwise
		// verified session.
		m.logWarn(ctx, "session_persist_failed", "failed to persist validation bookkeeping",
			slog.String("error", err.Error()),
		)
	}

	m.record(ctx, outcomeValid)
	return s, nil
}

// Refresh extends the session when it is close to expiry: with less than
// RefreshWindow remaining, expiresAt becomes now + SessionDuration under the
// original issuedAt, re-signed. Safe to call repeatedly; outside the window
// it returns the session unchanged.
func (m *Manager) Refresh(ctx context.Context) (*Session, error) {
	s, err := m.Read(ctx)
	if err != nil || s == nil {
		return s, err
	}

	now := m.clock.Now(ctx)
	if s.ExpiresAtTime().Sub(now) >= m.refreshWindow {
		return s, nil
	}

	s.ExpiresAt = now.Add(m.duration).UnixMilli()
	sig, err := security.Sign(s.SignedFields(), m.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to re-sign session: %w", err)
	}
	s.Signature = sig

	if err := m.persist(ctx, s); err != nil {
		return nil, err
	}

	m.logInfo(ctx, "session_refreshed", "session expiry extended",
		slog.String("user_id", s.UserID),
		slog.Time("expires_at", s.ExpiresAtTime()),
	)
	if m.metrics != nil {
		m.metrics.RecordRefresh(ctx)
	}
	return s, nil
}

// Clear unconditionally deletes the session record. Used on logout and by
// every fail-closed path.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.store.Delete(ctx, store.SessionKey); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	m.logInfo(ctx, "session_cleared", "session record deleted")
	return nil
}

// clearSilently deletes the record for a fail-closed path, reporting only
// unexpected store failures
func (m *Manager) clearSilently(ctx context.Context) error {
	if err := m.store.Delete(ctx, store.SessionKey); err != nil {
		return fmt.Errorf("failed to clear untrusted session: %w", err)
	}
	return nil
}

func (m *Manager) persist(ctx context.Context, s *Session) error {
	data, err := encodeSession(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := m.store.Write(ctx, store.SessionKey, data); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

func (m *Manager) record(ctx context.Context, outcome string) {
	if m.metrics != nil {
		m.metrics.RecordValidation(ctx, outcome)
	}
}

func (m *Manager) logInfo(ctx context.Context, action, result string, attrs ...slog.Attr) {
	m.logAction(ctx, slog.LevelInfo, action, result, attrs...)
}

func (m *Manager) logWarn(ctx context.Context, action, result string, attrs ...slog.Attr) {
	m.logAction(ctx, slog.LevelWarn, action, result, attrs...)
}

func (m *Manager) logAction(ctx context.Context, level slog.Level, action, result string, attrs ...slog.Attr) {
	all := append([]slog.Attr{slog.String("action", action)}, attrs...)
	m.logger.LogAttrs(ctx, level, result, all...)
}
