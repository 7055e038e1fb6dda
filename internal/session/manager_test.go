package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invodesk/internal/security"
	"invodesk/internal/store"
)

var testSecret = []byte("session-test-secret-0123456789")

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now(ctx context.Context) time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type stubValidator struct {
	online bool
	valid  bool
	err    error
	calls  int
}

func (v *stubValidator) Online() bool { return v.online }

func (v *stubValidator) Validate(ctx context.Context, fields security.SignedFields, clientSignature string, clientTime time.Time) (bool, error) {
	v.calls++
	return v.valid, v.err
}

func newTestManager(t *testing.T, validator RemoteValidator) (*Manager, *store.MemoryStore, *fakeClock) {
	t.Helper()
	st := store.NewMemoryStore()
	clock := &fakeClock{now: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)}
	m, err := NewManager(ManagerConfig{
		Store:           st,
		Secret:          testSecret,
		Clock:           clock,
		Validator:       validator,
		SessionDuration: 24 * time.Hour,
		RefreshWindow:   time.Hour,
	})
	require.NoError(t, err)
	return m, st, clock
}

func issueTestSession(t *testing.T, m *Manager) *Session {
	t.Helper()
	s, err := m.Issue(context.Background(), Data{UserID: "u1", Email: "Admin@Example.com", Role: "admin"})
	require.NoError(t, err)
	return s
}

func TestIssueAndRead(t *testing.T) {
	m, _, clock := newTestManager(t, nil)
	ctx := context.Background()

	issued := issueTestSession(t, m)
	assert.Equal(t, "admin@example.com", issued.Email, "email is lower-cased before signing")
	assert.EqualValues(t, 0, issued.ValidationCount)
	assert.Equal(t, clock.now.Add(24*time.Hour).UnixMilli(), issued.ExpiresAt)

	s, err := m.Read(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "u1", s.UserID)
	assert.EqualValues(t, 1, s.ValidationCount)
	assert.Equal(t, clock.now.UnixMilli(), s.LastValidated)

	// Bookkeeping mutations do not invalidate the signature on later reads
	s2, err := m.Read(ctx)
	require.NoError(t, err)
	require.NotNil(t, s2)
	assert.EqualValues(t, 2, s2.ValidationCount)
}

func TestReadAbsent(t *testing.T) {
	m, _, _ := newTestManager(t, nil)

	s, err := m.Read(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestReadTamperedFieldFailsClosed(t *testing.T) {
	m, st, _ := newTestManager(t, nil)
	ctx := context.Background()
	issueTestSession(t, m)

	// Direct local-storage edit: privilege escalation attempt
	raw, err := st.Read(ctx, store.SessionKey)
	require.NoError(t, err)
	var rec Session
	require.NoError(t, json.Unmarshal(raw, &rec))
	rec.Role = "owner"
	edited, err := json.Marshal(&rec)
	require.NoError(t, err)
	st.Tamper(store.SessionKey, edited)

	s, err := m.Read(ctx)
	require.NoError(t, err)
	assert.Nil(t, s, "tampered session reads as none")

	_, err = st.Read(ctx, store.SessionKey)
	assert.ErrorIs(t, err, store.ErrNotFound, "tampered record is deleted, not kept")
}

func TestReadTamperedOfflineStillRejected(t *testing.T) {
	validator := &stubValidator{online: false}
	m, st, _ := newTestManager(t, validator)
	ctx := context.Background()
	issueTestSession(t, m)

	raw, err := st.Read(ctx, store.SessionKey)
	require.NoError(t, err)
	var rec Session
	require.NoError(t, json.Unmarshal(raw, &rec))
	rec.ExpiresAt += int64(365 * 24 * time.Hour / time.Millisecond)
	edited, err := json.Marshal(&rec)
	require.NoError(t, err)
	st.Tamper(store.SessionKey, edited)

	s, err := m.Read(ctx)
	require.NoError(t, err)
	assert.Nil(t, s, "client-side check alone must catch the bad signature")
	assert.Equal(t, 0, validator.calls, "no network attempt while offline")
}

func TestReadExpiredFailsClosed(t *testing.T) {
	m, st, clock := newTestManager(t, nil)
	ctx := context.Background()
	issueTestSession(t, m)

	clock.advance(25 * time.Hour)

	s, err := m.Read(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = st.Read(ctx, store.SessionKey)
	assert.ErrorIs(t, err, store.ErrNotFound, "expired record is deleted")
}

func TestReadMalformedRecordFailsClosed(t *testing.T) {
	m, st, _ := newTestManager(t, nil)
	ctx := context.Background()
	issueTestSession(t, m)

	tests := []struct {
		name string
		raw  string
	}{
		{"unknown field injected", `{"userId":"u1","email":"a@b.c","role":"admin","storeId":null,"issuedAt":1,"expiresAt":2,"signature":"ab","lastValidated":0,"validationCount":0,"isSuperuser":true}`},
		{"missing signature", `{"userId":"u1","email":"a@b.c","role":"admin","storeId":null,"issuedAt":1,"expiresAt":2,"lastValidated":0,"validationCount":0}`},
		{"not json", `definitely not a session`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issueTestSession(t, m)
			st.Tamper(store.SessionKey, []byte(tt.raw))

			s, err := m.Read(ctx)
			require.NoError(t, err)
			assert.Nil(t, s)

			_, err = st.Read(ctx, store.SessionKey)
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestReadServerRevocation(t *testing.T) {
	validator := &stubValidator{online: true, valid: true}
	m, st, _ := newTestManager(t, validator)
	ctx := context.Background()
	issueTestSession(t, m)

	s, err := m.Read(ctx)
	require.NoError(t, err)
	require.NotNil(t, s, "well-signed session accepted while server agrees")

	// Server begins rejecting the otherwise well-signed, unexpired session
	validator.valid = false

	s, err = m.Read(ctx)
	require.NoError(t, err)
	assert.Nil(t, s, "server verdict clears the session")

	_, err = st.Read(ctx, store.SessionKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReadDegradesWhenServerUnreachable(t *testing.T) {
	validator := &stubValidator{online: true, err: errors.New("dial timeout")}
	m, _, _ := newTestManager(t, validator)
	ctx := context.Background()
	issueTestSession(t, m)

	s, err := m.Read(ctx)
	require.NoError(t, err)
	require.NotNil(t, s, "unreachable validator degrades to client-only verification")
	assert.Equal(t, 1, validator.calls)
}

func TestRefresh(t *testing.T) {
	m, _, clock := newTestManager(t, nil)
	ctx := context.Background()
	issued := issueTestSession(t, m)

	t.Run("outside window is a no-op", func(t *testing.T) {
		s, err := m.Refresh(ctx)
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, issued.ExpiresAt, s.ExpiresAt)
	})

	t.Run("inside window extends expiry keeping issuedAt", func(t *testing.T) {
		clock.advance(23*time.Hour + 30*time.Minute) // 30 minutes remaining

		s, err := m.Refresh(ctx)
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, issued.IssuedAt, s.IssuedAt, "original issuedAt is preserved")
		assert.Equal(t, clock.now.Add(24*time.Hour).UnixMilli(), s.ExpiresAt)

		// The reissued record verifies on subsequent reads
		again, err := m.Read(ctx)
		require.NoError(t, err)
		require.NotNil(t, again)
		assert.Equal(t, s.ExpiresAt, again.ExpiresAt)
	})

	t.Run("idempotent when called repeatedly", func(t *testing.T) {
		first, err := m.Refresh(ctx)
		require.NoError(t, err)
		second, err := m.Refresh(ctx)
		require.NoError(t, err)
		assert.Equal(t, first.ExpiresAt, second.ExpiresAt)
	})
}

func TestClear(t *testing.T) {
	m, st, _ := newTestManager(t, nil)
	ctx := context.Background()
	issueTestSession(t, m)

	require.NoError(t, m.Clear(ctx))

	_, err := st.Read(ctx, store.SessionKey)
	assert.ErrorIs(t, err, store.ErrNotFound)

	s, err := m.Read(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestIssueRejectsIncompleteIdentity(t *testing.T) {
	m, _, _ := newTestManager(t, nil)
	ctx := context.Background()

	_, err := m.Issue(ctx, Data{Email: "a@b.c", Role: "admin"})
	assert.Error(t, err)
	_, err = m.Issue(ctx, Data{UserID: "u1", Role: "admin"})
	assert.Error(t, err)
	_, err = m.Issue(ctx, Data{UserID: "u1", Email: "a@b.c"})
	assert.Error(t, err)
}
