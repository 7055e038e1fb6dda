package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPassphrase = []byte("store-test-passphrase-16")

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), testPassphrase, nil)
	require.NoError(t, err)
	return s
}

func TestFileStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, SessionKey, []byte(`{"userId":"u1"}`)))

	data, err := s.Read(ctx, SessionKey)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"userId":"u1"}`), data)
}

func TestFileStoreReadAbsent(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Read(context.Background(), LicenseKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, SessionKey, []byte("data")))
	require.NoError(t, s.Delete(ctx, SessionKey))

	_, err := s.Read(ctx, SessionKey)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is a no-op
	assert.NoError(t, s.Delete(ctx, SessionKey))
}

func TestFileStoreEncryptedAtRest(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, testPassphrase, nil)
	require.NoError(t, err)
	ctx := context.Background()

	plaintext := []byte(`{"license_key":"INV-AAAA-BBBB-CCCC"}`)
	require.NoError(t, s.Write(ctx, LicenseKey, plaintext))

	raw, err := os.ReadFile(filepath.Join(dir, "license.dat"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "INV-AAAA-BBBB-CCCC",
		"record content must not appear in cleartext on disk")
}

func TestFileStoreCorruptedRecordReadsAsAbsent(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, testPassphrase, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, SessionKey, []byte("record")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "session.dat"), []byte("scribbled over"), 0o600))

	_, err = s.Read(ctx, SessionKey)
	assert.ErrorIs(t, err, ErrNotFound, "corruption degrades to absence, never a crash")
}

func TestFileStoreEditedNonceFieldReadsAsAbsent(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, testPassphrase, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, LicenseKey, []byte("record")))

	// The payload envelope on disk is plain JSON; edit the nonce field the
	// way a curious user with a text editor would
	path := filepath.Join(dir, "license.dat")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &payload))
	payload["nonce"] = json.RawMessage(`"QUJD"`) // base64 "ABC", wrong length
	edited, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, edited, 0o600))

	_, err = s.Read(ctx, LicenseKey)
	assert.ErrorIs(t, err, ErrNotFound, "edited envelope degrades to absence, never a crash")
}

func TestFileStoreOverwrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, SessionKey, []byte("first")))
	require.NoError(t, s.Write(ctx, SessionKey, []byte("second")))

	data, err := s.Read(ctx, SessionKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)
}

func TestFileStoreHonorsContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, s.Write(ctx, SessionKey, []byte("x")))
	_, err := s.Read(ctx, SessionKey)
	assert.Error(t, err)
}

func TestFileStoreRejectsShortPassphrase(t *testing.T) {
	_, err := NewFileStore(t.TempDir(), []byte("short"), nil)
	assert.Error(t, err)
}
