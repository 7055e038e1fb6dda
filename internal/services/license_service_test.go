package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invodesk/internal/license"
	"invodesk/internal/store"
)

type staticAuthority struct {
	record *license.Record
	err    error
}

func (a *staticAuthority) Lookup(ctx context.Context, licenseKey, deviceFingerprint string) (*license.Record, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.record, nil
}

type staticFingerprinter struct{}

func (staticFingerprinter) Fingerprint(ctx context.Context) (string, error) {
	return "AA:BB:CC:DD:EE:FF", nil
}

func newLicenseService(t *testing.T, authority license.Authority) LicenseService {
	t.Helper()
	manager, err := license.NewManager(license.ManagerConfig{
		Store:         store.NewMemoryStore(),
		Authority:     authority,
		Fingerprinter: staticFingerprinter{},
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return NewLicenseService(manager, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLicenseServiceStatusWithoutLicense(t *testing.T) {
	svc := newLicenseService(t, &staticAuthority{err: license.ErrKeyNotFound})

	resp, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, resp.Valid)
	assert.True(t, resp.RequiresActivation)
	assert.Empty(t, resp.LicenseKeyMasked)
}

func TestLicenseServiceActivate(t *testing.T) {
	svc := newLicenseService(t, &staticAuthority{record: &license.Record{
		ClientName: "Acme Retail",
		Status:     license.StatusActive,
		ExpiresOn:  time.Now().Add(365 * 24 * time.Hour),
	}})

	resp, err := svc.Activate(context.Background(), "INV-AAAA-BBBB-CCCC")
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	assert.Equal(t, "Acme Retail", resp.ClientName)
	assert.NotContains(t, resp.LicenseKeyMasked, "AAAA-BBBB", "key is masked in responses")

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Valid)
}

func TestLicenseServiceActivateRejection(t *testing.T) {
	svc := newLicenseService(t, &staticAuthority{err: license.ErrKeyNotFound})

	_, err := svc.Activate(context.Background(), "INV-AAAA-BBBB-CCCC")
	require.Error(t, err)

	actErr, ok := license.AsActivationError(err)
	require.True(t, ok)
	assert.Equal(t, license.CodeKeyNotFound, actErr.Code)
}

func TestLicenseServiceReset(t *testing.T) {
	svc := newLicenseService(t, &staticAuthority{record: &license.Record{
		ClientName: "Acme Retail",
		Status:     license.StatusActive,
		ExpiresOn:  time.Now().Add(365 * 24 * time.Hour),
	}})

	_, err := svc.Activate(context.Background(), "INV-AAAA-BBBB-CCCC")
	require.NoError(t, err)
	require.NoError(t, svc.Reset(context.Background()))

	_, err = svc.Renewal(context.Background())
	assert.ErrorIs(t, err, license.ErrNotActivated)
}
