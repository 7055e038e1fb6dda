package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"invodesk/internal/store"
)

// Fingerprinter supplies the device pseudo-identifier licenses are bound to
type Fingerprinter interface {
	Fingerprint(ctx context.Context) (string, error)
}

// ManagerConfig wires a Manager's collaborators. Store, Authority and
// Fingerprinter are required.
type ManagerConfig struct {
	Store         store.Store
	Authority     Authority
	Fingerprinter Fingerprinter

	StoreTimeout       time.Duration // bound on load/decrypt, default 2s
	FingerprintTimeout time.Duration // bound on fingerprinting, default 3s
	AuthorityTimeout   time.Duration // bound on the online check, default 3s

	Limiter *ActivationLimiter
	Logger  *slog.Logger
	Metrics *Metrics

	// Now overrides the clock in tests
	Now func() time.Time
}

// Manager activates, stores and revalidates the installation's license.
// Every network step degrades to a timeout-bounded local decision so a
// missing network never blocks application launch.
type Manager struct {
	store         store.Store
	authority     Authority
	fingerprints  Fingerprinter
	storeTimeout  time.Duration
	fpTimeout     time.Duration
	authTimeout   time.Duration
	limiter       *ActivationLimiter
	logger        *slog.Logger
	metrics       *Metrics
	now           func() time.Time
}

// NewManager validates the configuration and creates a Manager
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("license manager requires a store")
	}
	if cfg.Authority == nil {
		return nil, errors.New("license manager requires an authority")
	}
	if cfg.Fingerprinter == nil {
		return nil, errors.New("license manager requires a fingerprinter")
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 2 * time.Second
	}
	if cfg.FingerprintTimeout <= 0 {
		cfg.FingerprintTimeout = 3 * time.Second
	}
	if cfg.AuthorityTimeout <= 0 {
		cfg.AuthorityTimeout = 3 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:        cfg.Store,
		authority:    cfg.Authority,
		fingerprints: cfg.Fingerprinter,
		storeTimeout: cfg.StoreTimeout,
		fpTimeout:    cfg.FingerprintTimeout,
		authTimeout:  cfg.AuthorityTimeout,
		limiter:      cfg.Limiter,
		logger:       logger.With(slog.String("component", "license_manager")),
		metrics:      cfg.Metrics,
		now:          now,
	}, nil
}

// SetMetrics attaches OpenTelemetry metrics to the manager
func (m *Manager) SetMetrics(metrics *Metrics) {
	m.metrics = metrics
}

// Activate validates the key with the external authority and, on an active
// outcome, encrypts and persists the license bound to this device. Any
// other outcome returns a typed *ActivationError and persists nothing.
func (m *Manager) Activate(ctx context.Context, licenseKey string) error {
	masked := MaskKey(licenseKey)

	if err := ValidateKeyFormat(licenseKey); err != nil {
		m.recordActivation(ctx, "invalid_format")
		return NewActivationError(CodeInvalidFormat, err.Error())
	}

	if m.limiter != nil && !m.limiter.Allow(ctx) {
		m.recordActivation(ctx, "rate_limited")
		return NewActivationError(CodeRateLimited, "too many activation attempts, try again later")
	}

	fingerprint, err := m.deviceFingerprint(ctx)
	if err != nil {
		m.recordActivation(ctx, "fingerprint_failed")
		return fmt.Errorf("failed to fingerprint device: %w", err)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, m.authTimeout)
	defer cancel()
	record, err := m.authority.Lookup(lookupCtx, NormalizeKey(licenseKey), fingerprint)
	switch {
	case errors.Is(err, ErrKeyNotFound):
		m.recordActivation(ctx, "key_not_found")
		return NewActivationError(CodeKeyNotFound, "the license key was not found")
	case err != nil:
		if actErr, ok := AsActivationError(err); ok {
			m.recordActivation(ctx, "device_mismatch")
			return actErr
		}
		m.recordActivation(ctx, "authority_unreachable")
		return fmt.Errorf("activation requires a network connection: %w", err)
	}

	switch record.Status {
	case StatusExpired:
		m.recordActivation(ctx, "expired")
		return NewActivationError(CodeExpired, "this license has expired")
	case StatusRevoked:
		m.recordActivation(ctx, "revoked")
		return NewActivationError(CodeRevoked, "this license has been revoked")
	}

	activatedOn := record.ActivatedOn
	if activatedOn.IsZero() {
		activatedOn = m.now()
	}
	info := &Info{
		LicenseKey:        NormalizeKey(licenseKey),
		DeviceFingerprint: fingerprint,
		ClientName:        record.ClientName,
		ActivatedOn:       activatedOn,
		ExpiresOn:         record.ExpiresOn,
		Status:            StatusActive,
	}
	if err := m.persist(ctx, info); err != nil {
		m.recordActivation(ctx, "persist_failed")
		return err
	}

	m.logInfo(ctx, "license_activated", "license activated",
		slog.String("license_key_masked", masked),
		slog.String("client_name", info.ClientName),
		slog.Time("expires_on", info.ExpiresOn),
	)
	m.recordActivation(ctx, "activated")
	return nil
}

// CheckOnLaunch decides the license state for this application launch.
// Every step is timeout-bounded; the worst case latency is the sum of the
// configured timeouts and the method never returns an error for a missing
// or unreadable record.
func (m *Manager) CheckOnLaunch(ctx context.Context) *LaunchStatus {
	stored := m.loadLocal(ctx)
	if stored == nil {
		m.recordValidation(ctx, "not_activated")
		return &LaunchStatus{RequiresActivation: true}
	}

	now := m.now()
	if stored.ExpiredAt(now) {
		// Last known info is returned for display alongside the
		// reactivation prompt
		m.logInfo(ctx, "license_expired_locally", "stored license past expiry",
			slog.String("license_key_masked", MaskKey(stored.LicenseKey)),
			slog.Time("expired_on", stored.ExpiresOn),
		)
		m.recordValidation(ctx, "expired")
		return &LaunchStatus{RequiresActivation: true, Info: stored}
	}

	refreshed, err := m.revalidateOnline(ctx, stored)
	if err != nil {
		// Offline fallback trusts only a still-active stored record; a
		// record already marked revoked or expired never regains trust
		// just because the network is down
		if stored.Status != StatusActive {
			m.recordValidation(ctx, string(stored.Status))
			return &LaunchStatus{RequiresActivation: true, Info: stored}
		}
		m.logWarn(ctx, "license_check_degraded", "online revalidation unavailable, using stored license",
			slog.String("error", err.Error()),
		)
		m.recordValidation(ctx, "offline_fallback")
		return &LaunchStatus{Valid: true, Offline: true, Info: stored}
	}

	if refreshed.Status != StatusActive || refreshed.ExpiredAt(now) {
		m.logWarn(ctx, "license_invalidated_online", "authority reports license no longer active",
			slog.String("license_key_masked", MaskKey(refreshed.LicenseKey)),
			slog.String("status", string(refreshed.Status)),
		)
		m.recordValidation(ctx, string(refreshed.Status))
		return &LaunchStatus{RequiresActivation: true, Info: refreshed}
	}

	m.recordValidation(ctx, "valid")
	return &LaunchStatus{Valid: true, Info: refreshed}
}

// Current returns the stored license, or ErrNotActivated
func (m *Manager) Current(ctx context.Context) (*Info, error) {
	info := m.loadLocal(ctx)
	if info == nil {
		return nil, ErrNotActivated
	}
	return info, nil
}

// Renewal reports how urgently the stored license needs renewing
func (m *Manager) Renewal(ctx context.Context) (*RenewalInfo, error) {
	info := m.loadLocal(ctx)
	if info == nil {
		return nil, ErrNotActivated
	}

	now := m.now()
	daysLeft := info.DaysLeft(now)
	r := &RenewalInfo{DaysLeft: daysLeft}
	switch {
	case info.ExpiredAt(now):
		r.IsExpired = true
		r.NeedsRenewal = true
		r.Urgency = "critical"
		r.Message = "Your license has expired. Please reactivate to continue."
	case daysLeft <= 7:
		r.NeedsRenewal = true
		r.Urgency = "critical"
		r.Message = fmt.Sprintf("Your license expires in %d days.", daysLeft)
	case daysLeft <= 14:
		r.NeedsRenewal = true
		r.Urgency = "high"
		r.Message = fmt.Sprintf("Your license expires in %d days.", daysLeft)
	case daysLeft <= 30:
		r.NeedsRenewal = true
		r.Urgency = "medium"
		r.Message = fmt.Sprintf("Your license expires in %d days.", daysLeft)
	default:
		r.Urgency = "low"
		r.Message = "License in good standing."
	}
	return r, nil
}

// Reset removes the stored license. User-initiated only.
func (m *Manager) Reset(ctx context.Context) error {
	if err := m.store.Delete(ctx, store.LicenseKey); err != nil {
		return fmt.Errorf("failed to reset license: %w", err)
	}
	m.logInfo(ctx, "license_reset", "stored license removed")
	return nil
}

// revalidateOnline re-runs the authority lookup and overwrites the stored
// record with the fresh status and expiry, supporting server-side
// revocation and extension.
func (m *Manager) revalidateOnline(ctx context.Context, stored *Info) (*Info, error) {
	fingerprint, err := m.deviceFingerprint(ctx)
	if err != nil {
		return nil, fmt.Errorf("fingerprinting failed: %w", err)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, m.authTimeout)
	defer cancel()
	record, err := m.authority.Lookup(lookupCtx, stored.LicenseKey, fingerprint)
	if err != nil {
		if actErr, ok := AsActivationError(err); ok {
			// A definitive device-mismatch verdict is not a network
			// failure; treat like a revocation and write it back so the
			// verdict survives the next offline launch
			refreshed := *stored
			refreshed.Status = StatusRevoked
			m.logWarn(ctx, "license_device_mismatch", actErr.Message)
			if err := m.persist(ctx, &refreshed); err != nil {
				m.logWarn(ctx, "license_persist_failed", "failed to store revoked license",
					slog.String("error", err.Error()),
				)
			}
			return &refreshed, nil
		}
		return nil, err
	}

	refreshed := &Info{
		LicenseKey:        stored.LicenseKey,
		DeviceFingerprint: fingerprint,
		ClientName:        record.ClientName,
		ActivatedOn:       stored.ActivatedOn,
		ExpiresOn:         record.ExpiresOn,
		Status:            record.Status,
	}
	if err := m.persist(ctx, refreshed); err != nil {
		m.logWarn(ctx, "license_persist_failed", "failed to store refreshed license",
			slog.String("error", err.Error()),
		)
	}
	return refreshed, nil
}

// loadLocal loads and decrypts the stored record within the store timeout.
// Absence, timeout, decryption failure and strict-decode failure all read
// as "no license".
func (m *Manager) loadLocal(ctx context.Context) *Info {
	loadCtx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()

	data, err := m.store.Read(loadCtx, store.LicenseKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.logWarn(ctx, "license_load_failed", "stored license unreadable, treating as absent",
				slog.String("error", err.Error()),
			)
		}
		return nil
	}

	info, err := decodeInfo(data)
	if err != nil {
		m.logWarn(ctx, "license_malformed", "stored license failed strict decode, treating as absent",
			slog.String("error", err.Error()),
		)
		return nil
	}
	return info
}

func (m *Manager) deviceFingerprint(ctx context.Context) (string, error) {
	fpCtx, cancel := context.WithTimeout(ctx, m.fpTimeout)
	defer cancel()
	return m.fingerprints.Fingerprint(fpCtx)
}

func (m *Manager) persist(ctx context.Context, info *Info) error {
	data, err := encodeInfo(info)
	if err != nil {
		return fmt.Errorf("failed to encode license: %w", err)
	}
	if err := m.store.Write(ctx, store.LicenseKey, data); err != nil {
		return fmt.Errorf("failed to persist license: %w", err)
	}
	return nil
}

func (m *Manager) recordActivation(ctx context.Context, outcome string) {
	if m.metrics != nil {
		m.metrics.RecordActivation(ctx, outcome)
	}
}

func (m *Manager) recordValidation(ctx context.Context, outcome string) {
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
