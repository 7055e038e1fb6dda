package security

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// FingerprintProvider derives a stable, MAC-shaped pseudo-identifier for the
// current machine. The primary path reads a real hardware address; when none
// is usable it falls back to hashing environment signals together with a
// random seed persisted on first generation, so the value stays stable
// across restarts on the same installation.
//
// The fallback identifier is advisory, not cryptographically device-bound:
// it binds a license to an installation profile, not to silicon. Callers
// must not treat a fingerprint match as proof of hardware identity.
type FingerprintProvider struct {
	seedFile string
	logger   *slog.Logger

	mu     sync.Mutex
	cached string
}

// NewFingerprintProvider creates a provider persisting its seed at seedFile
func NewFingerprintProvider(seedFile string, logger *slog.Logger) *FingerprintProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &FingerprintProvider{
		seedFile: seedFile,
		logger:   logger.With(slog.String("component", "fingerprint")),
	}
}

// Fingerprint returns the device fingerprint, formatted as six
// colon-separated uppercase hex byte pairs (AA:BB:CC:DD:EE:FF).
// Repeated calls return the identical value.
func (p *FingerprintProvider) Fingerprint(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != "" {
		return p.cached, nil
	}

	if mac, err := p.hardwareAddress(); err == nil {
		p.cached = mac
		return mac, nil
	}

	fp, err := p.derivedFingerprint(ctx)
	if err != nil {
		return "", err
	}
	p.cached = fp
	return fp, nil
}

// ClearCache drops the in-memory fingerprint. The persisted seed survives,
// so the next call regenerates the same value.
func (p *FingerprintProvider) ClearCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cached = ""
}

// hardwareAddress returns the first usable interface MAC address
func (p *FingerprintProvider) hardwareAddress() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to get network interfaces: %w", err)
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); usableMAC(mac) {
			p.logger.Debug("hardware address found",
				slog.String("interface", iface.Name),
			)
			return strings.ToUpper(mac), nil
		}
	}

	// Fallback: any interface with a MAC, even if down
	for _, iface := range interfaces {
		if mac := iface.HardwareAddr.String(); usableMAC(mac) {
			p.logger.Debug("using fallback hardware address",
				slog.String("interface", iface.Name),
			)
			return strings.ToUpper(mac), nil
		}
	}

	return "", fmt.Errorf("no usable hardware address found")
}

func usableMAC(mac string) bool {
	return mac != "" && mac != "00:00:00:00:00:00" && len(mac) == 17
}

// derivedFingerprint hashes environment signals plus the persisted seed.
// The strong SHA-256 path runs under the caller's deadline; if it cannot
// complete in time a weaker FNV digest substitutes so fingerprinting never
// stalls application launch. Degraded mode is explicit in the logs.
func (p *FingerprintProvider) derivedFingerprint(ctx context.Context) (string, error) {
	seed, err := p.loadOrCreateSeed()
	if err != nil {
		return "", err
	}

	signals := p.environmentSignals()
	combined := append([]byte(strings.Join(signals, "|")+"|"), seed...)

	type result struct{ digest string }
	done := make(chan result, 1)
	go func() {
		sum := sha256.Sum256(combined)
		done <- result{digest: hex.EncodeToString(sum[:])}
	}()

	select {
	case r := <-done:
		return formatAsMAC(r.digest), nil
	case <-ctx.Done():
		// Degraded mode: non-cryptographic digest, bounded time. Weaker
		// than the SHA-256 path and intentionally visible in telemetry.
		h := fnv.New64a()
		h.Write(combined)
		digest := fmt.Sprintf("%016x", h.Sum64())
		p.logger.Warn("fingerprint generated in degraded mode",
			slog.String("reason", ctx.Err().Error()),
			slog.String("hash", "fnv64a"),
		)
		return formatAsMAC(digest), nil
	}
}

// environmentSignals collects the stable per-profile signals that feed the
// derived fingerprint
func (p *FingerprintProvider) environmentSignals() []string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown-host"
	}
	zone, _ := time.Now().Zone()

	return []string{
		strings.ToLower(strings.TrimSpace(hostname)),
		runtime.GOOS,
		runtime.GOARCH,
		fmt.Sprintf("cpus=%d", runtime.NumCPU()),
		"tz=" + zone,
		"lang=" + os.Getenv("LANG"),
	}
}

// loadOrCreateSeed reads the persisted random seed, generating and storing
// one on first use
func (p *FingerprintProvider) loadOrCreateSeed() ([]byte, error) {
	if data, err := os.ReadFile(p.seedFile); err == nil && len(data) >= 16 {
		return data, nil
	}

	seed := make([]byte, 16)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("failed to generate fingerprint seed: %w", err)
	}
	if err := os.WriteFile(p.seedFile, seed, 0o600); err != nil {
		return nil, fmt.Errorf("failed to persist fingerprint seed: %w", err)
	}
	p.logger.Info("device fingerprint seed generated",
		slog.String("path", p.seedFile),
	)
	return seed, nil
}

// formatAsMAC takes the first 12 hex characters of digest and formats them
// as six colon-separated uppercase byte pairs
func formatAsMAC(digest string) string {
	d := strings.ToUpper(digest)
	if len(d) < 12 {
		d = d + strings.Repeat("0", 12-len(d))
	}
	pairs := make([]string, 6)
	for i := 0; i < 6; i++ {
		pairs[i] = d[i*2 : i*2+2]
	}
	return strings.Join(pairs, ":")
}
