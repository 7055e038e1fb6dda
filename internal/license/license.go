// Package license implements commercial license activation, encrypted local
// storage and launch-time revalidation for an offline-first installation.
//
// Trust boundary: the device fingerprint binding is advisory, not
// cryptographically enforced, and a license revoked while the device is
// offline keeps working until the next successful online check. Both are
// accepted consequences of supporting extended offline operation.
package license

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the license lifecycle state as reported by the authority
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// License key format: INV-XXXX-XXXX-XXXX (prefix + 12 alphanumerics)
const (
	keyPrefix    = "INV"
	keyBodyChars = 12
)

// Info is the persisted license record, stored encrypted at rest
type Info struct {
	LicenseKey        string    `json:"licenseKey"`
	DeviceFingerprint string    `json:"deviceFingerprint"`
	ClientName        string    `json:"clientName"`
	ActivatedOn       time.Time `json:"activatedOn"`
	ExpiresOn         time.Time `json:"expiresOn"`
	Status            Status    `json:"status"`
}

// DaysLeft returns whole days until expiry relative to now, negative when
// already expired
func (i *Info) DaysLeft(now time.Time) int {
	return int(i.ExpiresOn.Sub(now).Hours() / 24)
}

// ExpiredAt reports whether the license is past its expiry at now
func (i *Info) ExpiredAt(now time.Time) bool {
	return i.ExpiresOn.Before(now)
}

// LaunchStatus is the outcome of the launch-time license check
type LaunchStatus struct {
	Valid              bool  `json:"valid"`
	RequiresActivation bool  `json:"requires_activation"`
	Offline            bool  `json:"offline"` // decided without a successful online check
	Info               *Info `json:"info,omitempty"`
}

// RenewalInfo describes how urgently the license needs renewing
type RenewalInfo struct {
	DaysLeft     int    `json:"days_left"`
	NeedsRenewal bool   `json:"needs_renewal"`
	IsExpired    bool   `json:"is_expired"`
	Urgency      string `json:"urgency"` // low|medium|high|critical
	Message      string `json:"message"`
}

// ValidateKeyFormat checks the scratch-card style key format, accepting
// dashed and undashed input
func ValidateKeyFormat(licenseKey string) error {
	clean := NormalizeKey(licenseKey)
	if !strings.HasPrefix(clean, keyPrefix) {
		return fmt.Errorf("license key must start with %q", keyPrefix)
	}
	if len(clean) != len(keyPrefix)+keyBodyChars {
		return fmt.Errorf("license key must be %d characters long excluding dashes", len(keyPrefix)+keyBodyChars)
	}
	for _, char := range clean[len(keyPrefix):] {
		if !(char >= 'A' && char <= 'Z' || char >= '0' && char <= '9') {
			return fmt.Errorf("license key must contain only letters and digits")
		}
	}
	return nil
}

// NormalizeKey strips dashes and spaces and upper-cases the key
func NormalizeKey(licenseKey string) string {
	clean := strings.NewReplacer("-", "", " ", "").Replace(licenseKey)
	return strings.ToUpper(clean)
}

// FormatKey renders a normalized key with display dashes (INV-XXXX-XXXX-XXXX)
func FormatKey(licenseKey string) string {
	clean := NormalizeKey(licenseKey)
	if len(clean) != len(keyPrefix)+keyBodyChars {
		return clean
	}
	return fmt.Sprintf("%s-%s-%s-%s", clean[:3], clean[3:7], clean[7:11], clean[11:15])
}

// MaskKey masks a license key for logs and audit trails
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

var errMalformed = errors.New("malformed license record")

// decodeInfo deserializes a stored record with strict validation; unknown
// and missing fields are rejected rather than silently defaulted.
func decodeInfo(data []byte) (*Info, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var info Info
	if err := dec.Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}

	switch {
	case info.LicenseKey == "":
		return nil, fmt.Errorf("%w: missing licenseKey", errMalformed)
	case info.DeviceFingerprint == "":
		return nil, fmt.Errorf("%w: missing deviceFingerprint", errMalformed)
	case info.ExpiresOn.IsZero():
		return nil, fmt.Errorf("%w: missing expiresOn", errMalformed)
	}
	switch info.Status {
	case StatusActive, StatusExpired, StatusRevoked:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", errMalformed, info.Status)
	}
	return &info, nil
}

func encodeInfo(info *Info) ([]byte, error) {
	return json.Marshal(info)
}
