package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"invodesk/internal/security"
)

// RemoteValidator is the server-side session check. The remote endpoint
// recomputes the signature over the submitted fields with a secret that is
// never shipped to the client, which defeats an attacker who extracted the
// client-side secret from the installed bundle and re-signed an edited
// record.
type RemoteValidator interface {
	// Online reports whether a validation attempt is worth making
	Online() bool
	// Validate returns the server's verdict. A transport failure is an
	// error, distinct from a definitive valid=false verdict.
	Validate(ctx context.Context, fields security.SignedFields, clientSignature string, clientTime time.Time) (bool, error)
}

// ValidationRequest is the wire payload of POST /api/auth/validate-session
type ValidationRequest struct {
	SessionData     security.SignedFields `json:"sessionData"`
	ClientSignature string                `json:"clientSignature"`
	ClientTime      int64                 `json:"clientTime"` // epoch ms
}

// ValidationResponse is the endpoint's verdict
type ValidationResponse struct {
	Valid bool `json:"valid"`
}

// HTTPValidator implements RemoteValidator against the remote validation
// endpoint with a bounded timeout.
type HTTPValidator struct {
	endpoint string
	client   *http.Client
	online   func() bool
	logger   *slog.Logger
}

// NewHTTPValidator creates a validator for the given endpoint. timeout
// bounds each round-trip (3s in production). A nil probe assumes online.
func NewHTTPValidator(endpoint string, timeout time.Duration, probe func() bool, logger *slog.Logger) *HTTPValidator {
	if probe == nil {
		probe = func() bool { return true }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPValidator{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		online:   probe,
		logger:   logger.With(slog.String("component", "session_validator")),
	}
}

// Online reports connectivity per the configured probe
func (v *HTTPValidator) Online() bool {
	return v.online()
}

// Validate submits the signed fields, client signature and client time for
// server-side recomputation.
func (v *HTTPValidator) Validate(ctx context.Context, fields security.SignedFields, clientSignature string, clientTime time.Time) (bool, error) {
	payload, err := json.Marshal(ValidationRequest{
		SessionData:     fields,
		ClientSignature: clientSignature,
		ClientTime:      clientTime.UnixMilli(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to encode validation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("failed to build validation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("validation endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("validation endpoint returned status %d", resp.StatusCode)
	}

	var verdict ValidationResponse
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return false, fmt.Errorf("failed to decode validation response: %w", err)
	}
	return verdict.Valid, nil
}
