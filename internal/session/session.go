// Package session implements the local authentication session: a signed
// record proving which user is signed in and until when. The record lives in
// the local encrypted store; an HMAC over the identity fields makes any
// direct edit detectable without a trusted always-on server.
package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"invodesk/internal/security"
)

// Data is the identity payload supplied by the external auth collaborator
// on sign-in.
type Data struct {
	UserID  string  `json:"userId"`
	Email   string  `json:"email"`
	Role    string  `json:"role"`
	StoreID *string `json:"storeId"`
}

// Session is the persisted session record. The identity fields plus the
// issue/expiry timestamps are covered by Signature; LastValidated and
// ValidationCount are bookkeeping updated on every successful read and are
// deliberately outside the signed subset.
type Session struct {
	UserID          string  `json:"userId"`
	Email           string  `json:"email"`
	Role            string  `json:"role"`
	StoreID         *string `json:"storeId"`
	IssuedAt        int64   `json:"issuedAt"`  // epoch ms
	ExpiresAt       int64   `json:"expiresAt"` // epoch ms
	Signature       string  `json:"signature"`
	LastValidated   int64   `json:"lastValidated"` // epoch ms
	ValidationCount int64   `json:"validationCount"`
}

// SignedFields extracts the exact subset covered by the signature
func (s *Session) SignedFields() security.SignedFields {
	return security.SignedFields{
		UserID:    s.UserID,
		Email:     s.Email,
		Role:      s.Role,
		StoreID:   s.StoreID,
		IssuedAt:  s.IssuedAt,
		ExpiresAt: s.ExpiresAt,
	}
}

// ExpiresAtTime returns the expiry as a time.Time
func (s *Session) ExpiresAtTime() time.Time {
	return time.UnixMilli(s.ExpiresAt)
}

// errMalformed marks a record that fails strict decoding; callers treat it
// exactly like a tampered record.
var errMalformed = errors.New("malformed session record")

// decodeSession deserializes a stored record with strict validation:
// unknown fields and missing required fields are rejected rather than
// silently defaulted.
func decodeSession(data []byte) (*Session, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var s Session
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}

	switch {
	case s.UserID == "":
		return nil, fmt.Errorf("%w: missing userId", errMalformed)
	case s.Email == "":
		return nil, fmt.Errorf("%w: missing email", errMalformed)
	case s.Role == "":
		return nil, fmt.Errorf("%w: missing role", errMalformed)
	case s.Signature == "":
		return nil, fmt.Errorf("%w: missing signature", errMalformed)
	case s.IssuedAt <= 0 || s.ExpiresAt <= 0:
		return nil, fmt.Errorf("%w: invalid timestamps", errMalformed)
	}
	return &s, nil
}

func encodeSession(s *Session) ([]byte, error) {
	return json.Marshal(s)
}
