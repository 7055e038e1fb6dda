package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SignedFields is the exact field subset covered by a session signature.
// Metadata that changes on routine reads (last validated time, validation
// counter) is deliberately outside this struct so updating it does not
// invalidate the signature.
//
// Canonical form is the JSON encoding of this struct: encoding/json emits
// struct fields in declaration order and int64 timestamps have a single
// decimal representation, so the byte string is identical on every platform.
// Timestamps are epoch milliseconds.
type SignedFields struct {
	UserID    string  `json:"userId"`
	Email     string  `json:"email"`
	Role      string  `json:"role"`
	StoreID   *string `json:"storeId"`
	IssuedAt  int64   `json:"issuedAt"`
	ExpiresAt int64   `json:"expiresAt"`
}

// Canonicalize serializes the signed field subset to its canonical byte form
func Canonicalize(fields SignedFields) ([]byte, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize signed fields: %w", err)
	}
	return data, nil
}

// Sign computes the hex-encoded HMAC-SHA256 of the canonical form of fields
func Sign(fields SignedFields, secret []byte) (string, error) {
	data, err := Canonicalize(fields)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether signature matches the HMAC of fields under secret.
// Comparison is constant-time.
func Verify(fields SignedFields, signature string, secret []byte) bool {
	expected, err := Sign(fields, secret)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// SecureCompare performs constant-time comparison to prevent timing attacks
func SecureCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
