// Package store provides the local persisted state of the trust core: a
// small encrypted key/record store. Encryption at rest is not a security
// boundary against an attacker with the binary and full disk access, but
// it raises the bar against casual inspection and editing of the local
// files.
package store

import (
	"context"
	"errors"
)

// ErrNotFound indicates no record exists under the requested key
var ErrNotFound = errors.New("record not found")

// Fixed record keys. Exactly one session record exists per installation.
const (
	SessionKey = "session"
	LicenseKey = "license"
)

// Store is the read/write/delete contract consumed by the session and
// license managers. Implementations must treat an unreadable or corrupted
// record as ErrNotFound rather than surfacing a decode failure; callers
// uniformly fail closed on absence.
type Store interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}
