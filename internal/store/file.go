package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"invodesk/internal/security"
)

// FileStore persists one encrypted file per record key under a data
// directory. Writes are atomic (temp file + rename) so a caller abandoning
// an operation never leaves a half-written record behind; concurrent
// writers are not coordinated and last-writer-wins, which is acceptable for
// a single-user desktop installation.
type FileStore struct {
	dir        string
	passphrase []byte
	logger     *slog.Logger
}

// NewFileStore creates a FileStore rooted at dir, encrypting records with
// the given passphrase.
func NewFileStore(dir string, passphrase []byte, logger *slog.Logger) (*FileStore, error) {
	if len(passphrase) < 16 {
		return nil, errors.New("store passphrase must be at least 16 bytes")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{
		dir:        dir,
		passphrase: passphrase,
		logger:     logger.With(slog.String("component", "file_store")),
	}, nil
}

// Read loads and decrypts the record under key. A corrupted or undecryptable
// file reads as ErrNotFound, never as a crash.
func (s *FileStore) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", key, err)
	}

	plaintext, err := security.DecryptRecord(data, s.passphrase)
	if err != nil {
		s.logger.WarnContext(ctx, "record failed decryption, treating as absent",
			slog.String("key", key),
		)
		return nil, ErrNotFound
	}
	return plaintext, nil
}

// Write encrypts and atomically persists the record under key
func (s *FileStore) Write(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	encrypted, err := security.EncryptRecord(data, s.passphrase)
	if err != nil {
		return fmt.Errorf("failed to encrypt record %s: %w", key, err)
	}

	target := s.path(key)
	tmp, err := os.CreateTemp(s.dir, "."+filepath.Base(target)+".tmp-")
	if err != nil {
		return fmt.Errorf("failed to stage record %s: %w", key, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(encrypted); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write record %s: %w", key, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod record %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to flush record %s: %w", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("failed to commit record %s: %w", key, err)
	}
	return nil
}

// Delete removes the record under key; deleting an absent record is a no-op
func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete record %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) path(key string) string {
	// Keys are fixed identifiers, but sanitize anyway
	safe := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, strings.ToLower(key))
	return filepath.Join(s.dir, safe+".dat")
}
