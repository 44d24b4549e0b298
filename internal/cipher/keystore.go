package cipher

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"mediavault/internal/logging"
)

// MasterKeySize is the length of the persisted device key.
const MasterKeySize = 32

const keyFileName = "vault.key"

// KeyStore yields the device master key, creating it on first use.
type KeyStore interface {
	LoadOrCreate(ctx context.Context) ([]byte, error)
}

// FileKeyStore keeps the master key in an owner-only file. Creation is
// guarded by a lock file so concurrent processes agree on one key.
type FileKeyStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileKeyStore returns a key store rooted at dir.
func NewFileKeyStore(dir string, logger *slog.Logger) *FileKeyStore {
	return &FileKeyStore{dir: dir, logger: logging.NewComponentLogger(logger, "keystore")}
}

// Path returns the key file location.
func (s *FileKeyStore) Path() string {
	return filepath.Join(s.dir, keyFileName)
}

// LoadOrCreate reads the key, generating and persisting a fresh one when absent.
func (s *FileKeyStore) LoadOrCreate(ctx context.Context) ([]byte, error) {
	if key, err := s.read(); err == nil {
		return key, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create key dir: %v", ErrKeyUnavailable, err)
	}
	lock := flock.New(s.Path() + ".lock")
	locked, err := lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("%w: lock key file: %v", ErrKeyUnavailable, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: key file lock not acquired", ErrKeyUnavailable)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("failed to release key lock", logging.Error(err))
		}
	}()

	// Another process may have won the race while we waited.
	if key, err := s.read(); err == nil {
		return key, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	key := make([]byte, MasterKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("%w: generate key: %v", ErrKeyUnavailable, err)
	}
	tmp, err := os.CreateTemp(s.dir, keyFileName+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("%w: create key file: %v", ErrKeyUnavailable, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("%w: chmod key file: %v", ErrKeyUnavailable, err)
	}
	if _, err := tmp.Write(key); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("%w: write key file: %v", ErrKeyUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("%w: sync key file: %v", ErrKeyUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("%w: close key file: %v", ErrKeyUnavailable, err)
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		return nil, fmt.Errorf("%w: install key file: %v", ErrKeyUnavailable, err)
	}
	s.logger.InfoContext(ctx, "device key created", logging.String("path", s.Path()))
	return key, nil
}

func (s *FileKeyStore) read() ([]byte, error) {
	key, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: read key file: %v", ErrKeyUnavailable, err)
	}
	if len(key) != MasterKeySize {
		return nil, fmt.Errorf("%w: key file has %d bytes, want %d", ErrKeyUnavailable, len(key), MasterKeySize)
	}
	return key, nil
}
