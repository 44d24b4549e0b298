package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"mediavault/internal/config"
	"mediavault/internal/logging"
)

// SealedSuffix marks an encrypted payload file.
const SealedSuffix = ".enc"

// EncryptedRef is the absolute path of a sealed payload.
type EncryptedRef string

// Sealer is the subset of the cipher service the store needs.
type Sealer interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, blob []byte) ([]byte, error)
}

// Info describes a freshly sealed payload.
type Info struct {
	Name          string
	ContentLength int64
	Hash          string
	MimeType      string
}

// PlaintextHandle points at a decrypted copy in the cache. The file can be
// evicted at any time; reopen through Materialize when it is gone.
type PlaintextHandle struct {
	Path string
	Size int64
}

// Store maps sealed payload files to and from plaintext.
type Store struct {
	sealer     Sealer
	contentDir string
	cache      *Cache
	logger     *slog.Logger
}

// NewStore builds a content store from configuration.
func NewStore(cfg *config.Config, sealer Sealer, logger *slog.Logger) *Store {
	logger = logging.NewComponentLogger(logger, "content")
	return &Store{
		sealer:     sealer,
		contentDir: cfg.Paths.ContentDir,
		cache:      NewCache(cfg.Paths.CacheDir, cfg.CacheMaxBytes(), logger),
		logger:     logger,
	}
}

// IsSealed reports whether path follows the sealed naming convention.
func IsSealed(path string) bool {
	return strings.HasSuffix(path, SealedSuffix)
}

// LogicalName strips the sealed suffix from a ref's base name.
func LogicalName(ref EncryptedRef) string {
	return strings.TrimSuffix(filepath.Base(string(ref)), SealedSuffix)
}

// ContentDir returns the permanent sealed content root.
func (s *Store) ContentDir() string { return s.contentDir }

// Cache exposes the materialization cache.
func (s *Store) Cache() *Cache { return s.cache }

// StoreNew seals plaintextPath into <name>.enc beside it and removes the
// plaintext. A path that is already sealed is returned unchanged. An existing
// <name>.enc is never replaced; the plaintext then stays where it is.
func (s *Store) StoreNew(ctx context.Context, plaintextPath string) (EncryptedRef, error) {
	if IsSealed(plaintextPath) {
		if _, err := os.Stat(plaintextPath); err != nil {
			return "", classifyReadErr(plaintextPath, err)
		}
		return EncryptedRef(plaintextPath), nil
	}

	plaintext, err := os.ReadFile(plaintextPath)
	if err != nil {
		return "", classifyReadErr(plaintextPath, err)
	}
	sealed, err := s.sealer.Encrypt(ctx, plaintext)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrEncryptionFailed, plaintextPath, err)
	}

	target := plaintextPath + SealedSuffix
	if err := writeFileExclusive(target, sealed, 0o600); err != nil {
		return "", err
	}
	if err := os.Remove(plaintextPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		// Leave exactly one copy behind: the original plaintext.
		_ = os.Remove(target)
		return "", fmt.Errorf("%w: remove plaintext %s: %v", ErrIOFailure, plaintextPath, err)
	}
	s.logger.DebugContext(ctx, "sealed file in place",
		logging.String("source_file", plaintextPath),
		logging.Int("sealed_bytes", len(sealed)),
	)
	return EncryptedRef(target), nil
}

// Describe reads a plaintext file and reports its size, hash and MIME type.
func (s *Store) Describe(ctx context.Context, plaintextPath string) (Info, error) {
	plaintext, err := os.ReadFile(plaintextPath)
	if err != nil {
		return Info{}, classifyReadErr(plaintextPath, err)
	}
	return describe(plaintextPath, plaintext), nil
}

func describe(path string, plaintext []byte) Info {
	sum := sha256.Sum256(plaintext)
	return Info{
		Name:          filepath.Base(path),
		ContentLength: int64(len(plaintext)),
		Hash:          hex.EncodeToString(sum[:]),
		MimeType:      detectMimeType(path, plaintext),
	}
}

// Ingest seals an external file into a fresh directory under the content
// root. The source is left untouched and no plaintext is written into the
// content root.
func (s *Store) Ingest(ctx context.Context, srcPath string) (EncryptedRef, Info, error) {
	var info Info
	if IsSealed(srcPath) {
		return "", info, fmt.Errorf("%w: %s is already sealed", ErrEncryptionFailed, srcPath)
	}
	plaintext, err := os.ReadFile(srcPath)
	if err != nil {
		return "", info, classifyReadErr(srcPath, err)
	}

	info = describe(srcPath, plaintext)

	sealed, err := s.sealer.Encrypt(ctx, plaintext)
	if err != nil {
		return "", info, fmt.Errorf("%w: %s: %w", ErrEncryptionFailed, srcPath, err)
	}

	dir := filepath.Join(s.contentDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", info, fmt.Errorf("%w: create %s: %v", ErrIOFailure, dir, err)
	}
	target := filepath.Join(dir, info.Name+SealedSuffix)
	if err := writeFileAtomic(target, sealed, 0o600); err != nil {
		_ = os.Remove(dir)
		return "", info, err
	}
	s.logger.InfoContext(ctx, "ingested file",
		logging.String("source_file", srcPath),
		logging.String("sealed_file", target),
		logging.Int64("content_length", info.ContentLength),
	)
	return EncryptedRef(target), info, nil
}

// Materialize decrypts ref into the cache and returns a handle to the copy.
// A cached copy that is still present is reused.
func (s *Store) Materialize(ctx context.Context, ref EncryptedRef) (PlaintextHandle, error) {
	target := s.cache.pathFor(ref)
	if info, err := os.Stat(target); err == nil && info.Mode().IsRegular() {
		s.cache.touch(target)
		return PlaintextHandle{Path: target, Size: info.Size()}, nil
	}

	sealed, err := os.ReadFile(string(ref))
	if err != nil {
		return PlaintextHandle{}, classifyReadErr(string(ref), err)
	}
	plaintext, err := s.sealer.Decrypt(ctx, sealed)
	if err != nil {
		return PlaintextHandle{}, fmt.Errorf("%w: %s: %w", ErrDecryptionFailed, ref, err)
	}
	if err := os.MkdirAll(s.cache.root, 0o700); err != nil {
		return PlaintextHandle{}, fmt.Errorf("%w: create cache dir: %v", ErrIOFailure, err)
	}
	if err := writeFileAtomic(target, plaintext, 0o600); err != nil {
		return PlaintextHandle{}, err
	}
	if err := s.cache.Prune(ctx, target); err != nil {
		s.logger.WarnContext(ctx, "cache prune failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "cache_prune_failed"),
			logging.String(logging.FieldErrorHint, "check cache directory permissions"),
		)
	}
	return PlaintextHandle{Path: target, Size: int64(len(plaintext))}, nil
}

// Delete removes a sealed payload and any cached plaintext for it. Failures
// are logged; a missing file counts as deleted.
func (s *Store) Delete(ctx context.Context, ref EncryptedRef) {
	path := string(ref)
	if strings.TrimSpace(path) == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.WarnWithContext(ctx, s.logger, "failed to delete sealed file", "content_delete_failed",
			logging.String("sealed_file", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the file manually"),
			logging.String(logging.FieldImpact, "orphaned sealed file remains on disk"),
		)
	}
	if cached := s.cache.pathFor(ref); cached != "" {
		_ = os.Remove(cached)
	}
	// Ingest gives every payload its own directory; drop it once empty.
	dir := filepath.Dir(path)
	if dir != s.contentDir && isWithin(s.contentDir, dir) {
		_ = os.Remove(dir)
	}
}

func classifyReadErr(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrSourceMissing, path)
	}
	return fmt.Errorf("%w: read %s: %v", ErrIOFailure, path, err)
}

// writeFileAtomic replaces path with data through a synced temp file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmpPath, err := writeTemp(path, data, perm)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: rename to %s: %v", ErrIOFailure, path, err)
	}
	return nil
}

// writeFileExclusive is writeFileAtomic that refuses to replace an existing
// file. The error wraps both ErrIOFailure and ErrTargetExists.
func writeFileExclusive(path string, data []byte, perm os.FileMode) error {
	tmpPath, err := writeTemp(path, data, perm)
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath)
	if err := os.Link(tmpPath, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %w: %s", ErrIOFailure, ErrTargetExists, path)
		}
		return fmt.Errorf("%w: link %s: %v", ErrIOFailure, path, err)
	}
	return nil
}

func writeTemp(path string, data []byte, perm os.FileMode) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: create temp for %s: %v", ErrIOFailure, path, err)
	}
	tmpPath := tmp.Name()
	fail := func(op string, err error) (string, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("%w: %s %s: %v", ErrIOFailure, op, tmpPath, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fail("chmod", err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fail("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("%w: close %s: %v", ErrIOFailure, tmpPath, err)
	}
	return tmpPath, nil
}

func detectMimeType(path string, data []byte) string {
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); byExt != "" {
		return byExt
	}
	return http.DetectContentType(data)
}

func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}
