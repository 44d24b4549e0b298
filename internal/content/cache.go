package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sys/unix"

	"mediavault/internal/logging"
)

// freeSpaceFloor is the minimum free-space ratio tolerated before pruning (0.10 => 90% full).
const freeSpaceFloor = 0.10

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// Cache bounds the decrypted copies produced by Materialize.
type Cache struct {
	root     string
	maxBytes int64
	logger   *slog.Logger
	statfs   statfsFunc
}

// CacheStats describes current cache usage.
type CacheStats struct {
	Entries    int   `json:"entries"`
	TotalBytes int64 `json:"total_bytes"`
	MaxBytes   int64 `json:"max_bytes"`
}

// NewCache returns a cache rooted at root holding at most maxBytes.
func NewCache(root string, maxBytes int64, logger *slog.Logger) *Cache {
	return &Cache{
		root:     root,
		maxBytes: maxBytes,
		logger:   logging.NewComponentLogger(logger, "cache"),
		statfs:   realStatfs,
	}
}

// Root returns the cache directory.
func (c *Cache) Root() string { return c.root }

func (c *Cache) pathFor(ref EncryptedRef) string {
	if ref == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ref))
	return filepath.Join(c.root, hex.EncodeToString(sum[:8])+"-"+LogicalName(ref))
}

func (c *Cache) touch(path string) {
	now := time.Now()
	_ = os.Chtimes(path, now, now)
}

// Prune removes the oldest entries until the cache fits its size and
// free-space limits. keepPath is never removed.
func (c *Cache) Prune(ctx context.Context, keepPath string) error {
	entries, total, err := c.scan()
	if err != nil {
		return err
	}
	for len(entries) > 0 {
		freeOK, err := c.freeSpaceOK()
		if err != nil {
			return err
		}
		if total <= c.maxBytes && freeOK {
			return nil
		}
		oldest := entries[0]
		entries = entries[1:]
		if oldest.path == keepPath {
			continue
		}
		if err := os.Remove(oldest.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("cache: remove %q: %w", oldest.path, err)
		}
		c.logger.DebugContext(ctx, "evicted cache entry",
			logging.String("cache_file", oldest.path),
			logging.Int64("entry_size_bytes", oldest.size),
		)
		total -= oldest.size
	}
	return nil
}

// Clear removes every cached plaintext file.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	entries, _, err := c.scan()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if err := os.Remove(entry.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("cache: remove %q: %w", entry.path, err)
		}
		removed++
	}
	c.logger.InfoContext(ctx, "cache cleared", logging.Int("removed", removed))
	return removed, nil
}

// Stats returns current cache usage.
func (c *Cache) Stats() (CacheStats, error) {
	entries, total, err := c.scan()
	if err != nil {
		return CacheStats{}, err
	}
	return CacheStats{Entries: len(entries), TotalBytes: total, MaxBytes: c.maxBytes}, nil
}

type cacheEntry struct {
	path    string
	size    int64
	modTime time.Time
}

func (c *Cache) scan() ([]cacheEntry, int64, error) {
	dirEntries, err := os.ReadDir(c.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("cache: list root: %w", err)
	}
	entries := make([]cacheEntry, 0, len(dirEntries))
	var total int64
	for _, entry := range dirEntries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		total += info.Size()
		entries = append(entries, cacheEntry{
			path:    filepath.Join(c.root, entry.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime.Before(entries[j].modTime)
	})
	return entries, total, nil
}

func (c *Cache) freeSpaceOK() (bool, error) {
	total, free, err := c.statfs(c.root)
	if err != nil {
		return false, fmt.Errorf("cache: statfs: %w", err)
	}
	if total == 0 {
		return true, nil
	}
	return float64(free)/float64(total) >= freeSpaceFloor, nil
}

func realStatfs(path string) (uint64, uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	return st.Blocks * uint64(st.Bsize), st.Bavail * uint64(st.Bsize), nil
}
