package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	ContentDir string `toml:"content_dir"`
	CacheDir   string `toml:"cache_dir"`
	LogDir     string `toml:"log_dir"`
}

// Cache bounds the decrypted materialization cache.
type Cache struct {
	MaxMiB int `toml:"max_mib"`
}

// Workflow contains configuration for daemon timing and concurrency.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	UploadTimeout      int `toml:"upload_timeout"`
	UploadWorkers      int `toml:"upload_workers"`
	CleanupDelay       int `toml:"cleanup_delay"`
	ReconcileInterval  int `toml:"reconcile_interval"`
	ProgressIntervalMS int `toml:"progress_interval_ms"`
}

// Upload configures the upload driver and its circuit breaker.
type Upload struct {
	// MirrorDir enables the directory mirror uploader for every Space kind.
	MirrorDir       string `toml:"mirror_dir"`
	BreakerFailures int    `toml:"breaker_failures"`
	BreakerCooldown int    `toml:"breaker_cooldown"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Uploads        bool   `toml:"uploads"`
	Errors         bool   `toml:"errors"`
}

// Metrics configures the Prometheus endpoint served by the daemon.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for mediavault.
//
// Configuration sections by subsystem:
//   - Paths: database, sealed content, cache, and log directories
//   - Cache: materialization cache size
//   - Workflow: daemon polling intervals, upload timeout and worker count
//   - Upload: uploader selection and circuit breaker
//   - Notifications: ntfy push notification settings
//   - Metrics: Prometheus listener
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Cache         Cache         `toml:"cache"`
	Workflow      Workflow      `toml:"workflow"`
	Upload        Upload        `toml:"upload"`
	Notifications Notifications `toml:"notifications"`
	Metrics       Metrics       `toml:"metrics"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mediavault.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for vault operation. The
// data and content directories are created owner-only because they hold the
// device key and sealed payloads.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.ContentDir, c.KeyDir()} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	for _, dir := range []string{c.Paths.CacheDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Upload.MirrorDir) != "" {
		if err := os.MkdirAll(c.Upload.MirrorDir, 0o755); err != nil {
			return fmt.Errorf("create mirror directory %q: %w", c.Upload.MirrorDir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "vault.db")
}

// KeyDir returns the directory holding the device key.
func (c *Config) KeyDir() string {
	return filepath.Join(c.Paths.DataDir, "keys")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "mediavault.lock")
}

// CacheMaxBytes converts the configured cache size to bytes.
func (c *Config) CacheMaxBytes() int64 {
	return int64(c.Cache.MaxMiB) * 1024 * 1024
}

// UploadTimeout returns the per-attempt upload deadline.
func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.Workflow.UploadTimeout) * time.Second
}

// CleanupDelay returns how long the reconciler waits before re-checking a
// Collection that may have become empty.
func (c *Config) CleanupDelay() time.Duration {
	return time.Duration(c.Workflow.CleanupDelay) * time.Second
}

// ReconcileInterval returns the period of the full emptiness sweep.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Workflow.ReconcileInterval) * time.Second
}

// ProgressInterval returns the minimum spacing between published progress events per media.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.Workflow.ProgressIntervalMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "mediavault", "materialized")
	}
	return "~/.cache/mediavault/materialized"
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
