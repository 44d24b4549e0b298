package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if c.Cache.MaxMiB <= 0 {
		return errors.New("cache.max_mib must be positive")
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	content := filepath.Clean(c.Paths.ContentDir)
	cache := filepath.Clean(c.Paths.CacheDir)
	if content == cache {
		return errors.New("paths.cache_dir must differ from paths.content_dir")
	}
	if rel, err := filepath.Rel(content, cache); err == nil && !strings.HasPrefix(rel, "..") {
		return errors.New("paths.cache_dir must not live inside paths.content_dir")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.QueuePollInterval <= 0 {
		return errors.New("workflow.queue_poll_interval must be positive")
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		return errors.New("workflow.error_retry_interval must be positive")
	}
	if c.Workflow.UploadTimeout <= 0 {
		return errors.New("workflow.upload_timeout must be positive")
	}
	if c.Workflow.UploadWorkers <= 0 {
		return errors.New("workflow.upload_workers must be positive")
	}
	if c.Workflow.ReconcileInterval <= 0 {
		return errors.New("workflow.reconcile_interval must be positive")
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Bind == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Metrics.Bind); err != nil {
		return fmt.Errorf("metrics.bind: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
