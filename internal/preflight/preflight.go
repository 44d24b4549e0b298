package preflight

import (
	"context"
	"strings"

	"mediavault/internal/cipher"
	"mediavault/internal/config"
	"mediavault/internal/logging"
	"mediavault/internal/vault"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// store may be nil when the database could not be opened.
func RunAll(ctx context.Context, cfg *config.Config, store *vault.Store) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Content directory", cfg.Paths.ContentDir),
		CheckDirectoryAccess("Cache directory", cfg.Paths.CacheDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckKeyFile(cipher.NewFileKeyStore(cfg.KeyDir(), logging.NewNop()).Path()),
		CheckDatabase(ctx, store),
	}

	if cfg.Upload.MirrorDir != "" {
		results = append(results, CheckDirectoryAccess("Mirror directory", cfg.Upload.MirrorDir))
	}
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		results = append(results, CheckNtfy(ctx, cfg.Notifications.NtfyTopic))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}
