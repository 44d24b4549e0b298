package config

const (
	defaultConfigPath          = "~/.config/mediavault/config.toml"
	defaultDataDir             = "~/.local/share/mediavault"
	defaultContentDir          = "~/.local/share/mediavault/content"
	defaultLogDir              = "~/.local/share/mediavault/logs"
	defaultCacheMaxMiB         = 512
	defaultQueuePollInterval   = 5
	defaultErrorRetryInterval  = 10
	defaultUploadTimeout       = 900
	defaultUploadWorkers       = 2
	defaultCleanupDelay        = 2
	defaultReconcileInterval   = 300
	defaultProgressIntervalMS  = 250
	defaultBreakerFailures     = 5
	defaultBreakerCooldown     = 60
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultNtfyTopicEnvVarName = "MEDIAVAULT_NTFY_TOPIC"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			ContentDir: defaultContentDir,
			CacheDir:   defaultCacheDir(),
			LogDir:     defaultLogDir,
		},
		Cache: Cache{
			MaxMiB: defaultCacheMaxMiB,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			UploadTimeout:      defaultUploadTimeout,
			UploadWorkers:      defaultUploadWorkers,
			CleanupDelay:       defaultCleanupDelay,
			ReconcileInterval:  defaultReconcileInterval,
			ProgressIntervalMS: defaultProgressIntervalMS,
		},
		Upload: Upload{
			BreakerFailures: defaultBreakerFailures,
			BreakerCooldown: defaultBreakerCooldown,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Uploads:        true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
