package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"mediavault/internal/cipher"
	"mediavault/internal/config"
	"mediavault/internal/content"
	"mediavault/internal/daemon"
	"mediavault/internal/lifecycle"
	"mediavault/internal/logging"
	"mediavault/internal/notifications"
	"mediavault/internal/notify"
	"mediavault/internal/upload"
	"mediavault/internal/vault"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the mediavault daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	if running, err := daemon.IsRunning(cfg); err == nil && running {
		return daemon.ErrAlreadyRunning
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("mediavault-%s.log", runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update mediavault.log link: %v\n", err)
	}
	ctx := logging.WithCorrelationID(signalCtx, uuid.NewString())

	pidPath := filepath.Join(cfg.Paths.DataDir, "mediavault.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := vault.Open(cfg)
	if err != nil {
		logger.Error("open vault store", logging.Error(err))
		return err
	}
	defer store.Close()

	sealer := cipher.New(cipher.NewFileKeyStore(cfg.KeyDir(), logger))
	contentStore := content.NewStore(cfg, sealer, logger)

	bus := notify.NewBus(logger)
	defer bus.Close()

	notifier := notifications.NewService(cfg)
	engine := lifecycle.New(cfg, store, contentStore, logger,
		lifecycle.WithBus(bus),
		lifecycle.WithNotifier(notifier),
	)
	driver := upload.NewDriver(cfg, engine, store, nil, logger)

	d, err := daemon.New(cfg, store, engine, driver, contentStore, logger,
		daemon.WithTracker(bus, notify.NewTracker()),
		daemon.WithNotifier(notifier),
	)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	err = d.Run(ctx)
	if errors.Is(err, daemon.ErrAlreadyRunning) {
		logging.WarnWithContext(ctx, logger, "daemon start refused", "daemon_start_failed",
			logging.String("lock", cfg.LockPath()),
			logging.String(logging.FieldErrorHint, "stop the running daemon first"),
			logging.String(logging.FieldImpact, "this process will exit"),
		)
	}
	logger.Info("mediavault daemon shutting down")
	return err
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "mediavault.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
