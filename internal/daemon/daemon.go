package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"mediavault/internal/config"
	"mediavault/internal/content"
	"mediavault/internal/lifecycle"
	"mediavault/internal/logging"
	"mediavault/internal/notifications"
	"mediavault/internal/notify"
	"mediavault/internal/preflight"
	"mediavault/internal/upload"
	"mediavault/internal/vault"
)

// ErrAlreadyRunning is returned when another process holds the daemon lock.
var ErrAlreadyRunning = errors.New("another mediavault daemon instance is already running")

// shutdownTimeout bounds how long each supervised service gets to stop.
const shutdownTimeout = 10 * time.Second

// Daemon supervises the upload driver, the emptiness reconciler, gauge
// collection, and the metrics endpoint under a single-instance lock.
type Daemon struct {
	cfg      *config.Config
	store    *vault.Store
	engine   *lifecycle.Engine
	driver   *upload.Driver
	content  *content.Store
	logger   *slog.Logger
	bus      *notify.Bus
	tracker  *notify.Tracker
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock
	running  atomic.Bool
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithTracker keeps tracker current from bus events while the daemon runs.
func WithTracker(bus *notify.Bus, tracker *notify.Tracker) Option {
	return func(d *Daemon) {
		d.bus = bus
		d.tracker = tracker
	}
}

// WithNotifier sends an error notification when preflight checks fail or
// the supervisor stops with an error.
func WithNotifier(notifier notifications.Service) Option {
	return func(d *Daemon) {
		if notifier != nil {
			d.notifier = notifier
		}
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *vault.Store, engine *lifecycle.Engine, driver *upload.Driver, contentStore *content.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || engine == nil || driver == nil {
		return nil, errors.New("daemon requires config, store, engine, and upload driver")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		store:    store,
		engine:   engine,
		driver:   driver,
		content:  contentStore,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		notifier: notifications.NewNoop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Run acquires the lock, recovers interrupted uploads, and serves the
// supervision tree until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	d.running.Store(true)
	defer func() {
		d.running.Store(false)
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	if _, err := d.engine.RecoverStuckUploads(ctx); err != nil {
		d.notifyError(ctx, "daemon start", err.Error())
		return fmt.Errorf("recover stuck uploads: %w", err)
	}

	d.logPreflight(ctx)

	root := d.buildTree()
	d.logger.Info("mediavault daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("upload_workers", d.cfg.Workflow.UploadWorkers),
	)
	err = root.Serve(ctx)
	if report, reportErr := root.UnstoppedServiceReport(); reportErr == nil {
		for _, svc := range report {
			d.logger.Warn("service failed to stop", logging.String("service", svc.Name))
		}
	}
	d.logger.Info("mediavault daemon stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		d.notifyError(context.WithoutCancel(ctx), "daemon supervisor", err.Error())
		return fmt.Errorf("supervisor: %w", err)
	}
	return nil
}

func (d *Daemon) buildTree() *suture.Supervisor {
	root := suture.New("mediavault", suture.Spec{
		EventHook:        (&sutureslog.Handler{Logger: d.logger}).MustHook(),
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          shutdownTimeout,
	})
	root.Add(d.driver)
	root.Add(d.engine.Reconciler())
	root.Add(newGaugeService(d.store, d.content, d.logger, gaugeInterval))
	if d.bus != nil && d.tracker != nil {
		root.Add(&trackerService{bus: d.bus, tracker: d.tracker})
	}
	if bind := d.cfg.Metrics.Bind; bind != "" {
		root.Add(newMetricsService(bind, shutdownTimeout, statusHandler(d.Status)))
	}
	return root
}

func (d *Daemon) logPreflight(ctx context.Context) {
	results := preflight.RunAll(ctx, d.cfg, d.store)
	failed := preflight.Failed(results)
	details := make([]string, 0, len(failed))
	for _, result := range failed {
		details = append(details, result.Name+": "+result.Detail)
		logging.WarnWithContext(ctx, d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run mediavault status for details"),
			logging.String(logging.FieldImpact, "uploads or imports may fail"),
		)
	}
	if len(details) > 0 {
		d.notifyError(ctx, "preflight", strings.Join(details, "; "))
	}
}

func (d *Daemon) notifyError(ctx context.Context, label, detail string) {
	err := d.notifier.Publish(ctx, notifications.EventError, notifications.Payload{
		"context": label,
		"error":   detail,
	})
	if err != nil {
		d.logger.Warn("error notification failed", logging.Error(err))
	}
}

// IsRunning tries the daemon lock without keeping it.
func IsRunning(cfg *config.Config) (bool, error) {
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("try lock: %w", err)
	}
	if !ok {
		return true, nil
	}
	if err := lock.Unlock(); err != nil {
		return false, fmt.Errorf("release trial lock: %w", err)
	}
	return false, nil
}
