package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mediavault/internal/config"
	"mediavault/internal/content"
	"mediavault/internal/logging"
	"mediavault/internal/metrics"
	"mediavault/internal/notifications"
	"mediavault/internal/notify"
	"mediavault/internal/vault"
)

// ErrNoSpace is returned when a Media's Project does not resolve to a Space.
var ErrNoSpace = errors.New("no live space for project")

// ContentStore is the file-level vault the engine seals into.
type ContentStore interface {
	Ingest(ctx context.Context, srcPath string) (content.EncryptedRef, content.Info, error)
	StoreNew(ctx context.Context, plaintextPath string) (content.EncryptedRef, error)
	Describe(ctx context.Context, plaintextPath string) (content.Info, error)
	Materialize(ctx context.Context, ref content.EncryptedRef) (content.PlaintextHandle, error)
	Delete(ctx context.Context, ref content.EncryptedRef)
}

// Publisher receives bus events.
type Publisher interface {
	Publish(event notify.Event) error
}

// Engine coordinates status transitions, imports, and deletes.
type Engine struct {
	store         *vault.Store
	content       ContentStore
	bus           Publisher
	notifier      notifications.Service
	logger        *slog.Logger
	uploadTimeout time.Duration
	progress      *progressTable
	reconciler    *Reconciler
	now           func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithBus publishes change and delete events to bus.
func WithBus(bus Publisher) Option {
	return func(e *Engine) {
		if bus != nil {
			e.bus = bus
		}
	}
}

// WithNotifier sends push notifications for closed collections and failures.
func WithNotifier(notifier notifications.Service) Option {
	return func(e *Engine) {
		if notifier != nil {
			e.notifier = notifier
		}
	}
}

// New constructs an Engine.
func New(cfg *config.Config, store *vault.Store, contentStore ContentStore, logger *slog.Logger, opts ...Option) *Engine {
	logger = logging.NewComponentLogger(logger, "lifecycle")
	engine := &Engine{
		store:         store,
		content:       contentStore,
		bus:           discardPublisher{},
		notifier:      notifications.NewNoop(),
		logger:        logger,
		uploadTimeout: cfg.UploadTimeout(),
		progress:      newProgressTable(cfg.ProgressInterval()),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(engine)
	}
	engine.reconciler = NewReconciler(store, logger, cfg.CleanupDelay(), cfg.ReconcileInterval())
	return engine
}

// Store exposes the vault store for read-only queries.
func (e *Engine) Store() *vault.Store { return e.store }

// Reconciler returns the emptiness reconciler fed by deletes and failed imports.
func (e *Engine) Reconciler() *Reconciler { return e.reconciler }

// Progress returns the in-memory upload percentage of a Media.
func (e *Engine) Progress(mediaID int64) (int, bool) {
	return e.progress.get(mediaID)
}

// Open decrypts a Media's payload into the cache.
func (e *Engine) Open(ctx context.Context, mediaID int64) (content.PlaintextHandle, error) {
	media, err := e.store.GetMedia(ctx, mediaID)
	if err != nil {
		return content.PlaintextHandle{}, err
	}
	if media.EncryptedPath == "" {
		return content.PlaintextHandle{}, fmt.Errorf("media %d has no sealed payload (status %s)", mediaID, media.Status)
	}
	return e.content.Materialize(ctx, content.EncryptedRef(media.EncryptedPath))
}

func (e *Engine) publish(ctx context.Context, event notify.Event) {
	if err := e.bus.Publish(event); err != nil {
		e.logger.DebugContext(ctx, "event not published",
			logging.String("event", event.String()),
			logging.Error(err),
		)
		return
	}
	metrics.RecordEvent(string(event.Kind))
}

// transition applies a CAS status write with logging and metrics.
func (e *Engine) transition(ctx context.Context, media *vault.Media, to vault.Status, message string) error {
	from := media.Status
	err := e.store.TransitionStatus(ctx, media.ID, from, to, message)
	if err != nil {
		e.logRejected(ctx, media, to, err)
		return err
	}
	metrics.RecordTransition(from.String(), to.String())
	e.logger.InfoContext(ctx, "status changed",
		logging.MediaID(media.ID),
		logging.CollectionID(media.CollectionID),
		logging.String("from", from.String()),
		logging.String(logging.FieldStatus, to.String()),
	)
	media.Status = to
	media.StatusMessage = message
	return nil
}

func (e *Engine) logRejected(ctx context.Context, media *vault.Media, to vault.Status, err error) {
	switch {
	case errors.Is(err, vault.ErrMediaNotFound):
		e.logger.InfoContext(ctx, "media gone; transition discarded",
			logging.MediaID(media.ID),
			logging.String(logging.FieldStatus, to.String()),
		)
	case errors.Is(err, vault.ErrInvalidTransition):
		metrics.RecordRejectedTransition(to.String())
		logging.WarnWithContext(ctx, e.logger, "status transition rejected", "status_transition_rejected",
			logging.MediaID(media.ID),
			logging.CollectionID(media.CollectionID),
			logging.String(logging.FieldStatus, to.String()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "another writer changed the media first; refresh and retry"),
			logging.String(logging.FieldImpact, "media left unchanged"),
		)
	}
}

func (e *Engine) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := e.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(ctx, e.logger, "notification failed", "notification_failed",
			logging.String("notification", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "push notification not delivered"),
		)
	}
}

type discardPublisher struct{}

func (discardPublisher) Publish(notify.Event) error { return nil }
