package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"mediavault/internal/config"
	"mediavault/internal/logging"
	"mediavault/internal/metrics"
	"mediavault/internal/vault"
)

// Lifecycle is the part of the lifecycle engine the driver reports to.
type Lifecycle interface {
	BeginUpload(ctx context.Context, id int64) (*vault.Media, error)
	ReportProgress(ctx context.Context, id int64, percent int) error
	ReportResult(ctx context.Context, id int64, cause error) error
	ReleaseUpload(ctx context.Context, id int64) error
}

// Queue is the read side of the vault the driver polls.
type Queue interface {
	NextQueued(ctx context.Context, limit int) ([]*vault.Media, error)
	ProjectSpace(ctx context.Context, projectID int64) (*vault.Space, error)
	SetCollectionServerURL(ctx context.Context, id int64, url string) error
}

// Driver runs upload workers against the vault's upload queue.
type Driver struct {
	engine   Lifecycle
	queue    Queue
	uploads  *Registry
	breaker  *gobreaker.CircuitBreaker[Receipt]
	logger   *slog.Logger
	workers  int
	poll     time.Duration
	backoff  time.Duration
	timeout  time.Duration
	claimMu  sync.Mutex
	inflight sync.WaitGroup
	attempts atomic.Int32
}

// NewDriver builds a Driver from configuration. When upload.mirror_dir is set
// the MirrorUploader serves every Space kind without a dedicated uploader.
func NewDriver(cfg *config.Config, engine Lifecycle, queue Queue, uploads *Registry, logger *slog.Logger) *Driver {
	logger = logging.NewComponentLogger(logger, "upload")
	if uploads == nil {
		uploads = NewRegistry()
	}
	if cfg.Upload.MirrorDir != "" {
		uploads.SetFallback(NewMirrorUploader(cfg.Upload.MirrorDir))
	}

	failures := uint32(max(cfg.Upload.BreakerFailures, 1))
	d := &Driver{
		engine:  engine,
		queue:   queue,
		uploads: uploads,
		logger:  logger,
		workers: max(cfg.Workflow.UploadWorkers, 1),
		poll:    time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		backoff: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		timeout: cfg.UploadTimeout(),
	}
	d.breaker = gobreaker.NewCircuitBreaker[Receipt](gobreaker.Settings{
		Name:        "upload",
		MaxRequests: 1,
		Timeout:     time.Duration(cfg.Upload.BreakerCooldown) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// Only remote-side failures count against the breaker.
			var remote *RemoteError
			return err == nil || !(errors.As(err, &remote) || errors.Is(err, ErrTimeout))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.WarnWithContext(context.Background(), logger, "upload circuit breaker changed state", "upload_breaker_state",
				logging.String("from", from.String()),
				logging.String("to", to.String()),
				logging.String(logging.FieldErrorHint, "remote failing repeatedly; uploads pause until the cooldown passes"),
			)
		},
	})
	return d
}

// BreakerState reports the circuit breaker state.
func (d *Driver) BreakerState() string { return d.breaker.State().String() }

// Serve runs the workers until ctx is cancelled.
func (d *Driver) Serve(ctx context.Context) error {
	if d.uploads.Empty() {
		d.logger.InfoContext(ctx, "no uploaders configured; upload driver idle",
			logging.String(logging.FieldErrorHint, "set upload.mirror_dir to enable the mirror uploader"),
		)
		<-ctx.Done()
		return ctx.Err()
	}

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			d.runWorker(ctx, worker)
		}(i + 1)
	}
	wg.Wait()
	d.inflight.Wait()
	return ctx.Err()
}

// String names the service for the supervisor.
func (d *Driver) String() string { return "upload-driver" }

func (d *Driver) runWorker(ctx context.Context, worker int) {
	logger := d.logger.With(logging.Int("worker", worker))
	for {
		if ctx.Err() != nil {
			return
		}
		if !d.admits() {
			d.wait(ctx, d.backoff)
			continue
		}

		media, err := d.claim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.ErrorContext(ctx, "failed to fetch next queued media",
				logging.Error(err),
				logging.String(logging.FieldEventType, "upload_queue_fetch_failed"),
				logging.String(logging.FieldErrorHint, "check vault database access"),
			)
			d.wait(ctx, d.backoff)
			continue
		}
		if media == nil {
			d.wait(ctx, d.poll)
			continue
		}
		d.process(ctx, logger, media)
	}
}

// admits reports whether the breaker would let a new attempt through. A
// half-open breaker admits one trial at a time.
func (d *Driver) admits() bool {
	switch d.breaker.State() {
	case gobreaker.StateOpen:
		return false
	case gobreaker.StateHalfOpen:
		return d.attempts.Load() == 0
	default:
		return true
	}
}

// claim moves the highest-priority Queued media to Uploading. Candidates
// claimed by another writer first are skipped.
func (d *Driver) claim(ctx context.Context) (*vault.Media, error) {
	d.claimMu.Lock()
	defer d.claimMu.Unlock()

	candidates, err := d.queue.NextQueued(ctx, d.workers+1)
	if err != nil {
		return nil, err
	}
	for _, candidate := range candidates {
		media, err := d.engine.BeginUpload(ctx, candidate.ID)
		if err == nil {
			return media, nil
		}
		if errors.Is(err, vault.ErrInvalidTransition) || errors.Is(err, vault.ErrNotFound) {
			continue
		}
		return nil, err
	}
	return nil, nil
}

// RunOnce claims and uploads at most one media. Reports whether one was
// processed. Nothing is claimed while the breaker refuses attempts.
func (d *Driver) RunOnce(ctx context.Context) (bool, error) {
	if !d.admits() {
		return false, nil
	}
	media, err := d.claim(ctx)
	if err != nil || media == nil {
		return false, err
	}
	d.process(ctx, d.logger, media)
	return true, nil
}

func (d *Driver) process(ctx context.Context, logger *slog.Logger, media *vault.Media) {
	d.inflight.Add(1)
	defer d.inflight.Done()

	attemptCtx := logging.WithCorrelationID(logging.WithMediaID(ctx, media.ID), uuid.NewString())
	logger = logging.WithContext(attemptCtx, logger)
	start := time.Now()
	logger.InfoContext(attemptCtx, "upload started",
		logging.String(logging.FieldEventType, "upload_start"),
		logging.CollectionID(media.CollectionID),
		logging.String("sealed_file", media.EncryptedPath),
		logging.Int64("content_length", media.ContentLength),
	)

	receipt, uploadErr := d.attempt(attemptCtx, media)
	duration := time.Since(start)
	result, hint := classify(uploadErr)
	metrics.RecordUpload(result, duration)

	if errors.Is(uploadErr, context.Canceled) && ctx.Err() != nil {
		// Left Uploading; the next start returns it to the queue.
		logger.InfoContext(attemptCtx, "upload interrupted by shutdown", logging.Duration("duration", duration))
		return
	}
	reportCtx := context.WithoutCancel(attemptCtx)
	if errors.Is(uploadErr, gobreaker.ErrOpenState) || errors.Is(uploadErr, gobreaker.ErrTooManyRequests) {
		if err := d.engine.ReleaseUpload(reportCtx, media.ID); err != nil && !errors.Is(err, vault.ErrNotFound) {
			logger.ErrorContext(attemptCtx, "failed to return media to the queue",
				logging.Error(err),
				logging.String(logging.FieldEventType, "upload_release_failed"),
				logging.String(logging.FieldErrorHint, "the media stays Uploading until the next daemon start"),
			)
			return
		}
		logger.InfoContext(attemptCtx, "upload deferred by circuit breaker", logging.String("result", result))
		return
	}
	if uploadErr == nil && receipt.CollectionURL != "" {
		if err := d.queue.SetCollectionServerURL(reportCtx, media.CollectionID, receipt.CollectionURL); err != nil {
			logger.WarnContext(attemptCtx, "failed to record collection url", logging.Error(err))
		}
	}
	if err := d.engine.ReportResult(reportCtx, media.ID, uploadErr); err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			logger.InfoContext(attemptCtx, "media deleted during upload; result discarded")
			return
		}
		logger.ErrorContext(attemptCtx, "failed to record upload result",
			logging.Error(err),
			logging.String(logging.FieldEventType, "upload_result_failed"),
			logging.String(logging.FieldErrorHint, "the media stays Uploading until the next daemon start"),
		)
		return
	}

	if uploadErr != nil {
		logging.WarnWithContext(attemptCtx, logger, "upload failed", "upload_failed",
			logging.Error(uploadErr),
			logging.Duration("duration", duration),
			logging.String("result", result),
			logging.String(logging.FieldErrorHint, hint),
			logging.String(logging.FieldImpact, "media moved to Error; retry with 'mediavault media retry'"),
		)
		return
	}
	logger.InfoContext(attemptCtx, "upload finished",
		logging.String(logging.FieldEventType, "upload_complete"),
		logging.Duration("duration", duration),
	)
}

func (d *Driver) attempt(ctx context.Context, media *vault.Media) (Receipt, error) {
	space, err := d.queue.ProjectSpace(ctx, media.ProjectID)
	if err != nil {
		return Receipt{}, fmt.Errorf("resolve space: %w", err)
	}
	uploader, err := d.uploads.For(space.Kind)
	if err != nil {
		return Receipt{}, err
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	job := Job{Media: media, Space: space}
	progress := func(percent int) {
		if err := d.engine.ReportProgress(ctx, media.ID, percent); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.DebugContext(ctx, "progress not recorded", logging.MediaID(media.ID), logging.Error(err))
		}
	}

	d.attempts.Add(1)
	defer d.attempts.Add(-1)
	receipt, err := d.breaker.Execute(func() (Receipt, error) {
		return uploader.Upload(ctx, job, progress)
	})
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		return receipt, ErrTimeout
	}
	return receipt, err
}

func (d *Driver) wait(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		delay = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}
