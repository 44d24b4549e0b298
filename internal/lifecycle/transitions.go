package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"mediavault/internal/logging"
	"mediavault/internal/notifications"
	"mediavault/internal/notify"
	"mediavault/internal/vault"
)

// Enqueue moves Local media to Queued. Each Media's Project must resolve to
// a Space. Returns how many were queued; per-item failures are joined.
func (e *Engine) Enqueue(ctx context.Context, ids ...int64) (int, error) {
	var (
		queued int
		errs   []error
	)
	for _, id := range ids {
		if err := e.enqueueOne(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("enqueue media %d: %w", id, err))
			continue
		}
		queued++
	}
	return queued, errors.Join(errs...)
}

func (e *Engine) enqueueOne(ctx context.Context, id int64) error {
	media, err := e.store.GetMedia(ctx, id)
	if err != nil {
		return err
	}
	if _, err := e.store.ProjectSpace(ctx, media.ProjectID); err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			return fmt.Errorf("%w: project %d", ErrNoSpace, media.ProjectID)
		}
		return err
	}
	if media.Status != vault.StatusLocal {
		err := &vault.TransitionError{MediaID: id, From: vault.StatusLocal, To: vault.StatusQueued, Actual: media.Status}
		e.logRejected(ctx, media, vault.StatusQueued, err)
		return err
	}
	if err := e.transition(ctx, media, vault.StatusQueued, ""); err != nil {
		return err
	}
	e.publish(ctx, notify.Change(media.CollectionID, media.ID, 0, false))
	return nil
}

// BeginUpload marks a Queued media as Uploading.
func (e *Engine) BeginUpload(ctx context.Context, id int64) (*vault.Media, error) {
	media, err := e.store.GetMedia(ctx, id)
	if err != nil {
		return nil, err
	}
	// CAS against Queued regardless of what was read, so a stale read
	// cannot start an upload for a row that moved on.
	media.Status = vault.StatusQueued
	if err := e.transition(ctx, media, vault.StatusUploading, ""); err != nil {
		return nil, err
	}
	e.progress.start(media.ID, media.CollectionID)
	e.publish(ctx, notify.Change(media.CollectionID, media.ID, 0, false))
	return media, nil
}

// ReportProgress records the latest upload percentage. Values are clamped to
// 0..100. Intermediate events may be dropped; 100 never is.
func (e *Engine) ReportProgress(ctx context.Context, id int64, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	collectionID, publish, log, ok := e.progress.update(id, percent)
	if !ok {
		media, err := e.store.GetMedia(ctx, id)
		if err != nil {
			return err
		}
		if media.Status != vault.StatusUploading {
			return &vault.TransitionError{MediaID: id, From: vault.StatusUploading, To: vault.StatusUploading, Actual: media.Status}
		}
		e.progress.start(media.ID, media.CollectionID)
		collectionID, publish, log, _ = e.progress.update(id, percent)
	}
	if log {
		e.logger.DebugContext(ctx, "upload progress",
			logging.MediaID(id),
			logging.CollectionID(collectionID),
			logging.Int("percent", percent),
		)
	}
	if publish {
		e.publish(ctx, notify.Change(collectionID, id, percent, false))
	}
	return nil
}

// ReportResult records the outcome of an upload attempt. A nil cause marks
// the media Uploaded and may close its Collection; otherwise the media moves
// to Error with a message derived from cause. Results for deleted media
// return vault.ErrMediaNotFound and change nothing.
func (e *Engine) ReportResult(ctx context.Context, id int64, cause error) error {
	defer e.progress.clear(id)

	media, err := e.store.GetMedia(ctx, id)
	if err != nil {
		if errors.Is(err, vault.ErrMediaNotFound) {
			e.logger.InfoContext(ctx, "upload result for deleted media discarded", logging.MediaID(id))
		}
		return err
	}
	media.Status = vault.StatusUploading

	if cause == nil {
		if err := e.transition(ctx, media, vault.StatusUploaded, ""); err != nil {
			return err
		}
		e.publish(ctx, notify.Change(media.CollectionID, media.ID, 100, true))
		e.closeCollection(ctx, media)
		return nil
	}

	message := e.describeFailure(cause)
	last, _ := e.progress.get(id)
	if err := e.transition(ctx, media, vault.StatusError, message); err != nil {
		return err
	}
	e.publish(ctx, notify.Change(media.CollectionID, media.ID, last, false))
	e.notify(ctx, notifications.EventUploadFailed, notifications.Payload{
		"media":  displayName(media),
		"reason": message,
	})
	return nil
}

// ReleaseUpload returns an Uploading media to Queued without recording an
// attempt. The driver uses it when the remote was never contacted.
func (e *Engine) ReleaseUpload(ctx context.Context, id int64) error {
	defer e.progress.clear(id)

	media, err := e.store.GetMedia(ctx, id)
	if err != nil {
		return err
	}
	media.Status = vault.StatusUploading
	if err := e.transition(ctx, media, vault.StatusQueued, ""); err != nil {
		return err
	}
	e.publish(ctx, notify.Change(media.CollectionID, media.ID, 0, false))
	return nil
}

func (e *Engine) closeCollection(ctx context.Context, media *vault.Media) {
	closed, err := e.store.CloseCollectionIfUploaded(ctx, media.CollectionID, e.now())
	if err != nil {
		logging.WarnWithContext(ctx, e.logger, "collection close-out failed", "collection_close_failed",
			logging.CollectionID(media.CollectionID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "upload date not recorded; the next upload retries it"),
		)
		return
	}
	if !closed {
		return
	}
	e.logger.InfoContext(ctx, "collection uploaded", logging.CollectionID(media.CollectionID))

	count := 0
	if items, err := e.store.ListMedia(ctx, media.CollectionID, vault.OrderByStatus); err == nil {
		count = len(items)
	}
	projectName := fmt.Sprintf("project %d", media.ProjectID)
	if project, err := e.store.GetProject(ctx, media.ProjectID); err == nil {
		projectName = project.Description
	}
	e.notify(ctx, notifications.EventCollectionUploaded, notifications.Payload{
		"project":      projectName,
		"count":        count,
		"collectionID": media.CollectionID,
	})
}

type timeoutError interface {
	Timeout() bool
}

func (e *Engine) describeFailure(cause error) string {
	var te timeoutError
	if errors.Is(cause, context.DeadlineExceeded) || (errors.As(cause, &te) && te.Timeout()) {
		if e.uploadTimeout > 0 {
			return fmt.Sprintf("upload timed out after %s", e.uploadTimeout)
		}
		return "upload timed out"
	}
	message := cause.Error()
	if message == "" {
		message = "upload failed"
	}
	return message
}

// Retry moves Error media back to Queued and clears their message. With no
// ids every Error media is retried.
func (e *Engine) Retry(ctx context.Context, ids ...int64) (int, error) {
	var targets []*vault.Media
	if len(ids) == 0 {
		failed, err := e.store.ListMediaByStatus(ctx, vault.StatusError)
		if err != nil {
			return 0, err
		}
		targets = failed
	} else {
		for _, id := range ids {
			media, err := e.store.GetMedia(ctx, id)
			if err != nil {
				return 0, err
			}
			targets = append(targets, media)
		}
	}

	var (
		retried int
		errs    []error
	)
	for _, media := range targets {
		media.Status = vault.StatusError
		if err := e.transition(ctx, media, vault.StatusQueued, ""); err != nil {
			errs = append(errs, fmt.Errorf("retry media %d: %w", media.ID, err))
			continue
		}
		e.publish(ctx, notify.Change(media.CollectionID, media.ID, 0, false))
		retried++
	}
	return retried, errors.Join(errs...)
}

// Reorder moves a media to newPosition (0-based) in the upload queue and
// rewrites the queue's priorities densely from len(queue) down to 1.
func (e *Engine) Reorder(ctx context.Context, id int64, newPosition int) error {
	queue, err := e.store.UploadQueue(ctx)
	if err != nil {
		return err
	}
	current := -1
	for i, media := range queue {
		if media.ID == id {
			current = i
			break
		}
	}
	if current < 0 {
		if _, err := e.store.GetMedia(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("media %d is not in the upload queue: %w", id, vault.ErrInvalidTransition)
	}
	if newPosition < 0 {
		newPosition = 0
	}
	if newPosition >= len(queue) {
		newPosition = len(queue) - 1
	}

	ids := make([]int64, 0, len(queue))
	for i, media := range queue {
		if i != current {
			ids = append(ids, media.ID)
		}
	}
	ids = append(ids[:newPosition], append([]int64{id}, ids[newPosition:]...)...)
	if err := e.store.SetPriorities(ctx, ids); err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "upload queue reordered",
		logging.MediaID(id),
		logging.Int("position", newPosition),
		logging.Int("queue_length", len(ids)),
	)
	return nil
}

// RecoverStuckUploads returns media left Uploading by a crash to Queued.
func (e *Engine) RecoverStuckUploads(ctx context.Context) (int64, error) {
	reset, err := e.store.ResetStuckUploads(ctx)
	if err != nil {
		return 0, err
	}
	if reset > 0 {
		logging.WarnWithContext(ctx, e.logger, "reset interrupted uploads", "uploads_recovered",
			logging.Int64("count", reset),
			logging.String(logging.FieldErrorHint, "previous run stopped mid-upload"),
			logging.String(logging.FieldImpact, "media will be uploaded again"),
		)
	}
	return reset, nil
}
