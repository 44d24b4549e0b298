package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"mediavault/internal/content"
	"mediavault/internal/logging"
	"mediavault/internal/notify"
	"mediavault/internal/vault"
)

// cascadeAttempts bounds how often a parent delete is retried when a
// concurrent import adds a child between the sweep and the row delete.
const cascadeAttempts = 3

// DeleteMedia removes a Media's sealed file and row. A Media that is already
// gone counts as deleted. The Collection emptiness check is scheduled, not run.
func (e *Engine) DeleteMedia(ctx context.Context, id int64) error {
	media, err := e.store.GetMedia(ctx, id)
	if errors.Is(err, vault.ErrNotFound) {
		e.progress.clear(id)
		return nil
	}
	if err != nil {
		return err
	}
	e.deleteMedia(ctx, media)
	removed, err := e.store.DeleteMediaRow(ctx, id)
	if err != nil {
		return err
	}
	e.progress.clear(id)
	if removed {
		e.logger.InfoContext(ctx, "media deleted",
			logging.MediaID(id),
			logging.CollectionID(media.CollectionID),
			logging.String(logging.FieldStatus, media.Status.String()),
		)
		e.publish(ctx, notify.Delete(id))
	}
	e.reconciler.Schedule(media.CollectionID)
	return nil
}

// deleteMedia removes the payload file. Failures are logged by the content
// store and never abort a cascade.
func (e *Engine) deleteMedia(ctx context.Context, media *vault.Media) {
	if media.EncryptedPath == "" {
		return
	}
	e.content.Delete(ctx, content.EncryptedRef(media.EncryptedPath))
}

// DeleteCollection removes every Media of the Collection, then the
// Collection itself. Re-running it resumes a half-finished delete.
func (e *Engine) DeleteCollection(ctx context.Context, id int64) error {
	var err error
	for attempt := 0; attempt < cascadeAttempts; attempt++ {
		if err = e.deleteCollectionMedia(ctx, id); err != nil {
			return err
		}
		err = e.store.DeleteCollectionRow(ctx, id)
		if !errors.Is(err, vault.ErrHasChildren) {
			break
		}
	}
	if err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "collection deleted", logging.CollectionID(id))
	return nil
}

func (e *Engine) deleteCollectionMedia(ctx context.Context, id int64) error {
	media, err := e.store.ListMedia(ctx, id, vault.OrderByStatus)
	if err != nil {
		return err
	}
	for _, item := range media {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.deleteMedia(ctx, item)
		if _, err := e.store.DeleteMediaRow(ctx, item.ID); err != nil {
			return err
		}
		e.progress.clear(item.ID)
		e.publish(ctx, notify.Delete(item.ID))
	}
	return nil
}

// DeleteProject removes the Project's Collections and Media, then the
// Project row.
func (e *Engine) DeleteProject(ctx context.Context, id int64) error {
	var err error
	for attempt := 0; attempt < cascadeAttempts; attempt++ {
		if err = e.deleteProjectChildren(ctx, id); err != nil {
			return err
		}
		err = e.store.DeleteProjectRow(ctx, id)
		if !errors.Is(err, vault.ErrHasChildren) {
			break
		}
	}
	if err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "project deleted", logging.Int64("project_id", id))
	return nil
}

func (e *Engine) deleteProjectChildren(ctx context.Context, id int64) error {
	collections, err := e.store.CollectionIDs(ctx, id)
	if err != nil {
		return err
	}
	for _, collectionID := range collections {
		if err := e.DeleteCollection(ctx, collectionID); err != nil {
			return fmt.Errorf("project %d: %w", id, err)
		}
	}
	return nil
}

// DeleteSpace removes every Project of the Space, then the Space row.
func (e *Engine) DeleteSpace(ctx context.Context, id int64) error {
	var err error
	for attempt := 0; attempt < cascadeAttempts; attempt++ {
		if err = e.deleteSpaceChildren(ctx, id); err != nil {
			return err
		}
		err = e.store.DeleteSpaceRow(ctx, id)
		if !errors.Is(err, vault.ErrHasChildren) {
			break
		}
	}
	if err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "space deleted", logging.Int64("space_id", id))
	return nil
}

func (e *Engine) deleteSpaceChildren(ctx context.Context, id int64) error {
	projects, err := e.store.ProjectIDs(ctx, id)
	if err != nil {
		return err
	}
	for _, projectID := range projects {
		if err := e.DeleteProject(ctx, projectID); err != nil {
			return fmt.Errorf("space %d: %w", id, err)
		}
	}
	return nil
}
