package lifecycle_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"mediavault/internal/notify"
	"mediavault/internal/testsupport"
	"mediavault/internal/vault"
)

func TestDeleteMediaRemovesFileRowAndSchedulesCheck(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	media := h.importOne(t, "a.jpg", "a")
	if err := h.engine.DeleteMedia(ctx, media.ID); err != nil {
		t.Fatalf("DeleteMedia: %v", err)
	}
	if _, err := os.Stat(media.EncryptedPath); !os.IsNotExist(err) {
		t.Fatalf("expected sealed file removed, stat err=%v", err)
	}
	if _, err := h.store.GetMedia(ctx, media.ID); !errors.Is(err, vault.ErrNotFound) {
		t.Fatalf("expected row removed, got %v", err)
	}

	// Scheduled, not run inline.
	if _, err := h.store.GetCollection(ctx, media.CollectionID); err != nil {
		t.Fatalf("collection removed inline: %v", err)
	}
	if pending := h.engine.Reconciler().Pending(); len(pending) != 1 || pending[0] != media.CollectionID {
		t.Fatalf("unexpected pending checks %v", pending)
	}

	events := h.bus.forMedia(media.ID)
	if last := events[len(events)-1]; last.Kind != notify.KindDelete {
		t.Fatalf("expected a delete event, got %+v", last)
	}

	if err := h.engine.DeleteMedia(ctx, media.ID); err != nil {
		t.Fatalf("second DeleteMedia should succeed: %v", err)
	}
}

func TestDeleteMediaToleratesMissingFile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	media := h.importOne(t, "a.jpg", "a")
	if err := os.Remove(media.EncryptedPath); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := h.engine.DeleteMedia(ctx, media.ID); err != nil {
		t.Fatalf("DeleteMedia: %v", err)
	}
}

func TestDeleteCollectionRemovesEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.importOne(t, "a.jpg", "a")
	b := h.importOne(t, "b.jpg", "b")
	if err := h.engine.DeleteCollection(ctx, a.CollectionID); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}
	for _, media := range []*vault.Media{a, b} {
		if _, err := h.store.GetMedia(ctx, media.ID); !errors.Is(err, vault.ErrNotFound) {
			t.Fatalf("media %d survived: %v", media.ID, err)
		}
	}
	if _, err := h.store.GetCollection(ctx, a.CollectionID); !errors.Is(err, vault.ErrNotFound) {
		t.Fatalf("collection survived: %v", err)
	}
	if files := testsupport.ListFiles(t, h.cfg.Paths.ContentDir); len(files) != 0 {
		t.Fatalf("sealed files survived: %v", files)
	}
}

func TestDeleteSpaceCascadesAndIsResumable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.importOne(t, "a.jpg", "a")
	h.queued(t, "b.jpg")
	h.importOne(t, "c.jpg", "c")
	other := testsupport.NewProject(t, h.store, h.project.SpaceID, "Work")
	h.project = other
	h.importOne(t, "d.jpg", "d")
	if err := h.store.SetCurrentSpace(ctx, other.SpaceID); err != nil {
		t.Fatalf("SetCurrentSpace: %v", err)
	}

	if err := h.engine.DeleteSpace(ctx, other.SpaceID); err != nil {
		t.Fatalf("DeleteSpace: %v", err)
	}
	if _, err := h.store.GetSpace(ctx, other.SpaceID); !errors.Is(err, vault.ErrNotFound) {
		t.Fatalf("space survived: %v", err)
	}
	projects, err := h.store.ListProjects(ctx, other.SpaceID, false)
	if err != nil || len(projects) != 0 {
		t.Fatalf("projects survived: %v %v", projects, err)
	}
	stats, err := h.store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	for status, count := range stats {
		if count != 0 {
			t.Fatalf("%d media left in %s", count, status)
		}
	}
	if files := testsupport.ListFiles(t, h.cfg.Paths.ContentDir); len(files) != 0 {
		t.Fatalf("sealed files survived: %v", files)
	}
	current, err := h.store.CurrentSpace(ctx)
	if err != nil || current != nil {
		t.Fatalf("expected current space cleared, got %v %v", current, err)
	}
	health, err := h.store.CheckHealth(ctx)
	if err != nil || health.ForeignKeyViolations != 0 {
		t.Fatalf("health %+v err %v", health, err)
	}

	if err := h.engine.DeleteSpace(ctx, other.SpaceID); err != nil {
		t.Fatalf("re-running DeleteSpace should be a no-op: %v", err)
	}
}

func TestDeleteProjectResumesHalfFinishedCascade(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.importOne(t, "a.jpg", "a")
	h.queued(t, "b.jpg")

	// Simulate an interrupted cascade: one leaf already gone.
	if err := h.engine.DeleteMedia(ctx, a.ID); err != nil {
		t.Fatalf("DeleteMedia: %v", err)
	}
	if err := h.store.DeleteProjectRow(ctx, h.project.ID); !errors.Is(err, vault.ErrHasChildren) {
		t.Fatalf("expected ErrHasChildren while children remain, got %v", err)
	}

	if err := h.engine.DeleteProject(ctx, h.project.ID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if _, err := h.store.GetProject(ctx, h.project.ID); !errors.Is(err, vault.ErrNotFound) {
		t.Fatalf("project survived: %v", err)
	}
	if _, err := h.store.GetSpace(ctx, h.project.SpaceID); err != nil {
		t.Fatalf("space must survive a project delete: %v", err)
	}
}
