package lifecycle_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"mediavault/internal/content"
	"mediavault/internal/lifecycle"
	"mediavault/internal/logging"
	"mediavault/internal/notify"
	"mediavault/internal/testsupport"
	"mediavault/internal/vault"
)

func TestScenarioImportUploadDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var paths []string
	for i := 1; i <= 3; i++ {
		paths = append(paths, h.source(t, fmt.Sprintf("photo-%d.jpg", i), fmt.Sprintf("photo bytes %d", i)))
	}
	result, err := h.engine.Import(ctx, h.project.ID, paths...)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	collections, err := h.store.ListCollections(ctx, h.project.ID)
	if err != nil {
		t.Fatalf("ListCollections: %v", err)
	}
	if len(collections) != 1 || collections[0].MediaCount != 3 {
		t.Fatalf("expected one collection of 3, got %+v", collections)
	}
	seen := map[string]bool{}
	for _, media := range result.Imported {
		if media.Status != vault.StatusLocal {
			t.Fatalf("media %d is %s", media.ID, media.Status)
		}
		seen[media.EncryptedPath] = true
	}
	files := testsupport.ListFiles(t, h.cfg.Paths.ContentDir)
	if len(seen) != 3 || len(files) != 3 {
		t.Fatalf("expected 3 distinct sealed files, got refs=%d files=%v", len(seen), files)
	}
	for _, file := range files {
		if !content.IsSealed(file) {
			t.Fatalf("plaintext residue %s", file)
		}
	}

	one, two, three := result.Imported[0], result.Imported[1], result.Imported[2]
	if queued, err := h.engine.Enqueue(ctx, one.ID, two.ID, three.ID); err != nil || queued != 3 {
		t.Fatalf("Enqueue = %d, %v", queued, err)
	}
	if _, err := h.engine.BeginUpload(ctx, one.ID); err != nil {
		t.Fatalf("BeginUpload: %v", err)
	}
	for _, pct := range []int{10, 50, 100} {
		if err := h.engine.ReportProgress(ctx, one.ID, pct); err != nil {
			t.Fatalf("ReportProgress: %v", err)
		}
	}
	if err := h.engine.ReportResult(ctx, one.ID, nil); err != nil {
		t.Fatalf("ReportResult(one): %v", err)
	}
	if _, err := h.engine.BeginUpload(ctx, two.ID); err != nil {
		t.Fatalf("BeginUpload: %v", err)
	}
	if err := h.engine.ReportResult(ctx, two.ID, errors.New("network")); err != nil {
		t.Fatalf("ReportResult(two): %v", err)
	}

	want := map[int64]vault.Status{one.ID: vault.StatusUploaded, two.ID: vault.StatusError, three.ID: vault.StatusQueued}
	for id, status := range want {
		if got := h.status(t, id); got.Status != status {
			t.Fatalf("media %d: got %s want %s", id, got.Status, status)
		}
	}
	if got := h.status(t, two.ID); got.StatusMessage != "network" {
		t.Fatalf("unexpected message %q", got.StatusMessage)
	}
	collection, err := h.store.GetCollection(ctx, one.CollectionID)
	if err != nil {
		t.Fatalf("GetCollection: %v", err)
	}
	if collection.IsUploaded() {
		t.Fatal("upload date must stay unset until every media is uploaded")
	}

	// Delete the only Media of a fresh Collection.
	lone := h.importOne(t, "lonely.jpg", "alone")
	if lone.CollectionID == one.CollectionID {
		t.Fatal("expected a new collection for the fresh import")
	}
	if err := h.engine.DeleteMedia(ctx, lone.ID); err != nil {
		t.Fatalf("DeleteMedia: %v", err)
	}
	collections, err = h.store.ListCollections(ctx, h.project.ID)
	if err != nil {
		t.Fatalf("ListCollections: %v", err)
	}
	for _, c := range collections {
		if c.ID == lone.CollectionID {
			t.Fatal("empty collection still listed")
		}
	}
	if removed, err := h.engine.Reconciler().Drain(ctx); err != nil || removed != 1 {
		t.Fatalf("Drain = %d, %v", removed, err)
	}
}

func TestCascadeCompleteness(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	const projects, collections, media = 2, 2, 2

	spaceID := h.project.SpaceID
	for p := 0; p < projects; p++ {
		if p > 0 {
			h.project = testsupport.NewProject(t, h.store, spaceID, fmt.Sprintf("project %d", p))
		}
		for c := 0; c < collections; c++ {
			var ids []int64
			for m := 0; m < media; m++ {
				item := h.importOne(t, fmt.Sprintf("p%d-c%d-m%d.jpg", p, c, m), "bytes")
				ids = append(ids, item.ID)
			}
			// Queueing closes the Collection to further imports.
			if _, err := h.engine.Enqueue(ctx, ids...); err != nil {
				t.Fatalf("Enqueue: %v", err)
			}
		}
	}
	if files := testsupport.ListFiles(t, h.cfg.Paths.ContentDir); len(files) != projects*collections*media {
		t.Fatalf("expected %d sealed files, got %d", projects*collections*media, len(files))
	}

	if err := h.engine.DeleteSpace(ctx, spaceID); err != nil {
		t.Fatalf("DeleteSpace: %v", err)
	}
	stats, err := h.store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	for status, count := range stats {
		if count != 0 {
			t.Fatalf("%d %s media survived", count, status)
		}
	}
	if ids, err := h.store.ProjectIDs(ctx, spaceID); err != nil || len(ids) != 0 {
		t.Fatalf("projects survived: %v %v", ids, err)
	}
	if ids, err := h.store.EmptyCollectionIDs(ctx); err != nil || len(ids) != 0 {
		t.Fatalf("collections survived: %v %v", ids, err)
	}
	if files := testsupport.ListFiles(t, h.cfg.Paths.ContentDir); len(files) != 0 {
		t.Fatalf("sealed files survived: %v", files)
	}
}

func TestEmptinessRaceNeverOrphansMedia(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	const rounds = 20

	for round := 0; round < rounds; round++ {
		doomed := h.importOne(t, fmt.Sprintf("doomed-%d.jpg", round), "x")
		src := h.source(t, fmt.Sprintf("fresh-%d.jpg", round), "y")

		var (
			wg        sync.WaitGroup
			imported  *lifecycle.ImportResult
			importErr error
			deleteErr error
			drainErr  error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			imported, importErr = h.engine.Import(ctx, h.project.ID, src)
		}()
		go func() {
			defer wg.Done()
			if deleteErr = h.engine.DeleteMedia(ctx, doomed.ID); deleteErr != nil {
				return
			}
			_, drainErr = h.engine.Reconciler().Drain(ctx)
		}()
		wg.Wait()

		if importErr != nil || deleteErr != nil || drainErr != nil {
			t.Fatalf("round %d: import=%v delete=%v drain=%v", round, importErr, deleteErr, drainErr)
		}
		fresh := imported.Imported[0]
		if _, err := h.store.GetCollection(ctx, fresh.CollectionID); err != nil {
			t.Fatalf("round %d: media %d lives in a removed collection: %v", round, fresh.ID, err)
		}
		if got := h.status(t, fresh.ID); got.Status != vault.StatusLocal {
			t.Fatalf("round %d: fresh media is %s", round, got.Status)
		}
		if _, err := h.engine.Reconciler().Sweep(ctx); err != nil {
			t.Fatalf("Sweep: %v", err)
		}
		if err := h.engine.DeleteMedia(ctx, fresh.ID); err != nil {
			t.Fatalf("cleanup: %v", err)
		}
	}

	health, err := h.store.CheckHealth(ctx)
	if err != nil || !health.IntegrityOK || health.ForeignKeyViolations != 0 {
		t.Fatalf("health %+v err %v", health, err)
	}
}

func TestTrackerFollowsEngineOverBus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	bus := notify.NewBus(logging.NewNop())
	t.Cleanup(func() { bus.Close() })
	engine := lifecycle.New(cfg, store, testsupport.NewContentStore(t, cfg), logging.NewNop(), lifecycle.WithBus(bus))

	space := testsupport.NewSpace(t, store, "home")
	project := testsupport.NewProject(t, store, space.ID, "p")
	src := testsupport.WriteFile(t, t.TempDir(), "a.jpg", []byte("a"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	tracker := notify.NewTracker()
	go tracker.Run(ctx, events)

	result, err := engine.Import(ctx, project.ID, src)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	media := result.Imported[0]
	if _, err := engine.Enqueue(ctx, media.ID); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := engine.BeginUpload(ctx, media.ID); err != nil {
		t.Fatalf("BeginUpload: %v", err)
	}
	if err := engine.ReportProgress(ctx, media.ID, 40); err != nil {
		t.Fatalf("ReportProgress: %v", err)
	}
	if err := engine.ReportResult(ctx, media.ID, nil); err != nil {
		t.Fatalf("ReportResult: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		view, ok := tracker.Get(media.ID)
		if ok && view.IsUploaded {
			if view.Progress != 100 || view.CollectionID != media.CollectionID {
				t.Fatalf("unexpected view %+v", view)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("tracker never saw the upload, last view %+v", view)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
