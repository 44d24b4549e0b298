package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"mediavault/internal/logging"
	"mediavault/internal/testsupport"
	"mediavault/internal/vault"
)

func TestReconcilerHonoursDelay(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	space := testsupport.NewSpace(t, store, "home")
	project := testsupport.NewProject(t, store, space.ID, "p")
	empty := testsupport.NewCollection(t, store, project.ID)
	ctx := context.Background()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := NewReconciler(store, logging.NewNop(), time.Minute, 0)
	r.now = func() time.Time { return now }

	r.Schedule(empty.ID)
	if removed, err := r.RunDue(ctx); err != nil || removed != 0 {
		t.Fatalf("RunDue before delay = %d, %v", removed, err)
	}
	if len(r.Pending()) != 1 {
		t.Fatal("expected check to stay pending")
	}

	now = now.Add(time.Minute)
	if removed, err := r.RunDue(ctx); err != nil || removed != 1 {
		t.Fatalf("RunDue after delay = %d, %v", removed, err)
	}
	if _, err := store.GetCollection(ctx, empty.ID); !errors.Is(err, vault.ErrNotFound) {
		t.Fatalf("expected collection removed, got %v", err)
	}
	if len(r.Pending()) != 0 {
		t.Fatalf("unexpected pending %v", r.Pending())
	}
}

func TestReconcilerKeepsPopulatedCollections(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	space := testsupport.NewSpace(t, store, "home")
	project := testsupport.NewProject(t, store, space.ID, "p")
	full := testsupport.NewCollection(t, store, project.ID)
	testsupport.NewMedia(t, store, full, vault.StatusLocal)
	empty := testsupport.NewCollection(t, store, project.ID)
	ctx := context.Background()

	r := NewReconciler(store, logging.NewNop(), 0, 0)
	r.Schedule(full.ID)
	if removed, err := r.Drain(ctx); err != nil || removed != 0 {
		t.Fatalf("Drain = %d, %v", removed, err)
	}
	if removed, err := r.Sweep(ctx); err != nil || removed != 1 {
		t.Fatalf("Sweep = %d, %v", removed, err)
	}
	if _, err := store.GetCollection(ctx, full.ID); err != nil {
		t.Fatalf("populated collection removed: %v", err)
	}
	if _, err := store.GetCollection(ctx, empty.ID); !errors.Is(err, vault.ErrNotFound) {
		t.Fatalf("expected empty collection swept, got %v", err)
	}
}

func TestReconcilerServeRunsScheduledChecks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	space := testsupport.NewSpace(t, store, "home")
	project := testsupport.NewProject(t, store, space.ID, "p")
	empty := testsupport.NewCollection(t, store, project.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewReconciler(store, logging.NewNop(), 0, time.Hour)
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx) }()

	r.Schedule(empty.ID)
	deadline := time.Now().Add(5 * time.Second)
	for {
		_, err := store.GetCollection(context.Background(), empty.ID)
		if errors.Is(err, vault.ErrNotFound) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the reconciler")
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop")
	}
	if r.String() == "" {
		t.Fatal("expected a service name")
	}
}

func TestProgressTablePublishesCompletion(t *testing.T) {
	table := newProgressTable(time.Hour)
	if _, _, _, ok := table.update(1, 5); ok {
		t.Fatal("expected update without start to fail")
	}
	table.start(1, 9)
	collectionID, publish, _, ok := table.update(1, 5)
	if !ok || !publish || collectionID != 9 {
		t.Fatalf("first update = %d, %v, %v", collectionID, publish, ok)
	}
	if _, publish, _, _ := table.update(1, 6); publish {
		t.Fatal("expected rate-limited update")
	}
	if _, publish, _, _ := table.update(1, 100); !publish {
		t.Fatal("100 must always publish")
	}
	if pct, ok := table.get(1); !ok || pct != 100 {
		t.Fatalf("get = %d, %v", pct, ok)
	}
	table.clear(1)
	if _, ok := table.get(1); ok {
		t.Fatal("expected entry cleared")
	}
}
