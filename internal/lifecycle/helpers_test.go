package lifecycle_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"mediavault/internal/config"
	"mediavault/internal/lifecycle"
	"mediavault/internal/logging"
	"mediavault/internal/notifications"
	"mediavault/internal/notify"
	"mediavault/internal/testsupport"
	"mediavault/internal/vault"
)

type recordingBus struct {
	mu     sync.Mutex
	events []notify.Event
}

func (b *recordingBus) Publish(event notify.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) snapshot() []notify.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]notify.Event(nil), b.events...)
}

func (b *recordingBus) forMedia(id int64) []notify.Event {
	var out []notify.Event
	for _, event := range b.snapshot() {
		if event.MediaID == id {
			out = append(out, event)
		}
	}
	return out
}

type sentNotification struct {
	event   notifications.Event
	payload notifications.Payload
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{event: event, payload: payload})
	return nil
}

func (n *recordingNotifier) count(event notifications.Event) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, sent := range n.sent {
		if sent.event == event {
			total++
		}
	}
	return total
}

type harness struct {
	cfg      *config.Config
	store    *vault.Store
	engine   *lifecycle.Engine
	bus      *recordingBus
	notifier *recordingNotifier
	project  *vault.Project
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	return newHarnessWithContent(t, cfg, testsupport.NewContentStore(t, cfg))
}

func newHarnessWithContent(t *testing.T, cfg *config.Config, contentStore lifecycle.ContentStore) *harness {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	bus := &recordingBus{}
	notifier := &recordingNotifier{}
	engine := lifecycle.New(cfg, store, contentStore, logging.NewNop(),
		lifecycle.WithBus(bus),
		lifecycle.WithNotifier(notifier),
	)
	space := testsupport.NewSpace(t, store, "home")
	project := testsupport.NewProject(t, store, space.ID, "Family")
	return &harness{cfg: cfg, store: store, engine: engine, bus: bus, notifier: notifier, project: project}
}

// source writes a plaintext file outside the content directory.
func (h *harness) source(t *testing.T, name, body string) string {
	t.Helper()
	return testsupport.WriteFile(t, filepath.Join(testsupport.BaseDir(h.cfg), "camera"), name, []byte(body))
}

func (h *harness) importOne(t *testing.T, name, body string) *vault.Media {
	t.Helper()
	result, err := h.engine.Import(context.Background(), h.project.ID, h.source(t, name, body))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(result.Imported) != 1 {
		t.Fatalf("expected 1 imported media, got %d", len(result.Imported))
	}
	return result.Imported[0]
}

// queued imports a file and moves it to Queued.
func (h *harness) queued(t *testing.T, name string) *vault.Media {
	t.Helper()
	media := h.importOne(t, name, "payload of "+name)
	if _, err := h.engine.Enqueue(context.Background(), media.ID); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	return media
}

// uploading imports a file and moves it to Uploading.
func (h *harness) uploading(t *testing.T, name string) *vault.Media {
	t.Helper()
	media := h.queued(t, name)
	if _, err := h.engine.BeginUpload(context.Background(), media.ID); err != nil {
		t.Fatalf("BeginUpload failed: %v", err)
	}
	return media
}

func (h *harness) status(t *testing.T, id int64) *vault.Media {
	t.Helper()
	media, err := h.store.GetMedia(context.Background(), id)
	if err != nil {
		t.Fatalf("GetMedia(%d): %v", id, err)
	}
	return media
}
