package daemon

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"mediavault/internal/logging"
	"mediavault/internal/metrics"
	"mediavault/internal/notify"
	"mediavault/internal/testsupport"
	"mediavault/internal/vault"
)

type fakeServer struct {
	started  chan struct{}
	stop     chan struct{}
	shutdown bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{started: make(chan struct{}), stop: make(chan struct{})}
}

func (f *fakeServer) ListenAndServe() error {
	close(f.started)
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(context.Context) error {
	f.shutdown = true
	close(f.stop)
	return nil
}

func TestMetricsServiceShutsDownOnCancel(t *testing.T) {
	server := newFakeServer()
	svc := &metricsService{server: server, shutdownTimeout: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	<-server.started
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !server.shutdown {
		t.Fatal("expected Shutdown to be called")
	}
}

type failingServer struct{}

func (failingServer) ListenAndServe() error          { return errors.New("address in use") }
func (failingServer) Shutdown(context.Context) error { return nil }

func TestMetricsServiceReportsListenFailure(t *testing.T) {
	svc := &metricsService{server: failingServer{}, shutdownTimeout: time.Second}
	if err := svc.Serve(context.Background()); err == nil {
		t.Fatal("expected listen failure")
	}
}

func TestGaugeServiceCollectsStatusCounts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	space := testsupport.NewSpace(t, store, "gauges")
	project := testsupport.NewProject(t, store, space.ID, "p")
	collection := testsupport.NewCollection(t, store, project.ID)
	testsupport.NewMedia(t, store, collection, vault.StatusQueued)
	testsupport.NewMedia(t, store, collection, vault.StatusQueued)
	testsupport.NewMedia(t, store, collection, vault.StatusError)

	svc := newGaugeService(store, testsupport.NewContentStore(t, cfg), logging.NewNop(), time.Hour)
	svc.collect(context.Background())

	if got := testutil.ToFloat64(metrics.MediaByStatus.WithLabelValues("queued")); got != 2 {
		t.Fatalf("expected queued gauge 2, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.MediaByStatus.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected error gauge 1, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.CacheEntries); got != 0 {
		t.Fatalf("expected empty cache, got %v", got)
	}
}

func TestTrackerServiceAppliesBusEvents(t *testing.T) {
	bus := notify.NewBus(logging.NewNop())
	t.Cleanup(func() { bus.Close() })
	tracker := notify.NewTracker()
	svc := &trackerService{bus: bus, tracker: tracker}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := bus.Publish(notify.Change(3, 11, 40, false)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		if view, ok := tracker.Get(11); ok {
			if view.CollectionID != 3 || view.Progress != 40 {
				t.Fatalf("unexpected view %+v", view)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("tracker never saw the event")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStatusHandlerEncodesStatus(t *testing.T) {
	handler := statusHandler(func(context.Context) Status {
		return Status{
			Running:      true,
			Breaker:      "half-open",
			StatusCounts: map[string]int{"queued": 2},
			Pending:      []int64{7},
			Tracked:      1,
			Media:        []MediaProgress{{MediaID: 4, CollectionID: 7, Progress: 35}},
		}
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, StatusPath, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected code %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var got Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Running || got.Breaker != "half-open" || got.StatusCounts["queued"] != 2 {
		t.Fatalf("unexpected status %+v", got)
	}
	if len(got.Pending) != 1 || got.Pending[0] != 7 {
		t.Fatalf("unexpected pending checks %v", got.Pending)
	}
	if len(got.Media) != 1 || got.Media[0].Progress != 35 || got.Media[0].CollectionID != 7 {
		t.Fatalf("unexpected media progress %+v", got.Media)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, StatusPath, nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST, got %d", rec.Code)
	}
}

func TestDialAddressUsesLoopbackForWildcards(t *testing.T) {
	tests := map[string]string{
		":9090":          "127.0.0.1:9090",
		"0.0.0.0:9090":   "127.0.0.1:9090",
		"[::]:9090":      "127.0.0.1:9090",
		"10.0.0.5:9090":  "10.0.0.5:9090",
		"localhost:9090": "localhost:9090",
	}
	for bind, want := range tests {
		if got := dialAddress(bind); got != want {
			t.Fatalf("dialAddress(%q) = %q, want %q", bind, got, want)
		}
	}
}
