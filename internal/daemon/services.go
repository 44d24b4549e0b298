package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"mediavault/internal/content"
	"mediavault/internal/logging"
	"mediavault/internal/metrics"
	"mediavault/internal/notify"
	"mediavault/internal/vault"
)

const gaugeInterval = 15 * time.Second

// httpServer is the part of *http.Server the metrics service drives.
type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// metricsService serves /metrics, /healthz, and /status until its context ends.
type metricsService struct {
	server          httpServer
	shutdownTimeout time.Duration
}

func newMetricsService(bind string, shutdownTimeout time.Duration, status http.Handler) *metricsService {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if status != nil {
		mux.Handle(StatusPath, status)
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return &metricsService{
		server: &http.Server{
			Addr:              bind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		shutdownTimeout: shutdownTimeout,
	}
}

func (m *metricsService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
		defer cancel()
		if err := m.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (m *metricsService) String() string { return "metrics-http" }

// gaugeService refreshes status and cache gauges and keeps the
// materialization cache within bounds.
type gaugeService struct {
	store    *vault.Store
	content  *content.Store
	logger   *slog.Logger
	interval time.Duration
}

func newGaugeService(store *vault.Store, contentStore *content.Store, logger *slog.Logger, interval time.Duration) *gaugeService {
	return &gaugeService{store: store, content: contentStore, logger: logger, interval: interval}
}

func (g *gaugeService) Serve(ctx context.Context) error {
	g.collect(ctx)
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.collect(ctx)
		}
	}
}

func (g *gaugeService) collect(ctx context.Context) {
	counts, err := g.store.Stats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			g.logger.Warn("gauge refresh failed", logging.Error(err))
		}
		return
	}
	byName := make(map[string]int, len(counts))
	for status, count := range counts {
		byName[status.String()] += count
	}
	metrics.UpdateStatusGauges(byName)

	if g.content == nil {
		return
	}
	cache := g.content.Cache()
	if err := cache.Prune(ctx, ""); err != nil {
		g.logger.Warn("cache prune failed", logging.Error(err))
	}
	stats, err := cache.Stats()
	if err != nil {
		g.logger.Warn("cache stats failed", logging.Error(err))
		return
	}
	metrics.UpdateCacheGauges(stats.TotalBytes, stats.Entries)
}

func (g *gaugeService) String() string { return "gauges" }

// trackerService feeds bus events into a Tracker.
type trackerService struct {
	bus     *notify.Bus
	tracker *notify.Tracker
}

func (s *trackerService) Serve(ctx context.Context) error {
	events, err := s.bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe tracker: %w", err)
	}
	s.tracker.Run(ctx, events)
	return ctx.Err()
}

func (s *trackerService) String() string { return "event-tracker" }
