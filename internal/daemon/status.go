package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"time"

	json "github.com/goccy/go-json"

	"mediavault/internal/logging"
	"mediavault/internal/vault"
)

// StatusPath is where the metrics listener serves the daemon Status.
const StatusPath = "/status"

const statusFetchTimeout = 3 * time.Second

// Status represents daemon runtime information.
type Status struct {
	Running      bool                 `json:"running"`
	Breaker      string               `json:"breaker"`
	Counts       map[vault.Status]int `json:"-"`
	StatusCounts map[string]int       `json:"counts"`
	Pending      []int64              `json:"pending_checks"`
	Tracked      int                  `json:"tracked"`
	Media        []MediaProgress      `json:"media"`
	DatabasePath string               `json:"database_path"`
	LockFilePath string               `json:"lock_file_path"`
}

// MediaProgress is the observed upload state of one Media.
type MediaProgress struct {
	MediaID      int64 `json:"media_id"`
	CollectionID int64 `json:"collection_id"`
	Progress     int   `json:"progress"`
	Uploaded     bool  `json:"uploaded"`
}

// Status reports whether this daemon is running plus queue, breaker, and
// per-media progress state.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		Breaker:      d.driver.BreakerState(),
		Pending:      d.engine.Reconciler().Pending(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
	}
	if counts, err := d.store.Stats(ctx); err == nil {
		status.Counts = counts
		status.StatusCounts = make(map[string]int, len(counts))
		for s, count := range counts {
			status.StatusCounts[s.String()] += count
		}
	} else {
		d.logger.Warn("status: media stats unavailable", logging.Error(err))
	}

	byID := make(map[int64]MediaProgress)
	if d.tracker != nil {
		status.Tracked = d.tracker.Len()
		for id, view := range d.tracker.Views() {
			byID[id] = MediaProgress{MediaID: id, CollectionID: view.CollectionID, Progress: view.Progress, Uploaded: view.IsUploaded}
		}
	}
	if uploading, err := d.store.ListMediaByStatus(ctx, vault.StatusUploading); err == nil {
		for _, media := range uploading {
			if _, ok := byID[media.ID]; !ok {
				byID[media.ID] = MediaProgress{MediaID: media.ID, CollectionID: media.CollectionID}
			}
		}
	} else {
		d.logger.Warn("status: uploading media unavailable", logging.Error(err))
	}
	for id, entry := range byID {
		if percent, ok := d.engine.Progress(id); ok && !entry.Uploaded {
			entry.Progress = percent
		}
		status.Media = append(status.Media, entry)
	}
	sort.Slice(status.Media, func(i, j int) bool { return status.Media[i].MediaID < status.Media[j].MediaID })
	return status
}

func statusHandler(source func(context.Context) Status) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := json.Marshal(source(r.Context()))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})
}

// FetchStatus reads the Status served by a running daemon on bind.
func FetchStatus(ctx context.Context, bind string) (*Status, error) {
	ctx, cancel := context.WithTimeout(ctx, statusFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+dialAddress(bind)+StatusPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch daemon status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch daemon status: %s", resp.Status)
	}
	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode daemon status: %w", err)
	}
	return &status, nil
}

// dialAddress turns a listen address into one a local client can dial.
func dialAddress(bind string) string {
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return bind
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
