package notify

import (
	"context"
	"sync"
)

// MediaView is the observer-side state of one Media.
type MediaView struct {
	CollectionID int64
	Progress     int
	IsUploaded   bool
}

// DeletedHistory caps how many deleted Media IDs the Tracker remembers.
// Media IDs are never reused, so a tombstone only has to outlive events
// already in flight for that Media.
const DeletedHistory = 1024

// Tracker folds bus events into a per-media view. Applying the same event
// twice is harmless, and once a Media is seen as uploaded a later progress
// event cannot roll it back.
type Tracker struct {
	mu      sync.RWMutex
	media   map[int64]MediaView
	deleted map[int64]struct{}
	order   []int64
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		media:   make(map[int64]MediaView),
		deleted: make(map[int64]struct{}),
	}
}

// Seed records the initial state read when subscribing.
func (t *Tracker) Seed(mediaID int64, view MediaView) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, gone := t.deleted[mediaID]; gone {
		return
	}
	if current, ok := t.media[mediaID]; ok && current.IsUploaded {
		return
	}
	t.media[mediaID] = view
}

// Apply folds one event into the view.
func (t *Tracker) Apply(event Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.Kind {
	case KindDelete:
		delete(t.media, event.MediaID)
		t.remember(event.MediaID)
	case KindChange:
		if _, gone := t.deleted[event.MediaID]; gone {
			return
		}
		current, ok := t.media[event.MediaID]
		if ok && current.IsUploaded && !event.IsUploaded {
			return
		}
		view := MediaView{
			CollectionID: event.CollectionID,
			Progress:     event.Progress,
			IsUploaded:   event.IsUploaded,
		}
		if view.IsUploaded {
			view.Progress = 100
		}
		t.media[event.MediaID] = view
	}
}

func (t *Tracker) remember(mediaID int64) {
	if _, ok := t.deleted[mediaID]; ok {
		return
	}
	t.deleted[mediaID] = struct{}{}
	t.order = append(t.order, mediaID)
	if len(t.order) > DeletedHistory {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.deleted, oldest)
	}
}

// Run applies events until the channel closes or ctx ends.
func (t *Tracker) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			t.Apply(event)
		}
	}
}

// Get returns the view for a Media.
func (t *Tracker) Get(mediaID int64) (MediaView, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	view, ok := t.media[mediaID]
	return view, ok
}

// UploadedCount counts uploaded Media in a Collection.
func (t *Tracker) UploadedCount(collectionID int64) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	count := 0
	for _, view := range t.media {
		if view.CollectionID == collectionID && view.IsUploaded {
			count++
		}
	}
	return count
}

// Len returns the number of tracked Media.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.media)
}

// Views returns a copy of every tracked view keyed by Media ID.
func (t *Tracker) Views() map[int64]MediaView {
	t.mu.RLock()
	defer t.mu.RUnlock()
	views := make(map[int64]MediaView, len(t.media))
	for id, view := range t.media {
		views[id] = view
	}
	return views
}

// Tombstones returns how many deleted Media IDs are remembered.
func (t *Tracker) Tombstones() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.deleted)
}
