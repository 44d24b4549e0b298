package lifecycle

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mediavault/internal/logging"
)

type progressEntry struct {
	collectionID int64
	percent      int
	limiter      *rate.Limiter
	sampler      *logging.ProgressSampler
}

// progressTable keeps the latest upload percentage per media. Nothing here
// is persisted.
type progressTable struct {
	mu       sync.Mutex
	interval time.Duration
	entries  map[int64]*progressEntry
}

func newProgressTable(interval time.Duration) *progressTable {
	return &progressTable{
		interval: interval,
		entries:  make(map[int64]*progressEntry),
	}
}

func (p *progressTable) start(mediaID, collectionID int64) {
	limit := rate.Inf
	if p.interval > 0 {
		limit = rate.Every(p.interval)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[mediaID] = &progressEntry{
		collectionID: collectionID,
		limiter:      rate.NewLimiter(limit, 1),
		sampler:      logging.NewProgressSampler(10),
	}
}

// update stores percent and reports whether to publish and whether to log.
// 100 always publishes.
func (p *progressTable) update(mediaID int64, percent int) (collectionID int64, publish, log, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, found := p.entries[mediaID]
	if !found {
		return 0, false, false, false
	}
	entry.percent = percent
	publish = percent >= 100 || entry.limiter.Allow()
	return entry.collectionID, publish, entry.sampler.ShouldLog(percent), true
}

func (p *progressTable) get(mediaID int64) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[mediaID]
	if !ok {
		return 0, false
	}
	return entry.percent, true
}

func (p *progressTable) clear(mediaID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, mediaID)
}
