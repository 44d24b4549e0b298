package lifecycle

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"mediavault/internal/logging"
	"mediavault/internal/metrics"
	"mediavault/internal/vault"
)

const minReconcileTick = 250 * time.Millisecond

// Reconciler removes Collections left empty by deletes or failed imports.
// Checks are scheduled with a delay and applied by Serve, Drain, or Sweep.
type Reconciler struct {
	store    *vault.Store
	logger   *slog.Logger
	delay    time.Duration
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	pending map[int64]time.Time
	wake    chan struct{}
}

// NewReconciler builds a Reconciler. interval <= 0 disables the periodic sweep.
func NewReconciler(store *vault.Store, logger *slog.Logger, delay, interval time.Duration) *Reconciler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reconciler{
		store:    store,
		logger:   logger.With(logging.String("reconciler", "emptiness")),
		delay:    delay,
		interval: interval,
		now:      time.Now,
		pending:  make(map[int64]time.Time),
		wake:     make(chan struct{}, 1),
	}
}

// Schedule queues an emptiness check for collectionID. Rescheduling an
// already pending Collection pushes its deadline back.
func (r *Reconciler) Schedule(collectionID int64) {
	if collectionID <= 0 {
		return
	}
	r.mu.Lock()
	r.pending[collectionID] = r.now().Add(r.delay)
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Pending returns the Collection IDs waiting for a check, ascending.
func (r *Reconciler) Pending() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RunDue checks every Collection whose delay has elapsed and returns how
// many were removed.
func (r *Reconciler) RunDue(ctx context.Context) (int, error) {
	return r.run(ctx, r.take(false))
}

// Drain checks every pending Collection immediately. Short-lived callers
// such as CLI commands use it before exiting.
func (r *Reconciler) Drain(ctx context.Context) (int, error) {
	return r.run(ctx, r.take(true))
}

// Sweep removes every empty Collection in the database.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	ids, err := r.store.EmptyCollectionIDs(ctx)
	if err != nil {
		return 0, err
	}
	return r.run(ctx, ids)
}

func (r *Reconciler) take(all bool) []int64 {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for id, due := range r.pending {
		if all || !due.After(now) {
			ids = append(ids, id)
			delete(r.pending, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Reconciler) run(ctx context.Context, ids []int64) (int, error) {
	removed := 0
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			r.requeue(ids[i:])
			return removed, err
		}
		ok, err := r.store.DeleteCollectionIfEmpty(ctx, id)
		if err != nil {
			r.requeue(ids[i:])
			return removed, err
		}
		if ok {
			removed++
			r.logger.DebugContext(ctx, "empty collection removed", logging.CollectionID(id))
		}
	}
	if removed > 0 {
		metrics.RecordReclaimed(removed)
		r.logger.InfoContext(ctx, "reclaimed empty collections", logging.Int("count", removed))
	}
	return removed, nil
}

func (r *Reconciler) requeue(ids []int64) {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if _, ok := r.pending[id]; !ok {
			r.pending[id] = now
		}
	}
}

func (r *Reconciler) nextDue() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var next time.Time
	for _, due := range r.pending {
		if next.IsZero() || due.Before(next) {
			next = due
		}
	}
	return next, !next.IsZero()
}

// Serve applies scheduled checks as they come due and runs the periodic
// sweep until ctx is cancelled.
func (r *Reconciler) Serve(ctx context.Context) error {
	var sweep <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		sweep = ticker.C
	}
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		wait := time.Hour
		if due, ok := r.nextDue(); ok {
			wait = max(due.Sub(r.now()), minReconcileTick)
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.wake:
		case <-timer.C:
			if _, err := r.RunDue(ctx); err != nil && ctx.Err() == nil {
				logging.WarnWithContext(ctx, r.logger, "emptiness check failed", "reconcile_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check database health with 'mediavault status'"),
					logging.String(logging.FieldImpact, "empty collections kept until the next attempt"),
				)
			}
		case <-sweep:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				logging.WarnWithContext(ctx, r.logger, "emptiness sweep failed", "reconcile_sweep_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check database health with 'mediavault status'"),
					logging.String(logging.FieldImpact, "empty collections kept until the next sweep"),
				)
			}
		}
	}
}

// String names the service for the supervisor.
func (r *Reconciler) String() string { return "emptiness-reconciler" }
