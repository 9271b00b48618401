// Package scheduler runs fetch-dispatch-persist cycles on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/reviewer/internal/core/domain"
	"github.com/vietddude/reviewer/internal/infra/storage"
	"github.com/vietddude/reviewer/internal/processing/metrics"
)

// ErrCycleLocked is returned when another instance holds the cycle lock.
var ErrCycleLocked = errors.New("cycle lock held by another instance")

// persistGrace bounds write-back of completed outcomes after a hard stop.
const persistGrace = 10 * time.Second

// Runner processes one batch; implemented by dispatch.Dispatcher.
type Runner interface {
	Run(ctx context.Context, batch []domain.WorkItem, limit int) (map[string]domain.ClassificationResult, error)
}

// Lock keeps deployments sharing a store from running overlapping cycles.
type Lock interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Refresh(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// Observer receives cycle progress; implemented by health.Monitor.
type Observer interface {
	CycleStarted()
	CycleSkipped()
	CycleFinished(c *domain.Cycle, persistFailures int)
	StoreFailed(err error)
}

// Config holds scheduler settings.
type Config struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
	LockTTL     time.Duration
}

// Deps are the collaborators of a scheduler. Journal, Lock and Observer
// are optional.
type Deps struct {
	Store    storage.ReviewStore
	Runner   Runner
	Journal  storage.FailureJournal
	Lock     Lock
	Observer Observer
}

// Scheduler is the outer service loop. Cycles never overlap.
type Scheduler struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	mu       sync.Mutex
	hardStop context.CancelFunc
	stopped  bool
}

// New creates a scheduler.
func New(cfg Config, deps Deps) *Scheduler {
	return &Scheduler{
		cfg:  cfg,
		deps: deps,
		log:  slog.Default().With("component", "scheduler"),
	}
}

// Run loops until ctx is cancelled. Cancellation is observed between
// cycles and during the interval sleep; a cycle in progress drains under
// a work context that only HardStop cancels.
func (s *Scheduler) Run(ctx context.Context) error {
	work, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.hardStop = cancel
	s.mu.Unlock()

	s.log.Info("Scheduler started", "interval", s.cfg.Interval, "batch_size", s.cfg.BatchSize, "concurrency", s.cfg.Concurrency)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			s.log.Info("Scheduler stopped")
			return nil
		}
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler stopped")
			return nil
		case <-timer.C:
		}

		_, err := s.RunCycle(work)
		if work.Err() != nil {
			s.log.Warn("Cycle aborted by hard stop")
			return nil
		}
		switch {
		case errors.Is(err, ErrCycleLocked):
			s.log.Info("Skipping cycle, another instance is running")
		case err != nil:
			s.log.Error("Cycle failed", "error", err)
		}

		timer.Reset(s.cfg.Interval)
	}
}

// HardStop abandons the cycle in progress. Outcomes not yet produced are
// lost and their items stay pending in the store.
func (s *Scheduler) HardStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.hardStop != nil {
		s.hardStop()
	}
}

// RunCycle performs one fetch-dispatch-persist iteration.
func (s *Scheduler) RunCycle(ctx context.Context) (*domain.Cycle, error) {
	if s.deps.Lock != nil {
		release, err := s.acquireLock(ctx)
		if errors.Is(err, ErrCycleLocked) && s.deps.Observer != nil {
			s.deps.Observer.CycleSkipped()
		}
		if err != nil {
			return nil, err
		}
		defer release()
	}
	if s.deps.Observer != nil {
		s.deps.Observer.CycleStarted()
	}

	items, err := s.deps.Store.FetchPending(ctx, s.cfg.BatchSize)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("fetch").Inc()
		if s.deps.Observer != nil {
			s.deps.Observer.StoreFailed(err)
		}
		return nil, err
	}

	cycle := domain.NewCycle(items)
	log := s.log.With("cycle", cycle.ID)
	metrics.CycleBatchSize.Set(float64(len(items)))

	if len(items) == 0 {
		cycle.Finish(nil)
		log.Debug("No pending items")
		if s.deps.Observer != nil {
			s.deps.Observer.CycleFinished(cycle, 0)
		}
		return cycle, nil
	}

	log.Info("Cycle started", "items", len(items))
	outcomes, runErr := s.deps.Runner.Run(ctx, items, s.cfg.Concurrency)
	if errors.Is(runErr, domain.ErrInvalidConcurrency) {
		cycle.Finish(nil)
		if s.deps.Observer != nil {
			s.deps.Observer.CycleFinished(cycle, 0)
		}
		return cycle, runErr
	}

	persistCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		persistCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), persistGrace)
		defer cancel()
	}
	persistFailures := s.persist(persistCtx, cycle, outcomes)

	cycle.Finish(outcomes)
	metrics.CycleDuration.Observe(cycle.Duration().Seconds())
	if s.deps.Observer != nil {
		s.deps.Observer.CycleFinished(cycle, persistFailures)
	}

	succeeded, failed, cost := cycle.Summary()
	log.Info("Cycle finished",
		"duration", cycle.Duration().Round(time.Millisecond),
		"fetched", len(items),
		"succeeded", succeeded,
		"failed", failed,
		"unfinished", len(items)-len(outcomes),
		"persist_failures", persistFailures,
		"cost_usd", cost,
	)
	return cycle, runErr
}

// persist writes every outcome; one failed write does not stop the others.
func (s *Scheduler) persist(ctx context.Context, cycle *domain.Cycle, outcomes map[string]domain.ClassificationResult) int {
	failures := 0
	written := make(map[string]struct{}, len(outcomes))

	for _, item := range cycle.Batch {
		res, ok := outcomes[item.ID]
		if !ok {
			continue
		}
		if _, dup := written[item.ID]; dup {
			continue
		}
		written[item.ID] = struct{}{}

		if err := s.deps.Store.WriteResult(ctx, item.ID, res); err != nil {
			failures++
			metrics.StoreErrors.WithLabelValues("write").Inc()
			s.log.Error("Failed to persist outcome", "cycle", cycle.ID, "item", item.ID, "error", err)
			continue
		}
		s.journal(ctx, cycle.ID, item, res)
	}
	return failures
}

func (s *Scheduler) journal(ctx context.Context, cycleID string, item domain.WorkItem, res domain.ClassificationResult) {
	if s.deps.Journal == nil {
		return
	}
	var err error
	if res.Status == domain.StatusFailed {
		err = s.deps.Journal.Record(ctx, domain.NewFailedItem(item, res, cycleID))
	} else {
		err = s.deps.Journal.Resolve(ctx, item.ID)
	}
	if err != nil {
		s.log.Warn("Failed to update failure journal", "item", item.ID, "error", err)
	}
}

// acquireLock takes the cycle lock and keeps it alive until release is called.
func (s *Scheduler) acquireLock(ctx context.Context) (func(), error) {
	ttl := s.cfg.LockTTL
	ok, err := s.deps.Lock.Acquire(ctx, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCycleLocked
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(max(ttl/3, time.Second))
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := s.deps.Lock.Refresh(ctx, ttl); err != nil {
					s.log.Warn("Failed to refresh cycle lock", "error", err)
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.deps.Lock.Release(releaseCtx); err != nil {
			s.log.Warn("Failed to release cycle lock", "error", err)
		}
	}, nil
}
