package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/reviewer/internal/core/domain"
	"github.com/vietddude/reviewer/internal/infra/storage/memory"
	"github.com/vietddude/reviewer/internal/processing/dispatch"
	"github.com/vietddude/reviewer/internal/processing/retry"
)

type classifyFunc func(ctx context.Context, p domain.ReviewPayload) (domain.ReviewOutput, error)

func (f classifyFunc) Classify(ctx context.Context, p domain.ReviewPayload) (domain.ReviewOutput, error) {
	return f(ctx, p)
}

func okOutput(p domain.ReviewPayload) domain.ReviewOutput {
	return domain.ReviewOutput{CorrectedText: p.Text, Gender: domain.GenderNeutral, Model: "test", Cost: 0.01}
}

func newDispatcher(c dispatch.Classifier) *dispatch.Dispatcher {
	return dispatch.New(
		dispatch.Config{MaxAttempts: 2, CallTimeout: time.Second, Model: "test"},
		c,
		&retry.Backoff{Base: time.Millisecond, Max: 5 * time.Millisecond},
	)
}

func seed(store *memory.Store, n int) {
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("item-%d", i)
		store.Add(domain.NewWorkItem(id, domain.ReviewPayload{Text: id, Gender: domain.GenderNeutral}))
	}
}

type recordingObserver struct {
	mu              sync.Mutex
	started         int
	skipped         int
	cycles          []*domain.Cycle
	persistFailures int
	storeErrs       []error
}

func (o *recordingObserver) CycleStarted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *recordingObserver) CycleSkipped() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skipped++
}

func (o *recordingObserver) CycleFinished(c *domain.Cycle, persistFailures int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cycles = append(o.cycles, c)
	o.persistFailures += persistFailures
}

func (o *recordingObserver) StoreFailed(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.storeErrs = append(o.storeErrs, err)
}

// failingStore wraps a memory store and fails selected operations.
type failingStore struct {
	*memory.Store
	fetchErr error
	writeErr map[string]error
}

func (f *failingStore) FetchPending(ctx context.Context, max int) ([]domain.WorkItem, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.Store.FetchPending(ctx, max)
}

func (f *failingStore) WriteResult(ctx context.Context, id string, res domain.ClassificationResult) error {
	if err, ok := f.writeErr[id]; ok {
		return err
	}
	return f.Store.WriteResult(ctx, id, res)
}

type fakeLock struct {
	held     bool
	acquired atomic.Int32
	released atomic.Int32
}

func (l *fakeLock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	if l.held {
		return false, nil
	}
	l.acquired.Add(1)
	return true, nil
}

func (l *fakeLock) Refresh(ctx context.Context, ttl time.Duration) error { return nil }

func (l *fakeLock) Release(ctx context.Context) error {
	l.released.Add(1)
	return nil
}

func TestRunCycle_PersistsEveryOutcome(t *testing.T) {
	store := memory.NewStore()
	seed(store, 5)
	obs := &recordingObserver{}

	cls := classifyFunc(func(ctx context.Context, p domain.ReviewPayload) (domain.ReviewOutput, error) {
		if p.Text == "item-3" {
			return domain.ReviewOutput{}, domain.Permanent(errors.New("rejected"))
		}
		return okOutput(p), nil
	})

	s := New(Config{BatchSize: 10, Concurrency: 2}, Deps{Store: store, Runner: newDispatcher(cls), Observer: obs})
	cycle, err := s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if !cycle.Complete() {
		t.Fatalf("cycle incomplete: %d outcomes for %d items", len(cycle.Outcomes), len(cycle.Batch))
	}

	succeeded, failed, _ := cycle.Summary()
	if succeeded != 4 || failed != 1 {
		t.Errorf("summary = %d/%d, want 4/1", succeeded, failed)
	}
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("item-%d", i)
		if store.Writes(id) != 1 {
			t.Errorf("%s written %d times, want 1", id, store.Writes(id))
		}
	}
	if res, _ := store.Result("item-3"); res.Status != domain.StatusFailed {
		t.Errorf("item-3 status = %s, want failed", res.Status)
	}

	pending, _ := store.FetchPending(context.Background(), 0)
	if len(pending) != 0 {
		t.Errorf("pending after cycle = %d, want 0", len(pending))
	}
	if len(obs.cycles) != 1 || obs.started != 1 {
		t.Errorf("observer saw %d cycles and %d starts, want 1/1", len(obs.cycles), obs.started)
	}
}

func TestRunCycle_RespectsBatchSize(t *testing.T) {
	store := memory.NewStore()
	seed(store, 7)

	cls := classifyFunc(func(ctx context.Context, p domain.ReviewPayload) (domain.ReviewOutput, error) {
		return okOutput(p), nil
	})
	s := New(Config{BatchSize: 3, Concurrency: 3}, Deps{Store: store, Runner: newDispatcher(cls)})

	cycle, err := s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if len(cycle.Batch) != 3 {
		t.Errorf("batch = %d, want 3", len(cycle.Batch))
	}
	pending, _ := store.FetchPending(context.Background(), 0)
	if len(pending) != 4 {
		t.Errorf("pending = %d, want 4", len(pending))
	}
}

func TestRunCycle_EmptyStoreSkipsDispatch(t *testing.T) {
	var calls atomic.Int32
	cls := classifyFunc(func(ctx context.Context, p domain.ReviewPayload) (domain.ReviewOutput, error) {
		calls.Add(1)
		return okOutput(p), nil
	})
	obs := &recordingObserver{}
	s := New(Config{BatchSize: 10, Concurrency: 1}, Deps{Store: memory.NewStore(), Runner: newDispatcher(cls), Observer: obs})

	cycle, err := s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if len(cycle.Batch) != 0 || calls.Load() != 0 {
		t.Errorf("batch = %d, calls = %d, want 0/0", len(cycle.Batch), calls.Load())
	}
	if len(obs.cycles) != 1 {
		t.Errorf("observer saw %d cycles, want 1", len(obs.cycles))
	}
}

func TestRunCycle_FetchFailure(t *testing.T) {
	store := &failingStore{
		Store:    memory.NewStore(),
		fetchErr: domain.StoreUnavailable("fetch pending", errors.New("connection refused")),
	}
	obs := &recordingObserver{}
	cls := classifyFunc(func(ctx context.Context, p domain.ReviewPayload) (domain.ReviewOutput, error) {
		t.Error("classifier called after failed fetch")
		return okOutput(p), nil
	})
	s := New(Config{BatchSize: 10, Concurrency: 1}, Deps{Store: store, Runner: newDispatcher(cls), Observer: obs})

	_, err := s.RunCycle(context.Background())
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("RunCycle() error = %v, want ErrStoreUnavailable", err)
	}
	if len(obs.storeErrs) != 1 {
		t.Errorf("observer saw %d store errors, want 1", len(obs.storeErrs))
	}
}

func TestRunCycle_WriteFailureDoesNotStopOthers(t *testing.T) {
	mem := memory.NewStore()
	seed(mem, 3)
	store := &failingStore{
		Store:    mem,
		writeErr: map[string]error{"item-2": domain.StoreUnavailable("write result", errors.New("quota exceeded"))},
	}
	obs := &recordingObserver{}
	cls := classifyFunc(func(ctx context.Context, p domain.ReviewPayload) (domain.ReviewOutput, error) {
		return okOutput(p), nil
	})
	s := New(Config{BatchSize: 10, Concurrency: 3}, Deps{Store: store, Runner: newDispatcher(cls), Observer: obs})

	if _, err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	for _, id := range []string{"item-1", "item-3"} {
		if _, ok := mem.Result(id); !ok {
			t.Errorf("%s not persisted", id)
		}
	}
	if _, ok := mem.Result("item-2"); ok {
		t.Error("item-2 persisted despite write failure")
	}
	if obs.persistFailures != 1 {
		t.Errorf("persist failures = %d, want 1", obs.persistFailures)
	}

	// The unpersisted item is still pending for the next cycle.
	pending, _ := mem.FetchPending(context.Background(), 0)
	if len(pending) != 1 || pending[0].ID != "item-2" {
		t.Errorf("pending = %v, want [item-2]", pending)
	}
}

func TestRunCycle_JournalsFailures(t *testing.T) {
	store := memory.NewStore()
	seed(store, 3)
	journal := memory.NewJournal()

	// item-1 was journaled by an earlier cycle and now succeeds.
	stale := domain.NewFailedItem(domain.NewWorkItem("item-1", domain.ReviewPayload{Text: "item-1"}),
		domain.ClassificationResult{Status: domain.StatusFailed, Err: &domain.ItemError{Kind: domain.KindTransient}}, "old")
	if err := journal.Record(context.Background(), stale); err != nil {
		t.Fatal(err)
	}

	cls := classifyFunc(func(ctx context.Context, p domain.ReviewPayload) (domain.ReviewOutput, error) {
		if p.Text == "item-2" {
			return domain.ReviewOutput{}, domain.Permanent(errors.New("rejected"))
		}
		return okOutput(p), nil
	})
	s := New(Config{BatchSize: 10, Concurrency: 2}, Deps{Store: store, Runner: newDispatcher(cls), Journal: journal})

	cycle, err := s.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	failed, err := journal.List(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 {
		t.Fatalf("journal has %d entries, want 1", len(failed))
	}
	if failed[0].ID != "item-2" || failed[0].CycleID != cycle.ID {
		t.Errorf("journal entry = %+v", failed[0])
	}
	if failed[0].Kind != domain.KindPermanent {
		t.Errorf("kind = %s, want permanent", failed[0].Kind)
	}
}

func TestRunCycle_Lock(t *testing.T) {
	t.Run("held elsewhere", func(t *testing.T) {
		store := memory.NewStore()
		seed(store, 2)
		lock := &fakeLock{held: true}
		obs := &recordingObserver{}
		cls := classifyFunc(func(ctx context.Context, p domain.ReviewPayload) (domain.ReviewOutput, error) {
			return okOutput(p), nil
		})
		s := New(Config{BatchSize: 10, Concurrency: 1, LockTTL: time.Minute}, Deps{Store: store, Runner: newDispatcher(cls), Lock: lock, Observer: obs})

		if _, err := s.RunCycle(context.Background()); !errors.Is(err, ErrCycleLocked) {
			t.Fatalf("RunCycle() error = %v, want ErrCycleLocked", err)
		}
		if store.Writes("item-1") != 0 {
			t.Error("cycle ran without the lock")
		}
		if lock.released.Load() != 0 {
			t.Error("released a lock it never held")
		}
		if obs.skipped != 1 || obs.started != 0 {
			t.Errorf("skipped = %d, started = %d, want 1/0", obs.skipped, obs.started)
		}
	})

	t.Run("acquired and released", func(t *testing.T) {
		store := memory.NewStore()
		seed(store, 2)
		lock := &fakeLock{}
		cls := classifyFunc(func(ctx context.Context, p domain.ReviewPayload) (domain.ReviewOutput, error) {
			return okOutput(p), nil
		})
		s := New(Config{BatchSize: 10, Concurrency: 1, LockTTL: time.Minute}, Deps{Store: store, Runner: newDispatcher(cls), Lock: lock})

		if _, err := s.RunCycle(context.Background()); err != nil {
			t.Fatalf("RunCycle() error = %v", err)
		}
		if lock.acquired.Load() != 1 || lock.released.Load() != 1 {
			t.Errorf("acquired = %d, released = %d, want 1/1", lock.acquired.Load(), lock.released.Load())
		}
	})
}

// recyclingStore puts failed items straight back to pending so every cycle
// fetches them again.
type recyclingStore struct {
	*memory.Store
	fetching func()
}

func (r *recyclingStore) FetchPending(ctx context.Context, max int) ([]domain.WorkItem, error) {
	r.fetching()
	return r.Store.FetchPending(ctx, max)
}

func (r *recyclingStore) WriteResult(ctx context.Context, id string, res domain.ClassificationResult) error {
	if err := r.Store.WriteResult(ctx, id, res); err != nil {
		return err
	}
	if res.Status == domain.StatusFailed {
		_, err := r.Store.ResetFailed(ctx, []string{id})
		return err
	}
	return nil
}

func TestRun_CyclesNeverOverlap(t *testing.T) {
	var (
		mu         sync.Mutex
		violations []string
		fetches    atomic.Int32
	)
	active := make(map[string]bool)

	mem := memory.NewStore()
	seed(mem, 4)
	store := &recyclingStore{
		Store: mem,
		fetching: func() {
			fetches.Add(1)
			mu.Lock()
			defer mu.Unlock()
			if len(active) > 0 {
				violations = append(violations, "fetch while calls in flight")
			}
		},
	}

	cls := classifyFunc(func(ctx context.Context, p domain.ReviewPayload) (domain.ReviewOutput, error) {
		mu.Lock()
		if active[p.Text] {
			violations = append(violations, "concurrent calls for "+p.Text)
		}
		active[p.Text] = true
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		delete(active, p.Text)
		mu.Unlock()
		return domain.ReviewOutput{}, domain.Permanent(errors.New("always fails"))
	})

	s := New(Config{Interval: time.Millisecond, BatchSize: 10, Concurrency: 4}, Deps{Store: store, Runner: newDispatcher(cls)})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if fetches.Load() < 2 {
		t.Fatalf("only %d cycles ran", fetches.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(violations) > 0 {
		t.Errorf("overlap detected: %v", violations)
	}
}

func TestRun_StoreFailureKeepsLooping(t *testing.T) {
	store := &failingStore{
		Store:    memory.NewStore(),
		fetchErr: domain.StoreUnavailable("fetch pending", errors.New("down")),
	}
	obs := &recordingObserver{}
	cls := classifyFunc(func(ctx context.Context, p domain.ReviewPayload) (domain.ReviewOutput, error) {
		return okOutput(p), nil
	})
	s := New(Config{Interval: time.Millisecond, BatchSize: 10, Concurrency: 1}, Deps{Store: store, Runner: newDispatcher(cls), Observer: obs})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.storeErrs) < 2 {
		t.Errorf("store errors = %d, want the loop to keep retrying", len(obs.storeErrs))
	}
}

func TestRun_GracefulStopDrainsCycle(t *testing.T) {
	store := memory.NewStore()
	seed(store, 3)

	entered := make(chan struct{}, 3)
	cls := classifyFunc(func(ctx context.Context, p domain.ReviewPayload) (domain.ReviewOutput, error) {
		entered <- struct{}{}
		time.Sleep(50 * time.Millisecond)
		return okOutput(p), nil
	})
	s := New(Config{Interval: time.Hour, BatchSize: 10, Concurrency: 1}, Deps{Store: store, Runner: newDispatcher(cls)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-entered
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after stop")
	}

	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("item-%d", i)
		if res, ok := store.Result(id); !ok || res.Status != domain.StatusSucceeded {
			t.Errorf("%s not drained: ok=%v status=%s", id, ok, res.Status)
		}
	}
}

func TestRun_HardStopAbandonsCycle(t *testing.T) {
	store := memory.NewStore()
	seed(store, 2)

	entered := make(chan struct{}, 2)
	cls := classifyFunc(func(ctx context.Context, p domain.ReviewPayload) (domain.ReviewOutput, error) {
		entered <- struct{}{}
		<-ctx.Done()
		return domain.ReviewOutput{}, ctx.Err()
	})
	s := New(Config{Interval: time.Hour, BatchSize: 10, Concurrency: 1}, Deps{Store: store, Runner: newDispatcher(cls)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-entered
	cancel()
	s.HardStop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after hard stop")
	}

	pending, _ := store.FetchPending(context.Background(), 0)
	if len(pending) != 2 {
		t.Errorf("pending after hard stop = %d, want 2", len(pending))
	}
}
