package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/vietddude/reviewer/internal/core/domain"
	"github.com/vietddude/reviewer/internal/infra/storage"
)

type record struct {
	item   domain.WorkItem
	result *domain.ClassificationResult
	writes int
}

// Store is a map-backed review store for local runs and tests.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record
	order   []string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{records: make(map[string]*record)}
}

// Add inserts items as pending. Existing ids are replaced and reset.
func (s *Store) Add(items ...domain.WorkItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		if _, exists := s.records[it.ID]; !exists {
			s.order = append(s.order, it.ID)
		}
		it.Status = domain.StatusPending
		it.Attempt = 0
		s.records[it.ID] = &record{item: it}
	}
}

func (s *Store) FetchPending(ctx context.Context, max int) ([]domain.WorkItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.StoreUnavailable("fetch pending", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []domain.WorkItem
	for _, id := range s.order {
		r := s.records[id]
		if r.result != nil {
			continue
		}
		items = append(items, r.item)
		if max > 0 && len(items) >= max {
			break
		}
	}
	return items, nil
}

func (s *Store) WriteResult(ctx context.Context, itemID string, res domain.ClassificationResult) error {
	if err := ctx.Err(); err != nil {
		return domain.StoreUnavailable("write result", err)
	}
	if !res.Status.IsTerminal() {
		return fmt.Errorf("write result %s: non-terminal status %q", itemID, res.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[itemID]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrItemNotFound, itemID)
	}
	res.ItemID = itemID
	r.result = &res
	r.writes++
	return nil
}

// Result returns the stored outcome for an item.
func (s *Store) Result(itemID string) (domain.ClassificationResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[itemID]
	if !ok || r.result == nil {
		return domain.ClassificationResult{}, false
	}
	return *r.result, true
}

// Writes returns how many times a result was written for an item.
func (s *Store) Writes(itemID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.records[itemID]; ok {
		return r.writes
	}
	return 0
}

func (s *Store) Counts(ctx context.Context) (storage.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c storage.Counts
	for _, r := range s.records {
		switch {
		case r.result == nil:
			c.Pending++
		case r.result.Status == domain.StatusSucceeded:
			c.Succeeded++
		default:
			c.Failed++
		}
	}
	return c, nil
}

func (s *Store) ResetFailed(ctx context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, r := range s.records {
		if r.result == nil || r.result.Status != domain.StatusFailed {
			continue
		}
		if len(ids) > 0 && !slices.Contains(ids, id) {
			continue
		}
		r.result = nil
		n++
	}
	return n, nil
}

// Journal is an in-memory failure journal.
type Journal struct {
	mu      sync.Mutex
	entries map[string]domain.FailedItem
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{entries: make(map[string]domain.FailedItem)}
}

func (j *Journal) Record(ctx context.Context, item domain.FailedItem) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if prev, ok := j.entries[item.ID]; ok {
		item.Failures = prev.Failures + 1
	} else if item.Failures < 1 {
		item.Failures = 1
	}
	j.entries[item.ID] = item
	return nil
}

func (j *Journal) List(ctx context.Context, limit int) ([]domain.FailedItem, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	items := make([]domain.FailedItem, 0, len(j.entries))
	for _, it := range j.entries {
		items = append(items, it)
	}
	slices.SortFunc(items, func(a, b domain.FailedItem) int {
		if a.Failures != b.Failures {
			return b.Failures - a.Failures
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (j *Journal) Resolve(ctx context.Context, id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.entries, id)
	return nil
}

func (j *Journal) Count(ctx context.Context) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries), nil
}

var (
	_ storage.ReviewStore    = (*Store)(nil)
	_ storage.StatusReader   = (*Store)(nil)
	_ storage.Resetter       = (*Store)(nil)
	_ storage.FailureJournal = (*Journal)(nil)
)
