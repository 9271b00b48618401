package memory

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/vietddude/reviewer/internal/core/domain"
	"github.com/vietddude/reviewer/internal/infra/storage"
)

func seed(s *Store, ids ...string) {
	for _, id := range ids {
		s.Add(domain.NewWorkItem(id, domain.ReviewPayload{Text: "text " + id, Gender: domain.GenderMale}))
	}
}

func success(id string) domain.ClassificationResult {
	now := time.Unix(1700000000, 0)
	return domain.ClassificationResult{
		ItemID:     id,
		Status:     domain.StatusSucceeded,
		Output:     &domain.ReviewOutput{CorrectedText: "fixed", Gender: domain.GenderMale, Model: "m", Cost: 0.01},
		Attempts:   1,
		StartedAt:  now,
		FinishedAt: now.Add(time.Second),
	}
}

func TestFetchPending(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seed(s, "a", "b", "c", "d")

	items, err := s.FetchPending(ctx, 2)
	if err != nil {
		t.Fatalf("FetchPending failed: %v", err)
	}
	if len(items) != 2 || items[0].ID != "a" || items[1].ID != "b" {
		t.Fatalf("expected [a b], got %v", items)
	}

	if err := s.WriteResult(ctx, "a", success("a")); err != nil {
		t.Fatalf("WriteResult failed: %v", err)
	}
	items, _ = s.FetchPending(ctx, 0)
	if len(items) != 3 {
		t.Errorf("expected 3 pending after write, got %d", len(items))
	}
	for _, it := range items {
		if it.ID == "a" {
			t.Errorf("written item must not be pending")
		}
	}
}

func TestWriteResult_Idempotent(t *testing.T) {
	ctx := context.Background()
	once, twice := NewStore(), NewStore()
	seed(once, "a", "b")
	seed(twice, "a", "b")

	res := success("a")
	if err := once.WriteResult(ctx, "a", res); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := twice.WriteResult(ctx, "a", res); err != nil {
			t.Fatal(err)
		}
	}

	r1, _ := once.Result("a")
	r2, _ := twice.Result("a")
	if !reflect.DeepEqual(r1, r2) {
		t.Errorf("results differ:\n%+v\n%+v", r1, r2)
	}
	c1, _ := once.Counts(ctx)
	c2, _ := twice.Counts(ctx)
	if c1 != c2 {
		t.Errorf("counts differ: %+v vs %+v", c1, c2)
	}
	p1, _ := once.FetchPending(ctx, 0)
	p2, _ := twice.FetchPending(ctx, 0)
	if !reflect.DeepEqual(p1, p2) {
		t.Errorf("pending sets differ: %v vs %v", p1, p2)
	}
	if twice.Writes("a") != 2 {
		t.Errorf("expected 2 recorded writes, got %d", twice.Writes("a"))
	}
}

func TestWriteResult_Errors(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seed(s, "a")

	if err := s.WriteResult(ctx, "missing", success("missing")); !errors.Is(err, storage.ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
	if err := s.WriteResult(ctx, "a", domain.ClassificationResult{Status: domain.StatusInFlight}); err == nil {
		t.Error("expected error for non-terminal result")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := s.FetchPending(cancelled, 1); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestResetFailed(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seed(s, "a", "b", "c")

	item := domain.WorkItem{ID: "b", Attempt: 3}
	_ = s.WriteResult(ctx, "a", success("a"))
	_ = s.WriteResult(ctx, "b", domain.Failed(item, domain.KindPermanent, "bad", time.Now()))
	_ = s.WriteResult(ctx, "c", domain.Failed(item, domain.KindTransient, "slow", time.Now()))

	n, err := s.ResetFailed(ctx, []string{"b"})
	if err != nil || n != 1 {
		t.Fatalf("expected 1 reset, got %d (%v)", n, err)
	}
	c, _ := s.Counts(ctx)
	if c != (storage.Counts{Pending: 1, Succeeded: 1, Failed: 1}) {
		t.Errorf("unexpected counts %+v", c)
	}

	n, _ = s.ResetFailed(ctx, nil)
	if n != 1 {
		t.Errorf("expected remaining failed item reset, got %d", n)
	}
}

func TestJournal(t *testing.T) {
	ctx := context.Background()
	j := NewJournal()

	_ = j.Record(ctx, domain.FailedItem{ID: "x", Kind: domain.KindPermanent})
	_ = j.Record(ctx, domain.FailedItem{ID: "y", Kind: domain.KindTransient})
	_ = j.Record(ctx, domain.FailedItem{ID: "y", Kind: domain.KindTransient})

	items, _ := j.List(ctx, 0)
	if len(items) != 2 || items[0].ID != "y" || items[0].Failures != 2 {
		t.Fatalf("expected y first with 2 failures, got %+v", items)
	}

	_ = j.Resolve(ctx, "y")
	if n, _ := j.Count(ctx); n != 1 {
		t.Errorf("expected 1 entry after resolve, got %d", n)
	}
}
