package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/reviewer/internal/core/domain"
	"github.com/vietddude/reviewer/internal/infra/storage/memory"
)

func TestClearJournal(t *testing.T) {
	ctx := context.Background()
	seed := func() *memory.Journal {
		j := memory.NewJournal()
		for _, id := range []string{"a", "b", "c"} {
			_ = j.Record(ctx, domain.FailedItem{ID: id, Kind: domain.KindPermanent})
		}
		return j
	}

	t.Run("selected ids", func(t *testing.T) {
		j := seed()
		if err := clearJournal(ctx, j, []string{"b"}); err != nil {
			t.Fatal(err)
		}
		if n, _ := j.Count(ctx); n != 2 {
			t.Errorf("count = %d, want 2", n)
		}
	})

	t.Run("all", func(t *testing.T) {
		j := seed()
		if err := clearJournal(ctx, j, nil); err != nil {
			t.Fatal(err)
		}
		if n, _ := j.Count(ctx); n != 0 {
			t.Errorf("count = %d, want 0", n)
		}
	})
}

func TestPrintFailures(t *testing.T) {
	var buf bytes.Buffer
	printFailures(&buf, []domain.FailedItem{{
		ID:         "sheet/Отзывы/12",
		Kind:       domain.KindTransient,
		Error:      strings.Repeat("x", 200),
		Attempts:   3,
		Failures:   2,
		LastFailed: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}})

	out := buf.String()
	for _, want := range []string{"sheet/Отзывы/12", "transient", "2026-01-02T03:04:05Z", "…"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"Привет мир", 7, "Привет…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
