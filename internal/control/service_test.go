package control

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietddude/reviewer/internal/core/config"
	"github.com/vietddude/reviewer/internal/core/domain"
	"github.com/vietddude/reviewer/internal/infra/storage"
	"github.com/vietddude/reviewer/internal/infra/storage/memory"
)

func testConfig(llmURL string) *config.AppConfig {
	return &config.AppConfig{
		Server: config.ServerConfig{Port: 0},
		Dispatch: config.DispatchConfig{
			MaxConcurrent: 2,
			MaxAttempts:   1,
			Interval:      time.Hour,
			CallTimeout:   10 * time.Second,
			BatchSize:     10,
			BackoffBase:   time.Millisecond,
			BackoffMax:    time.Millisecond,
		},
		LLM:     config.LLMConfig{Model: "test-model", BaseURL: llmURL, APIKey: "test"},
		Store:   config.StoreConfig{Driver: config.DriverMemory},
		Tracing: config.TracingConfig{ServiceName: "reviewer-test"},
	}
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(ctx, testConfig("http://127.0.0.1:1"))
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	if _, ok := svc.ReviewStore().(*memory.Store); !ok {
		t.Fatalf("store = %T, want *memory.Store", svc.ReviewStore())
	}

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := svc.Start(ctx); err == nil {
		t.Error("second Start succeeded")
	}

	time.Sleep(50 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := svc.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestService_StopAbandonsCycleAfterDeadline(t *testing.T) {
	entered := make(chan struct{}, 1)
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case entered <- struct{}{}:
		default:
		}
		<-r.Context().Done()
	}))
	defer provider.Close()

	ctx := context.Background()
	svc, err := NewService(ctx, testConfig(provider.URL))
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	store := svc.ReviewStore().(*memory.Store)
	store.Add(domain.NewWorkItem("r-1", domain.ReviewPayload{Text: "Хороший отель", Gender: domain.GenderMale}))

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("classifier never called")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	stopped := make(chan error, 1)
	go func() { stopped <- svc.Stop(stopCtx) }()

	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return after the deadline")
	}

	pending, err := store.FetchPending(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Errorf("pending = %d, want the abandoned item to stay pending", len(pending))
	}
}

func TestLLMConfig_Pricing(t *testing.T) {
	cfg := config.LLMConfig{
		Model: "grok",
		Pricing: map[string]config.ModelPricing{
			"grok":  {Input: 0.2, CachedInput: 0.05, Output: 0.5},
			"other": {Input: 9},
		},
	}
	got := llmConfig(cfg)
	if got.Pricing == nil || got.Pricing.Input != 0.2 || got.Pricing.Output != 0.5 {
		t.Errorf("pricing = %+v", got.Pricing)
	}

	cfg.Model = "unpriced"
	if llmConfig(cfg).Pricing != nil {
		t.Error("expected nil pricing for a model without an entry")
	}
}

type bareStore struct{}

func (bareStore) FetchPending(ctx context.Context, max int) ([]domain.WorkItem, error) {
	return nil, nil
}

func (bareStore) WriteResult(ctx context.Context, id string, res domain.ClassificationResult) error {
	return nil
}

func TestStore_OptionalCapabilities(t *testing.T) {
	ctx := context.Background()

	bare := &Store{ReviewStore: bareStore{}}
	if _, err := bare.Counts(ctx); !errors.Is(err, storage.ErrNotSupported) {
		t.Errorf("Counts() error = %v, want ErrNotSupported", err)
	}
	if _, err := bare.ResetFailed(ctx, nil); !errors.Is(err, storage.ErrNotSupported) {
		t.Errorf("ResetFailed() error = %v, want ErrNotSupported", err)
	}

	mem := memory.NewStore()
	mem.Add(domain.NewWorkItem("a", domain.ReviewPayload{Text: "a"}))
	s := &Store{ReviewStore: mem}
	counts, err := s.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts.Pending != 1 || counts.Total() != 1 {
		t.Errorf("counts = %+v", counts)
	}
}
