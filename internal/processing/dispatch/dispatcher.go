// Package dispatch runs one cycle's batch of work items through the
// classifier under a concurrency cap.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/vietddude/reviewer/internal/core/domain"
	"github.com/vietddude/reviewer/internal/processing/metrics"
	"github.com/vietddude/reviewer/internal/processing/retry"
)

// Classifier is the port to the language model.
// Implementations return *domain.ClassifyError to signal the error kind.
type Classifier interface {
	Classify(ctx context.Context, payload domain.ReviewPayload) (domain.ReviewOutput, error)
}

// Config holds dispatcher settings.
type Config struct {
	MaxAttempts int
	CallTimeout time.Duration
	Model       string // metrics label only
}

// Dispatcher processes a batch to completion.
type Dispatcher struct {
	cfg        Config
	classifier Classifier
	policy     retry.Policy
	tracer     trace.Tracer
	log        *slog.Logger
}

// New creates a dispatcher. A nil policy uses retry.DefaultBackoff.
func New(cfg Config, classifier Classifier, policy retry.Policy) *Dispatcher {
	if policy == nil {
		policy = retry.DefaultBackoff()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Dispatcher{
		cfg:        cfg,
		classifier: classifier,
		policy:     policy,
		tracer:     otel.Tracer("github.com/vietddude/reviewer/dispatch"),
		log:        slog.Default().With("component", "dispatcher"),
	}
}

// Run classifies every item in batch with at most limit calls in flight.
//
// Items are admitted in batch order; a finished item frees its permit for the
// next one. The returned map has exactly one entry per distinct item id.
// When ctx is cancelled admission stops, pending backoffs are abandoned and
// only the outcomes that completed are returned together with ctx.Err().
func (d *Dispatcher) Run(
	ctx context.Context,
	batch []domain.WorkItem,
	limit int,
) (map[string]domain.ClassificationResult, error) {
	if limit < 1 {
		return nil, domain.ErrInvalidConcurrency
	}
	outcomes := make(map[string]domain.ClassificationResult, len(batch))
	if len(batch) == 0 {
		return outcomes, nil
	}

	var (
		sem  = semaphore.NewWeighted(int64(limit))
		mu   sync.Mutex
		wg   sync.WaitGroup
		seen = make(map[string]struct{}, len(batch))
	)

	for _, item := range batch {
		if _, dup := seen[item.ID]; dup {
			d.log.Warn("Duplicate item in batch, skipping", "item", item.ID)
			continue
		}
		seen[item.ID] = struct{}{}

		// Acquire is FIFO and returns early on cancellation.
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(item domain.WorkItem) {
			defer wg.Done()
			defer sem.Release(1)

			res, ok := d.process(ctx, item)
			if !ok {
				return
			}
			mu.Lock()
			outcomes[item.ID] = res
			mu.Unlock()
		}(item)
	}

	wg.Wait()
	return outcomes, ctx.Err()
}

// process drives one item through attempts until a terminal outcome.
// ok is false when the item was abandoned because ctx was cancelled.
func (d *Dispatcher) process(ctx context.Context, item domain.WorkItem) (domain.ClassificationResult, bool) {
	started := time.Now()
	item.Attempt = 0
	if err := item.Transition(domain.StatusInFlight); err != nil {
		d.log.Warn("Item not pending", "item", item.ID, "status", item.Status)
		item.Status = domain.StatusInFlight
	}

	for {
		item.Attempt++
		out, err := d.attempt(ctx, item)
		if err == nil {
			_ = item.Transition(domain.StatusSucceeded)
			metrics.ItemsProcessed.WithLabelValues(string(domain.StatusSucceeded), "").Inc()
			metrics.LLMCost.WithLabelValues(d.cfg.Model).Add(out.Cost)
			return domain.Succeeded(item, out, started), true
		}

		kind := domain.KindOf(err)
		decision := d.policy.Decide(item.Attempt, kind, d.cfg.MaxAttempts)

		// A terminal answer that raced a hard stop is still recorded. Errors
		// caused by the cancellation itself, and retries, are abandoned.
		if ctx.Err() != nil && (decision.Retry || errors.Is(err, ctx.Err())) {
			d.log.Debug("Abandoning item on cancellation", "item", item.ID, "attempt", item.Attempt)
			return domain.ClassificationResult{}, false
		}

		if !decision.Retry {
			_ = item.Transition(domain.StatusFailed)
			reason := retry.Reason(kind, item.Attempt, err)
			d.log.Warn("Item failed", "item", item.ID, "kind", kind, "attempts", item.Attempt, "error", err)
			metrics.ItemsProcessed.WithLabelValues(string(domain.StatusFailed), string(kind)).Inc()
			return domain.Failed(item, kind, reason, started), true
		}

		d.log.Debug("Retrying item", "item", item.ID, "attempt", item.Attempt, "kind", kind, "delay", decision.Delay, "error", err)
		timer := time.NewTimer(decision.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.ClassificationResult{}, false
		case <-timer.C:
		}
	}
}

// attempt performs a single bounded classifier call.
func (d *Dispatcher) attempt(ctx context.Context, item domain.WorkItem) (domain.ReviewOutput, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()

	callCtx, span := d.tracer.Start(callCtx, "classify", trace.WithAttributes(
		attribute.String("item.id", item.ID),
		attribute.Int("item.attempt", item.Attempt),
	))
	defer span.End()

	metrics.InFlight.Inc()
	start := time.Now()
	out, err := d.classifier.Classify(callCtx, item.Payload)
	metrics.InFlight.Dec()
	metrics.ClassifyLatency.WithLabelValues(d.cfg.Model).Observe(time.Since(start).Seconds())

	if err == nil {
		err = out.Validate()
		if err != nil {
			err = domain.Unknown(err)
		}
	}
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		// The per-call deadline fired; the provider may have reported
		// something else (e.g. a wrapped transport error).
		err = domain.Transient(err)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(domain.KindOf(err)))
		metrics.ClassifyAttempts.WithLabelValues(d.cfg.Model, string(domain.KindOf(err))).Inc()
		return domain.ReviewOutput{}, err
	}
	metrics.ClassifyAttempts.WithLabelValues(d.cfg.Model, "ok").Inc()
	return out, nil
}
