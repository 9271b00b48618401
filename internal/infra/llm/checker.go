// Package llm implements the review classifier on top of an
// OpenAI-compatible chat completions API (OpenAI, xAI).
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"github.com/vietddude/reviewer/internal/core/domain"
)

// ErrNoChoices is returned when a completion has no message.
var ErrNoChoices = errors.New("completion returned no choices")

// Config configures a ReviewChecker.
type Config struct {
	Model             string
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64 // 0 disables throttling
	Spelling          bool
	Pricing           *Pricing // nil means cost is not tracked
	HTTPClient        *http.Client
}

// ReviewChecker corrects a review and optionally marks its spelling errors.
type ReviewChecker struct {
	client   openai.Client
	model    string
	spelling bool
	pricing  *Pricing
	limiter  *rate.Limiter
	now      func() time.Time
	log      *slog.Logger
}

// NewReviewChecker creates a checker. Provider retries are disabled; the
// dispatcher owns the retry policy.
func NewReviewChecker(cfg Config) *ReviewChecker {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := max(1, int(cfg.RequestsPerSecond))
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &ReviewChecker{
		client:   openai.NewClient(opts...),
		model:    cfg.Model,
		spelling: cfg.Spelling,
		pricing:  cfg.Pricing,
		limiter:  limiter,
		now:      time.Now,
		log:      slog.Default().With("component", "llm", "model", cfg.Model),
	}
}

// complete sends a single-message prompt and returns the answer text.
func (c *ReviewChecker) complete(ctx context.Context, prompt string) (string, Usage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		// Wait fails early when the deadline would pass before a token frees up.
		return "", Usage{}, domain.Transient(fmt.Errorf("rate limiter: %w", err))
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", Usage{}, classifyError(err)
	}

	usage := Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CachedTokens:     resp.Usage.PromptTokensDetails.CachedTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) == 0 {
		return "", usage, domain.Unknown(ErrNoChoices)
	}
	return resp.Choices[0].Message.Content, usage, nil
}

func (c *ReviewChecker) cost(u Usage) float64 {
	if c.pricing == nil {
		return 0
	}
	return c.pricing.Cost(u)
}

// Classify implements dispatch.Classifier.
func (c *ReviewChecker) Classify(ctx context.Context, payload domain.ReviewPayload) (domain.ReviewOutput, error) {
	if payload.Text == "" {
		return domain.ReviewOutput{}, domain.Permanent(domain.ErrEmptyText)
	}

	prompt, err := reviewPrompt(payload, c.now())
	if err != nil {
		return domain.ReviewOutput{}, domain.Permanent(err)
	}
	content, usage, err := c.complete(ctx, prompt)
	if err != nil {
		return domain.ReviewOutput{}, err
	}
	text, gender, err := parseReview(content)
	if err != nil {
		return domain.ReviewOutput{}, classifyError(err)
	}

	out := domain.ReviewOutput{
		CorrectedText: text,
		Gender:        gender,
		Model:         c.model,
	}

	if c.spelling {
		marked, spellUsage := c.markSpelling(ctx, text)
		usage = usage.Add(spellUsage)
		out.MarkedText = marked
	}

	out.Cost = c.cost(usage)
	c.log.Debug("Review classified",
		"prompt_tokens", usage.PromptTokens,
		"cached_tokens", usage.CachedTokens,
		"completion_tokens", usage.CompletionTokens,
		"cost", out.Cost,
	)
	return out, nil
}

// markSpelling returns text with misspelt letters wrapped in [[ ]]. The
// stage is best-effort: a provider error or markup that does not match the
// text leaves the correction unmarked instead of failing the item.
func (c *ReviewChecker) markSpelling(ctx context.Context, text string) (string, Usage) {
	prompt, err := spellingPrompt(text)
	if err != nil {
		c.log.Warn("Skipping spelling stage", "error", err)
		return "", Usage{}
	}
	content, usage, err := c.complete(ctx, prompt)
	if err != nil {
		c.log.Warn("Spelling stage failed, keeping unmarked text", "kind", domain.KindOf(err), "error", err)
		return "", usage
	}
	marked, err := parseMarked(content, text)
	if err != nil {
		c.log.Warn("Discarding spelling markup", "error", err)
		return "", usage
	}
	return marked, usage
}
