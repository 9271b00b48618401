package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/openai/openai-go"

	"github.com/vietddude/reviewer/internal/core/domain"
)

// ErrMalformedResponse is returned when the model output cannot be parsed.
var ErrMalformedResponse = errors.New("malformed model response")

// classifyStatus maps a provider HTTP status to an error kind.
func classifyStatus(code int) domain.ErrorKind {
	switch {
	case code == http.StatusRequestTimeout,
		code == http.StatusConflict,
		code == http.StatusTooManyRequests,
		code >= 500:
		return domain.KindTransient
	case code == http.StatusBadRequest,
		code == http.StatusUnauthorized,
		code == http.StatusForbidden,
		code == http.StatusNotFound,
		code == http.StatusRequestEntityTooLarge,
		code == http.StatusUnprocessableEntity:
		return domain.KindPermanent
	}
	return domain.KindUnknown
}

// classifyMessage is the fallback for errors carrying no status code.
func classifyMessage(msg string) domain.ErrorKind {
	s := strings.ToLower(msg)

	for _, p := range []string{
		"invalid api key", "unauthorized", "forbidden",
		"context length", "too large", "model not found",
	} {
		if strings.Contains(s, p) {
			return domain.KindPermanent
		}
	}
	for _, p := range []string{
		"timeout", "timed out", "too many requests", "rate limit",
		"connection refused", "connection reset", "broken pipe",
		"eof", "temporarily unavailable", "overloaded",
	} {
		if strings.Contains(s, p) {
			return domain.KindTransient
		}
	}
	return domain.KindUnknown
}

// classifyError wraps a client error in a *domain.ClassifyError.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var ce *domain.ClassifyError
	if errors.As(err, &ce) {
		return err
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &domain.ClassifyError{Kind: classifyStatus(apiErr.StatusCode), Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.Transient(err)
	}
	if errors.Is(err, ErrMalformedResponse) {
		return domain.Unknown(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.Transient(err)
	}

	return &domain.ClassifyError{Kind: classifyMessage(err.Error()), Err: err}
}
