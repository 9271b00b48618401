package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vietddude/reviewer/internal/core/domain"
)

// cleanContent removes markdown code fences and surrounding whitespace.
func cleanContent(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop the info string, e.g. "json"
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(strings.TrimSpace(s), "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

type reviewResponse struct {
	Text   string `json:"text"`
	Gender string `json:"gender"`
}

// parseReview decodes {"text": ..., "gender": ...} from model output.
func parseReview(content string) (string, domain.Gender, error) {
	s := cleanContent(content)

	// Tolerate prose around the object.
	if start, end := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}'); start >= 0 && end > start {
		s = s[start : end+1]
	}

	var resp reviewResponse
	if err := json.Unmarshal([]byte(s), &resp); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", "", fmt.Errorf("%w: %w", ErrMalformedResponse, domain.ErrEmptyText)
	}
	gender, err := domain.ParseGender(resp.Gender)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return text, gender, nil
}

// parseMarked validates spelling output against the corrected text: with
// the [[ ]] markers removed it must equal the input.
func parseMarked(content, corrected string) (string, error) {
	s := strings.Trim(cleanContent(content), `"`)
	plain := strings.NewReplacer("[[", "", "]]", "").Replace(s)
	if strings.Join(strings.Fields(plain), " ") != strings.Join(strings.Fields(corrected), " ") {
		return "", fmt.Errorf("%w: spelling markup altered the text", ErrMalformedResponse)
	}
	return s, nil
}
