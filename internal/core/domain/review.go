package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Gender is the author gender marker kept next to each review.
type Gender string

const (
	GenderMale    Gender = "М"
	GenderFemale  Gender = "Ж"
	GenderNeutral Gender = "Н"
)

var (
	// ErrEmptyText is returned when the classifier produced no text.
	ErrEmptyText = errors.New("corrected text is empty")

	// ErrUnknownGender is returned for a gender outside М/Ж/Н.
	ErrUnknownGender = errors.New("unknown gender marker")
)

// ParseGender normalises a marker, accepting latin look-alikes.
func ParseGender(s string) (Gender, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "М", "M":
		return GenderMale, nil
	case "Ж":
		return GenderFemale, nil
	case "Н", "H", "N":
		return GenderNeutral, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGender, s)
}

// ReviewOutput is the structured result produced for one review.
type ReviewOutput struct {
	CorrectedText string  `json:"corrected_text"`
	Gender        Gender  `json:"gender"`
	MarkedText    string  `json:"marked_text,omitempty"` // corrected text with [[x]] spelling markup
	Model         string  `json:"model"`
	Cost          float64 `json:"cost"`
}

// Validate checks the output shape before it is persisted.
func (o ReviewOutput) Validate() error {
	if strings.TrimSpace(o.CorrectedText) == "" {
		return ErrEmptyText
	}
	if _, err := ParseGender(string(o.Gender)); err != nil {
		return err
	}
	return nil
}

// DisplayText is the text a store should write back.
func (o ReviewOutput) DisplayText() string {
	if o.MarkedText != "" {
		return o.MarkedText
	}
	return o.CorrectedText
}
