package domain

import "time"

// ItemError describes why an item ended as failed.
type ItemError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// ClassificationResult is the terminal outcome for one work item.
type ClassificationResult struct {
	ItemID     string        `json:"item_id"`
	Status     ItemStatus    `json:"status"`
	Output     *ReviewOutput `json:"output,omitempty"`
	Err        *ItemError    `json:"error,omitempty"`
	Attempts   int           `json:"attempts"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Succeeded builds a success outcome.
func Succeeded(item WorkItem, out ReviewOutput, started time.Time) ClassificationResult {
	return ClassificationResult{
		ItemID:     item.ID,
		Status:     StatusSucceeded,
		Output:     &out,
		Attempts:   item.Attempt,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
}

// Failed builds a failure outcome.
func Failed(item WorkItem, kind ErrorKind, msg string, started time.Time) ClassificationResult {
	return ClassificationResult{
		ItemID:     item.ID,
		Status:     StatusFailed,
		Err:        &ItemError{Kind: kind, Message: msg},
		Attempts:   item.Attempt,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
}

// Cost returns the LLM spend attributed to this outcome.
func (r ClassificationResult) Cost() float64 {
	if r.Output == nil {
		return 0
	}
	return r.Output.Cost
}
