package domain

import (
	"errors"
	"fmt"
)

// ItemStatus is the processing state of a work item inside one cycle.
type ItemStatus string

const (
	StatusPending   ItemStatus = "pending"
	StatusInFlight  ItemStatus = "in_flight"
	StatusSucceeded ItemStatus = "succeeded"
	StatusFailed    ItemStatus = "failed"
)

// ErrInvalidTransition is returned when an invalid status transition is attempted.
var ErrInvalidTransition = errors.New("invalid status transition")

// ValidTransitions defines allowed status transitions.
// Key is the current status, value is the list of valid next statuses.
var ValidTransitions = map[ItemStatus][]ItemStatus{
	StatusPending:  {StatusInFlight},
	StatusInFlight: {StatusSucceeded, StatusFailed},
}

// CanTransition checks if a transition from one status to another is valid.
func CanTransition(from, to ItemStatus) bool {
	for _, target := range ValidTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s ItemStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Source locates the record in the external store.
type Source struct {
	Spreadsheet string `json:"spreadsheet,omitempty"`
	Worksheet   string `json:"worksheet,omitempty"`
	Row         int    `json:"row,omitempty"`
}

// ReviewPayload is the content sent to the classifier.
type ReviewPayload struct {
	Text   string `json:"text"`
	Gender Gender `json:"gender"`
}

// WorkItem is one review awaiting classification within a cycle.
// Items are values owned by their cycle; a later cycle fetching the same
// record gets a fresh item with Attempt reset to zero.
type WorkItem struct {
	ID      string        `json:"id"`
	Payload ReviewPayload `json:"payload"`
	Source  Source        `json:"source"`
	Attempt int           `json:"attempt"`
	Status  ItemStatus    `json:"status"`
}

// NewWorkItem creates a pending item.
func NewWorkItem(id string, payload ReviewPayload) WorkItem {
	return WorkItem{ID: id, Payload: payload, Status: StatusPending}
}

// Transition moves the item to the next status.
func (w *WorkItem) Transition(to ItemStatus) error {
	from := w.Status
	if from == "" {
		from = StatusPending
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: item %s %s -> %s", ErrInvalidTransition, w.ID, from, to)
	}
	w.Status = to
	return nil
}
