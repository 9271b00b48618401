package domain

import (
	"time"

	"github.com/google/uuid"
)

// Cycle is one fetch-dispatch-persist iteration of the scheduler.
type Cycle struct {
	ID        string
	Batch     []WorkItem
	Outcomes  map[string]ClassificationResult
	StartedAt time.Time
	EndedAt   time.Time
}

// NewCycle starts a cycle over a fixed snapshot of items.
func NewCycle(batch []WorkItem) *Cycle {
	return &Cycle{
		ID:        uuid.New().String(),
		Batch:     batch,
		Outcomes:  make(map[string]ClassificationResult, len(batch)),
		StartedAt: time.Now(),
	}
}

// Finish records the outcomes and closes the cycle.
func (c *Cycle) Finish(outcomes map[string]ClassificationResult) {
	if outcomes != nil {
		c.Outcomes = outcomes
	}
	c.EndedAt = time.Now()
}

// Duration is the wall-clock time of the cycle.
func (c *Cycle) Duration() time.Duration {
	if c.EndedAt.IsZero() {
		return time.Since(c.StartedAt)
	}
	return c.EndedAt.Sub(c.StartedAt)
}

// Complete reports whether every distinct item got exactly one outcome.
func (c *Cycle) Complete() bool {
	ids := make(map[string]struct{}, len(c.Batch))
	for _, it := range c.Batch {
		ids[it.ID] = struct{}{}
	}
	if len(ids) != len(c.Outcomes) {
		return false
	}
	for id := range ids {
		if _, ok := c.Outcomes[id]; !ok {
			return false
		}
	}
	return true
}

// Summary counts outcomes by status and sums cost.
func (c *Cycle) Summary() (succeeded, failed int, cost float64) {
	for _, o := range c.Outcomes {
		switch o.Status {
		case StatusSucceeded:
			succeeded++
		case StatusFailed:
			failed++
		}
		cost += o.Cost()
	}
	return succeeded, failed, cost
}
