package domain

import "time"

// FailedItem is a journal entry for an item that ended a cycle as failed.
type FailedItem struct {
	ID         string    `json:"id"`
	Kind       ErrorKind `json:"kind"`
	Error      string    `json:"error_msg"`
	Attempts   int       `json:"attempts"`
	Source     Source    `json:"source"`
	Text       string    `json:"text"`
	CycleID    string    `json:"cycle_id"`
	Failures   int       `json:"failures"` // number of cycles this item has failed in
	LastFailed time.Time `json:"last_failed"`
}

// NewFailedItem builds a journal entry from a failed outcome.
func NewFailedItem(item WorkItem, res ClassificationResult, cycleID string) FailedItem {
	fi := FailedItem{
		ID:         item.ID,
		Attempts:   res.Attempts,
		Source:     item.Source,
		Text:       item.Payload.Text,
		CycleID:    cycleID,
		Failures:   1,
		LastFailed: res.FinishedAt,
	}
	if res.Err != nil {
		fi.Kind = res.Err.Kind
		fi.Error = res.Err.Message
	}
	return fi
}
