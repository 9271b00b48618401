package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/reviewer/internal/core/domain"
	"github.com/vietddude/reviewer/internal/infra/storage"
)

// ReviewRepo implements storage.ReviewStore on the reviews table.
type ReviewRepo struct {
	db *DB
}

// NewReviewRepo creates a new PostgreSQL review repository.
func NewReviewRepo(db *DB) *ReviewRepo {
	return &ReviewRepo{db: db}
}

type pendingRow struct {
	ID     string `db:"id"`
	Text   string `db:"text"`
	Gender string `db:"gender"`
}

func (r pendingRow) toItem() domain.WorkItem {
	g, err := domain.ParseGender(r.Gender)
	if err != nil {
		g = domain.Gender(strings.TrimSpace(r.Gender))
	}
	return domain.NewWorkItem(r.ID, domain.ReviewPayload{
		Text:   strings.TrimSpace(r.Text),
		Gender: g,
	})
}

// FetchPending returns the oldest pending reviews.
func (r *ReviewRepo) FetchPending(ctx context.Context, max int) ([]domain.WorkItem, error) {
	query := `
		SELECT id, text, gender
		FROM reviews
		WHERE status = 'pending'
		ORDER BY created_at, id
		LIMIT NULLIF($1::int, 0)
	`
	if max < 0 {
		max = 0
	}

	var rows []pendingRow
	if err := r.db.SelectContext(ctx, &rows, query, max); err != nil {
		return nil, storeError("fetch pending", err)
	}

	items := make([]domain.WorkItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toItem())
	}
	return items, nil
}

// resultRow is the column set written for a terminal outcome.
type resultRow struct {
	ID              string         `db:"id"`
	Status          string         `db:"status"`
	CorrectedText   sql.NullString `db:"corrected_text"`
	CorrectedGender sql.NullString `db:"corrected_gender"`
	MarkedText      sql.NullString `db:"marked_text"`
	Model           sql.NullString `db:"model"`
	Cost            float64        `db:"cost"`
	ErrorKind       sql.NullString `db:"error_kind"`
	ErrorMsg        sql.NullString `db:"error_msg"`
	Attempts        int            `db:"attempts"`
	StartedAt       sql.NullTime   `db:"started_at"`
	ProcessedAt     sql.NullTime   `db:"processed_at"`
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func newResultRow(itemID string, res domain.ClassificationResult) resultRow {
	row := resultRow{
		ID:          itemID,
		Status:      string(res.Status),
		Attempts:    res.Attempts,
		StartedAt:   nullTime(res.StartedAt),
		ProcessedAt: nullTime(res.FinishedAt),
	}
	if out := res.Output; out != nil {
		row.CorrectedText = nullString(out.CorrectedText)
		row.CorrectedGender = nullString(string(out.Gender))
		row.MarkedText = nullString(out.MarkedText)
		row.Model = nullString(out.Model)
		row.Cost = out.Cost
	}
	if e := res.Err; e != nil {
		row.ErrorKind = nullString(string(e.Kind))
		row.ErrorMsg = nullString(e.Message)
	}
	return row
}

// WriteResult overwrites every outcome column, so repeated writes of the
// same result converge on the same row.
func (r *ReviewRepo) WriteResult(ctx context.Context, itemID string, res domain.ClassificationResult) error {
	if !res.Status.IsTerminal() {
		return fmt.Errorf("write result %s: non-terminal status %q", itemID, res.Status)
	}

	query := `
		UPDATE reviews SET
			status = :status,
			corrected_text = :corrected_text,
			corrected_gender = :corrected_gender,
			marked_text = :marked_text,
			model = :model,
			cost = :cost,
			error_kind = :error_kind,
			error_msg = :error_msg,
			attempts = :attempts,
			started_at = :started_at,
			processed_at = :processed_at
		WHERE id = :id
	`
	result, err := r.db.NamedExecContext(ctx, query, newResultRow(itemID, res))
	if err != nil {
		return storeError("write result", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storeError("write result", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrItemNotFound, itemID)
	}
	return nil
}

// Counts returns the number of reviews per status.
func (r *ReviewRepo) Counts(ctx context.Context) (storage.Counts, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	query := `SELECT status, COUNT(*) AS count FROM reviews GROUP BY status`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return storage.Counts{}, storeError("counts", err)
	}

	var c storage.Counts
	for _, row := range rows {
		switch domain.ItemStatus(row.Status) {
		case domain.StatusPending:
			c.Pending = row.Count
		case domain.StatusSucceeded:
			c.Succeeded = row.Count
		case domain.StatusFailed:
			c.Failed = row.Count
		}
	}
	return c, nil
}

// ResetFailed moves failed reviews back to pending.
func (r *ReviewRepo) ResetFailed(ctx context.Context, ids []string) (int, error) {
	query := `
		UPDATE reviews
		SET status = 'pending', error_kind = NULL, error_msg = NULL, attempts = 0, processed_at = NULL
		WHERE status = 'failed'
	`
	var args []any
	if len(ids) > 0 {
		q, a, err := sqlx.In(query+` AND id IN (?)`, ids)
		if err != nil {
			return 0, fmt.Errorf("failed to build reset query: %w", err)
		}
		query, args = r.db.Rebind(q), a
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storeError("reset failed", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, storeError("reset failed", err)
	}
	return int(n), nil
}

var (
	_ storage.ReviewStore  = (*ReviewRepo)(nil)
	_ storage.StatusReader = (*ReviewRepo)(nil)
	_ storage.Resetter     = (*ReviewRepo)(nil)
)
