package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	gsheets "google.golang.org/api/sheets/v4"

	"github.com/vietddude/reviewer/internal/core/domain"
	"github.com/vietddude/reviewer/internal/infra/storage"
)

// rowRef is what a write needs to find the cells of a fetched item.
type rowRef struct {
	sheetID  int64
	row      int
	cols     columns
	original string
}

// Store implements storage.ReviewStore over one or more spreadsheets.
//
// A row is pending while its text is filled and its corrected text is
// empty. Failed outcomes are not written to the sheet; the store remembers
// them in process and skips those rows until ResetFailed or a restart.
type Store struct {
	api          API
	spreadsheets map[string]string // name -> spreadsheet id
	log          *slog.Logger

	mu     sync.Mutex
	refs   map[string]rowRef
	failed map[string]string // item id -> text at failure time
}

// NewStore creates a store polling the given spreadsheets.
func NewStore(api API, spreadsheets map[string]string) *Store {
	return &Store{
		api:          api,
		spreadsheets: spreadsheets,
		log:          slog.Default().With("component", "sheets"),
		refs:         make(map[string]rowRef),
		failed:       make(map[string]string),
	}
}

type scannedRow struct {
	sheetRow
	spreadsheetID string
	worksheet     Worksheet
	cols          columns
}

// scan walks every worksheet of every configured spreadsheet.
func (s *Store) scan(ctx context.Context, visit func(scannedRow) bool) error {
	names := make([]string, 0, len(s.spreadsheets))
	for name := range s.spreadsheets {
		names = append(names, name)
	}
	slices.Sort(names)

	var (
		errs   []error
		listed int
	)
	for _, name := range names {
		id := s.spreadsheets[name]
		tabs, err := s.api.Worksheets(ctx, id)
		if err != nil {
			s.log.Warn("Failed to list worksheets", "spreadsheet", name, "error", err)
			errs = append(errs, err)
			continue
		}
		listed++
		for _, tab := range tabs {
			values, err := s.api.Values(ctx, id, tab.Title)
			if err != nil {
				s.log.Warn("Failed to read worksheet", "spreadsheet", name, "worksheet", tab.Title, "error", err)
				errs = append(errs, err)
				continue
			}
			if len(values) == 0 {
				continue
			}
			rows, cols, err := parseRows(values)
			if err != nil {
				s.log.Warn("Skipping worksheet", "spreadsheet", name, "worksheet", tab.Title, "error", err)
				continue
			}
			for _, r := range rows {
				if !visit(scannedRow{sheetRow: r, spreadsheetID: id, worksheet: tab, cols: cols}) {
					return nil
				}
			}
		}
	}
	// Only a scan that reached no spreadsheet at all is a store failure.
	if listed == 0 && len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (s *Store) skipFailed(id, text string) bool {
	prev, ok := s.failed[id]
	return ok && prev == text
}

// FetchPending scans the sheets for rows awaiting correction.
func (s *Store) FetchPending(ctx context.Context, max int) ([]domain.WorkItem, error) {
	var items []domain.WorkItem

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.scan(ctx, func(r scannedRow) bool {
		if !r.Pending() {
			return true
		}
		id := itemID(r.spreadsheetID, r.worksheet.Title, r.Row)
		if s.skipFailed(id, r.Text) {
			return true
		}

		gender, gerr := domain.ParseGender(r.Gender)
		if gerr != nil {
			gender = domain.Gender(r.Gender)
		}
		item := domain.NewWorkItem(id, domain.ReviewPayload{Text: r.Text, Gender: gender})
		item.Source = domain.Source{Spreadsheet: r.spreadsheetID, Worksheet: r.worksheet.Title, Row: r.Row}
		items = append(items, item)

		s.refs[id] = rowRef{sheetID: r.worksheet.ID, row: r.Row, cols: r.cols, original: r.Text}
		return max <= 0 || len(items) < max
	})
	if err != nil {
		return nil, domain.StoreUnavailable("fetch pending", err)
	}
	return items, nil
}

func stringCell(v string) *gsheets.CellData {
	return &gsheets.CellData{UserEnteredValue: &gsheets.ExtendedValue{StringValue: &v}}
}

func updateCell(sheetID int64, row, col int, data *gsheets.CellData, fields string) *gsheets.Request {
	return &gsheets.Request{
		UpdateCells: &gsheets.UpdateCellsRequest{
			Start: &gsheets.GridCoordinate{
				SheetId:         sheetID,
				RowIndex:        int64(row - 1),
				ColumnIndex:     int64(col),
				ForceSendFields: []string{"SheetId", "RowIndex", "ColumnIndex"},
			},
			Rows:   []*gsheets.RowData{{Values: []*gsheets.CellData{data}}},
			Fields: fields,
		},
	}
}

// resultRequests builds the cell updates for a successful outcome.
func resultRequests(ref rowRef, out domain.ReviewOutput) []*gsheets.Request {
	text, runs := RichText(out.DisplayText(), ref.original)
	corrected := stringCell(text)
	corrected.TextFormatRuns = runs
	corrected.ForceSendFields = []string{"TextFormatRuns"}

	return []*gsheets.Request{
		updateCell(ref.sheetID, ref.row, ref.cols.Gender, stringCell(string(out.Gender)), "userEnteredValue"),
		updateCell(ref.sheetID, ref.row, ref.cols.Corrected, corrected, "userEnteredValue,textFormatRuns"),
	}
}

// WriteResult writes gender and corrected text for a success and records a
// failure in process. Items must come from a previous FetchPending; a
// written item must be fetched again before the next write.
func (s *Store) WriteResult(ctx context.Context, itemID string, res domain.ClassificationResult) error {
	spreadsheetID, _, _, err := parseItemID(itemID)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrItemNotFound, err)
	}

	s.mu.Lock()
	ref, ok := s.refs[itemID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s not fetched by this process", storage.ErrItemNotFound, itemID)
	}

	switch res.Status {
	case domain.StatusSucceeded:
		if res.Output == nil {
			return fmt.Errorf("write result %s: success without output", itemID)
		}
		if err := s.api.BatchUpdate(ctx, spreadsheetID, resultRequests(ref, *res.Output)); err != nil {
			return domain.StoreUnavailable("write result", err)
		}
		s.mu.Lock()
		delete(s.failed, itemID)
		delete(s.refs, itemID)
		s.mu.Unlock()
	case domain.StatusFailed:
		s.mu.Lock()
		s.failed[itemID] = ref.original
		delete(s.refs, itemID)
		s.mu.Unlock()
	default:
		return fmt.Errorf("write result %s: non-terminal status %q", itemID, res.Status)
	}
	return nil
}

// Counts scans the sheets and counts rows by state.
func (s *Store) Counts(ctx context.Context) (storage.Counts, error) {
	var c storage.Counts

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.scan(ctx, func(r scannedRow) bool {
		id := itemID(r.spreadsheetID, r.worksheet.Title, r.Row)
		switch {
		case !r.Pending():
			c.Succeeded++
		case s.skipFailed(id, r.Text):
			c.Failed++
		default:
			c.Pending++
		}
		return true
	})
	if err != nil {
		return c, domain.StoreUnavailable("counts", err)
	}
	return c, nil
}

// ResetFailed forgets recorded failures so the rows are fetched again.
func (s *Store) ResetFailed(ctx context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id := range s.failed {
		if len(ids) > 0 && !slices.Contains(ids, id) {
			continue
		}
		delete(s.failed, id)
		n++
	}
	return n, nil
}

var (
	_ API                  = (*Client)(nil)
	_ storage.ReviewStore  = (*Store)(nil)
	_ storage.StatusReader = (*Store)(nil)
	_ storage.Resetter     = (*Store)(nil)
)
