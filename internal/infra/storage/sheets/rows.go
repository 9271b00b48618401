package sheets

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Header names accepted for each column, in priority order.
var (
	textHeaders      = []string{"Исходный текст", "text", "текст"}
	genderHeaders    = []string{"Пол", "gender", "пол"}
	correctedHeaders = []string{"Текст после правок", "corrected_text", "исправленный_текст", "исправленный текст"}
)

// ErrColumnsNotFound is returned when a worksheet lacks a required column.
var ErrColumnsNotFound = errors.New("required columns not found")

// columns holds zero-based column indexes of a worksheet.
type columns struct {
	Text      int
	Gender    int
	Corrected int
}

func findColumn(headers []string, variants []string) int {
	for _, v := range variants {
		for i, h := range headers {
			if strings.TrimSpace(h) == v {
				return i
			}
		}
	}
	return -1
}

// locateColumns finds the text, gender and corrected-text columns.
func locateColumns(headers []string) (columns, error) {
	cols := columns{
		Text:      findColumn(headers, textHeaders),
		Gender:    findColumn(headers, genderHeaders),
		Corrected: findColumn(headers, correctedHeaders),
	}
	var missing []string
	if cols.Text < 0 {
		missing = append(missing, textHeaders[0])
	}
	if cols.Gender < 0 {
		missing = append(missing, genderHeaders[0])
	}
	if cols.Corrected < 0 {
		missing = append(missing, correctedHeaders[0])
	}
	if len(missing) > 0 {
		return cols, fmt.Errorf("%w: %s", ErrColumnsNotFound, strings.Join(missing, ", "))
	}
	return cols, nil
}

// sheetRow is one data row of a worksheet.
type sheetRow struct {
	Row       int // 1-based sheet row
	Text      string
	Gender    string
	Corrected string
}

// Pending reports whether the row still needs processing.
func (r sheetRow) Pending() bool {
	return r.Text != "" && r.Corrected == ""
}

func cell(row []any, idx int) string {
	// The API trims trailing empty cells, so a short row means empty values.
	if idx < 0 || idx >= len(row) {
		return ""
	}
	if row[idx] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[idx]))
}

// parseRows converts a worksheet value grid (header row first) into rows
// with non-empty text.
func parseRows(values [][]any) ([]sheetRow, columns, error) {
	if len(values) == 0 {
		return nil, columns{}, fmt.Errorf("%w: empty worksheet", ErrColumnsNotFound)
	}
	headers := make([]string, len(values[0]))
	for i := range values[0] {
		headers[i] = cell(values[0], i)
	}
	cols, err := locateColumns(headers)
	if err != nil {
		return nil, cols, err
	}

	var rows []sheetRow
	for i, raw := range values[1:] {
		r := sheetRow{
			Row:       i + 2,
			Text:      cell(raw, cols.Text),
			Gender:    cell(raw, cols.Gender),
			Corrected: cell(raw, cols.Corrected),
		}
		if r.Text == "" {
			continue
		}
		rows = append(rows, r)
	}
	return rows, cols, nil
}

// itemID builds "spreadsheetID/worksheet/row".
func itemID(spreadsheetID, worksheet string, row int) string {
	return spreadsheetID + "/" + worksheet + "/" + strconv.Itoa(row)
}

// parseItemID splits an id built by itemID. Worksheet titles may contain '/'.
func parseItemID(id string) (spreadsheetID, worksheet string, row int, err error) {
	first := strings.Index(id, "/")
	last := strings.LastIndex(id, "/")
	if first < 0 || first == last {
		return "", "", 0, fmt.Errorf("invalid sheet item id %q", id)
	}
	row, err = strconv.Atoi(id[last+1:])
	if err != nil || row < 2 {
		return "", "", 0, fmt.Errorf("invalid row in sheet item id %q", id)
	}
	return id[:first], id[first+1 : last], row, nil
}

// a1Range quotes a worksheet title for use as an A1 range.
func a1Range(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}
