package sheets

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// Worksheet identifies one tab of a spreadsheet.
type Worksheet struct {
	ID    int64
	Title string
}

// API is the subset of the Sheets service used by the store.
type API interface {
	Worksheets(ctx context.Context, spreadsheetID string) ([]Worksheet, error)
	Values(ctx context.Context, spreadsheetID, title string) ([][]any, error)
	BatchUpdate(ctx context.Context, spreadsheetID string, reqs []*gsheets.Request) error
}

// Client talks to the Google Sheets REST API with a service account.
type Client struct {
	srv *gsheets.Service
}

// NewClient authenticates with a service-account credentials file.
func NewClient(ctx context.Context, credentialsFile string) (*Client, error) {
	srv, err := gsheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(gsheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &Client{srv: srv}, nil
}

func (c *Client) Worksheets(ctx context.Context, spreadsheetID string) ([]Worksheet, error) {
	ss, err := c.srv.Spreadsheets.Get(spreadsheetID).
		Fields("sheets.properties(sheetId,title)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("get spreadsheet %s: %w", spreadsheetID, err)
	}

	out := make([]Worksheet, 0, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties == nil {
			continue
		}
		out = append(out, Worksheet{ID: sh.Properties.SheetId, Title: sh.Properties.Title})
	}
	return out, nil
}

func (c *Client) Values(ctx context.Context, spreadsheetID, title string) ([][]any, error) {
	vr, err := c.srv.Spreadsheets.Values.Get(spreadsheetID, a1Range(title)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get values %s/%s: %w", spreadsheetID, title, err)
	}
	return vr.Values, nil
}

func (c *Client) BatchUpdate(ctx context.Context, spreadsheetID string, reqs []*gsheets.Request) error {
	_, err := c.srv.Spreadsheets.BatchUpdate(spreadsheetID, &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: reqs,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("batch update %s: %w", spreadsheetID, err)
	}
	return nil
}
