// Package google writes monthly reports to a Google Sheets spreadsheet,
// one tab per user.
package google

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"optify/internal/report"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// maxTitleLen is the longest tab title Sheets accepts, in characters.
const maxTitleLen = 100

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
}

var _ report.Writer = (*Client)(nil)

// New builds a client over an existing Sheets service.
func New(svc *gsheet.Service, spreadsheetID, sheetBase string) (*Client, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(sheetBase) == "" {
		sheetBase = "Optify"
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetBase: sheetBase}, nil
}

// NewFromEnv creates a client authenticated with service account credentials.
// Credentials come from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE
// or GOOGLE_APPLICATION_CREDENTIALS, in that order.
func NewFromEnv(ctx context.Context, spreadsheetID, sheetBase string) (*Client, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	creds, err := credentialsFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return New(svc, spreadsheetID, sheetBase)
}

func credentialsFromEnv(ctx context.Context) ([]byte, error) {
	inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.DebugContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.DebugContext(ctx, "Read service account credentials", "path", file, "size", len(data))
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// SheetTitle is the tab holding userID's report. Titles over the Sheets
// limit are cut and suffixed with a hash of the user id so they stay unique.
func (c *Client) SheetTitle(userID string) string {
	title := fmt.Sprintf("%s %s", c.sheetBase, userID)
	if utf8.RuneCountInString(title) <= maxTitleLen {
		return title
	}
	sum := sha256.Sum256([]byte(userID))
	suffix := "~" + hex.EncodeToString(sum[:])[:12]
	keep := []rune(title)[:maxTitleLen-len(suffix)]
	return string(keep) + suffix
}

// WriteMonthly clears the user's tab and rewrites the whole report.
func (c *Client) WriteMonthly(ctx context.Context, userID string, rows []report.MonthlyRow) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	title := c.SheetTitle(userID)

	if err := c.ensureSheet(ctx, title); err != nil {
		return "", err
	}

	columns := quoteRange(title, "A:D")
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, columns, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear %s: %w", columns, err)
	}

	values := report.Values(rows)
	grid := make([][]any, len(values))
	for i, row := range values {
		cells := make([]any, len(row))
		for j, v := range row {
			cells[j] = v
		}
		// Month keys are text; unquoted they would be parsed as dates.
		if i > 0 {
			cells[0] = "'" + row[0]
		}
		grid[i] = cells
	}

	target := quoteRange(title, fmt.Sprintf("A1:D%d", len(grid)))
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, target, &gsheet.ValueRange{Values: grid}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update %s: %w", target, err)
	}

	slog.InfoContext(ctx, "Monthly report written",
		"user_id", userID,
		"range", target,
		"rows", len(rows))
	return target, nil
}

func (c *Client) ensureSheet(ctx context.Context, title string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: title},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", title, err)
	}
	slog.InfoContext(ctx, "Created report sheet", "title", title)
	return nil
}

func quoteRange(title, cells string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(title, "'", "''"), cells)
}
