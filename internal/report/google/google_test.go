package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"optify/internal/core"
	"optify/internal/report"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type fakeSheets struct {
	mu       sync.Mutex
	titles   []string
	added    []string
	cleared  []string
	updated  map[string][][]any
	inputOpt string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/spreadsheets/sheet-1"):
		var sheets []map[string]any
		for _, title := range f.titles {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": title}})
		}
		json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "sheet-1", "sheets": sheets})

	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		var req gsheet.BatchUpdateSpreadsheetRequest
		json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			if rq.AddSheet != nil {
				f.added = append(f.added, rq.AddSheet.Properties.Title)
				f.titles = append(f.titles, rq.AddSheet.Properties.Title)
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"spreadsheetId": "sheet-1"})

	case r.Method == http.MethodPost && strings.HasSuffix(path, ":clear"):
		rng := path[strings.Index(path, "/values/")+len("/values/") : len(path)-len(":clear")]
		f.cleared = append(f.cleared, rng)
		json.NewEncoder(w).Encode(map[string]any{"clearedRange": rng})

	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		rng := path[strings.Index(path, "/values/")+len("/values/"):]
		var vr gsheet.ValueRange
		json.NewDecoder(r.Body).Decode(&vr)
		if f.updated == nil {
			f.updated = make(map[string][][]any)
		}
		f.updated[rng] = vr.Values
		f.inputOpt = r.URL.Query().Get("valueInputOption")
		json.NewEncoder(w).Encode(map[string]any{"updatedRange": rng, "updatedRows": len(vr.Values)})

	default:
		http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, fake http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()),
		goption.WithoutAuthentication())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	c, err := New(svc, "sheet-1", "Optify")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestClient_WriteMonthlyCreatesSheet(t *testing.T) {
	fake := &fakeSheets{titles: []string{"Sheet1"}}
	c := newTestClient(t, fake)

	rows := []report.MonthlyRow{
		{Month: "2024-01", Deposits: core.Cents(10000), Withdraws: core.Cents(25000), Profit: core.Cents(15000)},
		{Month: "2024-02", Deposits: core.Cents(500), Profit: core.Cents(-500)},
	}

	ref, err := c.WriteMonthly(context.Background(), "alice", rows)
	if err != nil {
		t.Fatalf("WriteMonthly() error = %v", err)
	}
	if ref != "'Optify alice'!A1:D3" {
		t.Errorf("ref = %q, want 'Optify alice'!A1:D3", ref)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()

	if len(fake.added) != 1 || fake.added[0] != "Optify alice" {
		t.Errorf("added sheets = %v, want [Optify alice]", fake.added)
	}
	if len(fake.cleared) != 1 || fake.cleared[0] != "'Optify alice'!A:D" {
		t.Errorf("cleared = %v", fake.cleared)
	}
	values := fake.updated["'Optify alice'!A1:D3"]
	if len(values) != 3 {
		t.Fatalf("updated rows = %v", fake.updated)
	}
	if values[0][0] != "Month" || values[1][1] != "100.00" || values[2][3] != "-5.00" {
		t.Errorf("values = %v", values)
	}
	if values[1][0] != "'2024-01" || values[2][0] != "'2024-02" {
		t.Errorf("month cells = %v, %v, want text-quoted months", values[1][0], values[2][0])
	}
	if fake.inputOpt != "USER_ENTERED" {
		t.Errorf("valueInputOption = %q, want USER_ENTERED", fake.inputOpt)
	}
}

func TestClient_WriteMonthlyReusesSheet(t *testing.T) {
	fake := &fakeSheets{titles: []string{"Optify bob"}}
	c := newTestClient(t, fake)

	if _, err := c.WriteMonthly(context.Background(), "bob", nil); err != nil {
		t.Fatalf("WriteMonthly() error = %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.added) != 0 {
		t.Errorf("added sheets = %v, want none", fake.added)
	}
	if values := fake.updated["'Optify bob'!A1:D1"]; len(values) != 1 {
		t.Errorf("expected header-only update, got %v", fake.updated)
	}
}

func TestClient_WriteMonthlyAPIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"forbidden"}}`, http.StatusForbidden)
	}))

	_, err := c.WriteMonthly(context.Background(), "alice", nil)
	if err == nil || !strings.Contains(err.Error(), "get spreadsheet") {
		t.Errorf("WriteMonthly() error = %v, want get spreadsheet failure", err)
	}
}

func TestClient_NilService(t *testing.T) {
	c := &Client{spreadsheetID: "x", sheetBase: "Optify"}
	if _, err := c.WriteMonthly(context.Background(), "alice", nil); err == nil {
		t.Error("WriteMonthly() should fail without a service")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, " ", "Optify"); err == nil {
		t.Error("New() should reject empty spreadsheet id")
	}
	c, err := New(nil, "id", "")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.SheetTitle("u1") != "Optify u1" {
		t.Errorf("SheetTitle() = %q, want default base", c.SheetTitle("u1"))
	}
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewFromEnv(context.Background(), "sheet-1", "Optify")
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Errorf("NewFromEnv() error = %v, want missing credentials", err)
	}
}

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	_, err := NewFromEnv(context.Background(), "", "Optify")
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("NewFromEnv() error = %v", err)
	}
}

func TestQuoteRange(t *testing.T) {
	if got := quoteRange("Bob's", "A:D"); got != "'Bob''s'!A:D" {
		t.Errorf("quoteRange() = %q", got)
	}
}

func TestClient_SheetTitleFitsLimit(t *testing.T) {
	c, err := New(nil, "sheet-1", "Optify")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	long := strings.Repeat("ü", 128)
	title := c.SheetTitle(long)
	if n := utf8.RuneCountInString(title); n != maxTitleLen {
		t.Errorf("title length = %d, want %d", n, maxTitleLen)
	}
	if !strings.HasPrefix(title, "Optify üü") {
		t.Errorf("title = %q, want Optify prefix", title)
	}

	other := c.SheetTitle(strings.Repeat("ü", 127) + "x")
	if other == title {
		t.Errorf("distinct long user ids share title %q", title)
	}

	exact := strings.Repeat("a", maxTitleLen-len("Optify "))
	if got := c.SheetTitle(exact); got != "Optify "+exact {
		t.Errorf("SheetTitle() = %q, want untouched title at the limit", got)
	}
}
