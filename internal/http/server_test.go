package http

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"optify/internal/cache"
	"optify/internal/core"
	applog "optify/internal/log"
	reportmem "optify/internal/report/memory"
	"optify/internal/services"
	"optify/internal/state"
	"optify/internal/storage/memory"
)

type testEnv struct {
	srv     *Server
	store   *memory.Store
	recalc  *services.RecalcService
	reports *reportmem.Writer
}

func newTestEnv(t *testing.T, mutate func(d *Deps)) *testEnv {
	t.Helper()
	store := memory.New()
	hub := state.NewHub(store)
	recalc := services.NewRecalcService(store, nil, hub)
	summaries := cache.NewLRUCache[core.Bucket](50, time.Minute)
	writer := reportmem.NewWriter()

	deps := Deps{
		Transactions:      services.NewTransactionService(store, recalc, summaries),
		Recalc:            recalc,
		Reports:           services.NewReportService(store, recalc, writer),
		States:            store,
		Hub:               hub,
		Logger:            applog.New(applog.Config{Level: slog.LevelError, Format: "text", Output: io.Discard}),
		RequestsPerMinute: 100,
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv := NewServer(":0", deps)
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		recalc.Wait()
	})
	return &testEnv{srv: srv, store: store, recalc: recalc, reports: writer}
}

func (e *testEnv) do(t *testing.T, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

type txJSON struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Type          string     `json:"type"`
	Amount        core.Money `json:"amount"`
	Category      string     `json:"category"`
	DisplayAmount core.Money `json:"display_amount"`
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/healthz", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if rr.Body.String() != "ok" {
		t.Errorf("body = %q, want ok", rr.Body.String())
	}
}

func TestCreateTransaction(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
		wantCat     string
		wantDisplay int64
	}{
		{
			name:        "plain deposit is shown negative",
			contentType: "application/json",
			body:        `{"type":"deposit","amount":"50.00","date":"2024-05-01","description":"Bonus"}`,
			wantStatus:  http.StatusCreated,
			wantCat:     "normal",
			wantDisplay: -5000,
		},
		{
			name:        "freebet prefix is classified and shown positive",
			contentType: "application/json",
			body:        `{"type":"deposit","amount":12.5,"date":"2024-05-02","description":"FreeBet promo"}`,
			wantStatus:  http.StatusCreated,
			wantCat:     "freebet",
			wantDisplay: 1250,
		},
		{
			name:        "form encoded withdraw",
			contentType: "application/x-www-form-urlencoded",
			body:        "type=withdraw&amount=20,10&date=2024-05-03&employee_id=e1&platform_id=p1",
			wantStatus:  http.StatusCreated,
			wantCat:     "normal",
			wantDisplay: 2010,
		},
		{
			name:        "invalid amount",
			contentType: "application/json",
			body:        `{"type":"deposit","amount":"abc"}`,
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "negative amount",
			contentType: "application/json",
			body:        `{"type":"deposit","amount":"-5"}`,
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "unknown type",
			contentType: "application/json",
			body:        `{"type":"transfer","amount":"5"}`,
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "unknown field",
			contentType: "application/json",
			body:        `{"type":"deposit","amount":"5","foo":1}`,
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "bad date",
			contentType: "application/json",
			body:        `{"type":"deposit","amount":"5","date":"01/05/2024"}`,
			wantStatus:  http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/users/u1/transactions", tt.contentType, tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantStatus != http.StatusCreated {
				resp := decode[errorResponse](t, rr)
				if resp.Error == "" {
					t.Error("error message is empty")
				}
				return
			}
			got := decode[txJSON](t, rr)
			if got.ID == "" || got.UserID != "u1" {
				t.Errorf("id = %q user = %q", got.ID, got.UserID)
			}
			if got.Category != tt.wantCat {
				t.Errorf("category = %q, want %q", got.Category, tt.wantCat)
			}
			if got.DisplayAmount.Cents != tt.wantDisplay {
				t.Errorf("display_amount = %d, want %d", got.DisplayAmount.Cents, tt.wantDisplay)
			}
			if loc := rr.Header().Get("Location"); loc != "/api/users/u1/transactions/"+got.ID {
				t.Errorf("Location = %q", loc)
			}
		})
	}
}

func TestListAndDeleteTransactions(t *testing.T) {
	env := newTestEnv(t, nil)

	var ids []string
	for _, body := range []string{
		`{"type":"deposit","amount":"100","date":"2024-04-30"}`,
		`{"type":"withdraw","amount":"150","date":"2024-05-01","employee_id":"e1"}`,
	} {
		rr := env.do(t, http.MethodPost, "/api/users/u1/transactions", "application/json", body)
		if rr.Code != http.StatusCreated {
			t.Fatalf("create status = %d", rr.Code)
		}
		ids = append(ids, decode[txJSON](t, rr).ID)
	}

	rr := env.do(t, http.MethodGet, "/api/users/u1/transactions", "", "")
	list := decode[struct {
		Transactions []txJSON `json:"transactions"`
		Count        int      `json:"count"`
	}](t, rr)
	if list.Count != 2 || len(list.Transactions) != 2 {
		t.Fatalf("count = %d, want 2", list.Count)
	}

	rr = env.do(t, http.MethodGet, "/api/users/u1/transactions?month=2024-05&employee=e1", "", "")
	list = decode[struct {
		Transactions []txJSON `json:"transactions"`
		Count        int      `json:"count"`
	}](t, rr)
	if list.Count != 1 || list.Transactions[0].ID != ids[1] {
		t.Fatalf("filtered list = %+v", list)
	}

	rr = env.do(t, http.MethodGet, "/api/users/u2/transactions", "", "")
	if got := strings.TrimSpace(rr.Body.String()); got != `{"transactions":[],"count":0}` {
		t.Errorf("other user body = %s", got)
	}

	rr = env.do(t, http.MethodGet, "/api/users/u1/transactions/"+ids[0], "", "")
	if rr.Code != http.StatusOK {
		t.Errorf("get status = %d", rr.Code)
	}

	rr = env.do(t, http.MethodDelete, "/api/users/u1/transactions/"+ids[0], "", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodDelete, "/api/users/u1/transactions/"+ids[0], "", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/api/users/u1/transactions/"+ids[0], "", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("get deleted status = %d, want 404", rr.Code)
	}
}

func TestSummary(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, body := range []string{
		`{"type":"deposit","amount":"100","date":"2024-05-01"}`,
		`{"type":"withdraw","amount":"150","date":"2024-05-02"}`,
		`{"type":"deposit","amount":"10","date":"2024-05-02","description":"Surebet x"}`,
		`{"type":"deposit","amount":"40","date":"2024-06-01"}`,
	} {
		if rr := env.do(t, http.MethodPost, "/api/users/u1/transactions", "application/json", body); rr.Code != http.StatusCreated {
			t.Fatalf("create status = %d", rr.Code)
		}
	}

	type summary struct {
		Profit    core.Money `json:"profit"`
		Deposits  core.Money `json:"deposits"`
		Withdraws core.Money `json:"withdraws"`
	}

	rr := env.do(t, http.MethodGet, "/api/users/u1/summary?month=2024-05", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	got := decode[summary](t, rr)
	// 150 - 100 + 10
	if got.Profit.Cents != 6000 || got.Deposits.Cents != 10000 || got.Withdraws.Cents != 15000 {
		t.Errorf("summary = %+v", got)
	}

	// A write for the same user invalidates the cached summary.
	env.do(t, http.MethodPost, "/api/users/u1/transactions", "application/json", `{"type":"withdraw","amount":"5","date":"2024-05-20"}`)
	got = decode[summary](t, env.do(t, http.MethodGet, "/api/users/u1/summary?month=2024-05", "", ""))
	if got.Profit.Cents != 6500 {
		t.Errorf("profit after write = %d, want 6500", got.Profit.Cents)
	}

	rr = env.do(t, http.MethodGet, "/api/users/u1/summary?month=May", "", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad month status = %d, want 400", rr.Code)
	}
}

func TestFinancialState(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/api/users/u1/financial-state", "", "")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("missing state status = %d, want 202", rr.Code)
	}
	pending := decode[pendingResponse](t, rr)
	if !pending.IsLoading || pending.Status != state.StatusMissing {
		t.Errorf("pending = %+v", pending)
	}
	env.recalc.Wait()

	rr = env.do(t, http.MethodGet, "/api/users/u1/financial-state", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status after recompute = %d, want 200", rr.Code)
	}
	first := decode[core.GlobalFinancialState](t, rr)

	env.do(t, http.MethodPost, "/api/users/u1/transactions", "application/json", `{"type":"withdraw","amount":"30","date":"2024-05-01"}`)
	rr = env.do(t, http.MethodPost, "/api/users/u1/financial-state/refresh", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh status = %d", rr.Code)
	}
	refreshed := decode[core.GlobalFinancialState](t, rr)
	if refreshed.Version <= first.Version {
		t.Errorf("refreshed version %d not newer than %d", refreshed.Version, first.Version)
	}
	if refreshed.Totals.Profit.Cents != 3000 {
		t.Errorf("profit = %d, want 3000", refreshed.Totals.Profit.Cents)
	}
	if refreshed.Monthly["2024-05"].Withdraws.Cents != 3000 {
		t.Errorf("monthly = %+v", refreshed.Monthly)
	}
}

func TestExportMonthly(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		env := newTestEnv(t, func(d *Deps) { d.Reports = nil })
		rr := env.do(t, http.MethodPost, "/api/users/u1/reports/monthly", "", "")
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rr.Code)
		}
	})

	t.Run("exports computed months", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.do(t, http.MethodPost, "/api/users/u1/transactions", "application/json", `{"type":"deposit","amount":"10","date":"2024-04-01"}`)
		env.do(t, http.MethodPost, "/api/users/u1/transactions", "application/json", `{"type":"withdraw","amount":"25","date":"2024-05-01"}`)
		env.recalc.Wait()

		rr := env.do(t, http.MethodPost, "/api/users/u1/reports/monthly", "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d (body %s)", rr.Code, rr.Body.String())
		}
		res := decode[services.ExportResult](t, rr)
		if res.Months != 2 || !strings.HasPrefix(res.Ref, "memory://u1/") {
			t.Errorf("result = %+v", res)
		}
		if rows := env.reports.Rows("u1"); len(rows) != 2 {
			t.Errorf("written rows = %d, want 2", len(rows))
		}
	})
}

func TestRateLimitOnWrites(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.RequestsPerMinute = 2 })

	body := `{"type":"deposit","amount":"1","date":"2024-05-01"}`
	for i := 0; i < 2; i++ {
		if rr := env.do(t, http.MethodPost, "/api/users/u1/transactions", "application/json", body); rr.Code != http.StatusCreated {
			t.Fatalf("request %d status = %d", i, rr.Code)
		}
	}
	rr := env.do(t, http.MethodPost, "/api/users/u1/transactions", "application/json", body)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}

	// Reads are never limited.
	if rr := env.do(t, http.MethodGet, "/api/users/u1/transactions", "", ""); rr.Code != http.StatusOK {
		t.Errorf("read status = %d, want 200", rr.Code)
	}
}

func TestMiddlewareHeaders(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/healthz", "", "")
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rr.Header().Get("X-Request-ID"); !strings.HasPrefix(got, "req_") {
		t.Errorf("X-Request-ID = %q, want generated id", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr = httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want inbound id", got)
	}

	rr = env.do(t, http.MethodPut, "/api/users/u1/transactions", "", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT status = %d, want 405", rr.Code)
	}
}

func TestStateStream(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.srv.Handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/users/u1/financial-state/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	// The first document does not exist yet; the reader requests it and the
	// stream must end up populated.
	scanner := bufio.NewScanner(resp.Body)
	var last streamEvent
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if err := json.Unmarshal([]byte(data), &last); err != nil {
			t.Fatalf("decode event %q: %v", data, err)
		}
		if last.Status == state.StatusPopulated {
			break
		}
	}
	if last.Status != state.StatusPopulated {
		t.Fatalf("last status = %v, want populated (scan err %v)", last.Status, scanner.Err())
	}
	if last.IsLoading || last.Data == nil || last.Data.UserID != "u1" {
		t.Errorf("event = %+v", last)
	}
}
