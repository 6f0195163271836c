package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/api"
	"github.com/stocksim/trading-engine/internal/model"
	"github.com/stocksim/trading-engine/internal/portfolio"
	"github.com/stocksim/trading-engine/internal/pricing"
	"github.com/stocksim/trading-engine/internal/store"
	"github.com/stocksim/trading-engine/internal/trade"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// newTestEnv creates the API over an in-memory store seeded like a fresh
// simulator: one account with 10000.00 and five stocks.
func newTestEnv(t *testing.T) (*store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	ms.PutAccount(model.Account{ID: 1, Name: "Mario", CashBalance: d("10000.00")})
	for k, seed := range []struct{ sym, price string }{
		{"AAPL", "150.00"}, {"TSLA", "710.00"}, {"MSFT", "320.00"}, {"NVDA", "450.00"}, {"AMD", "115.00"},
	} {
		if err := ms.PutInstrument(model.Instrument{ID: int64(k + 1), Symbol: seed.sym, Price: d(seed.price)}); err != nil {
			t.Fatalf("failed to seed instrument: %v", err)
		}
	}

	h := api.NewHandler(1,
		trade.NewEngine(ms, nil),
		portfolio.NewService(ms),
		pricing.NewUpdater(ms, nil, nil),
		nil,
	)
	r := chi.NewRouter()
	r.Mount("/api", h.Routes())
	return ms, r
}

func doTrade(t *testing.T, router chi.Router, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/trade", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func doGet(t *testing.T, router chi.Router, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
}

// --- Market ---

func TestListMarket_SortedWithCents(t *testing.T) {
	_, router := newTestEnv(t)

	w := doGet(t, router, "/api/market")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var stocks []api.Stock
	decode(t, w, &stocks)
	want := []string{"AAPL", "AMD", "MSFT", "NVDA", "TSLA"}
	if len(stocks) != len(want) {
		t.Fatalf("expected %d stocks, got %d", len(want), len(stocks))
	}
	for k, s := range stocks {
		if s.Symbol != want[k] {
			t.Errorf("position %d: got %s, want %s", k, s.Symbol, want[k])
		}
	}
	if stocks[0].Price != "150.00" {
		t.Errorf("expected price 150.00, got %s", stocks[0].Price)
	}
}

func TestUpdatePrices(t *testing.T) {
	_, router := newTestEnv(t)

	req := httptest.NewRequest("POST", "/api/market/update-prices", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp api.UpdatePricesResponse
	decode(t, w, &resp)
	if resp.Message == "" || len(resp.Stocks) != 5 {
		t.Errorf("unexpected response: %+v", resp)
	}
	for _, s := range resp.Stocks {
		p := d(s.Price)
		if p.LessThan(d("1")) {
			t.Errorf("%s price below floor: %s", s.Symbol, s.Price)
		}
	}
}

// --- Trade execution ---

func TestExecuteTrade_Buy(t *testing.T) {
	_, router := newTestEnv(t)

	w := doTrade(t, router, `{"stock_id": 1, "type": "buy", "quantity": 10}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp api.TradeResponse
	decode(t, w, &resp)
	if resp.NewBalance != "8500.00" {
		t.Errorf("expected new_balance 8500.00, got %s", resp.NewBalance)
	}
	if resp.Trade.ID == 0 || resp.Trade.Type != "buy" || resp.Trade.Price != "150.00" || resp.Trade.StockID != 1 {
		t.Errorf("unexpected trade: %+v", resp.Trade)
	}
	if resp.Trade.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestExecuteTrade_Validation(t *testing.T) {
	_, router := newTestEnv(t)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"zero quantity", `{"stock_id": 1, "type": "buy", "quantity": 0}`, "quantity"},
		{"fractional quantity", `{"stock_id": 1, "type": "buy", "quantity": 1.5}`, "quantity"},
		{"missing quantity", `{"stock_id": 1, "type": "buy"}`, "quantity"},
		{"unknown type", `{"stock_id": 1, "type": "hold", "quantity": 1}`, "type"},
		{"missing stock", `{"type": "sell", "quantity": 1}`, "stock_id"},
		{"malformed body", `{"stock_id": `, "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doTrade(t, router, tt.body)
			if w.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
			}
			var resp struct {
				Error    string              `json:"error"`
				Messages map[string][]string `json:"messages"`
			}
			decode(t, w, &resp)
			if resp.Error != "Validation failed" {
				t.Errorf("unexpected error: %s", resp.Error)
			}
			if len(resp.Messages[tt.field]) == 0 {
				t.Errorf("expected message for %s, got %v", tt.field, resp.Messages)
			}
		})
	}
}

func TestExecuteTrade_UnknownStock(t *testing.T) {
	_, router := newTestEnv(t)

	w := doTrade(t, router, `{"stock_id": 99, "type": "buy", "quantity": 1}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestExecuteTrade_InsufficientFunds(t *testing.T) {
	_, router := newTestEnv(t)

	w := doTrade(t, router, `{"stock_id": 2, "type": "buy", "quantity": 15}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	decode(t, w, &resp)
	if resp["required"] != "10650.00" || resp["available"] != "10000.00" {
		t.Errorf("unexpected detail: %v", resp)
	}
}

func TestExecuteTrade_InsufficientHoldings(t *testing.T) {
	_, router := newTestEnv(t)
	doTrade(t, router, `{"stock_id": 5, "type": "buy", "quantity": 3}`)

	w := doTrade(t, router, `{"stock_id": 5, "type": "sell", "quantity": 4}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	decode(t, w, &resp)
	if resp["required"] != float64(4) || resp["available"] != float64(3) {
		t.Errorf("unexpected detail: %v", resp)
	}
}

// --- Portfolio ---

func TestGetPortfolio_Scenario(t *testing.T) {
	ms, router := newTestEnv(t)

	if w := doTrade(t, router, `{"stock_id": 1, "type": "buy", "quantity": 10}`); w.Code != http.StatusOK {
		t.Fatalf("buy failed: %d %s", w.Code, w.Body.String())
	}
	ms.SetPrice(1, d("160.00"))
	w := doTrade(t, router, `{"stock_id": 1, "type": "sell", "quantity": 4}`)
	if w.Code != http.StatusOK {
		t.Fatalf("sell failed: %d %s", w.Code, w.Body.String())
	}
	var tr api.TradeResponse
	decode(t, w, &tr)
	if tr.NewBalance != "9140.00" {
		t.Errorf("expected new_balance 9140.00, got %s", tr.NewBalance)
	}

	w = doGet(t, router, "/api/portfolio")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var pf api.PortfolioResponse
	decode(t, w, &pf)
	if pf.Balance != "9140.00" {
		t.Errorf("expected balance 9140.00, got %s", pf.Balance)
	}
	want := api.Position{Symbol: "AAPL", Quantity: 6, AvgPrice: "150.00", CurrentPrice: "160.00", ProfitLoss: "60.00"}
	if len(pf.Positions) != 1 || pf.Positions[0] != want {
		t.Errorf("expected %+v, got %+v", want, pf.Positions)
	}
	if pf.TotalProfitLoss != "60.00" {
		t.Errorf("expected total 60.00, got %s", pf.TotalProfitLoss)
	}
}

func TestGetPortfolio_EmptyPositionsIsArray(t *testing.T) {
	_, router := newTestEnv(t)

	w := doGet(t, router, "/api/portfolio")
	if !bytes.Contains(w.Body.Bytes(), []byte(`"positions":[]`)) {
		t.Errorf("expected empty positions array, got %s", w.Body.String())
	}
}

func TestGetPortfolio_AccountMissing(t *testing.T) {
	ms := store.NewMemoryStore()
	h := api.NewHandler(1, trade.NewEngine(ms, nil), portfolio.NewService(ms), pricing.NewUpdater(ms, nil, nil), nil)
	r := chi.NewRouter()
	r.Mount("/api", h.Routes())

	if w := doGet(t, r, "/api/portfolio"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

// --- Failure mapping ---

type failingExecutor struct{ err error }

func (f failingExecutor) Execute(context.Context, int64, int64, model.Side, int64) (*trade.Result, error) {
	return nil, f.err
}

func TestExecuteTrade_StorageFailure(t *testing.T) {
	ms := store.NewMemoryStore()
	storageErr := &model.StorageError{Op: "commit", Err: context.DeadlineExceeded, Retryable: true}
	h := api.NewHandler(1, failingExecutor{storageErr}, portfolio.NewService(ms), pricing.NewUpdater(ms, nil, nil), nil)
	r := chi.NewRouter()
	r.Mount("/api", h.Routes())

	w := doTrade(t, r, `{"stock_id": 1, "type": "buy", "quantity": 1}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var resp map[string]any
	decode(t, w, &resp)
	if resp["error"] != "Trade execution failed" || resp["retryable"] != true {
		t.Errorf("unexpected body: %v", resp)
	}
}

// --- Concurrency through HTTP ---

func TestExecuteTrade_ConcurrentRequests(t *testing.T) {
	ms, router := newTestEnv(t)
	ms.SetPrice(3, d("6000.00"))

	const n = 20
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = doTrade(t, router, `{"stock_id": 3, "type": "buy", "quantity": 1}`).Code
		}(i)
	}
	wg.Wait()

	ok, rejected := 0, 0
	for _, c := range codes {
		switch c {
		case http.StatusOK:
			ok++
		case http.StatusBadRequest:
			rejected++
		}
	}
	if ok != 1 || rejected != n-1 {
		t.Errorf("expected 1 success and %d rejections, got %d and %d", n-1, ok, rejected)
	}
}
