package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/api"
	"github.com/stocksim/trading-engine/internal/client"
	"github.com/stocksim/trading-engine/internal/model"
	"github.com/stocksim/trading-engine/internal/portfolio"
	"github.com/stocksim/trading-engine/internal/pricing"
	"github.com/stocksim/trading-engine/internal/store"
	"github.com/stocksim/trading-engine/internal/trade"
)

func newTestServer(t *testing.T) *client.Client {
	t.Helper()
	ms := store.NewMemoryStore()
	ms.PutAccount(model.Account{ID: 1, CashBalance: decimal.NewFromInt(1000)})
	ms.PutInstrument(model.Instrument{ID: 1, Symbol: "AMD", Price: decimal.NewFromInt(115)})

	h := api.NewHandler(1, trade.NewEngine(ms, nil), portfolio.NewService(ms), pricing.NewUpdater(ms, nil, nil), nil)
	r := chi.NewRouter()
	r.Mount("/api", h.Routes())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return client.New(srv.URL + "/")
}

func TestClient_RoundTrip(t *testing.T) {
	c := newTestServer(t)
	ctx := context.Background()

	stocks, err := c.Market(ctx)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	if len(stocks) != 1 || stocks[0].Symbol != "AMD" {
		t.Fatalf("unexpected market: %+v", stocks)
	}

	tr, err := c.Trade(ctx, 1, "buy", 2)
	if err != nil {
		t.Fatalf("trade: %v", err)
	}
	if tr.NewBalance != "770.00" {
		t.Errorf("expected 770.00, got %s", tr.NewBalance)
	}

	pf, err := c.Portfolio(ctx)
	if err != nil {
		t.Fatalf("portfolio: %v", err)
	}
	if len(pf.Positions) != 1 || pf.Positions[0].Quantity != 2 {
		t.Errorf("unexpected positions: %+v", pf.Positions)
	}

	up, err := c.UpdatePrices(ctx)
	if err != nil {
		t.Fatalf("update prices: %v", err)
	}
	if len(up.Stocks) != 1 {
		t.Errorf("expected 1 stock, got %d", len(up.Stocks))
	}
}

func TestClient_ErrorDetail(t *testing.T) {
	c := newTestServer(t)

	_, err := c.Trade(context.Background(), 1, "sell", 1)
	var apiErr *client.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *client.Error, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", apiErr.Status)
	}
	if !strings.Contains(err.Error(), "required 1, available 0") {
		t.Errorf("unexpected message: %s", err)
	}

	_, err = c.Trade(context.Background(), 1, "buy", 0)
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
	if !strings.Contains(err.Error(), "quantity") {
		t.Errorf("expected field detail, got %s", err)
	}
}
