// Package api exposes the simulator over HTTP: the market listing, price
// updates, the portfolio of the configured account and trade execution.
//
// All monetary fields are serialized as strings with exactly two decimals.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stocksim/trading-engine/internal/model"
	"github.com/stocksim/trading-engine/internal/portfolio"
	"github.com/stocksim/trading-engine/internal/trade"
)

// Executor executes trades.
type Executor interface {
	Execute(ctx context.Context, accountID, instrumentID int64, side model.Side, quantity int64) (*trade.Result, error)
}

// PriceUpdater moves market prices once.
type PriceUpdater interface {
	UpdateAll(ctx context.Context) ([]model.Instrument, error)
}

// Handler serves the JSON API for a single fixed account.
type Handler struct {
	accountID int64
	engine    Executor
	queries   *portfolio.Service
	prices    PriceUpdater
	ws        http.HandlerFunc
}

// NewHandler creates the API handler. ws may be nil to disable the
// WebSocket endpoint.
func NewHandler(accountID int64, engine Executor, queries *portfolio.Service, prices PriceUpdater, ws http.HandlerFunc) *Handler {
	return &Handler{
		accountID: accountID,
		engine:    engine,
		queries:   queries,
		prices:    prices,
		ws:        ws,
	}
}

// Routes returns the API routes, to be mounted under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/market", h.ListMarket)
	r.Post("/market/update-prices", h.UpdatePrices)
	r.Get("/portfolio", h.GetPortfolio)
	r.Post("/trade", h.ExecuteTrade)
	if h.ws != nil {
		r.Get("/ws", h.ws)
	}
	return r
}

// ListMarket handles GET /api/market
func (h *Handler) ListMarket(w http.ResponseWriter, r *http.Request) {
	list, err := h.queries.GetMarket(r.Context())
	if err != nil {
		slog.Error("list market failed", "err", err)
		writeError(w, "Failed to fetch market data", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toStocks(list))
}

// UpdatePrices handles POST /api/market/update-prices
func (h *Handler) UpdatePrices(w http.ResponseWriter, r *http.Request) {
	list, err := h.prices.UpdateAll(r.Context())
	if err != nil {
		slog.Error("price update failed", "err", err)
		writeError(w, "Failed to update prices", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, UpdatePricesResponse{
		Message: "Stock prices updated successfully",
		Stocks:  toStocks(list),
	})
}

// GetPortfolio handles GET /api/portfolio
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	pf, err := h.queries.GetPortfolio(r.Context(), h.accountID)
	if err != nil {
		if model.IsNotFound(err) {
			writeError(w, "User not found", http.StatusNotFound)
			return
		}
		slog.Error("portfolio query failed", "account", h.accountID, "err", err)
		writeError(w, "Failed to fetch portfolio", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toPortfolio(pf))
}

// ExecuteTrade handles POST /api/trade
func (h *Handler) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	stockID, side, quantity, verr := decodeTradeRequest(r)
	if verr != nil {
		writeValidation(w, verr)
		return
	}

	res, err := h.engine.Execute(r.Context(), h.accountID, stockID, side, quantity)
	if err != nil {
		writeTradeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, TradeResponse{
		Message:    "Trade executed successfully",
		Trade:      toTrade(res.Trade),
		NewBalance: model.FormatMoney(res.NewBalance),
	})
}

// writeTradeError maps the engine's error taxonomy onto HTTP statuses.
func writeTradeError(w http.ResponseWriter, err error) {
	var (
		ve *model.ValidationError
		nf *model.NotFoundError
		fe *model.InsufficientFundsError
		he *model.InsufficientHoldingsError
	)
	switch {
	case errors.As(err, &ve):
		writeValidation(w, fieldErrors{ve.Field: {ve.Message}})
	case errors.As(err, &nf):
		msg := "Stock not found"
		if nf.Entity == "account" {
			msg = "User not found"
		}
		writeError(w, msg, http.StatusNotFound)
	case errors.As(err, &fe):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":     "Insufficient balance",
			"required":  model.FormatMoney(fe.Required),
			"available": model.FormatMoney(fe.Available),
		})
	case errors.As(err, &he):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":     "Insufficient stock quantity",
			"required":  he.Required,
			"available": he.Available,
		})
	default:
		slog.Error("trade execution failed", "err", err)
		body := map[string]any{
			"error":   "Trade execution failed",
			"message": err.Error(),
		}
		if model.IsRetryable(err) {
			body["retryable"] = true
		}
		writeJSON(w, http.StatusInternalServerError, body)
	}
}

func writeValidation(w http.ResponseWriter, errs fieldErrors) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"error":    "Validation failed",
		"messages": errs,
	})
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
