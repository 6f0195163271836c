package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stocksim/trading-engine/internal/model"
)

// fieldErrors maps a request field to its validation messages.
type fieldErrors map[string][]string

func (f fieldErrors) add(field, msg string) {
	f[field] = append(f[field], msg)
}

// Stock is the wire form of an instrument.
type Stock struct {
	ID     int64  `json:"id"`
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// UpdatePricesResponse is the JSON body returned from POST /market/update-prices.
type UpdatePricesResponse struct {
	Message string  `json:"message"`
	Stocks  []Stock `json:"stocks"`
}

// Position is the wire form of an open position.
type Position struct {
	Symbol       string `json:"symbol"`
	Quantity     int64  `json:"quantity"`
	AvgPrice     string `json:"avg_price"`
	CurrentPrice string `json:"current_price"`
	ProfitLoss   string `json:"profit_loss"`
}

// PortfolioResponse is the JSON body returned from GET /portfolio.
type PortfolioResponse struct {
	Balance         string     `json:"balance"`
	Positions       []Position `json:"positions"`
	TotalProfitLoss string     `json:"total_profit_loss"`
}

// TradeRequest is the JSON body for POST /trade. Fields are pointers so
// missing fields can be told apart from zero values.
type TradeRequest struct {
	StockID  *int64  `json:"stock_id"`
	Type     *string `json:"type"`
	Quantity *int64  `json:"quantity"`
}

// Trade is the wire form of a ledger entry.
type Trade struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	StockID   int64     `json:"stock_id"`
	Type      string    `json:"type"`
	Quantity  int64     `json:"quantity"`
	Price     string    `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// TradeResponse is the JSON body returned from POST /trade.
type TradeResponse struct {
	Message    string `json:"message"`
	Trade      Trade  `json:"trade"`
	NewBalance string `json:"new_balance"`
}

func toStocks(list []model.Instrument) []Stock {
	out := make([]Stock, 0, len(list))
	for _, i := range list {
		out = append(out, Stock{ID: i.ID, Symbol: i.Symbol, Price: model.FormatMoney(i.Price)})
	}
	return out
}

func toPortfolio(pf *model.Portfolio) PortfolioResponse {
	positions := make([]Position, 0, len(pf.Positions))
	for _, p := range pf.Positions {
		positions = append(positions, Position{
			Symbol:       p.Symbol,
			Quantity:     p.Quantity,
			AvgPrice:     model.FormatMoney(p.AverageCost),
			CurrentPrice: model.FormatMoney(p.CurrentPrice),
			ProfitLoss:   model.FormatMoney(p.UnrealizedPL),
		})
	}
	return PortfolioResponse{
		Balance:         model.FormatMoney(pf.Balance),
		Positions:       positions,
		TotalProfitLoss: model.FormatMoney(pf.TotalPL),
	}
}

func toTrade(t model.Trade) Trade {
	return Trade{
		ID:        t.ID,
		AccountID: t.AccountID,
		StockID:   t.InstrumentID,
		Type:      string(t.Side),
		Quantity:  t.Quantity,
		Price:     model.FormatMoney(t.Price),
		CreatedAt: t.CreatedAt,
	}
}

// decodeTradeRequest parses and validates a trade request body.
func decodeTradeRequest(r *http.Request) (int64, model.Side, int64, fieldErrors) {
	errs := fieldErrors{}

	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &typeErr) && typeErr.Field != "":
			want := "an integer"
			if typeErr.Field == "type" {
				want = "a string"
			}
			errs.add(typeErr.Field, fmt.Sprintf("the %s field must be %s", typeErr.Field, want))
		case errors.Is(err, io.EOF):
			errs.add("body", "the request body is required")
		default:
			errs.add("body", "the request body must be valid JSON")
		}
		return 0, "", 0, errs
	}

	if req.StockID == nil {
		errs.add("stock_id", "the stock_id field is required")
	} else if *req.StockID < 1 {
		errs.add("stock_id", "the stock_id field must be a positive integer")
	}

	var side model.Side
	if req.Type == nil {
		errs.add("type", "the type field is required")
	} else {
		s, err := model.ParseSide(*req.Type)
		if err != nil {
			errs.add("type", "the selected type is invalid")
		}
		side = s
	}

	if req.Quantity == nil {
		errs.add("quantity", "the quantity field is required")
	} else if *req.Quantity < 1 {
		errs.add("quantity", "the quantity field must be at least 1")
	}

	if len(errs) > 0 {
		return 0, "", 0, errs
	}
	return *req.StockID, side, *req.Quantity, nil
}
