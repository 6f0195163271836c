// Package model defines the core domain types shared across the trading engine.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places money is rounded to when it
// leaves the engine (JSON, CLI). Internal arithmetic is never rounded.
const MoneyPlaces = 2

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide parses a trade side, case-insensitively.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", &ValidationError{Field: "type", Message: fmt.Sprintf("the selected type %q is invalid, must be buy or sell", s)}
}

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// Account holds the cash balance of a trader. The balance is never negative
// after a committed operation.
type Account struct {
	ID          int64           `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	CashBalance decimal.Decimal `json:"balance" db:"balance"`
}

// Instrument is a tradable stock. Its price is mutated only by the price
// updater; the trade engine reads it.
type Instrument struct {
	ID     int64           `json:"id" db:"id"`
	Symbol string          `json:"symbol" db:"symbol"`
	Price  decimal.Decimal `json:"price" db:"price"`
}

// Trade is an immutable ledger entry. Price is the execution price captured
// at the time of the trade, not a reference to the instrument's price.
// Once created, trades are never modified or deleted.
type Trade struct {
	ID           int64           `json:"id" db:"id"`
	AccountID    int64           `json:"account_id" db:"user_id"`
	InstrumentID int64           `json:"stock_id" db:"stock_id"`
	Side         Side            `json:"type" db:"type"`
	Quantity     int64           `json:"quantity" db:"quantity"`
	Price        decimal.Decimal `json:"price" db:"price"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// Cost returns quantity × price.
func (t Trade) Cost() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

// Position is a holding derived from the ledger. It is never persisted.
type Position struct {
	InstrumentID int64           `json:"stock_id"`
	Symbol       string          `json:"symbol"`
	Quantity     int64           `json:"quantity"`      // net: bought - sold
	BuyQuantity  int64           `json:"buy_quantity"`  // Σ bought
	BuyCost      decimal.Decimal `json:"buy_cost"`      // Σ bought × price
	AverageCost  decimal.Decimal `json:"avg_price"`     // BuyCost / BuyQuantity, unrounded
	CurrentPrice decimal.Decimal `json:"current_price"`
	UnrealizedPL decimal.Decimal `json:"profit_loss"`
}

// Portfolio is the cash balance of an account together with its open
// positions, read from one consistent snapshot.
type Portfolio struct {
	AccountID int64           `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
	Positions []Position      `json:"positions"`
	TotalPL   decimal.Decimal `json:"total_profit_loss"`
}

// RoundMoney rounds a monetary value for display.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// FormatMoney renders a monetary value with exactly two decimals.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyPlaces)
}
