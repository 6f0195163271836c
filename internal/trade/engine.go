// Package trade executes market buy and sell orders against the ledger.
//
// Execution is a single store transaction: the account row and then the
// instrument row are locked, the order is validated against the locked
// balance, the locked price and the holdings recomputed from the ledger,
// and the ledger append and balance change commit together or not at all.
//
// All monetary values use shopspring/decimal, never float64.
package trade

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/metrics"
	"github.com/stocksim/trading-engine/internal/model"
	"github.com/stocksim/trading-engine/internal/position"
	"github.com/stocksim/trading-engine/internal/store"
)

// Notifier is told about every committed trade.
type Notifier interface {
	TradeExecuted(trade model.Trade, symbol string, newBalance decimal.Decimal)
}

// Result is the outcome of a committed trade.
type Result struct {
	NewBalance decimal.Decimal
	Trade      model.Trade
}

// Engine validates and executes trades.
type Engine struct {
	store    store.Store
	notifier Notifier
}

// NewEngine creates a trade engine. Pass nil for notifier if broadcasting
// is not needed.
func NewEngine(st store.Store, notifier Notifier) *Engine {
	return &Engine{store: st, notifier: notifier}
}

// Execute buys or sells quantity shares of an instrument for an account at
// the instrument's current price.
//
// Errors are *model.ValidationError, *model.NotFoundError,
// *model.InsufficientFundsError, *model.InsufficientHoldingsError or
// *model.StorageError. None of them leaves any state changed.
func (e *Engine) Execute(ctx context.Context, accountID, instrumentID int64, side model.Side, quantity int64) (*Result, error) {
	start := time.Now()

	if err := validate(side, quantity); err != nil {
		metrics.TradeRejections.WithLabelValues(rejectReason(err)).Inc()
		return nil, err
	}

	var (
		result Result
		symbol string
	)
	err := e.store.RunInTx(ctx, func(tx store.Tx) error {
		// Lock order is always account then instrument.
		acct, err := tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		inst, err := tx.LockInstrument(ctx, instrumentID)
		if err != nil {
			return err
		}
		symbol = inst.Symbol

		price := inst.Price
		totalCost := price.Mul(decimal.NewFromInt(quantity))
		balance := acct.CashBalance

		switch side {
		case model.SideBuy:
			if balance.LessThan(totalCost) {
				return &model.InsufficientFundsError{Required: totalCost, Available: balance}
			}
			balance = balance.Sub(totalCost)

		case model.SideSell:
			trades, err := tx.ListTrades(ctx, accountID, &instrumentID)
			if err != nil {
				return err
			}
			owned := position.NetQuantity(trades, instrumentID)
			if owned < quantity {
				return &model.InsufficientHoldingsError{Required: quantity, Available: owned}
			}
			balance = balance.Add(totalCost)
		}

		tr := model.Trade{
			AccountID:    accountID,
			InstrumentID: instrumentID,
			Side:         side,
			Quantity:     quantity,
			Price:        price,
		}
		if _, err := tx.AppendTrade(ctx, &tr); err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, accountID, balance); err != nil {
			return err
		}

		result = Result{NewBalance: balance, Trade: tr}
		return nil
	})
	if err != nil {
		metrics.TradeRejections.WithLabelValues(rejectReason(err)).Inc()
		slog.Warn("trade rejected",
			"account", accountID,
			"stock_id", instrumentID,
			"side", side,
			"qty", quantity,
			"err", err,
		)
		return nil, err
	}

	metrics.TradesTotal.WithLabelValues(string(side)).Inc()
	metrics.TradeVolume.WithLabelValues(symbol, string(side)).Add(float64(quantity))
	metrics.TradeLatency.WithLabelValues(string(side)).Observe(time.Since(start).Seconds())

	slog.Info("trade executed",
		"trade_id", result.Trade.ID,
		"account", accountID,
		"symbol", symbol,
		"side", side,
		"qty", quantity,
		"price", result.Trade.Price.String(),
		"new_balance", result.NewBalance.String(),
	)

	if e.notifier != nil {
		e.notifier.TradeExecuted(result.Trade, symbol, result.NewBalance)
	}
	return &result, nil
}

func validate(side model.Side, quantity int64) error {
	if !side.Valid() {
		return &model.ValidationError{Field: "type", Message: "must be buy or sell"}
	}
	if quantity < 1 {
		return &model.ValidationError{Field: "quantity", Message: "must be at least 1"}
	}
	return nil
}

// rejectReason maps an error to a low-cardinality metrics label.
func rejectReason(err error) string {
	var (
		ve *model.ValidationError
		nf *model.NotFoundError
		fe *model.InsufficientFundsError
		he *model.InsufficientHoldingsError
	)
	switch {
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &fe):
		return "insufficient_funds"
	case errors.As(err, &he):
		return "insufficient_holdings"
	}
	return "storage"
}
