// Package position derives holdings from the trade ledger.
//
// Positions are never stored. They are recomputed from the ordered ledger on
// every read, so the functions here are pure reducers over a trade slice and
// can be tested with in-memory trade lists.
//
// Cost basis uses BUY trades only: selling shares does not change the
// average cost of the shares that remain.
package position

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/model"
)

// tally accumulates one instrument's trades.
type tally struct {
	instrumentID int64
	net          int64
	buyQty       int64
	buyCost      decimal.Decimal
}

func (t *tally) add(tr model.Trade) {
	switch tr.Side {
	case model.SideBuy:
		t.net += tr.Quantity
		t.buyQty += tr.Quantity
		t.buyCost = t.buyCost.Add(tr.Cost())
	case model.SideSell:
		t.net -= tr.Quantity
	}
}

// Aggregate groups trades by instrument and returns the open positions
// (net quantity > 0), valued at the prices in instruments. The result is
// sorted by symbol, then instrument ID.
//
// It fails with *model.MissingPriceError if an instrument with an open
// position is absent from instruments.
func Aggregate(trades []model.Trade, instruments map[int64]model.Instrument) ([]model.Position, error) {
	tallies := make(map[int64]*tally)
	for _, tr := range trades {
		t, ok := tallies[tr.InstrumentID]
		if !ok {
			t = &tally{instrumentID: tr.InstrumentID}
			tallies[tr.InstrumentID] = t
		}
		t.add(tr)
	}

	positions := make([]model.Position, 0, len(tallies))
	for _, t := range tallies {
		if t.net <= 0 {
			continue
		}
		inst, ok := instruments[t.instrumentID]
		if !ok {
			return nil, &model.MissingPriceError{InstrumentID: t.instrumentID}
		}
		positions = append(positions, value(t, inst))
	}

	sort.Slice(positions, func(i, j int) bool {
		if positions[i].Symbol != positions[j].Symbol {
			return positions[i].Symbol < positions[j].Symbol
		}
		return positions[i].InstrumentID < positions[j].InstrumentID
	})
	return positions, nil
}

// value builds a Position from a tally with net > 0. A positive net implies
// buyQty > 0, so the divisions are safe.
func value(t *tally, inst model.Instrument) model.Position {
	buyQty := decimal.NewFromInt(t.buyQty)
	net := decimal.NewFromInt(t.net)

	// (price·buyQty − buyCost)·net / buyQty keeps the single division last.
	pl := inst.Price.Mul(buyQty).Sub(t.buyCost).Mul(net).Div(buyQty)

	return model.Position{
		InstrumentID: t.instrumentID,
		Symbol:       inst.Symbol,
		Quantity:     t.net,
		BuyQuantity:  t.buyQty,
		BuyCost:      t.buyCost,
		AverageCost:  t.buyCost.Div(buyQty),
		CurrentPrice: inst.Price,
		UnrealizedPL: pl,
	}
}

// NetQuantity returns Σ bought − Σ sold for one instrument.
func NetQuantity(trades []model.Trade, instrumentID int64) int64 {
	t := tally{instrumentID: instrumentID}
	for _, tr := range trades {
		if tr.InstrumentID == instrumentID {
			t.add(tr)
		}
	}
	return t.net
}

// TotalPL sums the unrealized profit/loss of positions.
func TotalPL(positions []model.Position) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.UnrealizedPL)
	}
	return total
}
