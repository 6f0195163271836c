// Package store defines the persistence interfaces for the trading engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache of the market listing), and in-memory (for testing and development).
package store

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/model"
)

// Store is the persistence interface. Every read or write that must be
// consistent with another runs inside RunInTx or ReadSnapshot.
type Store interface {
	// RunInTx runs fn in a read-write transaction. If fn returns an error
	// every write made through tx is discarded; otherwise all of them are
	// committed atomically.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	// ReadSnapshot runs fn against a single consistent, read-only view.
	// Write methods on tx fail.
	ReadSnapshot(ctx context.Context, fn func(tx Tx) error) error

	// --- Price store ---

	// ListInstruments returns all instruments sorted by symbol. It reads
	// committed data outside of any transaction.
	ListInstruments(ctx context.Context) ([]model.Instrument, error)

	// UpdatePrices sets every instrument's price to next(instrument) and
	// returns the updated instruments sorted by symbol. Prices are written
	// under the same row locks the trade path takes.
	UpdatePrices(ctx context.Context, next func(model.Instrument) decimal.Decimal) ([]model.Instrument, error)
}

// Tx is the view of the store inside a transaction.
type Tx interface {
	// --- Accounts ---

	// GetAccount reads an account. Returns *model.NotFoundError if absent.
	GetAccount(ctx context.Context, id int64) (*model.Account, error)

	// LockAccount reads an account and locks it until the transaction ends.
	LockAccount(ctx context.Context, id int64) (*model.Account, error)

	// SetBalance overwrites the cash balance of an account.
	SetBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error

	// --- Instruments ---

	// LockInstrument reads an instrument and locks it until the transaction
	// ends, so its price cannot change under the caller.
	LockInstrument(ctx context.Context, id int64) (*model.Instrument, error)

	// ListInstruments returns all instruments sorted by symbol.
	ListInstruments(ctx context.Context) ([]model.Instrument, error)

	// --- Immutable ledger ---

	// AppendTrade records a trade and returns its id. ID and CreatedAt of
	// t are filled in.
	AppendTrade(ctx context.Context, t *model.Trade) (int64, error)

	// ListTrades returns an account's trades ordered by id ascending,
	// optionally restricted to one instrument.
	ListTrades(ctx context.Context, accountID int64, instrumentID *int64) ([]model.Trade, error)
}

// InstrumentIndex indexes instruments by id.
func InstrumentIndex(list []model.Instrument) map[int64]model.Instrument {
	idx := make(map[int64]model.Instrument, len(list))
	for _, i := range list {
		idx[i.ID] = i
	}
	return idx
}

func sortBySymbol(list []model.Instrument) {
	sort.Slice(list, func(a, b int) bool { return list[a].Symbol < list[b].Symbol })
}
