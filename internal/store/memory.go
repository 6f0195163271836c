package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/model"
)

var errReadOnly = errors.New("write in read-only snapshot")

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// A read-write transaction holds the store-wide lock for its whole duration,
// which serializes trades and price updates. Writes are staged on the
// transaction and applied only on commit.
type MemoryStore struct {
	mu          sync.RWMutex
	accounts    map[int64]model.Account
	instruments map[int64]model.Instrument
	ledger      []model.Trade
	nextTradeID int64
	now         func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:    make(map[int64]model.Account),
		instruments: make(map[int64]model.Instrument),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// PutAccount creates or replaces an account.
func (s *MemoryStore) PutAccount(a model.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
}

// PutInstrument creates or replaces an instrument. Symbols must be unique.
func (s *MemoryStore) PutInstrument(i model.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.instruments {
		if existing.Symbol == i.Symbol && existing.ID != i.ID {
			return fmt.Errorf("instrument with symbol %s already exists", i.Symbol)
		}
	}
	s.instruments[i.ID] = i
	return nil
}

// SetPrice changes one instrument's price.
func (s *MemoryStore) SetPrice(id int64, price decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.instruments[id]
	if !ok {
		return &model.NotFoundError{Entity: "instrument", ID: id}
	}
	i.Price = price
	s.instruments[id] = i
	return nil
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return &model.StorageError{Op: "begin", Err: err}
	}

	tx := &memTx{s: s, balances: make(map[int64]decimal.Decimal)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &model.StorageError{Op: "commit", Err: err}
	}

	for id, bal := range tx.balances {
		a := s.accounts[id]
		a.CashBalance = bal
		s.accounts[id] = a
	}
	s.ledger = append(s.ledger, tx.pending...)
	s.nextTradeID += int64(len(tx.pending))
	return nil
}

func (s *MemoryStore) ReadSnapshot(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return &model.StorageError{Op: "begin", Err: err}
	}
	return fn(&memTx{s: s, readOnly: true})
}

func (s *MemoryStore) ListInstruments(_ context.Context) ([]model.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedInstruments(), nil
}

func (s *MemoryStore) UpdatePrices(_ context.Context, next func(model.Instrument) decimal.Decimal) ([]model.Instrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, i := range s.instruments {
		i.Price = next(i)
		s.instruments[id] = i
	}
	return s.sortedInstruments(), nil
}

// sortedInstruments must be called with s.mu held.
func (s *MemoryStore) sortedInstruments() []model.Instrument {
	list := make([]model.Instrument, 0, len(s.instruments))
	for _, i := range s.instruments {
		list = append(list, i)
	}
	sortBySymbol(list)
	return list
}

// memTx is a transaction over MemoryStore. The store lock is already held.
type memTx struct {
	s        *MemoryStore
	readOnly bool
	balances map[int64]decimal.Decimal
	pending  []model.Trade
}

func (tx *memTx) GetAccount(_ context.Context, id int64) (*model.Account, error) {
	a, ok := tx.s.accounts[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "account", ID: id}
	}
	if bal, ok := tx.balances[id]; ok {
		a.CashBalance = bal
	}
	return &a, nil
}

// LockAccount is GetAccount: the store lock already excludes other writers.
func (tx *memTx) LockAccount(ctx context.Context, id int64) (*model.Account, error) {
	if tx.readOnly {
		return nil, &model.StorageError{Op: "lock account", Err: errReadOnly}
	}
	return tx.GetAccount(ctx, id)
}

func (tx *memTx) SetBalance(_ context.Context, accountID int64, balance decimal.Decimal) error {
	if tx.readOnly {
		return &model.StorageError{Op: "set balance", Err: errReadOnly}
	}
	if _, ok := tx.s.accounts[accountID]; !ok {
		return &model.NotFoundError{Entity: "account", ID: accountID}
	}
	tx.balances[accountID] = balance
	return nil
}

func (tx *memTx) LockInstrument(_ context.Context, id int64) (*model.Instrument, error) {
	if tx.readOnly {
		return nil, &model.StorageError{Op: "lock instrument", Err: errReadOnly}
	}
	i, ok := tx.s.instruments[id]
	if !ok {
		return nil, &model.NotFoundError{Entity: "instrument", ID: id}
	}
	return &i, nil
}

func (tx *memTx) ListInstruments(_ context.Context) ([]model.Instrument, error) {
	return tx.s.sortedInstruments(), nil
}

func (tx *memTx) AppendTrade(_ context.Context, t *model.Trade) (int64, error) {
	if tx.readOnly {
		return 0, &model.StorageError{Op: "append trade", Err: errReadOnly}
	}
	t.ID = tx.s.nextTradeID + int64(len(tx.pending)) + 1
	t.CreatedAt = tx.s.now()
	tx.pending = append(tx.pending, *t)
	return t.ID, nil
}

func (tx *memTx) ListTrades(_ context.Context, accountID int64, instrumentID *int64) ([]model.Trade, error) {
	var result []model.Trade
	for _, list := range [][]model.Trade{tx.s.ledger, tx.pending} {
		for _, t := range list {
			if t.AccountID != accountID {
				continue
			}
			if instrumentID != nil && t.InstrumentID != *instrumentID {
				continue
			}
			result = append(result, t)
		}
	}
	return result, nil
}
