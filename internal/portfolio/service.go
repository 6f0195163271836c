// Package portfolio serves the read side of the simulator: the market
// listing and an account's portfolio. Nothing here writes to the store.
package portfolio

import (
	"context"
	"fmt"

	"github.com/stocksim/trading-engine/internal/model"
	"github.com/stocksim/trading-engine/internal/position"
	"github.com/stocksim/trading-engine/internal/store"
)

// Service composes the price store, the ledger and the account balance.
type Service struct {
	store store.Store
}

// NewService creates a new query service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// GetPortfolio returns the account's cash balance and open positions. The
// balance, ledger and prices are read from the same snapshot, so a trade is
// either reflected in both the balance and the positions or in neither.
func (s *Service) GetPortfolio(ctx context.Context, accountID int64) (*model.Portfolio, error) {
	var pf *model.Portfolio
	err := s.store.ReadSnapshot(ctx, func(tx store.Tx) error {
		acct, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		trades, err := tx.ListTrades(ctx, accountID, nil)
		if err != nil {
			return err
		}
		instruments, err := tx.ListInstruments(ctx)
		if err != nil {
			return err
		}

		positions, err := position.Aggregate(trades, store.InstrumentIndex(instruments))
		if err != nil {
			return fmt.Errorf("aggregate positions for account %d: %w", accountID, err)
		}

		pf = &model.Portfolio{
			AccountID: acct.ID,
			Balance:   acct.CashBalance,
			Positions: positions,
			TotalPL:   position.TotalPL(positions),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pf, nil
}

// GetMarket returns every instrument sorted by symbol.
func (s *Service) GetMarket(ctx context.Context) ([]model.Instrument, error) {
	list, err := s.store.ListInstruments(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.Instrument{}
	}
	return list, nil
}
