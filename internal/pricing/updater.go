// Package pricing simulates market movement. Each update moves every stock
// by a uniformly random whole number of basis points between -500 and +500,
// rounds to cents and never lets a price fall below 1.00.
package pricing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/metrics"
	"github.com/stocksim/trading-engine/internal/model"
	"github.com/stocksim/trading-engine/internal/store"
)

const maxMoveBasisPoints = 500

var (
	floorPrice  = decimal.NewFromInt(1)
	tenThousand = decimal.NewFromInt(10000)
)

// Notifier is told about every completed price update.
type Notifier interface {
	PricesUpdated(instruments []model.Instrument)
}

// Updater applies random price moves to the price store.
type Updater struct {
	store    store.Store
	notifier Notifier

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// NewUpdater creates a price updater. rng may be nil for a randomly seeded
// source; notifier may be nil.
func NewUpdater(st store.Store, rng *rand.Rand, notifier Notifier) *Updater {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Updater{store: st, notifier: notifier, rng: rng}
}

// Move returns price moved by basisPoints/10000, rounded to cents and
// floored at 1.00.
func Move(price decimal.Decimal, basisPoints int) decimal.Decimal {
	factor := decimal.NewFromInt(int64(basisPoints)).Div(tenThousand).Add(decimal.NewFromInt(1))
	next := price.Mul(factor).Round(model.MoneyPlaces)
	if next.LessThan(floorPrice) {
		return floorPrice
	}
	return next
}

func (u *Updater) nextMove() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.rng.IntN(2*maxMoveBasisPoints+1) - maxMoveBasisPoints
}

// UpdateAll moves every instrument's price once and returns the new prices
// sorted by symbol.
func (u *Updater) UpdateAll(ctx context.Context) ([]model.Instrument, error) {
	updated, err := u.store.UpdatePrices(ctx, func(i model.Instrument) decimal.Decimal {
		return Move(i.Price, u.nextMove())
	})
	if err != nil {
		return nil, err
	}

	metrics.PriceUpdates.Inc()
	slog.Debug("prices updated", "instruments", len(updated))
	if u.notifier != nil {
		u.notifier.PricesUpdated(updated)
	}
	return updated, nil
}

// Run updates prices every interval until ctx is done.
func (u *Updater) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := u.UpdateAll(ctx); err != nil {
				slog.Error("price update failed", "err", err)
			}
		}
	}
}
