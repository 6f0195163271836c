package store

import (
	"context"
	"errors"
	"fmt"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/model"
)

// Schema the PostgreSQL store expects. Migrations are applied outside of
// this service.
//
//	CREATE TABLE users (
//	    id      BIGSERIAL PRIMARY KEY,
//	    name    TEXT NOT NULL,
//	    balance NUMERIC(14,2) NOT NULL CHECK (balance >= 0)
//	);
//	CREATE TABLE stocks (
//	    id     BIGSERIAL PRIMARY KEY,
//	    symbol TEXT NOT NULL UNIQUE,
//	    price  NUMERIC(12,2) NOT NULL CHECK (price > 0)
//	);
//	CREATE TABLE trades (
//	    id         BIGSERIAL PRIMARY KEY,
//	    user_id    BIGINT NOT NULL REFERENCES users(id),
//	    stock_id   BIGINT NOT NULL REFERENCES stocks(id),
//	    type       TEXT NOT NULL CHECK (type IN ('buy', 'sell')),
//	    quantity   BIGINT NOT NULL CHECK (quantity > 0),
//	    price      NUMERIC(12,2) NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE INDEX trades_user_stock_idx ON trades (user_id, stock_id, id);

// NewPool opens a pgx pool with the shopspring decimal codec registered so
// NUMERIC columns scan straight into decimal.Decimal.
func NewPool(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
//
// Trades run at READ COMMITTED with SELECT ... FOR UPDATE on the users row
// and then the stocks row. Portfolio reads run at REPEATABLE READ so balance,
// ledger and prices come from one snapshot.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store. The pool should
// come from NewPool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.inTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

func (s *PostgresStore) ReadSnapshot(ctx context.Context, fn func(tx Tx) error) error {
	return s.inTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (s *PostgresStore) inTx(ctx context.Context, opts pgx.TxOptions, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return storageErr("begin", err)
	}
	// Rollback after a successful commit is a no-op.
	defer tx.Rollback(context.WithoutCancel(ctx))

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

func (s *PostgresStore) ListInstruments(ctx context.Context) ([]model.Instrument, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, symbol, price FROM stocks ORDER BY symbol`)
	if err != nil {
		return nil, storageErr("list instruments", err)
	}
	defer rows.Close()
	return scanInstruments(rows)
}

func (s *PostgresStore) UpdatePrices(ctx context.Context, next func(model.Instrument) decimal.Decimal) ([]model.Instrument, error) {
	var updated []model.Instrument
	err := s.RunInTx(ctx, func(t Tx) error {
		tx := t.(*pgTx).tx

		// Lock in id order, the same order concurrent trades lock single rows.
		rows, err := tx.Query(ctx, `SELECT id, symbol, price FROM stocks ORDER BY id FOR UPDATE`)
		if err != nil {
			return storageErr("lock instruments", err)
		}
		list, err := scanInstruments(rows)
		rows.Close()
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for k := range list {
			list[k].Price = next(list[k])
			batch.Queue(`UPDATE stocks SET price = $2 WHERE id = $1`, list[k].ID, list[k].Price)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return storageErr("update prices", err)
		}
		updated = list
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortBySymbol(updated)
	return updated, nil
}

// pgTx implements Tx over a pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	return t.account(ctx, id, `SELECT id, name, balance FROM users WHERE id = $1`)
}

func (t *pgTx) LockAccount(ctx context.Context, id int64) (*model.Account, error) {
	return t.account(ctx, id, `SELECT id, name, balance FROM users WHERE id = $1 FOR UPDATE`)
}

func (t *pgTx) account(ctx context.Context, id int64, query string) (*model.Account, error) {
	var a model.Account
	err := t.tx.QueryRow(ctx, query, id).Scan(&a.ID, &a.Name, &a.CashBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &model.NotFoundError{Entity: "account", ID: id}
	}
	if err != nil {
		return nil, storageErr("get account", err)
	}
	return &a, nil
}

func (t *pgTx) SetBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `UPDATE users SET balance = $2 WHERE id = $1`, accountID, balance)
	if err != nil {
		return storageErr("set balance", err)
	}
	if tag.RowsAffected() == 0 {
		return &model.NotFoundError{Entity: "account", ID: accountID}
	}
	return nil
}

func (t *pgTx) LockInstrument(ctx context.Context, id int64) (*model.Instrument, error) {
	var i model.Instrument
	err := t.tx.QueryRow(ctx,
		`SELECT id, symbol, price FROM stocks WHERE id = $1 FOR UPDATE`, id).
		Scan(&i.ID, &i.Symbol, &i.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &model.NotFoundError{Entity: "instrument", ID: id}
	}
	if err != nil {
		return nil, storageErr("lock instrument", err)
	}
	return &i, nil
}

func (t *pgTx) ListInstruments(ctx context.Context) ([]model.Instrument, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, symbol, price FROM stocks ORDER BY symbol`)
	if err != nil {
		return nil, storageErr("list instruments", err)
	}
	defer rows.Close()
	return scanInstruments(rows)
}

func (t *pgTx) AppendTrade(ctx context.Context, tr *model.Trade) (int64, error) {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO trades (user_id, stock_id, type, quantity, price)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		tr.AccountID, tr.InstrumentID, string(tr.Side), tr.Quantity, tr.Price,
	).Scan(&tr.ID, &tr.CreatedAt)
	if err != nil {
		return 0, storageErr("append trade", err)
	}
	return tr.ID, nil
}

func (t *pgTx) ListTrades(ctx context.Context, accountID int64, instrumentID *int64) ([]model.Trade, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, user_id, stock_id, type, quantity, price, created_at
		 FROM trades
		 WHERE user_id = $1 AND ($2::BIGINT IS NULL OR stock_id = $2)
		 ORDER BY id`, accountID, instrumentID)
	if err != nil {
		return nil, storageErr("list trades", err)
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var tr model.Trade
		var side string
		if err := rows.Scan(&tr.ID, &tr.AccountID, &tr.InstrumentID, &side,
			&tr.Quantity, &tr.Price, &tr.CreatedAt); err != nil {
			return nil, storageErr("scan trade", err)
		}
		tr.Side = model.Side(side)
		trades = append(trades, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list trades", err)
	}
	return trades, nil
}

func scanInstruments(rows pgx.Rows) ([]model.Instrument, error) {
	var list []model.Instrument
	for rows.Next() {
		var i model.Instrument
		if err := rows.Scan(&i.ID, &i.Symbol, &i.Price); err != nil {
			return nil, storageErr("scan instrument", err)
		}
		list = append(list, i)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("scan instruments", err)
	}
	return list, nil
}

// storageErr wraps a driver error. Serialization failures and deadlocks are
// marked retryable.
func storageErr(op string, err error) error {
	var pgErr *pgconn.PgError
	retryable := errors.As(err, &pgErr) &&
		(pgErr.Code == "40001" || pgErr.Code == "40P01")
	return &model.StorageError{Op: op, Err: err, Retryable: retryable}
}
