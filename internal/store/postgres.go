package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Ivantech123/neontrill/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
//
// Schema:
//
//	CREATE TABLE balances (
//	    identity TEXT PRIMARY KEY,
//	    amount   NUMERIC NOT NULL
//	);
//	CREATE TABLE history (
//	    id        TEXT PRIMARY KEY,
//	    identity  TEXT NOT NULL,
//	    round_id  TEXT NOT NULL,
//	    outcome   TEXT NOT NULL,
//	    amount    NUMERIC NOT NULL,
//	    timestamp TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX history_identity_idx ON history (identity);
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) GetBalance(ctx context.Context, identity string) (decimal.Decimal, error) {
	var raw string
	err := s.pool.QueryRow(ctx,
		`SELECT amount::TEXT FROM balances WHERE identity = $1`, identity).
		Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}

	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse balance: %w", err)
	}
	return amount, nil
}

func (s *PostgresStore) SetBalance(ctx context.Context, identity string, amount decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO balances (identity, amount) VALUES ($1, $2::NUMERIC)
		 ON CONFLICT (identity) DO UPDATE SET amount = EXCLUDED.amount`,
		identity, amount.String())
	return err
}

func (s *PostgresStore) AppendHistory(ctx context.Context, entry *model.HistoryEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO history (id, identity, round_id, outcome, amount, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6)`,
		entry.ID, entry.Identity, entry.RoundID, string(entry.Outcome),
		entry.Amount.String(), entry.Timestamp)
	return err
}

func (s *PostgresStore) HistoryByIdentity(ctx context.Context, identity string) ([]model.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, identity, round_id, outcome, amount::TEXT, timestamp
		 FROM history WHERE identity = $1 ORDER BY timestamp`, identity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHistory(rows)
}

func (s *PostgresStore) AllHistory(ctx context.Context) ([]model.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, identity, round_id, outcome, amount::TEXT, timestamp
		 FROM history ORDER BY timestamp`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHistory(rows)
}

func scanHistory(rows pgx.Rows) ([]model.HistoryEntry, error) {
	var entries []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		var outcome, amount string

		if err := rows.Scan(&e.ID, &e.Identity, &e.RoundID, &outcome, &amount, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Outcome = model.Outcome(outcome)

		var err error
		e.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
