// Package ledger provides access to the immutable transaction log.
// Entries are append-only; nothing in the engine mutates or deletes them.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fundlens/fundlens/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Repository handles transaction database operations against ledger.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new transaction repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "ledger").Logger(),
	}
}

// Append records a new transaction. The id is generated when empty.
func (r *Repository) Append(tx domain.Transaction) (string, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Status == "" {
		tx.Status = domain.StatusSettled
	}

	amount, _ := tx.Amount.Float64()
	units, _ := tx.Units.Float64()
	unitPrice, _ := tx.UnitPrice.Float64()

	_, err := r.db.Exec(`
		INSERT INTO transactions (id, customer_id, instrument_code, kind, amount, units, unit_price, executed_at, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tx.ID, tx.CustomerID, tx.InstrumentCode, string(tx.Kind), amount, units, unitPrice,
		tx.ExecutedAt.Unix(), string(tx.Status), time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("failed to append transaction: %w", err)
	}

	return tx.ID, nil
}

// GetByCustomer returns a customer's full transaction history in
// timestamp-ascending order. Ascending order is a correctness precondition
// for cost-basis arithmetic downstream.
func (r *Repository) GetByCustomer(customerID string) ([]domain.Transaction, error) {
	rows, err := r.db.Query(`
		SELECT id, customer_id, instrument_code, kind, amount, units, unit_price, executed_at, status, created_at
		FROM transactions
		WHERE customer_id = ?
		ORDER BY executed_at ASC, created_at ASC
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions for %s: %w", customerID, err)
	}
	defer rows.Close()

	var result []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return result, nil
}

func scanTransaction(rows *sql.Rows) (domain.Transaction, error) {
	var tx domain.Transaction
	var kind, status string
	var amount, units, unitPrice float64
	var executedAt, createdAt int64

	if err := rows.Scan(&tx.ID, &tx.CustomerID, &tx.InstrumentCode, &kind, &amount, &units,
		&unitPrice, &executedAt, &status, &createdAt); err != nil {
		return domain.Transaction{}, err
	}

	tx.Kind = domain.TransactionKind(kind)
	tx.Status = domain.TransactionStatus(status)
	tx.Amount = decimal.NewFromFloat(amount)
	tx.Units = decimal.NewFromFloat(units)
	tx.UnitPrice = decimal.NewFromFloat(unitPrice)
	tx.ExecutedAt = time.Unix(executedAt, 0).UTC()
	tx.CreatedAt = time.Unix(createdAt, 0).UTC()

	return tx, nil
}
