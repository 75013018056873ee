// Package positions owns the derived holdings: weighted-average cost
// positions rebuilt from the transaction ledger.
package positions

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fundlens/fundlens/internal/database"
	"github.com/fundlens/fundlens/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Repository handles holding database operations.
type Repository struct {
	db    *sql.DB
	retry database.RetryPolicy
	log   zerolog.Logger
}

// NewRepository creates a new holding repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:    db,
		retry: database.DefaultRetryPolicy(),
		log:   log.With().Str("repo", "positions").Logger(),
	}
}

// GetByCustomer returns a customer's current holdings.
func (r *Repository) GetByCustomer(customerID string) ([]domain.Holding, error) {
	rows, err := r.db.Query(`
		SELECT customer_id, instrument_code, units, average_cost, market_value, updated_at
		FROM holdings WHERE customer_id = ?
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings for %s: %w", customerID, err)
	}
	defer rows.Close()

	return collectHoldings(rows)
}

// GetAll returns every holding in the store. Used by the valuation updater.
func (r *Repository) GetAll() ([]domain.Holding, error) {
	rows, err := r.db.Query(`
		SELECT customer_id, instrument_code, units, average_cost, market_value, updated_at
		FROM holdings
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	return collectHoldings(rows)
}

// ReplaceForCustomer atomically replaces all of a customer's holdings with
// the given set (delete-then-insert in one transaction). Readers never
// observe a mixed old/new state. Passing an empty set deletes any stale
// rows, which is the correct outcome for an empty transaction history.
func (r *Repository) ReplaceForCustomer(customerID string, holdings []domain.Holding) error {
	now := time.Now().Unix()

	err := r.retry.TransactionWithRetry(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM holdings WHERE customer_id = ?`, customerID); err != nil {
			return fmt.Errorf("failed to delete holdings for %s: %w", customerID, err)
		}

		for _, h := range holdings {
			units, _ := h.Units.Float64()
			avgCost, _ := h.AverageCost.Float64()
			var marketValue interface{}
			if h.MarketValue != nil {
				marketValue = *h.MarketValue
			}

			if _, err := tx.Exec(`
				INSERT INTO holdings (customer_id, instrument_code, units, average_cost, market_value, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, customerID, h.InstrumentCode, units, avgCost, marketValue, now); err != nil {
				return fmt.Errorf("failed to insert holding %s: %w", h.InstrumentCode, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Debug().Str("customer_id", customerID).Int("count", len(holdings)).Msg("Holdings replaced")
	return nil
}

// UpsertOne writes a single holding, or deletes the row when units are not
// positive. Used by the incremental projection path.
func (r *Repository) UpsertOne(h domain.Holding) error {
	if h.Units.Sign() <= 0 {
		_, err := r.db.Exec(`DELETE FROM holdings WHERE customer_id = ? AND instrument_code = ?`,
			h.CustomerID, h.InstrumentCode)
		if err != nil {
			return fmt.Errorf("failed to delete holding %s/%s: %w", h.CustomerID, h.InstrumentCode, err)
		}
		return nil
	}

	units, _ := h.Units.Float64()
	avgCost, _ := h.AverageCost.Float64()
	var marketValue interface{}
	if h.MarketValue != nil {
		marketValue = *h.MarketValue
	}

	_, err := r.db.Exec(`
		INSERT INTO holdings (customer_id, instrument_code, units, average_cost, market_value, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(customer_id, instrument_code) DO UPDATE SET
			units = excluded.units,
			average_cost = excluded.average_cost,
			market_value = excluded.market_value,
			updated_at = excluded.updated_at
	`, h.CustomerID, h.InstrumentCode, units, avgCost, marketValue, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert holding %s/%s: %w", h.CustomerID, h.InstrumentCode, err)
	}

	return nil
}

// UpdateMarketValues batch-writes recomputed market values in one
// transaction, retried on transient lock conflicts. Keys are
// (customer_id, instrument_code) pairs. Returns the number of rows written.
func (r *Repository) UpdateMarketValues(values []MarketValueUpdate) (int, error) {
	if len(values) == 0 {
		return 0, nil
	}

	now := time.Now().Unix()
	count := 0

	err := r.retry.TransactionWithRetry(r.db, func(tx *sql.Tx) error {
		count = 0
		for _, v := range values {
			res, err := tx.Exec(`
				UPDATE holdings SET market_value = ?, updated_at = ?
				WHERE customer_id = ? AND instrument_code = ?
			`, v.MarketValue, now, v.CustomerID, v.InstrumentCode)
			if err != nil {
				return fmt.Errorf("failed to update market value %s/%s: %w", v.CustomerID, v.InstrumentCode, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				count += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}

// MarketValueUpdate is one holding's recomputed market value.
type MarketValueUpdate struct {
	CustomerID     string
	InstrumentCode string
	MarketValue    float64
}

func collectHoldings(rows *sql.Rows) ([]domain.Holding, error) {
	var result []domain.Holding
	for rows.Next() {
		var h domain.Holding
		var units, avgCost float64
		var marketValue sql.NullFloat64
		var updatedAt int64

		if err := rows.Scan(&h.CustomerID, &h.InstrumentCode, &units, &avgCost, &marketValue, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}

		h.Units = decimal.NewFromFloat(units)
		h.AverageCost = decimal.NewFromFloat(avgCost)
		if marketValue.Valid {
			mv := marketValue.Float64
			h.MarketValue = &mv
		}
		h.UpdatedAt = time.Unix(updatedAt, 0).UTC()

		result = append(result, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}

	return result, nil
}
