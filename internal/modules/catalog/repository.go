// Package catalog provides access to the instrument catalog: shared,
// read-mostly reference data keyed by instrument code. The only writer in
// the engine is the valuation updater, which refreshes latest prices.
package catalog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fundlens/fundlens/internal/database"
	"github.com/fundlens/fundlens/internal/domain"
	"github.com/rs/zerolog"
)

// Repository handles instrument database operations.
type Repository struct {
	db    *sql.DB
	retry database.RetryPolicy
	log   zerolog.Logger
}

// NewRepository creates a new instrument repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:    db,
		retry: database.DefaultRetryPolicy(),
		log:   log.With().Str("repo", "catalog").Logger(),
	}
}

// GetAll returns all instruments.
func (r *Repository) GetAll() ([]domain.Instrument, error) {
	rows, err := r.db.Query(`SELECT code, name, category, risk_score, latest_price, updated_at
		FROM instruments`)
	if err != nil {
		return nil, fmt.Errorf("failed to query instruments: %w", err)
	}
	defer rows.Close()

	var result []domain.Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		result = append(result, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instruments: %w", err)
	}

	return result, nil
}

// GetAllAsMap returns the full catalog keyed by instrument code. The map is
// loaded once per sweep and shared read-only across worker units.
func (r *Repository) GetAllAsMap() (map[string]domain.Instrument, error) {
	instruments, err := r.GetAll()
	if err != nil {
		return nil, err
	}

	m := make(map[string]domain.Instrument, len(instruments))
	for _, inst := range instruments {
		m[inst.Code] = inst
	}

	return m, nil
}

// GetByCode returns one instrument, or nil when the code is unknown.
func (r *Repository) GetByCode(code string) (*domain.Instrument, error) {
	row := r.db.QueryRow(`SELECT code, name, category, risk_score, latest_price, updated_at
		FROM instruments WHERE code = ?`, code)

	inst, err := scanInstrument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument %s: %w", code, err)
	}

	return &inst, nil
}

// Upsert inserts or replaces an instrument row.
func (r *Repository) Upsert(inst domain.Instrument) error {
	var price interface{}
	if inst.LatestPrice != nil {
		price = *inst.LatestPrice
	}

	_, err := r.db.Exec(`
		INSERT INTO instruments (code, name, category, risk_score, latest_price, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			risk_score = excluded.risk_score,
			latest_price = excluded.latest_price,
			updated_at = excluded.updated_at
	`, inst.Code, inst.Name, inst.Category, inst.RiskScore, price, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert instrument %s: %w", inst.Code, err)
	}

	return nil
}

// UpdatePrices batch-writes new latest prices in one transaction, retried
// on transient lock conflicts. Returns the number of rows written.
func (r *Repository) UpdatePrices(prices map[string]float64) (int, error) {
	if len(prices) == 0 {
		return 0, nil
	}

	now := time.Now().Unix()
	count := 0

	err := r.retry.TransactionWithRetry(r.db, func(tx *sql.Tx) error {
		count = 0
		for code, price := range prices {
			res, err := tx.Exec(`UPDATE instruments SET latest_price = ?, updated_at = ? WHERE code = ?`,
				price, now, code)
			if err != nil {
				return fmt.Errorf("failed to update price for %s: %w", code, err)
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

	r.log.Debug().Int("count", count).Msg("Instrument prices updated")
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstrument(row rowScanner) (domain.Instrument, error) {
	var inst domain.Instrument
	var price sql.NullFloat64
	var updatedAt int64

	if err := row.Scan(&inst.Code, &inst.Name, &inst.Category, &inst.RiskScore, &price, &updatedAt); err != nil {
		return domain.Instrument{}, err
	}

	if price.Valid {
		p := price.Float64
		inst.LatestPrice = &p
	}
	inst.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return inst, nil
}
