package profile

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fundlens/fundlens/internal/domain"
	"github.com/rs/zerolog"
)

// Repository handles profile database operations. One row per customer,
// upserted on every refresh; rows are stale until the next refresh.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new profile repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "profile").Logger(),
	}
}

// Upsert writes a customer's profile row.
func (r *Repository) Upsert(p domain.Profile) error {
	var avgAge interface{}
	if p.AvgHoldingAgeDays != nil {
		avgAge = *p.AvgHoldingAgeDays
	}
	var recency interface{}
	if p.RecencyDays != nil {
		recency = *p.RecencyDays
	}
	regular := 0
	if p.RegularInvestor {
		regular = 1
	}

	_, err := r.db.Exec(`
		INSERT INTO profiles (customer_id, total_market_value, avg_holding_age_days, recency_days, frequency_90d, regular_investor, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(customer_id) DO UPDATE SET
			total_market_value = excluded.total_market_value,
			avg_holding_age_days = excluded.avg_holding_age_days,
			recency_days = excluded.recency_days,
			frequency_90d = excluded.frequency_90d,
			regular_investor = excluded.regular_investor,
			updated_at = excluded.updated_at
	`, p.CustomerID, p.TotalMarketValue, avgAge, recency, p.Frequency90Days, regular, p.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert profile for %s: %w", p.CustomerID, err)
	}

	return nil
}

// GetByCustomer returns a customer's profile, or nil when none has been
// computed yet.
func (r *Repository) GetByCustomer(customerID string) (*domain.Profile, error) {
	row := r.db.QueryRow(`
		SELECT customer_id, total_market_value, avg_holding_age_days, recency_days, frequency_90d, regular_investor, updated_at
		FROM profiles WHERE customer_id = ?
	`, customerID)

	var p domain.Profile
	var avgAge sql.NullFloat64
	var recency sql.NullInt64
	var regular int
	var updatedAt int64

	err := row.Scan(&p.CustomerID, &p.TotalMarketValue, &avgAge, &recency, &p.Frequency90Days, &regular, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile for %s: %w", customerID, err)
	}

	if avgAge.Valid {
		v := avgAge.Float64
		p.AvgHoldingAgeDays = &v
	}
	if recency.Valid {
		v := int(recency.Int64)
		p.RecencyDays = &v
	}
	p.RegularInvestor = regular != 0
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &p, nil
}
