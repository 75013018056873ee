package profile

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fundlens/fundlens/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RiskRepository handles risk assessment rows. Assessments are append-only
// questionnaire outcomes; the tagging engine only consumes the most recent
// one per customer.
type RiskRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRiskRepository creates a new risk assessment repository.
func NewRiskRepository(db *sql.DB, log zerolog.Logger) *RiskRepository {
	return &RiskRepository{
		db:  db,
		log: log.With().Str("repo", "risk_assessments").Logger(),
	}
}

// Append records a new assessment. The id is generated when empty.
func (r *RiskRepository) Append(a domain.RiskAssessment) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	_, err := r.db.Exec(`
		INSERT INTO risk_assessments (id, customer_id, score, level, assessed_at)
		VALUES (?, ?, ?, ?, ?)
	`, a.ID, a.CustomerID, a.Score, a.Level, a.AssessedAt.Unix())
	if err != nil {
		return "", fmt.Errorf("failed to append risk assessment: %w", err)
	}

	return a.ID, nil
}

// GetLatest returns the most recent assessment by assessment date, or nil
// when the customer has never been assessed.
func (r *RiskRepository) GetLatest(customerID string) (*domain.RiskAssessment, error) {
	row := r.db.QueryRow(`
		SELECT id, customer_id, score, level, assessed_at
		FROM risk_assessments
		WHERE customer_id = ?
		ORDER BY assessed_at DESC
		LIMIT 1
	`, customerID)

	var a domain.RiskAssessment
	var assessedAt int64

	err := row.Scan(&a.ID, &a.CustomerID, &a.Score, &a.Level, &assessedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest risk assessment for %s: %w", customerID, err)
	}

	a.AssessedAt = time.Unix(assessedAt, 0).UTC()
	return &a, nil
}
