// Package customers provides read access to customer reference data.
// Customers are owned by the administrative layer; the engine only reads.
package customers

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fundlens/fundlens/internal/domain"
	"github.com/rs/zerolog"
)

// Repository handles customer database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new customer repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "customers").Logger(),
	}
}

// GetAll returns all customers.
func (r *Repository) GetAll() ([]domain.Customer, error) {
	rows, err := r.db.Query(`SELECT id, name, gender, occupation, birth_date, created_at, updated_at
		FROM customers`)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	var result []domain.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating customers: %w", err)
	}

	return result, nil
}

// GetByID returns one customer, or nil when the id is unknown.
func (r *Repository) GetByID(id string) (*domain.Customer, error) {
	row := r.db.QueryRow(`SELECT id, name, gender, occupation, birth_date, created_at, updated_at
		FROM customers WHERE id = ?`, id)

	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer %s: %w", id, err)
	}

	return &c, nil
}

// Upsert inserts or replaces a customer row. Used by fixtures and the
// administrative import path.
func (r *Repository) Upsert(c domain.Customer) error {
	var birthDate interface{}
	if c.BirthDate != nil {
		birthDate = c.BirthDate.Format("2006-01-02")
	}

	now := time.Now().Unix()
	_, err := r.db.Exec(`
		INSERT INTO customers (id, name, gender, occupation, birth_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			gender = excluded.gender,
			occupation = excluded.occupation,
			birth_date = excluded.birth_date,
			updated_at = excluded.updated_at
	`, c.ID, c.Name, nullableString(c.Gender), nullableString(c.Occupation), birthDate, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert customer %s: %w", c.ID, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCustomer(row rowScanner) (domain.Customer, error) {
	var c domain.Customer
	var gender, occupation, birthDate sql.NullString
	var createdAt, updatedAt int64

	if err := row.Scan(&c.ID, &c.Name, &gender, &occupation, &birthDate, &createdAt, &updatedAt); err != nil {
		return domain.Customer{}, err
	}

	c.Gender = gender.String
	c.Occupation = occupation.String
	if birthDate.Valid && birthDate.String != "" {
		if t, err := time.Parse("2006-01-02", birthDate.String); err == nil {
			c.BirthDate = &t
		}
	}
	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	c.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return c, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
