package tags

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fundlens/fundlens/internal/database"
	"github.com/fundlens/fundlens/internal/domain"
	"github.com/rs/zerolog"
)

// Repository handles customer tag rows. The narrow (customer, category,
// tag) relation acts as a dynamic schema; the full set for a customer is
// replaced inside one transaction so readers never observe a partial
// update.
type Repository struct {
	db    *sql.DB
	retry database.RetryPolicy
	log   zerolog.Logger
}

// NewRepository creates a new tag repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:    db,
		retry: database.DefaultRetryPolicy(),
		log:   log.With().Str("repo", "tags").Logger(),
	}
}

// ReplaceForCustomer atomically replaces a customer's full tag set
// (delete-then-insert in one transaction), retried on transient lock
// conflicts. The transaction boundary is the invariant: either the old set
// or the complete new set is visible, never a mix.
func (r *Repository) ReplaceForCustomer(customerID string, tags []domain.TagRelation) error {
	now := time.Now().Unix()

	err := r.retry.TransactionWithRetry(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM customer_tags WHERE customer_id = ?`, customerID); err != nil {
			return fmt.Errorf("failed to delete existing tags: %w", err)
		}

		for _, t := range tags {
			if t.Tag == "" {
				continue
			}
			if _, err := tx.Exec(`
				INSERT INTO customer_tags (customer_id, tag, category, created_at)
				VALUES (?, ?, ?, ?)
			`, customerID, t.Tag, t.Category, now); err != nil {
				return fmt.Errorf("failed to insert tag %s/%s: %w", t.Category, t.Tag, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Debug().Str("customer_id", customerID).Int("tag_count", len(tags)).Msg("Tags replaced for customer")
	return nil
}

// GetByCustomer returns a customer's current tag set.
func (r *Repository) GetByCustomer(customerID string) ([]domain.TagRelation, error) {
	rows, err := r.db.Query(`
		SELECT customer_id, tag, category FROM customer_tags WHERE customer_id = ?
		ORDER BY category, tag
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags for %s: %w", customerID, err)
	}
	defer rows.Close()

	var result []domain.TagRelation
	for rows.Next() {
		var t domain.TagRelation
		if err := rows.Scan(&t.CustomerID, &t.Tag, &t.Category); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tags: %w", err)
	}

	return result, nil
}

// GetCustomersByTag returns customer ids carrying the given tag.
func (r *Repository) GetCustomersByTag(tag string) ([]string, error) {
	rows, err := r.db.Query(`SELECT customer_id FROM customer_tags WHERE tag = ?`, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers for tag %s: %w", tag, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan customer id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating customer ids: %w", err)
	}

	return ids, nil
}
