// Package universe provides read access to the tracked companies.
// The universe itself is managed by the upstream product; this service
// never writes to it.
package universe

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/insight/internal/domain"
)

// Repository reads companies from the shared database.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new universe repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "universe").Logger(),
	}
}

// ListActive returns all companies with is_active = 1, ordered by ticker.
func (r *Repository) ListActive(ctx context.Context) ([]domain.Company, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ticker, name, is_active
		FROM companies
		WHERE is_active = 1
		ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active companies: %w", err)
	}
	defer rows.Close()

	var companies []domain.Company
	for rows.Next() {
		var c domain.Company
		if err := rows.Scan(&c.ID, &c.Ticker, &c.Name, &c.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, c)
	}

	return companies, rows.Err()
}

// GetByTicker returns the company with the given ticker, or nil when
// it is not tracked.
func (r *Repository) GetByTicker(ctx context.Context, ticker string) (*domain.Company, error) {
	var c domain.Company
	err := r.db.QueryRowContext(ctx, `
		SELECT id, ticker, name, is_active
		FROM companies
		WHERE ticker = ?`, ticker).Scan(&c.ID, &c.Ticker, &c.Name, &c.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company %s: %w", ticker, err)
	}

	return &c, nil
}
