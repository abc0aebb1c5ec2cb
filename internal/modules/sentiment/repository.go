// Package sentiment persists news sentiment results. The table is
// append-only; re-analyzing the same articles is a no-op.
package sentiment

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insight/internal/domain"
)

// Repository stores news sentiment rows.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new sentiment repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "sentiment").Logger(),
	}
}

// Insert writes one sentiment record. Duplicates on
// (company_id, title, url) are silently ignored; the return value
// reports whether a row was actually written.
func (r *Repository) Insert(ctx context.Context, rec domain.SentimentRecord) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO news_sentiment
			(company_id, title, source, url, published_at, sentiment_score, sentiment_label, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CompanyID, rec.Title, rec.Source, rec.URL,
		rec.PublishedAt.UTC().Format(time.RFC3339), rec.Score, rec.Label, rec.Summary)
	if err != nil {
		return false, fmt.Errorf("failed to insert sentiment for %s: %w", rec.CompanyID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected == 1, nil
}

// RecentForCompany returns up to limit sentiment rows for a company,
// newest first.
func (r *Repository) RecentForCompany(ctx context.Context, companyID string, limit int) ([]domain.SentimentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT company_id, title, source, url, published_at, sentiment_score, sentiment_label, summary
		FROM news_sentiment
		WHERE company_id = ?
		ORDER BY published_at DESC
		LIMIT ?`, companyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sentiment for %s: %w", companyID, err)
	}
	defer rows.Close()

	var result []domain.SentimentRecord
	for rows.Next() {
		var rec domain.SentimentRecord
		var publishedAt sql.NullString
		if err := rows.Scan(&rec.CompanyID, &rec.Title, &rec.Source, &rec.URL,
			&publishedAt, &rec.Score, &rec.Label, &rec.Summary); err != nil {
			return nil, fmt.Errorf("failed to scan sentiment: %w", err)
		}
		if publishedAt.Valid {
			if t, err := time.Parse(time.RFC3339, publishedAt.String); err == nil {
				rec.PublishedAt = t
			}
		}
		result = append(result, rec)
	}

	return result, rows.Err()
}
