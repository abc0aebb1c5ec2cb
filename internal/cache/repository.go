// Package cache provides a generic persistent TTL cache. Values are
// stored as JSON blobs with an expiration timestamp; expired rows are
// swept by the reaper job.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Repository provides cache operations over the cache table.
type Repository struct {
	db *sql.DB

	// now is swappable so expiry boundaries can be pinned in tests.
	now func() time.Time
}

// NewRepository creates a new cache repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Store saves a value with expiration = now + ttl.
// Uses INSERT OR REPLACE, so re-storing a key overwrites both the
// value and its expiry.
func (r *Repository) Store(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	expiresAt := r.now().Add(ttl).Unix()

	_, err = r.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO cache (key, value, expires_at) VALUES (?, ?, ?)",
		key, string(jsonData), expiresAt)
	if err != nil {
		return fmt.Errorf("failed to store cache key %s: %w", key, err)
	}

	return nil
}

// GetIfFresh returns the value only if expires_at > now.
// Returns nil, nil when the key doesn't exist or has expired.
func (r *Repository) GetIfFresh(ctx context.Context, key string) (json.RawMessage, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		"SELECT value FROM cache WHERE key = ? AND expires_at > ?",
		key, r.now().Unix()).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache key %s: %w", key, err)
	}

	return json.RawMessage(value), nil
}

// Delete removes a specific entry.
func (r *Repository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM cache WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete cache key %s: %w", key, err)
	}
	return nil
}

// DeleteExpired removes all rows where expires_at < now and returns
// the number of rows deleted. Rows expiring exactly at now survive
// until the next sweep.
func (r *Repository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM cache WHERE expires_at < ?", r.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}
