// Package alerts persists user price alerts and owns the single-shot
// trigger transition.
package alerts

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insight/internal/domain"
)

// ActiveAlert is an alert joined with its company, as the evaluator
// consumes it.
type ActiveAlert struct {
	domain.Alert
	Ticker      string
	CompanyName string
}

// Repository stores and reads alerts.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new alerts repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "alerts").Logger(),
	}
}

// Create inserts a new alert in active status.
func (r *Repository) Create(ctx context.Context, a domain.Alert) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alerts (id, user_id, chat_id, company_id, alert_type, condition_value, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 'active', ?)`,
		a.ID, a.UserID, a.ChatID, a.CompanyID, string(a.Type), a.ConditionValue,
		a.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to create alert %s: %w", a.ID, err)
	}

	return nil
}

// ListActive returns all active alerts joined with their company.
func (r *Repository) ListActive(ctx context.Context) ([]ActiveAlert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.user_id, a.chat_id, a.company_id, a.alert_type, a.condition_value, c.ticker, c.name
		FROM alerts a
		JOIN companies c ON c.id = a.company_id
		WHERE a.status = 'active'`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active alerts: %w", err)
	}
	defer rows.Close()

	var result []ActiveAlert
	for rows.Next() {
		var a ActiveAlert
		var alertType string
		if err := rows.Scan(&a.ID, &a.UserID, &a.ChatID, &a.CompanyID, &alertType,
			&a.ConditionValue, &a.Ticker, &a.CompanyName); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Type = domain.AlertType(alertType)
		a.Status = domain.AlertActive
		result = append(result, a)
	}

	return result, rows.Err()
}

// List returns all alerts, newest first. Used by the read API.
func (r *Repository) List(ctx context.Context) ([]domain.Alert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, chat_id, company_id, alert_type, condition_value, status, triggered_at
		FROM alerts
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var result []domain.Alert
	for rows.Next() {
		var a domain.Alert
		var alertType, status string
		var triggeredAt sql.NullString
		if err := rows.Scan(&a.ID, &a.UserID, &a.ChatID, &a.CompanyID, &alertType,
			&a.ConditionValue, &status, &triggeredAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Type = domain.AlertType(alertType)
		a.Status = domain.AlertStatus(status)
		if triggeredAt.Valid {
			if t, err := time.Parse(time.RFC3339, triggeredAt.String); err == nil {
				a.TriggeredAt = &t
			}
		}
		result = append(result, a)
	}

	return result, rows.Err()
}

// TriggerIfActive transitions an alert from active to triggered and
// stamps triggered_at in the same statement. It returns true only when
// this call performed the transition; a second caller racing on the
// same alert observes zero affected rows and must not notify.
func (r *Repository) TriggerIfActive(ctx context.Context, alertID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE alerts
		SET status = 'triggered', triggered_at = ?
		WHERE id = ? AND status = 'active'`,
		at.UTC().Format(time.RFC3339), alertID)
	if err != nil {
		return false, fmt.Errorf("failed to trigger alert %s: %w", alertID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows for alert %s: %w", alertID, err)
	}

	return affected == 1, nil
}
