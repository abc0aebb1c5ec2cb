package work

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/insight/internal/domain"
	"github.com/aristath/insight/internal/modules/alerts"
)

// AlertSource provides the active alerts and the atomic trigger
// transition.
type AlertSource interface {
	ListActive(ctx context.Context) ([]alerts.ActiveAlert, error)
	TriggerIfActive(ctx context.Context, alertID string, at time.Time) (bool, error)
}

// PriceSource reads the latest known close for a company.
type PriceSource interface {
	LatestClose(ctx context.Context, companyID string) (float64, bool, error)
}

// EvaluatorDeps wires the alert evaluation job.
type EvaluatorDeps struct {
	Alerts AlertSource
	Prices PriceSource
	Pool   Enqueuer
	Log    zerolog.Logger
}

// RegisterEvaluatorJob registers the alert evaluation job.
//
// The trigger transition is a conditional update on status; only the
// run that flips the row enqueues the notification, so concurrent or
// repeated passes cannot double-notify. Alerts whose company has no
// market data yet are skipped silently.
func RegisterEvaluatorJob(registry *Registry, deps EvaluatorDeps) {
	log := deps.Log.With().Str("job", JobCheckAlerts).Logger()

	registry.Register(&JobType{
		Name:         JobCheckAlerts,
		NonReentrant: true,
		Execute: func(ctx context.Context, payload Payload) (Counts, error) {
			active, err := deps.Alerts.ListActive(ctx)
			if err != nil {
				return nil, Retryable(fmt.Errorf("failed to list active alerts: %w", err))
			}

			counts := Counts{"checked": 0, "triggered": 0}

			for i := range active {
				a := &active[i]
				counts["checked"]++

				price, ok, err := deps.Prices.LatestClose(ctx, a.CompanyID)
				if err != nil {
					log.Warn().Err(err).Str("alert_id", a.ID).Msg("Failed to read latest close")
					continue
				}
				if !ok {
					// No market data yet for this company.
					continue
				}

				if !a.ConditionMet(price) {
					continue
				}

				now := time.Now().UTC()
				won, err := deps.Alerts.TriggerIfActive(ctx, a.ID, now)
				if err != nil {
					log.Error().Err(err).Str("alert_id", a.ID).Msg("Failed to trigger alert")
					continue
				}
				if !won {
					// Another run got there first; it owns the notification.
					continue
				}

				counts["triggered"]++
				log.Info().
					Str("alert_id", a.ID).
					Str("ticker", a.Ticker).
					Str("alert_type", string(a.Type)).
					Float64("threshold", a.ConditionValue).
					Float64("price", price).
					Msg("Alert triggered")

				job := domain.NotificationJob{
					ID:             uuid.NewString(),
					AlertID:        a.ID,
					ChatID:         a.ChatID,
					Ticker:         a.Ticker,
					CompanyName:    a.CompanyName,
					Type:           a.Type,
					ConditionValue: a.ConditionValue,
					CurrentPrice:   price,
					TriggeredAt:    now,
				}
				if !deps.Pool.Enqueue(JobDispatchNotification, Payload{"notification": job}) {
					log.Error().Str("alert_id", a.ID).Msg("Failed to enqueue notification")
				}
			}

			return counts, nil
		},
	})
}
