package work

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/insight/internal/domain"
)

// Notifier delivers one notification to the external sink.
type Notifier interface {
	Deliver(ctx context.Context, job domain.NotificationJob) error
}

// DispatcherDeps wires the notification dispatch job.
type DispatcherDeps struct {
	Notifier Notifier
	Log      zerolog.Logger
}

// RegisterDispatcherJob registers the notification delivery job.
//
// Delivery is at-most-once: a failed delivery is a permanent failure,
// logged with the alert id; the alert stays triggered and the
// notification is not re-queued.
func RegisterDispatcherJob(registry *Registry, deps DispatcherDeps) {
	log := deps.Log.With().Str("job", JobDispatchNotification).Logger()

	registry.Register(&JobType{
		Name:         JobDispatchNotification,
		NonReentrant: true,
		Execute: func(ctx context.Context, payload Payload) (Counts, error) {
			job, ok := payload["notification"].(domain.NotificationJob)
			if !ok {
				return nil, Permanent(fmt.Errorf("missing notification payload"))
			}

			if err := deps.Notifier.Deliver(ctx, job); err != nil {
				log.Error().
					Err(err).
					Str("alert_id", job.AlertID).
					Str("ticker", job.Ticker).
					Msg("Notification delivery failed")
				return Counts{"delivered": 0}, Permanent(fmt.Errorf("delivery failed for alert %s: %w", job.AlertID, err))
			}

			return Counts{"delivered": 1}, nil
		},
	})
}
