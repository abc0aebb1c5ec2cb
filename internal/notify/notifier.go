// Package notify delivers triggered-alert notifications.
package notify

import (
	"context"

	"github.com/aristath/insight/internal/domain"
)

// Notifier is the delivery sink for triggered alerts. Delivery is
// at-most-once: a failed delivery is reported, never re-queued.
type Notifier interface {
	Deliver(ctx context.Context, job domain.NotificationJob) error
}
