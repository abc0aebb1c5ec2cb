package notify

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/insight/internal/domain"
)

func testJob(alertType domain.AlertType) domain.NotificationJob {
	return domain.NotificationJob{
		ID:             "n1",
		AlertID:        "a1",
		ChatID:         42,
		Ticker:         "AAPL",
		CompanyName:    "Apple Inc.",
		Type:           alertType,
		ConditionValue: 150,
		CurrentPrice:   155.25,
		TriggeredAt:    time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC),
	}
}

func TestFormatAlertMessageAbove(t *testing.T) {
	msg := formatAlertMessage(testJob(domain.AlertPriceAbove))

	assert.Contains(t, msg, "Apple Inc. (AAPL)")
	assert.Contains(t, msg, "rose above")
	assert.Contains(t, msg, "Threshold: 150.00")
	assert.Contains(t, msg, "Current price: 155.25")
	assert.Contains(t, msg, "2026-03-02 15:30 UTC")
}

func TestFormatAlertMessageBelow(t *testing.T) {
	msg := formatAlertMessage(testJob(domain.AlertPriceBelow))
	assert.Contains(t, msg, "fell below")
	assert.NotContains(t, msg, "rose above")
}

func TestLogNotifierAlwaysSucceeds(t *testing.T) {
	n := NewLogNotifier(zerolog.Nop())
	require.NoError(t, n.Deliver(context.Background(), testJob(domain.AlertPriceAbove)))
}
