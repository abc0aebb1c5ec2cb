// Package work contains the background-job core: the job registry,
// the bounded worker pool, and the scheduler that feeds it.
package work

import (
	"context"
	"time"
)

// Job names. These are stable identifiers used for scheduling, manual
// triggers, and result logging.
const (
	JobCollectMarketData    = "collect_market_data"
	JobCheckAlerts          = "check_price_alerts"
	JobDispatchNotification = "send_alert_notification"
	JobAnalyzeSentiment     = "analyze_news_sentiment"
	JobCleanupCache         = "cleanup_expired_cache"
	JobDailyReport          = "generate_daily_report"
	JobBackup               = "database_backup"
)

// Payload carries optional job arguments, e.g. a single ticker for a
// targeted collection run or the notification body for the dispatcher.
type Payload map[string]any

// Ticker extracts the optional ticker argument.
func (p Payload) Ticker() string {
	if p == nil {
		return ""
	}
	if t, ok := p["ticker"].(string); ok {
		return t
	}
	return ""
}

// Counts tallies per-entity outcomes of one run. Partial failures are
// recorded here rather than raised as errors.
type Counts map[string]int

// JobType defines an executable job. Execute receives a context whose
// deadline is the job's wall-clock budget; implementations must honor
// it at I/O boundaries.
type JobType struct {
	Name string

	// NonReentrant jobs never run two instances concurrently. A due
	// run that finds an instance in flight is deferred, not dropped.
	NonReentrant bool

	// Timeout overrides the pool default when positive.
	Timeout time.Duration

	Execute func(ctx context.Context, payload Payload) (Counts, error)
}

// Item is one queued job execution.
type Item struct {
	ID         string
	Type       string
	Payload    Payload
	Attempts   int
	EnqueuedAt time.Time
}

// Result is the structured outcome of one run attempt.
type Result struct {
	Job      string        `json:"job"`
	ItemID   string        `json:"item_id"`
	Counts   Counts        `json:"counts"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Attempt  int           `json:"attempt"`
	Duration time.Duration `json:"duration"`
	EndedAt  time.Time     `json:"ended_at"`
}
