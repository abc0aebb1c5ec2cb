// Package domain holds the core data types shared across modules.
// It has no dependencies on infrastructure packages.
package domain

import "time"

// Company is a tracked entity. The universe is managed elsewhere; this
// service only reads it.
type Company struct {
	ID       string `json:"id"`
	Ticker   string `json:"ticker"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// PricePoint is one daily OHLCV observation.
type PricePoint struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// AlertType determines the trigger direction of a price alert.
type AlertType string

const (
	AlertPriceAbove AlertType = "price_above"
	AlertPriceBelow AlertType = "price_below"
)

// AlertStatus is the lifecycle state of an alert. Alerts move from
// active to triggered exactly once and never back.
type AlertStatus string

const (
	AlertActive    AlertStatus = "active"
	AlertTriggered AlertStatus = "triggered"
)

// Alert is a user-defined price threshold.
type Alert struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	ChatID         int64       `json:"chat_id"`
	CompanyID      string      `json:"company_id"`
	Type           AlertType   `json:"alert_type"`
	ConditionValue float64     `json:"condition_value"`
	Status         AlertStatus `json:"status"`
	TriggeredAt    *time.Time  `json:"triggered_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ConditionMet reports whether the given price satisfies the alert
// condition. Both directions are inclusive at the threshold.
func (a *Alert) ConditionMet(price float64) bool {
	switch a.Type {
	case AlertPriceAbove:
		return price >= a.ConditionValue
	case AlertPriceBelow:
		return price <= a.ConditionValue
	default:
		return false
	}
}

// NotificationJob carries everything the delivery sink needs for one
// triggered alert. It is produced only by the run that won the trigger.
type NotificationJob struct {
	ID             string    `json:"id"`
	AlertID        string    `json:"alert_id"`
	ChatID         int64     `json:"chat_id"`
	Ticker         string    `json:"ticker"`
	CompanyName    string    `json:"company_name"`
	Type           AlertType `json:"alert_type"`
	ConditionValue float64   `json:"condition_value"`
	CurrentPrice   float64   `json:"current_price"`
	TriggeredAt    time.Time `json:"triggered_at"`
}

// NewsItem is a raw news item handed to the sentiment analyzer.
type NewsItem struct {
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

// SentimentAnalysis is the parsed result of one batch AI call.
type SentimentAnalysis struct {
	Score     float64  `json:"sentiment_score"`
	Label     string   `json:"sentiment_label"`
	KeyThemes []string `json:"key_themes"`
}

// SentimentRecord is one persisted news sentiment row.
type SentimentRecord struct {
	CompanyID   string    `json:"company_id"`
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	Score       float64   `json:"sentiment_score"`
	Label       string    `json:"sentiment_label"`
	Summary     string    `json:"summary"`
}

// Mover is one company's latest day-over-day move, used by the daily
// report. ChangePct is nil when fewer than two closes exist.
type Mover struct {
	CompanyID string   `json:"company_id"`
	Ticker    string   `json:"ticker"`
	Name      string   `json:"name"`
	Price     float64  `json:"price"`
	ChangePct *float64 `json:"change_pct"`
}
