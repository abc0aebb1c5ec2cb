package work

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/insight/internal/domain"
)

const (
	// reportCacheTTL keeps each daily report readable for a day.
	reportCacheTTL = 24 * time.Hour

	// smaWindow is the short-window moving average shown per mover.
	smaWindow = 3
)

// MoverSource provides the movers and their recent closes.
type MoverSource interface {
	TopMovers(ctx context.Context, n int) ([]domain.Mover, error)
	RecentCloses(ctx context.Context, companyID string, limit int) ([]float64, error)
}

// Summarizer produces a free-text narrative from a prompt pair.
type Summarizer interface {
	Summarize(ctx context.Context, system, user string) (string, error)
}

// ReportCache stores the generated report under its date key.
type ReportCache interface {
	Store(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// ReportDeps wires the daily report job.
type ReportDeps struct {
	Market MoverSource
	AI     Summarizer
	Cache  ReportCache
	TopN   int
	Log    zerolog.Logger
}

// DailyReport is the cached report payload.
type DailyReport struct {
	Date        string        `json:"date"`
	Narrative   string        `json:"narrative"`
	TopMovers   []ReportMover `json:"top_movers"`
	MeanChange  float64       `json:"mean_change_pct"`
	StdDev      float64       `json:"stddev_change_pct"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// ReportMover is one digest line of the report.
type ReportMover struct {
	Ticker    string   `json:"ticker"`
	Name      string   `json:"name"`
	Price     float64  `json:"price"`
	ChangePct float64  `json:"change_pct"`
	SMA       *float64 `json:"sma,omitempty"`
}

// ReportCacheKey returns the cache key for a given day.
func ReportCacheKey(day time.Time) string {
	return "daily_report:" + day.UTC().Format("2006-01-02")
}

// RegisterReportJob registers the daily report job.
//
// Regenerating the report for the same date overwrites the cached
// entry; companies without two closes carry no change and are left
// out of the digest.
func RegisterReportJob(registry *Registry, deps ReportDeps) {
	log := deps.Log.With().Str("job", JobDailyReport).Logger()

	registry.Register(&JobType{
		Name: JobDailyReport,
		Execute: func(ctx context.Context, payload Payload) (Counts, error) {
			movers, err := deps.Market.TopMovers(ctx, deps.TopN)
			if err != nil {
				return nil, Retryable(fmt.Errorf("failed to load top movers: %w", err))
			}

			digest := make([]ReportMover, 0, len(movers))
			changes := make([]float64, 0, len(movers))
			for _, m := range movers {
				if m.ChangePct == nil {
					continue
				}
				line := ReportMover{
					Ticker:    m.Ticker,
					Name:      m.Name,
					Price:     m.Price,
					ChangePct: *m.ChangePct,
				}
				if sma := shortSMA(ctx, deps.Market, m.CompanyID); sma != nil {
					line.SMA = sma
				}
				digest = append(digest, line)
				changes = append(changes, *m.ChangePct)
			}

			if len(digest) == 0 {
				log.Warn().Msg("No movers with data, skipping report")
				return Counts{"movers": 0}, nil
			}

			mean := stat.Mean(changes, nil)
			stddev := 0.0
			if len(changes) > 1 {
				stddev = stat.StdDev(changes, nil)
			}

			narrative, err := deps.AI.Summarize(ctx,
				"You are a market analyst writing a short daily digest for retail investors. Be factual and concise.",
				buildReportPrompt(digest, mean, stddev))
			if err != nil {
				return nil, Retryable(fmt.Errorf("failed to generate narrative: %w", err))
			}

			now := time.Now().UTC()
			report := DailyReport{
				Date:        now.Format("2006-01-02"),
				Narrative:   narrative,
				TopMovers:   digest,
				MeanChange:  mean,
				StdDev:      stddev,
				GeneratedAt: now,
			}

			if err := deps.Cache.Store(ctx, ReportCacheKey(now), report, reportCacheTTL); err != nil {
				return nil, fmt.Errorf("failed to cache report: %w", err)
			}

			log.Info().
				Str("date", report.Date).
				Int("movers", len(digest)).
				Msg("Generated daily report")

			return Counts{"movers": len(digest)}, nil
		},
	})
}

// shortSMA computes the short-window SMA of a company's recent closes,
// or nil when not enough data exists.
func shortSMA(ctx context.Context, market MoverSource, companyID string) *float64 {
	closes, err := market.RecentCloses(ctx, companyID, smaWindow)
	if err != nil || len(closes) < smaWindow {
		return nil
	}

	sma := talib.Sma(closes, smaWindow)
	if len(sma) == 0 {
		return nil
	}
	v := sma[len(sma)-1]
	return &v
}

// buildReportPrompt renders the digest for the summarization call.
func buildReportPrompt(digest []ReportMover, mean, stddev float64) string {
	var sb strings.Builder
	sb.WriteString("Write a short narrative summary of today's market movers.\n\nTop movers:\n")
	for _, m := range digest {
		sb.WriteString(fmt.Sprintf("- %s (%s): %.2f, change %.2f%%", m.Name, m.Ticker, m.Price, m.ChangePct))
		if m.SMA != nil {
			sb.WriteString(fmt.Sprintf(", %d-day SMA %.2f", smaWindow, *m.SMA))
		}
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("\nMean change: %.2f%%, standard deviation: %.2f%%\n", mean, stddev))
	return sb.String()
}
