package work

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/insight/internal/domain"
)

// CompanySource lists the entities to collect for.
type CompanySource interface {
	ListActive(ctx context.Context) ([]domain.Company, error)
	GetByTicker(ctx context.Context, ticker string) (*domain.Company, error)
}

// SeriesFetcher fetches a daily OHLCV series. An empty slice with a
// nil error means the feed has no data for the ticker.
type SeriesFetcher interface {
	FetchDaily(ctx context.Context, ticker string, days int) ([]domain.PricePoint, error)
}

// SeriesStore persists price points. Each write is independently
// committed so a timed-out run leaves safe partial data.
type SeriesStore interface {
	Upsert(ctx context.Context, companyID string, p domain.PricePoint) error
}

// CollectorDeps wires the market data collector job.
type CollectorDeps struct {
	Companies    CompanySource
	Feed         SeriesFetcher
	Store        SeriesStore
	LookbackDays int
	Log          zerolog.Logger
}

// RegisterCollectorJob registers the market data collection job.
//
// The run is retried as a whole only when the feed is unreachable for
// every entity; per-entity failures are tallied and never abort the
// loop. An entity with an empty series is a soft skip: logged, no
// store mutation.
func RegisterCollectorJob(registry *Registry, deps CollectorDeps) {
	log := deps.Log.With().Str("job", JobCollectMarketData).Logger()

	registry.Register(&JobType{
		Name: JobCollectMarketData,
		Execute: func(ctx context.Context, payload Payload) (Counts, error) {
			companies, err := resolveCompanies(ctx, deps.Companies, payload)
			if err != nil {
				return nil, err
			}

			counts := Counts{"success": 0, "failed": 0, "skipped": 0}
			transportFailures := 0

			for _, c := range companies {
				if ctx.Err() != nil {
					return counts, fmt.Errorf("collection interrupted: %w", ctx.Err())
				}

				points, err := deps.Feed.FetchDaily(ctx, c.Ticker, deps.LookbackDays)
				if err != nil {
					transportFailures++
					counts["failed"]++
					log.Warn().Err(err).Str("ticker", c.Ticker).Msg("Failed to fetch series")
					continue
				}

				if len(points) == 0 {
					counts["skipped"]++
					log.Warn().Str("ticker", c.Ticker).Msg("No data returned, skipping")
					continue
				}

				if err := storeSeries(ctx, deps.Store, c.ID, points); err != nil {
					counts["failed"]++
					log.Error().Err(err).Str("ticker", c.Ticker).Msg("Failed to store series")
					continue
				}

				counts["success"]++
				log.Debug().Str("ticker", c.Ticker).Int("points", len(points)).Msg("Stored series")
			}

			if len(companies) > 0 && transportFailures == len(companies) {
				return counts, Retryable(fmt.Errorf("market feed unreachable: all %d fetches failed", len(companies)))
			}

			return counts, nil
		},
	})
}

// resolveCompanies narrows the run to one ticker when the payload
// names one, otherwise all active companies.
func resolveCompanies(ctx context.Context, source CompanySource, payload Payload) ([]domain.Company, error) {
	if ticker := payload.Ticker(); ticker != "" {
		c, err := source.GetByTicker(ctx, ticker)
		if err != nil {
			return nil, Retryable(fmt.Errorf("failed to look up ticker %s: %w", ticker, err))
		}
		if c == nil {
			return nil, Permanent(fmt.Errorf("unknown ticker %s", ticker))
		}
		return []domain.Company{*c}, nil
	}

	companies, err := source.ListActive(ctx)
	if err != nil {
		return nil, Retryable(fmt.Errorf("failed to list active companies: %w", err))
	}
	return companies, nil
}

func storeSeries(ctx context.Context, store SeriesStore, companyID string, points []domain.PricePoint) error {
	for _, p := range points {
		if err := store.Upsert(ctx, companyID, p); err != nil {
			return err
		}
	}
	return nil
}
