package work

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	openaiclient "github.com/aristath/insight/internal/clients/openai"
	"github.com/aristath/insight/internal/domain"
)

// SentimentAnalyzer runs one batch sentiment call over news items.
type SentimentAnalyzer interface {
	AnalyzeSentiment(ctx context.Context, ticker string, items []domain.NewsItem) (*domain.SentimentAnalysis, error)
}

// SentimentStore persists sentiment rows. Insert reports whether a
// row was written; duplicates are silently ignored.
type SentimentStore interface {
	Insert(ctx context.Context, rec domain.SentimentRecord) (bool, error)
}

// AnalyzerDeps wires the batch sentiment analysis job.
type AnalyzerDeps struct {
	Companies CompanySource
	AI        SentimentAnalyzer
	Store     SentimentStore
	BatchSize int
	Log       zerolog.Logger
}

// RegisterAnalyzerJob registers the news sentiment job.
//
// The batch is all-or-nothing: one AI call covers up to BatchSize of
// the most recent items, and a response that fails strict parsing
// persists zero rows. On success every input item gets one row
// carrying the batch-level score and label, including items beyond the
// AI batch cap.
func RegisterAnalyzerJob(registry *Registry, deps AnalyzerDeps) {
	log := deps.Log.With().Str("job", JobAnalyzeSentiment).Logger()

	registry.Register(&JobType{
		Name: JobAnalyzeSentiment,
		Execute: func(ctx context.Context, payload Payload) (Counts, error) {
			ticker := payload.Ticker()
			if ticker == "" {
				return nil, Permanent(fmt.Errorf("missing ticker in payload"))
			}

			items, ok := newsItemsFromPayload(payload["items"])
			if !ok {
				return nil, Permanent(fmt.Errorf("missing news items in payload"))
			}
			if len(items) == 0 {
				return Counts{"analyzed": 0, "inserted": 0}, nil
			}

			company, err := deps.Companies.GetByTicker(ctx, ticker)
			if err != nil {
				return nil, Retryable(fmt.Errorf("failed to look up ticker %s: %w", ticker, err))
			}
			if company == nil {
				return nil, Permanent(fmt.Errorf("unknown ticker %s", ticker))
			}

			// Items arrive newest-first; only the AI call is capped.
			batch := items
			if len(batch) > deps.BatchSize {
				batch = batch[:deps.BatchSize]
			}

			analysis, err := deps.AI.AnalyzeSentiment(ctx, ticker, batch)
			if err != nil {
				if errors.Is(err, openaiclient.ErrBadResponse) {
					return Counts{"analyzed": 0, "inserted": 0}, Permanent(err)
				}
				return nil, Retryable(fmt.Errorf("sentiment analysis failed for %s: %w", ticker, err))
			}

			counts := Counts{"analyzed": len(items), "inserted": 0}
			for _, item := range items {
				inserted, err := deps.Store.Insert(ctx, domain.SentimentRecord{
					CompanyID:   company.ID,
					Title:       item.Title,
					Source:      item.Source,
					URL:         item.URL,
					PublishedAt: item.PublishedAt,
					Score:       analysis.Score,
					Label:       analysis.Label,
					Summary:     item.Summary,
				})
				if err != nil {
					return counts, fmt.Errorf("failed to store sentiment for %s: %w", ticker, err)
				}
				if inserted {
					counts["inserted"]++
				}
			}

			log.Info().
				Str("ticker", ticker).
				Float64("score", analysis.Score).
				Str("label", analysis.Label).
				Int("items", len(items)).
				Int("inserted", counts["inserted"]).
				Msg("Analyzed news sentiment")

			return counts, nil
		},
	})
}

// newsItemsFromPayload extracts the news items from a job payload.
// In-process producers pass []domain.NewsItem directly; payloads that
// crossed the HTTP trigger arrive JSON-decoded as []interface{} and
// are round-tripped back through encoding/json.
func newsItemsFromPayload(v any) ([]domain.NewsItem, bool) {
	switch v := v.(type) {
	case []domain.NewsItem:
		return v, true
	case nil:
		return nil, false
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		var items []domain.NewsItem
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, false
		}
		return items, true
	}
}
