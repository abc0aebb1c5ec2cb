package work

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	openaiclient "github.com/aristath/insight/internal/clients/openai"
	"github.com/aristath/insight/internal/domain"
)

type stubAnalyzer struct {
	analysis *domain.SentimentAnalysis
	err      error
	batches  [][]domain.NewsItem
}

func (s *stubAnalyzer) AnalyzeSentiment(ctx context.Context, ticker string, items []domain.NewsItem) (*domain.SentimentAnalysis, error) {
	s.batches = append(s.batches, items)
	return s.analysis, s.err
}

type stubSentimentStore struct {
	records []domain.SentimentRecord
	seen    map[string]bool
	err     error
}

func newStubSentimentStore() *stubSentimentStore {
	return &stubSentimentStore{seen: map[string]bool{}}
}

func (s *stubSentimentStore) Insert(ctx context.Context, rec domain.SentimentRecord) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	key := rec.CompanyID + "|" + rec.Title + "|" + rec.URL
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	s.records = append(s.records, rec)
	return true, nil
}

func newsItems(n int) []domain.NewsItem {
	items := make([]domain.NewsItem, n)
	for i := range items {
		items[i] = domain.NewsItem{
			Title:       fmt.Sprintf("headline %d", i),
			Source:      "reuters",
			URL:         fmt.Sprintf("https://example.com/%d", i),
			PublishedAt: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC).Add(-time.Duration(i) * time.Hour),
		}
	}
	return items
}

func analyzerExecute(t *testing.T, ai SentimentAnalyzer, store SentimentStore, batchSize int) func(context.Context, Payload) (Counts, error) {
	t.Helper()
	registry := NewRegistry()
	RegisterAnalyzerJob(registry, AnalyzerDeps{
		Companies: &stubCompanies{companies: []domain.Company{{ID: "c1", Ticker: "AAPL"}}},
		AI:        ai,
		Store:     store,
		BatchSize: batchSize,
		Log:       zerolog.Nop(),
	})
	jt := registry.Get(JobAnalyzeSentiment)
	require.NotNil(t, jt)
	return jt.Execute
}

func TestAnalyzerPersistsBatchResult(t *testing.T) {
	ai := &stubAnalyzer{analysis: &domain.SentimentAnalysis{Score: 0.6, Label: "positive"}}
	store := newStubSentimentStore()
	execute := analyzerExecute(t, ai, store, 10)

	counts, err := execute(context.Background(), Payload{"ticker": "AAPL", "items": newsItems(3)})
	require.NoError(t, err)
	assert.Equal(t, Counts{"analyzed": 3, "inserted": 3}, counts)

	// Every row carries the batch-level score and label.
	for _, rec := range store.records {
		assert.Equal(t, "c1", rec.CompanyID)
		assert.Equal(t, 0.6, rec.Score)
		assert.Equal(t, "positive", rec.Label)
	}
}

func TestAnalyzerCapsOnlyTheAIBatch(t *testing.T) {
	ai := &stubAnalyzer{analysis: &domain.SentimentAnalysis{Score: 0, Label: "neutral"}}
	store := newStubSentimentStore()
	execute := analyzerExecute(t, ai, store, 10)

	counts, err := execute(context.Background(), Payload{"ticker": "AAPL", "items": newsItems(15)})
	require.NoError(t, err)

	// Only the newest items reach the model.
	require.Len(t, ai.batches, 1)
	require.Len(t, ai.batches[0], 10)
	assert.Equal(t, "headline 0", ai.batches[0][0].Title)
	assert.Equal(t, "headline 9", ai.batches[0][9].Title)

	// Every input item still gets a row with the batch sentiment.
	assert.Equal(t, Counts{"analyzed": 15, "inserted": 15}, counts)
	require.Len(t, store.records, 15)
	assert.Equal(t, "headline 14", store.records[14].Title)
}

func TestAnalyzerAcceptsJSONDecodedItems(t *testing.T) {
	ai := &stubAnalyzer{analysis: &domain.SentimentAnalysis{Score: 0.4, Label: "positive"}}
	store := newStubSentimentStore()
	execute := analyzerExecute(t, ai, store, 10)

	// Payloads that crossed the HTTP trigger arrive as []interface{}.
	counts, err := execute(context.Background(), Payload{
		"ticker": "AAPL",
		"items": []interface{}{
			map[string]interface{}{
				"title":        "headline 0",
				"source":       "reuters",
				"url":          "https://example.com/0",
				"published_at": "2026-03-02T12:00:00Z",
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, Counts{"analyzed": 1, "inserted": 1}, counts)

	require.Len(t, store.records, 1)
	assert.Equal(t, "headline 0", store.records[0].Title)
	assert.Equal(t, "https://example.com/0", store.records[0].URL)
	assert.Equal(t, 0.4, store.records[0].Score)
}

func TestAnalyzerBadResponsePersistsNothing(t *testing.T) {
	ai := &stubAnalyzer{err: fmt.Errorf("%w: not json", openaiclient.ErrBadResponse)}
	store := newStubSentimentStore()
	execute := analyzerExecute(t, ai, store, 10)

	counts, err := execute(context.Background(), Payload{"ticker": "AAPL", "items": newsItems(3)})
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, Counts{"analyzed": 0, "inserted": 0}, counts)
	assert.Empty(t, store.records)
}

func TestAnalyzerTransientAIFailureIsRetryable(t *testing.T) {
	ai := &stubAnalyzer{err: errors.New("rate limited")}
	execute := analyzerExecute(t, ai, newStubSentimentStore(), 10)

	_, err := execute(context.Background(), Payload{"ticker": "AAPL", "items": newsItems(3)})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestAnalyzerSkipsDuplicateItems(t *testing.T) {
	ai := &stubAnalyzer{analysis: &domain.SentimentAnalysis{Score: 0.2, Label: "neutral"}}
	store := newStubSentimentStore()
	execute := analyzerExecute(t, ai, store, 10)

	items := newsItems(3)
	_, err := execute(context.Background(), Payload{"ticker": "AAPL", "items": items})
	require.NoError(t, err)

	// Re-analyzing the same articles analyzes but inserts nothing new.
	counts, err := execute(context.Background(), Payload{"ticker": "AAPL", "items": items})
	require.NoError(t, err)
	assert.Equal(t, Counts{"analyzed": 3, "inserted": 0}, counts)
	assert.Len(t, store.records, 3)
}

func TestAnalyzerEmptyItems(t *testing.T) {
	ai := &stubAnalyzer{}
	execute := analyzerExecute(t, ai, newStubSentimentStore(), 10)

	counts, err := execute(context.Background(), Payload{"ticker": "AAPL", "items": []domain.NewsItem{}})
	require.NoError(t, err)
	assert.Equal(t, Counts{"analyzed": 0, "inserted": 0}, counts)
	assert.Empty(t, ai.batches)
}

func TestAnalyzerMissingPayloadIsPermanent(t *testing.T) {
	execute := analyzerExecute(t, &stubAnalyzer{}, newStubSentimentStore(), 10)

	_, err := execute(context.Background(), nil)
	require.Error(t, err)
	assert.False(t, IsRetryable(err))

	_, err = execute(context.Background(), Payload{"ticker": "AAPL"})
	require.Error(t, err)
	assert.False(t, IsRetryable(err))

	_, err = execute(context.Background(), Payload{"ticker": "AAPL", "items": "not a list"})
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestAnalyzerUnknownTickerIsPermanent(t *testing.T) {
	registry := NewRegistry()
	RegisterAnalyzerJob(registry, AnalyzerDeps{
		Companies: &stubCompanies{},
		AI:        &stubAnalyzer{},
		Store:     newStubSentimentStore(),
		BatchSize: 10,
		Log:       zerolog.Nop(),
	})

	_, err := registry.Get(JobAnalyzeSentiment).Execute(context.Background(), Payload{"ticker": "NOPE", "items": newsItems(1)})
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}
