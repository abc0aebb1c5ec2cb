package work

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/insight/internal/domain"
)

func pct(v float64) *float64 { return &v }

type stubMovers struct {
	movers []domain.Mover
	closes map[string][]float64
	err    error
}

func (s *stubMovers) TopMovers(ctx context.Context, n int) ([]domain.Mover, error) {
	return s.movers, s.err
}

func (s *stubMovers) RecentCloses(ctx context.Context, companyID string, limit int) ([]float64, error) {
	return s.closes[companyID], nil
}

type stubSummarizer struct {
	narrative string
	err       error
	prompts   []string
}

func (s *stubSummarizer) Summarize(ctx context.Context, system, user string) (string, error) {
	s.prompts = append(s.prompts, user)
	return s.narrative, s.err
}

type stubReportCache struct {
	stored map[string]interface{}
	ttls   map[string]time.Duration
}

func newStubReportCache() *stubReportCache {
	return &stubReportCache{stored: map[string]interface{}{}, ttls: map[string]time.Duration{}}
}

func (s *stubReportCache) Store(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	s.stored[key] = value
	s.ttls[key] = ttl
	return nil
}

func reportExecute(t *testing.T, market MoverSource, ai Summarizer, cache ReportCache) func(context.Context, Payload) (Counts, error) {
	t.Helper()
	registry := NewRegistry()
	RegisterReportJob(registry, ReportDeps{
		Market: market,
		AI:     ai,
		Cache:  cache,
		TopN:   5,
		Log:    zerolog.Nop(),
	})
	jt := registry.Get(JobDailyReport)
	require.NotNil(t, jt)
	return jt.Execute
}

func TestReportCachesUnderDateKey(t *testing.T) {
	market := &stubMovers{
		movers: []domain.Mover{
			{CompanyID: "c1", Ticker: "AAPL", Name: "Apple Inc.", Price: 110, ChangePct: pct(10)},
			{CompanyID: "c2", Ticker: "MSFT", Name: "Microsoft", Price: 80, ChangePct: pct(-20)},
		},
		closes: map[string][]float64{"c1": {100, 105, 110}},
	}
	ai := &stubSummarizer{narrative: "Mixed session."}
	cache := newStubReportCache()
	execute := reportExecute(t, market, ai, cache)

	counts, err := execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Counts{"movers": 2}, counts)

	key := ReportCacheKey(time.Now())
	stored, ok := cache.stored[key]
	require.True(t, ok)
	assert.Equal(t, reportCacheTTL, cache.ttls[key])

	report, ok := stored.(DailyReport)
	require.True(t, ok)
	assert.Equal(t, "Mixed session.", report.Narrative)
	require.Len(t, report.TopMovers, 2)
	assert.InDelta(t, -5.0, report.MeanChange, 0.001)

	// c1 has three closes, so it carries an SMA; c2 has none.
	require.NotNil(t, report.TopMovers[0].SMA)
	assert.InDelta(t, 105.0, *report.TopMovers[0].SMA, 0.001)
	assert.Nil(t, report.TopMovers[1].SMA)
}

func TestReportRegenerationOverwrites(t *testing.T) {
	market := &stubMovers{
		movers: []domain.Mover{{CompanyID: "c1", Ticker: "AAPL", Name: "Apple Inc.", Price: 110, ChangePct: pct(10)}},
	}
	ai := &stubSummarizer{narrative: "First."}
	cache := newStubReportCache()
	execute := reportExecute(t, market, ai, cache)

	_, err := execute(context.Background(), nil)
	require.NoError(t, err)

	ai.narrative = "Second."
	_, err = execute(context.Background(), nil)
	require.NoError(t, err)

	// Same date key, one entry, latest content.
	require.Len(t, cache.stored, 1)
	report := cache.stored[ReportCacheKey(time.Now())].(DailyReport)
	assert.Equal(t, "Second.", report.Narrative)
}

func TestReportExcludesMoversWithoutChange(t *testing.T) {
	market := &stubMovers{
		movers: []domain.Mover{
			{CompanyID: "c1", Ticker: "AAPL", Name: "Apple Inc.", Price: 110, ChangePct: pct(10)},
			{CompanyID: "c3", Ticker: "NVDA", Name: "Nvidia", Price: 50},
		},
	}
	cache := newStubReportCache()
	execute := reportExecute(t, market, &stubSummarizer{narrative: "n"}, cache)

	counts, err := execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Counts{"movers": 1}, counts)

	report := cache.stored[ReportCacheKey(time.Now())].(DailyReport)
	require.Len(t, report.TopMovers, 1)
	assert.Equal(t, "AAPL", report.TopMovers[0].Ticker)
}

func TestReportNoDataSkipsGeneration(t *testing.T) {
	ai := &stubSummarizer{}
	cache := newStubReportCache()
	execute := reportExecute(t, &stubMovers{}, ai, cache)

	counts, err := execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Counts{"movers": 0}, counts)

	// No AI call and nothing cached.
	assert.Empty(t, ai.prompts)
	assert.Empty(t, cache.stored)
}

func TestReportMoverQueryFailureIsRetryable(t *testing.T) {
	execute := reportExecute(t, &stubMovers{err: errors.New("db locked")}, &stubSummarizer{}, newStubReportCache())

	_, err := execute(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestReportNarrativeFailureIsRetryable(t *testing.T) {
	market := &stubMovers{
		movers: []domain.Mover{{CompanyID: "c1", Ticker: "AAPL", Name: "Apple Inc.", Price: 110, ChangePct: pct(10)}},
	}
	execute := reportExecute(t, market, &stubSummarizer{err: errors.New("rate limited")}, newStubReportCache())

	_, err := execute(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestReportCacheKey(t *testing.T) {
	day := time.Date(2026, 3, 2, 23, 30, 0, 0, time.FixedZone("EET", 2*3600))
	assert.Equal(t, "daily_report:2026-03-02", ReportCacheKey(day))
}
