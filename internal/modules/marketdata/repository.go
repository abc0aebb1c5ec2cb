// Package marketdata persists daily OHLCV observations.
package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insight/internal/domain"
)

// dateLayout is the canonical storage format for trading dates.
// Storing dates as ISO strings keeps (company_id, date) comparable and
// makes the primary key collision check trivial.
const dateLayout = "2006-01-02"

// Repository stores and reads market data rows.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new market data repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "marketdata").Logger(),
	}
}

// Upsert writes one price point keyed by (company_id, date). A repeated
// write for the same key overwrites every field, so re-running a
// collection for an overlapping window converges on the latest fetch.
func (r *Repository) Upsert(ctx context.Context, companyID string, p domain.PricePoint) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO market_data (company_id, date, open_price, close_price, high_price, low_price, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(company_id, date) DO UPDATE SET
			open_price = excluded.open_price,
			close_price = excluded.close_price,
			high_price = excluded.high_price,
			low_price = excluded.low_price,
			volume = excluded.volume`,
		companyID, p.Date.Format(dateLayout), p.Open, p.Close, p.High, p.Low, p.Volume)
	if err != nil {
		return fmt.Errorf("failed to upsert market data for %s@%s: %w",
			companyID, p.Date.Format(dateLayout), err)
	}

	return nil
}

// LatestClose returns the most recent close for a company. The second
// return value is false when no data exists yet.
func (r *Repository) LatestClose(ctx context.Context, companyID string) (float64, bool, error) {
	var close float64
	err := r.db.QueryRowContext(ctx, `
		SELECT close_price FROM market_data
		WHERE company_id = ?
		ORDER BY date DESC
		LIMIT 1`, companyID).Scan(&close)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get latest close for %s: %w", companyID, err)
	}

	return close, true, nil
}

// RecentCloses returns up to limit closes for a company in ascending
// date order, oldest first.
func (r *Repository) RecentCloses(ctx context.Context, companyID string, limit int) ([]float64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT close_price FROM (
			SELECT close_price, date FROM market_data
			WHERE company_id = ?
			ORDER BY date DESC
			LIMIT ?
		) ORDER BY date ASC`, companyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent closes for %s: %w", companyID, err)
	}
	defer rows.Close()

	var closes []float64
	for rows.Next() {
		var c float64
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan close: %w", err)
		}
		closes = append(closes, c)
	}

	return closes, rows.Err()
}

// History returns up to limit price points for a company, most recent
// first. Used by the read API.
func (r *Repository) History(ctx context.Context, companyID string, limit int) ([]domain.PricePoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, open_price, close_price, high_price, low_price, volume
		FROM market_data
		WHERE company_id = ?
		ORDER BY date DESC
		LIMIT ?`, companyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for %s: %w", companyID, err)
	}
	defer rows.Close()

	var points []domain.PricePoint
	for rows.Next() {
		var p domain.PricePoint
		var date string
		if err := rows.Scan(&date, &p.Open, &p.Close, &p.High, &p.Low, &p.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		p.Date, err = time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("invalid stored date %q: %w", date, err)
		}
		points = append(points, p)
	}

	return points, rows.Err()
}

// TopMovers returns the n active companies ordered by signed
// day-over-day close change, top gainers first. Companies with fewer
// than two closes have no change and sort last; they are only included
// to pad short results.
func (r *Repository) TopMovers(ctx context.Context, n int) ([]domain.Mover, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.ticker, c.name, md.close_price
		FROM companies c
		JOIN market_data md ON md.company_id = c.id
		WHERE c.is_active = 1
		ORDER BY c.id, md.date DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query movers: %w", err)
	}
	defer rows.Close()

	// Fold the two most recent closes per company.
	type fold struct {
		mover  domain.Mover
		closes []float64
	}
	var order []string
	byID := map[string]*fold{}
	for rows.Next() {
		var id, ticker, name string
		var close float64
		if err := rows.Scan(&id, &ticker, &name, &close); err != nil {
			return nil, fmt.Errorf("failed to scan mover row: %w", err)
		}
		f, ok := byID[id]
		if !ok {
			f = &fold{mover: domain.Mover{CompanyID: id, Ticker: ticker, Name: name, Price: close}}
			byID[id] = f
			order = append(order, id)
		}
		if len(f.closes) < 2 {
			f.closes = append(f.closes, close)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	movers := make([]domain.Mover, 0, len(order))
	for _, id := range order {
		f := byID[id]
		if len(f.closes) == 2 && f.closes[1] != 0 {
			pct := (f.closes[0] - f.closes[1]) / f.closes[1] * 100
			f.mover.ChangePct = &pct
		}
		movers = append(movers, f.mover)
	}

	// Highest signed change first, companies without a change last.
	sort.SliceStable(movers, func(i, j int) bool {
		a, b := movers[i].ChangePct, movers[j].ChangePct
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return *a > *b
	})

	if len(movers) > n {
		movers = movers[:n]
	}
	return movers, nil
}
