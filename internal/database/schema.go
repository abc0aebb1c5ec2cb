package database

// Schema is the full database schema. All statements are idempotent so it can
// be applied on every startup and against test databases.
const Schema = `
CREATE TABLE IF NOT EXISTS companies (
    id         TEXT PRIMARY KEY,
    ticker     TEXT NOT NULL UNIQUE,
    name       TEXT NOT NULL DEFAULT '',
    is_active  INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS market_data (
    company_id  TEXT NOT NULL REFERENCES companies(id),
    date        TEXT NOT NULL,
    open_price  REAL NOT NULL,
    close_price REAL NOT NULL,
    high_price  REAL NOT NULL,
    low_price   REAL NOT NULL,
    volume      INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (company_id, date)
);

CREATE INDEX IF NOT EXISTS idx_market_data_date ON market_data(date);

CREATE TABLE IF NOT EXISTS alerts (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL,
    chat_id         INTEGER NOT NULL DEFAULT 0,
    company_id      TEXT NOT NULL REFERENCES companies(id),
    alert_type      TEXT NOT NULL CHECK (alert_type IN ('price_above', 'price_below')),
    condition_value REAL NOT NULL,
    status          TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'triggered')),
    triggered_at    TIMESTAMP,
    created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);

CREATE TABLE IF NOT EXISTS news_sentiment (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    company_id      TEXT NOT NULL REFERENCES companies(id),
    title           TEXT NOT NULL,
    source          TEXT NOT NULL DEFAULT '',
    url             TEXT NOT NULL DEFAULT '',
    published_at    TIMESTAMP,
    sentiment_score REAL NOT NULL,
    sentiment_label TEXT NOT NULL,
    summary         TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (company_id, title, url)
);

CREATE TABLE IF NOT EXISTS cache (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache(expires_at);
`
