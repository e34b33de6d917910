package db

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS scans (
    id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    markets INTEGER NOT NULL DEFAULT 0,
    opportunities INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    stale_prices INTEGER NOT NULL DEFAULT 0,
    forecast_errors INTEGER NOT NULL DEFAULT 0,
    error TEXT
);
CREATE INDEX IF NOT EXISTS idx_scans_started ON scans(started_at);

CREATE TABLE IF NOT EXISTS forecasts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    scan_id TEXT NOT NULL REFERENCES scans(id),
    city TEXT NOT NULL,
    target_date TEXT NOT NULL,
    high REAL NOT NULL,
    low REAL NOT NULL,
    confidence TEXT NOT NULL,
    lead_hours REAL NOT NULL,
    summary TEXT
);
CREATE INDEX IF NOT EXISTS idx_forecasts_city_date ON forecasts(city, target_date);

CREATE TABLE IF NOT EXISTS bucket_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    scan_id TEXT NOT NULL REFERENCES scans(id),
    market_seq INTEGER NOT NULL,
    market_id TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    city TEXT NOT NULL,
    target_date TEXT NOT NULL,
    token_id TEXT NOT NULL,
    label TEXT NOT NULL,
    lo REAL,
    hi REAL,
    price REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bucket_snapshots_scan ON bucket_snapshots(scan_id);

CREATE TABLE IF NOT EXISTS opportunities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    scan_id TEXT NOT NULL REFERENCES scans(id),
    market_id TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    city TEXT NOT NULL,
    target_date TEXT NOT NULL,
    token_id TEXT NOT NULL,
    label TEXT NOT NULL,
    side TEXT NOT NULL,
    price REAL NOT NULL,
    fair_prob REAL NOT NULL,
    edge REAL NOT NULL,
    confidence TEXT NOT NULL,
    forecast_high REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_opportunities_scan ON opportunities(scan_id);
CREATE INDEX IF NOT EXISTS idx_opportunities_city ON opportunities(city);
`
