package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// TimeLayout is the format every timestamp column is written in (UTC).
// Fixed width so that string comparison in SQL orders correctly. Columns are
// declared TEXT: the driver converts DATETIME columns to time.Time on read,
// which would come back in a different layout.
const TimeLayout = "2006-01-02 15:04:05"

// ErrNotFound is returned by stores when a row does not exist.
var ErrNotFound = errors.New("not found")

// Open opens the sqlite database at path and applies the schema.
func Open(path string) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	// Pragmas are given in the DSN so that every pooled connection gets them.
	dsn := path + sep + "_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// SQLite handles 1 writer + multiple readers in WAL mode
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sku TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		price TEXT NOT NULL DEFAULT '0',
		stock_qty INTEGER NOT NULL DEFAULT 0 CHECK(stock_qty >= 0),
		stock_status TEXT NOT NULL DEFAULT 'outofstock' CHECK(stock_status IN ('instock','outofstock')),
		created_at TEXT DEFAULT CURRENT_TIMESTAMP,
		updated_at TEXT DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS waitlist_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id INTEGER NOT NULL,
		customer_email TEXT NOT NULL,
		customer_name TEXT DEFAULT '',
		date_added TEXT NOT NULL,
		notified INTEGER NOT NULL DEFAULT 0,
		notified_at TEXT,
		UNIQUE(product_id, customer_email),
		FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_waitlist_product_notified ON waitlist_entries(product_id, notified)`,
	`CREATE TABLE IF NOT EXISTS suppliers (
		product_id INTEGER PRIMARY KEY,
		supplier_name TEXT DEFAULT '',
		supplier_email TEXT NOT NULL,
		supplier_phone TEXT DEFAULT '',
		threshold INTEGER CHECK(threshold IS NULL OR threshold >= 0),
		channels TEXT NOT NULL DEFAULT 'email',
		auto_generate_po INTEGER NOT NULL DEFAULT 0,
		alert_armed INTEGER NOT NULL DEFAULT 1,
		last_alert_at TEXT,
		updated_at TEXT DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS restock_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id INTEGER NOT NULL,
		quantity INTEGER NOT NULL,
		method TEXT NOT NULL CHECK(method IN ('manual','csv_upload','quick_restock','supplier_link')),
		ip_address TEXT DEFAULT '',
		actor TEXT DEFAULT 'system',
		batch_id TEXT DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_restock_log_created ON restock_log(created_at)`,
	`CREATE TABLE IF NOT EXISTS restock_tokens (
		token TEXT PRIMARY KEY,
		product_id INTEGER NOT NULL,
		supplier_email TEXT NOT NULL,
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		used INTEGER NOT NULL DEFAULT 0,
		used_at TEXT,
		claimed_at TEXT,
		claim_id TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS csv_tokens (
		token TEXT PRIMARY KEY,
		supplier_email TEXT NOT NULL,
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		used INTEGER NOT NULL DEFAULT 0,
		used_at TEXT,
		claimed_at TEXT,
		claim_id TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS purchase_orders (
		po_number TEXT PRIMARY KEY,
		scope TEXT NOT NULL,
		seq INTEGER NOT NULL,
		product_id INTEGER NOT NULL,
		supplier_email TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK(quantity > 0),
		unit_price TEXT NOT NULL DEFAULT '0',
		total_amount TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'draft' CHECK(status IN ('draft','sent','confirmed','received','cancelled')),
		document_path TEXT DEFAULT '',
		created_at TEXT NOT NULL,
		UNIQUE(scope, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS po_sequences (
		scope TEXT PRIMARY KEY,
		last_seq INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS email_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		to_address TEXT NOT NULL,
		subject TEXT NOT NULL,
		body TEXT,
		event_type TEXT DEFAULT '',
		status TEXT NOT NULL,
		error TEXT DEFAULT '',
		sent_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS channel_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		channel TEXT NOT NULL,
		recipient TEXT NOT NULL,
		payload TEXT,
		status TEXT NOT NULL,
		error TEXT DEFAULT '',
		sent_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT DEFAULT 'system',
		action TEXT NOT NULL,
		module TEXT NOT NULL,
		record_id TEXT NOT NULL,
		summary TEXT,
		ip_address TEXT DEFAULT '',
		created_at TEXT DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		display_name TEXT DEFAULT '',
		role TEXT NOT NULL DEFAULT 'manager' CHECK(role IN ('admin','manager','viewer')),
		active INTEGER NOT NULL DEFAULT 1,
		failed_login_attempts INTEGER NOT NULL DEFAULT 0,
		locked_until TEXT,
		last_login TEXT,
		created_at TEXT DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at TEXT DEFAULT CURRENT_TIMESTAMP,
		expires_at TEXT NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
}

// Migrate creates every table and index. It is safe to run repeatedly.
func Migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration: %w", err)
		}
	}
	return nil
}

// FormatTime renders t in TimeLayout (UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a value written by FormatTime. RFC 3339 is accepted for
// rows written through a time.Time parameter.
func ParseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimeLayout, s, time.UTC)
	if err == nil {
		return t, nil
	}
	if t, rerr := time.Parse(time.RFC3339Nano, s); rerr == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
}

// NS converts an optional string to sql.NullString.
func NS(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// SP converts a sql.NullString to an optional string.
func SP(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

// Placeholders returns "?,?,?" for n arguments.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
