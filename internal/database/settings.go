package database

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
)

// Well known settings keys.
const (
	KeySiteName         = "site_name"
	KeyGlobalThreshold  = "global_threshold"
	KeyTokenExpiryDays  = "token_expiry_days"
	KeyPOPrefix         = "po_prefix"
	KeyLicenseKey       = "license_key"
	KeyLicenseStatus    = "license_status"
	KeyLicenseCheckedAt = "license_checked_at"
)

// Settings is the global key/value store.
type Settings struct {
	DB *sql.DB
}

// Get returns the stored value for key, or def when unset.
func (s *Settings) Get(ctx context.Context, key, def string) string {
	var v string
	err := s.DB.QueryRowContext(ctx, "SELECT value FROM settings WHERE key=?", key).Scan(&v)
	if err != nil {
		return def
	}
	return v
}

// GetInt returns the stored integer for key, or def when unset or malformed.
func (s *Settings) GetInt(ctx context.Context, key string, def int) int {
	v := s.Get(ctx, key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Lookup is like Get but distinguishes a missing key.
func (s *Settings) Lookup(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.DB.QueryRowContext(ctx, "SELECT value FROM settings WHERE key=?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Settings) Set(ctx context.Context, key, value string) error {
	_, err := s.DB.ExecContext(ctx, "INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value", key, value)
	return err
}

// SetDefault writes value only if key has never been set.
func (s *Settings) SetDefault(ctx context.Context, key, value string) error {
	_, err := s.DB.ExecContext(ctx, "INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)", key, value)
	return err
}

func (s *Settings) Delete(ctx context.Context, key string) error {
	_, err := s.DB.ExecContext(ctx, "DELETE FROM settings WHERE key=?", key)
	return err
}

// All returns every stored setting.
func (s *Settings) All(ctx context.Context) (map[string]string, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT key, value FROM settings ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}
