package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stockwatch/internal/database"
)

const (
	MaxFailedLoginAttempts = 10
	AccountLockoutDuration = 15 * time.Minute
)

// recordFailure increments the failed login counter and locks the account
// once the limit is reached.
func (m *Manager) recordFailure(ctx context.Context, username string) error {
	lockUntil := database.FormatTime(m.Now().Add(AccountLockoutDuration))
	_, err := m.DB.ExecContext(ctx, `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= ? THEN ?
		        ELSE locked_until
		    END
		WHERE username = ?`, MaxFailedLoginAttempts, lockUntil, username)
	return err
}

// resetFailures clears the counter after a successful login.
func (m *Manager) resetFailures(ctx context.Context, username string) error {
	_, err := m.DB.ExecContext(ctx, `
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL
		WHERE username = ?`, username)
	return err
}

// IsLocked reports whether username is currently locked out. An expired
// lock is cleared.
func (m *Manager) IsLocked(ctx context.Context, username string) (bool, error) {
	var lockedUntil sql.NullString
	err := m.DB.QueryRowContext(ctx, "SELECT locked_until FROM users WHERE username = ?", username).Scan(&lockedUntil)
	if err != nil {
		return false, err
	}
	if !lockedUntil.Valid {
		return false, nil
	}
	until, err := database.ParseTime(lockedUntil.String)
	if err != nil {
		return false, fmt.Errorf("locked_until for %s: %w", username, err)
	}
	if m.Now().Before(until) {
		return true, nil
	}
	m.resetFailures(ctx, username)
	return false, nil
}
