// Package auth manages store-manager accounts and their sessions.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"stockwatch/internal/database"
	"stockwatch/internal/models"
	"stockwatch/internal/tokens"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountLocked      = errors.New("account temporarily locked due to too many failed login attempts")
	ErrAccountDisabled    = errors.New("account deactivated")
	ErrNoSession          = errors.New("no valid session")
)

// SessionTTL is how long a login stays valid.
const SessionTTL = 24 * time.Hour

// Session is an issued login.
type Session struct {
	Token     string       `json:"-"`
	User      *models.User `json:"user"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Manager authenticates users against the users table.
type Manager struct {
	DB   *sql.DB
	Cost int
	Now  func() time.Time
}

func NewManager(db *sql.DB) *Manager {
	return &Manager{DB: db, Now: time.Now}
}

// Login checks the credentials and creates a session.
func (m *Manager) Login(ctx context.Context, username, password string) (*Session, error) {
	locked, err := m.IsLocked(ctx, username)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check lockout: %w", err)
	}
	if locked {
		return nil, ErrAccountLocked
	}

	var u models.User
	var hash string
	var active int
	err = m.DB.QueryRowContext(ctx, "SELECT id, username, COALESCE(display_name,''), role, active, password_hash FROM users WHERE username = ?", username).
		Scan(&u.ID, &u.Username, &u.DisplayName, &u.Role, &active, &hash)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !CheckPassword(hash, password) {
		if err := m.recordFailure(ctx, username); err != nil {
			log.Printf("auth: record failure for %s: %v", username, err)
		}
		return nil, ErrInvalidCredentials
	}
	if active == 0 {
		return nil, ErrAccountDisabled
	}
	u.Active = true
	m.resetFailures(ctx, username)

	m.DB.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at < ?", database.FormatTime(m.Now()))

	token, err := tokens.GenerateToken()
	if err != nil {
		return nil, err
	}
	expires := m.Now().Add(SessionTTL)
	if _, err := m.DB.ExecContext(ctx, "INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)",
		token, u.ID, database.FormatTime(m.Now()), database.FormatTime(expires)); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	m.DB.ExecContext(ctx, "UPDATE users SET last_login = ? WHERE id = ?", database.FormatTime(m.Now()), u.ID)
	return &Session{Token: token, User: &u, ExpiresAt: expires}, nil
}

// Logout deletes the session.
func (m *Manager) Logout(ctx context.Context, token string) error {
	_, err := m.DB.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token)
	return err
}

// Lookup returns the active user owning a live session token.
func (m *Manager) Lookup(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	var u models.User
	err := m.DB.QueryRowContext(ctx, `SELECT u.id, u.username, COALESCE(u.display_name,''), u.role
		FROM sessions s JOIN users u ON s.user_id = u.id
		WHERE s.token = ? AND s.expires_at > ? AND u.active = 1`, token, database.FormatTime(m.Now())).
		Scan(&u.ID, &u.Username, &u.DisplayName, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	u.Active = true
	return &u, nil
}

// CreateUser adds an account. The password must pass ValidatePasswordStrength.
func (m *Manager) CreateUser(ctx context.Context, username, password, displayName, role string) (*models.User, error) {
	if username == "" {
		return nil, errors.New("username is required")
	}
	if _, ok := rolePerms[role]; !ok {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	if err := ValidatePasswordStrength(password); err != nil {
		return nil, err
	}
	hash, err := HashPassword(password, m.Cost)
	if err != nil {
		return nil, err
	}
	res, err := m.DB.ExecContext(ctx, "INSERT INTO users (username, password_hash, display_name, role, active) VALUES (?, ?, ?, ?, 1)",
		username, hash, displayName, role)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	id, _ := res.LastInsertId()
	return &models.User{ID: int(id), Username: username, DisplayName: displayName, Role: role, Active: true}, nil
}

// EnsureAdmin creates the bootstrap admin account when no user exists yet.
// It reports whether an account was created.
func (m *Manager) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	var n int
	if err := m.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if _, err := m.CreateUser(ctx, username, password, "Administrator", RoleAdmin); err != nil {
		return false, err
	}
	log.Printf("auth: created bootstrap admin %q", username)
	return true, nil
}

// ListUsers returns every account.
func (m *Manager) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := m.DB.QueryContext(ctx, "SELECT id, username, COALESCE(display_name,''), role, active FROM users ORDER BY username")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Role, &u.Active); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
