package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"stockwatch/internal/auth"
	"stockwatch/internal/testutil"

	"golang.org/x/crypto/bcrypt"
)

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		password string
		wantErr  bool
	}{
		{"Short123!", true},
		{"Shorter1234!", false},
		{"alllowercase", true},
		{"lower1234567", true},
		{"lowerUPPER!!", false},
		{"Password1234", false},
		{"ExactlyTwelve", true},
	}
	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			err := auth.ValidatePasswordStrength(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePasswordStrength(%q) error = %v, wantErr %v", tt.password, err, tt.wantErr)
			}
		})
	}
}

func TestCan(t *testing.T) {
	if !auth.Can(auth.RoleManager, auth.PermManage) || auth.Can(auth.RoleManager, auth.PermAdmin) {
		t.Error("manager permissions wrong")
	}
	if auth.Can(auth.RoleViewer, auth.PermManage) || !auth.Can(auth.RoleViewer, auth.PermView) {
		t.Error("viewer permissions wrong")
	}
	if auth.Can("ghost", auth.PermView) {
		t.Error("unknown role must have no permissions")
	}
}

func TestLoginLookupLogout(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedUser(t, db, "alice", "Correct-Horse-9", "manager")
	m := auth.NewManager(db)
	ctx := context.Background()

	if _, err := m.Login(ctx, "alice", "wrong"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := m.Login(ctx, "nobody", "x"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	sess, err := m.Login(ctx, "alice", "Correct-Horse-9")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Token == "" || sess.User.Role != "manager" {
		t.Errorf("session = %+v", sess)
	}
	if n := testutil.CountRows(t, db, "users", "username='alice' AND failed_login_attempts=0"); n != 1 {
		t.Error("successful login must reset the failure counter")
	}

	u, err := m.Lookup(ctx, sess.Token)
	if err != nil || u.Username != "alice" {
		t.Fatalf("lookup = %+v, %v", u, err)
	}
	if err := m.Logout(ctx, sess.Token); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Lookup(ctx, sess.Token); !errors.Is(err, auth.ErrNoSession) {
		t.Errorf("expected ErrNoSession after logout, got %v", err)
	}
}

func TestLogin_LocksAfterRepeatedFailures(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedUser(t, db, "bob", "Correct-Horse-9", "manager")
	m := auth.NewManager(db)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	m.Now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < auth.MaxFailedLoginAttempts; i++ {
		m.Login(ctx, "bob", "nope")
	}
	if _, err := m.Login(ctx, "bob", "Correct-Horse-9"); !errors.Is(err, auth.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	var stored string
	db.QueryRow("SELECT locked_until FROM users WHERE username='bob'").Scan(&stored)
	if stored != "2024-06-01 12:15:00" {
		t.Errorf("locked_until stored as %q", stored)
	}
	if locked, err := m.IsLocked(ctx, "bob"); err != nil || !locked {
		t.Errorf("IsLocked = %v, %v", locked, err)
	}

	now = now.Add(auth.AccountLockoutDuration + time.Minute)
	if _, err := m.Login(ctx, "bob", "Correct-Horse-9"); err != nil {
		t.Errorf("lock should have expired: %v", err)
	}
}

func TestIsLocked_CorruptTimestampFailsClosed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.SeedUser(t, db, "bob", "Correct-Horse-9", "manager")
	m := auth.NewManager(db)
	ctx := context.Background()
	db.Exec("UPDATE users SET locked_until='soon' WHERE username='bob'")

	if _, err := m.IsLocked(ctx, "bob"); err == nil {
		t.Error("expected a parse error")
	}
	if _, err := m.Login(ctx, "bob", "Correct-Horse-9"); err == nil {
		t.Error("login must not succeed while the lock state is unreadable")
	}
}

func TestEnsureAdmin(t *testing.T) {
	db := testutil.SetupTestDB(t)
	m := auth.NewManager(db)
	m.Cost = bcrypt.MinCost
	ctx := context.Background()

	if _, err := m.EnsureAdmin(ctx, "admin", "weak"); err == nil {
		t.Error("weak bootstrap password must be rejected")
	}
	created, err := m.EnsureAdmin(ctx, "admin", "Bootstrap-Pass-1")
	if err != nil || !created {
		t.Fatalf("EnsureAdmin = %v, %v", created, err)
	}
	created, _ = m.EnsureAdmin(ctx, "admin2", "Bootstrap-Pass-1")
	if created {
		t.Error("second EnsureAdmin must be a no-op")
	}
	users, _ := m.ListUsers(ctx)
	if len(users) != 1 || users[0].Role != auth.RoleAdmin {
		t.Errorf("users = %+v", users)
	}
}
