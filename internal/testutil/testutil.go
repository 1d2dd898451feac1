package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"stockwatch/internal/database"
	"stockwatch/internal/models"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// SetupTestDB creates an in-memory SQLite database with the full schema.
// The pool is pinned to one connection so every query sees the same memory DB.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	testDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	testDB.SetMaxOpenConns(1)

	if _, err := testDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}
	if err := database.Migrate(testDB); err != nil {
		t.Fatalf("Failed to migrate test DB: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })
	return testDB
}

// SetupFileDB creates a file-backed database in a temp dir, for tests that
// need real concurrent connections.
func SetupFileDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open file DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// SeedProduct inserts a product and returns it.
func SeedProduct(t *testing.T, db *sql.DB, sku, name, price string, qty int) *models.Product {
	t.Helper()
	p := &models.Product{SKU: sku, Name: name, Price: price, StockQty: qty}
	if err := database.NewProductStore(db).Create(context.Background(), p); err != nil {
		t.Fatalf("Failed to seed product %s: %v", sku, err)
	}
	return p
}

// SeedWaitlist inserts an unnotified waitlist entry directly.
func SeedWaitlist(t *testing.T, db *sql.DB, productID int64, email, name string) int64 {
	t.Helper()
	res, err := db.Exec("INSERT INTO waitlist_entries (product_id, customer_email, customer_name, date_added) VALUES (?, ?, ?, datetime('now'))",
		productID, email, name)
	if err != nil {
		t.Fatalf("Failed to seed waitlist entry: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

// SeedSupplier inserts a supplier record with the given threshold and channels.
func SeedSupplier(t *testing.T, db *sql.DB, productID int64, email string, threshold int, channels string) {
	t.Helper()
	_, err := db.Exec("INSERT INTO suppliers (product_id, supplier_name, supplier_email, supplier_phone, threshold, channels) VALUES (?, 'Acme Supply', ?, '+15550100', ?, ?)",
		productID, email, threshold, channels)
	if err != nil {
		t.Fatalf("Failed to seed supplier: %v", err)
	}
}

// SeedUser creates a user with the given role and password and returns its ID.
func SeedUser(t *testing.T, db *sql.DB, username, password, role string) int {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	res, err := db.Exec("INSERT INTO users (username, password_hash, display_name, role, active) VALUES (?, ?, ?, ?, 1)",
		username, string(hash), username, role)
	if err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}
	id, _ := res.LastInsertId()
	return int(id)
}

// SeedSession creates a session token for userID valid for one day.
func SeedSession(t *testing.T, db *sql.DB, userID int, token string) {
	t.Helper()
	_, err := db.Exec("INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, datetime('now', '+1 day'))", token, userID)
	if err != nil {
		t.Fatalf("Failed to seed session: %v", err)
	}
}

// CountRows returns the number of rows in table matching where.
func CountRows(t *testing.T, db *sql.DB, table, where string, args ...any) int {
	t.Helper()
	q := "SELECT COUNT(*) FROM " + table
	if where != "" {
		q += " WHERE " + where
	}
	var n int
	if err := db.QueryRow(q, args...).Scan(&n); err != nil {
		t.Fatalf("Failed to count %s: %v", table, err)
	}
	return n
}
