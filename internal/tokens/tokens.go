// Package tokens issues and redeems single-use, time-limited supplier links.
package tokens

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stockwatch/internal/database"
	"stockwatch/internal/models"
)

// ErrInvalidToken is the only error external callers ever see for a bad link.
var ErrInvalidToken = errors.New("invalid or expired link")

// Kind selects the token table and the link shape.
type Kind string

const (
	KindRestock Kind = "restock"
	KindCSV     Kind = "csv"
)

func (k Kind) table() (string, error) {
	switch k {
	case KindRestock:
		return "restock_tokens", nil
	case KindCSV:
		return "csv_tokens", nil
	}
	return "", fmt.Errorf("unknown token kind %q", k)
}

// Reason explains internally why a token did not validate. It is logged,
// never shown to the link holder.
type Reason string

const (
	ReasonOK       Reason = "ok"
	ReasonUnknown  Reason = "unknown"
	ReasonExpired  Reason = "expired"
	ReasonUsed     Reason = "used"
	ReasonScope    Reason = "scope_mismatch"
	ReasonInFlight Reason = "in_flight"
)

// DefaultExpiry is used when Issue is called with a zero duration.
const DefaultExpiry = 7 * 24 * time.Hour

// DefaultLease is how long a claim blocks other redeemers. Redeem renews it
// while the action runs, so it bounds recovery after a crash, not the
// length of an action.
const DefaultLease = 5 * time.Minute

// Scope binds a token to what it may act on.
type Scope struct {
	ProductID     int64
	SupplierEmail string
}

// Issued is a freshly minted link.
type Issued struct {
	Token     string `json:"-"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at"`
}

// Service manages both token tables.
type Service struct {
	DB      *sql.DB
	BaseURL string
	Now     func() time.Time
	Lease   time.Duration
}

// New creates a token Service. baseURL is the public site root.
func New(db *sql.DB, baseURL string) *Service {
	return &Service{DB: db, BaseURL: strings.TrimRight(baseURL, "/"), Now: time.Now, Lease: DefaultLease}
}

// GenerateToken returns 32 random bytes hex encoded.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Issue stores a new unused token for scope and returns the link.
func (s *Service) Issue(ctx context.Context, kind Kind, scope Scope, expiry time.Duration) (*Issued, error) {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	if scope.SupplierEmail == "" {
		return nil, errors.New("supplier email is required")
	}
	if kind == KindRestock && scope.ProductID <= 0 {
		return nil, errors.New("product is required for a restock link")
	}
	token, err := GenerateToken()
	if err != nil {
		return nil, err
	}
	now := s.Now()
	expires := now.Add(expiry)

	switch kind {
	case KindRestock:
		_, err = s.DB.ExecContext(ctx, "INSERT INTO restock_tokens (token, product_id, supplier_email, created_at, expires_at) VALUES (?, ?, ?, ?, ?)",
			token, scope.ProductID, scope.SupplierEmail, database.FormatTime(now), database.FormatTime(expires))
	case KindCSV:
		_, err = s.DB.ExecContext(ctx, "INSERT INTO csv_tokens (token, supplier_email, created_at, expires_at) VALUES (?, ?, ?, ?)",
			token, scope.SupplierEmail, database.FormatTime(now), database.FormatTime(expires))
	default:
		_, err = kind.table()
	}
	if err != nil {
		return nil, fmt.Errorf("store %s token: %w", kind, err)
	}
	return &Issued{Token: token, URL: s.LinkFor(kind, token, scope.ProductID), ExpiresAt: database.FormatTime(expires)}, nil
}

// LinkFor builds the public URL carrying token.
func (s *Service) LinkFor(kind Kind, token string, productID int64) string {
	q := url.Values{}
	q.Set("token", token)
	if kind == KindRestock {
		q.Set("product_id", strconv.FormatInt(productID, 10))
		return s.BaseURL + "/supplier/restock?" + q.Encode()
	}
	return s.BaseURL + "/supplier/upload?" + q.Encode()
}

func (s *Service) load(ctx context.Context, kind Kind, token string) (*models.ActionToken, *string, error) {
	t := &models.ActionToken{Token: token, Kind: string(kind)}
	var used int
	var usedAt, claimedAt sql.NullString
	var err error
	switch kind {
	case KindRestock:
		err = s.DB.QueryRowContext(ctx, "SELECT product_id, supplier_email, created_at, expires_at, used, used_at, claimed_at FROM restock_tokens WHERE token=?", token).
			Scan(&t.ProductID, &t.SupplierEmail, &t.CreatedAt, &t.ExpiresAt, &used, &usedAt, &claimedAt)
	case KindCSV:
		err = s.DB.QueryRowContext(ctx, "SELECT supplier_email, created_at, expires_at, used, used_at, claimed_at FROM csv_tokens WHERE token=?", token).
			Scan(&t.SupplierEmail, &t.CreatedAt, &t.ExpiresAt, &used, &usedAt, &claimedAt)
	default:
		_, err = kind.table()
	}
	if err != nil {
		return nil, nil, err
	}
	t.Used = used == 1
	t.UsedAt = database.SP(usedAt)
	return t, database.SP(claimedAt), nil
}

// Validate is a read-only check. productID is ignored for CSV tokens. A
// non-nil error means the lookup itself failed.
func (s *Service) Validate(ctx context.Context, kind Kind, token string, productID int64) (*models.ActionToken, Reason, error) {
	if token == "" {
		return nil, ReasonUnknown, nil
	}
	t, claimedAt, err := s.load(ctx, kind, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ReasonUnknown, nil
	}
	if err != nil {
		return nil, ReasonUnknown, err
	}
	expires, err := database.ParseTime(t.ExpiresAt)
	if err != nil {
		return t, ReasonUnknown, err
	}
	var claimed time.Time
	if claimedAt != nil {
		if claimed, err = database.ParseTime(*claimedAt); err != nil {
			return t, ReasonUnknown, err
		}
	}
	// Stored times have second resolution.
	now := s.Now().UTC().Truncate(time.Second)
	switch {
	case t.Used:
		return t, ReasonUsed, nil
	case !now.Before(expires):
		return t, ReasonExpired, nil
	case kind == KindRestock && t.ProductID != productID:
		return t, ReasonScope, nil
	case claimedAt != nil && !claimed.Before(now.Add(-s.Lease).Truncate(time.Second)):
		return t, ReasonInFlight, nil
	}
	return t, ReasonOK, nil
}

// Redeem atomically claims the token, runs action and then marks the token
// used. The claim is renewed every third of the lease until action returns.
// If action fails the claim is released and the link stays usable. If
// marking used fails the error is only logged: the claim lapses after the
// lease and the link becomes valid again.
func (s *Service) Redeem(ctx context.Context, kind Kind, token string, productID int64, action func(ctx context.Context, t *models.ActionToken) error) error {
	table, err := kind.table()
	if err != nil {
		return err
	}
	if token == "" {
		return ErrInvalidToken
	}
	claim, err := GenerateToken()
	if err != nil {
		return err
	}
	now := s.Now()
	nowStr := database.FormatTime(now)
	staleBefore := database.FormatTime(now.Add(-s.Lease))

	q := "UPDATE " + table + " SET claimed_at=?, claim_id=? WHERE token=? AND used=0 AND expires_at>? AND (claimed_at IS NULL OR claimed_at<?)"
	args := []any{nowStr, claim, token, nowStr, staleBefore}
	if kind == KindRestock {
		q += " AND product_id=?"
		args = append(args, productID)
	}
	res, err := s.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("claim token: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		_, reason, _ := s.Validate(ctx, kind, token, productID)
		log.Printf("tokens: %s redeem refused (%s)", kind, reason)
		return ErrInvalidToken
	}

	t, _, err := s.load(ctx, kind, token)
	if err != nil {
		s.release(ctx, table, token, claim)
		return fmt.Errorf("load token: %w", err)
	}

	stop := s.renew(ctx, table, token, claim)
	err = action(ctx, t)
	stop()
	if err != nil {
		s.release(ctx, table, token, claim)
		return err
	}

	res, err = s.DB.ExecContext(ctx, "UPDATE "+table+" SET used=1, used_at=? WHERE token=? AND claim_id=?",
		database.FormatTime(s.Now()), token, claim)
	if err != nil {
		log.Printf("tokens: action done but marking %s token used failed: %v", kind, err)
		return nil
	}
	if n, _ := res.RowsAffected(); n != 1 {
		log.Printf("tokens: %s claim lost before it was consumed; the action may have run twice", kind)
	}
	return nil
}

// renew keeps the claim fresh until the returned stop func is called.
func (s *Service) renew(ctx context.Context, table, token, claim string) (stop func()) {
	every := s.Lease / 3
	if every <= 0 {
		every = time.Second
	}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				res, err := s.DB.ExecContext(context.WithoutCancel(ctx), "UPDATE "+table+" SET claimed_at=? WHERE token=? AND claim_id=? AND used=0",
					database.FormatTime(s.Now()), token, claim)
				if err != nil {
					log.Printf("tokens: renew claim failed: %v", err)
					continue
				}
				if n, _ := res.RowsAffected(); n != 1 {
					log.Printf("tokens: claim on %s no longer held", table)
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

func (s *Service) release(ctx context.Context, table, token, claim string) {
	if _, err := s.DB.ExecContext(ctx, "UPDATE "+table+" SET claimed_at=NULL, claim_id=NULL WHERE token=? AND claim_id=? AND used=0", token, claim); err != nil {
		log.Printf("tokens: release claim failed: %v", err)
	}
}

// List returns the most recent tokens of kind, newest first.
func (s *Service) List(ctx context.Context, kind Kind, limit int) ([]models.ActionToken, error) {
	if limit <= 0 {
		limit = 100
	}
	var q string
	switch kind {
	case KindRestock:
		q = "SELECT product_id, supplier_email, created_at, expires_at, used, used_at FROM restock_tokens ORDER BY created_at DESC LIMIT ?"
	case KindCSV:
		q = "SELECT 0, supplier_email, created_at, expires_at, used, used_at FROM csv_tokens ORDER BY created_at DESC LIMIT ?"
	default:
		_, err := kind.table()
		return nil, err
	}
	rows, err := s.DB.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.ActionToken{}
	for rows.Next() {
		t := models.ActionToken{Kind: string(kind)}
		var used int
		var usedAt sql.NullString
		if err := rows.Scan(&t.ProductID, &t.SupplierEmail, &t.CreatedAt, &t.ExpiresAt, &used, &usedAt); err != nil {
			return nil, err
		}
		t.Used = used == 1
		t.UsedAt = database.SP(usedAt)
		items = append(items, t)
	}
	return items, rows.Err()
}

// Purge deletes tokens that expired more than olderThan ago.
func (s *Service) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := database.FormatTime(s.Now().Add(-olderThan))
	var total int64
	for _, table := range []string{"restock_tokens", "csv_tokens"} {
		res, err := s.DB.ExecContext(ctx, "DELETE FROM "+table+" WHERE expires_at < ?", cutoff)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
