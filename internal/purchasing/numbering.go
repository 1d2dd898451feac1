package purchasing

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// MinSuggestedQuantity is the floor of SuggestFor.
const MinSuggestedQuantity = 10

// DefaultPrefix is used until the po_prefix setting is changed.
const DefaultPrefix = "PO"

// SuggestFor returns the reorder quantity for a waitlist of count customers:
// max(10, 2*count).
func SuggestFor(count int) int {
	if q := 2 * count; q > MinSuggestedQuantity {
		return q
	}
	return MinSuggestedQuantity
}

// Scope is the numbering scope of prefix in the given month, e.g. "PO-202406".
func Scope(prefix string, year int, month time.Month) string {
	return fmt.Sprintf("%s-%04d%02d", prefix, year, int(month))
}

// FormatPONumber renders a PO number, e.g. "PO-202406-0007".
func FormatPONumber(scope string, seq int) string {
	return fmt.Sprintf("%s-%04d", scope, seq)
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// nextSeq atomically increments the counter of scope. A scope that has no
// counter yet starts after the highest sequence already stored for it.
func nextSeq(ctx context.Context, q queryer, scope string) (int, error) {
	var seq int
	err := q.QueryRowContext(ctx, `INSERT INTO po_sequences (scope, last_seq)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM purchase_orders WHERE scope = ?))
		ON CONFLICT(scope) DO UPDATE SET last_seq = last_seq + 1
		RETURNING last_seq`, scope, scope).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next po sequence for %s: %w", scope, err)
	}
	return seq, nil
}

// NextPONumber reserves the next number in prefix-YYYYMM.
func (s *Service) NextPONumber(ctx context.Context, prefix string, year int, month time.Month) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	scope := Scope(prefix, year, month)
	seq, err := nextSeq(ctx, s.DB, scope)
	if err != nil {
		return "", err
	}
	return FormatPONumber(scope, seq), nil
}
