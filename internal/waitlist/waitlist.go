// Package waitlist tracks customer demand for out-of-stock products and
// settles it when stock arrives.
package waitlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"stockwatch/internal/database"
	"stockwatch/internal/license"
	"stockwatch/internal/models"
	"stockwatch/internal/notify"
	"stockwatch/internal/validation"
	"stockwatch/internal/websocket"
)

var (
	ErrAlreadyOnList   = errors.New("this email is already on the waitlist for this product")
	ErrProductNotFound = errors.New("product not found")
	ErrEntryNotFound   = errors.New("waitlist entry not found")
)

// LowStockChecker is told about new demand so it can decide whether the
// supplier should hear about it.
type LowStockChecker interface {
	CheckProduct(ctx context.Context, productID int64, f license.Features)
}

// Service owns waitlist entries and the restock fan-out.
type Service struct {
	DB       *sql.DB
	Products *database.ProductStore
	Notifier *notify.Notifier
	Hub      *websocket.Hub
	Checker  LowStockChecker
	// BaseURL is the public storefront root used for {product_url}.
	BaseURL string
	Now     func() time.Time

	async sync.WaitGroup
}

// New creates a Service. checker may be nil.
func New(db *sql.DB, products *database.ProductStore, n *notify.Notifier, hub *websocket.Hub, checker LowStockChecker, baseURL string) *Service {
	return &Service{
		DB:       db,
		Products: products,
		Notifier: n,
		Hub:      hub,
		Checker:  checker,
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Now:      time.Now,
	}
}

// Wait blocks until background low-stock checks started by Join finish.
func (s *Service) Wait() { s.async.Wait() }

// ProductURL is the storefront link for p.
func (s *Service) ProductURL(p *models.Product) string {
	return s.BaseURL + "/products/" + url.PathEscape(p.SKU)
}

// Join adds email to the waitlist of productID. A second signup with the
// same email returns ErrAlreadyOnList and stores nothing.
func (s *Service) Join(ctx context.Context, productID int64, email, name string, f license.Features) (*models.WaitlistEntry, error) {
	email = validation.NormalizeEmail(email)
	name = strings.TrimSpace(name)

	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "email", email)
	validation.ValidateEmail(ve, "email", email)
	validation.ValidateMaxLength(ve, "name", name, validation.MaxNameLength)
	if productID <= 0 {
		ve.Add("product_id", "is required")
	}
	if ve.HasErrors() {
		return nil, ve
	}

	p, err := s.Products.Get(ctx, productID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	now := database.FormatTime(s.Now())
	res, err := s.DB.ExecContext(ctx, `INSERT INTO waitlist_entries (product_id, customer_email, customer_name, date_added)
		VALUES (?, ?, ?, ?) ON CONFLICT(product_id, customer_email) DO NOTHING`, productID, email, name, now)
	if err != nil {
		return nil, fmt.Errorf("insert waitlist entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrAlreadyOnList
	}
	id, _ := res.LastInsertId()
	entry := &models.WaitlistEntry{ID: id, ProductID: productID, CustomerEmail: email, CustomerName: name, DateAdded: now}

	if err := s.Notifier.Send(ctx, notify.TplWaitlistConfirmation, email, notify.Vars{
		"customer_name":  displayName(name),
		"customer_email": email,
		"product_name":   p.Name,
		"product_sku":    p.SKU,
		"product_url":    s.ProductURL(p),
	}, f); err != nil {
		log.Printf("waitlist: confirmation to %s failed: %v", email, err)
	}

	s.Hub.Publish(websocket.EventWaitlistJoined, productID, map[string]any{"entry_id": id})

	if s.Checker != nil {
		s.async.Add(1)
		go func() {
			defer s.async.Done()
			s.Checker.CheckProduct(context.WithoutCancel(ctx), productID, f)
		}()
	}
	return entry, nil
}

func displayName(name string) string {
	if name == "" {
		return "there"
	}
	return name
}

const entryCols = "id, product_id, customer_email, COALESCE(customer_name,''), date_added, notified, notified_at"

func scanEntries(rows *sql.Rows) ([]models.WaitlistEntry, error) {
	defer rows.Close()
	items := []models.WaitlistEntry{}
	for rows.Next() {
		var e models.WaitlistEntry
		var notified int
		var notifiedAt sql.NullString
		if err := rows.Scan(&e.ID, &e.ProductID, &e.CustomerEmail, &e.CustomerName, &e.DateAdded, &notified, &notifiedAt); err != nil {
			return nil, err
		}
		e.Notified = notified == 1
		e.NotifiedAt = database.SP(notifiedAt)
		items = append(items, e)
	}
	return items, rows.Err()
}

// ListForProduct returns every entry for productID, oldest first.
func (s *Service) ListForProduct(ctx context.Context, productID int64) ([]models.WaitlistEntry, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT "+entryCols+" FROM waitlist_entries WHERE product_id=? ORDER BY date_added, id", productID)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (s *Service) unnotified(ctx context.Context, productID int64) ([]models.WaitlistEntry, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT "+entryCols+" FROM waitlist_entries WHERE product_id=? AND notified=0 ORDER BY id", productID)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// CountUnnotified returns the number of customers still waiting for productID.
func (s *Service) CountUnnotified(ctx context.Context, productID int64) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM waitlist_entries WHERE product_id=? AND notified=0", productID).Scan(&n)
	return n, err
}

// Remove deletes one entry.
func (s *Service) Remove(ctx context.Context, entryID int64) error {
	res, err := s.DB.ExecContext(ctx, "DELETE FROM waitlist_entries WHERE id=?", entryID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// Overview lists products that have at least one waitlist entry, most
// waiting customers first.
func (s *Service) Overview(ctx context.Context) ([]models.WaitlistOverview, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT p.id, p.sku, p.name, p.stock_qty, p.stock_status,
			COUNT(w.id), COALESCE(SUM(CASE WHEN w.notified=0 THEN 1 ELSE 0 END),0)
		FROM products p JOIN waitlist_entries w ON w.product_id = p.id
		GROUP BY p.id ORDER BY 7 DESC, 6 DESC, p.sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.WaitlistOverview{}
	for rows.Next() {
		var o models.WaitlistOverview
		if err := rows.Scan(&o.ProductID, &o.SKU, &o.Name, &o.StockQty, &o.StockStatus, &o.Total, &o.Unnotified); err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}
