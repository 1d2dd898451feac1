// Package analytics computes dashboard aggregates over the waitlist and
// restock history.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"stockwatch/internal/database"
)

// Summary is the dashboard headline block.
type Summary struct {
	WaitlistTotal        int            `json:"waitlist_total"`
	WaitlistUnnotified   int            `json:"waitlist_unnotified"`
	WaitlistNotified     int            `json:"waitlist_notified"`
	ConversionRate       float64        `json:"conversion_rate"`
	ProductsWithWaitlist int            `json:"products_with_waitlist"`
	OutOfStockProducts   int            `json:"out_of_stock_products"`
	Suppliers            int            `json:"suppliers"`
	Restocks             int            `json:"restocks"`
	RestocksByMethod     map[string]int `json:"restocks_by_method"`
	TokensIssued         int            `json:"tokens_issued"`
	TokensUsed           int            `json:"tokens_used"`
	PurchaseOrders       int            `json:"purchase_orders"`
}

// DayPoint is one day of the trend series.
type DayPoint struct {
	Date     string `json:"date"`
	Signups  int    `json:"signups"`
	Restocks int    `json:"restocks"`
	Units    int    `json:"units"`
}

// TopProduct is a product ranked by waiting customers.
type TopProduct struct {
	ProductID  int64  `json:"product_id"`
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	StockQty   int    `json:"stock_qty"`
	Waiting    int    `json:"waiting"`
	Notified   int    `json:"notified"`
	LastSignup string `json:"last_signup"`
}

// Service runs the dashboard queries.
type Service struct {
	DB  *sql.DB
	Now func() time.Time
}

func New(db *sql.DB) *Service {
	return &Service{DB: db, Now: time.Now}
}

// Summary returns the headline counters.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	sum := &Summary{RestocksByMethod: map[string]int{}}
	counts := []struct {
		dst *int
		q   string
	}{
		{&sum.WaitlistTotal, "SELECT COUNT(*) FROM waitlist_entries"},
		{&sum.WaitlistNotified, "SELECT COUNT(*) FROM waitlist_entries WHERE notified=1"},
		{&sum.ProductsWithWaitlist, "SELECT COUNT(DISTINCT product_id) FROM waitlist_entries WHERE notified=0"},
		{&sum.OutOfStockProducts, "SELECT COUNT(*) FROM products WHERE stock_status='outofstock'"},
		{&sum.Suppliers, "SELECT COUNT(*) FROM suppliers"},
		{&sum.Restocks, "SELECT COUNT(*) FROM restock_log"},
		{&sum.TokensIssued, "SELECT (SELECT COUNT(*) FROM restock_tokens) + (SELECT COUNT(*) FROM csv_tokens)"},
		{&sum.TokensUsed, "SELECT (SELECT COUNT(*) FROM restock_tokens WHERE used=1) + (SELECT COUNT(*) FROM csv_tokens WHERE used=1)"},
		{&sum.PurchaseOrders, "SELECT COUNT(*) FROM purchase_orders"},
	}
	for _, c := range counts {
		if err := s.DB.QueryRowContext(ctx, c.q).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("summary: %w", err)
		}
	}
	sum.WaitlistUnnotified = sum.WaitlistTotal - sum.WaitlistNotified
	if sum.WaitlistTotal > 0 {
		sum.ConversionRate = math.Round(float64(sum.WaitlistNotified)/float64(sum.WaitlistTotal)*1000) / 10
	}

	rows, err := s.DB.QueryContext(ctx, "SELECT method, COUNT(*) FROM restock_log GROUP BY method")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m string
		var n int
		if err := rows.Scan(&m, &n); err != nil {
			return nil, err
		}
		sum.RestocksByMethod[m] = n
	}
	return sum, rows.Err()
}

// Trends returns one point per day for the last days days, oldest first,
// including days without activity.
func (s *Service) Trends(ctx context.Context, days int) ([]DayPoint, error) {
	if days <= 0 || days > 365 {
		days = 30
	}
	today := s.Now().UTC().Truncate(24 * time.Hour)
	start := today.AddDate(0, 0, -(days - 1))

	points := make([]DayPoint, days)
	index := map[string]int{}
	for i := range points {
		d := start.AddDate(0, 0, i).Format("2006-01-02")
		points[i].Date = d
		index[d] = i
	}
	since := database.FormatTime(start)

	signups, err := s.perDay(ctx, "SELECT substr(date_added,1,10), COUNT(*), 0 FROM waitlist_entries WHERE date_added >= ? GROUP BY 1", since)
	if err != nil {
		return nil, err
	}
	for _, r := range signups {
		if i, ok := index[r.day]; ok {
			points[i].Signups = r.count
		}
	}
	restocks, err := s.perDay(ctx, "SELECT substr(created_at,1,10), COUNT(*), COALESCE(SUM(quantity),0) FROM restock_log WHERE created_at >= ? GROUP BY 1", since)
	if err != nil {
		return nil, err
	}
	for _, r := range restocks {
		if i, ok := index[r.day]; ok {
			points[i].Restocks = r.count
			points[i].Units = r.units
		}
	}
	return points, nil
}

type dayCount struct {
	day   string
	count int
	units int
}

func (s *Service) perDay(ctx context.Context, q string, args ...any) ([]dayCount, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("trends: %w", err)
	}
	defer rows.Close()
	var out []dayCount
	for rows.Next() {
		var d dayCount
		if err := rows.Scan(&d.day, &d.count, &d.units); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// TopProducts ranks products by customers still waiting.
func (s *Service) TopProducts(ctx context.Context, limit int) ([]TopProduct, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT p.id, p.sku, p.name, p.stock_qty,
			COALESCE(SUM(CASE WHEN w.notified=0 THEN 1 ELSE 0 END),0),
			COALESCE(SUM(CASE WHEN w.notified=1 THEN 1 ELSE 0 END),0),
			COALESCE(MAX(w.date_added),'')
		FROM products p JOIN waitlist_entries w ON w.product_id = p.id
		GROUP BY p.id ORDER BY 5 DESC, 6 DESC, p.sku LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []TopProduct{}
	for rows.Next() {
		var t TopProduct
		if err := rows.Scan(&t.ProductID, &t.SKU, &t.Name, &t.StockQty, &t.Waiting, &t.Notified, &t.LastSignup); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}
