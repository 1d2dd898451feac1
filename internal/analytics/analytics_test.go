package analytics_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"stockwatch/internal/analytics"
	"stockwatch/internal/testutil"

	"github.com/xuri/excelize/v2"
)

func TestSummary(t *testing.T) {
	db := testutil.SetupTestDB(t)
	a := testutil.SeedProduct(t, db, "A-1", "Alpha", "1", 0)
	b := testutil.SeedProduct(t, db, "B-1", "Beta", "1", 3)
	testutil.SeedWaitlist(t, db, a.ID, "x@example.com", "")
	testutil.SeedWaitlist(t, db, a.ID, "y@example.com", "")
	testutil.SeedWaitlist(t, db, b.ID, "x@example.com", "")
	testutil.SeedWaitlist(t, db, b.ID, "z@example.com", "")
	db.Exec("UPDATE waitlist_entries SET notified=1 WHERE product_id=?", b.ID)
	db.Exec("INSERT INTO restock_log (product_id, quantity, method, created_at) VALUES (?, 5, 'manual', datetime('now')), (?, 2, 'csv_upload', datetime('now'))", b.ID, b.ID)
	testutil.SeedSupplier(t, db, a.ID, "s@example.com", 5, "email")

	sum, err := analytics.New(db).Summary(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.WaitlistTotal != 4 || sum.WaitlistNotified != 2 || sum.WaitlistUnnotified != 2 {
		t.Errorf("waitlist counts = %+v", sum)
	}
	if sum.ConversionRate != 50 {
		t.Errorf("conversion = %v", sum.ConversionRate)
	}
	if sum.ProductsWithWaitlist != 1 || sum.OutOfStockProducts != 1 || sum.Suppliers != 1 {
		t.Errorf("product counts = %+v", sum)
	}
	if sum.Restocks != 2 || sum.RestocksByMethod["manual"] != 1 || sum.RestocksByMethod["csv_upload"] != 1 {
		t.Errorf("restocks = %d %v", sum.Restocks, sum.RestocksByMethod)
	}
}

func TestTrends_FillsEmptyDays(t *testing.T) {
	db := testutil.SetupTestDB(t)
	p := testutil.SeedProduct(t, db, "A-1", "Alpha", "1", 0)
	db.Exec("INSERT INTO waitlist_entries (product_id, customer_email, date_added) VALUES (?, 'a@example.com', '2024-06-10 09:00:00'), (?, 'b@example.com', '2024-06-10 18:00:00'), (?, 'c@example.com', '2024-05-01 00:00:00')", p.ID, p.ID, p.ID)
	db.Exec("INSERT INTO restock_log (product_id, quantity, method, created_at) VALUES (?, 7, 'manual', '2024-06-12 10:00:00')", p.ID)

	svc := analytics.New(db)
	svc.Now = func() time.Time { return time.Date(2024, 6, 12, 15, 0, 0, 0, time.UTC) }
	points, err := svc.Trends(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 7 || points[0].Date != "2024-06-06" || points[6].Date != "2024-06-12" {
		t.Fatalf("points = %+v", points)
	}
	if points[4].Signups != 2 {
		t.Errorf("signups on 06-10 = %d", points[4].Signups)
	}
	if points[6].Restocks != 1 || points[6].Units != 7 {
		t.Errorf("restocks on 06-12 = %+v", points[6])
	}
	total := 0
	for _, p := range points {
		total += p.Signups
	}
	if total != 2 {
		t.Errorf("signups outside the window leaked in: %d", total)
	}
}

func TestTopProducts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	a := testutil.SeedProduct(t, db, "A-1", "Alpha", "1", 0)
	b := testutil.SeedProduct(t, db, "B-1", "Beta", "1", 0)
	testutil.SeedWaitlist(t, db, a.ID, "x@example.com", "")
	testutil.SeedWaitlist(t, db, b.ID, "x@example.com", "")
	testutil.SeedWaitlist(t, db, b.ID, "y@example.com", "")

	top, err := analytics.New(db).TopProducts(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 2 || top[0].SKU != "B-1" || top[0].Waiting != 2 {
		t.Errorf("top = %+v", top)
	}
}

func TestExport_CSVAndXLSX(t *testing.T) {
	db := testutil.SetupTestDB(t)
	p := testutil.SeedProduct(t, db, "A-1", "Alpha", "1", 0)
	testutil.SeedWaitlist(t, db, p.ID, "x@example.com", "Xavier")
	svc := analytics.New(db)

	tbl, err := svc.Export(context.Background(), "waitlist")
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := analytics.WriteCSV(&buf, tbl); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "ID,SKU,Product,Email") || !strings.Contains(lines[1], "x@example.com") {
		t.Errorf("csv = %q", buf.String())
	}

	buf.Reset()
	if err := analytics.WriteXLSX(&buf, tbl); err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	v, _ := f.GetCellValue("Waitlist", "D2")
	if v != "x@example.com" {
		t.Errorf("D2 = %q", v)
	}

	if _, err := svc.Export(context.Background(), "orders"); err == nil {
		t.Error("expected error for unknown export")
	}
}
