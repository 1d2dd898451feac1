package purchasing_test

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"stockwatch/internal/database"
	"stockwatch/internal/license"
	"stockwatch/internal/notify"
	"stockwatch/internal/purchasing"
	"stockwatch/internal/supplier"
	"stockwatch/internal/testutil"
	"stockwatch/internal/tokens"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestSuggestFor(t *testing.T) {
	tests := []struct{ count, want int }{
		{0, 10}, {1, 10}, {4, 10}, {5, 10}, {6, 12}, {8, 16}, {50, 100},
	}
	for _, tt := range tests {
		if got := purchasing.SuggestFor(tt.count); got != tt.want {
			t.Errorf("SuggestFor(%d) = %d, want %d", tt.count, got, tt.want)
		}
	}
}

func newService(t *testing.T, db *sql.DB, docs purchasing.DocumentStore) (*purchasing.Service, *notify.RecordingMailer) {
	t.Helper()
	settings := &database.Settings{DB: db}
	products := database.NewProductStore(db)
	mail := &notify.RecordingMailer{}
	n := notify.New(mail, settings)
	sup := supplier.New(db, products, settings, n, nil, tokens.New(db, "http://localhost"), nil, nil)
	return purchasing.New(db, products, sup, settings, n, docs, nil), mail
}

func TestNextPONumber_Sequential(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc, _ := newService(t, db, nil)
	ctx := context.Background()

	first, err := svc.NextPONumber(ctx, "PO", 2024, time.June)
	if err != nil {
		t.Fatal(err)
	}
	if first != "PO-202406-0001" {
		t.Errorf("first = %s", first)
	}
	second, _ := svc.NextPONumber(ctx, "PO", 2024, time.June)
	if second != "PO-202406-0002" {
		t.Errorf("second = %s", second)
	}
	other, _ := svc.NextPONumber(ctx, "PO", 2024, time.July)
	if other != "PO-202407-0001" {
		t.Errorf("new month = %s", other)
	}
	custom, _ := svc.NextPONumber(ctx, "ACME", 2024, time.June)
	if custom != "ACME-202406-0001" {
		t.Errorf("custom prefix = %s", custom)
	}
}

func TestNextPONumber_SeedsFromExistingOrders(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc, _ := newService(t, db, nil)
	_, err := db.Exec(`INSERT INTO purchase_orders (po_number, scope, seq, product_id, supplier_email, quantity, created_at)
		VALUES ('PO-202406-0006', 'PO-202406', 6, 1, 's@example.com', 10, '2024-06-01 00:00:00')`)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := svc.NextPONumber(context.Background(), "PO", 2024, time.June)
	if got != "PO-202406-0007" {
		t.Errorf("got %s, want PO-202406-0007", got)
	}
}

func TestNextPONumber_ConcurrentUnique(t *testing.T) {
	db := testutil.SetupFileDB(t)
	svc, _ := newService(t, db, nil)

	var mu sync.Mutex
	seen := map[string]bool{}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := svc.NextPONumber(context.Background(), "PO", 2024, time.June)
			if err != nil {
				t.Errorf("NextPONumber: %v", err)
				return
			}
			mu.Lock()
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != 20 {
		t.Errorf("expected 20 distinct numbers, got %d", len(seen))
	}
	if !seen["PO-202406-0020"] {
		t.Error("numbers are not contiguous")
	}
}

func TestGenerate_DecimalTotalsAndSuggestion(t *testing.T) {
	db := testutil.SetupTestDB(t)
	docs := &purchasing.LocalStore{Dir: t.TempDir()}
	svc, mail := newService(t, db, docs)
	svc.Now = func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	p := testutil.SeedProduct(t, db, "MUG-1", "Mug", "19.99", 0)
	testutil.SeedSupplier(t, db, p.ID, "acme@example.com", 5, "email")
	for _, e := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		testutil.SeedWaitlist(t, db, p.ID, e+"@example.com", "")
	}

	if _, err := svc.Generate(ctx, purchasing.GenerateRequest{ProductID: p.ID}, license.Free); !errors.Is(err, license.ErrProRequired) {
		t.Fatalf("expected ErrProRequired, got %v", err)
	}

	po, err := svc.Generate(ctx, purchasing.GenerateRequest{ProductID: p.ID}, license.Pro)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if po.PONumber != "PO-202406-0001" || po.Quantity != 16 {
		t.Errorf("po = %+v", po)
	}
	if po.UnitPrice != "19.99" || po.TotalAmount != "319.84" {
		t.Errorf("money = %s x %d = %s", po.UnitPrice, po.Quantity, po.TotalAmount)
	}
	doc, err := svc.Document(ctx, po.PONumber)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(doc, []byte("PO-202406-0001")) || !bytes.Contains(doc, []byte("319.84")) {
		t.Error("document missing number or total")
	}
	if len(mail.Messages()) != 0 {
		t.Error("draft must not be emailed")
	}

	override, err := svc.Generate(ctx, purchasing.GenerateRequest{ProductID: p.ID, Quantity: 3, UnitPrice: "2.50", Send: true}, license.Pro)
	if err != nil {
		t.Fatal(err)
	}
	if override.PONumber != "PO-202406-0002" || override.TotalAmount != "7.50" || override.Status != "sent" {
		t.Errorf("override = %+v", override)
	}
	msgs := mail.To("acme@example.com")
	if len(msgs) != 1 || len(msgs[0].Attachments) != 1 || msgs[0].Attachments[0].Filename != "PO-202406-0002.html" {
		t.Fatalf("expected PO email with attachment, got %+v", msgs)
	}
	if !strings.Contains(msgs[0].Subject, "PO-202406-0002") {
		t.Errorf("subject = %q", msgs[0].Subject)
	}
	stored, _ := svc.Get(ctx, "PO-202406-0002")
	if stored.Status != "sent" {
		t.Errorf("status = %s", stored.Status)
	}
	list, _ := svc.List(ctx, p.ID, 0)
	if len(list) != 2 {
		t.Errorf("list = %d", len(list))
	}
}

func TestGenerate_RequiresSupplier(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc, _ := newService(t, db, nil)
	p := testutil.SeedProduct(t, db, "MUG-1", "Mug", "1", 0)
	if _, err := svc.Generate(context.Background(), purchasing.GenerateRequest{ProductID: p.ID}, license.Pro); !errors.Is(err, supplier.ErrNotFound) {
		t.Errorf("expected supplier.ErrNotFound, got %v", err)
	}
	if n := testutil.CountRows(t, db, "purchase_orders", ""); n != 0 {
		t.Errorf("no PO expected, got %d", n)
	}
}

func TestUpdateStatus(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc, _ := newService(t, db, nil)
	if err := svc.UpdateStatus(context.Background(), "PO-1", "shipped"); err == nil {
		t.Error("expected validation error")
	}
	if err := svc.UpdateStatus(context.Background(), "PO-1", "received"); !errors.Is(err, purchasing.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, _ := io.ReadAll(in.Body)
	f.objects[*in.Key] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[*in.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func TestS3Store_RoundTrip(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	store := &purchasing.S3Store{Client: fake, Bucket: "docs", Prefix: "stockwatch/"}
	ctx := context.Background()

	path, err := store.Put(ctx, "purchase-orders/PO-1.html", []byte("<html>"), "text/html")
	if err != nil {
		t.Fatal(err)
	}
	if path != "s3://docs/stockwatch/purchase-orders/PO-1.html" {
		t.Errorf("path = %s", path)
	}
	got, err := store.Get(ctx, path)
	if err != nil || string(got) != "<html>" {
		t.Errorf("get = %q, %v", got, err)
	}
	if _, err := store.Get(ctx, "s3://other/key"); err == nil {
		t.Error("expected error for foreign bucket")
	}
}

func TestLocalStore_RejectsTraversal(t *testing.T) {
	store := &purchasing.LocalStore{Dir: t.TempDir()}
	if _, err := store.Get(context.Background(), "../etc/passwd"); err == nil {
		t.Error("expected error")
	}
}

func TestGenerate_NumberScopeIsUTC(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc, _ := newService(t, db, &purchasing.LocalStore{Dir: t.TempDir()})
	// 20:00 on June 30 in New York is already July in UTC.
	svc.Now = func() time.Time { return time.Date(2024, 6, 30, 20, 0, 0, 0, time.FixedZone("EDT", -4*3600)) }
	p := testutil.SeedProduct(t, db, "MUG-1", "Mug", "2.00", 0)
	testutil.SeedSupplier(t, db, p.ID, "acme@example.com", 5, "email")

	po, err := svc.Generate(context.Background(), purchasing.GenerateRequest{ProductID: p.ID, Quantity: 1}, license.Pro)
	if err != nil {
		t.Fatal(err)
	}
	if po.PONumber != "PO-202407-0001" || !strings.HasPrefix(po.CreatedAt, "2024-07-01") {
		t.Errorf("number %s created %s", po.PONumber, po.CreatedAt)
	}
}
