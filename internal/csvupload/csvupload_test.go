package csvupload_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"stockwatch/internal/csvupload"
	"stockwatch/internal/database"
	"stockwatch/internal/license"
	"stockwatch/internal/notify"
	"stockwatch/internal/testutil"
	"stockwatch/internal/waitlist"

	"github.com/xuri/excelize/v2"
)

func TestParseCSV_HeaderIsCaseInsensitive(t *testing.T) {
	rows, err := csvupload.ParseCSV(strings.NewReader("Name,SKU,Quantity\nMug,MUG-1,10\n\n,,\nCup,CUP-1,abc\nPlate,,3\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].SKU != "MUG-1" || rows[0].Quantity != 10 || rows[0].Err != "" || rows[0].Line != 2 {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].Err == "" || rows[2].Err != "missing sku" {
		t.Errorf("expected row errors, got %+v %+v", rows[1], rows[2])
	}
}

func TestParseCSV_MissingHeader(t *testing.T) {
	for _, in := range []string{"", "sku,amount\nA,1\n", "10,20\n"} {
		if _, err := csvupload.ParseCSV(strings.NewReader(in)); !errors.Is(err, csvupload.ErrMissingHeader) {
			t.Errorf("%q: expected ErrMissingHeader, got %v", in, err)
		}
	}
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	f.SetSheetRow(sheet, "A1", &[]any{"sku", "quantity"})
	f.SetSheetRow(sheet, "A2", &[]any{"MUG-1", 4})
	f.SetSheetRow(sheet, "A3", &[]any{"CUP-1", 0})
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}

	rows, err := csvupload.Parse("stock.xlsx", &buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].SKU != "MUG-1" || rows[0].Quantity != 4 || rows[1].Quantity != 0 {
		t.Errorf("rows = %+v", rows)
	}
	if _, err := csvupload.Parse("stock.pdf", strings.NewReader("x")); err == nil {
		t.Error("expected unsupported type error")
	}
}

func TestProcess_MixedBatch(t *testing.T) {
	db := testutil.SetupTestDB(t)
	settings := &database.Settings{DB: db}
	products := database.NewProductStore(db)
	mail := &notify.RecordingMailer{}
	wl := waitlist.New(db, products, notify.New(mail, settings), nil, nil, "http://localhost")
	proc := &csvupload.Processor{Products: products, Waitlist: wl}

	sku1 := testutil.SeedProduct(t, db, "SKU1", "One", "1", 0)
	sku2 := testutil.SeedProduct(t, db, "SKU2", "Two", "1", 0)
	testutil.SeedWaitlist(t, db, sku1.ID, "a@example.com", "")

	rows, err := csvupload.ParseCSV(strings.NewReader("sku,quantity\nSKU1,10\nBADSKU,5\nSKU2,0\n"))
	if err != nil {
		t.Fatal(err)
	}
	sum := proc.Process(context.Background(), rows, csvupload.Options{Actor: "supplier:s@example.com", IP: "10.0.0.9"}, license.Pro)

	if sum.Success != 1 || sum.Skipped != 1 || sum.Errors != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.Rows[1].Status != csvupload.StatusError || sum.Rows[1].Message != "product not found" {
		t.Errorf("BADSKU row = %+v", sum.Rows[1])
	}
	if msgs := sum.Messages(); len(msgs) != 1 || !strings.Contains(msgs[0], "BADSKU") {
		t.Errorf("messages = %v", msgs)
	}

	got, _ := products.Get(context.Background(), sku1.ID)
	if got.StockQty != 10 {
		t.Errorf("SKU1 stock = %d", got.StockQty)
	}
	got, _ = products.Get(context.Background(), sku2.ID)
	if got.StockQty != 0 || got.StockStatus != "outofstock" {
		t.Errorf("SKU2 must be untouched, got %+v", got)
	}
	if n := testutil.CountRows(t, db, "restock_log", "method='csv_upload' AND batch_id=? AND actor='supplier:s@example.com'", sum.BatchID); n != 1 {
		t.Errorf("restock log rows = %d", n)
	}
	if len(mail.To("a@example.com")) != 1 {
		t.Error("waitlisted customer of SKU1 should be notified")
	}
}
