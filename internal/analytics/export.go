package analytics

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// Table is an export ready for CSV or XLSX encoding.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]string
}

// Export loads the named dataset: "waitlist" or "restocks".
func (s *Service) Export(ctx context.Context, kind string) (*Table, error) {
	switch kind {
	case "waitlist":
		return s.exportWaitlist(ctx)
	case "restocks":
		return s.exportRestocks(ctx)
	}
	return nil, fmt.Errorf("unknown export %q", kind)
}

func (s *Service) exportWaitlist(ctx context.Context) (*Table, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT w.id, p.sku, p.name, w.customer_email, COALESCE(w.customer_name,''),
			w.date_added, w.notified, COALESCE(w.notified_at,'')
		FROM waitlist_entries w JOIN products p ON p.id = w.product_id
		ORDER BY w.date_added DESC, w.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	t := &Table{Name: "Waitlist", Headers: []string{"ID", "SKU", "Product", "Email", "Name", "Date Added", "Notified", "Notified At"}}
	for rows.Next() {
		var id int64
		var sku, name, email, customer, added, notifiedAt string
		var notified bool
		if err := rows.Scan(&id, &sku, &name, &email, &customer, &added, &notified, &notifiedAt); err != nil {
			return nil, err
		}
		t.Rows = append(t.Rows, []string{strconv.FormatInt(id, 10), sku, name, email, customer, added, yesNo(notified), notifiedAt})
	}
	return t, rows.Err()
}

func (s *Service) exportRestocks(ctx context.Context) (*Table, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT r.id, COALESCE(p.sku,''), COALESCE(p.name,''), r.quantity, r.method,
			COALESCE(r.actor,''), COALESCE(r.ip_address,''), COALESCE(r.batch_id,''), r.created_at
		FROM restock_log r LEFT JOIN products p ON p.id = r.product_id
		ORDER BY r.created_at DESC, r.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	t := &Table{Name: "Restocks", Headers: []string{"ID", "SKU", "Product", "Quantity", "Method", "Actor", "IP Address", "Batch", "Date"}}
	for rows.Next() {
		var id int64
		var qty int
		var sku, name, method, actor, ip, batch, created string
		if err := rows.Scan(&id, &sku, &name, &qty, &method, &actor, &ip, &batch, &created); err != nil {
			return nil, err
		}
		t.Rows = append(t.Rows, []string{strconv.FormatInt(id, 10), sku, name, strconv.Itoa(qty), method, actor, ip, batch, created})
	}
	return t, rows.Err()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// WriteCSV encodes t as CSV with a header row.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX encodes t as a single-sheet workbook with a bold header row.
func WriteXLSX(w io.Writer, t *Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := t.Name
	index, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	if sheet != "Sheet1" {
		f.DeleteSheet("Sheet1")
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	for i, h := range t.Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, headerStyle)
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, 18)
	}
	for r, row := range t.Rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			f.SetCellValue(sheet, cell, v)
		}
	}
	return f.Write(w)
}
