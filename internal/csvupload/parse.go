// Package csvupload parses bulk restock spreadsheets and applies them.
package csvupload

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrMissingHeader is returned when the sku or quantity column is absent.
var ErrMissingHeader = errors.New("header row must contain the columns sku and quantity")

// MaxRows bounds a single upload.
const MaxRows = 5000

// Row is one parsed data row. Err is set when the row could not be read.
type Row struct {
	Line     int    `json:"line"`
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	Err      string `json:"error,omitempty"`
}

// Parse dispatches on the file extension (.csv or .xlsx).
func Parse(filename string, r io.Reader) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		return ParseXLSX(r)
	case ".csv", "":
		return ParseCSV(r)
	}
	return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(filename))
}

// ParseCSV reads a CSV whose header names (case-insensitively) the columns
// sku and quantity. Other columns are ignored.
func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return fromRecords(records)
}

// ParseXLSX reads the first sheet of a workbook with the same layout as ParseCSV.
func ParseXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrMissingHeader
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return fromRecords(records)
}

func fromRecords(records [][]string) ([]Row, error) {
	if len(records) == 0 {
		return nil, ErrMissingHeader
	}
	skuCol, qtyCol := -1, -1
	for i, h := range records[0] {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "sku":
			skuCol = i
		case "quantity", "qty":
			if qtyCol < 0 {
				qtyCol = i
			}
		}
	}
	if skuCol < 0 || qtyCol < 0 {
		return nil, ErrMissingHeader
	}
	if len(records)-1 > MaxRows {
		return nil, fmt.Errorf("too many rows: %d (max %d)", len(records)-1, MaxRows)
	}

	rows := make([]Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		row := Row{Line: i + 2}
		row.SKU = strings.TrimSpace(cell(rec, skuCol))
		raw := strings.TrimSpace(cell(rec, qtyCol))
		switch q, err := strconv.Atoi(raw); {
		case row.SKU == "":
			row.Err = "missing sku"
		case raw == "":
			row.Err = "missing quantity"
		case err != nil:
			row.Err = fmt.Sprintf("invalid quantity %q", raw)
		default:
			row.Quantity = q
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func cell(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
