package csvupload

import (
	"context"
	"errors"
	"fmt"
	"log"

	"stockwatch/internal/database"
	"stockwatch/internal/license"
	"stockwatch/internal/models"
	"stockwatch/internal/waitlist"
	"stockwatch/internal/websocket"

	"github.com/google/uuid"
)

// Row outcomes.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// RowResult is the outcome of one row.
type RowResult struct {
	Line     int    `json:"line"`
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
}

// Summary is always returned for a batch, whatever happened to its rows.
type Summary struct {
	BatchID string      `json:"batch_id"`
	Success int         `json:"success"`
	Skipped int         `json:"skipped"`
	Errors  int         `json:"errors"`
	Rows    []RowResult `json:"rows"`
}

// Messages returns the error lines, e.g. "line 3: BADSKU: product not found".
func (s *Summary) Messages() []string {
	out := []string{}
	for _, r := range s.Rows {
		if r.Status == StatusError {
			out = append(out, fmt.Sprintf("line %d: %s: %s", r.Line, r.SKU, r.Message))
		}
	}
	return out
}

// Options describe who runs the batch.
type Options struct {
	Method string
	IP     string
	Actor  string
}

// Processor restocks each resolvable row through the waitlist service.
type Processor struct {
	Products *database.ProductStore
	Waitlist *waitlist.Service
	Hub      *websocket.Hub
}

// Process applies rows. Unknown SKUs and failed restocks are errors,
// non-positive quantities are skipped; neither stops the batch.
func (p *Processor) Process(ctx context.Context, rows []Row, opts Options, f license.Features) *Summary {
	if opts.Method == "" {
		opts.Method = models.RestockCSVUpload
	}
	sum := &Summary{BatchID: uuid.NewString(), Rows: make([]RowResult, 0, len(rows))}

	for _, row := range rows {
		res := RowResult{Line: row.Line, SKU: row.SKU, Quantity: row.Quantity}
		switch {
		case row.Err != "":
			res.Status, res.Message = StatusError, row.Err
		case row.Quantity <= 0:
			res.Status, res.Message = StatusSkipped, "quantity must be positive"
		default:
			res.Status, res.Message = p.apply(ctx, row, opts, sum.BatchID, f)
		}
		switch res.Status {
		case StatusSuccess:
			sum.Success++
		case StatusSkipped:
			sum.Skipped++
		default:
			sum.Errors++
		}
		sum.Rows = append(sum.Rows, res)
	}

	p.Hub.Publish(websocket.EventBulkUpload, 0, map[string]any{
		"batch_id": sum.BatchID, "success": sum.Success, "skipped": sum.Skipped, "errors": sum.Errors,
	})
	log.Printf("csvupload: batch %s by %s: %d restocked, %d skipped, %d errors", sum.BatchID, opts.Actor, sum.Success, sum.Skipped, sum.Errors)
	return sum
}

func (p *Processor) apply(ctx context.Context, row Row, opts Options, batchID string, f license.Features) (string, string) {
	prod, err := p.Products.GetBySKU(ctx, row.SKU)
	if errors.Is(err, database.ErrNotFound) {
		return StatusError, "product not found"
	}
	if err != nil {
		log.Printf("csvupload: lookup %s: %v", row.SKU, err)
		return StatusError, "lookup failed"
	}
	res, err := p.Waitlist.RestockAndNotify(ctx, waitlist.RestockRequest{
		ProductID: prod.ID,
		Quantity:  row.Quantity,
		Method:    opts.Method,
		IP:        opts.IP,
		Actor:     opts.Actor,
		BatchID:   batchID,
	}, f)
	if err != nil {
		log.Printf("csvupload: restock %s: %v", row.SKU, err)
		return StatusError, "restock failed"
	}
	return StatusSuccess, fmt.Sprintf("stock now %d, %d customers notified", res.NewStockQty, res.Notified)
}
