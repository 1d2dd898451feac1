package waitlist

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"stockwatch/internal/database"
	"stockwatch/internal/license"
	"stockwatch/internal/models"
	"stockwatch/internal/notify"
	"stockwatch/internal/validation"
	"stockwatch/internal/websocket"
)

// RestockRequest describes one restock action.
type RestockRequest struct {
	ProductID int64
	// Quantity is added to the stock count. Zero only marks the product in stock.
	Quantity int
	Method   string
	IP       string
	Actor    string
	BatchID  string
}

// RestockResult summarises a restock and its notification fan-out.
type RestockResult struct {
	ProductID    int64  `json:"product_id"`
	Quantity     int    `json:"quantity"`
	NewStockQty  int    `json:"new_stock_qty"`
	Notified     int    `json:"notified"`
	EmailsFailed int    `json:"emails_failed"`
	LogID        int64  `json:"log_id"`
	Method       string `json:"method"`
}

// markBatch bounds the number of ids per UPDATE.
const markBatch = 500

// RestockAndNotify adds stock, emails every customer waiting at that moment,
// marks exactly those entries notified and appends one restock log entry.
//
// If the stock update fails nothing else happens. Email failures are logged
// and do not stop the marking or the log write. Customers who sign up while
// the fan-out runs stay unnotified until the next restock.
func (s *Service) RestockAndNotify(ctx context.Context, req RestockRequest, f license.Features) (*RestockResult, error) {
	ve := &validation.ValidationErrors{}
	validation.ValidateNonNegativeInt(ve, "quantity", req.Quantity)
	validation.ValidateMaxQuantity(ve, "quantity", req.Quantity)
	validation.RequireField(ve, "method", req.Method)
	validation.ValidateEnum(ve, "method", req.Method, validation.ValidRestockMethods)
	if ve.HasErrors() {
		return nil, ve
	}
	if req.Actor == "" {
		req.Actor = "system"
	}

	ev, err := s.Products.Restock(ctx, req.ProductID, req.Quantity)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("restock product %d: %w", req.ProductID, err)
	}

	res := &RestockResult{ProductID: req.ProductID, Quantity: req.Quantity, NewStockQty: ev.NewQty, Method: req.Method}

	p, err := s.Products.Get(ctx, req.ProductID)
	if err != nil {
		log.Printf("waitlist: reload product %d after restock: %v", req.ProductID, err)
		p = &models.Product{ID: req.ProductID}
	}

	entries, err := s.unnotified(ctx, req.ProductID)
	if err != nil {
		log.Printf("waitlist: fetch waitlist for product %d: %v", req.ProductID, err)
	}

	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		err := s.Notifier.Send(ctx, notify.TplCustomerRestock, e.CustomerEmail, notify.Vars{
			"customer_name":  displayName(e.CustomerName),
			"customer_email": e.CustomerEmail,
			"product_name":   p.Name,
			"product_sku":    p.SKU,
			"product_url":    s.ProductURL(p),
			"stock_qty":      strconv.Itoa(ev.NewQty),
		}, f)
		if err != nil {
			res.EmailsFailed++
			log.Printf("waitlist: restock email to %s for product %d failed: %v", e.CustomerEmail, req.ProductID, err)
		}
		ids = append(ids, e.ID)
	}

	marked, err := s.markNotified(ctx, ids)
	if err != nil {
		log.Printf("waitlist: mark notified for product %d: %v", req.ProductID, err)
	}
	res.Notified = marked

	logRes, err := s.DB.ExecContext(ctx, "INSERT INTO restock_log (product_id, quantity, method, ip_address, actor, batch_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		req.ProductID, req.Quantity, req.Method, req.IP, req.Actor, req.BatchID, database.FormatTime(s.Now()))
	if err != nil {
		log.Printf("waitlist: restock log for product %d: %v", req.ProductID, err)
	} else {
		res.LogID, _ = logRes.LastInsertId()
	}

	s.Hub.Publish(websocket.EventRestocked, req.ProductID, res)
	log.Printf("waitlist: product %d restocked +%d via %s, %d notified (%d email failures)",
		req.ProductID, req.Quantity, req.Method, res.Notified, res.EmailsFailed)
	return res, nil
}

func (s *Service) markNotified(ctx context.Context, ids []int64) (int, error) {
	now := database.FormatTime(s.Now())
	total := 0
	for start := 0; start < len(ids); start += markBatch {
		end := start + markBatch
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		args := make([]any, 0, len(chunk)+1)
		args = append(args, now)
		for _, id := range chunk {
			args = append(args, id)
		}
		res, err := s.DB.ExecContext(ctx, "UPDATE waitlist_entries SET notified=1, notified_at=? WHERE notified=0 AND id IN ("+database.Placeholders(len(chunk))+")", args...)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	return total, nil
}

// RestockLog returns restock log entries, newest first. productID 0 lists all.
func (s *Service) RestockLog(ctx context.Context, productID int64, limit int) ([]models.RestockLogEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := "SELECT id, product_id, quantity, method, COALESCE(ip_address,''), COALESCE(actor,''), COALESCE(batch_id,''), created_at FROM restock_log"
	var args []any
	if productID > 0 {
		q += " WHERE product_id=?"
		args = append(args, productID)
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.RestockLogEntry{}
	for rows.Next() {
		var e models.RestockLogEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Quantity, &e.Method, &e.IPAddress, &e.Actor, &e.BatchID, &e.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
