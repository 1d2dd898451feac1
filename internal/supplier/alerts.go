package supplier

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"

	"stockwatch/internal/database"
	"stockwatch/internal/license"
	"stockwatch/internal/models"
	"stockwatch/internal/notify"
	"stockwatch/internal/tokens"
	"stockwatch/internal/websocket"
)

// AlertResult reports what one alert delivered.
type AlertResult struct {
	ProductID   int64    `json:"product_id"`
	StockQty    int      `json:"stock_qty"`
	Threshold   int      `json:"threshold"`
	Delivered   []string `json:"delivered"`
	Failed      []string `json:"failed"`
	Skipped     []string `json:"skipped"`
	RestockLink bool     `json:"restock_link"`
	PONumber    string   `json:"po_number,omitempty"`
}

// OnStockChanged implements database.StockObserver.
func (s *Service) OnStockChanged(ctx context.Context, ev database.StockEvent) {
	s.evaluate(ctx, ev.ProductID, ev.NewQty, s.features(ctx))
}

// CheckProduct runs the low-stock check against the current stock of
// productID. Used when new demand arrives without a stock change.
func (s *Service) CheckProduct(ctx context.Context, productID int64, f license.Features) {
	p, err := s.Products.Get(ctx, productID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			log.Printf("supplier: check product %d: %v", productID, err)
		}
		return
	}
	s.evaluate(ctx, productID, p.StockQty, f)
}

// evaluate alerts once per downward crossing of the threshold. Rising above
// the threshold re-arms the alert.
func (s *Service) evaluate(ctx context.Context, productID int64, qty int, f license.Features) *AlertResult {
	rec, err := s.Get(ctx, productID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("supplier: load record for product %d: %v", productID, err)
		}
		return nil
	}
	threshold := s.EffectiveThreshold(ctx, rec)

	if qty > threshold {
		if !rec.AlertArmed {
			if _, err := s.DB.ExecContext(ctx, "UPDATE suppliers SET alert_armed=1 WHERE product_id=?", productID); err != nil {
				log.Printf("supplier: re-arm product %d: %v", productID, err)
			}
		}
		return nil
	}

	res, err := s.DB.ExecContext(ctx, "UPDATE suppliers SET alert_armed=0, last_alert_at=? WHERE product_id=? AND alert_armed=1",
		database.FormatTime(s.Now()), productID)
	if err != nil {
		log.Printf("supplier: disarm product %d: %v", productID, err)
		return nil
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return nil
	}
	return s.dispatch(ctx, rec, qty, threshold, f)
}

func (s *Service) dispatch(ctx context.Context, rec *models.SupplierRecord, qty, threshold int, f license.Features) *AlertResult {
	out := &AlertResult{ProductID: rec.ProductID, StockQty: qty, Threshold: threshold}

	p, err := s.Products.Get(ctx, rec.ProductID)
	if err != nil {
		log.Printf("supplier: load product %d for alert: %v", rec.ProductID, err)
		return out
	}

	vars := notify.Vars{
		"supplier_name": rec.SupplierName,
		"product_name":  p.Name,
		"product_sku":   p.SKU,
		"stock_qty":     strconv.Itoa(qty),
		"threshold":     strconv.Itoa(threshold),
	}
	if f.Pro && s.Tokens != nil {
		expiry, days := s.linkExpiry(ctx)
		issued, err := s.Tokens.Issue(ctx, tokens.KindRestock, tokens.Scope{ProductID: rec.ProductID, SupplierEmail: rec.SupplierEmail}, expiry)
		if err != nil {
			log.Printf("supplier: issue restock link for product %d: %v", rec.ProductID, err)
		} else {
			vars["restock_link"] = issued.URL
			vars["expiry_days"] = strconv.Itoa(days)
			out.RestockLink = true
		}
	}

	for _, ch := range rec.Channels {
		switch ch {
		case models.ChannelEmail:
			if err := s.Notifier.Send(ctx, notify.TplSupplierAlert, rec.SupplierEmail, vars, f); err != nil {
				log.Printf("supplier: alert email to %s failed: %v", rec.SupplierEmail, err)
				out.Failed = append(out.Failed, ch)
				continue
			}
			out.Delivered = append(out.Delivered, ch)
		case models.ChannelSMS, models.ChannelWhatsApp:
			if !f.Pro || s.Channels == nil {
				out.Skipped = append(out.Skipped, ch)
				continue
			}
			payload, err := s.shortMessage(ctx, vars, f)
			if err == nil {
				err = s.Channels.SendChannelMessage(ctx, ch, rec.SupplierPhone, payload)
			}
			if err != nil {
				log.Printf("supplier: %s alert to %s failed: %v", ch, rec.SupplierPhone, err)
				out.Failed = append(out.Failed, ch)
				continue
			}
			out.Delivered = append(out.Delivered, ch)
		}
	}

	if rec.AutoGeneratePO && f.Pro && s.PO != nil {
		po, err := s.PO.AutoGenerate(ctx, rec.ProductID, f)
		if err != nil {
			log.Printf("supplier: auto purchase order for product %d failed: %v", rec.ProductID, err)
		} else {
			out.PONumber = po.PONumber
		}
	}

	s.Hub.Publish(websocket.EventSupplierAlert, rec.ProductID, out)
	log.Printf("supplier: product %d at %d (threshold %d) alerted via %v", rec.ProductID, qty, threshold, out.Delivered)
	return out
}

// shortMessage is the alert subject plus the restock link, for SMS and
// WhatsApp.
func (s *Service) shortMessage(ctx context.Context, vars notify.Vars, f license.Features) (string, error) {
	r, err := s.Notifier.Render(ctx, notify.TplSupplierAlert, vars, f)
	if err != nil {
		return "", err
	}
	msg := r.Subject
	if link := vars["restock_link"]; link != "" && f.Pro {
		msg += " Restock: " + link
	}
	return strings.TrimSpace(msg), nil
}
