// Package purchasing generates, stores and sends purchase orders.
package purchasing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"stockwatch/internal/database"
	"stockwatch/internal/license"
	"stockwatch/internal/models"
	"stockwatch/internal/notify"
	"stockwatch/internal/supplier"
	"stockwatch/internal/validation"
	"stockwatch/internal/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned for an unknown PO number.
var ErrNotFound = errors.New("purchase order not found")

// Service generates purchase orders.
type Service struct {
	DB        *sql.DB
	Products  *database.ProductStore
	Suppliers *supplier.Service
	Settings  *database.Settings
	Notifier  *notify.Notifier
	Docs      DocumentStore
	Hub       *websocket.Hub
	Now       func() time.Time
}

// New creates a Service.
func New(db *sql.DB, products *database.ProductStore, suppliers *supplier.Service, settings *database.Settings,
	n *notify.Notifier, docs DocumentStore, hub *websocket.Hub) *Service {
	return &Service{DB: db, Products: products, Suppliers: suppliers, Settings: settings, Notifier: n, Docs: docs, Hub: hub, Now: time.Now}
}

// SuggestQuantity returns SuggestFor the product's unnotified waitlist.
func (s *Service) SuggestQuantity(ctx context.Context, productID int64) (int, error) {
	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM waitlist_entries WHERE product_id=? AND notified=0", productID).Scan(&count); err != nil {
		return 0, err
	}
	return SuggestFor(count), nil
}

// GenerateRequest asks for a new purchase order. Zero Quantity uses the
// suggestion; empty UnitPrice uses the product price.
type GenerateRequest struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Send      bool   `json:"send"`
}

// Generate creates a draft purchase order and its document.
func (s *Service) Generate(ctx context.Context, req GenerateRequest, f license.Features) (*models.PurchaseOrder, error) {
	if err := f.Require(); err != nil {
		return nil, err
	}
	ve := &validation.ValidationErrors{}
	validation.ValidateNonNegativeInt(ve, "quantity", req.Quantity)
	validation.ValidateMaxQuantity(ve, "quantity", req.Quantity)
	var price decimal.Decimal
	if req.UnitPrice != "" {
		p, err := decimal.NewFromString(req.UnitPrice)
		if err != nil || p.IsNegative() {
			ve.Add("unit_price", "must be a non-negative decimal")
		}
		price = p
	}
	if ve.HasErrors() {
		return nil, ve
	}

	p, err := s.Products.Get(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	sup, err := s.Suppliers.Get(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	qty := req.Quantity
	if qty == 0 {
		if qty, err = s.SuggestQuantity(ctx, req.ProductID); err != nil {
			return nil, err
		}
	}
	if req.UnitPrice == "" {
		if price, err = decimal.NewFromString(p.Price); err != nil {
			price = decimal.Zero
		}
	}
	total := price.Mul(decimal.NewFromInt(int64(qty)))

	now := s.Now().UTC()
	prefix := s.Settings.Get(ctx, database.KeyPOPrefix, DefaultPrefix)
	number, err := s.NextPONumber(ctx, prefix, now.Year(), now.Month())
	if err != nil {
		return nil, err
	}
	scope, seq := splitNumber(number)

	po := &models.PurchaseOrder{
		PONumber:      number,
		Scope:         scope,
		Seq:           seq,
		ProductID:     p.ID,
		SupplierEmail: sup.SupplierEmail,
		Quantity:      qty,
		UnitPrice:     price.StringFixed(2),
		TotalAmount:   total.StringFixed(2),
		Status:        "draft",
		CreatedAt:     database.FormatTime(now),
	}

	site := s.Settings.Get(ctx, database.KeySiteName, notify.DefaultSiteName)
	doc, err := RenderDocument(site, po, p, sup)
	if err != nil {
		return nil, fmt.Errorf("render po document: %w", err)
	}
	if s.Docs != nil {
		key := fmt.Sprintf("purchase-orders/%s-%s.html", number, uuid.NewString()[:8])
		path, err := s.Docs.Put(ctx, key, doc, "text/html; charset=utf-8")
		if err != nil {
			return nil, err
		}
		po.PDFPath = path
	}

	_, err = s.DB.ExecContext(ctx, `INSERT INTO purchase_orders (po_number, scope, seq, product_id, supplier_email, quantity, unit_price, total_amount, status, document_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		po.PONumber, po.Scope, po.Seq, po.ProductID, po.SupplierEmail, po.Quantity, po.UnitPrice, po.TotalAmount, po.Status, po.PDFPath, po.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert purchase order: %w", err)
	}

	s.Hub.Publish(websocket.EventPOGenerated, p.ID, map[string]any{"po_number": po.PONumber, "quantity": qty})
	log.Printf("purchasing: generated %s for product %d (%d units, total %s)", po.PONumber, p.ID, qty, po.TotalAmount)

	if req.Send {
		if err := s.Send(ctx, po.PONumber, f); err != nil {
			return po, err
		}
		po.Status = "sent"
	}
	return po, nil
}

// AutoGenerate creates a purchase order with the suggested quantity and
// emails it. It satisfies supplier.POGenerator.
func (s *Service) AutoGenerate(ctx context.Context, productID int64, f license.Features) (*models.PurchaseOrder, error) {
	return s.Generate(ctx, GenerateRequest{ProductID: productID, Send: true}, f)
}

// Send emails the purchase order document to its supplier and marks it sent.
func (s *Service) Send(ctx context.Context, number string, f license.Features) error {
	if err := f.Require(); err != nil {
		return err
	}
	po, err := s.Get(ctx, number)
	if err != nil {
		return err
	}
	p, err := s.Products.Get(ctx, po.ProductID)
	if err != nil {
		return err
	}
	sup, err := s.Suppliers.Get(ctx, po.ProductID)
	if err != nil && !errors.Is(err, supplier.ErrNotFound) {
		return err
	}
	name := ""
	if sup != nil {
		name = sup.SupplierName
	}

	doc, err := s.Document(ctx, number)
	if err != nil {
		return err
	}
	err = s.Notifier.Send(ctx, notify.TplPurchaseOrder, po.SupplierEmail, notify.Vars{
		"supplier_name": name,
		"product_name":  p.Name,
		"product_sku":   p.SKU,
		"po_number":     po.PONumber,
		"quantity":      strconv.Itoa(po.Quantity),
	}, f, notify.Attachment{Filename: po.PONumber + ".html", ContentType: "text/html", Data: doc})
	if err != nil {
		return fmt.Errorf("email purchase order %s: %w", number, err)
	}
	if _, err := s.DB.ExecContext(ctx, "UPDATE purchase_orders SET status='sent' WHERE po_number=? AND status='draft'", number); err != nil {
		log.Printf("purchasing: mark %s sent: %v", number, err)
	}
	return nil
}

// Document returns the stored document of a purchase order, rendering it
// again when no store is configured.
func (s *Service) Document(ctx context.Context, number string) ([]byte, error) {
	po, err := s.Get(ctx, number)
	if err != nil {
		return nil, err
	}
	if po.PDFPath != "" && s.Docs != nil {
		return s.Docs.Get(ctx, po.PDFPath)
	}
	p, err := s.Products.Get(ctx, po.ProductID)
	if err != nil {
		return nil, err
	}
	sup, err := s.Suppliers.Get(ctx, po.ProductID)
	if err != nil {
		sup = &models.SupplierRecord{SupplierEmail: po.SupplierEmail}
	}
	return RenderDocument(s.Settings.Get(ctx, database.KeySiteName, notify.DefaultSiteName), po, p, sup)
}

// UpdateStatus records an informational status change.
func (s *Service) UpdateStatus(ctx context.Context, number, status string) error {
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "status", status)
	validation.ValidateEnum(ve, "status", status, validation.ValidPOStatuses)
	if ve.HasErrors() {
		return ve
	}
	res, err := s.DB.ExecContext(ctx, "UPDATE purchase_orders SET status=? WHERE po_number=?", status, number)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const poCols = "po_number, scope, seq, product_id, supplier_email, quantity, unit_price, total_amount, status, COALESCE(document_path,''), created_at"

func scanPO(row interface{ Scan(...any) error }) (*models.PurchaseOrder, error) {
	var po models.PurchaseOrder
	err := row.Scan(&po.PONumber, &po.Scope, &po.Seq, &po.ProductID, &po.SupplierEmail, &po.Quantity, &po.UnitPrice, &po.TotalAmount, &po.Status, &po.PDFPath, &po.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &po, nil
}

func (s *Service) Get(ctx context.Context, number string) (*models.PurchaseOrder, error) {
	return scanPO(s.DB.QueryRowContext(ctx, "SELECT "+poCols+" FROM purchase_orders WHERE po_number=?", number))
}

// List returns purchase orders, newest first. productID 0 lists all.
func (s *Service) List(ctx context.Context, productID int64, limit int) ([]models.PurchaseOrder, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := "SELECT " + poCols + " FROM purchase_orders"
	var args []any
	if productID > 0 {
		q += " WHERE product_id=?"
		args = append(args, productID)
	}
	q += " ORDER BY created_at DESC, seq DESC LIMIT ?"
	args = append(args, limit)
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.PurchaseOrder{}
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *po)
	}
	return items, rows.Err()
}

func splitNumber(number string) (string, int) {
	i := strings.LastIndex(number, "-")
	if i < 0 {
		return number, 0
	}
	seq, _ := strconv.Atoi(number[i+1:])
	return number[:i], seq
}
