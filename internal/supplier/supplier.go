// Package supplier stores per-product supplier contacts and decides when a
// supplier hears about low stock.
package supplier

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockwatch/internal/database"
	"stockwatch/internal/license"
	"stockwatch/internal/models"
	"stockwatch/internal/notify"
	"stockwatch/internal/tokens"
	"stockwatch/internal/validation"
	"stockwatch/internal/websocket"
)

// ErrNotFound is returned when a product has no supplier record.
var ErrNotFound = errors.New("no supplier configured for this product")

// DefaultThreshold applies when neither the record nor settings define one.
const DefaultThreshold = 5

// POGenerator creates and sends a purchase order with a suggested quantity.
type POGenerator interface {
	AutoGenerate(ctx context.Context, productID int64, f license.Features) (*models.PurchaseOrder, error)
}

// Service manages supplier records and low-stock alerts.
type Service struct {
	DB       *sql.DB
	Products *database.ProductStore
	Settings *database.Settings
	Notifier *notify.Notifier
	Channels notify.ChannelSender
	Tokens   *tokens.Service
	License  *license.Manager
	Hub      *websocket.Hub
	// PO is optional; without it auto-generated orders are skipped.
	PO  POGenerator
	Now func() time.Time
	// DefaultThreshold is used when the global_threshold setting is unset.
	DefaultThreshold int
}

// New creates a Service. Call products.Subscribe(svc) to receive stock events.
func New(db *sql.DB, products *database.ProductStore, settings *database.Settings, n *notify.Notifier,
	channels notify.ChannelSender, tok *tokens.Service, lic *license.Manager, hub *websocket.Hub) *Service {
	return &Service{
		DB:               db,
		Products:         products,
		Settings:         settings,
		Notifier:         n,
		Channels:         channels,
		Tokens:           tok,
		License:          lic,
		Hub:              hub,
		Now:              time.Now,
		DefaultThreshold: DefaultThreshold,
	}
}

const supplierCols = "product_id, COALESCE(supplier_name,''), supplier_email, COALESCE(supplier_phone,''), threshold, channels, auto_generate_po, alert_armed, last_alert_at, COALESCE(updated_at,'')"

func scanSupplier(row interface{ Scan(...any) error }) (*models.SupplierRecord, error) {
	var r models.SupplierRecord
	var threshold sql.NullInt64
	var channels string
	var autoPO, armed int
	var lastAlert sql.NullString
	err := row.Scan(&r.ProductID, &r.SupplierName, &r.SupplierEmail, &r.SupplierPhone, &threshold, &channels, &autoPO, &armed, &lastAlert, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if threshold.Valid {
		v := int(threshold.Int64)
		r.Threshold = &v
	}
	r.Channels = splitChannels(channels)
	r.AutoGeneratePO = autoPO == 1
	r.AlertArmed = armed == 1
	r.LastAlertAt = database.SP(lastAlert)
	return &r, nil
}

func splitChannels(s string) []string {
	out := []string{}
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Get returns the supplier record of productID.
func (s *Service) Get(ctx context.Context, productID int64) (*models.SupplierRecord, error) {
	return scanSupplier(s.DB.QueryRowContext(ctx, "SELECT "+supplierCols+" FROM suppliers WHERE product_id=?", productID))
}

// List returns every supplier record ordered by product.
func (s *Service) List(ctx context.Context) ([]models.SupplierRecord, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT "+supplierCols+" FROM suppliers ORDER BY product_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.SupplierRecord{}
	for rows.Next() {
		r, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *r)
	}
	return items, rows.Err()
}

// Validate checks a record before it is stored.
func Validate(r *models.SupplierRecord) *validation.ValidationErrors {
	ve := &validation.ValidationErrors{}
	if r.ProductID <= 0 {
		ve.Add("product_id", "is required")
	}
	validation.RequireField(ve, "supplier_email", r.SupplierEmail)
	validation.ValidateEmail(ve, "supplier_email", r.SupplierEmail)
	validation.ValidateMaxLength(ve, "supplier_name", r.SupplierName, validation.MaxNameLength)
	validation.ValidatePhone(ve, "supplier_phone", r.SupplierPhone)
	if r.Threshold != nil {
		validation.ValidateNonNegativeInt(ve, "threshold", *r.Threshold)
	}
	validation.ValidateEnumList(ve, "channels", r.Channels, validation.ValidChannels)
	if (r.HasChannel(models.ChannelSMS) || r.HasChannel(models.ChannelWhatsApp)) && r.SupplierPhone == "" {
		ve.Add("supplier_phone", "is required for SMS and WhatsApp alerts")
	}
	return ve
}

// Upsert creates or replaces the supplier record of r.ProductID. The alert
// state of an existing record is kept.
func (s *Service) Upsert(ctx context.Context, r *models.SupplierRecord) error {
	r.SupplierEmail = validation.NormalizeEmail(r.SupplierEmail)
	r.SupplierName = strings.TrimSpace(r.SupplierName)
	r.SupplierPhone = strings.TrimSpace(r.SupplierPhone)
	if len(r.Channels) == 0 {
		r.Channels = []string{models.ChannelEmail}
	}
	if ve := Validate(r); ve.HasErrors() {
		return ve
	}
	if _, err := s.Products.Get(ctx, r.ProductID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("product %d: %w", r.ProductID, database.ErrNotFound)
		}
		return err
	}

	var threshold any
	if r.Threshold != nil {
		threshold = *r.Threshold
	}
	autoPO := 0
	if r.AutoGeneratePO {
		autoPO = 1
	}
	now := database.FormatTime(s.Now())
	_, err := s.DB.ExecContext(ctx, `INSERT INTO suppliers (product_id, supplier_name, supplier_email, supplier_phone, threshold, channels, auto_generate_po, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(product_id) DO UPDATE SET supplier_name=excluded.supplier_name, supplier_email=excluded.supplier_email,
			supplier_phone=excluded.supplier_phone, threshold=excluded.threshold, channels=excluded.channels,
			auto_generate_po=excluded.auto_generate_po, updated_at=excluded.updated_at`,
		r.ProductID, r.SupplierName, r.SupplierEmail, r.SupplierPhone, threshold, strings.Join(r.Channels, ","), autoPO, now)
	if err != nil {
		return fmt.Errorf("upsert supplier: %w", err)
	}
	r.UpdatedAt = now
	return nil
}

// Delete removes the supplier record of productID.
func (s *Service) Delete(ctx context.Context, productID int64) error {
	res, err := s.DB.ExecContext(ctx, "DELETE FROM suppliers WHERE product_id=?", productID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GlobalThreshold is the threshold for records without an override.
func (s *Service) GlobalThreshold(ctx context.Context) int {
	return s.Settings.GetInt(ctx, database.KeyGlobalThreshold, s.DefaultThreshold)
}

// EffectiveThreshold returns the record's override or the global default.
func (s *Service) EffectiveThreshold(ctx context.Context, r *models.SupplierRecord) int {
	if r.Threshold != nil {
		return *r.Threshold
	}
	return s.GlobalThreshold(ctx)
}

func (s *Service) features(ctx context.Context) license.Features {
	if f, ok := license.FromContext(ctx); ok {
		return f
	}
	if s.License != nil {
		return s.License.Resolve(ctx)
	}
	return license.Free
}

// linkExpiry reads the configured lifetime of supplier links.
func (s *Service) linkExpiry(ctx context.Context) (time.Duration, int) {
	days := s.Settings.GetInt(ctx, database.KeyTokenExpiryDays, int(tokens.DefaultExpiry/(24*time.Hour)))
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour, days
}
