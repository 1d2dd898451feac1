package supplier

import (
	"context"
	"fmt"
	"strconv"

	"stockwatch/internal/license"
	"stockwatch/internal/notify"
	"stockwatch/internal/tokens"
	"stockwatch/internal/validation"
)

// SendRestockLink issues a one-click restock link for productID and emails it
// to the product's supplier.
func (s *Service) SendRestockLink(ctx context.Context, productID int64, f license.Features) (*tokens.Issued, error) {
	if err := f.Require(); err != nil {
		return nil, err
	}
	rec, err := s.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	p, err := s.Products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	expiry, days := s.linkExpiry(ctx)
	issued, err := s.Tokens.Issue(ctx, tokens.KindRestock, tokens.Scope{ProductID: productID, SupplierEmail: rec.SupplierEmail}, expiry)
	if err != nil {
		return nil, err
	}
	err = s.Notifier.Send(ctx, notify.TplSupplierRestockLink, rec.SupplierEmail, notify.Vars{
		"supplier_name": rec.SupplierName,
		"product_name":  p.Name,
		"product_sku":   p.SKU,
		"stock_qty":     strconv.Itoa(p.StockQty),
		"restock_link":  issued.URL,
		"expiry_days":   strconv.Itoa(days),
	}, f)
	if err != nil {
		return issued, fmt.Errorf("link issued but email failed: %w", err)
	}
	return issued, nil
}

// SendCSVLink issues a bulk upload link for email and sends it.
func (s *Service) SendCSVLink(ctx context.Context, email string, f license.Features) (*tokens.Issued, error) {
	if err := f.Require(); err != nil {
		return nil, err
	}
	email = validation.NormalizeEmail(email)
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "supplier_email", email)
	validation.ValidateEmail(ve, "supplier_email", email)
	if ve.HasErrors() {
		return nil, ve
	}
	expiry, days := s.linkExpiry(ctx)
	issued, err := s.Tokens.Issue(ctx, tokens.KindCSV, tokens.Scope{SupplierEmail: email}, expiry)
	if err != nil {
		return nil, err
	}
	err = s.Notifier.Send(ctx, notify.TplCSVUploadLink, email, notify.Vars{
		"upload_link": issued.URL,
		"expiry_days": strconv.Itoa(days),
	}, f)
	if err != nil {
		return issued, fmt.Errorf("link issued but email failed: %w", err)
	}
	return issued, nil
}
