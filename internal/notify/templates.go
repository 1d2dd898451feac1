package notify

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"

	"stockwatch/internal/database"
	"stockwatch/internal/license"
)

// Template names.
const (
	TplCustomerRestock      = "customer_restock"
	TplWaitlistConfirmation = "waitlist_confirmation"
	TplSupplierAlert        = "supplier_alert"
	TplSupplierRestockLink  = "supplier_restock_link"
	TplCSVUploadLink        = "csv_upload_link"
	TplPurchaseOrder        = "purchase_order"
)

// Vars maps placeholder names (without braces) to values.
type Vars map[string]string

// proPlaceholders resolve to "" when the Pro gate is closed.
var proPlaceholders = []string{"restock_link", "upload_link", "po_number"}

// Template is a stored subject/body pair.
type Template struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

var defaults = map[string]Template{
	TplCustomerRestock: {
		Subject: "{product_name} is back in stock!",
		Body: "Hi {customer_name},\n\nGood news: {product_name} is back in stock at {site_name}.\n\n" +
			"Grab yours before it sells out again: {product_url}\n\nThanks for waiting!",
	},
	TplWaitlistConfirmation: {
		Subject: "You're on the waitlist for {product_name}",
		Body:    "Hi {customer_name},\n\nWe'll email you at {customer_email} as soon as {product_name} is back in stock.",
	},
	TplSupplierAlert: {
		Subject: "Low stock: {product_name} ({product_sku})",
		Body: "Hello {supplier_name},\n\nStock for {product_name} ({product_sku}) is down to {stock_qty} " +
			"(threshold {threshold}).\n\nRestock in one click: {restock_link}",
	},
	TplSupplierRestockLink: {
		Subject: "Restock link for {product_name}",
		Body: "Hello {supplier_name},\n\nUse this link to report a restock of {product_name} ({product_sku}):\n{restock_link}\n\n" +
			"The link can be used once and expires in {expiry_days} days.",
	},
	TplCSVUploadLink: {
		Subject: "Bulk restock upload for {site_name}",
		Body: "Hello,\n\nUpload a CSV with the columns sku,quantity here:\n{upload_link}\n\n" +
			"The link can be used once and expires in {expiry_days} days.",
	},
	TplPurchaseOrder: {
		Subject: "Purchase order {po_number} from {site_name}",
		Body: "Hello {supplier_name},\n\nPlease find attached purchase order {po_number} for {quantity} x {product_name} ({product_sku}).\n\n" +
			"Regards,\n{site_name}",
	},
}

// TemplateNames returns every known template name, sorted.
func TemplateNames() []string {
	names := make([]string, 0, len(defaults))
	for n := range defaults {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// TemplateStore keeps user-edited templates in the settings table.
type TemplateStore struct {
	Settings *database.Settings
}

func subjectKey(name string) string { return "template_" + name + "_subject" }
func bodyKey(name string) string    { return "template_" + name + "_body" }

// Get returns the stored template or the built-in default.
func (s *TemplateStore) Get(ctx context.Context, name string) (Template, error) {
	def, ok := defaults[name]
	if !ok {
		return Template{}, fmt.Errorf("unknown template %q", name)
	}
	return Template{
		Name:    name,
		Subject: s.Settings.Get(ctx, subjectKey(name), def.Subject),
		Body:    s.Settings.Get(ctx, bodyKey(name), def.Body),
	}, nil
}

// All returns every template.
func (s *TemplateStore) All(ctx context.Context) ([]Template, error) {
	var out []Template
	for _, n := range TemplateNames() {
		t, err := s.Get(ctx, n)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Save stores an edited template.
func (s *TemplateStore) Save(ctx context.Context, t Template) error {
	if _, ok := defaults[t.Name]; !ok {
		return fmt.Errorf("unknown template %q", t.Name)
	}
	if strings.TrimSpace(t.Subject) == "" || strings.TrimSpace(t.Body) == "" {
		return fmt.Errorf("subject and body are required")
	}
	if err := s.Settings.Set(ctx, subjectKey(t.Name), t.Subject); err != nil {
		return err
	}
	return s.Settings.Set(ctx, bodyKey(t.Name), t.Body)
}

// Reset restores the built-in default.
func (s *TemplateStore) Reset(ctx context.Context, name string) error {
	if _, ok := defaults[name]; !ok {
		return fmt.Errorf("unknown template %q", name)
	}
	if err := s.Settings.Delete(ctx, subjectKey(name)); err != nil {
		return err
	}
	return s.Settings.Delete(ctx, bodyKey(name))
}

var placeholderRe = regexp.MustCompile(`\{[a-z0-9_]+\}`)

// Render replaces {name} placeholders with vars. Unknown placeholders are
// left as written.
func Render(tpl string, vars Vars) string {
	return placeholderRe.ReplaceAllStringFunc(tpl, func(m string) string {
		if v, ok := vars[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

// Gate blanks Pro-only placeholders when f is closed. vars is not modified.
func Gate(vars Vars, f license.Features) Vars {
	out := make(Vars, len(vars)+len(proPlaceholders))
	for k, v := range vars {
		out[k] = v
	}
	if !f.Pro {
		for _, k := range proPlaceholders {
			out[k] = ""
		}
	}
	return out
}

// escape returns a copy of vars safe to insert into HTML.
func escape(vars Vars) Vars {
	out := make(Vars, len(vars))
	for k, v := range vars {
		out[k] = html.EscapeString(v)
	}
	return out
}

// Layout wraps a rendered plain-text body in the standard HTML email shell.
func Layout(siteName, body string) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="UTF-8"><title>`)
	b.WriteString(html.EscapeString(siteName))
	b.WriteString(`</title></head><body style="font-family:-apple-system,'Segoe UI',Roboto,sans-serif;background:#f5f5f5;padding:20px">`)
	b.WriteString(`<div style="max-width:600px;margin:0 auto;background:#fff;border-radius:8px;padding:32px">`)
	b.WriteString(`<h2 style="margin-top:0">`)
	b.WriteString(html.EscapeString(siteName))
	b.WriteString(`</h2><div>`)
	b.WriteString(strings.ReplaceAll(body, "\n", "<br>\n"))
	b.WriteString(`</div><p style="color:#888;font-size:12px;margin-top:32px">Sent by `)
	b.WriteString(html.EscapeString(siteName))
	b.WriteString(`</p></div></body></html>`)
	return b.String()
}
