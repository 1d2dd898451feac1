package admin

import (
	"net/http"
	"strconv"
	"strings"

	"stockwatch/internal/audit"
	"stockwatch/internal/database"
	"stockwatch/internal/license"
	"stockwatch/internal/models"
	"stockwatch/internal/notify"
	"stockwatch/internal/response"
	"stockwatch/internal/server"
	"stockwatch/internal/validation"
)

// SettingsBody holds the runtime-editable settings. Nil fields are left alone.
type SettingsBody struct {
	SiteName        *string `json:"site_name"`
	GlobalThreshold *int    `json:"global_threshold"`
	TokenExpiryDays *int    `json:"token_expiry_days"`
	POPrefix        *string `json:"po_prefix"`
}

// Settings is the resolved view returned by GetSettings.
type Settings struct {
	SiteName        string `json:"site_name"`
	GlobalThreshold int    `json:"global_threshold"`
	TokenExpiryDays int    `json:"token_expiry_days"`
	POPrefix        string `json:"po_prefix"`
}

// GetSettings handles GET /api/v1/admin/settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	response.JSON(w, Settings{
		SiteName:        h.Settings.Get(ctx, database.KeySiteName, notify.DefaultSiteName),
		GlobalThreshold: h.Suppliers.GlobalThreshold(ctx),
		TokenExpiryDays: h.Settings.GetInt(ctx, database.KeyTokenExpiryDays, 7),
		POPrefix:        h.Settings.Get(ctx, database.KeyPOPrefix, "PO"),
	})
}

// UpdateSettings handles PUT /api/v1/admin/settings.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var body SettingsBody
	if err := response.DecodeBody(r, &body); err != nil {
		response.Err(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ve := &validation.ValidationErrors{}
	if body.SiteName != nil {
		*body.SiteName = strings.TrimSpace(*body.SiteName)
		validation.RequireField(ve, "site_name", *body.SiteName)
		validation.ValidateMaxLength(ve, "site_name", *body.SiteName, validation.MaxNameLength)
	}
	if body.GlobalThreshold != nil {
		validation.ValidateIntRange(ve, "global_threshold", *body.GlobalThreshold, 0, validation.MaxQuantity)
	}
	if body.TokenExpiryDays != nil {
		validation.ValidateIntRange(ve, "token_expiry_days", *body.TokenExpiryDays, 1, 90)
	}
	if body.POPrefix != nil {
		*body.POPrefix = strings.ToUpper(strings.TrimSpace(*body.POPrefix))
		validation.RequireField(ve, "po_prefix", *body.POPrefix)
		validation.ValidateSKU(ve, "po_prefix", *body.POPrefix)
		validation.ValidateMaxLength(ve, "po_prefix", *body.POPrefix, 10)
	}
	if ve.HasErrors() {
		writeError(w, ve)
		return
	}

	ctx := r.Context()
	updates := map[string]string{}
	if body.SiteName != nil {
		updates[database.KeySiteName] = *body.SiteName
	}
	if body.GlobalThreshold != nil {
		updates[database.KeyGlobalThreshold] = strconv.Itoa(*body.GlobalThreshold)
	}
	if body.TokenExpiryDays != nil {
		updates[database.KeyTokenExpiryDays] = strconv.Itoa(*body.TokenExpiryDays)
	}
	if body.POPrefix != nil {
		updates[database.KeyPOPrefix] = *body.POPrefix
	}
	var changed []string
	for k, v := range updates {
		if err := h.Settings.Set(ctx, k, v); err != nil {
			writeError(w, err)
			return
		}
		changed = append(changed, k)
	}
	if len(changed) > 0 {
		audit.LogAudit(h.DB, h.Hub, server.Username(ctx), audit.ActionUpdate, "settings", "global", "Changed "+strings.Join(changed, ", "))
	}
	h.GetSettings(w, r)
}

// ListTemplates handles GET /api/v1/admin/templates.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	items, err := h.Notifier.Templates.All(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, items)
}

// SaveTemplate handles PUT /api/v1/admin/templates/{name}.
func (h *Handler) SaveTemplate(w http.ResponseWriter, r *http.Request, name string) {
	var t notify.Template
	if err := response.DecodeBody(r, &t); err != nil {
		response.Err(w, "invalid request body", http.StatusBadRequest)
		return
	}
	t.Name = name
	if err := h.Notifier.Templates.Save(r.Context(), t); err != nil {
		response.Err(w, err.Error(), http.StatusBadRequest)
		return
	}
	audit.LogAudit(h.DB, h.Hub, server.Username(r.Context()), audit.ActionUpdate, "template", name, "Edited template")
	h.GetTemplate(w, r, name)
}

// ResetTemplate handles DELETE /api/v1/admin/templates/{name}.
func (h *Handler) ResetTemplate(w http.ResponseWriter, r *http.Request, name string) {
	if err := h.Notifier.Templates.Reset(r.Context(), name); err != nil {
		response.Err(w, err.Error(), http.StatusNotFound)
		return
	}
	audit.LogAudit(h.DB, h.Hub, server.Username(r.Context()), audit.ActionUpdate, "template", name, "Reset template to default")
	h.GetTemplate(w, r, name)
}

// GetTemplate handles GET /api/v1/admin/templates/{name}.
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request, name string) {
	t, err := h.Notifier.Templates.Get(r.Context(), name)
	if err != nil {
		response.Err(w, err.Error(), http.StatusNotFound)
		return
	}
	response.JSON(w, t)
}

// sampleVars fill every placeholder for template previews.
var sampleVars = notify.Vars{
	"customer_name":  "Jane",
	"customer_email": "jane@example.com",
	"product_name":   "Sample Product",
	"product_sku":    "SAMPLE-1",
	"product_url":    "https://shop.example.com/products/SAMPLE-1",
	"stock_qty":      "3",
	"threshold":      "5",
	"supplier_name":  "Acme Supply",
	"restock_link":   "https://shop.example.com/supplier/restock?product_id=1&token=sample",
	"upload_link":    "https://shop.example.com/supplier/upload?token=sample",
	"po_number":      "PO-202401-0001",
	"quantity":       "10",
	"expiry_days":    "7",
}

// PreviewTemplate handles GET /api/v1/admin/templates/{name}/preview.
func (h *Handler) PreviewTemplate(w http.ResponseWriter, r *http.Request, name string) {
	vars := notify.Vars{}
	for k, v := range sampleVars {
		vars[k] = v
	}
	out, err := h.Notifier.Render(r.Context(), name, vars, server.Features(r))
	if err != nil {
		response.Err(w, err.Error(), http.StatusNotFound)
		return
	}
	response.JSON(w, map[string]string{"subject": out.Subject, "html": out.HTML, "text": out.Text})
}

// ListEmailLog handles GET /api/v1/admin/email-log.
func (h *Handler) ListEmailLog(w http.ResponseWriter, r *http.Request) {
	rows, err := h.DB.QueryContext(r.Context(), "SELECT id, to_address, subject, COALESCE(event_type,''), status, COALESCE(error,''), sent_at FROM email_log ORDER BY id DESC LIMIT ?",
		queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, err)
		return
	}
	defer rows.Close()
	items := []models.EmailLogEntry{}
	for rows.Next() {
		var e models.EmailLogEntry
		if err := rows.Scan(&e.ID, &e.To, &e.Subject, &e.EventType, &e.Status, &e.Error, &e.SentAt); err != nil {
			writeError(w, err)
			return
		}
		items = append(items, e)
	}
	response.JSON(w, items)
}

// ListChannelLog handles GET /api/v1/admin/channel-log.
func (h *Handler) ListChannelLog(w http.ResponseWriter, r *http.Request) {
	rows, err := h.DB.QueryContext(r.Context(), "SELECT id, channel, recipient, COALESCE(payload,''), status, COALESCE(error,''), sent_at FROM channel_log ORDER BY id DESC LIMIT ?",
		queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, err)
		return
	}
	defer rows.Close()
	items := []models.ChannelLogEntry{}
	for rows.Next() {
		var e models.ChannelLogEntry
		if err := rows.Scan(&e.ID, &e.Channel, &e.Recipient, &e.Payload, &e.Status, &e.Error, &e.SentAt); err != nil {
			writeError(w, err)
			return
		}
		items = append(items, e)
	}
	response.JSON(w, items)
}

// ListAudit handles GET /api/v1/admin/audit?module=&limit=.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	items, err := audit.List(h.DB, r.URL.Query().Get("module"), queryInt(r, "limit", 200))
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, items)
}

// LicenseStatus is the admin view of the Pro gate.
type LicenseStatus struct {
	license.Features
	KeyHint   string `json:"key_hint,omitempty"`
	CheckedAt string `json:"checked_at,omitempty"`
}

// GetLicense handles GET /api/v1/admin/license.
func (h *Handler) GetLicense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st := LicenseStatus{
		Features:  h.License.Resolve(ctx),
		CheckedAt: h.Settings.Get(ctx, database.KeyLicenseCheckedAt, ""),
	}
	if key := h.Settings.Get(ctx, database.KeyLicenseKey, ""); len(key) > 4 {
		st.KeyHint = "****" + key[len(key)-4:]
	}
	response.JSON(w, st)
}

// LicenseRequest is the body of POST /api/v1/admin/license.
type LicenseRequest struct {
	Key string `json:"key"`
}

// ActivateLicense handles POST /api/v1/admin/license.
func (h *Handler) ActivateLicense(w http.ResponseWriter, r *http.Request) {
	var req LicenseRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if _, err := h.License.Activate(r.Context(), strings.TrimSpace(req.Key)); err != nil {
		response.Err(w, err.Error(), http.StatusBadRequest)
		return
	}
	audit.LogAudit(h.DB, h.Hub, server.Username(r.Context()), audit.ActionLicense, "license", "pro", "Activated license")
	h.GetLicense(w, r)
}

// DeactivateLicense handles DELETE /api/v1/admin/license.
func (h *Handler) DeactivateLicense(w http.ResponseWriter, r *http.Request) {
	if err := h.License.Deactivate(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	audit.LogAudit(h.DB, h.Hub, server.Username(r.Context()), audit.ActionLicense, "license", "pro", "Deactivated license")
	h.GetLicense(w, r)
}
