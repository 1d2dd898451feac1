// Package dashboard serves the analytics endpoints behind the admin
// dashboard.
package dashboard

import (
	"bytes"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"stockwatch/internal/analytics"
	"stockwatch/internal/audit"
	"stockwatch/internal/response"
	"stockwatch/internal/server"
	"stockwatch/internal/validation"
	"stockwatch/internal/websocket"
)

// Handler holds dependencies for dashboard handlers.
type Handler struct {
	DB        *sql.DB
	Hub       *websocket.Hub
	Analytics *analytics.Service
}

func intParam(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return n
}

// GetSummary handles GET /api/v1/dashboard/summary.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Analytics.Summary(r.Context())
	if err != nil {
		log.Printf("dashboard: summary: %v", err)
		response.Err(w, "failed to load summary", http.StatusInternalServerError)
		return
	}
	response.JSON(w, sum)
}

// GetTrends handles GET /api/v1/dashboard/trends?days=30.
func (h *Handler) GetTrends(w http.ResponseWriter, r *http.Request) {
	days := intParam(r, "days", 30)
	points, err := h.Analytics.Trends(r.Context(), days)
	if err != nil {
		log.Printf("dashboard: trends: %v", err)
		response.Err(w, "failed to load trends", http.StatusInternalServerError)
		return
	}
	response.JSONMeta(w, points, len(points), 0, 0)
}

// GetTopProducts handles GET /api/v1/dashboard/top-products?limit=10.
func (h *Handler) GetTopProducts(w http.ResponseWriter, r *http.Request) {
	items, err := h.Analytics.TopProducts(r.Context(), intParam(r, "limit", 10))
	if err != nil {
		log.Printf("dashboard: top products: %v", err)
		response.Err(w, "failed to load top products", http.StatusInternalServerError)
		return
	}
	response.JSON(w, items)
}

// Export handles GET /api/v1/dashboard/export?kind=waitlist|restocks&format=csv|xlsx.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "kind", kind)
	validation.ValidateEnum(ve, "kind", kind, validation.ValidExportKinds)
	validation.ValidateEnum(ve, "format", format, validation.ValidExportFormats)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), http.StatusBadRequest)
		return
	}

	table, err := h.Analytics.Export(r.Context(), kind)
	if err != nil {
		log.Printf("dashboard: export %s: %v", kind, err)
		response.Err(w, "export failed", http.StatusInternalServerError)
		return
	}

	// Render fully before writing headers so a failure can still return JSON.
	var buf bytes.Buffer
	contentType := "text/csv; charset=utf-8"
	if format == "xlsx" {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		err = analytics.WriteXLSX(&buf, table)
	} else {
		err = analytics.WriteCSV(&buf, table)
	}
	if err != nil {
		log.Printf("dashboard: write %s %s: %v", kind, format, err)
		response.Err(w, "export failed", http.StatusInternalServerError)
		return
	}

	audit.Log(h.DB, h.Hub, audit.Entry{
		Username:  server.Username(r.Context()),
		Action:    audit.ActionExport,
		Module:    kind,
		Summary:   fmt.Sprintf("Exported %d rows as %s", len(table.Rows), format),
		IPAddress: audit.GetClientIP(r),
	})

	filename := fmt.Sprintf("%s-%s.%s", kind, time.Now().UTC().Format("20060102"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(buf.Bytes())
}
