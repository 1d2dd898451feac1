package admin

import (
	"net/http"

	"stockwatch/internal/audit"
	"stockwatch/internal/response"
	"stockwatch/internal/server"
)

// WaitlistOverview handles GET /api/v1/admin/waitlist.
func (h *Handler) WaitlistOverview(w http.ResponseWriter, r *http.Request) {
	items, err := h.Waitlist.Overview(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, items)
}

// ListWaitlist handles GET /api/v1/admin/products/{id}/waitlist.
func (h *Handler) ListWaitlist(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := IDParam(idStr)
	if err != nil {
		badID(w)
		return
	}
	if _, err := h.Products.Get(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	items, err := h.Waitlist.ListForProduct(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, items)
}

// RemoveWaitlistEntry handles DELETE /api/v1/admin/waitlist/{id}.
func (h *Handler) RemoveWaitlistEntry(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := IDParam(idStr)
	if err != nil {
		badID(w)
		return
	}
	if err := h.Waitlist.Remove(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	audit.LogAudit(h.DB, h.Hub, server.Username(r.Context()), audit.ActionDelete, "waitlist", idStr, "Removed waitlist entry")
	response.JSON(w, map[string]string{"status": "deleted"})
}

// RestockLog handles GET /api/v1/admin/restock-log?product_id=&limit=.
func (h *Handler) RestockLog(w http.ResponseWriter, r *http.Request) {
	items, err := h.Waitlist.RestockLog(r.Context(), int64(queryInt(r, "product_id", 0)), queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, items)
}
