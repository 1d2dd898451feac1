package admin

import (
	"fmt"
	"net/http"

	"stockwatch/internal/audit"
	"stockwatch/internal/purchasing"
	"stockwatch/internal/response"
	"stockwatch/internal/server"
)

// GeneratePO handles POST /api/v1/admin/purchase-orders.
func (h *Handler) GeneratePO(w http.ResponseWriter, r *http.Request) {
	var req purchasing.GenerateRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid request body", http.StatusBadRequest)
		return
	}
	po, err := h.Purchasing.Generate(r.Context(), req, server.Features(r))
	if po == nil {
		writeError(w, err)
		return
	}
	audit.Log(h.DB, h.Hub, audit.Entry{
		Username: server.Username(r.Context()), Action: audit.ActionGenerate, Module: "purchase_order", RecordID: po.PONumber,
		Summary:   fmt.Sprintf("%d units of product %d, total %s", po.Quantity, po.ProductID, po.TotalAmount),
		IPAddress: audit.GetClientIP(r),
	})
	if err != nil {
		// Generated but the email failed; the PO stays a draft.
		response.JSON(w, map[string]any{"purchase_order": po, "email_error": err.Error()})
		return
	}
	response.Created(w, map[string]any{"purchase_order": po})
}

// ListPOs handles GET /api/v1/admin/purchase-orders?product_id=&limit=.
func (h *Handler) ListPOs(w http.ResponseWriter, r *http.Request) {
	items, err := h.Purchasing.List(r.Context(), int64(queryInt(r, "product_id", 0)), queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, items)
}

// GetPO handles GET /api/v1/admin/purchase-orders/{number}.
func (h *Handler) GetPO(w http.ResponseWriter, r *http.Request, number string) {
	po, err := h.Purchasing.Get(r.Context(), number)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, po)
}

// PODocument handles GET /api/v1/admin/purchase-orders/{number}/document.
func (h *Handler) PODocument(w http.ResponseWriter, r *http.Request, number string) {
	doc, err := h.Purchasing.Document(r.Context(), number)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", number+".html"))
	w.Write(doc)
}

// SendPO handles POST /api/v1/admin/purchase-orders/{number}/send.
func (h *Handler) SendPO(w http.ResponseWriter, r *http.Request, number string) {
	if err := h.Purchasing.Send(r.Context(), number, server.Features(r)); err != nil {
		writeError(w, err)
		return
	}
	audit.LogAudit(h.DB, h.Hub, server.Username(r.Context()), audit.ActionSend, "purchase_order", number, "Emailed purchase order")
	h.GetPO(w, r, number)
}

// StatusRequest is the body of PUT /api/v1/admin/purchase-orders/{number}/status.
type StatusRequest struct {
	Status string `json:"status"`
}

// UpdatePOStatus handles PUT /api/v1/admin/purchase-orders/{number}/status.
func (h *Handler) UpdatePOStatus(w http.ResponseWriter, r *http.Request, number string) {
	var req StatusRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.Purchasing.UpdateStatus(r.Context(), number, req.Status); err != nil {
		writeError(w, err)
		return
	}
	audit.LogAudit(h.DB, h.Hub, server.Username(r.Context()), audit.ActionUpdate, "purchase_order", number, "Status "+req.Status)
	h.GetPO(w, r, number)
}

// SuggestPOQuantity handles GET /api/v1/admin/products/{id}/po-suggestion.
func (h *Handler) SuggestPOQuantity(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := IDParam(idStr)
	if err != nil {
		badID(w)
		return
	}
	if _, err := h.Products.Get(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	qty, err := h.Purchasing.SuggestQuantity(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, map[string]int{"quantity": qty})
}
