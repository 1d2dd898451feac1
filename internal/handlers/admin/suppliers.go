package admin

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"stockwatch/internal/audit"
	"stockwatch/internal/models"
	"stockwatch/internal/response"
	"stockwatch/internal/server"
	"stockwatch/internal/tokens"
)

// SupplierRequest is the body of PUT /api/v1/admin/products/{id}/supplier.
type SupplierRequest struct {
	SupplierName   string   `json:"supplier_name"`
	SupplierEmail  string   `json:"supplier_email"`
	SupplierPhone  string   `json:"supplier_phone"`
	Threshold      *int     `json:"threshold"`
	Channels       []string `json:"channels"`
	AutoGeneratePO bool     `json:"auto_generate_po"`
}

// ListSuppliers handles GET /api/v1/admin/suppliers.
func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	items, err := h.Suppliers.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, items)
}

// GetSupplier handles GET /api/v1/admin/products/{id}/supplier.
func (h *Handler) GetSupplier(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := IDParam(idStr)
	if err != nil {
		badID(w)
		return
	}
	rec, err := h.Suppliers.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, rec)
}

// UpsertSupplier handles PUT /api/v1/admin/products/{id}/supplier.
func (h *Handler) UpsertSupplier(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := IDParam(idStr)
	if err != nil {
		badID(w)
		return
	}
	var req SupplierRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid request body", http.StatusBadRequest)
		return
	}
	rec := &models.SupplierRecord{
		ProductID:      id,
		SupplierName:   req.SupplierName,
		SupplierEmail:  req.SupplierEmail,
		SupplierPhone:  req.SupplierPhone,
		Threshold:      req.Threshold,
		Channels:       req.Channels,
		AutoGeneratePO: req.AutoGeneratePO,
	}
	if err := h.Suppliers.Upsert(r.Context(), rec); err != nil {
		writeError(w, err)
		return
	}
	audit.Log(h.DB, h.Hub, audit.Entry{
		Username: server.Username(r.Context()), Action: audit.ActionUpdate, Module: "supplier", RecordID: idStr,
		Summary:   fmt.Sprintf("Supplier %s (%s)", rec.SupplierEmail, strings.Join(rec.Channels, ",")),
		IPAddress: audit.GetClientIP(r),
	})
	h.GetSupplier(w, r, idStr)
}

// DeleteSupplier handles DELETE /api/v1/admin/products/{id}/supplier.
func (h *Handler) DeleteSupplier(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := IDParam(idStr)
	if err != nil {
		badID(w)
		return
	}
	if err := h.Suppliers.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	audit.LogAudit(h.DB, h.Hub, server.Username(r.Context()), audit.ActionDelete, "supplier", idStr, "Removed supplier")
	response.JSON(w, map[string]string{"status": "deleted"})
}

// LinkResponse reports an issued link. EmailError is set when the link was
// created but could not be delivered.
type LinkResponse struct {
	*tokens.Issued
	EmailSent  bool   `json:"email_sent"`
	EmailError string `json:"email_error,omitempty"`
}

// SendRestockLink handles POST /api/v1/admin/products/{id}/restock-link.
func (h *Handler) SendRestockLink(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := IDParam(idStr)
	if err != nil {
		badID(w)
		return
	}
	issued, err := h.Suppliers.SendRestockLink(r.Context(), id, server.Features(r))
	h.linkResult(w, r, issued, err, "restock_link", idStr)
}

// CSVLinkRequest names the supplier that receives an upload link.
type CSVLinkRequest struct {
	SupplierEmail string `json:"supplier_email"`
}

// SendCSVLink handles POST /api/v1/admin/csv-link.
func (h *Handler) SendCSVLink(w http.ResponseWriter, r *http.Request) {
	var req CSVLinkRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid request body", http.StatusBadRequest)
		return
	}
	issued, err := h.Suppliers.SendCSVLink(r.Context(), req.SupplierEmail, server.Features(r))
	h.linkResult(w, r, issued, err, "csv_link", req.SupplierEmail)
}

func (h *Handler) linkResult(w http.ResponseWriter, r *http.Request, issued *tokens.Issued, err error, module, recordID string) {
	if issued == nil {
		writeError(w, err)
		return
	}
	resp := LinkResponse{Issued: issued, EmailSent: err == nil}
	if err != nil {
		log.Printf("admin: %s %s: %v", module, recordID, err)
		resp.EmailError = "the link was created but the email could not be sent"
	}
	audit.Log(h.DB, h.Hub, audit.Entry{
		Username: server.Username(r.Context()), Action: audit.ActionIssue, Module: module, RecordID: recordID,
		Summary: "Issued link expiring " + issued.ExpiresAt, IPAddress: audit.GetClientIP(r),
	})
	response.JSON(w, resp)
}

// ListTokens handles GET /api/v1/admin/tokens?kind=restock|csv.
func (h *Handler) ListTokens(w http.ResponseWriter, r *http.Request) {
	kind := tokens.Kind(r.URL.Query().Get("kind"))
	switch kind {
	case "":
		kind = tokens.KindRestock
	case tokens.KindRestock, tokens.KindCSV:
	default:
		response.Err(w, "kind must be restock or csv", http.StatusBadRequest)
		return
	}
	items, err := h.Tokens.List(r.Context(), kind, queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, items)
}
