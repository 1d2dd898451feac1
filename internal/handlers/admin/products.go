package admin

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"stockwatch/internal/audit"
	"stockwatch/internal/database"
	"stockwatch/internal/models"
	"stockwatch/internal/response"
	"stockwatch/internal/server"
	"stockwatch/internal/validation"
	"stockwatch/internal/waitlist"
)

// ProductRequest is the create/update body. StockQty is only read on create.
type ProductRequest struct {
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	StockQty int    `json:"stock_qty"`
}

func (req *ProductRequest) validate() *validation.ValidationErrors {
	req.SKU = strings.TrimSpace(req.SKU)
	req.Name = strings.TrimSpace(req.Name)
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "sku", req.SKU)
	validation.ValidateSKU(ve, "sku", req.SKU)
	validation.RequireField(ve, "name", req.Name)
	validation.ValidateMaxLength(ve, "name", req.Name, validation.MaxNameLength)
	validation.ValidateNonNegativeInt(ve, "stock_qty", req.StockQty)
	validation.ValidateMaxQuantity(ve, "stock_qty", req.StockQty)
	if req.Price == "" {
		req.Price = "0"
	}
	if p, err := decimal.NewFromString(req.Price); err != nil || p.IsNegative() {
		ve.Add("price", "must be a non-negative decimal")
	} else {
		req.Price = p.StringFixed(2)
	}
	return ve
}

// ProductDetail is a product with its waitlist and supplier state.
type ProductDetail struct {
	models.Product
	Waiting  int                    `json:"waiting"`
	Supplier *models.SupplierRecord `json:"supplier"`
}

// ListProducts handles GET /api/v1/admin/products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	items, err := h.Products.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, items)
}

// GetProduct handles GET /api/v1/admin/products/{id}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := IDParam(idStr)
	if err != nil {
		badID(w)
		return
	}
	p, err := h.Products.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	d := ProductDetail{Product: *p}
	if d.Waiting, err = h.Waitlist.CountUnnotified(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	if sup, err := h.Suppliers.Get(r.Context(), id); err == nil {
		d.Supplier = sup
	}
	response.JSON(w, d)
}

// CreateProduct handles POST /api/v1/admin/products.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if ve := req.validate(); ve.HasErrors() {
		writeError(w, ve)
		return
	}
	if _, err := h.Products.GetBySKU(r.Context(), req.SKU); err == nil {
		response.Err(w, "a product with this SKU already exists", http.StatusConflict)
		return
	}
	p := &models.Product{SKU: req.SKU, Name: req.Name, Price: req.Price, StockQty: req.StockQty}
	if err := h.Products.Create(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	audit.Log(h.DB, h.Hub, audit.Entry{
		Username: server.Username(r.Context()), Action: audit.ActionCreate, Module: "product",
		RecordID: strconv.FormatInt(p.ID, 10), Summary: "Created product " + p.SKU, IPAddress: audit.GetClientIP(r),
	})
	response.Created(w, p)
}

// UpdateProduct handles PUT /api/v1/admin/products/{id}.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := IDParam(idStr)
	if err != nil {
		badID(w)
		return
	}
	var req ProductRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.StockQty = 0
	if ve := req.validate(); ve.HasErrors() {
		writeError(w, ve)
		return
	}
	if other, err := h.Products.GetBySKU(r.Context(), req.SKU); err == nil && other.ID != id {
		response.Err(w, "a product with this SKU already exists", http.StatusConflict)
		return
	}
	p := &models.Product{ID: id, SKU: req.SKU, Name: req.Name, Price: req.Price}
	if err := h.Products.Update(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	audit.Log(h.DB, h.Hub, audit.Entry{
		Username: server.Username(r.Context()), Action: audit.ActionUpdate, Module: "product",
		RecordID: idStr, Summary: "Updated product " + p.SKU, IPAddress: audit.GetClientIP(r),
	})
	h.GetProduct(w, r, idStr)
}

// DeleteProduct handles DELETE /api/v1/admin/products/{id}.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := IDParam(idStr)
	if err != nil {
		badID(w)
		return
	}
	if err := h.Products.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	audit.LogAudit(h.DB, h.Hub, server.Username(r.Context()), audit.ActionDelete, "product", idStr, "Deleted product "+idStr)
	response.JSON(w, map[string]string{"status": "deleted"})
}

// RestockRequest is the body of the restock endpoints.
type RestockRequest struct {
	Quantity int `json:"quantity"`
}

// RestockProduct handles POST /api/v1/admin/products/{id}/restock.
func (h *Handler) RestockProduct(w http.ResponseWriter, r *http.Request, idStr string) {
	h.restock(w, r, idStr, models.RestockManual)
}

// QuickRestock handles POST /api/v1/admin/products/{id}/quick-restock. An
// empty body marks the product in stock without changing the count.
func (h *Handler) QuickRestock(w http.ResponseWriter, r *http.Request, idStr string) {
	h.restock(w, r, idStr, models.RestockQuick)
}

func (h *Handler) restock(w http.ResponseWriter, r *http.Request, idStr, method string) {
	id, err := IDParam(idStr)
	if err != nil {
		badID(w)
		return
	}
	var req RestockRequest
	if r.ContentLength != 0 {
		if err := response.DecodeBody(r, &req); err != nil {
			response.Err(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	res, err := h.Waitlist.RestockAndNotify(r.Context(), waitlist.RestockRequest{
		ProductID: id,
		Quantity:  req.Quantity,
		Method:    method,
		IP:        audit.GetClientIP(r),
		Actor:     server.Username(r.Context()),
	}, server.Features(r))
	if err != nil {
		writeError(w, err)
		return
	}
	audit.Log(h.DB, h.Hub, audit.Entry{
		Username: server.Username(r.Context()), Action: audit.ActionRestock, Module: "product", RecordID: idStr,
		Summary:   fmt.Sprintf("Restocked +%d via %s, %d notified", req.Quantity, method, res.Notified),
		IPAddress: audit.GetClientIP(r),
	})
	response.JSON(w, res)
}

// AdjustRequest changes stock by Delta, e.g. -1 for a sale.
type AdjustRequest struct {
	Delta int `json:"delta"`
}

// AdjustStock handles POST /api/v1/admin/products/{id}/adjust. Decreases go
// through the stock observers so supplier alerts fire on a threshold crossing.
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := IDParam(idStr)
	if err != nil {
		badID(w)
		return
	}
	var req AdjustRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Delta > 0 {
		response.Err(w, "use restock to add stock", http.StatusBadRequest)
		return
	}
	ev, err := h.Products.AdjustStock(r.Context(), id, req.Delta)
	if errors.Is(err, database.ErrNotFound) {
		response.Err(w, "product not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	audit.LogAudit(h.DB, h.Hub, server.Username(r.Context()), audit.ActionUpdate, "product", idStr,
		fmt.Sprintf("Stock adjusted %d -> %d", ev.OldQty, ev.NewQty))
	response.JSON(w, map[string]any{"product_id": id, "old_qty": ev.OldQty, "new_qty": ev.NewQty, "stock_status": ev.NewStatus})
}
