// Package storefront serves the public, unauthenticated shop endpoints.
package storefront

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"stockwatch/internal/database"
	"stockwatch/internal/response"
	"stockwatch/internal/server"
	"stockwatch/internal/validation"
	"stockwatch/internal/waitlist"
)

// Handler holds dependencies for storefront handlers.
type Handler struct {
	Products *database.ProductStore
	Waitlist *waitlist.Service
}

// JoinRequest is the waitlist signup body. Form posts use the same names.
type JoinRequest struct {
	ProductID int64  `json:"product_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
}

func decodeJoin(r *http.Request) (JoinRequest, error) {
	var req JoinRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		err := response.DecodeBody(r, &req)
		return req, err
	}
	if err := r.ParseForm(); err != nil {
		return req, err
	}
	if v := r.PostForm.Get("product_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return req, err
		}
		req.ProductID = id
	}
	req.Email = r.PostForm.Get("email")
	req.Name = r.PostForm.Get("name")
	return req, nil
}

// JoinWaitlist handles POST /api/v1/waitlist.
func (h *Handler) JoinWaitlist(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJoin(r)
	if err != nil {
		response.Result(w, http.StatusBadRequest, false, "Invalid request body")
		return
	}

	_, err = h.Waitlist.Join(r.Context(), req.ProductID, req.Email, req.Name, server.Features(r))
	var ve *validation.ValidationErrors
	switch {
	case err == nil:
		response.Result(w, http.StatusOK, true, "You're on the list! We'll email you as soon as it is back in stock.")
	case errors.As(err, &ve):
		response.Result(w, http.StatusBadRequest, false, ve.Error())
	case errors.Is(err, waitlist.ErrAlreadyOnList):
		response.Result(w, http.StatusConflict, false, "You are already on the waitlist for this product.")
	case errors.Is(err, waitlist.ErrProductNotFound):
		response.Result(w, http.StatusNotFound, false, "Product not found.")
	default:
		log.Printf("storefront: join waitlist: %v", err)
		response.Result(w, http.StatusInternalServerError, false, "Something went wrong. Please try again later.")
	}
}

// Availability is the public stock view of one product.
type Availability struct {
	ProductID   int64  `json:"product_id"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	StockStatus string `json:"stock_status"`
	Waiting     int    `json:"waiting"`
}

// GetAvailability handles GET /api/v1/products/{sku}.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request, sku string) {
	p, err := h.Products.GetBySKU(r.Context(), sku)
	if errors.Is(err, database.ErrNotFound) {
		response.Err(w, "Product not found", http.StatusNotFound)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), http.StatusInternalServerError)
		return
	}
	n, err := h.Waitlist.CountUnnotified(r.Context(), p.ID)
	if err != nil {
		response.Err(w, err.Error(), http.StatusInternalServerError)
		return
	}
	response.JSON(w, Availability{ProductID: p.ID, SKU: p.SKU, Name: p.Name, StockStatus: p.StockStatus, Waiting: n})
}
