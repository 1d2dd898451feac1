// Package supplierlink serves the login-free pages suppliers reach through
// tokenized links: one-click restock and bulk stock upload.
package supplierlink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"stockwatch/internal/audit"
	"stockwatch/internal/csvupload"
	"stockwatch/internal/database"
	"stockwatch/internal/models"
	"stockwatch/internal/server"
	"stockwatch/internal/tokens"
	"stockwatch/internal/validation"
	"stockwatch/internal/waitlist"
	"stockwatch/internal/websocket"
)

type Handler struct {
	DB       *sql.DB
	Hub      *websocket.Hub
	Tokens   *tokens.Service
	Products *database.ProductStore
	Waitlist *waitlist.Service
	CSV      *csvupload.Processor
	Settings *database.Settings
	SiteName string
}

func (h *Handler) site(ctx context.Context) string {
	if h.Settings == nil {
		return h.SiteName
	}
	return h.Settings.Get(ctx, database.KeySiteName, h.SiteName)
}

func (h *Handler) invalid(w http.ResponseWriter, r *http.Request) {
	render(w, http.StatusGone, "invalid", pageData{Site: h.site(r.Context())})
}

// gate renders the unavailable page and returns false when the Pro gate is closed.
func (h *Handler) gate(w http.ResponseWriter, r *http.Request) bool {
	if err := server.Features(r).Require(); err != nil {
		render(w, http.StatusForbidden, "unavailable", pageData{Site: h.site(r.Context())})
		return false
	}
	return true
}

func productID(v string) int64 {
	id, _ := strconv.ParseInt(v, 10, 64)
	return id
}

// Restock handles GET and POST /supplier/restock.
func (h *Handler) Restock(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.restockForm(w, r)
	case http.MethodPost:
		h.restockSubmit(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) restockForm(w http.ResponseWriter, r *http.Request) {
	if !h.gate(w, r) {
		return
	}
	q := r.URL.Query()
	token, pid := q.Get("token"), productID(q.Get("product_id"))
	_, reason, err := h.Tokens.Validate(r.Context(), tokens.KindRestock, token, pid)
	if err != nil {
		log.Printf("supplierlink: validate restock token: %v", err)
	}
	if reason != tokens.ReasonOK {
		log.Printf("supplierlink: restock form refused (%s)", reason)
		h.invalid(w, r)
		return
	}
	p, err := h.Products.Get(r.Context(), pid)
	if err != nil {
		log.Printf("supplierlink: load product %d: %v", pid, err)
		h.invalid(w, r)
		return
	}
	render(w, http.StatusOK, "restock_form", pageData{Site: h.site(r.Context()), Token: token, Product: p})
}

func (h *Handler) restockSubmit(w http.ResponseWriter, r *http.Request) {
	if !h.gate(w, r) {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.invalid(w, r)
		return
	}
	token := r.PostForm.Get("token")
	pid := productID(r.PostForm.Get("product_id"))
	qty, convErr := strconv.Atoi(strings.TrimSpace(r.PostForm.Get("quantity")))
	ip := audit.GetClientIP(r)

	var res *waitlist.RestockResult
	var supplierEmail string
	err := h.Tokens.Redeem(r.Context(), tokens.KindRestock, token, pid, func(ctx context.Context, t *models.ActionToken) error {
		if convErr != nil {
			ve := &validation.ValidationErrors{}
			ve.Add("quantity", "must be a whole number")
			return ve
		}
		supplierEmail = t.SupplierEmail
		var err error
		res, err = h.Waitlist.RestockAndNotify(ctx, waitlist.RestockRequest{
			ProductID: pid,
			Quantity:  qty,
			Method:    models.RestockSupplierLink,
			IP:        ip,
			Actor:     "supplier:" + t.SupplierEmail,
		}, server.Features(r))
		return err
	})

	var ve *validation.ValidationErrors
	switch {
	case err == nil:
	case errors.Is(err, tokens.ErrInvalidToken):
		h.invalid(w, r)
		return
	case errors.As(err, &ve):
		p, perr := h.Products.Get(r.Context(), pid)
		if perr != nil {
			h.invalid(w, r)
			return
		}
		render(w, http.StatusBadRequest, "restock_form", pageData{Site: h.site(r.Context()), Token: token, Product: p, Error: ve.Error()})
		return
	default:
		log.Printf("supplierlink: restock product %d: %v", pid, err)
		h.invalid(w, r)
		return
	}

	audit.Log(h.DB, h.Hub, audit.Entry{
		Username:  "supplier:" + supplierEmail,
		Action:    audit.ActionRestock,
		Module:    "product",
		RecordID:  strconv.FormatInt(pid, 10),
		Summary:   fmt.Sprintf("Supplier link restock +%d (%d notified)", qty, res.Notified),
		IPAddress: ip,
	})

	p, err := h.Products.Get(r.Context(), pid)
	if err != nil {
		p = &models.Product{ID: pid}
	}
	render(w, http.StatusOK, "restock_done", pageData{Site: h.site(r.Context()), Product: p, NewQty: res.NewStockQty, Notified: res.Notified})
}

// Upload handles GET and POST /supplier/upload.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.uploadForm(w, r)
	case http.MethodPost:
		h.uploadSubmit(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) uploadForm(w http.ResponseWriter, r *http.Request) {
	if !h.gate(w, r) {
		return
	}
	token := r.URL.Query().Get("token")
	_, reason, err := h.Tokens.Validate(r.Context(), tokens.KindCSV, token, 0)
	if err != nil {
		log.Printf("supplierlink: validate upload token: %v", err)
	}
	if reason != tokens.ReasonOK {
		log.Printf("supplierlink: upload form refused (%s)", reason)
		h.invalid(w, r)
		return
	}
	render(w, http.StatusOK, "upload_form", pageData{Site: h.site(r.Context()), Token: token})
}

func (h *Handler) uploadSubmit(w http.ResponseWriter, r *http.Request) {
	if !h.gate(w, r) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, validation.MaxUploadSize+1<<20)
	if err := r.ParseMultipartForm(validation.MaxUploadSize); err != nil {
		render(w, http.StatusBadRequest, "upload_form", pageData{Site: h.site(r.Context()), Token: r.FormValue("token"), Error: "The upload could not be read."})
		return
	}
	token := r.FormValue("token")
	formErr := func(msg string) {
		render(w, http.StatusBadRequest, "upload_form", pageData{Site: h.site(r.Context()), Token: token, Error: msg})
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		formErr("Please choose a file to upload.")
		return
	}
	defer file.Close()

	ve := &validation.ValidationErrors{}
	validation.ValidateUpload(ve, header.Filename, header.Size)
	if ve.HasErrors() {
		formErr(ve.Error())
		return
	}

	// Parse before redeeming so a malformed file leaves the link usable.
	rows, err := csvupload.Parse(filepath.Base(header.Filename), file)
	if err != nil {
		formErr(err.Error())
		return
	}

	ip := audit.GetClientIP(r)
	var sum *csvupload.Summary
	var supplierEmail string
	err = h.Tokens.Redeem(r.Context(), tokens.KindCSV, token, 0, func(ctx context.Context, t *models.ActionToken) error {
		supplierEmail = t.SupplierEmail
		sum = h.CSV.Process(ctx, rows, csvupload.Options{
			Method: models.RestockCSVUpload,
			IP:     ip,
			Actor:  "supplier:" + t.SupplierEmail,
		}, server.Features(r))
		return nil
	})
	if err != nil {
		if !errors.Is(err, tokens.ErrInvalidToken) {
			log.Printf("supplierlink: upload: %v", err)
		}
		h.invalid(w, r)
		return
	}

	audit.Log(h.DB, h.Hub, audit.Entry{
		Username:  "supplier:" + supplierEmail,
		Action:    audit.ActionRestock,
		Module:    "csv_upload",
		RecordID:  sum.BatchID,
		Summary:   fmt.Sprintf("%s: %d restocked, %d skipped, %d errors", header.Filename, sum.Success, sum.Skipped, sum.Errors),
		IPAddress: ip,
	})
	render(w, http.StatusOK, "upload_done", pageData{Site: h.site(r.Context()), Summary: sum})
}
