package main

import (
	"net/http"
	"strings"

	"stockwatch/internal/audit"
	"stockwatch/internal/handlers/admin"
	"stockwatch/internal/handlers/dashboard"
	"stockwatch/internal/handlers/storefront"
	"stockwatch/internal/handlers/supplierlink"
	"stockwatch/internal/response"
	"stockwatch/internal/server"
	"stockwatch/internal/websocket"
)

// routes builds the HTTP handler for every surface: the public storefront
// API, the tokenized supplier pages and the session-protected admin API.
func routes(app *server.App) http.Handler {
	shop := &storefront.Handler{Products: app.Products, Waitlist: app.Waitlist}
	links := &supplierlink.Handler{
		DB: app.DB, Hub: app.Hub, Tokens: app.Tokens, Products: app.Products,
		Waitlist: app.Waitlist, CSV: app.CSV, Settings: app.Settings,
	}
	adm := &admin.Handler{
		DB: app.DB, Hub: app.Hub, Settings: app.Settings, Products: app.Products,
		Waitlist: app.Waitlist, Suppliers: app.Suppliers, Purchasing: app.Purchasing,
		Tokens: app.Tokens, Notifier: app.Notifier, License: app.License, Auth: app.Auth,
	}
	dash := &dashboard.Handler{DB: app.DB, Hub: app.Hub, Analytics: app.Analytics}

	session := server.RequireSession(app.Auth)
	protected := func(h http.HandlerFunc) http.Handler {
		return session(server.RequireRBAC(h))
	}

	mux := http.NewServeMux()

	mux.Handle("/ws", session(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		websocket.HandleWebSocket(app.Hub, w, r)
	})))

	// Supplier pages render HTML and authenticate by token.
	mux.HandleFunc("/supplier/restock", links.Restock)
	mux.HandleFunc("/supplier/upload", links.Upload)

	mux.HandleFunc("/api/v1/waitlist", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		shop.JoinWaitlist(w, r)
	})
	mux.HandleFunc("/api/v1/products/", func(w http.ResponseWriter, r *http.Request) {
		sku := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/products/"), "/")
		if r.Method != http.MethodGet || sku == "" || strings.Contains(sku, "/") {
			response.Err(w, "not found", http.StatusNotFound)
			return
		}
		shop.GetAvailability(w, r, sku)
	})

	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		adm.HandleLogin(w, r)
	})
	mux.HandleFunc("/api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		adm.HandleLogout(w, r)
	})
	mux.Handle("/api/v1/auth/me", session(http.HandlerFunc(adm.HandleMe)))

	mux.Handle("/api/v1/dashboard/", protected(func(w http.ResponseWriter, r *http.Request) {
		path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/dashboard/"), "/")
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		switch path {
		case "summary":
			dash.GetSummary(w, r)
		case "trends":
			dash.GetTrends(w, r)
		case "top-products":
			dash.GetTopProducts(w, r)
		case "export":
			dash.Export(w, r)
		default:
			response.Err(w, "not found", http.StatusNotFound)
		}
	}))

	mux.Handle("/api/v1/admin/", protected(func(w http.ResponseWriter, r *http.Request) {
		adminRoutes(adm, w, r)
	}))

	rl := server.NewRateLimiter()
	var h http.Handler = mux
	h = server.LicenseMiddleware(app.License)(h)
	h = server.GzipMiddleware(h)
	h = server.RateLimitMiddleware(rl, audit.GetClientIP)(h)
	h = server.SecurityHeaders(h)
	return server.LoggingMiddleware(h)
}

func methodNotAllowed(w http.ResponseWriter) {
	response.Err(w, "method not allowed", http.StatusMethodNotAllowed)
}

// adminRoutes dispatches /api/v1/admin/*.
func adminRoutes(h *admin.Handler, w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/admin/"), "/")
	parts := strings.Split(path, "/")
	m := r.Method
	n := len(parts)

	switch {
	// Products
	case parts[0] == "products" && n == 1 && m == "GET":
		h.ListProducts(w, r)
	case parts[0] == "products" && n == 1 && m == "POST":
		h.CreateProduct(w, r)
	case parts[0] == "products" && n == 2 && m == "GET":
		h.GetProduct(w, r, parts[1])
	case parts[0] == "products" && n == 2 && m == "PUT":
		h.UpdateProduct(w, r, parts[1])
	case parts[0] == "products" && n == 2 && m == "DELETE":
		h.DeleteProduct(w, r, parts[1])
	case parts[0] == "products" && n == 3 && parts[2] == "restock" && m == "POST":
		h.RestockProduct(w, r, parts[1])
	case parts[0] == "products" && n == 3 && parts[2] == "quick-restock" && m == "POST":
		h.QuickRestock(w, r, parts[1])
	case parts[0] == "products" && n == 3 && parts[2] == "adjust" && m == "POST":
		h.AdjustStock(w, r, parts[1])
	case parts[0] == "products" && n == 3 && parts[2] == "waitlist" && m == "GET":
		h.ListWaitlist(w, r, parts[1])
	case parts[0] == "products" && n == 3 && parts[2] == "po-suggestion" && m == "GET":
		h.SuggestPOQuantity(w, r, parts[1])
	case parts[0] == "products" && n == 3 && parts[2] == "restock-link" && m == "POST":
		h.SendRestockLink(w, r, parts[1])

	// Suppliers
	case parts[0] == "products" && n == 3 && parts[2] == "supplier" && m == "GET":
		h.GetSupplier(w, r, parts[1])
	case parts[0] == "products" && n == 3 && parts[2] == "supplier" && m == "PUT":
		h.UpsertSupplier(w, r, parts[1])
	case parts[0] == "products" && n == 3 && parts[2] == "supplier" && m == "DELETE":
		h.DeleteSupplier(w, r, parts[1])
	case path == "suppliers" && m == "GET":
		h.ListSuppliers(w, r)
	case path == "csv-link" && m == "POST":
		h.SendCSVLink(w, r)
	case path == "tokens" && m == "GET":
		h.ListTokens(w, r)

	// Waitlist
	case path == "waitlist" && m == "GET":
		h.WaitlistOverview(w, r)
	case parts[0] == "waitlist" && n == 2 && m == "DELETE":
		h.RemoveWaitlistEntry(w, r, parts[1])
	case path == "restock-log" && m == "GET":
		h.RestockLog(w, r)

	// Purchase orders
	case path == "purchase-orders" && m == "GET":
		h.ListPOs(w, r)
	case path == "purchase-orders" && m == "POST":
		h.GeneratePO(w, r)
	case parts[0] == "purchase-orders" && n == 2 && m == "GET":
		h.GetPO(w, r, parts[1])
	case parts[0] == "purchase-orders" && n == 3 && parts[2] == "document" && m == "GET":
		h.PODocument(w, r, parts[1])
	case parts[0] == "purchase-orders" && n == 3 && parts[2] == "send" && m == "POST":
		h.SendPO(w, r, parts[1])
	case parts[0] == "purchase-orders" && n == 3 && parts[2] == "status" && m == "PUT":
		h.UpdatePOStatus(w, r, parts[1])

	// Settings and templates
	case path == "settings" && m == "GET":
		h.GetSettings(w, r)
	case path == "settings" && m == "PUT":
		h.UpdateSettings(w, r)
	case path == "templates" && m == "GET":
		h.ListTemplates(w, r)
	case parts[0] == "templates" && n == 2 && m == "GET":
		h.GetTemplate(w, r, parts[1])
	case parts[0] == "templates" && n == 2 && m == "PUT":
		h.SaveTemplate(w, r, parts[1])
	case parts[0] == "templates" && n == 2 && m == "DELETE":
		h.ResetTemplate(w, r, parts[1])
	case parts[0] == "templates" && n == 3 && parts[2] == "preview" && m == "GET":
		h.PreviewTemplate(w, r, parts[1])

	// Logs
	case path == "email-log" && m == "GET":
		h.ListEmailLog(w, r)
	case path == "channel-log" && m == "GET":
		h.ListChannelLog(w, r)
	case path == "audit" && m == "GET":
		h.ListAudit(w, r)

	// License
	case path == "license" && m == "GET":
		h.GetLicense(w, r)
	case path == "license" && m == "POST":
		h.ActivateLicense(w, r)
	case path == "license" && m == "DELETE":
		h.DeactivateLicense(w, r)

	// Users
	case path == "users" && m == "GET":
		h.ListUsers(w, r)
	case path == "users" && m == "POST":
		h.CreateUser(w, r)

	default:
		response.Err(w, "not found", http.StatusNotFound)
	}
}
