package supplierlink

import (
	"html/template"
	"log"
	"net/http"

	"stockwatch/internal/csvupload"
	"stockwatch/internal/models"
)

const layout = `{{define "top"}}<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Site}}</title>
<style>body{font-family:Arial,sans-serif;max-width:640px;margin:40px auto;color:#333}
.err{color:#b00020}.ok{color:#1b5e20}table{border-collapse:collapse;width:100%}td,th{border:1px solid #ddd;padding:4px 8px;text-align:left}</style>
</head><body><h2>{{.Site}}</h2>{{end}}
{{define "bottom"}}</body></html>{{end}}`

var pages = template.Must(template.New("pages").Parse(layout + `
{{define "invalid"}}{{template "top" .}}
<p class="err">This link is invalid or has expired.</p>
<p>Please contact the store for a new link.</p>
{{template "bottom" .}}{{end}}

{{define "unavailable"}}{{template "top" .}}
<p class="err">Supplier links are currently unavailable.</p>
{{template "bottom" .}}{{end}}

{{define "restock_form"}}{{template "top" .}}
<h3>Restock {{.Product.Name}} ({{.Product.SKU}})</h3>
<p>Current stock: {{.Product.StockQty}}</p>
{{if .Error}}<p class="err">{{.Error}}</p>{{end}}
<form method="post" action="/supplier/restock">
<input type="hidden" name="token" value="{{.Token}}">
<input type="hidden" name="product_id" value="{{.Product.ID}}">
<label>Quantity received <input type="number" name="quantity" min="0" required></label>
<button type="submit">Update stock</button>
</form>
{{template "bottom" .}}{{end}}

{{define "restock_done"}}{{template "top" .}}
<p class="ok">Thank you. Stock for {{.Product.Name}} is now {{.NewQty}}.</p>
<p>{{.Notified}} waiting customers have been notified.</p>
{{template "bottom" .}}{{end}}

{{define "upload_form"}}{{template "top" .}}
<h3>Bulk stock update</h3>
<p>Upload a CSV or XLSX file with the columns <code>sku</code> and <code>quantity</code>.</p>
{{if .Error}}<p class="err">{{.Error}}</p>{{end}}
<form method="post" action="/supplier/upload" enctype="multipart/form-data">
<input type="hidden" name="token" value="{{.Token}}">
<input type="file" name="file" accept=".csv,.xlsx" required>
<button type="submit">Upload</button>
</form>
{{template "bottom" .}}{{end}}

{{define "upload_done"}}{{template "top" .}}
<p class="ok">Upload processed: {{.Summary.Success}} updated, {{.Summary.Skipped}} skipped, {{.Summary.Errors}} errors.</p>
<table><tr><th>Line</th><th>SKU</th><th>Quantity</th><th>Status</th><th>Message</th></tr>
{{range .Summary.Rows}}<tr><td>{{.Line}}</td><td>{{.SKU}}</td><td>{{.Quantity}}</td><td>{{.Status}}</td><td>{{.Message}}</td></tr>{{end}}
</table>
{{template "bottom" .}}{{end}}
`))

type pageData struct {
	Site     string
	Token    string
	Error    string
	Product  *models.Product
	NewQty   int
	Notified int
	Summary  *csvupload.Summary
}

func render(w http.ResponseWriter, code int, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		log.Printf("supplierlink: render %s: %v", name, err)
	}
}
