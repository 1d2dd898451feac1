package purchasing

import (
	"bytes"
	"html/template"

	"stockwatch/internal/models"
)

type documentData struct {
	SiteName string
	PO       *models.PurchaseOrder
	Product  *models.Product
	Supplier *models.SupplierRecord
}

var documentTmpl = template.Must(template.New("po").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>Purchase Order {{.PO.PONumber}}</title>
<style>
body{font-family:-apple-system,'Segoe UI',Roboto,sans-serif;color:#222;max-width:800px;margin:40px auto}
table{width:100%;border-collapse:collapse;margin-top:24px}
th,td{border:1px solid #ccc;padding:8px;text-align:left}
th{background:#f5f5f5}
.right{text-align:right}
@media print{body{margin:0}}
</style>
</head>
<body>
<h1>Purchase Order</h1>
<p><strong>{{.PO.PONumber}}</strong><br>Date: {{.PO.CreatedAt}}<br>Status: {{.PO.Status}}</p>
<h3>From</h3>
<p>{{.SiteName}}</p>
<h3>To</h3>
<p>{{if .Supplier.SupplierName}}{{.Supplier.SupplierName}}<br>{{end}}{{.Supplier.SupplierEmail}}</p>
<table>
<tr><th>SKU</th><th>Product</th><th class="right">Quantity</th><th class="right">Unit price</th><th class="right">Total</th></tr>
<tr><td>{{.Product.SKU}}</td><td>{{.Product.Name}}</td><td class="right">{{.PO.Quantity}}</td><td class="right">{{.PO.UnitPrice}}</td><td class="right">{{.PO.TotalAmount}}</td></tr>
<tr><td colspan="4" class="right"><strong>Total</strong></td><td class="right"><strong>{{.PO.TotalAmount}}</strong></td></tr>
</table>
</body>
</html>
`))

// RenderDocument returns the printable HTML for po.
func RenderDocument(siteName string, po *models.PurchaseOrder, p *models.Product, sup *models.SupplierRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := documentTmpl.Execute(&buf, documentData{SiteName: siteName, PO: po, Product: p, Supplier: sup}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
