package models

// APIResponse is the standard JSON envelope for all API responses.
type APIResponse struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	Total int `json:"total,omitempty"`
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
}

// ActionResult is the {success, message} body returned by storefront and
// admin actions.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Stock statuses.
const (
	StockInStock    = "instock"
	StockOutOfStock = "outofstock"
)

type Product struct {
	ID          int64  `json:"id"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Price       string `json:"price"`
	StockQty    int    `json:"stock_qty"`
	StockStatus string `json:"stock_status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type WaitlistEntry struct {
	ID            int64   `json:"id"`
	ProductID     int64   `json:"product_id"`
	CustomerEmail string  `json:"customer_email"`
	CustomerName  string  `json:"customer_name"`
	DateAdded     string  `json:"date_added"`
	Notified      bool    `json:"notified"`
	NotifiedAt    *string `json:"notified_at"`
}

// WaitlistOverview is one row of the admin "products with a waitlist" view.
type WaitlistOverview struct {
	ProductID   int64  `json:"product_id"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	StockQty    int    `json:"stock_qty"`
	StockStatus string `json:"stock_status"`
	Total       int    `json:"total"`
	Unnotified  int    `json:"unnotified"`
}

// Supplier notification channels.
const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
	ChannelSMS      = "sms"
)

type SupplierRecord struct {
	ProductID      int64    `json:"product_id"`
	SupplierName   string   `json:"supplier_name"`
	SupplierEmail  string   `json:"supplier_email"`
	SupplierPhone  string   `json:"supplier_phone"`
	Threshold      *int     `json:"threshold"`
	Channels       []string `json:"channels"`
	AutoGeneratePO bool     `json:"auto_generate_po"`
	AlertArmed     bool     `json:"alert_armed"`
	LastAlertAt    *string  `json:"last_alert_at"`
	UpdatedAt      string   `json:"updated_at"`
}

// HasChannel reports whether ch is enabled for the supplier.
func (s *SupplierRecord) HasChannel(ch string) bool {
	for _, c := range s.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// Restock methods recorded in the restock log.
const (
	RestockManual       = "manual"
	RestockCSVUpload    = "csv_upload"
	RestockQuick        = "quick_restock"
	RestockSupplierLink = "supplier_link"
)

type RestockLogEntry struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Method    string `json:"method"`
	IPAddress string `json:"ip_address"`
	Actor     string `json:"actor"`
	BatchID   string `json:"batch_id"`
	CreatedAt string `json:"created_at"`
}

// ActionToken is a single-use supplier link credential. ProductID is zero for
// CSV upload tokens.
type ActionToken struct {
	Token         string  `json:"-"`
	Kind          string  `json:"kind"`
	ProductID     int64   `json:"product_id,omitempty"`
	SupplierEmail string  `json:"supplier_email"`
	CreatedAt     string  `json:"created_at"`
	ExpiresAt     string  `json:"expires_at"`
	Used          bool    `json:"used"`
	UsedAt        *string `json:"used_at"`
}

type PurchaseOrder struct {
	PONumber      string `json:"po_number"`
	Scope         string `json:"scope"`
	Seq           int    `json:"seq"`
	ProductID     int64  `json:"product_id"`
	SupplierEmail string `json:"supplier_email"`
	Quantity      int    `json:"quantity"`
	UnitPrice     string `json:"unit_price"`
	TotalAmount   string `json:"total_amount"`
	Status        string `json:"status"`
	PDFPath       string `json:"document_path"`
	CreatedAt     string `json:"created_at"`
}

type EmailLogEntry struct {
	ID        int    `json:"id"`
	To        string `json:"to_address"`
	Subject   string `json:"subject"`
	EventType string `json:"event_type"`
	Status    string `json:"status"`
	Error     string `json:"error"`
	SentAt    string `json:"sent_at"`
}

type ChannelLogEntry struct {
	ID        int    `json:"id"`
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
	Payload   string `json:"payload"`
	Status    string `json:"status"`
	Error     string `json:"error"`
	SentAt    string `json:"sent_at"`
}

type AuditEntry struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Action    string `json:"action"`
	Module    string `json:"module"`
	RecordID  string `json:"record_id"`
	Summary   string `json:"summary"`
	IPAddress string `json:"ip_address"`
	CreatedAt string `json:"created_at"`
}

type User struct {
	ID          int    `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Active      bool   `json:"active"`
}
