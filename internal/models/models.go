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

// Product is a catalog entry. Numeric fields are nil when unknown.
type Product struct {
	ID           int64    `json:"id"`
	Code         string   `json:"code"`
	Name         string   `json:"name"`
	Brand        string   `json:"brand"`
	MachineModel string   `json:"machine_model"`
	Category     string   `json:"category"`
	Unit         string   `json:"unit"`
	Stock        *float64 `json:"stock"`
	CostPrice    *float64 `json:"cost_price"`
	SalePrice    *float64 `json:"sale_price"`
	SupplierID   *int64   `json:"supplier_id"`
	SupplierName string   `json:"supplier_name,omitempty"`
	Location     string   `json:"location"`
	Notes        string   `json:"notes"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

type Supplier struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ContactName string `json:"contact_name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	Address     string `json:"address"`
	TaxCode     string `json:"tax_code"`
	Country     string `json:"country"`
	Notes       string `json:"notes"`
	CreatedAt   string `json:"created_at"`
}

type Customer struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Company     string `json:"company"`
	ContactName string `json:"contact_name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	Address     string `json:"address"`
	TaxCode     string `json:"tax_code"`
	Notes       string `json:"notes"`
	CreatedAt   string `json:"created_at"`
}

// LineItem is a priced line on a quotation or an order.
type LineItem struct {
	ID          int64   `json:"id"`
	ParentID    int64   `json:"parent_id"`
	ProductID   *int64  `json:"product_id"`
	ProductCode string  `json:"product_code,omitempty"`
	Description string  `json:"description"`
	Qty         float64 `json:"qty"`
	UnitPrice   float64 `json:"unit_price"`
	Discount    float64 `json:"discount"`
	LineTotal   float64 `json:"line_total"`
}

type Quotation struct {
	ID           int64      `json:"id"`
	Code         string     `json:"code"`
	CustomerID   int64      `json:"customer_id"`
	CustomerName string     `json:"customer_name,omitempty"`
	Status       string     `json:"status"`
	ValidUntil   string     `json:"valid_until"`
	VATRate      float64    `json:"vat_rate"`
	Notes        string     `json:"notes"`
	Items        []LineItem `json:"items"`
	Subtotal     float64    `json:"subtotal"`
	VATAmount    float64    `json:"vat_amount"`
	Total        float64    `json:"total"`
	OrderID      *int64     `json:"order_id,omitempty"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    string     `json:"created_at"`
	UpdatedAt    string     `json:"updated_at"`
}

type Order struct {
	ID            int64      `json:"id"`
	Code          string     `json:"code"`
	QuotationID   *int64     `json:"quotation_id"`
	CustomerID    int64      `json:"customer_id"`
	CustomerName  string     `json:"customer_name,omitempty"`
	Status        string     `json:"status"`
	PaymentStatus string     `json:"payment_status"`
	DeliveryDate  string     `json:"delivery_date"`
	VATRate       float64    `json:"vat_rate"`
	Notes         string     `json:"notes"`
	Items         []LineItem `json:"items"`
	Subtotal      float64    `json:"subtotal"`
	VATAmount     float64    `json:"vat_amount"`
	Total         float64    `json:"total"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     string     `json:"created_at"`
	UpdatedAt     string     `json:"updated_at"`
}

type Deal struct {
	ID            int64    `json:"id"`
	Title         string   `json:"title"`
	CustomerID    *int64   `json:"customer_id"`
	CustomerName  string   `json:"customer_name,omitempty"`
	Value         *float64 `json:"value"`
	Stage         string   `json:"stage"`
	Probability   int      `json:"probability"`
	ExpectedClose string   `json:"expected_close"`
	Position      int      `json:"position"`
	Notes         string   `json:"notes"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}

// PipelineColumn is one stage of the deals board.
type PipelineColumn struct {
	Stage      string  `json:"stage"`
	Label      string  `json:"label"`
	Deals      []Deal  `json:"deals"`
	TotalValue float64 `json:"total_value"`
}

type DashboardData struct {
	Products        int              `json:"products"`
	Suppliers       int              `json:"suppliers"`
	Customers       int              `json:"customers"`
	LowStock        []Product        `json:"low_stock"`
	OpenQuotations  int              `json:"open_quotations"`
	OpenQuoteValue  float64          `json:"open_quote_value"`
	OrdersThisMonth int              `json:"orders_this_month"`
	RevenueMonth    float64          `json:"revenue_month"`
	Pipeline        []PipelineColumn `json:"pipeline"`
}

type AuditEntry struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Action    string `json:"action"`
	Module    string `json:"module"`
	RecordID  string `json:"record_id"`
	Summary   string `json:"summary"`
	CreatedAt string `json:"created_at"`
}

type User struct {
	ID          int    `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// BulkResponse reports per-record results for bulk endpoints.
type BulkResponse struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
}
