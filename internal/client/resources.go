package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"smtparts/internal/models"
)

// Cache groups. Listings that embed another resource's fields (supplier
// names on products, customer names on documents) are invalidated with it.
const (
	resProducts   = "products"
	resSuppliers  = "suppliers"
	resCustomers  = "customers"
	resQuotations = "quotations"
	resOrders     = "orders"
	resDeals      = "deals"
	resDashboard  = "dashboard"
)

func idPath(base string, id int64, suffix ...string) string {
	p := base + "/" + strconv.FormatInt(id, 10)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}

func itoa(v int64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}

// --- products ---

// ProductQuery filters the product listing.
type ProductQuery struct {
	Q          string
	Category   string
	SupplierID int64
	LowStock   bool
	Page       int
	Limit      int
}

func (q ProductQuery) encode() string {
	low := ""
	if q.LowStock {
		low = "true"
	}
	return query("q", q.Q, "category", q.Category, "supplier_id", itoa(q.SupplierID),
		"low_stock", low, "page", itoa(int64(q.Page)), "limit", itoa(int64(q.Limit)))
}

func (c *Client) ListProducts(ctx context.Context, q ProductQuery) ([]models.Product, *models.Meta, error) {
	var out []models.Product
	meta, err := c.get(ctx, resProducts, "/api/v1/products"+q.encode(), &out)
	return out, meta, err
}

func (c *Client) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var p models.Product
	if _, err := c.get(ctx, resProducts, idPath("/api/v1/products", id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProduct posts body, a models.Product or a field map.
func (c *Client) CreateProduct(ctx context.Context, body any) (*models.Product, error) {
	var p models.Product
	if err := c.mutate(ctx, http.MethodPost, "/api/v1/products", body, &p, resProducts, resDashboard); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProduct replaces the full field set.
func (c *Client) UpdateProduct(ctx context.Context, id int64, p models.Product) (*models.Product, error) {
	var out models.Product
	if err := c.mutate(ctx, http.MethodPut, idPath("/api/v1/products", id), p, &out, resProducts, resDashboard); err != nil {
		return nil, err
	}
	return &out, nil
}

// PatchProduct sends a partial field set; a nil value clears the field.
func (c *Client) PatchProduct(ctx context.Context, id int64, fields map[string]any) (*models.Product, error) {
	var out models.Product
	if err := c.mutate(ctx, http.MethodPatch, idPath("/api/v1/products", id), fields, &out, resProducts, resDashboard); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteProduct(ctx context.Context, id int64) error {
	return c.mutate(ctx, http.MethodDelete, idPath("/api/v1/products", id), nil, nil, resProducts, resDashboard)
}

// BulkUpdateProducts applies one partial field set to many products.
func (c *Client) BulkUpdateProducts(ctx context.Context, ids []int64, updates map[string]any) (*models.BulkResponse, error) {
	var out models.BulkResponse
	body := map[string]any{"ids": ids, "updates": updates}
	if err := c.mutate(ctx, http.MethodPost, "/api/v1/products/bulk-update", body, &out, resProducts, resDashboard); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ProductCategories(ctx context.Context) ([]string, error) {
	var out []string
	_, err := c.get(ctx, resProducts, "/api/v1/products/categories", &out)
	return out, err
}

// --- suppliers and customers ---

func (c *Client) ListSuppliers(ctx context.Context, q string) ([]models.Supplier, error) {
	var out []models.Supplier
	_, err := c.get(ctx, resSuppliers, "/api/v1/suppliers"+query("q", q), &out)
	return out, err
}

func (c *Client) GetSupplier(ctx context.Context, id int64) (*models.Supplier, error) {
	var s models.Supplier
	if _, err := c.get(ctx, resSuppliers, idPath("/api/v1/suppliers", id), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) CreateSupplier(ctx context.Context, s models.Supplier) (*models.Supplier, error) {
	var out models.Supplier
	if err := c.mutate(ctx, http.MethodPost, "/api/v1/suppliers", s, &out, resSuppliers, resDashboard); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateSupplier(ctx context.Context, id int64, s models.Supplier) (*models.Supplier, error) {
	var out models.Supplier
	if err := c.mutate(ctx, http.MethodPut, idPath("/api/v1/suppliers", id), s, &out, resSuppliers, resProducts); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteSupplier(ctx context.Context, id int64) error {
	return c.mutate(ctx, http.MethodDelete, idPath("/api/v1/suppliers", id), nil, nil, resSuppliers, resProducts, resDashboard)
}

func (c *Client) ListCustomers(ctx context.Context, q string) ([]models.Customer, error) {
	var out []models.Customer
	_, err := c.get(ctx, resCustomers, "/api/v1/customers"+query("q", q), &out)
	return out, err
}

func (c *Client) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	var cu models.Customer
	if _, err := c.get(ctx, resCustomers, idPath("/api/v1/customers", id), &cu); err != nil {
		return nil, err
	}
	return &cu, nil
}

func (c *Client) CreateCustomer(ctx context.Context, cu models.Customer) (*models.Customer, error) {
	var out models.Customer
	if err := c.mutate(ctx, http.MethodPost, "/api/v1/customers", cu, &out, resCustomers, resDashboard); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateCustomer(ctx context.Context, id int64, cu models.Customer) (*models.Customer, error) {
	var out models.Customer
	err := c.mutate(ctx, http.MethodPut, idPath("/api/v1/customers", id), cu, &out,
		resCustomers, resQuotations, resOrders, resDeals)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteCustomer(ctx context.Context, id int64) error {
	return c.mutate(ctx, http.MethodDelete, idPath("/api/v1/customers", id), nil, nil, resCustomers, resDashboard)
}

// --- quotations and orders ---

// DocumentInput is the create/update body of quotations and orders.
// VATRate nil means the server default.
type DocumentInput struct {
	CustomerID    int64             `json:"customer_id"`
	Status        string            `json:"status,omitempty"`
	ValidUntil    string            `json:"valid_until,omitempty"`
	PaymentStatus string            `json:"payment_status,omitempty"`
	DeliveryDate  string            `json:"delivery_date,omitempty"`
	VATRate       *float64          `json:"vat_rate,omitempty"`
	Notes         string            `json:"notes"`
	Items         []models.LineItem `json:"items"`
}

func (c *Client) ListQuotations(ctx context.Context, status string, customerID int64) ([]models.Quotation, error) {
	var out []models.Quotation
	_, err := c.get(ctx, resQuotations, "/api/v1/quotations"+query("status", status, "customer_id", itoa(customerID)), &out)
	return out, err
}

func (c *Client) GetQuotation(ctx context.Context, id int64) (*models.Quotation, error) {
	var q models.Quotation
	if _, err := c.get(ctx, resQuotations, idPath("/api/v1/quotations", id), &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (c *Client) CreateQuotation(ctx context.Context, in DocumentInput) (*models.Quotation, error) {
	var out models.Quotation
	if err := c.mutate(ctx, http.MethodPost, "/api/v1/quotations", in, &out, resQuotations, resDashboard); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateQuotation(ctx context.Context, id int64, in DocumentInput) (*models.Quotation, error) {
	var out models.Quotation
	if err := c.mutate(ctx, http.MethodPut, idPath("/api/v1/quotations", id), in, &out, resQuotations, resDashboard); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteQuotation(ctx context.Context, id int64) error {
	return c.mutate(ctx, http.MethodDelete, idPath("/api/v1/quotations", id), nil, nil, resQuotations, resDashboard)
}

// ConvertQuotation turns an accepted quotation into an order.
func (c *Client) ConvertQuotation(ctx context.Context, id int64) (*models.Order, error) {
	var out models.Order
	err := c.mutate(ctx, http.MethodPost, idPath("/api/v1/quotations", id, "convert"), nil, &out,
		resQuotations, resOrders, resDashboard)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ExportQuotation writes the quotation workbook to w.
func (c *Client) ExportQuotation(ctx context.Context, id int64, w io.Writer) error {
	data, err := c.raw(ctx, http.MethodGet, idPath("/api/v1/quotations", id, "export")+"?format=xlsx", nil)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

func (c *Client) ListOrders(ctx context.Context, status string, customerID int64) ([]models.Order, error) {
	var out []models.Order
	_, err := c.get(ctx, resOrders, "/api/v1/orders"+query("status", status, "customer_id", itoa(customerID)), &out)
	return out, err
}

func (c *Client) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var o models.Order
	if _, err := c.get(ctx, resOrders, idPath("/api/v1/orders", id), &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *Client) CreateOrder(ctx context.Context, in DocumentInput) (*models.Order, error) {
	var out models.Order
	if err := c.mutate(ctx, http.MethodPost, "/api/v1/orders", in, &out, resOrders, resDashboard); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateOrder(ctx context.Context, id int64, in DocumentInput) (*models.Order, error) {
	var out models.Order
	if err := c.mutate(ctx, http.MethodPut, idPath("/api/v1/orders", id), in, &out, resOrders, resDashboard); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetOrderStatus moves an order through its lifecycle. Confirming and
// cancelling move stock, so products are invalidated too.
func (c *Client) SetOrderStatus(ctx context.Context, id int64, status string) (*models.Order, error) {
	var out models.Order
	err := c.mutate(ctx, http.MethodPut, idPath("/api/v1/orders", id, "status"), map[string]string{"status": status}, &out,
		resOrders, resProducts, resDashboard)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteOrder(ctx context.Context, id int64) error {
	return c.mutate(ctx, http.MethodDelete, idPath("/api/v1/orders", id), nil, nil, resOrders, resDashboard)
}

// --- deals ---

func (c *Client) ListDeals(ctx context.Context, stage string) ([]models.Deal, error) {
	var out []models.Deal
	_, err := c.get(ctx, resDeals, "/api/v1/deals"+query("stage", stage), &out)
	return out, err
}

func (c *Client) GetDeal(ctx context.Context, id int64) (*models.Deal, error) {
	var d models.Deal
	if _, err := c.get(ctx, resDeals, idPath("/api/v1/deals", id), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) CreateDeal(ctx context.Context, d models.Deal) (*models.Deal, error) {
	var out models.Deal
	if err := c.mutate(ctx, http.MethodPost, "/api/v1/deals", d, &out, resDeals, resDashboard); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateDeal(ctx context.Context, id int64, d models.Deal) (*models.Deal, error) {
	var out models.Deal
	if err := c.mutate(ctx, http.MethodPut, idPath("/api/v1/deals", id), d, &out, resDeals, resDashboard); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteDeal(ctx context.Context, id int64) error {
	return c.mutate(ctx, http.MethodDelete, idPath("/api/v1/deals", id), nil, nil, resDeals, resDashboard)
}

// Board returns the deal pipeline in stage order.
func (c *Client) Board(ctx context.Context) ([]models.PipelineColumn, error) {
	var out []models.PipelineColumn
	_, err := c.get(ctx, resDeals, "/api/v1/deals/board", &out)
	return out, err
}

// MoveDeal places a deal at position within stage.
func (c *Client) MoveDeal(ctx context.Context, id int64, stage string, position int) (*models.Deal, error) {
	var out models.Deal
	body := map[string]any{"stage": stage, "position": position}
	if err := c.mutate(ctx, http.MethodPut, idPath("/api/v1/deals", id, "move"), body, &out, resDeals, resDashboard); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- dashboard ---

func (c *Client) Dashboard(ctx context.Context) (*models.DashboardData, error) {
	var out models.DashboardData
	if _, err := c.get(ctx, resDashboard, "/api/v1/dashboard", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
