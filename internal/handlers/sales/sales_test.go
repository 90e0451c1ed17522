package sales_test

import (
	"context"
	"database/sql"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"smtparts/internal/config"
	"smtparts/internal/handlers/sales"
	"smtparts/internal/models"
	"smtparts/internal/server"
	"smtparts/internal/testutil"
)

func newTestHandler(t *testing.T) (*sales.Handler, *sql.DB, string) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	cfg := config.Defaults()
	cfg.Company.Name = "Công ty TNHH SMT Test"
	return &sales.Handler{DB: db, Company: cfg.Company, Sales: cfg.Sales}, db, testutil.LoginAdmin(t, db)
}

func idStr(id int64) string { return strconv.FormatInt(id, 10) }

type fixture struct {
	customer, feeder, nozzle int64
}

func seed(t *testing.T, db *sql.DB) fixture {
	t.Helper()
	return fixture{
		customer: testutil.InsertCustomer(t, db, "Samsung Electro-Mechanics"),
		feeder:   testutil.InsertProduct(t, db, "FDR-8", "Feeder CL 8mm", 10, 4500000),
		nozzle:   testutil.InsertProduct(t, db, "NZ-72A", "Nozzle 72A", 40, 750000),
	}
}

func createQuotation(t *testing.T, h *sales.Handler, tok string, body map[string]any) models.Quotation {
	t.Helper()
	w := httptest.NewRecorder()
	h.CreateQuotation(w, testutil.AuthedJSONRequest("POST", "/api/v1/quotations", body, tok))
	testutil.AssertStatus(t, w, 201)
	var q models.Quotation
	testutil.DecodeEnvelope(t, w, &q)
	return q
}

func standardItems(f fixture) []map[string]any {
	return []map[string]any{
		{"product_id": f.feeder, "qty": 2, "unit_price": 4500000, "discount": 10},
		{"product_id": f.nozzle, "qty": 1, "unit_price": 750000},
	}
}

func TestCreateQuotation_Totals(t *testing.T) {
	h, db, tok := newTestHandler(t)
	f := seed(t, db)

	q := createQuotation(t, h, tok, map[string]any{"customer_id": f.customer, "items": standardItems(f)})
	wantCode := "BG-" + time.Now().Format("2006") + "-0001"
	if q.Code != wantCode {
		t.Errorf("code = %q, want %q", q.Code, wantCode)
	}
	if q.Status != "draft" || q.VATRate != 10 {
		t.Errorf("defaults not applied: status=%q vat=%v", q.Status, q.VATRate)
	}
	if q.Subtotal != 8850000 || q.VATAmount != 885000 || q.Total != 9735000 {
		t.Errorf("totals = %v / %v / %v", q.Subtotal, q.VATAmount, q.Total)
	}
	if len(q.Items) != 2 || q.Items[0].LineTotal != 8100000 || q.Items[0].Description != "Feeder CL 8mm" {
		t.Errorf("items = %+v", q.Items)
	}
	if q.Items[0].ProductCode != "FDR-8" || q.CustomerName != "Samsung Electro-Mechanics" {
		t.Error("joined names missing")
	}
	if q.ValidUntil == "" {
		t.Error("valid_until should default from the validity period")
	}

	zero := createQuotation(t, h, tok, map[string]any{"customer_id": f.customer, "vat_rate": 0, "items": standardItems(f)})
	if zero.VATRate != 0 || zero.Total != zero.Subtotal {
		t.Errorf("explicit 0%% VAT not honoured: %+v", zero)
	}
}

func TestCreateQuotation_Validation(t *testing.T) {
	h, db, tok := newTestHandler(t)
	f := seed(t, db)
	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{"no items", map[string]any{"customer_id": f.customer}, "items: at least one item is required"},
		{"no customer", map[string]any{"items": standardItems(f)}, "customer_id: is required"},
		{"bad vat", map[string]any{"customer_id": f.customer, "vat_rate": 7, "items": standardItems(f)}, "vat_rate"},
		{"zero qty", map[string]any{"customer_id": f.customer, "items": []map[string]any{{"description": "Công lắp đặt", "qty": 0}}}, "items[0].qty"},
		{"free text needs description", map[string]any{"customer_id": f.customer, "items": []map[string]any{{"qty": 1}}}, "items[0].description"},
		{"unknown product", map[string]any{"customer_id": f.customer, "items": []map[string]any{{"product_id": 999, "qty": 1}}}, "items[0].product_id"},
		{"bad discount", map[string]any{"customer_id": f.customer, "items": []map[string]any{{"product_id": f.feeder, "qty": 1, "discount": 120}}}, "items[0].discount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.CreateQuotation(w, testutil.AuthedJSONRequest("POST", "/", tt.body, tok))
			testutil.AssertStatus(t, w, 400)
			if msg := testutil.ErrorMessage(t, w); !strings.Contains(msg, tt.want) {
				t.Errorf("message %q should contain %q", msg, tt.want)
			}
		})
	}
}

func TestUpdateQuotation_ReplacesItems(t *testing.T) {
	h, db, tok := newTestHandler(t)
	f := seed(t, db)
	q := createQuotation(t, h, tok, map[string]any{"customer_id": f.customer, "items": standardItems(f)})

	w := httptest.NewRecorder()
	h.UpdateQuotation(w, testutil.AuthedJSONRequest("PUT", "/", map[string]any{
		"customer_id": f.customer, "status": "sent", "vat_rate": 8,
		"items": []map[string]any{{"product_id": f.nozzle, "qty": 4, "unit_price": 700000}},
	}, tok), idStr(q.ID))
	testutil.AssertStatus(t, w, 200)
	testutil.DecodeEnvelope(t, w, &q)
	if q.Status != "sent" || len(q.Items) != 1 || q.Subtotal != 2800000 || q.VATAmount != 224000 {
		t.Errorf("update = %+v", q)
	}
	var n int
	db.QueryRow("SELECT COUNT(*) FROM quotation_items WHERE quotation_id=?", q.ID).Scan(&n)
	if n != 1 {
		t.Errorf("old items left behind: %d rows", n)
	}
}

func TestDeleteQuotation_DraftOnly(t *testing.T) {
	h, db, tok := newTestHandler(t)
	f := seed(t, db)
	q := createQuotation(t, h, tok, map[string]any{"customer_id": f.customer, "status": "sent", "items": standardItems(f)})

	w := httptest.NewRecorder()
	h.DeleteQuotation(w, testutil.AuthedRequest("DELETE", "/", nil, tok), idStr(q.ID))
	testutil.AssertStatus(t, w, 409)

	d := createQuotation(t, h, tok, map[string]any{"customer_id": f.customer, "items": standardItems(f)})
	w = httptest.NewRecorder()
	h.DeleteQuotation(w, testutil.AuthedRequest("DELETE", "/", nil, tok), idStr(d.ID))
	testutil.AssertStatus(t, w, 200)
	var n int
	db.QueryRow("SELECT COUNT(*) FROM quotation_items WHERE quotation_id=?", d.ID).Scan(&n)
	if n != 0 {
		t.Error("items should cascade with the quotation")
	}
}

func TestConvertQuotation(t *testing.T) {
	h, db, tok := newTestHandler(t)
	f := seed(t, db)
	q := createQuotation(t, h, tok, map[string]any{"customer_id": f.customer, "items": standardItems(f)})

	w := httptest.NewRecorder()
	h.ConvertQuotation(w, testutil.AuthedRequest("POST", "/", nil, tok), idStr(q.ID))
	testutil.AssertStatus(t, w, 400)

	db.Exec("UPDATE quotations SET status='accepted' WHERE id=?", q.ID)
	w = httptest.NewRecorder()
	h.ConvertQuotation(w, testutil.AuthedRequest("POST", "/", nil, tok), idStr(q.ID))
	testutil.AssertStatus(t, w, 201)
	var o models.Order
	testutil.DecodeEnvelope(t, w, &o)
	if o.QuotationID == nil || *o.QuotationID != q.ID || o.Status != "pending" {
		t.Errorf("order = %+v", o)
	}
	if o.Total != q.Total || len(o.Items) != 2 || !strings.HasPrefix(o.Code, "DH-") {
		t.Errorf("order did not carry the quotation: %+v", o)
	}

	w = httptest.NewRecorder()
	h.ConvertQuotation(w, testutil.AuthedRequest("POST", "/", nil, tok), idStr(q.ID))
	testutil.AssertStatus(t, w, 409)
	if msg := testutil.ErrorMessage(t, w); !strings.Contains(msg, o.Code) {
		t.Errorf("message %q should name the order", msg)
	}

	w = httptest.NewRecorder()
	h.UpdateQuotation(w, testutil.AuthedJSONRequest("PUT", "/", map[string]any{"customer_id": f.customer, "items": standardItems(f)}, tok), idStr(q.ID))
	testutil.AssertStatus(t, w, 409)

	w = httptest.NewRecorder()
	h.GetQuotation(w, testutil.AuthedRequest("GET", "/", nil, tok), idStr(q.ID))
	testutil.DecodeEnvelope(t, w, &q)
	if q.OrderID == nil || *q.OrderID != o.ID {
		t.Error("quotation should report its order")
	}
}

func TestConvertQuotation_Concurrent(t *testing.T) {
	db := testutil.SetupFileDB(t)
	h := &sales.Handler{DB: db, Sales: config.Defaults().Sales}
	tok := testutil.LoginAdmin(t, db)
	f := seed(t, db)
	q := createQuotation(t, h, tok, map[string]any{"customer_id": f.customer, "items": standardItems(f)})
	db.Exec("UPDATE quotations SET status='accepted' WHERE id=?", q.ID)

	var (
		mu    sync.Mutex
		codes = map[int]int{}
	)
	var g errgroup.Group
	for i := 0; i < 6; i++ {
		g.Go(func() error {
			w := httptest.NewRecorder()
			h.ConvertQuotation(w, testutil.AuthedRequest("POST", "/", nil, tok), idStr(q.ID))
			mu.Lock()
			codes[w.Code]++
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	if codes[201] != 1 || codes[409] != 5 {
		t.Fatalf("statuses = %v, want one 201 and five 409", codes)
	}
	var n int
	db.QueryRow("SELECT COUNT(*) FROM orders WHERE quotation_id=?", q.ID).Scan(&n)
	if n != 1 {
		t.Errorf("%d orders for one quotation", n)
	}
}

func TestCreateOrder_ConcurrentCodes(t *testing.T) {
	db := testutil.SetupFileDB(t)
	h := &sales.Handler{DB: db, Sales: config.Defaults().Sales}
	tok := testutil.LoginAdmin(t, db)
	f := seed(t, db)

	recs := make([]*httptest.ResponseRecorder, 4)
	var g errgroup.Group
	for i := range recs {
		recs[i] = httptest.NewRecorder()
		g.Go(func() error {
			h.CreateOrder(recs[i], testutil.AuthedJSONRequest("POST", "/api/v1/orders", map[string]any{"customer_id": f.customer, "items": standardItems(f)}, tok))
			return nil
		})
	}
	g.Wait()
	codes := map[string]bool{}
	for _, w := range recs {
		testutil.AssertStatus(t, w, 201)
		var o models.Order
		testutil.DecodeEnvelope(t, w, &o)
		codes[o.Code] = true
	}
	if len(codes) != len(recs) {
		t.Errorf("codes = %v, want %d distinct", codes, len(recs))
	}
}

func TestCreatedByFromRequestContext(t *testing.T) {
	h, db, _ := newTestHandler(t)
	f := seed(t, db)

	// no session cookie: the name comes from what RequireAuth stored
	r := testutil.AuthedJSONRequest("POST", "/api/v1/orders", map[string]any{"customer_id": f.customer, "items": standardItems(f)}, "")
	r = r.WithContext(context.WithValue(r.Context(), server.CtxUsername, "thu.ng"))
	w := httptest.NewRecorder()
	h.CreateOrder(w, r)
	testutil.AssertStatus(t, w, 201)
	var o models.Order
	testutil.DecodeEnvelope(t, w, &o)
	if o.CreatedBy != "thu.ng" {
		t.Errorf("created_by = %q", o.CreatedBy)
	}
}

func createOrder(t *testing.T, h *sales.Handler, tok string, body map[string]any) models.Order {
	t.Helper()
	w := httptest.NewRecorder()
	h.CreateOrder(w, testutil.AuthedJSONRequest("POST", "/api/v1/orders", body, tok))
	testutil.AssertStatus(t, w, 201)
	var o models.Order
	testutil.DecodeEnvelope(t, w, &o)
	return o
}

func setStatus(h *sales.Handler, tok string, id int64, status string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.UpdateOrderStatus(w, testutil.AuthedJSONRequest("PUT", "/", map[string]string{"status": status}, tok), idStr(id))
	return w
}

func stockOf(t *testing.T, db *sql.DB, id int64) float64 {
	t.Helper()
	var s float64
	if err := db.QueryRow("SELECT stock FROM products WHERE id=?", id).Scan(&s); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestOrderStatus_StockMovement(t *testing.T) {
	h, db, tok := newTestHandler(t)
	f := seed(t, db)
	o := createOrder(t, h, tok, map[string]any{"customer_id": f.customer, "items": []map[string]any{
		{"product_id": f.feeder, "qty": 3, "unit_price": 4500000},
		{"description": "Phí vận chuyển", "qty": 1, "unit_price": 200000},
	}})
	if o.Status != "pending" || o.PaymentStatus != "unpaid" {
		t.Fatalf("defaults: %+v", o)
	}

	w := setStatus(h, tok, o.ID, "delivered")
	testutil.AssertStatus(t, w, 400)

	w = setStatus(h, tok, o.ID, "confirmed")
	testutil.AssertStatus(t, w, 200)
	if s := stockOf(t, db, f.feeder); s != 7 {
		t.Errorf("stock after confirm = %v, want 7", s)
	}

	testutil.AssertStatus(t, setStatus(h, tok, o.ID, "shipping"), 200)
	testutil.AssertStatus(t, setStatus(h, tok, o.ID, "cancelled"), 200)
	if s := stockOf(t, db, f.feeder); s != 10 {
		t.Errorf("stock after cancel = %v, want 10", s)
	}

	w = setStatus(h, tok, o.ID, "pending")
	testutil.AssertStatus(t, w, 400)
	if msg := testutil.ErrorMessage(t, w); msg != "cannot change order status from 'cancelled' to 'pending'" {
		t.Errorf("message = %q", msg)
	}
}

func TestOrderStatus_InsufficientStock(t *testing.T) {
	h, db, tok := newTestHandler(t)
	f := seed(t, db)
	o := createOrder(t, h, tok, map[string]any{"customer_id": f.customer, "items": []map[string]any{
		{"product_id": f.nozzle, "qty": 5},
		{"product_id": f.feeder, "qty": 11},
	}})

	w := setStatus(h, tok, o.ID, "confirmed")
	testutil.AssertStatus(t, w, 409)
	if msg := testutil.ErrorMessage(t, w); !strings.Contains(msg, "FDR-8") {
		t.Errorf("message %q should name the product", msg)
	}
	if s := stockOf(t, db, f.nozzle); s != 40 {
		t.Errorf("partial stock move was not rolled back: %v", s)
	}
	var status string
	db.QueryRow("SELECT status FROM orders WHERE id=?", o.ID).Scan(&status)
	if status != "pending" {
		t.Errorf("status = %q", status)
	}
}

func TestUpdateOrder_ItemsLockedAfterConfirm(t *testing.T) {
	h, db, tok := newTestHandler(t)
	f := seed(t, db)
	o := createOrder(t, h, tok, map[string]any{"customer_id": f.customer, "items": []map[string]any{
		{"product_id": f.nozzle, "qty": 2, "unit_price": 750000},
	}})
	testutil.AssertStatus(t, setStatus(h, tok, o.ID, "confirmed"), 200)

	w := httptest.NewRecorder()
	h.UpdateOrder(w, testutil.AuthedJSONRequest("PUT", "/", map[string]any{
		"customer_id": f.customer, "payment_status": "paid", "delivery_date": "2026-11-02",
		"items": []map[string]any{{"product_id": f.nozzle, "qty": 9, "unit_price": 1}},
	}, tok), idStr(o.ID))
	testutil.AssertStatus(t, w, 200)
	testutil.DecodeEnvelope(t, w, &o)
	if o.PaymentStatus != "paid" || o.DeliveryDate != "2026-11-02" {
		t.Errorf("header not updated: %+v", o)
	}
	if len(o.Items) != 1 || o.Items[0].Qty != 2 || o.Subtotal != 1500000 {
		t.Errorf("items of a confirmed order must not change: %+v", o.Items)
	}

	w = httptest.NewRecorder()
	h.DeleteOrder(w, testutil.AuthedRequest("DELETE", "/", nil, tok), idStr(o.ID))
	testutil.AssertStatus(t, w, 409)
}

func createDeal(t *testing.T, h *sales.Handler, tok string, body map[string]any) models.Deal {
	t.Helper()
	w := httptest.NewRecorder()
	h.CreateDeal(w, testutil.AuthedJSONRequest("POST", "/api/v1/deals", body, tok))
	testutil.AssertStatus(t, w, 201)
	var d models.Deal
	testutil.DecodeEnvelope(t, w, &d)
	return d
}

func board(t *testing.T, h *sales.Handler, tok string) []models.PipelineColumn {
	t.Helper()
	w := httptest.NewRecorder()
	h.GetBoard(w, testutil.AuthedRequest("GET", "/api/v1/deals/board", nil, tok))
	testutil.AssertStatus(t, w, 200)
	var cols []models.PipelineColumn
	testutil.DecodeEnvelope(t, w, &cols)
	return cols
}

func titles(c models.PipelineColumn) string {
	var s []string
	for _, d := range c.Deals {
		s = append(s, d.Title)
	}
	return strings.Join(s, ",")
}

func TestDealBoardAndMove(t *testing.T) {
	h, db, tok := newTestHandler(t)
	cust := testutil.InsertCustomer(t, db, "Foxconn Bắc Giang")
	a := createDeal(t, h, tok, map[string]any{"title": "A", "value": 100000000, "customer_id": cust})
	createDeal(t, h, tok, map[string]any{"title": "B", "value": 50000000})
	c := createDeal(t, h, tok, map[string]any{"title": "C"})
	if a.Stage != "lead" || a.Probability != 10 || a.Position != 0 || c.Position != 2 {
		t.Fatalf("defaults: %+v / %+v", a, c)
	}

	cols := board(t, h, tok)
	if len(cols) != 6 || cols[0].Stage != "lead" || cols[0].Label != "Tiềm năng" {
		t.Fatalf("columns = %+v", cols)
	}
	if titles(cols[0]) != "A,B,C" || cols[0].TotalValue != 150000000 {
		t.Errorf("lead column = %q, total %v", titles(cols[0]), cols[0].TotalValue)
	}

	w := httptest.NewRecorder()
	h.MoveDeal(w, testutil.AuthedJSONRequest("PUT", "/", sales.MoveRequest{Stage: "lead", Position: 0}, tok), idStr(c.ID))
	testutil.AssertStatus(t, w, 200)
	if got := titles(board(t, h, tok)[0]); got != "C,A,B" {
		t.Errorf("reorder = %q", got)
	}

	w = httptest.NewRecorder()
	h.MoveDeal(w, testutil.AuthedJSONRequest("PUT", "/", sales.MoveRequest{Stage: "won", Position: 5}, tok), idStr(a.ID))
	testutil.AssertStatus(t, w, 200)
	var moved models.Deal
	testutil.DecodeEnvelope(t, w, &moved)
	if moved.Stage != "won" || moved.Probability != 100 || moved.Position != 0 {
		t.Errorf("moved = %+v", moved)
	}
	cols = board(t, h, tok)
	if titles(cols[0]) != "C,B" || cols[4].TotalValue != 100000000 {
		t.Errorf("after move: lead=%q won total=%v", titles(cols[0]), cols[4].TotalValue)
	}
	var pos int
	db.QueryRow("SELECT position FROM deals WHERE title='B'").Scan(&pos)
	if pos != 1 {
		t.Errorf("source column not renumbered: B at %d", pos)
	}

	w = httptest.NewRecorder()
	h.MoveDeal(w, testutil.AuthedJSONRequest("PUT", "/", sales.MoveRequest{Stage: "archived"}, tok), idStr(a.ID))
	testutil.AssertStatus(t, w, 400)
}

func TestDeleteDeal_Renumbers(t *testing.T) {
	h, db, tok := newTestHandler(t)
	a := createDeal(t, h, tok, map[string]any{"title": "A"})
	createDeal(t, h, tok, map[string]any{"title": "B"})

	w := httptest.NewRecorder()
	h.DeleteDeal(w, testutil.AuthedRequest("DELETE", "/", nil, tok), idStr(a.ID))
	testutil.AssertStatus(t, w, 200)
	var pos int
	db.QueryRow("SELECT position FROM deals WHERE title='B'").Scan(&pos)
	if pos != 0 {
		t.Errorf("B at %d, want 0", pos)
	}
}

func TestExportQuotation(t *testing.T) {
	h, db, tok := newTestHandler(t)
	f := seed(t, db)
	q := createQuotation(t, h, tok, map[string]any{"customer_id": f.customer, "items": standardItems(f), "notes": "Giao hàng trong 7 ngày"})

	w := httptest.NewRecorder()
	h.ExportQuotation(w, testutil.AuthedRequest("GET", "/", nil, tok), idStr(q.ID))
	testutil.AssertStatus(t, w, 200)
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, q.Code+".xlsx") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	wb, err := excelize.OpenReader(w.Body)
	if err != nil {
		t.Fatal(err)
	}
	defer wb.Close()
	for cell, want := range map[string]string{
		"A1":  "Công ty TNHH SMT Test",
		"A6":  "BÁO GIÁ",
		"B11": "FDR-8",
		"C12": "Nozzle 72A",
	} {
		if got, _ := wb.GetCellValue("Báo giá", cell); got != want {
			t.Errorf("%s = %q, want %q", cell, got, want)
		}
	}
	if got, _ := wb.GetCellValue("Báo giá", "E16"); got != "Tổng cộng" {
		t.Errorf("E16 = %q", got)
	}
}
