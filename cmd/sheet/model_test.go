package main

import (
	"context"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"smtparts/internal/client"
	"smtparts/internal/grid"
	"smtparts/internal/models"
	"smtparts/internal/websocket"
)

type fakeStore struct {
	mu        sync.Mutex
	products  []models.Product
	patches   []map[string]any
	created   []map[string]any
	failPatch error
}

func f(v float64) *float64 { return &v }

func newFakeStore() *fakeStore {
	return &fakeStore{products: []models.Product{
		{ID: 1, Code: "FDR-8", Name: "Feeder 8mm", Brand: "Fuji", Unit: "cái", Stock: f(10), SalePrice: f(4500000)},
		{ID: 2, Code: "NZ-1", Name: "Nozzle 1.0", Brand: "Juki", Unit: "cái", Stock: f(3)},
	}}
}

func (s *fakeStore) ListProducts(ctx context.Context, q client.ProductQuery) ([]models.Product, *models.Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]models.Product(nil), s.products...)
	return out, &models.Meta{Total: len(out), Page: q.Page, Limit: q.Limit}, nil
}

func (s *fakeStore) PatchProduct(ctx context.Context, id int64, fields map[string]any) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patches = append(s.patches, fields)
	if s.failPatch != nil {
		return nil, s.failPatch
	}
	for i := range s.products {
		p := &s.products[i]
		if p.ID != id {
			continue
		}
		for k, v := range fields {
			switch k {
			case "code":
				p.Code, _ = v.(string)
			case "name":
				p.Name, _ = v.(string)
			case "brand":
				p.Brand, _ = v.(string)
			case "stock":
				if x, ok := v.(float64); ok {
					p.Stock = f(x)
				}
			}
		}
		cp := *p
		return &cp, nil
	}
	return nil, &client.APIError{Status: 404, Message: "product not found"}
}

func (s *fakeStore) CreateProduct(ctx context.Context, body any) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields := body.(map[string]any)
	s.created = append(s.created, fields)
	p := models.Product{ID: int64(len(s.products) + 1)}
	p.Code, _ = fields["code"].(string)
	p.Name, _ = fields["name"].(string)
	p.Unit, _ = fields["unit"].(string)
	s.products = append(s.products, p)
	return &p, nil
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "ctrl+u":
		return tea.KeyMsg{Type: tea.KeyCtrlU}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press feeds keys to the model and returns the command of the last one.
func press(m model, keys ...string) (model, tea.Cmd) {
	var cmd tea.Cmd
	for _, k := range keys {
		var tm tea.Model
		tm, cmd = m.Update(key(k))
		m = tm.(model)
	}
	return m, cmd
}

// run executes a command produced by the model and feeds its result back.
func run(t *testing.T, m model, cmd tea.Cmd) model {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	tm, _ := m.Update(cmd())
	return tm.(model)
}

func setup(t *testing.T) (model, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	m := newModel(context.Background(), store, client.ProductQuery{})
	tm, _ := m.Update(tea.WindowSizeMsg{Width: 220, Height: 30})
	m = tm.(model)
	m = run(t, m, m.Init())
	if m.loading || m.err != nil {
		t.Fatalf("load: loading=%v err=%v", m.loading, m.err)
	}
	if len(m.g.Rows()) != 2 {
		t.Fatalf("rows = %v", m.g.Rows())
	}
	return m, store
}

func TestEditAndSave(t *testing.T) {
	m, store := setup(t)

	m, _ = press(m, "right", "right", "right", "right", "right", "right", "enter")
	if _, col, editing := m.g.Cursor(); !editing || col != "stock" {
		t.Fatalf("cursor = %s editing=%v", col, editing)
	}
	if m.input.Value() != "10" {
		t.Errorf("input = %q", m.input.Value())
	}

	m, _ = press(m, "ctrl+u", "7")
	m, cmd := press(m, "enter")
	if m.g.Status(1) != grid.StatusSaving {
		t.Errorf("status = %s", m.g.Status(1))
	}
	m = run(t, m, cmd)

	if len(store.patches) != 1 || store.patches[0]["stock"] != 7.0 || len(store.patches[0]) != 1 {
		t.Fatalf("patches = %v", store.patches)
	}
	if m.g.IsDirty(1) || m.g.Value(1, "stock") != 7.0 {
		t.Errorf("after save dirty=%v stock=%v", m.g.IsDirty(1), m.g.Value(1, "stock"))
	}
	if !strings.Contains(m.View(), "Đã lưu 1 dòng") {
		t.Errorf("view missing save notice:\n%s", m.View())
	}
}

func TestTabAndEscape(t *testing.T) {
	m, store := setup(t)

	m, _ = press(m, "enter", "ctrl+u", "FDR-8X", "tab")
	if _, col, editing := m.g.Cursor(); !editing || col != "name" {
		t.Fatalf("after tab cursor = %s editing=%v", col, editing)
	}
	m, _ = press(m, "shift+tab")
	if m.input.Value() != "FDR-8X" {
		t.Errorf("back on code input = %q", m.input.Value())
	}
	m, _ = press(m, "esc")
	if _, _, editing := m.g.Cursor(); editing {
		t.Error("still editing after esc")
	}
	if m.g.Cell(1, "code") != "FDR-8X" || !m.g.IsCellDirty(1, "code") {
		t.Errorf("code = %q", m.g.Cell(1, "code"))
	}

	m, _ = press(m, "u")
	if m.g.IsDirty(1) || m.g.Cell(1, "code") != "FDR-8" {
		t.Errorf("revert left %v", m.g.Dirty(1))
	}
	if len(store.patches) != 0 {
		t.Errorf("unexpected saves %v", store.patches)
	}
}

func TestSelectColumnAndSaveAll(t *testing.T) {
	m, store := setup(t)

	m, _ = press(m, "right", "right", "enter")
	if m.input.Value() != "Fuji" {
		t.Fatalf("brand input = %q", m.input.Value())
	}
	m, _ = press(m, "right")
	if m.input.Value() != "Panasonic" {
		t.Fatalf("cycled to %q", m.input.Value())
	}
	m, _ = press(m, "enter")
	if _, col, editing := m.g.Cursor(); !editing || col != "machine_model" {
		t.Errorf("choose should advance, cursor = %s editing=%v", col, editing)
	}
	m, _ = press(m, "esc", "down", "left", "left", "enter", "ctrl+u", "Nozzle 1.0 mới", "tab", "esc")
	if m.g.DirtyCount() != 2 {
		t.Fatalf("dirty rows = %d", m.g.DirtyCount())
	}

	m, cmd := press(m, "S")
	m = run(t, m, cmd)
	if len(store.patches) != 2 || m.g.DirtyCount() != 0 {
		t.Fatalf("patches = %v dirty = %d", store.patches, m.g.DirtyCount())
	}
	if store.products[0].Brand != "Panasonic" || store.products[1].Name != "Nozzle 1.0 mới" {
		t.Errorf("stored = %+v", store.products)
	}

	_, cmd = press(m, "S")
	if cmd != nil {
		t.Error("save all with nothing dirty returned a command")
	}
}

func TestSelectOnLastColumnSaves(t *testing.T) {
	m, store := setup(t)
	// brand is the last column of this grid
	m.g = grid.New(grid.ProductColumns[:3], grid.ProductBackend{Store: store})
	m.g.SetRows(grid.ProductRows(store.products))
	m.row, m.col = 1, 0

	m, _ = press(m, "right", "right", "enter", "right")
	if m.input.Value() != "Panasonic" {
		t.Fatalf("brand input = %q", m.input.Value())
	}
	m, cmd := press(m, "enter")
	if m.g.Status(1) != grid.StatusSaving {
		t.Fatalf("status = %s", m.g.Status(1))
	}
	m = run(t, m, cmd)
	if len(store.patches) != 1 || store.patches[0]["brand"] != "Panasonic" {
		t.Fatalf("patches = %v", store.patches)
	}
	if m.g.IsDirty(1) {
		t.Error("row should be clean after the save")
	}
	if id, col, editing := m.g.Cursor(); id != 2 || col != "code" || !editing {
		t.Errorf("cursor = %s %s %v", id, col, editing)
	}
}

func TestNewRow(t *testing.T) {
	m, store := setup(t)

	m, _ = press(m, "n", "enter")
	if m.g.Error(grid.NewRow, "code") != grid.MsgRequired || m.g.Error(grid.NewRow, "name") != grid.MsgRequired {
		t.Fatalf("required errors missing")
	}
	if len(store.created) != 0 {
		t.Fatal("created without required fields")
	}

	m, _ = press(m, "down", "enter")
	if id, col, editing := m.g.Cursor(); id != grid.NewRow || col != "code" || !editing {
		t.Fatalf("cursor = %s %s %v", id, col, editing)
	}
	m, _ = press(m, "BLT-3", "tab", "Belt 3m")
	m, cmd := press(m, "enter")
	m = run(t, m, cmd)

	if len(store.created) != 1 {
		t.Fatalf("created = %v", store.created)
	}
	got := store.created[0]
	if got["code"] != "BLT-3" || got["name"] != "Belt 3m" || got["unit"] != "cái" {
		t.Errorf("create body = %v", got)
	}
	if m.g.NewRowVisible() || len(m.g.Rows()) != 3 {
		t.Errorf("rows after create = %v", m.g.Rows())
	}
}

func TestInvalidNumber(t *testing.T) {
	m, store := setup(t)

	m, _ = press(m, "right", "right", "right", "right", "right", "right", "enter", "ctrl+u", "abc")
	m, cmd := press(m, "enter")
	if cmd != nil {
		t.Fatal("invalid value started a save")
	}
	if _, _, editing := m.g.Cursor(); !editing {
		t.Error("cursor left the invalid cell")
	}
	if m.g.Error(1, "stock") != grid.MsgInvalidNumber {
		t.Errorf("error = %q", m.g.Error(1, "stock"))
	}
	if !strings.Contains(m.View(), grid.MsgInvalidNumber) {
		t.Error("view does not show the cell error")
	}

	m, _ = press(m, "esc", "u")
	if m.g.Error(1, "stock") != "" {
		t.Error("revert kept the cell error")
	}
	if len(store.patches) != 0 {
		t.Errorf("patches = %v", store.patches)
	}
}

func TestSaveFailure(t *testing.T) {
	m, store := setup(t)
	store.failPatch = &client.APIError{Status: 409, Message: "product code NZ-1 already exists"}

	m, _ = press(m, "enter", "ctrl+u", "NZ-1")
	m, cmd := press(m, "enter")
	m = run(t, m, cmd)

	if m.g.SaveError(1) != "product code NZ-1 already exists" {
		t.Errorf("save error = %q", m.g.SaveError(1))
	}
	if !m.g.IsDirty(1) {
		t.Error("failed save dropped the edit")
	}
	if !strings.Contains(m.View(), "product code NZ-1 already exists") {
		t.Error("view does not show the save error")
	}
}

func TestRemoteChangeReloads(t *testing.T) {
	m, store := setup(t)

	m, _ = press(m, "down", "right", "enter", "ctrl+u", "Nozzle đã sửa", "tab", "esc")
	store.mu.Lock()
	store.products = append(store.products, models.Product{ID: 3, Code: "SNS-1", Name: "Sensor", Unit: "cái"})
	store.mu.Unlock()

	tm, cmd := m.Update(eventMsg(websocket.Event{Type: "change", Resource: "products", ID: 3, Action: "create"}))
	m = run(t, tm.(model), cmd)

	if len(m.g.Rows()) != 3 {
		t.Errorf("rows = %v", m.g.Rows())
	}
	if m.g.Cell(2, "name") != "Nozzle đã sửa" {
		t.Errorf("unsaved edit lost on reload: %q", m.g.Cell(2, "name"))
	}

	_, cmd = m.Update(eventMsg(websocket.Event{Type: "change", Resource: "customers", ID: 1, Action: "update"}))
	if cmd != nil {
		t.Error("customer change triggered a reload")
	}
}

func TestCycle(t *testing.T) {
	opts := []string{"a", "b", "c"}
	cases := []struct {
		cur     string
		forward bool
		want    string
	}{
		{"", true, "a"},
		{"", false, "c"},
		{"a", true, "b"},
		{"c", true, "a"},
		{"a", false, "c"},
	}
	for _, c := range cases {
		if got := cycle(opts, c.cur, c.forward); got != c.want {
			t.Errorf("cycle(%q, %v) = %q, want %q", c.cur, c.forward, got, c.want)
		}
	}
}

func TestFit(t *testing.T) {
	if got := fit("abc", 5, false); got != "abc  " {
		t.Errorf("pad left-aligned = %q", got)
	}
	if got := fit("42", 5, true); got != "   42" {
		t.Errorf("pad right-aligned = %q", got)
	}
	if got := fit("Đầu hút 1.0", 6, false); got != "Đầu h…" {
		t.Errorf("truncate = %q", got)
	}
}
