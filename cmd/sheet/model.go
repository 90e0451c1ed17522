package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"smtparts/internal/client"
	"smtparts/internal/grid"
	"smtparts/internal/models"
	"smtparts/internal/websocket"
)

// styles
var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("8"))
	cursorStyle = lipgloss.NewStyle().Background(lipgloss.Color("4")).Foreground(lipgloss.Color("15"))
	editStyle   = lipgloss.NewStyle().Background(lipgloss.Color("0")).Foreground(lipgloss.Color("15"))
	dirtyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// catalog is what the editor needs from the API.
type catalog interface {
	grid.ProductStore
	ListProducts(ctx context.Context, q client.ProductQuery) ([]models.Product, *models.Meta, error)
}

type rowsMsg struct {
	rows []grid.Row
	err  error
}

type savedMsg struct {
	rows int
	err  error
}

type eventMsg websocket.Event

type model struct {
	ctx   context.Context
	store catalog
	query client.ProductQuery
	g     *grid.Grid
	input textinput.Model

	width  int
	height int
	scroll int

	// selection outside edit mode
	row grid.RowID
	col int

	loading bool
	flash   string
	err     error
}

func newModel(ctx context.Context, store catalog, q client.ProductQuery) model {
	ti := textinput.New()
	ti.Prompt = ""
	ti.CharLimit = 256
	return model{
		ctx:   ctx,
		store: store,
		query: q,
		g: grid.New(grid.ProductColumns, grid.ProductBackend{Store: store},
			grid.WithNewRowDefaults(grid.Record{"unit": "cái"})),
		input:   ti,
		loading: true,
	}
}

func (m model) Init() tea.Cmd { return m.load() }

// load fetches every page of the catalog.
func (m model) load() tea.Cmd {
	ctx, store, q := m.ctx, m.store, m.query
	return func() tea.Msg {
		q.Limit = 500
		var all []models.Product
		for page := 1; ; page++ {
			q.Page = page
			list, meta, err := store.ListProducts(ctx, q)
			if err != nil {
				return rowsMsg{err: err}
			}
			all = append(all, list...)
			if len(list) < q.Limit || meta == nil || len(all) >= meta.Total {
				break
			}
		}
		return rowsMsg{rows: grid.ProductRows(all)}
	}
}

func (m model) save(subs ...*grid.Submission) tea.Cmd {
	if len(subs) == 0 {
		return nil
	}
	ctx, g := m.ctx, m.g
	return func() tea.Msg {
		return savedMsg{rows: len(subs), err: g.RunAll(ctx, subs)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case rowsMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.g.SetRows(msg.rows)
		m.clampSelection()
		return m, nil
	case savedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.flash = fmt.Sprintf("Đã lưu %d dòng", msg.rows)
		}
		m.clampSelection()
		return m, nil
	case eventMsg:
		if msg.Resource == "products" {
			m.flash = fmt.Sprintf("Sản phẩm #%v %s trên máy khác", msg.ID, msg.Action)
			return m, m.load()
		}
		return m, nil
	case tea.KeyMsg:
		if _, _, editing := m.g.Cursor(); editing {
			return m.updateEdit(msg)
		}
		return m.updateTable(msg)
	}
	return m, nil
}

// navRows returns the rows the cursor can visit, the creation row last.
func (m model) navRows() []grid.RowID {
	rows := m.g.Rows()
	if m.g.NewRowVisible() {
		rows = append(rows, grid.NewRow)
	}
	return rows
}

func (m model) rowIndex(rows []grid.RowID) int {
	for i, id := range rows {
		if id == m.row {
			return i
		}
	}
	return -1
}

func (m *model) clampSelection() {
	rows := m.navRows()
	if len(rows) == 0 {
		m.row = 0
		return
	}
	if m.rowIndex(rows) < 0 {
		m.row = rows[0]
	}
	if m.col >= len(m.g.Columns()) {
		m.col = len(m.g.Columns()) - 1
	}
	m.follow(rows)
}

// follow keeps the selected row inside the visible window.
func (m *model) follow(rows []grid.RowID) {
	i := m.rowIndex(rows)
	h := m.bodyHeight()
	if i < m.scroll {
		m.scroll = i
	}
	if i >= m.scroll+h {
		m.scroll = i - h + 1
	}
	if m.scroll < 0 {
		m.scroll = 0
	}
}

func (m model) bodyHeight() int {
	h := m.height - 6
	if h < 1 {
		h = 1
	}
	return h
}

// syncCursor copies the grid cursor into the selection and loads the
// editor with the cell's text.
func (m *model) syncCursor() {
	id, key, editing := m.g.Cursor()
	m.row = id
	for i, c := range m.g.Columns() {
		if c.Key == key {
			m.col = i
		}
	}
	if editing {
		m.input.SetValue(m.g.Input())
		m.input.CursorEnd()
		m.input.Focus()
	} else {
		m.input.Blur()
	}
	m.follow(m.navRows())
}

func (m model) updateTable(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.flash = ""
	rows := m.navRows()
	cols := m.g.Columns()
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if i := m.rowIndex(rows); i > 0 {
			m.row = rows[i-1]
		}
	case "down", "j":
		if i := m.rowIndex(rows); i >= 0 && i < len(rows)-1 {
			m.row = rows[i+1]
		}
	case "left", "h":
		if m.col > 0 {
			m.col--
		}
	case "right", "l":
		if m.col < len(cols)-1 {
			m.col++
		}
	case "home":
		m.col = 0
	case "end":
		m.col = len(cols) - 1
	case "enter", "tab":
		if len(rows) == 0 {
			return m, nil
		}
		if err := m.g.StartEdit(m.row, cols[m.col].Key); err != nil {
			if errors.Is(err, grid.ErrRowSaving) {
				m.flash = "Dòng đang lưu"
			}
			return m, nil
		}
		m.syncCursor()
	case "n":
		m.g.ShowNewRow()
		m.syncCursor()
	case "u":
		m.g.Revert(m.row)
		m.clampSelection()
	case "S":
		subs := m.g.BeginSaveAll()
		if len(subs) == 0 {
			m.flash = "Không có thay đổi"
			return m, nil
		}
		m.flash = fmt.Sprintf("Đang lưu %d dòng...", len(subs))
		return m, m.save(subs...)
	case "r":
		m.loading = true
		return m, m.load()
	}
	m.follow(rows)
	return m, nil
}

func (m model) updateEdit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	id, key, _ := m.g.Cursor()
	col := m.g.Columns()[m.col]

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.g.Navigate(grid.KeyEscape, "")
		m.syncCursor()
		if id == grid.NewRow && !m.g.IsDirty(grid.NewRow) {
			m.g.Revert(grid.NewRow)
			m.clampSelection()
		}
		return m, nil
	case "tab", "shift+tab":
		k := grid.KeyTab
		if msg.String() == "shift+tab" {
			k = grid.KeyShiftTab
		}
		if _, err := m.g.Navigate(k, m.input.Value()); err != nil {
			m.err = err
			return m, nil
		}
		m.err = nil
		m.syncCursor()
		return m, nil
	case "enter":
		if col.Kind == grid.KindSelect {
			if err := m.g.Choose(id, key, m.input.Value()); err != nil {
				m.err = err
				return m, nil
			}
			m.err = nil
			m.syncCursor()
			// a choice on the row's last cell finishes the row like Enter does
			if next, _, editing := m.g.Cursor(); editing && next == id {
				return m, nil
			}
			return m.saveRow(id)
		}
		sub, err := m.g.Navigate(grid.KeyEnter, m.input.Value())
		if err != nil {
			m.err = err
			// a bad value keeps the editor open with the typed text
			if !errors.Is(err, grid.ErrInvalidValue) {
				m.syncCursor()
			}
			return m, nil
		}
		m.syncCursor()
		m.err = nil
		if sub == nil {
			return m, nil
		}
		m.flash = "Đang lưu..."
		return m, m.save(sub)
	case "left", "right":
		if col.Kind == grid.KindSelect {
			m.input.SetValue(cycle(col.Options, m.input.Value(), msg.String() == "right"))
			m.input.CursorEnd()
			return m, nil
		}
	}
	if col.Kind == grid.KindSelect {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// saveRow begins saving one row outside of Navigate.
func (m model) saveRow(id grid.RowID) (tea.Model, tea.Cmd) {
	if id == grid.NewRow {
		sub, err := m.g.BeginCreate()
		if err != nil {
			m.err = err
			return m, nil
		}
		if sub == nil {
			return m, nil
		}
		m.flash = "Đang lưu..."
		return m, m.save(sub)
	}
	sub := m.g.BeginSave(id)
	if sub == nil {
		return m, nil
	}
	m.flash = "Đang lưu..."
	return m, m.save(sub)
}

// cycle returns the option after (or before) cur, wrapping around.
func cycle(opts []string, cur string, forward bool) string {
	if len(opts) == 0 {
		return cur
	}
	i := -1
	for j, o := range opts {
		if o == cur {
			i = j
		}
	}
	switch {
	case i < 0 && forward:
		return opts[0]
	case i < 0:
		return opts[len(opts)-1]
	case forward:
		return opts[(i+1)%len(opts)]
	}
	return opts[(i-1+len(opts))%len(opts)]
}

// --- View ---

func (m model) View() string {
	if m.width == 0 {
		return "loading..."
	}
	var b strings.Builder

	b.WriteString(titleStyle.Render(" Danh mục phụ tùng SMT"))
	if n := m.g.DirtyCount(); n > 0 {
		b.WriteString(dirtyStyle.Render(fmt.Sprintf("  %d dòng chưa lưu", n)))
	}
	if m.loading {
		b.WriteString(dimStyle.Render("  đang tải..."))
	}
	b.WriteString("\n")

	cols := m.g.Columns()
	b.WriteString(headerStyle.Render("   "))
	for _, c := range cols {
		b.WriteString(headerStyle.Render(" " + fit(c.Label, c.Width, false) + " "))
	}
	b.WriteString("\n")

	rows := m.navRows()
	if len(rows) == 0 && !m.loading {
		b.WriteString(dimStyle.Render(" (chưa có sản phẩm, bấm n để thêm)\n"))
	}
	start := min(m.scroll, len(rows))
	end := min(start+m.bodyHeight(), len(rows))
	curRow, _, editing := m.g.Cursor()
	for _, id := range rows[start:end] {
		b.WriteString(m.marker(id))
		for ci, c := range cols {
			selected := id == m.row && ci == m.col
			var cell string
			switch {
			case selected && editing && id == curRow:
				cell = editStyle.Render(" " + fit(m.input.Value()+"_", c.Width, false) + " ")
			case selected:
				cell = cursorStyle.Render(" " + fit(m.g.Cell(id, c.Key), c.Width, c.Kind == grid.KindNumber) + " ")
			default:
				cell = " " + fit(m.g.Cell(id, c.Key), c.Width, c.Kind == grid.KindNumber) + " "
				if m.g.Error(id, c.Key) != "" {
					cell = errorStyle.Render(cell)
				} else if m.g.IsCellDirty(id, c.Key) {
					cell = dirtyStyle.Render(cell)
				}
			}
			b.WriteString(cell)
		}
		b.WriteString("\n")
	}

	b.WriteString(m.statusLine())
	b.WriteString("\n")
	if editing {
		help := " tab/shift+tab ô kế  enter lưu  esc huỷ"
		if cols[m.col].Kind == grid.KindSelect {
			help = " ←/→ chọn  enter xác nhận  esc huỷ"
		}
		b.WriteString(dimStyle.Render(help))
	} else {
		b.WriteString(dimStyle.Render(" ←↑↓→ di chuyển  enter sửa  n thêm  u hoàn tác  S lưu hết  r tải lại  q thoát"))
	}
	return b.String()
}

func (m model) marker(id grid.RowID) string {
	switch {
	case m.g.SaveError(id) != "":
		return errorStyle.Render(" ! ")
	case m.g.Status(id) == grid.StatusSaving:
		return statusStyle.Render(" ~ ")
	case id == grid.NewRow:
		return dirtyStyle.Render(" + ")
	case m.g.IsDirty(id):
		return dirtyStyle.Render(" * ")
	}
	return "   "
}

func (m model) statusLine() string {
	cols := m.g.Columns()
	if len(cols) == 0 {
		return ""
	}
	key := cols[m.col].Key
	if msg := m.g.Error(m.row, key); msg != "" {
		return errorStyle.Render(" " + cols[m.col].Label + ": " + msg)
	}
	if msg := m.g.SaveError(m.row); msg != "" {
		return errorStyle.Render(" Lỗi lưu: " + msg)
	}
	if m.err != nil {
		return errorStyle.Render(" error: " + m.err.Error())
	}
	if m.flash != "" {
		return statusStyle.Render(" " + m.flash)
	}
	return statusStyle.Render(fmt.Sprintf(" %s  %s  %d sản phẩm", m.row, cols[m.col].Label, len(m.g.Rows())))
}

// fit truncates or pads s to exactly w display cells.
func fit(s string, w int, right bool) string {
	if lipgloss.Width(s) > w {
		r := []rune(s)
		for len(r) > 0 && lipgloss.Width(string(r))+1 > w {
			r = r[:len(r)-1]
		}
		s = string(r) + "…"
	}
	pad := strings.Repeat(" ", max(0, w-lipgloss.Width(s)))
	if right {
		return pad + s
	}
	return s + pad
}
