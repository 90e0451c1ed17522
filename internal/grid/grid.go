// Package grid holds the editing state of a spreadsheet-style bulk editor:
// an overlay of unsaved cell edits on top of authoritative rows, the cell
// being edited, the rows with a save in flight, and per-cell and per-row
// error messages.
//
// A Grid is safe for concurrent use. Saves are split in two: BeginSave marks
// the row saving and snapshots what will be sent, and Submission.Run talks to
// the backend without holding the grid lock. Every submission carries a per-row
// sequence number; a response whose sequence is no longer current is dropped,
// so a slow reply can never overwrite newer state.
package grid

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Backend persists rows.
type Backend interface {
	// Update sends a partial update of the changed fields and returns the
	// row as stored.
	Update(ctx context.Context, id RowID, fields Record) (Record, error)
	// Create sends the full field set of a new row and returns it as stored.
	Create(ctx context.Context, fields Record) (Row, error)
}

var (
	ErrUnknownRow    = errors.New("grid: unknown row")
	ErrUnknownColumn = errors.New("grid: unknown column")
	ErrRowSaving     = errors.New("grid: row is saving")
	ErrInvalidValue  = errors.New("grid: invalid value")
	ErrRequired      = errors.New("grid: required fields missing")
	ErrStale         = errors.New("grid: stale save response discarded")
)

// Key is a navigation key delivered while a cell is being edited.
type Key int

const (
	KeyTab Key = iota
	KeyShiftTab
	KeyEnter
	KeyEscape
)

// Status is the lifecycle position of a row.
type Status int

const (
	StatusClean Status = iota
	StatusEditing
	StatusDirty
	StatusSaving
)

func (s Status) String() string {
	switch s {
	case StatusEditing:
		return "editing"
	case StatusDirty:
		return "dirty"
	case StatusSaving:
		return "saving"
	}
	return "clean"
}

type rowState struct {
	dirty  Record
	saving bool
	seq    uint64
}

type cursor struct {
	row RowID
	col int
}

// Grid is the bulk-edit state container.
type Grid struct {
	mu      sync.Mutex
	cols    []Column
	colIdx  map[string]int
	backend Backend
	limit   int

	order []RowID
	base  map[RowID]Record
	state map[RowID]*rowState

	newVisible  bool
	newDefaults Record

	errs    map[string]string
	editing bool
	cur     cursor
	seq     uint64
}

// Option configures a Grid.
type Option func(*Grid)

// WithConcurrency bounds the number of saves SaveAll runs at once.
func WithConcurrency(n int) Option {
	return func(g *Grid) {
		if n > 0 {
			g.limit = n
		}
	}
}

// WithNewRowDefaults sets the values a fresh new row starts from.
func WithNewRowDefaults(r Record) Option {
	return func(g *Grid) { g.newDefaults = r.clone() }
}

// New creates an empty grid over cols.
func New(cols []Column, backend Backend, opts ...Option) *Grid {
	g := &Grid{
		cols:        cols,
		colIdx:      make(map[string]int, len(cols)),
		backend:     backend,
		limit:       4,
		base:        make(map[RowID]Record),
		state:       make(map[RowID]*rowState),
		newDefaults: Record{},
		errs:        make(map[string]string),
	}
	for i, c := range cols {
		g.colIdx[c.Key] = i
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func errKey(id RowID, col string) string { return id.String() + ":" + col }

const saveKey = "save"

// Columns returns the column definitions.
func (g *Grid) Columns() []Column { return g.cols }

// SetRows replaces the authoritative rows. Unsaved edits of rows that are
// still present survive; fields that now equal the stored value are dropped
// from the overlay. State of rows that disappeared is discarded.
func (g *Grid) SetRows(rows []Row) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.order = g.order[:0]
	base := make(map[RowID]Record, len(rows))
	for _, r := range rows {
		g.order = append(g.order, r.ID)
		base[r.ID] = r.Values.clone()
	}
	g.base = base

	for id, st := range g.state {
		if id == NewRow {
			continue
		}
		b, ok := base[id]
		if !ok {
			delete(g.state, id)
			g.clearErrors(id)
			continue
		}
		for k, v := range st.dirty {
			if equal(v, b[k]) {
				delete(st.dirty, k)
			}
		}
		g.gc(id)
	}
	if g.editing && g.cur.row != NewRow {
		if _, ok := base[g.cur.row]; !ok {
			g.editing = false
		}
	}
}

// Rows returns the persisted row ids in display order.
func (g *Grid) Rows() []RowID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]RowID(nil), g.order...)
}

// ShowNewRow reveals the creation row and puts the cursor on its first cell.
func (g *Grid) ShowNewRow() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.newVisible = true
	if st := g.state[NewRow]; st != nil && st.saving {
		return
	}
	if len(g.cols) > 0 {
		g.cur = cursor{row: NewRow}
		g.editing = true
	}
}

// NewRowVisible reports whether the creation row is shown.
func (g *Grid) NewRowVisible() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.newVisible
}

func (g *Grid) original(id RowID) (Record, bool) {
	if id == NewRow {
		return g.newDefaults, g.newVisible
	}
	r, ok := g.base[id]
	return r, ok
}

func (g *Grid) column(key string) (int, error) {
	i, ok := g.colIdx[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownColumn, key)
	}
	return i, nil
}

func (g *Grid) saving(id RowID) bool {
	st := g.state[id]
	return st != nil && st.saving
}

// gc drops a row's state entry once nothing is left in it.
func (g *Grid) gc(id RowID) {
	if st := g.state[id]; st != nil && len(st.dirty) == 0 && !st.saving {
		delete(g.state, id)
	}
}

func (g *Grid) clearErrors(id RowID) {
	prefix := id.String() + ":"
	for k := range g.errs {
		if strings.HasPrefix(k, prefix) {
			delete(g.errs, k)
		}
	}
}

func (g *Grid) value(id RowID, col string) any {
	if st := g.state[id]; st != nil {
		if v, ok := st.dirty[col]; ok {
			return v
		}
	}
	orig, _ := g.original(id)
	return orig[col]
}

// StartEdit enters edit mode on a cell. It is a no-op returning ErrRowSaving
// while the row has a save in flight.
func (g *Grid) StartEdit(id RowID, col string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.original(id); !ok {
		return ErrUnknownRow
	}
	ci, err := g.column(col)
	if err != nil {
		return err
	}
	if g.saving(id) {
		return ErrRowSaving
	}
	g.cur = cursor{row: id, col: ci}
	g.editing = true
	return nil
}

// Cursor returns the current cell and whether it is being edited.
func (g *Grid) Cursor() (RowID, string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.cols) == 0 {
		return g.cur.row, "", false
	}
	return g.cur.row, g.cols[g.cur.col].Key, g.editing
}

// Input returns the editor text for the cursor cell: the overlay value if
// present, otherwise the stored value.
func (g *Grid) Input() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.cols) == 0 {
		return ""
	}
	c := g.cols[g.cur.col]
	return c.input(g.value(g.cur.row, c.Key))
}

// Commit parses raw for the given cell and records it in the overlay. A
// value equal to the stored one removes the field from the overlay instead.
// A parse failure leaves the overlay untouched and records a cell error.
func (g *Grid) Commit(id RowID, col, raw string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.commit(id, col, raw)
}

func (g *Grid) commit(id RowID, col, raw string) error {
	orig, ok := g.original(id)
	if !ok {
		return ErrUnknownRow
	}
	ci, err := g.column(col)
	if err != nil {
		return err
	}
	if g.saving(id) {
		return ErrRowSaving
	}
	v, msg := g.cols[ci].parse(raw)
	if msg != "" {
		g.errs[errKey(id, col)] = msg
		return fmt.Errorf("%w: %s", ErrInvalidValue, msg)
	}
	delete(g.errs, errKey(id, col))

	st := g.state[id]
	if equal(v, orig[col]) {
		if st != nil {
			delete(st.dirty, col)
			g.gc(id)
		}
		return nil
	}
	if st == nil {
		st = &rowState{dirty: Record{}}
		g.state[id] = st
	}
	st.dirty[col] = v
	return nil
}

// Choose commits a select option and advances the cursor to the next cell.
func (g *Grid) Choose(id RowID, col, option string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.commit(id, col, option); err != nil {
		return err
	}
	ci := g.colIdx[col]
	g.cur = cursor{row: id, col: ci}
	g.move(1)
	return nil
}

// rowsLocked returns the navigable rows, the creation row last.
func (g *Grid) rowsLocked() []RowID {
	rows := append([]RowID(nil), g.order...)
	if g.newVisible {
		rows = append(rows, NewRow)
	}
	return rows
}

// move shifts the cursor by one cell in reading order, wrapping across rows.
// At either end of the grid it leaves edit mode.
func (g *Grid) move(dir int) {
	rows := g.rowsLocked()
	ri := -1
	for i, id := range rows {
		if id == g.cur.row {
			ri = i
			break
		}
	}
	if ri < 0 {
		g.editing = false
		return
	}
	ci := g.cur.col + dir
	switch {
	case ci >= len(g.cols):
		ri++
		ci = 0
	case ci < 0:
		ri--
		ci = len(g.cols) - 1
	}
	if ri < 0 || ri >= len(rows) {
		g.editing = false
		return
	}
	g.cur = cursor{row: rows[ri], col: ci}
	g.editing = !g.saving(rows[ri])
}

// Navigate handles a key pressed while editing, with raw as the editor
// text. Tab and Shift+Tab commit and move; Enter commits, leaves edit mode
// and begins saving the row, returning the submission to run; Escape leaves
// edit mode and discards raw. A commit failure keeps the cursor in place.
func (g *Grid) Navigate(key Key, raw string) (*Submission, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.editing || len(g.cols) == 0 {
		return nil, nil
	}
	if key == KeyEscape {
		g.editing = false
		return nil, nil
	}
	id, col := g.cur.row, g.cols[g.cur.col].Key
	if err := g.commit(id, col, raw); err != nil {
		return nil, err
	}
	switch key {
	case KeyTab:
		g.move(1)
	case KeyShiftTab:
		g.move(-1)
	case KeyEnter:
		g.editing = false
		if id == NewRow {
			return g.beginCreate()
		}
		return g.beginSave(id), nil
	}
	return nil, nil
}

// Submission is a save that has been started but not yet sent.
type Submission struct {
	g      *Grid
	id     RowID
	seq    uint64
	fields Record
	create bool
}

// Row returns the row being saved.
func (s *Submission) Row() RowID { return s.id }

// Fields returns the values that will be sent.
func (s *Submission) Fields() Record { return s.fields.clone() }

// BeginSave marks a row saving and returns its submission. It returns nil
// when the row has nothing to save or is already saving.
func (g *Grid) BeginSave(id RowID) *Submission {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id == NewRow {
		s, _ := g.beginCreate()
		return s
	}
	return g.beginSave(id)
}

func (g *Grid) beginSave(id RowID) *Submission {
	st := g.state[id]
	if st == nil || len(st.dirty) == 0 || st.saving {
		return nil
	}
	g.seq++
	st.saving = true
	st.seq = g.seq
	delete(g.errs, errKey(id, saveKey))
	return &Submission{g: g, id: id, seq: st.seq, fields: st.dirty.clone()}
}

// BeginCreate validates the creation row and marks it saving. Missing
// required fields are recorded as cell errors and ErrRequired is returned.
func (g *Grid) BeginCreate() (*Submission, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.beginCreate()
}

func (g *Grid) beginCreate() (*Submission, error) {
	if !g.newVisible || g.saving(NewRow) {
		return nil, nil
	}
	fields := g.newDefaults.clone()
	if st := g.state[NewRow]; st != nil {
		for k, v := range st.dirty {
			fields[k] = v
		}
	}
	var missing []string
	for _, c := range g.cols {
		if c.Required && empty(fields[c.Key]) {
			g.errs[errKey(NewRow, c.Key)] = MsgRequired
			missing = append(missing, c.Key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrRequired, strings.Join(missing, ", "))
	}
	for k, v := range fields {
		if v == nil {
			delete(fields, k)
		}
	}
	st := g.state[NewRow]
	if st == nil {
		st = &rowState{dirty: Record{}}
		g.state[NewRow] = st
	}
	g.seq++
	st.saving = true
	st.seq = g.seq
	delete(g.errs, errKey(NewRow, saveKey))
	return &Submission{g: g, id: NewRow, seq: st.seq, fields: fields, create: true}, nil
}

// Run sends the submission and applies the outcome. On success the stored
// row is updated and the submitted overlay fields are cleared; on failure
// the overlay is kept and the message is recorded as the row's save error.
// A response that is no longer current yields ErrStale and changes nothing.
func (s *Submission) Run(ctx context.Context) error {
	if s.create {
		row, err := s.g.backend.Create(ctx, s.fields)
		return s.g.finishCreate(s, row, err)
	}
	rec, err := s.g.backend.Update(ctx, s.id, s.fields)
	return s.g.finishSave(s, rec, err)
}

func (g *Grid) current(s *Submission) (*rowState, bool) {
	st := g.state[s.id]
	if st == nil || !st.saving || st.seq != s.seq {
		return nil, false
	}
	return st, true
}

func (g *Grid) finishSave(s *Submission, rec Record, err error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.current(s)
	if !ok {
		return ErrStale
	}
	st.saving = false
	if err != nil {
		g.errs[errKey(s.id, saveKey)] = err.Error()
		return err
	}

	merged := g.base[s.id].clone()
	for k, v := range s.fields {
		merged[k] = v
	}
	for k, v := range rec {
		merged[k] = v
	}
	g.base[s.id] = merged
	for k, v := range s.fields {
		if cur, ok := st.dirty[k]; ok && equal(cur, v) {
			delete(st.dirty, k)
		}
	}
	for k, v := range st.dirty {
		if equal(v, merged[k]) {
			delete(st.dirty, k)
		}
	}
	g.gc(s.id)
	return nil
}

func (g *Grid) finishCreate(s *Submission, row Row, err error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.current(s)
	if !ok {
		return ErrStale
	}
	st.saving = false
	if err != nil {
		g.errs[errKey(NewRow, saveKey)] = err.Error()
		return err
	}
	delete(g.state, NewRow)
	g.clearErrors(NewRow)
	g.newVisible = false
	if g.cur.row == NewRow {
		g.editing = false
	}
	if _, exists := g.base[row.ID]; !exists {
		g.order = append(g.order, row.ID)
	}
	g.base[row.ID] = row.Values.clone()
	return nil
}

// Save saves one row and waits for the outcome. A row with an empty
// overlay, or already saving, is left alone.
func (g *Grid) Save(ctx context.Context, id RowID) error {
	if id == NewRow {
		return g.SaveNew(ctx)
	}
	s := g.BeginSave(id)
	if s == nil {
		return nil
	}
	return s.Run(ctx)
}

// SaveNew validates and creates the new row.
func (g *Grid) SaveNew(ctx context.Context) error {
	s, err := g.BeginCreate()
	if err != nil || s == nil {
		return err
	}
	return s.Run(ctx)
}

// BeginSaveAll starts a save for every dirty row that is not already saving.
func (g *Grid) BeginSaveAll() []*Submission {
	g.mu.Lock()
	defer g.mu.Unlock()
	var subs []*Submission
	for _, id := range g.order {
		if s := g.beginSave(id); s != nil {
			subs = append(subs, s)
		}
	}
	return subs
}

// RunAll runs submissions with bounded concurrency and joins the failures.
// Every submission runs regardless of the others' outcome.
func (g *Grid) RunAll(ctx context.Context, subs []*Submission) error {
	var (
		eg   errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	eg.SetLimit(g.limit)
	for _, s := range subs {
		eg.Go(func() error {
			if err := s.Run(ctx); err != nil && !errors.Is(err, ErrStale) {
				mu.Lock()
				errs = append(errs, fmt.Errorf("row %s: %w", s.id, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()
	return errors.Join(errs...)
}

// SaveAll saves every dirty row. Rows whose save is already in flight are
// skipped.
func (g *Grid) SaveAll(ctx context.Context) error {
	return g.RunAll(ctx, g.BeginSaveAll())
}

// Revert discards a row's unsaved edits and errors without contacting the
// backend. Reverting the creation row also hides it. A save in flight for
// the row is abandoned and its response will be ignored.
func (g *Grid) Revert(id RowID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.state, id)
	g.clearErrors(id)
	if id == NewRow {
		g.newVisible = false
		if g.cur.row == NewRow {
			g.editing = false
		}
	}
}

// Value returns the effective value of a cell.
func (g *Grid) Value(id RowID, col string) any {
	g.mu.Lock()
	defer g.mu.Unlock()
	return normalize(g.value(id, col))
}

// Cell returns the display text of a cell.
func (g *Grid) Cell(id RowID, col string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ci, ok := g.colIdx[col]
	if !ok {
		return ""
	}
	return g.cols[ci].display(g.value(id, col))
}

// Dirty returns a copy of the row's overlay.
func (g *Grid) Dirty(id RowID) Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st := g.state[id]; st != nil {
		return st.dirty.clone()
	}
	return Record{}
}

// IsDirty reports whether the row has unsaved edits.
func (g *Grid) IsDirty(id RowID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.state[id]
	return st != nil && len(st.dirty) > 0
}

// IsCellDirty reports whether one cell has an unsaved edit.
func (g *Grid) IsCellDirty(id RowID, col string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st := g.state[id]; st != nil {
		_, ok := st.dirty[col]
		return ok
	}
	return false
}

// IsSaving reports whether the row has a save in flight.
func (g *Grid) IsSaving(id RowID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.saving(id)
}

// DirtyCount returns the number of persisted rows with unsaved edits.
func (g *Grid) DirtyCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for id, st := range g.state {
		if id != NewRow && len(st.dirty) > 0 {
			n++
		}
	}
	return n
}

// Error returns the message recorded for a cell, if any.
func (g *Grid) Error(id RowID, col string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.errs[errKey(id, col)]
}

// SaveError returns the message of the row's last failed save, if any.
func (g *Grid) SaveError(id RowID) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.errs[errKey(id, saveKey)]
}

// Status returns where the row is in its edit lifecycle.
func (g *Grid) Status(id RowID) Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.state[id]
	switch {
	case st != nil && st.saving:
		return StatusSaving
	case g.editing && g.cur.row == id:
		return StatusEditing
	case st != nil && len(st.dirty) > 0:
		return StatusDirty
	}
	return StatusClean
}
