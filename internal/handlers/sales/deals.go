package sales

import (
	"database/sql"
	"fmt"
	"net/http"
	"strings"

	"smtparts/internal/audit"
	"smtparts/internal/database"
	"smtparts/internal/format"
	"smtparts/internal/models"
	"smtparts/internal/response"
	"smtparts/internal/validation"
)

const dealSelect = `SELECT d.id, d.title, d.customer_id, COALESCE(c.name,''), d.value, d.stage, d.probability,
	COALESCE(d.expected_close,''), d.position, COALESCE(d.notes,''), d.created_at, d.updated_at
	FROM deals d LEFT JOIN customers c ON d.customer_id = c.id`

// stageProbability is the default win probability for a stage.
var stageProbability = map[string]int{
	"lead":        10,
	"qualified":   25,
	"proposal":    50,
	"negotiation": 75,
	"won":         100,
	"lost":        0,
}

func scanDeal(row interface{ Scan(...any) error }) (models.Deal, error) {
	var (
		d     models.Deal
		cid   sql.NullInt64
		value sql.NullFloat64
	)
	err := row.Scan(&d.ID, &d.Title, &cid, &d.CustomerName, &value, &d.Stage, &d.Probability,
		&d.ExpectedClose, &d.Position, &d.Notes, &d.CreatedAt, &d.UpdatedAt)
	d.CustomerID = database.IntPtr(cid)
	d.Value = database.FloatPtr(value)
	return d, err
}

func queryDeals(db *sql.DB, where string, args ...any) ([]models.Deal, error) {
	q := dealSelect
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY d.stage, d.position, d.id"
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	deals := []models.Deal{}
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

func (h *Handler) validateDeal(ve *validation.ValidationErrors, d *models.Deal) {
	d.Title = strings.TrimSpace(d.Title)
	validation.RequireField(ve, "title", d.Title)
	validation.ValidateMaxLength(ve, "title", d.Title, 255)
	validation.ValidateEnum(ve, "stage", d.Stage, validation.ValidDealStages)
	validation.ValidateIntRange(ve, "probability", d.Probability, 0, 100)
	validation.ValidateDate(ve, "expected_close", d.ExpectedClose)
	validation.ValidateOptionalNonNegative(ve, "value", d.Value)
	validation.ValidateMaxLength(ve, "notes", d.Notes, validation.MaxStringLength)
	if d.CustomerID != nil {
		validation.ValidateForeignKey(ve, h.DB, "customer_id", "customers", *d.CustomerID)
	}
}

// ListDeals handles GET /api/v1/deals?stage=.
func (h *Handler) ListDeals(w http.ResponseWriter, r *http.Request) {
	var (
		where string
		args  []any
	)
	if s := r.URL.Query().Get("stage"); s != "" {
		where, args = "d.stage = ?", []any{s}
	}
	deals, err := queryDeals(h.DB, where, args...)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, deals)
}

// GetDeal handles GET /api/v1/deals/{id}.
func (h *Handler) GetDeal(w http.ResponseWriter, r *http.Request, id string) {
	did, ok := response.ParseID(w, id)
	if !ok {
		return
	}
	d, err := scanDeal(h.DB.QueryRow(dealSelect+" WHERE d.id = ?", did))
	if err == sql.ErrNoRows {
		response.Err(w, "deal not found", 404)
		return
	}
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, d)
}

// CreateDeal handles POST /api/v1/deals. The deal goes to the bottom of
// its stage column.
func (h *Handler) CreateDeal(w http.ResponseWriter, r *http.Request) {
	var d models.Deal
	if err := response.DecodeBody(r, &d); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	if d.Stage == "" {
		d.Stage = "lead"
	}
	if d.Probability == 0 {
		d.Probability = stageProbability[d.Stage]
	}
	ve := &validation.ValidationErrors{}
	h.validateDeal(ve, &d)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	h.DB.QueryRow("SELECT COALESCE(MAX(position)+1, 0) FROM deals WHERE stage=?", d.Stage).Scan(&d.Position)

	now := database.Now()
	res, err := h.DB.Exec(`INSERT INTO deals (title,customer_id,value,stage,probability,expected_close,position,notes,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		d.Title, database.NullInt(d.CustomerID), database.NullFloat(d.Value), d.Stage, d.Probability,
		d.ExpectedClose, d.Position, d.Notes, now, now)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	d.ID, _ = res.LastInsertId()
	h.logAudit(r, audit.ActionCreate, "deals", d.ID, "Created deal "+d.Title)

	created, err := scanDeal(h.DB.QueryRow(dealSelect+" WHERE d.id = ?", d.ID))
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.Created(w, created)
}

// UpdateDeal handles PUT /api/v1/deals/{id}. Stage and position changes go
// through MoveDeal; the stage in the body is ignored.
func (h *Handler) UpdateDeal(w http.ResponseWriter, r *http.Request, id string) {
	did, ok := response.ParseID(w, id)
	if !ok {
		return
	}
	var stage string
	if err := h.DB.QueryRow("SELECT stage FROM deals WHERE id=?", did).Scan(&stage); err != nil {
		response.Err(w, "deal not found", 404)
		return
	}
	var d models.Deal
	if err := response.DecodeBody(r, &d); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	d.Stage = stage
	ve := &validation.ValidationErrors{}
	h.validateDeal(ve, &d)
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}
	_, err := h.DB.Exec(`UPDATE deals SET title=?,customer_id=?,value=?,probability=?,expected_close=?,notes=?,updated_at=? WHERE id=?`,
		d.Title, database.NullInt(d.CustomerID), database.NullFloat(d.Value), d.Probability,
		d.ExpectedClose, d.Notes, database.Now(), did)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.logAudit(r, audit.ActionUpdate, "deals", did, "Updated deal "+d.Title)
	h.GetDeal(w, r, id)
}

// DeleteDeal handles DELETE /api/v1/deals/{id}.
func (h *Handler) DeleteDeal(w http.ResponseWriter, r *http.Request, id string) {
	did, ok := response.ParseID(w, id)
	if !ok {
		return
	}
	var (
		title, stage string
		pos          int
	)
	if err := h.DB.QueryRow("SELECT title, stage, position FROM deals WHERE id=?", did).Scan(&title, &stage, &pos); err != nil {
		response.Err(w, "deal not found", 404)
		return
	}
	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()
	if _, err := tx.Exec("DELETE FROM deals WHERE id=?", did); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if _, err := tx.Exec("UPDATE deals SET position = position - 1 WHERE stage=? AND position > ?", stage, pos); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.logAudit(r, audit.ActionDelete, "deals", did, "Deleted deal "+title)
	response.JSON(w, map[string]any{"deleted": did})
}

// Board groups deals into pipeline columns in stage order.
func Board(db *sql.DB) ([]models.PipelineColumn, error) {
	deals, err := queryDeals(db, "")
	if err != nil {
		return nil, err
	}
	cols := make([]models.PipelineColumn, len(validation.ValidDealStages))
	index := make(map[string]int)
	for i, s := range validation.ValidDealStages {
		cols[i] = models.PipelineColumn{Stage: s, Label: format.Stage(s), Deals: []models.Deal{}}
		index[s] = i
	}
	for _, d := range deals {
		c := &cols[index[d.Stage]]
		c.Deals = append(c.Deals, d)
		if d.Value != nil {
			c.TotalValue += *d.Value
		}
	}
	return cols, nil
}

// GetBoard handles GET /api/v1/deals/board.
func (h *Handler) GetBoard(w http.ResponseWriter, r *http.Request) {
	cols, err := Board(h.DB)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	response.JSON(w, cols)
}

// MoveRequest places a deal in a stage column at a 0-based position.
type MoveRequest struct {
	Stage    string `json:"stage"`
	Position int    `json:"position"`
}

func stageIDs(tx *sql.Tx, stage string, exclude int64) ([]int64, error) {
	rows, err := tx.Query("SELECT id FROM deals WHERE stage=? AND id != ? ORDER BY position, id", stage, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func renumber(tx *sql.Tx, ids []int64) error {
	for i, id := range ids {
		if _, err := tx.Exec("UPDATE deals SET position=? WHERE id=?", i, id); err != nil {
			return err
		}
	}
	return nil
}

// MoveDeal handles PUT /api/v1/deals/{id}/move. Both the source and the
// target columns are renumbered densely. Moving to won or lost pins the
// probability to 100 or 0.
func (h *Handler) MoveDeal(w http.ResponseWriter, r *http.Request, id string) {
	did, ok := response.ParseID(w, id)
	if !ok {
		return
	}
	var req MoveRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", 400)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "stage", req.Stage)
	validation.ValidateEnum(ve, "stage", req.Stage, validation.ValidDealStages)
	if req.Position < 0 {
		ve.Add("position", "must be non-negative")
	}
	if ve.HasErrors() {
		response.Err(w, ve.Error(), 400)
		return
	}

	tx, err := h.DB.Begin()
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	defer tx.Rollback()
	var (
		title, from string
		prob        int
	)
	if err := tx.QueryRow("SELECT title, stage, probability FROM deals WHERE id=?", did).Scan(&title, &from, &prob); err != nil {
		response.Err(w, "deal not found", 404)
		return
	}

	target, err := stageIDs(tx, req.Stage, did)
	if err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	pos := min(req.Position, len(target))
	target = append(target[:pos], append([]int64{did}, target[pos:]...)...)

	if req.Stage == "won" || req.Stage == "lost" {
		prob = stageProbability[req.Stage]
	}
	if _, err := tx.Exec("UPDATE deals SET stage=?, probability=?, updated_at=? WHERE id=?", req.Stage, prob, database.Now(), did); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if err := renumber(tx, target); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	if from != req.Stage {
		source, err := stageIDs(tx, from, did)
		if err == nil {
			err = renumber(tx, source)
		}
		if err != nil {
			response.Err(w, err.Error(), 500)
			return
		}
	}
	if err := tx.Commit(); err != nil {
		response.Err(w, err.Error(), 500)
		return
	}
	h.logAudit(r, audit.ActionUpdate, "deals", did, fmt.Sprintf("Moved deal %s: %s → %s #%d", title, from, req.Stage, pos))
	h.GetDeal(w, r, id)
}
