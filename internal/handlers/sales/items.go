package sales

import (
	"database/sql"
	"fmt"
	"strings"

	"smtparts/internal/database"
	"smtparts/internal/models"
	"smtparts/internal/pricing"
	"smtparts/internal/validation"
)

// itemTable names the line-item table and its parent key.
type itemTable struct {
	name, parent string
}

var (
	quotationItems = itemTable{"quotation_items", "quotation_id"}
	orderItems     = itemTable{"order_items", "order_id"}
)

type querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

type rowQuerier interface {
	QueryRow(query string, args ...any) *sql.Row
}

func loadItems(q querier, t itemTable, parentID int64) ([]models.LineItem, error) {
	rows, err := q.Query(`SELECT i.id, i.`+t.parent+`, i.product_id, COALESCE(p.code,''), COALESCE(i.description,''),
		i.qty, COALESCE(i.unit_price,0), COALESCE(i.discount,0), COALESCE(i.line_total,0)
		FROM `+t.name+` i LEFT JOIN products p ON i.product_id = p.id
		WHERE i.`+t.parent+` = ? ORDER BY i.id`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []models.LineItem{}
	for rows.Next() {
		var (
			it  models.LineItem
			pid sql.NullInt64
		)
		if err := rows.Scan(&it.ID, &it.ParentID, &pid, &it.ProductCode, &it.Description,
			&it.Qty, &it.UnitPrice, &it.Discount, &it.LineTotal); err != nil {
			return nil, err
		}
		it.ProductID = database.IntPtr(pid)
		items = append(items, it)
	}
	return items, rows.Err()
}

// prepareItems validates lines and fills blank descriptions from the
// product name.
func prepareItems(db *sql.DB, ve *validation.ValidationErrors, items []models.LineItem) {
	if len(items) == 0 {
		ve.Add("items", "at least one item is required")
		return
	}
	for i := range items {
		it := &items[i]
		field := fmt.Sprintf("items[%d]", i)
		validation.ValidatePositiveFloat(ve, field+".qty", it.Qty)
		validation.ValidateMaxQuantity(ve, field+".qty", it.Qty)
		validation.ValidateNonNegativeFloat(ve, field+".unit_price", it.UnitPrice)
		validation.ValidateMaxPrice(ve, field+".unit_price", it.UnitPrice)
		validation.ValidatePercentage(ve, field+".discount", it.Discount)
		it.Description = strings.TrimSpace(it.Description)

		if it.ProductID == nil || *it.ProductID <= 0 {
			it.ProductID = nil
			validation.RequireField(ve, field+".description", it.Description)
			continue
		}
		var name string
		if err := db.QueryRow("SELECT name FROM products WHERE id=?", *it.ProductID).Scan(&name); err != nil {
			ve.Add(field+".product_id", fmt.Sprintf("references non-existent product: %d", *it.ProductID))
			continue
		}
		if it.Description == "" {
			it.Description = name
		}
	}
}

func insertItems(tx *sql.Tx, t itemTable, parentID int64, items []models.LineItem) error {
	for _, it := range items {
		_, err := tx.Exec(`INSERT INTO `+t.name+` (`+t.parent+`, product_id, description, qty, unit_price, discount, line_total)
			VALUES (?,?,?,?,?,?,?)`,
			parentID, database.NullInt(it.ProductID), it.Description, it.Qty, it.UnitPrice, it.Discount,
			pricing.LineTotal(it.Qty, it.UnitPrice, it.Discount))
		if err != nil {
			return fmt.Errorf("insert %s: %w", t.name, err)
		}
	}
	return nil
}

func replaceItems(tx *sql.Tx, t itemTable, parentID int64, items []models.LineItem) error {
	if _, err := tx.Exec("DELETE FROM "+t.name+" WHERE "+t.parent+"=?", parentID); err != nil {
		return err
	}
	return insertItems(tx, t, parentID, items)
}
