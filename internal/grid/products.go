package grid

import (
	"context"

	"smtparts/internal/models"
)

// Product catalog select options.
var (
	Brands     = []string{"Fuji", "Panasonic", "Yamaha", "Juki", "Hanwha", "ASM", "Sony", "Khác"}
	Categories = []string{"Feeder", "Nozzle", "Belt", "Sensor", "Filter", "Motor", "Board", "Cylinder", "Khác"}
	Units      = []string{"cái", "bộ", "sợi", "hộp", "chiếc", "mét"}
)

// ProductColumns is the column set of the catalog bulk editor.
var ProductColumns = []Column{
	{Key: "code", Label: "Mã", Kind: KindText, Required: true, Width: 12},
	{Key: "name", Label: "Tên sản phẩm", Kind: KindText, Required: true, Width: 28},
	{Key: "brand", Label: "Hãng", Kind: KindSelect, Options: Brands, Width: 10},
	{Key: "machine_model", Label: "Model máy", Kind: KindText, Width: 12},
	{Key: "category", Label: "Danh mục", Kind: KindSelect, Options: Categories, Width: 10},
	{Key: "unit", Label: "Đơn vị", Kind: KindSelect, Options: Units, Width: 6},
	{Key: "stock", Label: "Tồn kho", Kind: KindNumber, Width: 8},
	{Key: "cost_price", Label: "Giá vốn", Kind: KindNumber, Width: 12},
	{Key: "sale_price", Label: "Giá bán", Kind: KindNumber, Width: 12},
	{Key: "location", Label: "Vị trí", Kind: KindText, Width: 8},
	{Key: "notes", Label: "Ghi chú", Kind: KindText, Width: 20},
}

// ProductRecord flattens a product into grid values.
func ProductRecord(p models.Product) Record {
	return Record{
		"code":          normalize(p.Code),
		"name":          normalize(p.Name),
		"brand":         normalize(p.Brand),
		"machine_model": normalize(p.MachineModel),
		"category":      normalize(p.Category),
		"unit":          normalize(p.Unit),
		"stock":         normalize(p.Stock),
		"cost_price":    normalize(p.CostPrice),
		"sale_price":    normalize(p.SalePrice),
		"location":      normalize(p.Location),
		"notes":         normalize(p.Notes),
	}
}

// ProductRows converts a product listing into grid rows.
func ProductRows(ps []models.Product) []Row {
	rows := make([]Row, len(ps))
	for i, p := range ps {
		rows[i] = Row{ID: RowID(p.ID), Values: ProductRecord(p)}
	}
	return rows
}

// ProductStore is the part of the API client the catalog editor needs.
type ProductStore interface {
	PatchProduct(ctx context.Context, id int64, fields map[string]any) (*models.Product, error)
	CreateProduct(ctx context.Context, body any) (*models.Product, error)
}

// ProductBackend adapts a ProductStore to Backend.
type ProductBackend struct {
	Store ProductStore
}

func (b ProductBackend) Update(ctx context.Context, id RowID, fields Record) (Record, error) {
	p, err := b.Store.PatchProduct(ctx, int64(id), map[string]any(fields))
	if err != nil {
		return nil, err
	}
	return ProductRecord(*p), nil
}

func (b ProductBackend) Create(ctx context.Context, fields Record) (Row, error) {
	p, err := b.Store.CreateProduct(ctx, map[string]any(fields))
	if err != nil {
		return Row{}, err
	}
	return Row{ID: RowID(p.ID), Values: ProductRecord(*p)}, nil
}
