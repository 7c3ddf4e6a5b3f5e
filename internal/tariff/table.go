package tariff

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"tariff-sync/internal/models"
)

// Header is the first row of every published grid.
var Header = []string{"warehouse", "geo", "coefficient", "raw_json"}

// PublishedRow is one record of the published table. Rows are rebuilt on
// every publish cycle and never stored.
type PublishedRow struct {
	Warehouse   string
	Geo         string
	Coefficient decimal.NullDecimal
	Raw         models.TariffRecord
}

// BuildRows maps records to rows ordered by coefficient ascending. Rows
// without a coefficient go last and keep their original relative order.
func BuildRows(records []models.TariffRecord) []PublishedRow {
	rows := make([]PublishedRow, 0, len(records))
	for i, rec := range records {
		row := PublishedRow{
			Warehouse: fmt.Sprintf("item_%d", i),
			Raw:       rec,
		}
		if name, ok := rec.Text("warehouseName"); ok {
			row.Warehouse = name
		}
		if geo, ok := rec.Text("geoName"); ok {
			row.Geo = geo
		}
		if c, ok := ExtractCoefficient(rec); ok {
			row.Coefficient = decimal.NullDecimal{Decimal: c, Valid: true}
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Coefficient, rows[j].Coefficient
		switch {
		case a.Valid && b.Valid:
			return a.Decimal.LessThan(b.Decimal)
		case a.Valid:
			return true
		default:
			return false
		}
	})
	return rows
}

// Grid renders rows as the value grid written to a spreadsheet, header first.
func Grid(rows []PublishedRow) [][]interface{} {
	grid := make([][]interface{}, 0, len(rows)+1)
	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	grid = append(grid, header)

	for _, r := range rows {
		var coef interface{} = ""
		if r.Coefficient.Valid {
			coef = r.Coefficient.Decimal.InexactFloat64()
		}
		grid = append(grid, []interface{}{r.Warehouse, r.Geo, coef, r.Raw.Compact()})
	}
	return grid
}
