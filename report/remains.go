// Package report renders stock listings as spreadsheets.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/warp/stock-ledger/ledger"
)

const remainsSheet = "Remains"

var remainsHeader = []interface{}{
	"material_id",
	"material",
	"category",
	"compatibility",
	"warehouse",
	"unit",
	"quantity",
	"price",
	"sum",
}

// WriteRemains writes rows as an xlsx workbook with a header, one line per
// row and a closing total of the sum column.
func WriteRemains(w io.Writer, rows []ledger.RemainsRow, asOf time.Time) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), remainsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetCellValue(remainsSheet, "A1", "Stock as of "+asOf.Format("02.01.2006")); err != nil {
		return err
	}
	if err := f.SetSheetRow(remainsSheet, "A2", &remainsHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	total := decimal.Zero
	line := 3
	for _, r := range rows {
		warehouse := r.WarehouseName
		if r.WarehouseID == nil && len(r.Warehouses) > 0 {
			names := make([]string, len(r.Warehouses))
			for i, ws := range r.Warehouses {
				names[i] = ws.WarehouseName
			}
			warehouse = strings.Join(names, ", ")
		}
		places := int32(0)
		if r.UnitPrecise {
			places = 2
		}
		quantity, _ := r.Quantity.Round(places).Float64()
		price, _ := r.Price.Float64()
		sum, _ := r.Sum.Float64()

		excelRow := []interface{}{
			int64(r.MaterialID),
			r.Name,
			r.CategoryName,
			strings.Join(r.Compatibility, ", "),
			warehouse,
			r.UnitName,
			quantity,
			price,
			sum,
		}
		cell, err := excelize.CoordinatesToCellName(1, line)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(remainsSheet, cell, &excelRow); err != nil {
			return fmt.Errorf("write row %d: %w", line, err)
		}
		total = total.Add(r.Sum)
		line++
	}

	totalSum, _ := total.Round(2).Float64()
	totalRow := []interface{}{nil, "Total", nil, nil, nil, nil, nil, nil, totalSum}
	cell, err := excelize.CoordinatesToCellName(1, line)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(remainsSheet, cell, &totalRow); err != nil {
		return fmt.Errorf("write total: %w", err)
	}

	if err := f.SetColWidth(remainsSheet, "B", "E", 28); err != nil {
		return err
	}
	return f.Write(w)
}
