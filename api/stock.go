package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/report"
)

// =============================================================================
// REMAINS
// =============================================================================

// Remains lists materials with their aggregated stock.
// GET /api/warehouse/material/remains/
//
//	?category=&warehouse=&compatbility=a,b&hide_empty=true&search_name=
//	&date=&sortField=&sortOrder=descend
func (h *Handler) Remains(w http.ResponseWriter, r *http.Request) {
	f, err := remainsFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid filter", err)
		return
	}
	h.writeRemains(w, r, f)
}

// RemainsByCategory lists non-empty stock per (material, warehouse).
// Either category or search_name is required.
// GET /api/warehouse/material/remains_category/
func (h *Handler) RemainsByCategory(w http.ResponseWriter, r *http.Request) {
	f, err := remainsFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid filter", err)
		return
	}
	if f.CategoryID == 0 && f.Search == "" {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Message: "category - required"})
		return
	}
	f.HideEmpty = true
	f.GroupByWarehouse = true
	h.writeRemains(w, r, f)
}

func (h *Handler) writeRemains(w http.ResponseWriter, r *http.Request, f ledger.RemainsFilter) {
	rows, err := h.Ledger.Stock().Remains(r.Context(), f)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]RemainsDTO, len(rows))
	for i, row := range rows {
		out[i] = remainsDTO(row)
	}
	writeJSON(w, http.StatusOK, out)
}

// ExportRemains renders the remains listing as an xlsx workbook. It takes
// the same filters as Remains.
// GET /api/warehouse/material/remains/export
func (h *Handler) ExportRemains(w http.ResponseWriter, r *http.Request) {
	f, err := remainsFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid filter", err)
		return
	}
	rows, err := h.Ledger.Stock().Remains(r.Context(), f)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	asOf := f.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}

	var buf bytes.Buffer
	if err := report.WriteRemains(&buf, rows, asOf); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="remains_%s.xlsx"`, asOf.Format(ledger.DateLayout)))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func remainsFilter(r *http.Request) (ledger.RemainsFilter, error) {
	q := r.URL.Query()
	var f ledger.RemainsFilter

	category, err := queryInt(r, "category")
	if err != nil {
		return f, fmt.Errorf("category: %w", err)
	}
	warehouse, err := queryInt(r, "warehouse")
	if err != nil {
		return f, fmt.Errorf("warehouse: %w", err)
	}
	f.CategoryID = ledger.CategoryID(category)
	f.WarehouseID = ledger.WarehouseID(warehouse)

	tags := q.Get("compatibility")
	if tags == "" {
		// older clients send the misspelled name
		tags = q.Get("compatbility")
	}
	f.Compatibility = splitList(tags)

	f.HideEmpty = q.Get("hide_empty") == "true"
	f.Search = strings.TrimSpace(q.Get("search_name"))
	if f.AsOf, err = parseDate(q.Get("date")); err != nil {
		return f, err
	}
	f.SortField = q.Get("sortField")
	f.Descending = q.Get("sortOrder") == "descend"
	return f, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// =============================================================================
// AVAILABILITY AND HISTORY
// =============================================================================

func (h *Handler) writeAvailability(w http.ResponseWriter, r *http.Request, id ledger.MaterialID) {
	a, err := h.Ledger.Stock().Availability(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityDTO{
		PK:                     int64(a.Material.ID),
		Name:                   a.Material.Name,
		WarehousesAvailability: warehouseStockDTOs(a.Warehouses),
		Prices:                 pricesDTO(a.Prices),
		Quantity:               NewAmount(a.Quantity),
		UnitName:               a.Unit.Name,
		UnitIsPrecisionPoint:   a.Unit.Precise,
	})
}

// MaterialHistory lists the movements of one material.
// GET /api/warehouse/turnover/material/
//
//	?material_pk=&warehouse=&turnover_type=&sortField=&sortOrder=descend
func (h *Handler) MaterialHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	material, err := strconv.ParseInt(q.Get("material_pk"), 10, 64)
	if err != nil || material <= 0 {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Message: "material_pk - required"})
		return
	}
	warehouse, err := queryInt(r, "warehouse")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid warehouse", err)
		return
	}
	direction, err := queryInt(r, "turnover_type")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid turnover_type", err)
		return
	}

	rows, err := h.Ledger.MaterialHistory(r.Context(), ledger.MaterialHistoryFilter{
		MaterialID:  ledger.MaterialID(material),
		WarehouseID: ledger.WarehouseID(warehouse),
		Direction:   ledger.Direction(direction),
		SortField:   q.Get("sortField"),
		Descending:  q.Get("sortOrder") == "descend",
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]HistoryDTO, len(rows))
	for i, row := range rows {
		out[i] = HistoryDTO{
			PK:               int64(row.ID),
			Type:             int(row.Direction),
			Date:             NewDate(row.Date),
			IsCorrection:     row.IsCorrection,
			User:             int64(row.UserID),
			TurnoverName:     row.Label,
			Warehouse:        int64(row.WarehouseID),
			WarehouseName:    row.WarehouseName,
			Quantity:         NewAmount(row.SignedQuantity()),
			QuantityWithUnit: row.QuantityWithUnit,
			Price:            NewAmount(row.Price),
			Sum:              NewAmount(row.SignedSum()),
			Order:            orderRef(row.OrderID),
			Entrance:         entranceRef(row.EntranceID),
		}
	}
	writeJSON(w, http.StatusOK, out)
}
