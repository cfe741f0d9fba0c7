package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// ENTRANCES (goods receipts)
// =============================================================================

// ListEntrances returns receipts, newest first.
// GET /api/warehouse/entrance/?date_begin=&date_end=&general_search=
func (h *Handler) ListEntrances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDate(q.Get("date_begin"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date_begin", err)
		return
	}
	to, err := parseDate(q.Get("date_end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date_end", err)
		return
	}
	entrances, err := h.Ledger.Entrances(r.Context(), ledger.EntranceFilter{
		From:   from,
		To:     to,
		Search: strings.TrimSpace(q.Get("general_search")),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]EntranceListDTO, len(entrances))
	for i, e := range entrances {
		out[i] = EntranceListDTO{
			PK:             int64(e.ID),
			Date:           NewDate(e.Date),
			DocumentNumber: e.DocumentNumber,
			Provider:       e.Provider,
			Note:           e.Note,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateEntrance stores a receipt with its incoming lines atomically.
// POST /api/warehouse/entrance/
func (h *Handler) CreateEntrance(w http.ResponseWriter, r *http.Request) {
	var req EntranceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	lines := make([]ledger.Turnover, len(req.Turnovers))
	for i, line := range req.Turnovers {
		lines[i] = line.turnover()
	}
	e, _, err := h.Ledger.CreateEntrance(r.Context(), actor(r), req.entrance(0), lines)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeEntrance(w, r, e.ID, http.StatusCreated)
}

// GET /api/warehouse/entrance/{id}
func (h *Handler) GetEntrance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	h.writeEntrance(w, r, ledger.EntranceID(id), http.StatusOK)
}

// UpdateEntrance edits the receipt header. Lines sent without a pk are
// added; lines with a pk are left as they are.
// PUT /api/warehouse/entrance/{id}
func (h *Handler) UpdateEntrance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req EntranceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	e, _, err := h.Ledger.UpdateEntrance(r.Context(), actor(r), req.entrance(ledger.EntranceID(id)), toLines(req.Turnovers))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeEntrance(w, r, e.ID, http.StatusOK)
}

// DeleteEntrance removes a receipt without lines.
// DELETE /api/warehouse/entrance/{id}
func (h *Handler) DeleteEntrance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Ledger.DeleteEntrance(r.Context(), ledger.EntranceID(id)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListProviders returns the distinct provider names seen on receipts.
// GET /api/warehouse/entrance/providers/
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := h.Ledger.Providers(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if providers == nil {
		providers = []string{}
	}
	writeJSON(w, http.StatusOK, providers)
}

func (h *Handler) writeEntrance(w http.ResponseWriter, r *http.Request, id ledger.EntranceID, status int) {
	e, lines, err := h.Ledger.Entrance(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos, err := h.turnoverDTOs(r.Context(), lines)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, status, EntranceDTO{
		PK:             int64(e.ID),
		Date:           NewDate(e.Date),
		DocumentNumber: e.DocumentNumber,
		Responsible:    int64(e.ResponsibleID),
		Provider:       e.Provider,
		Note:           e.Note,
		Turnovers:      dtos,
	})
}

func (req EntranceRequest) entrance(id ledger.EntranceID) ledger.Entrance {
	return ledger.Entrance{
		ID:             id,
		Date:           req.Date.Time,
		DocumentNumber: strings.TrimSpace(req.DocumentNumber),
		Provider:       strings.TrimSpace(req.Provider),
		ResponsibleID:  ledger.EmployeeID(req.Responsible),
		Note:           req.Note,
	}
}

// =============================================================================
// TURNOVERS (ledger entries)
// =============================================================================

// ListTurnovers returns the lines of one order or one receipt in insertion
// order. Without either filter the list is empty.
// GET /api/warehouse/turnover/?order_pk= | ?entrance_pk=
func (h *Handler) ListTurnovers(w http.ResponseWriter, r *http.Request) {
	order, err := queryInt(r, "order_pk")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order_pk", err)
		return
	}
	entrance, err := queryInt(r, "entrance_pk")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entrance_pk", err)
		return
	}

	var rows []ledger.Turnover
	switch {
	case order > 0:
		rows, err = h.Ledger.TurnoversByOrder(r.Context(), ledger.OrderID(order))
	case entrance > 0:
		rows, err = h.Ledger.TurnoversByEntrance(r.Context(), ledger.EntranceID(entrance))
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos, err := h.turnoverDTOs(r.Context(), rows)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTurnover records a single entry, typically a correction.
// POST /api/warehouse/turnover/
func (h *Handler) CreateTurnover(w http.ResponseWriter, r *http.Request) {
	var req TurnoverRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := h.Ledger.Record(r.Context(), actor(r), req.turnover())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos, err := h.turnoverDTOs(r.Context(), []ledger.Turnover{*t})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dtos[0])
}

// GET /api/warehouse/turnover/{id}
func (h *Handler) GetTurnover(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, err := h.Ledger.Turnover(r.Context(), ledger.TurnoverID(id))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos, err := h.turnoverDTOs(r.Context(), []ledger.Turnover{*t})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dtos[0])
}

// DeleteTurnover removes an entry. Entries of completed orders can only be
// removed by a superuser.
// DELETE /api/warehouse/turnover/{id}
func (h *Handler) DeleteTurnover(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Ledger.DeleteTurnover(r.Context(), actor(r), ledger.TurnoverID(id)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveMaterial transfers stock between two warehouses.
// POST /api/warehouse/turnover/moving_material/
func (h *Handler) MoveMaterial(w http.ResponseWriter, r *http.Request) {
	var req MovingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	_, err := h.Ledger.Transfer(r.Context(), actor(r), ledger.TransferRequest{
		MaterialID: ledger.MaterialID(req.Material),
		Date:       req.Date.Time,
		From:       ledger.WarehouseID(req.WarehouseOutgoing),
		To:         ledger.WarehouseID(req.WarehouseIncoming),
		Price:      req.Price.Decimal,
		Quantity:   req.Quantity.Decimal,
		Sum:        req.Sum.Decimal,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{Message: "moved successfully"})
}

// =============================================================================
// ORDERS
// =============================================================================

// ListOrderTurnovers returns an order's consumption lines.
// GET /api/warehouse/order/{id}/turnovers
func (h *Handler) ListOrderTurnovers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	h.writeOrderLines(w, r, ledger.OrderID(id), http.StatusOK)
}

// ConsumeForOrder books expense lines against an order. Lines with a pk
// already exist and are skipped.
// POST /api/warehouse/order/{id}/turnovers
func (h *Handler) ConsumeForOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req OrderTurnoversRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := h.Ledger.ConsumeForOrder(r.Context(), actor(r), ledger.OrderID(id), toLines(req.Turnovers)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeOrderLines(w, r, ledger.OrderID(id), http.StatusCreated)
}

func (h *Handler) writeOrderLines(w http.ResponseWriter, r *http.Request, id ledger.OrderID, status int) {
	rows, err := h.Ledger.TurnoversByOrder(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	lookup := h.newNames()
	out := make([]OrderLineDTO, len(rows))
	for i, t := range rows {
		m, _, err := lookup.material(r.Context(), t.MaterialID)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		wh, err := lookup.warehouse(r.Context(), t.WarehouseID)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		out[i] = OrderLineDTO{
			PK:            int64(t.ID),
			Date:          NewDate(t.Date),
			Material:      int64(t.MaterialID),
			MaterialName:  m.Name,
			Warehouse:     int64(t.WarehouseID),
			WarehouseName: wh.Name,
			Price:         NewAmount(t.Price),
			Quantity:      NewAmount(t.Quantity),
			Sum:           NewAmount(t.Sum),
		}
	}
	writeJSON(w, status, out)
}

// =============================================================================
// DIRECTORY MIRRORS
// =============================================================================

// PutOrder stores the order state pushed by the order subsystem.
// PUT /api/warehouse/directory/orders/{id}
func (h *Handler) PutOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req OrderMirrorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	o := ledger.Order{
		ID:      ledger.OrderID(id),
		Number:  req.Number,
		Status:  ledger.OrderStatus(req.Status),
		Vehicle: req.Vehicle,
	}
	if err := h.Ledger.SaveOrder(r.Context(), &o); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// PutEmployee stores the employee record pushed by the staff directory.
// PUT /api/warehouse/directory/employees/{id}
func (h *Handler) PutEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req EmployeeMirrorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	e := ledger.Employee{ID: ledger.EmployeeID(id), Name: req.Name, Role: req.Role}
	if err := h.Ledger.SaveEmployee(r.Context(), &e); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// =============================================================================
// DECORATION
// =============================================================================

// names caches catalog lookups while decorating a batch of entries.
type names struct {
	catalog    *ledger.Catalog
	materials  map[ledger.MaterialID]*ledger.Material
	units      map[ledger.UnitID]*ledger.Unit
	warehouses map[ledger.WarehouseID]*ledger.Warehouse
}

func (h *Handler) newNames() *names {
	return &names{
		catalog:    h.Catalog,
		materials:  map[ledger.MaterialID]*ledger.Material{},
		units:      map[ledger.UnitID]*ledger.Unit{},
		warehouses: map[ledger.WarehouseID]*ledger.Warehouse{},
	}
}

func (n *names) material(ctx context.Context, id ledger.MaterialID) (*ledger.Material, *ledger.Unit, error) {
	m, ok := n.materials[id]
	if !ok {
		var err error
		if m, err = n.catalog.Material(ctx, id); err != nil {
			return nil, nil, err
		}
		n.materials[id] = m
	}
	u, ok := n.units[m.UnitID]
	if !ok {
		var err error
		if u, err = n.catalog.Unit(ctx, m.UnitID); err != nil {
			return nil, nil, err
		}
		n.units[u.ID] = u
	}
	return m, u, nil
}

func (n *names) warehouse(ctx context.Context, id ledger.WarehouseID) (*ledger.Warehouse, error) {
	if wh, ok := n.warehouses[id]; ok {
		return wh, nil
	}
	wh, err := n.catalog.Warehouse(ctx, id)
	if err != nil {
		return nil, err
	}
	n.warehouses[id] = wh
	return wh, nil
}

// turnoverDTOs renders entries in the signed view.
func (h *Handler) turnoverDTOs(ctx context.Context, rows []ledger.Turnover) ([]TurnoverDTO, error) {
	lookup := h.newNames()
	out := make([]TurnoverDTO, len(rows))
	for i, t := range rows {
		m, u, err := lookup.material(ctx, t.MaterialID)
		if err != nil {
			return nil, err
		}
		wh, err := lookup.warehouse(ctx, t.WarehouseID)
		if err != nil {
			return nil, err
		}
		out[i] = TurnoverDTO{
			PK:                           int64(t.ID),
			Type:                         int(t.Direction),
			Date:                         NewDate(t.Date),
			IsCorrection:                 t.IsCorrection,
			Note:                         t.Note,
			Material:                     int64(t.MaterialID),
			MaterialName:                 m.Name,
			MaterialUnitName:             u.Name,
			MaterialUnitIsPrecisionPoint: u.Precise,
			Warehouse:                    int64(t.WarehouseID),
			WarehouseName:                wh.Name,
			Price:                        NewAmount(t.Price),
			Quantity:                     NewAmount(t.SignedQuantity()),
			Sum:                          NewAmount(t.SignedSum()),
			Order:                        orderRef(t.OrderID),
			Entrance:                     entranceRef(t.EntranceID),
		}
	}
	return out, nil
}
