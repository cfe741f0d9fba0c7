/*
handlers.go - HTTP API handlers for the warehouse stock ledger

PURPOSE:
  Exposes the ledger via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to the ledger and catalog services.

ENDPOINTS (all under /api/warehouse):
  Catalog:
    GET/POST        /warehouse/          GET/PUT/DELETE /warehouse/{id}
    GET/POST        /unit/               GET/PUT/DELETE /unit/{id}
    GET/POST        /material_category/  GET/PUT/DELETE /material_category/{id}
    GET/POST        /material/           GET/PUT/DELETE /material/{id}
    POST            /material/rename_tag

  Documents and entries: see documents.go
  Stock reports:         see stock.go

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store:   Database access (health checks, scenario reset)
  - Ledger:  Every stock-changing write and the stock queries
  - Catalog: Reference data

REQUEST FLOW:
  1. Parse HTTP request
  2. Call the ledger or catalog service (it validates)
  3. Serialize response
  4. Map errors to statuses (errors.go)

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Error mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/store/sqlstore"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlstore.Store
	Ledger  *ledger.Ledger
	Catalog *ledger.Catalog

	log *slog.Logger

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler over the given services.
func NewHandler(store *sqlstore.Store, l *ledger.Ledger, c *ledger.Catalog, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{Store: store, Ledger: l, Catalog: c, log: log}
}

// Health reports liveness and database reachability.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DB().PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": h.Store.Dialect()})
}

// =============================================================================
// WAREHOUSES
// =============================================================================

// ListWarehouses returns all warehouses.
// GET /api/warehouse/warehouse/
func (h *Handler) ListWarehouses(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Catalog.Warehouses(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]WarehouseDTO, len(rows))
	for i, wh := range rows {
		out[i] = WarehouseDTO{PK: int64(wh.ID), Name: wh.Name, DeleteForbidden: wh.DeleteForbidden}
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateWarehouse creates a warehouse.
// POST /api/warehouse/warehouse/
func (h *Handler) CreateWarehouse(w http.ResponseWriter, r *http.Request) {
	var req WarehouseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	wh := ledger.Warehouse{Name: deref(req.Name)}
	if err := h.Catalog.SaveWarehouse(r.Context(), &wh); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, WarehouseDTO{PK: int64(wh.ID), Name: wh.Name})
}

// GET /api/warehouse/warehouse/{id}
func (h *Handler) GetWarehouse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	h.writeWarehouse(w, r, ledger.WarehouseID(id), http.StatusOK)
}

// UpdateWarehouse renames a warehouse.
// PUT /api/warehouse/warehouse/{id}
func (h *Handler) UpdateWarehouse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req WarehouseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	wh, err := h.Catalog.Warehouse(r.Context(), ledger.WarehouseID(id))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if req.Name != nil {
		wh.Name = *req.Name
	}
	if err := h.Catalog.SaveWarehouse(r.Context(), wh); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeWarehouse(w, r, wh.ID, http.StatusOK)
}

// DELETE /api/warehouse/warehouse/{id}
func (h *Handler) DeleteWarehouse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Catalog.DeleteWarehouse(r.Context(), ledger.WarehouseID(id)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeWarehouse(w http.ResponseWriter, r *http.Request, id ledger.WarehouseID, status int) {
	if _, err := h.Catalog.Warehouse(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	rows, err := h.Catalog.Warehouses(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	for _, wh := range rows {
		if wh.ID == id {
			writeJSON(w, status, WarehouseDTO{PK: int64(wh.ID), Name: wh.Name, DeleteForbidden: wh.DeleteForbidden})
			return
		}
	}
	h.writeDomainError(w, r, &ledger.NotFoundError{Entity: "warehouse", ID: int64(id)})
}

// =============================================================================
// UNITS
// =============================================================================

// GET /api/warehouse/unit/
func (h *Handler) ListUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.Catalog.Units(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]UnitDTO, len(units))
	for i, u := range units {
		out[i] = unitDTO(u)
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /api/warehouse/unit/
func (h *Handler) CreateUnit(w http.ResponseWriter, r *http.Request) {
	var req UnitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u := ledger.Unit{Name: deref(req.Name)}
	if req.IsPrecisionPoint != nil {
		u.Precise = *req.IsPrecisionPoint
	}
	if err := h.Catalog.SaveUnit(r.Context(), &u); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, unitDTO(u))
}

// GET /api/warehouse/unit/{id}
func (h *Handler) GetUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	u, err := h.Catalog.Unit(r.Context(), ledger.UnitID(id))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unitDTO(*u))
}

// PUT /api/warehouse/unit/{id}
func (h *Handler) UpdateUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UnitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := h.Catalog.Unit(r.Context(), ledger.UnitID(id))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if req.Name != nil {
		u.Name = *req.Name
	}
	if req.IsPrecisionPoint != nil {
		u.Precise = *req.IsPrecisionPoint
	}
	if err := h.Catalog.SaveUnit(r.Context(), u); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unitDTO(*u))
}

// DELETE /api/warehouse/unit/{id}
func (h *Handler) DeleteUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Catalog.DeleteUnit(r.Context(), ledger.UnitID(id)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CATEGORIES
// =============================================================================

// ListCategories returns categories with their material counts.
// GET /api/warehouse/material_category/
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Catalog.Categories(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]CategoryDTO, len(cats))
	for i, c := range cats {
		out[i] = CategoryDTO{PK: int64(c.ID), Name: c.Name, MaterialCount: c.Materials}
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /api/warehouse/material_category/
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c := ledger.Category{Name: deref(req.Name)}
	if err := h.Catalog.SaveCategory(r.Context(), &c); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CategoryDTO{PK: int64(c.ID), Name: c.Name})
}

// GET /api/warehouse/material_category/{id}
func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	h.writeCategory(w, r, ledger.CategoryID(id))
}

// PUT /api/warehouse/material_category/{id}
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req CategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.Catalog.Category(r.Context(), ledger.CategoryID(id))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if req.Name != nil {
		c.Name = *req.Name
	}
	if err := h.Catalog.SaveCategory(r.Context(), c); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeCategory(w, r, c.ID)
}

// DELETE /api/warehouse/material_category/{id}
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Catalog.DeleteCategory(r.Context(), ledger.CategoryID(id)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeCategory(w http.ResponseWriter, r *http.Request, id ledger.CategoryID) {
	c, err := h.Catalog.Category(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	materials, err := h.Catalog.Materials(r.Context(), ledger.MaterialFilter{CategoryID: id})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CategoryDTO{PK: int64(c.ID), Name: c.Name, MaterialCount: len(materials)})
}

// =============================================================================
// MATERIALS
// =============================================================================

// ListMaterials returns materials, optionally filtered.
// GET /api/warehouse/material/?category=&general_search=
func (h *Handler) ListMaterials(w http.ResponseWriter, r *http.Request) {
	category, err := queryInt(r, "category")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid category", err)
		return
	}
	rows, err := h.Catalog.Materials(r.Context(), ledger.MaterialFilter{
		CategoryID: ledger.CategoryID(category),
		Search:     strings.TrimSpace(r.URL.Query().Get("general_search")),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]MaterialRowDTO, len(rows))
	for i, m := range rows {
		out[i] = MaterialRowDTO{
			MaterialDTO:          materialDTO(m.Material),
			DeleteForbidden:      m.DeleteForbidden,
			UnitName:             m.UnitName,
			UnitIsPrecisionPoint: m.UnitPrecise,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /api/warehouse/material/
func (h *Handler) CreateMaterial(w http.ResponseWriter, r *http.Request) {
	var req MaterialRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var m ledger.Material
	req.apply(&m)
	if err := h.Catalog.SaveMaterial(r.Context(), &m); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, materialDTO(m))
}

// GetMaterial returns a material, or its stock picture with
// ?availability_mode=true.
// GET /api/warehouse/material/{id}
func (h *Handler) GetMaterial(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("availability_mode") == "true" {
		h.writeAvailability(w, r, ledger.MaterialID(id))
		return
	}
	m, err := h.Catalog.Material(r.Context(), ledger.MaterialID(id))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, materialDTO(*m))
}

// PUT /api/warehouse/material/{id}
func (h *Handler) UpdateMaterial(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req MaterialRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := h.Catalog.Material(r.Context(), ledger.MaterialID(id))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	req.apply(m)
	if err := h.Catalog.SaveMaterial(r.Context(), m); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, materialDTO(*m))
}

// DELETE /api/warehouse/material/{id}
func (h *Handler) DeleteMaterial(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Catalog.DeleteMaterial(r.Context(), ledger.MaterialID(id)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RenameTag rewrites a compatibility tag across all materials, e.g. after
// a vehicle was renamed.
// POST /api/warehouse/material/rename_tag
func (h *Handler) RenameTag(w http.ResponseWriter, r *http.Request) {
	var req RenameTagRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.Catalog.RenameCompatibilityTag(r.Context(), req.OldName, req.NewName)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RenameTagResponse{Updated: n})
}

func (req MaterialRequest) apply(m *ledger.Material) {
	if req.Name != nil {
		m.Name = *req.Name
	}
	if req.Unit != nil {
		m.UnitID = ledger.UnitID(*req.Unit)
	}
	if req.Category != nil {
		m.CategoryID = ledger.CategoryID(*req.Category)
	}
	if req.ArticleNumber != nil {
		m.ArticleNumber = req.ArticleNumber
	}
	if req.Compatibility != nil {
		m.Compatibility = *req.Compatibility
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id", err)
		return 0, false
	}
	return id, true
}

// queryInt parses an optional integer query parameter; absent means 0.
func queryInt(r *http.Request, name string) (int64, error) {
	s := strings.TrimSpace(r.URL.Query().Get(name))
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
