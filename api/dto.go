/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures of the warehouse API. Field names follow the
  established client contract ("pk", "turnovers_from_entrance", ...), so
  they deliberately differ from the Go field names in package ledger.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SIGNED VIEW:
  Ledger entries keep a direction and unsigned magnitudes internally. On
  the wire quantity and sum are signed (expense rows are negative) and the
  direction travels as "type": 1 incoming, 2 expense.

WIRE FORMATS:
  Date:   "dd.mm.yyyy" on output; "dd.mm.yyyy" or "yyyy-mm-dd" on input
  Amount: JSON number with two places on output; number or numeric
          string on input

PARTIAL UPDATES:
  Catalog update requests use pointer fields. Absent (or null) fields keep
  the stored value.

SEE ALSO:
  - handlers.go: Catalog handlers
  - documents.go: Entrance, turnover and order handlers
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// WIRE PRIMITIVES
// =============================================================================

const wireDate = "02.01.2006"

// Date is a calendar day on the wire.
type Date struct {
	time.Time
}

func NewDate(t time.Time) Date {
	return Date{Time: ledger.DateOf(t)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(wireDate))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		d.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	t, err := parseDate(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{wireDate, ledger.DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: expected dd.mm.yyyy or yyyy-mm-dd", s)
}

// Amount is a decimal encoded as a JSON number with two decimal places.
type Amount struct {
	decimal.Decimal
}

func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.StringFixed(2)), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		a.Decimal = decimal.Zero
		return nil
	}
	return a.Decimal.UnmarshalJSON(b)
}

// =============================================================================
// CATALOG
// =============================================================================

type WarehouseDTO struct {
	PK              int64  `json:"pk"`
	Name            string `json:"name"`
	DeleteForbidden bool   `json:"delete_forbidden"`
}

type WarehouseRequest struct {
	Name *string `json:"name"`
}

type UnitDTO struct {
	PK               int64  `json:"pk"`
	Name             string `json:"name"`
	IsPrecisionPoint bool   `json:"is_precision_point"`
}

type UnitRequest struct {
	Name             *string `json:"name"`
	IsPrecisionPoint *bool   `json:"is_precision_point"`
}

type CategoryDTO struct {
	PK            int64  `json:"pk"`
	Name          string `json:"name"`
	MaterialCount int    `json:"material_count"`
}

type CategoryRequest struct {
	Name *string `json:"name"`
}

type MaterialDTO struct {
	PK            int64    `json:"pk"`
	Name          string   `json:"name"`
	Unit          int64    `json:"unit"`
	Category      int64    `json:"category"`
	ArticleNumber *string  `json:"article_number"`
	Compatibility []string `json:"compatibility"`
}

// MaterialRowDTO is a material listing entry.
type MaterialRowDTO struct {
	MaterialDTO
	DeleteForbidden      bool   `json:"delete_forbidden"`
	UnitName             string `json:"unit_name"`
	UnitIsPrecisionPoint bool   `json:"unit_is_precision_point"`
}

type MaterialRequest struct {
	Name          *string   `json:"name"`
	Unit          *int64    `json:"unit"`
	Category      *int64    `json:"category"`
	ArticleNumber *string   `json:"article_number"`
	Compatibility *[]string `json:"compatibility"`
}

type RenameTagRequest struct {
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

type RenameTagResponse struct {
	Updated int `json:"updated"`
}

// =============================================================================
// STOCK
// =============================================================================

type PricesDTO struct {
	AveragePrice Amount `json:"average_price"`
	LastPrice    Amount `json:"last_price"`
}

type WarehouseStockDTO struct {
	Warehouse     int64     `json:"warehouse"`
	WarehouseName string    `json:"warehouse_name"`
	Quantity      Amount    `json:"quantity"`
	Sum           Amount    `json:"sum"`
	Prices        PricesDTO `json:"prices"`
}

// AvailabilityDTO is returned by GET /material/{id}?availability_mode=true.
type AvailabilityDTO struct {
	PK                     int64               `json:"pk"`
	Name                   string              `json:"name"`
	WarehousesAvailability []WarehouseStockDTO `json:"warehouses_availability"`
	Prices                 PricesDTO           `json:"prices"`
	Quantity               Amount              `json:"quantity"`
	UnitName               string              `json:"unit_name"`
	UnitIsPrecisionPoint   bool                `json:"unit_is_precision_point"`
}

type RemainsDTO struct {
	PK                     int64               `json:"pk"`
	Name                   string              `json:"name"`
	Category               int64               `json:"category"`
	CategoryName           string              `json:"category_name"`
	UnitName               string              `json:"unit_name"`
	UnitIsPrecisionPoint   bool                `json:"unit_is_precision_point"`
	Compatibility          []string            `json:"compatibility"`
	Warehouse              *int64              `json:"warehouse,omitempty"`
	WarehouseName          string              `json:"warehouse_name,omitempty"`
	WarehousesAvailability []WarehouseStockDTO `json:"warehouses_availability"`
	Quantity               Amount              `json:"quantity"`
	Price                  Amount              `json:"price"`
	Sum                    Amount              `json:"sum"`
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

type TurnoverDTO struct {
	PK                           int64  `json:"pk"`
	Type                         int    `json:"type"`
	Date                         Date   `json:"date"`
	IsCorrection                 bool   `json:"is_correction"`
	Note                         string `json:"note"`
	Material                     int64  `json:"material"`
	MaterialName                 string `json:"material_name"`
	MaterialUnitName             string `json:"material_unit_name"`
	MaterialUnitIsPrecisionPoint bool   `json:"material_unit_is_precision_point"`
	Warehouse                    int64  `json:"warehouse"`
	WarehouseName                string `json:"warehouse_name"`
	Price                        Amount `json:"price"`
	Quantity                     Amount `json:"quantity"`
	Sum                          Amount `json:"sum"`
	Order                        *int64 `json:"order"`
	Entrance                     *int64 `json:"entrance"`
}

type TurnoverRequest struct {
	Type         int    `json:"type"`
	Date         Date   `json:"date"`
	IsCorrection bool   `json:"is_correction"`
	Note         string `json:"note"`
	Material     int64  `json:"material"`
	Warehouse    int64  `json:"warehouse"`
	Price        Amount `json:"price"`
	Quantity     Amount `json:"quantity"`
	Sum          Amount `json:"sum"`
	Order        *int64 `json:"order"`
	Entrance     *int64 `json:"entrance"`
}

// HistoryDTO is one row of GET /turnover/material/.
type HistoryDTO struct {
	PK               int64  `json:"pk"`
	Type             int    `json:"type"`
	Date             Date   `json:"date"`
	IsCorrection     bool   `json:"is_correction"`
	User             int64  `json:"user"`
	TurnoverName     string `json:"turnover_name"`
	Warehouse        int64  `json:"warehouse"`
	WarehouseName    string `json:"warehouse_name"`
	Quantity         Amount `json:"quantity"`
	QuantityWithUnit string `json:"quantity_with_unit"`
	Price            Amount `json:"price"`
	Sum              Amount `json:"sum"`
	Order            *int64 `json:"order"`
	Entrance         *int64 `json:"entrance"`
}

// MovingRequest is the body of POST /turnover/moving_material/.
type MovingRequest struct {
	Material          int64  `json:"material"`
	Date              Date   `json:"date"`
	WarehouseOutgoing int64  `json:"warehouse_outgoing"`
	WarehouseIncoming int64  `json:"warehouse_incoming"`
	Quantity          Amount `json:"quantity"`
	Price             Amount `json:"price"`
	Sum               Amount `json:"sum"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// LineRequest is a nested entry of an entrance or order body. Lines that
// carry a pk already exist and are not modified.
type LineRequest struct {
	PK        *int64 `json:"pk"`
	Date      Date   `json:"date"`
	Note      string `json:"note"`
	Material  int64  `json:"material"`
	Warehouse int64  `json:"warehouse"`
	Price     Amount `json:"price"`
	Quantity  Amount `json:"quantity"`
	Sum       Amount `json:"sum"`
}

type EntranceListDTO struct {
	PK             int64  `json:"pk"`
	Date           Date   `json:"date"`
	DocumentNumber string `json:"document_number"`
	Provider       string `json:"provider"`
	Note           string `json:"note"`
}

type EntranceDTO struct {
	PK             int64         `json:"pk"`
	Date           Date          `json:"date"`
	DocumentNumber string        `json:"document_number"`
	Responsible    int64         `json:"responsible"`
	Provider       string        `json:"provider"`
	Note           string        `json:"note"`
	Turnovers      []TurnoverDTO `json:"turnovers_from_entrance"`
}

type EntranceRequest struct {
	Date           Date          `json:"date"`
	DocumentNumber string        `json:"document_number"`
	Responsible    int64         `json:"responsible"`
	Provider       string        `json:"provider"`
	Note           string        `json:"note"`
	Turnovers      []LineRequest `json:"turnovers_from_entrance"`
}

type OrderTurnoversRequest struct {
	Turnovers []LineRequest `json:"turnovers_from_order"`
}

// OrderLineDTO is an order consumption line; quantity and sum are
// reported as positive amounts.
type OrderLineDTO struct {
	PK            int64  `json:"pk"`
	Date          Date   `json:"date"`
	Material      int64  `json:"material"`
	MaterialName  string `json:"material_name"`
	Warehouse     int64  `json:"warehouse"`
	WarehouseName string `json:"warehouse_name"`
	Price         Amount `json:"price"`
	Quantity      Amount `json:"quantity"`
	Sum           Amount `json:"sum"`
}

// =============================================================================
// DIRECTORY MIRRORS
// =============================================================================

type OrderMirrorRequest struct {
	Number  string `json:"number"`
	Status  string `json:"status"`
	Vehicle string `json:"vehicle"`
}

type EmployeeMirrorRequest struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func (l LineRequest) turnover() ledger.Turnover {
	return ledger.Turnover{
		Date:        l.Date.Time,
		Note:        l.Note,
		MaterialID:  ledger.MaterialID(l.Material),
		WarehouseID: ledger.WarehouseID(l.Warehouse),
		Price:       l.Price.Decimal,
		Quantity:    l.Quantity.Decimal,
		Sum:         l.Sum.Decimal,
	}
}

func toLines(reqs []LineRequest) []ledger.EntranceLine {
	lines := make([]ledger.EntranceLine, len(reqs))
	for i, req := range reqs {
		lines[i].Turnover = req.turnover()
		if req.PK != nil {
			id := ledger.TurnoverID(*req.PK)
			lines[i].ID = &id
		}
	}
	return lines
}

func (r TurnoverRequest) turnover() ledger.Turnover {
	t := ledger.Turnover{
		Direction:    ledger.Direction(r.Type),
		Date:         r.Date.Time,
		IsCorrection: r.IsCorrection,
		Note:         r.Note,
		MaterialID:   ledger.MaterialID(r.Material),
		WarehouseID:  ledger.WarehouseID(r.Warehouse),
		Price:        r.Price.Decimal,
		Quantity:     r.Quantity.Decimal,
		Sum:          r.Sum.Decimal,
	}
	if r.Order != nil {
		id := ledger.OrderID(*r.Order)
		t.OrderID = &id
	}
	if r.Entrance != nil {
		id := ledger.EntranceID(*r.Entrance)
		t.EntranceID = &id
	}
	return t
}

func unitDTO(u ledger.Unit) UnitDTO {
	return UnitDTO{PK: int64(u.ID), Name: u.Name, IsPrecisionPoint: u.Precise}
}

func materialDTO(m ledger.Material) MaterialDTO {
	tags := m.Compatibility
	if tags == nil {
		tags = []string{}
	}
	return MaterialDTO{
		PK:            int64(m.ID),
		Name:          m.Name,
		Unit:          int64(m.UnitID),
		Category:      int64(m.CategoryID),
		ArticleNumber: m.ArticleNumber,
		Compatibility: tags,
	}
}

func pricesDTO(p ledger.Prices) PricesDTO {
	return PricesDTO{AveragePrice: NewAmount(p.AveragePrice), LastPrice: NewAmount(p.LastPrice)}
}

func warehouseStockDTOs(rows []ledger.WarehouseStock) []WarehouseStockDTO {
	out := make([]WarehouseStockDTO, len(rows))
	for i, ws := range rows {
		out[i] = WarehouseStockDTO{
			Warehouse:     int64(ws.WarehouseID),
			WarehouseName: ws.WarehouseName,
			Quantity:      NewAmount(ws.Quantity),
			Sum:           NewAmount(ws.Sum),
			Prices: PricesDTO{
				AveragePrice: NewAmount(ws.AveragePrice),
				LastPrice:    NewAmount(ws.LastPrice),
			},
		}
	}
	return out
}

func remainsDTO(r ledger.RemainsRow) RemainsDTO {
	dto := RemainsDTO{
		PK:                     int64(r.MaterialID),
		Name:                   r.Name,
		Category:               int64(r.CategoryID),
		CategoryName:           r.CategoryName,
		UnitName:               r.UnitName,
		UnitIsPrecisionPoint:   r.UnitPrecise,
		Compatibility:          r.Compatibility,
		WarehouseName:          r.WarehouseName,
		WarehousesAvailability: warehouseStockDTOs(r.Warehouses),
		Quantity:               NewAmount(r.Quantity),
		Price:                  NewAmount(r.Price),
		Sum:                    NewAmount(r.Sum),
	}
	if dto.Compatibility == nil {
		dto.Compatibility = []string{}
	}
	if r.WarehouseID != nil {
		id := int64(*r.WarehouseID)
		dto.Warehouse = &id
	}
	return dto
}

func orderRef(id *ledger.OrderID) *int64 {
	if id == nil {
		return nil
	}
	v := int64(*id)
	return &v
}

func entranceRef(id *ledger.EntranceID) *int64 {
	if id == nil {
		return nil
	}
	v := int64(*id)
	return &v
}
