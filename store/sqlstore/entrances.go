package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/warp/stock-ledger/ledger"
)

const entranceColumns = `id, user_id, date, document_number, responsible_id, provider, note`

func (s *Store) SaveEntrance(ctx context.Context, e *ledger.Entrance) error {
	if e.ID == 0 {
		err := s.queryRow(ctx,
			`INSERT INTO entrances (user_id, date, document_number, responsible_id, provider, note)
			 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
			int64(e.UserID), dateArg(e.Date), e.DocumentNumber, int64(e.ResponsibleID), e.Provider, e.Note,
		).Scan(&e.ID)
		return s.mapWriteErr(err, "entrance", "entrances")
	}
	res, err := s.exec(ctx,
		`UPDATE entrances SET user_id = ?, date = ?, document_number = ?, responsible_id = ?, provider = ?, note = ?
		 WHERE id = ?`,
		int64(e.UserID), dateArg(e.Date), e.DocumentNumber, int64(e.ResponsibleID), e.Provider, e.Note, int64(e.ID),
	)
	if err != nil {
		return s.mapWriteErr(err, "entrance", "entrances")
	}
	return affected(res, "entrance", int64(e.ID))
}

func (s *Store) GetEntrance(ctx context.Context, id ledger.EntranceID) (*ledger.Entrance, error) {
	row := s.queryRow(ctx, `SELECT `+entranceColumns+` FROM entrances WHERE id = ?`, int64(id))
	e, err := scanEntrance(row)
	if err != nil {
		return nil, notFound("entrance", int64(id), err)
	}
	return e, nil
}

// ListEntrances returns receipts newest first. The date range is applied in
// SQL; the search text matches provider, document number, note or the name
// of any material on the receipt.
func (s *Store) ListEntrances(ctx context.Context, filter ledger.EntranceFilter) ([]ledger.Entrance, error) {
	var (
		where []string
		args  []any
	)
	if !filter.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, dateArg(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, dateArg(filter.To))
	}
	query := `SELECT ` + entranceColumns + ` FROM entrances`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date DESC, id DESC`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entrances: %w", err)
	}
	var out []ledger.Entrance
	for rows.Next() {
		e, err := scanEntrance(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *e)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	if search == "" {
		return out, nil
	}
	names, err := s.entranceMaterialNames(ctx)
	if err != nil {
		return nil, err
	}
	matched := out[:0]
	for _, e := range out {
		if entranceMatches(e, names[e.ID], search) {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

func entranceMatches(e ledger.Entrance, materials []string, needle string) bool {
	for _, field := range append([]string{e.Provider, e.DocumentNumber, e.Note}, materials...) {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func (s *Store) entranceMaterialNames(ctx context.Context) (map[ledger.EntranceID][]string, error) {
	rows, err := s.query(ctx,
		`SELECT t.entrance_id, m.name FROM turnovers t
		 JOIN materials m ON m.id = t.material_id
		 WHERE t.entrance_id IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to load entrance materials: %w", err)
	}
	defer rows.Close()

	names := make(map[ledger.EntranceID][]string)
	for rows.Next() {
		var (
			id   ledger.EntranceID
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = append(names[id], name)
	}
	return names, rows.Err()
}

func (s *Store) DeleteEntrance(ctx context.Context, id ledger.EntranceID) error {
	return s.deleteByID(ctx, "entrances", "entrance", int64(id))
}

func (s *Store) ListProviders(ctx context.Context) ([]string, error) {
	rows, err := s.query(ctx,
		`SELECT DISTINCT provider FROM entrances WHERE provider <> '' ORDER BY provider`)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanEntrance(row scanner) (*ledger.Entrance, error) {
	var e ledger.Entrance
	if err := row.Scan(&e.ID, &e.UserID, &e.Date, &e.DocumentNumber, &e.ResponsibleID, &e.Provider, &e.Note); err != nil {
		return nil, err
	}
	e.Date = ledger.DateOf(e.Date)
	return &e, nil
}
