package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fieldops-platform/apps/api/internal/incident"
)

var incidentSelect = "SELECT " + strings.Join(incident.Columns, ", ") + " FROM incidents"

// openClause matches incidents with a status outside the closed set. Tickets
// with no status are not open.
func openClause() (string, []any) {
	closed := make([]any, len(incident.ClosedStatuses))
	for i, s := range incident.ClosedStatuses {
		closed[i] = strings.ToLower(s)
	}
	return "stato IS NOT NULL AND TRIM(stato) <> '' AND LOWER(TRIM(stato)) NOT IN (" + placeholders(len(closed)) + ")", closed
}

// IncidentFilter narrows ListIncidents.
type IncidentFilter struct {
	Regions  []string
	Stato    string
	OpenOnly bool
	Locker   *bool
	Search   string
	Limit    int
	Offset   int
}

func (f IncidentFilter) where() (string, []any) {
	var clauses []string
	var args []any
	if len(f.Regions) > 0 {
		clauses = append(clauses, "regione IN ("+placeholders(len(f.Regions))+")")
		args = append(args, stringArgs(f.Regions)...)
	}
	if s := strings.TrimSpace(f.Stato); s != "" {
		clauses = append(clauses, "LOWER(TRIM(stato)) = ?")
		args = append(args, strings.ToLower(s))
	}
	if f.OpenOnly {
		clause, closed := openClause()
		clauses = append(clauses, clause)
		args = append(args, closed...)
	}
	if f.Locker != nil {
		clause := "UPPER(COALESCE(gruppo_assegnazione, '')) LIKE ?"
		if !*f.Locker {
			clause = "UPPER(COALESCE(gruppo_assegnazione, '')) NOT LIKE ?"
		}
		clauses = append(clauses, clause)
		args = append(args, "%"+incident.LockerTag+"%")
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		clauses = append(clauses, "(LOWER(numero) LIKE ? OR LOWER(COALESCE(descrizione, '')) LIKE ?)")
		like := "%" + strings.ToLower(s) + "%"
		args = append(args, like, like)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListIncidents returns one page of incidents ordered by numero plus the total
// matching count.
func (s *Store) ListIncidents(ctx context.Context, filter IncidentFilter) ([]incident.Incident, int64, error) {
	where, args := filter.where()

	var total int64
	if err := s.queryRow(ctx, "SELECT COUNT(*) FROM incidents"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count incidents: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := incidentSelect + where + " ORDER BY numero LIMIT ? OFFSET ?"
	rows, err := s.query(ctx, query, append(args, limit, max(filter.Offset, 0))...)
	if err != nil {
		return nil, 0, fmt.Errorf("list incidents: %w", err)
	}
	items, err := scanIncidents(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// AllIncidents reads the whole table page by page.
func (s *Store) AllIncidents(ctx context.Context) ([]incident.Incident, error) {
	const pageSize = 1000
	var out []incident.Incident
	after := ""
	for {
		rows, err := s.query(ctx, incidentSelect+" WHERE numero > ? ORDER BY numero LIMIT ?", after, pageSize)
		if err != nil {
			return nil, fmt.Errorf("read incidents: %w", err)
		}
		page, err := scanIncidents(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < pageSize {
			return out, nil
		}
		after = page[len(page)-1].Numero
	}
}

func (s *Store) GetIncident(ctx context.Context, numero string) (incident.Incident, error) {
	var inc incident.Incident
	err := s.queryRow(ctx, incidentSelect+" WHERE numero = ?", strings.TrimSpace(numero)).Scan(inc.ScanTargets()...)
	if errors.Is(err, sql.ErrNoRows) {
		return incident.Incident{}, ErrNotFound
	}
	if err != nil {
		return incident.Incident{}, fmt.Errorf("get incident: %w", err)
	}
	return inc, nil
}

func scanIncidents(rows *sql.Rows) ([]incident.Incident, error) {
	defer rows.Close()
	var out []incident.Incident
	for rows.Next() {
		var inc incident.Incident
		if err := rows.Scan(inc.ScanTargets()...); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return out, nil
}

// ExistingNumeri reports which of numeri are already stored.
func (s *Store) ExistingNumeri(ctx context.Context, numeri []string) (map[string]bool, error) {
	out := make(map[string]bool, len(numeri))
	for start := 0; start < len(numeri); start += upsertChunk * 3 {
		chunk := numeri[start:min(start+upsertChunk*3, len(numeri))]
		rows, err := s.query(ctx, "SELECT numero FROM incidents WHERE numero IN ("+placeholders(len(chunk))+")", stringArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("existing incidents: %w", err)
		}
		for rows.Next() {
			var numero string
			if err := rows.Scan(&numero); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan numero: %w", err)
			}
			out[numero] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate numeri: %w", err)
		}
	}
	return out, nil
}

// ListOpenNumeri returns the numero of every open incident.
func (s *Store) ListOpenNumeri(ctx context.Context) ([]string, error) {
	clause, args := openClause()
	rows, err := s.query(ctx, "SELECT numero FROM incidents WHERE "+clause+" ORDER BY numero", args...)
	if err != nil {
		return nil, fmt.Errorf("list open incidents: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var numero string
		if err := rows.Scan(&numero); err != nil {
			return nil, fmt.Errorf("scan numero: %w", err)
		}
		out = append(out, numero)
	}
	return out, rows.Err()
}

// UpsertIncidents inserts or merges rows keyed on numero in one transaction.
// Only the columns present in a row are written on conflict, so fields owned
// by other feeds survive.
func (s *Store) UpsertIncidents(ctx context.Context, rows []incident.Row) error {
	groups, order, err := groupByShape(rows)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, shape := range order {
			group := groups[shape]
			cols := group[0].Keys()
			for start := 0; start < len(group); start += upsertChunk {
				chunk := group[start:min(start+upsertChunk, len(group))]
				query, args := upsertStatement(cols, chunk)
				if _, err := s.exec(ctx, tx, query, args...); err != nil {
					return fmt.Errorf("upsert incidents: %w", err)
				}
			}
		}
		return nil
	})
}

// groupByShape buckets rows by their column set so each bucket shares one
// statement.
func groupByShape(rows []incident.Row) (map[string][]incident.Row, []string, error) {
	groups := make(map[string][]incident.Row)
	var order []string
	for _, row := range rows {
		if row.Numero() == "" {
			return nil, nil, fmt.Errorf("upsert incidents: row without numero")
		}
		keys := row.Keys()
		for _, k := range keys {
			if !incident.IsColumn(k) {
				return nil, nil, fmt.Errorf("upsert incidents: unknown column %q", k)
			}
		}
		shape := strings.Join(keys, ",")
		if _, ok := groups[shape]; !ok {
			order = append(order, shape)
		}
		groups[shape] = append(groups[shape], row)
	}
	return groups, order, nil
}

func upsertStatement(cols []string, rows []incident.Row) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO incidents (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES ")
	tuple := "(" + placeholders(len(cols)) + ")"
	args := make([]any, 0, len(cols)*len(rows))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
		for _, c := range cols {
			v := row[c]
			if c == incident.FieldNumero {
				v = row.Numero()
			}
			args = append(args, v)
		}
	}
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		if c == incident.FieldNumero {
			continue
		}
		sets = append(sets, c+" = excluded."+c)
	}
	if len(sets) == 0 {
		b.WriteString(" ON CONFLICT (numero) DO NOTHING")
	} else {
		b.WriteString(" ON CONFLICT (numero) DO UPDATE SET ")
		b.WriteString(strings.Join(sets, ", "))
	}
	return b.String(), args
}

func patchSet(patch incident.Row) (string, []any, error) {
	keys := patch.Keys()
	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		if k == incident.FieldNumero {
			continue
		}
		if !incident.IsColumn(k) {
			return "", nil, fmt.Errorf("unknown column %q", k)
		}
		sets = append(sets, k+" = ?")
		args = append(args, patch[k])
	}
	if len(sets) == 0 {
		return "", nil, fmt.Errorf("empty patch")
	}
	return strings.Join(sets, ", "), args, nil
}

// UpdateIncident writes patch to an existing incident. It reports false when
// the numero is not stored.
func (s *Store) UpdateIncident(ctx context.Context, numero string, patch incident.Row) (bool, error) {
	set, args, err := patchSet(patch)
	if err != nil {
		return false, fmt.Errorf("update incident: %w", err)
	}
	res, err := s.exec(ctx, s.db, "UPDATE incidents SET "+set+" WHERE numero = ?", append(args, strings.TrimSpace(numero))...)
	if err != nil {
		return false, fmt.Errorf("update incident: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update incident: %w", err)
	}
	return n > 0, nil
}

// UpdateIncidents applies the same patch to every listed incident in one
// transaction and returns the number of rows touched.
func (s *Store) UpdateIncidents(ctx context.Context, numeri []string, patch incident.Row) (int, error) {
	set, setArgs, err := patchSet(patch)
	if err != nil {
		return 0, fmt.Errorf("update incidents: %w", err)
	}
	total := 0
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		for start := 0; start < len(numeri); start += upsertChunk {
			chunk := numeri[start:min(start+upsertChunk, len(numeri))]
			args := append(append([]any{}, setArgs...), stringArgs(chunk)...)
			res, err := s.exec(ctx, tx, "UPDATE incidents SET "+set+" WHERE numero IN ("+placeholders(len(chunk))+")", args...)
			if err != nil {
				return fmt.Errorf("update incidents: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("update incidents: %w", err)
			}
			total += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
