package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fieldops-platform/apps/api/internal/incident"
)

// IncidentStore is the slice of the record store the reconciler writes to.
type IncidentStore interface {
	ExistingNumeri(ctx context.Context, numeri []string) (map[string]bool, error)
	UpsertIncidents(ctx context.Context, rows []incident.Row) error
	UpdateIncident(ctx context.Context, numero string, patch incident.Row) (bool, error)
}

// ResultCounts tallies per-row results for one file.
type ResultCounts struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
	Skipped int64 `json:"skipped"`
	Error   int64 `json:"error"`
}

func (c *ResultCounts) add(other ResultCounts) {
	c.Created += other.Created
	c.Updated += other.Updated
	c.Skipped += other.Skipped
	c.Error += other.Error
}

// Reconciler merges normalized rows into the record store.
type Reconciler struct {
	Incidents IncidentStore
	Suppliers SupplierStore
	Logger    *slog.Logger
	Now       func() time.Time
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// UpsertIncidents drops rows without a numero, collapses duplicates (last row
// wins) and submits the rest as one batched upsert. A store failure fails the
// whole file.
func (r *Reconciler) UpsertIncidents(ctx context.Context, rows []SourceRow, dryRun bool) (ResultCounts, []RowOutcome, error) {
	var counts ResultCounts
	var outcomes []RowOutcome

	lastLine := make(map[string]int, len(rows))
	for _, src := range rows {
		numero := src.Row.Numero()
		if numero == "" {
			counts.Skipped++
			outcomes = append(outcomes, RowOutcome{
				RowNumber: src.Line,
				Severity:  SeverityWarn,
				Result:    ResultSkipped,
				Field:     incident.FieldNumero,
				Message:   "numero is required",
			})
			continue
		}
		if prev, dup := lastLine[numero]; dup {
			counts.Skipped++
			outcomes = append(outcomes, RowOutcome{
				RowNumber: prev,
				Severity:  SeverityWarn,
				Result:    ResultSkipped,
				Numero:    numero,
				Message:   fmt.Sprintf("duplicate numero, superseded by row %d", src.Line),
			})
		}
		lastLine[numero] = src.Line
	}

	numeri := make([]string, 0, len(lastLine))
	batch := make([]incident.Row, 0, len(lastLine))
	stamp := incident.FormatTimestamp(r.now())
	for _, src := range rows {
		numero := src.Row.Numero()
		if numero == "" || lastLine[numero] != src.Line {
			continue
		}
		row := make(incident.Row, len(src.Row)+1)
		for k, v := range src.Row {
			row[k] = v
		}
		row[incident.FieldNumero] = numero
		row[incident.FieldUpdatedAt] = stamp
		numeri = append(numeri, numero)
		batch = append(batch, row)
	}
	if len(batch) == 0 {
		return counts, outcomes, nil
	}

	existing, err := r.Incidents.ExistingNumeri(ctx, numeri)
	if err != nil {
		counts.Error += int64(len(batch))
		return counts, outcomes, fmt.Errorf("look up existing incidents: %w", err)
	}
	if !dryRun {
		if err := r.Incidents.UpsertIncidents(ctx, batch); err != nil {
			counts.Error += int64(len(batch))
			return counts, outcomes, fmt.Errorf("upsert incidents: %w", err)
		}
	}
	for _, numero := range numeri {
		if existing[numero] {
			counts.Updated++
		} else {
			counts.Created++
		}
	}
	return counts, outcomes, nil
}

// ApplyPlanning issues one narrow update per row. Failures are tallied and
// the loop continues; nothing is rolled back.
func (r *Reconciler) ApplyPlanning(ctx context.Context, rows []SourceRow, dryRun bool) (ResultCounts, []RowOutcome) {
	var counts ResultCounts
	var outcomes []RowOutcome

	var existing map[string]bool
	if dryRun {
		numeri := make([]string, 0, len(rows))
		for _, src := range rows {
			if n := src.Row.Numero(); n != "" {
				numeri = append(numeri, n)
			}
		}
		found, err := r.Incidents.ExistingNumeri(ctx, numeri)
		if err != nil {
			r.logger().Warn("planning_lookup_failed", "error", err)
		}
		existing = found
	}

	for _, src := range rows {
		numero := src.Row.Numero()
		value, hasValue := src.Row[incident.FieldPianificazione].(string)
		if numero == "" || !hasValue || value == "" {
			counts.Skipped++
			outcomes = append(outcomes, RowOutcome{
				RowNumber: src.Line,
				Severity:  SeverityWarn,
				Result:    ResultSkipped,
				Numero:    numero,
				Message:   "numero and pianificazione are both required",
			})
			continue
		}

		var found bool
		if dryRun {
			found = existing[numero]
		} else {
			ok, err := r.Incidents.UpdateIncident(ctx, numero, incident.Row{
				incident.FieldPianificazione: value,
				incident.FieldUpdatedAt:      incident.FormatTimestamp(r.now()),
			})
			if err != nil {
				counts.Error++
				r.logger().Warn("planning_update_failed", "numero", numero, "error", err)
				outcomes = append(outcomes, RowOutcome{
					RowNumber: src.Line,
					Severity:  SeverityError,
					Result:    ResultError,
					Numero:    numero,
					Message:   err.Error(),
				})
				continue
			}
			found = ok
		}
		if !found {
			counts.Skipped++
			outcomes = append(outcomes, RowOutcome{
				RowNumber: src.Line,
				Severity:  SeverityWarn,
				Result:    ResultSkipped,
				Numero:    numero,
				Message:   "ticket not found",
			})
			continue
		}
		counts.Updated++
	}
	return counts, outcomes
}

// UpsertSuppliers writes territory mappings keyed on province. current is the
// snapshot taken before the file, used to split created from updated.
func (r *Reconciler) UpsertSuppliers(ctx context.Context, mappings []incident.SupplierMapping, current SupplierSnapshot, dryRun bool) (ResultCounts, error) {
	var counts ResultCounts
	byProvince := make(map[string]int, len(mappings))
	unique := make([]incident.SupplierMapping, 0, len(mappings))
	for _, m := range mappings {
		key := incident.ProvinceKey(m.Provincia)
		if i, dup := byProvince[key]; dup {
			unique[i].Fornitore = m.Fornitore
			counts.Skipped++
			continue
		}
		byProvince[key] = len(unique)
		unique = append(unique, incident.SupplierMapping{Provincia: key, Fornitore: m.Fornitore})
	}
	if len(unique) == 0 {
		return counts, nil
	}
	if !dryRun {
		if err := r.Suppliers.UpsertSuppliers(ctx, unique); err != nil {
			counts.Error += int64(len(unique))
			return counts, fmt.Errorf("upsert suppliers: %w", err)
		}
	}
	for _, m := range unique {
		if _, ok := current.Lookup(m.Provincia); ok {
			counts.Updated++
		} else {
			counts.Created++
		}
	}
	return counts, nil
}

func (r *Reconciler) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
