package ingest

import (
	"fmt"

	"github.com/fieldops-platform/apps/api/internal/incident"
)

const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

const (
	ResultCreated  = "created"
	ResultUpdated  = "updated"
	ResultSkipped  = "skipped"
	ResultError    = "error"
	ResultAccepted = "accepted"
)

// RowOutcome is one per-row message produced while importing a file.
type RowOutcome struct {
	File      string `json:"file"`
	RowNumber int    `json:"rowNumber"`
	Severity  string `json:"severity"`
	Result    string `json:"result"`
	Numero    string `json:"numero,omitempty"`
	Field     string `json:"field,omitempty"`
	Message   string `json:"message"`
	RawValue  string `json:"rawValue,omitempty"`
}

// SourceRow is a canonical row with the sheet line it came from.
type SourceRow struct {
	Line int
	Row  incident.Row
}

// Normalized is the strategy-specific result of mapping one sheet.
type Normalized struct {
	Strategy  Strategy
	RowsTotal int
	Rows      []SourceRow
	Suppliers []incident.SupplierMapping
	Outcomes  []RowOutcome
}

var dateFields = func() map[string]struct{} {
	m := make(map[string]struct{}, len(incident.DateFields))
	for _, f := range incident.DateFields {
		m[f] = struct{}{}
	}
	return m
}()

// Normalize maps every data row of sheet to canonical shape. The supplier
// snapshot is consulted only by the main-incident strategy.
func Normalize(strategy Strategy, table MappingTable, sheet Sheet, suppliers SupplierSnapshot) Normalized {
	out := Normalized{Strategy: strategy}
	idx := table.Resolve(sheet.Headers)

	for i, raw := range sheet.Rows {
		if blankRow(raw) {
			continue
		}
		out.RowsTotal++
		line := i + 2

		if strategy == StrategySupplierTerritory {
			province := incident.ProvinceKey(idx.Cell(raw, incident.FieldProvincia))
			supplier := idx.Cell(raw, incident.FieldFornitore)
			if province == "" || supplier == "" {
				out.Outcomes = append(out.Outcomes, RowOutcome{
					RowNumber: line,
					Severity:  SeverityWarn,
					Result:    ResultSkipped,
					Message:   "province and supplier are both required",
				})
				continue
			}
			out.Suppliers = append(out.Suppliers, incident.SupplierMapping{Provincia: province, Fornitore: supplier})
			continue
		}

		row, warnings := mapRow(idx, raw, line)
		switch strategy {
		case StrategySLAViolation:
			if !idx.Has(incident.FieldViolazioneAvvenuta) {
				row[incident.FieldViolazioneAvvenuta] = false
			}
		case StrategyMainIncident:
			row[incident.FieldFornitore] = nil
			if province, ok := row[incident.FieldProvincia].(string); ok {
				if supplier, found := suppliers.Lookup(province); found {
					row[incident.FieldFornitore] = supplier
				}
			}
		}
		for j := range warnings {
			warnings[j].Numero = row.Numero()
		}
		out.Outcomes = append(out.Outcomes, warnings...)
		out.Rows = append(out.Rows, SourceRow{Line: line, Row: row})
	}
	return out
}

func mapRow(idx ColumnIndex, raw []string, line int) (incident.Row, []RowOutcome) {
	row := make(incident.Row, len(idx)+1)
	var warnings []RowOutcome
	for _, field := range idx.Fields() {
		value := idx.Cell(raw, field)
		if _, isDate := dateFields[field]; isDate {
			normalized, status := NormalizeDate(value)
			switch status {
			case DateEmpty:
				row[field] = nil
			case DatePassthrough:
				row[field] = normalized
				warnings = append(warnings, RowOutcome{
					RowNumber: line,
					Severity:  SeverityWarn,
					Result:    ResultAccepted,
					Field:     field,
					Message:   "unrecognized date stored as-is",
					RawValue:  value,
				})
			default:
				row[field] = normalized
			}
			continue
		}

		switch field {
		case incident.FieldViolazioneAvvenuta:
			row[field] = ParseFlag(value)
		case incident.FieldDurata:
			if value == "" {
				row[field] = nil
				continue
			}
			minutes, ok := parseMinutes(value)
			if !ok {
				row[field] = nil
				warnings = append(warnings, RowOutcome{
					RowNumber: line,
					Severity:  SeverityWarn,
					Result:    ResultAccepted,
					Field:     field,
					Message:   fmt.Sprintf("duration %q is not a number of minutes", value),
					RawValue:  value,
				})
				continue
			}
			row[field] = minutes
		case incident.FieldProvincia:
			row[field] = nilIfEmpty(incident.ProvinceKey(value))
		default:
			row[field] = nilIfEmpty(value)
		}
	}
	return row, warnings
}

func nilIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
