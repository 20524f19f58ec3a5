package ingest

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/fieldops-platform/apps/api/internal/incident"
)

//go:embed mappings.yaml
var mappingsYAML []byte

// MappingTable maps a canonical field to the source headers accepted for it,
// in preference order.
type MappingTable map[string][]string

// Mappings holds one table per strategy.
type Mappings map[Strategy]MappingTable

// ParseMappings decodes and checks a mapping document.
func ParseMappings(data []byte) (Mappings, error) {
	var m Mappings
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode mappings: %w", err)
	}
	for strategy, table := range m {
		if _, ok := table[incident.FieldNumero]; !ok && strategy != StrategySupplierTerritory {
			return nil, fmt.Errorf("mapping %s: numero is required", strategy)
		}
		for field, headers := range table {
			if !incident.IsColumn(field) {
				return nil, fmt.Errorf("mapping %s: unknown field %q", strategy, field)
			}
			if len(headers) == 0 {
				return nil, fmt.Errorf("mapping %s: field %q has no headers", strategy, field)
			}
		}
	}
	return m, nil
}

var defaultMappings = sync.OnceValues(func() (Mappings, error) {
	return ParseMappings(mappingsYAML)
})

// DefaultMappings returns the embedded tables.
func DefaultMappings() (Mappings, error) {
	return defaultMappings()
}

// ColumnIndex maps a canonical field to its column position in one file.
type ColumnIndex map[string]int

// Resolve matches the table against a header row. Fields whose headers are
// all absent are left out.
func (t MappingTable) Resolve(headers []string) ColumnIndex {
	positions := make(map[string]int, len(headers))
	for i, h := range headers {
		h = normalizeHeader(h)
		if _, dup := positions[h]; !dup {
			positions[h] = i
		}
	}
	idx := make(ColumnIndex, len(t))
	for field, candidates := range t {
		for _, candidate := range candidates {
			if pos, ok := positions[candidate]; ok {
				idx[field] = pos
				break
			}
		}
	}
	return idx
}

// Has reports whether the field was found in the file.
func (c ColumnIndex) Has(field string) bool {
	_, ok := c[field]
	return ok
}

// Fields returns the resolved canonical fields in sorted order.
func (c ColumnIndex) Fields() []string {
	fields := make([]string, 0, len(c))
	for f := range c {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Cell returns the trimmed value of field in row, or "".
func (c ColumnIndex) Cell(row []string, field string) string {
	pos, ok := c[field]
	if !ok || pos >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[pos])
}

func normalizeHeader(h string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(h), "\ufeff"))
}
