package ingest

import (
	"context"
	"fmt"

	"github.com/fieldops-platform/apps/api/internal/incident"
)

// SupplierStore reads and writes province to supplier mappings.
type SupplierStore interface {
	ListSuppliers(ctx context.Context) ([]incident.SupplierMapping, error)
	UpsertSuppliers(ctx context.Context, mappings []incident.SupplierMapping) error
}

// SupplierSnapshot is a read-only province lookup taken before a file is
// normalized.
type SupplierSnapshot struct {
	byProvince map[string]string
}

// NewSupplierSnapshot indexes mappings by normalized province code.
func NewSupplierSnapshot(mappings []incident.SupplierMapping) SupplierSnapshot {
	byProvince := make(map[string]string, len(mappings))
	for _, m := range mappings {
		key := incident.ProvinceKey(m.Provincia)
		if key == "" || m.Fornitore == "" {
			continue
		}
		byProvince[key] = m.Fornitore
	}
	return SupplierSnapshot{byProvince: byProvince}
}

// LoadSupplierSnapshot reads the full mapping table.
func LoadSupplierSnapshot(ctx context.Context, store SupplierStore) (SupplierSnapshot, error) {
	mappings, err := store.ListSuppliers(ctx)
	if err != nil {
		return SupplierSnapshot{}, fmt.Errorf("load supplier mappings: %w", err)
	}
	return NewSupplierSnapshot(mappings), nil
}

// Lookup returns the supplier for a province. A miss is not an error.
func (s SupplierSnapshot) Lookup(province string) (string, bool) {
	key := incident.ProvinceKey(province)
	if key == "" {
		return "", false
	}
	supplier, ok := s.byProvince[key]
	return supplier, ok
}

// Len is the number of known provinces.
func (s SupplierSnapshot) Len() int {
	return len(s.byProvince)
}
