package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fieldops-platform/apps/api/internal/incident"
)

func (s *Store) ListSuppliers(ctx context.Context) ([]incident.SupplierMapping, error) {
	rows, err := s.query(ctx, "SELECT provincia, fornitore FROM supplier_mappings ORDER BY provincia")
	if err != nil {
		return nil, fmt.Errorf("list suppliers: %w", err)
	}
	defer rows.Close()
	out := make([]incident.SupplierMapping, 0)
	for rows.Next() {
		var m incident.SupplierMapping
		if err := rows.Scan(&m.Provincia, &m.Fornitore); err != nil {
			return nil, fmt.Errorf("scan supplier: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpsertSuppliers writes mappings keyed on the normalized province.
func (s *Store) UpsertSuppliers(ctx context.Context, mappings []incident.SupplierMapping) error {
	stamp := incident.FormatTimestamp(s.now())
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, m := range mappings {
			key := incident.ProvinceKey(m.Provincia)
			if key == "" {
				continue
			}
			if _, err := s.exec(ctx, tx, `
				INSERT INTO supplier_mappings (provincia, fornitore, updated_at)
				VALUES (?, ?, ?)
				ON CONFLICT (provincia) DO UPDATE SET fornitore = excluded.fornitore, updated_at = excluded.updated_at`,
				key, m.Fornitore, stamp); err != nil {
				return fmt.Errorf("upsert supplier %s: %w", key, err)
			}
		}
		return nil
	})
}
