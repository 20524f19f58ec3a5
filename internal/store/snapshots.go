package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fieldops-platform/apps/api/internal/incident"
)

// UpsertSnapshots replaces the listed (data, regione) rows.
func (s *Store) UpsertSnapshots(ctx context.Context, snapshots []incident.DailySnapshot) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, snap := range snapshots {
			if _, err := s.exec(ctx, tx, `
				INSERT INTO daily_snapshots (data, regione, backlog, sospesi, violazioni_attive, aperti, chiusi)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (data, regione) DO UPDATE SET
					backlog = excluded.backlog,
					sospesi = excluded.sospesi,
					violazioni_attive = excluded.violazioni_attive,
					aperti = excluded.aperti,
					chiusi = excluded.chiusi`,
				snap.Data, snap.Regione, snap.Backlog, snap.Sospesi, snap.ViolazioniAttive, snap.Aperti, snap.Chiusi); err != nil {
				return fmt.Errorf("upsert snapshot %s/%s: %w", snap.Data, snap.Regione, err)
			}
		}
		return nil
	})
}

// ListSnapshots returns snapshots with from <= data < to, ordered by day and
// region. Dates are YYYY-MM-DD.
func (s *Store) ListSnapshots(ctx context.Context, from, to string) ([]incident.DailySnapshot, error) {
	rows, err := s.query(ctx, `
		SELECT data, regione, backlog, sospesi, violazioni_attive, aperti, chiusi
		FROM daily_snapshots
		WHERE data >= ? AND data < ?
		ORDER BY data, regione`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()
	out := make([]incident.DailySnapshot, 0)
	for rows.Next() {
		var snap incident.DailySnapshot
		if err := rows.Scan(&snap.Data, &snap.Regione, &snap.Backlog, &snap.Sospesi, &snap.ViolazioniAttive, &snap.Aperti, &snap.Chiusi); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
