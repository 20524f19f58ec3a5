package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fieldops-platform/apps/api/internal/audit"
	"github.com/fieldops-platform/apps/api/internal/ingest"
)

func (s *Store) CreateImportRun(ctx context.Context, run ingest.ImportRun) error {
	files, err := json.Marshal(run.Files)
	if err != nil {
		return fmt.Errorf("marshal files: %w", err)
	}
	var requestID *string
	if run.RequestID != "" {
		requestID = &run.RequestID
	}
	_, err = s.exec(ctx, s.db, `
		INSERT INTO import_runs (id, mode, trigger_source, status, request_id, files_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), string(run.Mode), run.Trigger, run.Status, nullString(requestID), string(files),
		run.CreatedAt.UTC().Format(storedTimeLayout))
	if err != nil {
		return fmt.Errorf("create import run: %w", err)
	}
	return nil
}

func (s *Store) CompleteImportRun(ctx context.Context, run ingest.ImportRun) error {
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	ghosts, err := marshalGhosts(run.Ghosts)
	if err != nil {
		return err
	}
	var completedAt any
	if run.CompletedAt != nil {
		completedAt = run.CompletedAt.UTC().Format(storedTimeLayout)
	}
	res, err := s.exec(ctx, s.db, `
		UPDATE import_runs SET status = ?, summary_json = ?, ghosts_json = ?, completed_at = ?
		WHERE id = ?`,
		run.Status, string(summary), ghosts, completedAt, run.ID.String())
	if err != nil {
		return fmt.Errorf("complete import run: %w", err)
	}
	return requireRow(res)
}

func (s *Store) UpdateImportRunGhosts(ctx context.Context, id uuid.UUID, ghosts []string, status string) error {
	encoded, err := marshalGhosts(ghosts)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, s.db, "UPDATE import_runs SET ghosts_json = ?, status = ? WHERE id = ?", encoded, status, id.String())
	if err != nil {
		return fmt.Errorf("update import run ghosts: %w", err)
	}
	return requireRow(res)
}

func (s *Store) GetImportRun(ctx context.Context, id uuid.UUID) (ingest.ImportRun, error) {
	var (
		run                                ingest.ImportRun
		rawID, mode, createdAt             string
		requestID, completedAt             sql.NullString
		filesJSON, summaryJSON, ghostsJSON string
	)
	err := s.queryRow(ctx, `
		SELECT id, mode, trigger_source, status, request_id, files_json, summary_json, ghosts_json, created_at, completed_at
		FROM import_runs WHERE id = ?`, id.String()).
		Scan(&rawID, &mode, &run.Trigger, &run.Status, &requestID, &filesJSON, &summaryJSON, &ghostsJSON, &createdAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ingest.ImportRun{}, ErrNotFound
	}
	if err != nil {
		return ingest.ImportRun{}, fmt.Errorf("get import run: %w", err)
	}

	if run.ID, err = uuid.Parse(rawID); err != nil {
		return ingest.ImportRun{}, fmt.Errorf("parse import run id: %w", err)
	}
	run.Mode = ingest.Mode(mode)
	run.RequestID = requestID.String
	if err := json.Unmarshal([]byte(filesJSON), &run.Files); err != nil {
		return ingest.ImportRun{}, fmt.Errorf("decode files: %w", err)
	}
	if err := json.Unmarshal([]byte(summaryJSON), &run.Summary); err != nil {
		return ingest.ImportRun{}, fmt.Errorf("decode summary: %w", err)
	}
	if err := json.Unmarshal([]byte(ghostsJSON), &run.Ghosts); err != nil {
		return ingest.ImportRun{}, fmt.Errorf("decode ghosts: %w", err)
	}
	if run.CreatedAt, err = time.Parse(storedTimeLayout, createdAt); err != nil {
		return ingest.ImportRun{}, fmt.Errorf("parse created_at: %w", err)
	}
	if completedAt.Valid {
		t, err := time.Parse(storedTimeLayout, completedAt.String)
		if err != nil {
			return ingest.ImportRun{}, fmt.Errorf("parse completed_at: %w", err)
		}
		run.CompletedAt = &t
	}
	return run, nil
}

func (s *Store) InsertRowResults(ctx context.Context, runID uuid.UUID, outcomes []ingest.RowOutcome) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, o := range outcomes {
			if _, err := s.exec(ctx, tx, `
				INSERT INTO import_row_results (import_run_id, file, row_no, severity, result, numero, field, message, raw_value)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				runID.String(), o.File, o.RowNumber, o.Severity, o.Result,
				emptyToNull(o.Numero), emptyToNull(o.Field), o.Message, emptyToNull(o.RawValue)); err != nil {
				return fmt.Errorf("insert row result: %w", err)
			}
		}
		return nil
	})
}

// ListRowResults returns a run's outcomes in the order they were recorded.
func (s *Store) ListRowResults(ctx context.Context, runID uuid.UUID) ([]ingest.RowOutcome, error) {
	rows, err := s.query(ctx, `
		SELECT file, row_no, severity, result, numero, field, message, raw_value
		FROM import_row_results WHERE import_run_id = ? ORDER BY id`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("list row results: %w", err)
	}
	defer rows.Close()
	out := make([]ingest.RowOutcome, 0)
	for rows.Next() {
		var (
			o                       ingest.RowOutcome
			numero, field, rawValue sql.NullString
		)
		if err := rows.Scan(&o.File, &o.RowNumber, &o.Severity, &o.Result, &numero, &field, &o.Message, &rawValue); err != nil {
			return nil, fmt.Errorf("scan row result: %w", err)
		}
		o.Numero, o.Field, o.RawValue = numero.String, field.String, rawValue.String
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) InsertAuditLog(ctx context.Context, rec audit.Record) error {
	_, err := s.exec(ctx, s.db, `
		INSERT INTO audit_log (id, action, entity_type, entity_id, request_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.Action, rec.EntityType, nullString(rec.EntityID), nullString(rec.RequestID),
		string(rec.Metadata), rec.CreatedAt.UTC().Format(storedTimeLayout))
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ListAuditLog returns the newest entries for one entity.
func (s *Store) ListAuditLog(ctx context.Context, entityType, entityID string, limit int) ([]audit.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.query(ctx, `
		SELECT id, action, entity_type, entity_id, request_id, metadata, created_at
		FROM audit_log WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at DESC LIMIT ?`, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	defer rows.Close()
	out := make([]audit.Record, 0)
	for rows.Next() {
		var (
			rec                 audit.Record
			rawID, metadata, at string
			entity, request     sql.NullString
		)
		if err := rows.Scan(&rawID, &rec.Action, &rec.EntityType, &entity, &request, &metadata, &at); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		if rec.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("parse audit id: %w", err)
		}
		if rec.CreatedAt, err = time.Parse(storedTimeLayout, at); err != nil {
			return nil, fmt.Errorf("parse audit created_at: %w", err)
		}
		rec.EntityID, rec.RequestID = stringPtr(entity), stringPtr(request)
		rec.Metadata = []byte(metadata)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// storedTimeLayout keeps a fixed width so stored times sort as text.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z"

func marshalGhosts(ghosts []string) (string, error) {
	if ghosts == nil {
		ghosts = []string{}
	}
	encoded, err := json.Marshal(ghosts)
	if err != nil {
		return "", fmt.Errorf("marshal ghosts: %w", err)
	}
	return string(encoded), nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func emptyToNull(v string) any {
	if v == "" {
		return nil
	}
	return v
}
