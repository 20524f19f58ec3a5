package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops-platform/apps/api/internal/audit"
	"github.com/fieldops-platform/apps/api/internal/incident"
	"github.com/fieldops-platform/apps/api/internal/ingest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "fieldops.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRebind(t *testing.T) {
	pg := &Store{dialect: DialectPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE b = $1 AND c IN ($2,$3)", pg.rebind("SELECT a FROM t WHERE b = ? AND c IN (?,?)"))

	lite := &Store{dialect: DialectSQLite}
	assert.Equal(t, "WHERE b = ?", lite.rebind("WHERE b = ?"))
}

func TestUpsertIncidentsMergesColumns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertIncidents(ctx, []incident.Row{
		{incident.FieldNumero: "INC1", incident.FieldStato: "Aperto", incident.FieldRegione: "Lombardia", incident.FieldViolazioneAvvenuta: false},
		{incident.FieldNumero: "INC2", incident.FieldStato: "Chiuso", incident.FieldDurata: int64(90)},
	}))
	ok, err := s.UpdateIncident(ctx, "INC1", incident.Row{incident.FieldPianificazione: "2025-03-12T00:00:00.000Z"})
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.UpsertIncidents(ctx, []incident.Row{
		{incident.FieldNumero: "INC1", incident.FieldViolazioneAvvenuta: true},
	}))

	got, err := s.GetIncident(ctx, "INC1")
	require.NoError(t, err)
	assert.Equal(t, "Aperto", incident.Deref(got.Stato))
	assert.Equal(t, "Lombardia", incident.Deref(got.Regione))
	assert.Equal(t, "2025-03-12T00:00:00.000Z", incident.Deref(got.Pianificazione))
	require.NotNil(t, got.ViolazioneAvvenuta)
	assert.True(t, *got.ViolazioneAvvenuta)

	second, err := s.GetIncident(ctx, "INC2")
	require.NoError(t, err)
	require.NotNil(t, second.Durata)
	assert.Equal(t, int64(90), *second.Durata)
	assert.Nil(t, second.ViolazioneAvvenuta)
}

func TestUpsertIncidentsRejectsUnknownColumn(t *testing.T) {
	s := openTestStore(t)
	err := s.UpsertIncidents(context.Background(), []incident.Row{
		{incident.FieldNumero: "INC1", "colore; DROP TABLE incidents": "x"},
	})
	assert.ErrorContains(t, err, "unknown column")
}

func TestUpsertIncidentsLargeBatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rows := make([]incident.Row, 0, 750)
	for i := range 750 {
		rows = append(rows, incident.Row{incident.FieldNumero: uuid.NewString(), incident.FieldStato: "Aperto", incident.FieldItem: i})
	}
	rows[10] = incident.Row{incident.FieldNumero: "ODD-SHAPE"}
	require.NoError(t, s.UpsertIncidents(ctx, rows))

	all, err := s.AllIncidents(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 750)
}

func TestGetIncidentNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetIncident(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.UpdateIncident(context.Background(), "missing", incident.Row{incident.FieldStato: "Chiuso"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenNumeriAndBatchUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertIncidents(ctx, []incident.Row{
		{incident.FieldNumero: "A", incident.FieldStato: "Aperto"},
		{incident.FieldNumero: "B", incident.FieldStato: " chiuso "},
		{incident.FieldNumero: "C", incident.FieldStato: "RIASSEGNATO"},
		{incident.FieldNumero: "D", incident.FieldStato: "Sospeso"},
		{incident.FieldNumero: "E", incident.FieldStato: nil},
		{incident.FieldNumero: "F", incident.FieldStato: "  "},
	}))

	open, err := s.ListOpenNumeri(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "D"}, open)

	n, err := s.UpdateIncidents(ctx, []string{"A", "D", "ZZZ"}, incident.Row{incident.FieldStato: incident.StatusRiassegnato})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	open, err = s.ListOpenNumeri(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	existing, err := s.ExistingNumeri(ctx, []string{"A", "nope"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"A": true}, existing)
}

func TestListIncidentsFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertIncidents(ctx, []incident.Row{
		{incident.FieldNumero: "INC1", incident.FieldStato: "Aperto", incident.FieldRegione: "Lombardia", incident.FieldGruppoAssegnazione: "Field Locker Nord"},
		{incident.FieldNumero: "INC2", incident.FieldStato: "Chiuso", incident.FieldRegione: "Lombardia"},
		{incident.FieldNumero: "INC3", incident.FieldStato: "Aperto", incident.FieldRegione: "Sicilia", incident.FieldDescrizione: "POS guasto"},
	}))

	items, total, err := s.ListIncidents(ctx, IncidentFilter{Regions: []string{"Lombardia"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, items, 2)

	items, total, err = s.ListIncidents(ctx, IncidentFilter{OpenOnly: true, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, items, 1)
	assert.Equal(t, "INC1", items[0].Numero)

	locker := true
	items, _, err = s.ListIncidents(ctx, IncidentFilter{Locker: &locker})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].IsLocker())

	items, _, err = s.ListIncidents(ctx, IncidentFilter{Search: "guasto"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "INC3", items[0].Numero)
}

func TestSuppliersAndSnapshots(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertSuppliers(ctx, []incident.SupplierMapping{{Provincia: "mi", Fornitore: "Vecchio"}}))
	require.NoError(t, s.UpsertSuppliers(ctx, []incident.SupplierMapping{{Provincia: "MI", Fornitore: "Acme Corp"}, {Provincia: "RM", Fornitore: "Roma"}}))
	suppliers, err := s.ListSuppliers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []incident.SupplierMapping{{Provincia: "MI", Fornitore: "Acme Corp"}, {Provincia: "RM", Fornitore: "Roma"}}, suppliers)

	require.NoError(t, s.UpsertSnapshots(ctx, []incident.DailySnapshot{
		{Data: "2025-03-01", Regione: "Lombardia", Backlog: 10},
		{Data: "2025-03-02", Regione: "Lombardia", Backlog: 12},
		{Data: "2025-04-01", Regione: "Lombardia", Backlog: 99},
	}))
	require.NoError(t, s.UpsertSnapshots(ctx, []incident.DailySnapshot{{Data: "2025-03-01", Regione: "Lombardia", Backlog: 11, Sospesi: 2}}))

	snaps, err := s.ListSnapshots(ctx, "2025-03-01", "2025-04-01")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, int64(11), snaps[0].Backlog)
	assert.Equal(t, int64(2), snaps[0].Sospesi)
}

func TestImportRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	created := time.Date(2025, 3, 10, 8, 0, 0, 123456789, time.UTC)

	run := ingest.ImportRun{
		ID:        uuid.New(),
		Mode:      ingest.ModeApply,
		Trigger:   ingest.TriggerCLI,
		Status:    ingest.RunStatusRunning,
		Files:     []string{"MTZ.xlsx"},
		Ghosts:    []string{},
		CreatedAt: created,
	}
	require.NoError(t, s.CreateImportRun(ctx, run))

	completed := created.Add(time.Second)
	run.Status = ingest.RunStatusNeedsReview
	run.Ghosts = []string{"B", "C"}
	run.CompletedAt = &completed
	run.Summary = ingest.BatchSummary{RowsTotal: 3, Totals: ingest.ResultCounts{Created: 3}, GhostCheck: true}
	require.NoError(t, s.CompleteImportRun(ctx, run))

	outcomes := []ingest.RowOutcome{
		{File: "MTZ.xlsx", RowNumber: 4, Severity: ingest.SeverityWarn, Result: ingest.ResultAccepted, Numero: "A", Field: "data_apertura", Message: "unrecognized date stored as-is", RawValue: "ieri"},
		{File: "MTZ.xlsx", Severity: ingest.SeverityError, Result: ingest.ResultError, Message: "boom"},
	}
	require.NoError(t, s.InsertRowResults(ctx, run.ID, outcomes))

	got, err := s.GetImportRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Status, got.Status)
	assert.Equal(t, run.Ghosts, got.Ghosts)
	assert.Equal(t, run.Summary, got.Summary)
	assert.True(t, created.Equal(got.CreatedAt))
	require.NotNil(t, got.CompletedAt)
	assert.True(t, completed.Equal(*got.CompletedAt))

	results, err := s.ListRowResults(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, outcomes, results)

	require.NoError(t, s.UpdateImportRunGhosts(ctx, run.ID, nil, ingest.RunStatusCompleted))
	got, err = s.GetImportRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{}, got.Ghosts)
	assert.Equal(t, ingest.RunStatusCompleted, got.Status)

	_, err = s.GetImportRun(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateImportRunGhosts(ctx, uuid.New(), nil, ingest.RunStatusCompleted), ErrNotFound)
}

func TestAuditLog(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	logger := audit.NewLogger(s)
	require.NoError(t, logger.Log(ctx, audit.Entry{
		Action:     "incident.note_added",
		EntityType: "incident",
		EntityID:   "INC1",
		RequestID:  "req-1",
		Metadata:   map[string]any{"length": 12},
	}))

	records, err := s.ListAuditLog(ctx, "incident", "INC1", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "incident.note_added", records[0].Action)
	assert.Equal(t, "req-1", incident.Deref(records[0].RequestID))
	assert.JSONEq(t, `{"length":12}`, string(records[0].Metadata))
}

func TestPipelineAgainstSQLite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertIncidents(ctx, []incident.Row{
		{incident.FieldNumero: "OLD", incident.FieldStato: "Aperto"},
	}))

	p, err := ingest.NewPipeline(s, nil, ingest.Options{Auditor: audit.NewLogger(s)})
	require.NoError(t, err)

	csv := []byte("Numero;Stato;Provincia;Aperto\nINC1;Aperto;mi;15/01/2024\n")
	run, _, err := p.Run(ctx, []ingest.File{{Name: "MTZ.csv", Data: csv}}, ingest.RunOptions{Mode: ingest.ModeApply, Trigger: ingest.TriggerCLI})
	require.NoError(t, err)
	assert.Equal(t, []string{"OLD"}, run.Ghosts)
	assert.Equal(t, ingest.RunStatusNeedsReview, run.Status)

	run, err = p.ResolveAllGhosts(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, ingest.RunStatusCompleted, run.Status)

	stored, err := s.GetImportRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Ghosts)

	old, err := s.GetIncident(ctx, "OLD")
	require.NoError(t, err)
	assert.Equal(t, incident.StatusRiassegnato, incident.Deref(old.Stato))
	assert.NotNil(t, old.DataUltimaRiassegnazione)

	inc, err := s.GetIncident(ctx, "INC1")
	require.NoError(t, err)
	assert.Equal(t, "MI", incident.Deref(inc.Provincia))
	assert.Equal(t, "2024-01-15T00:00:00.000Z", incident.Deref(inc.DataApertura))

	history, err := s.ListAuditLog(ctx, "import_run", run.ID.String(), 10)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}
