package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops-platform/apps/api/internal/incident"
)

var fixedNow = time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)

func newReconciler(store *fakeStore) *Reconciler {
	return &Reconciler{
		Incidents: store,
		Suppliers: store,
		Now:       func() time.Time { return fixedNow },
	}
}

func src(line int, row incident.Row) SourceRow {
	return SourceRow{Line: line, Row: row}
}

func TestUpsertIncidentsCountsCreatedAndUpdated(t *testing.T) {
	store := newFakeStore()
	store.seed("INC1", incident.StatusAperto)
	r := newReconciler(store)

	counts, outcomes, err := r.UpsertIncidents(context.Background(), []SourceRow{
		src(2, incident.Row{incident.FieldNumero: "INC1", incident.FieldStato: incident.StatusChiuso}),
		src(3, incident.Row{incident.FieldNumero: "INC2", incident.FieldStato: incident.StatusAperto}),
		src(4, incident.Row{incident.FieldNumero: "  ", incident.FieldStato: incident.StatusAperto}),
	}, false)
	require.NoError(t, err)
	assert.Equal(t, ResultCounts{Created: 1, Updated: 1, Skipped: 1}, counts)
	require.Len(t, outcomes, 1)
	assert.Equal(t, 4, outcomes[0].RowNumber)
	assert.Equal(t, 1, store.upsertCalls, "rows go to the store as one batch")

	assert.Equal(t, incident.StatusChiuso, store.row("INC1")[incident.FieldStato])
	assert.Equal(t, "2025-03-10T08:00:00.000Z", store.row("INC2")[incident.FieldUpdatedAt])
}

func TestUpsertIncidentsLastDuplicateWins(t *testing.T) {
	store := newFakeStore()
	r := newReconciler(store)

	counts, outcomes, err := r.UpsertIncidents(context.Background(), []SourceRow{
		src(2, incident.Row{incident.FieldNumero: "INC1", incident.FieldStato: "Aperto"}),
		src(3, incident.Row{incident.FieldNumero: "INC1", incident.FieldStato: "In Corso"}),
	}, false)
	require.NoError(t, err)
	assert.Equal(t, ResultCounts{Created: 1, Skipped: 1}, counts)
	require.Len(t, outcomes, 1)
	assert.Equal(t, 2, outcomes[0].RowNumber)
	assert.Equal(t, "In Corso", store.row("INC1")[incident.FieldStato])
}

func TestUpsertIncidentsTouchesOnlyProvidedColumns(t *testing.T) {
	store := newFakeStore()
	store.incidents["INC1"] = incident.Row{
		incident.FieldNumero:         "INC1",
		incident.FieldStato:          "Aperto",
		incident.FieldPianificazione: "2025-03-12T00:00:00.000Z",
	}
	r := newReconciler(store)

	_, _, err := r.UpsertIncidents(context.Background(), []SourceRow{
		src(2, incident.Row{incident.FieldNumero: "INC1", incident.FieldViolazioneAvvenuta: true}),
	}, false)
	require.NoError(t, err)
	row := store.row("INC1")
	assert.Equal(t, "Aperto", row[incident.FieldStato])
	assert.Equal(t, "2025-03-12T00:00:00.000Z", row[incident.FieldPianificazione])
	assert.Equal(t, true, row[incident.FieldViolazioneAvvenuta])
}

func TestUpsertIncidentsDryRunWritesNothing(t *testing.T) {
	store := newFakeStore()
	store.seed("INC1", "Aperto")
	r := newReconciler(store)

	counts, _, err := r.UpsertIncidents(context.Background(), []SourceRow{
		src(2, incident.Row{incident.FieldNumero: "INC1", incident.FieldStato: "Chiuso"}),
		src(3, incident.Row{incident.FieldNumero: "INC9", incident.FieldStato: "Aperto"}),
	}, true)
	require.NoError(t, err)
	assert.Equal(t, ResultCounts{Created: 1, Updated: 1}, counts)
	assert.Zero(t, store.upsertCalls)
	assert.Equal(t, "Aperto", store.row("INC1")[incident.FieldStato])
	assert.Nil(t, store.row("INC9"))
}

func TestUpsertIncidentsStoreFailureFailsBatch(t *testing.T) {
	store := newFakeStore()
	store.failUpsert = errors.New("connection reset")
	r := newReconciler(store)

	counts, _, err := r.UpsertIncidents(context.Background(), []SourceRow{
		src(2, incident.Row{incident.FieldNumero: "INC1"}),
		src(3, incident.Row{incident.FieldNumero: "INC2"}),
	}, false)
	require.Error(t, err)
	assert.Equal(t, int64(2), counts.Error)
	assert.Zero(t, counts.Created)
}

func TestApplyPlanning(t *testing.T) {
	store := newFakeStore()
	store.seed("INC1", "Aperto")
	store.seed("INC2", "Aperto")
	store.seed("INC3", "Aperto")
	store.failUpdate["INC2"] = errors.New("deadlock")
	r := newReconciler(store)

	counts, outcomes := r.ApplyPlanning(context.Background(), []SourceRow{
		src(2, incident.Row{incident.FieldNumero: "INC1", incident.FieldPianificazione: "2025-03-12T00:00:00.000Z"}),
		src(3, incident.Row{incident.FieldNumero: "INC2", incident.FieldPianificazione: "2025-03-12T00:00:00.000Z"}),
		src(4, incident.Row{incident.FieldNumero: "INC3", incident.FieldPianificazione: "2025-03-13T00:00:00.000Z"}),
		src(5, incident.Row{incident.FieldNumero: "INC404", incident.FieldPianificazione: "2025-03-13T00:00:00.000Z"}),
		src(6, incident.Row{incident.FieldNumero: "INC1", incident.FieldPianificazione: nil}),
	}, false)

	assert.Equal(t, ResultCounts{Updated: 2, Skipped: 2, Error: 1}, counts)
	assert.Len(t, outcomes, 3)
	assert.Equal(t, "2025-03-12T00:00:00.000Z", store.row("INC1")[incident.FieldPianificazione])
	assert.Equal(t, "2025-03-13T00:00:00.000Z", store.row("INC3")[incident.FieldPianificazione])
	assert.Nil(t, store.row("INC2")[incident.FieldPianificazione])
	_, hasStato := store.row("INC1")[incident.FieldStato]
	assert.True(t, hasStato, "planning leaves other columns alone")
}

func TestApplyPlanningDryRun(t *testing.T) {
	store := newFakeStore()
	store.seed("INC1", "Aperto")
	r := newReconciler(store)

	counts, _ := r.ApplyPlanning(context.Background(), []SourceRow{
		src(2, incident.Row{incident.FieldNumero: "INC1", incident.FieldPianificazione: "2025-03-12T00:00:00.000Z"}),
		src(3, incident.Row{incident.FieldNumero: "INC2", incident.FieldPianificazione: "2025-03-12T00:00:00.000Z"}),
	}, true)
	assert.Equal(t, ResultCounts{Updated: 1, Skipped: 1}, counts)
	assert.Nil(t, store.row("INC1")[incident.FieldPianificazione])
}

func TestUpsertSuppliers(t *testing.T) {
	store := newFakeStore()
	store.suppliers["MI"] = "Vecchio Fornitore"
	r := newReconciler(store)
	current, err := LoadSupplierSnapshot(context.Background(), store)
	require.NoError(t, err)

	counts, err := r.UpsertSuppliers(context.Background(), []incident.SupplierMapping{
		{Provincia: "MI", Fornitore: "Acme Corp"},
		{Provincia: "RM", Fornitore: "Roma Service"},
		{Provincia: "rm", Fornitore: "Roma Service Bis"},
	}, current, false)
	require.NoError(t, err)
	assert.Equal(t, ResultCounts{Created: 1, Updated: 1, Skipped: 1}, counts)
	assert.Equal(t, "Acme Corp", store.suppliers["MI"])
	assert.Equal(t, "Roma Service Bis", store.suppliers["RM"])
}
