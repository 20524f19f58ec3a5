package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/fieldops-platform/apps/api/internal/incident"
)

type fakeStore struct {
	mu        sync.Mutex
	incidents map[string]incident.Row
	suppliers map[string]string
	runs      map[uuid.UUID]ImportRun
	results   map[uuid.UUID][]RowOutcome

	upsertCalls int
	failUpsert  error
	failUpdate  map[string]error
	failBatch   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		incidents:  map[string]incident.Row{},
		suppliers:  map[string]string{},
		runs:       map[uuid.UUID]ImportRun{},
		results:    map[uuid.UUID][]RowOutcome{},
		failUpdate: map[string]error{},
	}
}

func (f *fakeStore) seed(numero, stato string) {
	f.incidents[numero] = incident.Row{incident.FieldNumero: numero, incident.FieldStato: stato}
}

func (f *fakeStore) ExistingNumeri(_ context.Context, numeri []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]bool{}
	for _, n := range numeri {
		if _, ok := f.incidents[n]; ok {
			out[n] = true
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertIncidents(_ context.Context, rows []incident.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	if f.failUpsert != nil {
		return f.failUpsert
	}
	for _, row := range rows {
		numero := row.Numero()
		existing, ok := f.incidents[numero]
		if !ok {
			existing = incident.Row{}
		}
		for k, v := range row {
			existing[k] = v
		}
		f.incidents[numero] = existing
	}
	return nil
}

func (f *fakeStore) UpdateIncident(_ context.Context, numero string, patch incident.Row) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failUpdate[numero]; err != nil {
		return false, err
	}
	existing, ok := f.incidents[numero]
	if !ok {
		return false, nil
	}
	for k, v := range patch {
		existing[k] = v
	}
	return true, nil
}

func (f *fakeStore) UpdateIncidents(_ context.Context, numeri []string, patch incident.Row) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBatch != nil {
		return 0, f.failBatch
	}
	n := 0
	for _, numero := range numeri {
		existing, ok := f.incidents[numero]
		if !ok {
			continue
		}
		for k, v := range patch {
			existing[k] = v
		}
		n++
	}
	return n, nil
}

func (f *fakeStore) ListOpenNumeri(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var open []string
	for numero, row := range f.incidents {
		stato, _ := row[incident.FieldStato].(string)
		if stato != "" && !incident.IsClosedStatus(stato) {
			open = append(open, numero)
		}
	}
	sort.Strings(open)
	return open, nil
}

func (f *fakeStore) ListSuppliers(_ context.Context) ([]incident.SupplierMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]incident.SupplierMapping, 0, len(f.suppliers))
	for p, s := range f.suppliers {
		out = append(out, incident.SupplierMapping{Provincia: p, Fornitore: s})
	}
	return out, nil
}

func (f *fakeStore) UpsertSuppliers(_ context.Context, mappings []incident.SupplierMapping) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range mappings {
		f.suppliers[m.Provincia] = m.Fornitore
	}
	return nil
}

func (f *fakeStore) CreateImportRun(_ context.Context, run ImportRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.ID] = run
	return nil
}

func (f *fakeStore) CompleteImportRun(_ context.Context, run ImportRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.ID] = run
	return nil
}

func (f *fakeStore) UpdateImportRunGhosts(_ context.Context, id uuid.UUID, ghosts []string, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run := f.runs[id]
	run.Ghosts = ghosts
	run.Status = status
	f.runs[id] = run
	return nil
}

func (f *fakeStore) GetImportRun(_ context.Context, id uuid.UUID) (ImportRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return ImportRun{}, fmt.Errorf("import run %s not found", id)
	}
	run.Ghosts = append([]string(nil), run.Ghosts...)
	return run, nil
}

func (f *fakeStore) InsertRowResults(_ context.Context, runID uuid.UUID, outcomes []RowOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[runID] = append(f.results[runID], outcomes...)
	return nil
}

func (f *fakeStore) row(numero string) incident.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.incidents[numero]
}
