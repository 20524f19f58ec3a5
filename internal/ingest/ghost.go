package ingest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/fieldops-platform/apps/api/internal/incident"
)

var ErrNotGhost = errors.New("ticket is not a pending ghost of this import")

// GhostStore lists open tickets and applies the reassignment transition.
type GhostStore interface {
	ListOpenNumeri(ctx context.Context) ([]string, error)
	UpdateIncidents(ctx context.Context, numeri []string, patch incident.Row) (int, error)
}

// DetectGhosts returns the tickets open in storage that the import did not
// mention, sorted.
func DetectGhosts(open, imported []string) []string {
	seen := make(map[string]struct{}, len(imported))
	for _, n := range imported {
		seen[n] = struct{}{}
	}
	ghosts := make([]string, 0)
	dedup := make(map[string]struct{}, len(open))
	for _, n := range open {
		if _, ok := seen[n]; ok {
			continue
		}
		if _, dup := dedup[n]; dup {
			continue
		}
		dedup[n] = struct{}{}
		ghosts = append(ghosts, n)
	}
	sort.Strings(ghosts)
	return ghosts
}

// ReassignmentPatch is the fixed transition applied to a resolved ghost.
func ReassignmentPatch(now time.Time) incident.Row {
	stamp := incident.FormatTimestamp(now)
	return incident.Row{
		incident.FieldStato:                    incident.StatusRiassegnato,
		incident.FieldDataUltimaRiassegnazione: stamp,
		incident.FieldUpdatedAt:                stamp,
	}
}

// ResolveGhost marks one pending ghost of a run as reassigned.
func (p *Pipeline) ResolveGhost(ctx context.Context, run ImportRun, numero string) (ImportRun, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	current, err := p.reloadRun(ctx, run)
	if err != nil {
		return run, err
	}
	if !slices.Contains(current.Ghosts, numero) {
		return run, ErrNotGhost
	}
	return p.resolve(ctx, run, current, []string{numero})
}

// ResolveAllGhosts reassigns every pending ghost in one batch update.
func (p *Pipeline) ResolveAllGhosts(ctx context.Context, run ImportRun) (ImportRun, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	current, err := p.reloadRun(ctx, run)
	if err != nil {
		return run, err
	}
	if len(current.Ghosts) == 0 {
		return current, nil
	}
	return p.resolve(ctx, run, current, current.Ghosts)
}

// DismissGhosts leaves the remaining ghosts untouched and closes the review.
func (p *Pipeline) DismissGhosts(ctx context.Context, run ImportRun) (ImportRun, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	current, err := p.reloadRun(ctx, run)
	if err != nil {
		return run, err
	}
	if err := p.store.UpdateImportRunGhosts(ctx, current.ID, current.Ghosts, RunStatusCompleted); err != nil {
		return run, fmt.Errorf("update import run: %w", err)
	}
	p.audit(ctx, "import.ghosts_dismissed", current.ID.String(), map[string]any{"ghosts": current.Ghosts})
	current.Status = RunStatusCompleted
	return current, nil
}

// reloadRun reads the stored run so ghost edits start from the latest list
// rather than the caller's copy. Callers hold p.mu.
func (p *Pipeline) reloadRun(ctx context.Context, run ImportRun) (ImportRun, error) {
	if run.Mode != ModeApply {
		return run, ErrDryRunRun
	}
	current, err := p.store.GetImportRun(ctx, run.ID)
	if err != nil {
		return run, fmt.Errorf("load import run: %w", err)
	}
	if current.Mode != ModeApply {
		return run, ErrDryRunRun
	}
	return current, nil
}

// resolve returns the caller's run unchanged when any store call fails.
func (p *Pipeline) resolve(ctx context.Context, run, current ImportRun, numeri []string) (ImportRun, error) {
	targets := append([]string(nil), numeri...)
	if _, err := p.store.UpdateIncidents(ctx, targets, ReassignmentPatch(p.now())); err != nil {
		return run, fmt.Errorf("reassign ghosts: %w", err)
	}

	remaining := make([]string, 0, len(current.Ghosts))
	for _, g := range current.Ghosts {
		if !slices.Contains(targets, g) {
			remaining = append(remaining, g)
		}
	}
	status := current.Status
	if len(remaining) == 0 {
		status = RunStatusCompleted
	}
	if err := p.store.UpdateImportRunGhosts(ctx, current.ID, remaining, status); err != nil {
		return run, fmt.Errorf("update import run: %w", err)
	}

	ghostsResolved.Add(float64(len(targets)))
	p.audit(ctx, "import.ghosts_resolved", current.ID.String(), map[string]any{"numeri": targets})

	current.Ghosts = remaining
	current.Status = status
	return current, nil
}
