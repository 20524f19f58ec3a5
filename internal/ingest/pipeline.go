// Package ingest classifies uploaded spreadsheets, maps them to canonical
// incident rows and reconciles them against the record store.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldops-platform/apps/api/internal/audit"
)

type Mode string

const (
	ModeDryRun Mode = "dry_run"
	ModeApply  Mode = "apply"
)

const (
	RunStatusRunning     = "running"
	RunStatusCompleted   = "completed"
	RunStatusNeedsReview = "needs_review"
	RunStatusFailed      = "failed"
)

const (
	TriggerAPI   = "api"
	TriggerCLI   = "cli"
	TriggerInbox = "inbox"
)

const (
	FileStatusProcessed    = "processed"
	FileStatusSkipped      = "skipped"
	FileStatusFailed       = "failed"
	FileStatusNotProcessed = "not_processed"
)

var ErrDryRunRun = errors.New("dry-run imports have no ghosts to resolve")

// File is one uploaded spreadsheet.
type File struct {
	Name string
	Data []byte
}

// FileSummary reports what happened to one file of a batch.
type FileSummary struct {
	File      string       `json:"file"`
	SHA256    string       `json:"sha256,omitempty"`
	Strategy  Strategy     `json:"strategy"`
	Status    string       `json:"status"`
	Error     string       `json:"error,omitempty"`
	RowsTotal int64        `json:"rowsTotal"`
	RowsValid int64        `json:"rowsValid"`
	RowsError int64        `json:"rowsError"`
	Warnings  int64        `json:"warnings"`
	Counts    ResultCounts `json:"counts"`
}

// BatchSummary aggregates a whole import run.
type BatchSummary struct {
	Files      []FileSummary `json:"files"`
	RowsTotal  int64         `json:"rowsTotal"`
	Totals     ResultCounts  `json:"totals"`
	GhostCheck bool          `json:"ghostCheck"`
}

// ImportRun is the persisted record of one batch.
type ImportRun struct {
	ID          uuid.UUID    `json:"id"`
	Mode        Mode         `json:"mode"`
	Trigger     string       `json:"trigger"`
	Status      string       `json:"status"`
	RequestID   string       `json:"requestId,omitempty"`
	Files       []string     `json:"files"`
	Summary     BatchSummary `json:"summary"`
	Ghosts      []string     `json:"ghosts"`
	CreatedAt   time.Time    `json:"createdAt"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
}

// RunStore persists import runs and their row outcomes.
type RunStore interface {
	CreateImportRun(ctx context.Context, run ImportRun) error
	CompleteImportRun(ctx context.Context, run ImportRun) error
	UpdateImportRunGhosts(ctx context.Context, id uuid.UUID, ghosts []string, status string) error
	GetImportRun(ctx context.Context, id uuid.UUID) (ImportRun, error)
	InsertRowResults(ctx context.Context, runID uuid.UUID, outcomes []RowOutcome) error
}

// Store is everything the pipeline needs from the record store.
type Store interface {
	IncidentStore
	SupplierStore
	GhostStore
	RunStore
}

// Auditor records audit entries.
type Auditor interface {
	Log(ctx context.Context, entry audit.Entry) error
}

type Options struct {
	MaxRows  int
	Mappings Mappings
	Auditor  Auditor
	Now      func() time.Time
}

// RunOptions describe one batch.
type RunOptions struct {
	Mode      Mode
	Trigger   string
	RequestID string
}

// Pipeline runs import batches. Batches never interleave: files are handled
// one at a time in the order given so supplier updates from an earlier file
// are visible to later ones.
type Pipeline struct {
	mu         sync.Mutex
	store      Store
	mappings   Mappings
	reconciler *Reconciler
	auditor    Auditor
	logger     *slog.Logger
	maxRows    int
	now        func() time.Time
}

func NewPipeline(store Store, logger *slog.Logger, opts Options) (*Pipeline, error) {
	mappings := opts.Mappings
	if mappings == nil {
		m, err := DefaultMappings()
		if err != nil {
			return nil, err
		}
		mappings = m
	}
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		store:    store,
		mappings: mappings,
		reconciler: &Reconciler{
			Incidents: store,
			Suppliers: store,
			Logger:    logger,
			Now:       now,
		},
		auditor: opts.Auditor,
		logger:  logger,
		maxRows: opts.MaxRows,
		now:     now,
	}, nil
}

// Run imports files sequentially and returns the completed run with every
// row outcome. The error is non-nil only when the run itself could not be
// recorded; file failures are reported in the summary.
func (p *Pipeline) Run(ctx context.Context, files []File, opts RunOptions) (ImportRun, []RowOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if opts.Mode == "" {
		opts.Mode = ModeApply
	}
	run := ImportRun{
		ID:        uuid.New(),
		Mode:      opts.Mode,
		Trigger:   opts.Trigger,
		Status:    RunStatusRunning,
		RequestID: opts.RequestID,
		Files:     make([]string, 0, len(files)),
		Ghosts:    []string{},
		CreatedAt: p.now().UTC(),
	}
	for _, f := range files {
		run.Files = append(run.Files, f.Name)
	}
	if err := p.store.CreateImportRun(ctx, run); err != nil {
		return run, nil, fmt.Errorf("create import run: %w", err)
	}

	startAction, completeAction := "import.dry_run_started", "import.dry_run_completed"
	if run.Mode == ModeApply {
		startAction, completeAction = "import.apply_started", "import.apply_completed"
	}
	p.audit(ctx, startAction, run.ID.String(), map[string]any{
		"mode":    run.Mode,
		"trigger": run.Trigger,
		"files":   run.Files,
	})

	var openBefore []string
	for _, f := range files {
		if Classify(f.Name) == StrategyMainIncident {
			run.Summary.GhostCheck = true
			break
		}
	}
	if run.Summary.GhostCheck {
		open, err := p.store.ListOpenNumeri(ctx)
		if err != nil {
			p.logger.Warn("ghost_snapshot_failed", "import_run_id", run.ID, "error", err)
			run.Summary.GhostCheck = false
		}
		openBefore = open
	}

	var (
		outcomes []RowOutcome
		imported []string
		failed   bool
	)
	for _, f := range files {
		if failed {
			run.Summary.Files = append(run.Summary.Files, FileSummary{
				File:     f.Name,
				Strategy: Classify(f.Name),
				Status:   FileStatusNotProcessed,
			})
			continue
		}
		summary, fileOutcomes, numeri, err := p.processFile(ctx, f, run.Mode)
		for i := range fileOutcomes {
			fileOutcomes[i].File = f.Name
		}
		outcomes = append(outcomes, fileOutcomes...)
		run.Summary.Files = append(run.Summary.Files, summary)
		run.Summary.RowsTotal += summary.RowsTotal
		run.Summary.Totals.add(summary.Counts)
		if summary.Strategy == StrategyMainIncident {
			imported = append(imported, numeri...)
			if summary.Status != FileStatusProcessed {
				// An unread main feed would flag every open ticket.
				run.Summary.GhostCheck = false
			}
		}
		if err != nil {
			failed = true
			p.logger.Error("import_file_failed", "import_run_id", run.ID, "file", f.Name, "error", err)
		}
	}

	switch {
	case failed:
		run.Status = RunStatusFailed
	case run.Summary.GhostCheck:
		run.Ghosts = DetectGhosts(openBefore, imported)
		run.Status = RunStatusCompleted
		if len(run.Ghosts) > 0 {
			ghostsDetected.Add(float64(len(run.Ghosts)))
			p.logger.Info("ghosts_detected", "import_run_id", run.ID, "count", len(run.Ghosts))
			if run.Mode == ModeApply {
				run.Status = RunStatusNeedsReview
			}
		}
	default:
		run.Status = RunStatusCompleted
	}
	if len(outcomes) > 0 {
		if err := p.store.InsertRowResults(ctx, run.ID, outcomes); err != nil {
			p.logger.Error("persist_row_results_failed", "import_run_id", run.ID, "error", err)
		}
	}

	completedAt := p.now().UTC()
	run.CompletedAt = &completedAt
	if err := p.store.CompleteImportRun(ctx, run); err != nil {
		return run, outcomes, fmt.Errorf("complete import run: %w", err)
	}

	p.audit(ctx, completeAction, run.ID.String(), map[string]any{
		"mode":    run.Mode,
		"status":  run.Status,
		"summary": run.Summary,
		"ghosts":  len(run.Ghosts),
	})
	return run, outcomes, nil
}

// processFile handles one file. A returned error means a store call failed
// and the batch must stop; unreadable or unknown files only mark the file.
func (p *Pipeline) processFile(ctx context.Context, f File, mode Mode) (FileSummary, []RowOutcome, []string, error) {
	start := time.Now()
	digest := sha256.Sum256(f.Data)
	summary := FileSummary{
		File:     f.Name,
		SHA256:   hex.EncodeToString(digest[:]),
		Strategy: Classify(f.Name),
	}
	defer func() {
		filesProcessed.WithLabelValues(string(summary.Strategy), summary.Status).Inc()
		fileDuration.WithLabelValues(string(summary.Strategy)).Observe(time.Since(start).Seconds())
	}()

	if summary.Strategy == StrategyUnknown {
		summary.Status = FileStatusSkipped
		summary.Error = "unrecognized file type"
		p.logger.Warn("import_file_unrecognized", "file", f.Name)
		return summary, nil, nil, nil
	}

	sheet, err := ReadSheet(f.Name, f.Data, p.maxRows)
	if err != nil {
		summary.Status = FileStatusFailed
		summary.Error = err.Error()
		p.logger.Warn("import_file_unreadable", "file", f.Name, "error", err)
		return summary, nil, nil, nil
	}

	var snapshot SupplierSnapshot
	if summary.Strategy == StrategyMainIncident || summary.Strategy == StrategySupplierTerritory {
		snapshot, err = LoadSupplierSnapshot(ctx, p.store)
		if err != nil {
			summary.Status = FileStatusFailed
			summary.Error = err.Error()
			return summary, nil, nil, err
		}
	}

	norm := Normalize(summary.Strategy, p.mappings[summary.Strategy], sheet, snapshot)
	summary.RowsTotal = int64(norm.RowsTotal)
	outcomes := norm.Outcomes
	dryRun := mode == ModeDryRun

	var (
		counts   ResultCounts
		storeErr error
	)
	switch summary.Strategy {
	case StrategySupplierTerritory:
		for _, o := range norm.Outcomes {
			if o.Result == ResultSkipped {
				counts.Skipped++
			}
		}
		var c ResultCounts
		c, storeErr = p.reconciler.UpsertSuppliers(ctx, norm.Suppliers, snapshot, dryRun)
		counts.add(c)
	case StrategyPlanning:
		var planOutcomes []RowOutcome
		counts, planOutcomes = p.reconciler.ApplyPlanning(ctx, norm.Rows, dryRun)
		outcomes = append(outcomes, planOutcomes...)
	default:
		var upsertOutcomes []RowOutcome
		counts, upsertOutcomes, storeErr = p.reconciler.UpsertIncidents(ctx, norm.Rows, dryRun)
		outcomes = append(outcomes, upsertOutcomes...)
	}

	summary.Counts = counts
	summary.RowsValid = counts.Created + counts.Updated
	summary.RowsError = counts.Error
	for _, o := range outcomes {
		if o.Severity == SeverityWarn {
			summary.Warnings++
		}
	}
	recordRows(summary.Strategy, counts)

	var numeri []string
	if summary.Strategy == StrategyMainIncident {
		numeri = make([]string, 0, len(norm.Rows))
		for _, src := range norm.Rows {
			if n := src.Row.Numero(); n != "" {
				numeri = append(numeri, n)
			}
		}
	}

	if storeErr != nil {
		summary.Status = FileStatusFailed
		summary.Error = storeErr.Error()
		outcomes = append(outcomes, RowOutcome{
			Severity: SeverityError,
			Result:   ResultError,
			Message:  storeErr.Error(),
		})
		return summary, outcomes, numeri, storeErr
	}

	summary.Status = FileStatusProcessed
	p.logger.Info("import_file_processed",
		"file", f.Name,
		"strategy", summary.Strategy,
		"mode", mode,
		"rows_total", summary.RowsTotal,
		"created", counts.Created,
		"updated", counts.Updated,
		"skipped", counts.Skipped,
		"errors", counts.Error,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return summary, outcomes, numeri, nil
}

func (p *Pipeline) audit(ctx context.Context, action, entityID string, metadata map[string]any) {
	if p.auditor == nil {
		return
	}
	if err := p.auditor.Log(ctx, audit.Entry{
		Action:     action,
		EntityType: "import_run",
		EntityID:   entityID,
		Metadata:   metadata,
	}); err != nil {
		p.logger.Warn("audit_log_failed", "action", action, "error", err)
	}
}
