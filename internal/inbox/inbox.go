// Package inbox sweeps a drop folder on a cron schedule and imports whatever
// spreadsheets it finds there as one batch.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fieldops-platform/apps/api/internal/ingest"
)

const (
	ProcessedDir = "processed"
	RejectedDir  = "rejected"
)

// Runner executes an import batch.
type Runner interface {
	Run(ctx context.Context, files []ingest.File, opts ingest.RunOptions) (ingest.ImportRun, []ingest.RowOutcome, error)
}

// Result describes one sweep.
type Result struct {
	Run      *ingest.ImportRun
	Imported []string
	Rejected []string
	// Retained files stay in the inbox for the next sweep.
	Retained []string
}

type Sweeper struct {
	dir    string
	runner Runner
	logger *slog.Logger
	cron   *cron.Cron
	now    func() time.Time
}

func NewSweeper(dir string, runner Runner, logger *slog.Logger) *Sweeper {
	return &Sweeper{dir: dir, runner: runner, logger: logger, now: time.Now}
}

// Start schedules Sweep. Overlapping ticks are skipped while a sweep runs.
func (s *Sweeper) Start(schedule string) error {
	for _, sub := range []string{ProcessedDir, RejectedDir} {
		if err := os.MkdirAll(filepath.Join(s.dir, sub), 0o755); err != nil {
			return fmt.Errorf("create inbox dir: %w", err)
		}
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.Error("inbox_sweep_failed", "dir", s.dir, "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule inbox sweep %q: %w", schedule, err)
	}
	s.cron = c
	c.Start()
	s.logger.Info("inbox_started", "dir", s.dir, "schedule", schedule)
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish or ctx to end.
func (s *Sweeper) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Sweep imports every recognised file in the inbox, in name order, then moves
// it to processed/. Unrecognised or unreadable files go to rejected/. Files a
// failed run did not finish stay put for the next sweep, as do all files when
// the batch itself errors.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return Result{}, fmt.Errorf("read inbox: %w", err)
	}

	var result Result
	var files []ingest.File
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || strings.HasPrefix(name, ".") {
			continue
		}
		if ingest.Classify(name) == ingest.StrategyUnknown {
			if err := s.move(name, RejectedDir); err != nil {
				return result, err
			}
			s.logger.Warn("inbox_file_rejected", "file", name)
			result.Rejected = append(result.Rejected, name)
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return result, fmt.Errorf("read %s: %w", name, err)
		}
		files = append(files, ingest.File{Name: name, Data: data})
	}
	if len(files) == 0 {
		return result, nil
	}

	run, _, err := s.runner.Run(ctx, files, ingest.RunOptions{Mode: ingest.ModeApply, Trigger: ingest.TriggerInbox})
	if err != nil {
		return result, fmt.Errorf("inbox batch: %w", err)
	}
	result.Run = &run

	fileStatus := make(map[string]string, len(run.Summary.Files))
	for _, fs := range run.Summary.Files {
		fileStatus[fs.File] = fs.Status
	}

	var moveErr error
	for _, f := range files {
		target := ProcessedDir
		switch fileStatus[f.Name] {
		case ingest.FileStatusNotProcessed:
			result.Retained = append(result.Retained, f.Name)
			continue
		case ingest.FileStatusFailed:
			// A store failure fails the run and is worth retrying; an
			// unreadable sheet is not.
			if run.Status == ingest.RunStatusFailed {
				result.Retained = append(result.Retained, f.Name)
				continue
			}
			target = RejectedDir
		}
		if err := s.move(f.Name, target); err != nil {
			moveErr = errors.Join(moveErr, err)
			continue
		}
		if target == RejectedDir {
			result.Rejected = append(result.Rejected, f.Name)
		} else {
			result.Imported = append(result.Imported, f.Name)
		}
	}
	s.logger.Info("inbox_swept",
		"run_id", run.ID,
		"status", run.Status,
		"imported", len(result.Imported),
		"rejected", len(result.Rejected),
		"retained", len(result.Retained),
	)
	return result, moveErr
}

// move renames name into sub/, prefixed with a timestamp so repeated drops of
// the same file name never collide.
func (s *Sweeper) move(name, sub string) error {
	target := filepath.Join(s.dir, sub, s.now().UTC().Format("20060102T150405")+"_"+name)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create %s dir: %w", sub, err)
	}
	if err := os.Rename(filepath.Join(s.dir, name), target); err != nil {
		return fmt.Errorf("move %s to %s: %w", name, sub, err)
	}
	return nil
}
