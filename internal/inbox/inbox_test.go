package inbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldops-platform/apps/api/internal/ingest"
)

type fakeRunner struct {
	files []string
	opts  ingest.RunOptions
	err   error
	run   *ingest.ImportRun
}

func (f *fakeRunner) Run(_ context.Context, files []ingest.File, opts ingest.RunOptions) (ingest.ImportRun, []ingest.RowOutcome, error) {
	for _, file := range files {
		f.files = append(f.files, file.Name)
	}
	f.opts = opts
	if f.err != nil {
		return ingest.ImportRun{}, nil, f.err
	}
	if f.run != nil {
		return *f.run, nil, nil
	}
	return ingest.ImportRun{ID: uuid.New(), Status: ingest.RunStatusCompleted}, nil, nil
}

func newSweeper(t *testing.T, runner Runner) (*Sweeper, string) {
	t.Helper()
	dir := t.TempDir()
	s := NewSweeper(dir, runner, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return time.Date(2025, time.March, 10, 8, 30, 0, 0, time.UTC) }
	return s, dir
}

func drop(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("Numero\nINC1\n"), 0o644))
	}
}

func TestSweepImportsInNameOrderAndRejectsUnknown(t *testing.T) {
	runner := &fakeRunner{}
	s, dir := newSweeper(t, runner)
	drop(t, dir, "MTZ.csv", "Distribuzione Territoriale.csv", "notes.txt", ".hidden")

	result, err := s.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Distribuzione Territoriale.csv", "MTZ.csv"}, runner.files)
	assert.Equal(t, ingest.TriggerInbox, runner.opts.Trigger)
	assert.Equal(t, ingest.ModeApply, runner.opts.Mode)
	assert.Equal(t, []string{"notes.txt"}, result.Rejected)
	require.NotNil(t, result.Run)

	assert.FileExists(t, filepath.Join(dir, ProcessedDir, "20250310T083000_MTZ.csv"))
	assert.FileExists(t, filepath.Join(dir, RejectedDir, "20250310T083000_notes.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "MTZ.csv"))
	assert.FileExists(t, filepath.Join(dir, ".hidden"))
}

func TestSweepEmptyInboxSkipsRun(t *testing.T) {
	runner := &fakeRunner{}
	s, _ := newSweeper(t, runner)

	result, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result.Run)
	assert.Empty(t, runner.files)
}

func TestSweepLeavesFilesWhenBatchFails(t *testing.T) {
	runner := &fakeRunner{err: errors.New("store down")}
	s, dir := newSweeper(t, runner)
	drop(t, dir, "MTZ.csv")

	_, err := s.Sweep(context.Background())
	require.Error(t, err)
	assert.FileExists(t, filepath.Join(dir, "MTZ.csv"))
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s, _ := newSweeper(t, &fakeRunner{})
	require.Error(t, s.Start("not a schedule"))
}

func TestStartAndStop(t *testing.T) {
	s, dir := newSweeper(t, &fakeRunner{})
	require.NoError(t, s.Start("@every 1h"))
	assert.DirExists(t, filepath.Join(dir, ProcessedDir))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestSweepRetainsFilesOfFailedRun(t *testing.T) {
	runner := &fakeRunner{run: &ingest.ImportRun{
		ID:     uuid.New(),
		Status: ingest.RunStatusFailed,
		Summary: ingest.BatchSummary{Files: []ingest.FileSummary{
			{File: "A MTZ.csv", Status: ingest.FileStatusFailed},
			{File: "B MTZ OUT.csv", Status: ingest.FileStatusNotProcessed},
		}},
	}}
	s, dir := newSweeper(t, runner)
	drop(t, dir, "A MTZ.csv", "B MTZ OUT.csv")

	result, err := s.Sweep(context.Background())
	require.NoError(t, err)

	assert.Empty(t, result.Imported)
	assert.Equal(t, []string{"A MTZ.csv", "B MTZ OUT.csv"}, result.Retained)
	assert.FileExists(t, filepath.Join(dir, "A MTZ.csv"))
	assert.FileExists(t, filepath.Join(dir, "B MTZ OUT.csv"))
}

func TestSweepRejectsUnreadableFileOfCompletedRun(t *testing.T) {
	runner := &fakeRunner{run: &ingest.ImportRun{
		ID:     uuid.New(),
		Status: ingest.RunStatusCompleted,
		Summary: ingest.BatchSummary{Files: []ingest.FileSummary{
			{File: "Distribuzione Territoriale.csv", Status: ingest.FileStatusProcessed},
			{File: "MTZ.csv", Status: ingest.FileStatusFailed},
		}},
	}}
	s, dir := newSweeper(t, runner)
	drop(t, dir, "Distribuzione Territoriale.csv", "MTZ.csv")

	result, err := s.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Distribuzione Territoriale.csv"}, result.Imported)
	assert.Equal(t, []string{"MTZ.csv"}, result.Rejected)
	assert.Empty(t, result.Retained)
	assert.FileExists(t, filepath.Join(dir, RejectedDir, "20250310T083000_MTZ.csv"))
}
