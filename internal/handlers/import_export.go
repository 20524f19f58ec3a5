package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/fieldops-platform/apps/api/internal/audit"
	"github.com/fieldops-platform/apps/api/internal/httpx"
	"github.com/fieldops-platform/apps/api/internal/incident"
	"github.com/fieldops-platform/apps/api/internal/ingest"
	"github.com/fieldops-platform/apps/api/internal/middleware"
	"github.com/fieldops-platform/apps/api/internal/store"
)

// MaxBatchFiles caps the number of files in one upload.
const MaxBatchFiles = 10

const topOutcomeLimit = 100

type importRunResponse struct {
	Run         ingest.ImportRun    `json:"run"`
	TopWarnings []ingest.RowOutcome `json:"topWarnings"`
	TopErrors   []ingest.RowOutcome `json:"topErrors"`
	RequestID   string              `json:"requestId"`
}

type resolveGhostRequest struct {
	Numero string `json:"numero" validate:"required,max=64"`
}

// PostImports runs one batch over the uploaded files in the order they appear
// in the form.
func (s *Server) PostImports(w http.ResponseWriter, r *http.Request) {
	files, appErr := parseImportUpload(r, s.Config.ImportMaxFileBytes())
	if appErr != nil {
		appErr.write(w, r)
		return
	}
	mode, appErr := parseImportMode(r.FormValue("mode"))
	if appErr != nil {
		appErr.write(w, r)
		return
	}

	requestID := middleware.RequestIDFromContext(r.Context())
	run, outcomes, err := s.Pipeline.Run(r.Context(), files, ingest.RunOptions{
		Mode:      mode,
		Trigger:   ingest.TriggerAPI,
		RequestID: requestID,
	})
	if err != nil {
		s.Logger.Error("import_run_failed", "error", err, "request_id", requestID)
		httpx.WriteInternalError(w, r, "Failed to record import run")
		return
	}
	if run.Status == ingest.RunStatusFailed {
		httpx.WriteError(w, r, http.StatusBadRequest, "import_failed", "Import stopped on a store error", map[string]any{
			"importRunId": run.ID,
			"summary":     run.Summary,
		})
		return
	}

	httpx.WriteJSON(w, http.StatusOK, importRunResponse{
		Run:         run,
		TopWarnings: topOutcomesBySeverity(outcomes, ingest.SeverityWarn, topOutcomeLimit),
		TopErrors:   topOutcomesBySeverity(outcomes, ingest.SeverityError, topOutcomeLimit),
		RequestID:   requestID,
	})
}

func (s *Server) GetImportsImportRunId(w http.ResponseWriter, r *http.Request, importRunId openapi_types.UUID) {
	run, ok := s.loadImportRun(w, r, importRunId)
	if !ok {
		return
	}
	outcomes, err := s.Store.ListRowResults(r.Context(), run.ID)
	if err != nil {
		httpx.WriteInternalError(w, r, "Failed to load import rows")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, importRunResponse{
		Run:         run,
		TopWarnings: topOutcomesBySeverity(outcomes, ingest.SeverityWarn, topOutcomeLimit),
		TopErrors:   topOutcomesBySeverity(outcomes, ingest.SeverityError, topOutcomeLimit),
		RequestID:   middleware.RequestIDFromContext(r.Context()),
	})
}

func (s *Server) GetImportsImportRunIdErrorsCsv(w http.ResponseWriter, r *http.Request, importRunId openapi_types.UUID) {
	run, ok := s.loadImportRun(w, r, importRunId)
	if !ok {
		return
	}
	rows, err := s.Store.ListRowResults(r.Context(), run.ID)
	if err != nil {
		httpx.WriteInternalError(w, r, "Failed to load import rows")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"import-%s-errors.csv\"", run.ID.String()))
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"file", "row_number", "severity", "result", "numero", "field", "message", "raw_value"})
	for _, row := range rows {
		if row.Severity != ingest.SeverityError && row.Severity != ingest.SeverityWarn {
			continue
		}
		_ = writer.Write([]string{
			row.File,
			strconv.Itoa(row.RowNumber),
			row.Severity,
			row.Result,
			row.Numero,
			row.Field,
			row.Message,
			row.RawValue,
		})
	}
	writer.Flush()
}

func (s *Server) PostImportsImportRunIdGhostsResolve(w http.ResponseWriter, r *http.Request, importRunId openapi_types.UUID) {
	var req resolveGhostRequest
	if appErr := s.decodeBody(r, &req); appErr != nil {
		appErr.write(w, r)
		return
	}
	run, ok := s.loadImportRun(w, r, importRunId)
	if !ok {
		return
	}
	updated, err := s.Pipeline.ResolveGhost(r.Context(), run, strings.TrimSpace(req.Numero))
	s.writeGhostResult(w, r, updated, err)
}

func (s *Server) PostImportsImportRunIdGhostsResolveAll(w http.ResponseWriter, r *http.Request, importRunId openapi_types.UUID) {
	run, ok := s.loadImportRun(w, r, importRunId)
	if !ok {
		return
	}
	updated, err := s.Pipeline.ResolveAllGhosts(r.Context(), run)
	s.writeGhostResult(w, r, updated, err)
}

func (s *Server) PostImportsImportRunIdGhostsDismiss(w http.ResponseWriter, r *http.Request, importRunId openapi_types.UUID) {
	run, ok := s.loadImportRun(w, r, importRunId)
	if !ok {
		return
	}
	updated, err := s.Pipeline.DismissGhosts(r.Context(), run)
	s.writeGhostResult(w, r, updated, err)
}

func (s *Server) writeGhostResult(w http.ResponseWriter, r *http.Request, run ingest.ImportRun, err error) {
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, run)
	case errors.Is(err, ingest.ErrDryRunRun):
		httpx.WriteError(w, r, http.StatusConflict, "dry_run_import", "Dry-run imports cannot resolve ghosts", map[string]any{"importRunId": run.ID})
	case errors.Is(err, ingest.ErrNotGhost):
		httpx.WriteError(w, r, http.StatusNotFound, "ghost_not_found", "Ticket is not a pending ghost of this import", nil)
	default:
		s.Logger.Error("ghost_resolution_failed", "import_run_id", run.ID, "error", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, httpx.CodeInternal, "Failed to update ghosts", map[string]any{"ghosts": run.Ghosts})
	}
}

func (s *Server) loadImportRun(w http.ResponseWriter, r *http.Request, id openapi_types.UUID) (ingest.ImportRun, bool) {
	run, err := s.Store.GetImportRun(r.Context(), uuid.UUID(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "import_run_not_found", "Import run not found", nil)
			return ingest.ImportRun{}, false
		}
		httpx.WriteInternalError(w, r, "Failed to load import run")
		return ingest.ImportRun{}, false
	}
	return run, true
}

func (s *Server) GetExportsIncidentsCsv(w http.ResponseWriter, r *http.Request) {
	s.writeExportCSV(w, r, "incidents", "incidents.csv", func(writer *csv.Writer) error {
		incidents, err := s.Store.AllIncidents(r.Context())
		if err != nil {
			return err
		}
		if err := writer.Write(incident.Columns); err != nil {
			return err
		}
		for i := range incidents {
			targets := incidents[i].ScanTargets()
			record := make([]string, len(targets))
			for j, target := range targets {
				record[j] = formatCell(target)
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Server) writeExportCSV(w http.ResponseWriter, r *http.Request, entityType, filename string, writerFunc func(writer *csv.Writer) error) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	writer := csv.NewWriter(w)
	if err := writerFunc(writer); err != nil {
		s.Logger.Error("export_failed", "entity", entityType, "error", err)
		httpx.WriteInternalError(w, r, "Failed to generate export CSV")
		return
	}
	writer.Flush()
	if writer.Error() != nil {
		httpx.WriteInternalError(w, r, "Failed to stream export CSV")
		return
	}

	s.logAudit(r, audit.Entry{
		Action:     "export.download",
		EntityType: entityType,
		Metadata: map[string]any{
			"filename": filename,
			"entity":   entityType,
		},
	})
}

// formatCell renders one ScanTargets pointer for CSV output.
func formatCell(target any) string {
	switch v := target.(type) {
	case *string:
		return *v
	case **string:
		if *v == nil {
			return ""
		}
		return **v
	case **int64:
		if *v == nil {
			return ""
		}
		return strconv.FormatInt(**v, 10)
	case **bool:
		if *v == nil {
			return ""
		}
		return strconv.FormatBool(**v)
	}
	return ""
}

func parseImportUpload(r *http.Request, maxFileBytes int64) ([]ingest.File, *appError) {
	if !strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data") {
		return nil, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_content_type",
			Message: "Content-Type must be multipart/form-data",
		}
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_multipart",
			Message: "Failed to parse multipart form",
		}
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		return nil, &appError{
			Status:  http.StatusBadRequest,
			Code:    "missing_file",
			Message: "at least one file is required",
		}
	}
	if len(headers) > MaxBatchFiles {
		return nil, &appError{
			Status:  http.StatusBadRequest,
			Code:    "too_many_files",
			Message: fmt.Sprintf("at most %d files per import", MaxBatchFiles),
		}
	}

	files := make([]ingest.File, 0, len(headers))
	for _, header := range headers {
		if maxFileBytes > 0 && header.Size > maxFileBytes {
			return nil, &appError{
				Status:  http.StatusRequestEntityTooLarge,
				Code:    "file_too_large",
				Message: "file exceeds the upload limit",
				Details: map[string]any{"file": header.Filename, "maxBytes": maxFileBytes},
			}
		}
		f, err := header.Open()
		if err != nil {
			return nil, &appError{Status: http.StatusBadRequest, Code: "invalid_file", Message: "Failed to open uploaded file"}
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, &appError{Status: http.StatusBadRequest, Code: "invalid_file", Message: "Failed to read uploaded file"}
		}
		files = append(files, ingest.File{Name: header.Filename, Data: data})
	}
	return files, nil
}

func parseImportMode(raw string) (ingest.Mode, *appError) {
	switch ingest.Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ingest.ModeApply:
		return ingest.ModeApply, nil
	case ingest.ModeDryRun:
		return ingest.ModeDryRun, nil
	}
	return "", &appError{
		Status:  http.StatusBadRequest,
		Code:    "invalid_mode",
		Message: "mode must be dry_run or apply",
	}
}

func topOutcomesBySeverity(outcomes []ingest.RowOutcome, severity string, limit int) []ingest.RowOutcome {
	out := make([]ingest.RowOutcome, 0)
	for _, outcome := range outcomes {
		if outcome.Severity != severity {
			continue
		}
		out = append(out, outcome)
		if len(out) >= limit {
			break
		}
	}
	return out
}
