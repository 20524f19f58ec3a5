package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fieldops-platform/apps/api/internal/audit"
	"github.com/fieldops-platform/apps/api/internal/config"
	"github.com/fieldops-platform/apps/api/internal/httpx"
	"github.com/fieldops-platform/apps/api/internal/incident"
	"github.com/fieldops-platform/apps/api/internal/ingest"
	"github.com/fieldops-platform/apps/api/internal/report"
	"github.com/fieldops-platform/apps/api/internal/store"
)

type Server struct {
	Config   config.Config
	Store    *store.Store
	Pipeline *ingest.Pipeline
	Reports  *report.Aggregator
	Audit    *audit.Logger
	Logger   *slog.Logger

	validate *validator.Validate
	now      func() time.Time
}

func NewServer(cfg config.Config, st *store.Store, pipeline *ingest.Pipeline, reports *report.Aggregator, auditLogger *audit.Logger, logger *slog.Logger) *Server {
	return &Server{
		Config:   cfg,
		Store:    st,
		Pipeline: pipeline,
		Reports:  reports,
		Audit:    auditLogger,
		Logger:   logger,
		validate: validator.New(),
		now:      time.Now,
	}
}

func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Ping(r.Context()); err != nil {
		s.Logger.Warn("health_check_failed", "error", err)
		httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "store": string(s.Store.Dialect())})
}

type appError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *appError) write(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(w, r, e.Status, e.Code, e.Message, e.Details)
}

// decodeBody decodes and validates a JSON request DTO.
func (s *Server) decodeBody(r *http.Request, dst any) *appError {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		return &appError{Status: http.StatusBadRequest, Code: "invalid_body", Message: "Malformed JSON body"}
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			return &appError{Status: http.StatusBadRequest, Code: httpx.CodeValidation, Message: "Request validation failed", Details: fields}
		}
		return &appError{Status: http.StatusBadRequest, Code: httpx.CodeValidation, Message: err.Error()}
	}
	return nil
}

func (s *Server) loadIncident(w http.ResponseWriter, r *http.Request, numero string) (incident.Incident, bool) {
	inc, err := s.Store.GetIncident(r.Context(), numero)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "incident_not_found", "Incident not found", map[string]string{"numero": numero})
			return incident.Incident{}, false
		}
		s.Logger.Error("load_incident_failed", "numero", numero, "error", err)
		httpx.WriteInternalError(w, r, "Failed to load incident")
		return incident.Incident{}, false
	}
	return inc, true
}

func (s *Server) logAudit(r *http.Request, entry audit.Entry) {
	if s.Audit == nil {
		return
	}
	if err := s.Audit.Log(r.Context(), entry); err != nil {
		s.Logger.Warn("audit_log_failed", "action", entry.Action, "error", err)
	}
}

func rawJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	return json.RawMessage(raw)
}
