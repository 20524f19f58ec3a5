package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	openapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldops-platform/apps/api/api"
	"github.com/fieldops-platform/apps/api/internal/config"
	"github.com/fieldops-platform/apps/api/internal/handlers"
	"github.com/fieldops-platform/apps/api/internal/httpx"
	"github.com/fieldops-platform/apps/api/internal/middleware"
)

// Spreadsheet uploads arrive with these part content types.
var spreadsheetContentTypes = []string{
	"text/csv",
	"application/csv",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

func init() {
	for _, ct := range spreadsheetContentTypes {
		openapi3filter.RegisterBodyDecoder(ct, openapi3filter.FileBodyDecoder)
	}
}

// LoadSpec parses and validates the embedded OpenAPI document.
func LoadSpec() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(api.OpenAPI)
	if err != nil {
		return nil, fmt.Errorf("load openapi spec: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate openapi spec: %w", err)
	}
	return doc, nil
}

func NewRouter(cfg config.Config, h *handlers.Server, logger *slog.Logger) (http.Handler, error) {
	doc, err := LoadSpec()
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders(cfg.IsProd()))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(middleware.Logging(logger))

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	api := chi.NewRouter()
	api.Use(middleware.LimitBodyBytesWithOverrides(cfg.APIMaxBodyBytes(), []middleware.BodyLimitOverride{
		{PathPrefix: "/imports", MaxBytes: cfg.ImportMaxFileBytes() * handlers.MaxBatchFiles},
	}))
	api.Use(openapimiddleware.OapiRequestValidatorWithOptions(doc, &openapimiddleware.Options{
		SilenceServersWarning: true,
		ErrorHandler: func(w http.ResponseWriter, message string, statusCode int) {
			requestID := w.Header().Get(middleware.RequestIDHeader)
			httpx.WriteJSON(w, statusCode, httpx.NewErrorEnvelope(requestID, httpx.CodeValidation, message, nil))
		},
	}))

	importLimiter := middleware.NewIPRateLimiterWithMaxEntries(cfg.ImportRateLimitPerMin, time.Minute, cfg.RateLimitMaxIPs)

	api.Get("/health", h.GetHealth)

	api.With(importLimiter.Middleware("Too many imports")).Post("/imports", h.PostImports)
	api.Route("/imports/{importRunId}", func(run chi.Router) {
		run.Get("/", withRunID(h.GetImportsImportRunId))
		run.Get("/errors.csv", withRunID(h.GetImportsImportRunIdErrorsCsv))
		run.Post("/ghosts/resolve", withRunID(h.PostImportsImportRunIdGhostsResolve))
		run.Post("/ghosts/resolve-all", withRunID(h.PostImportsImportRunIdGhostsResolveAll))
		run.Post("/ghosts/dismiss", withRunID(h.PostImportsImportRunIdGhostsDismiss))
	})

	api.Get("/incidents", h.ListIncidents)
	api.Route("/incidents/{numero}", func(inc chi.Router) {
		inc.Get("/", withNumero(h.GetIncidentsNumero))
		inc.Get("/history", withNumero(h.GetIncidentsNumeroHistory))
		inc.Post("/notes", withNumero(h.PostIncidentsNumeroNotes))
		inc.Put("/parts", withNumero(h.PutIncidentsNumeroParts))
		inc.Post("/parts/toggle", withNumero(h.PostIncidentsNumeroPartsToggle))
		inc.Post("/parts/advance", withNumero(h.PostIncidentsNumeroPartsAdvance))
		inc.Put("/planning", withNumero(h.PutIncidentsNumeroPlanning))
	})

	api.Get("/suppliers", h.GetSuppliers)
	api.Put("/suppliers", h.PutSuppliers)
	api.Put("/snapshots", h.PutSnapshots)

	api.Get("/reports/trend", h.ReportHandler(h.GetReportsTrend))
	api.Get("/reports/regions", h.ReportHandler(h.GetReportsRegions))
	api.Get("/reports/sla", h.ReportHandler(h.GetReportsSla))

	api.Get("/exports/incidents.csv", h.GetExportsIncidentsCsv)

	r.Mount("/api", api)
	return r, nil
}

func withRunID(fn func(http.ResponseWriter, *http.Request, openapi_types.UUID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "importRunId"))
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, httpx.CodeInvalidID, "importRunId must be a UUID", nil)
			return
		}
		fn(w, r, id)
	}
}

func withNumero(fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, chi.URLParam(r, "numero"))
	}
}
