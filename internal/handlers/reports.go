package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/fieldops-platform/apps/api/internal/httpx"
	"github.com/fieldops-platform/apps/api/internal/report"
)

type GetReportsParams struct {
	Scope   *string
	Year    *int
	Regions *string
}

type trendResponse struct {
	Scope  report.Scope        `json:"scope"`
	Year   int                 `json:"year"`
	Points []report.TrendPoint `json:"points"`
}

type regionsResponse struct {
	Scope   report.Scope         `json:"scope"`
	Year    int                  `json:"year"`
	Regions []report.RegionTrend `json:"regions"`
}

func (s *Server) GetReportsTrend(w http.ResponseWriter, r *http.Request, params GetReportsParams) {
	q, appErr := s.reportQuery(params)
	if appErr != nil {
		appErr.write(w, r)
		return
	}
	points, err := s.Reports.Trend(r.Context(), q)
	if err != nil {
		s.writeReportError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, trendResponse{Scope: q.Scope, Year: q.Year, Points: points})
}

func (s *Server) GetReportsRegions(w http.ResponseWriter, r *http.Request, params GetReportsParams) {
	q, appErr := s.reportQuery(params)
	if appErr != nil {
		appErr.write(w, r)
		return
	}
	regions, err := s.Reports.Regions(r.Context(), q)
	if err != nil {
		s.writeReportError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, regionsResponse{Scope: q.Scope, Year: q.Year, Regions: regions})
}

func (s *Server) GetReportsSla(w http.ResponseWriter, r *http.Request, params GetReportsParams) {
	q, appErr := s.reportQuery(params)
	if appErr != nil {
		appErr.write(w, r)
		return
	}
	sla, err := s.Reports.SLA(r.Context(), q)
	if err != nil {
		s.writeReportError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sla)
}

func (s *Server) reportQuery(params GetReportsParams) (report.Query, *appError) {
	var q report.Query
	scope, err := report.ParseScope(derefOr(params.Scope, ""))
	if err != nil {
		return q, &appError{Status: http.StatusBadRequest, Code: "invalid_scope", Message: err.Error()}
	}
	q.Scope = scope
	q.Year = s.now().UTC().Year()
	if params.Year != nil {
		q.Year = *params.Year
	}
	if params.Regions != nil {
		for _, region := range strings.Split(*params.Regions, ",") {
			if trimmed := strings.TrimSpace(region); trimmed != "" {
				q.Regions = append(q.Regions, trimmed)
			}
		}
	}
	return q, nil
}

func (s *Server) writeReportError(w http.ResponseWriter, r *http.Request, err error) {
	s.Logger.Error("report_failed", "path", r.URL.Path, "error", err)
	httpx.WriteInternalError(w, r, "Failed to build report")
}

func parseReportParams(r *http.Request) (GetReportsParams, *appError) {
	q := r.URL.Query()
	var params GetReportsParams
	if v := q.Get("scope"); v != "" {
		params.Scope = &v
	}
	if v := q.Get("regions"); v != "" {
		params.Regions = &v
	}
	if v := q.Get("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil || year < 1900 || year > 9999 {
			return params, &appError{Status: http.StatusBadRequest, Code: "invalid_query", Message: "year must be a four-digit year"}
		}
		params.Year = &year
	}
	return params, nil
}

func derefOr(value *string, fallback string) string {
	if value == nil {
		return fallback
	}
	return *value
}

// ReportHandler adapts a report endpoint to a plain handler.
func (s *Server) ReportHandler(fn func(http.ResponseWriter, *http.Request, GetReportsParams)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, appErr := parseReportParams(r)
		if appErr != nil {
			appErr.write(w, r)
			return
		}
		fn(w, r, params)
	}
}
