package handlers

import (
	"net/http"
	"strconv"
	"strings"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/fieldops-platform/apps/api/internal/audit"
	"github.com/fieldops-platform/apps/api/internal/httpx"
	"github.com/fieldops-platform/apps/api/internal/incident"
	"github.com/fieldops-platform/apps/api/internal/store"
)

const (
	defaultIncidentPageSize = 50
	maxIncidentPageSize     = 500
	historyLimit            = 100
)

// incidentView is the API shape of an incident: the stored columns plus the
// decoded notes log and parts request.
type incidentView struct {
	incident.Incident
	Open   bool            `json:"open"`
	Locker bool            `json:"locker"`
	Notes  []incident.Note `json:"notes"`
	Parts  []string        `json:"parts"`
}

func newIncidentView(inc incident.Incident) incidentView {
	notes := incident.DecodeNotes(incident.Deref(inc.NoteLaser))
	if notes == nil {
		notes = []incident.Note{}
	}
	parts := incident.PartsRequestOf(inc).Parts
	if parts == nil {
		parts = []string{}
	}
	return incidentView{
		Incident: inc,
		Open:     inc.IsOpen(),
		Locker:   inc.IsLocker(),
		Notes:    notes,
		Parts:    parts,
	}
}

type incidentListResponse struct {
	Items  []incidentView `json:"items"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type GetIncidentsParams struct {
	Region *string
	Stato  *string
	Open   *bool
	Locker *bool
	Q      *string
	Limit  *int
	Offset *int
}

type appendNoteRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

type partsRequest struct {
	Parts  []string `json:"parts" validate:"max=50,dive,max=120"`
	Device bool     `json:"device"`
}

type togglePartRequest struct {
	Part string `json:"part" validate:"required,max=120"`
}

type planningRequest struct {
	Date openapi_types.Date `json:"date"`
}

func (s *Server) GetIncidents(w http.ResponseWriter, r *http.Request, params GetIncidentsParams) {
	filter := store.IncidentFilter{
		Limit:  defaultIncidentPageSize,
		Locker: params.Locker,
	}
	if params.Region != nil {
		for _, region := range strings.Split(*params.Region, ",") {
			if trimmed := strings.TrimSpace(region); trimmed != "" {
				filter.Regions = append(filter.Regions, trimmed)
			}
		}
	}
	if params.Stato != nil {
		filter.Stato = strings.TrimSpace(*params.Stato)
	}
	if params.Open != nil {
		filter.OpenOnly = *params.Open
	}
	if params.Q != nil {
		filter.Search = strings.TrimSpace(*params.Q)
	}
	if params.Limit != nil {
		filter.Limit = min(max(*params.Limit, 1), maxIncidentPageSize)
	}
	if params.Offset != nil && *params.Offset > 0 {
		filter.Offset = *params.Offset
	}

	incidents, total, err := s.Store.ListIncidents(r.Context(), filter)
	if err != nil {
		s.Logger.Error("list_incidents_failed", "error", err)
		httpx.WriteInternalError(w, r, "Failed to list incidents")
		return
	}
	items := make([]incidentView, 0, len(incidents))
	for _, inc := range incidents {
		items = append(items, newIncidentView(inc))
	}
	httpx.WriteJSON(w, http.StatusOK, incidentListResponse{
		Items:  items,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

func (s *Server) GetIncidentsNumero(w http.ResponseWriter, r *http.Request, numero string) {
	inc, ok := s.loadIncident(w, r, numero)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newIncidentView(inc))
}

func (s *Server) GetIncidentsNumeroHistory(w http.ResponseWriter, r *http.Request, numero string) {
	if _, ok := s.loadIncident(w, r, numero); !ok {
		return
	}
	records, err := s.Store.ListAuditLog(r.Context(), "incident", numero, historyLimit)
	if err != nil {
		httpx.WriteInternalError(w, r, "Failed to load history")
		return
	}
	type historyEntry struct {
		Action    string `json:"action"`
		RequestID string `json:"requestId,omitempty"`
		Metadata  any    `json:"metadata"`
		CreatedAt string `json:"createdAt"`
	}
	out := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		out = append(out, historyEntry{
			Action:    rec.Action,
			RequestID: incident.Deref(rec.RequestID),
			Metadata:  rawJSON(rec.Metadata),
			CreatedAt: incident.FormatTimestamp(rec.CreatedAt),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) PostIncidentsNumeroNotes(w http.ResponseWriter, r *http.Request, numero string) {
	var req appendNoteRequest
	if appErr := s.decodeBody(r, &req); appErr != nil {
		appErr.write(w, r)
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, httpx.CodeValidation, "text must not be blank", nil)
		return
	}
	inc, ok := s.loadIncident(w, r, numero)
	if !ok {
		return
	}

	now := s.now().UTC()
	patch := incident.Row{
		incident.FieldNoteLaser: incident.AppendNote(incident.Deref(inc.NoteLaser), now, text),
		incident.FieldUpdatedAt: incident.FormatTimestamp(now),
	}
	s.applyIncidentPatch(w, r, numero, patch, "incident.note_added", map[string]any{"text": text})
}

func (s *Server) PutIncidentsNumeroParts(w http.ResponseWriter, r *http.Request, numero string) {
	var req partsRequest
	if appErr := s.decodeBody(r, &req); appErr != nil {
		appErr.write(w, r)
		return
	}
	if req.Device && len(req.Parts) > 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "parts_conflict", "A request is either a device or a list of parts", nil)
		return
	}
	inc, ok := s.loadIncident(w, r, numero)
	if !ok {
		return
	}

	now := s.now().UTC()
	pr := incident.PartsRequestOf(inc)
	pr.SelectDevice(req.Device, now)
	if !req.Device {
		pr.SelectParts(req.Parts, now)
	}
	s.applyPartsRequest(w, r, numero, pr, "incident.parts_updated")
}

func (s *Server) PostIncidentsNumeroPartsToggle(w http.ResponseWriter, r *http.Request, numero string) {
	var req togglePartRequest
	if appErr := s.decodeBody(r, &req); appErr != nil {
		appErr.write(w, r)
		return
	}
	inc, ok := s.loadIncident(w, r, numero)
	if !ok {
		return
	}
	pr := incident.PartsRequestOf(inc)
	pr.TogglePart(req.Part, s.now().UTC())
	s.applyPartsRequest(w, r, numero, pr, "incident.parts_updated")
}

func (s *Server) PostIncidentsNumeroPartsAdvance(w http.ResponseWriter, r *http.Request, numero string) {
	inc, ok := s.loadIncident(w, r, numero)
	if !ok {
		return
	}
	pr := incident.PartsRequestOf(inc)
	if !pr.Active() {
		httpx.WriteError(w, r, http.StatusConflict, "no_parts_request", "Incident has no outstanding parts request", nil)
		return
	}
	pr.Advance()
	s.applyPartsRequest(w, r, numero, pr, "incident.parts_advanced")
}

func (s *Server) PutIncidentsNumeroPlanning(w http.ResponseWriter, r *http.Request, numero string) {
	var req planningRequest
	if appErr := s.decodeBody(r, &req); appErr != nil {
		appErr.write(w, r)
		return
	}
	if req.Date.Time.IsZero() {
		httpx.WriteError(w, r, http.StatusBadRequest, httpx.CodeValidation, "date is required", nil)
		return
	}
	if _, ok := s.loadIncident(w, r, numero); !ok {
		return
	}
	planned := incident.FormatTimestamp(req.Date.Time)
	patch := incident.Row{
		incident.FieldPianificazione: planned,
		incident.FieldUpdatedAt:      incident.FormatTimestamp(s.now().UTC()),
	}
	s.applyIncidentPatch(w, r, numero, patch, "incident.planning_set", map[string]any{"pianificazione": planned})
}

func (s *Server) applyPartsRequest(w http.ResponseWriter, r *http.Request, numero string, pr incident.PartsRequest, action string) {
	patch := pr.Patch()
	patch[incident.FieldUpdatedAt] = incident.FormatTimestamp(s.now().UTC())
	s.applyIncidentPatch(w, r, numero, patch, action, map[string]any{
		"parts":  pr.Parts,
		"device": pr.Device,
		"state":  pr.State,
	})
}

func (s *Server) applyIncidentPatch(w http.ResponseWriter, r *http.Request, numero string, patch incident.Row, action string, metadata map[string]any) {
	found, err := s.Store.UpdateIncident(r.Context(), numero, patch)
	if err != nil {
		s.Logger.Error("update_incident_failed", "numero", numero, "error", err)
		httpx.WriteInternalError(w, r, "Failed to update incident")
		return
	}
	if !found {
		httpx.WriteError(w, r, http.StatusNotFound, "incident_not_found", "Incident not found", map[string]string{"numero": numero})
		return
	}
	s.logAudit(r, audit.Entry{
		Action:     action,
		EntityType: "incident",
		EntityID:   numero,
		Metadata:   metadata,
	})

	inc, ok := s.loadIncident(w, r, numero)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newIncidentView(inc))
}

// parseIncidentParams reads the list filters from the query string.
func parseIncidentParams(r *http.Request) (GetIncidentsParams, *appError) {
	q := r.URL.Query()
	var params GetIncidentsParams
	if v := q.Get("region"); v != "" {
		params.Region = &v
	}
	if v := q.Get("stato"); v != "" {
		params.Stato = &v
	}
	if v := q.Get("q"); v != "" {
		params.Q = &v
	}
	for name, dst := range map[string]**bool{"open": &params.Open, "locker": &params.Locker} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return params, &appError{Status: http.StatusBadRequest, Code: "invalid_query", Message: name + " must be a boolean"}
		}
		*dst = &b
	}
	for name, dst := range map[string]**int{"limit": &params.Limit, "offset": &params.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return params, &appError{Status: http.StatusBadRequest, Code: "invalid_query", Message: name + " must be a non-negative integer"}
		}
		*dst = &n
	}
	return params, nil
}

// ListIncidents parses the query string and serves GetIncidents.
func (s *Server) ListIncidents(w http.ResponseWriter, r *http.Request) {
	params, appErr := parseIncidentParams(r)
	if appErr != nil {
		appErr.write(w, r)
		return
	}
	s.GetIncidents(w, r, params)
}
