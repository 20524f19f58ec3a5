package handlers

import (
	"net/http"

	"github.com/fieldops-platform/apps/api/internal/audit"
	"github.com/fieldops-platform/apps/api/internal/httpx"
	"github.com/fieldops-platform/apps/api/internal/incident"
)

type putSnapshotsRequest struct {
	Snapshots []incident.DailySnapshot `json:"snapshots" validate:"required,min=1,max=5000,dive"`
}

type putSuppliersRequest struct {
	Suppliers []incident.SupplierMapping `json:"suppliers" validate:"required,min=1,max=1000,dive"`
}

func (s *Server) GetSuppliers(w http.ResponseWriter, r *http.Request) {
	mappings, err := s.Store.ListSuppliers(r.Context())
	if err != nil {
		httpx.WriteInternalError(w, r, "Failed to list suppliers")
		return
	}
	if mappings == nil {
		mappings = []incident.SupplierMapping{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": mappings})
}

// PutSuppliers upserts supplier mappings keyed by province.
func (s *Server) PutSuppliers(w http.ResponseWriter, r *http.Request) {
	var req putSuppliersRequest
	if appErr := s.decodeBody(r, &req); appErr != nil {
		appErr.write(w, r)
		return
	}
	if err := s.Store.UpsertSuppliers(r.Context(), req.Suppliers); err != nil {
		s.Logger.Error("upsert_suppliers_failed", "error", err)
		httpx.WriteInternalError(w, r, "Failed to save suppliers")
		return
	}
	s.logAudit(r, audit.Entry{
		Action:     "suppliers.upserted",
		EntityType: "supplier_mapping",
		Metadata:   map[string]any{"count": len(req.Suppliers)},
	})
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"upserted": len(req.Suppliers)})
}

// PutSnapshots stores daily snapshot rows produced by the scheduled job.
func (s *Server) PutSnapshots(w http.ResponseWriter, r *http.Request) {
	var req putSnapshotsRequest
	if appErr := s.decodeBody(r, &req); appErr != nil {
		appErr.write(w, r)
		return
	}
	if err := s.Store.UpsertSnapshots(r.Context(), req.Snapshots); err != nil {
		s.Logger.Error("upsert_snapshots_failed", "error", err)
		httpx.WriteInternalError(w, r, "Failed to save snapshots")
		return
	}
	s.logAudit(r, audit.Entry{
		Action:     "snapshots.upserted",
		EntityType: "daily_snapshot",
		Metadata:   map[string]any{"count": len(req.Snapshots)},
	})
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"upserted": len(req.Snapshots)})
}
