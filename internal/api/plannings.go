package api

import (
	"net/http"

	"fleetroute/internal/model"
)

// CreatePlanningHandler handles POST /v1/plannings
func (s *Server) CreatePlanningHandler(w http.ResponseWriter, r *http.Request) {
	var req planningRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		badRequest(w, r, err)
		return
	}
	p, err := s.Planner.Create(r.Context(), req.DepotID, req.Deadline)
	if err != nil {
		s.writeError(w, r, "Create planning failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ListPlanningsHandler handles GET /v1/plannings?status=&cursor=&limit=
func (s *Server) ListPlanningsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var status model.PlanningStatus
	if v := q.Get("status"); v != "" {
		st, err := model.ParsePlanningStatus(v)
		if err != nil {
			badRequest(w, r, err)
			return
		}
		status = st
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	items, next, err := s.Store.ListPlannings(r.Context(), status, q.Get("cursor"), limit)
	if err != nil {
		s.writeError(w, r, "List plannings failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) GetPlanningHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.Planner.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "Planning not found", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// AttachOrdersHandler handles POST /v1/plannings/{id}/orders. Orders are
// attached one at a time; the response lists what was attached before any
// failure.
func (s *Server) AttachOrdersHandler(w http.ResponseWriter, r *http.Request) {
	var req attachRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		badRequest(w, r, err)
		return
	}
	id := r.PathValue("id")
	for _, oid := range req.OrderIDs {
		if err := s.Planner.AttachOrder(r.Context(), id, oid); err != nil {
			s.writeError(w, r, "Attach order "+oid+" failed", err)
			return
		}
	}
	p, err := s.Planner.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, "Planning not found", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) DetachOrderHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Planner.DetachOrder(r.Context(), r.PathValue("id"), r.PathValue("orderId")); err != nil {
		s.writeError(w, r, "Detach order failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// OptimizeHandler handles POST /v1/plannings/{id}/optimize. The run is
// synchronous; the response carries the committed routes.
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	res, err := s.Planner.Optimize(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "Optimization failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) AbortHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Planner.Abort(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, "Abort failed", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"aborting": true})
}

func (s *Server) CancelHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.Planner.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "Cancel failed", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) RestoreHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.Planner.Restore(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "Restore failed", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) ExecuteHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.Planner.Execute(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "Execute failed", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) PlanningRoutesHandler(w http.ResponseWriter, r *http.Request) {
	items, err := s.Planner.Routes(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "List routes failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// PlanningRunsHandler handles GET /v1/plannings/{id}/runs: solver metrics
// of the most recent optimization attempts in this process.
func (s *Server) PlanningRunsHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.Planner.Get(r.Context(), id); err != nil {
		s.writeError(w, r, "Planning not found", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": s.Planner.Runs(id)})
}
