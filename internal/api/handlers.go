package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"fleetroute/internal/model"
)

// CreateDepotHandler handles POST /v1/depots
func (s *Server) CreateDepotHandler(w http.ResponseWriter, r *http.Request) {
	var req depotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		badRequest(w, r, err)
		return
	}
	d, err := s.Store.CreateDepot(r.Context(), model.Depot{
		Name:     req.Name,
		Address:  req.Address,
		Location: req.Location,
		Active:   boolOr(req.Active, true),
	})
	if err != nil {
		s.writeError(w, r, "Create depot failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) ListDepotsHandler(w http.ResponseWriter, r *http.Request) {
	items, err := s.Store.ListDepots(r.Context())
	if err != nil {
		s.writeError(w, r, "List depots failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) GetDepotHandler(w http.ResponseWriter, r *http.Request) {
	d, err := s.Store.GetDepot(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "Depot not found", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ListVehiclesHandler handles GET /v1/depots/{id}/vehicles?active=true
func (s *Server) ListVehiclesHandler(w http.ResponseWriter, r *http.Request) {
	activeOnly := false
	if v := r.URL.Query().Get("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(w, r, err)
			return
		}
		activeOnly = b
	}
	id := r.PathValue("id")
	if _, err := s.Store.GetDepot(r.Context(), id); err != nil {
		s.writeError(w, r, "Depot not found", err)
		return
	}
	items, err := s.Store.ListVehicles(r.Context(), id, activeOnly)
	if err != nil {
		s.writeError(w, r, "List vehicles failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) CreateVehicleHandler(w http.ResponseWriter, r *http.Request) {
	var req vehicleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		badRequest(w, r, err)
		return
	}
	v, err := s.Store.CreateVehicle(r.Context(), model.Vehicle{
		DepotID:   req.DepotID,
		Model:     req.Model,
		Plate:     req.Plate,
		Capacity:  req.Capacity,
		CostPerKm: req.CostPerKm,
		Active:    boolOr(req.Active, true),
	})
	if err != nil {
		s.writeError(w, r, "Create vehicle failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) CreateCustomerHandler(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		badRequest(w, r, err)
		return
	}
	c, err := s.Store.CreateCustomer(r.Context(), model.Customer{
		Name:     req.Name,
		Email:    req.Email,
		Address:  req.Address,
		Location: *req.Location,
		Active:   boolOr(req.Active, true),
	})
	if err != nil {
		s.writeError(w, r, "Create customer failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) GetCustomerHandler(w http.ResponseWriter, r *http.Request) {
	c, err := s.Store.GetCustomer(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "Customer not found", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// CreateOrderHandler handles POST /v1/orders
func (s *Server) CreateOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		badRequest(w, r, err)
		return
	}
	o, err := s.Store.CreateOrder(r.Context(), model.Order{CustomerID: req.CustomerID, Demand: req.Demand})
	if err != nil {
		s.writeError(w, r, "Create order failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// ListOrdersHandler handles GET /v1/orders?status=&cursor=&limit=
func (s *Server) ListOrdersHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var status model.OrderStatus
	if v := q.Get("status"); v != "" {
		st, err := model.ParseOrderStatus(v)
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
	items, next, err := s.Store.ListOrders(r.Context(), status, q.Get("cursor"), limit)
	if err != nil {
		s.writeError(w, r, "List orders failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	o, err := s.Store.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "Order not found", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) GetRouteHandler(w http.ResponseWriter, r *http.Request) {
	rt, err := s.Store.GetRoute(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "Route not found", err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

// RoutePathHandler handles GET /v1/routes/{id}/path: the road geometry the
// vehicle drives, depot to depot.
func (s *Server) RoutePathHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	pts, err := s.Planner.RoutePath(r.Context(), id)
	if err != nil {
		s.writeError(w, r, "Route path failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"routeId": id, "points": pts})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	// the Redis broker is the only one with a remote dependency
	type pinger interface {
		Ping(ctx context.Context) error
	}
	if pb, ok := s.Broker.(pinger); ok {
		if err := pb.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be a non-negative integer", r.URL.Path)
		return 0, false
	}
	return n, true
}
