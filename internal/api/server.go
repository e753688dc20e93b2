package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fleetroute/internal/auth"
	"fleetroute/internal/config"
	"fleetroute/internal/events"
	"fleetroute/internal/metrics"
	"fleetroute/internal/planning"
	"fleetroute/internal/store"
)

type Server struct {
	Store   store.Store
	Planner *planning.Service
	Broker  events.Broker
	Config  config.Config
	Log     *zap.Logger
	Auth    *auth.Verifier

	limiter *clientLimiter
}

func NewServer(st store.Store, planner *planning.Service, broker events.Broker, cfg config.Config, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	v, err := auth.NewVerifier(cfg.Auth.Mode, cfg.Auth.HMACSecret, cfg.Auth.RoleClaim)
	if err != nil {
		return nil, err
	}
	return &Server{
		Store:   st,
		Planner: planner,
		Broker:  broker,
		Config:  cfg,
		Log:     log,
		Auth:    v,
		limiter: newClientLimiter(cfg.Rate.RPS, cfg.Rate.Burst),
	}, nil
}

// Routes returns the full HTTP surface wrapped in logging and metrics
// middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	read := func(h http.HandlerFunc) http.HandlerFunc {
		return s.requireRole(h, auth.RoleViewer, auth.RoleDispatcher)
	}
	write := func(h http.HandlerFunc) http.HandlerFunc { return s.requireRole(h, auth.RoleDispatcher) }

	// Fleet and customers
	mux.HandleFunc("POST /v1/depots", write(s.CreateDepotHandler))
	mux.HandleFunc("GET /v1/depots", read(s.ListDepotsHandler))
	mux.HandleFunc("GET /v1/depots/{id}", read(s.GetDepotHandler))
	mux.HandleFunc("GET /v1/depots/{id}/vehicles", read(s.ListVehiclesHandler))
	mux.HandleFunc("POST /v1/vehicles", write(s.CreateVehicleHandler))
	mux.HandleFunc("POST /v1/customers", write(s.CreateCustomerHandler))
	mux.HandleFunc("GET /v1/customers/{id}", read(s.GetCustomerHandler))

	// Orders
	mux.HandleFunc("POST /v1/orders", write(s.CreateOrderHandler))
	mux.HandleFunc("POST /v1/orders/import", write(s.ImportOrdersHandler))
	mux.HandleFunc("GET /v1/orders", read(s.ListOrdersHandler))
	mux.HandleFunc("GET /v1/orders/{id}", read(s.GetOrderHandler))

	// Plannings
	mux.HandleFunc("POST /v1/plannings", write(s.CreatePlanningHandler))
	mux.HandleFunc("GET /v1/plannings", read(s.ListPlanningsHandler))
	mux.HandleFunc("GET /v1/plannings/{id}", read(s.GetPlanningHandler))
	mux.HandleFunc("POST /v1/plannings/{id}/orders", write(s.AttachOrdersHandler))
	mux.HandleFunc("DELETE /v1/plannings/{id}/orders/{orderId}", write(s.DetachOrderHandler))
	mux.Handle("POST /v1/plannings/{id}/optimize", s.rateLimit(write(s.OptimizeHandler)))
	mux.HandleFunc("POST /v1/plannings/{id}/abort", write(s.AbortHandler))
	mux.HandleFunc("POST /v1/plannings/{id}/cancel", write(s.CancelHandler))
	mux.HandleFunc("POST /v1/plannings/{id}/restore", write(s.RestoreHandler))
	mux.HandleFunc("POST /v1/plannings/{id}/execute", write(s.ExecuteHandler))
	mux.HandleFunc("GET /v1/plannings/{id}/routes", read(s.PlanningRoutesHandler))
	mux.HandleFunc("GET /v1/plannings/{id}/runs", read(s.PlanningRunsHandler))
	mux.HandleFunc("GET /v1/plannings/{id}/events/stream", read(s.EventStreamHandler))
	mux.HandleFunc("GET /v1/plannings/{id}/events/ws", read(s.EventWSHandler))

	// Routes
	mux.HandleFunc("GET /v1/routes/{id}", read(s.GetRouteHandler))
	mux.HandleFunc("GET /v1/routes/{id}/path", read(s.RoutePathHandler))

	// Docs
	mux.HandleFunc("GET /openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("GET /openapi.json", s.OpenAPIJSONHandler)
	mux.HandleFunc("GET /docs", s.DocsHandler)

	// Health, metrics, debug
	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.HandleFunc("GET /readyz", s.ReadyHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /debug/info", s.DebugJSON)

	return s.observe(mux)
}
