package planning

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"fleetroute/internal/events"
	"fleetroute/internal/matrix"
	"fleetroute/internal/metrics"
	"fleetroute/internal/model"
	"fleetroute/internal/opt"
	"fleetroute/internal/store"
)

type MatrixBuilder interface {
	Build(ctx context.Context, depot *model.Coordinate, orders []*model.Coordinate) (matrix.Matrix, error)
}

type RouteSolver interface {
	Solve(ctx context.Context, p opt.Problem) (opt.Solution, opt.Metrics, error)
}

// Result is what a successful optimization committed.
type Result struct {
	Planning  model.Planning `json:"planning"`
	Routes    []model.Route  `json:"routes"`
	Objective float64        `json:"objective"`
	Metrics   opt.Metrics    `json:"metrics"`
}

// Service drives the planning lifecycle:
//
//	pending -> optimizing -> ready -> executed
//	   ^           |
//	   +-----------+ (any failure)
//	pending|optimizing|ready -> cancelled -> pending (restore)
//
// The store's compare-and-swap on pending -> optimizing is the exclusive
// lock for a run and stamps the planning with the run's ID. A run that has
// lost the planning to cancel or restore can no longer revert or commit it,
// nor touch the abort handle of the run that replaced it.
type Service struct {
	store  store.Store
	matrix MatrixBuilder
	solver RouteSolver
	paths  PathFinder
	events events.Broker
	runs   *opt.RunLog
	log    *zap.Logger

	mu       sync.Mutex
	inflight map[string]runHandle
}

type runHandle struct {
	runID  string
	cancel context.CancelCauseFunc
}

type Option func(*Service)

func WithEvents(b events.Broker) Option { return func(s *Service) { s.events = b } }
func WithRunLog(l *opt.RunLog) Option   { return func(s *Service) { s.runs = l } }
func WithLogger(l *zap.Logger) Option   { return func(s *Service) { s.log = l } }
func WithPaths(p PathFinder) Option     { return func(s *Service) { s.paths = p } }

func NewService(st store.Store, mb MatrixBuilder, sv RouteSolver, opts ...Option) *Service {
	s := &Service{
		store:    st,
		matrix:   mb,
		solver:   sv,
		events:   events.NewMemory(),
		runs:     opt.NewRunLog(10),
		log:      zap.NewNop(),
		inflight: map[string]runHandle{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Runs(planningID string) []opt.Run { return s.runs.Runs(planningID) }

func (s *Service) Create(ctx context.Context, depotID string, deadline *time.Time) (model.Planning, error) {
	return s.store.CreatePlanning(ctx, model.Planning{DepotID: depotID, Deadline: deadline})
}

func (s *Service) AttachOrder(ctx context.Context, planningID, orderID string) error {
	return s.mapConflict(ctx, planningID, s.store.AttachOrder(ctx, planningID, orderID))
}

func (s *Service) DetachOrder(ctx context.Context, planningID, orderID string) error {
	return s.mapConflict(ctx, planningID, s.store.DetachOrder(ctx, planningID, orderID))
}

// Optimize runs one synchronous optimization. On any failure the planning
// is returned to pending with no routes.
func (s *Service) Optimize(ctx context.Context, planningID string) (Result, error) {
	start := time.Now()
	runID, err := s.store.StartRun(ctx, planningID)
	if err != nil {
		return Result{}, s.mapConflict(ctx, planningID, err)
	}
	runCtx, cancel := context.WithCancelCause(ctx)
	s.track(planningID, runHandle{runID: runID, cancel: cancel})
	defer func() {
		s.untrack(planningID, runID)
		cancel(nil)
	}()
	s.publish(planningID, events.TypeOptimizing, nil)
	log := s.log.With(zap.String("planningId", planningID), zap.String("runId", runID))
	log.Info("optimization started")

	res, err := s.run(runCtx, planningID, runID)
	if err != nil && errors.Is(context.Cause(runCtx), ErrAborted) {
		err = fmt.Errorf("%w: %v", ErrAborted, err)
	}
	elapsed := time.Since(start)
	metrics.OptimizeDuration.Observe(elapsed.Seconds())
	metrics.Optimizations.WithLabelValues(Outcome(err)).Inc()
	s.runs.Record(opt.Run{PlanningID: planningID, Outcome: Outcome(err), Metrics: res.Metrics, FinishedAt: time.Now().UTC()})

	if err != nil {
		s.revert(ctx, planningID, runID)
		log.Info("optimization failed", zap.String("reason", FailureReason(err)), zap.Error(err), zap.Duration("took", elapsed))
		s.publish(planningID, events.TypeFailed, map[string]any{"reason": FailureReason(err)})
		return Result{}, err
	}
	log.Info("optimization committed",
		zap.Int("routes", len(res.Routes)),
		zap.Float64("objective", res.Objective),
		zap.Duration("took", elapsed))
	s.publish(planningID, events.TypeReady, map[string]any{"routes": len(res.Routes), "objective": res.Objective})
	return res, nil
}

func (s *Service) run(ctx context.Context, planningID, runID string) (Result, error) {
	pl, err := s.store.GetPlanning(ctx, planningID)
	if err != nil {
		return Result{}, err
	}
	depot, err := s.store.GetDepot(ctx, pl.DepotID)
	if err != nil {
		return Result{}, fmt.Errorf("depot %s: %w", pl.DepotID, err)
	}
	vehicles, err := s.store.ListVehicles(ctx, pl.DepotID, true)
	if err != nil {
		return Result{}, err
	}
	if len(vehicles) == 0 {
		return Result{}, ErrNoActiveVehicles
	}
	orders, err := s.store.PlanningOrders(ctx, planningID)
	if err != nil {
		return Result{}, err
	}
	if len(orders) == 0 {
		return Result{}, ErrNoOrders
	}
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })

	coords := make([]*model.Coordinate, len(orders))
	for i, o := range orders {
		coords[i] = o.Location
	}
	buildStart := time.Now()
	dist, err := s.matrix.Build(ctx, depot.Location, coords)
	if err != nil {
		return Result{}, err
	}
	metrics.MatrixBuildDuration.Observe(time.Since(buildStart).Seconds())

	sol, m, err := s.solver.Solve(ctx, problemFor(dist, orders, vehicles))
	if err != nil {
		return Result{Metrics: m}, err
	}
	drafts := draftsFor(sol, orders, vehicles)
	if err := ctx.Err(); err != nil {
		return Result{Metrics: m}, err
	}
	routes, err := s.store.CommitPlan(ctx, planningID, runID, drafts)
	if err != nil {
		return Result{Metrics: m}, fmt.Errorf("commit plan: %w", err)
	}
	for _, r := range routes {
		metrics.RouteDistance.Observe(r.DistanceMeters)
	}
	pl, err = s.store.GetPlanning(ctx, planningID)
	if err != nil {
		return Result{}, err
	}
	return Result{Planning: pl, Routes: routes, Objective: sol.Objective, Metrics: m}, nil
}

func problemFor(dist matrix.Matrix, orders []model.Order, vehicles []model.Vehicle) opt.Problem {
	p := opt.Problem{
		Distances:       dist,
		Demands:         make([]int, len(orders)+1),
		Capacities:      make([]int, len(vehicles)),
		CostMultipliers: make([]float64, len(vehicles)),
	}
	for i, o := range orders {
		p.Demands[i+1] = o.Demand
	}
	for i, v := range vehicles {
		p.Capacities[i] = v.Capacity
		p.CostMultipliers[i] = v.CostPerKm
	}
	return p
}

// draftsFor maps solver node indices back to orders. Node k is orders[k-1];
// an order's sequence is its position in the tour, the depot being 0.
func draftsFor(sol opt.Solution, orders []model.Order, vehicles []model.Vehicle) []model.RouteDraft {
	used := make([]int, 0, len(sol.Routes))
	for v := range sol.Routes {
		used = append(used, v)
	}
	sort.Ints(used)
	drafts := make([]model.RouteDraft, 0, len(used))
	for _, v := range used {
		rr := sol.Routes[v]
		d := model.RouteDraft{
			VehicleID:      vehicles[v].ID,
			DistanceMeters: rr.Distance,
			Load:           rr.Load,
			Cost:           rr.Distance / 1000 * vehicles[v].CostPerKm,
		}
		for _, node := range rr.Nodes[1 : len(rr.Nodes)-1] {
			d.OrderIDs = append(d.OrderIDs, orders[node-1].ID)
		}
		drafts = append(drafts, d)
	}
	return drafts
}

// revert puts the planning back to pending if runID still owns it. It runs
// on a context detached from the caller so an aborted request still
// restores the state.
func (s *Service) revert(parent context.Context, planningID, runID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), 5*time.Second)
	defer cancel()
	err := s.store.RevertRun(ctx, planningID, runID)
	if err != nil && !errors.Is(err, store.ErrStatusConflict) {
		s.log.Error("revert to pending failed", zap.String("planningId", planningID), zap.Error(err))
	}
}

// Abort signals the in-flight optimization of planningID to stop.
func (s *Service) Abort(ctx context.Context, planningID string) error {
	s.mu.Lock()
	h, ok := s.inflight[planningID]
	s.mu.Unlock()
	if ok {
		h.cancel(ErrAborted)
		return nil
	}
	pl, err := s.store.GetPlanning(ctx, planningID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: no optimization running for a %s planning", ErrInvalidTransition, pl.Status)
}

// Cancel releases every order of the planning, deletes its routes and marks
// it cancelled. A running optimization is aborted.
func (s *Service) Cancel(ctx context.Context, planningID string) (model.Planning, error) {
	released, err := s.store.CancelPlanning(ctx, planningID,
		model.PlanningPending, model.PlanningOptimizing, model.PlanningReady)
	if err != nil {
		return model.Planning{}, s.mapConflict(ctx, planningID, err)
	}
	s.mu.Lock()
	if h, ok := s.inflight[planningID]; ok {
		h.cancel(ErrAborted)
	}
	s.mu.Unlock()
	s.log.Info("planning cancelled", zap.String("planningId", planningID), zap.Int("released", released))
	s.publish(planningID, events.TypeCancelled, map[string]any{"releasedOrders": released})
	return s.store.GetPlanning(ctx, planningID)
}

// Restore brings a cancelled planning back to pending. It comes back with
// no orders since cancelling released them.
func (s *Service) Restore(ctx context.Context, planningID string) (model.Planning, error) {
	if err := s.store.TransitionPlanning(ctx, planningID, model.PlanningCancelled, model.PlanningPending); err != nil {
		return model.Planning{}, s.mapConflict(ctx, planningID, err)
	}
	s.publish(planningID, events.TypeRestored, nil)
	return s.store.GetPlanning(ctx, planningID)
}

func (s *Service) Execute(ctx context.Context, planningID string) (model.Planning, error) {
	if err := s.store.ExecutePlanning(ctx, planningID); err != nil {
		return model.Planning{}, s.mapConflict(ctx, planningID, err)
	}
	s.publish(planningID, events.TypeExecuted, nil)
	return s.store.GetPlanning(ctx, planningID)
}

// mapConflict turns a store status conflict into the lifecycle error the
// caller should see.
func (s *Service) mapConflict(ctx context.Context, planningID string, err error) error {
	if err == nil || !errors.Is(err, store.ErrStatusConflict) {
		return err
	}
	pl, gerr := s.store.GetPlanning(ctx, planningID)
	if gerr == nil && pl.Status == model.PlanningOptimizing {
		return ErrOptimizationInProgress
	}
	return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
}

func (s *Service) track(id string, h runHandle) {
	s.mu.Lock()
	s.inflight[id] = h
	s.mu.Unlock()
}

// untrack drops the handle only if it still belongs to runID; a newer run
// may have replaced it.
func (s *Service) untrack(id, runID string) {
	s.mu.Lock()
	if h, ok := s.inflight[id]; ok && h.runID == runID {
		delete(s.inflight, id)
	}
	s.mu.Unlock()
}

func (s *Service) publish(planningID, typ string, data map[string]any) {
	s.events.Publish(planningID, events.Event{Type: typ, PlanningID: planningID, Data: data, At: time.Now().UTC()})
}
