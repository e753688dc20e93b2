package store

import (
	"context"
	"errors"
	"fmt"

	"fleetroute/internal/model"
)

// Store is the persistence interface used by the planning service and the API server.
type Store interface {
	Ping(ctx context.Context) error

	// Fleet and customers
	CreateDepot(ctx context.Context, d model.Depot) (model.Depot, error)
	GetDepot(ctx context.Context, id string) (model.Depot, error)
	ListDepots(ctx context.Context) ([]model.Depot, error)
	CreateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error)
	ListVehicles(ctx context.Context, depotID string, activeOnly bool) ([]model.Vehicle, error)
	CreateCustomer(ctx context.Context, c model.Customer) (model.Customer, error)
	GetCustomer(ctx context.Context, id string) (model.Customer, error)

	// Orders. Location is filled from the order's customer on every read.
	CreateOrder(ctx context.Context, o model.Order) (model.Order, error)
	GetOrder(ctx context.Context, id string) (model.Order, error)
	ListOrders(ctx context.Context, status model.OrderStatus, cursor string, limit int) (items []model.Order, nextCursor string, err error)

	// Plannings
	CreatePlanning(ctx context.Context, p model.Planning) (model.Planning, error)
	GetPlanning(ctx context.Context, id string) (model.Planning, error)
	ListPlannings(ctx context.Context, status model.PlanningStatus, cursor string, limit int) ([]model.Planning, string, error)
	PlanningOrders(ctx context.Context, planningID string) ([]model.Order, error)
	// AttachOrder adds an awaiting, unplanned order to a pending planning.
	AttachOrder(ctx context.Context, planningID, orderID string) error
	DetachOrder(ctx context.Context, planningID, orderID string) error

	// TransitionPlanning moves a planning from one status to another only if
	// it is currently in from and the lifecycle allows the move. It returns
	// ErrStatusConflict otherwise. Moves into or out of optimizing go through
	// StartRun, RevertRun and CommitPlan instead.
	TransitionPlanning(ctx context.Context, id string, from, to model.PlanningStatus) error
	// StartRun moves a pending planning to optimizing and stamps it with a
	// fresh run ID. Only that run may revert or commit it.
	StartRun(ctx context.Context, id string) (runID string, err error)
	// RevertRun moves the planning back to pending if runID still owns it.
	RevertRun(ctx context.Context, id, runID string) error
	// CommitPlan atomically stores the routes, assigns every routed order with
	// its route and sequence, and moves the planning from optimizing to ready.
	// It returns ErrStatusConflict unless runID still owns the planning.
	CommitPlan(ctx context.Context, planningID, runID string, drafts []model.RouteDraft) ([]model.Route, error)
	// CancelPlanning atomically moves the planning to cancelled from any of
	// the given statuses, deletes its routes and releases its orders.
	CancelPlanning(ctx context.Context, id string, from ...model.PlanningStatus) (released int, err error)
	// ExecutePlanning moves a ready planning to executed and marks its
	// routed orders delivered.
	ExecutePlanning(ctx context.Context, id string) error

	// Routes
	GetRoute(ctx context.Context, id string) (model.Route, error)
	ListRoutes(ctx context.Context, planningID string) ([]model.Route, error)
}

var (
	ErrNotFound         = errors.New("not found")
	ErrStatusConflict   = errors.New("status conflict")
	ErrOrderUnavailable = errors.New("order unavailable")
)

const (
	defaultPageSize = 100
	maxPageSize     = 500
)

// checkTransition rejects moves the planning lifecycle does not allow and
// moves that bypass run ownership.
func checkTransition(from, to model.PlanningStatus) error {
	if !model.CanTransition(from, to) {
		return fmt.Errorf("planning cannot move from %s to %s: %w", from, to, ErrStatusConflict)
	}
	if (from == model.PlanningOptimizing) != (to == model.PlanningOptimizing) && to != model.PlanningCancelled {
		return fmt.Errorf("planning %s -> %s needs a run: %w", from, to, ErrStatusConflict)
	}
	return nil
}

func ownedBy(p model.Planning, runID string) error {
	if p.Status != model.PlanningOptimizing {
		return fmt.Errorf("planning is %s: %w", p.Status, ErrStatusConflict)
	}
	if runID == "" || p.RunID != runID {
		return fmt.Errorf("planning is owned by another run: %w", ErrStatusConflict)
	}
	return nil
}

func pageSize(limit int) int {
	if limit <= 0 || limit > maxPageSize {
		return defaultPageSize
	}
	return limit
}
