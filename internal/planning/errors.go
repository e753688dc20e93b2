package planning

import (
	"context"
	"errors"
	"fmt"

	"fleetroute/internal/matrix"
	"fleetroute/internal/opt"
	"fleetroute/internal/store"
)

var (
	ErrNoActiveVehicles  = errors.New("no active vehicles")
	ErrNoOrders          = errors.New("planning has no orders")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAborted           = errors.New("optimization aborted")

	// ErrOptimizationInProgress is returned when a planning is already being
	// optimized. It is an ErrInvalidTransition.
	ErrOptimizationInProgress = fmt.Errorf("%w: optimization already in progress", ErrInvalidTransition)
)

// FailureReason describes why an optimization failed in terms a dispatcher
// can act on.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoActiveVehicles):
		return "no active vehicles available at the depot"
	case errors.Is(err, ErrNoOrders):
		return "planning has no orders"
	case errors.Is(err, opt.ErrInfeasible):
		return "order demand exceeds vehicle capacity"
	case errors.Is(err, opt.ErrUnreachable):
		return "some delivery locations are unreachable by road"
	case errors.Is(err, matrix.ErrMissingCoordinate):
		return "depot or customer is missing coordinates"
	case errors.Is(err, ErrOptimizationInProgress):
		return "optimization already in progress"
	case errors.Is(err, ErrAborted), errors.Is(err, context.Canceled):
		return "optimization aborted"
	case errors.Is(err, context.DeadlineExceeded):
		return "optimization timed out"
	case errors.Is(err, ErrInvalidTransition):
		return "planning is not in a state that allows this operation"
	case errors.Is(err, store.ErrNotFound):
		return "planning not found"
	}
	return "optimization failed"
}

// Outcome is a short, stable label for metrics and run logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ready"
	case errors.Is(err, ErrNoActiveVehicles):
		return "no_vehicles"
	case errors.Is(err, ErrNoOrders):
		return "no_orders"
	case errors.Is(err, opt.ErrInfeasible):
		return "infeasible"
	case errors.Is(err, opt.ErrUnreachable):
		return "unreachable"
	case errors.Is(err, matrix.ErrMissingCoordinate):
		return "missing_coordinates"
	case errors.Is(err, ErrAborted), errors.Is(err, context.Canceled):
		return "aborted"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "error"
}
