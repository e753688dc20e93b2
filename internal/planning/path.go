package planning

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"fleetroute/internal/model"
	"fleetroute/internal/roadnet"
)

// ErrNoPathFinder is returned by RoutePath when the service has no road
// index to draw paths from.
var ErrNoPathFinder = errors.New("road paths unavailable")

type PathFinder interface {
	NearestNode(model.Coordinate) (roadnet.NodeID, error)
	Path(a, b roadnet.NodeID) ([]model.Coordinate, error)
}

func (s *Service) Get(ctx context.Context, planningID string) (model.Planning, error) {
	return s.store.GetPlanning(ctx, planningID)
}

func (s *Service) Routes(ctx context.Context, planningID string) ([]model.Route, error) {
	return s.store.ListRoutes(ctx, planningID)
}

// RoutePath returns the road geometry of a committed route: depot, each
// order in sequence, and back to the depot.
func (s *Service) RoutePath(ctx context.Context, routeID string) ([]model.Coordinate, error) {
	if s.paths == nil {
		return nil, ErrNoPathFinder
	}
	rt, err := s.store.GetRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}
	pl, err := s.store.GetPlanning(ctx, rt.PlanningID)
	if err != nil {
		return nil, err
	}
	depot, err := s.store.GetDepot(ctx, pl.DepotID)
	if err != nil {
		return nil, err
	}
	if depot.Location == nil {
		return nil, fmt.Errorf("depot %s: %w", depot.ID, errMissingLocation)
	}
	stops := make([]model.Order, 0, len(rt.OrderIDs))
	for _, oid := range rt.OrderIDs {
		o, err := s.store.GetOrder(ctx, oid)
		if err != nil {
			return nil, err
		}
		if o.Location == nil {
			return nil, fmt.Errorf("order %s: %w", o.ID, errMissingLocation)
		}
		stops = append(stops, o)
	}
	sort.SliceStable(stops, func(i, j int) bool { return seq(stops[i]) < seq(stops[j]) })

	waypoints := make([]model.Coordinate, 0, len(stops)+2)
	waypoints = append(waypoints, *depot.Location)
	for _, o := range stops {
		waypoints = append(waypoints, *o.Location)
	}
	waypoints = append(waypoints, *depot.Location)

	var out []model.Coordinate
	for i := 0; i+1 < len(waypoints); i++ {
		a, err := s.paths.NearestNode(waypoints[i])
		if err != nil {
			return nil, err
		}
		b, err := s.paths.NearestNode(waypoints[i+1])
		if err != nil {
			return nil, err
		}
		leg, err := s.paths.Path(a, b)
		if err != nil {
			return nil, err
		}
		if len(out) > 0 && len(leg) > 0 {
			leg = leg[1:]
		}
		out = append(out, leg...)
	}
	return out, nil
}

var errMissingLocation = errors.New("missing location")

func seq(o model.Order) int {
	if o.Sequence == nil {
		return 0
	}
	return *o.Sequence
}
