package planning

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetroute/internal/events"
	"fleetroute/internal/matrix"
	"fleetroute/internal/model"
	"fleetroute/internal/opt"
	"fleetroute/internal/roadnet"
	"fleetroute/internal/store"
)

// testIndex is a two-way street 1-2-3 with 100m blocks plus node 9 that no
// road reaches.
func testIndex(t *testing.T) *roadnet.Index {
	t.Helper()
	g := roadnet.NewGraph()
	g.AddNode(1, 0, 0)
	g.AddNode(2, 0, 0.01)
	g.AddNode(3, 0, 0.02)
	g.AddNode(9, 1, 1)
	for _, e := range [][2]roadnet.NodeID{{1, 2}, {2, 3}} {
		require.NoError(t, g.AddEdge(e[0], e[1], 100))
		require.NoError(t, g.AddEdge(e[1], e[0], 100))
	}
	ix, err := roadnet.NewIndex(g)
	require.NoError(t, err)
	return ix
}

type env struct {
	st    *store.Memory
	svc   *Service
	depot model.Depot
}

func newEnv(t *testing.T, sv RouteSolver, depotLoc *model.Coordinate, opts ...Option) *env {
	t.Helper()
	ix := testIndex(t)
	st := store.NewMemory()
	if sv == nil {
		sv = opt.NewSolver(opt.DefaultOptions())
	}
	opts = append([]Option{WithPaths(ix)}, opts...)
	d, err := st.CreateDepot(context.Background(), model.Depot{Name: "hub", Location: depotLoc, Active: true})
	require.NoError(t, err)
	return &env{st: st, svc: NewService(st, matrix.NewBuilder(ix, 2, nil), sv, opts...), depot: d}
}

func (e *env) vehicle(t *testing.T, capacity int, active bool) model.Vehicle {
	t.Helper()
	v, err := e.st.CreateVehicle(context.Background(), model.Vehicle{DepotID: e.depot.ID, Plate: "V", Capacity: capacity, CostPerKm: 1, Active: active})
	require.NoError(t, err)
	return v
}

type stop struct {
	loc    model.Coordinate
	demand int
}

func (e *env) planning(t *testing.T, stops ...stop) (model.Planning, []model.Order) {
	t.Helper()
	ctx := context.Background()
	p, err := e.svc.Create(ctx, e.depot.ID, nil)
	require.NoError(t, err)
	var orders []model.Order
	for _, s := range stops {
		c, err := e.st.CreateCustomer(ctx, model.Customer{Name: "c", Location: s.loc, Active: true})
		require.NoError(t, err)
		o, err := e.st.CreateOrder(ctx, model.Order{CustomerID: c.ID, Demand: s.demand})
		require.NoError(t, err)
		require.NoError(t, e.svc.AttachOrder(ctx, p.ID, o.ID))
		orders = append(orders, o)
	}
	return p, orders
}

func (e *env) status(t *testing.T, id string) model.PlanningStatus {
	t.Helper()
	p, err := e.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return p.Status
}

var (
	depotLoc = &model.Coordinate{Lat: 0, Lon: 0}
	near     = model.Coordinate{Lat: 0, Lon: 0.01}
	far      = model.Coordinate{Lat: 0, Lon: 0.02}
	island   = model.Coordinate{Lat: 1, Lon: 1}
)

func TestOptimizeCommitsSingleRoute(t *testing.T) {
	e := newEnv(t, nil, depotLoc)
	v := e.vehicle(t, 8, true)
	p, orders := e.planning(t, stop{near, 4}, stop{far, 4})

	res, err := e.svc.Optimize(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanningReady, res.Planning.Status)
	require.Len(t, res.Routes, 1)
	rt := res.Routes[0]
	assert.Equal(t, v.ID, rt.VehicleID)
	assert.Equal(t, 8, rt.Load)
	assert.Equal(t, 400.0, rt.DistanceMeters)
	assert.InDelta(t, 0.4, rt.Cost, 1e-9)
	assert.InDelta(t, 400.0, res.Objective, 1e-9)

	seqs := map[int]bool{}
	for _, o := range orders {
		got, err := e.st.GetOrder(context.Background(), o.ID)
		require.NoError(t, err)
		assert.Equal(t, model.OrderAssigned, got.Status)
		require.NotNil(t, got.RouteID)
		assert.Equal(t, rt.ID, *got.RouteID)
		require.NotNil(t, got.Sequence)
		seqs[*got.Sequence] = true
	}
	assert.Equal(t, map[int]bool{1: true, 2: true}, seqs)

	runs := e.svc.Runs(p.ID)
	require.Len(t, runs, 1)
	assert.Equal(t, "ready", runs[0].Outcome)
}

func TestOptimizeCapacityBoundary(t *testing.T) {
	e := newEnv(t, nil, depotLoc)
	e.vehicle(t, 8, true)
	p, _ := e.planning(t, stop{near, 5}, stop{far, 3})
	_, err := e.svc.Optimize(context.Background(), p.ID)
	require.NoError(t, err)

	p2, _ := e.planning(t, stop{near, 9})
	_, err = e.svc.Optimize(context.Background(), p2.ID)
	require.ErrorIs(t, err, opt.ErrInfeasible)
	assert.Equal(t, "order demand exceeds vehicle capacity", FailureReason(err))
	assert.Equal(t, model.PlanningPending, e.status(t, p2.ID))
	routes, err := e.svc.Routes(context.Background(), p2.ID)
	require.NoError(t, err)
	assert.Empty(t, routes)
}

func TestOptimizeFailuresRevertToPending(t *testing.T) {
	cases := []struct {
		name     string
		depot    *model.Coordinate
		vehicles bool
		stops    []stop
		want     error
		outcome  string
	}{
		{"no active vehicles", depotLoc, false, []stop{{near, 1}}, ErrNoActiveVehicles, "no_vehicles"},
		{"no orders", depotLoc, true, nil, ErrNoOrders, "no_orders"},
		{"unreachable", depotLoc, true, []stop{{near, 1}, {island, 1}}, opt.ErrUnreachable, "unreachable"},
		{"missing depot location", nil, true, []stop{{near, 1}}, matrix.ErrMissingCoordinate, "missing_coordinates"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t, nil, tc.depot)
			e.vehicle(t, 10, tc.vehicles)
			p, orders := e.planning(t, tc.stops...)

			_, err := e.svc.Optimize(context.Background(), p.ID)
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, tc.outcome, Outcome(err))
			assert.NotEqual(t, "optimization failed", FailureReason(err))
			assert.Equal(t, model.PlanningPending, e.status(t, p.ID))
			for _, o := range orders {
				got, _ := e.st.GetOrder(context.Background(), o.ID)
				assert.Nil(t, got.RouteID)
				assert.Equal(t, model.OrderAwaiting, got.Status)
			}
		})
	}
}

func TestOptimizeRejectsNonPending(t *testing.T) {
	e := newEnv(t, nil, depotLoc)
	e.vehicle(t, 8, true)
	p, _ := e.planning(t, stop{near, 1})
	_, err := e.svc.Optimize(context.Background(), p.ID)
	require.NoError(t, err)

	_, err = e.svc.Optimize(context.Background(), p.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.NotErrorIs(t, err, ErrOptimizationInProgress)
	assert.Equal(t, model.PlanningReady, e.status(t, p.ID))

	_, err = e.svc.Optimize(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// blockingSolver parks until its context ends.
type blockingSolver struct{ started chan struct{} }

func (b *blockingSolver) Solve(ctx context.Context, p opt.Problem) (opt.Solution, opt.Metrics, error) {
	close(b.started)
	<-ctx.Done()
	return opt.Solution{}, opt.Metrics{}, ctx.Err()
}

func startOptimize(e *env, id string) <-chan error {
	done := make(chan error, 1)
	go func() {
		_, err := e.svc.Optimize(context.Background(), id)
		done <- err
	}()
	return done
}

func TestAbortRevertsToPending(t *testing.T) {
	bs := &blockingSolver{started: make(chan struct{})}
	e := newEnv(t, bs, depotLoc)
	e.vehicle(t, 8, true)
	p, _ := e.planning(t, stop{near, 1})

	done := startOptimize(e, p.ID)
	<-bs.started
	assert.Equal(t, model.PlanningOptimizing, e.status(t, p.ID))

	_, err := e.svc.Optimize(context.Background(), p.ID)
	require.ErrorIs(t, err, ErrOptimizationInProgress)
	assert.Equal(t, "optimization already in progress", FailureReason(err))

	require.NoError(t, e.svc.Abort(context.Background(), p.ID))
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrAborted)
		assert.Equal(t, "optimization aborted", FailureReason(err))
	case <-time.After(5 * time.Second):
		t.Fatal("optimize did not return after abort")
	}
	assert.Equal(t, model.PlanningPending, e.status(t, p.ID))
	assert.ErrorIs(t, e.svc.Abort(context.Background(), p.ID), ErrInvalidTransition)
}

func TestCancelWhileOptimizing(t *testing.T) {
	bs := &blockingSolver{started: make(chan struct{})}
	e := newEnv(t, bs, depotLoc)
	e.vehicle(t, 8, true)
	p, orders := e.planning(t, stop{near, 1})

	done := startOptimize(e, p.ID)
	<-bs.started
	got, err := e.svc.Cancel(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanningCancelled, got.Status)

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrAborted)
	case <-time.After(5 * time.Second):
		t.Fatal("optimize did not return after cancel")
	}
	assert.Equal(t, model.PlanningCancelled, e.status(t, p.ID))
	o, _ := e.st.GetOrder(context.Background(), orders[0].ID)
	assert.Nil(t, o.PlanningID)
}

// stubbornSolver ignores cancellation on its first call until released.
// Later calls park until their context ends.
type stubbornSolver struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (s *stubbornSolver) Solve(ctx context.Context, p opt.Problem) (opt.Solution, opt.Metrics, error) {
	s.started <- struct{}{}
	if s.calls.Add(1) == 1 {
		<-s.release
		return opt.Solution{}, opt.Metrics{}, nil
	}
	<-ctx.Done()
	return opt.Solution{}, opt.Metrics{}, ctx.Err()
}

func TestStaleRunCannotTouchItsSuccessor(t *testing.T) {
	sv := &stubbornSolver{started: make(chan struct{}, 2), release: make(chan struct{})}
	e := newEnv(t, sv, depotLoc)
	e.vehicle(t, 8, true)
	p, _ := e.planning(t, stop{near, 1})
	ctx := context.Background()

	first := startOptimize(e, p.ID)
	<-sv.started
	_, err := e.svc.Cancel(ctx, p.ID)
	require.NoError(t, err)
	_, err = e.svc.Restore(ctx, p.ID)
	require.NoError(t, err)
	c, err := e.st.CreateCustomer(ctx, model.Customer{Name: "c", Location: far, Active: true})
	require.NoError(t, err)
	o, err := e.st.CreateOrder(ctx, model.Order{CustomerID: c.ID, Demand: 2})
	require.NoError(t, err)
	require.NoError(t, e.svc.AttachOrder(ctx, p.ID, o.ID))

	second := startOptimize(e, p.ID)
	<-sv.started
	close(sv.release)
	select {
	case err := <-first:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stale optimize did not return")
	}

	pl, err := e.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanningOptimizing, pl.Status, "stale run reverted its successor")
	assert.NotEmpty(t, pl.RunID)
	routes, err := e.st.ListRoutes(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, routes)

	require.NoError(t, e.svc.Abort(ctx, p.ID), "stale run dropped its successor's abort handle")
	select {
	case err := <-second:
		require.ErrorIs(t, err, ErrAborted)
	case <-time.After(5 * time.Second):
		t.Fatal("optimize did not return after abort")
	}
	assert.Equal(t, model.PlanningPending, e.status(t, p.ID))
}

func TestCancelReadyThenRestore(t *testing.T) {
	e := newEnv(t, nil, depotLoc)
	e.vehicle(t, 8, true)
	p, orders := e.planning(t, stop{near, 2}, stop{far, 2}, stop{near, 2})
	_, err := e.svc.Optimize(context.Background(), p.ID)
	require.NoError(t, err)

	_, err = e.svc.Cancel(context.Background(), p.ID)
	require.NoError(t, err)
	for _, o := range orders {
		got, _ := e.st.GetOrder(context.Background(), o.ID)
		assert.Nil(t, got.PlanningID)
		assert.Nil(t, got.RouteID)
		assert.Nil(t, got.Sequence)
		assert.Equal(t, model.OrderAwaiting, got.Status)
	}
	_, err = e.svc.Cancel(context.Background(), p.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	restored, err := e.svc.Restore(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanningPending, restored.Status)
	assert.Empty(t, restored.OrderIDs)
	routes, _ := e.svc.Routes(context.Background(), p.ID)
	assert.Empty(t, routes)

	_, err = e.svc.Restore(context.Background(), p.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestExecuteDeliversOrders(t *testing.T) {
	e := newEnv(t, nil, depotLoc)
	e.vehicle(t, 8, true)
	p, orders := e.planning(t, stop{near, 1})

	_, err := e.svc.Execute(context.Background(), p.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = e.svc.Optimize(context.Background(), p.ID)
	require.NoError(t, err)
	got, err := e.svc.Execute(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanningExecuted, got.Status)
	o, _ := e.st.GetOrder(context.Background(), orders[0].ID)
	assert.Equal(t, model.OrderDelivered, o.Status)

	_, err = e.svc.Cancel(context.Background(), p.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAttachOutsidePending(t *testing.T) {
	e := newEnv(t, nil, depotLoc)
	e.vehicle(t, 8, true)
	p, _ := e.planning(t, stop{near, 1})
	_, err := e.svc.Optimize(context.Background(), p.ID)
	require.NoError(t, err)

	c, _ := e.st.CreateCustomer(context.Background(), model.Customer{Name: "late", Location: far})
	o, _ := e.st.CreateOrder(context.Background(), model.Order{CustomerID: c.ID, Demand: 1})
	err = e.svc.AttachOrder(context.Background(), p.ID, o.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestOptimizePublishesEvents(t *testing.T) {
	broker := events.NewMemory()
	e := newEnv(t, nil, depotLoc, WithEvents(broker))
	e.vehicle(t, 8, true)
	p, _ := e.planning(t, stop{near, 1})
	sub := broker.Subscribe(p.ID)
	defer broker.Unsubscribe(p.ID, sub)

	_, err := e.svc.Optimize(context.Background(), p.ID)
	require.NoError(t, err)
	first := <-sub
	second := <-sub
	assert.Equal(t, events.TypeOptimizing, first.Type)
	assert.Equal(t, events.TypeReady, second.Type)
	assert.Equal(t, p.ID, second.PlanningID)
}

func TestRoutePathFollowsRoads(t *testing.T) {
	e := newEnv(t, nil, depotLoc)
	e.vehicle(t, 8, true)
	p, _ := e.planning(t, stop{near, 4}, stop{far, 4})
	res, err := e.svc.Optimize(context.Background(), p.ID)
	require.NoError(t, err)

	path, err := e.svc.RoutePath(context.Background(), res.Routes[0].ID)
	require.NoError(t, err)
	want := []model.Coordinate{*depotLoc, near, far, near, *depotLoc}
	assert.Equal(t, want, path)

	_, err = e.svc.RoutePath(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConcurrentPlannings(t *testing.T) {
	e := newEnv(t, nil, depotLoc)
	e.vehicle(t, 8, true)
	e.vehicle(t, 8, true)
	var ids []string
	for i := 0; i < 4; i++ {
		p, _ := e.planning(t, stop{near, 3}, stop{far, 3})
		ids = append(ids, p.ID)
	}
	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = e.svc.Optimize(context.Background(), id)
		}()
	}
	wg.Wait()
	for i, id := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, model.PlanningReady, e.status(t, id))
	}
}

func TestFailureReasonFallback(t *testing.T) {
	assert.Empty(t, FailureReason(nil))
	assert.Equal(t, "optimization failed", FailureReason(errors.New("boom")))
	assert.Equal(t, "optimization timed out", FailureReason(context.DeadlineExceeded))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}
