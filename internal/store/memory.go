package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetroute/internal/model"
)

// Memory is an in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu         sync.Mutex
	depots     map[string]model.Depot
	depotIDs   []string
	vehicles   map[string]model.Vehicle
	vehicleIDs []string
	customers  map[string]model.Customer
	orders     map[string]model.Order // Location never stored; filled on read
	orderIDs   []string
	plannings  map[string]model.Planning // OrderIDs derived from orders on read
	planIDs    []string
	routes     map[string]model.Route
	routeIDs   []string
	now        func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		depots:    map[string]model.Depot{},
		vehicles:  map[string]model.Vehicle{},
		customers: map[string]model.Customer{},
		orders:    map[string]model.Order{},
		plannings: map[string]model.Planning{},
		routes:    map[string]model.Route{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) CreateDepot(ctx context.Context, d model.Depot) (model.Depot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = uuid.New().String()
	if d.Location != nil {
		loc := *d.Location
		d.Location = &loc
	}
	m.depots[d.ID] = d
	m.depotIDs = append(m.depotIDs, d.ID)
	return cloneDepot(d), nil
}

func (m *Memory) GetDepot(ctx context.Context, id string) (model.Depot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.depots[id]
	if !ok {
		return model.Depot{}, ErrNotFound
	}
	return cloneDepot(d), nil
}

func (m *Memory) ListDepots(ctx context.Context) ([]model.Depot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Depot, 0, len(m.depotIDs))
	for _, id := range m.depotIDs {
		out = append(out, cloneDepot(m.depots[id]))
	}
	return out, nil
}

func (m *Memory) CreateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.depots[v.DepotID]; !ok {
		return model.Vehicle{}, fmt.Errorf("depot %s: %w", v.DepotID, ErrNotFound)
	}
	v.ID = uuid.New().String()
	m.vehicles[v.ID] = v
	m.vehicleIDs = append(m.vehicleIDs, v.ID)
	return v, nil
}

// ListVehicles returns vehicles in creation order.
func (m *Memory) ListVehicles(ctx context.Context, depotID string, activeOnly bool) ([]model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Vehicle{}
	for _, id := range m.vehicleIDs {
		v := m.vehicles[id]
		if depotID != "" && v.DepotID != depotID {
			continue
		}
		if activeOnly && !v.Active {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (m *Memory) CreateCustomer(ctx context.Context, c model.Customer) (model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = uuid.New().String()
	m.customers[c.ID] = c
	return c, nil
}

func (m *Memory) GetCustomer(ctx context.Context, id string) (model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return model.Customer{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) CreateOrder(ctx context.Context, o model.Order) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.customers[o.CustomerID]; !ok {
		return model.Order{}, fmt.Errorf("customer %s: %w", o.CustomerID, ErrNotFound)
	}
	o.ID = uuid.New().String()
	o.Status = model.OrderAwaiting
	o.PlanningID, o.RouteID, o.Sequence, o.Location = nil, nil, nil, nil
	o.CreatedAt = m.now()
	m.orders[o.ID] = o
	m.orderIDs = append(m.orderIDs, o.ID)
	return m.readOrder(o), nil
}

func (m *Memory) GetOrder(ctx context.Context, id string) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	return m.readOrder(o), nil
}

func (m *Memory) ListOrders(ctx context.Context, status model.OrderStatus, cursor string, limit int) ([]model.Order, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = pageSize(limit)
	out := []model.Order{}
	var next string
	for _, id := range m.orderIDs[startAfter(m.orderIDs, cursor):] {
		o := m.orders[id]
		if status != "" && o.Status != status {
			continue
		}
		if len(out) == limit {
			next = out[len(out)-1].ID
			break
		}
		out = append(out, m.readOrder(o))
	}
	return out, next, nil
}

func (m *Memory) CreatePlanning(ctx context.Context, p model.Planning) (model.Planning, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.depots[p.DepotID]; !ok {
		return model.Planning{}, fmt.Errorf("depot %s: %w", p.DepotID, ErrNotFound)
	}
	p.ID = uuid.New().String()
	p.Status = model.PlanningPending
	p.CreatedAt = m.now()
	p.OrderIDs = nil
	m.plannings[p.ID] = p
	m.planIDs = append(m.planIDs, p.ID)
	return m.readPlanning(p), nil
}

func (m *Memory) GetPlanning(ctx context.Context, id string) (model.Planning, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plannings[id]
	if !ok {
		return model.Planning{}, ErrNotFound
	}
	return m.readPlanning(p), nil
}

func (m *Memory) ListPlannings(ctx context.Context, status model.PlanningStatus, cursor string, limit int) ([]model.Planning, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = pageSize(limit)
	out := []model.Planning{}
	var next string
	for _, id := range m.planIDs[startAfter(m.planIDs, cursor):] {
		p := m.plannings[id]
		if status != "" && p.Status != status {
			continue
		}
		if len(out) == limit {
			next = out[len(out)-1].ID
			break
		}
		out = append(out, m.readPlanning(p))
	}
	return out, next, nil
}

// PlanningOrders returns the planning's orders sorted by ID.
func (m *Memory) PlanningOrders(ctx context.Context, planningID string) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plannings[planningID]; !ok {
		return nil, ErrNotFound
	}
	out := []model.Order{}
	for _, id := range m.planningOrderIDs(planningID) {
		out = append(out, m.readOrder(m.orders[id]))
	}
	return out, nil
}

func (m *Memory) AttachOrder(ctx context.Context, planningID, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plannings[planningID]
	if !ok {
		return fmt.Errorf("planning %s: %w", planningID, ErrNotFound)
	}
	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if p.Status != model.PlanningPending {
		return fmt.Errorf("planning is %s: %w", p.Status, ErrStatusConflict)
	}
	if o.PlanningID != nil || o.Status != model.OrderAwaiting {
		return fmt.Errorf("order %s is %s: %w", orderID, o.Status, ErrOrderUnavailable)
	}
	pid := planningID
	o.PlanningID = &pid
	m.orders[orderID] = o
	return nil
}

func (m *Memory) DetachOrder(ctx context.Context, planningID, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plannings[planningID]
	if !ok {
		return fmt.Errorf("planning %s: %w", planningID, ErrNotFound)
	}
	o, ok := m.orders[orderID]
	if !ok || o.PlanningID == nil || *o.PlanningID != planningID {
		return fmt.Errorf("order %s in planning %s: %w", orderID, planningID, ErrNotFound)
	}
	if p.Status != model.PlanningPending {
		return fmt.Errorf("planning is %s: %w", p.Status, ErrStatusConflict)
	}
	o.PlanningID = nil
	m.orders[orderID] = o
	return nil
}

func (m *Memory) TransitionPlanning(ctx context.Context, id string, from, to model.PlanningStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plannings[id]
	if !ok {
		return ErrNotFound
	}
	if err := checkTransition(from, to); err != nil {
		return err
	}
	if p.Status != from {
		return fmt.Errorf("planning is %s, not %s: %w", p.Status, from, ErrStatusConflict)
	}
	p.Status = to
	m.plannings[id] = p
	return nil
}

func (m *Memory) StartRun(ctx context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plannings[id]
	if !ok {
		return "", ErrNotFound
	}
	if p.Status != model.PlanningPending {
		return "", fmt.Errorf("planning is %s, not %s: %w", p.Status, model.PlanningPending, ErrStatusConflict)
	}
	p.Status = model.PlanningOptimizing
	p.RunID = uuid.New().String()
	m.plannings[id] = p
	return p.RunID, nil
}

func (m *Memory) RevertRun(ctx context.Context, id, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plannings[id]
	if !ok {
		return ErrNotFound
	}
	if err := ownedBy(p, runID); err != nil {
		return err
	}
	p.Status = model.PlanningPending
	p.RunID = ""
	m.plannings[id] = p
	return nil
}

func (m *Memory) CommitPlan(ctx context.Context, planningID, runID string, drafts []model.RouteDraft) ([]model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plannings[planningID]
	if !ok {
		return nil, ErrNotFound
	}
	if err := ownedBy(p, runID); err != nil {
		return nil, fmt.Errorf("commit plan: %w", err)
	}
	// validate everything before touching state so a failure leaves no trace
	for _, d := range drafts {
		if _, ok := m.vehicles[d.VehicleID]; !ok {
			return nil, fmt.Errorf("vehicle %s: %w", d.VehicleID, ErrNotFound)
		}
		for _, oid := range d.OrderIDs {
			o, ok := m.orders[oid]
			if !ok || o.PlanningID == nil || *o.PlanningID != planningID {
				return nil, fmt.Errorf("order %s: %w", oid, ErrOrderUnavailable)
			}
		}
	}
	now := m.now()
	out := make([]model.Route, 0, len(drafts))
	for _, d := range drafts {
		r := model.Route{
			ID:             uuid.New().String(),
			PlanningID:     planningID,
			VehicleID:      d.VehicleID,
			DistanceMeters: d.DistanceMeters,
			Load:           d.Load,
			Cost:           d.Cost,
			OrderIDs:       slices.Clone(d.OrderIDs),
			CreatedAt:      now,
		}
		m.routes[r.ID] = r
		m.routeIDs = append(m.routeIDs, r.ID)
		for i, oid := range d.OrderIDs {
			o := m.orders[oid]
			rid, seq := r.ID, i+1
			o.RouteID, o.Sequence = &rid, &seq
			o.Status = model.OrderAssigned
			m.orders[oid] = o
		}
		out = append(out, cloneRoute(r))
	}
	p.Status = model.PlanningReady
	p.RunID = ""
	m.plannings[planningID] = p
	return out, nil
}

func (m *Memory) CancelPlanning(ctx context.Context, id string, from ...model.PlanningStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plannings[id]
	if !ok {
		return 0, ErrNotFound
	}
	if !slices.Contains(from, p.Status) {
		return 0, fmt.Errorf("cancel: planning is %s: %w", p.Status, ErrStatusConflict)
	}
	if err := checkTransition(p.Status, model.PlanningCancelled); err != nil {
		return 0, err
	}
	released := 0
	for _, oid := range m.planningOrderIDs(id) {
		o := m.orders[oid]
		o.PlanningID, o.RouteID, o.Sequence = nil, nil, nil
		if o.Status == model.OrderAssigned {
			o.Status = model.OrderAwaiting
		}
		m.orders[oid] = o
		released++
	}
	m.routeIDs = slices.DeleteFunc(m.routeIDs, func(rid string) bool {
		if m.routes[rid].PlanningID == id {
			delete(m.routes, rid)
			return true
		}
		return false
	})
	p.Status = model.PlanningCancelled
	p.RunID = ""
	m.plannings[id] = p
	return released, nil
}

func (m *Memory) ExecutePlanning(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plannings[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status != model.PlanningReady {
		return fmt.Errorf("execute: planning is %s: %w", p.Status, ErrStatusConflict)
	}
	for _, oid := range m.planningOrderIDs(id) {
		o := m.orders[oid]
		if o.RouteID != nil {
			o.Status = model.OrderDelivered
			m.orders[oid] = o
		}
	}
	p.Status = model.PlanningExecuted
	m.plannings[id] = p
	return nil
}

func (m *Memory) GetRoute(ctx context.Context, id string) (model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return model.Route{}, ErrNotFound
	}
	return cloneRoute(r), nil
}

func (m *Memory) ListRoutes(ctx context.Context, planningID string) ([]model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plannings[planningID]; !ok {
		return nil, ErrNotFound
	}
	out := []model.Route{}
	for _, rid := range m.routeIDs {
		if r := m.routes[rid]; r.PlanningID == planningID {
			out = append(out, cloneRoute(r))
		}
	}
	return out, nil
}

// callers hold m.mu
func (m *Memory) planningOrderIDs(planningID string) []string {
	var ids []string
	for id, o := range m.orders {
		if o.PlanningID != nil && *o.PlanningID == planningID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (m *Memory) readPlanning(p model.Planning) model.Planning {
	p.OrderIDs = m.planningOrderIDs(p.ID)
	if p.OrderIDs == nil {
		p.OrderIDs = []string{}
	}
	if p.Deadline != nil {
		d := *p.Deadline
		p.Deadline = &d
	}
	return p
}

func (m *Memory) readOrder(o model.Order) model.Order {
	if o.PlanningID != nil {
		v := *o.PlanningID
		o.PlanningID = &v
	}
	if o.RouteID != nil {
		v := *o.RouteID
		o.RouteID = &v
	}
	if o.Sequence != nil {
		v := *o.Sequence
		o.Sequence = &v
	}
	o.Location = nil
	if c, ok := m.customers[o.CustomerID]; ok {
		loc := c.Location
		o.Location = &loc
	}
	return o
}

func cloneDepot(d model.Depot) model.Depot {
	if d.Location != nil {
		loc := *d.Location
		d.Location = &loc
	}
	return d
}

func cloneRoute(r model.Route) model.Route {
	r.OrderIDs = slices.Clone(r.OrderIDs)
	return r
}

func startAfter(ids []string, cursor string) int {
	if cursor == "" {
		return 0
	}
	for i, id := range ids {
		if id == cursor {
			return i + 1
		}
	}
	return len(ids)
}
