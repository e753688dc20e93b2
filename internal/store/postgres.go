package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fleetroute/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate applies the embedded schema files in name order. Every statement
// is idempotent so it is safe to run on each start.
func (p *Postgres) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		body, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := p.db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("migrate %s: %w", name, err)
		}
	}
	return nil
}

func (p *Postgres) CreateDepot(ctx context.Context, d model.Depot) (model.Depot, error) {
	d.ID = uuid.New().String()
	lat, lng := coordArgs(d.Location)
	_, err := p.db.ExecContext(ctx, `INSERT INTO depots (id, name, address, lat, lng, active) VALUES ($1,$2,$3,$4,$5,$6)`,
		d.ID, d.Name, nullIfEmpty(d.Address), lat, lng, d.Active)
	if err != nil {
		return model.Depot{}, err
	}
	return d, nil
}

const depotCols = `id::text, name, COALESCE(address,''), lat, lng, active`

func scanDepot(row interface{ Scan(...any) error }) (model.Depot, error) {
	var d model.Depot
	var lat, lng sql.NullFloat64
	if err := row.Scan(&d.ID, &d.Name, &d.Address, &lat, &lng, &d.Active); err != nil {
		return model.Depot{}, err
	}
	d.Location = coordFromNull(lat, lng)
	return d, nil
}

func (p *Postgres) GetDepot(ctx context.Context, id string) (model.Depot, error) {
	if err := checkIDs(id); err != nil {
		return model.Depot{}, err
	}
	d, err := scanDepot(p.db.QueryRowContext(ctx, `SELECT `+depotCols+` FROM depots WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Depot{}, ErrNotFound
	}
	return d, err
}

func (p *Postgres) ListDepots(ctx context.Context) ([]model.Depot, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+depotCols+` FROM depots ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Depot{}
	for rows.Next() {
		d, err := scanDepot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
	if _, err := p.GetDepot(ctx, v.DepotID); err != nil {
		return model.Vehicle{}, fmt.Errorf("depot %s: %w", v.DepotID, err)
	}
	v.ID = uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO vehicles (id, depot_id, model, plate, capacity, cost_per_km, active) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		v.ID, v.DepotID, nullIfEmpty(v.Model), v.Plate, v.Capacity, v.CostPerKm, v.Active)
	if err != nil {
		return model.Vehicle{}, err
	}
	return v, nil
}

func (p *Postgres) ListVehicles(ctx context.Context, depotID string, activeOnly bool) ([]model.Vehicle, error) {
	if depotID != "" && checkIDs(depotID) != nil {
		return []model.Vehicle{}, nil
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, depot_id::text, COALESCE(model,''), plate, capacity, cost_per_km, active
		FROM vehicles WHERE ($1 = '' OR depot_id = NULLIF($1,'')::uuid) AND (NOT $2 OR active) ORDER BY created_at, id`, depotID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Vehicle{}
	for rows.Next() {
		var v model.Vehicle
		if err := rows.Scan(&v.ID, &v.DepotID, &v.Model, &v.Plate, &v.Capacity, &v.CostPerKm, &v.Active); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateCustomer(ctx context.Context, c model.Customer) (model.Customer, error) {
	c.ID = uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO customers (id, name, email, address, lat, lng, active) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		c.ID, c.Name, nullIfEmpty(c.Email), nullIfEmpty(c.Address), c.Location.Lat, c.Location.Lon, c.Active)
	if err != nil {
		return model.Customer{}, err
	}
	return c, nil
}

func (p *Postgres) GetCustomer(ctx context.Context, id string) (model.Customer, error) {
	if err := checkIDs(id); err != nil {
		return model.Customer{}, err
	}
	var c model.Customer
	err := p.db.QueryRowContext(ctx, `SELECT id::text, name, COALESCE(email,''), COALESCE(address,''), lat, lng, active FROM customers WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Address, &c.Location.Lat, &c.Location.Lon, &c.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Customer{}, ErrNotFound
	}
	return c, err
}

func (p *Postgres) CreateOrder(ctx context.Context, o model.Order) (model.Order, error) {
	if _, err := p.GetCustomer(ctx, o.CustomerID); err != nil {
		return model.Order{}, fmt.Errorf("customer %s: %w", o.CustomerID, err)
	}
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO orders (id, customer_id, demand, status) VALUES ($1,$2,$3,$4)`,
		id, o.CustomerID, o.Demand, model.OrderAwaiting)
	if err != nil {
		return model.Order{}, err
	}
	return p.GetOrder(ctx, id)
}

const orderCols = `o.id::text, o.customer_id::text, o.demand, o.status, o.planning_id::text, o.route_id::text, o.sequence, o.created_at, c.lat, c.lng`
const orderFrom = ` FROM orders o LEFT JOIN customers c ON c.id = o.customer_id`

func scanOrder(row interface{ Scan(...any) error }) (model.Order, error) {
	var o model.Order
	var status string
	var planningID, routeID sql.NullString
	var seq sql.NullInt64
	var lat, lng sql.NullFloat64
	if err := row.Scan(&o.ID, &o.CustomerID, &o.Demand, &status, &planningID, &routeID, &seq, &o.CreatedAt, &lat, &lng); err != nil {
		return model.Order{}, err
	}
	st, err := model.ParseOrderStatus(status)
	if err != nil {
		return model.Order{}, err
	}
	o.Status = st
	o.PlanningID = strFromNull(planningID)
	o.RouteID = strFromNull(routeID)
	if seq.Valid {
		s := int(seq.Int64)
		o.Sequence = &s
	}
	o.Location = coordFromNull(lat, lng)
	return o, nil
}

func (p *Postgres) GetOrder(ctx context.Context, id string) (model.Order, error) {
	if err := checkIDs(id); err != nil {
		return model.Order{}, err
	}
	o, err := scanOrder(p.db.QueryRowContext(ctx, `SELECT `+orderCols+orderFrom+` WHERE o.id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, ErrNotFound
	}
	return o, err
}

// ListOrders pages by order ID; the cursor is the last ID of the previous page.
func (p *Postgres) ListOrders(ctx context.Context, status model.OrderStatus, cursor string, limit int) ([]model.Order, string, error) {
	limit = pageSize(limit)
	if cursor != "" && checkIDs(cursor) != nil {
		return []model.Order{}, "", nil
	}
	rows, err := p.db.QueryContext(ctx, `SELECT `+orderCols+orderFrom+`
		WHERE ($1 = '' OR o.status = $1) AND ($2 = '' OR o.id > NULLIF($2,'')::uuid) ORDER BY o.id LIMIT $3`, string(status), cursor, limit+1)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	out, next := trimPage(out, limit, func(o model.Order) string { return o.ID })
	return out, next, nil
}

func (p *Postgres) CreatePlanning(ctx context.Context, pl model.Planning) (model.Planning, error) {
	if _, err := p.GetDepot(ctx, pl.DepotID); err != nil {
		return model.Planning{}, fmt.Errorf("depot %s: %w", pl.DepotID, err)
	}
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO plannings (id, depot_id, deadline, status) VALUES ($1,$2,$3,$4)`,
		id, pl.DepotID, pl.Deadline, model.PlanningPending)
	if err != nil {
		return model.Planning{}, err
	}
	return p.GetPlanning(ctx, id)
}

const planningCols = `id::text, depot_id::text, deadline, status, created_at, COALESCE(run_id::text,'')`

func scanPlanning(row interface{ Scan(...any) error }) (model.Planning, error) {
	var pl model.Planning
	var deadline sql.NullTime
	var status string
	if err := row.Scan(&pl.ID, &pl.DepotID, &deadline, &status, &pl.CreatedAt, &pl.RunID); err != nil {
		return model.Planning{}, err
	}
	st, err := model.ParsePlanningStatus(status)
	if err != nil {
		return model.Planning{}, err
	}
	pl.Status = st
	if deadline.Valid {
		t := deadline.Time
		pl.Deadline = &t
	}
	return pl, nil
}

func (p *Postgres) GetPlanning(ctx context.Context, id string) (model.Planning, error) {
	if err := checkIDs(id); err != nil {
		return model.Planning{}, err
	}
	pl, err := scanPlanning(p.db.QueryRowContext(ctx, `SELECT `+planningCols+` FROM plannings WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Planning{}, ErrNotFound
	}
	if err != nil {
		return model.Planning{}, err
	}
	if pl.OrderIDs, err = p.planningOrderIDs(ctx, id); err != nil {
		return model.Planning{}, err
	}
	return pl, nil
}

func (p *Postgres) ListPlannings(ctx context.Context, status model.PlanningStatus, cursor string, limit int) ([]model.Planning, string, error) {
	limit = pageSize(limit)
	if cursor != "" && checkIDs(cursor) != nil {
		return []model.Planning{}, "", nil
	}
	rows, err := p.db.QueryContext(ctx, `SELECT `+planningCols+` FROM plannings
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR id > NULLIF($2,'')::uuid) ORDER BY id LIMIT $3`, string(status), cursor, limit+1)
	if err != nil {
		return nil, "", err
	}
	out := []model.Planning{}
	for rows.Next() {
		pl, err := scanPlanning(rows)
		if err != nil {
			rows.Close()
			return nil, "", err
		}
		out = append(out, pl)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	out, next := trimPage(out, limit, func(pl model.Planning) string { return pl.ID })
	for i := range out {
		if out[i].OrderIDs, err = p.planningOrderIDs(ctx, out[i].ID); err != nil {
			return nil, "", err
		}
	}
	return out, next, nil
}

func (p *Postgres) planningOrderIDs(ctx context.Context, planningID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text FROM orders WHERE planning_id=$1 ORDER BY id`, planningID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *Postgres) PlanningOrders(ctx context.Context, planningID string) ([]model.Order, error) {
	if err := checkIDs(planningID); err != nil {
		return nil, err
	}
	if err := p.planningExists(ctx, p.db, planningID); err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, `SELECT `+orderCols+orderFrom+` WHERE o.planning_id=$1 ORDER BY o.id`, planningID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *Postgres) AttachOrder(ctx context.Context, planningID, orderID string) error {
	if err := checkIDs(planningID, orderID); err != nil {
		return err
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := lockStatus(ctx, tx, planningID, model.PlanningPending); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE orders SET planning_id=$1 WHERE id=$2 AND planning_id IS NULL AND status='awaiting'`, planningID, orderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id=$1)`, orderID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
		}
		return fmt.Errorf("order %s: %w", orderID, ErrOrderUnavailable)
	}
	return tx.Commit()
}

func (p *Postgres) DetachOrder(ctx context.Context, planningID, orderID string) error {
	if err := checkIDs(planningID, orderID); err != nil {
		return err
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := lockStatus(ctx, tx, planningID, model.PlanningPending); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE orders SET planning_id=NULL WHERE id=$1 AND planning_id=$2`, orderID, planningID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %s in planning %s: %w", orderID, planningID, ErrNotFound)
	}
	return tx.Commit()
}

func (p *Postgres) TransitionPlanning(ctx context.Context, id string, from, to model.PlanningStatus) error {
	if err := checkIDs(id); err != nil {
		return err
	}
	if err := checkTransition(from, to); err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, `UPDATE plannings SET status=$3, run_id=NULL WHERE id=$1 AND status=$2`, id, from, to)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if err := p.planningExists(ctx, p.db, id); err != nil {
		return err
	}
	return fmt.Errorf("planning is not %s: %w", from, ErrStatusConflict)
}

func (p *Postgres) StartRun(ctx context.Context, id string) (string, error) {
	if err := checkIDs(id); err != nil {
		return "", err
	}
	runID := uuid.New().String()
	res, err := p.db.ExecContext(ctx, `UPDATE plannings SET status='optimizing', run_id=$2 WHERE id=$1 AND status='pending'`, id, runID)
	if err != nil {
		return "", err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return runID, nil
	}
	if err := p.planningExists(ctx, p.db, id); err != nil {
		return "", err
	}
	return "", fmt.Errorf("planning is not %s: %w", model.PlanningPending, ErrStatusConflict)
}

func (p *Postgres) RevertRun(ctx context.Context, id, runID string) error {
	if err := checkIDs(id); err != nil {
		return err
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := lockRun(ctx, tx, id, runID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE plannings SET status='pending', run_id=NULL WHERE id=$1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) CommitPlan(ctx context.Context, planningID, runID string, drafts []model.RouteDraft) ([]model.Route, error) {
	if err := checkIDs(planningID); err != nil {
		return nil, err
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	if err := lockRun(ctx, tx, planningID, runID); err != nil {
		return nil, fmt.Errorf("commit plan: %w", err)
	}
	now := time.Now().UTC()
	out := make([]model.Route, 0, len(drafts))
	for _, d := range drafts {
		r := model.Route{
			ID:             uuid.New().String(),
			PlanningID:     planningID,
			VehicleID:      d.VehicleID,
			DistanceMeters: d.DistanceMeters,
			Load:           d.Load,
			Cost:           d.Cost,
			OrderIDs:       append([]string(nil), d.OrderIDs...),
			CreatedAt:      now,
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO routes (id, planning_id, vehicle_id, distance_m, load, cost, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			r.ID, planningID, r.VehicleID, r.DistanceMeters, r.Load, r.Cost, now)
		if err != nil {
			return nil, err
		}
		for i, oid := range d.OrderIDs {
			res, err := tx.ExecContext(ctx, `UPDATE orders SET route_id=$1, sequence=$2, status='assigned' WHERE id=$3 AND planning_id=$4`,
				r.ID, i+1, oid, planningID)
			if err != nil {
				return nil, err
			}
			if n, _ := res.RowsAffected(); n != 1 {
				return nil, fmt.Errorf("order %s: %w", oid, ErrOrderUnavailable)
			}
		}
		out = append(out, r)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE plannings SET status='ready', run_id=NULL WHERE id=$1`, planningID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Postgres) CancelPlanning(ctx context.Context, id string, from ...model.PlanningStatus) (int, error) {
	if err := checkIDs(id); err != nil {
		return 0, err
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	status, err := lockStatus(ctx, tx, id, from...)
	if err != nil {
		return 0, err
	}
	if err := checkTransition(status, model.PlanningCancelled); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `UPDATE orders SET planning_id=NULL, route_id=NULL, sequence=NULL,
		status = CASE WHEN status='assigned' THEN 'awaiting' ELSE status END
		WHERE planning_id=$1`, id)
	if err != nil {
		return 0, err
	}
	released, _ := res.RowsAffected()
	if _, err := tx.ExecContext(ctx, `DELETE FROM routes WHERE planning_id=$1`, id); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE plannings SET status='cancelled', run_id=NULL WHERE id=$1`, id); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(released), nil
}

func (p *Postgres) ExecutePlanning(ctx context.Context, id string) error {
	if err := checkIDs(id); err != nil {
		return err
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := lockStatus(ctx, tx, id, model.PlanningReady); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE orders SET status='delivered' WHERE planning_id=$1 AND route_id IS NOT NULL`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE plannings SET status='executed' WHERE id=$1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) GetRoute(ctx context.Context, id string) (model.Route, error) {
	if err := checkIDs(id); err != nil {
		return model.Route{}, err
	}
	var r model.Route
	err := p.db.QueryRowContext(ctx, `SELECT id::text, planning_id::text, vehicle_id::text, distance_m, load, cost, created_at FROM routes WHERE id=$1`, id).
		Scan(&r.ID, &r.PlanningID, &r.VehicleID, &r.DistanceMeters, &r.Load, &r.Cost, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Route{}, ErrNotFound
	}
	if err != nil {
		return model.Route{}, err
	}
	if r.OrderIDs, err = p.routeOrderIDs(ctx, r.ID); err != nil {
		return model.Route{}, err
	}
	return r, nil
}

func (p *Postgres) ListRoutes(ctx context.Context, planningID string) ([]model.Route, error) {
	if err := checkIDs(planningID); err != nil {
		return nil, err
	}
	if err := p.planningExists(ctx, p.db, planningID); err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id::text FROM routes WHERE planning_id=$1 ORDER BY created_at, id`, planningID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	out := []model.Route{}
	for _, id := range ids {
		r, err := p.GetRoute(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (p *Postgres) routeOrderIDs(ctx context.Context, routeID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text FROM orders WHERE route_id=$1 ORDER BY sequence`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (p *Postgres) planningExists(ctx context.Context, q querier, id string) error {
	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM plannings WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

// lockStatus row-locks the planning for the rest of tx and checks that its
// status is one of allowed.
func lockStatus(ctx context.Context, tx *sql.Tx, id string, allowed ...model.PlanningStatus) (model.PlanningStatus, error) {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM plannings WHERE id=$1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("planning %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	for _, s := range allowed {
		if string(s) == status {
			return s, nil
		}
	}
	return "", fmt.Errorf("planning is %s: %w", status, ErrStatusConflict)
}

// lockRun row-locks the planning and checks that runID owns it.
func lockRun(ctx context.Context, tx *sql.Tx, id, runID string) error {
	var pl model.Planning
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status, COALESCE(run_id::text,'') FROM plannings WHERE id=$1 FOR UPDATE`, id).Scan(&status, &pl.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("planning %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	pl.Status = model.PlanningStatus(status)
	return ownedBy(pl, runID)
}

// checkIDs maps identifiers that are not UUIDs to ErrNotFound before they
// reach a query; no row can carry them.
func checkIDs(ids ...string) error {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("id %q: %w", id, ErrNotFound)
		}
	}
	return nil
}

// trimPage cuts a page fetched with one extra row back to limit and returns
// the cursor for the next page, empty when the extra row was not there.
func trimPage[T any](rows []T, limit int, id func(T) string) ([]T, string) {
	if len(rows) <= limit {
		return rows, ""
	}
	rows = rows[:limit]
	return rows, id(rows[limit-1])
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func coordArgs(c *model.Coordinate) (lat, lng any) {
	if c == nil {
		return nil, nil
	}
	return c.Lat, c.Lon
}

func coordFromNull(lat, lng sql.NullFloat64) *model.Coordinate {
	if !lat.Valid || !lng.Valid {
		return nil
	}
	return &model.Coordinate{Lat: lat.Float64, Lon: lng.Float64}
}

func strFromNull(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
