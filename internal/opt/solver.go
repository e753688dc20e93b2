package opt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrInfeasible     = errors.New("infeasible: demand cannot be packed into vehicle capacity")
	ErrUnreachable    = errors.New("unreachable location")
	ErrInvalidProblem = errors.New("invalid problem")
)

// Problem is a single-depot CVRP instance. Node 0 is the depot; nodes
// 1..n-1 are customers. Distances may be asymmetric and use +Inf for
// pairs with no road connection.
type Problem struct {
	Distances       [][]float64
	Demands         []int     // Demands[0] must be 0
	Capacities      []int     // one per vehicle
	CostMultipliers []float64 // per vehicle, nil means 1 for all
}

type Options struct {
	LocalSearch   bool
	MaxIterations int           // local search passes; 0 uses the default
	TimeBudget    time.Duration // 0 means no wall-clock limit
}

const defaultMaxIterations = 100

func DefaultOptions() Options {
	return Options{LocalSearch: true, MaxIterations: defaultMaxIterations}
}

// RouteResult is one vehicle tour, starting and ending at the depot.
type RouteResult struct {
	Nodes    []int
	Distance float64
	Load     int
}

type Solution struct {
	Objective        float64
	Routes           map[int]RouteResult // keyed by vehicle index; unused vehicles are absent
	MaxRouteDistance float64
}

type Metrics struct {
	Iterations          int           `json:"iterations"`
	TwoOptMoves         int           `json:"twoOptMoves"`
	RelocateMoves       int           `json:"relocateMoves"`
	SwapMoves           int           `json:"swapMoves"`
	ConstructionCost    float64       `json:"constructionCost"`
	FinalCost           float64       `json:"finalCost"`
	UsedPackingFallback bool          `json:"usedPackingFallback"`
	StoppedByTimeBudget bool          `json:"stoppedByTimeBudget"`
	Elapsed             time.Duration `json:"elapsedNs"`
}

type Solver struct {
	opts Options
}

func NewSolver(opts Options) *Solver {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = defaultMaxIterations
	}
	return &Solver{opts: opts}
}

// Solve builds routes for p. The result depends only on p and the solver
// options unless the time budget expires during local search.
func (s *Solver) Solve(ctx context.Context, p Problem) (Solution, Metrics, error) {
	start := time.Now()
	var m Metrics
	if err := p.validate(); err != nil {
		return Solution{}, m, err
	}
	if err := p.checkCapacity(); err != nil {
		return Solution{}, m, err
	}
	if err := p.checkReachable(); err != nil {
		return Solution{}, m, err
	}
	if err := ctx.Err(); err != nil {
		return Solution{}, m, err
	}

	var deadline time.Time
	if s.opts.TimeBudget > 0 {
		deadline = start.Add(s.opts.TimeBudget)
	}
	routes, leftover := p.construct()
	if leftover > 0 {
		var err error
		routes, err = p.packFirstFitDecreasing()
		if errors.Is(err, ErrInfeasible) {
			routes, err = p.packExact(ctx, deadline)
		}
		if err != nil {
			return Solution{}, m, err
		}
		m.UsedPackingFallback = true
	}
	m.ConstructionCost = p.objective(routes)

	if s.opts.LocalSearch {
		if err := p.improve(ctx, routes, s.opts.MaxIterations, deadline, &m); err != nil {
			return Solution{}, m, err
		}
	}

	sol := p.solution(routes)
	m.FinalCost = sol.Objective
	m.Elapsed = time.Since(start)
	return sol, m, nil
}

func (p Problem) size() int     { return len(p.Distances) }
func (p Problem) vehicles() int { return len(p.Capacities) }
func (p Problem) mult(v int) float64 {
	if p.CostMultipliers == nil {
		return 1
	}
	return p.CostMultipliers[v]
}

func (p Problem) validate() error {
	n := p.size()
	if n == 0 {
		return fmt.Errorf("%w: empty distance matrix", ErrInvalidProblem)
	}
	for i, row := range p.Distances {
		if len(row) != n {
			return fmt.Errorf("%w: distance row %d has %d columns, want %d", ErrInvalidProblem, i, len(row), n)
		}
		for j, d := range row {
			if math.IsNaN(d) || d < 0 {
				return fmt.Errorf("%w: distance[%d][%d] = %v", ErrInvalidProblem, i, j, d)
			}
		}
	}
	if len(p.Demands) != n {
		return fmt.Errorf("%w: %d demands for %d nodes", ErrInvalidProblem, len(p.Demands), n)
	}
	if p.Demands[0] != 0 {
		return fmt.Errorf("%w: depot demand must be 0", ErrInvalidProblem)
	}
	for i, d := range p.Demands {
		if d < 0 {
			return fmt.Errorf("%w: negative demand at node %d", ErrInvalidProblem, i)
		}
	}
	if p.vehicles() == 0 {
		return fmt.Errorf("%w: no vehicles", ErrInvalidProblem)
	}
	for v, c := range p.Capacities {
		if c <= 0 {
			return fmt.Errorf("%w: vehicle %d capacity %d", ErrInvalidProblem, v, c)
		}
	}
	if p.CostMultipliers != nil {
		if len(p.CostMultipliers) != p.vehicles() {
			return fmt.Errorf("%w: %d cost multipliers for %d vehicles", ErrInvalidProblem, len(p.CostMultipliers), p.vehicles())
		}
		for v, c := range p.CostMultipliers {
			if c <= 0 || math.IsNaN(c) || math.IsInf(c, 0) {
				return fmt.Errorf("%w: vehicle %d cost multiplier %v", ErrInvalidProblem, v, c)
			}
		}
	}
	return nil
}

func (p Problem) checkCapacity() error {
	total, maxCap := 0, 0
	for _, c := range p.Capacities {
		total += c
		maxCap = max(maxCap, c)
	}
	demand := 0
	for i, d := range p.Demands {
		if d > maxCap {
			return fmt.Errorf("%w: node %d demand %d exceeds largest capacity %d", ErrInfeasible, i, d, maxCap)
		}
		demand += d
	}
	if demand > total {
		return fmt.Errorf("%w: total demand %d exceeds total capacity %d", ErrInfeasible, demand, total)
	}
	return nil
}

// checkReachable requires a finite road leg from the depot to every
// customer and back.
func (p Problem) checkReachable() error {
	for i := 1; i < p.size(); i++ {
		if math.IsInf(p.Distances[0][i], 1) || math.IsInf(p.Distances[i][0], 1) {
			return fmt.Errorf("%w: node %d", ErrUnreachable, i)
		}
	}
	return nil
}

func (p Problem) routeDistance(r []int) float64 {
	if len(r) <= 2 {
		return 0
	}
	d := 0.0
	for k := 0; k+1 < len(r); k++ {
		d += p.Distances[r[k]][r[k+1]]
	}
	return d
}

func (p Problem) routeLoad(r []int) int {
	l := 0
	for _, n := range r {
		l += p.Demands[n]
	}
	return l
}

func (p Problem) objective(routes [][]int) float64 {
	total := 0.0
	for v, r := range routes {
		total += p.routeDistance(r) * p.mult(v)
	}
	return total
}

func (p Problem) solution(routes [][]int) Solution {
	sol := Solution{Routes: map[int]RouteResult{}}
	for v, r := range routes {
		if len(r) <= 2 {
			continue
		}
		rr := RouteResult{
			Nodes:    append([]int(nil), r...),
			Distance: p.routeDistance(r),
			Load:     p.routeLoad(r),
		}
		sol.Routes[v] = rr
		sol.Objective += rr.Distance * p.mult(v)
		sol.MaxRouteDistance = max(sol.MaxRouteDistance, rr.Distance)
	}
	return sol
}
