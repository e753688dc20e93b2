package opt

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lineDistances places node i at position pos[i] on a line, 10m per unit.
func lineDistances(pos []float64) [][]float64 {
	d := make([][]float64, len(pos))
	for i := range pos {
		d[i] = make([]float64, len(pos))
		for j := range pos {
			d[i][j] = math.Abs(pos[i]-pos[j]) * 10
		}
	}
	return d
}

func solve(t *testing.T, p Problem) (Solution, Metrics, error) {
	t.Helper()
	return NewSolver(DefaultOptions()).Solve(context.Background(), p)
}

func assertCovers(t *testing.T, p Problem, sol Solution) {
	t.Helper()
	seen := map[int]int{}
	for v, r := range sol.Routes {
		require.GreaterOrEqual(t, len(r.Nodes), 3)
		assert.Equal(t, 0, r.Nodes[0])
		assert.Equal(t, 0, r.Nodes[len(r.Nodes)-1])
		load := 0
		for _, n := range r.Nodes[1 : len(r.Nodes)-1] {
			seen[n]++
			load += p.Demands[n]
		}
		assert.Equal(t, load, r.Load)
		assert.LessOrEqual(t, r.Load, p.Capacities[v], "vehicle %d over capacity", v)
	}
	for i := 1; i < len(p.Demands); i++ {
		assert.Equal(t, 1, seen[i], "customer %d visited %d times", i, seen[i])
	}
}

func TestSolveTwoOrdersOneVehicle(t *testing.T) {
	p := Problem{
		Distances:  [][]float64{{0, 10, 12}, {10, 0, 5}, {12, 5, 0}},
		Demands:    []int{0, 4, 4},
		Capacities: []int{8},
	}
	sol, _, err := solve(t, p)
	require.NoError(t, err)
	require.Len(t, sol.Routes, 1)
	r := sol.Routes[0]
	assert.Equal(t, []int{0, 1, 2, 0}, r.Nodes)
	assert.Equal(t, 8, r.Load)
	assert.Equal(t, 27.0, r.Distance)
	assert.Equal(t, 27.0, sol.Objective)
	assert.Equal(t, 27.0, sol.MaxRouteDistance)
}

func TestSolveExactCapacityBoundary(t *testing.T) {
	d := lineDistances([]float64{0, 1, 2})
	_, _, err := solve(t, Problem{Distances: d, Demands: []int{0, 3, 5}, Capacities: []int{8}})
	require.NoError(t, err)

	_, _, err = solve(t, Problem{Distances: d, Demands: []int{0, 3, 6}, Capacities: []int{8}})
	assert.ErrorIs(t, err, ErrInfeasible)
}

func TestSolveDemandAboveEveryCapacity(t *testing.T) {
	d := lineDistances([]float64{0, 1, 2})
	_, _, err := solve(t, Problem{Distances: d, Demands: []int{0, 9, 1}, Capacities: []int{8, 8}})
	assert.ErrorIs(t, err, ErrInfeasible)
}

func TestSolveUnreachable(t *testing.T) {
	d := lineDistances([]float64{0, 1, 2})
	d[0][2] = math.Inf(1)
	_, _, err := solve(t, Problem{Distances: d, Demands: []int{0, 1, 1}, Capacities: []int{5}})
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestSolveAvoidsInfiniteArcs(t *testing.T) {
	// 1 -> 2 has no road, so greedy strands 2 and the tour must be 0 2 1 0.
	d := [][]float64{
		{0, 10, 10},
		{10, 0, math.Inf(1)},
		{10, 1, 0},
	}
	sol, _, err := solve(t, Problem{Distances: d, Demands: []int{0, 1, 1}, Capacities: []int{5}})
	require.NoError(t, err)
	require.Len(t, sol.Routes, 1)
	assert.Equal(t, []int{0, 2, 1, 0}, sol.Routes[0].Nodes)
	assert.Equal(t, 21.0, sol.Objective)
}

func TestSolvePackingFallback(t *testing.T) {
	p := Problem{
		Distances:  lineDistances([]float64{0, 1, 2, 3, 4}),
		Demands:    []int{0, 2, 2, 3, 3},
		Capacities: []int{5, 5},
	}
	sol, m, err := solve(t, p)
	require.NoError(t, err)
	assert.True(t, m.UsedPackingFallback)
	assertCovers(t, p, sol)
}

func uniformDistances(n int, d float64) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		for j := range m[i] {
			if i != j {
				m[i][j] = d
			}
		}
	}
	return m
}

func TestSolveExactFitAcrossVehicles(t *testing.T) {
	// Greedy fills 5+4 and 3+3+3, first-fit-decreasing fills the same way,
	// and only 5+3+2 / 4+3+3 uses both vehicles to the last unit.
	p := Problem{
		Distances:  uniformDistances(7, 10),
		Demands:    []int{0, 5, 4, 3, 3, 3, 2},
		Capacities: []int{10, 10},
	}
	sol, m, err := solve(t, p)
	require.NoError(t, err)
	assert.True(t, m.UsedPackingFallback)
	assertCovers(t, p, sol)
	require.Len(t, sol.Routes, 2)
	assert.Equal(t, 10, sol.Routes[0].Load)
	assert.Equal(t, 10, sol.Routes[1].Load)

	again, _, err := solve(t, p)
	require.NoError(t, err)
	assert.Equal(t, sol, again)
}

func TestSolveNoPackingExists(t *testing.T) {
	// total demand equals total capacity, but no two 6s share a vehicle
	p := Problem{
		Distances:  uniformDistances(4, 10),
		Demands:    []int{0, 6, 6, 6},
		Capacities: []int{9, 9},
	}
	_, _, err := solve(t, p)
	assert.ErrorIs(t, err, ErrInfeasible)
}

func TestSolvePackingSearchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Problem{
		Distances:  uniformDistances(4, 10),
		Demands:    []int{0, 6, 6, 6},
		Capacities: []int{9, 9},
	}
	routes, err := p.packExact(ctx, time.Time{})
	require.ErrorIs(t, err, ErrInfeasible)
	assert.Nil(t, routes)

	cancel()
	_, err = p.packExact(ctx, time.Time{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSolveCapacityRespected(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pos := make([][2]float64, 40)
	demands := make([]int, len(pos))
	for i := 1; i < len(pos); i++ {
		pos[i] = [2]float64{rng.Float64() * 100, rng.Float64() * 100}
		demands[i] = 1 + rng.Intn(6)
	}
	d := make([][]float64, len(pos))
	for i := range pos {
		d[i] = make([]float64, len(pos))
		for j := range pos {
			d[i][j] = math.Hypot(pos[i][0]-pos[j][0], pos[i][1]-pos[j][1])
		}
	}
	p := Problem{
		Distances:       d,
		Demands:         demands,
		Capacities:      []int{40, 40, 35, 35, 30, 30},
		CostMultipliers: []float64{1, 1, 1.2, 1.2, 0.8, 0.8},
	}
	sol, m, err := solve(t, p)
	require.NoError(t, err)
	assertCovers(t, p, sol)
	assert.LessOrEqual(t, m.FinalCost, m.ConstructionCost)
	assert.Equal(t, sol.Objective, m.FinalCost)

	again, _, err := solve(t, p)
	require.NoError(t, err)
	assert.Equal(t, sol, again)
}

func TestSolveRelocatesToCheaperVehicle(t *testing.T) {
	p := Problem{
		Distances:       lineDistances([]float64{0, 1}),
		Demands:         []int{0, 1},
		Capacities:      []int{10, 10},
		CostMultipliers: []float64{3, 1},
	}
	sol, m, err := solve(t, p)
	require.NoError(t, err)
	require.Len(t, sol.Routes, 1)
	_, onCheap := sol.Routes[1]
	assert.True(t, onCheap)
	assert.Equal(t, 20.0, sol.Objective)
	assert.Equal(t, 60.0, m.ConstructionCost)
	assert.Equal(t, 1, m.RelocateMoves)
}

func TestSolveTwoOptUntangles(t *testing.T) {
	// greedy goes 0 1 2 3 and pays the long leg 3 -> 0
	d := [][]float64{
		{0, 1, 2, 10},
		{1, 0, 1, 1.5},
		{2, 1, 0, 1},
		{10, 1.5, 1, 0},
	}
	p := Problem{Distances: d, Demands: []int{0, 1, 1, 1}, Capacities: []int{3}}
	sol, m, err := solve(t, p)
	require.NoError(t, err)
	assertCovers(t, p, sol)
	assert.Equal(t, []int{0, 1, 3, 2, 0}, sol.Routes[0].Nodes)
	assert.Equal(t, 5.5, sol.Objective)
	assert.Equal(t, 13.0, m.ConstructionCost)
	assert.Equal(t, 1, m.TwoOptMoves)

	noLS, _, err := NewSolver(Options{}).Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 13.0, noLS.Objective)
	assert.Equal(t, []int{0, 1, 2, 3, 0}, noLS.Routes[0].Nodes)
}

func TestSolveInvalidProblem(t *testing.T) {
	good := lineDistances([]float64{0, 1})
	cases := map[string]Problem{
		"empty":         {},
		"ragged":        {Distances: [][]float64{{0, 1}, {1}}, Demands: []int{0, 1}, Capacities: []int{1}},
		"demand count":  {Distances: good, Demands: []int{0}, Capacities: []int{1}},
		"depot demand":  {Distances: good, Demands: []int{1, 1}, Capacities: []int{5}},
		"no vehicles":   {Distances: good, Demands: []int{0, 1}},
		"zero capacity": {Distances: good, Demands: []int{0, 1}, Capacities: []int{0}},
		"multipliers":   {Distances: good, Demands: []int{0, 1}, Capacities: []int{1}, CostMultipliers: []float64{1, 2}},
		"nan distance":  {Distances: [][]float64{{0, math.NaN()}, {1, 0}}, Demands: []int{0, 1}, Capacities: []int{1}},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := solve(t, p)
			assert.ErrorIs(t, err, ErrInvalidProblem)
		})
	}
}

func TestSolveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := Problem{Distances: lineDistances([]float64{0, 1}), Demands: []int{0, 1}, Capacities: []int{1}}
	_, _, err := NewSolver(DefaultOptions()).Solve(ctx, p)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunLogKeepsRecentRuns(t *testing.T) {
	l := NewRunLog(2)
	for _, o := range []string{"infeasible", "ok", "ok"} {
		l.Record(Run{PlanningID: "p1", Outcome: o})
	}
	runs := l.Runs("p1")
	require.Len(t, runs, 2)
	assert.Equal(t, "ok", runs[0].Outcome)
	assert.Empty(t, l.Runs("p2"))
}
