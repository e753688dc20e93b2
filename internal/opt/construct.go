package opt

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

// construct opens vehicles in index order. Each route repeatedly takes the
// cheapest arc from its last node to an unvisited customer that fits the
// remaining capacity and can still get back to the depot. Ties go to the
// lowest node index. It returns one route per vehicle ([0 0] when unused)
// and the number of customers left unplaced.
func (p Problem) construct() ([][]int, int) {
	n := p.size()
	visited := make([]bool, n)
	left := n - 1
	routes := make([][]int, p.vehicles())
	for v := range routes {
		r := []int{0}
		load, last := 0, 0
		for left > 0 {
			next := p.cheapestNext(last, p.Capacities[v]-load, visited)
			if next < 0 {
				break
			}
			r = append(r, next)
			visited[next] = true
			load += p.Demands[next]
			last = next
			left--
		}
		routes[v] = append(r, 0)
	}
	return routes, left
}

func (p Problem) cheapestNext(last, headroom int, visited []bool) int {
	best, bestCost := -1, math.Inf(1)
	for i := 1; i < p.size(); i++ {
		if visited[i] || p.Demands[i] > headroom {
			continue
		}
		if math.IsInf(p.Distances[i][0], 1) {
			continue
		}
		if c := p.Distances[last][i]; c < bestCost {
			best, bestCost = i, c
		}
	}
	return best
}

// packFirstFitDecreasing places customers by descending demand into the
// first vehicle with room, then sequences each vehicle's customers. It runs
// when the greedy pass strands customers, usually because capacity
// fragmented across vehicles.
func (p Problem) packFirstFitDecreasing() ([][]int, error) {
	n := p.size()
	order := make([]int, 0, n-1)
	for i := 1; i < n; i++ {
		order = append(order, i)
	}
	sort.SliceStable(order, func(a, b int) bool { return p.Demands[order[a]] > p.Demands[order[b]] })

	bins := make([][]int, p.vehicles())
	loads := make([]int, p.vehicles())
	for _, node := range order {
		placed := false
		for v := range bins {
			if loads[v]+p.Demands[node] <= p.Capacities[v] {
				bins[v] = append(bins[v], node)
				loads[v] += p.Demands[node]
				placed = true
				break
			}
		}
		if !placed {
			return nil, fmt.Errorf("%w: node %d (demand %d) fits no remaining capacity", ErrInfeasible, node, p.Demands[node])
		}
	}

	routes := make([][]int, len(bins))
	for v, members := range bins {
		r, err := p.sequence(members)
		if err != nil {
			return nil, err
		}
		routes[v] = r
	}
	return routes, nil
}

// packExact searches every assignment of customers to vehicles, largest
// demand first, and sequences the first complete packing it finds. Vehicles
// with the same capacity and current load are interchangeable, so only the
// first of them is tried at each step. The search stops at ctx
// cancellation or the deadline (zero means none).
func (p Problem) packExact(ctx context.Context, deadline time.Time) ([][]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := p.size()
	order := make([]int, 0, n-1)
	for i := 1; i < n; i++ {
		order = append(order, i)
	}
	sort.SliceStable(order, func(a, b int) bool { return p.Demands[order[a]] > p.Demands[order[b]] })

	bins := make([][]int, p.vehicles())
	loads := make([]int, p.vehicles())
	var (
		steps   int
		stopErr error
	)
	type slot struct{ capacity, load int }
	var place func(k int) bool
	place = func(k int) bool {
		if k == len(order) {
			return true
		}
		if steps++; steps%1024 == 0 {
			if err := ctx.Err(); err != nil {
				stopErr = err
				return false
			}
			if !deadline.IsZero() && time.Now().After(deadline) {
				stopErr = fmt.Errorf("%w: packing search exceeded the time budget", ErrInfeasible)
				return false
			}
		}
		node := order[k]
		tried := make(map[slot]bool, len(bins))
		for v := range bins {
			if loads[v]+p.Demands[node] > p.Capacities[v] {
				continue
			}
			key := slot{p.Capacities[v], loads[v]}
			if tried[key] {
				continue
			}
			tried[key] = true
			bins[v] = append(bins[v], node)
			loads[v] += p.Demands[node]
			if place(k + 1) {
				return true
			}
			bins[v] = bins[v][:len(bins[v])-1]
			loads[v] -= p.Demands[node]
			if stopErr != nil {
				return false
			}
		}
		return false
	}
	if !place(0) {
		if stopErr != nil {
			return nil, stopErr
		}
		return nil, fmt.Errorf("%w: no assignment of %d customers fits %d vehicles", ErrInfeasible, len(order), len(bins))
	}

	routes := make([][]int, len(bins))
	for v, members := range bins {
		r, err := p.sequence(members)
		if err != nil {
			return nil, err
		}
		routes[v] = r
	}
	return routes, nil
}

// sequence orders a fixed set of customers into a closed tour by cheapest
// insertion, skipping positions that would use an arc with no road.
func (p Problem) sequence(members []int) ([]int, error) {
	r := []int{0, 0}
	left := append([]int(nil), members...)
	sort.Ints(left)
	for len(left) > 0 {
		bestK, bestPos, bestDelta := -1, -1, math.Inf(1)
		for k, node := range left {
			for pos := 1; pos < len(r); pos++ {
				a, b := r[pos-1], r[pos]
				delta := p.Distances[a][node] + p.Distances[node][b] - p.legCost(a, b)
				if delta < bestDelta {
					bestK, bestPos, bestDelta = k, pos, delta
				}
			}
		}
		if bestK < 0 {
			return nil, fmt.Errorf("%w: no road legs can connect node %d", ErrUnreachable, left[0])
		}
		r = insertAt(r, bestPos, left[bestK])
		left = append(left[:bestK], left[bestK+1:]...)
	}
	return r, nil
}

func (p Problem) legCost(a, b int) float64 {
	if a == b {
		return 0
	}
	return p.Distances[a][b]
}
