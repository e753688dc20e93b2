package opt

import (
	"context"
	"time"
)

const improveEps = 1e-7

// improve runs first-improvement local search over routes in place: 2-opt
// within each route, then relocating one customer to another route, then
// swapping customers between routes. Every candidate is checked for
// capacity and a finite cost before it is applied. Scan order is fixed.
func (p Problem) improve(ctx context.Context, routes [][]int, maxPasses int, deadline time.Time, m *Metrics) error {
	for pass := 0; pass < maxPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			m.StoppedByTimeBudget = true
			return nil
		}
		m.Iterations++
		improved := false
		for v := range routes {
			if p.twoOpt(routes, v) {
				m.TwoOptMoves++
				improved = true
			}
		}
		if p.relocate(routes) {
			m.RelocateMoves++
			improved = true
		}
		if p.swap(routes) {
			m.SwapMoves++
			improved = true
		}
		if !improved {
			return nil
		}
	}
	return nil
}

// twoOpt applies the first segment reversal in route v that shortens it.
func (p Problem) twoOpt(routes [][]int, v int) bool {
	r := routes[v]
	old := p.routeDistance(r)
	for i := 1; i < len(r)-2; i++ {
		for k := i + 1; k < len(r)-1; k++ {
			cand := twoOptSwap(r, i, k)
			if p.routeDistance(cand) < old-improveEps {
				routes[v] = cand
				return true
			}
		}
	}
	return false
}

func twoOptSwap(ord []int, i, k int) []int {
	out := make([]int, len(ord))
	copy(out, ord[:i])
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}

// relocate moves the first customer whose removal from one route and
// insertion into another lowers the weighted cost.
func (p Problem) relocate(routes [][]int) bool {
	for a := range routes {
		ra := routes[a]
		for i := 1; i < len(ra)-1; i++ {
			node := ra[i]
			from := without(ra, i)
			for b := range routes {
				if b == a || p.routeLoad(routes[b])+p.Demands[node] > p.Capacities[b] {
					continue
				}
				old := p.routeDistance(ra)*p.mult(a) + p.routeDistance(routes[b])*p.mult(b)
				for j := 1; j < len(routes[b]); j++ {
					to := insertAt(routes[b], j, node)
					if p.routeDistance(from)*p.mult(a)+p.routeDistance(to)*p.mult(b) < old-improveEps {
						routes[a], routes[b] = from, to
						return true
					}
				}
			}
		}
	}
	return false
}

// swap exchanges the first pair of customers on different routes whose
// exchange lowers the weighted cost and keeps both loads within capacity.
func (p Problem) swap(routes [][]int) bool {
	for a := range routes {
		for b := a + 1; b < len(routes); b++ {
			ra, rb := routes[a], routes[b]
			loadA, loadB := p.routeLoad(ra), p.routeLoad(rb)
			old := p.routeDistance(ra)*p.mult(a) + p.routeDistance(rb)*p.mult(b)
			for i := 1; i < len(ra)-1; i++ {
				for j := 1; j < len(rb)-1; j++ {
					x, y := ra[i], rb[j]
					if loadA-p.Demands[x]+p.Demands[y] > p.Capacities[a] || loadB-p.Demands[y]+p.Demands[x] > p.Capacities[b] {
						continue
					}
					na := replaceAt(ra, i, y)
					nb := replaceAt(rb, j, x)
					if p.routeDistance(na)*p.mult(a)+p.routeDistance(nb)*p.mult(b) < old-improveEps {
						routes[a], routes[b] = na, nb
						return true
					}
				}
			}
		}
	}
	return false
}

func without(r []int, i int) []int {
	out := make([]int, 0, len(r)-1)
	out = append(out, r[:i]...)
	return append(out, r[i+1:]...)
}

func insertAt(r []int, j, node int) []int {
	out := make([]int, 0, len(r)+1)
	out = append(out, r[:j]...)
	out = append(out, node)
	return append(out, r[j:]...)
}

func replaceAt(r []int, i, node int) []int {
	out := append([]int(nil), r...)
	out[i] = node
	return out
}
