package roadnet

import (
	"container/heap"
	"math"
)

type queueItem struct {
	node NodeID
	dist float64
}

// distQueue is a min-heap on distance; equal distances pop lowest node first
// so that runs are reproducible.
type distQueue []queueItem

func (q distQueue) Len() int { return len(q) }
func (q distQueue) Less(i, j int) bool {
	if q[i].dist == q[j].dist {
		return q[i].node < q[j].node
	}
	return q[i].dist < q[j].dist
}
func (q distQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *distQueue) Push(x any)   { *q = append(*q, x.(queueItem)) }
func (q *distQueue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}

type searchResult struct {
	dist map[NodeID]float64
	prev map[NodeID]NodeID
}

func (r searchResult) distTo(n NodeID) float64 {
	if d, ok := r.dist[n]; ok {
		return d
	}
	return math.Inf(1)
}

// search runs Dijkstra from src. When targets is non-empty it stops as soon
// as every target has been settled.
func (g *Graph) search(src NodeID, targets []NodeID, withPrev bool) searchResult {
	res := searchResult{dist: map[NodeID]float64{src: 0}}
	if withPrev {
		res.prev = map[NodeID]NodeID{}
	}
	pending := map[NodeID]struct{}{}
	for _, t := range targets {
		pending[t] = struct{}{}
	}
	settled := map[NodeID]bool{}
	q := &distQueue{{node: src}}
	for q.Len() > 0 {
		cur := heap.Pop(q).(queueItem)
		if settled[cur.node] {
			continue
		}
		settled[cur.node] = true
		if len(targets) > 0 {
			delete(pending, cur.node)
			if len(pending) == 0 {
				break
			}
		}
		for _, e := range g.adj[cur.node] {
			if settled[e.To] {
				continue
			}
			nd := cur.dist + e.Length
			if old, ok := res.dist[e.To]; ok && old <= nd {
				continue
			}
			res.dist[e.To] = nd
			if withPrev {
				res.prev[e.To] = cur.node
			}
			heap.Push(q, queueItem{node: e.To, dist: nd})
		}
	}
	return res
}
