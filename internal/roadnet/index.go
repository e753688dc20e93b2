package roadnet

import (
	"fmt"
	"math"
	"strconv"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"fleetroute/internal/model"
)

const defaultCacheSize = 4096

type pairKey struct{ from, to NodeID }

// Index answers nearest-node and shortest-path queries over a Graph.
// It is safe for concurrent use by any number of planning runs.
type Index struct {
	g   *Graph
	ids []NodeID // ascending, for deterministic nearest scans

	memo        sync.Map // model.Coordinate -> NodeID
	group       singleflight.Group
	resolutions atomic.Int64

	cache     *lru.Cache[pairKey, float64]
	cacheSize int
}

type Option func(*Index)

// WithCacheSize bounds the shortest-distance cache. Values <= 0 keep the default.
func WithCacheSize(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.cacheSize = n
		}
	}
}

func NewIndex(g *Graph, opts ...Option) (*Index, error) {
	if g == nil || g.NodeCount() == 0 {
		return nil, ErrEmptyGraph
	}
	ix := &Index{g: g, ids: g.sortedIDs(), cacheSize: defaultCacheSize}
	for _, o := range opts {
		o(ix)
	}
	c, err := lru.New[pairKey, float64](ix.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("distance cache: %w", err)
	}
	ix.cache = c
	return ix, nil
}

func (ix *Index) Graph() *Graph { return ix.g }

// Resolutions reports how many distinct coordinates have been snapped to a node.
func (ix *Index) Resolutions() int64 { return ix.resolutions.Load() }

// NearestNode snaps c to the closest graph node by great-circle distance.
// Each distinct coordinate is resolved once per Index; later calls, including
// concurrent ones, reuse the first answer.
func (ix *Index) NearestNode(c model.Coordinate) (NodeID, error) {
	if !c.Valid() {
		return 0, fmt.Errorf("nearest node (%v,%v): %w", c.Lat, c.Lon, ErrInvalidCoordinate)
	}
	c = canonical(c)
	if v, ok := ix.memo.Load(c); ok {
		return v.(NodeID), nil
	}
	v, _, _ := ix.group.Do(memoKey(c), func() (any, error) {
		if v, ok := ix.memo.Load(c); ok {
			return v, nil
		}
		id := ix.scanNearest(c)
		ix.memo.Store(c, id)
		ix.resolutions.Add(1)
		return id, nil
	})
	return v.(NodeID), nil
}

// canonical folds -0 into 0 so both spellings of a coordinate share one
// memo entry and one in-flight resolution.
func canonical(c model.Coordinate) model.Coordinate {
	if c.Lat == 0 {
		c.Lat = 0
	}
	if c.Lon == 0 {
		c.Lon = 0
	}
	return c
}

func memoKey(c model.Coordinate) string {
	return strconv.FormatUint(math.Float64bits(c.Lat), 16) + ":" + strconv.FormatUint(math.Float64bits(c.Lon), 16)
}

func (ix *Index) scanNearest(c model.Coordinate) NodeID {
	best, bestD := ix.ids[0], math.Inf(1)
	for _, id := range ix.ids {
		n := ix.g.nodes[id]
		if d := haversineMeters(c.Lat, c.Lon, n.Lat, n.Lon); d < bestD {
			best, bestD = id, d
		}
	}
	return best
}

// Distance returns the shortest road distance in meters from a to b.
func (ix *Index) Distance(a, b NodeID) (float64, error) {
	if err := ix.known(a, b); err != nil {
		return 0, err
	}
	if a == b {
		return 0, nil
	}
	d, ok := ix.cache.Get(pairKey{a, b})
	if !ok {
		d = ix.g.search(a, []NodeID{b}, false).distTo(b)
		ix.cache.Add(pairKey{a, b}, d)
	}
	if math.IsInf(d, 1) {
		return 0, fmt.Errorf("distance %d->%d: %w", a, b, ErrNoPathFound)
	}
	return d, nil
}

// DistancesFrom returns the shortest distance from src to each target, in
// target order. Unreachable targets get +Inf.
func (ix *Index) DistancesFrom(src NodeID, targets []NodeID) ([]float64, error) {
	if err := ix.known(append([]NodeID{src}, targets...)...); err != nil {
		return nil, err
	}
	out := make([]float64, len(targets))
	var missing []NodeID
	for i, t := range targets {
		if t == src {
			continue
		}
		if d, ok := ix.cache.Get(pairKey{src, t}); ok {
			out[i] = d
			continue
		}
		out[i] = -1
		missing = append(missing, t)
	}
	if len(missing) == 0 {
		return out, nil
	}
	res := ix.g.search(src, missing, false)
	for i, t := range targets {
		if out[i] >= 0 {
			continue
		}
		out[i] = res.distTo(t)
		ix.cache.Add(pairKey{src, t}, out[i])
	}
	return out, nil
}

// Path returns the node coordinates along the shortest road path from a to b,
// both endpoints included.
func (ix *Index) Path(a, b NodeID) ([]model.Coordinate, error) {
	if err := ix.known(a, b); err != nil {
		return nil, err
	}
	res := ix.g.search(a, []NodeID{b}, true)
	if math.IsInf(res.distTo(b), 1) {
		return nil, fmt.Errorf("path %d->%d: %w", a, b, ErrNoPathFound)
	}
	var rev []NodeID
	for n := b; ; n = res.prev[n] {
		rev = append(rev, n)
		if n == a {
			break
		}
	}
	out := make([]model.Coordinate, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		n := ix.g.nodes[rev[i]]
		out = append(out, model.Coordinate{Lat: n.Lat, Lon: n.Lon})
	}
	return out, nil
}

func (ix *Index) known(ids ...NodeID) error {
	for _, id := range ids {
		if _, ok := ix.g.nodes[id]; !ok {
			return fmt.Errorf("node %d: %w", id, ErrUnknownNode)
		}
	}
	return nil
}
