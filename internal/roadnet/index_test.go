package roadnet

import (
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetroute/internal/model"
)

// lineGraph is 1-2-3-4 two-way at 100m per hop, a 50m shortcut 4->1 and an
// isolated node 5.
func lineGraph(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph()
	for i := 1; i <= 4; i++ {
		g.AddNode(NodeID(i), 0, float64(i-1)*0.01)
	}
	g.AddNode(5, 1, 1)
	for i := 1; i < 4; i++ {
		require.NoError(t, g.AddEdge(NodeID(i), NodeID(i+1), 100))
		require.NoError(t, g.AddEdge(NodeID(i+1), NodeID(i), 100))
	}
	require.NoError(t, g.AddEdge(4, 1, 50))
	return g
}

func TestIndexDistance(t *testing.T) {
	ix, err := NewIndex(lineGraph(t))
	require.NoError(t, err)

	d, err := ix.Distance(1, 3)
	require.NoError(t, err)
	assert.Equal(t, 200.0, d)

	d, err = ix.Distance(4, 1)
	require.NoError(t, err)
	assert.Equal(t, 50.0, d)

	d, err = ix.Distance(1, 4)
	require.NoError(t, err)
	assert.Equal(t, 300.0, d)

	d, err = ix.Distance(2, 2)
	require.NoError(t, err)
	assert.Zero(t, d)

	_, err = ix.Distance(1, 5)
	assert.ErrorIs(t, err, ErrNoPathFound)
	// cached +Inf still reports no path
	_, err = ix.Distance(1, 5)
	assert.ErrorIs(t, err, ErrNoPathFound)

	_, err = ix.Distance(1, 99)
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestIndexDistancesFrom(t *testing.T) {
	ix, err := NewIndex(lineGraph(t), WithCacheSize(8))
	require.NoError(t, err)
	got, err := ix.DistancesFrom(1, []NodeID{1, 3, 5, 4})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, 0.0, got[0])
	assert.Equal(t, 200.0, got[1])
	assert.True(t, math.IsInf(got[2], 1))
	assert.Equal(t, 300.0, got[3])

	// second call served from cache, same answer
	again, err := ix.DistancesFrom(1, []NodeID{1, 3, 5, 4})
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestIndexPath(t *testing.T) {
	ix, err := NewIndex(lineGraph(t))
	require.NoError(t, err)
	p, err := ix.Path(1, 3)
	require.NoError(t, err)
	assert.Equal(t, []model.Coordinate{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0.01}, {Lat: 0, Lon: 0.02}}, p)

	_, err = ix.Path(5, 1)
	assert.ErrorIs(t, err, ErrNoPathFound)
}

func TestNearestNodeMemoized(t *testing.T) {
	ix, err := NewIndex(lineGraph(t))
	require.NoError(t, err)
	c := model.Coordinate{Lat: 0, Lon: 0.011}
	for i := 0; i < 3; i++ {
		id, err := ix.NearestNode(c)
		require.NoError(t, err)
		assert.Equal(t, NodeID(2), id)
	}
	assert.EqualValues(t, 1, ix.Resolutions())

	_, err = ix.NearestNode(model.Coordinate{Lat: math.NaN()})
	assert.ErrorIs(t, err, ErrInvalidCoordinate)
	assert.EqualValues(t, 1, ix.Resolutions())
}

func TestNearestNodeConcurrent(t *testing.T) {
	ix, err := NewIndex(lineGraph(t))
	require.NoError(t, err)
	c := model.Coordinate{Lat: 0.9, Lon: 0.95}
	var wg sync.WaitGroup
	ids := make([]NodeID, 32)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], _ = ix.NearestNode(c)
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, NodeID(5), id)
	}
	assert.EqualValues(t, 1, ix.Resolutions())
}

func TestNearestNodeSignedZero(t *testing.T) {
	negZero := math.Copysign(0, -1)
	assert.Equal(t, memoKey(canonical(model.Coordinate{})), memoKey(canonical(model.Coordinate{Lat: negZero, Lon: negZero})))
	assert.NotEqual(t, memoKey(model.Coordinate{Lat: 1}), memoKey(model.Coordinate{Lon: 1}))

	ix, err := NewIndex(lineGraph(t))
	require.NoError(t, err)
	var wg sync.WaitGroup
	ids := make([]NodeID, 32)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := model.Coordinate{}
			if i%2 == 1 {
				c = model.Coordinate{Lat: negZero, Lon: negZero}
			}
			ids[i], _ = ix.NearestNode(c)
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, NodeID(1), id)
	}
	assert.EqualValues(t, 1, ix.Resolutions())
}

func TestNewIndexEmpty(t *testing.T) {
	_, err := NewIndex(NewGraph())
	assert.ErrorIs(t, err, ErrEmptyGraph)
}

func TestDecodeGraph(t *testing.T) {
	doc := `
nodes:
  - {id: 10, lat: 0, lon: 0}
  - {id: 11, lat: 0, lon: 0.01}
  - {id: 12, lat: 0, lon: 0.02}
edges:
  - {from: 10, to: 11}
  - {from: 11, to: 12, length: 40, oneway: true}
`
	g, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 3, g.NodeCount())
	assert.Equal(t, 3, g.EdgeCount())

	ix, err := NewIndex(g)
	require.NoError(t, err)
	there, err := ix.Distance(10, 11)
	require.NoError(t, err)
	back, err := ix.Distance(11, 10)
	require.NoError(t, err)
	assert.InDelta(t, 1112, there, 2)
	assert.Equal(t, there, back)

	_, err = ix.Distance(12, 11)
	assert.ErrorIs(t, err, ErrNoPathFound)
}

func TestDecodeGraphJSON(t *testing.T) {
	g, err := Decode(strings.NewReader(`{"nodes":[{"id":1,"lat":1,"lon":1}],"edges":[]}`))
	require.NoError(t, err)
	assert.Equal(t, 1, g.NodeCount())

	_, err = Decode(strings.NewReader(`{"nodes":[{"id":1,"lat":1,"lon":1}],"edges":[{"from":1,"to":2}]}`))
	assert.ErrorIs(t, err, ErrUnknownNode)
}
