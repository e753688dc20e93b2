package roadnet

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrUnknownNode       = errors.New("unknown node")
	ErrNoPathFound       = errors.New("no path found")
	ErrEmptyGraph        = errors.New("graph has no nodes")
	ErrInvalidCoordinate = errors.New("invalid coordinate")
)

type NodeID int64

type Node struct {
	ID  NodeID
	Lat float64
	Lon float64
}

type Edge struct {
	To     NodeID
	Length float64 // meters
}

// Graph is a directed road graph weighted by edge length. It is built once
// and then handed to NewIndex; it must not be mutated afterwards.
type Graph struct {
	nodes map[NodeID]Node
	adj   map[NodeID][]Edge
	edges int
}

func NewGraph() *Graph {
	return &Graph{nodes: map[NodeID]Node{}, adj: map[NodeID][]Edge{}}
}

// AddNode inserts or replaces a node.
func (g *Graph) AddNode(id NodeID, lat, lon float64) {
	g.nodes[id] = Node{ID: id, Lat: lat, Lon: lon}
}

// AddEdge adds a directed edge. Both endpoints must already exist.
func (g *Graph) AddEdge(from, to NodeID, length float64) error {
	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("add edge %d->%d: %w", from, to, ErrUnknownNode)
	}
	if _, ok := g.nodes[to]; !ok {
		return fmt.Errorf("add edge %d->%d: %w", from, to, ErrUnknownNode)
	}
	if length < 0 || math.IsNaN(length) || math.IsInf(length, 0) {
		return fmt.Errorf("add edge %d->%d: invalid length %v", from, to, length)
	}
	g.adj[from] = append(g.adj[from], Edge{To: to, Length: length})
	g.edges++
	return nil
}

func (g *Graph) Node(id NodeID) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

func (g *Graph) NodeCount() int { return len(g.nodes) }
func (g *Graph) EdgeCount() int { return g.edges }

func (g *Graph) sortedIDs() []NodeID {
	ids := make([]NodeID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return R * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
