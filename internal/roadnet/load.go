package roadnet

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// graphDoc is the on-disk road graph. YAML and JSON are both accepted.
//
//	nodes: [{id: 1, lat: -3.73, lon: -38.52}]
//	edges: [{from: 1, to: 2, length: 120.5, oneway: true}]
//
// A missing length falls back to the great-circle distance between the
// endpoints. Edges are two-way unless oneway is set.
type graphDoc struct {
	Nodes []struct {
		ID  int64   `yaml:"id"`
		Lat float64 `yaml:"lat"`
		Lon float64 `yaml:"lon"`
	} `yaml:"nodes"`
	Edges []struct {
		From   int64    `yaml:"from"`
		To     int64    `yaml:"to"`
		Length *float64 `yaml:"length"`
		Oneway bool     `yaml:"oneway"`
	} `yaml:"edges"`
}

func Decode(r io.Reader) (*Graph, error) {
	var doc graphDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	g := NewGraph()
	for _, n := range doc.Nodes {
		g.AddNode(NodeID(n.ID), n.Lat, n.Lon)
	}
	for _, e := range doc.Edges {
		from, to := NodeID(e.From), NodeID(e.To)
		length := 0.0
		if e.Length != nil {
			length = *e.Length
		} else {
			a, okA := g.Node(from)
			b, okB := g.Node(to)
			if okA && okB {
				length = haversineMeters(a.Lat, a.Lon, b.Lat, b.Lon)
			}
		}
		if err := g.AddEdge(from, to, length); err != nil {
			return nil, err
		}
		if !e.Oneway {
			if err := g.AddEdge(to, from, length); err != nil {
				return nil, err
			}
		}
	}
	if g.NodeCount() == 0 {
		return nil, ErrEmptyGraph
	}
	return g, nil
}

func LoadFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	g, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}
