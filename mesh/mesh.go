// Package mesh provides the node view of a surface mesh that filaments can
// act on.
package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Mesh exposes node positions and which nodes are pinned.
type Mesh interface {
	NumNodes() int
	Node(i int) r3.Vec
	SetNode(i int, p r3.Vec)
	IsNodeFixed(i int) bool
}

// Nodes is a mesh reduced to its nodes.
type Nodes struct {
	Pos   []r3.Vec
	Fixed []bool
}

var _ Mesh = (*Nodes)(nil)

func (n *Nodes) NumNodes() int           { return len(n.Pos) }
func (n *Nodes) Node(i int) r3.Vec       { return n.Pos[i] }
func (n *Nodes) SetNode(i int, p r3.Vec) { n.Pos[i] = p }
func (n *Nodes) IsNodeFixed(i int) bool  { return n.Fixed[i] }

// Fix pins node i.
func (n *Nodes) Fix(i int) { n.Fixed[i] = true }

// NewUVSphere builds the nodes of a latitude/longitude sphere: two poles
// plus (rings-1)*sectors interior nodes.
func NewUVSphere(center r3.Vec, radius float64, rings, sectors int) *Nodes {
	if rings < 2 {
		rings = 2
	}
	if sectors < 3 {
		sectors = 3
	}
	n := 2 + (rings-1)*sectors
	m := &Nodes{
		Pos:   make([]r3.Vec, 0, n),
		Fixed: make([]bool, n),
	}
	m.Pos = append(m.Pos, r3.Add(center, r3.Vec{Y: radius}))
	for i := 1; i < rings; i++ {
		theta := math.Pi * float64(i) / float64(rings)
		y := radius * math.Cos(theta)
		rr := radius * math.Sin(theta)
		for j := 0; j < sectors; j++ {
			phi := 2 * math.Pi * float64(j) / float64(sectors)
			m.Pos = append(m.Pos, r3.Add(center, r3.Vec{X: rr * math.Cos(phi), Y: y, Z: rr * math.Sin(phi)}))
		}
	}
	m.Pos = append(m.Pos, r3.Add(center, r3.Vec{Y: -radius}))
	return m
}
