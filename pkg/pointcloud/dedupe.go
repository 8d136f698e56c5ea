package pointcloud

import (
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// treePoint implements kdtree.Comparable for a cloud point
type treePoint r3.Vec

// Compare implements the kdtree.Comparable interface
func (p treePoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(treePoint)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p treePoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points
func (p treePoint) Distance(c kdtree.Comparable) float64 {
	q := c.(treePoint)
	dx := p.X - q.X
	dy := p.Y - q.Y
	dz := p.Z - q.Z
	return dx*dx + dy*dy + dz*dz
}

// Dedupe drops every point within tol millimetres of an earlier kept point.
// Kept points stay in their original order. Closed contours commonly repeat
// their first point at the end.
func Dedupe(c Cloud, tol float64) Cloud {
	if len(c) == 0 {
		return Cloud{}
	}

	tree := &kdtree.Tree{}
	out := make(Cloud, 0, len(c))
	for _, p := range c {
		q := treePoint(p)
		if nearest, d := tree.Nearest(q); nearest != nil && d <= tol*tol {
			continue
		}
		tree.Insert(q, false)
		out = append(out, p)
	}
	return out
}
