package hull

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// MM3PerCC converts cubic millimetres to cubic centimetres.
const MM3PerCC = 1000.0

// TetrahedronVolume returns |(v1 − v4) · ((v2 − v4) × (v3 − v4))| / 6.
func TetrahedronVolume(v1, v2, v3, v4 r3.Vec) float64 {
	det := r3.Dot(r3.Sub(v1, v4), r3.Cross(r3.Sub(v2, v4), r3.Sub(v3, v4)))
	if det < 0 {
		det = -det
	}
	return det / 6
}

// Anchor returns the index of the vertex every facet is joined to when the
// hull is split into tetrahedra: the first hull vertex.
func (h *Hull) Anchor() int {
	return h.Vertices[0]
}

// Volume returns the hull volume in the units of the input cubed.
//
// Each facet is joined to the anchor vertex to form a tetrahedron. The
// anchor lies behind every facet, so the tetrahedra tile the hull; facets
// through the anchor are flat and add nothing.
func (h *Hull) Volume() float64 {
	anchor := h.Points[h.Anchor()]
	volumes := make([]float64, len(h.Simplices))
	for i, s := range h.Simplices {
		volumes[i] = TetrahedronVolume(anchor, h.Points[s[0]], h.Points[s[1]], h.Points[s[2]])
	}
	return floats.Sum(volumes)
}

// Triangles returns the facets as vertex triples, counter-clockwise when
// seen from outside.
func (h *Hull) Triangles() [][3]r3.Vec {
	out := make([][3]r3.Vec, len(h.Simplices))
	for i, s := range h.Simplices {
		out[i] = [3]r3.Vec{h.Points[s[0]], h.Points[s[1]], h.Points[s[2]]}
	}
	return out
}

// Volume computes the convex hull of points, given in millimetres, and
// returns its volume in cubic centimetres.
func Volume(points []r3.Vec) (float64, error) {
	h, err := Compute(points)
	if err != nil {
		return 0, err
	}
	return h.Volume() / MM3PerCC, nil
}
