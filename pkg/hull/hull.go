// Package hull computes 3D convex hulls and their volume by tetrahedral
// decomposition.
//
// The hull is built incrementally in the quickhull manner: start from a
// maximal tetrahedron, then repeatedly add the farthest outside point of a
// facet, replacing every facet it can see by a fan from the horizon to the
// new point. Facets are kept counter-clockwise when seen from outside.
//
// Example usage:
//
//	h, err := hull.Compute(points)
//	if err != nil {
//		return err
//	}
//	cc := h.Volume() / 1000
package hull

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	apperrors "rtvolume/pkg/errors"
)

// DefaultRelativeTolerance scales the coplanarity threshold by the largest
// absolute coordinate of the input.
const DefaultRelativeTolerance = 1e-10

// Hull is the convex hull of a point set. It is computed per query and never
// mutated afterwards.
type Hull struct {
	// Points is the input point set
	Points []r3.Vec

	// Vertices lists the indices of the points on the hull in ascending order
	Vertices []int

	// Simplices lists the triangular boundary facets as indices into Points,
	// counter-clockwise when seen from outside
	Simplices [][3]int
}

type facet struct {
	v [3]int
	// neighbors[k] shares the edge v[k] -> v[k+1]
	neighbors [3]*facet
	normal    r3.Vec
	offset    float64
	outside   []int
	visible   bool
}

func (f *facet) distance(p r3.Vec) float64 {
	return r3.Dot(f.normal, p) - f.offset
}

func (f *facet) has(v int) bool {
	return f.v[0] == v || f.v[1] == v || f.v[2] == v
}

// edge returns k such that f.v[k] -> f.v[k+1] is from -> to, or -1.
func (f *facet) edge(from, to int) int {
	for k := 0; k < 3; k++ {
		if f.v[k] == from && f.v[(k+1)%3] == to {
			return k
		}
	}
	return -1
}

type horizonEdge struct {
	from, to int
	outer    *facet
}

type builder struct {
	points []r3.Vec
	eps    float64
	facets []*facet
}

// Compute builds the hull of points with DefaultRelativeTolerance.
func Compute(points []r3.Vec) (*Hull, error) {
	return ComputeWithTolerance(points, DefaultRelativeTolerance)
}

// ComputeWithTolerance builds the hull of points. Points closer than
// tol times the coordinate scale to a facet plane count as lying on it.
//
// It fails with errors.ErrInsufficientPoints for fewer than 4 points and
// with errors.ErrDegenerate when the points are coincident, collinear or
// coplanar.
func ComputeWithTolerance(points []r3.Vec, tol float64) (*Hull, error) {
	if len(points) < 4 {
		return nil, apperrors.Newf(apperrors.ErrInsufficientPoints, "need at least 4 points, got %d", len(points))
	}

	b := &builder{points: points, eps: tolerance(points, tol)}

	simplex, err := b.initialSimplex()
	if err != nil {
		return nil, err
	}
	b.seed(simplex)

	for {
		f := b.nextFacet()
		if f == nil {
			break
		}
		if err := b.addPoint(f); err != nil {
			return nil, err
		}
	}

	return b.result(), nil
}

// tolerance is the distance below which a point counts as lying on a facet
// plane: tol times the coordinate scale, but never below the rounding error
// of a plane distance at that magnitude.
func tolerance(points []r3.Vec, tol float64) float64 {
	var maxX, maxY, maxZ float64
	for _, p := range points {
		maxX = math.Max(maxX, math.Abs(p.X))
		maxY = math.Max(maxY, math.Abs(p.Y))
		maxZ = math.Max(maxZ, math.Abs(p.Z))
	}
	eps := math.Max(tol*math.Max(maxX, math.Max(maxY, maxZ)), 3*machineEpsilon*(maxX+maxY+maxZ))
	if eps == 0 {
		return tol
	}
	return eps
}

const machineEpsilon = 0x1p-52

func coordinateScale(points []r3.Vec) float64 {
	var scale float64
	for _, p := range points {
		scale = math.Max(scale, math.Max(math.Abs(p.X), math.Max(math.Abs(p.Y), math.Abs(p.Z))))
	}
	return scale
}

// initialSimplex picks four affinely independent points spanning as much of
// the cloud as possible.
func (b *builder) initialSimplex() ([4]int, error) {
	var simplex [4]int
	pts := b.points

	// Extremes along the axis with the widest spread.
	var lo, hi [3]int
	for i, p := range pts {
		for axis := 0; axis < 3; axis++ {
			if component(p, axis) < component(pts[lo[axis]], axis) {
				lo[axis] = i
			}
			if component(p, axis) > component(pts[hi[axis]], axis) {
				hi[axis] = i
			}
		}
	}
	best := 0
	for axis := 1; axis < 3; axis++ {
		if component(pts[hi[axis]], axis)-component(pts[lo[axis]], axis) >
			component(pts[hi[best]], best)-component(pts[lo[best]], best) {
			best = axis
		}
	}
	simplex[0], simplex[1] = lo[best], hi[best]
	p0, p1 := pts[simplex[0]], pts[simplex[1]]
	if r3.Norm(r3.Sub(p1, p0)) <= b.eps {
		return simplex, apperrors.New(apperrors.ErrDegenerate, "all points coincide")
	}

	// Farthest from the line p0-p1.
	dir := r3.Unit(r3.Sub(p1, p0))
	maxDist := -1.0
	for i, p := range pts {
		if d := r3.Norm(r3.Cross(r3.Sub(p, p0), dir)); d > maxDist {
			maxDist, simplex[2] = d, i
		}
	}
	if maxDist <= b.eps {
		return simplex, apperrors.New(apperrors.ErrDegenerate, "all points are collinear")
	}

	// Farthest from the plane p0-p1-p2.
	normal := r3.Unit(r3.Cross(r3.Sub(p1, p0), r3.Sub(pts[simplex[2]], p0)))
	maxDist = -1.0
	for i, p := range pts {
		if d := math.Abs(r3.Dot(r3.Sub(p, p0), normal)); d > maxDist {
			maxDist, simplex[3] = d, i
		}
	}
	if maxDist <= b.eps {
		return simplex, apperrors.New(apperrors.ErrDegenerate, "all points are coplanar")
	}

	return simplex, nil
}

func component(p r3.Vec, axis int) float64 {
	switch axis {
	case 0:
		return p.X
	case 1:
		return p.Y
	default:
		return p.Z
	}
}

// seed creates the four facets of the initial simplex, oriented away from
// its centroid, and distributes the remaining points over them.
func (b *builder) seed(s [4]int) {
	centroid := r3.Scale(0.25, r3.Add(r3.Add(b.points[s[0]], b.points[s[1]]), r3.Add(b.points[s[2]], b.points[s[3]])))

	for _, tri := range [][3]int{
		{s[0], s[1], s[2]},
		{s[0], s[1], s[3]},
		{s[0], s[2], s[3]},
		{s[1], s[2], s[3]},
	} {
		f := b.newFacet(tri[0], tri[1], tri[2])
		if f.distance(centroid) > 0 {
			f = b.newFacet(tri[0], tri[2], tri[1])
		}
		b.facets = append(b.facets, f)
	}

	edges := make(map[[2]int]*facet)
	for _, f := range b.facets {
		for k := 0; k < 3; k++ {
			edges[[2]int{f.v[k], f.v[(k+1)%3]}] = f
		}
	}
	for _, f := range b.facets {
		for k := 0; k < 3; k++ {
			f.neighbors[k] = edges[[2]int{f.v[(k+1)%3], f.v[k]}]
		}
	}

	inSimplex := map[int]bool{s[0]: true, s[1]: true, s[2]: true, s[3]: true}
	candidates := make([]int, 0, len(b.points))
	for i := range b.points {
		if !inSimplex[i] {
			candidates = append(candidates, i)
		}
	}
	b.assign(candidates, b.facets)
}

func (b *builder) newFacet(a, c, d int) *facet {
	pa := b.points[a]
	normal := r3.Cross(r3.Sub(b.points[c], pa), r3.Sub(b.points[d], pa))
	if n := r3.Norm(normal); n > 0 {
		normal = r3.Scale(1/n, normal)
	}
	return &facet{v: [3]int{a, c, d}, normal: normal, offset: r3.Dot(normal, pa)}
}

// assign moves each candidate into the outside set of the facet it lies
// farthest above. Points above no facet are interior and dropped.
func (b *builder) assign(candidates []int, facets []*facet) {
	for _, i := range candidates {
		p := b.points[i]
		var target *facet
		maxDist := b.eps
		for _, f := range facets {
			if d := f.distance(p); d > maxDist {
				maxDist, target = d, f
			}
		}
		if target != nil {
			target.outside = append(target.outside, i)
		}
	}
}

func (b *builder) nextFacet() *facet {
	for _, f := range b.facets {
		if len(f.outside) > 0 {
			return f
		}
	}
	return nil
}

// addPoint inserts the farthest outside point of f into the hull.
func (b *builder) addPoint(f *facet) error {
	eyeIdx := f.outside[0]
	maxDist := f.distance(b.points[eyeIdx])
	for _, i := range f.outside[1:] {
		if d := f.distance(b.points[i]); d > maxDist {
			maxDist, eyeIdx = d, i
		}
	}
	eye := b.points[eyeIdx]

	region, horizon, err := b.visibleRegion(f, eye)
	if err != nil {
		return err
	}

	// One new facet per horizon edge, kept in the visible facet's edge
	// direction to preserve the winding. Consecutive horizon edges share a
	// vertex, so consecutive new facets share their edge through the eye.
	created := make([]*facet, len(horizon))
	for i, e := range horizon {
		nf := b.newFacet(e.from, e.to, eyeIdx)
		nf.neighbors[0] = e.outer
		e.outer.neighbors[e.outer.edge(e.to, e.from)] = nf
		created[i] = nf
	}
	for i, nf := range created {
		next := created[(i+1)%len(created)]
		nf.neighbors[1] = next
		next.neighbors[2] = nf
	}

	var orphans []int
	for _, g := range region {
		for _, i := range g.outside {
			if i != eyeIdx {
				orphans = append(orphans, i)
			}
		}
	}

	live := b.facets[:0]
	for _, g := range b.facets {
		if !g.visible {
			live = append(live, g)
		}
	}
	b.facets = append(live, created...)

	b.assign(orphans, created)
	return nil
}

// visibleRegion collects the facets eye sees, walking across shared edges
// from f, and returns them with their boundary as one closed loop.
//
// Rounding can leave the visible set with holes or touching itself at a
// vertex; both are absorbed into the region until its boundary is a
// single loop, which keeps the surface closed.
func (b *builder) visibleRegion(f *facet, eye r3.Vec) ([]*facet, []horizonEdge, error) {
	f.visible = true
	region := []*facet{f}
	for i := 0; i < len(region); i++ {
		for _, n := range region[i].neighbors {
			if !n.visible && n.distance(eye) > b.eps {
				n.visible = true
				region = append(region, n)
			}
		}
	}

	for {
		edges, ok := horizonLoop(region)
		if ok {
			return region, edges, nil
		}

		grown := b.fillHoles(region, eye)
		if len(grown) == len(region) {
			grown = b.unpinch(region, edges)
		}
		if len(grown) == len(region) || len(grown) == len(b.facets) {
			return nil, nil, apperrors.New(apperrors.ErrDegenerate, "points are too close to coplanar to form a closed hull")
		}
		region = grown
	}
}

// horizonLoop returns the boundary edges of region. ok reports whether
// they form exactly one loop through distinct vertices, in which case the
// edges are returned in loop order.
func horizonLoop(region []*facet) ([]horizonEdge, bool) {
	var edges []horizonEdge
	for _, g := range region {
		for k, n := range g.neighbors {
			if !n.visible {
				edges = append(edges, horizonEdge{from: g.v[k], to: g.v[(k+1)%3], outer: n})
			}
		}
	}
	if len(edges) < 3 {
		return edges, false
	}

	byFrom := make(map[int]int, len(edges))
	for i, e := range edges {
		if _, dup := byFrom[e.from]; dup {
			return edges, false
		}
		byFrom[e.from] = i
	}

	loop := make([]horizonEdge, 0, len(edges))
	i := 0
	for len(loop) < len(edges) {
		loop = append(loop, edges[i])
		next, ok := byFrom[edges[i].to]
		if !ok {
			return edges, false
		}
		i = next
		if i == 0 {
			break
		}
	}
	return loop, len(loop) == len(edges) && i == 0
}

// fillHoles adds to region every hidden component except the one holding
// the facet farthest below eye.
func (b *builder) fillHoles(region []*facet, eye r3.Vec) []*facet {
	component := make(map[*facet]int)
	var members [][]*facet
	keep, lowest := -1, math.Inf(1)
	for _, start := range b.facets {
		if start.visible {
			continue
		}
		if _, seen := component[start]; seen {
			continue
		}
		id := len(members)
		component[start] = id
		group := []*facet{start}
		for i := 0; i < len(group); i++ {
			g := group[i]
			if d := g.distance(eye); d < lowest {
				keep, lowest = id, d
			}
			for _, n := range g.neighbors {
				if _, seen := component[n]; !seen && !n.visible {
					component[n] = id
					group = append(group, n)
				}
			}
		}
		members = append(members, group)
	}

	for id, group := range members {
		if id == keep {
			continue
		}
		for _, g := range group {
			g.visible = true
			region = append(region, g)
		}
	}
	return region
}

// unpinch adds to region the hidden facets around every vertex the
// boundary passes through more than once.
func (b *builder) unpinch(region []*facet, edges []horizonEdge) []*facet {
	count := make(map[int]int)
	for _, e := range edges {
		count[e.from]++
	}
	for _, g := range b.facets {
		if g.visible {
			continue
		}
		for v, n := range count {
			if n > 1 && g.has(v) {
				g.visible = true
				region = append(region, g)
				break
			}
		}
	}
	return region
}

func (b *builder) result() *Hull {
	h := &Hull{
		Points:    b.points,
		Simplices: make([][3]int, 0, len(b.facets)),
	}
	seen := make(map[int]bool)
	for _, f := range b.facets {
		h.Simplices = append(h.Simplices, f.v)
		for _, v := range f.v {
			if !seen[v] {
				seen[v] = true
				h.Vertices = append(h.Vertices, v)
			}
		}
	}
	sort.Ints(h.Vertices)
	return h
}
