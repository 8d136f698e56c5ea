// Package stl writes triangle meshes in the binary STL format.
package stl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/spatial/r3"
)

// headerSize is the fixed size of the binary STL header
const headerSize = 80

// Triangle is one facet of a mesh. Vertices are counter-clockwise when seen
// from the side Normal points to.
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

// NewTriangle builds a triangle and derives its unit normal from the
// winding of a, b, c. Degenerate triangles get a zero normal.
func NewTriangle(a, b, c r3.Vec) Triangle {
	n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	if norm := r3.Norm(n); norm > 0 {
		n = r3.Scale(1/norm, n)
	}
	return Triangle{
		Normal:  toFloat32(n),
		Vertex1: toFloat32(a),
		Vertex2: toFloat32(b),
		Vertex3: toFloat32(c),
	}
}

// FromFacets converts vertex triples into triangles.
func FromFacets(facets [][3]r3.Vec) []Triangle {
	out := make([]Triangle, len(facets))
	for i, f := range facets {
		out[i] = NewTriangle(f[0], f[1], f[2])
	}
	return out
}

func toFloat32(v r3.Vec) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}

// Write encodes triangles as binary STL. The header is truncated to 80 bytes.
func Write(w io.Writer, header string, triangles []Triangle) error {
	if uint64(len(triangles)) > math.MaxUint32 {
		return fmt.Errorf("too many triangles: %d", len(triangles))
	}

	bw := bufio.NewWriter(w)

	var head [headerSize]byte
	copy(head[:], header)
	if _, err := bw.Write(head[:]); err != nil {
		return fmt.Errorf("error writing STL header: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return fmt.Errorf("error writing triangle count: %w", err)
	}

	for i, t := range triangles {
		record := struct {
			Triangle
			Attribute uint16
		}{Triangle: t}
		if err := binary.Write(bw, binary.LittleEndian, record); err != nil {
			return fmt.Errorf("error writing triangle %d: %w", i, err)
		}
	}

	return bw.Flush()
}

// SaveToSTL writes triangles to a binary STL file at path
func SaveToSTL(path string, triangles []Triangle) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating STL file: %w", err)
	}

	if err := Write(f, "rtvolume convex hull", triangles); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
