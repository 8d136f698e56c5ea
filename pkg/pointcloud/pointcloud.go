// Package pointcloud flattens ROI contours into a single 3D point cloud.
package pointcloud

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"rtvolume/internal/models"
	apperrors "rtvolume/pkg/errors"
)

// Cloud is an ordered collection of points in millimetres.
type Cloud []r3.Vec

// Assemble splits every contour into consecutive (x, y, z) triples and
// concatenates them in contour order. Empty contours contribute nothing.
func Assemble(seq models.ContourSequence) (Cloud, error) {
	n := 0
	for i, contour := range seq {
		if len(contour)%3 != 0 {
			return nil, apperrors.Newf(apperrors.ErrFormat, "contour %d has %d coordinates, not a multiple of 3", i, len(contour))
		}
		n += len(contour) / 3
	}

	cloud := make(Cloud, 0, n)
	for _, contour := range seq {
		for j := 0; j < len(contour); j += 3 {
			cloud = append(cloud, r3.Vec{X: contour[j], Y: contour[j+1], Z: contour[j+2]})
		}
	}
	return cloud, nil
}

// Summary holds descriptive statistics of a cloud.
type Summary struct {
	Points   int
	Centroid r3.Vec
	Bounds   r3.Box

	// Spread holds the standard deviations along the principal axes,
	// largest first. A near-zero last value means the cloud is flat.
	Spread [3]float64
}

// Describe computes the summary of a non-empty cloud.
func Describe(c Cloud) Summary {
	s := Summary{Points: len(c)}
	if len(c) == 0 {
		return s
	}

	xs := make([]float64, len(c))
	ys := make([]float64, len(c))
	zs := make([]float64, len(c))
	s.Bounds = r3.Box{Min: c[0], Max: c[0]}
	for i, p := range c {
		xs[i], ys[i], zs[i] = p.X, p.Y, p.Z
		s.Bounds.Min = r3.Vec{X: math.Min(s.Bounds.Min.X, p.X), Y: math.Min(s.Bounds.Min.Y, p.Y), Z: math.Min(s.Bounds.Min.Z, p.Z)}
		s.Bounds.Max = r3.Vec{X: math.Max(s.Bounds.Max.X, p.X), Y: math.Max(s.Bounds.Max.Y, p.Y), Z: math.Max(s.Bounds.Max.Z, p.Z)}
	}
	s.Centroid = r3.Vec{X: stat.Mean(xs, nil), Y: stat.Mean(ys, nil), Z: stat.Mean(zs, nil)}

	if len(c) < 2 {
		return s
	}

	data := mat.NewDense(len(c), 3, nil)
	data.SetCol(0, xs)
	data.SetCol(1, ys)
	data.SetCol(2, zs)

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, nil)

	var eig mat.EigenSym
	if !eig.Factorize(&cov, false) {
		return s
	}
	values := eig.Values(nil)
	// EigenSym reports eigenvalues in ascending order.
	for i := 0; i < 3; i++ {
		s.Spread[i] = math.Sqrt(math.Max(values[2-i], 0))
	}
	return s
}
