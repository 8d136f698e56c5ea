// Package volumetry measures the convex hull volume of a named ROI in an RT
// Structure Set.
package volumetry

import (
	"fmt"

	"rtvolume/internal/models"
	"rtvolume/pkg/hull"
	"rtvolume/pkg/logger"
	"rtvolume/pkg/pointcloud"
	"rtvolume/pkg/rtstruct"
	"rtvolume/pkg/stl"
)

// StructureSet is the part of an rtstruct.Record a measurement reads.
type StructureSet interface {
	PatientID() string
	ROIs() []rtstruct.ROI
	FindROI(name string) (int, error)
	Contours(index int) (models.ContourSequence, error)
}

// Options tunes a measurement
type Options struct {
	// RelativeTolerance is passed to the hull; zero selects the default
	RelativeTolerance float64

	// DedupeTolerance, when positive, merges points closer than this many
	// millimetres before the hull is built
	DedupeTolerance float64
}

// Result is the outcome of one (patient, ROI) measurement
type Result struct {
	PatientID string

	// ROI is the matched ROI name as stored in the structure set
	ROI      string
	ROIIndex int

	// Cloud is the assembled contour point cloud in mm
	Cloud pointcloud.Cloud

	// Hull is the convex hull of Cloud
	Hull *hull.Hull

	// VolumeCC is the hull volume in cubic centimetres
	VolumeCC float64
}

// Measure finds the ROI called name (ignoring case), assembles its contour
// points and returns the volume of their convex hull.
func Measure(rs StructureSet, name string, opts Options) (*Result, error) {
	log := logger.WithComponent("volumetry")

	idx, err := rs.FindROI(name)
	if err != nil {
		return nil, fmt.Errorf("patient %s: %w", rs.PatientID(), err)
	}
	roiName := name
	for _, roi := range rs.ROIs() {
		if roi.Index == idx {
			roiName = roi.Name
			break
		}
	}

	contours, err := rs.Contours(idx)
	if err != nil {
		return nil, fmt.Errorf("patient %s ROI %s: %w", rs.PatientID(), roiName, err)
	}

	cloud, err := pointcloud.Assemble(contours)
	if err != nil {
		return nil, fmt.Errorf("patient %s ROI %s: %w", rs.PatientID(), roiName, err)
	}

	if opts.DedupeTolerance > 0 {
		cloud = pointcloud.Dedupe(cloud, opts.DedupeTolerance)
	}

	tol := opts.RelativeTolerance
	if tol == 0 {
		tol = hull.DefaultRelativeTolerance
	}
	h, err := hull.ComputeWithTolerance(cloud, tol)
	if err != nil {
		return nil, fmt.Errorf("patient %s ROI %s (%d points): %w", rs.PatientID(), roiName, len(cloud), err)
	}

	res := &Result{
		PatientID: rs.PatientID(),
		ROI:       roiName,
		ROIIndex:  idx,
		Cloud:     cloud,
		Hull:      h,
		VolumeCC:  h.Volume() / hull.MM3PerCC,
	}

	log.Debug("measured ROI",
		"patient_id", res.PatientID,
		"roi", res.ROI,
		"contours", len(contours),
		"points", len(cloud),
		"hull_vertices", len(h.Vertices),
		"hull_facets", len(h.Simplices),
		"volume_cc", res.VolumeCC,
	)

	return res, nil
}

// Mesh returns the hull surface as STL triangles.
func (r *Result) Mesh() []stl.Triangle {
	return stl.FromFacets(r.Hull.Triangles())
}

// Summary describes the point cloud the volume was computed from.
func (r *Result) Summary() pointcloud.Summary {
	return pointcloud.Describe(r.Cloud)
}

// Report flattens the result into a batch report row.
func (r *Result) Report() models.VolumeReport {
	return models.VolumeReport{
		PatientID:    r.PatientID,
		ROI:          r.ROI,
		VolumeCC:     r.VolumeCC,
		Points:       len(r.Cloud),
		HullVertices: len(r.Hull.Vertices),
		HullFacets:   len(r.Hull.Simplices),
	}
}
