package models

// Contour is one planar outline of an ROI on a single slice, stored as the
// flat x1,y1,z1,x2,y2,z2,... coordinate list of the DICOM Contour Data
// attribute. Units are millimetres.
type Contour []float64

// ContourSequence holds the contours of one ROI in stored order.
type ContourSequence []Contour

// RecordKind classifies a DICOM file within a study
type RecordKind int

const (
	// Image is a plain imaging record (CT, MR, ...)
	Image RecordKind = iota

	// StructureSet is an RT Structure Set carrying a Structure Set ROI Sequence
	StructureSet
)

func (k RecordKind) String() string {
	switch k {
	case StructureSet:
		return "structure-set"
	default:
		return "image"
	}
}

// PatientSummary describes the files found for one patient
type PatientSummary struct {
	// PatientID is the DICOM Patient ID shared by all the files
	PatientID string

	// ImageCount is the number of imaging records
	ImageCount int

	// StructureSets names the structure-set sources, in scan order
	StructureSets []string
}

// VolumeReport is one row of a batch volume run
type VolumeReport struct {
	PatientID string
	ROI       string

	// VolumeCC is the convex hull volume in cubic centimetres
	VolumeCC float64

	// Points is the size of the assembled point cloud
	Points int

	// HullVertices and HullFacets describe the hull the volume came from
	HullVertices int
	HullFacets   int

	// Err is set when this patient could not be measured
	Err error
}
