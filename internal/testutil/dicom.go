// Package testutil builds synthetic DICOM datasets for tests.
//
// This package is intended for use in tests only.
//
//	ds := testutil.StructureSet(t, "P001", testutil.ROISpec{
//		Number:   1,
//		Name:     "LUNG_L",
//		Contours: testutil.CubeContours(10),
//	})
//	path := testutil.WriteFile(t, dir, "rs.dcm", ds)
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

const (
	rtStructureSetStorage  = "1.2.840.10008.5.1.4.1.1.481.3"
	ctImageStorage         = "1.2.840.10008.5.1.4.1.1.2"
	explicitVRLittleEndian = "1.2.840.10008.1.2.1"
)

// ROISpec describes one ROI of a synthetic structure set.
type ROISpec struct {
	Number   int
	Name     string
	Contours [][]float64
}

// Element builds a DICOM element and fails the test on error.
func Element(tb testing.TB, t tag.Tag, data any) *dicom.Element {
	tb.Helper()
	el, err := dicom.NewElement(t, data)
	require.NoError(tb, err)
	return el
}

// Image returns an imaging dataset for patientID.
func Image(tb testing.TB, patientID string) dicom.Dataset {
	tb.Helper()
	return dicom.Dataset{Elements: []*dicom.Element{
		Element(tb, tag.SOPClassUID, []string{ctImageStorage}),
		Element(tb, tag.Modality, []string{"CT"}),
		Element(tb, tag.PatientID, []string{patientID}),
	}}
}

// StructureSet returns an RT Structure Set dataset for patientID, elements
// in ascending tag order. The ROI
// Contour Sequence lists the ROIs in the same order and references them by
// number.
func StructureSet(tb testing.TB, patientID string, rois ...ROISpec) dicom.Dataset {
	tb.Helper()

	roiItems := make([][]*dicom.Element, 0, len(rois))
	contourItems := make([][]*dicom.Element, 0, len(rois))
	for _, roi := range rois {
		roiItems = append(roiItems, []*dicom.Element{
			Element(tb, tag.ROINumber, []string{strconv.Itoa(roi.Number)}),
			Element(tb, tag.ROIName, []string{roi.Name}),
		})
		contourItems = append(contourItems, ROIContourItem(tb, roi.Number, roi.Contours))
	}

	return dicom.Dataset{Elements: []*dicom.Element{
		Element(tb, tag.SOPClassUID, []string{rtStructureSetStorage}),
		Element(tb, tag.Modality, []string{"RTSTRUCT"}),
		Element(tb, tag.PatientID, []string{patientID}),
		Element(tb, tag.StructureSetROISequence, roiItems),
		Element(tb, tag.ROIContourSequence, contourItems),
	}}
}

// ROIContourItem builds one ROI Contour Sequence item referencing number.
func ROIContourItem(tb testing.TB, number int, contours [][]float64) []*dicom.Element {
	tb.Helper()
	items := make([][]*dicom.Element, 0, len(contours))
	for _, contour := range contours {
		items = append(items, []*dicom.Element{
			Element(tb, tag.ContourGeometricType, []string{"CLOSED_PLANAR"}),
			Element(tb, tag.NumberOfContourPoints, []string{strconv.Itoa(len(contour) / 3)}),
			Element(tb, tag.ContourData, DecimalStrings(contour)),
		})
	}
	return []*dicom.Element{
		Element(tb, tag.ContourSequence, items),
		Element(tb, tag.ReferencedROINumber, []string{strconv.Itoa(number)}),
	}
}

// DecimalStrings formats values as DICOM DS strings.
func DecimalStrings(values []float64) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return out
}

// CubeContours returns two square contours, at z=0 and z=side, whose points
// are the corners of an axis aligned cube with the given side.
func CubeContours(side float64) [][]float64 {
	return [][]float64{
		{0, 0, 0, side, 0, 0, side, side, 0, 0, side, 0},
		{0, 0, side, side, 0, side, side, side, side, 0, side, side},
	}
}

// Encode serialises ds as a DICOM Part 10 file.
func Encode(tb testing.TB, ds dicom.Dataset) []byte {
	tb.Helper()

	sopClass := ctImageStorage
	if _, err := ds.FindElementByTag(tag.StructureSetROISequence); err == nil {
		sopClass = rtStructureSetStorage
	}

	withMeta := dicom.Dataset{Elements: []*dicom.Element{
		Element(tb, tag.FileMetaInformationVersion, []byte{0x00, 0x01}),
		Element(tb, tag.MediaStorageSOPClassUID, []string{sopClass}),
		Element(tb, tag.MediaStorageSOPInstanceUID, []string{"1.2.826.0.1.3680043.8.498.1"}),
		Element(tb, tag.TransferSyntaxUID, []string{explicitVRLittleEndian}),
	}}
	withMeta.Elements = append(withMeta.Elements, ds.Elements...)

	var buf bytes.Buffer
	require.NoError(tb, dicom.Write(&buf, withMeta))
	return buf.Bytes()
}

// WriteFile encodes ds into dir/name and returns the path.
func WriteFile(tb testing.TB, dir, name string, ds dicom.Dataset) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	require.NoError(tb, os.WriteFile(path, Encode(tb, ds), 0644))
	return path
}
