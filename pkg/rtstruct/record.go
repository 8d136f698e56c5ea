// Package rtstruct reads DICOM records and, for RT Structure Sets, resolves
// named regions of interest to their contour data.
//
// A Record is immutable once constructed and safe for concurrent reads.
package rtstruct

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"rtvolume/internal/models"
	apperrors "rtvolume/pkg/errors"
)

// ROI is one entry of the Structure Set ROI Sequence.
type ROI struct {
	// Index is the entry's position in the sequence
	Index int

	// Number is the ROI Number attribute, valid when HasNumber is set
	Number    int
	HasNumber bool

	// Name is the ROI Name with DICOM padding removed
	Name string
}

// roiContour is one item of the ROI Contour Sequence.
type roiContour struct {
	referenced    int
	hasReferenced bool
	contours      []*dicom.Element
}

// Record is an opened DICOM record.
type Record struct {
	patientID   string
	rois        []ROI
	roiContours []roiContour
}

// Open reads the DICOM file at path. Pixel data is skipped.
func Open(path string) (*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	rec, err := Parse(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}

// ParseBytes reads a DICOM record held in memory.
func ParseBytes(content []byte) (*Record, error) {
	return Parse(bytes.NewReader(content), int64(len(content)))
}

// Parse reads size bytes of DICOM content from r.
func Parse(r io.Reader, size int64) (*Record, error) {
	ds, err := dicom.Parse(r, size, nil, dicom.SkipPixelData())
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrFormat, "not a DICOM dataset: %v", err)
	}
	return FromDataset(ds)
}

// FromDataset builds a Record from an already parsed dataset. It fails with
// a validation error when the dataset has no Patient ID and with a format
// error when the structure set sequences are malformed.
func FromDataset(ds dicom.Dataset) (*Record, error) {
	patientID, err := readPatientID(ds)
	if err != nil {
		return nil, err
	}

	rec := &Record{patientID: patientID}

	if el, err := ds.FindElementByTag(tag.StructureSetROISequence); err == nil {
		if rec.rois, err = readROIs(el); err != nil {
			return nil, err
		}
	}
	if el, err := ds.FindElementByTag(tag.ROIContourSequence); err == nil {
		if rec.roiContours, err = readROIContours(el); err != nil {
			return nil, err
		}
	}

	return rec, nil
}

// PatientID returns the record's Patient ID.
func (r *Record) PatientID() string {
	return r.patientID
}

// HasROISequence reports whether the record carries a non-empty Structure
// Set ROI Sequence, which is what distinguishes structure sets from images.
func (r *Record) HasROISequence() bool {
	return len(r.rois) > 0
}

// Kind classifies the record.
func (r *Record) Kind() models.RecordKind {
	if r.HasROISequence() {
		return models.StructureSet
	}
	return models.Image
}

// ROIs returns the Structure Set ROI Sequence in stored order; it is empty
// for imaging records.
func (r *Record) ROIs() []ROI {
	out := make([]ROI, len(r.rois))
	copy(out, r.rois)
	return out
}

// FindROI returns the index of the first ROI whose name equals name,
// ignoring case. Structure sets may repeat a name; the lowest index wins.
func (r *Record) FindROI(name string) (int, error) {
	for _, roi := range r.rois {
		if strings.EqualFold(roi.Name, name) {
			return roi.Index, nil
		}
	}
	return -1, apperrors.Newf(apperrors.ErrNotFound, "ROI %q", name)
}

// Contours returns the contour data of the ROI at index in stored order.
//
// The ROI Contour Sequence item is the one whose Referenced ROI Number
// matches the ROI's number. An item without a Referenced ROI Number is
// matched by position; an item referencing another ROI never is.
func (r *Record) Contours(index int) (models.ContourSequence, error) {
	if index < 0 || index >= len(r.rois) {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "ROI index %d out of range [0, %d)", index, len(r.rois))
	}

	item, ok := r.roiContourFor(r.rois[index])
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "no contours for ROI %q", r.rois[index].Name)
	}

	seq := make(models.ContourSequence, 0, len(item.contours))
	for i, el := range item.contours {
		data, err := floatValues(el)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrFormat, "ROI %q contour %d: %v", r.rois[index].Name, i, err)
		}
		seq = append(seq, data)
	}
	return seq, nil
}

func (r *Record) roiContourFor(roi ROI) (roiContour, bool) {
	if roi.HasNumber {
		for _, item := range r.roiContours {
			if item.hasReferenced && item.referenced == roi.Number {
				return item, true
			}
		}
	}
	if roi.Index < len(r.roiContours) && !r.roiContours[roi.Index].hasReferenced {
		return r.roiContours[roi.Index], true
	}
	return roiContour{}, false
}
