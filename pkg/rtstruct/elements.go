package rtstruct

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	apperrors "rtvolume/pkg/errors"
)

func readPatientID(ds dicom.Dataset) (string, error) {
	el, err := ds.FindElementByTag(tag.PatientID)
	if err != nil {
		return "", apperrors.New(apperrors.ErrValidation, "missing Patient ID")
	}
	values, err := stringValues(el)
	if err != nil || len(values) == 0 || values[0] == "" {
		return "", apperrors.New(apperrors.ErrValidation, "empty Patient ID")
	}
	return values[0], nil
}

func readROIs(el *dicom.Element) ([]ROI, error) {
	items, err := sequenceItems(el)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrFormat, "Structure Set ROI Sequence: %v", err)
	}

	rois := make([]ROI, 0, len(items))
	for i, item := range items {
		roi := ROI{Index: i}
		if nameEl := findElement(item, tag.ROIName); nameEl != nil {
			names, err := stringValues(nameEl)
			if err != nil {
				return nil, apperrors.Newf(apperrors.ErrFormat, "ROI %d name: %v", i, err)
			}
			if len(names) > 0 {
				roi.Name = names[0]
			}
		}
		if numEl := findElement(item, tag.ROINumber); numEl != nil {
			n, err := intValue(numEl)
			if err != nil {
				return nil, apperrors.Newf(apperrors.ErrFormat, "ROI %d number: %v", i, err)
			}
			roi.Number, roi.HasNumber = n, true
		}
		rois = append(rois, roi)
	}
	return rois, nil
}

func readROIContours(el *dicom.Element) ([]roiContour, error) {
	items, err := sequenceItems(el)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrFormat, "ROI Contour Sequence: %v", err)
	}

	out := make([]roiContour, 0, len(items))
	for i, item := range items {
		var rc roiContour
		if refEl := findElement(item, tag.ReferencedROINumber); refEl != nil {
			n, err := intValue(refEl)
			if err != nil {
				return nil, apperrors.Newf(apperrors.ErrFormat, "ROI contour %d referenced number: %v", i, err)
			}
			rc.referenced, rc.hasReferenced = n, true
		}
		if seqEl := findElement(item, tag.ContourSequence); seqEl != nil {
			contours, err := sequenceItems(seqEl)
			if err != nil {
				return nil, apperrors.Newf(apperrors.ErrFormat, "ROI contour %d Contour Sequence: %v", i, err)
			}
			for _, contour := range contours {
				if dataEl := findElement(contour, tag.ContourData); dataEl != nil {
					rc.contours = append(rc.contours, dataEl)
				} else {
					rc.contours = append(rc.contours, nil)
				}
			}
		}
		out = append(out, rc)
	}
	return out, nil
}

func findElement(elems []*dicom.Element, t tag.Tag) *dicom.Element {
	for _, el := range elems {
		if el != nil && el.Tag == t {
			return el
		}
	}
	return nil
}

func sequenceItems(el *dicom.Element) ([][]*dicom.Element, error) {
	if el.Value == nil {
		return nil, nil
	}
	if el.Value.ValueType() != dicom.Sequences {
		return nil, fmt.Errorf("expected a sequence, got value type %v", el.Value.ValueType())
	}
	seq, ok := el.Value.GetValue().([]*dicom.SequenceItemValue)
	if !ok {
		return nil, fmt.Errorf("unexpected sequence value %T", el.Value.GetValue())
	}

	items := make([][]*dicom.Element, 0, len(seq))
	for _, item := range seq {
		elems, _ := item.GetValue().([]*dicom.Element)
		items = append(items, elems)
	}
	return items, nil
}

// stringValues returns a string-valued element with DICOM padding removed.
func stringValues(el *dicom.Element) ([]string, error) {
	if el.Value == nil {
		return nil, nil
	}
	raw, ok := el.Value.GetValue().([]string)
	if !ok {
		return nil, fmt.Errorf("expected string values, got %T", el.Value.GetValue())
	}
	out := make([]string, len(raw))
	for i, s := range raw {
		out[i] = strings.TrimRight(s, " \x00")
	}
	return out, nil
}

// intValue reads an IS attribute, accepting decoders that surface it as
// strings or as integers.
func intValue(el *dicom.Element) (int, error) {
	if el.Value == nil {
		return 0, fmt.Errorf("no value")
	}
	switch v := el.Value.GetValue().(type) {
	case []int:
		if len(v) == 0 {
			return 0, fmt.Errorf("no value")
		}
		return v[0], nil
	case []string:
		if len(v) == 0 {
			return 0, fmt.Errorf("no value")
		}
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimRight(v[0], "\x00")))
		if err != nil {
			return 0, fmt.Errorf("invalid integer string %q", v[0])
		}
		return n, nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}

// floatValues reads a DS or FD attribute. A missing element yields an empty
// contour.
func floatValues(el *dicom.Element) ([]float64, error) {
	if el == nil || el.Value == nil {
		return nil, nil
	}
	switch v := el.Value.GetValue().(type) {
	case []float64:
		out := make([]float64, len(v))
		copy(out, v)
		return out, nil
	case []string:
		out := make([]float64, 0, len(v))
		for _, s := range v {
			s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
			if s == "" {
				continue
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid decimal string %q", s)
			}
			out = append(out, f)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected decimal values, got %T", v)
	}
}
