package volumetry

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtvolume/internal/models"
	"rtvolume/internal/testutil"
	apperrors "rtvolume/pkg/errors"
	"rtvolume/pkg/rtstruct"
)

func openStructureSet(t *testing.T, rois ...testutil.ROISpec) *rtstruct.Record {
	t.Helper()
	rec, err := rtstruct.FromDataset(testutil.StructureSet(t, "P001", rois...))
	require.NoError(t, err)
	return rec
}

func TestMeasureScaledCube(t *testing.T) {
	rec := openStructureSet(t,
		testutil.ROISpec{Number: 1, Name: "BODY", Contours: testutil.CubeContours(100)},
		testutil.ROISpec{Number: 2, Name: "LUNG_L", Contours: testutil.CubeContours(10)},
	)

	res, err := Measure(rec, "LUNG_L", Options{})
	require.NoError(t, err)

	assert.InEpsilon(t, 1.0, res.VolumeCC, 1e-9)
	assert.Equal(t, "P001", res.PatientID)
	assert.Equal(t, "LUNG_L", res.ROI)
	assert.Equal(t, 1, res.ROIIndex)
	assert.Len(t, res.Cloud, 8)

	report := res.Report()
	assert.Equal(t, models.VolumeReport{
		PatientID:    "P001",
		ROI:          "LUNG_L",
		VolumeCC:     res.VolumeCC,
		Points:       8,
		HullVertices: 8,
		HullFacets:   12,
	}, report)
}

func TestMeasureMatchesNameIgnoringCase(t *testing.T) {
	rec := openStructureSet(t, testutil.ROISpec{Number: 4, Name: "Liver", Contours: testutil.CubeContours(20)})

	res, err := Measure(rec, "LIVER", Options{})
	require.NoError(t, err)
	assert.Equal(t, "Liver", res.ROI)
	assert.InEpsilon(t, 8.0, res.VolumeCC, 1e-9)
}

func TestMeasureFromEncodedFile(t *testing.T) {
	ds := testutil.StructureSet(t, "P042",
		testutil.ROISpec{Number: 1, Name: "LUNG_L", Contours: testutil.CubeContours(10)},
	)
	path := testutil.WriteFile(t, t.TempDir(), "rs.dcm", ds)

	rec, err := rtstruct.Open(path)
	require.NoError(t, err)
	res, err := Measure(rec, "lung_l", Options{})
	require.NoError(t, err)
	assert.InEpsilon(t, 1.0, res.VolumeCC, 1e-9)
	assert.Equal(t, "P042", res.PatientID)
}

func TestMeasureErrors(t *testing.T) {
	rec := openStructureSet(t,
		testutil.ROISpec{Number: 1, Name: "EMPTY"},
		testutil.ROISpec{Number: 2, Name: "FLAT", Contours: [][]float64{
			{0, 0, 5, 1, 0, 5, 1, 1, 5, 0, 1, 5, 0.5, 0.5, 5},
		}},
		testutil.ROISpec{Number: 3, Name: "TRIANGLE", Contours: [][]float64{
			{0, 0, 0, 1, 0, 0, 0, 1, 0},
		}},
		testutil.ROISpec{Number: 4, Name: "BROKEN", Contours: [][]float64{
			{0, 0, 0, 1},
		}},
	)

	tests := []struct {
		roi  string
		want error
	}{
		{"MISSING", apperrors.ErrNotFound},
		{"EMPTY", apperrors.ErrInsufficientPoints},
		{"FLAT", apperrors.ErrDegenerate},
		{"TRIANGLE", apperrors.ErrInsufficientPoints},
		{"BROKEN", apperrors.ErrFormat},
	}
	for _, tt := range tests {
		t.Run(tt.roi, func(t *testing.T) {
			_, err := Measure(rec, tt.roi, Options{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	// Failed queries leave the record usable.
	_, err := Measure(rec, "FLAT", Options{})
	assert.Error(t, err)
	assert.True(t, rec.HasROISequence())
}

func TestMeasureConcurrentReads(t *testing.T) {
	rec := openStructureSet(t,
		testutil.ROISpec{Number: 1, Name: "A", Contours: testutil.CubeContours(10)},
		testutil.ROISpec{Number: 2, Name: "B", Contours: testutil.CubeContours(20)},
	)

	var wg sync.WaitGroup
	results := make([]float64, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "A"
			if i%2 == 1 {
				name = "B"
			}
			res, err := Measure(rec, name, Options{})
			if err == nil {
				results[i] = res.VolumeCC
			}
		}(i)
	}
	wg.Wait()

	for i, v := range results {
		want := 1.0
		if i%2 == 1 {
			want = 8.0
		}
		assert.InEpsilon(t, want, v, 1e-9)
	}
}

func TestResultMeshAndSummary(t *testing.T) {
	rec := openStructureSet(t, testutil.ROISpec{Number: 1, Name: "CUBE", Contours: testutil.CubeContours(10)})
	res, err := Measure(rec, "CUBE", Options{})
	require.NoError(t, err)

	mesh := res.Mesh()
	assert.Len(t, mesh, 12)

	s := res.Summary()
	assert.Equal(t, 8, s.Points)
	assert.InDelta(t, 5.0, s.Centroid.X, 1e-12)
	assert.InDelta(t, 10.0, s.Bounds.Max.Z, 1e-12)

}

func TestMeasureDedupesRepeatedPoints(t *testing.T) {
	// Each square contour repeats its first corner to close the outline.
	closed := [][]float64{
		{0, 0, 0, 10, 0, 0, 10, 10, 0, 0, 10, 0, 0, 0, 0},
		{0, 0, 10, 10, 0, 10, 10, 10, 10, 0, 10, 10, 0, 0, 10},
	}
	rec := openStructureSet(t, testutil.ROISpec{Number: 1, Name: "CUBE", Contours: closed})

	raw, err := Measure(rec, "CUBE", Options{})
	require.NoError(t, err)
	assert.Len(t, raw.Cloud, 10)

	deduped, err := Measure(rec, "CUBE", Options{DedupeTolerance: 0.01})
	require.NoError(t, err)
	assert.Len(t, deduped.Cloud, 8)

	assert.InEpsilon(t, raw.VolumeCC, deduped.VolumeCC, 1e-12)
	assert.InEpsilon(t, 1.0, deduped.VolumeCC, 1e-9)
}
