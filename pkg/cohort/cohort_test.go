package cohort

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtvolume/internal/models"
	fixtures "rtvolume/internal/testutil"
	apperrors "rtvolume/pkg/errors"
	"rtvolume/pkg/metrics"
	"rtvolume/pkg/volumetry"
)

// study describes the synthetic cohort shared by the tests below:
//
//	P001: 3 CT, 1 structure set with LUNG_L (10 mm cube)
//	P002: 1 CT, 1 structure set with LIVER (20 mm cube)
//	P003: 2 structure sets
//	P004: 1 CT, no structure set
func study(t *testing.T) map[string][]byte {
	t.Helper()
	files := map[string][]byte{
		"ct_p001_1.dcm": fixtures.Encode(t, fixtures.Image(t, "P001")),
		"ct_p001_2.dcm": fixtures.Encode(t, fixtures.Image(t, "P001")),
		"ct_p001_3.DCM": fixtures.Encode(t, fixtures.Image(t, "P001")),
		"rs_p001.dcm": fixtures.Encode(t, fixtures.StructureSet(t, "P001",
			fixtures.ROISpec{Number: 1, Name: "BODY", Contours: fixtures.CubeContours(50)},
			fixtures.ROISpec{Number: 2, Name: "LUNG_L", Contours: fixtures.CubeContours(10)},
		)),
		"ct_p002.dcm": fixtures.Encode(t, fixtures.Image(t, "P002")),
		"rs_p002.dcm": fixtures.Encode(t, fixtures.StructureSet(t, "P002",
			fixtures.ROISpec{Number: 1, Name: "LIVER", Contours: fixtures.CubeContours(20)},
		)),
		"rs_p003_a.dcm": fixtures.Encode(t, fixtures.StructureSet(t, "P003",
			fixtures.ROISpec{Number: 1, Name: "LIVER", Contours: fixtures.CubeContours(10)},
		)),
		"rs_p003_b.dcm": fixtures.Encode(t, fixtures.StructureSet(t, "P003",
			fixtures.ROISpec{Number: 1, Name: "LIVER", Contours: fixtures.CubeContours(10)},
		)),
		"ct_p004.dcm": fixtures.Encode(t, fixtures.Image(t, "P004")),
		"corrupt.dcm": []byte("not a DICOM file"),
		"notes.txt":   []byte("ignored"),
	}
	return files
}

func writeStudyDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range study(t) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), content, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.dcm"), 0755))
	return dir
}

func writeStudyZip(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "study.zip")
	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	_, err = zw.Create("series/")
	require.NoError(t, err)
	for name, content := range study(t) {
		w, err := zw.Create("series/" + name)
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func scan(t *testing.T, path string, opts Options) *Index {
	t.Helper()
	ix, err := Scan(path, opts)
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })
	return ix
}

func TestScanDirectoryAndZipAgree(t *testing.T) {
	for name, path := range map[string]string{
		"directory": writeStudyDir(t),
		"zip":       writeStudyZip(t),
	} {
		t.Run(name, func(t *testing.T) {
			m := metrics.New()
			ix := scan(t, path, Options{Metrics: m})

			assert.Equal(t, []string{"P001", "P002", "P003", "P004"}, ix.PatientIDs())
			assert.Equal(t, 1, ix.Skipped())
			assert.Len(t, ix.RecordsForSubject("P001"), 4)
			assert.Empty(t, ix.RecordsForSubject("P999"))

			assert.Equal(t, 5.0, testutil.ToFloat64(m.RecordsScanned.WithLabelValues("image")))
			assert.Equal(t, 4.0, testutil.ToFloat64(m.RecordsScanned.WithLabelValues("structure-set")))
			assert.Equal(t, 1.0, testutil.ToFloat64(m.ScanFailures))

			res, err := ix.OrganVolume("P001", "lung_l", volumetry.Options{})
			require.NoError(t, err)
			assert.InEpsilon(t, 1.0, res.VolumeCC, 1e-9)
		})
	}
}

func TestInfo(t *testing.T) {
	ix := scan(t, writeStudyDir(t), Options{})

	info, err := ix.Info("P001")
	require.NoError(t, err)
	assert.Equal(t, "P001", info.PatientID)
	assert.Equal(t, 3, info.ImageCount)
	require.Len(t, info.StructureSets, 1)
	assert.Equal(t, "rs_p001.dcm", filepath.Base(info.StructureSets[0]))

	info, err = ix.Info("P004")
	require.NoError(t, err)
	assert.Equal(t, 1, info.ImageCount)
	assert.Empty(t, info.StructureSets)

	_, err = ix.Info("P999")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestStructureSetSelection(t *testing.T) {
	ix := scan(t, writeStudyDir(t), Options{})

	rs, err := ix.StructureSet("P002")
	require.NoError(t, err)
	assert.True(t, rs.HasROISequence())
	assert.Equal(t, "P002", rs.PatientID())

	_, err = ix.StructureSet("P003")
	assert.True(t, errors.Is(err, apperrors.ErrAmbiguous), "got %v", err)

	_, err = ix.StructureSet("P004")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "got %v", err)

	_, err = ix.StructureSet("P999")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "got %v", err)
}

func TestVolumes(t *testing.T) {
	m := metrics.New()
	ix := scan(t, writeStudyDir(t), Options{Metrics: m})

	ids := []string{"P002", "P001", "P003", "P004"}
	rows, err := ix.Volumes(context.Background(), ids, "LIVER", 3, volumetry.Options{})
	require.NoError(t, err)
	require.Len(t, rows, 4)

	for i, id := range ids {
		assert.Equal(t, id, rows[i].PatientID)
	}

	assert.NoError(t, rows[0].Err)
	assert.InEpsilon(t, 8.0, rows[0].VolumeCC, 1e-9)
	assert.Equal(t, 8, rows[0].HullVertices)
	require.NotNil(t, rows[0].Result)
	assert.Equal(t, rows[0].VolumeCC, rows[0].Result.VolumeCC)
	assert.Len(t, rows[0].Result.Mesh(), 12)
	for _, row := range rows[1:] {
		assert.Nil(t, row.Result)
	}

	assert.True(t, errors.Is(rows[1].Err, apperrors.ErrNotFound), "P001 has no LIVER: %v", rows[1].Err)
	assert.True(t, errors.Is(rows[2].Err, apperrors.ErrAmbiguous))
	assert.True(t, errors.Is(rows[3].Err, apperrors.ErrNotFound))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MeasurementsTotal.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MeasurementsTotal.WithLabelValues("not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MeasurementsTotal.WithLabelValues("ambiguous")))
}

func TestVolumesCancelled(t *testing.T) {
	ix := scan(t, writeStudyDir(t), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ix.Volumes(ctx, ix.PatientIDs(), "LIVER", 2, volumetry.Options{})
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestScanRejectsPlainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "study.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0644))

	_, err := Scan(path, Options{})
	assert.True(t, errors.Is(err, apperrors.ErrValidation), "got %v", err)

	_, err = Scan(filepath.Join(t.TempDir(), "absent"), Options{})
	assert.True(t, errors.Is(err, os.ErrNotExist), "got %v", err)
}

func TestNewIndexFromMemory(t *testing.T) {
	ix := NewIndex([]Source{
		BytesSource{Label: "ct", Content: fixtures.Encode(t, fixtures.Image(t, "P010"))},
		BytesSource{Label: "rs", Content: fixtures.Encode(t, fixtures.StructureSet(t, "P010",
			fixtures.ROISpec{Number: 9, Name: "LUNG_L", Contours: fixtures.CubeContours(10)},
		))},
	}, Options{})

	info, err := ix.Info("P010")
	require.NoError(t, err)
	assert.Equal(t, models.PatientSummary{PatientID: "P010", ImageCount: 1, StructureSets: []string{"rs"}}, info)

	res, err := ix.OrganVolume("P010", "LUNG_L", volumetry.Options{})
	require.NoError(t, err)
	assert.InEpsilon(t, 1.0, res.VolumeCC, 1e-9)
	assert.NoError(t, ix.Close())
}
