// Package cohort indexes the DICOM records of a study directory or zip
// archive by patient, separates imaging records from RT Structure Sets and
// runs ROI volume measurements per patient.
package cohort

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"rtvolume/internal/models"
	apperrors "rtvolume/pkg/errors"
	"rtvolume/pkg/logger"
	"rtvolume/pkg/metrics"
	"rtvolume/pkg/rtstruct"
	"rtvolume/pkg/volumetry"
)

// Options controls scanning
type Options struct {
	// Extension selects study files; empty means ".dcm"
	Extension string

	// Metrics receives scan and measurement observations; may be nil
	Metrics *metrics.Metrics
}

type entry struct {
	source    Source
	patientID string
	kind      models.RecordKind
}

// Index maps patients to their records. It is read-only after construction
// and safe for concurrent use.
type Index struct {
	entries   []entry
	byPatient map[string][]int
	skipped   int
	closer    io.Closer
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// Scan indexes the study at path, which is either a directory (files
// directly inside it) or a zip archive. The caller must Close the index.
func Scan(path string, opts Options) (*Index, error) {
	ext := opts.Extension
	if ext == "" {
		ext = ".dcm"
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read study %s: %w", path, err)
	}

	if info.IsDir() {
		sources, err := listDir(path, ext)
		if err != nil {
			return nil, err
		}
		return NewIndex(sources, opts), nil
	}

	zr, sources, err := listZip(path, ext)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrValidation, "%s is neither a directory nor a zip archive of %s files", path, ext)
	}
	ix := NewIndex(sources, opts)
	ix.closer = zr
	return ix, nil
}

// NewIndex opens every source once to read its Patient ID and kind.
// Sources that cannot be read are logged and skipped.
func NewIndex(sources []Source, opts Options) *Index {
	ix := &Index{
		byPatient: make(map[string][]int),
		metrics:   opts.Metrics,
		log:       logger.WithComponent("cohort"),
	}

	for _, src := range sources {
		rec, err := src.Open()
		if err != nil {
			ix.skipped++
			ix.metrics.ObserveScanFailure()
			ix.log.Warn("skipping unreadable record", "source", src.Name(), "error", err)
			continue
		}

		e := entry{source: src, patientID: rec.PatientID(), kind: rec.Kind()}
		ix.byPatient[e.patientID] = append(ix.byPatient[e.patientID], len(ix.entries))
		ix.entries = append(ix.entries, e)
		ix.metrics.ObserveRecord(e.kind)
		ix.log.Debug("classified record", "source", src.Name(), "patient_id", e.patientID, "kind", e.kind.String())
	}

	ix.log.Info("indexed study", "records", len(ix.entries), "patients", len(ix.byPatient), "skipped", ix.skipped)
	return ix
}

// Close releases the archive backing a zip study.
func (ix *Index) Close() error {
	if ix.closer == nil {
		return nil
	}
	return ix.closer.Close()
}

// Skipped returns how many sources could not be read.
func (ix *Index) Skipped() int {
	return ix.skipped
}

// PatientIDs returns the distinct Patient IDs, sorted.
func (ix *Index) PatientIDs() []string {
	ids := make([]string, 0, len(ix.byPatient))
	for id := range ix.byPatient {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RecordsForSubject returns the sources of a patient in scan order.
func (ix *Index) RecordsForSubject(patientID string) []Source {
	idxs := ix.byPatient[patientID]
	out := make([]Source, len(idxs))
	for i, idx := range idxs {
		out[i] = ix.entries[idx].source
	}
	return out
}

// Info counts the imaging records of a patient and names its structure sets.
func (ix *Index) Info(patientID string) (models.PatientSummary, error) {
	idxs, ok := ix.byPatient[patientID]
	if !ok {
		return models.PatientSummary{}, apperrors.Newf(apperrors.ErrNotFound, "patient %q", patientID)
	}

	summary := models.PatientSummary{PatientID: patientID}
	for _, idx := range idxs {
		e := ix.entries[idx]
		if e.kind == models.StructureSet {
			summary.StructureSets = append(summary.StructureSets, e.source.Name())
		} else {
			summary.ImageCount++
		}
	}
	return summary, nil
}

// StructureSet opens the single structure set of a patient. Zero structure
// sets is a not-found error; more than one is ambiguous.
func (ix *Index) StructureSet(patientID string) (*rtstruct.Record, error) {
	idxs, ok := ix.byPatient[patientID]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "patient %q", patientID)
	}

	var found []Source
	for _, idx := range idxs {
		if ix.entries[idx].kind == models.StructureSet {
			found = append(found, ix.entries[idx].source)
		}
	}

	switch len(found) {
	case 0:
		return nil, apperrors.Newf(apperrors.ErrNotFound, "no structure set for patient %q", patientID)
	case 1:
		return found[0].Open()
	default:
		return nil, apperrors.Newf(apperrors.ErrAmbiguous, "patient %q has %d structure sets", patientID, len(found))
	}
}

// OrganVolume measures the ROI named organ in the patient's structure set.
func (ix *Index) OrganVolume(patientID, organ string, opts volumetry.Options) (*volumetry.Result, error) {
	rs, err := ix.StructureSet(patientID)
	if err != nil {
		return nil, err
	}
	return volumetry.Measure(rs, organ, opts)
}

// Measurement is one row of a batch run. Result is nil when Err is set.
type Measurement struct {
	models.VolumeReport
	Result *volumetry.Result
}

// Volumes measures organ for every patient in ids using up to workers
// goroutines. Rows follow the order of ids; a failed patient carries its
// error in the row and does not stop the others. The returned error is set
// only when ctx is cancelled.
func (ix *Index) Volumes(ctx context.Context, ids []string, organ string, workers int, opts volumetry.Options) ([]Measurement, error) {
	if workers < 1 {
		workers = 1
	}

	rows := make([]Measurement, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			start := time.Now()
			res, err := ix.OrganVolume(id, organ, opts)
			if err != nil {
				rows[i].VolumeReport = models.VolumeReport{PatientID: id, ROI: organ, Err: err}
				if !errors.Is(err, apperrors.ErrNotFound) {
					ix.log.Warn("measurement failed", "patient_id", id, "roi", organ, "reason", apperrors.Reason(err), "error", err)
				}
			} else {
				rows[i] = Measurement{VolumeReport: res.Report(), Result: res}
			}
			ix.metrics.ObserveMeasurement(rows[i].VolumeReport, time.Since(start))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return rows, err
	}
	return rows, nil
}
