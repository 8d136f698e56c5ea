// Package metrics defines the Prometheus collectors for a volumetry run and
// writes them in the text exposition format for the node exporter textfile
// collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"rtvolume/internal/models"
	apperrors "rtvolume/pkg/errors"
)

// Metrics holds the collectors of one run. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RecordsScanned      *prometheus.CounterVec
	ScanFailures        prometheus.Counter
	MeasurementsTotal   *prometheus.CounterVec
	MeasurementDuration prometheus.Histogram
	HullVertices        prometheus.Histogram
	VolumeCC            *prometheus.GaugeVec
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RecordsScanned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtvolume_records_scanned_total",
				Help: "DICOM records classified by the cohort index, by kind.",
			},
			[]string{"kind"},
		),
		ScanFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rtvolume_scan_failures_total",
				Help: "Files skipped because they could not be read as DICOM records.",
			},
		),
		MeasurementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtvolume_measurements_total",
				Help: "ROI volume measurements by outcome.",
			},
			[]string{"outcome"},
		),
		MeasurementDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rtvolume_measurement_duration_seconds",
				Help:    "Time to open a structure set and measure one ROI.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
		),
		HullVertices: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rtvolume_hull_vertices",
				Help:    "Number of convex hull vertices per measured ROI.",
				Buckets: prometheus.ExponentialBuckets(8, 2, 10),
			},
		),
		VolumeCC: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rtvolume_roi_volume_cubic_centimeters",
				Help: "Convex hull volume of the measured ROI.",
			},
			[]string{"patient_id", "roi"},
		),
	}

	m.registry.MustRegister(
		m.RecordsScanned,
		m.ScanFailures,
		m.MeasurementsTotal,
		m.MeasurementDuration,
		m.HullVertices,
		m.VolumeCC,
	)
	return m
}

func (m *Metrics) ObserveRecord(kind models.RecordKind) {
	if m == nil {
		return
	}
	m.RecordsScanned.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) ObserveScanFailure() {
	if m == nil {
		return
	}
	m.ScanFailures.Inc()
}

// ObserveMeasurement records one batch row and how long it took.
func (m *Metrics) ObserveMeasurement(report models.VolumeReport, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.MeasurementsTotal.WithLabelValues(apperrors.Reason(report.Err)).Inc()
	m.MeasurementDuration.Observe(elapsed.Seconds())
	if report.Err == nil {
		m.HullVertices.Observe(float64(report.HullVertices))
		m.VolumeCC.WithLabelValues(report.PatientID, report.ROI).Set(report.VolumeCC)
	}
}

// WriteTextfile writes the current metric values to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
