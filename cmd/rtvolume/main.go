package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"rtvolume/internal/models"
	"rtvolume/pkg/cohort"
	"rtvolume/pkg/config"
	apperrors "rtvolume/pkg/errors"
	"rtvolume/pkg/logger"
	"rtvolume/pkg/metrics"
	"rtvolume/pkg/pointcloud"
	"rtvolume/pkg/stl"
	"rtvolume/pkg/volumetry"
)

func main() {
	// Parse command line arguments
	inputPath := flag.String("input", "", "Directory or zip archive containing DICOM files")
	organ := flag.String("organ", "", "ROI name to measure (case-insensitive)")
	patient := flag.String("patient", "", "Patient ID to measure (default: every patient)")
	configPath := flag.String("config", "rtvolume.yaml", "YAML configuration file")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file to -config and exit")
	numCores := flag.Int("cores", 0, "Number of patients measured concurrently (default: from config)")
	list := flag.Bool("list", false, "List patients with their image and structure set counts")
	stlDir := flag.String("stl", "", "Directory to save one convex hull STL per patient")
	metricsFile := flag.String("metrics-file", "", "Write Prometheus textfile metrics to this path")
	verbose := flag.Bool("verbose", false, "Print point cloud statistics for each volume")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "", "Log format: text or json")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write default config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	// Validate inputs
	if *inputPath == "" || (*organ == "" && !*list) {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(cfg, *numCores, *stlDir, *metricsFile, *verbose, *logLevel, *logFormat)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	m := metrics.New()
	if err := run(ctx, os.Stdout, cfg, m, *inputPath, *organ, *patient, *list); err != nil {
		log.Fatalf("rtvolume failed: %v", err)
	}

	if cfg.Output.MetricsFile != "" {
		if err := m.WriteTextfile(cfg.Output.MetricsFile); err != nil {
			log.Printf("Warning: Failed to write metrics: %v", err)
		}
	}
}

// applyFlags lets explicitly set flags override the configuration file
func applyFlags(cfg *config.Config, cores int, stlDir, metricsFile string, verbose bool, level, format string) {
	if cores > 0 {
		cfg.Processing.NumCores = cores
	}
	if stlDir != "" {
		cfg.Output.STLDir = stlDir
	}
	if metricsFile != "" {
		cfg.Output.MetricsFile = metricsFile
	}
	if verbose {
		cfg.Output.Verbose = true
	}
	if level != "" {
		cfg.Logging.Level = level
	}
	if format != "" {
		cfg.Logging.Format = format
	}
}

func run(ctx context.Context, out io.Writer, cfg *config.Config, m *metrics.Metrics, input, organ, patient string, list bool) error {
	ix, err := cohort.Scan(input, cohort.Options{
		Extension: cfg.Processing.FileExtension,
		Metrics:   m,
	})
	if err != nil {
		return err
	}
	defer ix.Close()

	ids := ix.PatientIDs()
	if patient != "" {
		ids = []string{patient}
	}

	if list {
		return printPatients(out, ix, ids)
	}

	fmt.Fprintf(out, "Measuring %s for %d patient(s) using %d core(s)...\n", organ, len(ids), cfg.Processing.NumCores)
	startTime := time.Now()

	opts := volumetry.Options{
		RelativeTolerance: cfg.Geometry.RelativeTolerance,
		DedupeTolerance:   cfg.Geometry.DedupeTolerance,
	}
	rows, err := ix.Volumes(ctx, ids, organ, cfg.Processing.NumCores, opts)
	if err != nil {
		return err
	}

	failures := 0
	for _, row := range rows {
		if row.Err != nil {
			failures++
		}
		printRow(out, row.VolumeReport)
	}

	if cfg.Output.STLDir != "" || cfg.Output.Verbose {
		if err := exportDetails(out, rows, cfg); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "\nCompleted in %.2f seconds: %d measured, %d failed\n",
		time.Since(startTime).Seconds(), len(rows)-failures, failures)
	return nil
}

func printPatients(out io.Writer, ix *cohort.Index, ids []string) error {
	fmt.Fprintf(out, "%-20s %8s %14s\n", "PATIENT", "IMAGES", "STRUCTURE SETS")
	for _, id := range ids {
		info, err := ix.Info(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-20s %8d %14d\n", info.PatientID, info.ImageCount, len(info.StructureSets))
	}
	if n := ix.Skipped(); n > 0 {
		fmt.Fprintf(out, "\n%d file(s) could not be read\n", n)
	}
	return nil
}

func printRow(out io.Writer, row models.VolumeReport) {
	if row.Err != nil {
		fmt.Fprintf(out, "%-20s %-16s %-20s %v\n", row.PatientID, row.ROI, "error:"+apperrors.Reason(row.Err), row.Err)
		return
	}
	fmt.Fprintf(out, "%-20s %-16s %12.3f cm3  (%d points, %d hull vertices)\n",
		row.PatientID, row.ROI, row.VolumeCC, row.Points, row.HullVertices)
}

// exportDetails prints cloud statistics and saves hull meshes for the
// successful rows
func exportDetails(out io.Writer, rows []cohort.Measurement, cfg *config.Config) error {
	if cfg.Output.STLDir != "" {
		if err := os.MkdirAll(cfg.Output.STLDir, 0755); err != nil {
			return fmt.Errorf("failed to create STL directory: %w", err)
		}
	}

	for _, row := range rows {
		res := row.Result
		if res == nil {
			continue
		}

		if cfg.Output.Verbose {
			printSummary(out, res.PatientID, res.Summary())
		}

		if cfg.Output.STLDir != "" {
			name := fmt.Sprintf("%s_%s.stl", sanitize(res.PatientID), sanitize(res.ROI))
			path := filepath.Join(cfg.Output.STLDir, name)
			if err := stl.SaveToSTL(path, res.Mesh()); err != nil {
				log.Printf("Warning: Failed to save hull for %s: %v", res.PatientID, err)
				continue
			}
			fmt.Fprintf(out, "Hull mesh for %s saved to: %s\n", res.PatientID, path)
		}
	}
	return nil
}

func printSummary(out io.Writer, patientID string, s pointcloud.Summary) {
	fmt.Fprintf(out, "\n%s point cloud:\n", patientID)
	fmt.Fprintf(out, "- Points: %d\n", s.Points)
	fmt.Fprintf(out, "- Centroid: (%.2f, %.2f, %.2f) mm\n", s.Centroid.X, s.Centroid.Y, s.Centroid.Z)
	fmt.Fprintf(out, "- Extent: %.2f x %.2f x %.2f mm\n",
		s.Bounds.Max.X-s.Bounds.Min.X, s.Bounds.Max.Y-s.Bounds.Min.Y, s.Bounds.Max.Z-s.Bounds.Min.Z)
	fmt.Fprintf(out, "- Principal spread: %.2f / %.2f / %.2f mm\n", s.Spread[0], s.Spread[1], s.Spread[2])
}

// sanitize keeps a Patient ID or ROI name usable as a file name
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
