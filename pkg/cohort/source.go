package cohort

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"rtvolume/pkg/rtstruct"
)

// Source is one openable DICOM record.
type Source interface {
	// Name identifies the source in logs and reports
	Name() string
	Open() (*rtstruct.Record, error)
}

// FileSource is a DICOM file on disk.
type FileSource string

func (s FileSource) Name() string { return string(s) }

func (s FileSource) Open() (*rtstruct.Record, error) { return rtstruct.Open(string(s)) }

// BytesSource is a DICOM record held in memory.
type BytesSource struct {
	Label   string
	Content []byte
}

func (s BytesSource) Name() string { return s.Label }

func (s BytesSource) Open() (*rtstruct.Record, error) { return rtstruct.ParseBytes(s.Content) }

// zipSource is an archive member, decompressed on every Open.
type zipSource struct {
	archive string
	file    *zip.File
}

func (s zipSource) Name() string { return s.archive + "!" + s.file.Name }

func (s zipSource) Open() (*rtstruct.Record, error) {
	rc, err := s.file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.Name(), err)
	}
	defer rc.Close()

	rec, err := rtstruct.Parse(rc, int64(s.file.UncompressedSize64))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Name(), err)
	}
	return rec, nil
}

func hasExtension(name, ext string) bool {
	return strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext))
}

// listDir returns the regular files directly inside dir whose name ends in
// ext, sorted by name.
func listDir(dir, ext string) ([]Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var sources []Source
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !hasExtension(entry.Name(), ext) {
			continue
		}
		sources = append(sources, FileSource(filepath.Join(dir, entry.Name())))
	}
	return sources, nil
}

// listZip returns the archive members whose name ends in ext, in archive
// order. The returned reader must stay open while the sources are used.
func listZip(path, ext string) (*zip.ReadCloser, []Source, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, err
	}

	var sources []Source
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !hasExtension(f.Name, ext) {
			continue
		}
		sources = append(sources, zipSource{archive: path, file: f})
	}
	return zr, sources, nil
}
