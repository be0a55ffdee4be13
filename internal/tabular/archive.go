package tabular

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	ErrEmptyArchive = errors.New("archive is empty")
	ErrNoCSV        = errors.New("no csv found in archive")
)

// ExtractTable unzips raw in memory and parses its CSV member. When the
// archive holds several CSV files the most recently modified one wins.
func ExtractTable(raw []byte) (*Table, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyArchive
	}

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if len(zr.File) == 0 {
		return nil, ErrEmptyArchive
	}

	var latest *zip.File
	var others []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !strings.EqualFold(path.Ext(f.Name), ".csv") {
			others = append(others, f.Name)
			continue
		}
		if latest == nil || f.Modified.After(latest.Modified) {
			latest = f
		}
	}
	if latest == nil {
		if len(others) > 0 {
			return nil, fmt.Errorf("%w: found %s", ErrNoCSV, strings.Join(others, ", "))
		}
		return nil, ErrNoCSV
	}

	rc, err := latest.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", latest.Name, err)
	}
	defer func() { _ = rc.Close() }()

	t, err := ReadCSV(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", latest.Name, err)
	}
	return t, nil
}
