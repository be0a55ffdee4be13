// Package snapshot stores Go values as gob files, one file per name.
package snapshot

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const ext = ".gob"

var ErrInvalidName = errors.New("invalid snapshot name")

// Path returns the file that holds the snapshot called name.
func Path(dir, name string) string {
	return filepath.Join(dir, name+ext)
}

// Write encodes v to <dir>/<name>.gob, creating dir if needed. The file is
// replaced atomically so readers never see a partial snapshot.
func Write[T any](dir, name string, v T) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	if err := gob.NewEncoder(tmp).Encode(v); err != nil {
		tmp.Close()
		return "", fmt.Errorf("encode snapshot %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close snapshot: %w", err)
	}

	path := Path(dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename snapshot: %w", err)
	}
	return path, nil
}

// Read decodes the snapshot called name from dir.
func Read[T any](dir, name string) (T, error) {
	var v T
	if err := checkName(name); err != nil {
		return v, err
	}
	f, err := os.Open(Path(dir, name))
	if err != nil {
		return v, err
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(&v); err != nil {
		return v, fmt.Errorf("decode snapshot %s: %w", name, err)
	}
	return v, nil
}

// List returns the names of the snapshots in dir, sorted. A missing dir
// holds no snapshots.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ext))
	}
	sort.Strings(names)
	return names, nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
