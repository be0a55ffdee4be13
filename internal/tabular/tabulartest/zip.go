// Package tabulartest builds in-memory archives for tests.
package tabulartest

import (
	"archive/zip"
	"bytes"
	"testing"
	"time"
)

// File is a single archive member.
type File struct {
	Name     string
	Body     string
	Modified time.Time
}

// Zip returns a zip archive containing files, in order.
func Zip(t testing.TB, files ...File) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		hdr := &zip.FileHeader{Name: f.Name, Method: zip.Deflate, Modified: f.Modified}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("create %s: %v", f.Name, err)
		}
		if _, err := w.Write([]byte(f.Body)); err != nil {
			t.Fatalf("write %s: %v", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// CSV wraps a single CSV body in an archive, as OASIS delivers it.
func CSV(t testing.TB, name, body string) []byte {
	t.Helper()
	return Zip(t, File{Name: name, Body: body, Modified: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
}
