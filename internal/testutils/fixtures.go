// Package testutils holds fixture builders shared by package tests.
package testutils

import (
	"archive/zip"
	"os"
	"testing"
	"time"
)

// EncodeVarint encodes v in protobuf base-128 varint form.
func EncodeVarint(v uint64) []byte {
	var b []byte
	for v >= 0x80 {
		b = append(b, byte(v)|0x80)
		v >>= 7
	}
	return append(b, byte(v))
}

// MapFileHeader builds the leading bytes of a map file: version (field 1)
// and creation timestamp (field 18), both varint-coded.
func MapFileHeader(version uint64, creationMs uint64) []byte {
	var b []byte
	b = append(b, 0x08)
	b = append(b, EncodeVarint(version)...)
	b = append(b, 0x90, 0x01)
	b = append(b, EncodeVarint(creationMs)...)
	return b
}

// ZipEntry describes one entry for CreateZip.
type ZipEntry struct {
	Name    string
	Data    []byte
	ModTime time.Time
	Dir     bool
}

// CreateZip writes a ZIP container with the given entries to path.
func CreateZip(t *testing.T, path string, entries []ZipEntry) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create zip file: %v", err)
	}
	defer f.Close()
	w := zip.NewWriter(f)
	for _, e := range entries {
		hdr := &zip.FileHeader{
			Name:     e.Name,
			Method:   zip.Deflate,
			Modified: e.ModTime,
		}
		if e.Dir {
			hdr.Name = e.Name + "/"
			if _, err := w.CreateHeader(hdr); err != nil {
				t.Fatalf("create zip dir entry: %v", err)
			}
			continue
		}
		ew, err := w.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("create zip entry: %v", err)
		}
		if _, err := ew.Write(e.Data); err != nil {
			t.Fatalf("write zip entry: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
}
