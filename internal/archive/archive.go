// Package archive gives the install pipeline a narrow view onto resource
// containers. Containers are ZIP files; the Reader interface keeps the
// pipeline independent of that choice.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrEntryNotFound = errors.New("entry not found in archive")
	ErrUnsafePath    = errors.New("entry path escapes destination directory")
)

// Item describes a single archive entry.
type Item struct {
	Name    string
	Size    uint64
	ModTime time.Time
	Dir     bool
}

// Reader lists a container and extracts entries from it.
type Reader interface {
	// List returns all entries of the container in archive order.
	List() ([]Item, error)
	// ExtractItemToFile writes the named entry to destPath, dropping any
	// directory components the entry name carries. destPath must not exist.
	ExtractItemToFile(name, destPath string) error
	// ExtractAllTo unpacks every entry below destDir, preserving the
	// container's layout, and returns the total number of content bytes
	// written.
	ExtractAllTo(destDir string) (uint64, error)
	Close() error
}

// OpenFunc opens a container at path. Variable so tests can substitute
// malformed or synthetic containers.
type OpenFunc func(path string) (Reader, error)

// OpenZip opens a ZIP container.
func OpenZip(path string) (Reader, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		// OpenReader may hand back a reader together with ErrInsecurePath
		if rc != nil {
			_ = rc.Close()
		}
		return nil, err
	}
	// reject entry names that would land outside an extraction directory,
	// whatever the zipinsecurepath GODEBUG setting is
	for _, f := range rc.File {
		if !filepath.IsLocal(f.Name) {
			_ = rc.Close()
			return nil, fmt.Errorf("%w: %s", ErrUnsafePath, f.Name)
		}
	}
	return &zipReader{rc: rc}, nil
}

type zipReader struct {
	rc *zip.ReadCloser
}

func (z *zipReader) List() ([]Item, error) {
	items := make([]Item, 0, len(z.rc.File))
	for _, f := range z.rc.File {
		items = append(items, Item{
			Name:    f.Name,
			Size:    f.UncompressedSize64,
			ModTime: f.Modified,
			Dir:     f.FileInfo().IsDir(),
		})
	}
	return items, nil
}

func (z *zipReader) ExtractItemToFile(name, destPath string) error {
	f := z.find(name)
	if f == nil {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	r, err := f.Open()
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0664)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, r)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(destPath)
	}
	return err
}

func (z *zipReader) ExtractAllTo(destDir string) (uint64, error) {
	var written uint64
	for _, f := range z.rc.File {
		target, err := sanitizePath(destDir, f.Name)
		if err != nil {
			return written, err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0775); err != nil {
				return written, err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0775); err != nil {
			return written, err
		}
		n, err := extractOne(f, target)
		written += uint64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func extractOne(f *zip.File, target string) (int64, error) {
	r, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer r.Close()
	w, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0664)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(w, r)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func (z *zipReader) Close() error {
	return z.rc.Close()
}

func (z *zipReader) find(name string) *zip.File {
	for _, f := range z.rc.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// sanitizePath resolves an entry name below dir, rejecting names that would
// escape it (zip-slip).
func sanitizePath(dir, name string) (string, error) {
	target := filepath.Join(dir, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}
