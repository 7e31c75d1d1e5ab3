package utils

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var ResmanVersion = "n/a"

func GetResmanVersion() string {
	v, err := semver.NewVersion(ResmanVersion)
	if err != nil {
		return ResmanVersion
	}
	return strings.TrimPrefix(v.Original(), "v")
}

// ExpandHome expands ~ in path with user's home directory, but only if path begins with ~ or /~
// Otherwise, returns path unchanged
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") && !strings.HasPrefix(path, "/~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand user home directory: %w", err)
	}
	_, rest, _ := strings.Cut(path, "~")
	return filepath.Join(home, rest), nil
}

func ToTrimmedLower(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return s
}

// AtomicWriteFile writes data to the named file quasi-atomically, creating it if necessary.
// On unix-like systems, the function uses github.com/google/renameio.
// On Windows, it has a simpler implementation using os.Rename(), which is believed to be atomic on NTFS,
// but there is no hard guarantee from Microsoft on that.
func AtomicWriteFile(name string, data []byte, perm os.FileMode) error {
	return atomicWriteFile(name, data, perm)
}

func ParseAsList(list, separator string, trim bool) []string {
	ret := make([]string, 0)

	for _, entry := range strings.Split(list, separator) {
		if trim {
			entry = strings.TrimSpace(entry)
		}
		if entry != "" {
			ret = append(ret, entry)
		}
	}
	return ret
}

const CtxKeyLogger = "logger"

// GetLogger returns the logger that is valid in the context
// If component is not empty, the logger is extended with the field "where" having that value.
func GetLogger(ctx context.Context, component string) *slog.Logger {
	cv := ctx.Value(CtxKeyLogger)
	l, ok := cv.(*slog.Logger)
	if !ok || l == nil {
		l = slog.Default()
	}
	if component != "" {
		l = l.With("where", component)
	}
	return l
}
