// Package scanner reconciles the on-disk storage state into a fresh map of
// local resources. A scan never mutates the filesystem.
package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"

	"github.com/omaps-oss/resman/internal/model"
	"github.com/omaps-oss/resman/internal/obf"
	"github.com/omaps-oss/resman/internal/utils"
)

const (
	MapFileExt     = ".obf"
	VoiceDirExt    = ".voice"
	VoiceConfig    = "_config.p"
	TimestampFile  = ".timestamp"
	SizeFile       = ".size"
	IgnoreFilename = ".resignore"
)

// Scanner walks the configured storage paths and produces name -> resource
// maps. The filesystem is abstracted so tests can run against an in-memory
// tree.
type Scanner struct {
	fs      afero.Fs
	probe   obf.Probe
	primary string
	extra   []string
}

func New(fsys afero.Fs, probe obf.Probe, primary string, extra []string) *Scanner {
	return &Scanner{fs: fsys, probe: probe, primary: primary, extra: extra}
}

// Scan enumerates all storage paths, primary first. Name collisions across
// roots resolve to the first occurrence with a warning. An unreadable root
// fails the whole scan so a partial result never replaces the registry.
func (s *Scanner) Scan(ctx context.Context) (map[string]model.LocalResource, error) {
	result := map[string]model.LocalResource{}
	if err := s.scanPath(ctx, s.primary, result); err != nil {
		return nil, err
	}
	for _, p := range s.extra {
		if err := s.scanPath(ctx, p, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *Scanner) scanPath(ctx context.Context, storagePath string, out map[string]model.LocalResource) error {
	log := utils.GetLogger(ctx, "scanner")

	entries, err := afero.ReadDir(s.fs, storagePath)
	if err != nil {
		return err
	}
	ign := s.readIgnore(storagePath)

	for _, entry := range entries {
		name := utils.ToTrimmedLower(entry.Name())
		if ign != nil && ign.MatchesPath(entry.Name()) {
			continue
		}

		var res model.LocalResource
		var ok bool
		switch {
		case !entry.IsDir() && strings.HasSuffix(name, MapFileExt):
			res, ok = s.scanMapFile(ctx, storagePath, entry, name)
		case entry.IsDir() && strings.HasSuffix(name, VoiceDirExt):
			res, ok = s.scanVoiceDir(ctx, storagePath, entry, name)
		default:
			continue
		}
		if !ok {
			continue
		}
		if _, exists := out[res.Name]; exists {
			log.Warn("duplicate resource name, keeping first occurrence", "name", res.Name, "path", res.LocalPath)
			continue
		}
		out[res.Name] = res
	}
	return nil
}

func (s *Scanner) scanMapFile(ctx context.Context, storagePath string, entry os.FileInfo, name string) (model.LocalResource, bool) {
	log := utils.GetLogger(ctx, "scanner")
	path := filepath.Join(storagePath, entry.Name())

	info, err := obf.ProbeFile(s.fs, s.probe, path)
	if err != nil {
		log.Warn("failed to probe map file", "path", path, "error", err)
		return model.LocalResource{}, false
	}
	size := uint64(entry.Size())
	res, err := model.NewMapRegion(
		name,
		uint64(entry.ModTime().UnixMilli()),
		size,
		path,
		obf.NewMapFile(path, size, info),
	)
	if err != nil {
		log.Warn("skipping map file", "path", path, "error", err)
		return model.LocalResource{}, false
	}
	return res, true
}

func (s *Scanner) scanVoiceDir(ctx context.Context, storagePath string, entry os.FileInfo, name string) (model.LocalResource, bool) {
	log := utils.GetLogger(ctx, "scanner")
	path := filepath.Join(storagePath, entry.Name())

	timestamp, ok := s.readNumberFile(filepath.Join(path, TimestampFile))
	if !ok {
		if fi, err := s.fs.Stat(filepath.Join(path, VoiceConfig)); err == nil {
			timestamp = uint64(fi.ModTime().UnixMilli())
		}
	}
	contentSize, ok := s.readNumberFile(filepath.Join(path, SizeFile))
	if !ok {
		contentSize = s.sumTreeSize(path)
	}

	res, err := model.NewVoicePack(name, timestamp, contentSize, path)
	if err != nil {
		log.Warn("skipping voice pack", "path", path, "error", err)
		return model.LocalResource{}, false
	}
	return res, true
}

func (s *Scanner) readNumberFile(path string) (uint64, bool) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (s *Scanner) sumTreeSize(root string) uint64 {
	var sum uint64
	_ = afero.Walk(s.fs, root, func(_ string, info fs.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		sum += uint64(info.Size())
		return nil
	})
	return sum
}

func (s *Scanner) readIgnore(storagePath string) *ignore.GitIgnore {
	data, err := afero.ReadFile(s.fs, filepath.Join(storagePath, IgnoreFilename))
	if err != nil {
		return nil
	}
	return ignore.CompileIgnoreLines(strings.Split(string(data), "\n")...)
}
