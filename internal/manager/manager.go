// Package manager composes the scanner, catalog client, registry and install
// pipeline into the resources manager façade consumed by the UI layer.
package manager

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/omaps-oss/resman/internal/archive"
	"github.com/omaps-oss/resman/internal/catalog"
	"github.com/omaps-oss/resman/internal/model"
	"github.com/omaps-oss/resman/internal/obf"
	"github.com/omaps-oss/resman/internal/registry"
	"github.com/omaps-oss/resman/internal/scanner"
	"github.com/omaps-oss/resman/internal/utils"
	"github.com/omaps-oss/resman/internal/watcher"
	"github.com/omaps-oss/resman/internal/webclient"
)

const (
	defaultDirPermissions  = 0775
	defaultFilePermissions = 0664
	storageLockFilename    = ".resman.lock"
	storageLockTimeout     = 5 * time.Second
	storageLockRetryDelay  = 13 * time.Millisecond
	stagingInfix           = ".staging-"
)

var ErrStorageLocked = errors.New("could not acquire lock on storage directory")

// Options configures a Manager. StoragePath, TemporaryPath and RepositoryURL
// are required; the remaining fields default to production implementations
// and exist so tests can substitute collaborators.
type Options struct {
	StoragePath       string
	TemporaryPath     string
	ExtraStoragePaths []string
	RepositoryURL     string

	Probe       obf.Probe
	Web         webclient.Client
	OpenArchive archive.OpenFunc
	FS          afero.Fs
}

// Manager owns the local and remote registries and mutates local storage on
// install, update and uninstall. All methods are safe for concurrent use.
type Manager struct {
	storagePath       string
	temporaryPath     string
	extraStoragePaths []string
	repositoryURL     string

	fs          afero.Fs
	probe       obf.Probe
	web         webclient.Client
	openArchive archive.OpenFunc
	catalog     *catalog.Client
	scanner     *scanner.Scanner
	reg         *registry.Registry
}

func New(opts Options) (*Manager, error) {
	if opts.StoragePath == "" || opts.TemporaryPath == "" {
		return nil, errors.New("storage and temporary paths must be configured")
	}
	storagePath, err := utils.ExpandHome(opts.StoragePath)
	if err != nil {
		return nil, err
	}
	temporaryPath, err := utils.ExpandHome(opts.TemporaryPath)
	if err != nil {
		return nil, err
	}
	var extra []string
	for _, p := range opts.ExtraStoragePaths {
		ep, err := utils.ExpandHome(p)
		if err != nil {
			return nil, err
		}
		extra = append(extra, ep)
	}
	if err := os.MkdirAll(storagePath, defaultDirPermissions); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(temporaryPath, defaultDirPermissions); err != nil {
		return nil, err
	}

	m := &Manager{
		storagePath:       storagePath,
		temporaryPath:     temporaryPath,
		extraStoragePaths: extra,
		repositoryURL:     strings.TrimSuffix(opts.RepositoryURL, "/"),
		fs:                opts.FS,
		probe:             opts.Probe,
		web:               opts.Web,
		openArchive:       opts.OpenArchive,
		reg:               registry.New(),
	}
	if m.fs == nil {
		m.fs = afero.NewOsFs()
	}
	if m.probe == nil {
		m.probe = obf.HeaderProbe{}
	}
	if m.web == nil {
		m.web = webclient.New()
	}
	if m.openArchive == nil {
		m.openArchive = archive.OpenZip
	}
	m.catalog = catalog.New(m.repositoryURL, m.web)
	m.scanner = scanner.New(m.fs, m.probe, storagePath, extra)
	return m, nil
}

// Rescan rebuilds the local registry from disk. The registry is replaced only
// when every storage path scanned successfully.
func (m *Manager) Rescan(ctx context.Context) error {
	return m.reg.UpdateLocal(func(local map[string]model.LocalResource) error {
		fresh, err := m.scanner.Scan(ctx)
		if err != nil {
			return err
		}
		clear(local)
		for k, v := range fresh {
			local[k] = v
		}
		return nil
	})
}

// Watch subscribes to change notifications on the extra storage paths. Every
// coalesced burst of events triggers a full rescan. The returned bridge must
// be closed by the caller.
func (m *Manager) Watch() (*watcher.Bridge, error) {
	return watcher.New(m.extraStoragePaths, watcher.DefaultDebounce, func() {
		ctx := context.Background()
		if err := m.Rescan(ctx); err != nil {
			utils.GetLogger(ctx, "manager").Warn("rescan after filesystem change failed", "error", err)
		}
	})
}

func (m *Manager) LocalResources() []model.LocalResource {
	return m.reg.Local()
}

func (m *Manager) LocalResource(name string) (model.LocalResource, bool) {
	return m.reg.LocalByName(name)
}

func (m *Manager) IsInstalled(name string) bool {
	return m.reg.IsInstalled(name)
}

func (m *Manager) RemoteResources() []model.RemoteResource {
	return m.reg.Remote()
}

func (m *Manager) RemoteResource(name string) (model.RemoteResource, bool) {
	return m.reg.RemoteByName(name)
}

// RefreshCatalog fetches and parses the repository index. On success the
// remote registry is replaced wholesale; on any failure it stays untouched.
func (m *Manager) RefreshCatalog(ctx context.Context) error {
	remote, err := m.catalog.Fetch(ctx)
	if err != nil {
		return err
	}
	m.reg.ReplaceRemote(remote)
	return nil
}

// UpdateAvailableFor reports whether the repository carries a newer build of
// an installed resource.
func (m *Manager) UpdateAvailableFor(name string) bool {
	local, ok := m.reg.LocalByName(name)
	if !ok {
		return false
	}
	remote, ok := m.reg.RemoteByName(name)
	if !ok {
		return false
	}
	return local.Timestamp < remote.Timestamp
}

// AvailableUpdates lists the names of installed resources with a newer build
// in the repository.
func (m *Manager) AvailableUpdates() []string {
	var names []string
	for _, local := range m.reg.Local() {
		remote, ok := m.reg.RemoteByName(local.Name)
		if !ok {
			continue
		}
		if local.Timestamp < remote.Timestamp {
			names = append(names, local.Name)
		}
	}
	return names
}

// GuessResourceName derives a resource name from a container path: the base
// name, lower-cased, with any ".zip" stripped.
func GuessResourceName(path string) string {
	return utils.ToTrimmedLower(model.StripContainerExt(filepath.Base(path)))
}

// InstallFromFile installs the container at path as a resource of the given
// type. An empty name is guessed from the file name.
func (m *Manager) InstallFromFile(ctx context.Context, name, path string, typ model.ResourceType) error {
	if name == "" {
		name = GuessResourceName(path)
	}
	unlock, err := m.lockStorage(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	return m.reg.UpdateLocal(func(local map[string]model.LocalResource) error {
		if _, exists := local[name]; exists {
			return fmt.Errorf("%w: %s", model.ErrAlreadyInstalled, name)
		}
		switch typ {
		case model.ResourceTypeMapRegion:
			return m.installMapRegionLocked(ctx, local, name, path)
		case model.ResourceTypeVoicePack:
			return m.installVoicePackLocked(ctx, local, name, path)
		default:
			return fmt.Errorf("%w: %v", model.ErrUnknownType, typ)
		}
	})
}

// InstallFromRepository downloads the container for name and installs it.
// The temporary file is removed on every exit path.
func (m *Manager) InstallFromRepository(ctx context.Context, name string, progress webclient.ProgressCallback) error {
	if m.IsInstalled(name) {
		return fmt.Errorf("%w: %s", model.ErrAlreadyInstalled, name)
	}
	remote, ok := m.reg.RemoteByName(name)
	if !ok {
		return fmt.Errorf("%w: %s not in repository index", model.ErrNotFound, name)
	}
	tmpPath := m.temporaryFilePath(name)
	if err := m.web.DownloadToFile(ctx, remote.DownloadURL, tmpPath, progress); err != nil {
		return fmt.Errorf("%w: %v", model.ErrDownloadFailed, err)
	}
	defer func() {
		_ = os.Remove(tmpPath)
	}()
	return m.InstallFromFile(ctx, name, tmpPath, remote.Type)
}

// Uninstall removes the named resource from disk and from the registry. A
// filesystem failure leaves the registry entry intact.
func (m *Manager) Uninstall(ctx context.Context, name string) error {
	unlock, err := m.lockStorage(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	return m.reg.UpdateLocal(func(local map[string]model.LocalResource) error {
		res, ok := local[name]
		if !ok {
			return fmt.Errorf("%w: %s", model.ErrNotFound, name)
		}
		if err := m.removeFromDisk(res); err != nil {
			return err
		}
		delete(local, name)
		return nil
	})
}

// UpdateFromFile replaces an installed resource with the container at path,
// under a single writer lock. The old version is removed first; a failing
// install phase leaves the resource absent.
func (m *Manager) UpdateFromFile(ctx context.Context, name, path string) error {
	if name == "" {
		name = GuessResourceName(path)
	}
	unlock, err := m.lockStorage(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	return m.reg.UpdateLocal(func(local map[string]model.LocalResource) error {
		res, ok := local[name]
		if !ok {
			return fmt.Errorf("%w: %s", model.ErrNotFound, name)
		}
		if err := m.removeFromDisk(res); err != nil {
			return err
		}
		delete(local, name)
		switch res.Type {
		case model.ResourceTypeMapRegion:
			return m.installMapRegionLocked(ctx, local, name, path)
		case model.ResourceTypeVoicePack:
			return m.installVoicePackLocked(ctx, local, name, path)
		default:
			return fmt.Errorf("%w: %v", model.ErrUnknownType, res.Type)
		}
	})
}

// UpdateFromRepository downloads the container for name and updates the
// installed resource in place.
func (m *Manager) UpdateFromRepository(ctx context.Context, name string, progress webclient.ProgressCallback) error {
	remote, ok := m.reg.RemoteByName(name)
	if !ok {
		return fmt.Errorf("%w: %s not in repository index", model.ErrNotFound, name)
	}
	tmpPath := m.temporaryFilePath(name)
	if err := m.web.DownloadToFile(ctx, remote.DownloadURL, tmpPath, progress); err != nil {
		return fmt.Errorf("%w: %v", model.ErrDownloadFailed, err)
	}
	defer func() {
		_ = os.Remove(tmpPath)
	}()
	return m.UpdateFromFile(ctx, name, tmpPath)
}

func (m *Manager) installMapRegionLocked(ctx context.Context, local map[string]model.LocalResource, name, path string) error {
	ar, err := m.openArchive(path)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrArchiveMalformed, err)
	}
	defer ar.Close()

	items, err := ar.List()
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrArchiveMalformed, err)
	}
	var mapItem *archive.Item
	for i := range items {
		if items[i].Dir || !strings.HasSuffix(items[i].Name, scanner.MapFileExt) {
			continue
		}
		mapItem = &items[i]
		break
	}
	if mapItem == nil {
		return fmt.Errorf("%w: %s", model.ErrNoMapEntry, path)
	}

	destPath := filepath.Join(m.storagePath, name)
	if _, err := os.Stat(destPath); err == nil {
		return fmt.Errorf("%w: %s exists on disk", model.ErrAlreadyInstalled, destPath)
	}
	// flat extraction: directory components of the entry name are dropped
	if err := ar.ExtractItemToFile(mapItem.Name, destPath); err != nil {
		return err
	}

	info, err := obf.ProbeFile(m.fs, m.probe, destPath)
	if err != nil {
		_ = os.Remove(destPath)
		return fmt.Errorf("%w: %v", model.ErrProbeFailed, err)
	}
	fi, err := os.Stat(destPath)
	if err != nil {
		_ = os.Remove(destPath)
		return err
	}
	size := uint64(fi.Size())
	res, err := model.NewMapRegion(name, msec(mapItem.ModTime), size, destPath, obf.NewMapFile(destPath, size, info))
	if err != nil {
		_ = os.Remove(destPath)
		return err
	}
	local[name] = res
	utils.GetLogger(ctx, "manager").Info("installed map region", "name", name, "size", size)
	return nil
}

func (m *Manager) installVoicePackLocked(ctx context.Context, local map[string]model.LocalResource, name, path string) error {
	ar, err := m.openArchive(path)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrArchiveMalformed, err)
	}
	defer ar.Close()

	items, err := ar.List()
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrArchiveMalformed, err)
	}
	var configItem *archive.Item
	for i := range items {
		if items[i].Dir || items[i].Name != scanner.VoiceConfig {
			continue
		}
		configItem = &items[i]
		break
	}
	if configItem == nil {
		return fmt.Errorf("%w: %s", model.ErrNoVoiceConfig, path)
	}

	destPath := filepath.Join(m.storagePath, name)
	if _, err := os.Stat(destPath); err == nil {
		return fmt.Errorf("%w: %s exists on disk", model.ErrAlreadyInstalled, destPath)
	}

	// extract to a staging directory and rename into place, so a failed
	// extraction never leaves a half-populated pack behind
	stagingPath := destPath + stagingInfix + uuid.NewString()
	contentSize, err := ar.ExtractAllTo(stagingPath)
	if err != nil {
		_ = os.RemoveAll(stagingPath)
		return err
	}
	timestamp := msec(configItem.ModTime)
	if err := m.writeSidecars(stagingPath, timestamp, contentSize); err != nil {
		_ = os.RemoveAll(stagingPath)
		return err
	}
	if err := os.Rename(stagingPath, destPath); err != nil {
		_ = os.RemoveAll(stagingPath)
		return err
	}

	res, err := model.NewVoicePack(name, timestamp, contentSize, destPath)
	if err != nil {
		_ = os.RemoveAll(destPath)
		return err
	}
	local[name] = res
	utils.GetLogger(ctx, "manager").Info("installed voice pack", "name", name, "size", contentSize)
	return nil
}

func (m *Manager) writeSidecars(dir string, timestamp, contentSize uint64) error {
	err := utils.AtomicWriteFile(
		filepath.Join(dir, scanner.TimestampFile),
		[]byte(strconv.FormatUint(timestamp, 10)),
		defaultFilePermissions,
	)
	if err != nil {
		return err
	}
	return utils.AtomicWriteFile(
		filepath.Join(dir, scanner.SizeFile),
		[]byte(strconv.FormatUint(contentSize, 10)),
		defaultFilePermissions,
	)
}

func (m *Manager) removeFromDisk(res model.LocalResource) error {
	switch res.Type {
	case model.ResourceTypeMapRegion:
		if res.MapFile != nil {
			res.MapFile.LockForRemoval()
		}
		err := os.Remove(res.LocalPath)
		if err != nil && errors.Is(err, fs.ErrNotExist) {
			// the file vanished outside our control; the registry entry
			// still has to go
			return nil
		}
		return err
	case model.ResourceTypeVoicePack:
		return os.RemoveAll(res.LocalPath)
	default:
		return fmt.Errorf("%w: %v", model.ErrUnknownType, res.Type)
	}
}

// temporaryFilePath composes a collision-free download target in the
// temporary directory.
func (m *Manager) temporaryFilePath(name string) string {
	sum := md5.Sum([]byte(name))
	return filepath.Join(m.temporaryPath, fmt.Sprintf("%x.%d", sum, time.Now().UTC().UnixMilli()))
}

// lockStorage takes the inter-process lock on the storage directory, so two
// resman processes cannot mutate it concurrently.
func (m *Manager) lockStorage(ctx context.Context) (func(), error) {
	fileLock := flock.New(filepath.Join(m.storagePath, storageLockFilename))
	lockCtx, cancel := context.WithTimeout(ctx, storageLockTimeout)
	defer cancel()
	locked, err := fileLock.TryLockContext(lockCtx, storageLockRetryDelay)
	if err != nil || !locked {
		return nil, fmt.Errorf("%w: %v", ErrStorageLocked, err)
	}
	return func() {
		_ = fileLock.Unlock()
	}, nil
}

func msec(t time.Time) uint64 {
	ms := t.UnixMilli()
	if ms < 0 {
		return 0
	}
	return uint64(ms)
}
