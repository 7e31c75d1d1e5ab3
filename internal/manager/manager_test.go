package manager

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/omaps-oss/resman/internal/model"
	"github.com/omaps-oss/resman/internal/testutils"
)

var mapModTime = time.UnixMilli(1700000000000).UTC()

func validMapData() []byte {
	return append(testutils.MapFileHeader(2, 1700000000000), []byte("routing and poi sections")...)
}

func newTestManager(t *testing.T, repositoryURL string, extra ...string) *Manager {
	t.Helper()
	base := t.TempDir()
	m, err := New(Options{
		StoragePath:       filepath.Join(base, "storage"),
		TemporaryPath:     filepath.Join(base, "tmp"),
		ExtraStoragePaths: extra,
		RepositoryURL:     repositoryURL,
	})
	require.NoError(t, err)
	return m
}

func mapRegionZip(t *testing.T, dir, zipName string, payload []byte) string {
	t.Helper()
	path := filepath.Join(dir, zipName)
	testutils.CreateZip(t, path, []testutils.ZipEntry{
		{Name: "nested/region.obf", Data: payload, ModTime: mapModTime},
	})
	return path
}

func voicePackZip(t *testing.T, dir, zipName string) string {
	t.Helper()
	path := filepath.Join(dir, zipName)
	testutils.CreateZip(t, path, []testutils.ZipEntry{
		{Name: "_config.p", Data: []byte("cfg"), ModTime: time.UnixMilli(2000).UTC()},
		{Name: "en.mp3", Data: []byte("audio-en"), ModTime: time.UnixMilli(2000).UTC()},
		{Name: "de.mp3", Data: []byte("audio-de"), ModTime: time.UnixMilli(2000).UTC()},
	})
	return path
}

func TestInstallMapRegionFromFile(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, "https://repo.invalid")
	zipPath := mapRegionZip(t, t.TempDir(), "germany.obf.zip", validMapData())

	require.NoError(t, m.InstallFromFile(ctx, "", zipPath, model.ResourceTypeMapRegion))

	assert.True(t, m.IsInstalled("germany.obf"))
	res, ok := m.LocalResource("germany.obf")
	require.True(t, ok)
	assert.Equal(t, model.ResourceTypeMapRegion, res.Type)
	assert.Equal(t, uint64(len(validMapData())), res.ContentSize)
	require.NotNil(t, res.MapFile)
	assert.Equal(t, int32(2), res.MapFile.Info.Version)

	data, err := os.ReadFile(filepath.Join(m.storagePath, "germany.obf"))
	require.NoError(t, err)
	assert.Equal(t, validMapData(), data)

	// round-trip: a rescan reproduces the installed entry
	require.NoError(t, m.Rescan(ctx))
	rescanned, ok := m.LocalResource("germany.obf")
	require.True(t, ok)
	assert.Equal(t, res.Name, rescanned.Name)
	assert.Equal(t, res.Type, rescanned.Type)
	assert.Equal(t, res.ContentSize, rescanned.ContentSize)
}

func TestInstallMapRegionRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, "https://repo.invalid")
	zipPath := mapRegionZip(t, t.TempDir(), "germany.obf.zip", validMapData())

	require.NoError(t, m.InstallFromFile(ctx, "germany.obf", zipPath, model.ResourceTypeMapRegion))
	err := m.InstallFromFile(ctx, "germany.obf", zipPath, model.ResourceTypeMapRegion)
	assert.ErrorIs(t, err, model.ErrAlreadyInstalled)
}

func TestInstallMapRegionNoMapEntry(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, "https://repo.invalid")
	zipPath := filepath.Join(t.TempDir(), "germany.obf.zip")
	testutils.CreateZip(t, zipPath, []testutils.ZipEntry{
		{Name: "readme.txt", Data: []byte("no map here"), ModTime: mapModTime},
	})

	err := m.InstallFromFile(ctx, "", zipPath, model.ResourceTypeMapRegion)
	assert.ErrorIs(t, err, model.ErrNoMapEntry)
	assert.False(t, m.IsInstalled("germany.obf"))
	assert.NoFileExists(t, filepath.Join(m.storagePath, "germany.obf"))
}

func TestInstallMapRegionUnlistableArchive(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, "https://repo.invalid")
	zipPath := filepath.Join(t.TempDir(), "germany.obf.zip")
	require.NoError(t, os.WriteFile(zipPath, []byte("not a zip at all"), 0664))

	err := m.InstallFromFile(ctx, "", zipPath, model.ResourceTypeMapRegion)
	assert.ErrorIs(t, err, model.ErrArchiveMalformed)
	assert.False(t, m.IsInstalled("germany.obf"))
}

func TestInstallMapRegionProbeFailure(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, "https://repo.invalid")
	zipPath := mapRegionZip(t, t.TempDir(), "germany.obf.zip", []byte{0x90})

	err := m.InstallFromFile(ctx, "", zipPath, model.ResourceTypeMapRegion)
	assert.ErrorIs(t, err, model.ErrProbeFailed)
	// the extracted file is rolled back
	assert.NoFileExists(t, filepath.Join(m.storagePath, "germany.obf"))
	assert.False(t, m.IsInstalled("germany.obf"))
}

func TestInstallVoicePack(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, "https://repo.invalid")
	zipPath := voicePackZip(t, t.TempDir(), "english.voice.zip")

	require.NoError(t, m.InstallFromFile(ctx, "", zipPath, model.ResourceTypeVoicePack))

	res, ok := m.LocalResource("english.voice")
	require.True(t, ok)
	assert.Equal(t, model.ResourceTypeVoicePack, res.Type)
	wantSize := uint64(len("cfg") + len("audio-en") + len("audio-de"))
	assert.Equal(t, wantSize, res.ContentSize)
	assert.Equal(t, uint64(2000), res.Timestamp)

	dir := filepath.Join(m.storagePath, "english.voice")
	ts, err := os.ReadFile(filepath.Join(dir, ".timestamp"))
	require.NoError(t, err)
	assert.Equal(t, "2000", string(ts))
	size, err := os.ReadFile(filepath.Join(dir, ".size"))
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d", wantSize), string(size))
	assert.FileExists(t, filepath.Join(dir, "en.mp3"))
}

func TestInstallVoicePackNoConfig(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, "https://repo.invalid")
	zipPath := filepath.Join(t.TempDir(), "english.voice.zip")
	testutils.CreateZip(t, zipPath, []testutils.ZipEntry{
		{Name: "en.mp3", Data: []byte("audio-en"), ModTime: mapModTime},
	})

	err := m.InstallFromFile(ctx, "", zipPath, model.ResourceTypeVoicePack)
	assert.ErrorIs(t, err, model.ErrNoVoiceConfig)
	assert.NoDirExists(t, filepath.Join(m.storagePath, "english.voice"))

	// no staging leftovers either
	matches, err := filepath.Glob(filepath.Join(m.storagePath, "*"+stagingInfix+"*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestUninstallMapRegion(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, "https://repo.invalid")
	zipPath := mapRegionZip(t, t.TempDir(), "germany.obf.zip", validMapData())
	require.NoError(t, m.InstallFromFile(ctx, "", zipPath, model.ResourceTypeMapRegion))
	res, ok := m.LocalResource("germany.obf")
	require.True(t, ok)

	require.NoError(t, m.Uninstall(ctx, "germany.obf"))

	assert.False(t, m.IsInstalled("germany.obf"))
	assert.NoFileExists(t, filepath.Join(m.storagePath, "germany.obf"))
	// the removal lock was engaged before the unlink
	assert.True(t, res.MapFile.IsLockedForRemoval())
}

func TestUninstallVoicePack(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, "https://repo.invalid")
	zipPath := voicePackZip(t, t.TempDir(), "english.voice.zip")
	require.NoError(t, m.InstallFromFile(ctx, "", zipPath, model.ResourceTypeVoicePack))

	require.NoError(t, m.Uninstall(ctx, "english.voice"))
	assert.False(t, m.IsInstalled("english.voice"))
	assert.NoDirExists(t, filepath.Join(m.storagePath, "english.voice"))
}

func TestUninstallAbsent(t *testing.T) {
	m := newTestManager(t, "https://repo.invalid")
	err := m.Uninstall(context.Background(), "atlantis.obf")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUninstallMapRegionWithMissingFile(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, "https://repo.invalid")
	zipPath := mapRegionZip(t, t.TempDir(), "germany.obf.zip", validMapData())
	require.NoError(t, m.InstallFromFile(ctx, "", zipPath, model.ResourceTypeMapRegion))
	require.NoError(t, os.Remove(filepath.Join(m.storagePath, "germany.obf")))

	// a vanished file still takes the registry entry with it
	require.NoError(t, m.Uninstall(ctx, "germany.obf"))
	assert.False(t, m.IsInstalled("germany.obf"))
}

func TestUpdateFromFile(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, "https://repo.invalid")
	dir := t.TempDir()
	v1 := mapRegionZip(t, dir, "v1.zip", validMapData())
	sections := make([]byte, 512)
	rand.New(rand.NewSource(42)).Read(sections)
	v2Payload := append(validMapData(), sections...)
	v2 := mapRegionZip(t, dir, "v2.zip", v2Payload)

	require.NoError(t, m.InstallFromFile(ctx, "germany.obf", v1, model.ResourceTypeMapRegion))
	require.NoError(t, m.UpdateFromFile(ctx, "germany.obf", v2))

	res, ok := m.LocalResource("germany.obf")
	require.True(t, ok)
	assert.Equal(t, uint64(len(v2Payload)), res.ContentSize)
}

func TestUpdateFromFileRequiresExistingResource(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, "https://repo.invalid")
	zipPath := mapRegionZip(t, t.TempDir(), "germany.obf.zip", validMapData())

	err := m.UpdateFromFile(ctx, "germany.obf", zipPath)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

// repoServer serves a catalog with a single map region plus its container.
type repoServer struct {
	*httptest.Server
	indexBody   func() string
	containerOf map[string][]byte
}

func newRepoServer(t *testing.T) *repoServer {
	t.Helper()
	rs := &repoServer{containerOf: map[string][]byte{}}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/get_indexes.php":
			_, _ = w.Write([]byte(rs.indexBody()))
		case "/download.php":
			data, ok := rs.containerOf[r.URL.Query().Get("file")]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write(data)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(rs.Server.Close)
	return rs
}

func indexXML(timestamp uint64) string {
	return fmt.Sprintf(`<resources>
	<resource type="map" name="germany.obf.zip" timestamp="%d" containerSize="50" contentSize="200"/>
</resources>`, timestamp)
}

func TestInstallFromRepository(t *testing.T) {
	ctx := context.Background()
	rs := newRepoServer(t)
	rs.indexBody = func() string { return indexXML(1000) }

	zipDir := t.TempDir()
	zipPath := mapRegionZip(t, zipDir, "germany.obf.zip", validMapData())
	zipData, err := os.ReadFile(zipPath)
	require.NoError(t, err)
	rs.containerOf["germany.obf.zip"] = zipData

	m := newTestManager(t, rs.URL)
	require.NoError(t, m.RefreshCatalog(ctx))
	assert.Empty(t, m.AvailableUpdates())

	require.NoError(t, m.InstallFromRepository(ctx, "germany.obf", nil))

	assert.True(t, m.IsInstalled("germany.obf"))
	assert.FileExists(t, filepath.Join(m.storagePath, "germany.obf"))
	res, _ := m.LocalResource("germany.obf")
	assert.Equal(t, uint64(len(validMapData())), res.ContentSize)

	// the temporary download file is gone
	entries, err := os.ReadDir(m.temporaryPath)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInstallFromRepositoryNotInIndex(t *testing.T) {
	rs := newRepoServer(t)
	rs.indexBody = func() string { return indexXML(1000) }
	m := newTestManager(t, rs.URL)
	require.NoError(t, m.RefreshCatalog(context.Background()))

	err := m.InstallFromRepository(context.Background(), "atlantis.obf", nil)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestInstallFromRepositoryDownloadFailure(t *testing.T) {
	ctx := context.Background()
	rs := newRepoServer(t)
	rs.indexBody = func() string { return indexXML(1000) }
	// no container registered: download.php answers 404
	m := newTestManager(t, rs.URL)
	require.NoError(t, m.RefreshCatalog(ctx))

	err := m.InstallFromRepository(ctx, "germany.obf", nil)
	assert.ErrorIs(t, err, model.ErrDownloadFailed)
	assert.False(t, m.IsInstalled("germany.obf"))

	entries, err2 := os.ReadDir(m.temporaryPath)
	require.NoError(t, err2)
	assert.Empty(t, entries)
}

func TestRefreshCatalogFailureLeavesIndexUntouched(t *testing.T) {
	ctx := context.Background()
	fail := false
	rs := newRepoServer(t)
	rs.indexBody = func() string {
		if fail {
			return `<resources><broken`
		}
		return indexXML(1000)
	}
	m := newTestManager(t, rs.URL)
	require.NoError(t, m.RefreshCatalog(ctx))
	require.Len(t, m.RemoteResources(), 1)

	fail = true
	err := m.RefreshCatalog(ctx)
	assert.Error(t, err)
	assert.Len(t, m.RemoteResources(), 1)
}

func TestUpdateDetection(t *testing.T) {
	ctx := context.Background()
	rs := newRepoServer(t)
	rs.indexBody = func() string { return indexXML(1000) }
	m := newTestManager(t, rs.URL)

	// a local map region older than the repository build
	localPath := filepath.Join(m.storagePath, "germany.obf")
	require.NoError(t, os.WriteFile(localPath, validMapData(), 0664))
	old := time.UnixMilli(500)
	require.NoError(t, os.Chtimes(localPath, old, old))

	require.NoError(t, m.Rescan(ctx))
	require.NoError(t, m.RefreshCatalog(ctx))

	assert.True(t, m.UpdateAvailableFor("germany.obf"))
	assert.Equal(t, []string{"germany.obf"}, m.AvailableUpdates())

	// not installed and not in the index are both "no update"
	assert.False(t, m.UpdateAvailableFor("atlantis.obf"))
}

func TestUpdateFromRepository(t *testing.T) {
	ctx := context.Background()
	rs := newRepoServer(t)
	rs.indexBody = func() string { return indexXML(2000) }

	newPayload := append(validMapData(), []byte(" updated build")...)
	zipPath := mapRegionZip(t, t.TempDir(), "germany.obf.zip", newPayload)
	zipData, err := os.ReadFile(zipPath)
	require.NoError(t, err)
	rs.containerOf["germany.obf.zip"] = zipData

	m := newTestManager(t, rs.URL)
	localPath := filepath.Join(m.storagePath, "germany.obf")
	require.NoError(t, os.WriteFile(localPath, validMapData(), 0664))
	old := time.UnixMilli(500)
	require.NoError(t, os.Chtimes(localPath, old, old))
	require.NoError(t, m.Rescan(ctx))
	require.NoError(t, m.RefreshCatalog(ctx))
	require.True(t, m.UpdateAvailableFor("germany.obf"))

	require.NoError(t, m.UpdateFromRepository(ctx, "germany.obf", nil))

	res, ok := m.LocalResource("germany.obf")
	require.True(t, ok)
	assert.Equal(t, uint64(len(newPayload)), res.ContentSize)

	entries, err := os.ReadDir(m.temporaryPath)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRescanPicksUpExtraStoragePaths(t *testing.T) {
	ctx := context.Background()
	extra := t.TempDir()
	m := newTestManager(t, "https://repo.invalid", extra)

	require.NoError(t, os.WriteFile(filepath.Join(extra, "france.obf"), validMapData(), 0664))
	require.NoError(t, m.Rescan(ctx))
	assert.True(t, m.IsInstalled("france.obf"))
}

func TestGuessResourceName(t *testing.T) {
	assert.Equal(t, "germany.obf", GuessResourceName("/downloads/Germany.obf.zip"))
	assert.Equal(t, "english.voice", GuessResourceName("english.voice.zip"))
	assert.Equal(t, "germany.obf", GuessResourceName("/downloads/germany.obf"))
}
