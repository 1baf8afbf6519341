package models_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/linefleet/linefleet/pkg/archive"
	"github.com/linefleet/linefleet/pkg/configtext"
	"github.com/linefleet/linefleet/pkg/services/models"
	"github.com/linefleet/linefleet/pkg/transport"
	"github.com/linefleet/linefleet/pkg/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseConfig = "[camera]\nexposure=3\n[current_model]\nmodel=m1\nmodel_path=/old\nchange_time=never\n"

type fixture struct {
	store      *models.Store
	ctrl       *testutil.FakeController
	root       string
	configFile string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctrl := testutil.NewFakeController(t)
	root := filepath.Join(t.TempDir(), "models")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "m1"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "m2"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, models.ScratchDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "readme.txt"), []byte("x"), 0o644))

	configFile := filepath.Join(t.TempDir(), "config.ini")
	require.NoError(t, os.WriteFile(configFile, []byte(baseConfig), 0o644))

	tc := transport.NewClient(transport.Config{ServerURL: ctrl.URL, Timeout: 5 * time.Second})
	return fixture{
		store:      models.NewStore(slog.Default(), root, configFile, tc),
		ctrl:       ctrl,
		root:       root,
		configFile: configFile,
	}
}

func (f fixture) config(t *testing.T) string {
	t.Helper()
	text, err := configtext.ReadFile(f.configFile)
	require.NoError(t, err)
	return text
}

func modelZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	src := t.TempDir()
	for name, content := range files {
		p := filepath.Join(src, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	zipPath := filepath.Join(t.TempDir(), "m.zip")
	require.NoError(t, archive.Create(src, zipPath))
	data, err := os.ReadFile(zipPath)
	require.NoError(t, err)
	return data
}

func TestList(t *testing.T) {
	f := newFixture(t)
	got := f.store.List()
	assert.Equal(t, []models.Descriptor{
		{Name: "m1", Path: filepath.Join(f.root, "m1"), IsCurrent: true},
		{Name: "m2", Path: filepath.Join(f.root, "m2"), IsCurrent: false},
	}, got)
}

func TestListMissingRoot(t *testing.T) {
	s := models.NewStore(slog.Default(), filepath.Join(t.TempDir(), "none"), "missing.ini", nil)
	assert.Empty(t, s.List())
}

func TestChange(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Change("m2"))

	text := f.config(t)
	assert.Equal(t, "m2", configtext.GetCurrentModel(text))
	assert.Contains(t, text, "model_path="+filepath.Join(f.root, "m2")+"\n")
	assert.Contains(t, text, "[camera]\nexposure=3\n")
	assert.NotContains(t, text, "change_time=never")
}

func TestChangeErrors(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.store.Change("nope"), models.ErrModelNotFound)
	assert.ErrorIs(t, f.store.Change("../m1"), models.ErrInvalidName)
	assert.ErrorIs(t, f.store.Change(""), models.ErrInvalidName)
	assert.Equal(t, baseConfig, f.config(t), "config untouched on failure")
}

func TestInstall(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "m1", "stale.bin"), []byte("old"), 0o644))
	f.ctrl.ServeFile("/files/m1.zip", modelZip(t, map[string]string{"weights.bin": "new", "sub/meta.json": "{}"}))

	require.NoError(t, f.store.Install(t.Context(), "m1", "/files/m1.zip", false))

	assert.NoFileExists(t, filepath.Join(f.root, "m1", "stale.bin"), "previous model is replaced")
	got, err := os.ReadFile(filepath.Join(f.root, "m1", "weights.bin"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
	assert.FileExists(t, filepath.Join(f.root, "m1", "sub", "meta.json"))
	scratch, err := os.ReadDir(filepath.Join(f.root, models.ScratchDir))
	require.NoError(t, err)
	assert.Empty(t, scratch, "scratch zip removed")
	assert.Equal(t, baseConfig, f.config(t), "not applied")
}

func TestInstallAndApply(t *testing.T) {
	f := newFixture(t)
	f.ctrl.ServeFile("/files/m3.zip", modelZip(t, map[string]string{"w.bin": "x"}))

	require.NoError(t, f.store.Install(t.Context(), "m3", f.ctrl.URL+"/files/m3.zip", true))
	assert.Equal(t, "m3", configtext.GetCurrentModel(f.config(t)))
}

func TestInstallDownloadFails(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "m1", "keep.bin"), []byte("k"), 0o644))
	f.ctrl.SetDown("/files/m1.zip", true)

	err := f.store.Install(t.Context(), "m1", "/files/m1.zip", true)
	assert.ErrorIs(t, err, models.ErrTransfer)
	assert.FileExists(t, filepath.Join(f.root, "m1", "keep.bin"), "existing model kept when download fails")
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "m2", "w.bin"), []byte("x"), 0o644))
	require.NoError(t, f.store.Delete("m2"))
	assert.NoDirExists(t, filepath.Join(f.root, "m2"))
	assert.ErrorIs(t, f.store.Delete("m2"), models.ErrModelNotFound)
}

func TestPublish(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "m2", "w.bin"), []byte("weights"), 0o644))

	require.NoError(t, f.store.Publish(t.Context(), "m2", f.ctrl.URL+"/api/library/upload"))

	uploads := f.ctrl.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "/api/library/upload", uploads[0].Path)
	assert.Equal(t, "m2", uploads[0].ModelName)
	assert.Equal(t, "m2.zip", uploads[0].FileName)
	assert.NotEmpty(t, uploads[0].Content)
	assert.NoFileExists(t, filepath.Join(f.root, models.ScratchDir, "m2.zip"))
}

func TestPublishErrors(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.store.Publish(t.Context(), "missing", "/upload"), models.ErrModelNotFound)

	f.ctrl.SetDown("/upload", true)
	assert.ErrorIs(t, f.store.Publish(t.Context(), "m1", "/upload"), models.ErrTransfer)
}
