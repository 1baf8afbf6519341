package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/linefleet/linefleet/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() config.Settings {
	s := config.Default()
	s.LineNumber = 3
	s.PCNumber = 12
	s.ConfigFilePath = "/opt/inspect/config.ini"
	s.LogFolderPath = "/opt/inspect/log"
	s.ModelFolderPath = "/opt/inspect/models"
	s.ServerURL = "http://controller:5000"
	s.ExeName = "inspect"
	return s
}

func TestSaveLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.DefaultFileName)
	s := validSettings()
	s.PCID = 9
	s.IPAddress = "10.0.0.8"
	require.NoError(t, config.Save(path, s))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "{\n    \"pcId\": 9,"), "4-space indented json")

	got, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestSaveLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	s := validSettings()
	require.NoError(t, config.Save(path, s))
	got, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestLoadDefaultsOptionalKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(`{
		"lineNumber": 1, "pcNumber": 2,
		"configFilePath": "c", "logFolderPath": "l", "modelFolderPath": "m",
		"serverUrl": "http://x", "exeName": "app"
	}`), 0o644))

	got, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, got.PCID)
	assert.Equal(t, config.DefaultModelVersion, got.ModelVersion)
	assert.Empty(t, got.IPAddress)
	assert.NoError(t, got.Validate())
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := config.Load(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, config.ErrNotFound)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = config.Load(bad)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validSettings().Validate())

	s := validSettings()
	s.ServerURL = ""
	s.ExeName = ""
	err := s.Validate()
	require.ErrorIs(t, err, config.ErrInvalid)
	assert.Contains(t, err.Error(), "serverUrl")
	assert.Contains(t, err.Error(), "exeName")
}
