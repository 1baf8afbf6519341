package main

import (
	"path/filepath"
	"testing"

	"github.com/linefleet/linefleet/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func runPrepare(t *testing.T, detectedIP string, args ...string) (config.Settings, error) {
	t.Helper()
	var (
		got    config.Settings
		gotErr error
	)
	app := newApp(func(c *cli.Context) error {
		got, gotErr = prepareSettings(c, detectedIP)
		return nil
	})
	require.NoError(t, app.Run(append([]string{"linefleet-agent"}, args...)))
	return got, gotErr
}

func TestFirstRunSetup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent", config.DefaultFileName)
	s, err := runPrepare(t, "192.168.3.4",
		"--settings", path,
		"--server-url", "http://controller:5000",
		"--line", "2",
		"--pc", "9",
		"--config-file", `C:\app\config.ini`,
		"--log-dir", `C:\app\logs`,
		"--model-dir", `C:\app\models`,
		"--exe-name", "inspect.exe",
	)
	require.NoError(t, err)
	assert.Equal(t, "192.168.3.4", s.IPAddress)
	assert.Equal(t, config.DefaultModelVersion, s.ModelVersion)
	assert.Equal(t, 0, s.PCID)

	saved, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, s, saved)
}

func TestFirstRunMissingValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.DefaultFileName)
	_, err := runPrepare(t, "", "--settings", path, "--server-url", "http://controller:5000")
	assert.ErrorIs(t, err, config.ErrInvalid)
	assert.NoFileExists(t, path)
}

func TestExistingSettingsRedetectIP(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.DefaultFileName)
	s := config.Default()
	s.PCID = 14
	s.ServerURL = "http://old:5000"
	s.LineNumber = 1
	s.PCNumber = 1
	s.ConfigFilePath = "/app/config.ini"
	s.LogFolderPath = "/app/logs"
	s.ModelFolderPath = "/app/models"
	s.ExeName = "inspect"
	s.IPAddress = "10.9.9.9"
	require.NoError(t, config.Save(path, s))

	got, err := runPrepare(t, "", "--settings", path, "--server-url", "http://new:5000")
	require.NoError(t, err)
	assert.Equal(t, 14, got.PCID, "assigned id is kept")
	assert.Equal(t, "http://new:5000", got.ServerURL)
	assert.Equal(t, 1, got.LineNumber, "unset flags do not override")
	assert.Equal(t, fallbackIP, got.IPAddress)

	saved, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, got, saved)
}

func TestSettingsFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	t.Setenv("LINEFLEET_SETTINGS", path)
	t.Setenv("LINEFLEET_SERVER_URL", "http://env:5000")
	t.Setenv("LINEFLEET_CONFIG_FILE", "/app/config.ini")
	t.Setenv("LINEFLEET_LOG_DIR", "/app/logs")
	t.Setenv("LINEFLEET_MODEL_DIR", "/app/models")
	t.Setenv("LINEFLEET_EXE_NAME", "inspect")
	t.Setenv("LINEFLEET_LINE", "5")

	got, err := runPrepare(t, "10.1.2.3")
	require.NoError(t, err)
	assert.Equal(t, "http://env:5000", got.ServerURL)
	assert.Equal(t, 5, got.LineNumber)
	assert.FileExists(t, path)
}
