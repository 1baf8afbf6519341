package agent_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/linefleet/linefleet/pkg/agent"
	"github.com/linefleet/linefleet/pkg/archive"
	"github.com/linefleet/linefleet/pkg/configtext"
	"github.com/linefleet/linefleet/pkg/supervisor"
	"github.com/linefleet/linefleet/pkg/util/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoversAfterOutage(t *testing.T) {
	f := newFixture(t)
	f.prompt.Fallback = supervisor.Retry

	a, err := agent.New(slog.Default(), f.settings, f.opts)
	require.NoError(t, err)
	errC := run(t, a, context.Background())

	require.Eventually(t, func() bool { return f.ctrl.Count(testutil.PathHeartbeat) >= 1 }, 5*time.Second, time.Millisecond)

	f.ctrl.SetDown(testutil.PathHeartbeat, true)
	f.ctrl.SetDown(testutil.PathRegister, true)
	require.Eventually(t, func() bool { return len(f.prompt.Decisions()) >= 1 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, "Server Connection Lost", f.prompt.Decisions()[0].Title)

	f.ctrl.SetDown(testutil.PathHeartbeat, false)
	f.ctrl.SetDown(testutil.PathRegister, false)
	require.Eventually(t, func() bool {
		st := a.Status()
		return st.State == supervisor.StateRegistered && st.Connected
	}, 5*time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, f.ctrl.Count(testutil.PathRegister), 2)

	a.Stop()
	assert.NoError(t, wait(t, errC))
}

func TestInstallModelFromController(t *testing.T) {
	f := newFixture(t)

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "weights.bin"), []byte("w2"), 0o644))
	zipPath := filepath.Join(t.TempDir(), "m2.zip")
	require.NoError(t, archive.Create(src, zipPath))
	content, err := os.ReadFile(zipPath)
	require.NoError(t, err)
	f.ctrl.ServeFile("/files/m2.zip", content)

	a, err := agent.New(slog.Default(), f.settings, f.opts)
	require.NoError(t, err)
	errC := run(t, a, context.Background())

	// let the first inventory push happen before the command arrives
	require.Eventually(t, func() bool { return f.ctrl.Count(testutil.PathSyncModels) == 1 }, 5*time.Second, time.Millisecond)
	f.ctrl.QueueCommand(5, "UploadModel", `{"ModelName":"m2","DownloadUrl":"/files/m2.zip","ApplyOnUpload":true}`)

	require.Eventually(t, func() bool { return f.ctrl.Count(testutil.PathCommandResult) == 1 }, 5*time.Second, time.Millisecond)
	result := f.ctrl.Requests(testutil.PathCommandResult)[0].JSON(t)
	assert.Equal(t, "Completed", result["status"], result["errorMessage"])

	assert.FileExists(t, filepath.Join(f.settings.ModelFolderPath, "m2", "weights.bin"))
	text, err := configtext.ReadFile(f.settings.ConfigFilePath)
	require.NoError(t, err)
	assert.Equal(t, "m2", configtext.GetCurrentModel(text))

	require.Eventually(t, func() bool { return f.ctrl.Count(testutil.PathSyncModels) == 2 }, 5*time.Second, time.Millisecond)
	inv := f.ctrl.Requests(testutil.PathSyncModels)[1].JSON(t)
	assert.Len(t, inv["models"], 2)

	a.Stop()
	assert.NoError(t, wait(t, errC))
}
