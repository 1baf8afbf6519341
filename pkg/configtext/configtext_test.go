package configtext_test

import (
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/linefleet/linefleet/pkg/configtext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var changeTimePattern = regexp.MustCompile(`^\[\d{4}/\d{2}/\d{2}\] \[\d{2}:\d{2}:\d{2}:\d{3}\]$`)

func TestUpdateCurrentModel(t *testing.T) {
	in := "[current_model]\nmodel=foo\nmodel_path=X\nchange_time=Y\n"
	out := configtext.UpdateCurrentModel(in, "bar", "Z", time.Now())

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "[current_model]", lines[0])
	assert.Equal(t, "model=bar", lines[1])
	assert.Equal(t, "model_path=Z", lines[2])
	require.True(t, strings.HasPrefix(lines[3], "change_time="))
	assert.Regexp(t, changeTimePattern, strings.TrimPrefix(lines[3], "change_time="))
	assert.Equal(t, "", lines[4])
}

func TestUpdateCurrentModelPreservesSurroundings(t *testing.T) {
	in := "; inspection settings\r\n" +
		"[camera]\r\nexposure = 12\r\n" +
		"[current_model]\r\nmodel = old\r\nmodel_path = C:\\models\\old\r\nchange_time = [2020/01/01] [00:00:00:000]\r\n" +
		"[other]\r\nmodel_path_backup=keep\r\n"
	now := time.Date(2024, 7, 9, 8, 5, 3, 42*int(time.Millisecond), time.Local)

	out := configtext.UpdateCurrentModel(in, "new", `C:\models\new`, now)

	want := "; inspection settings\r\n" +
		"[camera]\r\nexposure = 12\r\n" +
		"[current_model]\r\nmodel = new\r\nmodel_path = C:\\models\\new\r\nchange_time = [2024/07/09] [08:05:03:042]\r\n" +
		"[other]\r\nmodel_path_backup=keep\r\n"
	assert.Equal(t, want, out)
}

func TestUpdateCurrentModelIgnoresLongerKeys(t *testing.T) {
	in := "[current_model]\nmodel=foo\nlast_model_path=OLD\nmodel_path=X\nlast_change_time=Q\n  change_time=Y\n"
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local)

	out := configtext.UpdateCurrentModel(in, "bar", "Z", now)

	want := "[current_model]\nmodel=bar\nlast_model_path=OLD\nmodel_path=Z\nlast_change_time=Q\n  change_time=[2024/01/02] [03:04:05:000]\n"
	assert.Equal(t, want, out)
}

func TestUpdateCurrentModelMissingFields(t *testing.T) {
	in := "[current_model]\nmodel=foo\n"
	out := configtext.UpdateCurrentModel(in, "bar", "Z", time.Now())
	assert.Equal(t, "[current_model]\nmodel=bar\n", out, "absent fields are not inserted")

	noBlock := "model_path=X\n"
	assert.Equal(t, "model_path=Z\n", configtext.UpdateCurrentModel(noBlock, "bar", "Z", time.Now()))
}

func TestUpdateCurrentModelLiteralReplacement(t *testing.T) {
	in := "[current_model]\nmodel=a\nmodel_path=b\n"
	out := configtext.UpdateCurrentModel(in, "$1", "/m/$0", time.Now())
	assert.Equal(t, "[current_model]\nmodel=$1\nmodel_path=/m/$0\n", out)
}

func TestGetCurrentModel(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"no block", "model=foo\nmodel_path=x\n", ""},
		{"empty", "", ""},
		{"simple", "[current_model]\nmodel=foo\n", "foo"},
		{"whitespace", "[current_model]  \r\n  model  =   foo bar  \r\n", "foo bar"},
		{"block later in file", "[a]\nmodel=nope\n[current_model]\nmodel=yes\n", "yes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, configtext.GetCurrentModel(tt.text))
		})
	}
}

func TestFormatChangeTime(t *testing.T) {
	ts := time.Date(2023, 12, 31, 23, 59, 58, 7*int(time.Millisecond), time.Local)
	assert.Equal(t, "[2023/12/31] [23:59:58:007]", configtext.FormatChangeTime(ts))
}

func TestKeyValues(t *testing.T) {
	kv := configtext.Parse("[section]\n a = 1 \nb=2=3\nnot a pair\n\nc=\n")
	assert.Equal(t, configtext.KeyValues{"a": "1", "b": "2=3", "c": ""}, kv)

	path := filepath.Join(t.TempDir(), "settings.ini")
	require.NoError(t, configtext.WriteFile(path, "a=9\n[x]\nb = 10\n"))
	loaded, err := configtext.Load(path)
	require.NoError(t, err)
	assert.Equal(t, configtext.KeyValues{"a": "9", "b": "10"}, loaded)

	_, err = configtext.Load(filepath.Join(t.TempDir(), "missing.ini"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestKeyValuesSave(t *testing.T) {
	kv := configtext.Parse("[camera]\nexposure = 12\n; note\ngain=3\nexposure=14\n")
	assert.Equal(t, "exposure=14\ngain=3\n", kv.Format())

	path := filepath.Join(t.TempDir(), "settings.ini")
	kv["mode"] = "auto"
	require.NoError(t, kv.Save(path))
	loaded, err := configtext.Load(path)
	require.NoError(t, err)
	assert.Equal(t, kv, loaded)

	assert.Equal(t, "", configtext.KeyValues{}.Format())
}

func TestReadWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")
	_, err := configtext.ReadFile(path)
	assert.Error(t, err)

	require.NoError(t, configtext.WriteFile(path, "[current_model]\nmodel=x\n"))
	text, err := configtext.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x", configtext.GetCurrentModel(text))
}
