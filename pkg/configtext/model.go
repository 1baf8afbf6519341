package configtext

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/natefinch/atomic"
)

var (
	currentModelRe = regexp.MustCompile(`\[current_model\]\s*model[ \t]*=[ \t]*([^\r\n]*)`)
	modelPathRe    = regexp.MustCompile(`(?m)^[ \t]*model_path[ \t]*=[ \t]*([^\r\n]*)`)
	changeTimeRe   = regexp.MustCompile(`(?m)^[ \t]*change_time[ \t]*=[ \t]*([^\r\n]*)`)
)

// GetCurrentModel returns the model named in the [current_model] block, or ""
// when there is no such block.
func GetCurrentModel(text string) string {
	m := currentModelRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// UpdateCurrentModel points the [current_model] block at name and path and
// stamps change_time with now. model_path and change_time are matched at
// the first line that starts with the key. Missing fields are left
// absent; all other bytes are preserved.
func UpdateCurrentModel(text, name, path string, now time.Time) string {
	text = replaceFirstValue(currentModelRe, text, name)
	text = replaceFirstValue(modelPathRe, text, path)
	text = replaceFirstValue(changeTimeRe, text, FormatChangeTime(now))
	return text
}

// FormatChangeTime renders t as [YYYY/MM/DD] [HH:MM:SS:mmm] in local time.
func FormatChangeTime(t time.Time) string {
	t = t.Local()
	return t.Format("[2006/01/02] [15:04:05") + fmt.Sprintf(":%03d]", t.Nanosecond()/int(time.Millisecond))
}

// replaceFirstValue swaps the first capture group of the first match of re.
func replaceFirstValue(re *regexp.Regexp, text, value string) string {
	loc := re.FindStringSubmatchIndex(text)
	if loc == nil {
		return text
	}
	return text[:loc[2]] + value + text[loc[3]:]
}

// ReadFile returns the raw config text at path.
func ReadFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read config %s: %w", path, err)
	}
	return string(b), nil
}

// WriteFile replaces the config at path atomically.
func WriteFile(path, text string) error {
	if err := atomic.WriteFile(path, bytes.NewReader([]byte(text))); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
