// Package config loads and persists the agent settings file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFileName     = "agent_config.json"
	DefaultModelVersion = "3.5"
)

var (
	ErrNotFound = errors.New("settings file not found")
	ErrInvalid  = errors.New("invalid settings")
)

// Settings identify this endpoint to the controller and locate the files of
// the companion application. PCID is 0 until registration succeeds.
type Settings struct {
	PCID            int    `json:"pcId" yaml:"pcId"`
	LineNumber      int    `json:"lineNumber" yaml:"lineNumber"`
	PCNumber        int    `json:"pcNumber" yaml:"pcNumber"`
	ConfigFilePath  string `json:"configFilePath" yaml:"configFilePath"`
	LogFolderPath   string `json:"logFolderPath" yaml:"logFolderPath"`
	ModelFolderPath string `json:"modelFolderPath" yaml:"modelFolderPath"`
	IPAddress       string `json:"ipAddress,omitempty" yaml:"ipAddress,omitempty"`
	ModelVersion    string `json:"modelVersion,omitempty" yaml:"modelVersion,omitempty"`
	ServerURL       string `json:"serverUrl" yaml:"serverUrl"`
	ExeName         string `json:"exeName" yaml:"exeName"`
}

func Default() Settings {
	return Settings{
		ModelVersion: DefaultModelVersion,
	}
}

func (s Settings) Validate() error {
	var errs []error
	if s.ServerURL == "" {
		errs = append(errs, errors.New("serverUrl is required"))
	}
	if s.ConfigFilePath == "" {
		errs = append(errs, errors.New("configFilePath is required"))
	}
	if s.LogFolderPath == "" {
		errs = append(errs, errors.New("logFolderPath is required"))
	}
	if s.ModelFolderPath == "" {
		errs = append(errs, errors.New("modelFolderPath is required"))
	}
	if s.ExeName == "" {
		errs = append(errs, errors.New("exeName is required"))
	}
	if s.LineNumber < 0 || s.PCNumber < 0 {
		errs = append(errs, errors.New("lineNumber and pcNumber must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads settings from path. Absent optional keys keep their defaults.
func Load(path string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, &s)
	} else {
		err = json.Unmarshal(data, &s)
	}
	if err != nil {
		return s, fmt.Errorf("%w: decode %s: %w", ErrInvalid, path, err)
	}
	if s.ModelVersion == "" {
		s.ModelVersion = DefaultModelVersion
	}
	return s, nil
}

// Save writes settings to path atomically. JSON files use 4-space indentation.
func Save(path string, s Settings) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(s)
	} else {
		data, err = json.MarshalIndent(s, "", "    ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
