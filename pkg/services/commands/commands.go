// Package commands executes commands delivered by heartbeat responses.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"unicode/utf8"

	"github.com/linefleet/linefleet/pkg/configtext"
	"github.com/linefleet/linefleet/pkg/logutil"
	"github.com/linefleet/linefleet/pkg/metrics"
	"github.com/linefleet/linefleet/pkg/protocol"
)

var (
	ErrMissingField = errors.New("missing required field")
	ErrMalformed    = errors.New("malformed command data")
	ErrNotUTF8      = errors.New("file content is not valid UTF-8")
)

// Reporter posts a command result back to the controller.
type Reporter interface {
	ReportResult(ctx context.Context, result protocol.CommandResult) bool
}

// ModelStore performs the model commands.
type ModelStore interface {
	Change(name string) error
	Install(ctx context.Context, name, downloadURL string, apply bool) error
	Delete(name string) error
	Publish(ctx context.Context, name, uploadURL string) error
}

type Config struct {
	Logger     *slog.Logger
	Reporter   Reporter
	Models     ModelStore
	Metrics    *metrics.Metrics
	ConfigFile string
	LogRoot    string
}

// handler runs one command and returns its result data.
type handler func(ctx context.Context, data string) (string, error)

type Dispatcher struct {
	logger     *slog.Logger
	reporter   Reporter
	models     ModelStore
	metrics    *metrics.Metrics
	configFile string
	logRoot    string

	handlers map[CommandType]handler
}

func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		logger:     logger.With("component", "commands"),
		reporter:   cfg.Reporter,
		models:     cfg.Models,
		metrics:    cfg.Metrics,
		configFile: cfg.ConfigFile,
		logRoot:    cfg.LogRoot,
	}
	d.handlers = map[CommandType]handler{
		UpdateConfig:      d.updateConfig,
		ChangeModel:       d.changeModel,
		UploadModel:       d.uploadModel,
		DeleteModel:       d.deleteModel,
		UploadModelToLib:  d.uploadModelToLib,
		GetLogFileContent: d.getLogFileContent,
	}
	return d
}

// Dispatch executes cmds in order and reports one result per executed
// command. Records without an id or a type are dropped. It returns the number
// of commands executed.
func (d *Dispatcher) Dispatch(ctx context.Context, cmds []protocol.PendingCommand) int {
	executed := 0
	for _, cmd := range cmds {
		if !cmd.Valid() {
			d.logger.Debug("dropping command without id or type")
			continue
		}
		result := d.Execute(ctx, cmd)
		d.reporter.ReportResult(ctx, result)
		executed++
	}
	return executed
}

// Execute runs a single command. It never panics: a failing handler turns
// into a Failed result.
func (d *Dispatcher) Execute(ctx context.Context, cmd protocol.PendingCommand) (result protocol.CommandResult) {
	logger := d.logger.With("commandId", cmd.CommandID, "commandType", cmd.CommandType)
	label := "unknown"
	defer func() {
		if r := recover(); r != nil {
			logger.With("panic", r, "stack", string(debug.Stack())).Error("command handler panicked")
			result = protocol.Failed(cmd.CommandID, fmt.Sprintf("internal error: %v", r))
		}
		d.metrics.ObserveCommand(label, string(result.Status))
	}()

	h, ok := d.handlers[CommandType(cmd.CommandType)]
	if !ok {
		logger.Warn("unknown command type")
		return protocol.Failed(cmd.CommandID, fmt.Sprintf("unknown command type %q", cmd.CommandType))
	}
	label = cmd.CommandType

	data, err := h(logutil.WithContext(ctx, logger), cmd.CommandData)
	if err != nil {
		logger.With("err", err).Warn("command failed")
		res := protocol.Failed(cmd.CommandID, err.Error())
		res.ResultData = data
		return res
	}
	logger.Info("command completed")
	return protocol.Completed(cmd.CommandID, data)
}

func decode(data string, v any) error {
	if data == "" {
		return fmt.Errorf("%w: empty", ErrMalformed)
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return nil
}

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}

func (d *Dispatcher) updateConfig(_ context.Context, data string) (string, error) {
	if data == "" {
		return "", missing("config content")
	}
	return "", configtext.WriteFile(d.configFile, data)
}

func (d *Dispatcher) changeModel(_ context.Context, data string) (string, error) {
	var req modelRequest
	if err := decode(data, &req); err != nil {
		return "", err
	}
	if req.ModelName == "" {
		return "", missing("ModelName")
	}
	return "", d.models.Change(req.ModelName)
}

func (d *Dispatcher) uploadModel(ctx context.Context, data string) (string, error) {
	var req modelRequest
	if err := decode(data, &req); err != nil {
		return "", err
	}
	if req.ModelName == "" {
		return "", missing("ModelName")
	}
	if req.DownloadURL == "" {
		return "", missing("DownloadUrl")
	}
	return "", d.models.Install(ctx, req.ModelName, req.DownloadURL, req.ApplyOnUpload)
}

func (d *Dispatcher) deleteModel(_ context.Context, data string) (string, error) {
	var req modelRequest
	if err := decode(data, &req); err != nil {
		return "", err
	}
	if req.ModelName == "" {
		return "", missing("ModelName")
	}
	return "", d.models.Delete(req.ModelName)
}

func (d *Dispatcher) uploadModelToLib(ctx context.Context, data string) (string, error) {
	var req modelRequest
	if err := decode(data, &req); err != nil {
		return "", err
	}
	if req.ModelName == "" {
		return "", missing("ModelName")
	}
	if req.UploadURL == "" {
		return "", missing("UploadUrl")
	}
	return "", d.models.Publish(ctx, req.ModelName, req.UploadURL)
}

// getLogFileContent reads a file, resolving relative paths against the log
// root, and returns it inside a JSON envelope.
func (d *Dispatcher) getLogFileContent(_ context.Context, data string) (string, error) {
	var req logFileRequest
	if err := decode(data, &req); err != nil {
		return "", err
	}
	if req.FilePath == "" {
		return "", missing("FilePath")
	}
	path := req.FilePath
	if !isAbsolute(path) {
		path = filepath.Join(d.logRoot, filepath.FromSlash(path))
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %s: %w", req.FilePath, err)
	}
	if !utf8.Valid(content) {
		failed, _ := json.Marshal(logFileFailure{Error: ErrNotUTF8.Error(), Size: len(content)})
		return string(failed), fmt.Errorf("%w: %s", ErrNotUTF8, req.FilePath)
	}
	out, err := json.Marshal(logFileContent{
		Success:  true,
		Content:  string(content),
		Size:     len(content),
		Encoding: "UTF-8",
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// isAbsolute also accepts drive-letter paths sent by Windows controllers.
func isAbsolute(p string) bool {
	if filepath.IsAbs(p) {
		return true
	}
	return len(p) >= 2 && p[1] == ':'
}
