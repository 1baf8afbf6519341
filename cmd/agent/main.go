package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/linefleet/linefleet/pkg/agent"
	"github.com/linefleet/linefleet/pkg/config"
	"github.com/linefleet/linefleet/pkg/ident"
	"github.com/linefleet/linefleet/pkg/logutil"
	"github.com/linefleet/linefleet/pkg/services/status"
	"github.com/linefleet/linefleet/pkg/supervisor"
	"github.com/linefleet/linefleet/pkg/util/contextutil"
	"github.com/urfave/cli/v2"
)

var version = "dev"

// used when no interface has a usable IPv4 address
const fallbackIP = "127.0.0.1"

func newApp(action cli.ActionFunc) *cli.App {
	return &cli.App{
		Name:    "linefleet-agent",
		Usage:   "register this PC with the line controller and run its commands",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "settings", Value: config.DefaultFileName, EnvVars: []string{"LINEFLEET_SETTINGS"}, Usage: "settings file (.json, .yaml or .yml)"},
			&cli.StringFlag{Name: "server-url", EnvVars: []string{"LINEFLEET_SERVER_URL"}, Usage: "controller base URL"},
			&cli.IntFlag{Name: "line", EnvVars: []string{"LINEFLEET_LINE"}, Usage: "production line number"},
			&cli.IntFlag{Name: "pc", EnvVars: []string{"LINEFLEET_PC"}, Usage: "PC number on the line"},
			&cli.StringFlag{Name: "config-file", EnvVars: []string{"LINEFLEET_CONFIG_FILE"}, Usage: "managed config file of the companion application"},
			&cli.StringFlag{Name: "log-dir", EnvVars: []string{"LINEFLEET_LOG_DIR"}, Usage: "log folder reported to the controller"},
			&cli.StringFlag{Name: "model-dir", EnvVars: []string{"LINEFLEET_MODEL_DIR"}, Usage: "model folder"},
			&cli.StringFlag{Name: "exe-name", EnvVars: []string{"LINEFLEET_EXE_NAME"}, Usage: "companion process name"},
			&cli.StringFlag{Name: "model-version", EnvVars: []string{"LINEFLEET_MODEL_VERSION"}, Usage: "model version tag"},
			&cli.DurationFlag{Name: "heartbeat-interval", Value: supervisor.HeartbeatInterval, EnvVars: []string{"LINEFLEET_HEARTBEAT_INTERVAL"}},
			&cli.StringFlag{Name: "status-addr", Value: status.DefaultAddr, EnvVars: []string{"LINEFLEET_STATUS_ADDR"}, Usage: `local status API address, "" disables it`},
			&cli.StringFlag{Name: "log-level", Value: "info", EnvVars: []string{"LINEFLEET_LOG_LEVEL"}, Usage: "trace, debug, info, warn or error"},
			&cli.StringFlag{Name: "log-file", EnvVars: []string{"LINEFLEET_LOG_FILE"}, Usage: "also write JSON logs to this file"},
			&cli.BoolFlag{Name: "non-interactive", EnvVars: []string{"LINEFLEET_NON_INTERACTIVE"}, Usage: "always retry instead of asking after repeated failures"},
		},
		Action: action,
	}
}

func main() {
	if err := newApp(run).Run(os.Args); err != nil {
		slog.Default().With("err", err).Error("agent exited")
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	closer, err := logutil.Setup(logutil.Options{
		Level: c.String("log-level"),
		File:  c.String("log-file"),
	})
	if err != nil {
		return err
	}
	defer closer.Close()
	logger := slog.Default()

	path := c.String("settings")
	settings, err := prepareSettings(c, ident.DetectIP())
	if err != nil {
		return err
	}
	logger.With(
		"settings", path,
		"line", settings.LineNumber,
		"pc", settings.PCNumber,
		"ip", settings.IPAddress,
		"version", version,
	).Info("linefleet agent starting")

	var prompter supervisor.Prompter = supervisor.AutoRetry{}
	if !c.Bool("non-interactive") && supervisor.IsInteractive(os.Stdin) {
		prompter = supervisor.NewTerminalPrompter()
	}

	a, err := agent.New(logger, settings, agent.Options{
		SettingsPath:      path,
		Version:           version,
		HeartbeatInterval: c.Duration("heartbeat-interval"),
		StatusAddr:        c.String("status-addr"),
		Prompter:          prompter,
	})
	if err != nil {
		return err
	}

	ctx := contextutil.SetupSignals(c.Context)
	if err := a.Run(ctx); err != nil {
		return err
	}
	logger.Info("linefleet agent stopped")
	return nil
}

// prepareSettings loads the settings file, or starts from defaults on first
// run, applies explicitly set flags, records the current IP and saves the
// result back.
func prepareSettings(c *cli.Context, detectedIP string) (config.Settings, error) {
	path := c.String("settings")
	s, err := config.Load(path)
	switch {
	case errors.Is(err, config.ErrNotFound):
		slog.Default().With("settings", path).Info("no settings file, running first-time setup")
	case err != nil:
		return s, err
	}

	if c.IsSet("server-url") {
		s.ServerURL = c.String("server-url")
	}
	if c.IsSet("line") {
		s.LineNumber = c.Int("line")
	}
	if c.IsSet("pc") {
		s.PCNumber = c.Int("pc")
	}
	if c.IsSet("config-file") {
		s.ConfigFilePath = c.String("config-file")
	}
	if c.IsSet("log-dir") {
		s.LogFolderPath = c.String("log-dir")
	}
	if c.IsSet("model-dir") {
		s.ModelFolderPath = c.String("model-dir")
	}
	if c.IsSet("exe-name") {
		s.ExeName = c.String("exe-name")
	}
	if c.IsSet("model-version") {
		s.ModelVersion = c.String("model-version")
	}

	s.IPAddress = detectedIP
	if s.IPAddress == "" {
		s.IPAddress = fallbackIP
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("%w (set the missing values with flags or LINEFLEET_* variables)", err)
	}
	if err := config.Save(path, s); err != nil {
		return s, err
	}
	return s, nil
}
