// Package protocol implements the JSON exchanges between the agent and the
// controller.
package protocol

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/linefleet/linefleet/pkg/config"
	"github.com/linefleet/linefleet/pkg/fstree"
	"github.com/linefleet/linefleet/pkg/ident"
	"github.com/linefleet/linefleet/pkg/transport"
)

const (
	EndpointRegister      = "/api/agent/register"
	EndpointHeartbeat     = "/api/agent/heartbeat"
	EndpointUpdateConfig  = "/api/agent/updateconfig"
	EndpointSyncLogs      = "/api/agent/synclogs"
	EndpointSyncModels    = "/api/agent/syncmodels"
	EndpointCommandResult = "/api/agent/commandresult"
	EndpointUploadModel   = "/api/agent/uploadmodelfile"
)

// Poster sends a JSON payload to a controller endpoint.
type Poster interface {
	Post(ctx context.Context, endpoint string, payload any) (transport.Response, bool)
}

type RegisterRequest struct {
	LineNumber       int    `json:"lineNumber"`
	PCNumber         int    `json:"pcNumber"`
	IPAddress        string `json:"ipAddress"`
	ConfigFilePath   string `json:"configFilePath"`
	LogFolderPath    string `json:"logFolderPath"`
	ModelFolderPath  string `json:"modelFolderPath"`
	ModelVersion     string `json:"modelVersion"`
	ExeName          string `json:"exeName"`
	LogStructureJSON string `json:"logStructureJson,omitempty"`
}

type HeartbeatRequest struct {
	PCID                 int  `json:"pcId"`
	IsApplicationRunning bool `json:"isApplicationRunning"`
}

// Client runs the registration and heartbeat exchanges.
type Client struct {
	logger *slog.Logger
	poster Poster
}

func NewClient(logger *slog.Logger, poster Poster) *Client {
	return &Client{
		logger: logger.With("component", "protocol"),
		poster: poster,
	}
}

// BuildRegisterRequest assembles the registration payload. The log tree is
// only attached when the log root exists.
func BuildRegisterRequest(s config.Settings) RegisterRequest {
	ip := s.IPAddress
	if ip == "" {
		ip = ident.DetectIP()
	}
	req := RegisterRequest{
		LineNumber:      s.LineNumber,
		PCNumber:        s.PCNumber,
		IPAddress:       ip,
		ConfigFilePath:  s.ConfigFilePath,
		LogFolderPath:   s.LogFolderPath,
		ModelFolderPath: s.ModelFolderPath,
		ModelVersion:    s.ModelVersion,
		ExeName:         s.ExeName,
	}
	if s.LogFolderPath != "" {
		if info, err := os.Stat(s.LogFolderPath); err == nil && info.IsDir() {
			if tree, err := fstree.Marshal(fstree.Build(s.LogFolderPath)); err == nil {
				req.LogStructureJSON = string(tree)
			}
		}
	}
	return req
}

// Register announces this endpoint and returns the id assigned by the
// controller. A response without success=true and a numeric pcId fails.
func (c *Client) Register(ctx context.Context, s config.Settings) (bool, int) {
	resp, ok := c.poster.Post(ctx, EndpointRegister, BuildRegisterRequest(s))
	if !ok {
		return false, 0
	}
	if !resp.Bool("success") {
		c.logger.Debug("registration rejected")
		return false, 0
	}
	id, ok := resp.Int("pcId")
	if !ok {
		c.logger.Warn("registration response carries no numeric pcId")
		return false, 0
	}
	return true, id
}

// Heartbeat reports liveness and returns the pending commands, if any.
func (c *Client) Heartbeat(ctx context.Context, id int, running bool) (bool, []PendingCommand) {
	resp, ok := c.poster.Post(ctx, EndpointHeartbeat, HeartbeatRequest{PCID: id, IsApplicationRunning: running})
	if !ok || !resp.Bool("success") {
		return false, nil
	}
	if !resp.Bool("hasPendingCommands") {
		return true, nil
	}
	raw, ok := resp.Array("commands")
	if !ok {
		return true, nil
	}
	cmds := make([]PendingCommand, 0, len(raw))
	for _, r := range raw {
		cmds = append(cmds, decodePendingCommand(r))
	}
	return true, cmds
}

// ReportResult posts a command result. The outcome is returned for logging
// only; results are never retried.
func (c *Client) ReportResult(ctx context.Context, result CommandResult) bool {
	_, ok := c.poster.Post(ctx, EndpointCommandResult, result)
	if !ok {
		c.logger.With("commandId", result.CommandID).Debug("failed to report command result")
	}
	return ok
}

func marshalData(v any) string {
	switch d := v.(type) {
	case nil:
		return ""
	case string:
		return d
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
