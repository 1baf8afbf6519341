package protocol

import (
	"encoding/json"
	"strconv"
)

type CommandStatus string

const (
	StatusInProgress CommandStatus = "InProgress"
	StatusCompleted  CommandStatus = "Completed"
	StatusFailed     CommandStatus = "Failed"
)

// PendingCommand is one command delivered by a heartbeat response. HasID and
// HasType record whether the controller actually sent those fields.
type PendingCommand struct {
	CommandID   int
	CommandType string
	CommandData string

	HasID   bool
	HasType bool
}

// Valid reports whether the command carries both an id and a type.
func (p PendingCommand) Valid() bool {
	return p.HasID && p.HasType
}

func decodePendingCommand(v any) PendingCommand {
	var cmd PendingCommand
	obj, ok := v.(map[string]any)
	if !ok {
		return cmd
	}
	switch id := obj["commandId"].(type) {
	case json.Number:
		if n, err := id.Int64(); err == nil {
			cmd.CommandID, cmd.HasID = int(n), true
		}
	case float64:
		cmd.CommandID, cmd.HasID = int(id), true
	case string:
		if n, err := strconv.Atoi(id); err == nil {
			cmd.CommandID, cmd.HasID = n, true
		}
	}
	if t, ok := obj["commandType"].(string); ok && t != "" {
		cmd.CommandType, cmd.HasType = t, true
	}
	cmd.CommandData = marshalData(obj["commandData"])
	return cmd
}

// CommandResult is reported once per dispatched command.
type CommandResult struct {
	CommandID    int           `json:"commandId"`
	Success      bool          `json:"-"`
	Status       CommandStatus `json:"status"`
	ResultData   string        `json:"resultData"`
	ErrorMessage string        `json:"errorMessage"`
}

// Failed builds a failed result for id.
func Failed(id int, msg string) CommandResult {
	return CommandResult{CommandID: id, Status: StatusFailed, ErrorMessage: msg}
}

// Completed builds a successful result for id.
func Completed(id int, data string) CommandResult {
	return CommandResult{CommandID: id, Success: true, Status: StatusCompleted, ResultData: data}
}
