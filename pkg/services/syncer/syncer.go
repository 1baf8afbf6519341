// Package syncer pushes config, log-tree and model-inventory snapshots to
// the controller whenever they change.
package syncer

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/linefleet/linefleet/pkg/configtext"
	"github.com/linefleet/linefleet/pkg/fstree"
	"github.com/linefleet/linefleet/pkg/metrics"
	"github.com/linefleet/linefleet/pkg/protocol"
	"github.com/linefleet/linefleet/pkg/services/models"
)

const (
	KindConfig = "config"
	KindLogs   = "logs"
	KindModels = "models"
)

// Outcome of one sync attempt.
type Outcome int

const (
	// Skipped means there was nothing to push or nothing changed.
	Skipped Outcome = iota
	Pushed
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Pushed:
		return "pushed"
	case Failed:
		return "failed"
	}
	return "skipped"
}

// ModelLister lists the installed models.
type ModelLister interface {
	List() []models.Descriptor
}

type Config struct {
	Logger     *slog.Logger
	Poster     protocol.Poster
	Models     ModelLister
	Metrics    *metrics.Metrics
	ConfigFile string
	LogRoot    string
}

type Service struct {
	logger     *slog.Logger
	poster     protocol.Poster
	models     ModelLister
	metrics    *metrics.Metrics
	configFile string
	logRoot    string

	config Gate
	logs   Gate
	inv    Gate
}

func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:     logger.With("component", "syncer"),
		poster:     cfg.Poster,
		models:     cfg.Models,
		metrics:    cfg.Metrics,
		configFile: cfg.ConfigFile,
		logRoot:    cfg.LogRoot,
	}
}

type configPush struct {
	PCID          int    `json:"pcId"`
	ConfigContent string `json:"configContent"`
}

type logsPush struct {
	PCID             int    `json:"pcId"`
	LogStructureJSON string `json:"logStructureJson"`
}

type modelsPush struct {
	PCID   int                 `json:"pcId"`
	Models []models.Descriptor `json:"models"`
}

// SyncAll runs the config, log and model syncs in order.
func (s *Service) SyncAll(ctx context.Context, id int) {
	s.SyncConfig(ctx, id)
	s.SyncLogs(ctx, id)
	s.SyncModels(ctx, id)
}

// SyncConfig pushes the managed config text. Empty or unreadable content is
// never pushed.
func (s *Service) SyncConfig(ctx context.Context, id int) Outcome {
	text, err := configtext.ReadFile(s.configFile)
	if err != nil {
		s.logger.With("err", err).Debug("config not readable, skipping sync")
		return Skipped
	}
	if text == "" {
		return Skipped
	}
	return s.push(ctx, KindConfig, &s.config, protocol.EndpointUpdateConfig, configPush{PCID: id, ConfigContent: text})
}

// SyncLogs pushes the log directory tree. Nothing is sent while the log root
// does not exist.
func (s *Service) SyncLogs(ctx context.Context, id int) Outcome {
	if info, err := os.Stat(s.logRoot); err != nil || !info.IsDir() {
		return Skipped
	}
	tree, err := fstree.Marshal(fstree.Build(s.logRoot))
	if err != nil {
		s.logger.With("err", err).Warn("failed to serialize log tree")
		return Skipped
	}
	return s.push(ctx, KindLogs, &s.logs, protocol.EndpointSyncLogs, logsPush{PCID: id, LogStructureJSON: string(tree)})
}

// SyncModels pushes the model inventory.
func (s *Service) SyncModels(ctx context.Context, id int) Outcome {
	list := s.models.List()
	if list == nil {
		list = []models.Descriptor{}
	}
	return s.push(ctx, KindModels, &s.inv, protocol.EndpointSyncModels, modelsPush{PCID: id, Models: list})
}

// push sends payload unless its serialization matches the last successful
// push. A failed push leaves the gate untouched.
func (s *Service) push(ctx context.Context, kind string, gate *Gate, endpoint string, payload any) Outcome {
	snapshot, err := json.Marshal(payload)
	if err != nil {
		s.logger.With("kind", kind, "err", err).Warn("failed to serialize snapshot")
		return Skipped
	}
	if !gate.Changed(snapshot) {
		s.metrics.ObserveSkip(kind)
		return Skipped
	}
	_, ok := s.poster.Post(ctx, endpoint, payload)
	s.metrics.ObservePush(kind, ok)
	if !ok {
		s.logger.With("kind", kind).Debug("snapshot push failed")
		return Failed
	}
	gate.Mark(snapshot)
	s.logger.With("kind", kind).Debug("snapshot pushed")
	return Pushed
}
