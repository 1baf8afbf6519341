// Package agent assembles the linefleet agent from its modules and runs them
// under a dskit service manager.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/grafana/dskit/modules"
	"github.com/grafana/dskit/services"
	"github.com/linefleet/linefleet/pkg/config"
	"github.com/linefleet/linefleet/pkg/logutil"
	"github.com/linefleet/linefleet/pkg/metrics"
	"github.com/linefleet/linefleet/pkg/protocol"
	"github.com/linefleet/linefleet/pkg/services/commands"
	"github.com/linefleet/linefleet/pkg/services/models"
	"github.com/linefleet/linefleet/pkg/services/status"
	"github.com/linefleet/linefleet/pkg/services/syncer"
	"github.com/linefleet/linefleet/pkg/supervisor"
	"github.com/linefleet/linefleet/pkg/transport"
	"github.com/linefleet/linefleet/pkg/util/contextutil"
)

// The modules that make up the agent
const (
	All       = "all"
	Transport = "transport"
	Lifecycle = "lifecycle"
	StatusAPI = "status-api"
)

type Options struct {
	// SettingsPath is where an assigned pcId is persisted.
	SettingsPath string
	Version      string

	HeartbeatInterval time.Duration
	RetryDelay        time.Duration
	// StatusAddr is the local status API listen address; empty disables it.
	StatusAddr string

	Prompter  supervisor.Prompter
	Processes supervisor.ProcessChecker
	// RoundTripper overrides the controller transport, mostly for tests.
	RoundTripper http.RoundTripper
}

type Agent struct {
	logger   *slog.Logger
	settings config.Settings
	opts     Options

	mm   *modules.Manager
	deps map[string][]string

	metrics    *metrics.Metrics
	client     *transport.Client
	protocol   *protocol.Client
	supervisor *supervisor.Supervisor
	status     *status.Server

	serviceMap map[string]services.Service
}

func New(logger *slog.Logger, settings config.Settings, opts Options) (*Agent, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if opts.Processes == nil {
		opts.Processes = supervisor.NewProcChecker(logger, "")
	}
	a := &Agent{
		logger:   logger,
		settings: settings,
		opts:     opts,
		metrics:  metrics.New(),
	}
	if err := a.setupModuleManager(); err != nil {
		return nil, err
	}
	svcMap, err := a.mm.InitModuleServices(All)
	if err != nil {
		return nil, err
	}
	a.serviceMap = svcMap
	return a, nil
}

func (a *Agent) setupModuleManager() error {
	mm := modules.NewManager(logutil.NewKitLogger(a.logger.With("component", "modules")))
	mm.RegisterModule(All, nil)

	mm.RegisterModule(Transport, func() (services.Service, error) {
		a.client = transport.NewClient(transport.Config{
			Logger:       a.logger,
			ServerURL:    a.settings.ServerURL,
			Version:      a.opts.Version,
			RoundTripper: a.opts.RoundTripper,
		})
		a.protocol = protocol.NewClient(a.logger, a.client)
		return nil, nil
	}, modules.UserInvisibleModule)

	mm.RegisterModule(Lifecycle, func() (services.Service, error) {
		store := models.NewStore(a.logger, a.settings.ModelFolderPath, a.settings.ConfigFilePath, a.client)
		sync := syncer.New(syncer.Config{
			Logger:     a.logger,
			Poster:     a.client,
			Models:     store,
			Metrics:    a.metrics,
			ConfigFile: a.settings.ConfigFilePath,
			LogRoot:    a.settings.LogFolderPath,
		})
		dispatcher := commands.New(commands.Config{
			Logger:     a.logger,
			Reporter:   a.protocol,
			Models:     store,
			Metrics:    a.metrics,
			ConfigFile: a.settings.ConfigFilePath,
			LogRoot:    a.settings.LogFolderPath,
		})
		a.supervisor = supervisor.New(supervisor.Config{
			Logger:            a.logger,
			Settings:          a.settings,
			Registrar:         a.protocol,
			Heartbeater:       a.protocol,
			Dispatcher:        dispatcher,
			Syncer:            sync,
			Processes:         a.opts.Processes,
			Prompter:          a.opts.Prompter,
			Metrics:           a.metrics,
			OnRegistered:      a.persist,
			HeartbeatInterval: a.opts.HeartbeatInterval,
			RetryDelay:        a.opts.RetryDelay,
		})
		return a.supervisor, nil
	})

	mm.RegisterModule(StatusAPI, func() (services.Service, error) {
		if a.opts.StatusAddr == "" {
			a.logger.Info("status api disabled")
			return nil, nil
		}
		a.status = status.New(status.Config{
			Logger:     a.logger,
			Addr:       a.opts.StatusAddr,
			Lifecycle:  a.supervisor,
			Metrics:    a.metrics,
			ConfigFile: a.settings.ConfigFilePath,
		})
		return a.status, nil
	})

	deps := map[string][]string{
		All:       {Lifecycle, StatusAPI},
		Lifecycle: {Transport},
		StatusAPI: {Lifecycle},
	}
	for mod, targets := range deps {
		if err := mm.AddDependency(mod, targets...); err != nil {
			return err
		}
	}

	a.mm = mm
	a.deps = deps
	a.logger.With("modules", a.mm.DependenciesForModule(All)).Debug("module graph ready")
	return nil
}

func (a *Agent) persist(s config.Settings) error {
	if a.opts.SettingsPath == "" {
		return nil
	}
	return config.Save(a.opts.SettingsPath, s)
}

func (a *Agent) Status() supervisor.Status {
	return a.supervisor.Status()
}

// StatusAddr is the bound status API address, empty when it is disabled.
func (a *Agent) StatusAddr() string {
	if a.status == nil {
		return ""
	}
	return a.status.Addr()
}

// Stop requests a cooperative shutdown.
func (a *Agent) Stop() {
	a.supervisor.Stop()
}

// Run starts every module and blocks until they have all stopped. It returns
// nil for a requested stop, a signal or an operator cancel.
func (a *Agent) Run(ctx context.Context) error {
	svcMap := a.serviceMap
	mgr, err := services.NewManager(slices.Collect(maps.Values(svcMap))...)
	if err != nil {
		a.logger.With("err", err).Error("failed to start service manager")
		return err
	}

	servicesFailed := func(service services.Service) {
		mgr.StopAsync()

		for m, s := range svcMap {
			if s == service {
				if isCleanStop(service.FailureCase()) {
					a.logger.With("module", m, "reason", service.FailureCase()).Info("module requested stop")
				} else {
					a.logger.With("module", m, "err", service.FailureCase()).Error("module failed")
				}
				return
			}
		}
		a.logger.With("module", "unknown", "err", service.FailureCase()).Error("module failed")
	}
	mgr.AddListener(services.NewManagerListener(
		func() {},
		func() {},
		servicesFailed,
	))

	lifecycleDone := make(chan struct{})
	go func() {
		defer close(lifecycleDone)
		_ = a.supervisor.AwaitTerminated(context.Background())
	}()
	go func() {
		select {
		case <-ctx.Done():
			a.logger.Info("shutdown requested")
			a.Stop()
		case <-lifecycleDone:
		}
		mgr.StopAsync()
	}()

	if a.status != nil {
		a.logger.With("addr", a.opts.StatusAddr).Info("status api enabled")
	}
	if err := mgr.StartAsync(context.Background()); err != nil {
		return err
	}
	if err := mgr.AwaitStopped(context.Background()); err != nil {
		return err
	}
	// never started when another module failed first
	a.supervisor.StopAsync()
	<-lifecycleDone

	if failed := mgr.ServicesByState()[services.Failed]; len(failed) > 0 {
		for _, f := range failed {
			if !isCleanStop(f.FailureCase()) {
				return fmt.Errorf("services failed")
			}
		}
	}
	return nil
}

func isCleanStop(err error) bool {
	return errors.Is(err, modules.ErrStopProcess) || errors.Is(err, contextutil.ErrOperatorAbort)
}
