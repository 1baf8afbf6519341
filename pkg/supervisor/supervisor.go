// Package supervisor drives the agent's connection lifecycle: registration,
// heartbeats, command dispatch and periodic sync.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/grafana/dskit/services"
	"github.com/linefleet/linefleet/pkg/config"
	"github.com/linefleet/linefleet/pkg/metrics"
	"github.com/linefleet/linefleet/pkg/protocol"
	"github.com/linefleet/linefleet/pkg/util/contextutil"
)

const (
	MaxRegistrationRetries = 3
	MaxConnectionFailures  = 5
	RetryDelay             = 5 * time.Second
	HeartbeatInterval      = 10 * time.Second

	stopCheckInterval = time.Second
)

type LifecycleState int32

const (
	StateUnregistered LifecycleState = iota
	StateRegistered
	StateShuttingDown
)

func (s LifecycleState) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateShuttingDown:
		return "shutting-down"
	}
	return "unknown"
}

func (s LifecycleState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Registrar interface {
	Register(ctx context.Context, s config.Settings) (bool, int)
}

type Heartbeater interface {
	Heartbeat(ctx context.Context, id int, running bool) (bool, []protocol.PendingCommand)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, cmds []protocol.PendingCommand) int
}

type Syncer interface {
	SyncAll(ctx context.Context, id int)
}

// ProcessChecker reports whether the companion application is alive.
type ProcessChecker interface {
	IsRunning(name string) bool
}

// Status is a point-in-time view of the lifecycle, safe to read from any
// goroutine.
type Status struct {
	Connected          bool           `json:"connected"`
	PCID               int            `json:"pcId"`
	LineNumber         int            `json:"lineNumber"`
	PCNumber           int            `json:"pcNumber"`
	ConnectionFailures int            `json:"connectionFailures"`
	State              LifecycleState `json:"state"`
}

type Config struct {
	Logger   *slog.Logger
	Settings config.Settings

	Registrar   Registrar
	Heartbeater Heartbeater
	Dispatcher  Dispatcher
	Syncer      Syncer
	Processes   ProcessChecker
	Prompter    Prompter
	Metrics     *metrics.Metrics

	// OnRegistered persists the settings after the controller assigned an id.
	OnRegistered func(config.Settings) error

	HeartbeatInterval time.Duration
	RetryDelay        time.Duration
	StopCheckInterval time.Duration
}

type Supervisor struct {
	services.Service

	logger  *slog.Logger
	cfg     Config
	metrics *metrics.Metrics

	// owned by the running goroutine
	settings config.Settings
	retries  int

	state    atomic.Int32
	pcID     atomic.Int64
	failures atomic.Int32

	stopRequested atomic.Bool
	mu            sync.Mutex
	cancel        context.CancelFunc
}

func New(cfg Config) *Supervisor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = HeartbeatInterval
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = RetryDelay
	}
	if cfg.StopCheckInterval <= 0 {
		cfg.StopCheckInterval = stopCheckInterval
	}
	if cfg.Prompter == nil {
		cfg.Prompter = AutoRetry{}
	}
	s := &Supervisor{
		logger:   cfg.Logger.With("component", "supervisor"),
		cfg:      cfg,
		metrics:  cfg.Metrics,
		settings: cfg.Settings,
	}
	s.pcID.Store(int64(cfg.Settings.PCID))
	s.Service = services.NewBasicService(nil, s.running, nil)
	return s
}

// Stop asks the worker to finish its current step and exit.
func (s *Supervisor) Stop() {
	s.stopRequested.Store(true)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Supervisor) Status() Status {
	failures := int(s.failures.Load())
	return Status{
		Connected:          failures == 0,
		PCID:               int(s.pcID.Load()),
		LineNumber:         s.cfg.Settings.LineNumber,
		PCNumber:           s.cfg.Settings.PCNumber,
		ConnectionFailures: failures,
		State:              LifecycleState(s.state.Load()),
	}
}

func (s *Supervisor) stopping() bool {
	return s.stopRequested.Load()
}

func (s *Supervisor) running(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	if s.stopping() {
		cancel()
	}
	defer s.setState(StateShuttingDown)

	s.logger.With(
		"server", s.settings.ServerURL,
		"line", s.settings.LineNumber,
		"pc", s.settings.PCNumber,
	).Info("starting lifecycle")

	for !s.stopping() && ctx.Err() == nil {
		if s.currentState() == StateUnregistered {
			s.registrationStep(ctx)
		}
		if s.currentState() == StateRegistered {
			s.heartbeatStep(ctx)
		}
		if s.currentState() == StateShuttingDown {
			if s.stopping() || ctx.Err() != nil {
				break
			}
			s.logger.Warn("operator cancelled, shutting down")
			return contextutil.ErrOperatorAbort
		}
		if !contextutil.Sleep(ctx, s.cfg.HeartbeatInterval, s.cfg.StopCheckInterval, s.stopping) {
			break
		}
	}
	s.logger.Info("lifecycle stopped")
	return nil
}

func (s *Supervisor) registrationStep(ctx context.Context) {
	if s.retries >= MaxRegistrationRetries {
		bo := backoff.NewConstantBackOff(s.cfg.RetryDelay)
		wait := bo.NextBackOff()
		s.logger.With("delay", wait, "retries", s.retries).Info("registration retries exhausted, pausing")
		contextutil.Sleep(ctx, wait, s.cfg.StopCheckInterval, s.stopping)
		s.retries = 0
		return
	}

	ok, id := s.cfg.Registrar.Register(ctx, s.settings)
	s.metrics.ObserveRegistration(ok)
	if ok {
		s.settings.PCID = id
		s.pcID.Store(int64(id))
		s.setFailures(0)
		s.setState(StateRegistered)
		s.logger.With("pcId", id).Info("registered with controller")
		if s.cfg.OnRegistered != nil {
			if err := s.cfg.OnRegistered(s.settings); err != nil {
				s.logger.With("err", err).Warn("failed to persist assigned id")
			}
		}
		return
	}
	if s.stopping() || ctx.Err() != nil {
		return
	}

	s.retries++
	failures := s.incFailures()
	s.logger.With("retries", s.retries, "failures", failures).Warn("registration failed")
	if failures < MaxConnectionFailures {
		return
	}
	switch s.decide(ctx, connectFailedDecision(failures)) {
	case Cancel:
		s.setState(StateShuttingDown)
	case Retry:
		s.setFailures(0)
		s.retries = 0
	}
}

func (s *Supervisor) heartbeatStep(ctx context.Context) {
	id := int(s.pcID.Load())
	running := false
	if s.cfg.Processes != nil {
		running = s.cfg.Processes.IsRunning(s.settings.ExeName)
	}

	ok, cmds := s.cfg.Heartbeater.Heartbeat(ctx, id, running)
	s.metrics.ObserveHeartbeat(ok)
	if ok {
		s.setFailures(0)
		if len(cmds) > 0 {
			n := s.cfg.Dispatcher.Dispatch(ctx, cmds)
			s.logger.With("commands", n).Info("processed pending commands")
		}
		s.cfg.Syncer.SyncAll(ctx, id)
		return
	}
	if s.stopping() || ctx.Err() != nil {
		return
	}

	failures := s.incFailures()
	s.logger.With("failures", failures).Warn("heartbeat failed")
	if failures < MaxConnectionFailures {
		return
	}
	s.setState(StateUnregistered)
	s.retries = 0
	switch s.decide(ctx, connectionLostDecision(failures)) {
	case Cancel:
		s.setState(StateShuttingDown)
	case Retry:
		s.setFailures(0)
	}
}

func (s *Supervisor) decide(ctx context.Context, d Decision) Choice {
	if s.stopping() {
		return Cancel
	}
	choice := s.cfg.Prompter.Decide(ctx, d)
	s.logger.With("choice", choice.String()).Info("operator decision")
	return choice
}

func (s *Supervisor) currentState() LifecycleState {
	return LifecycleState(s.state.Load())
}

func (s *Supervisor) setState(st LifecycleState) {
	s.state.Store(int32(st))
}

func (s *Supervisor) setFailures(n int) {
	s.failures.Store(int32(n))
	s.metrics.SetConnectionFailures(n)
}

func (s *Supervisor) incFailures() int {
	n := int(s.failures.Add(1))
	s.metrics.SetConnectionFailures(n)
	return n
}
