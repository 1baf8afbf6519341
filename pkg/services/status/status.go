// Package status serves the agent's local status API on a loopback address.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/grafana/dskit/services"
	"github.com/linefleet/linefleet/pkg/configtext"
	"github.com/linefleet/linefleet/pkg/logutil"
	"github.com/linefleet/linefleet/pkg/metrics"
	"github.com/linefleet/linefleet/pkg/supervisor"
	"github.com/rs/cors"
)

const DefaultAddr = "127.0.0.1:16590"

const shutdownTimeout = 5 * time.Second

// Lifecycle is the part of the supervisor exposed over HTTP.
type Lifecycle interface {
	Status() supervisor.Status
	Stop()
}

type Config struct {
	Logger     *slog.Logger
	Addr       string
	Lifecycle  Lifecycle
	Metrics    *metrics.Metrics
	ConfigFile string
}

type Server struct {
	services.Service

	logger *slog.Logger
	cfg    Config

	mu       sync.Mutex
	listener net.Listener
	srv      *http.Server
	done     chan error
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	s := &Server{
		logger: cfg.Logger.With("component", "status-api"),
		cfg:    cfg,
		done:   make(chan error, 1),
	}
	s.Service = services.NewBasicService(s.starting, s.running, s.stopping)
	return s
}

// Addr is the bound listen address, valid once the service is running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

func (s *Server) ConfigureHTTP(r *mux.Router) {
	r.HandleFunc("/api/v1/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/stop", s.handleStop).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/config", s.handleConfig).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/config/current-model", s.handleCurrentModel).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/config/{key}", s.handleSetConfig).Methods(http.MethodPut)
	r.Handle("/metrics", s.cfg.Metrics.Handler()).Methods(http.MethodGet)
}

// Handler returns the full middleware chain around the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(logutil.HTTPMiddleware(s.logger))
	s.ConfigureHTTP(r)
	logRoutes(r, s.logger)
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
		AllowedHeaders: []string{"*"},
	}).Handler(r)
}

func (s *Server) starting(_ context.Context) error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("status api listen on %s: %w", s.cfg.Addr, err)
	}
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

func (s *Server) running(ctx context.Context) error {
	go func() {
		defer close(s.done)
		s.logger.With("addr", s.Addr()).Info("serving status api")
		if err := s.srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.done <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-s.done:
		if err != nil {
			return fmt.Errorf("status api stopped unexpectedly: %w", err)
		}
		return nil
	}
}

func (s *Server) stopping(_ error) error {
	ctx, ca := context.WithTimeout(context.Background(), shutdownTimeout)
	defer ca()
	if s.srv != nil {
		if err := s.srv.Shutdown(ctx); err != nil {
			s.logger.With("err", err).Warn("status api shutdown")
		}
		<-s.done
	}
	s.logger.Info("status api stopped")
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Lifecycle.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.logger.Info("stop requested over status api")
	s.cfg.Lifecycle.Stop()
	writeJSON(w, http.StatusAccepted, map[string]bool{"stopping": true})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	kv, err := configtext.Load(s.cfg.ConfigFile)
	if err != nil {
		s.configError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, kv)
}

type configValue struct {
	Value string `json:"value"`
}

// handleSetConfig sets one key and writes the whole map back. The file keeps
// only its key=value lines afterwards.
func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(mux.Vars(r)["key"])
	var body configValue
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || key == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expected {\"value\": ...} and a key"})
		return
	}
	if strings.ContainsAny(body.Value, "\r\n") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "value must be a single line"})
		return
	}
	kv, err := configtext.Load(s.cfg.ConfigFile)
	if err != nil {
		s.configError(w, err)
		return
	}
	kv[key] = strings.TrimSpace(body.Value)
	if err := kv.Save(s.cfg.ConfigFile); err != nil {
		s.logger.With("err", err).Error("failed to save managed config")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.logger.With("key", key).Info("managed config updated")
	writeJSON(w, http.StatusOK, kv)
}

func (s *Server) handleCurrentModel(w http.ResponseWriter, _ *http.Request) {
	text, err := configtext.ReadFile(s.cfg.ConfigFile)
	if err != nil {
		s.configError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"modelName": configtext.GetCurrentModel(text)})
}

func (s *Server) configError(w http.ResponseWriter, err error) {
	if errors.Is(err, fs.ErrNotExist) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "config file not found"})
		return
	}
	s.logger.With("err", err).Warn("failed to read managed config")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func logRoutes(r *mux.Router, l *slog.Logger) {
	err := r.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := route.GetPathTemplate()
		if err != nil {
			return nil
		}
		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{http.MethodGet}
		}
		for _, method := range methods {
			logutil.WithMethod(l, method).Debug(path)
		}
		return nil
	})
	if err != nil {
		l.With("err", err).Warn("failed to walk routes")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
