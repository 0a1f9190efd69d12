package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/shardscope/shardscope/internal/cluster"
	"github.com/shardscope/shardscope/internal/config"
	"github.com/shardscope/shardscope/internal/history"
	"github.com/shardscope/shardscope/internal/metrics"
	"github.com/shardscope/shardscope/internal/middleware"
	"github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

// Server represents the ShardScope server
type Server struct {
	config         *config.Config
	httpServer     *http.Server
	registryDB     *sql.DB
	registry       *cluster.Registry
	historyStore   *history.Store
	metricsManager metrics.Manager
	systemMetrics  *metrics.SystemTracker
	startTime      time.Time

	// state is the installed cluster snapshot, swapped whole on every
	// install so explain requests never see a partial update.
	stateMu sync.RWMutex
	state   *cluster.State
}

// New creates a new ShardScope server
func New(cfg *config.Config) (*Server, error) {
	registryDB, err := sql.Open("sqlite", cfg.Cluster.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}
	if err := cluster.InitSchema(registryDB); err != nil {
		registryDB.Close()
		return nil, fmt.Errorf("failed to initialize registry schema: %w", err)
	}

	var historyStore *history.Store
	if cfg.History.Enable {
		historyStore, err = history.Open(cfg.History.DBPath, cfg.History.RetentionDays)
		if err != nil {
			registryDB.Close()
			return nil, err
		}
	}

	metricsManager := metrics.NewManager(cfg.Metrics)
	systemMetrics := metrics.NewSystemTracker(cfg.DataDir)

	httpServer := &http.Server{
		Addr:         cfg.Listen,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	server := &Server{
		config:         cfg,
		httpServer:     httpServer,
		registryDB:     registryDB,
		registry:       cluster.NewRegistry(registryDB),
		historyStore:   historyStore,
		metricsManager: metricsManager,
		systemMetrics:  systemMetrics,
		startTime:      time.Now(),
	}

	if cfg.StateFile != "" {
		if err := server.loadStateFile(cfg.StateFile); err != nil {
			server.closeStores()
			return nil, err
		}
	}

	server.setupRoutes()
	return server, nil
}

func (s *Server) loadStateFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open state file: %w", err)
	}
	defer f.Close()

	state, err := cluster.LoadState(f)
	if err != nil {
		return fmt.Errorf("failed to load state file %s: %w", path, err)
	}
	s.installState(state)
	logrus.WithFields(logrus.Fields{
		"state_file": path,
		"nodes":      len(state.Nodes),
		"indices":    len(state.Indices),
	}).Info("Loaded cluster state from file")
	return nil
}

// installState swaps in a new snapshot and updates the state gauges.
func (s *Server) installState(state *cluster.State) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()

	summary := state.Summarize()
	s.metricsManager.RecordStateInstall(summary.Nodes, summary.Shards)
}

// currentState returns the installed snapshot, nil if none yet.
func (s *Server) currentState() *cluster.State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Start starts the ShardScope server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	logrus.WithFields(logrus.Fields{
		"address":  s.config.Listen,
		"data_dir": s.config.DataDir,
	}).Info("Starting ShardScope server")

	if s.config.Metrics.Enable {
		s.metricsManager.Start(ctx)
		go s.systemMetrics.RunCollector(ctx, s.metricsManager,
			time.Duration(s.config.Metrics.Interval)*time.Second)
	}

	if s.historyStore != nil && s.config.History.RetentionDays > 0 {
		go s.historyStore.RunPruner(ctx.Done(), time.Hour, s.metricsManager.RecordHistoryPrune)
	}

	if s.config.Cluster.HealthCheckInterval > 0 {
		go s.registry.RunHealthChecks(ctx,
			time.Duration(s.config.Cluster.HealthCheckInterval)*time.Second, s.metricsManager)
	}

	go func() {
		if err := s.listenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Error("HTTP server error")
		}
	}()

	<-ctx.Done()
	return s.shutdown()
}

func (s *Server) listenAndServe() error {
	if s.config.EnableTLS {
		return s.httpServer.ListenAndServeTLS(s.config.CertFile, s.config.KeyFile)
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) shutdown() error {
	logrus.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Failed to shutdown HTTP server")
	}

	if s.config.Metrics.Enable {
		s.metricsManager.Stop()
	}

	s.closeStores()
	return nil
}

func (s *Server) closeStores() {
	if s.historyStore != nil {
		if err := s.historyStore.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close history store")
		}
	}
	if err := s.registryDB.Close(); err != nil {
		logrus.WithError(err).Error("Failed to close registry database")
	}
}

func (s *Server) setupRoutes() {
	router := mux.NewRouter()

	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())
	router.Use(middleware.Logging())
	if s.config.Metrics.Enable {
		router.Use(s.metricsManager.Middleware())
	}

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/cluster/allocation/explain", s.handleExplain).Methods(http.MethodPost)
	api.HandleFunc("/cluster/allocation/explain/history", s.handleExplainHistory).Methods(http.MethodGet)
	api.HandleFunc("/cluster/allocation/explain/history/stats", s.handleHistoryStats).Methods(http.MethodGet)

	api.HandleFunc("/cluster/state", s.handleInstallState).Methods(http.MethodPut)
	api.HandleFunc("/cluster/state", s.handleGetState).Methods(http.MethodGet)

	api.HandleFunc("/cluster/nodes", s.handleListNodes).Methods(http.MethodGet)
	api.HandleFunc("/cluster/nodes", s.handleAddNode).Methods(http.MethodPost)
	// Registered before the {id} route so "identities" is not taken for an id.
	api.HandleFunc("/cluster/nodes/identities", s.handleNodeIdentities).Methods(http.MethodGet)
	api.HandleFunc("/cluster/nodes/{id}", s.handleGetNode).Methods(http.MethodGet)
	api.HandleFunc("/cluster/nodes/{id}", s.handleRemoveNode).Methods(http.MethodDelete)

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	if s.config.Metrics.Enable {
		router.Handle(s.config.Metrics.Path, s.metricsManager.GetMetricsHandler()).Methods(http.MethodGet)
	}

	s.httpServer.Handler = handlers.RecoveryHandler()(router)
}
