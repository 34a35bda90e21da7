// Package api is a thin HTTP/WebSocket facade over the four core
// operations (simulate, monte_carlo, analyze_overfitting,
// compare_strategies). It holds no backtesting logic: every handler
// decodes a request, builds validated core types, calls straight into
// internal/backtest, and encodes the result. Grounded on the teacher's
// internal/api server (gorilla/mux router, rs/cors middleware,
// gorilla/websocket hub, graceful Start/Stop).
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/benchmark-quant/backtester/internal/backtest"
	"github.com/benchmark-quant/backtester/internal/config"
	"github.com/benchmark-quant/backtester/internal/strategy"
)

// Server is the HTTP/WebSocket facade. It owns an http.Server, a gorilla
// mux router, a WebSocket Hub, a Prometheus registry/Telemetry, and a
// strategy Registry used to resolve StrategySelectionDTOs.
type Server struct {
	logger     *zap.Logger
	cfg        config.ServerConfigFile
	router     *mux.Router
	httpServer *http.Server
	hub        *Hub
	registry   *prometheus.Registry
	telemetry  *backtest.Telemetry
	strategies *strategy.Registry
}

// NewServer constructs a Server and registers its routes; it does not
// start listening until Start is called.
func NewServer(logger *zap.Logger, cfg config.ServerConfigFile) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := prometheus.NewRegistry()
	namespace := cfg.MetricsNamespace
	if namespace == "" {
		namespace = "backtester"
	}

	s := &Server{
		logger:     logger,
		cfg:        cfg,
		router:     mux.NewRouter(),
		hub:        NewHub(logger),
		registry:   registry,
		telemetry:  backtest.NewTelemetry(registry, namespace),
		strategies: strategy.NewRegistry(logger),
	}
	s.setupRoutes()
	return s
}

// Router exposes the underlying mux.Router, primarily so tests can drive
// it directly via httptest.NewServer without going through Start/Stop.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/simulate", s.handleSimulate).Methods(http.MethodPost)
	v1.HandleFunc("/monte-carlo", s.handleMonteCarlo).Methods(http.MethodPost)
	v1.HandleFunc("/overfitting", s.handleOverfitting).Methods(http.MethodPost)
	v1.HandleFunc("/compare", s.handleCompare).Methods(http.MethodPost)

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Start begins serving and blocks until the listener returns (normally
// only on Stop-triggered shutdown or a fatal error).
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)

	readTimeout := time.Duration(s.cfg.ReadTimeoutSeconds) * time.Second
	writeTimeout := time.Duration(s.cfg.WriteTimeoutSeconds) * time.Second
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	s.logger.Info("starting backtester API server", zap.String("addr", addr))
	go s.hub.Run()
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "time": time.Now().UTC()})
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if !s.decode(w, r, &req) {
		return
	}

	strat, ok := s.strategies.Create(req.Strategy.Name, req.Strategy.Params)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown strategy %q, available: %v", req.Strategy.Name, s.strategies.List()))
		return
	}

	cfg, err := req.Config.ToBacktestConfig()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sim, err := backtest.NewSimulator(s.logger, cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sim = sim.WithTelemetry(s.telemetry)

	result, err := sim.Run(strat, toBars(req.Bars))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMonteCarlo(w http.ResponseWriter, r *http.Request) {
	var req MonteCarloRequest
	if !s.decode(w, r, &req) {
		return
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	cfg, err := req.Config.ToBacktestConfig()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	mcCfg, err := req.MonteCarlo.ToMonteCarloConfig()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	channel := "montecarlo:" + runID
	mcCfg.OnProgress = func(completed, total int) {
		s.hub.PublishToChannel(channel, MsgTypeProgress, BacktestProgress{RunID: runID, Completed: completed, Total: total})
	}

	bars := toBars(req.Bars)
	strategyFactory := func() backtest.Strategy {
		strat, _ := s.strategies.Create(req.Strategy.Name, req.Strategy.Params)
		return strat
	}
	if _, ok := s.strategies.Create(req.Strategy.Name, req.Strategy.Params); !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown strategy %q, available: %v", req.Strategy.Name, s.strategies.List()))
		return
	}

	aggregator := backtest.NewMonteCarloAggregator(s.logger).WithTelemetry(s.telemetry)

	var summary *backtest.MonteCarloSummary
	if mcCfg.Mode == backtest.ModeTradeShuffle {
		sim, err := backtest.NewSimulator(s.logger, cfg)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		baseResult, err := sim.Run(strategyFactory(), bars)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		summary, err = aggregator.RunFromTrades(baseResult.Trades, cfg.InitialCapital, mcCfg, nil)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
	} else {
		summary, err = aggregator.RunFromBars(strategyFactory, bars, cfg, mcCfg, nil)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
	}

	s.hub.PublishToChannel(channel, MsgTypeComplete, map[string]string{"run_id": runID})
	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "summary": summary})
}

func (s *Server) handleOverfitting(w http.ResponseWriter, r *http.Request) {
	var req OverfittingRequest
	if !s.decode(w, r, &req) {
		return
	}
	detector := backtest.NewOverfittingDetector().WithTelemetry(s.telemetry)
	report := detector.Analyze(req.InSample, req.OutSample, req.WalkForward, req.Complexity)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if !s.decode(w, r, &req) {
		return
	}
	ranked := backtest.CompareStrategies(req.Candidates)
	writeJSON(w, http.StatusOK, ranked)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
