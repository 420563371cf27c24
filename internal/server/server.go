package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mcp-meal-triggers/internal/config"
	"mcp-meal-triggers/internal/experiment"
	"mcp-meal-triggers/internal/metrics"
	"mcp-meal-triggers/internal/storage"
	"mcp-meal-triggers/internal/triggers"
)

const Version = "1.0.0"

type toolHandler func(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error)

type TriggerServer struct {
	info       protocol.Implementation
	httpServer *http.Server
	storage    *storage.SQLiteStorage
	engine     *triggers.Engine
	tracker    *experiment.Tracker
	metrics    *metrics.Metrics
	logger     *zap.Logger
	config     *config.Config
	tools      map[string]toolHandler
	now        func() time.Time
	loc        *time.Location
}

type Option func(*TriggerServer)

// WithClock replaces time.Now for meal timestamps and experiments.
func WithClock(now func() time.Time) Option {
	return func(s *TriggerServer) { s.now = now }
}

func NewTriggerServer(cfg *config.Config, logger *zap.Logger, opts ...Option) (*TriggerServer, error) {
	engineCfg, err := cfg.Triggers()
	if err != nil {
		return nil, fmt.Errorf("invalid analysis config: %w", err)
	}

	// Initialize database
	stor, err := storage.NewSQLiteStorage(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	s := &TriggerServer{
		info: protocol.Implementation{
			Name:    "meal-triggers",
			Version: Version,
		},
		storage: stor,
		engine:  triggers.NewEngine(engineCfg),
		metrics: metrics.NewMetrics(),
		logger:  logger,
		config:  cfg,
		now:     time.Now,
		loc:     engineCfg.Location,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.tracker = experiment.NewTracker(stor,
		experiment.WithClock(s.now),
		experiment.WithLogger(logger.Named("experiment")),
		experiment.WithLocation(s.loc),
		experiment.WithDuration(cfg.Experiment.DurationDays),
		experiment.WithMinSample(cfg.Experiment.MinSample),
	)

	s.registerTools()

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHTTP)
	mux.HandleFunc("/info", s.handleInfo)
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return s, nil
}

// Handler exposes the routes without starting a listener.
func (s *TriggerServer) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *TriggerServer) handleHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if r.Method == http.MethodOptions {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request protocol.CallToolRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	handler, ok := s.tools[request.Name]
	if !ok {
		s.metrics.ToolCallsTotal.WithLabelValues("unknown", "not_found").Inc()
		http.Error(w, fmt.Sprintf("Unknown tool: %s", request.Name), http.StatusNotFound)
		return
	}

	result, err := handler(r.Context(), &request)
	if err != nil {
		status := statusFor(err)
		s.metrics.ToolCallsTotal.WithLabelValues(request.Name, "error").Inc()
		if status >= http.StatusInternalServerError {
			s.logger.Error("tool call failed", zap.String("tool", request.Name), zap.Error(err))
		} else {
			s.logger.Debug("tool call rejected", zap.String("tool", request.Name), zap.Error(err))
		}
		http.Error(w, err.Error(), status)
		return
	}
	s.metrics.ToolCallsTotal.WithLabelValues(request.Name, "ok").Inc()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errInvalidParams), errors.Is(err, experiment.ErrUnsupportedCategory),
		errors.Is(err, experiment.ErrPositivePattern):
		return http.StatusBadRequest
	case errors.Is(err, ErrPatternNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *TriggerServer) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"server": s.info,
		"tools":  names,
	}); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *TriggerServer) Start(ctx context.Context) error {
	s.logger.Info("starting meal triggers server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *TriggerServer) Stop(ctx context.Context) error {
	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down http server: %w", err))
		}
	}
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *TriggerServer) createJSONResponse(data interface{}) (*protocol.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	return &protocol.CallToolResult{
		Content: []protocol.Content{
			protocol.TextContent{
				Type: "text",
				Text: string(jsonBytes),
			},
		},
	}, nil
}
