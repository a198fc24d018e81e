// Package httpapi exposes the recommendation pipeline over HTTP: a JSON
// endpoint for one-shot requests, a WebSocket endpoint streaming pipeline
// progress, and the usual health and metrics endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mixcue/internal/core"
	"mixcue/internal/ratelimit"
)

// Recommender is the pipeline capability the API exposes.
type Recommender interface {
	Recommend(ctx context.Context, req core.RecommendRequest, progress core.ProgressFunc) (*core.RecommendationResult, error)
}

type Server struct {
	config      *core.ServerConfig
	logger      *zap.Logger
	server      *http.Server
	recommender Recommender
	limiter     *ratelimit.Limiter
	metrics     *Metrics
	upgrader    websocket.Upgrader
}

type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	TracksQueued    prometheus.Counter
	SeedNotFound    prometheus.Counter
	RateLimited     prometheus.Counter
}

func newMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mixcue_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mixcue_request_duration_seconds",
				Help:    "Time spent serving recommendation requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		TracksQueued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mixcue_tracks_queued_total",
				Help: "Total number of tracks added to the playback queue",
			},
		),
		SeedNotFound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mixcue_seed_not_found_total",
				Help: "Total number of requests whose seed song could not be resolved",
			},
		),
		RateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mixcue_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
		),
	}

	m.registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.TracksQueued,
		m.SeedNotFound,
		m.RateLimited,
	)

	return m
}

func NewServer(config *core.ServerConfig, recommender Recommender, logger *zap.Logger) *Server {
	s := &Server{
		config:      config,
		logger:      logger,
		recommender: recommender,
		limiter:     ratelimit.New(config.RateLimit, config.RateWindow),
		metrics:     newMetrics(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"mixcue"}`)) //nolint:errcheck
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready","service":"mixcue"}`)) //nolint:errcheck
	})

	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	mux.Handle("/api/v1/recommendations", s.rateLimited(http.HandlerFunc(s.handleRecommend)))
	mux.Handle("/api/v1/recommendations/stream", s.rateLimited(http.HandlerFunc(s.handleRecommendStream)))

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
		s.limiter.Stop()
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

func (s *Server) rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientKey(r)) {
			s.metrics.RateLimited.Inc()
			s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req core.RecommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.countRequest("recommendations", http.StatusBadRequest)
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Song) == "" {
		s.countRequest("recommendations", http.StatusBadRequest)
		s.writeError(w, http.StatusBadRequest, "song is required")
		return
	}

	start := time.Now()
	result, err := s.recommender.Recommend(r.Context(), req, nil)
	s.metrics.RequestDuration.WithLabelValues("recommendations").Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, core.ErrSeedNotFound) {
			s.metrics.SeedNotFound.Inc()
			s.countRequest("recommendations", http.StatusNotFound)
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("recommendation request failed", zap.Error(err))
		s.countRequest("recommendations", http.StatusInternalServerError)
		s.writeError(w, http.StatusInternalServerError, "recommendation failed")
		return
	}

	s.metrics.TracksQueued.Add(float64(result.TotalQueued))
	s.countRequest("recommendations", http.StatusOK)
	s.writeJSON(w, http.StatusOK, result)
}

// handleRecommendStream upgrades to a WebSocket, reads one request and
// streams pipeline progress events until the run completes.
func (s *Server) handleRecommendStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	var req core.RecommendRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.writeEvent(conn, core.ProgressEvent{Type: core.EventError, Message: "invalid request"})
		return
	}
	if strings.TrimSpace(req.Song) == "" {
		s.writeEvent(conn, core.ProgressEvent{Type: core.EventError, Message: "song is required"})
		return
	}

	// Progress events come from the pipeline goroutine only, so writes to
	// the socket are never concurrent.
	progress := func(ev core.ProgressEvent) {
		s.writeEvent(conn, ev)
	}

	start := time.Now()
	result, err := s.recommender.Recommend(r.Context(), req, progress)
	s.metrics.RequestDuration.WithLabelValues("stream").Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, core.ErrSeedNotFound) {
			s.metrics.SeedNotFound.Inc()
		}
		s.countRequest("stream", http.StatusInternalServerError)
		s.writeEvent(conn, core.ProgressEvent{Type: core.EventError, Message: err.Error()})
		return
	}

	s.metrics.TracksQueued.Add(float64(result.TotalQueued))
	s.countRequest("stream", http.StatusOK)

	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}

func (s *Server) writeEvent(conn *websocket.Conn, ev core.ProgressEvent) {
	if err := conn.WriteJSON(ev); err != nil {
		s.logger.Debug("failed to write websocket event", zap.Error(err))
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) countRequest(endpoint string, status int) {
	s.metrics.RequestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", status)).Inc()
}

// clientKey identifies the caller for rate limiting, preferring the direct
// peer address over spoofable headers.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
