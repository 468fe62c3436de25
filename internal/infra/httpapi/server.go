package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tuya-scale/internal/application"
	"tuya-scale/internal/domain"
)

const refreshTimeout = 2 * time.Minute

// Coordinator is what the API needs from the snapshot holder.
type Coordinator interface {
	DeviceID() string
	Refresh(ctx context.Context) error
	CurrentSnapshot() (domain.DeviceSnapshot, bool)
	Status() application.Status
}

// Server exposes the held snapshot, a manual refresh and Prometheus metrics.
type Server struct {
	addr        string
	authToken   string
	coordinator Coordinator
	logger      *slog.Logger
	mux         *http.ServeMux
	rateLimiter *RateLimiter

	mu      sync.Mutex
	server  *http.Server
	running bool
}

// SnapshotResponse is the body of GET /snapshot.
type SnapshotResponse struct {
	DeviceID   string                `json:"device_id"`
	Properties domain.DeviceSnapshot `json:"properties"`
	Sensors    []SensorState         `json:"sensors"`
	Status     application.Status    `json:"status"`
}

type SensorState struct {
	UniqueID    string `json:"unique_id"`
	Name        string `json:"name"`
	Key         string `json:"key"`
	Value       any    `json:"value"`
	Unit        string `json:"unit,omitempty"`
	Icon        string `json:"icon,omitempty"`
	DeviceClass string `json:"device_class,omitempty"`
	StateClass  string `json:"state_class,omitempty"`
}

func NewServer(addr, authToken string, coordinator Coordinator, registry *prometheus.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:        addr,
		authToken:   authToken,
		coordinator: coordinator,
		logger:      logger,
		mux:         http.NewServeMux(),
		rateLimiter: NewRateLimiter(30, time.Minute),
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /snapshot", s.rateLimiter.Middleware(s.requireToken(s.handleSnapshot)))
	s.mux.HandleFunc("POST /refresh", s.rateLimiter.Middleware(s.requireToken(s.handleRefresh)))
	if registry != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: refreshTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.Info("HTTP API starting", "addr", s.addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	s.running = true
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
		if err := s.server.Close(); err != nil {
			return fmt.Errorf("closing server: %w", err)
		}
	}

	s.running = false
	return nil
}

func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			s.logger.Warn("unauthorized request", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.coordinator.Status()

	statusCode := http.StatusOK
	status := "ok"
	if !st.Available {
		statusCode = http.StatusServiceUnavailable
		status = "unavailable"
	}

	writeJSON(w, statusCode, map[string]any{
		"status":    status,
		"device_id": s.coordinator.DeviceID(),
		"details":   st,
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.coordinator.CurrentSnapshot()
	if !ok {
		writeError(w, http.StatusNotFound, "no snapshot yet")
		return
	}
	writeJSON(w, http.StatusOK, BuildSnapshotResponse(s.coordinator.DeviceID(), snap, s.coordinator.Status()))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), refreshTimeout)
	defer cancel()

	err := s.coordinator.Refresh(ctx)
	switch {
	case err == nil:
		s.logger.Info("manual refresh completed")
		writeJSON(w, http.StatusOK, map[string]any{"status": "refreshed", "details": s.coordinator.Status()})
	case errors.Is(err, application.ErrRefreshInProgress):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Warn("manual refresh failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// BuildSnapshotResponse pairs the raw records with their sensor view.
func BuildSnapshotResponse(deviceID string, snap domain.DeviceSnapshot, st application.Status) SnapshotResponse {
	resp := SnapshotResponse{
		DeviceID:   deviceID,
		Properties: snap,
		Sensors:    []SensorState{},
		Status:     st,
	}
	for _, sensor := range domain.AvailableSensors(snap) {
		resp.Sensors = append(resp.Sensors, SensorState{
			UniqueID:    sensor.UniqueID(deviceID),
			Name:        sensor.FriendlyName(),
			Key:         sensor.Key,
			Value:       domain.SensorValue(sensor, snap[sensor.Key]),
			Unit:        sensor.Unit,
			Icon:        sensor.Icon,
			DeviceClass: sensor.DeviceClass,
			StateClass:  string(sensor.StateClass),
		})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
