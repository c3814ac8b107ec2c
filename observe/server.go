package observe

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/realmfikri/ridehail-sim/engine"
)

var apiLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "ridehail_api_latency_seconds",
	Help:    "Time spent serving HTTP handlers.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "path", "status"})

func init() {
	prometheus.MustRegister(apiLatency)
}

// Server exposes HTTP and WebSocket endpoints over a Hub fed by a running
// Engine — the "UI collaborator" of §6.2/§6.3, built the way the teacher
// builds its truck-fleet observer.
type Server struct {
	hub               *Hub
	eng               *engine.Engine
	wsUpgrader        websocket.Upgrader
	defaultPage       int
	defaultLimit      int
	logger            *slog.Logger
	correlationHeader string
	adminEnabled      bool
}

// NewServer constructs a Server over hub, optionally wired to eng for live
// reconfiguration endpoints.
func NewServer(hub *Hub, eng *engine.Engine) *Server {
	return &Server{
		hub: hub,
		eng: eng,
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		defaultPage:       1,
		defaultLimit:      200,
		logger:            slog.Default(),
		correlationHeader: "X-Correlation-ID",
	}
}

// WithAdminEnabled enables admin-only endpoints like pprof.
func (s *Server) WithAdminEnabled() *Server {
	s.adminEnabled = true
	return s
}

// WithLogger configures structured logging.
func (s *Server) WithLogger(logger *slog.Logger) *Server {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Routes returns an http.Handler serving every observer endpoint.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.wrap(s.handleHealth))
	mux.HandleFunc("/readyz", s.wrap(s.handleReadiness))
	mux.HandleFunc("/api/block", s.wrap(s.handleLatestBlock))
	mux.HandleFunc("/api/vehicles", s.wrap(s.handleVehicles))
	mux.HandleFunc("/api/trips", s.wrap(s.handleTrips))
	mux.HandleFunc("/api/results", s.wrap(s.handleResults))
	mux.HandleFunc("/api/config", s.wrap(s.handleConfig))
	mux.HandleFunc("/ws/blocks", s.wrap(s.handleBlocksWebSocket))
	mux.Handle("/metrics", promhttp.Handler())

	if s.adminEnabled {
		mux.HandleFunc("/admin/debug/pprof/", pprof.Index)
		mux.HandleFunc("/admin/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/admin/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/admin/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/admin/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.hub.Latest(); !ok {
		http.Error(w, "simulation has not produced a block yet", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleLatestBlock(w http.ResponseWriter, r *http.Request) {
	br, ok := s.hub.Latest()
	if !ok {
		http.Error(w, "no block available yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, br)
}

type paginatedVehicles struct {
	Vehicles []engine.VehicleView `json:"vehicles"`
	Page     int                  `json:"page"`
	Size     int                  `json:"size"`
	Total    int                  `json:"total"`
}

func (s *Server) handleVehicles(w http.ResponseWriter, r *http.Request) {
	br, ok := s.hub.Latest()
	if !ok {
		http.Error(w, "no block available yet", http.StatusServiceUnavailable)
		return
	}
	page, size := s.pagination(r)
	start, end := paginationBounds(page, size, len(br.Vehicles))
	writeJSON(w, paginatedVehicles{
		Vehicles: br.Vehicles[start:end],
		Page:     page,
		Size:     size,
		Total:    len(br.Vehicles),
	})
}

type paginatedTrips struct {
	Trips []engine.TripView `json:"trips"`
	Page  int               `json:"page"`
	Size  int               `json:"size"`
	Total int               `json:"total"`
}

func (s *Server) handleTrips(w http.ResponseWriter, r *http.Request) {
	br, ok := s.hub.Latest()
	if !ok {
		http.Error(w, "no block available yet", http.StatusServiceUnavailable)
		return
	}
	page, size := s.pagination(r)
	start, end := paginationBounds(page, size, len(br.Trips))
	writeJSON(w, paginatedTrips{
		Trips: br.Trips[start:end],
		Page:  page,
		Size:  size,
		Total: len(br.Trips),
	})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	results, ok := s.hub.Results()
	if !ok {
		http.Error(w, "run has not completed yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, results.AsMap())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if s.eng == nil {
		http.Error(w, "engine not wired to this server", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, s.eng.Config())
	case http.MethodPost:
		var req updateOptionsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		s.eng.UpdateOptions(req.toEngineOptions())
		w.WriteHeader(http.StatusAccepted)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type updateOptionsRequest struct {
	VehicleCount    *int     `json:"vehicleCount"`
	RequestRate     *float64 `json:"requestRate"`
	Price           *float64 `json:"price"`
	Commission      *float64 `json:"commission"`
	ReservationWage *float64 `json:"reservationWage"`
	SmoothingWindow *int     `json:"smoothingWindow"`
}

func (req updateOptionsRequest) toEngineOptions() engine.UpdateOptions {
	return engine.UpdateOptions{
		VehicleCount:    req.VehicleCount,
		RequestRate:     req.RequestRate,
		Price:           req.Price,
		Commission:      req.Commission,
		ReservationWage: req.ReservationWage,
		SmoothingWindow: req.SmoothingWindow,
	}
}

func (s *Server) pagination(r *http.Request) (page, size int) {
	page, size = s.defaultPage, s.defaultLimit
	if v := r.URL.Query().Get("page"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			page = parsed
		}
	}
	if v := r.URL.Query().Get("size"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			size = parsed
		}
	}
	return page, size
}

func paginationBounds(page, size, total int) (start, end int) {
	start = (page - 1) * size
	if start > total {
		start = total
	}
	end = start + size
	if end > total {
		end = total
	}
	return start, end
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// handleBlocksWebSocket streams every published block snapshot to the
// client. A write failure closes only this connection; the simulation
// never back-pressures on a slow or dead subscriber (§7).
func (s *Server) handleBlocksWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err, "correlation_id", correlationIDFromContext(r.Context()))
		return
	}
	defer conn.Close()

	ch, cancel := s.hub.Subscribe()
	defer cancel()

	if br, ok := s.hub.Latest(); ok {
		if err := conn.WriteJSON(br); err != nil {
			return
		}
	}

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case br, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(br); err != nil {
				s.logger.Error("websocket send failed", "err", err, "correlation_id", correlationIDFromContext(r.Context()))
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
