// Package api serves the tracked devices, traffic statistics and
// Prometheus metrics over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"netsniff/internal/analysis"
	"netsniff/internal/devices"
)

const shutdownTimeout = 5 * time.Second

// DeviceSource is the read side of the device tracker.
type DeviceSource interface {
	Devices() []devices.Device
	Device(ip string) (devices.Device, bool)
}

// StatsSource is the read side of the traffic statistics.
type StatsSource interface {
	Snapshot() analysis.StatsSnapshot
	GetAllAlerts() []analysis.Alert
}

// Server is the HTTP API.
type Server struct {
	devices  DeviceSource
	stats    StatsSource
	gatherer prometheus.Gatherer
	log      zerolog.Logger

	router *mux.Router
	srv    *http.Server
}

// NewServer builds the router. Call Start to listen on addr.
func NewServer(addr string, devs DeviceSource, stats StatsSource, gatherer prometheus.Gatherer, log zerolog.Logger) *Server {
	s := &Server{
		devices:  devs,
		stats:    stats,
		gatherer: gatherer,
		log:      log,
		router:   mux.NewRouter(),
	}
	s.RegisterRoutes(s.router)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// RegisterRoutes registers the API routes on router.
func (s *Server) RegisterRoutes(router *mux.Router) {
	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/devices", s.handleListDevices).Methods(http.MethodGet)
	v1.HandleFunc("/devices/{ip}", s.handleGetDevice).Methods(http.MethodGet)
	v1.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
// Listen errors are returned immediately.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.log.Info().Str("addr", ln.Addr().String()).Msg("API server starting")
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("API server failed")
		}
	}()
	return nil
}

// Shutdown stops the server, waiting at most five seconds for requests.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

type deviceView struct {
	devices.Device
	TopPorts  []int              `json:"top_ports"`
	PortStats []devices.PortStat `json:"port_stats,omitempty"`
}

func newDeviceView(d devices.Device, detailed bool) deviceView {
	v := deviceView{Device: d, TopPorts: d.TopPorts(5)}
	if detailed {
		v.PortStats = d.PortStats()
	}
	return v
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	list := s.devices.Devices()
	views := make([]deviceView, 0, len(list))
	for _, d := range list {
		views = append(views, newDeviceView(d, false))
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"timestamp": time.Now().UTC(),
		"count":     len(views),
		"devices":   views,
	})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	ip := mux.Vars(r)["ip"]
	addr, err := netip.ParseAddr(ip)
	if err != nil || !addr.Is4() {
		respondWithError(w, http.StatusBadRequest, "invalid IPv4 address")
		return
	}

	d, ok := s.devices.Device(addr.String())
	if !ok {
		respondWithError(w, http.StatusNotFound, "device not found")
		return
	}
	respondWithJSON(w, http.StatusOK, newDeviceView(d, true))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	snap := s.stats.Snapshot()
	respondWithJSON(w, http.StatusOK, map[string]any{
		"timestamp":          time.Now().UTC(),
		"statistics":         snap,
		"packets_per_second": snap.PacketsPerSecond(),
		"alerts":             s.stats.GetAllAlerts(),
	})
}

func respondWithJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, map[string]string{"error": message})
}
