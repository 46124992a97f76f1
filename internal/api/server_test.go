package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsniff/internal/analysis"
	"netsniff/internal/classifier"
	"netsniff/internal/devices"
	"netsniff/internal/metrics"
	"netsniff/internal/models"
	"netsniff/internal/refdata"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *devices.Tracker, *analysis.TrafficStats) {
	t.Helper()
	cfg := devices.DefaultConfig()
	cfg.Interval = 0
	tracker := devices.NewTracker(cfg, classifier.New(refdata.NewDefaultMemoryStore()), zerolog.Nop())
	stats := analysis.NewTrafficStats(analysis.DefaultConfig())
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.PacketsDecoded.Add(12)

	for i := range 12 {
		pkt := models.PacketData{
			Timestamp: t0.Add(time.Duration(i) * time.Second),
			Protocol:  "UDP",
			SrcIP:     "192.168.1.40",
			DstIP:     "224.0.0.251",
			SrcPort:   5353,
			DstPort:   5353,
			Length:    120,
		}
		tracker.Record(pkt)
		stats.ProcessPacket(pkt)
	}
	return NewServer("127.0.0.1:0", tracker, stats, reg, zerolog.Nop()), tracker, stats
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestListDevices(t *testing.T) {
	s, tracker, _ := newTestServer(t)
	_, ran := tracker.RunClassification(t.Context())
	require.True(t, ran)

	rec := get(t, s, "/api/v1/devices")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Count   int `json:"count"`
		Devices []struct {
			IP             string             `json:"ip"`
			TotalPackets   int64              `json:"total_packets"`
			TopPorts       []int              `json:"top_ports"`
			Classification *classifier.Result `json:"classification"`
		} `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	d := body.Devices[0]
	assert.Equal(t, "192.168.1.40", d.IP)
	assert.EqualValues(t, 12, d.TotalPackets)
	assert.Equal(t, []int{5353}, d.TopPorts)
	require.NotNil(t, d.Classification)
	assert.Equal(t, "mDNS", d.Classification.DeviceType)
}

func TestGetDevice(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := get(t, s, "/api/v1/devices/192.168.1.40")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "192.168.1.40", body["ip"])
	stats, ok := body["port_stats"].([]any)
	require.True(t, ok, "detailed view carries port stats")
	require.Len(t, stats, 1)
	assert.EqualValues(t, 1000, stats[0].(map[string]any)["avg_interval_ms"])
	assert.NotContains(t, body, "SizeSamples")

	rec = get(t, s, "/api/v1/devices/10.9.9.9")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, s, "/api/v1/devices/not-an-ip")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid IPv4 address")
}

func TestStats(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := get(t, s, "/api/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Statistics analysis.StatsSnapshot `json:"statistics"`
		Alerts     []analysis.Alert       `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 12, body.Statistics.TotalPackets)
	assert.EqualValues(t, 1440, body.Statistics.TotalBytes)
	require.Len(t, body.Statistics.Protocols, 1)
	assert.Equal(t, "UDP", body.Statistics.Protocols[0].Protocol)
	assert.NotNil(t, body.Alerts)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "netsniff_packets_decoded_total 12"), rec.Body.String())
}

func TestMethodNotAllowed(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/devices", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStartAndShutdown(t *testing.T) {
	s, _, _ := newTestServer(t)
	require.NoError(t, s.Start())
	require.NoError(t, s.Shutdown(t.Context()))
}
