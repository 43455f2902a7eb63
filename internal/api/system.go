package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-twin/internal/bridges/mqttbridge"
)

// BridgeMetricsProvider is implemented by the southbound MQTT bridge.
type BridgeMetricsProvider interface {
	GetMetrics() mqttbridge.Metrics
}

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string              `json:"timestamp"`
	Version       string              `json:"version"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	Runtime       RuntimeMetrics      `json:"runtime"`
	WebSocket     WSMetrics           `json:"websocket"`
	Sessions      int                 `json:"sessions"`
	Notify        *NotifyMetrics      `json:"notify,omitempty"`
	MQTTBridge    *mqttbridge.Metrics `json:"mqtt_bridge,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// NotifyMetrics contains notification router statistics.
type NotifyMetrics struct {
	Pending   int    `json:"pending"`
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
}

// SetBridge sets the MQTT bridge reported by the system endpoint. The bridge
// is created after the server because both need the running gateway.
func (s *Server) SetBridge(b BridgeMetricsProvider) {
	s.bridge = b
}

// handleSystem returns runtime and pipeline statistics.
func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Sessions: s.sessions.Len(),
	}

	if s.router != nil {
		delivered, failed := s.router.Stats()
		metrics.Notify = &NotifyMetrics{
			Pending:   s.router.Pending(),
			Delivered: delivered,
			Failed:    failed,
		}
	}

	if s.bridge != nil {
		bm := s.bridge.GetMetrics()
		metrics.MQTTBridge = &bm
	}

	writeJSON(w, http.StatusOK, metrics)
}
