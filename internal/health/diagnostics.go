package health

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/rickgao/engine-bridge/internal/connection"
	"github.com/rickgao/engine-bridge/internal/metrics"
	"github.com/rickgao/engine-bridge/internal/model"
	"github.com/rickgao/engine-bridge/internal/version"
)

// ConnectionStats reports Connection Manager statistics.
type ConnectionStats interface {
	Stats() connection.Stats
}

// PendingCounter reports the number of outstanding duplex requests.
type PendingCounter interface {
	Pending() int
}

// Diagnostics is a read-only report of the bridge and its host.
type Diagnostics struct {
	System        SystemInfo        `json:"system"`
	Connectivity  ConnectivityInfo  `json:"connectivity"`
	Performance   PerformanceInfo   `json:"performance"`
	Configuration map[string]string `json:"configuration"`
	GeneratedAt   time.Time         `json:"generatedAt"`
}

// SystemInfo describes the host and process.
type SystemInfo struct {
	Hostname    string `json:"hostname"`
	OS          string `json:"os"`
	Platform    string `json:"platform"`
	Arch        string `json:"arch"`
	CPUCount    int    `json:"cpuCount"`
	MemoryTotal uint64 `json:"memoryTotal"`
	GoVersion   string `json:"goVersion"`
	Goroutines  int    `json:"goroutines"`
	Version     string `json:"version"`
	PID         int    `json:"pid"`
}

// ConnectivityInfo describes the duplex channel and last probe results.
type ConnectivityInfo struct {
	State             string                         `json:"state"`
	URL               string                         `json:"url,omitempty"`
	ReconnectAttempts int                            `json:"reconnectAttempts"`
	PendingRequests   int                            `json:"pendingRequests"`
	ConnectedSince    time.Time                      `json:"connectedSince,omitempty"`
	LastSeen          time.Time                      `json:"lastSeen,omitempty"`
	LastHeartbeatSent time.Time                      `json:"lastHeartbeatSent,omitempty"`
	LastHeartbeatRecv time.Time                      `json:"lastHeartbeatRecv,omitempty"`
	Services          map[string]model.ServiceStatus `json:"services,omitempty"`
}

// PerformanceInfo reports request counters and memory.
type PerformanceInfo struct {
	Metrics metrics.Snapshot `json:"metrics"`
	Memory  model.Memory     `json:"memory"`
}

// RunDiagnostics collects a diagnostics report. It performs no probes
// and changes no state.
func (m *Monitor) RunDiagnostics(ctx context.Context) Diagnostics {
	d := Diagnostics{
		System:        systemInfo(ctx),
		Configuration: make(map[string]string, len(m.cfg.Settings)),
		GeneratedAt:   m.now(),
	}

	d.Connectivity.State = "unknown"
	if m.conn != nil {
		stats := m.conn.Stats()
		d.Connectivity.State = stats.State.String()
		d.Connectivity.URL = stats.URL
		d.Connectivity.ReconnectAttempts = stats.ReconnectAttempts
		d.Connectivity.ConnectedSince = stats.ConnectedSince
		d.Connectivity.LastSeen = stats.LastSeen
		d.Connectivity.LastHeartbeatSent = stats.LastHeartbeatSent
		d.Connectivity.LastHeartbeatRecv = stats.LastHeartbeatRecv
	}
	if m.pending != nil {
		d.Connectivity.PendingRequests = m.pending.Pending()
	}
	if latest, ok := m.Latest(); ok {
		d.Connectivity.Services = latest.Services
	}

	d.Performance = PerformanceInfo{
		Metrics: m.counters.Snapshot(),
		Memory:  memoryUsage(),
	}

	for k, v := range m.cfg.Settings {
		d.Configuration[k] = v
	}
	return d
}

func systemInfo(ctx context.Context) SystemInfo {
	info := SystemInfo{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		CPUCount:   runtime.NumCPU(),
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		Version:    version.String(),
		PID:        os.Getpid(),
	}

	if h, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = h.Hostname
		info.Platform = h.Platform
		if h.OS != "" {
			info.OS = h.OS
		}
	}
	if info.Hostname == "" {
		info.Hostname, _ = os.Hostname()
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryTotal = vm.Total
	}
	return info
}
