package model

import "time"

// HealthLevel is the aggregate verdict of a health check.
type HealthLevel string

const (
	Healthy   HealthLevel = "healthy"
	Degraded  HealthLevel = "degraded"
	Unhealthy HealthLevel = "unhealthy"
)

// ServiceStatus is the state of a single probed service.
type ServiceStatus string

const (
	ServiceConnected    ServiceStatus = "connected"
	ServiceDisconnected ServiceStatus = "disconnected"
	ServiceError        ServiceStatus = "error"
)

// HealthMetrics is the metrics section of a health snapshot.
type HealthMetrics struct {
	RequestCount          int64   `json:"requestCount"`
	ErrorCount            int64   `json:"errorCount"`
	AverageResponseTimeMs float64 `json:"averageResponseTime"`
	MemoryUsage           Memory  `json:"memoryUsage"`
}

// Memory reports process memory in bytes.
type Memory struct {
	RSS       uint64 `json:"rss"`
	HeapAlloc uint64 `json:"heapAlloc"`
	HeapSys   uint64 `json:"heapSys"`
}

// HealthStatus is a health snapshot. Every check builds a new one.
type HealthStatus struct {
	Status    HealthLevel              `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	UptimeMs  int64                    `json:"uptimeMs"`
	Services  map[string]ServiceStatus `json:"services"`
	Metrics   HealthMetrics            `json:"metrics"`
}

// Aggregate derives the overall level from per-service statuses.
// Any error makes the result unhealthy; otherwise any disconnected
// service makes it degraded.
func Aggregate(services map[string]ServiceStatus) HealthLevel {
	level := Healthy
	for _, s := range services {
		switch s {
		case ServiceError:
			return Unhealthy
		case ServiceConnected:
		default:
			level = Degraded
		}
	}
	return level
}
