package monitoring

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// BatchStatus is the live view of the download batch reported by /healthz
type BatchStatus struct {
	Queued     int   `json:"queued"`
	Active     int   `json:"active"`
	Downloaded int64 `json:"downloaded"`
	Errors     int64 `json:"errors"`
	Remaining  int64 `json:"remaining"`
	Total      int64 `json:"total"`
}

// HealthCheck represents a health check response
type HealthCheck struct {
	Status        HealthStatus     `json:"status"`
	Version       string           `json:"version"`
	RunID         string           `json:"run_id,omitempty"`
	Uptime        int64            `json:"uptime"`
	UptimeHuman   string           `json:"uptime_human"`
	Batch         BatchStatus      `json:"batch"`
	MemoryUsage   string           `json:"memory_usage"`
	HistoryStatus string           `json:"history_status"`
	Checks        map[string]Check `json:"checks"`
	Timestamp     time.Time        `json:"timestamp"`
}

// Check represents an individual health check
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthChecker performs health checks
type HealthChecker struct {
	version   string
	runID     string
	startTime time.Time
	db        *sql.DB
}

// NewHealthChecker creates a new health checker. db is the download history
// database and may be nil when history is disabled.
func NewHealthChecker(version, runID string, db *sql.DB) *HealthChecker {
	return &HealthChecker{
		version:   version,
		runID:     runID,
		startTime: time.Now(),
		db:        db,
	}
}

// Check performs all health checks and returns the result
func (h *HealthChecker) Check(batch BatchStatus) *HealthCheck {
	checks := make(map[string]Check)
	overallStatus := HealthStatusHealthy

	dbCheck := h.checkHistory()
	checks["history"] = dbCheck
	if dbCheck.Status == "unhealthy" {
		overallStatus = HealthStatusUnhealthy
	}

	memCheck, alloc := h.checkMemory()
	checks["memory"] = memCheck
	if memCheck.Status == "unhealthy" {
		overallStatus = HealthStatusUnhealthy
	} else if memCheck.Status == "degraded" && overallStatus == HealthStatusHealthy {
		overallStatus = HealthStatusDegraded
	}

	batchCheck := h.checkBatch(batch)
	checks["batch"] = batchCheck
	if batchCheck.Status == "degraded" && overallStatus == HealthStatusHealthy {
		overallStatus = HealthStatusDegraded
	}

	dbStatus := "connected"
	switch {
	case h.db == nil:
		dbStatus = "disabled"
	case dbCheck.Status != "healthy":
		dbStatus = "disconnected"
	}

	return &HealthCheck{
		Status:        overallStatus,
		Version:       h.version,
		RunID:         h.runID,
		Uptime:        int64(time.Since(h.startTime).Seconds()),
		UptimeHuman:   time.Since(h.startTime).Round(time.Second).String(),
		Batch:         batch,
		MemoryUsage:   humanize.IBytes(alloc),
		HistoryStatus: dbStatus,
		Checks:        checks,
		Timestamp:     time.Now(),
	}
}

func (h *HealthChecker) checkHistory() Check {
	if h.db == nil {
		return Check{
			Status:  "healthy",
			Message: "Download history disabled",
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		return Check{
			Status:  "unhealthy",
			Message: "History database ping failed: " + err.Error(),
		}
	}

	return Check{
		Status:  "healthy",
		Message: "History database is healthy",
	}
}

func (h *HealthChecker) checkMemory() (Check, uint64) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	const (
		warningThreshold  = 500 << 20
		criticalThreshold = 1 << 30
	)

	switch {
	case m.Alloc > criticalThreshold:
		return Check{Status: "unhealthy", Message: "Memory usage is critically high"}, m.Alloc
	case m.Alloc > warningThreshold:
		return Check{Status: "degraded", Message: "Memory usage is elevated"}, m.Alloc
	}
	return Check{Status: "healthy", Message: "Memory usage is normal"}, m.Alloc
}

// checkBatch degrades once more than half of the finished jobs failed.
func (h *HealthChecker) checkBatch(batch BatchStatus) Check {
	finished := batch.Downloaded + batch.Errors
	if finished >= 4 && batch.Errors*2 > finished {
		return Check{
			Status:  "degraded",
			Message: "Most download jobs are failing",
		}
	}
	return Check{
		Status:  "healthy",
		Message: "Batch is progressing",
	}
}
