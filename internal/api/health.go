package api

import (
	"fmt"
	"net/http"
	goruntime "runtime"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/idleforge/internal/config"
	"github.com/MJE43/idleforge/internal/runtime"
	"github.com/MJE43/idleforge/internal/store"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResponse represents a comprehensive health check response
type HealthCheckResponse struct {
	Status        HealthStatus           `json:"status"`
	Timestamp     string                 `json:"timestamp"`
	EngineVersion string                 `json:"engine_version"`
	GitCommit     string                 `json:"git_commit,omitempty"`
	BuildTime     string                 `json:"build_time,omitempty"`
	Uptime        string                 `json:"uptime"`
	Checks        map[string]HealthCheck `json:"checks"`
	System        SystemInfo             `json:"system"`
	RequestID     string                 `json:"request_id,omitempty"`
}

// HealthCheck represents an individual health check
type HealthCheck struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked string       `json:"last_checked"`
	Duration    string       `json:"duration,omitempty"`
}

// SystemInfo contains system information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	NumCPU        int    `json:"num_cpu"`
	GOMAXPROCS    int    `json:"gomaxprocs"`
	MemoryAlloc   uint64 `json:"memory_alloc_bytes"`
	MemorySys     uint64 `json:"memory_sys_bytes"`
	GCCycles      uint32 `json:"gc_cycles"`
}

// handleHealthCheck reports on storage, the editor, the exporter and sessions.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())
	start := time.Now()

	checks := map[string]HealthCheck{
		"database": s.checkDatabaseHealth(),
		"editor":   s.checkEditorHealth(),
		"exporter": s.checkExporterHealth(),
		"sessions": s.checkSessionsHealth(),
	}
	overall := HealthStatusHealthy
	for _, c := range checks {
		switch c.Status {
		case HealthStatusUnhealthy:
			overall = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if overall == HealthStatusHealthy {
				overall = HealthStatusDegraded
			}
		}
	}

	response := HealthCheckResponse{
		Status:        overall,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		EngineVersion: config.Version,
		GitCommit:     config.GitCommit,
		BuildTime:     config.BuildTime,
		Uptime:        time.Since(s.startTime).String(),
		Checks:        checks,
		System:        systemInfo(),
		RequestID:     requestID,
	}

	// Degraded still answers 200.
	statusCode := http.StatusOK
	if overall == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	s.audit.LogAuditEvent(requestID, "health_check", "system", string(overall), map[string]interface{}{
		"duration":    time.Since(start).String(),
		"checks":      len(checks),
		"status_code": statusCode,
	})

	s.writeJSON(w, statusCode, response)
}

// handleReadiness provides readiness probe endpoint
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())

	ready := true
	message := "Ready"
	if s.exporter == nil {
		ready = false
		message = "Exporter not initialized"
	} else if db := s.checkDatabaseHealth(); db.Status == HealthStatusUnhealthy {
		ready = false
		message = db.Message
	}

	statusCode := http.StatusOK
	outcome := "ready"
	if !ready {
		statusCode = http.StatusServiceUnavailable
		outcome = "not_ready"
	}
	s.audit.LogAuditEvent(requestID, "readiness_check", "system", outcome, map[string]interface{}{
		"message": message,
	})

	s.writeJSON(w, statusCode, map[string]interface{}{
		"ready":          ready,
		"message":        message,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"engine_version": config.Version,
		"request_id":     requestID,
	})
}

// handleLiveness provides liveness probe endpoint
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alive":          true,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"engine_version": config.Version,
		"uptime":         time.Since(s.startTime).String(),
		"request_id":     middleware.GetReqID(r.Context()),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GetVersionInfo())
}

// checkDatabaseHealth runs a one-row listing against the project store.
func (s *Server) checkDatabaseHealth() HealthCheck {
	start := time.Now()
	check := HealthCheck{Status: HealthStatusHealthy, Message: "Database connection healthy"}

	if s.db == nil {
		check.Status = HealthStatusDegraded
		check.Message = "Project storage disabled"
	} else if _, err := s.db.ListProjects(store.ProjectsQuery{Page: 1, PerPage: 1}); err != nil {
		check.Status = HealthStatusUnhealthy
		check.Message = fmt.Sprintf("Database query failed: %v", err)
	}

	check.LastChecked = time.Now().UTC().Format(time.RFC3339)
	check.Duration = time.Since(start).String()
	return check
}

func (s *Server) checkEditorHealth() HealthCheck {
	start := time.Now()
	bp := s.editor.Blueprint()
	check := HealthCheck{
		Status:  HealthStatusHealthy,
		Message: fmt.Sprintf("%d resources, %d generators, %d upgrades", len(bp.Resources), len(bp.Generators), len(bp.Upgrades)),
	}
	if err := bp.Validate(); err != nil {
		check.Status = HealthStatusDegraded
		check.Message = fmt.Sprintf("Working blueprint is invalid: %v", err)
	}
	check.LastChecked = time.Now().UTC().Format(time.RFC3339)
	check.Duration = time.Since(start).String()
	return check
}

func (s *Server) checkExporterHealth() HealthCheck {
	check := HealthCheck{
		Status:      HealthStatusHealthy,
		Message:     "Templates loaded",
		LastChecked: time.Now().UTC().Format(time.RFC3339),
	}
	if s.exporter == nil {
		check.Status = HealthStatusUnhealthy
		check.Message = "Exporter not initialized"
	}
	return check
}

func (s *Server) checkSessionsHealth() HealthCheck {
	ids := s.sessions.List()
	running := 0
	for _, id := range ids {
		if sess, err := s.sessions.Get(id); err == nil && sess.Status() == runtime.StatusRunning {
			running++
		}
	}
	return HealthCheck{
		Status:      HealthStatusHealthy,
		Message:     fmt.Sprintf("%d sessions, %d running", len(ids), running),
		LastChecked: time.Now().UTC().Format(time.RFC3339),
	}
}

func systemInfo() SystemInfo {
	var m goruntime.MemStats
	goruntime.ReadMemStats(&m)

	return SystemInfo{
		GoVersion:     goruntime.Version(),
		NumGoroutines: goruntime.NumGoroutine(),
		NumCPU:        goruntime.NumCPU(),
		GOMAXPROCS:    goruntime.GOMAXPROCS(0),
		MemoryAlloc:   m.Alloc,
		MemorySys:     m.Sys,
		GCCycles:      m.NumGC,
	}
}
