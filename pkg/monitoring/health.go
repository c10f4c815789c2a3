package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Timestamp int64                  `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

const checkTimeout = 5 * time.Second

// CheckResult represents the result of an individual health check
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// HealthCheck performs one dependency check.
type HealthCheck func() CheckResult

// Pinger is anything with a context-aware liveness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthChecker manages and executes health checks
type HealthChecker struct {
	service string
	version string

	mu     sync.RWMutex
	checks map[string]HealthCheck
}

func NewHealthChecker(service, version string) *HealthChecker {
	return &HealthChecker{
		service: service,
		version: version,
		checks:  make(map[string]HealthCheck),
	}
}

func (hc *HealthChecker) AddCheck(name string, check HealthCheck) {
	hc.mu.Lock()
	hc.checks[name] = check
	hc.mu.Unlock()
}

// CheckHealth runs all checks. Any unhealthy check makes the service
// unhealthy; degraded checks only degrade it.
func (hc *HealthChecker) CheckHealth() HealthStatus {
	hc.mu.RLock()
	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthCheck, len(hc.checks))
	for k, v := range hc.checks {
		checks[k] = v
	}
	hc.mu.RUnlock()
	sort.Strings(names)

	status := HealthStatus{
		Service:   hc.service,
		Version:   hc.version,
		Timestamp: time.Now().Unix(),
		Checks:    make(map[string]CheckResult, len(names)),
	}

	anyUnhealthy, anyDegraded := false, false
	for _, name := range names {
		result := checks[name]()
		status.Checks[name] = result
		switch result.Status {
		case StatusHealthy:
		case StatusDegraded:
			anyDegraded = true
		default:
			anyUnhealthy = true
		}
	}

	switch {
	case anyUnhealthy:
		status.Status = StatusUnhealthy
	case anyDegraded:
		status.Status = StatusDegraded
	default:
		status.Status = StatusHealthy
	}
	return status
}

// Handler serves CheckHealth; unhealthy maps to 503.
func (hc *HealthChecker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		health := hc.CheckHealth()
		statusCode := http.StatusOK
		if health.Status == StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, health)
	}
}

// PingHealthCheck probes a dependency. Failures of a critical dependency are
// unhealthy; optional ones (cache, event bus) only degrade the service.
func PingHealthCheck(name string, p Pinger, critical bool) HealthCheck {
	failStatus := StatusDegraded
	if critical {
		failStatus = StatusUnhealthy
	}
	return func() CheckResult {
		start := time.Now()
		if p == nil {
			return CheckResult{Status: failStatus, Message: name + " is not configured"}
		}

		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()
		err := p.Ping(ctx)
		latency := time.Since(start).String()
		if err != nil {
			return CheckResult{
				Status:  failStatus,
				Message: fmt.Sprintf("%s ping failed: %v", name, err),
				Latency: latency,
			}
		}
		return CheckResult{
			Status:  StatusHealthy,
			Message: name + " reachable",
			Latency: latency,
		}
	}
}

// UpstreamRateLimitCheck reports degraded while the upstream quota is exhausted.
func UpstreamRateLimitCheck(name string, blockedFor func() time.Duration) HealthCheck {
	return func() CheckResult {
		if d := blockedFor(); d > 0 {
			return CheckResult{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("%s rate limited for another %s", name, d.Round(time.Second)),
			}
		}
		return CheckResult{Status: StatusHealthy, Message: name + " within quota"}
	}
}

// ConfigurationHealthCheck fails when any required value is empty.
func ConfigurationHealthCheck(configs map[string]string) HealthCheck {
	return func() CheckResult {
		start := time.Now()
		missing := []string{}
		for key, value := range configs {
			if value == "" {
				missing = append(missing, key)
			}
		}
		sort.Strings(missing)

		if len(missing) > 0 {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: fmt.Sprintf("Missing required configuration: %v", missing),
				Latency: time.Since(start).String(),
			}
		}
		return CheckResult{
			Status:  StatusHealthy,
			Message: "All required configuration present",
			Latency: time.Since(start).String(),
		}
	}
}
