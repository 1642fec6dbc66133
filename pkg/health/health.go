package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"mentorchat/backend/pkg/logger"

	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Status represents the health status of a component
type Status string

const (
	// StatusUp indicates a component is working correctly
	StatusUp Status = "up"
	// StatusDown indicates a component is not working
	StatusDown Status = "down"
	// StatusDegraded indicates a component is working but with reduced functionality
	StatusDegraded Status = "degraded"
)

// Component represents a system component that can be health-checked
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Check represents a health check function
type Check func() (Status, string, error)

// Checker manages health checks for the system
type Checker struct {
	checks      map[string]Check
	components  map[string]*Component
	critical    map[string]bool
	checkPeriod time.Duration
	grpc        *grpchealth.Server
	stop        chan struct{}
	stopOnce    sync.Once
	mutex       sync.RWMutex
	log         *logger.Logger
}

// NewChecker creates a new health checker. A critical component that is
// down makes the whole system unhealthy.
func NewChecker(log *logger.Logger, checkPeriod time.Duration, critical ...string) *Checker {
	if checkPeriod <= 0 {
		checkPeriod = 30 * time.Second
	}
	checker := &Checker{
		checks:      make(map[string]Check),
		components:  make(map[string]*Component),
		critical:    make(map[string]bool, len(critical)),
		checkPeriod: checkPeriod,
		stop:        make(chan struct{}),
		log:         log.WithComponent("health"),
	}
	for _, name := range critical {
		checker.critical[name] = true
	}

	// Register built-in checks
	checker.RegisterCheck("self", func() (Status, string, error) {
		return StatusUp, "Health checker is running", nil
	})

	return checker
}

// RegisterCheck registers a new health check
func (c *Checker) RegisterCheck(name string, check Check) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.checks[name] = check
	c.components[name] = &Component{
		Name:        name,
		Status:      StatusDown,
		Description: "Not checked yet",
		LastChecked: time.Time{},
	}
}

// RegisterDatabaseCheck registers a critical database health check
func (c *Checker) RegisterDatabaseCheck(checkFunc func() error) {
	c.mutex.Lock()
	c.critical["database"] = true
	c.mutex.Unlock()

	c.RegisterCheck("database", func() (Status, string, error) {
		if err := checkFunc(); err != nil {
			return StatusDown, "Database connection failed", err
		}
		return StatusUp, "Database connection is established", nil
	})
}

// RunChecks executes all registered health checks
func (c *Checker) RunChecks() {
	c.mutex.Lock()
	for name, check := range c.checks {
		status, description, err := check()

		component := c.components[name]
		component.Status = status
		component.Description = description
		component.LastChecked = time.Now()

		if err != nil {
			component.Error = err.Error()
			c.log.Error("health check failed",
				"component", name,
				"status", string(status),
				"error", err.Error(),
			)
		} else {
			component.Error = ""
		}
	}
	healthy := c.healthyLocked()
	hs := c.grpc
	c.mutex.Unlock()

	if hs != nil {
		hs.SetServingStatus("", servingStatus(healthy))
	}
}

// Start begins periodic health checks
func (c *Checker) Start() {
	go func() {
		c.RunChecks()

		ticker := time.NewTicker(c.checkPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.RunChecks()
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop ends periodic checks
func (c *Checker) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// GetStatus returns the current health status
func (c *Checker) GetStatus() map[string]*Component {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	result := make(map[string]*Component, len(c.components))
	for k, v := range c.components {
		componentCopy := *v
		result[k] = &componentCopy
	}

	return result
}

// IsSystemHealthy returns true if all critical components are up
func (c *Checker) IsSystemHealthy() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.healthyLocked()
}

func (c *Checker) healthyLocked() bool {
	for _, component := range c.components {
		if component.Status == StatusDown && c.critical[component.Name] {
			return false
		}
	}
	return true
}

// HTTPHandler returns an HTTP handler for health checks
func (c *Checker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.GetStatus()
		healthy := c.IsSystemHealthy()

		w.Header().Set("Content-Type", "application/json")

		overall := "ok"
		if !healthy {
			overall = "unavailable"
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		response := map[string]interface{}{
			"status":     overall,
			"timestamp":  time.Now(),
			"components": status,
		}

		if err := json.NewEncoder(w).Encode(response); err != nil {
			c.log.Error("failed to encode health check response", "error", err.Error())
		}
	}
}

func servingStatus(healthy bool) healthpb.HealthCheckResponse_ServingStatus {
	if healthy {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
