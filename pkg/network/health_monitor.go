package network

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// HealthStatus represents the health of a probed dependency
type HealthStatus int32

const (
	// HealthUnknown indicates no probe has completed yet
	HealthUnknown HealthStatus = iota
	// HealthHealthy indicates the last probe succeeded
	HealthHealthy
	// HealthDegraded indicates a few consecutive failed probes
	HealthDegraded
	// HealthUnhealthy indicates the dependency keeps failing
	HealthUnhealthy
)

// String returns string representation of health status
func (s HealthStatus) String() string {
	switch s {
	case HealthHealthy:
		return "healthy"
	case HealthDegraded:
		return "degraded"
	case HealthUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// ProbeFunc checks a single dependency.
type ProbeFunc func(ctx context.Context) error

// HealthMonitor probes a dependency on an interval and derives its status from
// the number of consecutive failures.
type HealthMonitor struct {
	name     string
	probe    ProbeFunc
	interval time.Duration
	timeout  time.Duration
	clock    clockwork.Clock

	degradedThreshold  int
	unhealthyThreshold int

	mu                sync.RWMutex
	status            HealthStatus
	consecutiveErrors int
	lastError         error
	lastCheck         time.Time
	onStatusChange    func(old, new HealthStatus)
}

// NewHealthMonitor creates a monitor that is degraded after 3 and unhealthy
// after 5 consecutive failed probes.
func NewHealthMonitor(name string, probe ProbeFunc, interval time.Duration, clock clockwork.Clock) *HealthMonitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HealthMonitor{
		name:               name,
		probe:              probe,
		interval:           interval,
		timeout:            2 * time.Second,
		clock:              clock,
		degradedThreshold:  3,
		unhealthyThreshold: 5,
	}
}

// SetStatusChangeHandler sets a callback invoked on status transitions.
func (hm *HealthMonitor) SetStatusChangeHandler(handler func(old, new HealthStatus)) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.onStatusChange = handler
}

// Run probes immediately and then on every tick until ctx is done.
func (hm *HealthMonitor) Run(ctx context.Context) error {
	hm.Check(ctx)

	ticker := hm.clock.NewTicker(hm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			hm.Check(ctx)
		}
	}
}

// Check runs one probe and updates the status.
func (hm *HealthMonitor) Check(ctx context.Context) HealthStatus {
	probeCtx, cancel := context.WithTimeout(ctx, hm.timeout)
	defer cancel()
	err := hm.probe(probeCtx)

	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.lastCheck = hm.clock.Now()
	hm.lastError = err
	if err == nil {
		hm.consecutiveErrors = 0
	} else {
		hm.consecutiveErrors++
	}

	next := HealthHealthy
	switch {
	case hm.consecutiveErrors >= hm.unhealthyThreshold:
		next = HealthUnhealthy
	case hm.consecutiveErrors >= hm.degradedThreshold:
		next = HealthDegraded
	}

	if prev := hm.status; prev != next {
		hm.status = next
		slog.Warn("Dependency health changed",
			"component", "health_monitor",
			"dependency", hm.name,
			"from", prev.String(),
			"to", next.String(),
			"error", err)
		if hm.onStatusChange != nil {
			hm.onStatusChange(prev, next)
		}
	}
	return next
}

// Status returns the current status.
func (hm *HealthMonitor) Status() HealthStatus {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	return hm.status
}

// LastError returns the error of the most recent probe, if any.
func (hm *HealthMonitor) LastError() error {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	return hm.lastError
}

// Name identifies the probed dependency.
func (hm *HealthMonitor) Name() string {
	return hm.name
}
