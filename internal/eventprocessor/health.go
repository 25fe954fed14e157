// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package eventprocessor

import (
	"context"
	"sort"
	"sync"
	"time"
)

// HealthStatus is the aggregated state reported by a HealthChecker.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth is the result of one component check.
type ComponentHealth struct {
	Name      string                 `json:"name"`
	Healthy   bool                   `json:"healthy"`
	Degraded  bool                   `json:"degraded,omitempty"`
	Error     string                 `json:"error,omitempty"`
	LastCheck time.Time              `json:"last_check"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HealthCheckable is implemented by components that can report health.
type HealthCheckable interface {
	HealthCheck(ctx context.Context) ComponentHealth
}

// CheckFunc adapts a plain error-returning check such as a database ping.
type CheckFunc func(ctx context.Context) error

// HealthCheck implements HealthCheckable.
func (f CheckFunc) HealthCheck(ctx context.Context) ComponentHealth {
	if err := f(ctx); err != nil {
		return ComponentHealth{Error: err.Error()}
	}
	return ComponentHealth{Healthy: true}
}

// OverallHealth aggregates all registered components.
type OverallHealth struct {
	Healthy    bool              `json:"healthy"`
	Status     HealthStatus      `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components []ComponentHealth `json:"components"`
}

// HealthChecker runs the registered checks concurrently, each bounded by
// timeout.
type HealthChecker struct {
	timeout    time.Duration
	mu         sync.RWMutex
	components map[string]HealthCheckable
}

// NewHealthChecker creates a checker; timeout <= 0 means 5s.
func NewHealthChecker(timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{
		timeout:    timeout,
		components: make(map[string]HealthCheckable),
	}
}

// Register adds or replaces a component.
func (h *HealthChecker) Register(name string, component HealthCheckable) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.components[name] = component
}

// CheckAll checks every component. A component that does not answer in
// time counts as unhealthy. Components are sorted by name.
func (h *HealthChecker) CheckAll(ctx context.Context) OverallHealth {
	h.mu.RLock()
	snapshot := make(map[string]HealthCheckable, len(h.components))
	for name, comp := range h.components {
		snapshot[name] = comp
	}
	h.mu.RUnlock()

	results := make([]ComponentHealth, 0, len(snapshot))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, comp := range snapshot {
		wg.Add(1)
		go func(name string, comp HealthCheckable) {
			defer wg.Done()
			result := h.check(ctx, name, comp)
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}(name, comp)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	overall := OverallHealth{
		Healthy:    true,
		Status:     HealthStatusHealthy,
		Timestamp:  time.Now().UTC(),
		Components: results,
	}
	for _, r := range results {
		switch {
		case !r.Healthy:
			overall.Healthy = false
			overall.Status = HealthStatusUnhealthy
		case r.Degraded && overall.Status == HealthStatusHealthy:
			overall.Status = HealthStatusDegraded
		}
	}
	return overall
}

func (h *HealthChecker) check(ctx context.Context, name string, comp HealthCheckable) ComponentHealth {
	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	resultCh := make(chan ComponentHealth, 1)
	go func() {
		resultCh <- comp.HealthCheck(checkCtx)
	}()

	var result ComponentHealth
	select {
	case result = <-resultCh:
	case <-checkCtx.Done():
		result = ComponentHealth{Error: "health check timeout"}
	}
	result.Name = name
	result.LastCheck = time.Now().UTC()
	return result
}

// HealthCheck implements HealthCheckable for the broker. An open publish
// circuit breaker degrades the broker without failing it.
func (b *Broker) HealthCheck(ctx context.Context) ComponentHealth {
	if !b.Healthy(ctx) {
		return ComponentHealth{Error: "NATS connection or stream unavailable"}
	}

	result := ComponentHealth{
		Healthy: true,
		Details: map[string]interface{}{"url": b.url},
	}
	if b.publisher != nil && b.publisher.circuitBreaker != nil {
		state := CircuitBreakerState(b.publisher.circuitBreaker)
		result.Details["publisher_circuit"] = state
		result.Degraded = state != "closed"
	}
	if b.stream != nil {
		if info, err := b.stream.GetStreamInfo(ctx); err == nil {
			result.Details["stream_messages"] = info.State.Msgs
		}
	}
	return result
}
