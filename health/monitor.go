package health

import (
	"sync"
	"time"
)

// Monitor tracks per-component health statuses. All methods are safe for
// concurrent use.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

// NewMonitor creates an empty health monitor.
func NewMonitor() *Monitor {
	return &Monitor{statuses: make(map[string]Status)}
}

// Update records the status for a named component.
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses[name] = status
}

// UpdateHealthy marks a component healthy.
func (m *Monitor) UpdateHealthy(name, message string) {
	m.Update(name, NewHealthy(name, message))
}

// UpdateUnhealthy marks a component unhealthy.
func (m *Monitor) UpdateUnhealthy(name, message string) {
	m.Update(name, NewUnhealthy(name, message))
}

// UpdateDegraded marks a component degraded.
func (m *Monitor) UpdateDegraded(name, message string) {
	m.Update(name, NewDegraded(name, message))
}

// Get retrieves the status for a named component.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, exists := m.statuses[name]
	return status, exists
}

// Remove drops a component from monitoring.
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, name)
}

// AggregateHealth aggregates all tracked components under a system name.
func (m *Monitor) AggregateHealth(systemName string) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subStatuses := make([]Status, 0, len(m.statuses))
	for _, status := range m.statuses {
		subStatuses = append(subStatuses, status)
	}
	return Aggregate(systemName, subStatuses)
}
