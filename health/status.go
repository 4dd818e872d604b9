// Package health tracks the health of the pipeline's components and
// aggregates them into a single service status for the gateway.
package health

import (
	"regexp"
	"time"
)

// Message sanitization patterns. Status messages commonly embed repository
// URLs and identifiers from error chains; those never belong in a health
// endpoint response.
var (
	urlRegex        = regexp.MustCompile(`(https?|wss?)://[^\s]+`)
	pathRegex       = regexp.MustCompile(`/[a-zA-Z0-9/_.-]{2,}`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status represents the health state of a component or of the whole service.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // "healthy", "degraded", "unhealthy"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics carries pipeline activity counters alongside a status.
type Metrics struct {
	Uptime        time.Duration `json:"uptime"`
	RunsCompleted int64         `json:"runs_completed"`
	RunsFailed    int64         `json:"runs_failed"`
	CachedRenders int           `json:"cached_renders,omitempty"`
	LastActivity  time.Time     `json:"last_activity,omitempty"`
}

// IsHealthy returns true if the status is healthy.
func (s Status) IsHealthy() bool { return s.Status == "healthy" }

// IsDegraded returns true if the status is degraded.
func (s Status) IsDegraded() bool { return s.Status == "degraded" }

// IsUnhealthy returns true if the status is unhealthy.
func (s Status) IsUnhealthy() bool { return s.Status == "unhealthy" }

// WithMetrics returns a copy of the status with metrics attached.
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// NewHealthy creates a healthy status.
func NewHealthy(component, message string) Status {
	return newStatus(component, "healthy", true, message)
}

// NewUnhealthy creates an unhealthy status. The message is sanitized.
func NewUnhealthy(component, message string) Status {
	return newStatus(component, "unhealthy", false, sanitizeMessage(message))
}

// NewDegraded creates a degraded status. The message is sanitized.
func NewDegraded(component, message string) Status {
	return newStatus(component, "degraded", false, sanitizeMessage(message))
}

func newStatus(component, status string, healthy bool, message string) Status {
	return Status{
		Component: component,
		Healthy:   healthy,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Aggregate combines sub-statuses: any unhealthy makes the aggregate
// unhealthy, otherwise any degraded makes it degraded.
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(component, "no sub-components to aggregate")
	}

	agg := NewHealthy(component, "all sub-components are healthy")
	for _, sub := range subStatuses {
		switch {
		case sub.IsUnhealthy():
			agg = NewUnhealthy(component, "one or more sub-components are unhealthy")
		case sub.IsDegraded() && !agg.IsUnhealthy():
			agg = NewDegraded(component, "one or more sub-components are degraded")
		}
	}

	agg.SubStatuses = make([]Status, len(subStatuses))
	copy(agg.SubStatuses, subStatuses)
	return agg
}

// sanitizeMessage strips URLs, filesystem paths, and credential-looking
// fragments from a message before it is exposed.
func sanitizeMessage(msg string) string {
	if msg == "" {
		return ""
	}
	msg = urlRegex.ReplaceAllString(msg, "[URL]")
	msg = pathRegex.ReplaceAllString(msg, "[PATH]")
	msg = credentialRegex.ReplaceAllString(msg, "[REDACTED]")
	return msg
}
