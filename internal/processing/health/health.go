// Package health provides service health monitoring and status reporting.
package health

import "time"

// SystemStatus represents the overall health state of the service or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// worse returns the more severe of two statuses.
func worse(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// CycleSummary describes the last finished cycle.
type CycleSummary struct {
	ID              string        `json:"id"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration_ns"`
	Fetched         int           `json:"fetched"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	PersistFailures int           `json:"persist_failures"`
	Complete        bool          `json:"complete"`
	Cost            float64       `json:"cost_usd"`
}

// ComponentHealth is the result of one dependency check.
type ComponentHealth struct {
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// HealthReport contains the full service health report.
type HealthReport struct {
	SystemStatus         SystemStatus               `json:"system_status"`
	LastCycle            *CycleSummary              `json:"last_cycle,omitempty"`
	LastSuccess          time.Time                  `json:"last_success,omitzero"`
	CyclesRun            int                        `json:"cycles_run"`
	ConsecutiveStoreErrs int                        `json:"consecutive_store_errors"`
	TotalCost            float64                    `json:"total_cost_usd"`
	Components           map[string]ComponentHealth `json:"components"`
}
