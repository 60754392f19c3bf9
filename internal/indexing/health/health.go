// Package health provides oracle health monitoring and status reporting.
package health

import "time"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// worse returns the more severe of a and b.
func worse(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// ConsumerHealth describes the consumption loop.
type ConsumerHealth struct {
	Status    SystemStatus `json:"status"`
	Phase     string       `json:"phase"`
	Activity  string       `json:"activity"`
	Marker    string       `json:"marker"`
	HighWater string       `json:"high_water"`
	NextBlock uint64       `json:"next_block"`
	Head      uint64       `json:"head,omitempty"`
	BlockLag  uint64       `json:"block_lag"`
	Processed uint64       `json:"processed"`
	Skipped   uint64       `json:"skipped"`
	LastPoll  *time.Time   `json:"last_poll,omitempty"`
	PollAge   string       `json:"poll_age,omitempty"`
	LastError string       `json:"last_error,omitempty"`

	Transitions []PhaseChange `json:"transitions,omitempty"`
}

// PhaseChange is one recorded phase transition of the consumer.
type PhaseChange struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// LeaseHealth describes the single-consumer lease, when one is configured.
type LeaseHealth struct {
	Status SystemStatus `json:"status"`
	Held   bool         `json:"held"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus   `json:"system_status"`
	Consumer     ConsumerHealth `json:"consumer"`
	Lease        *LeaseHealth   `json:"lease,omitempty"`
}
