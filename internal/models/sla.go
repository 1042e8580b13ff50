package models

import "time"

// SlaDefinition is the policy matched by ticket priority at creation time.
type SlaDefinition struct {
	ID                     string
	TenantID               string
	ProjectID              string
	Priority               TicketPriority
	ResponseTimeMinutes    int
	ResolutionTimeMinutes  int
	BusinessHoursOnly      bool
	BusinessHoursStart     string // "HH:MM", UTC unless configured otherwise
	BusinessHoursEnd       string
	BusinessDays           []time.Weekday
	IsActive               bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

type SlaViolationType string

const (
	ViolationResponseTime   SlaViolationType = "response_time"
	ViolationResolutionTime SlaViolationType = "resolution_time"
)

type SlaViolation struct {
	ID               string
	TicketID         string
	SlaID            string
	ViolationType    SlaViolationType
	ExpectedTime     time.Time
	ActualTime       *time.Time
	ViolationMinutes *int
	IsResolved       bool
	CreatedAt        time.Time
}

// SlaDeadline is one half (response or resolution) of GetSlaStatus's result.
type SlaDeadline struct {
	Expected  time.Time
	Actual    *time.Time
	Violation bool
}

type SlaStatus struct {
	Sla        *SlaDefinition
	Response   SlaDeadline
	Resolution SlaDeadline
}
