package models

import "time"

type RoutingActionType string

const (
	ActionAssignToAgent RoutingActionType = "assign_to_agent"
	ActionAssignToGroup RoutingActionType = "assign_to_group"
	ActionSetPriority   RoutingActionType = "set_priority"
	ActionAddTag        RoutingActionType = "add_tag"
	ActionSetCategory   RoutingActionType = "set_category"
)

// RoutingConditions is the typed sum of five condition groups. Groups AND
// together; within a group any element matching is sufficient (OR). A zero
// slice means the group imposes no constraint (always satisfied).
type RoutingConditions struct {
	Keywords   []string
	IssueTypes []string
	Tags       []string
	Context    []string
	Priority   []TicketPriority
}

// RoutingRule is parsed once at load time — never re-parsed from a JSON
// blob per evaluation, per the typed-conditions redesign.
type RoutingRule struct {
	ID         string
	TenantID   string
	ProjectID  string
	Name       string
	Priority   int // evaluation order, higher first
	IsActive   bool
	Conditions RoutingConditions
	ActionType RoutingActionType
	ActionValue string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RoutingLog is appended whenever a rule matches and its action executes.
type RoutingLog struct {
	ID                string
	TicketID          string
	RuleID            string
	RuleName          string
	ActionTaken       string
	MatchedConditions string
	CreatedAt         time.Time
}
