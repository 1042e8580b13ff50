package models

import "time"

// Tenant and Project are the teacher's multi-tenant scoping units; every
// entity in this module is additionally scoped by (tenant_id, project_id).
// A single-tenant deployment is simply the case where one Tenant/Project
// pair is ever used.
type Tenant struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Project struct {
	ID             string
	TenantID       string
	Name           string
	RetentionDays  int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Agent is the teacher's term for an admin/operator user — the `admin_id`
// / `by` actor in spec operations.
type Agent struct {
	ID        string
	TenantID  string
	Email     string
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Customer is the requester side of a ticket — a `user_id` in spec terms.
type Customer struct {
	ID        string
	TenantID  string
	ProjectID string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
