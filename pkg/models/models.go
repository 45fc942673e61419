package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization is a provisioned client tenant.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// MembershipRole enumerates membership roles. Provisioning only produces owners.
type MembershipRole string

const (
	RoleOwner MembershipRole = "owner"
)

// Membership links a user to an organization with a role.
type Membership struct {
	ID        uuid.UUID      `json:"id"`
	OrgID     uuid.UUID      `json:"org_id"`
	UserID    uuid.UUID      `json:"user_id"`
	Role      MembershipRole `json:"role"`
	CreatedAt time.Time      `json:"created_at"`
}

// Subscription holds the billing terms snapshotted at provisioning time.
// IncludedMinutes and OverageRateCents are copied from the plan constants
// when the row is created and never recomputed afterwards.
type Subscription struct {
	ID               uuid.UUID `json:"id"`
	OrgID            uuid.UUID `json:"org_id"`
	Plan             string    `json:"plan"`
	IncludedMinutes  int       `json:"included_minutes"`
	OverageRateCents int64     `json:"overage_rate_cents"`
	MinTermMonths    int       `json:"min_term_months"`
	CreatedAt        time.Time `json:"created_at"`
}

// AgentStatus enumerates agent states.
type AgentStatus string

const (
	AgentStatusActive   AgentStatus = "active"
	AgentStatusInactive AgentStatus = "inactive"
)

// Agent is a conversational agent registered with the external provider.
// ExternalID is globally unique; OrgID is nil until the agent is assigned.
type Agent struct {
	ID         uuid.UUID   `json:"id"`
	ExternalID string      `json:"external_id"`
	Name       string      `json:"name"`
	OrgID      *uuid.UUID  `json:"org_id,omitempty"`
	Status     AgentStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
}

// User is an identity record created during provisioning.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Evaluation is the tri-state outcome of a call.
type Evaluation string

const (
	EvaluationSuccessful Evaluation = "successful"
	EvaluationFailed     Evaluation = "failed"
	EvaluationPending    Evaluation = "pending"
)

// CallRecord is one completed conversation as reported by the provider.
type CallRecord struct {
	ID           string     `json:"id"`
	AgentName    string     `json:"agent_name"`
	StartUnix    int64      `json:"date"`
	DurationSecs int        `json:"duration"`
	MessageCount int        `json:"messages"`
	Evaluation   Evaluation `json:"evaluation"`
}
