// Package audit captures key identity-verification actions as events so
// security monitoring and operational tooling can consume them downstream.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose. This
// enables different retention policies and routing downstream.
type EventCategory string

const (
	// CategorySecurity covers events relevant to security monitoring and
	// forensics: rejected proofs, unverified completions, token misuse.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity useful for debugging:
	// initiations, successful completions, token refreshes.
	CategoryOperations EventCategory = "operations"
)

// Severity levels for security events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is emitted from domain logic. Keep it transport-agnostic so
// publishers can fan out to Kafka, stores, or test buffers.
type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	Action      Action    `json:"action"`
	UserID      uuid.UUID `json:"user_id,omitempty"`
	OperationID string    `json:"operation_id,omitempty"`
	Decision    string    `json:"decision,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	IP          string    `json:"ip,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	Severity    Severity  `json:"severity,omitempty"`
}

// Action names an auditable domain action.
type Action string

const (
	EventEnrollmentInitiated Action = "enrollment_initiated"
	EventEnrollmentCompleted Action = "enrollment_completed"
	EventEnrollmentFailed    Action = "enrollment_failed"
	EventLoginInitiated      Action = "login_initiated"
	EventLoginVerified       Action = "login_verified"
	EventLoginRejected       Action = "login_rejected"
	EventLoginManualReview   Action = "login_manual_review"
	// EventLoginUnverifiedCompletion marks the sync-lag trust path: the
	// caller asserted completion while the provider still reported pending.
	EventLoginUnverifiedCompletion Action = "login_unverified_completion"
	EventTokenRefreshed            Action = "token_refreshed"
)

// eventCategories maps each action to its category. Unknown actions
// default to operations.
var eventCategories = map[Action]EventCategory{
	EventEnrollmentInitiated:       CategoryOperations,
	EventEnrollmentCompleted:       CategoryOperations,
	EventEnrollmentFailed:          CategorySecurity,
	EventLoginInitiated:            CategoryOperations,
	EventLoginVerified:             CategoryOperations,
	EventLoginRejected:             CategorySecurity,
	EventLoginManualReview:         CategorySecurity,
	EventLoginUnverifiedCompletion: CategorySecurity,
	EventTokenRefreshed:            CategoryOperations,
}

// Category returns the EventCategory for this action.
func (a Action) Category() EventCategory {
	if cat, ok := eventCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}
