// Package enrollment manages the one-time biometric enrollment a user
// performs before they can log in. Enrollment creates a provider
// operation, hands the user a verification URL plus one-time secret for
// QR rendering, and tracks the operation to a terminal state.
package enrollment

import (
	"time"

	"github.com/google/uuid"
)

// Status is the local enrollment lifecycle state.
type Status string

const (
	StatusInitiated Status = "initiated"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

// Terminal reports whether the status is absorbing.
func (s Status) Terminal() bool { return s != StatusInitiated }

// Progress maps the status onto the coarse progress scale clients render.
func (s Status) Progress() int {
	switch s {
	case StatusCompleted:
		return 100
	case StatusInitiated:
		return 50
	default:
		return 0
	}
}

// Record tracks one enrollment attempt. The provider's one-time secret is
// stored only as a hash; the plaintext is returned once at initiation.
type Record struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	OperationID string
	Status      Status
	SecretHash  string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	CompletedAt *time.Time
}

// View is the client-facing shape of an enrollment record.
type View struct {
	EnrollmentID string     `json:"enrollmentId"`
	Status       Status     `json:"status"`
	Progress     int        `json:"progress"`
	Completed    bool       `json:"completed"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

func (r Record) View() View {
	return View{
		EnrollmentID: r.ID.String(),
		Status:       r.Status,
		Progress:     r.Status.Progress(),
		Completed:    r.Status == StatusCompleted,
		ExpiresAt:    r.ExpiresAt,
		CompletedAt:  r.CompletedAt,
	}
}

// InitiateResult is returned from Service.Initiate. QRCode carries the
// provider's one-time secret and is only populated for a fresh initiation.
type InitiateResult struct {
	AlreadyEnrolled bool
	Enrollment      View
	EnrollmentURL   string
	QRCode          string
}
