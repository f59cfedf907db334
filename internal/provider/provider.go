// Package provider defines the contract with the external biometric
// identity-verification provider and its HTTP adapter.
//
// The provider's status API is eventually consistent: an operation created
// moments ago may 404 on a status check. Adapters must map that to a
// pending state or a transient error, never to an authoritative failure.
package provider

import (
	"context"
	"time"

	"github.com/google/uuid"

	"verigate/internal/proof"
)

// Purpose is the closed set of operation purposes. The registry and the
// provider consume it uniformly.
type Purpose string

const (
	PurposeEnrollment Purpose = "enrollment"
	PurposeLogin      Purpose = "login"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	return p == PurposeEnrollment || p == PurposeLogin
}

// State is the provider-reported operation state.
type State int

const (
	StatePending State = iota
	StateCompleted
	StateFailed
	StateExpired
)

// Terminal reports whether the state is absorbing.
func (s State) Terminal() bool { return s != StatePending }

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateExpired:
		return "expired"
	}
	return "unknown"
}

// Result is the provider-reported operation result.
type Result int

const (
	ResultNone Result = iota
	ResultSuccess
	ResultFailure
)

func (r Result) String() string {
	switch r {
	case ResultNone:
		return "none"
	case ResultSuccess:
		return "success"
	case ResultFailure:
		return "failure"
	}
	return "unknown"
}

// Policy tunes the verification the provider performs for one operation.
type Policy struct {
	RequireLiveness      bool `json:"requireLiveness"`
	RequireDocumentCheck bool `json:"requireDocumentCheck"`
}

// DefaultPolicy is used when a coordinator has no special requirements.
func DefaultPolicy() Policy {
	return Policy{RequireLiveness: true, RequireDocumentCheck: true}
}

// Operation is what the provider returns on creation. OneTimeSecret is
// shown to the user exactly once (QR payload); it is never persisted in
// plaintext.
type Operation struct {
	OperationID     string
	OneTimeSecret   string
	VerificationURL string
	ExpiresAt       time.Time
}

// Status is a point-in-time observation of an operation.
type Status struct {
	State       State
	Result      Result
	CompletedAt *time.Time
}

// Succeeded reports an explicit, conclusive success signal. A Completed
// state without a success result is not enough.
func (s Status) Succeeded() bool {
	return s.State == StateCompleted && s.Result == ResultSuccess
}

// Failed reports an explicit failure signal from either field.
func (s Status) Failed() bool {
	return s.State == StateFailed || s.Result == ResultFailure
}

//go:generate mockgen -source=provider.go -destination=mocks/mocks.go -package=mocks

// Client is the external provider contract. All methods may fail with a
// transient error (network, sync lag - retryable) or a hard error
// (explicit rejection - not retryable); use IsTransient / IsHard.
type Client interface {
	CreateOperation(ctx context.Context, userID uuid.UUID, purpose Purpose, policy Policy) (*Operation, error)
	CheckStatus(ctx context.Context, operationID string) (Status, error)
	GetProof(ctx context.Context, operationID string) (*proof.Result, error)
}
