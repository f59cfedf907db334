// Package proof evaluates biometric verification proofs against independent
// trust and fraud signals. The validator is pure domain logic so the accept
// policy stays centralized and testable.
package proof

// CheckResult is the tri-state outcome of an individual provider check.
type CheckResult string

const (
	CheckPass   CheckResult = "pass"
	CheckFail   CheckResult = "fail"
	CheckReject CheckResult = "reject"
)

// PADResult is the presentation-attack-detection verdict.
type PADResult string

const (
	PADPass         PADResult = "pass"
	PADReject       PADResult = "reject"
	PADManualReview PADResult = "manual_review"
)

// Result is the structured proof payload returned by the provider for a
// completed login verification.
type Result struct {
	IsLive                     bool
	SelfieInjectionDetection   CheckResult
	DocumentInjectionDetection CheckResult
	DocumentExpired            bool
	BarcodeSecurityCheck       CheckResult
	MRZOCRMismatch             CheckResult
	PAD                        PADResult
	FaceMatchScore             float64 // [0,1]
	ConfidenceScore            float64 // [0,1]
}

// Outcome is the final verdict over a proof.
type Outcome string

const (
	OutcomeAccept       Outcome = "accept"
	OutcomeReject       Outcome = "reject"
	OutcomeManualReview Outcome = "manual_review"
)

// Decision carries the verdict and the ordered list of triggered reasons:
// hard-reject reasons when rejecting, warning reasons when escalating to
// manual review, empty on accept.
type Decision struct {
	Outcome Outcome
	Reasons []string
}

// Accepted reports whether the proof cleared every check.
func (d Decision) Accepted() bool { return d.Outcome == OutcomeAccept }
