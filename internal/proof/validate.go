package proof

// Score floors below which a proof is escalated to manual review.
// Boundary values do not trigger: the comparison is strictly less-than.
const (
	FaceMatchThreshold  = 0.80
	ConfidenceThreshold = 0.85
)

// Validate applies the acceptance policy to a proof payload.
// This is pure domain logic - no I/O, no side effects.
//
// Rule priority (hard rejects first, fail-closed):
//  1. Liveness - a non-live capture can never be accepted
//  2. Injection detection (selfie and document feeds)
//  3. Document expiry
//  4. PAD reject verdict
//
// Only when no hard reject fires are soft signals collected; any of them
// escalates to manual review instead of acceptance.
func Validate(p Result) Decision {
	if reasons := hardRejects(p); len(reasons) > 0 {
		return Decision{Outcome: OutcomeReject, Reasons: reasons}
	}
	if reasons := warnings(p); len(reasons) > 0 {
		return Decision{Outcome: OutcomeManualReview, Reasons: reasons}
	}
	return Decision{Outcome: OutcomeAccept}
}

func hardRejects(p Result) []string {
	var reasons []string
	if !p.IsLive {
		reasons = append(reasons, "liveness check failed")
	}
	if p.SelfieInjectionDetection == CheckFail || p.SelfieInjectionDetection == CheckReject {
		reasons = append(reasons, "selfie injection detected")
	}
	if p.DocumentInjectionDetection == CheckFail || p.DocumentInjectionDetection == CheckReject {
		reasons = append(reasons, "document injection detected")
	}
	if p.DocumentExpired {
		reasons = append(reasons, "identity document expired")
	}
	if p.PAD == PADReject {
		reasons = append(reasons, "presentation attack detected")
	}
	return reasons
}

func warnings(p Result) []string {
	var reasons []string
	if p.PAD == PADManualReview {
		reasons = append(reasons, "presentation attack check requires manual review")
	}
	if p.BarcodeSecurityCheck == CheckFail {
		reasons = append(reasons, "document barcode security check failed")
	}
	if p.MRZOCRMismatch == CheckFail {
		reasons = append(reasons, "MRZ does not match OCR data")
	}
	if p.FaceMatchScore < FaceMatchThreshold {
		reasons = append(reasons, "face match score below threshold")
	}
	if p.ConfidenceScore < ConfidenceThreshold {
		reasons = append(reasons, "low confidence score")
	}
	return reasons
}
