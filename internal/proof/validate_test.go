package proof

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// passingProof returns a proof that clears every check.
func passingProof() Result {
	return Result{
		IsLive:                     true,
		SelfieInjectionDetection:   CheckPass,
		DocumentInjectionDetection: CheckPass,
		DocumentExpired:            false,
		BarcodeSecurityCheck:       CheckPass,
		MRZOCRMismatch:             CheckPass,
		PAD:                        PADPass,
		FaceMatchScore:             0.95,
		ConfidenceScore:            0.99,
	}
}

func TestValidateAccept(t *testing.T) {
	decision := Validate(passingProof())
	assert.Equal(t, OutcomeAccept, decision.Outcome)
	assert.Empty(t, decision.Reasons)
	assert.True(t, decision.Accepted())
}

func TestValidateHardRejects(t *testing.T) {
	t.Run("non-live capture always rejects", func(t *testing.T) {
		p := passingProof()
		p.IsLive = false
		decision := Validate(p)
		assert.Equal(t, OutcomeReject, decision.Outcome)
		assert.Contains(t, decision.Reasons, "liveness check failed")
	})

	t.Run("non-live rejects even when all soft signals are bad", func(t *testing.T) {
		p := Result{
			IsLive:                     false,
			SelfieInjectionDetection:   CheckPass,
			DocumentInjectionDetection: CheckPass,
			BarcodeSecurityCheck:       CheckFail,
			MRZOCRMismatch:             CheckFail,
			PAD:                        PADManualReview,
			FaceMatchScore:             0.10,
			ConfidenceScore:            0.10,
		}
		decision := Validate(p)
		assert.Equal(t, OutcomeReject, decision.Outcome)
		// Warnings are not collected once a hard reject fired.
		assert.Equal(t, []string{"liveness check failed"}, decision.Reasons)
	})

	t.Run("selfie injection fail and reject both reject", func(t *testing.T) {
		for _, result := range []CheckResult{CheckFail, CheckReject} {
			p := passingProof()
			p.SelfieInjectionDetection = result
			assert.Equal(t, OutcomeReject, Validate(p).Outcome, "selfie injection %s", result)
		}
	})

	t.Run("document injection fail and reject both reject", func(t *testing.T) {
		for _, result := range []CheckResult{CheckFail, CheckReject} {
			p := passingProof()
			p.DocumentInjectionDetection = result
			assert.Equal(t, OutcomeReject, Validate(p).Outcome, "document injection %s", result)
		}
	})

	t.Run("expired document rejects", func(t *testing.T) {
		p := passingProof()
		p.DocumentExpired = true
		decision := Validate(p)
		assert.Equal(t, OutcomeReject, decision.Outcome)
		assert.Contains(t, decision.Reasons, "identity document expired")
	})

	t.Run("pad reject rejects", func(t *testing.T) {
		p := passingProof()
		p.PAD = PADReject
		assert.Equal(t, OutcomeReject, Validate(p).Outcome)
	})

	t.Run("multiple hard rejects report every triggered condition", func(t *testing.T) {
		p := passingProof()
		p.IsLive = false
		p.DocumentExpired = true
		p.PAD = PADReject
		decision := Validate(p)
		require.Equal(t, OutcomeReject, decision.Outcome)
		assert.Equal(t, []string{
			"liveness check failed",
			"identity document expired",
			"presentation attack detected",
		}, decision.Reasons)
	})
}

func TestValidateWarnings(t *testing.T) {
	t.Run("pad manual review escalates", func(t *testing.T) {
		p := passingProof()
		p.PAD = PADManualReview
		decision := Validate(p)
		assert.Equal(t, OutcomeManualReview, decision.Outcome)
		assert.Contains(t, decision.Reasons, "presentation attack check requires manual review")
	})

	t.Run("barcode failure escalates", func(t *testing.T) {
		p := passingProof()
		p.BarcodeSecurityCheck = CheckFail
		assert.Equal(t, OutcomeManualReview, Validate(p).Outcome)
	})

	t.Run("mrz ocr mismatch escalates", func(t *testing.T) {
		p := passingProof()
		p.MRZOCRMismatch = CheckFail
		assert.Equal(t, OutcomeManualReview, Validate(p).Outcome)
	})

	t.Run("low confidence escalates with reason", func(t *testing.T) {
		p := passingProof()
		p.ConfidenceScore = 0.70
		p.FaceMatchScore = 0.90
		decision := Validate(p)
		assert.Equal(t, OutcomeManualReview, decision.Outcome)
		assert.Equal(t, []string{"low confidence score"}, decision.Reasons)
	})

	t.Run("all warnings collected together", func(t *testing.T) {
		p := passingProof()
		p.PAD = PADManualReview
		p.BarcodeSecurityCheck = CheckFail
		p.MRZOCRMismatch = CheckFail
		p.FaceMatchScore = 0.50
		p.ConfidenceScore = 0.50
		decision := Validate(p)
		require.Equal(t, OutcomeManualReview, decision.Outcome)
		assert.Len(t, decision.Reasons, 5)
	})
}

func TestValidateThresholdBoundaries(t *testing.T) {
	t.Run("face match exactly at threshold passes", func(t *testing.T) {
		p := passingProof()
		p.FaceMatchScore = 0.80
		assert.Equal(t, OutcomeAccept, Validate(p).Outcome)
	})

	t.Run("face match just below threshold warns", func(t *testing.T) {
		p := passingProof()
		p.FaceMatchScore = 0.7999
		decision := Validate(p)
		assert.Equal(t, OutcomeManualReview, decision.Outcome)
		assert.Contains(t, decision.Reasons, "face match score below threshold")
	})

	t.Run("confidence exactly at threshold passes", func(t *testing.T) {
		p := passingProof()
		p.ConfidenceScore = 0.85
		assert.Equal(t, OutcomeAccept, Validate(p).Outcome)
	})
}

func TestValidateDeterministic(t *testing.T) {
	p := passingProof()
	p.PAD = PADManualReview
	p.FaceMatchScore = 0.60

	first := Validate(p)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Validate(p))
	}
}
