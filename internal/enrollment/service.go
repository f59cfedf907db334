package enrollment

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"verigate/internal/enrollment/metrics"
	"verigate/internal/provider"
	"verigate/internal/registry"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/audit"
	"verigate/pkg/platform/secrets"
	"verigate/pkg/platform/sentinel"
	"verigate/pkg/requestcontext"
)

// Service orchestrates the enrollment flow: provider operation creation,
// registry binding, record persistence and single-step progress checks.
type Service struct {
	store    Store
	provider provider.Client
	registry *registry.Registry
	audit    audit.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewService(
	store Store,
	client provider.Client,
	reg *registry.Registry,
	publisher audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	if publisher == nil {
		publisher = audit.NopPublisher{}
	}
	return &Service{
		store:    store,
		provider: client,
		registry: reg,
		audit:    publisher,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("verigate/enrollment"),
	}
}

// Initiate starts an enrollment for the user. A user with a completed
// enrollment is short-circuited without touching the provider; everyone
// else gets a fresh provider operation bound in the registry.
func (s *Service) Initiate(ctx context.Context, userID uuid.UUID) (InitiateResult, error) {
	ctx, span := s.tracer.Start(ctx, "enrollment.Initiate",
		trace.WithAttributes(attribute.String("user_id", userID.String())))
	defer span.End()

	completed, err := s.store.FindCompletedByUser(ctx, userID)
	if err == nil {
		s.metrics.IncrementInitiation("already_enrolled")
		return InitiateResult{AlreadyEnrolled: true, Enrollment: completed.View()}, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return InitiateResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check enrollment state")
	}

	op, err := s.provider.CreateOperation(ctx, userID, provider.PurposeEnrollment, provider.DefaultPolicy())
	if err != nil {
		s.metrics.IncrementInitiation("error")
		return InitiateResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "verification provider unavailable")
	}

	now := requestcontext.Now(ctx)
	if err := s.registry.Bind(ctx, op.OperationID, userID, provider.PurposeEnrollment, now, op.ExpiresAt); err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			s.metrics.IncrementInitiation("conflict")
		} else {
			s.metrics.IncrementInitiation("error")
		}
		return InitiateResult{}, err
	}

	secretHash, err := secrets.Hash(op.OneTimeSecret)
	if err != nil {
		s.metrics.IncrementInitiation("error")
		return InitiateResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to protect one-time secret")
	}

	rec := Record{
		ID:          uuid.New(),
		UserID:      userID,
		OperationID: op.OperationID,
		Status:      StatusInitiated,
		SecretHash:  secretHash,
		CreatedAt:   now,
		ExpiresAt:   op.ExpiresAt,
	}
	if err := s.store.Save(ctx, rec); err != nil {
		if clearErr := s.registry.Clear(ctx, op.OperationID); clearErr != nil {
			s.logger.ErrorContext(ctx, "failed to release operation binding after save failure",
				"operation_id", op.OperationID, "error", clearErr)
		}
		if errors.Is(err, sentinel.ErrConflict) {
			s.metrics.IncrementInitiation("conflict")
			return InitiateResult{}, dErrors.Wrap(err, dErrors.CodeConflict, "enrollment already in progress")
		}
		s.metrics.IncrementInitiation("error")
		return InitiateResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist enrollment")
	}

	s.emit(ctx, audit.EventEnrollmentInitiated, userID, op.OperationID, "", audit.SeverityInfo)
	s.metrics.IncrementInitiation("created")
	s.logger.InfoContext(ctx, "enrollment initiated",
		"user_id", userID, "operation_id", op.OperationID, "expires_at", op.ExpiresAt)

	return InitiateResult{
		Enrollment:    rec.View(),
		EnrollmentURL: op.VerificationURL,
		QRCode:        qrPayload(op.VerificationURL, op.OneTimeSecret),
	}, nil
}

// qrPayload builds the scannable deep link. The one-time secret rides
// along in plaintext exactly once; only its hash is persisted.
func qrPayload(verificationURL, secret string) string {
	return verificationURL + "?secret=" + url.QueryEscape(secret)
}

// CheckProgress performs a single, non-blocking status check against the
// provider and applies any terminal transition it observes. A reported
// completion without a completion time is treated as not yet performed:
// the provider sets completedAt only once the user actually enrolled.
func (s *Service) CheckProgress(ctx context.Context, userID uuid.UUID) (View, error) {
	ctx, span := s.tracer.Start(ctx, "enrollment.CheckProgress",
		trace.WithAttributes(attribute.String("user_id", userID.String())))
	defer span.End()

	start := time.Now()
	defer func() { s.metrics.ObserveProgressLatency(time.Since(start)) }()

	rec, err := s.store.FindLatestByUser(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return View{}, dErrors.Wrap(err, dErrors.CodeNotFound, "no enrollment found")
	}
	if err != nil {
		return View{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load enrollment")
	}
	if rec.Status.Terminal() {
		return rec.View(), nil
	}

	status, err := s.provider.CheckStatus(ctx, rec.OperationID)
	if provider.IsTransient(err) {
		s.logger.DebugContext(ctx, "provider status check transient failure, reporting current state",
			"operation_id", rec.OperationID, "error", err)
		return rec.View(), nil
	}
	if err != nil {
		return View{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "verification provider unavailable")
	}

	switch {
	case status.Succeeded():
		if status.CompletedAt == nil {
			s.logger.WarnContext(ctx, "provider reported success without a completion time, treating as not yet performed",
				"operation_id", rec.OperationID)
			return rec.View(), nil
		}
		return s.finalize(ctx, rec, StatusCompleted, status)
	case status.Failed():
		return s.finalize(ctx, rec, StatusFailed, status)
	case status.State == provider.StateExpired:
		return s.finalize(ctx, rec, StatusExpired, status)
	default:
		return rec.View(), nil
	}
}

// HasCompleted reports whether the user holds a completed enrollment.
func (s *Service) HasCompleted(ctx context.Context, userID uuid.UUID) (bool, error) {
	_, err := s.store.FindCompletedByUser(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check enrollment state")
	}
	return true, nil
}

func (s *Service) finalize(ctx context.Context, rec Record, status Status, observed provider.Status) (View, error) {
	var completedAt *time.Time
	if status == StatusCompleted {
		completedAt = observed.CompletedAt
	}

	err := s.store.UpdateStatus(ctx, rec.ID, status, completedAt)
	if errors.Is(err, sentinel.ErrTerminal) {
		// A concurrent progress check won the transition; reload and report.
		current, loadErr := s.store.FindLatestByUser(ctx, rec.UserID)
		if loadErr != nil {
			return View{}, dErrors.Wrap(loadErr, dErrors.CodeInternal, "failed to reload enrollment")
		}
		return current.View(), nil
	}
	if err != nil {
		return View{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update enrollment")
	}

	// The registry records the settled outcome, not the raw provider
	// observation: mixes like {state=completed, result=failure} or
	// {state=pending, result=failure} are wire-valid but would fail
	// terminal-state validation and strand the per-user binding.
	state, result := provider.StateFailed, provider.ResultFailure
	switch status {
	case StatusCompleted:
		state, result = provider.StateCompleted, provider.ResultSuccess
	case StatusExpired:
		state, result = provider.StateExpired, provider.ResultNone
	}
	if err := s.registry.MarkTerminal(ctx, rec.OperationID, state, result, completedAt); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark operation terminal",
			"operation_id", rec.OperationID, "error", err)
	}

	rec.Status = status
	rec.CompletedAt = completedAt

	switch status {
	case StatusCompleted:
		s.emit(ctx, audit.EventEnrollmentCompleted, rec.UserID, rec.OperationID, "", audit.SeverityInfo)
		s.metrics.IncrementCompletion("completed")
		s.logger.InfoContext(ctx, "enrollment completed",
			"user_id", rec.UserID, "operation_id", rec.OperationID)
	case StatusFailed:
		s.emit(ctx, audit.EventEnrollmentFailed, rec.UserID, rec.OperationID, "provider reported failure", audit.SeverityWarning)
		s.metrics.IncrementCompletion("failed")
	case StatusExpired:
		s.metrics.IncrementCompletion("expired")
	}
	return rec.View(), nil
}

func (s *Service) emit(ctx context.Context, action audit.Action, userID uuid.UUID, operationID, reason string, severity audit.Severity) {
	event := audit.Event{
		Timestamp:   requestcontext.Now(ctx),
		Action:      action,
		UserID:      userID,
		OperationID: operationID,
		Reason:      reason,
		IP:          requestcontext.ClientIP(ctx),
		UserAgent:   requestcontext.UserAgent(ctx),
		RequestID:   requestcontext.RequestID(ctx),
		Severity:    severity,
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"action", action, "error", err)
	}
}
