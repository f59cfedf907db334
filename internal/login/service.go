// Package login orchestrates the biometric login flow: operation
// creation, client-driven status polling and the security-critical
// completion step that validates the returned proof before a session is
// issued.
package login

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"verigate/internal/login/metrics"
	"verigate/internal/polling"
	"verigate/internal/proof"
	"verigate/internal/provider"
	"verigate/internal/registry"
	"verigate/internal/session"
	"verigate/internal/user"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/audit"
	strutil "verigate/pkg/platform/strings"
	"verigate/pkg/requestcontext"
)

// Users resolves local accounts.
type Users interface {
	ByEmail(ctx context.Context, email string) (user.User, error)
	ByID(ctx context.Context, id uuid.UUID) (user.User, error)
}

// EnrollmentGate reports whether a user finished biometric enrollment.
type EnrollmentGate interface {
	HasCompleted(ctx context.Context, userID uuid.UUID) (bool, error)
}

// SessionIssuer mints and refreshes session token pairs.
type SessionIssuer interface {
	Issue(u user.User) (session.TokenPair, error)
	VerifyRefresh(refreshToken string) (uuid.UUID, error)
	Refresh(refreshToken string, u user.User) (session.RefreshResult, error)
}

// Service coordinates the login flow.
type Service struct {
	users      Users
	enrollment EnrollmentGate
	provider   provider.Client
	registry   *registry.Registry
	poller     *polling.Poller
	issuer     SessionIssuer
	audit      audit.Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer
}

func NewService(
	users Users,
	gate EnrollmentGate,
	client provider.Client,
	reg *registry.Registry,
	poller *polling.Poller,
	issuer SessionIssuer,
	publisher audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	if publisher == nil {
		publisher = audit.NopPublisher{}
	}
	return &Service{
		users:      users,
		enrollment: gate,
		provider:   client,
		registry:   reg,
		poller:     poller,
		issuer:     issuer,
		audit:      publisher,
		metrics:    m,
		logger:     logger,
		tracer:     otel.Tracer("verigate/login"),
	}
}

// InitiateResult is returned from Initiate for out-of-band presentation
// to the user (deep link, QR, push).
type InitiateResult struct {
	OperationID     string    `json:"operationId"`
	VerificationURL string    `json:"verificationUrl"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

// Initiate resolves the user, gates on completed enrollment and creates a
// login verification operation with the provider.
func (s *Service) Initiate(ctx context.Context, email string) (InitiateResult, error) {
	ctx, span := s.tracer.Start(ctx, "login.Initiate")
	defer span.End()

	u, err := s.users.ByEmail(ctx, email)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			s.metrics.IncrementInitiation("not_found")
		} else if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
			s.metrics.IncrementInitiation("error")
		}
		return InitiateResult{}, err
	}
	span.SetAttributes(attribute.String("user_id", u.ID.String()))

	enrolled, err := s.enrollment.HasCompleted(ctx, u.ID)
	if err != nil {
		s.metrics.IncrementInitiation("error")
		return InitiateResult{}, err
	}
	if !enrolled {
		s.metrics.IncrementInitiation("not_enrolled")
		return InitiateResult{}, dErrors.New(dErrors.CodeBadRequest, "NOT_ENROLLED")
	}

	op, err := s.provider.CreateOperation(ctx, u.ID, provider.PurposeLogin, provider.DefaultPolicy())
	if err != nil {
		s.metrics.IncrementInitiation("error")
		return InitiateResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "verification provider unavailable")
	}

	now := requestcontext.Now(ctx)
	if err := s.registry.Bind(ctx, op.OperationID, u.ID, provider.PurposeLogin, now, op.ExpiresAt); err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			s.metrics.IncrementInitiation("conflict")
		} else {
			s.metrics.IncrementInitiation("error")
		}
		return InitiateResult{}, err
	}

	s.emit(ctx, audit.EventLoginInitiated, u.ID, op.OperationID, "", audit.SeverityInfo)
	s.metrics.IncrementInitiation("created")
	s.logger.InfoContext(ctx, "login initiated",
		"user_id", u.ID, "operation_id", op.OperationID, "expires_at", op.ExpiresAt)

	return InitiateResult{
		OperationID:     op.OperationID,
		VerificationURL: op.VerificationURL,
		ExpiresAt:       op.ExpiresAt,
	}, nil
}

// PollStatus performs one non-blocking status check for client-driven
// polling. Transient provider errors read as still pending.
func (s *Service) PollStatus(ctx context.Context, operationID string) (string, error) {
	op, err := s.registry.ResolveByOperationID(ctx, operationID)
	if err != nil {
		return "", err
	}
	if op.Terminal() {
		return stateLabel(op.State), nil
	}

	status, err := s.provider.CheckStatus(ctx, operationID)
	if provider.IsTransient(err) {
		return stateLabel(provider.StatePending), nil
	}
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "verification provider unavailable")
	}
	return stateLabel(status.State), nil
}

// AwaitTerminal drives the bounded polling loop server-side until the
// operation reaches a terminal state or the attempt budget runs out.
// Exhausting the budget surfaces as a timeout, distinct from failure.
func (s *Service) AwaitTerminal(ctx context.Context, operationID string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "login.AwaitTerminal",
		trace.WithAttributes(attribute.String("operation_id", operationID)))
	defer span.End()

	op, err := s.registry.ResolveByOperationID(ctx, operationID)
	if err != nil {
		return "", err
	}
	if op.Terminal() {
		return stateLabel(op.State), nil
	}

	status, err := s.poller.Poll(ctx, operationID, func(ctx context.Context) (provider.Status, error) {
		return s.provider.CheckStatus(ctx, operationID)
	})
	if err != nil {
		return "", err
	}
	return stateLabel(status.State), nil
}

// CompleteResult carries the issued session and the authenticated user.
type CompleteResult struct {
	Tokens session.TokenPair
	User   UserView
}

// UserView is the client-facing user shape returned on login.
type UserView struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	AccessLevel int       `json:"accessLevel"`
	Department  string    `json:"department"`
}

// Complete finishes a login. The provider status is re-checked before the
// caller's completion claim is trusted: an explicit provider failure
// rejects immediately, while pending or unknown status is allowed through
// on the caller's assertion. That lenient path is a known trust-boundary
// risk and is logged, audited and counted whenever it is taken. The proof
// itself is always retrieved and validated; no session is issued without
// an accepted proof.
func (s *Service) Complete(ctx context.Context, operationID string) (CompleteResult, error) {
	ctx, span := s.tracer.Start(ctx, "login.Complete",
		trace.WithAttributes(attribute.String("operation_id", operationID)))
	defer span.End()

	start := time.Now()
	defer func() { s.metrics.ObserveCompleteLatency(time.Since(start)) }()

	op, err := s.registry.ResolveByOperationID(ctx, operationID)
	if err != nil {
		return CompleteResult{}, err
	}
	if op.Purpose != provider.PurposeLogin {
		return CompleteResult{}, dErrors.New(dErrors.CodeInvalidInput, "operation is not a login operation")
	}
	if op.Terminal() {
		switch op.State {
		case provider.StateExpired:
			return CompleteResult{}, dErrors.New(dErrors.CodeExpired, "login operation has expired")
		default:
			return CompleteResult{}, dErrors.New(dErrors.CodeUnauthorized, "identity verification failed")
		}
	}

	status, err := s.provider.CheckStatus(ctx, operationID)
	switch {
	case err == nil && status.Failed():
		s.markTerminal(ctx, operationID, provider.StateFailed, provider.ResultFailure, nil)
		s.emit(ctx, audit.EventLoginRejected, op.UserID, operationID, "provider reported verification failure", audit.SeverityWarning)
		s.metrics.IncrementCompletion("failed")
		return CompleteResult{}, dErrors.New(dErrors.CodeUnauthorized, "identity verification failed")

	case err == nil && status.State == provider.StateExpired:
		s.markTerminal(ctx, operationID, provider.StateExpired, provider.ResultNone, nil)
		s.metrics.IncrementCompletion("expired")
		return CompleteResult{}, dErrors.New(dErrors.CodeExpired, "login operation has expired")

	case err == nil && status.Succeeded():
		// Verified by the provider; proceed.

	case err == nil || provider.IsTransient(err):
		// Pending or sync-lagged not-found. Proceeding on the caller's
		// assertion is a deliberate trust-boundary concession; make the
		// occurrence impossible to miss downstream.
		s.logger.WarnContext(ctx, "completing login without provider confirmation",
			"operation_id", operationID, "user_id", op.UserID,
			"provider_state", status.State.String(), "error", err)
		s.emit(ctx, audit.EventLoginUnverifiedCompletion, op.UserID, operationID,
			"provider status pending or unknown at completion", audit.SeverityWarning)
		s.metrics.IncrementUnverifiedCompletion()

	default:
		s.metrics.IncrementCompletion("error")
		return CompleteResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "verification provider unavailable")
	}

	// The proof and the user record come from independent backends.
	var (
		proofResult *proof.Result
		u           user.User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.provider.GetProof(gctx, operationID)
		if provider.IsTransient(err) {
			// No proof yet means verification did not actually finish.
			// Fail closed instead of issuing a session without one.
			return dErrors.Wrap(err, dErrors.CodeTimeout, "verification proof not yet available")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to retrieve verification proof")
		}
		proofResult = p
		return nil
	})
	g.Go(func() error {
		var err error
		u, err = s.users.ByID(gctx, op.UserID)
		return err
	})
	if err := g.Wait(); err != nil {
		s.metrics.IncrementCompletion("error")
		return CompleteResult{}, err
	}

	decision := proof.Validate(*proofResult)
	switch decision.Outcome {
	case proof.OutcomeAccept:
		// Validated; issue the session below.
	case proof.OutcomeManualReview:
		s.clear(ctx, operationID)
		s.emit(ctx, audit.EventLoginManualReview, op.UserID, operationID, joinReasons(decision.Reasons), audit.SeverityWarning)
		s.metrics.IncrementCompletion("manual_review")
		return CompleteResult{}, dErrors.New(dErrors.CodeUnauthorized, "identity verification requires manual review")
	default:
		s.clear(ctx, operationID)
		s.emit(ctx, audit.EventLoginRejected, op.UserID, operationID, joinReasons(decision.Reasons), audit.SeverityCritical)
		s.metrics.IncrementCompletion("rejected")
		s.logger.WarnContext(ctx, "login proof rejected",
			"user_id", op.UserID, "operation_id", operationID, "reasons", decision.Reasons)
		return CompleteResult{}, dErrors.New(dErrors.CodeUnauthorized, "identity verification rejected")
	}

	tokens, err := s.issuer.Issue(u)
	if err != nil {
		s.metrics.IncrementCompletion("error")
		return CompleteResult{}, err
	}

	completedAt := status.CompletedAt
	if completedAt == nil {
		now := requestcontext.Now(ctx)
		completedAt = &now
	}
	s.markTerminal(ctx, operationID, provider.StateCompleted, provider.ResultSuccess, completedAt)

	s.emit(ctx, audit.EventLoginVerified, u.ID, operationID, "", audit.SeverityInfo)
	s.metrics.IncrementCompletion("verified")
	s.logger.InfoContext(ctx, "login verified", "user_id", u.ID, "operation_id", operationID)

	return CompleteResult{
		Tokens: tokens,
		User: UserView{
			ID:          u.ID,
			Email:       u.Email,
			Name:        u.Name,
			Role:        u.Role,
			AccessLevel: u.AccessLevel,
			Department:  u.Department,
		},
	}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself is left untouched.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (session.RefreshResult, error) {
	userID, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		s.metrics.IncrementRefresh("invalid")
		return session.RefreshResult{}, err
	}

	u, err := s.users.ByID(ctx, userID)
	if err != nil {
		s.metrics.IncrementRefresh("invalid")
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return session.RefreshResult{}, dErrors.New(dErrors.CodeUnauthorized, "invalid refresh token")
		}
		return session.RefreshResult{}, err
	}

	result, err := s.issuer.Refresh(refreshToken, u)
	if err != nil {
		s.metrics.IncrementRefresh("invalid")
		return session.RefreshResult{}, err
	}

	s.emit(ctx, audit.EventTokenRefreshed, u.ID, "", "", audit.SeverityInfo)
	s.metrics.IncrementRefresh("refreshed")
	return result, nil
}

func (s *Service) markTerminal(ctx context.Context, operationID string, state provider.State, result provider.Result, completedAt *time.Time) {
	if err := s.registry.MarkTerminal(ctx, operationID, state, result, completedAt); err != nil {
		s.logger.ErrorContext(ctx, "failed to mark operation terminal",
			"operation_id", operationID, "error", err)
	}
}

func (s *Service) clear(ctx context.Context, operationID string) {
	if err := s.registry.Clear(ctx, operationID); err != nil {
		s.logger.ErrorContext(ctx, "failed to clear operation binding",
			"operation_id", operationID, "error", err)
	}
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

func joinReasons(reasons []string) string {
	return strings.Join(strutil.DedupeAndTrim(reasons), "; ")
}

func stateLabel(state provider.State) string {
	switch state {
	case provider.StateCompleted:
		return "completed"
	case provider.StateFailed:
		return "failed"
	case provider.StateExpired:
		return "expired"
	default:
		return "pending"
	}
}
