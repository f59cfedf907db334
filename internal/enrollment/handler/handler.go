package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"verigate/internal/enrollment"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/httputil"
	"verigate/pkg/requestcontext"
)

// Service defines the enrollment operations the handler exposes.
type Service interface {
	Initiate(ctx context.Context, userID uuid.UUID) (enrollment.InitiateResult, error)
	CheckProgress(ctx context.Context, userID uuid.UUID) (enrollment.View, error)
}

// Handler handles enrollment endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
	auth    func(http.Handler) http.Handler
}

// New creates a new enrollment Handler.
func New(service Service, logger *slog.Logger, auth func(http.Handler) http.Handler) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
		auth:    auth,
	}
}

// Register registers the enrollment routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(gr chi.Router) {
		gr.Use(h.auth)
		gr.Post("/enroll", h.handleEnroll)
		gr.Get("/enrollment/status", h.handleStatus)
	})
}

type enrollmentPayload struct {
	enrollment.View
	EnrollmentURL string `json:"enrollmentUrl,omitempty"`
	QRCode        string `json:"qrCode,omitempty"`
}

type enrollResponse struct {
	AlreadyEnrolled bool              `json:"alreadyEnrolled,omitempty"`
	Enrollment      enrollmentPayload `json:"enrollment"`
}

func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, ok := h.authenticatedUser(w, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Initiate(ctx, userID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			h.logger.WarnContext(ctx, "enrollment already in progress",
				"request_id", requestID, "user_id", userID)
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "failed to initiate enrollment",
			"request_id", requestID, "user_id", userID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, enrollResponse{
		AlreadyEnrolled: result.AlreadyEnrolled,
		Enrollment: enrollmentPayload{
			View:          result.Enrollment,
			EnrollmentURL: result.EnrollmentURL,
			QRCode:        result.QRCode,
		},
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID, ok := h.authenticatedUser(w, ctx, requestID)
	if !ok {
		return
	}

	view, err := h.service.CheckProgress(ctx, userID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "failed to check enrollment progress",
			"request_id", requestID, "user_id", userID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]enrollment.View{"enrollment": view})
}

func (h *Handler) authenticatedUser(w http.ResponseWriter, ctx context.Context, requestID string) (uuid.UUID, bool) {
	userID := requestcontext.UserID(ctx)
	if userID == uuid.Nil {
		// Only reachable if the auth middleware is miswired.
		h.logger.ErrorContext(ctx, "user id missing from context despite auth middleware",
			"request_id", requestID)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return uuid.Nil, false
	}
	return userID, true
}
