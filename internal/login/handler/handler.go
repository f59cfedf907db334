package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"verigate/internal/login"
	"verigate/internal/session"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/httputil"
	"verigate/pkg/requestcontext"
)

// Service defines the login operations the handler exposes.
type Service interface {
	Initiate(ctx context.Context, email string) (login.InitiateResult, error)
	PollStatus(ctx context.Context, operationID string) (string, error)
	AwaitTerminal(ctx context.Context, operationID string) (string, error)
	Complete(ctx context.Context, operationID string) (login.CompleteResult, error)
	Refresh(ctx context.Context, refreshToken string) (session.RefreshResult, error)
}

// Handler handles login and token refresh endpoints. These routes are
// unauthenticated: they are how a session is obtained.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// New creates a new login Handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

// Register registers the login routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/login/initiate", h.handleInitiate)
	r.Get("/login/status/{operationId}", h.handleStatus)
	r.Post("/login/complete/{operationId}", h.handleComplete)
	r.Post("/auth/refresh", h.handleRefresh)
}

type initiateRequest struct {
	Email string `json:"email"`
}

func (req initiateRequest) Validate() error {
	if strings.TrimSpace(req.Email) == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	return nil
}

func (h *Handler) handleInitiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[initiateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Initiate(ctx, req.Email)
	if err != nil {
		h.logFailure(ctx, "failed to initiate login", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operationID := chi.URLParam(r, "operationId")

	// ?wait=true holds the request open until the operation is terminal
	// or the polling budget runs out.
	var status string
	var err error
	if r.URL.Query().Get("wait") == "true" {
		status, err = h.service.AwaitTerminal(ctx, operationID)
	} else {
		status, err = h.service.PollStatus(ctx, operationID)
	}
	if err != nil {
		h.logFailure(ctx, "failed to poll login status", requestcontext.RequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": status})
}

type completeResponse struct {
	session.TokenPair
	User login.UserView `json:"user"`
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operationID := chi.URLParam(r, "operationId")

	result, err := h.service.Complete(ctx, operationID)
	if err != nil {
		h.logFailure(ctx, "login completion rejected", requestcontext.RequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, completeResponse{
		TokenPair: result.Tokens,
		User:      result.User,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (req refreshRequest) Validate() error {
	if req.RefreshToken == "" {
		return dErrors.New(dErrors.CodeValidation, "refreshToken is required")
	}
	return nil
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[refreshRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Refresh(ctx, req.RefreshToken)
	if err != nil {
		h.logFailure(ctx, "token refresh rejected", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// logFailure logs expected rejections at warn and everything else at error.
func (h *Handler) logFailure(ctx context.Context, msg, requestID string, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeUnavailable:
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
	default:
		h.logger.WarnContext(ctx, msg, "request_id", requestID, "error", err)
	}
}
