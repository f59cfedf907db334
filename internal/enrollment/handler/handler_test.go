package handler

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verigate/internal/enrollment"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/testutil"
)

type stubService struct {
	initiateResult enrollment.InitiateResult
	initiateErr    error
	progressView   enrollment.View
	progressErr    error

	gotUserID uuid.UUID
}

func (s *stubService) Initiate(_ context.Context, userID uuid.UUID) (enrollment.InitiateResult, error) {
	s.gotUserID = userID
	return s.initiateResult, s.initiateErr
}

func (s *stubService) CheckProgress(_ context.Context, userID uuid.UUID) (enrollment.View, error) {
	s.gotUserID = userID
	return s.progressView, s.progressErr
}

func newTestRouter(svc Service) http.Handler {
	r := chi.NewRouter()
	passthrough := func(next http.Handler) http.Handler { return next }
	New(svc, slog.New(slog.DiscardHandler), passthrough).Register(r)
	return r
}

func TestHandleEnroll(t *testing.T) {
	userID := uuid.New()

	t.Run("returns the created enrollment", func(t *testing.T) {
		svc := &stubService{
			initiateResult: enrollment.InitiateResult{
				Enrollment: enrollment.View{
					EnrollmentID: uuid.NewString(),
					Status:       enrollment.StatusInitiated,
					Progress:     50,
					ExpiresAt:    time.Now().Add(5 * time.Minute),
				},
				EnrollmentURL: "https://verify.example.com/op-1",
				QRCode:        "data:image/png;base64,abc",
			},
		}
		router := newTestRouter(svc)

		req := testutil.WithUserID(testutil.NewRequest(t, http.MethodPost, "/enroll"), userID)
		rr := testutil.DoRequest(router, req)

		testutil.AssertStatus(t, rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[enrollResponse](t, rr)
		assert.False(t, resp.AlreadyEnrolled)
		assert.Equal(t, enrollment.StatusInitiated, resp.Enrollment.Status)
		assert.Equal(t, "https://verify.example.com/op-1", resp.Enrollment.EnrollmentURL)
		assert.Equal(t, userID, svc.gotUserID)
	})

	t.Run("flags an already enrolled user", func(t *testing.T) {
		svc := &stubService{
			initiateResult: enrollment.InitiateResult{
				AlreadyEnrolled: true,
				Enrollment:      enrollment.View{Status: enrollment.StatusCompleted, Progress: 100, Completed: true},
			},
		}
		router := newTestRouter(svc)

		req := testutil.WithUserID(testutil.NewRequest(t, http.MethodPost, "/enroll"), userID)
		rr := testutil.DoRequest(router, req)

		testutil.AssertStatus(t, rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[enrollResponse](t, rr)
		assert.True(t, resp.AlreadyEnrolled)
		assert.True(t, resp.Enrollment.Completed)
	})

	t.Run("conflict when an enrollment is already pending", func(t *testing.T) {
		svc := &stubService{initiateErr: dErrors.New(dErrors.CodeConflict, "enrollment already in progress")}
		router := newTestRouter(svc)

		req := testutil.WithUserID(testutil.NewRequest(t, http.MethodPost, "/enroll"), userID)
		rr := testutil.DoRequest(router, req)

		testutil.AssertStatusAndError(t, rr, http.StatusConflict, "conflict")
	})

	t.Run("internal error when the auth context is missing", func(t *testing.T) {
		router := newTestRouter(&stubService{})

		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodPost, "/enroll"))

		testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, "internal_error")
	})
}

func TestHandleStatus(t *testing.T) {
	userID := uuid.New()

	t.Run("returns the current view", func(t *testing.T) {
		svc := &stubService{
			progressView: enrollment.View{
				EnrollmentID: uuid.NewString(),
				Status:       enrollment.StatusCompleted,
				Progress:     100,
				Completed:    true,
			},
		}
		router := newTestRouter(svc)

		req := testutil.WithUserID(testutil.NewRequest(t, http.MethodGet, "/enrollment/status"), userID)
		rr := testutil.DoRequest(router, req)

		testutil.AssertStatus(t, rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[map[string]enrollment.View](t, rr)
		view, ok := (*resp)["enrollment"]
		require.True(t, ok)
		assert.Equal(t, 100, view.Progress)
		assert.True(t, view.Completed)
	})

	t.Run("not found without an enrollment", func(t *testing.T) {
		svc := &stubService{progressErr: dErrors.New(dErrors.CodeNotFound, "no enrollment found")}
		router := newTestRouter(svc)

		req := testutil.WithUserID(testutil.NewRequest(t, http.MethodGet, "/enrollment/status"), userID)
		rr := testutil.DoRequest(router, req)

		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})
}
