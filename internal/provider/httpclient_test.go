package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientCreateOperation(t *testing.T) {
	userID := uuid.New()
	expires := time.Now().Add(5 * time.Minute).UTC().Truncate(time.Second)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/operations", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("X-API-Key"))

		var req createOperationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, userID.String(), req.AccountID)
		assert.Equal(t, "login", req.Purpose)

		json.NewEncoder(w).Encode(createOperationResponse{
			OperationID: "op-123",
			Secret:      "one-time-secret",
			URL:         "https://verify.example/op-123",
			ExpiresAt:   expires,
		})
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, APIKey: "test-key"})
	op, err := client.CreateOperation(context.Background(), userID, PurposeLogin, DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, "op-123", op.OperationID)
	assert.Equal(t, "one-time-secret", op.OneTimeSecret)
	assert.Equal(t, "https://verify.example/op-123", op.VerificationURL)
	assert.True(t, op.ExpiresAt.Equal(expires))
}

func TestHTTPClientCheckStatus(t *testing.T) {
	t.Run("maps wire enums", func(t *testing.T) {
		completedAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/status/op-1", r.URL.Path)
			json.NewEncoder(w).Encode(statusResponse{State: 1, Result: 1, CompletedAt: &completedAt})
		}))
		defer srv.Close()

		client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
		status, err := client.CheckStatus(context.Background(), "op-1")
		require.NoError(t, err)
		assert.Equal(t, StateCompleted, status.State)
		assert.Equal(t, ResultSuccess, status.Result)
		require.NotNil(t, status.CompletedAt)
		assert.True(t, status.CompletedAt.Equal(completedAt))
		assert.True(t, status.Succeeded())
	})

	t.Run("404 inside propagation window reads as pending", func(t *testing.T) {
		var created bool
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				created = true
				json.NewEncoder(w).Encode(createOperationResponse{OperationID: "op-lagged"})
				return
			}
			// The provider has not propagated the new operation yet.
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, PropagationWindow: time.Minute})
		_, err := client.CreateOperation(context.Background(), uuid.New(), PurposeEnrollment, DefaultPolicy())
		require.NoError(t, err)
		require.True(t, created)

		status, err := client.CheckStatus(context.Background(), "op-lagged")
		require.NoError(t, err)
		assert.Equal(t, StatePending, status.State)
		assert.Equal(t, ResultNone, status.Result)
		assert.Nil(t, status.CompletedAt)
	})

	t.Run("404 for unknown operation is transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
		_, err := client.CheckStatus(context.Background(), "op-unknown")
		require.Error(t, err)
		assert.True(t, IsTransient(err))
		assert.False(t, IsHard(err))
	})

	t.Run("5xx is transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
		_, err := client.CheckStatus(context.Background(), "op-1")
		require.Error(t, err)
		assert.True(t, IsTransient(err))
	})

	t.Run("4xx other than 404 is hard", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "operation cancelled by provider", http.StatusConflict)
		}))
		defer srv.Close()

		client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
		_, err := client.CheckStatus(context.Background(), "op-1")
		require.Error(t, err)
		assert.True(t, IsHard(err))
		assert.False(t, IsTransient(err))
	})

	t.Run("out-of-range state is hard", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(statusResponse{State: 9})
		}))
		defer srv.Close()

		client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
		_, err := client.CheckStatus(context.Background(), "op-1")
		require.Error(t, err)
		assert.True(t, IsHard(err))
	})
}

func TestHTTPClientGetProof(t *testing.T) {
	t.Run("decodes proof payload", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/result/op-1", r.URL.Path)
			json.NewEncoder(w).Encode(proofResponse{
				IsLive:                     true,
				SelfieInjectionDetection:   "pass",
				DocumentInjectionDetection: "pass",
				BarcodeSecurityCheck:       "pass",
				MRZOCRMismatch:             "pass",
				PADResult:                  "pass",
				FaceMatchScore:             0.93,
				ConfidenceScore:            0.97,
			})
		}))
		defer srv.Close()

		client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
		p, err := client.GetProof(context.Background(), "op-1")
		require.NoError(t, err)
		assert.True(t, p.IsLive)
		assert.InDelta(t, 0.93, p.FaceMatchScore, 1e-9)
		assert.InDelta(t, 0.97, p.ConfidenceScore, 1e-9)
	})

	t.Run("missing proof is transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		client := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
		_, err := client.GetProof(context.Background(), "op-1")
		require.Error(t, err)
		assert.True(t, IsTransient(err))
	})
}
