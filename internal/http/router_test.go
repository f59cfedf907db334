package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"verigate/pkg/testutil"
)

func TestRouterOperationalEndpoints(t *testing.T) {
	testutil.Given(t, "a router without backends", func(t *testing.T) {
		router := NewRouter(Deps{Logger: slog.New(slog.DiscardHandler)})

		testutil.When(t, "calling GET /healthz", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))

			testutil.Then(t, "it reports ok", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusOK)
				testutil.AssertJSONContains(t, rr, "status", "ok")
			})
		})

		testutil.When(t, "calling GET /metrics", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))

			testutil.Then(t, "the prometheus endpoint answers", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusOK)
			})
		})
	})

	testutil.Given(t, "a router with a failing backend", func(t *testing.T) {
		router := NewRouter(Deps{
			Logger: slog.New(slog.DiscardHandler),
			Health: map[string]HealthChecker{
				"redis":    func() error { return nil },
				"postgres": func() error { return errors.New("connection refused") },
			},
		})

		testutil.When(t, "calling GET /healthz", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))

			testutil.Then(t, "it reports degraded", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
				testutil.AssertJSONContains(t, rr, "status", "degraded")
				testutil.AssertJSONContains(t, rr, "redis", "ok")
			})
		})
	})
}

func TestRouterAssignsRequestID(t *testing.T) {
	router := NewRouter(Deps{Logger: slog.New(slog.DiscardHandler)})

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	req := testutil.NewRequest(t, http.MethodGet, "/healthz")
	req.Header.Set("X-Request-ID", "req-42")
	rr = testutil.DoRequest(router, req)
	assert.Equal(t, "req-42", rr.Header().Get("X-Request-ID"))
}
