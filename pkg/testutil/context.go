package testutil

import (
	"net/http"

	"github.com/google/uuid"

	"verigate/pkg/requestcontext"
)

// WithUserID injects an authenticated user ID into the request context,
// simulating what the auth middleware does after token verification.
func WithUserID(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}
