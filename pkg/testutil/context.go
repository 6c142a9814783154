package testutil

import (
	"net/http"

	id "dutyflow/pkg/domain"
	"dutyflow/pkg/requestcontext"
)

// WithCaller adds an authenticated caller to the request context.
// This simulates what the auth middleware does for authenticated requests.
func WithCaller(req *http.Request, userID id.UserID, name string, admin bool) *http.Request {
	ctx := requestcontext.WithPrincipal(req.Context(), requestcontext.Caller{
		UserID: userID,
		Name:   name,
		Admin:  admin,
	})
	return req.WithContext(ctx)
}

// WithMember adds a non-admin caller to the request context.
func WithMember(req *http.Request, userID id.UserID) *http.Request {
	return WithCaller(req, userID, "member", false)
}

// WithAdmin adds an admin caller to the request context.
func WithAdmin(req *http.Request, userID id.UserID) *http.Request {
	return WithCaller(req, userID, "admin", true)
}
