// Package onboarding decides where a request is routed after
// authentication. The decision is a pure function of session validity and
// the account's completion fields: re-evaluating it with the same inputs
// always yields the same destination. No timers, no counters, nothing to
// "settle".
package onboarding

import (
	"net/url"

	"github.com/perchmarket/perch/server/internal/store"
)

// Route destinations.
const (
	RouteSignIn       = "/signin"
	RouteProfileSetup = "/onboarding/profile"
	RouteRoleSetup    = "/onboarding/role"
	RouteDashboard    = "/dashboard"
)

// Complete reports whether every onboarding step is done: the profile form
// was submitted, a role is chosen, and sellers have named their business.
func Complete(acct *store.Account) bool {
	if acct == nil {
		return false
	}
	if !acct.ProfileCompleted || acct.Role == "" {
		return false
	}
	if acct.Role == store.RoleSeller && acct.BusinessName == "" {
		return false
	}
	return true
}

// Destination returns the route for a request given session validity and
// the account's completion fields. Unauthenticated requests go to sign-in;
// authenticated-but-incomplete accounts go to the specific missing step,
// never to a generic home.
func Destination(sessionValid bool, acct *store.Account) string {
	if !sessionValid || acct == nil {
		return RouteSignIn
	}
	if !acct.ProfileCompleted {
		return RouteProfileSetup
	}
	if acct.Role == "" {
		return RouteRoleSetup
	}
	if acct.Role == store.RoleSeller && acct.BusinessName == "" {
		return RouteProfileSetup
	}
	return RouteDashboard
}

// SignInURL returns the sign-in route carrying the originally requested
// path for post-login redirect. Only site-relative paths are preserved.
func SignInURL(next string) string {
	if !SafeRedirectPath(next) {
		return RouteSignIn
	}
	return RouteSignIn + "?next=" + url.QueryEscape(next)
}

// SafeRedirectPath reports whether next is a site-relative path that is
// safe to redirect to after login. Absolute URLs and protocol-relative
// paths are rejected to prevent open redirects.
func SafeRedirectPath(next string) bool {
	if next == "" || next[0] != '/' {
		return false
	}
	if len(next) > 1 && next[1] == '/' {
		return false
	}
	return true
}
