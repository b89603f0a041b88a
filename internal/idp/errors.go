package idp

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// ExchangeError is returned when the provider rejects the code-for-token
// exchange. The provider's error code and description are for diagnostics
// only and must never be echoed to the browser.
type ExchangeError struct {
	StatusCode  int
	Code        string
	Description string
	err         error
}

func (e *ExchangeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("token exchange failed: %s (%s)", e.Code, e.Description)
	}
	return fmt.Sprintf("token exchange failed: %v", e.err)
}

func (e *ExchangeError) Unwrap() error { return e.err }

// newExchangeError extracts the provider's error code and description when
// the underlying error is an oauth2 retrieve error.
func newExchangeError(err error) *ExchangeError {
	ee := &ExchangeError{err: err}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		ee.StatusCode = re.Response.StatusCode
		ee.Code = re.ErrorCode
		ee.Description = re.ErrorDescription
	}
	return ee
}

// IdentityError is returned when the authenticated subject's profile could
// not be fetched or is unusable (missing email, malformed payload).
type IdentityError struct {
	Reason string
	err    error
}

func (e *IdentityError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("identity fetch failed: %s: %v", e.Reason, e.err)
	}
	return fmt.Sprintf("identity fetch failed: %s", e.Reason)
}

func (e *IdentityError) Unwrap() error { return e.err }
