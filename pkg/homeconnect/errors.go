package homeconnect

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// OAuth2 error codes (RFC 6749 / RFC 8628) returned by the token endpoints.
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeUnauthorizedClient   = "unauthorized_client"
	ErrorCodeInvalidScope         = "invalid_scope"
	ErrorCodeExpiredToken         = "expired_token"
	ErrorCodeAccessDenied         = "access_denied"
	ErrorCodeAuthorizationPending = "authorization_pending"
)

// Appliance API error keys with special handling.
const (
	errorKeyInvalidToken = "invalid_token"
	errorKeyRateLimited  = "429"
)

var (
	// ErrNoAccessToken is returned by API operations attempted while no
	// access token is on file. It is not retryable; callers that want to
	// block instead should use WaitUntilAuthorized first.
	ErrNoAccessToken = errors.New("homeconnect: no access token on file")

	// ErrDeviceFlowExpired indicates the device code expired before the
	// user completed authorization. The authorization monitor restarts the
	// flow from scratch when this happens.
	ErrDeviceFlowExpired = errors.New("homeconnect: device code expired before authorization was granted")

	// ErrClientClosed is returned by operations on a closed client.
	ErrClientClosed = errors.New("homeconnect: client closed")
)

// TokenError is an OAuth error response from a token or authorization
// endpoint, per RFC 6749.
type TokenError struct {
	StatusCode  int
	Code        string `json:"error"`
	Description string `json:"error_description"`

	// Remediation carries expanded advice for known client-configuration
	// mistakes (unauthorized_client responses with recognised messages).
	Remediation string `json:"-"`
}

func (e *TokenError) Error() string {
	msg := fmt.Sprintf("homeconnect: %s: %s", e.Code, e.Description)
	if e.Remediation != "" {
		msg += " (" + e.Remediation + ")"
	}
	return msg
}

// APIError is an error body from the appliance API, keyed by the
// server-provided machine-readable error key.
type APIError struct {
	StatusCode  int
	Key         string `json:"key"`
	Description string `json:"description"`
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("homeconnect: API error %s: %s", e.Key, e.Description)
	}
	return fmt.Sprintf("homeconnect: API error %s (HTTP %d)", e.Key, e.StatusCode)
}

// retryableError marks an outcome the request pipeline handles internally
// by waiting on the rate limiter and reissuing the call. It never reaches
// facade callers.
type retryableError struct {
	err   error
	delay time.Duration
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// IsRetryable reports whether the error is transient and the operation will
// be retried internally after a rate-limit delay.
func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// invalidatesAccessToken reports whether the error means the current access
// token was rejected while the refresh token may still be good.
func invalidatesAccessToken(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Key == errorKeyInvalidToken
}

// invalidatesGrant reports whether the error means the whole authorization
// record must be discarded and the grant flow restarted.
func invalidatesGrant(err error) bool {
	var tokErr *TokenError
	if !errors.As(err, &tokErr) {
		return false
	}
	switch tokErr.Code {
	case ErrorCodeInvalidGrant, ErrorCodeExpiredToken, ErrorCodeUnauthorizedClient:
		return true
	}
	return false
}

// isAuthorizationPending reports the device-flow "keep polling" signal,
// which is not a failure.
func isAuthorizationPending(err error) bool {
	var tokErr *TokenError
	return errors.As(err, &tokErr) && tokErr.Code == ErrorCodeAuthorizationPending
}

// remediationAdvice maps fragments of known unauthorized_client messages to
// advice that is more actionable than the server text.
var remediationAdvice = map[string]string{
	"client not authorized for this oauth flow": "enable the Device Flow for this application in the Home Connect Developer Portal, or select simulator mode",
	"request rejected by client authorization authority": "check that the client id matches a registered application in the Home Connect Developer Portal; newly created applications can take up to a day to activate",
	"redirect_uri": "the redirect URI registered for this application does not match; update it in the Home Connect Developer Portal",
}

func remediationFor(description string) string {
	lower := strings.ToLower(description)
	for fragment, advice := range remediationAdvice {
		if strings.Contains(lower, fragment) {
			return advice
		}
	}
	return ""
}
