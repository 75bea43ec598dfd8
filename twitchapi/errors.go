package twitchapi

import (
	"errors"
	"fmt"
)

// ErrMissingCredentials is returned (wrapped in a CredentialError) when no client id/secret is configured.
var ErrMissingCredentials = errors.New("missing client id/secret for twitch app token")

// CredentialError reports a failed app access token exchange: a non-success status
// from the token endpoint, a malformed body, or missing client credentials.
type CredentialError struct {
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *CredentialError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("twitch token request failed: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("twitch token request failed: %v", e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// UpstreamError reports a non-success status from a Helix endpoint.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("helix %s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("helix %s: status %d", e.Endpoint, e.StatusCode)
}
