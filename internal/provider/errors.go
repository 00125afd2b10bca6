// Upstream error taxonomy and message sanitization.
//
// DESIGN: callers distinguish error kinds with errors.As; raw upstream
// messages are scrubbed before they can reach a caller or a log line.
package provider

import (
	"fmt"
	"net/http"
	"strings"
)

// RejectedError is any non-auth, non-success upstream status. It carries the
// upstream status code and a sanitized message.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("upstream rejected request: status %d: %s", e.Status, e.Message)
}

// UnavailableError is a network or transport failure talking to the provider.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return "upstream unavailable: " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// FallbackStatus is the caller-visible status for UnavailableError.
const FallbackStatus = http.StatusServiceUnavailable

// CredentialExhaustedError means every credential encoding was rejected as
// unauthorized. The message never includes secret material.
type CredentialExhaustedError struct {
	Attempts int
}

func (e *CredentialExhaustedError) Error() string {
	return fmt.Sprintf("upstream rejected all %d credential encodings as unauthorized", e.Attempts)
}

// sensitiveFragments are substrings that indicate an upstream message may
// leak credential material or the provider's identity.
var sensitiveFragments = []string{"token", "bearer", "authorization", "api key", "api-key", "apikey"}

// sanitizeMessage replaces messages containing sensitive-looking fragments
// with a generic one. extra carries deployment-specific fragments such as
// the provider host name.
func sanitizeMessage(msg string, extra ...string) string {
	lower := strings.ToLower(msg)
	for _, frag := range sensitiveFragments {
		if strings.Contains(lower, frag) {
			return "upstream request was not accepted"
		}
	}
	for _, frag := range extra {
		if frag != "" && strings.Contains(lower, strings.ToLower(frag)) {
			return "upstream request was not accepted"
		}
	}
	if msg == "" {
		return "upstream request failed"
	}
	return msg
}
