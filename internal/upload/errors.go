// ABOUTME: Error taxonomy for upload resolution: policy, validation and fetch failures
// ABOUTME: Policy errors always fail closed; fetch errors describe upstream trouble

package upload

import "fmt"

// PolicyError is a security policy rejection: a non-https URL, a private
// address, credentials in a URL or an oversized payload.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string {
	return "upload rejected: " + e.Reason
}

func policyErrorf(format string, args ...any) *PolicyError {
	return &PolicyError{Reason: fmt.Sprintf(format, args...)}
}

// ValidationError is malformed caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// FetchError is a failure talking to the remote host.
type FetchError struct {
	URL string // redacted
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
