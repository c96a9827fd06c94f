package identity

import "fmt"

// AuthenticationError reports a failed administrative token acquisition.
type AuthenticationError struct {
	Status int
	Body   string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("identity provider admin token failed (%d): %s", e.Status, e.Body)
}

// ProtocolError reports a malformed response from the identity provider,
// e.g. an empty token payload or a create response without a Location header.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "identity provider protocol error: " + e.Reason
}

// ProviderError reports a non-success status from any admin API sub-step,
// carrying the status and response body for diagnosis.
type ProviderError struct {
	Op     string
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("identity provider %s failed (%d): %s", e.Op, e.Status, e.Body)
}
