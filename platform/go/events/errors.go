package events

import "fmt"

// PublishError reports a failed publish. It is not retried internally;
// because publishing runs after the tenant record is durable, consumers of
// this error must treat it differently from pre-persist failures.
type PublishError struct {
	Topic string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s: %v", e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
