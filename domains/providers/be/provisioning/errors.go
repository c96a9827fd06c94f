package provisioning

import "fmt"

// InfrastructureError reports a database-host failure (connectivity or DDL)
// during tenant infra provisioning.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("tenant infra: %s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }

// SecretStoreError reports a secret-store failure (lookup, recovery or write)
// for a named secret.
type SecretStoreError struct {
	Name string
	Err  error
}

func (e *SecretStoreError) Error() string {
	return fmt.Sprintf("secret store: %s: %v", e.Name, e.Err)
}

func (e *SecretStoreError) Unwrap() error { return e.Err }
