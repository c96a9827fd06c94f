package service

import (
	"context"
)

// Registry is the durable provider store. Create must detect duplicate unique
// names atomically with the insert and return *ConflictError, not rely on a
// prior Exists call.
type Registry interface {
	Exists(ctx context.Context, uniqueName string) (bool, error)
	Create(ctx context.Context, p Provider) error
	Get(ctx context.Context, uniqueName string) (Provider, error)
}

// InfraResult maps each platform service to the database and connection
// secret materialized for the tenant. Names are deterministic, so re-running
// provisioning for the same tenant converges on the same result.
type InfraResult struct {
	DatabaseNames map[string]string
	SecretNames   map[string]string
}

// InfraProvisioner materializes per-service databases and connection secrets
// for a tenant. Ensure is idempotent; already-present databases and secrets
// are left untouched.
type InfraProvisioner interface {
	EnsureTenantDatabases(ctx context.Context, uniqueName, environment string) (InfraResult, error)
}

// AdminUserSpec describes the administrative identity to reconcile for a
// provider. ProviderID is the normalized unique name and lands in the
// identity provider's tenant attribute.
type AdminUserSpec struct {
	ProviderID        string
	DisplayName       string
	Username          string
	Email             string
	TemporaryPassword string
}

// IdentityReconciler idempotently upserts the provider admin user in the
// external identity provider: create-or-update, password reset, required
// actions, role membership.
type IdentityReconciler interface {
	EnsureAdminUser(ctx context.Context, spec AdminUserSpec) error
}

// EventPublisher wraps payloads in the event envelope and hands them to the
// bus with at-least-once semantics. The envelope is attached by the
// implementation, never by callers.
type EventPublisher interface {
	Publish(ctx context.Context, topic, eventType, key string, payload any) error
}
