package service

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Provider is the registered tenant record. Identity fields are immutable
// once created; the registry never mutates an existing row.
type Provider struct {
	UniqueName  string
	TenantID    uuid.UUID
	DisplayName string
	AdminEmail  string
	CreatedAt   time.Time
}

// NormalizeUniqueName trims surrounding whitespace and lower-cases the name.
// It is idempotent: normalizing an already-normalized name is a no-op.
func NormalizeUniqueName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NewProvider builds a registry entry, re-validating the invariants the
// orchestrator already checked so the entity cannot be constructed invalid.
// CreatedAt is set once, server-side, in UTC.
func NewProvider(uniqueName, displayName, adminEmail string, tenantID uuid.UUID) (Provider, error) {
	uniqueName = NormalizeUniqueName(uniqueName)
	if uniqueName == "" {
		return Provider{}, &ValidationError{Field: "uniqueName"}
	}
	if len(uniqueName) < 2 {
		return Provider{}, &ValidationError{Field: "uniqueName", Reason: "must be at least 2 characters"}
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return Provider{}, &ValidationError{Field: "displayName"}
	}

	adminEmail = strings.TrimSpace(adminEmail)
	if adminEmail == "" {
		return Provider{}, &ValidationError{Field: "adminEmail"}
	}

	return Provider{
		UniqueName:  uniqueName,
		TenantID:    tenantID,
		DisplayName: displayName,
		AdminEmail:  adminEmail,
		CreatedAt:   time.Now().UTC(),
	}, nil
}
