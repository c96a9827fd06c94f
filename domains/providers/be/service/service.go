package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// EventTypeProviderProvisioned tags the event published after a
	// successful registration.
	EventTypeProviderProvisioned = "ProviderProvisioned"

	// DefaultEventsTopic is the fallback when no topic is configured.
	DefaultEventsTopic = "tenant.events"

	defaultAdminUsernameSuffix     = "-admin"
	defaultTemporaryPasswordLength = 16
)

// RegisterProviderRequest carries the inbound registration call. TenantID is
// optional; when nil a fresh identifier is generated at creation time.
type RegisterProviderRequest struct {
	UniqueName  string
	DisplayName string
	AdminEmail  string
	TenantID    *uuid.UUID
}

// RegisterProviderResult is returned to the synchronous caller only. The
// temporary password never leaves the process any other way; in particular
// it is excluded from the published event payload.
type RegisterProviderResult struct {
	UniqueName        string    `json:"uniqueName"`
	TenantID          uuid.UUID `json:"tenantId"`
	DisplayName       string    `json:"displayName"`
	AdminUsername     string    `json:"adminUsername"`
	AdminEmail        string    `json:"adminEmail"`
	TemporaryPassword string    `json:"temporaryPassword"`
}

// ProviderProvisioned is the event payload announcing a new tenant to
// downstream services. It carries the infra map but never credentials.
type ProviderProvisioned struct {
	TenantID              uuid.UUID         `json:"tenantId"`
	UniqueName            string            `json:"providerUniqueName"`
	DisplayName           string            `json:"displayName"`
	Environment           string            `json:"environment"`
	AdminUsername         string            `json:"adminUsername"`
	AdminEmail            string            `json:"adminEmail"`
	DatabaseNames         map[string]string `json:"databaseNames,omitempty"`
	ConnectionSecretNames map[string]string `json:"connectionSecretNames,omitempty"`
}

// Options tunes the orchestration. Zero values fall back to sensible
// defaults in New.
type Options struct {
	// Environment names the deployment environment ("dev", "staging", ...)
	// and feeds infra naming and the event payload.
	Environment string
	// AdminUsernameSuffix is appended to the unique name to derive the admin
	// username (default "-admin").
	AdminUsernameSuffix string
	// TemporaryPasswordLength is the generated secret length (default 16).
	TemporaryPasswordLength int
	// ProvisionInfra gates the database/secret step. Disabling it is an
	// explicit deployment choice; the event then omits the infra map.
	ProvisionInfra bool
	// EventsTopic is the bus topic (default "tenant.events").
	EventsTopic string
}

// Service drives the provisioning saga: registry gate and persist, optional
// infra, identity reconciliation, event announcement. Steps run strictly in
// order and the first failure aborts the run; completed steps are never
// compensated (operators reconcile manually).
type Service struct {
	registry Registry
	infra    InfraProvisioner
	identity IdentityReconciler
	events   EventPublisher
	logger   *zap.Logger
	opts     Options
}

// New constructs the Service. infra may be nil only when
// opts.ProvisionInfra is false.
func New(registry Registry, infra InfraProvisioner, identity IdentityReconciler, events EventPublisher, logger *zap.Logger, opts Options) *Service {
	if registry == nil {
		panic("providers registry is required")
	}
	if identity == nil {
		panic("identity reconciler is required")
	}
	if events == nil {
		panic("event publisher is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if opts.ProvisionInfra && infra == nil {
		panic("infra provisioner is required when infra provisioning is enabled")
	}
	if opts.Environment == "" {
		opts.Environment = "dev"
	}
	opts.Environment = strings.ToLower(opts.Environment)
	if opts.AdminUsernameSuffix == "" {
		opts.AdminUsernameSuffix = defaultAdminUsernameSuffix
	}
	if opts.TemporaryPasswordLength <= 0 {
		opts.TemporaryPasswordLength = defaultTemporaryPasswordLength
	}
	if opts.EventsTopic == "" {
		opts.EventsTopic = DefaultEventsTopic
	}

	return &Service{
		registry: registry,
		infra:    infra,
		identity: identity,
		events:   events,
		logger:   logger,
		opts:     opts,
	}
}

// RegisterProvider runs the saga for one tenant.
func (s *Service) RegisterProvider(ctx context.Context, req RegisterProviderRequest) (RegisterProviderResult, error) {
	uniqueName := NormalizeUniqueName(req.UniqueName)
	displayName := strings.TrimSpace(req.DisplayName)
	adminEmail := strings.TrimSpace(req.AdminEmail)

	if uniqueName == "" {
		return RegisterProviderResult{}, &ValidationError{Field: "uniqueName"}
	}
	if displayName == "" {
		return RegisterProviderResult{}, &ValidationError{Field: "displayName"}
	}
	if adminEmail == "" {
		return RegisterProviderResult{}, &ValidationError{Field: "adminEmail"}
	}

	logger := s.logger.With(zap.String("provider", uniqueName))

	exists, err := s.registry.Exists(ctx, uniqueName)
	if err != nil {
		return RegisterProviderResult{}, fmt.Errorf("check provider existence: %w", err)
	}
	if exists {
		return RegisterProviderResult{}, &ConflictError{UniqueName: uniqueName}
	}

	// Caller-supplied identifier wins; otherwise mint one exactly once, here.
	tenantID := uuid.New()
	if req.TenantID != nil {
		tenantID = *req.TenantID
	}

	provider, err := NewProvider(uniqueName, displayName, adminEmail, tenantID)
	if err != nil {
		return RegisterProviderResult{}, err
	}

	if err := s.registry.Create(ctx, provider); err != nil {
		return RegisterProviderResult{}, err
	}
	logger.Info("provider registered", zap.String("tenant_id", tenantID.String()))

	var infra InfraResult
	if s.opts.ProvisionInfra {
		infra, err = s.infra.EnsureTenantDatabases(ctx, uniqueName, s.opts.Environment)
		if err != nil {
			logger.Error("tenant infra provisioning failed", zap.Error(err))
			return RegisterProviderResult{}, err
		}
		logger.Info("tenant infra ensured", zap.Int("services", len(infra.DatabaseNames)))
	} else {
		logger.Info("tenant infra provisioning disabled by configuration")
	}

	adminUsername := uniqueName + s.opts.AdminUsernameSuffix
	tempPassword, err := GenerateTemporaryPassword(s.opts.TemporaryPasswordLength)
	if err != nil {
		return RegisterProviderResult{}, fmt.Errorf("generate temporary password: %w", err)
	}

	if err := s.identity.EnsureAdminUser(ctx, AdminUserSpec{
		ProviderID:        uniqueName,
		DisplayName:       displayName,
		Username:          adminUsername,
		Email:             adminEmail,
		TemporaryPassword: tempPassword,
	}); err != nil {
		logger.Error("admin user reconciliation failed", zap.Error(err))
		return RegisterProviderResult{}, err
	}
	logger.Info("admin user ensured", zap.String("admin_username", adminUsername))

	payload := ProviderProvisioned{
		TenantID:              tenantID,
		UniqueName:            uniqueName,
		DisplayName:           displayName,
		Environment:           s.opts.Environment,
		AdminUsername:         adminUsername,
		AdminEmail:            adminEmail,
		DatabaseNames:         infra.DatabaseNames,
		ConnectionSecretNames: infra.SecretNames,
	}

	if err := s.events.Publish(ctx, s.opts.EventsTopic, EventTypeProviderProvisioned, uniqueName, payload); err != nil {
		// The tenant record and admin user are already durable at this
		// point; flag that so telemetry can tell this apart from earlier
		// failures. Closing the gap needs an operator replay.
		logger.Error("provider provisioned but announcement failed",
			zap.Bool("tenant_durable", true),
			zap.Error(err))
		return RegisterProviderResult{}, err
	}
	logger.Info("provider provisioned event published", zap.String("topic", s.opts.EventsTopic))

	return RegisterProviderResult{
		UniqueName:        uniqueName,
		TenantID:          tenantID,
		DisplayName:       displayName,
		AdminUsername:     adminUsername,
		AdminEmail:        adminEmail,
		TemporaryPassword: tempPassword,
	}, nil
}

// Get returns a registered provider by normalized unique name.
func (s *Service) Get(ctx context.Context, uniqueName string) (Provider, error) {
	return s.registry.Get(ctx, NormalizeUniqueName(uniqueName))
}
