package provisioning

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/powerport/user-service/domains/providers/be/service"
)

// DefaultServices is the platform service set that gets a dedicated database
// and connection secret per tenant.
var DefaultServices = []string{"billing", "stationmgmt", "provider", "tracking", "reviews"}

// SecretStore is the subset of the secret-store API the provisioner needs:
// write a secret, and detect/recover the soft-deleted state so a Set never
// targets a purge-pending name.
type SecretStore interface {
	// DeletedState reports whether the named secret currently sits in the
	// soft-deleted retention window. A secret that never existed reports
	// false with a nil error; a non-nil error always means a real store
	// failure and must not be ignored.
	DeletedState(ctx context.Context, name string) (bool, error)
	RecoverDeleted(ctx context.Context, name string) error
	Set(ctx context.Context, name, value string) error
}

// Options configures the tenant database host and the service list.
type Options struct {
	Services      []string
	Host          string
	Port          int
	AdminUser     string
	AdminPassword string
	SSLMode       string // default "require"
}

// adminDB is the slice of the pgx pool API used against the maintenance
// database. Satisfied by *pgxpool.Pool.
type adminDB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// InfraProvisioner materializes per-service databases on the tenant database
// host and stores their connection strings in the secret store. Ensure is
// idempotent: existing databases are never touched and secret names are
// deterministic. There is no atomicity across the service loop; a mid-loop
// failure leaves earlier services provisioned.
type InfraProvisioner struct {
	db      adminDB
	secrets SecretStore
	logger  *zap.Logger
	opts    Options
}

// NewInfraProvisioner constructs the provisioner. pool must be connected to
// the host's maintenance database (usually "postgres").
func NewInfraProvisioner(pool *pgxpool.Pool, secrets SecretStore, logger *zap.Logger, opts Options) *InfraProvisioner {
	if pool == nil {
		panic("infra provisioner requires admin pool")
	}
	if secrets == nil {
		panic("infra provisioner requires secret store")
	}
	if logger == nil {
		panic("logger is required")
	}
	if len(opts.Services) == 0 {
		opts.Services = DefaultServices
	}
	if opts.Port == 0 {
		opts.Port = 5432
	}
	if opts.SSLMode == "" {
		opts.SSLMode = "require"
	}
	return &InfraProvisioner{db: pool, secrets: secrets, logger: logger, opts: opts}
}

// EnsureTenantDatabases provisions every configured service for the tenant
// and returns the database and secret name maps.
func (p *InfraProvisioner) EnsureTenantDatabases(ctx context.Context, uniqueName, environment string) (service.InfraResult, error) {
	env := strings.ToLower(strings.TrimSpace(environment))
	tenant := strings.ToLower(strings.TrimSpace(uniqueName))
	if env == "" {
		return service.InfraResult{}, fmt.Errorf("environment is required")
	}
	if tenant == "" {
		return service.InfraResult{}, fmt.Errorf("unique name is required")
	}

	result := service.InfraResult{
		DatabaseNames: make(map[string]string, len(p.opts.Services)),
		SecretNames:   make(map[string]string, len(p.opts.Services)),
	}

	for _, svc := range p.opts.Services {
		dbName := DatabaseName(env, svc, tenant)
		secretName := SecretName(env, svc, tenant)

		if err := p.ensureDatabase(ctx, dbName); err != nil {
			return service.InfraResult{}, err
		}
		if err := p.ensureSecret(ctx, secretName, p.connectionString(dbName)); err != nil {
			return service.InfraResult{}, err
		}

		result.DatabaseNames[svc] = dbName
		result.SecretNames[svc] = secretName

		p.logger.Info("tenant service infra ensured",
			zap.String("tenant", tenant),
			zap.String("service", svc),
			zap.String("database", dbName),
			zap.String("secret", secretName))
	}

	return result, nil
}

func (p *InfraProvisioner) ensureDatabase(ctx context.Context, dbName string) error {
	var exists bool
	err := p.db.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbName,
	).Scan(&exists)
	if err != nil {
		return &InfrastructureError{Op: "check database " + dbName, Err: err}
	}
	if exists {
		return nil
	}

	// CREATE DATABASE cannot run inside a transaction; the pool's
	// autocommit Exec is the right vehicle.
	if _, err := p.db.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{dbName}.Sanitize()); err != nil {
		return &InfrastructureError{Op: "create database " + dbName, Err: err}
	}
	return nil
}

// ensureSecret recovers a soft-deleted secret of the same name before
// writing, so the write lands on a live secret instead of failing against a
// purge-pending one.
func (p *InfraProvisioner) ensureSecret(ctx context.Context, name, value string) error {
	deleted, err := p.secrets.DeletedState(ctx, name)
	if err != nil {
		return &SecretStoreError{Name: name, Err: fmt.Errorf("lookup deleted state: %w", err)}
	}
	if deleted {
		if err := p.secrets.RecoverDeleted(ctx, name); err != nil {
			return &SecretStoreError{Name: name, Err: fmt.Errorf("recover: %w", err)}
		}
		p.logger.Info("recovered soft-deleted secret", zap.String("secret", name))
	}
	if err := p.secrets.Set(ctx, name, value); err != nil {
		return &SecretStoreError{Name: name, Err: fmt.Errorf("set: %w", err)}
	}
	return nil
}

// connectionString builds the per-database DSN bound to the service
// credential configured for the host.
func (p *InfraProvisioner) connectionString(dbName string) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.opts.AdminUser, p.opts.AdminPassword),
		Host:     fmt.Sprintf("%s:%d", p.opts.Host, p.opts.Port),
		Path:     "/" + dbName,
		RawQuery: "sslmode=" + p.opts.SSLMode,
	}
	return u.String()
}

var _ service.InfraProvisioner = (*InfraProvisioner)(nil)
