package provisioning

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRow struct {
	exists bool
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*bool)) = r.exists
	return nil
}

// fakeAdminDB records executed statements and reports configured databases as
// already existing.
type fakeAdminDB struct {
	existing map[string]bool
	queryErr error
	execErr  error
	executed []string
}

func (db *fakeAdminDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if db.queryErr != nil {
		return fakeRow{err: db.queryErr}
	}
	name, _ := args[0].(string)
	return fakeRow{exists: db.existing[name]}
}

func (db *fakeAdminDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if db.execErr != nil {
		return pgconn.CommandTag{}, db.execErr
	}
	db.executed = append(db.executed, sql)
	return pgconn.CommandTag{}, nil
}

type fakeSecretStore struct {
	deleted    map[string]bool
	deletedErr error
	recoverErr error
	setErr     error
	recovered  []string
	written    map[string]string
}

func newFakeSecretStore() *fakeSecretStore {
	return &fakeSecretStore{deleted: make(map[string]bool), written: make(map[string]string)}
}

func (s *fakeSecretStore) DeletedState(ctx context.Context, name string) (bool, error) {
	if s.deletedErr != nil {
		return false, s.deletedErr
	}
	return s.deleted[name], nil
}

func (s *fakeSecretStore) RecoverDeleted(ctx context.Context, name string) error {
	if s.recoverErr != nil {
		return s.recoverErr
	}
	s.recovered = append(s.recovered, name)
	s.deleted[name] = false
	return nil
}

func (s *fakeSecretStore) Set(ctx context.Context, name, value string) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.written[name] = value
	return nil
}

func newTestProvisioner(db adminDB, store SecretStore, opts Options) *InfraProvisioner {
	if opts.Host == "" {
		opts.Host = "pg.internal"
	}
	if opts.Port == 0 {
		opts.Port = 5432
	}
	if opts.AdminUser == "" {
		opts.AdminUser = "tenant_admin"
	}
	if opts.SSLMode == "" {
		opts.SSLMode = "require"
	}
	if len(opts.Services) == 0 {
		opts.Services = []string{"billing", "tracking"}
	}
	return &InfraProvisioner{db: db, secrets: store, logger: zap.NewNop(), opts: opts}
}

func TestEnsureTenantDatabasesCreatesAndWritesSecrets(t *testing.T) {
	db := &fakeAdminDB{existing: map[string]bool{}}
	store := newFakeSecretStore()
	p := newTestProvisioner(db, store, Options{})

	result, err := p.EnsureTenantDatabases(context.Background(), "Acme", "Dev")
	require.NoError(t, err)

	require.Equal(t, map[string]string{
		"billing":  "db_svc_billing__acme__dev",
		"tracking": "db_svc_tracking__acme__dev",
	}, result.DatabaseNames)
	require.Equal(t, map[string]string{
		"billing":  "kv-conn-svc-billing-acme-dev",
		"tracking": "kv-conn-svc-tracking-acme-dev",
	}, result.SecretNames)

	require.Len(t, db.executed, 2)
	require.Contains(t, db.executed[0], `CREATE DATABASE "db_svc_billing__acme__dev"`)

	dsn := store.written["kv-conn-svc-billing-acme-dev"]
	require.Contains(t, dsn, "postgres://")
	require.Contains(t, dsn, "pg.internal:5432")
	require.Contains(t, dsn, "/db_svc_billing__acme__dev")
	require.Contains(t, dsn, "sslmode=require")
}

func TestEnsureTenantDatabasesSkipsExisting(t *testing.T) {
	db := &fakeAdminDB{existing: map[string]bool{
		"db_svc_billing__acme__dev":  true,
		"db_svc_tracking__acme__dev": true,
	}}
	store := newFakeSecretStore()
	p := newTestProvisioner(db, store, Options{})

	_, err := p.EnsureTenantDatabases(context.Background(), "acme", "dev")
	require.NoError(t, err)

	// No CREATE DATABASE statements, but secrets are still refreshed.
	require.Empty(t, db.executed)
	require.Len(t, store.written, 2)
}

func TestEnsureTenantDatabasesRecoversSoftDeletedSecret(t *testing.T) {
	db := &fakeAdminDB{existing: map[string]bool{}}
	store := newFakeSecretStore()
	store.deleted["kv-conn-svc-billing-acme-dev"] = true
	p := newTestProvisioner(db, store, Options{})

	_, err := p.EnsureTenantDatabases(context.Background(), "acme", "dev")
	require.NoError(t, err)

	require.Equal(t, []string{"kv-conn-svc-billing-acme-dev"}, store.recovered)
	require.Contains(t, store.written, "kv-conn-svc-billing-acme-dev")
}

func TestEnsureTenantDatabasesDatabaseFailure(t *testing.T) {
	dbErr := errors.New("connection refused")
	db := &fakeAdminDB{queryErr: dbErr}
	p := newTestProvisioner(db, newFakeSecretStore(), Options{})

	_, err := p.EnsureTenantDatabases(context.Background(), "acme", "dev")

	var infraErr *InfrastructureError
	require.ErrorAs(t, err, &infraErr)
	require.ErrorIs(t, err, dbErr)
	require.True(t, strings.Contains(infraErr.Op, "db_svc_billing__acme__dev"))
}

func TestEnsureTenantDatabasesSecretFailure(t *testing.T) {
	storeErr := errors.New("store sealed")
	store := newFakeSecretStore()
	store.setErr = storeErr
	p := newTestProvisioner(&fakeAdminDB{}, store, Options{})

	_, err := p.EnsureTenantDatabases(context.Background(), "acme", "dev")

	var secretErr *SecretStoreError
	require.ErrorAs(t, err, &secretErr)
	require.ErrorIs(t, err, storeErr)
	require.Equal(t, "kv-conn-svc-billing-acme-dev", secretErr.Name)
}

func TestEnsureTenantDatabasesSecretLookupFailure(t *testing.T) {
	lookupErr := errors.New("permission denied")
	store := newFakeSecretStore()
	store.deletedErr = lookupErr
	p := newTestProvisioner(&fakeAdminDB{}, store, Options{})

	_, err := p.EnsureTenantDatabases(context.Background(), "acme", "dev")

	// A failed deleted-state lookup is a real store failure, not a missing
	// secret: it aborts the run and nothing gets written.
	var secretErr *SecretStoreError
	require.ErrorAs(t, err, &secretErr)
	require.ErrorIs(t, err, lookupErr)
	require.Equal(t, "kv-conn-svc-billing-acme-dev", secretErr.Name)
	require.Empty(t, store.written)
}

func TestEnsureTenantDatabasesSecretRecoverFailure(t *testing.T) {
	recoverErr := errors.New("version destroyed")
	store := newFakeSecretStore()
	store.deleted["kv-conn-svc-billing-acme-dev"] = true
	store.recoverErr = recoverErr
	p := newTestProvisioner(&fakeAdminDB{}, store, Options{})

	_, err := p.EnsureTenantDatabases(context.Background(), "acme", "dev")

	var secretErr *SecretStoreError
	require.ErrorAs(t, err, &secretErr)
	require.ErrorIs(t, err, recoverErr)
	require.Empty(t, store.written)
}

func TestEnsureTenantDatabasesRejectsBlankInputs(t *testing.T) {
	p := newTestProvisioner(&fakeAdminDB{}, newFakeSecretStore(), Options{})

	_, err := p.EnsureTenantDatabases(context.Background(), "", "dev")
	require.Error(t, err)

	_, err = p.EnsureTenantDatabases(context.Background(), "acme", "  ")
	require.Error(t, err)
}
