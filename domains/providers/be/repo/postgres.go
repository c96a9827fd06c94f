package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/powerport/user-service/domains/providers/be/service"
)

const uniqueViolation = "23505"

// PostgresRegistry stores providers in the platform database. Uniqueness is
// enforced by the primary key on unique_name, so Create detects duplicates
// atomically with the insert regardless of what the advisory Exists check
// said earlier.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistry constructs a registry backed by the shared pool.
func NewPostgresRegistry(pool *pgxpool.Pool) *PostgresRegistry {
	if pool == nil {
		panic("providers registry requires pool")
	}
	return &PostgresRegistry{pool: pool}
}

func (r *PostgresRegistry) Exists(ctx context.Context, uniqueName string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM providers WHERE unique_name = $1)",
		uniqueName,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query provider existence: %w", err)
	}
	return exists, nil
}

func (r *PostgresRegistry) Create(ctx context.Context, p service.Provider) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO providers (unique_name, tenant_id, display_name, admin_email, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		p.UniqueName, p.TenantID, p.DisplayName, p.AdminEmail, p.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return &service.ConflictError{UniqueName: p.UniqueName}
		}
		return fmt.Errorf("insert provider: %w", err)
	}
	return nil
}

func (r *PostgresRegistry) Get(ctx context.Context, uniqueName string) (service.Provider, error) {
	var p service.Provider
	err := r.pool.QueryRow(ctx,
		`SELECT unique_name, tenant_id, display_name, admin_email, created_at
		 FROM providers WHERE unique_name = $1`,
		uniqueName,
	).Scan(&p.UniqueName, &p.TenantID, &p.DisplayName, &p.AdminEmail, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return service.Provider{}, service.ErrNotFound
		}
		return service.Provider{}, fmt.Errorf("query provider: %w", err)
	}
	return p, nil
}

var _ service.Registry = (*PostgresRegistry)(nil)
