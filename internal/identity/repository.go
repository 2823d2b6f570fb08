package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/greenway-eco/backend/internal/models"
)

const uniqueViolation = "23505"

// DB is the subset of pgxpool.Pool used by the repository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository handles account persistence.
type Repository struct {
	db DB
}

// NewRepository creates an account repository.
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

const accountColumns = `id, email, password_hash, display_name, COALESCE(role_claim, ''), claim_version, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	var role string
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.DisplayName, &role, &a.ClaimVersion, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	a.RoleClaim = models.Role(role)
	return &a, nil
}

// Create inserts a new account. Email uniqueness is enforced by the table.
func (r *Repository) Create(ctx context.Context, email, passwordHash, displayName string) (*models.Account, error) {
	q := `INSERT INTO accounts (email, password_hash, display_name) VALUES ($1, $2, $3)
		RETURNING ` + accountColumns
	a, err := scanAccount(r.db.QueryRow(ctx, q, email, passwordHash, displayName))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return a, nil
}

// GetByID returns an account by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

// GetByEmail returns an account by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
}

// SetRoleClaim stores role as the account's claim and bumps the claim
// version. It returns the new version.
func (r *Repository) SetRoleClaim(ctx context.Context, id uuid.UUID, role models.Role) (int, error) {
	const q = `UPDATE accounts SET role_claim = $2, claim_version = claim_version + 1, updated_at = NOW()
		WHERE id = $1 RETURNING claim_version`
	var version int
	if err := r.db.QueryRow(ctx, q, id, string(role)).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("set role claim: %w", err)
	}
	return version, nil
}

// UpdatePassword replaces the password hash.
func (r *Repository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	tag, err := r.db.Exec(ctx, `UPDATE accounts SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Delete removes an account.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}
