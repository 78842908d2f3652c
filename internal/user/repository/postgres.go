package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"content-with-coffee/backend/internal/user/domain"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

const userColumns = `id, email, name, password_hash, federated, refresh_tokens, bio, favorite_drink, location,
	followers_count, following_count, posts_count, created_at, updated_at`

// DBTX is the subset of *pgxpool.Pool used by PostgresRepository.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository returns a user repository that uses the given pool for persistence.
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail returns the user with the given email, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Federated, &u.RefreshTokens,
		&u.Bio, &u.FavoriteDrink, &u.Location,
		&u.FollowersCount, &u.FollowingCount, &u.PostsCount,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	if u.RefreshTokens == nil {
		u.RefreshTokens = []string{}
	}
	return &u, nil
}

// Create persists the user. The user must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Federated, u.RefreshTokens,
		u.Bio, u.FavoriteDrink, u.Location,
		u.FollowersCount, u.FollowingCount, u.PostsCount,
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindOrCreateFederated inserts u unless a row with the same email exists, then returns the stored row.
// ON CONFLICT DO NOTHING makes concurrent first sign-ins for one email converge on a single user.
func (r *PostgresRepository) FindOrCreateFederated(ctx context.Context, u *domain.User) (*domain.User, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	_, err := r.db.Exec(ctx, `INSERT INTO users (id, email, name, password_hash, federated, refresh_tokens, created_at, updated_at)
		VALUES ($1, $2, $3, '', TRUE, '{}', $4, $5)
		ON CONFLICT (email) DO NOTHING`,
		u.ID, u.Email, u.Name, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert federated user: %w", err)
	}
	stored, err := r.GetByEmail(ctx, u.Email)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, ErrUserNotFound
	}
	return stored, nil
}

// AddRefreshToken appends digest and trims the array to its newest keep entries in one statement.
func (r *PostgresRepository) AddRefreshToken(ctx context.Context, userID, digest string, keep int) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if keep > 0 {
		tag, err = r.db.Exec(ctx, `UPDATE users
			SET refresh_tokens = (array_append(refresh_tokens, $2))[GREATEST(cardinality(refresh_tokens) + 2 - $3, 1):],
				updated_at = now()
			WHERE id = $1`, userID, digest, keep)
	} else {
		tag, err = r.db.Exec(ctx, `UPDATE users
			SET refresh_tokens = array_append(refresh_tokens, $2), updated_at = now()
			WHERE id = $1`, userID, digest)
	}
	if err != nil {
		return fmt.Errorf("append refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ConsumeRefreshToken removes digest only when present. The row lock taken by UPDATE plus the
// re-evaluated WHERE clause means a second concurrent redemption matches zero rows.
func (r *PostgresRepository) ConsumeRefreshToken(ctx context.Context, userID, digest string) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE users
		SET refresh_tokens = array_remove(refresh_tokens, $2), updated_at = now()
		WHERE id = $1 AND $2 = ANY(refresh_tokens)`, userID, digest)
	if err != nil {
		return false, fmt.Errorf("consume refresh token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// HasRefreshToken reports membership without modifying the row.
func (r *PostgresRepository) HasRefreshToken(ctx context.Context, userID, digest string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND $2 = ANY(refresh_tokens))`,
		userID, digest).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check refresh token: %w", err)
	}
	return ok, nil
}

// RemoveRefreshToken removes digest from the user's array. No-op if absent.
func (r *PostgresRepository) RemoveRefreshToken(ctx context.Context, userID, digest string) error {
	_, err := r.db.Exec(ctx, `UPDATE users
		SET refresh_tokens = array_remove(refresh_tokens, $2), updated_at = now()
		WHERE id = $1 AND $2 = ANY(refresh_tokens)`, userID, digest)
	if err != nil {
		return fmt.Errorf("remove refresh token: %w", err)
	}
	return nil
}

// Ping checks the pool connection.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
