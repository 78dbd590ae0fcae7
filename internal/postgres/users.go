package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	apperrors "github.com/jrsteele09/go-token-authority/internal/errors"
	"github.com/jrsteele09/go-token-authority/users"
	"github.com/pkg/errors"
)

var _ users.Directory = (*UserDirectory)(nil)

const userColumns = `id, username, email, email_verified, password_hash, first_name, last_name, active, roles,
	failed_login_count, lockout_end, date_joined, last_login`

// UserDirectory is a users.Directory over the users table. Usernames match
// case-insensitively.
type UserDirectory struct {
	pool *pgxpool.Pool
}

func NewUserDirectory(pool *pgxpool.Pool) *UserDirectory {
	return &UserDirectory{pool: pool}
}

func scanUser(row pgx.Row) (*users.User, error) {
	var (
		u         users.User
		lastLogin *time.Time
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.EmailVerified, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Active, &u.Roles, &u.FailedLoginCount, &u.LockoutEnd, &u.DateJoined, &lastLogin)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastLogin != nil {
		u.LastLogin = *lastLogin
	}
	return &u, nil
}

func (d *UserDirectory) GetByID(ctx context.Context, id string) (*users.User, error) {
	u, err := scanUser(d.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, errors.Wrap(err, "[UserDirectory.GetByID]")
	}
	return u, err
}

func (d *UserDirectory) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	u, err := scanUser(d.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username))
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, errors.Wrap(err, "[UserDirectory.GetByUsername]")
	}
	return u, err
}

// Upsert inserts or replaces a user, assigning an ID when it has none.
func (d *UserDirectory) Upsert(ctx context.Context, u *users.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	joined := u.DateJoined
	if joined.IsZero() {
		joined = time.Now()
	}
	var lastLogin *time.Time
	if !u.LastLogin.IsZero() {
		lastLogin = &u.LastLogin
	}

	_, err := d.pool.Exec(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username, email = EXCLUDED.email, email_verified = EXCLUDED.email_verified,
			password_hash = EXCLUDED.password_hash, first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
			active = EXCLUDED.active, roles = EXCLUDED.roles, failed_login_count = EXCLUDED.failed_login_count,
			lockout_end = EXCLUDED.lockout_end, last_login = EXCLUDED.last_login`,
		u.ID, u.Username, u.Email, u.EmailVerified, u.PasswordHash, u.FirstName, u.LastName, u.Active,
		nonNil(u.Roles), u.FailedLoginCount, u.LockoutEnd, joined, lastLogin)
	if isUniqueViolation(err) {
		return apperrors.ErrConflict
	}
	return errors.Wrap(err, "[UserDirectory.Upsert]")
}

func (d *UserDirectory) Delete(ctx context.Context, id string) error {
	tag, err := d.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "[UserDirectory.Delete]")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// RecordFailedLogin is a single statement so concurrent failures never lose an
// increment. A lockout that ended at or before now restarts the count at one.
func (d *UserDirectory) RecordFailedLogin(ctx context.Context, username string, maxAttempts int, now, lockoutEnd time.Time) (users.LockoutState, error) {
	var state users.LockoutState
	err := d.pool.QueryRow(ctx, `
		WITH next AS (
			SELECT id,
				CASE WHEN lockout_end IS NOT NULL AND lockout_end <= $2 THEN 1
				     ELSE failed_login_count + 1 END AS count,
				CASE WHEN lockout_end IS NOT NULL AND lockout_end <= $2 THEN NULL
				     ELSE lockout_end END AS current_end
			FROM users WHERE lower(username) = lower($1)
			FOR UPDATE
		)
		UPDATE users u SET
			failed_login_count = next.count,
			lockout_end = CASE WHEN $3 > 0 AND next.count >= $3 THEN $4 ELSE next.current_end END
		FROM next WHERE u.id = next.id
		RETURNING u.failed_login_count, u.lockout_end`,
		username, now, maxAttempts, lockoutEnd).Scan(&state.FailedCount, &state.LockoutEnd)
	if errors.Is(err, pgx.ErrNoRows) {
		return users.LockoutState{}, apperrors.ErrNotFound
	}
	if err != nil {
		return users.LockoutState{}, errors.Wrap(err, "[UserDirectory.RecordFailedLogin]")
	}
	return state, nil
}

func (d *UserDirectory) ResetFailedLogin(ctx context.Context, username string) error {
	return d.reset(ctx, `lower(username) = lower($1)`, username, "[UserDirectory.ResetFailedLogin]")
}

func (d *UserDirectory) ResetFailedLoginByID(ctx context.Context, userID string) error {
	return d.reset(ctx, `id = $1`, userID, "[UserDirectory.ResetFailedLoginByID]")
}

func (d *UserDirectory) reset(ctx context.Context, where, arg, op string) error {
	tag, err := d.pool.Exec(ctx, `UPDATE users SET failed_login_count = 0, lockout_end = NULL WHERE `+where, arg)
	if err != nil {
		return errors.Wrap(err, op)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
