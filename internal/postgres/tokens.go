package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	apperrors "github.com/jrsteele09/go-token-authority/internal/errors"
	"github.com/jrsteele09/go-token-authority/oauth2"
	"github.com/jrsteele09/go-token-authority/token"
	"github.com/pkg/errors"
)

var (
	_ token.Store              = (*TokenStore)(nil)
	_ token.AuthorizationStore = (*TokenStore)(nil)
)

const tokenColumns = `id, type, subject, application_id, authorization_id, reference_id, device_id, scopes, status, issued_at, expires_at`

// TokenStore keeps tokens and authorizations in postgres.
type TokenStore struct {
	pool    *pgxpool.Pool
	nowTime func() time.Time
}

type TokenStoreOption func(*TokenStore)

// WithTokenStoreNowFunc sets the clock used for pruning (primarily for testing).
func WithTokenStoreNowFunc(nowFunc func() time.Time) TokenStoreOption {
	return func(s *TokenStore) {
		s.nowTime = nowFunc
	}
}

func NewTokenStore(pool *pgxpool.Pool, options ...TokenStoreOption) *TokenStore {
	s := &TokenStore{pool: pool, nowTime: time.Now}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func scanToken(row pgx.Row) (*token.Token, error) {
	var t token.Token
	err := row.Scan(&t.ID, &t.Type, &t.Subject, &t.ApplicationID, &t.AuthorizationID,
		&t.ReferenceID, &t.DeviceID, &t.Scopes, &t.Status, &t.IssuedAt, &t.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *TokenStore) getOne(ctx context.Context, query string, arg any) (*token.Token, error) {
	t, err := scanToken(s.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	return t, err
}

func (s *TokenStore) Get(ctx context.Context, id string) (*token.Token, error) {
	t, err := s.getOne(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id = $1`, id)
	return t, errors.Wrap(err, "[TokenStore.Get]")
}

func (s *TokenStore) GetByReferenceID(ctx context.Context, referenceID string) (*token.Token, error) {
	if referenceID == "" {
		return nil, apperrors.ErrNotFound
	}
	t, err := s.getOne(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE reference_id = $1`, referenceID)
	return t, errors.Wrap(err, "[TokenStore.GetByReferenceID]")
}

func (s *TokenStore) list(ctx context.Context, where string, arg any) ([]*token.Token, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE `+where+` ORDER BY issued_at, id`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*token.Token, 0)
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *TokenStore) GetBySubject(ctx context.Context, subject string) ([]*token.Token, error) {
	ts, err := s.list(ctx, `subject = $1`, subject)
	return ts, errors.Wrap(err, "[TokenStore.GetBySubject]")
}

func (s *TokenStore) GetByApplication(ctx context.Context, applicationID string) ([]*token.Token, error) {
	ts, err := s.list(ctx, `application_id = $1`, applicationID)
	return ts, errors.Wrap(err, "[TokenStore.GetByApplication]")
}

func (s *TokenStore) GetByAuthorization(ctx context.Context, authorizationID string) ([]*token.Token, error) {
	if authorizationID == "" {
		return []*token.Token{}, nil
	}
	ts, err := s.list(ctx, `authorization_id = $1`, authorizationID)
	return ts, errors.Wrap(err, "[TokenStore.GetByAuthorization]")
}

func (s *TokenStore) Insert(ctx context.Context, t *token.Token) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.Type, t.Subject, t.ApplicationID, t.AuthorizationID, t.ReferenceID,
		t.DeviceID, nonNil(t.Scopes), t.Status, t.IssuedAt, t.ExpiresAt)
	if isUniqueViolation(err) {
		return apperrors.ErrConflict
	}
	return errors.Wrap(err, "[TokenStore.Insert]")
}

// Update reads the stored row under a lock so the expiry and terminal status
// checks see the same row the update writes.
func (s *TokenStore) Update(ctx context.Context, t *token.Token) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var (
			expiresAt time.Time
			status    token.Status
		)
		err := tx.QueryRow(ctx, `SELECT expires_at, status FROM tokens WHERE id = $1 FOR UPDATE`, t.ID).Scan(&expiresAt, &status)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		if err != nil {
			return errors.Wrap(err, "[TokenStore.Update] select")
		}
		// Stored timestamps carry microsecond precision.
		if expiresAt.Sub(t.ExpiresAt).Abs() >= time.Microsecond {
			return token.ErrExpiryImmutable
		}
		if status != token.StatusValid && t.Status == token.StatusValid {
			return token.ErrInvalidTransition
		}

		_, err = tx.Exec(ctx, `UPDATE tokens SET type = $2, subject = $3, application_id = $4,
			authorization_id = $5, reference_id = $6, device_id = $7, scopes = $8, status = $9, issued_at = $10
			WHERE id = $1`,
			t.ID, t.Type, t.Subject, t.ApplicationID, t.AuthorizationID, t.ReferenceID,
			t.DeviceID, nonNil(t.Scopes), t.Status, t.IssuedAt)
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return errors.Wrap(err, "[TokenStore.Update] update")
	})
}

func (s *TokenStore) Delete(ctx context.Context, t *token.Token) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tokens WHERE id = $1`, t.ID)
	if err != nil {
		return errors.Wrap(err, "[TokenStore.Delete]")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (s *TokenStore) PruneExpired(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tokens WHERE expires_at <= $1`, s.nowTime())
	if err != nil {
		return 0, errors.Wrap(err, "[TokenStore.PruneExpired]")
	}
	return int(tag.RowsAffected()), nil
}

func (s *TokenStore) RevokeAllBySubject(ctx context.Context, subject string) (int, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE tokens SET status = $2 WHERE subject = $1 AND status = $3`,
		subject, token.StatusRevoked, token.StatusValid)
	if err != nil {
		return 0, errors.Wrap(err, "[TokenStore.RevokeAllBySubject]")
	}
	return int(tag.RowsAffected()), nil
}

func (s *TokenStore) RevokeByID(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE tokens SET status = $2 WHERE id = $1 AND status = $3`,
		id, token.StatusRevoked, token.StatusValid)
	if err != nil {
		return false, errors.Wrap(err, "[TokenStore.RevokeByID]")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *TokenStore) MarkRedeemed(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE tokens SET status = $2 WHERE id = $1 AND status = $3 AND type = $4`,
		id, token.StatusRedeemed, token.StatusValid, token.TypeRefresh)
	if err != nil {
		return false, errors.Wrap(err, "[TokenStore.MarkRedeemed]")
	}
	return tag.RowsAffected() == 1, nil
}

const authorizationColumns = `id, subject, application_id, status, type, scopes, created_at`

func scanAuthorization(row pgx.Row) (*token.Authorization, error) {
	var (
		a         token.Authorization
		grantType string
	)
	if err := row.Scan(&a.ID, &a.Subject, &a.ApplicationID, &a.Status, &grantType, &a.Scopes, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	a.Type = oauth2.GrantType(grantType)
	return &a, nil
}

func (s *TokenStore) InsertAuthorization(ctx context.Context, a *token.Authorization) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO authorizations (`+authorizationColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.Subject, a.ApplicationID, a.Status, string(a.Type), nonNil(a.Scopes), a.CreatedAt)
	if isUniqueViolation(err) {
		return apperrors.ErrConflict
	}
	return errors.Wrap(err, "[TokenStore.InsertAuthorization]")
}

func (s *TokenStore) GetAuthorization(ctx context.Context, id string) (*token.Authorization, error) {
	a, err := scanAuthorization(s.pool.QueryRow(ctx, `SELECT `+authorizationColumns+` FROM authorizations WHERE id = $1`, id))
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, errors.Wrap(err, "[TokenStore.GetAuthorization]")
	}
	return a, err
}

func (s *TokenStore) FindActiveAuthorization(ctx context.Context, subject, applicationID string) (*token.Authorization, error) {
	a, err := scanAuthorization(s.pool.QueryRow(ctx, `SELECT `+authorizationColumns+` FROM authorizations
		WHERE subject = $1 AND application_id = $2 AND status = $3
		ORDER BY created_at DESC LIMIT 1`, subject, applicationID, token.AuthorizationValid))
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, errors.Wrap(err, "[TokenStore.FindActiveAuthorization]")
	}
	return a, err
}

// RevokeAuthorization revokes the authorization and its valid tokens in one transaction.
func (s *TokenStore) RevokeAuthorization(ctx context.Context, id string) (int, error) {
	revoked := 0
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE authorizations SET status = $2 WHERE id = $1`, id, token.AuthorizationRevoked)
		if err != nil {
			return errors.Wrap(err, "[TokenStore.RevokeAuthorization] authorization")
		}
		if tag.RowsAffected() == 0 {
			return apperrors.ErrNotFound
		}

		tag, err = tx.Exec(ctx, `UPDATE tokens SET status = $2 WHERE authorization_id = $1 AND status = $3`,
			id, token.StatusRevoked, token.StatusValid)
		if err != nil {
			return errors.Wrap(err, "[TokenStore.RevokeAuthorization] tokens")
		}
		revoked = int(tag.RowsAffected())
		return nil
	})
	return revoked, err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
