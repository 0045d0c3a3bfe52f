package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/openparcel/openparcel/models"
)

// GetUserByUsername implements authn's lookup boundary.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, bool, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, salt, access_level FROM users WHERE username = $1`,
		username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Salt, &u.AccessLevel)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &u, true, nil
}

// InsertUser creates a new account, assigning u.ID.
func (s *Store) InsertUser(ctx context.Context, u *models.User) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO users (username, password_hash, salt, access_level) VALUES ($1, $2, $3, $4) RETURNING id`,
		u.Username, u.PasswordHash, u.Salt, u.AccessLevel,
	).Scan(&u.ID)
}

// GetAuthToken looks up a token and its owning user.
func (s *Store) GetAuthToken(ctx context.Context, token string) (*models.AuthToken, bool, error) {
	var t models.AuthToken
	err := s.pool.QueryRow(ctx,
		`SELECT token, user_id, description, active FROM auth_tokens WHERE token = $1`,
		token,
	).Scan(&t.Token, &t.UserID, &t.Description, &t.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &t, true, nil
}

// GetUserByID is used once a token's UserID has been resolved.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, bool, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, salt, access_level FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Salt, &u.AccessLevel)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &u, true, nil
}

// InsertAuthToken persists a freshly issued token.
func (s *Store) InsertAuthToken(ctx context.Context, t *models.AuthToken) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO auth_tokens (token, user_id, description, active) VALUES ($1, $2, $3, $4)`,
		t.Token, t.UserID, t.Description, t.Active)
	return err
}

// RevokeAuthToken marks a token inactive rather than deleting it, so a
// revoked token's history remains auditable.
func (s *Store) RevokeAuthToken(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx, `UPDATE auth_tokens SET active = false WHERE token = $1`, token)
	return err
}
