package authn

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/openparcel/openparcel/errs"
	"github.com/openparcel/openparcel/models"
)

// Service implements account creation, credential verification, and
// bearer-token issuance/revocation against a UserRepository.
type Service struct {
	repo UserRepository
}

func NewService(repo UserRepository) *Service {
	return &Service{repo: repo}
}

// Register creates a new account with the default (non-superuser)
// access level.
func (s *Service) Register(ctx context.Context, username, password string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, errs.NotEnoughParameters("username and password are required", 400)
	}
	if _, found, err := s.repo.GetUserByUsername(ctx, username); err != nil {
		return nil, errs.DatabaseError(err)
	} else if found {
		return nil, errs.Conflict(fmt.Sprintf("username %q is already taken", username))
	}

	hash, salt, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("authn: register: %w", err)
	}

	u := &models.User{Username: username, PasswordHash: hash, Salt: salt}
	if err := s.repo.InsertUser(ctx, u); err != nil {
		return nil, errs.DatabaseError(err)
	}
	return u, nil
}

// Authenticate verifies a username/password pair and returns the user.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	u, found, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, errs.DatabaseError(err)
	}
	if !found || !VerifyPassword(password, u.PasswordHash, u.Salt) {
		return nil, errs.AuthenticationFailed("invalid username or password")
	}
	return u, nil
}

// IssueToken authenticates username/password and mints a new bearer
// token for that user, described by description.
func (s *Service) IssueToken(ctx context.Context, username, password, description string) (*models.AuthToken, error) {
	u, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}

	raw := make([]byte, tokenLen)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("authn: generate token: %w", err)
	}

	t := &models.AuthToken{
		Token:       hex.EncodeToString(raw),
		UserID:      u.ID,
		Description: description,
		Active:      true,
	}
	if err := s.repo.InsertAuthToken(ctx, t); err != nil {
		return nil, errs.DatabaseError(err)
	}
	return t, nil
}

// Resolve looks a bearer token up and returns its owning user, failing
// if the token is unknown or has been revoked.
func (s *Service) Resolve(ctx context.Context, token string) (*models.User, error) {
	t, found, err := s.repo.GetAuthToken(ctx, token)
	if err != nil {
		return nil, errs.DatabaseError(err)
	}
	if !found || !t.Active {
		return nil, errs.AuthenticationFailed("invalid or revoked token")
	}
	u, found, err := s.repo.GetUserByID(ctx, t.UserID)
	if err != nil {
		return nil, errs.DatabaseError(err)
	}
	if !found {
		return nil, errs.AuthenticationFailed("token owner no longer exists")
	}
	return u, nil
}

// ResolveCredential implements spec §6's request-level authentication:
// the `auth` query/form parameter or the `X-Auth-Token` header, both
// formatted "username:secret" where secret is a previously issued auth
// token (not the account password). The username is checked against the
// token's owner so a valid token paired with the wrong username fails
// closed rather than silently authenticating as someone else.
func (s *Service) ResolveCredential(ctx context.Context, username, secret string) (*models.User, error) {
	if username == "" || secret == "" {
		return nil, errs.NotEnoughParameters("auth credential must be \"username:token\"", 401)
	}
	u, err := s.Resolve(ctx, secret)
	if err != nil {
		return nil, err
	}
	if u.Username != username {
		return nil, errs.AuthenticationFailed("token does not belong to the given username")
	}
	return u, nil
}

// Revoke deactivates a bearer token.
func (s *Service) Revoke(ctx context.Context, token string) error {
	if err := s.repo.RevokeAuthToken(ctx, token); err != nil {
		return errs.DatabaseError(err)
	}
	return nil
}

// RevokeOwned revokes token only if it belongs to userID, returning
// NotFound otherwise so a caller cannot probe for other users' tokens.
func (s *Service) RevokeOwned(ctx context.Context, userID int64, token string) error {
	t, found, err := s.repo.GetAuthToken(ctx, token)
	if err != nil {
		return errs.DatabaseError(err)
	}
	if !found || t.UserID != userID {
		return errs.NotFound("no such token")
	}
	return s.Revoke(ctx, token)
}
