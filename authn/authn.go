// Package authn implements password hashing and auth token issuance
// (spec §3/§6). Password hashing follows arc-core's
// generateSecureToken shape (crypto/rand for the random material,
// hex-encode for the wire form) generalized from a single SHA-256 pass
// to PBKDF2-HMAC-SHA-256 with a per-user salt, the deliberately slower
// KDF a password (as opposed to a bearer token) needs.
package authn

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/openparcel/openparcel/models"
)

const (
	pbkdf2Iterations = 100_000
	saltLen          = 16
	keyLen           = 32
	tokenLen         = 32
)

// HashPassword derives a PBKDF2-HMAC-SHA-256 hash of password under a
// freshly generated salt.
func HashPassword(password string) (hash, salt []byte, err error) {
	salt = make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("authn: generate salt: %w", err)
	}
	hash = pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keyLen, sha256.New)
	return hash, salt, nil
}

// VerifyPassword reports whether password matches the stored hash/salt,
// using a constant-time comparison to avoid timing side channels.
func VerifyPassword(password string, hash, salt []byte) bool {
	candidate := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keyLen, sha256.New)
	return subtle.ConstantTimeCompare(candidate, hash) == 1
}

// UserRepository is the persistence boundary this package depends on.
type UserRepository interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, bool, error)
	InsertUser(ctx context.Context, u *models.User) error
	GetAuthToken(ctx context.Context, token string) (*models.AuthToken, bool, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, bool, error)
	InsertAuthToken(ctx context.Context, t *models.AuthToken) error
	RevokeAuthToken(ctx context.Context, token string) error
}
