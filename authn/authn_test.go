package authn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openparcel/openparcel/models"
)

type memUsers struct {
	byName   map[string]*models.User
	byID     map[int64]*models.User
	tokens   map[string]*models.AuthToken
	nextID   int64
}

func newMemUsers() *memUsers {
	return &memUsers{byName: map[string]*models.User{}, byID: map[int64]*models.User{}, tokens: map[string]*models.AuthToken{}}
}

func (m *memUsers) GetUserByUsername(ctx context.Context, username string) (*models.User, bool, error) {
	u, ok := m.byName[username]
	return u, ok, nil
}

func (m *memUsers) InsertUser(ctx context.Context, u *models.User) error {
	m.nextID++
	u.ID = m.nextID
	m.byName[u.Username] = u
	m.byID[u.ID] = u
	return nil
}

func (m *memUsers) GetAuthToken(ctx context.Context, token string) (*models.AuthToken, bool, error) {
	t, ok := m.tokens[token]
	return t, ok, nil
}

func (m *memUsers) GetUserByID(ctx context.Context, id int64) (*models.User, bool, error) {
	u, ok := m.byID[id]
	return u, ok, nil
}

func (m *memUsers) InsertAuthToken(ctx context.Context, t *models.AuthToken) error {
	m.tokens[t.Token] = t
	return nil
}

func (m *memUsers) RevokeAuthToken(ctx context.Context, token string) error {
	if t, ok := m.tokens[token]; ok {
		t.Active = false
	}
	return nil
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, salt, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, VerifyPassword("correct horse battery staple", hash, salt))
	assert.False(t, VerifyPassword("wrong password", hash, salt))
}

func TestRegisterThenAuthenticate(t *testing.T) {
	svc := NewService(newMemUsers())
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "hunter22")
	require.NoError(t, err)

	u, err := svc.Authenticate(ctx, "alice", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	_, err = svc.Authenticate(ctx, "alice", "wrong")
	require.Error(t, err)
}

func TestRegisterDuplicateUsernameConflicts(t *testing.T) {
	svc := NewService(newMemUsers())
	ctx := context.Background()
	require.NoError(t, err2(svc.Register(ctx, "bob", "pw123456")))
	_, err := svc.Register(ctx, "bob", "different")
	require.Error(t, err)
}

func TestIssueAndResolveAndRevokeToken(t *testing.T) {
	svc := NewService(newMemUsers())
	ctx := context.Background()
	require.NoError(t, err2(svc.Register(ctx, "carol", "s3cret!!")))

	tok, err := svc.IssueToken(ctx, "carol", "s3cret!!", "cli token")
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Token)

	u, err := svc.Resolve(ctx, tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "carol", u.Username)

	require.NoError(t, svc.Revoke(ctx, tok.Token))
	_, err = svc.Resolve(ctx, tok.Token)
	require.Error(t, err)
}

func TestRevokeOwnedRejectsOtherUsersToken(t *testing.T) {
	svc := NewService(newMemUsers())
	ctx := context.Background()
	require.NoError(t, err2(svc.Register(ctx, "dave", "pw-dave-1")))
	require.NoError(t, err2(svc.Register(ctx, "erin", "pw-erin-1")))

	tok, err := svc.IssueToken(ctx, "dave", "pw-dave-1", "")
	require.NoError(t, err)

	erin, err := svc.Authenticate(ctx, "erin", "pw-erin-1")
	require.NoError(t, err)

	err = svc.RevokeOwned(ctx, erin.ID, tok.Token)
	require.Error(t, err)

	dave, err := svc.Authenticate(ctx, "dave", "pw-dave-1")
	require.NoError(t, err)
	require.NoError(t, svc.RevokeOwned(ctx, dave.ID, tok.Token))

	_, err = svc.Resolve(ctx, tok.Token)
	require.Error(t, err)
}

func err2[T any](_ T, err error) error { return err }
