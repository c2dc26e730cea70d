package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/furniture-store/internal/domain"
	"github.com/vladislavdragonenkov/furniture-store/internal/storage/memory"
)

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	assert.NoError(t, h.Compare(hash, "correct horse"))
	assert.ErrorIs(t, h.Compare(hash, "wrong"), domain.ErrInvalidCredentials)
}

func TestTokenManager_RoundTrip(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)

	token, exp, err := m.Issue(domain.User{ID: "u-1", Role: domain.RoleAdmin})
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	p, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", p.UserID)
	assert.True(t, p.IsAdmin())
}

func TestTokenManager_Rejects(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)
	token, _, err := m.Issue(domain.User{ID: "u-1", Role: domain.RoleCustomer})
	require.NoError(t, err)

	other := NewTokenManager("another-secret", time.Hour)
	_, err = other.Parse(token)
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	expired := NewTokenManager("secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _, err := expired.Issue(domain.User{ID: "u-1", Role: domain.RoleCustomer})
	require.NoError(t, err)
	_, err = m.Parse(old)
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Role: domain.RoleAdmin})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.Parse(unsigned)
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = m.Parse("garbage")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestPrincipal_CanAccess(t *testing.T) {
	customer := Principal{UserID: "u-1", Role: domain.RoleCustomer}
	admin := Principal{UserID: "a-1", Role: domain.RoleAdmin}

	assert.True(t, customer.CanAccess("u-1"))
	assert.False(t, customer.CanAccess("u-2"))
	assert.True(t, admin.CanAccess("u-2"))
	assert.False(t, Principal{}.CanAccess(""))
}

func TestAuthenticator_Login(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	hasher := NewBcryptHasher(bcrypt.MinCost)

	hash, err := hasher.Hash("s3cret-pass")
	require.NoError(t, err)
	user, err := store.Users().Create(ctx, domain.User{Username: "maria", PasswordHash: hash, Role: domain.RoleCustomer})
	require.NoError(t, err)

	tokens := NewTokenManager("secret", time.Hour)
	a := NewAuthenticator(store.Users(), hasher, tokens)

	session, err := a.Login(ctx, "maria", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.User.ID)

	p, err := tokens.Parse(session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, p.UserID)

	_, err = a.Login(ctx, "maria", "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = a.Login(ctx, "nobody", "s3cret-pass")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	require.NoError(t, store.Users().SoftDelete(ctx, user.ID))
	_, err = a.Login(ctx, "maria", "s3cret-pass")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials, "deleted users cannot log in")
}
