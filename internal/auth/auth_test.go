package auth

import (
	"context"
	"errors"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTokens struct {
	token *firebaseauth.Token
	err   error
}

func (s stubTokens) VerifyIDToken(context.Context, string) (*firebaseauth.Token, error) {
	return s.token, s.err
}

func TestIdentityContext(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	ctx := ContextWithIdentity(context.Background(), Identity{UID: "u1", Email: "a@b.c"})
	identity, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "a@b.c", identity.Email)

	_, ok = IdentityFromContext(ContextWithIdentity(context.Background(), Identity{}))
	assert.False(t, ok)
}

func TestEnforceAdmin(t *testing.T) {
	assert.NoError(t, EnforceAdmin(context.Background()))
	assert.ErrorIs(t, EnforceAdmin(ContextWithIdentity(context.Background(), Identity{UID: "u"})), ErrForbidden)
	assert.NoError(t, EnforceAdmin(ContextWithIdentity(context.Background(), Identity{UID: "u", Admin: true})))
}

func TestFirebaseVerifier(t *testing.T) {
	verifier := newFirebaseVerifier(stubTokens{token: &firebaseauth.Token{
		UID:    "u1",
		Claims: map[string]interface{}{"email": "Ops@Example.com"},
	}}, []string{" ops@example.com "})

	identity, err := verifier.Verify(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, Identity{UID: "u1", Email: "Ops@Example.com", Admin: true}, identity)

	_, err = verifier.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	rejecting := newFirebaseVerifier(stubTokens{err: errors.New("expired")}, nil)
	_, err = rejecting.Verify(context.Background(), "token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestFirebaseVerifierAdminClaim(t *testing.T) {
	verifier := newFirebaseVerifier(stubTokens{token: &firebaseauth.Token{
		UID:    "u2",
		Claims: map[string]interface{}{"admin": true},
	}}, nil)
	identity, err := verifier.Verify(context.Background(), "token")
	require.NoError(t, err)
	assert.True(t, identity.Admin)
}
