// Package auth carries the caller identity and verifies Firebase ID tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
)

// ErrInvalidToken is returned for a missing, malformed or rejected token.
var ErrInvalidToken = errors.New("invalid id token")

// Verifier resolves a bearer token to a caller.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (Identity, error)
}

type tokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// FirebaseVerifier checks ID tokens issued by Firebase Authentication. A
// caller is an administrator when the token carries the admin claim or
// its email is listed in AdminEmails.
type FirebaseVerifier struct {
	client      tokenVerifier
	adminEmails map[string]struct{}
}

// NewFirebaseVerifier builds a verifier from an initialized Firebase app.
func NewFirebaseVerifier(ctx context.Context, app *firebase.App, adminEmails []string) (*FirebaseVerifier, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get firebase auth client: %w", err)
	}
	return newFirebaseVerifier(client, adminEmails), nil
}

func newFirebaseVerifier(client tokenVerifier, adminEmails []string) *FirebaseVerifier {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, email := range adminEmails {
		if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
			admins[email] = struct{}{}
		}
	}
	return &FirebaseVerifier{client: client, adminEmails: admins}
}

func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (Identity, error) {
	if strings.TrimSpace(idToken) == "" {
		return Identity{}, ErrInvalidToken
	}
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	identity := Identity{UID: token.UID}
	if email, ok := token.Claims["email"].(string); ok {
		identity.Email = email
	}
	if admin, ok := token.Claims["admin"].(bool); ok && admin {
		identity.Admin = true
	}
	if _, ok := v.adminEmails[strings.ToLower(identity.Email)]; ok {
		identity.Admin = true
	}
	return identity, nil
}
