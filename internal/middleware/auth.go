package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rpattn/reiteradas/internal/auth"

	"github.com/sirupsen/logrus"
)

// Authenticate resolves the bearer token of every request into an
// identity. A nil verifier leaves requests unauthenticated.
func Authenticate(verifier auth.Verifier, log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if verifier == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w, errors.New("missing bearer token"))
				return
			}
			identity, err := verifier.Verify(r.Context(), token)
			if err != nil {
				log.WithError(err).WithField("path", r.URL.Path).Warn("rejected token")
				unauthorized(w, auth.ErrInvalidToken)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), identity)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": err.Error()})
}
