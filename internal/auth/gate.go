// Package auth holds the optional login gate in front of the quiz endpoints.
package auth

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Authenticator checks a username and password pair.
type Authenticator interface {
	Authenticate(username, password string) error
}

// FixedCredentials accepts exactly one username with a bcrypt password hash.
type FixedCredentials struct {
	username     string
	passwordHash []byte
}

func NewFixedCredentials(username, passwordHash string) *FixedCredentials {
	return &FixedCredentials{username: username, passwordHash: []byte(passwordHash)}
}

func (c *FixedCredentials) Authenticate(username, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.username)) == 1
	if err := bcrypt.CompareHashAndPassword(c.passwordHash, []byte(password)); err != nil || !userOK {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword returns a bcrypt hash suitable for the auth.password_hash setting.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// RequireBasicAuth rejects requests without valid HTTP Basic credentials.
// A nil authenticator disables the gate.
func RequireBasicAuth(authn Authenticator, realm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if authn == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok || authn.Authenticate(username, password) != nil {
				slog.Warn("login rejected", "remote", r.RemoteAddr, "user", username)
				w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
