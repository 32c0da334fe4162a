// Package secrets keeps operator-supplied shared secrets out of process memory in plaintext.
package secrets

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/bcrypt"

	dErrors "intake/pkg/domain-errors"
)

// Hashed is a bcrypt digest of a shared secret such as the development bypass token.
type Hashed struct {
	hash []byte
}

// Hash creates a bcrypt hash of the provided secret.
func Hash(secret string) (*Hashed, error) {
	if secret == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "secret cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, dErrors.New(dErrors.CodeValidation, "secret is too long")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not hash secret")
	}
	return &Hashed{hash: hashed}, nil
}

// Matches reports whether candidate is the hashed secret. A nil Hashed never matches.
func (h *Hashed) Matches(candidate string) bool {
	if h == nil || candidate == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(h.hash, []byte(candidate)) == nil
}

// Generate returns n cryptographically random bytes, used for per-process signing keys.
func Generate(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not generate secret")
	}
	return buf, nil
}
