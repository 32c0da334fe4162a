package iap

import (
	"context"
	"net/http"

	"intake/pkg/platform/middleware/admin"
	"intake/pkg/requestcontext"
	"intake/pkg/secrets"
)

// Admission adapts the verifier and sessions to the admin gate.
type Admission struct {
	verifier *Verifier
	sessions *Sessions
	devToken *secrets.Hashed
}

// NewAdmission wires the gate. A nil devToken disables the bypass.
func NewAdmission(v *Verifier, s *Sessions, devToken *secrets.Hashed) *Admission {
	return &Admission{verifier: v, sessions: s, devToken: devToken}
}

func (a *Admission) CheckDevToken(candidate string) bool {
	return a.devToken.Matches(candidate)
}

func (a *Admission) IssueSession(ctx context.Context, user requestcontext.AdminUser) (*http.Cookie, error) {
	value, err := a.sessions.Issue(ctx, user.Email, Mode(user.Mode))
	if err != nil {
		return nil, err
	}
	return a.sessions.Cookie(value), nil
}

func (a *Admission) SessionFromRequest(r *http.Request) (requestcontext.AdminUser, error) {
	claims, err := a.sessions.FromRequest(r)
	if err != nil {
		return requestcontext.AdminUser{}, err
	}
	return requestcontext.AdminUser{Email: claims.Email, UserID: claims.Subject, Mode: string(claims.Mode)}, nil
}

// VerifyAssertion admits only signature-checked assertions; an unverified
// development decode is not an identity.
func (a *Admission) VerifyAssertion(ctx context.Context, token string) (requestcontext.AdminUser, error) {
	user, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return requestcontext.AdminUser{}, err
	}
	if !user.Verified {
		return requestcontext.AdminUser{}, ErrInvalidToken
	}
	return requestcontext.AdminUser{Email: user.Email, UserID: user.UserID, Mode: string(ModeIAP)}, nil
}

var _ admin.Authenticator = (*Admission)(nil)
