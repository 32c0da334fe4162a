// Package iap verifies identity assertions issued by the perimeter
// identity-aware proxy and manages the admin session cookie.
package iap

import (
	"github.com/golang-jwt/jwt/v5"
)

// HeaderAssertion carries the signed assertion on every proxied request.
const HeaderAssertion = "x-goog-iap-jwt-assertion"

// Issuers accepted on an assertion. Anything else is rejected.
var Issuers = []string{
	"https://cloud.google.com/iap",
	"accounts.google.com",
}

// defaultDomain is reported for consumer accounts without a hosted domain.
const defaultDomain = "gmail.com"

// Claims is the assertion payload.
type Claims struct {
	Email        string `json:"email"`
	HostedDomain string `json:"hd,omitempty"`
	jwt.RegisteredClaims
}

// Mode tells how a user was admitted.
type Mode string

const (
	ModeIAP         Mode = "iap"
	ModeUnverified  Mode = "unverified"
	ModeDevelopment Mode = "development"
	ModeDevToken    Mode = "dev_token"
	ModeSession     Mode = "session"
)

// User is the identity returned to the browser.
type User struct {
	Email    string `json:"email"`
	UserID   string `json:"userId"`
	Domain   string `json:"domain"`
	Verified bool   `json:"verified"`
	Mode     Mode   `json:"mode,omitempty"`
}

func userFromClaims(c *Claims, verified bool, mode Mode) *User {
	domain := c.HostedDomain
	if domain == "" {
		domain = defaultDomain
	}
	return &User{
		Email:    c.Email,
		UserID:   c.Subject,
		Domain:   domain,
		Verified: verified,
		Mode:     mode,
	}
}

// DevelopmentUser is reported for a development session.
func DevelopmentUser() *User {
	return &User{
		Email:    "admin@desarrollo.local",
		UserID:   "dev-user-123",
		Domain:   "desarrollo.local",
		Verified: true,
		Mode:     ModeDevelopment,
	}
}
