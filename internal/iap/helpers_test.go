package iap

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testAudience = "/projects/123456/apps/intake-prod"

type signer struct {
	kid    string
	method jwt.SigningMethod
	key    any
	public any
}

func newECSigner(t *testing.T, kid string) signer {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return signer{kid: kid, method: jwt.SigningMethodES256, key: key, public: &key.PublicKey}
}

func newRSASigner(t *testing.T, kid string) signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return signer{kid: kid, method: jwt.SigningMethodRS256, key: key, public: &key.PublicKey}
}

func (s signer) sign(t *testing.T, claims Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(s.method, claims)
	tok.Header["kid"] = s.kid
	out, err := tok.SignedString(s.key)
	require.NoError(t, err)
	return out
}

func validClaims(now time.Time) Claims {
	return Claims{
		Email:        "ana@bank.test",
		HostedDomain: "bank.test",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://cloud.google.com/iap",
			Subject:   "accounts.google.com:1234",
			Audience:  jwt.ClaimStrings{testAudience},
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
		},
	}
}

func ecJWK(kid string, pub *ecdsa.PublicKey) map[string]string {
	return map[string]string{
		"kty": "EC", "crv": "P-256", "kid": kid, "alg": "ES256", "use": "sig",
		"x": base64.RawURLEncoding.EncodeToString(pub.X.FillBytes(make([]byte, 32))),
		"y": base64.RawURLEncoding.EncodeToString(pub.Y.FillBytes(make([]byte, 32))),
	}
}

func rsaJWK(kid string, pub *rsa.PublicKey) map[string]string {
	e := []byte{byte(pub.E >> 16), byte(pub.E >> 8), byte(pub.E)}
	return map[string]string{
		"kty": "RSA", "kid": kid, "alg": "RS256", "use": "sig",
		"n": base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e": base64.RawURLEncoding.EncodeToString(e),
	}
}
