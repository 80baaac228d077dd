// Package clerktest issues Clerk-shaped session tokens for tests.
package clerktest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const KeyID = "ins_test_key"

// Signer holds a throwaway RSA key.
type Signer struct {
	t   testing.TB
	key *rsa.PrivateKey
}

func NewSigner(t testing.TB) *Signer {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &Signer{t: t, key: k}
}

// PublicPEM returns the public key in the format of CLERK_JWT_KEY.
func (s *Signer) PublicPEM() string {
	der, err := x509.MarshalPKIXPublicKey(&s.key.PublicKey)
	if err != nil {
		s.t.Fatalf("marshal public key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

// Claims builds the default claims of a fresh session for userID.
func Claims(userID string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub": userID,
		"sid": "sess_" + userID,
		"iss": "https://clerk.test",
		"iat": now.Unix(),
		"nbf": now.Add(-time.Second).Unix(),
		"exp": now.Add(time.Minute).Unix(),
	}
}

// Token signs claims with RS256 and the test kid.
func (s *Signer) Token(claims jwt.MapClaims) string {
	return s.TokenWithKeyID(claims, KeyID)
}

// TokenWithKeyID signs claims with RS256 under an arbitrary kid header.
func (s *Signer) TokenWithKeyID(claims jwt.MapClaims, kid string) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(s.key)
	if err != nil {
		s.t.Fatalf("sign token: %v", err)
	}
	return signed
}

// UserToken is Token(Claims(userID)) with the email claim set.
func (s *Signer) UserToken(userID, email string) string {
	c := Claims(userID)
	if email != "" {
		c["email"] = email
	}
	return s.Token(c)
}

// JWKSServer serves the public key as a JWKS document.
func (s *Signer) JWKSServer() *httptest.Server {
	pub := s.key.PublicKey
	doc := map[string]any{"keys": []any{map[string]any{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": KeyID,
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
	s.t.Cleanup(srv.Close)
	return srv
}
