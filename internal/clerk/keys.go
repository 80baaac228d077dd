package clerk

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

var ErrUnknownKey = errors.New("unknown signing key")

// NewStaticKey parses a PEM encoded RSA public key (Clerk "JWT public key").
// The resulting key set verifies any kid, so no network is needed.
func NewStaticKey(pemKey string) (*oidc.StaticKeySet, error) {
	pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemKey))
	if err != nil {
		return nil, fmt.Errorf("parse jwt key: %w", err)
	}
	return &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{pub}}, nil
}

// JWKSKeySet verifies signatures against the instance JWKS. Fetching and
// caching are done by go-oidc. A kid that has never verified a token is rate
// limited, and concurrent first lookups of one kid share a single fetch.
type JWKSKeySet struct {
	remote  oidc.KeySet
	timeout time.Duration

	group   singleflight.Group
	limiter *rate.Limiter

	mu    sync.RWMutex
	known map[string]struct{}
}

// NewJWKSKeySet builds a key set for url. A nil client uses a 10s timeout client.
func NewJWKSKeySet(url string, client *http.Client) *JWKSKeySet {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	timeout := client.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &JWKSKeySet{
		remote:  oidc.NewRemoteKeySet(oidc.ClientContext(context.Background(), client), url),
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Every(30*time.Second), 2),
		known:   map[string]struct{}{},
	}
}

// VerifySignature implements oidc.KeySet.
func (s *JWKSKeySet) VerifySignature(ctx context.Context, token string) ([]byte, error) {
	kid := keyID(token)
	if s.isKnown(kid) {
		return s.remote.VerifySignature(ctx, token)
	}

	var (
		led     bool
		payload []byte
		err     error
	)
	_, ferr, _ := s.group.Do(kid, func() (any, error) {
		// a flight that finished just before this one may have loaded kid
		if s.isKnown(kid) {
			return nil, nil
		}
		if !s.limiter.Allow() {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKey, kid)
		}
		// shared by every waiter on kid, so not bound to this caller's request
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		led = true
		payload, err = s.remote.VerifySignature(fctx, token)
		if err == nil {
			s.remember(kid)
		}
		return nil, nil
	})
	if ferr != nil {
		return nil, ferr
	}
	if !led {
		payload, err = s.remote.VerifySignature(ctx, token)
		if err == nil {
			s.remember(kid)
		}
	}
	return payload, err
}

func (s *JWKSKeySet) isKnown(kid string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.known[kid]
	return ok
}

func (s *JWKSKeySet) remember(kid string) {
	s.mu.Lock()
	s.known[kid] = struct{}{}
	s.mu.Unlock()
}

// keyID reads the kid header without verifying anything.
func keyID(token string) string {
	t, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return ""
	}
	kid, _ := t.Header["kid"].(string)
	return kid
}
