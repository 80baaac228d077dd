package clerk

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/scanner-portal/internal/clerk/clerktest"
)

func newStaticVerifier(t *testing.T, s *clerktest.Signer, opts ...VerifierOption) *Verifier {
	t.Helper()
	key, err := NewStaticKey(s.PublicPEM())
	require.NoError(t, err)
	return NewVerifier(key, opts...)
}

func TestVerifyValidToken(t *testing.T) {
	s := clerktest.NewSigner(t)
	v := newStaticVerifier(t, s)

	c := clerktest.Claims("user_123")
	c["email"] = "a@example.com"
	c["emails"] = []string{"b@example.com", "A@example.com"}
	id, err := v.Verify(context.Background(), s.Token(c))
	require.NoError(t, err)

	assert.Equal(t, "user_123", id.UserID)
	assert.Equal(t, "sess_user_123", id.SessionID)
	assert.Equal(t, "a@example.com", id.PrimaryEmail)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, id.Emails)
}

func TestVerifyRejects(t *testing.T) {
	s := clerktest.NewSigner(t)
	other := clerktest.NewSigner(t)
	v := newStaticVerifier(t, s, WithAuthorizedParties("https://app.example.com/"))

	expired := clerktest.Claims("user_1")
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	noExp := clerktest.Claims("user_1")
	delete(noExp, "exp")

	noSub := clerktest.Claims("")

	wrongParty := clerktest.Claims("user_1")
	wrongParty["azp"] = "https://evil.example.com"

	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, clerktest.Claims("user_1"))
	hsToken, err := hs.SignedString([]byte("secret"))
	require.NoError(t, err)

	cases := map[string]string{
		"expired":     s.Token(expired),
		"no exp":      s.Token(noExp),
		"no sub":      s.Token(noSub),
		"wrong azp":   s.Token(wrongParty),
		"wrong key":   other.Token(clerktest.Claims("user_1")),
		"hmac":        hsToken,
		"not a token": "garbage",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err = v.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestVerifyAllowsListedParty(t *testing.T) {
	s := clerktest.NewSigner(t)
	v := newStaticVerifier(t, s, WithAuthorizedParties("https://app.example.com"))

	c := clerktest.Claims("user_1")
	c["azp"] = "https://app.example.com"
	_, err := v.Verify(context.Background(), s.Token(c))
	assert.NoError(t, err)
}

func TestVerifyClockLeeway(t *testing.T) {
	s := clerktest.NewSigner(t)
	c := clerktest.Claims("user_1")
	c["exp"] = time.Now().Add(-2 * time.Second).Unix()

	strict := newStaticVerifier(t, s, WithLeeway(0))
	_, err := strict.Verify(context.Background(), s.Token(c))
	assert.Error(t, err)

	lenient := newStaticVerifier(t, s, WithLeeway(10*time.Second))
	_, err = lenient.Verify(context.Background(), s.Token(c))
	assert.NoError(t, err)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", TokenFromRequest(r))

	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "cookie-token"})
	assert.Equal(t, "cookie-token", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer header-token")
	assert.Equal(t, "header-token", TokenFromRequest(r))

	r.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", TokenFromRequest(r))
}

// countingJWKS proxies the signer's JWKS and counts fetches. Each fetch waits
// for gate to be closed when gate is non-nil.
func countingJWKS(t *testing.T, s *clerktest.Signer, gate chan struct{}, started chan struct{}) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	jwks := s.JWKSServer()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 && started != nil {
			close(started)
		}
		if gate != nil {
			<-gate
		}
		resp, err := http.Get(jwks.URL)
		if err != nil {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.Copy(w, resp.Body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestJWKSKeySetCachesAndCollapses(t *testing.T) {
	s := clerktest.NewSigner(t)
	srv, hits := countingJWKS(t, s, nil, nil)
	v := NewVerifier(NewJWKSKeySet(srv.URL, nil))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := v.Verify(context.Background(), s.UserToken("user_1", ""))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// cached now
	_, err := v.Verify(context.Background(), s.UserToken("user_2", ""))
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestJWKSKeySetLimitsUnknownKeys(t *testing.T) {
	s := clerktest.NewSigner(t)
	srv, hits := countingJWKS(t, s, nil, nil)
	v := NewVerifier(NewJWKSKeySet(srv.URL, nil))

	_, err := v.Verify(context.Background(), s.UserToken("user_1", ""))
	require.NoError(t, err)
	require.Equal(t, int32(1), hits.Load())

	// burst of 2: one refetch for a forged kid, then refused without a fetch
	for i := 0; i < 3; i++ {
		_, err := v.Verify(context.Background(), s.TokenWithKeyID(clerktest.Claims("user_1"), "ins_forged"))
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
	assert.Equal(t, int32(2), hits.Load())

	// the real kid keeps working from cache
	_, err = v.Verify(context.Background(), s.UserToken("user_1", ""))
	assert.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestJWKSKeySetSharedFetchSurvivesCallerCancel(t *testing.T) {
	s := clerktest.NewSigner(t)
	gate := make(chan struct{})
	started := make(chan struct{})
	srv, hits := countingJWKS(t, s, gate, started)
	v := NewVerifier(NewJWKSKeySet(srv.URL, nil))

	first, cancel := context.WithCancel(context.Background())
	go func() {
		_, _ = v.Verify(first, s.UserToken("user_1", ""))
	}()
	<-started

	second := make(chan error, 1)
	go func() {
		_, err := v.Verify(context.Background(), s.UserToken("user_2", ""))
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	close(gate)

	select {
	case err := <-second:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("verification did not finish")
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestVerifyIssuer(t *testing.T) {
	s := clerktest.NewSigner(t)

	v := newStaticVerifier(t, s, WithIssuer("https://clerk.test/"))
	_, err := v.Verify(context.Background(), s.UserToken("user_1", ""))
	assert.NoError(t, err)

	v = newStaticVerifier(t, s, WithIssuer("https://clerk.other"))
	_, err = v.Verify(context.Background(), s.UserToken("user_1", ""))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyNotBeforeAndIssuedAt(t *testing.T) {
	s := clerktest.NewSigner(t)
	v := newStaticVerifier(t, s, WithLeeway(time.Second))

	early := clerktest.Claims("user_1")
	early["nbf"] = time.Now().Add(time.Minute).Unix()
	_, err := v.Verify(context.Background(), s.Token(early))
	assert.ErrorIs(t, err, ErrInvalidToken)

	future := clerktest.Claims("user_1")
	future["iat"] = time.Now().Add(time.Minute).Unix()
	_, err = v.Verify(context.Background(), s.Token(future))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewVerifierFromConfig(t *testing.T) {
	_, err := NewVerifierFromConfig(Config{})
	assert.Error(t, err)

	_, err = NewVerifierFromConfig(Config{JWTKey: "not pem"})
	assert.Error(t, err)

	v, err := NewVerifierFromConfig(Config{FrontendAPI: "clerk.example.com"})
	require.NoError(t, err)
	assert.IsType(t, &JWKSKeySet{}, v.keys)
}

func TestConfigJWKSURL(t *testing.T) {
	assert.Equal(t, "", Config{}.JWKSURL())
	assert.Equal(t, "https://clerk.example.com/.well-known/jwks.json", Config{FrontendAPI: "clerk.example.com"}.JWKSURL())
	assert.Equal(t, "http://localhost:9000/.well-known/jwks.json", Config{FrontendAPI: "http://localhost:9000"}.JWKSURL())
}
