package clerk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// SessionCookie is the cookie Clerk's browser SDK keeps the session token in.
const SessionCookie = "__session"

var (
	ErrNoToken      = errors.New("no session token")
	ErrInvalidToken = errors.New("invalid session token")
)

// sessionClaims are the claims of a Clerk session token. The email claims are
// only present when the instance's session token template adds them.
type sessionClaims struct {
	jwt.RegisteredClaims
	AuthorizedParty string   `json:"azp,omitempty"`
	SessionID       string   `json:"sid,omitempty"`
	Email           string   `json:"email,omitempty"`
	PrimaryEmail    string   `json:"primary_email,omitempty"`
	Emails          []string `json:"emails,omitempty"`
}

// Verifier checks session tokens and turns them into identities.
type Verifier struct {
	keys     oidc.KeySet
	parties  []string
	leeway   time.Duration
	now      func() time.Time
	idTokens *oidc.IDTokenVerifier
}

// VerifierOption configures a Verifier.
type VerifierOption func(*verifierOptions)

type verifierOptions struct {
	issuer  string
	parties []string
	leeway  time.Duration
	now     func() time.Time
}

// WithIssuer requires the iss claim to equal issuer, the instance's frontend
// API origin.
func WithIssuer(issuer string) VerifierOption {
	return func(o *verifierOptions) { o.issuer = strings.TrimRight(issuer, "/") }
}

// WithAuthorizedParties restricts accepted azp claims to the given origins.
func WithAuthorizedParties(parties ...string) VerifierOption {
	return func(o *verifierOptions) { o.parties = append(o.parties, parties...) }
}

// WithLeeway tolerates clock skew when checking exp/nbf/iat.
func WithLeeway(d time.Duration) VerifierOption {
	return func(o *verifierOptions) { o.leeway = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) VerifierOption {
	return func(o *verifierOptions) { o.now = now }
}

func NewVerifier(keys oidc.KeySet, opts ...VerifierOption) *Verifier {
	o := verifierOptions{leeway: 5 * time.Second, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	parties := make([]string, 0, len(o.parties))
	for _, p := range o.parties {
		if p = strings.TrimRight(strings.TrimSpace(p), "/"); p != "" {
			parties = append(parties, p)
		}
	}
	v := &Verifier{keys: keys, parties: parties, leeway: o.leeway, now: o.now}
	v.idTokens = oidc.NewVerifier(o.issuer, keys, &oidc.Config{
		// session tokens carry azp, not aud
		SkipClientIDCheck:    true,
		SkipIssuerCheck:      o.issuer == "",
		SupportedSigningAlgs: []string{oidc.RS256},
		// go-oidc compares exp to Now without leeway
		Now: func() time.Time { return v.now().Add(-v.leeway) },
	})
	return v
}

// NewVerifierFromConfig prefers the networkless PEM key and falls back to the
// instance JWKS.
func NewVerifierFromConfig(cfg Config) (*Verifier, error) {
	var keys oidc.KeySet
	switch {
	case cfg.JWTKey != "":
		k, err := NewStaticKey(cfg.JWTKey)
		if err != nil {
			return nil, err
		}
		keys = k
	case cfg.JWKSURL() != "":
		keys = NewJWKSKeySet(cfg.JWKSURL(), &http.Client{Timeout: cfg.HTTPTimeout})
	default:
		return nil, errors.New("clerk: CLERK_JWT_KEY or CLERK_FRONTEND_API is required")
	}
	return NewVerifier(keys,
		WithIssuer(cfg.Origin()),
		WithAuthorizedParties(cfg.AuthorizedParties...),
		WithLeeway(cfg.ClockSkew),
	), nil
}

// Verify validates token and returns the identity it asserts.
func (v *Verifier) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrNoToken
	}
	tok, err := v.idTokens.Verify(ctx, token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	var claims sessionClaims
	if err := tok.Claims(&claims); err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	horizon := v.now().Add(v.leeway)
	if claims.NotBefore != nil && claims.NotBefore.After(horizon) {
		return Identity{}, fmt.Errorf("%w: not valid yet", ErrInvalidToken)
	}
	if claims.IssuedAt != nil && claims.IssuedAt.After(horizon) {
		return Identity{}, fmt.Errorf("%w: issued in the future", ErrInvalidToken)
	}
	if tok.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	if len(v.parties) > 0 && claims.AuthorizedParty != "" && !slices.Contains(v.parties, claims.AuthorizedParty) {
		return Identity{}, fmt.Errorf("%w: unauthorized party %q", ErrInvalidToken, claims.AuthorizedParty)
	}
	primary := claims.PrimaryEmail
	if primary == "" {
		primary = claims.Email
	}
	id := Identity{
		UserID:          tok.Subject,
		SessionID:       claims.SessionID,
		AuthorizedParty: claims.AuthorizedParty,
	}
	return id.WithEmails(primary, claims.Emails), nil
}

// VerifyRequest verifies the token carried by r.
func (v *Verifier) VerifyRequest(r *http.Request) (Identity, error) {
	return v.Verify(r.Context(), TokenFromRequest(r))
}

// TokenFromRequest returns the bearer token, or the session cookie when no
// Authorization header is present.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}
