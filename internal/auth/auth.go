// Package auth carries verified sessions to handlers.
//
// There is no enforcing gate in front of the router. A handler that needs a
// signed-in caller is written as a HandlerFunc and mounted through Require,
// which is the only place a Principal is handed out.
package auth

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/scanner-portal/internal/apperr"
	"github.com/ovaphlow/scanner-portal/internal/clerk"
)

var ErrNotSignedIn = errors.New("not signed in")

// Principal is proof that the request carried a verified session.
type Principal struct {
	identity clerk.Identity
}

// UserID is the identity provider's user id.
func (p Principal) UserID() string { return p.identity.UserID }

// Identity returns the verified identity facts.
func (p Principal) Identity() clerk.Identity { return p.identity }

// TokenVerifier verifies the session token carried by a request.
type TokenVerifier interface {
	VerifyRequest(r *http.Request) (clerk.Identity, error)
}

type principalKey struct{}

func fromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.identity.UserID != ""
}

// Resolve attaches a Principal when the request carries a valid session. It
// never rejects a request.
func Resolve(logger *zap.SugaredLogger, v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := v.VerifyRequest(r)
			if err != nil {
				if !errors.Is(err, clerk.ErrNoToken) {
					logger.Debugw("session not verified", "path", r.URL.Path, "err", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), principalKey{}, Principal{identity: id})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HandlerFunc is a handler that requires a signed-in caller.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, p Principal)

// Require adapts h to http.Handler, answering 401 when the request has no
// verified session.
func Require(logger *zap.SugaredLogger, h HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := fromContext(r.Context())
		if !ok {
			apperr.Write(w, logger, apperr.New(apperr.KindUnauthenticated, ErrNotSignedIn))
			return
		}
		h(w, r, p)
	})
}
