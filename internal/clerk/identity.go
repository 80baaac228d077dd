// Package clerk integrates the Clerk identity provider: it verifies session
// tokens issued to browsers and reads user profiles from the Backend API.
package clerk

import (
	"context"
	"strings"
)

// Identity is what a verified session says about its user. Facts only; the
// caller decides what to do with them.
type Identity struct {
	UserID          string
	SessionID       string
	AuthorizedParty string
	PrimaryEmail    string
	Emails          []string
}

// HasEmail reports whether any email address is known for the identity.
func (i Identity) HasEmail() bool {
	return i.PrimaryEmail != "" || len(i.Emails) > 0
}

// WithEmails returns a copy carrying the given addresses. The primary address
// is always part of the list.
func (i Identity) WithEmails(primary string, all []string) Identity {
	i.PrimaryEmail = strings.TrimSpace(primary)
	i.Emails = normalizeEmails(i.PrimaryEmail, all)
	return i
}

// normalizeEmails trims, drops blanks and duplicates (case-insensitively), and
// puts primary first.
func normalizeEmails(primary string, all []string) []string {
	out := make([]string, 0, len(all)+1)
	seen := make(map[string]struct{}, len(all)+1)
	add := func(e string) {
		e = strings.TrimSpace(e)
		if e == "" {
			return
		}
		k := strings.ToLower(e)
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	add(primary)
	for _, e := range all {
		add(e)
	}
	return out
}

// EmailLookup fetches a user's email addresses from the identity provider.
type EmailLookup interface {
	LookupEmails(ctx context.Context, userID string) (primary string, all []string, err error)
}

// Enrich fills in email addresses the session token did not carry. A nil
// lookup, or an identity that already has emails, is returned unchanged.
func Enrich(ctx context.Context, lookup EmailLookup, id Identity) (Identity, error) {
	if lookup == nil || id.HasEmail() {
		return id, nil
	}
	primary, all, err := lookup.LookupEmails(ctx, id.UserID)
	if err != nil {
		return id, err
	}
	return id.WithEmails(primary, all), nil
}
