package clerk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	clerksdk "github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/user"
	"golang.org/x/sync/singleflight"
)

var ErrUserNotFound = errors.New("clerk user not found")

// Directory reads user profiles from the Clerk Backend API.
type Directory struct {
	users   *user.Client
	timeout time.Duration
	group   singleflight.Group
}

// NewDirectory returns nil when no secret key is configured; callers treat a
// nil directory as "token claims only".
func NewDirectory(cfg Config, client *http.Client) *Directory {
	if cfg.SecretKey == "" {
		return nil
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	backend := clerksdk.BackendConfig{
		HTTPClient: client,
		Key:        clerksdk.String(cfg.SecretKey),
	}
	if cfg.APIURL != "" {
		backend.URL = clerksdk.String(cfg.APIURL)
	}
	return &Directory{
		users:   user.NewClient(&clerksdk.ClientConfig{BackendConfig: backend}),
		timeout: timeout,
	}
}

// LookupEmails fetches the user's primary email and all verified addresses.
// Concurrent lookups of one user share a request. A nil Directory knows no
// addresses.
func (d *Directory) LookupEmails(ctx context.Context, userID string) (primary string, all []string, err error) {
	if d == nil {
		return "", nil, nil
	}
	v, err, _ := d.group.Do(userID, func() (any, error) {
		// shared by every waiter on userID, so not bound to this caller's request
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		return d.users.Get(fctx, userID)
	})
	if err != nil {
		var apiErr *clerksdk.APIErrorResponse
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusNotFound {
			return "", nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return "", nil, fmt.Errorf("clerk get user: %w", err)
	}
	u := v.(*clerksdk.User)

	var primaryID string
	if u.PrimaryEmailAddressID != nil {
		primaryID = *u.PrimaryEmailAddressID
	}
	for _, e := range u.EmailAddresses {
		if e == nil {
			continue
		}
		if e.ID == primaryID {
			primary = e.EmailAddress
		}
		if e.Verification == nil || e.Verification.Status == "verified" {
			all = append(all, e.EmailAddress)
		}
	}
	return primary, all, nil
}
