package user

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ovaphlow/scanner-portal/internal/apperr"
	"github.com/ovaphlow/scanner-portal/internal/clerk"
	"github.com/ovaphlow/scanner-portal/internal/metrics"
	"github.com/ovaphlow/scanner-portal/internal/user/entity"
	"github.com/ovaphlow/scanner-portal/internal/user/repo"
)

var ErrMissingIdentity = errors.New("identity has no user id")

// Store persists user records.
type Store interface {
	Upsert(ctx context.Context, clerkUserID, email string, emails []string) (*entity.User, bool, error)
	GetByClerkID(ctx context.Context, clerkUserID string) (*entity.User, error)
}

// UserService links identity-provider accounts to local user records.
type UserService struct {
	store  Store
	emails clerk.EmailLookup
	logger *zap.SugaredLogger
}

// NewUserService builds the service. emails may be nil, in which case only
// addresses carried by the session token are stored.
func NewUserService(store Store, emails clerk.EmailLookup, logger *zap.SugaredLogger) *UserService {
	return &UserService{store: store, emails: emails, logger: logger}
}

// Sync ensures a record exists for id and refreshes its email fields.
// Safe to call any number of times for the same id: the first call reports
// Created, later ones confirm.
func (s *UserService) Sync(ctx context.Context, id clerk.Identity) (*entity.SyncResult, error) {
	if id.UserID == "" {
		metrics.RecordSync("failed")
		return nil, ErrMissingIdentity
	}
	enriched, err := clerk.Enrich(ctx, s.emails, id)
	if err != nil {
		// addresses are refreshed on a later sync
		s.logger.Warnw("email lookup failed; syncing without emails", "clerk_user_id", id.UserID, "err", err)
		enriched = id
	}
	u, created, err := s.store.Upsert(ctx, enriched.UserID, enriched.PrimaryEmail, enriched.Emails)
	if err != nil {
		metrics.RecordSync("failed")
		return nil, fmt.Errorf("sync user %s: %w", id.UserID, err)
	}
	if created {
		metrics.RecordSync("created")
		s.logger.Infow("user created", "clerk_user_id", u.ClerkUserID, "id", u.ID)
	} else {
		metrics.RecordSync("confirmed")
		s.logger.Debugw("user confirmed", "clerk_user_id", u.ClerkUserID, "id", u.ID)
	}
	return &entity.SyncResult{User: u, Created: created}, nil
}

// Get returns the stored record for clerkUserID. A user who never synced is
// a not_found error.
func (s *UserService) Get(ctx context.Context, clerkUserID string) (*entity.User, error) {
	u, err := s.store.GetByClerkID(ctx, clerkUserID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperr.New(apperr.KindNotFound, err)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", clerkUserID, err)
	}
	return u, nil
}
