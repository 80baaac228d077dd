package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/scanner-portal/internal/user/entity"
)

var ErrNotFound = errors.New("user not found")

// UserRepo provides data access for users table using sqlx. Queries are
// written with ? placeholders and rebound for the connected driver.
type UserRepo struct {
	db    *sqlx.DB
	newID func() int64
	now   func() time.Time
}

func NewUserRepo(db *sqlx.DB, newID func() int64) *UserRepo {
	return &UserRepo{db: db, newID: newID, now: func() time.Time { return time.Now().UTC() }}
}

var postgresDDL = []string{
	`CREATE TABLE IF NOT EXISTS users (
  id BIGINT PRIMARY KEY,
  clerk_user_id TEXT NOT NULL UNIQUE,
  email TEXT,
  emails JSONB NOT NULL DEFAULT '[]'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  last_synced_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
}

var sqliteDDL = []string{
	`CREATE TABLE IF NOT EXISTS users (
  id INTEGER PRIMARY KEY,
  clerk_user_id TEXT NOT NULL UNIQUE,
  email TEXT,
  emails TEXT NOT NULL DEFAULT '[]',
  created_at TIMESTAMP NOT NULL,
  updated_at TIMESTAMP NOT NULL,
  last_synced_at TIMESTAMP NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
}

// EnsureTable creates the users table if not exists (idempotent).
// This is a convenience for early development; prefer migrations in production.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	ddl := postgresDDL
	if r.db.DriverName() == "sqlite" {
		ddl = sqliteDDL
	}
	for _, stmt := range ddl {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure users table: %w", err)
		}
	}
	return nil
}

// Upsert creates the row for clerkUserID or confirms the existing one. Email
// fields are written on create and refreshed on confirm when emails is
// non-empty. The UNIQUE constraint plus ON CONFLICT DO NOTHING makes
// concurrent calls for one id produce a single row and a single created=true.
func (r *UserRepo) Upsert(ctx context.Context, clerkUserID, email string, emails []string) (*entity.User, bool, error) {
	if emails == nil {
		emails = []string{}
	}
	raw, err := json.Marshal(emails)
	if err != nil {
		return nil, false, err
	}
	var emailArg *string
	if email != "" {
		emailArg = &email
	}
	now := r.now()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	insert := tx.Rebind(`INSERT INTO users (id, clerk_user_id, email, emails, created_at, updated_at, last_synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (clerk_user_id) DO NOTHING
		RETURNING id`)
	var id int64
	created := true
	err = tx.GetContext(ctx, &id, insert, r.newID(), clerkUserID, emailArg, string(raw), now, now, now)
	if errors.Is(err, sql.ErrNoRows) {
		created = false
	} else if err != nil {
		return nil, false, fmt.Errorf("insert user: %w", err)
	}

	if !created {
		if len(emails) > 0 || emailArg != nil {
			q := tx.Rebind(`UPDATE users SET email = ?, emails = ?, updated_at = ?, last_synced_at = ? WHERE clerk_user_id = ?`)
			_, err = tx.ExecContext(ctx, q, emailArg, string(raw), now, now, clerkUserID)
		} else {
			q := tx.Rebind(`UPDATE users SET last_synced_at = ? WHERE clerk_user_id = ?`)
			_, err = tx.ExecContext(ctx, q, now, clerkUserID)
		}
		if err != nil {
			return nil, false, fmt.Errorf("confirm user: %w", err)
		}
	}

	u, err := getByClerkID(ctx, tx, clerkUserID)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return u, created, nil
}

// GetByClerkID fetches the row for an identity-provider user id or ErrNotFound.
func (r *UserRepo) GetByClerkID(ctx context.Context, clerkUserID string) (*entity.User, error) {
	return getByClerkID(ctx, r.db, clerkUserID)
}

// CountByClerkID returns how many rows carry clerkUserID (0 or 1).
func (r *UserRepo) CountByClerkID(ctx context.Context, clerkUserID string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, r.db.Rebind(`SELECT COUNT(*) FROM users WHERE clerk_user_id = ?`), clerkUserID)
	return n, err
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

func getByClerkID(ctx context.Context, q queryer, clerkUserID string) (*entity.User, error) {
	const query = `SELECT id, clerk_user_id, email, emails, created_at, updated_at, last_synced_at
		FROM users WHERE clerk_user_id = ?`
	var u entity.User
	if err := sqlx.GetContext(ctx, q, &u, q.Rebind(query), clerkUserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, clerkUserID)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u.EmailsRaw != "" {
		if err := json.Unmarshal([]byte(u.EmailsRaw), &u.Emails); err != nil {
			return nil, fmt.Errorf("decode emails: %w", err)
		}
	}
	if u.Emails == nil {
		u.Emails = []string{}
	}
	return &u, nil
}
