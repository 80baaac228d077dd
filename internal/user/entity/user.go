package entity

import "time"

// User is the local record of an identity-provider account in the `users`
// table. One row per ClerkUserID.
type User struct {
	ID           int64     `db:"id" json:"id,string"`
	ClerkUserID  string    `db:"clerk_user_id" json:"clerkUserId"`
	Email        *string   `db:"email" json:"email"`
	Emails       []string  `db:"-" json:"emails"`
	EmailsRaw    string    `db:"emails" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
	LastSyncedAt time.Time `db:"last_synced_at" json:"lastSyncedAt"`
}

// SyncResult is the outcome of one create-or-confirm call.
type SyncResult struct {
	User    *User
	Created bool
}
