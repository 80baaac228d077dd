package repo

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/scanner-portal/pkg/database"
	"github.com/ovaphlow/scanner-portal/pkg/utilities"
)

func newTestRepo(t *testing.T) *UserRepo {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, DSN: "file::memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	r := NewUserRepo(db, utilities.NewSnowflakeInt64)
	require.NoError(t, r.EnsureTable(context.Background()))
	return r
}

func TestEnsureTableIdempotent(t *testing.T) {
	r := newTestRepo(t)
	assert.NoError(t, r.EnsureTable(context.Background()))
}

func TestUpsertCreatesThenConfirms(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	u1, created, err := r.Upsert(ctx, "user_1", "a@example.com", []string{"a@example.com"})
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, u1.Email)
	assert.Equal(t, "a@example.com", *u1.Email)
	assert.Equal(t, []string{"a@example.com"}, u1.Emails)

	u2, created, err := r.Upsert(ctx, "user_1", "a@example.com", []string{"a@example.com"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, u1.ID, u2.ID)

	n, err := r.CountByClerkID(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpsertRefreshesEmails(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	_, _, err := r.Upsert(ctx, "user_1", "old@example.com", []string{"old@example.com"})
	require.NoError(t, err)

	u, created, err := r.Upsert(ctx, "user_1", "new@example.com", []string{"new@example.com", "old@example.com"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "new@example.com", *u.Email)
	assert.Equal(t, []string{"new@example.com", "old@example.com"}, u.Emails)

	// an assertion without emails confirms without clearing what is stored
	u, created, err = r.Upsert(ctx, "user_1", "", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "new@example.com", *u.Email)
}

func TestUpsertWithoutEmail(t *testing.T) {
	r := newTestRepo(t)

	u, created, err := r.Upsert(context.Background(), "user_noemail", "", nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Nil(t, u.Email)
	assert.Equal(t, []string{}, u.Emails)
}

func TestUpsertConcurrentDuplicates(t *testing.T) {
	// file-backed so the pool really holds several connections
	dsn := "file:" + filepath.Join(t.TempDir(), "users.db") + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, DSN: dsn, MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.Equal(t, 8, db.Stats().MaxOpenConnections)

	r := NewUserRepo(db, utilities.NewSnowflakeInt64)
	ctx := context.Background()
	require.NoError(t, r.EnsureTable(ctx))

	var createdCount, failed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := r.Upsert(ctx, "user_race", "r@example.com", nil)
			if !assert.NoError(t, err) {
				failed.Add(1)
			}
			if created {
				createdCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(0), failed.Load())
	assert.Equal(t, int32(1), createdCount.Load())
	n, err := r.CountByClerkID(ctx, "user_race")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetByClerkIDNotFound(t *testing.T) {
	r := newTestRepo(t)
	_, err := r.GetByClerkID(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteBindType(t *testing.T) {
	assert.Equal(t, sqlx.QUESTION, sqlx.BindType(database.DriverSQLite))
}
