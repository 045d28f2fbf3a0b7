//go:build integration

package auth_test

import (
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bookly/authcore/internal/auth"
	"github.com/bookly/authcore/internal/database"
)

func newPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := t.Context()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("authcore_test"),
		postgres.WithUsername("authcore"),
		postgres.WithPassword("authcore"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := database.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = database.ApplyMigrations(ctx, pool, database.Migrations(), quietLogger())
	require.NoError(t, err)
	return pool
}

func TestAccountRepository_Postgres(t *testing.T) {
	pool := newPostgres(t)
	repo := auth.NewAccountRepository(pool)
	ctx := t.Context()

	account := &auth.Account{Email: "Alice@Example.com", PasswordHash: "hash", Phone: "12345678", Age: 30}
	require.NoError(t, repo.Insert(ctx, account))
	assert.Equal(t, "alice@example.com", account.Email)

	err := repo.Insert(ctx, &auth.Account{Email: "alice@example.com", PasswordHash: "x", Phone: "12345678", Age: 1})
	require.ErrorIs(t, err, auth.ErrConflict)

	slot := auth.OTPSlot{CodeHash: auth.HashString("123456"), ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)}
	require.NoError(t, repo.UpdateFields(ctx, account.ID, auth.AccountUpdate{}.SetSlot(auth.PurposeVerify, slot), nil))

	found, err := repo.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, slot.CodeHash, found.VerifyOTP.CodeHash)
	assert.True(t, slot.ExpiresAt.Equal(found.VerifyOTP.ExpiresAt))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	verified := true
	consume := auth.AccountUpdate{IsVerified: &verified}.SetSlot(auth.PurposeVerify, auth.OTPSlot{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.UpdateFields(ctx, account.ID, consume, &auth.OTPGuard{Purpose: auth.PurposeVerify, CodeHash: slot.CodeHash})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else {
				assert.ErrorIs(t, err, auth.ErrConcurrentModification)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	found, err = repo.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, found.IsVerified)
	assert.False(t, found.VerifyOTP.Pending())

	err = repo.UpdateFields(ctx, "6f1c1f62-3f0e-4a4b-9a51-2b8f0b7c1d10", consume, nil)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}
