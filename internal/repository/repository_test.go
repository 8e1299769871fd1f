// Tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"geez-bingo/internal/model"
	"geez-bingo/internal/pkg/db"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a migrated store.
// Skips the test if Docker is not available
func setupTestDB(t *testing.T) (*PgStore, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, db.Migrate(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return NewPgStore(pool), cleanup
}

func TestPgStore_CreateUser(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	user, err := store.CreateUser(ctx, 12345, "abebe", 200)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), user.ExternalID)
	assert.Equal(t, "abebe", user.Name)
	assert.Equal(t, int64(200), user.Balance)
	assert.False(t, user.CreatedAt.IsZero())

	_, err = store.CreateUser(ctx, 12345, "other", 200)
	assert.ErrorIs(t, err, ErrUserExists)

	got, err := store.GetUserByExternalID(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = store.GetUser(ctx, 999999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestPgStore_ListTopUsers(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	for i, bal := range []int64{50, 300, 120} {
		_, err := store.CreateUser(ctx, int64(i+1), "u", bal)
		require.NoError(t, err)
	}

	top, err := store.ListTopUsers(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, int64(300), top[0].Balance)
	assert.Equal(t, int64(120), top[1].Balance)
}

func TestPgStore_UpdateBalanceGuard(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	user, err := store.CreateUser(ctx, 1, "a", 15)
	require.NoError(t, err)

	_, err = store.UpdateBalance(ctx, user.ID, -20)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	updated, err := store.UpdateBalance(ctx, user.ID, -15)
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated.Balance)

	_, err = store.UpdateBalance(ctx, 424242, 5)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestPgStore_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	user, err := store.CreateUser(ctx, 1, "a", 50)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.UpdateBalance(ctx, user.ID, -10); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	got, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Balance)
}

func TestPgStore_WithTxRollsBack(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	user, err := store.CreateUser(ctx, 1, "a", 100)
	require.NoError(t, err)
	sess, err := store.CreateSession(ctx, 10, "line")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.WithTx(ctx, func(q Queries) error {
		if _, err := q.UpdateBalance(ctx, user.ID, -10); err != nil {
			return err
		}
		if _, err := q.CreateTransaction(ctx, &model.Transaction{UserID: user.ID, Kind: model.TxKindStake, Amount: -10, SessionID: &sess.ID}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Balance)

	txs, err := store.ListTransactions(ctx, user.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestPgStore_SessionLifecycle(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, 10, "line")
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaiting, sess.Status)
	assert.Empty(t, sess.Called)

	_, err = store.CreateSession(ctx, 10, "line")
	assert.ErrorIs(t, err, ErrOpenSessionExists)

	now := time.Now()
	current := "N-40"
	sess.Status = model.StatusActive
	sess.StartedAt = &now
	sess.Called = []string{"B-1", "N-40"}
	sess.CurrentNumber = &current
	sess.Pot = 20
	require.NoError(t, store.UpdateSession(ctx, sess))

	got, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, got.Status)
	assert.Equal(t, []string{"B-1", "N-40"}, got.Called)
	require.NotNil(t, got.CurrentNumber)
	assert.Equal(t, "N-40", *got.CurrentNumber)
	assert.Equal(t, int64(20), got.Pot)

	active, err := store.ListSessionsByStatus(ctx, model.StatusActive)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	_, err = store.GetSession(ctx, 987654)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPgStore_Players(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	user, err := store.CreateUser(ctx, 1, "abebe", 100)
	require.NoError(t, err)
	sess, err := store.CreateSession(ctx, 10, "line")
	require.NoError(t, err)

	p1, err := store.CreatePlayer(ctx, &model.Player{SessionID: sess.ID, UserID: user.ID, CardNumber: 145})
	require.NoError(t, err)
	assert.NotZero(t, p1.ID)

	_, err = store.CreatePlayer(ctx, &model.Player{SessionID: sess.ID, UserID: user.ID, CardNumber: 145})
	assert.ErrorIs(t, err, ErrCardTaken)

	p2, err := store.CreatePlayer(ctx, &model.Player{SessionID: sess.ID, UserID: user.ID, CardNumber: 146})
	require.NoError(t, err)

	p2.Marked = []string{"I-20"}
	p2.Won = true
	require.NoError(t, store.UpdatePlayer(ctx, p2))

	players, err := store.ListPlayers(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.Equal(t, p1.ID, players[0].ID)
	assert.Equal(t, "abebe", players[0].UserName)
	assert.Equal(t, []string{"I-20"}, players[1].Marked)
	assert.True(t, players[1].Won)
}

func TestPgStore_Transactions(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	user, err := store.CreateUser(ctx, 1, "a", 100)
	require.NoError(t, err)

	for _, amount := range []int64{-10, 30} {
		_, err := store.CreateTransaction(ctx, &model.Transaction{UserID: user.ID, Kind: model.TxKindWin, Amount: amount})
		require.NoError(t, err)
	}

	all, err := store.ListTransactions(ctx, user.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(30), all[0].Amount)
	assert.Nil(t, all[0].SessionID)

	one, err := store.ListTransactions(ctx, user.ID, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}
