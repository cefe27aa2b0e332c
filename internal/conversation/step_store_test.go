package conversation

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStepStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStepStore()

	step, created, err := store.GetStep(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, FirstStep, step)

	_, created, err = store.GetStep(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, store.SetStep(ctx, "u1", 4))
	step, ok, err := store.Lookup(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, step)

	_, ok, _ = store.Lookup(ctx, "missing")
	assert.False(t, ok)

	assert.ErrorIs(t, store.SetStep(ctx, "u1", 0), ErrInvalidStep)
	assert.ErrorIs(t, store.SetStep(ctx, "u1", ConcludedStep+1), ErrInvalidStep)
	_, _, err = store.GetStep(ctx, "")
	assert.Error(t, err)

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"u1": 4}, snap)
}

func newRedisStepStore(t *testing.T) (*RedisStepStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStepStore(client), mr
}

func TestRedisStepStoreCreatesOnce(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStepStore(t)

	step, created, err := store.GetStep(ctx, "555")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, FirstStep, step)

	require.NoError(t, store.SetStep(ctx, "555", 3))
	step, created, err = store.GetStep(ctx, "555")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 3, step)

	assert.Equal(t, "3", mr.HGet(stepsHashKey, "555"))
}

func TestRedisStepStoreLookupAndSnapshot(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStepStore(t)

	_, ok, err := store.Lookup(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetStep(ctx, "a", 2))
	require.NoError(t, store.SetStep(ctx, "b", ConcludedStep))
	assert.ErrorIs(t, store.SetStep(ctx, "c", 9), ErrInvalidStep)

	step, ok, err := store.Lookup(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ConcludedStep, step)

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 2, "b": ConcludedStep}, snap)
}

func TestPGStepStoreGetStepCreates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPGStepStoreWithQuerier(mock)
	mock.ExpectExec("INSERT INTO conversation_steps").
		WithArgs("555", FirstStep).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	step, created, err := store.GetStep(context.Background(), "555")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, FirstStep, step)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStepStoreGetStepExisting(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPGStepStoreWithQuerier(mock)
	mock.ExpectExec("INSERT INTO conversation_steps").
		WithArgs("555", FirstStep).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT step FROM conversation_steps").
		WithArgs("555").
		WillReturnRows(pgxmock.NewRows([]string{"step"}).AddRow(4))

	step, created, err := store.GetStep(context.Background(), "555")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 4, step)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStepStoreLookupMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPGStepStoreWithQuerier(mock)
	mock.ExpectQuery("SELECT step FROM conversation_steps").
		WithArgs("nobody").
		WillReturnError(pgx.ErrNoRows)

	_, ok, err := store.Lookup(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPGStepStoreSetStepAndSnapshot(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newPGStepStoreWithQuerier(mock)
	mock.ExpectExec("INSERT INTO conversation_steps").
		WithArgs("555", 2).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT user_id, step FROM conversation_steps").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "step"}).AddRow("555", 2).AddRow("777", 6))

	ctx := context.Background()
	require.NoError(t, store.SetStep(ctx, "555", 2))
	assert.ErrorIs(t, store.SetStep(ctx, "555", 0), ErrInvalidStep)

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"555": 2, "777": 6}, snap)
	require.NoError(t, mock.ExpectationsWereMet())
}
