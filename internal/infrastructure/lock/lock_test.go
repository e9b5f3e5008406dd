package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttendanceKey(t *testing.T) {
	assert.Equal(t, "lock:attendance:42:2026-03-02:clock-in", AttendanceKey(42, "2026-03-02", "clock-in"))
}

func TestRedisLocker(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewRedisLocker(db)
	l.newToken = func() string { return "tok-1" }
	ctx := context.Background()
	key := AttendanceKey(7, "2026-03-02", "clock-out")

	// 1. Free key is acquired
	mock.ExpectSetNX(key, "tok-1", 2*time.Minute).SetVal(true)
	lease, err := l.Acquire(ctx, key, 2*time.Minute)
	require.NoError(t, err)

	// 2. Held key is refused
	mock.ExpectSetNX(key, "tok-1", 2*time.Minute).SetVal(false)
	_, err = l.Acquire(ctx, key, 2*time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	// 3. Release compares the token before deleting
	mock.ExpectEval(releaseScript, []string{key}, "tok-1").SetVal(int64(1))
	require.NoError(t, lease.Release(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLocker_Error(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewRedisLocker(db)
	l.newToken = func() string { return "tok-1" }

	mock.ExpectSetNX("k", "tok-1", time.Minute).SetErr(errors.New("connection refused"))
	_, err := l.Acquire(context.Background(), "k", time.Minute)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotAcquired)
}

func TestMemoryLocker(t *testing.T) {
	l := NewMemoryLocker()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	// 1. First acquire wins, second is refused
	lease, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	_, err = l.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	// 2. Release frees the key
	require.NoError(t, lease.Release(ctx))
	stale, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	// 3. Expired lock is taken over and the stale lease cannot release it
	now = now.Add(2 * time.Minute)
	fresh, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.NoError(t, stale.Release(ctx))
	_, err = l.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, fresh.Release(ctx))
}
