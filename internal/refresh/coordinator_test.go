package refresh

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lifeflow/lifeflow/internal/tokenstore"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator() (*Coordinator, *tokenstore.MemoryStore) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store := tokenstore.NewMemoryStore()
	return NewCoordinator(store, logger), store
}

// gatedRefresh blocks every call until release is closed.
func gatedRefresh(calls *int32, release <-chan struct{}, token string, err error) Func {
	return func(ctx context.Context) (string, error) {
		atomic.AddInt32(calls, 1)
		<-release
		return token, err
	}
}

func TestCoordinator_SingleCaller(t *testing.T) {
	c, store := newTestCoordinator()
	store.Set("T1")

	token, err := c.Refresh(context.Background(), func(ctx context.Context) (string, error) {
		return "T2", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "T2", token)
	got, _ := store.Get()
	assert.Equal(t, "T2", got)
	assert.False(t, c.Refreshing())
}

func TestCoordinator_ConcurrentCallersShareOneRefresh(t *testing.T) {
	c, store := newTestCoordinator()

	var calls int32
	release := make(chan struct{})
	fn := gatedRefresh(&calls, release, "T2", nil)

	const callers = 5
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		tokens[0], errs[0] = c.Refresh(context.Background(), fn)
	}()
	require.Eventually(t, c.Refreshing, time.Second, time.Millisecond)

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = c.Refresh(context.Background(), fn)
		}(i)
	}
	require.Eventually(t, func() bool { return c.Pending() == callers-1 }, time.Second, time.Millisecond)

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for i := 0; i < callers; i++ {
		assert.NoError(t, errs[i])
		assert.Equal(t, "T2", tokens[i])
	}
	got, ok := store.Get()
	assert.True(t, ok)
	assert.Equal(t, "T2", got)
	assert.Zero(t, c.Pending())
}

func TestCoordinator_FailureReleasesAllWaitersAndClearsStore(t *testing.T) {
	c, store := newTestCoordinator()
	store.Set("stale")

	refreshErr := errors.New("refresh rejected")
	var calls int32
	release := make(chan struct{})
	fn := gatedRefresh(&calls, release, "", refreshErr)

	var wg sync.WaitGroup
	errs := make([]error, 3)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = c.Refresh(context.Background(), fn)
	}()
	require.Eventually(t, c.Refreshing, time.Second, time.Millisecond)

	for i := 1; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Refresh(context.Background(), fn)
		}(i)
	}
	require.Eventually(t, func() bool { return c.Pending() == 2 }, time.Second, time.Millisecond)

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, err := range errs {
		assert.ErrorIs(t, err, refreshErr)
	}
	_, ok := store.Get()
	assert.False(t, ok)
	assert.False(t, c.Refreshing())
}

func TestCoordinator_EmptyTokenIsFailure(t *testing.T) {
	c, store := newTestCoordinator()
	store.Set("stale")

	_, err := c.Refresh(context.Background(), func(ctx context.Context) (string, error) {
		return "", nil
	})

	assert.ErrorIs(t, err, ErrEmptyToken)
	_, ok := store.Get()
	assert.False(t, ok)
}

func TestCoordinator_QueuedCallerCancellation(t *testing.T) {
	c, _ := newTestCoordinator()

	var calls int32
	release := make(chan struct{})
	fn := gatedRefresh(&calls, release, "T2", nil)

	leaderDone := make(chan struct{})
	go func() {
		defer close(leaderDone)
		_, _ = c.Refresh(context.Background(), fn)
	}()
	require.Eventually(t, c.Refreshing, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	waiterDone := make(chan error, 1)
	go func() {
		_, err := c.Refresh(ctx, fn)
		waiterDone <- err
	}()
	require.Eventually(t, func() bool { return c.Pending() == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-waiterDone, context.Canceled)
	assert.Zero(t, c.Pending())

	close(release)
	<-leaderDone
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCoordinator_SequentialRefreshesEachCall(t *testing.T) {
	c, _ := newTestCoordinator()

	var calls int32
	fn := func(ctx context.Context) (string, error) {
		n := atomic.AddInt32(&calls, 1)
		return "T" + string(rune('0'+n)), nil
	}

	first, err := c.Refresh(context.Background(), fn)
	require.NoError(t, err)
	second, err := c.Refresh(context.Background(), fn)
	require.NoError(t, err)

	assert.Equal(t, "T1", first)
	assert.Equal(t, "T2", second)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCoordinator_LeaderCancellationDoesNotFailWaiters(t *testing.T) {
	c, store := newTestCoordinator()
	store.Set("stale")

	release := make(chan struct{})
	fnErr := make(chan error, 1)
	fn := func(ctx context.Context) (string, error) {
		<-release
		fnErr <- ctx.Err()
		return "T2", nil
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderDone := make(chan error, 1)
	go func() {
		_, err := c.Refresh(leaderCtx, fn)
		leaderDone <- err
	}()
	require.Eventually(t, c.Refreshing, time.Second, time.Millisecond)

	waiterDone := make(chan result, 1)
	go func() {
		token, err := c.Refresh(context.Background(), fn)
		waiterDone <- result{token: token, err: err}
	}()
	require.Eventually(t, func() bool { return c.Pending() == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-leaderDone, context.Canceled)
	_, ok := store.Get()
	assert.True(t, ok, "cancelling the leader must not clear the session")

	close(release)
	r := <-waiterDone
	require.NoError(t, r.err)
	assert.Equal(t, "T2", r.token)
	assert.NoError(t, <-fnErr)

	got, _ := store.Get()
	assert.Equal(t, "T2", got)
}

func TestCoordinator_TimeoutBoundsRefresh(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store := tokenstore.NewMemoryStore()
	store.Set("stale")
	c := NewCoordinator(store, logger, WithTimeout(20*time.Millisecond))

	_, err := c.Refresh(context.Background(), func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, ok := store.Get()
	assert.False(t, ok)
	assert.False(t, c.Refreshing())
}
