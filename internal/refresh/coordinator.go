// Package refresh serializes access-token refreshes.
//
// A Coordinator lets the first caller that needs a new token start the
// refresh while every caller arriving during that window waits for the same
// outcome. The refresh runs detached from the caller that started it. Waiters are released in the order they arrived.
package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lifeflow/lifeflow/internal/tokenstore"
	"github.com/sirupsen/logrus"
)

// ErrEmptyToken is returned when a refresh succeeds without yielding a token.
var ErrEmptyToken = errors.New("refresh returned an empty access token")

// Func performs one refresh call and returns the new access token.
type Func func(ctx context.Context) (string, error)

type result struct {
	token string
	err   error
}

type waiter struct {
	ch chan result
}

type Coordinator struct {
	store   tokenstore.Store
	logger  *logrus.Logger
	timeout time.Duration

	mu         sync.Mutex
	refreshing bool
	queue      []*waiter
}

type Option func(*Coordinator)

// WithTimeout bounds each refresh call. The call does not inherit the
// cancellation of the caller that started it.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = d
	}
}

func NewCoordinator(store tokenstore.Store, logger *logrus.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refresh returns a fresh access token. When idle, the caller starts fn and
// the store is updated with its outcome: set on success, cleared on failure.
// When a refresh is already running the caller is queued and receives that
// refresh's token or error. Any caller whose ctx ends returns ctx.Err()
// without affecting the refresh or the other callers.
func (c *Coordinator) Refresh(ctx context.Context, fn Func) (string, error) {
	w := &waiter{ch: make(chan result, 1)}

	c.mu.Lock()
	if c.refreshing {
		c.queue = append(c.queue, w)
		depth := len(c.queue)
		c.mu.Unlock()

		c.logger.WithField("queue_depth", depth).Debug("Refresh in flight, request queued")

		select {
		case r := <-w.ch:
			return r.token, r.err
		case <-ctx.Done():
			c.dequeue(w)
			return "", ctx.Err()
		}
	}
	c.refreshing = true
	c.mu.Unlock()

	go c.run(context.WithoutCancel(ctx), fn, w)

	select {
	case r := <-w.ch:
		return r.token, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Coordinator) run(ctx context.Context, fn Func, leader *waiter) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.logger.Debug("Refreshing access token")

	token, err := fn(ctx)
	if err == nil && token == "" {
		err = ErrEmptyToken
	}

	c.mu.Lock()
	queue := c.queue
	c.queue = nil
	c.refreshing = false
	if err != nil {
		c.store.Clear()
	} else {
		c.store.Set(token)
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.WithError(err).WithField("waiters", len(queue)).Info("Access token refresh failed")
	} else {
		c.logger.WithField("waiters", len(queue)).Debug("Access token refreshed")
	}

	// Channels are buffered, so release never blocks on a caller that gave up.
	res := result{token: token, err: err}
	leader.ch <- res
	for _, w := range queue {
		w.ch <- res
	}
}

// Refreshing reports whether a refresh call is outstanding.
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

// Pending returns the number of queued callers.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Coordinator) dequeue(target *waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.queue {
		if w == target {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return
		}
	}
}
