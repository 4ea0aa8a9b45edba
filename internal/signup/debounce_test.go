package signup

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCheck struct {
	mu     sync.Mutex
	values []string
	taken  map[string]bool
	err    error
}

func (r *recordingCheck) check(ctx context.Context, value string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, value)
	if r.err != nil {
		return false, r.err
	}
	return !r.taken[value], nil
}

func (r *recordingCheck) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.values...)
}

func newTestDebounce(check CheckFunc) *DebouncedCheck {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewDebouncedCheck(check, 20*time.Millisecond, logger)
}

func TestDebouncedCheck_OnlyLatestValueIsChecked(t *testing.T) {
	rc := &recordingCheck{taken: map[string]bool{"annlee": true}}
	d := newTestDebounce(rc.check)

	d.Set("ann")
	d.Set("annl")
	d.Set("annlee")
	assert.True(t, d.State().Checking)

	require.Eventually(t, func() bool { return !d.State().Checking }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"annlee"}, rc.seen())
	assert.True(t, d.State().Conflict)
}

func TestDebouncedCheck_ShortValuesResetState(t *testing.T) {
	rc := &recordingCheck{taken: map[string]bool{"annlee": true}}
	d := newTestDebounce(rc.check)

	d.Set("annlee")
	require.Eventually(t, func() bool { return d.State().Conflict }, time.Second, 5*time.Millisecond)

	d.Set("an")
	assert.Equal(t, CheckState{}, d.State())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []string{"annlee"}, rc.seen())
}

func TestDebouncedCheck_Available(t *testing.T) {
	rc := &recordingCheck{}
	d := newTestDebounce(rc.check)

	var mu sync.Mutex
	var states []CheckState
	d.OnChange(func(s CheckState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	d.Set("free-name")
	require.Eventually(t, func() bool { return !d.State().Checking }, time.Second, 5*time.Millisecond)

	assert.False(t, d.State().Conflict)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, states, 2)
	assert.True(t, states[0].Checking)
	assert.False(t, states[1].Checking)
}

func TestDebouncedCheck_ErrorKeepsPreviousConflict(t *testing.T) {
	boom := errors.New("no response")
	rc := &recordingCheck{err: boom}
	d := newTestDebounce(rc.check)

	d.Set("annlee")
	require.Eventually(t, func() bool { return !d.State().Checking }, time.Second, 5*time.Millisecond)

	state := d.State()
	assert.ErrorIs(t, state.Err, boom)
	assert.False(t, state.Conflict)
}

func TestDebouncedCheck_NewValueCancelsInFlightCheck(t *testing.T) {
	started := make(chan struct{}, 1)
	var cancelled bool
	var mu sync.Mutex

	check := func(ctx context.Context, value string) (bool, error) {
		if value == "slow-one" {
			started <- struct{}{}
			<-ctx.Done()
			mu.Lock()
			cancelled = true
			mu.Unlock()
			return false, ctx.Err()
		}
		return true, nil
	}
	d := newTestDebounce(check)

	d.Set("slow-one")
	<-started
	d.Set("fast-one")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return cancelled && !d.State().Checking
	}, time.Second, 5*time.Millisecond)

	state := d.State()
	assert.NoError(t, state.Err)
	assert.False(t, state.Conflict)
}

func TestDebouncedCheck_Stop(t *testing.T) {
	rc := &recordingCheck{}
	d := newTestDebounce(rc.check)

	d.Set("annlee")
	d.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, rc.seen())
	assert.False(t, d.State().Checking)
}

func TestInputLength(t *testing.T) {
	assert.Equal(t, 0, inputLength(""))
	assert.Equal(t, 3, inputLength("ann"))
	assert.Equal(t, 2, inputLength("né"))
	assert.Equal(t, 3, inputLength("a😀"))
}

func TestDebouncedCheck_AstralCharactersCountTwice(t *testing.T) {
	rc := &recordingCheck{}
	d := newTestDebounce(rc.check)

	d.Set("a😀")
	require.Eventually(t, func() bool { return !d.State().Checking }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"a😀"}, rc.seen())
}
