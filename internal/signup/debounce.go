package signup

import (
	"context"
	"sync"
	"time"
	"unicode/utf16"

	"github.com/sirupsen/logrus"
)

const (
	DefaultDebounce = 500 * time.Millisecond

	// MinCheckLength is the shortest value worth asking the server about,
	// in UTF-16 code units as browsers measure form input.
	MinCheckLength = 3
)

// CheckFunc reports whether value is available.
type CheckFunc func(ctx context.Context, value string) (bool, error)

type CheckState struct {
	Checking bool
	Conflict bool
	Err      error
}

// DebouncedCheck runs an availability check once input has been quiet for
// the configured delay. A newer value cancels both the pending timer and a
// check already in flight, so only the latest value's outcome is recorded.
type DebouncedCheck struct {
	check  CheckFunc
	delay  time.Duration
	logger *logrus.Logger

	mu       sync.Mutex
	gen      uint64
	timer    *time.Timer
	cancel   context.CancelFunc
	state    CheckState
	onChange func(CheckState)
}

func NewDebouncedCheck(check CheckFunc, delay time.Duration, logger *logrus.Logger) *DebouncedCheck {
	return &DebouncedCheck{
		check:  check,
		delay:  delay,
		logger: logger,
	}
}

// OnChange registers fn to be called with every state transition. fn runs
// outside the internal lock.
func (d *DebouncedCheck) OnChange(fn func(CheckState)) {
	d.mu.Lock()
	d.onChange = fn
	d.mu.Unlock()
}

// Set records a new input value.
func (d *DebouncedCheck) Set(value string) {
	d.mu.Lock()
	d.stopLocked()
	d.gen++
	gen := d.gen

	if value == "" || inputLength(value) < MinCheckLength {
		d.state = CheckState{}
	} else {
		d.state = CheckState{Checking: true, Conflict: d.state.Conflict}
		d.timer = time.AfterFunc(d.delay, func() { d.run(gen, value) })
	}
	fn, state := d.onChange, d.state
	d.mu.Unlock()

	notify(fn, state)
}

func (d *DebouncedCheck) State() CheckState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Stop abandons any pending or running check.
func (d *DebouncedCheck) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.gen++
	d.state.Checking = false
}

func (d *DebouncedCheck) run(gen uint64, value string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.cancel = cancel
	d.mu.Unlock()

	free, err := d.check(ctx, value)

	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.cancel = nil
	d.timer = nil
	if err != nil {
		d.logger.WithError(err).Debug("Availability check failed")
		d.state = CheckState{Conflict: d.state.Conflict, Err: err}
	} else {
		d.state = CheckState{Conflict: !free}
	}
	fn, state := d.onChange, d.state
	d.mu.Unlock()

	notify(fn, state)
}

func (d *DebouncedCheck) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

func notify(fn func(CheckState), state CheckState) {
	if fn != nil {
		fn(state)
	}
}

func inputLength(value string) int {
	n := 0
	for _, r := range value {
		n += utf16.RuneLen(r)
	}
	return n
}
