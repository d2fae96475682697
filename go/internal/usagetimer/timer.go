package usagetimer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// TickInterval is how often the display is refreshed.
const TickInterval = time.Second

// LockHook is called once, on the tick that locks the timer.
type LockHook func(ctx context.Context, frame Frame)

// Option configures a Timer.
type Option func(*Timer)

// WithClock replaces the real clock, mainly for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(t *Timer) {
		t.clock = clock
	}
}

// WithLockHook registers a callback for the Running -> Locked transition.
func WithLockHook(hook LockHook) Option {
	return func(t *Timer) {
		t.onLock = hook
	}
}

// Timer drives a State once per TickInterval and renders it to a Display.
type Timer struct {
	mu      sync.Mutex
	state   *State
	display Display
	clock   clockwork.Clock
	onLock  LockHook
}

// New creates a timer bound to display. A nil display, or an Attacher that
// is not attached, is rejected up front so a missing element never surfaces
// inside the tick loop.
func New(display Display, opts ...Option) (*Timer, error) {
	if display == nil {
		return nil, ErrDisplayNotFound
	}
	if a, ok := display.(Attacher); ok && !a.Attached() {
		return nil, ErrDisplayNotFound
	}

	t := &Timer{
		state:   NewState(),
		display: display,
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Run ticks until ctx is cancelled or the display fails.
func (t *Timer) Run(ctx context.Context) error {
	ticker := t.clock.NewTicker(TickInterval)
	defer ticker.Stop()

	log.Debug().Msg("usage timer started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().
				Int("elapsed_seconds", t.Snapshot().ElapsedSeconds).
				Msg("usage timer stopped")
			return nil
		case <-ticker.Chan():
			if err := t.Tick(ctx); err != nil {
				return err
			}
		}
	}
}

// Tick advances the state by one second and writes the result to the display.
// Once locked, every tick re-applies the locked text and class.
func (t *Timer) Tick(ctx context.Context) error {
	t.mu.Lock()
	justLocked, err := t.state.Tick(ctx)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	frame := t.state.Frame()
	t.mu.Unlock()

	renderErr := t.render(frame)

	// The state is locked whether or not the display took the write
	if justLocked {
		log.Info().
			Int("elapsed_seconds", frame.ElapsedSeconds).
			Msg("usage limit reached, display locked")
		if t.onLock != nil {
			t.onLock(ctx, frame)
		}
	}
	return renderErr
}

// Snapshot returns the current frame without advancing the state.
func (t *Timer) Snapshot() Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Frame()
}

func (t *Timer) render(frame Frame) error {
	if err := t.display.SetText(frame.Text); err != nil {
		return fmt.Errorf("failed to set display text: %w", err)
	}
	if frame.Locked {
		if err := t.display.AddClass(LockedClass); err != nil {
			return fmt.Errorf("failed to add display class: %w", err)
		}
	}
	if f, ok := t.display.(Flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("failed to flush display: %w", err)
		}
	}
	return nil
}
