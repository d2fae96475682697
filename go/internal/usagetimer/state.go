package usagetimer

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

const (
	// LimitSeconds is the usage quota after which the display locks.
	LimitSeconds = 60 * 5

	StateRunning = "running"
	StateLocked  = "locked"

	eventLock = "lock"
)

// Frame is what the display should show after a tick.
type Frame struct {
	Text           string `json:"text"`
	Locked         bool   `json:"locked"`
	ElapsedSeconds int    `json:"elapsed_seconds"`
}

// State owns the elapsed-seconds counter for a single display.
// It is not safe for concurrent use; Timer serializes access.
type State struct {
	elapsed int
	limit   int
	machine *fsm.FSM
}

// NewState creates a running state with the counter at zero.
func NewState() *State {
	return &State{
		limit: LimitSeconds,
		machine: fsm.NewFSM(
			StateRunning,
			fsm.Events{
				{Name: eventLock, Src: []string{StateRunning}, Dst: StateLocked},
			},
			fsm.Callbacks{},
		),
	}
}

// Tick advances the counter by one second unless the state is locked.
// The tick that brings the counter to the limit locks the state.
// It reports whether this tick performed the Running -> Locked transition.
func (s *State) Tick(ctx context.Context) (bool, error) {
	if s.Locked() {
		return false, nil
	}

	s.elapsed++
	if s.elapsed < s.limit {
		return false, nil
	}

	if err := s.machine.Event(ctx, eventLock); err != nil {
		return false, fmt.Errorf("failed to lock timer state: %w", err)
	}
	return true, nil
}

// Locked reports whether the quota has been used up.
func (s *State) Locked() bool {
	return s.machine.Is(StateLocked)
}

// Current returns the name of the current state.
func (s *State) Current() string {
	return s.machine.Current()
}

// Elapsed returns the number of counted seconds.
func (s *State) Elapsed() int {
	return s.elapsed
}

// Frame renders the state for display.
func (s *State) Frame() Frame {
	f := Frame{
		Locked:         s.Locked(),
		ElapsedSeconds: s.elapsed,
	}
	if f.Locked {
		f.Text = LockedText
	} else {
		f.Text = FormatClock(s.elapsed)
	}
	return f
}
