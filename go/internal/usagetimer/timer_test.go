package usagetimer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
)

// elementStub mimics a page element: text plus a class set.
type elementStub struct {
	mu      sync.Mutex
	text    string
	classes map[string]bool
	writes  int
	flushed chan string
	failOn  string
}

func newElementStub() *elementStub {
	return &elementStub{classes: make(map[string]bool)}
}

func (e *elementStub) SetText(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failOn != "" && text == e.failOn {
		return errors.New("element detached")
	}
	e.text = text
	e.writes++
	return nil
}

func (e *elementStub) AddClass(class string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.classes[class] = true
	return nil
}

func (e *elementStub) Flush() error {
	if e.flushed == nil {
		return nil
	}
	e.mu.Lock()
	text := e.text
	e.mu.Unlock()
	e.flushed <- text
	return nil
}

func (e *elementStub) snapshot() (string, map[string]bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	classes := make(map[string]bool, len(e.classes))
	for k, v := range e.classes {
		classes[k] = v
	}
	return e.text, classes
}

func newTestTimer(t *testing.T, display Display, opts ...Option) *Timer {
	t.Helper()
	timer, err := New(display, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return timer
}

func TestNewRejectsMissingDisplay(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrDisplayNotFound) {
		t.Fatalf("New(nil) error = %v, want ErrDisplayNotFound", err)
	}
}

// detachedElement is a display that may be a nil pointer.
type detachedElement struct{}

func (e *detachedElement) Attached() bool        { return e != nil }
func (e *detachedElement) SetText(string) error  { return nil }
func (e *detachedElement) AddClass(string) error { return nil }

func TestNewRejectsNilElementPointer(t *testing.T) {
	var el *detachedElement
	if _, err := New(el); !errors.Is(err, ErrDisplayNotFound) {
		t.Fatalf("New(typed nil) error = %v, want ErrDisplayNotFound", err)
	}
	if _, err := New(&detachedElement{}); err != nil {
		t.Fatalf("New(attached) error = %v", err)
	}
}

func TestTickRendersDisplay(t *testing.T) {
	ctx := context.Background()
	el := newElementStub()
	timer := newTestTimer(t, el)

	checkpoints := map[int]string{
		1:   "00:00",
		59:  "00:00",
		60:  "00:01",
		299: "00:04",
		300: "Locked",
		301: "Locked",
	}

	for tick := 1; tick <= 301; tick++ {
		if err := timer.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
		want, ok := checkpoints[tick]
		if !ok {
			continue
		}
		text, classes := el.snapshot()
		if text != want {
			t.Errorf("after %d ticks text = %q, want %q", tick, text, want)
		}
		if got := classes[LockedClass]; got != (want == LockedText) {
			t.Errorf("after %d ticks locked class = %v", tick, got)
		}
	}
}

func TestLockedTimerIsIdempotent(t *testing.T) {
	ctx := context.Background()
	el := newElementStub()
	timer := newTestTimer(t, el)

	for i := 0; i < LimitSeconds; i++ {
		if err := timer.Tick(ctx); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}
	before := timer.Snapshot()

	for i := 0; i < 50; i++ {
		if err := timer.Tick(ctx); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}

	if diff := cmp.Diff(before, timer.Snapshot()); diff != "" {
		t.Errorf("locked frame changed (-before +after):\n%s", diff)
	}
	text, classes := el.snapshot()
	if text != LockedText {
		t.Errorf("text = %q, want %q", text, LockedText)
	}
	if diff := cmp.Diff(map[string]bool{LockedClass: true}, classes); diff != "" {
		t.Errorf("classes mismatch (-want +got):\n%s", diff)
	}
}

func TestLockHookFiresOnce(t *testing.T) {
	ctx := context.Background()
	var frames []Frame
	timer := newTestTimer(t, newElementStub(), WithLockHook(func(_ context.Context, f Frame) {
		frames = append(frames, f)
	}))

	for i := 0; i < LimitSeconds+5; i++ {
		if err := timer.Tick(ctx); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}

	want := []Frame{{Text: LockedText, Locked: true, ElapsedSeconds: LimitSeconds}}
	if diff := cmp.Diff(want, frames); diff != "" {
		t.Errorf("lock hook frames mismatch (-want +got):\n%s", diff)
	}
}

func TestLockHookFiresWhenLockedRenderFails(t *testing.T) {
	ctx := context.Background()
	el := newElementStub()
	el.failOn = LockedText

	fired := 0
	timer := newTestTimer(t, el, WithLockHook(func(context.Context, Frame) {
		fired++
	}))

	for i := 0; i < LimitSeconds-1; i++ {
		if err := timer.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i+1, err)
		}
	}

	if err := timer.Tick(ctx); err == nil {
		t.Fatal("expected render error on the locking tick")
	}
	if !timer.Snapshot().Locked {
		t.Error("timer should be locked after the failed render")
	}
	if fired != 1 {
		t.Errorf("lock hook fired %d times, want 1", fired)
	}

	if err := timer.Tick(ctx); err == nil {
		t.Fatal("expected render error on the next tick")
	}
	if fired != 1 {
		t.Errorf("lock hook fired %d times after relock, want 1", fired)
	}
}

func TestRunTicksOncePerSecond(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewFakeClock()
	el := newElementStub()
	el.flushed = make(chan string, 1)
	timer := newTestTimer(t, el, WithClock(clock))

	done := make(chan error, 1)
	go func() {
		done <- timer.Run(ctx)
	}()

	waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel()
	if err := clock.BlockUntilContext(waitCtx, 1); err != nil {
		t.Fatalf("ticker never started: %v", err)
	}

	var last string
	for i := 0; i < 60; i++ {
		clock.Advance(TickInterval)
		select {
		case last = <-el.flushed:
		case <-time.After(5 * time.Second):
			t.Fatalf("no render after tick %d", i+1)
		}
	}

	if last != "00:01" {
		t.Errorf("after 60 seconds text = %q, want %q", last, "00:01")
	}
	if got := timer.Snapshot().ElapsedSeconds; got != 60 {
		t.Errorf("elapsed = %d, want 60", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunStopsOnDisplayError(t *testing.T) {
	clock := clockwork.NewFakeClock()
	el := newElementStub()
	el.failOn = "00:00"
	timer := newTestTimer(t, el, WithClock(clock))

	done := make(chan error, 1)
	go func() {
		done <- timer.Run(context.Background())
	}()

	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(waitCtx, 1); err != nil {
		t.Fatalf("ticker never started: %v", err)
	}
	clock.Advance(TickInterval)

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Run returned nil, want display error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on display error")
	}
}
