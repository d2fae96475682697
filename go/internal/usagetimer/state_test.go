package usagetimer

import (
	"context"
	"fmt"
	"testing"
)

func tickN(t *testing.T, s *State, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := s.Tick(context.Background()); err != nil {
			t.Fatalf("tick %d: %v", i+1, err)
		}
	}
}

func TestStateScenarios(t *testing.T) {
	tests := []struct {
		ticks      int
		wantText   string
		wantLocked bool
	}{
		{0, "00:00", false},
		{59, "00:00", false},
		{60, "00:01", false},
		{299, "00:04", false},
		{300, "Locked", true},
		{301, "Locked", true},
		{900, "Locked", true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d ticks", tt.ticks), func(t *testing.T) {
			s := NewState()
			tickN(t, s, tt.ticks)

			f := s.Frame()
			if f.Text != tt.wantText {
				t.Errorf("text = %q, want %q", f.Text, tt.wantText)
			}
			if f.Locked != tt.wantLocked {
				t.Errorf("locked = %v, want %v", f.Locked, tt.wantLocked)
			}
		})
	}
}

func TestStateUnlockedTextMatchesClock(t *testing.T) {
	s := NewState()
	for tick := 0; tick < LimitSeconds; tick++ {
		want := fmt.Sprintf("%02d:%02d", tick/3600, (tick%3600)/60)
		if got := s.Frame().Text; got != want {
			t.Fatalf("after %d ticks text = %q, want %q", tick, got, want)
		}
		tickN(t, s, 1)
	}
}

func TestStateCounterIsMonotonicAndCapped(t *testing.T) {
	s := NewState()
	prev := s.Elapsed()
	for i := 0; i < LimitSeconds*2; i++ {
		tickN(t, s, 1)
		cur := s.Elapsed()
		if cur < prev {
			t.Fatalf("elapsed decreased from %d to %d", prev, cur)
		}
		if cur > LimitSeconds {
			t.Fatalf("elapsed %d exceeds limit %d", cur, LimitSeconds)
		}
		prev = cur
	}
	if prev != LimitSeconds {
		t.Errorf("elapsed = %d, want %d", prev, LimitSeconds)
	}
}

func TestStateTransitionReportedOnce(t *testing.T) {
	s := NewState()
	if s.Current() != StateRunning {
		t.Fatalf("initial state = %q, want %q", s.Current(), StateRunning)
	}

	transitions := 0
	for i := 0; i < LimitSeconds+10; i++ {
		locked, err := s.Tick(context.Background())
		if err != nil {
			t.Fatalf("tick: %v", err)
		}
		if locked {
			transitions++
			if s.Elapsed() != LimitSeconds {
				t.Errorf("locked at %d seconds, want %d", s.Elapsed(), LimitSeconds)
			}
		}
	}

	if transitions != 1 {
		t.Errorf("transitions = %d, want 1", transitions)
	}
	if s.Current() != StateLocked {
		t.Errorf("final state = %q, want %q", s.Current(), StateLocked)
	}
}
