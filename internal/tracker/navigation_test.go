package tracker

import (
	"errors"
	"testing"
)

// scriptedObserver is a hand-driven NavigationObserver for tests.
type scriptedObserver struct {
	name      string
	supported bool
	signal    func()
	watching  bool
	cancelled bool
}

func (s *scriptedObserver) Name() string    { return s.name }
func (s *scriptedObserver) Supported() bool { return s.supported }

func (s *scriptedObserver) Watch(signal func()) func() {
	s.signal = signal
	s.watching = true
	return func() { s.cancelled = true }
}

// fire simulates the environment reporting a completed history mutation.
func (s *scriptedObserver) fire() {
	if s.signal != nil {
		s.signal()
	}
}

func TestSelectObserver(t *testing.T) {
	t.Parallel()

	t.Run("picks the first supported strategy", func(t *testing.T) {
		t.Parallel()

		a := &scriptedObserver{name: "history-hook", supported: false}
		b := &scriptedObserver{name: "popstate", supported: true}
		c := &scriptedObserver{name: "poller", supported: true}

		got, err := SelectObserver(a, b, c)
		if err != nil {
			t.Fatalf("SelectObserver() error = %v", err)
		}
		if got.Name() != "popstate" {
			t.Errorf("selected %q, want %q", got.Name(), "popstate")
		}
	})

	t.Run("no supported strategy", func(t *testing.T) {
		t.Parallel()

		_, err := SelectObserver(&scriptedObserver{name: "history-hook"})
		if !errors.Is(err, ErrNoObserver) {
			t.Errorf("error = %v, want ErrNoObserver", err)
		}
	})
}

func TestComposeObservers(t *testing.T) {
	t.Parallel()

	t.Run("any strategy firing reaches the single signal", func(t *testing.T) {
		t.Parallel()

		a := &scriptedObserver{name: "history-hook", supported: true}
		b := &scriptedObserver{name: "popstate", supported: true}
		composite, err := ComposeObservers(a, b)
		if err != nil {
			t.Fatalf("ComposeObservers() error = %v", err)
		}

		var fired int
		cancel := composite.Watch(func() { fired++ })
		a.fire()
		b.fire()
		if fired != 2 {
			t.Errorf("signal fired %d times, want 2", fired)
		}

		cancel()
		if !a.cancelled || !b.cancelled {
			t.Error("cancel did not propagate to all strategies")
		}
	})

	t.Run("unsupported strategies are skipped", func(t *testing.T) {
		t.Parallel()

		a := &scriptedObserver{name: "history-hook", supported: false}
		b := &scriptedObserver{name: "popstate", supported: true}
		composite, err := ComposeObservers(a, b)
		if err != nil {
			t.Fatalf("ComposeObservers() error = %v", err)
		}

		composite.Watch(func() {})
		if a.watching {
			t.Error("unsupported strategy was watched")
		}
		if !b.watching {
			t.Error("supported strategy was not watched")
		}
	})

	t.Run("no supported strategy", func(t *testing.T) {
		t.Parallel()

		_, err := ComposeObservers(&scriptedObserver{name: "history-hook"})
		if !errors.Is(err, ErrNoObserver) {
			t.Errorf("error = %v, want ErrNoObserver", err)
		}
	})
}
