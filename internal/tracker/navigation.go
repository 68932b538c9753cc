package tracker

import "errors"

// ErrNoObserver is returned when no navigation strategy is supported by
// the page environment.
var ErrNoObserver = errors.New("tracker: no supported navigation observer")

// NavigationObserver watches one page-load context for possible
// navigations. An observer does not decide whether navigation actually
// happened; it signals "the URL may have changed now" after each
// candidate event, and the tracker compares URLs. This is what makes a
// history mutation that does not change the path (a pattern several
// SPA routers emit freely) a guaranteed no-op instead of a spurious
// page view.
type NavigationObserver interface {
	// Name identifies the strategy for logging.
	Name() string

	// Supported reports whether the page environment can drive this
	// strategy.
	Supported() bool

	// Watch starts observing and invokes signal after each candidate
	// navigation, once the underlying mutation has completed. The
	// returned cancel stops the observer; it must be called on
	// teardown or the observer outlives the context that cares.
	Watch(signal func()) (cancel func())
}

// SelectObserver returns the first supported strategy, in the order
// given. Callers list strategies from most precise to least: the
// programmatic history hook sees SPA navigations the instant they
// happen, the popstate listener covers back/forward, and the DOM
// mutation fallback catches routers that bypass both.
func SelectObserver(strategies ...NavigationObserver) (NavigationObserver, error) {
	for _, s := range strategies {
		if s.Supported() {
			return s, nil
		}
	}
	return nil, ErrNoObserver
}

// compositeObserver fans one signal out of several strategies. Used
// when the environment supports both the history hook and popstate:
// the two cover disjoint navigation kinds and both must feed the same
// boundary check.
type compositeObserver struct {
	observers []NavigationObserver
}

// ComposeObservers combines the supported subset of the given
// strategies into one observer. It returns ErrNoObserver when none are
// supported.
func ComposeObservers(strategies ...NavigationObserver) (NavigationObserver, error) {
	supported := make([]NavigationObserver, 0, len(strategies))
	for _, s := range strategies {
		if s.Supported() {
			supported = append(supported, s)
		}
	}
	if len(supported) == 0 {
		return nil, ErrNoObserver
	}
	if len(supported) == 1 {
		return supported[0], nil
	}
	return &compositeObserver{observers: supported}, nil
}

func (c *compositeObserver) Name() string {
	name := c.observers[0].Name()
	for _, o := range c.observers[1:] {
		name += "+" + o.Name()
	}
	return name
}

func (c *compositeObserver) Supported() bool { return true }

func (c *compositeObserver) Watch(signal func()) func() {
	cancels := make([]func(), 0, len(c.observers))
	for _, o := range c.observers {
		cancels = append(cancels, o.Watch(signal))
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}
