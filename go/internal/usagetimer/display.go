package usagetimer

import "errors"

const (
	// DisplayID is the id of the page element that shows the timer.
	DisplayID = "timer"

	LockedText  = "Locked"
	LockedClass = "locked"
)

// ErrDisplayNotFound is returned when the timer has nothing to render into.
var ErrDisplayNotFound = errors.New("timer display element not found")

// Display is the single element the timer writes to.
type Display interface {
	SetText(text string) error
	AddClass(class string) error
}

// Attacher is implemented by displays that can be handed over without a
// backing element, such as a nil *dom.Element. New rejects them when
// Attached reports false.
type Attacher interface {
	Attached() bool
}

// Flusher is implemented by displays that batch the writes of one tick.
type Flusher interface {
	Flush() error
}
