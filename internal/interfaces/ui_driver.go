// -----------------------------------------------------------------------
// UI Driver - capability surface of a remote browser session
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"errors"
	"time"
)

// ErrElementTimeout is returned when an expected element does not appear within the wait timeout
var ErrElementTimeout = errors.New("element wait timed out")

// ErrSessionClosed is returned when the browser session is no longer usable
var ErrSessionClosed = errors.New("browser session closed")

// LocatorKind selects how a locator value is resolved
type LocatorKind string

const (
	LocatorXPath LocatorKind = "xpath"
	LocatorCSS   LocatorKind = "css"
)

// Locator identifies a UI element
type Locator struct {
	Kind  LocatorKind `toml:"kind" json:"kind"`
	Value string      `toml:"value" json:"value"`
}

// XPath builds an XPath locator
func XPath(expr string) Locator {
	return Locator{Kind: LocatorXPath, Value: expr}
}

// CSS builds a CSS selector locator
func CSS(selector string) Locator {
	return Locator{Kind: LocatorCSS, Value: selector}
}

// String renders the locator for logs
func (l Locator) String() string {
	return string(l.Kind) + ":" + l.Value
}

// Element is an opaque handle to a located UI element
type Element interface {
	// Description returns a short label for logs
	Description() string
}

// Session is one exclusive remote browser session.
// A session executes one interaction at a time and must not be shared between goroutines.
type Session interface {
	NavigateTo(ctx context.Context, url string) error

	// WaitForElement blocks until the element is visible or timeout elapses.
	// Returns an error wrapping ErrElementTimeout on timeout.
	WaitForElement(ctx context.Context, locator Locator, timeout time.Duration) (Element, error)

	Click(ctx context.Context, el Element) error

	// TypeText clears the element and types text into it
	TypeText(ctx context.Context, el Element, text string) error

	// EnterNestedContext scopes subsequent lookups to an embedded frame
	EnterNestedContext(ctx context.Context, frame Element) error

	// ExitToTopContext returns lookups to the top-level document
	ExitToTopContext(ctx context.Context) error

	// DownloadDirectory is the directory the browser saves downloads into
	DownloadDirectory() string

	// Close releases the browser. Safe to call more than once.
	Close() error
}

// Driver acquires browser sessions
type Driver interface {
	Acquire(ctx context.Context) (Session, error)
}
