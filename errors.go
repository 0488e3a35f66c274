package kqueue

import (
	"errors"
)

// Error kinds surfaced to callers (spec §7). Compare with errors.Is.
var (
	// ErrNotFound: unknown queue descriptor, or a change referred to a
	// non-existent knote without FlagAdd.
	ErrNotFound = errors.New("kqueue: not found")

	// ErrInvalidArgument: conflicting flags (DISPATCH ∧ ONESHOT), an
	// unsupported filter-kind, or an out-of-range ident.
	ErrInvalidArgument = errors.New("kqueue: invalid argument")

	// ErrFault: a filter's create/modify hook rejected the interest.
	ErrFault = errors.New("kqueue: fault")

	// ErrClosed is returned by Kevent when the queue is closed concurrently
	// with a blocked wait (spec §5: "the waiting call returns with a fatal
	// error" rather than crashing).
	ErrClosed = errors.New("kqueue: queue closed")
)

// errno maps the four error kinds onto the Event.Data code written into a
// synthetic ERROR/RECEIPT event-list entry (spec §4.1 step 4b, §7).
func errno(err error) int64 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNotFound):
		return 2 // ENOENT
	case errors.Is(err, ErrInvalidArgument):
		return 22 // EINVAL
	case errors.Is(err, ErrFault):
		return 14 // EFAULT
	default:
		return 5 // EIO, generic back-end failure
	}
}
