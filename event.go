// Package kqueue provides a portable implementation of the BSD kqueue/
// kevent event-notification façade: a single Kevent call that both mutates
// a queue's registrations (the change-list) and delivers ready activations
// (the event-list), backed by epoll on Linux, the native kqueue on BSD and
// Darwin, poll(2) elsewhere on unix, and event objects on Windows.
package kqueue

import (
	"bytes"
	"fmt"
)

// Filter names the kind of source a knote watches. Values match the host
// kqueue's EVFILT_* constants where a platform defines them, so that wire
// compatibility with a genuine kqueue consumer is possible.
type FilterKind int16

// Filter-kind constants, exactly as spec'd: the set a back-end may
// implement. Registering against a kind no installed filter supports
// reports ErrInvalidArgument.
const (
	FilterRead   FilterKind = -1
	FilterWrite  FilterKind = -2
	FilterAIO    FilterKind = -3
	FilterVnode  FilterKind = -4
	FilterProc   FilterKind = -5
	FilterSignal FilterKind = -6
	FilterTimer  FilterKind = -7
	FilterUser   FilterKind = -10
)

func (f FilterKind) String() string {
	switch f {
	case FilterRead:
		return "EVFILT_READ"
	case FilterWrite:
		return "EVFILT_WRITE"
	case FilterAIO:
		return "EVFILT_AIO"
	case FilterVnode:
		return "EVFILT_VNODE"
	case FilterProc:
		return "EVFILT_PROC"
	case FilterSignal:
		return "EVFILT_SIGNAL"
	case FilterTimer:
		return "EVFILT_TIMER"
	case FilterUser:
		return "EVFILT_USER"
	default:
		return fmt.Sprintf("EVFILT_UNKNOWN(%d)", int16(f))
	}
}

// Flags is the action/disposition bitmask carried by Event.Flags.
type Flags uint16

// Action bits, mutually composable except where noted in spec §3.
const (
	FlagAdd Flags = 1 << iota
	FlagDelete
	FlagEnable
	FlagDisable
	FlagOneshot
	FlagClear
	FlagReceipt
	FlagDispatch
	FlagEOF
	FlagError
)

var flagNames = []struct {
	bit  Flags
	name string
}{
	{FlagAdd, "EV_ADD"},
	{FlagDelete, "EV_DELETE"},
	{FlagEnable, "EV_ENABLE"},
	{FlagDisable, "EV_DISABLE"},
	{FlagOneshot, "EV_ONESHOT"},
	{FlagClear, "EV_CLEAR"},
	{FlagReceipt, "EV_RECEIPT"},
	{FlagDispatch, "EV_DISPATCH"},
	{FlagEOF, "EV_EOF"},
	{FlagError, "EV_ERROR"},
}

func (f Flags) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "flags=0x%04x (", uint16(f))
	first := true
	for _, fn := range flagNames {
		if f&fn.bit == 0 {
			continue
		}
		if !first {
			buf.WriteByte(' ')
		}
		buf.WriteString(fn.name)
		first = false
	}
	buf.WriteByte(')')
	return buf.String()
}

// Fflags carries filter-specific bits. Their meaning depends on Event.Filter.
type Fflags uint32

// VNODE fflags.
const (
	NoteDelete Fflags = 1 << iota
	NoteWrite
	NoteExtend
	NoteAttrib
	NoteLink
	NoteRename
)

// USER fflags. NoteFFNop/FFAnd/FFOr/FFCopy select how the change's remaining
// Fflags bits are combined into the stored fflags; NoteTrigger requests an
// immediate activation.
const (
	NoteFFNop Fflags = 1 << iota
	NoteFFAnd
	NoteFFOr
	NoteFFCopy
	NoteTrigger
)

// NoteFFCtrlMask isolates the FFNOP/FFAND/FFOR/FFCOPY control bits of a USER fflags value.
const NoteFFCtrlMask Fflags = NoteFFNop | NoteFFAnd | NoteFFOr | NoteFFCopy

// PROC fflags.
const (
	NoteExit Fflags = 1 << iota
	NoteFork
	NoteExec
)

// READ/WRITE fflags.
const (
	NoteLowat Fflags = 1 << iota
)

func (f Fflags) dumpFor(filter FilterKind) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "fflags=0x%04x (", uint32(f))
	type bit struct {
		mask Fflags
		name string
	}
	var bits []bit
	switch filter {
	case FilterVnode:
		bits = []bit{
			{NoteDelete, "NOTE_DELETE"}, {NoteWrite, "NOTE_WRITE"}, {NoteExtend, "NOTE_EXTEND"},
			{NoteAttrib, "NOTE_ATTRIB"}, {NoteLink, "NOTE_LINK"}, {NoteRename, "NOTE_RENAME"},
		}
	case FilterUser:
		bits = []bit{
			{NoteFFNop, "NOTE_FFNOP"}, {NoteFFAnd, "NOTE_FFAND"}, {NoteFFOr, "NOTE_FFOR"},
			{NoteFFCopy, "NOTE_FFCOPY"}, {NoteTrigger, "NOTE_TRIGGER"},
		}
	case FilterRead, FilterWrite:
		bits = []bit{{NoteLowat, "NOTE_LOWAT"}}
	case FilterProc:
		bits = []bit{{NoteExit, "NOTE_EXIT"}, {NoteFork, "NOTE_FORK"}, {NoteExec, "NOTE_EXEC"}}
	}
	first := true
	for _, b := range bits {
		if f&b.mask == 0 {
			continue
		}
		if !first {
			buf.WriteByte(' ')
		}
		buf.WriteString(b.name)
		first = false
	}
	buf.WriteByte(')')
	return buf.String()
}

// Event is the wire-level record (spec §3, §6): the same shape for a
// change-list entry and an event-list entry.
type Event struct {
	Ident  uint64
	Filter FilterKind
	Flags  Flags
	Fflags Fflags
	Data   int64
	Udata  uintptr
}

// String renders Event in the stable diagnostic form spec §6 documents:
//
//	{ ident=I, filter=F (name), flags=0xH (NAME NAME …), fflags=0xH (…), data=D, udata=P }
func (e Event) String() string {
	return fmt.Sprintf("{ ident=%d, filter=%d (%s), %s, %s, data=%d, udata=%#x }",
		e.Ident, int16(e.Filter), e.Filter, e.Flags, e.Fflags.dumpFor(e.Filter), e.Data, e.Udata)
}
