package kqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateClose(t *testing.T) {
	fd, err := Create()
	require.NoError(t, err)
	require.NoError(t, Close(fd))

	_, err = Kevent(fd, nil, make([]Event, 1), nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCloseIsIdempotent(t *testing.T) {
	fd, err := Create()
	require.NoError(t, err)
	require.NoError(t, Close(fd))
	assert.ErrorIs(t, Close(fd), ErrNotFound)
}

func TestUserTriggerDelivers(t *testing.T) {
	fd, err := Create()
	require.NoError(t, err)
	defer Close(fd)

	add := Event{Ident: 1, Filter: FilterUser, Flags: FlagAdd, Fflags: NoteFFNop}
	n, err := Kevent(fd, []Event{add}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	trigger := Event{Ident: 1, Filter: FilterUser, Fflags: NoteFFCopy | NoteTrigger}
	out := make([]Event, 1)
	timeout := 500 * time.Millisecond
	n, err = Kevent(fd, []Event{trigger}, out, &timeout)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, FilterUser, out[0].Filter)
	assert.Equal(t, uint64(1), out[0].Ident)
}

func TestOneshotAutoDeletesAfterFire(t *testing.T) {
	fd, err := Create()
	require.NoError(t, err)
	defer Close(fd)

	add := Event{Ident: 2, Filter: FilterUser, Flags: FlagAdd | FlagOneshot}
	_, err = Kevent(fd, []Event{add}, nil, nil)
	require.NoError(t, err)

	trigger := Event{Ident: 2, Filter: FilterUser, Fflags: NoteTrigger}
	out := make([]Event, 1)
	timeout := 500 * time.Millisecond
	n, err := Kevent(fd, []Event{trigger}, out, &timeout)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// Second trigger against the now-deleted knote reports not found as a
	// synthetic ERROR entry rather than a Go error return.
	n, err = Kevent(fd, []Event{trigger}, out, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.NotZero(t, out[0].Flags&FlagError)
	assert.Equal(t, int64(2), out[0].Data) // ENOENT
}

func TestDispatchDisablesAfterFire(t *testing.T) {
	fd, err := Create()
	require.NoError(t, err)
	defer Close(fd)

	add := Event{Ident: 3, Filter: FilterUser, Flags: FlagAdd | FlagDispatch}
	_, err = Kevent(fd, []Event{add}, nil, nil)
	require.NoError(t, err)

	// The trigger repeats FlagDispatch: a modify copies the DISPATCH bit from
	// the change into the stored registration.
	trigger := Event{Ident: 3, Filter: FilterUser, Flags: FlagDispatch, Fflags: NoteTrigger}
	out := make([]Event, 1)
	timeout := 500 * time.Millisecond
	n, err := Kevent(fd, []Event{trigger}, out, &timeout)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// The knote still exists but is disabled; re-enable and fire again.
	enable := Event{Ident: 3, Filter: FilterUser, Flags: FlagEnable}
	_, err = Kevent(fd, []Event{enable}, nil, nil)
	require.NoError(t, err)

	_, err = Kevent(fd, []Event{trigger}, nil, nil)
	require.NoError(t, err)
	n, err = Kevent(fd, nil, out, &timeout)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestReceiptAcknowledgesWithoutWaiting(t *testing.T) {
	fd, err := Create()
	require.NoError(t, err)
	defer Close(fd)

	add := Event{Ident: 4, Filter: FilterUser, Flags: FlagAdd | FlagReceipt}
	out := make([]Event, 1)
	n, err := Kevent(fd, []Event{add}, out, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.NotZero(t, out[0].Flags&FlagError)
	assert.Zero(t, out[0].Data)
}

func TestDispatchAndOneshotRejected(t *testing.T) {
	fd, err := Create()
	require.NoError(t, err)
	defer Close(fd)

	add := Event{Ident: 5, Filter: FilterUser, Flags: FlagAdd | FlagDispatch | FlagOneshot | FlagReceipt}
	out := make([]Event, 1)
	n, err := Kevent(fd, []Event{add}, out, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, int64(22), out[0].Data) // EINVAL
}

func TestDeleteUnknownKnoteReportsNotFound(t *testing.T) {
	fd, err := Create()
	require.NoError(t, err)
	defer Close(fd)

	del := Event{Ident: 99, Filter: FilterUser, Flags: FlagDelete | FlagReceipt}
	out := make([]Event, 1)
	n, err := Kevent(fd, []Event{del}, out, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, int64(2), out[0].Data) // ENOENT
}

func TestEventListFullMidChangeList(t *testing.T) {
	fd, err := Create()
	require.NoError(t, err)
	defer Close(fd)

	changes := []Event{
		{Ident: 6, Filter: FilterUser, Flags: FlagAdd | FlagReceipt},
		{Ident: 7, Filter: FilterUser, Flags: FlagAdd | FlagReceipt},
	}
	out := make([]Event, 1)
	n, err := Kevent(fd, changes, out, nil)
	require.NoError(t, err)
	assert.Equal(t, -1, n)
}

func TestAddDeleteIdempotence(t *testing.T) {
	fd, err := Create()
	require.NoError(t, err)
	defer Close(fd)

	add := Event{Ident: 8, Filter: FilterUser, Flags: FlagAdd}
	_, err = Kevent(fd, []Event{add}, nil, nil)
	require.NoError(t, err)

	del := Event{Ident: 8, Filter: FilterUser, Flags: FlagDelete}
	_, err = Kevent(fd, []Event{del}, nil, nil)
	require.NoError(t, err)

	// Deleting again now reports not found. With no event-list capacity to
	// carry a synthetic entry, the error surfaces as the Go return value.
	n, err := Kevent(fd, []Event{del}, nil, nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, -1, n)
}

func TestTimerFiresAndReportsCount(t *testing.T) {
	fd, err := Create()
	require.NoError(t, err)
	defer Close(fd)

	add := Event{Ident: 10, Filter: FilterTimer, Flags: FlagAdd | FlagOneshot, Data: 20}
	_, err = Kevent(fd, []Event{add}, nil, nil)
	require.NoError(t, err)

	out := make([]Event, 1)
	timeout := time.Second
	n, err := Kevent(fd, nil, out, &timeout)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, FilterTimer, out[0].Filter)
	assert.GreaterOrEqual(t, out[0].Data, int64(1))

	// Oneshot timer does not rearm: a second wait with a short timeout
	// returns nothing.
	shortTimeout := 50 * time.Millisecond
	n, err = Kevent(fd, nil, out, &shortTimeout)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
