package timerwheel_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/libkqueue/kqueue-go/internal/timerwheel"
)

type testWrapper struct {
	begin   time.Time
	call    time.Time
	fires   int
	handled bool
}

var expireHandle = func(data any) {
	t, ok := data.(*testWrapper)
	if !ok {
		return
	}
	t.call = time.Now()
	t.handled = true
	t.fires++
}

func TestNewTimeWheelOneshot(t *testing.T) {
	unit := 10 * time.Millisecond
	tw, err := timerwheel.NewTimeWheel(unit, 3)
	assert.Nil(t, err)
	tw.Start()
	defer tw.Stop()

	period := 5 * unit
	data := &testWrapper{begin: time.Now()}
	timer := timerwheel.NewTimer(data, expireHandle, period, true)
	assert.Nil(t, tw.Add(timer))

	time.Sleep(period + 3*unit)
	realElapsed := data.call.Sub(data.begin)
	assert.GreaterOrEqual(t, realElapsed, period-unit)
	assert.Equal(t, 1, data.fires, "oneshot timer must not rearm")
}

func TestTimeWheelPeriodicRearms(t *testing.T) {
	unit := 10 * time.Millisecond
	tw, err := timerwheel.NewTimeWheel(unit, 3)
	assert.Nil(t, err)
	tw.Start()
	defer tw.Stop()

	period := 3 * unit
	data := &testWrapper{begin: time.Now()}
	timer := timerwheel.NewTimer(data, expireHandle, period, false)
	assert.Nil(t, tw.Add(timer))

	time.Sleep(period*4 + 3*unit)
	assert.GreaterOrEqual(t, data.fires, 3, "periodic timer should have fired repeatedly")
}

func TestDefaultWheel(t *testing.T) {
	a, b := &testWrapper{}, &testWrapper{}
	ta := timerwheel.NewTimer(a, expireHandle, time.Second, true)
	tb := timerwheel.NewTimer(b, expireHandle, time.Second, true)
	assert.Nil(t, timerwheel.Add(ta))
	assert.Nil(t, timerwheel.Add(tb))
	assert.False(t, a.handled)
	assert.False(t, b.handled)

	time.Sleep(500 * time.Millisecond)
	timerwheel.Del(tb)
	time.Sleep(700 * time.Millisecond)
	assert.True(t, a.handled)
	assert.False(t, b.handled)
}
