package metrics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/libkqueue/kqueue-go/metrics"
)

func TestMetrics(t *testing.T) {
	metrics.Add(metrics.WaitCalls, 1)
	assert.Equal(t, uint64(1), metrics.Get(metrics.WaitCalls))
	metrics.Add(metrics.WaitCalls, 1)
	assert.Equal(t, uint64(2), metrics.Get(metrics.WaitCalls))

	metrics.Add(metrics.Max+1, 1)
	assert.Equal(t, uint64(0), metrics.Get(metrics.Max+1))

	metrics.Add(metrics.EventsCopiedOut, 8)
	metrics.Add(metrics.ChangesApplied, 9)
	metrics.Add(metrics.ChangeErrors, 1)
	metrics.Add(metrics.ReceiptsIssued, 2)
	metrics.Add(metrics.ReadDeliveries, 3)
	metrics.Add(metrics.WriteDeliveries, 4)
	metrics.Add(metrics.UserDeliveries, 5)
	metrics.Add(metrics.TimerDeliveries, 6)
	metrics.Add(metrics.SignalDeliveries, 7)
	metrics.Add(metrics.ProcDeliveries, 8)
	metrics.Add(metrics.VnodeDeliveries, 9)

	all := metrics.GetAll()
	assert.Equal(t, uint64(2), all[metrics.WaitCalls])

	metrics.ShowMetrics()
	metrics.ShowMetricsOfPeriod(time.Millisecond)
}
