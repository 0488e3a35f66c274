// Package metrics counts dispatch-engine activity: wait calls, copyouts,
// change-list errors, and per-filter-kind deliveries. A good tool for
// seeing where a busy queue is spending its time.
package metrics

import (
	"fmt"
	"time"

	"go.uber.org/atomic"
)

// All metrics definitions.
const (
	// Wait phase.
	WaitCalls = iota
	WaitTimeouts
	WaitErrors
	EventsCopiedOut

	// Change phase.
	ChangesApplied
	ChangeErrors
	ReceiptsIssued

	// Per-filter-kind deliveries.
	ReadDeliveries
	WriteDeliveries
	UserDeliveries
	TimerDeliveries
	SignalDeliveries
	ProcDeliveries
	VnodeDeliveries

	Max
)

var metrics [Max]atomic.Uint64

// Add adds delta to the named counter.
func Add(name int, delta uint64) {
	if name >= Max {
		return
	}
	metrics[name].Add(delta)
}

// Get reads one counter.
func Get(name int) uint64 {
	if name >= Max {
		return 0
	}
	return metrics[name].Load()
}

// GetAll reads every counter.
func GetAll() [Max]uint64 {
	var m [Max]uint64
	for i := range metrics {
		m[i] = metrics[i].Load()
	}
	return m
}

// ShowMetricsOfPeriod blocks for d, then prints the counter deltas
// accumulated over that period.
func ShowMetricsOfPeriod(d time.Duration) {
	old := GetAll()
	<-time.After(d)
	latest := GetAll()
	var m [Max]uint64
	for i := range metrics {
		m[i] = latest[i] - old[i]
	}
	showAll(m)
}

// ShowMetrics prints the current counter values.
func ShowMetrics() {
	showAll(GetAll())
}

func showAll(m [Max]uint64) {
	fmt.Println("######### kqueue metrics (", time.Now().Format("2006-01-02 15:04:05"), ") ###########")
	fmt.Printf("%-59s: %d\n", "# number of back-end Wait calls", m[WaitCalls])
	fmt.Printf("%-59s: %d\n", "# number of Wait calls that timed out", m[WaitTimeouts])
	fmt.Printf("%-59s: %d\n", "# number of Wait calls that returned an error", m[WaitErrors])
	fmt.Printf("%-59s: %d\n", "# number of event-list entries copied out", m[EventsCopiedOut])
	fmt.Printf("%-59s: %d\n", "# number of change-list entries applied", m[ChangesApplied])
	fmt.Printf("%-59s: %d\n", "# number of change-list entries that errored", m[ChangeErrors])
	fmt.Printf("%-59s: %d\n", "# number of RECEIPT acknowledgements issued", m[ReceiptsIssued])
	if waits := m[WaitCalls]; waits > 0 {
		fmt.Printf("%-59s: %.2f\n", "# average event-list entries per Wait",
			float64(m[EventsCopiedOut])/float64(waits))
	}
	showFilterMetrics(m)
	fmt.Printf("\n")
}

func showFilterMetrics(m [Max]uint64) {
	fmt.Printf("%-59s: %d\n", "# READ deliveries", m[ReadDeliveries])
	fmt.Printf("%-59s: %d\n", "# WRITE deliveries", m[WriteDeliveries])
	fmt.Printf("%-59s: %d\n", "# USER deliveries", m[UserDeliveries])
	fmt.Printf("%-59s: %d\n", "# TIMER deliveries", m[TimerDeliveries])
	fmt.Printf("%-59s: %d\n", "# SIGNAL deliveries", m[SignalDeliveries])
	fmt.Printf("%-59s: %d\n", "# PROC deliveries", m[ProcDeliveries])
	fmt.Printf("%-59s: %d\n", "# VNODE deliveries", m[VnodeDeliveries])
}
