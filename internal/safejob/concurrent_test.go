package safejob_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/libkqueue/kqueue-go/internal/safejob"
)

func TestConcurrentJob(t *testing.T) {
	job := &safejob.ConcurrentJob{}
	wg := sync.WaitGroup{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			assert.Equal(t, true, job.Begin())
			time.Sleep(time.Millisecond)
			job.End()
			wg.Done()
		}()
	}
	wg.Wait()
	assert.Equal(t, false, job.Closed())
}

func TestConcurrentJobClose(t *testing.T) {
	job := &safejob.ConcurrentJob{}
	assert.Equal(t, false, job.Closed())
	job.Close()
	assert.Equal(t, true, job.Closed())
	assert.Equal(t, false, job.Begin())
}
