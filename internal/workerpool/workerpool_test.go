package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRunsAllTasks(t *testing.T) {
	p := New(4, 16, nil)
	defer p.Shutdown()

	var n int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		p.Submit(func() {
			defer wg.Done()
			atomic.AddInt64(&n, 1)
		})
	}
	wg.Wait()
	assert.Equal(t, int64(100), n)
}

func TestPanicInTaskIsCaughtAndLogged(t *testing.T) {
	var caught atomic.Value
	p := New(1, 4, func(r any) { caught.Store(r) })

	done := make(chan struct{})
	p.Submit(func() { panic("boom") })
	p.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool stalled after a panicking task")
	}

	require.NotNil(t, caught.Load())
	assert.Equal(t, "boom", caught.Load())
}

func TestShutdownDrainsQueue(t *testing.T) {
	p := New(2, 8, nil)
	var n int64
	for i := 0; i < 10; i++ {
		p.Submit(func() { atomic.AddInt64(&n, 1) })
	}
	p.Shutdown()
	assert.Equal(t, int64(10), n)
}
