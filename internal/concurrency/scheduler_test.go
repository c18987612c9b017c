package concurrency_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/beatbridge/internal/concurrency"
)

func TestScheduler_DelayedExecution(t *testing.T) {
	s := concurrency.NewScheduler()
	var count int32

	h := s.Schedule(10*time.Millisecond, func() { atomic.AddInt32(&count, 1) })

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("scheduled function did not run")
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&count) == 1 }, time.Second, time.Millisecond)
	assert.False(t, h.Cancel(), "cancel after fire must report false")
}

func TestScheduler_Cancel(t *testing.T) {
	s := concurrency.NewScheduler()
	var count int32
	h := s.Schedule(30*time.Millisecond, func() { atomic.AddInt32(&count, 1) })

	assert.True(t, h.Cancel())
	assert.False(t, h.Cancel())
	<-h.Done()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&count))
}

func TestScheduler_EveryStopsOnCancel(t *testing.T) {
	s := concurrency.NewScheduler()
	var ticks int32
	h := s.Every(5*time.Millisecond, func() { atomic.AddInt32(&ticks, 1) })

	require.Eventually(t, func() bool { return atomic.LoadInt32(&ticks) >= 3 }, time.Second, time.Millisecond)
	assert.True(t, h.Cancel())
	<-h.Done()

	after := atomic.LoadInt32(&ticks)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&ticks))
}

func TestCancelAllSkipsNil(t *testing.T) {
	s := concurrency.NewScheduler()
	h := s.Schedule(time.Hour, func() {})
	concurrency.CancelAll(nil, h, nil)
	select {
	case <-h.Done():
	default:
		t.Fatal("handle not cancelled")
	}
}
