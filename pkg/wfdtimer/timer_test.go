package wfdtimer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimer_FiresOnExpiry(t *testing.T) {
	timer := New("test")
	defer timer.Close()

	var fired atomic.Bool
	timer.StartTimer(20*time.Millisecond, "expiry", func() { fired.Store(true) }, false)

	require.Eventually(t, fired.Load, time.Second, 5*time.Millisecond)
}

func TestTimer_StopPreventsCallback(t *testing.T) {
	timer := New("test")
	defer timer.Close()

	var fired atomic.Bool
	timer.StartTimer(100*time.Millisecond, "expiry", func() { fired.Store(true) }, false)
	timer.StopTimer()

	time.Sleep(200 * time.Millisecond)
	require.False(t, fired.Load())
}

func TestTimer_RestartWhileWorkingCancelsOldWait(t *testing.T) {
	timer := New("test")
	defer timer.Close()

	var firstFired, secondFired atomic.Bool
	timer.StartTimer(500*time.Millisecond, "first", func() { firstFired.Store(true) }, false)
	timer.StartTimer(20*time.Millisecond, "second", func() { secondFired.Store(true) }, false)

	require.Eventually(t, secondFired.Load, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.False(t, firstFired.Load())
}

func TestTimer_CloseJoinsRegardlessOfState(t *testing.T) {
	timer := New("test")
	timer.StartTimer(time.Second, "pending", func() {}, false)
	done := make(chan struct{})
	go func() {
		timer.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
}
