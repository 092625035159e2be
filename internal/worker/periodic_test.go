package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodicRunsOnStartAndOnTicks(t *testing.T) {
	var calls atomic.Int32
	p := NewPeriodic(Config{Name: "test", Interval: 20 * time.Millisecond, RunOnStart: true},
		func(context.Context) error {
			calls.Add(1)
			return nil
		}, nil)

	p.Start(context.Background())
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	p.Stop()

	after := calls.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, after, calls.Load())
}

func TestPeriodicTrigger(t *testing.T) {
	var calls atomic.Int32
	p := NewPeriodic(Config{Interval: time.Hour}, func(context.Context) error {
		calls.Add(1)
		return errors.New("backend down")
	}, nil)

	p.Start(context.Background())
	defer p.Stop()

	assert.Zero(t, calls.Load())
	p.Trigger()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestPeriodicStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPeriodic(Config{Interval: time.Hour}, func(context.Context) error { return nil }, nil)
	p.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestStartTwiceIsNoop(t *testing.T) {
	var calls atomic.Int32
	p := NewPeriodic(Config{Interval: time.Hour, RunOnStart: true}, func(context.Context) error {
		calls.Add(1)
		return nil
	}, nil)
	p.Start(context.Background())
	p.Start(context.Background())
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	p.Stop()
	p.Stop()
	assert.Equal(t, int32(1), calls.Load())
}

func TestRestartAfterContextEnds(t *testing.T) {
	var calls atomic.Int32
	p := NewPeriodic(Config{Interval: time.Hour, RunOnStart: true}, func(context.Context) error {
		calls.Add(1)
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return !p.running
	}, time.Second, 5*time.Millisecond)

	p.Start(context.Background())
	defer p.Stop()
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}
