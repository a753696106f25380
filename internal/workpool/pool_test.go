// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package workpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSubmitRunsTasks(t *testing.T) {
	p := New(Config{Workers: 4, QueueSize: 16})
	p.Start()

	var n atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), func() {
			defer wg.Done()
			n.Add(1)
		}))
	}
	wg.Wait()
	p.Stop()
	assert.EqualValues(t, 50, n.Load())
}

func TestSubmitKeyedPreservesOrderPerKey(t *testing.T) {
	p := New(Config{Workers: 8, QueueSize: 64})
	p.Start()
	defer p.Stop()

	const perKey = 200
	keys := []string{"aaaa0001", "bbbb0002", "cccc0003"}

	var mu sync.Mutex
	seen := make(map[string][]int)
	var wg sync.WaitGroup

	for i := 0; i < perKey; i++ {
		for _, k := range keys {
			k, i := k, i
			wg.Add(1)
			require.NoError(t, p.SubmitKeyed(context.Background(), k, func() {
				defer wg.Done()
				mu.Lock()
				seen[k] = append(seen[k], i)
				mu.Unlock()
			}))
		}
	}
	wg.Wait()

	for _, k := range keys {
		require.Len(t, seen[k], perKey)
		for i, v := range seen[k] {
			require.Equal(t, i, v, "key %s out of order", k)
		}
	}
}

func TestSubmitKeyedNeverConcurrentForSameKey(t *testing.T) {
	p := New(Config{Workers: 8, QueueSize: 64})
	p.Start()
	defer p.Stop()

	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		require.NoError(t, p.SubmitKeyed(context.Background(), "same", func() {
			defer wg.Done()
			cur := active.Add(1)
			for {
				prev := maxActive.Load()
				if cur <= prev || maxActive.CompareAndSwap(prev, cur) {
					break
				}
			}
			time.Sleep(100 * time.Microsecond)
			active.Add(-1)
		}))
	}
	wg.Wait()
	assert.EqualValues(t, 1, maxActive.Load())
}

func TestSubmitKeyedDifferentKeysRunInParallel(t *testing.T) {
	p := New(Config{Workers: 2, QueueSize: 8})
	p.Start()
	defer p.Stop()

	release := make(chan struct{})
	started := make(chan string, 2)

	for _, k := range []string{"k1", "k2"} {
		k := k
		require.NoError(t, p.SubmitKeyed(context.Background(), k, func() {
			started <- k
			<-release
		}))
	}

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("keyed tasks for distinct keys did not run concurrently")
		}
	}
	close(release)
}

func TestTrySubmitQueueFull(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 2})
	p.Start()
	defer p.Stop()

	block := make(chan struct{})
	require.NoError(t, p.TrySubmit(func() { <-block }))
	require.NoError(t, p.TrySubmit(func() {}))
	assert.ErrorIs(t, p.TrySubmit(func() {}), ErrQueueFull)
	close(block)
}

func TestSubmitHonoursContextWhenSaturated(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1})
	p.Start()
	defer p.Stop()

	block := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func() { <-block }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Submit(ctx, func() {}), context.DeadlineExceeded)
	close(block)
}

func TestStopDrainsAcceptedWork(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 32})
	p.Start()

	var n atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.SubmitKeyed(context.Background(), fmt.Sprintf("k%d", i%3), func() {
			time.Sleep(time.Millisecond)
			n.Add(1)
		}))
	}
	p.Stop()
	assert.EqualValues(t, 10, n.Load())

	assert.ErrorIs(t, p.Submit(context.Background(), func() {}), ErrPoolClosed)
	assert.ErrorIs(t, p.SubmitKeyed(context.Background(), "k", func() {}), ErrPoolClosed)
	assert.ErrorIs(t, p.TrySubmit(func() {}), ErrPoolClosed)

	p.Stop()
}

func TestStopWithoutStart(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 4})
	var ran atomic.Bool
	require.NoError(t, p.TrySubmit(func() { ran.Store(true) }))
	p.Stop()
	assert.True(t, ran.Load())
}

func TestPanicIsRecovered(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 4})
	p.Start()
	defer p.Stop()

	done := make(chan struct{})
	require.NoError(t, p.SubmitKeyed(context.Background(), "k", func() { panic("boom") }))
	require.NoError(t, p.SubmitKeyed(context.Background(), "k", func() { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lane stalled after panic")
	}
}

func TestLaneIsReleasedWhenIdle(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 4})
	p.Start()
	defer p.Stop()

	done := make(chan struct{})
	require.NoError(t, p.SubmitKeyed(context.Background(), "idle", func() { close(done) }))
	<-done

	require.Eventually(t, func() bool { return !p.Pending("idle") }, time.Second, 5*time.Millisecond)
}

func TestDefaultWorkers(t *testing.T) {
	p := New(Config{})
	assert.Greater(t, p.Workers(), 1)
	p.Stop()
}
