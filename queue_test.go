package netkit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_Operations(t *testing.T) {
	q := NewQueue[int]()

	assert.True(t, q.Empty())
	_, ok := q.PopFront()
	assert.False(t, ok)
	_, ok = q.Back()
	assert.False(t, ok)

	q.PushBack(2)
	q.PushBack(3)
	q.PushFront(1)
	assert.Equal(t, 3, q.Count())

	front, _ := q.Front()
	back, _ := q.Back()
	assert.Equal(t, 1, front)
	assert.Equal(t, 3, back)
	assert.Equal(t, 3, q.Count(), "peek must not remove")

	v, ok := q.PopBack()
	require.True(t, ok)
	assert.Equal(t, 3, v)

	v, ok = q.PopFront()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	q.Clear()
	assert.True(t, q.Empty())
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	const (
		producers   = 8
		perProducer = 1000
		total       = producers * perProducer
	)

	q := NewQueue[int]()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.PushBack(base + i)
			}
		}(p * perProducer)
	}

	seen := make(map[int]int, total)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for len(seen) < total {
		require.NoError(t, q.WaitContext(ctx))
		for {
			v, ok := q.PopFront()
			if !ok {
				break
			}
			seen[v]++
		}
	}
	wg.Wait()

	assert.True(t, q.Empty())
	assert.Len(t, seen, total)
	for v, n := range seen {
		if n != 1 {
			t.Fatalf("item %d seen %d times", v, n)
		}
	}
}

func TestQueue_WaitReturnsWhenPushed(t *testing.T) {
	q := NewQueue[string]()

	done := make(chan struct{})
	go func() {
		q.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned on an empty queue")
	case <-time.After(50 * time.Millisecond):
	}

	q.PushBack("x")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Wait to return")
	}
	assert.False(t, q.Empty())
}

func TestQueue_WaitIgnoresStaleSignal(t *testing.T) {
	q := NewQueue[int]()

	// leaves a wake-up signal behind with nothing queued
	q.PushBack(1)
	q.PopFront()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := q.WaitContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_WaitContextReturnsImmediately(t *testing.T) {
	q := NewQueue[int]()
	q.PushFront(5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, q.WaitContext(ctx))
}
