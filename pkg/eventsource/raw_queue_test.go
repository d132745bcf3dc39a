package eventsource

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawQueueFIFO(t *testing.T) {
	q := NewRawQueue()
	for i := byte(0); i < 10; i++ {
		require.NoError(t, q.Push([]byte{i}))
	}
	assert.Equal(t, 10, q.Len())

	for i := byte(0); i < 10; i++ {
		raw, err := q.Pop(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []byte{i}, raw)
	}
	assert.Equal(t, 0, q.Len())
}

func TestRawQueuePopWaits(t *testing.T) {
	q := NewRawQueue()
	got := make(chan []byte)
	go func() {
		raw, _ := q.Pop(context.Background())
		got <- raw
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Push([]byte("late")))

	select {
	case raw := <-got:
		assert.Equal(t, []byte("late"), raw)
	case <-time.After(time.Second):
		t.Fatal("pop did not wake up")
	}
}

func TestRawQueuePopContext(t *testing.T) {
	q := NewRawQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRawQueueCloseDrains(t *testing.T) {
	q := NewRawQueue()
	require.NoError(t, q.Push([]byte("a")))
	require.NoError(t, q.Push([]byte("b")))
	q.Close()
	q.Close()

	assert.ErrorIs(t, q.Push([]byte("c")), ErrClosed)

	raw, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), raw)
	raw, err = q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), raw)

	_, err = q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRawQueueConcurrentPush(t *testing.T) {
	q := NewRawQueue()
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				_ = q.Push([]byte{1})
			}
		}()
	}

	received := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, err := q.Pop(context.Background()); err != nil {
				return
			}
			received++
		}
	}()

	wg.Wait()
	q.Close()
	<-done
	assert.Equal(t, 1000, received)
}
