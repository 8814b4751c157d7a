package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsAllTasks(t *testing.T) {
	p := New(4)
	defer p.Close()

	var count atomic.Int64
	var wg sync.WaitGroup
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		wg.Add(1)
		err := p.Submit(ctx, func() {
			defer wg.Done()
			count.Add(1)
		})
		require.NoError(t, err)
	}
	wg.Wait()

	assert.Equal(t, int64(1000), count.Load())
}

func TestPoolDefaultSize(t *testing.T) {
	p := New(0)
	defer p.Close()
	assert.Greater(t, p.Workers(), 0)
}

func TestPoolSubmitAfterClose(t *testing.T) {
	p := New(2)
	p.Close()

	err := p.Submit(context.Background(), func() {})
	require.ErrorIs(t, err, ErrClosed)
}

func TestPoolCloseWaitsForInflight(t *testing.T) {
	p := New(2)

	var done atomic.Int64
	release := make(chan struct{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, p.Submit(ctx, func() {
			<-release
			done.Add(1)
		}))
	}
	close(release)
	p.Close()

	assert.Equal(t, int64(2), done.Load())
}

func TestPoolCloseIdempotent(t *testing.T) {
	p := New(1)
	p.Close()
	p.Close()
}

func TestPoolSubmitCancelledContext(t *testing.T) {
	p := New(1)
	defer p.Close()

	// Block the single worker and fill the queue so Submit must wait.
	release := make(chan struct{})
	defer close(release)
	require.NoError(t, p.Submit(context.Background(), func() { <-release }))
	for {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := p.Submit(ctx, func() {})
		if err != nil {
			require.ErrorIs(t, err, context.Canceled)
			break
		}
	}
}
