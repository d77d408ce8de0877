package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetOrCreate(t *testing.T) {
	c := New[string](10, time.Minute)
	ctx := context.Background()
	var calls atomic.Int32
	create := func(context.Context) (string, error) {
		calls.Add(1)
		return "token-1", nil
	}

	v, err := c.GetOrCreate(ctx, map[string]any{"account": "a", "region": "eu"}, create)
	require.NoError(t, err)
	assert.Equal(t, "token-1", v)

	// same parameters in a different map order hit the cache
	v, err = c.GetOrCreate(ctx, map[string]any{"region": "eu", "account": "a"}, create)
	require.NoError(t, err)
	assert.Equal(t, "token-1", v)
	assert.EqualValues(t, 1, calls.Load())

	c.Invalidate(map[string]any{"account": "a", "region": "eu"})
	_, err = c.GetOrCreate(ctx, map[string]any{"account": "a", "region": "eu"}, create)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestCache_CollapsesConcurrentCreates(t *testing.T) {
	c := New[int](10, time.Minute)
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrCreate(context.Background(), map[string]any{"k": 1}, func(context.Context) (int, error) {
				calls.Add(1)
				<-release
				return 7, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, 7, v)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.EqualValues(t, 1, calls.Load())
}

func TestCache_ErrorsNotCached(t *testing.T) {
	c := New[string](10, time.Minute)
	boom := errors.New("401")

	_, err := c.GetOrCreate(context.Background(), nil, func(context.Context) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	v, err := c.GetOrCreate(context.Background(), nil, func(context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestCache_Expiry(t *testing.T) {
	c := New[string](10, 20*time.Millisecond)
	_, err := c.GetOrCreate(context.Background(), map[string]any{"k": 1}, func(context.Context) (string, error) { return "v", nil })
	require.NoError(t, err)

	_, ok := c.Get(map[string]any{"k": 1})
	assert.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok := c.Get(map[string]any{"k": 1})
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestCache_SizeBound(t *testing.T) {
	c := New[int](2, time.Minute)
	for i := 0; i < 5; i++ {
		_, err := c.GetOrCreate(context.Background(), map[string]any{"i": i}, func(context.Context) (int, error) { return i, nil })
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(map[string]any{"i": 0})
	assert.False(t, ok)
}

func TestCache_ContextCancel(t *testing.T) {
	c := New[int](2, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	block := make(chan struct{})
	defer close(block)

	_, err := c.GetOrCreate(ctx, map[string]any{"k": 1}, func(context.Context) (int, error) {
		<-block
		return 1, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCache_FirstCallerCancelDoesNotFailWaiters(t *testing.T) {
	c := New[string](2, time.Minute)
	params := map[string]any{"account": "a"}
	entered := make(chan struct{})
	release := make(chan struct{})

	create := func(ctx context.Context) (string, error) {
		close(entered)
		<-release
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "token", nil
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.GetOrCreate(firstCtx, params, create)
		firstErr <- err
	}()
	<-entered

	second := make(chan string, 1)
	go func() {
		v, err := c.GetOrCreate(context.Background(), params, func(context.Context) (string, error) {
			return "", errors.New("second create must not run")
		})
		assert.NoError(t, err)
		second <- v
	}()

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(release)

	select {
	case v := <-second:
		assert.Equal(t, "token", v)
	case <-time.After(5 * time.Second):
		t.Fatal("waiter did not receive the shared session")
	}
	v, ok := c.Get(params)
	require.True(t, ok)
	assert.Equal(t, "token", v)
}
