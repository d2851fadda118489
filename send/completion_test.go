package send

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ndi "github.com/GrantSparks/grafton-ndi"
)

func TestWaitableCompletion_StartsCompleted(t *testing.T) {
	ctx := context.Background()
	wc := newWaitableCompletion(true)
	require.True(t, wc.IsComplete())
	require.NoError(t, wc.Wait(ctx, 0))
}

func TestWaitableCompletion_WaitTimesOut(t *testing.T) {
	ctx := context.Background()
	wc := newWaitableCompletion(true)
	wc.Reset()
	require.False(t, wc.IsComplete())

	start := time.Now()
	err := wc.Wait(ctx, 20*time.Millisecond)
	require.ErrorIs(t, err, ndi.ErrFlushTimeout{Timeout: 20 * time.Millisecond})
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestWaitableCompletion_SignalWakesWaiter(t *testing.T) {
	ctx := context.Background()
	wc := newWaitableCompletion(false)

	errCh := make(chan error, 1)
	go func() {
		errCh <- wc.Wait(ctx, 5*time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	wc.Signal()
	// Signalling twice is harmless.
	wc.Signal()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("the waiter was never woken")
	}
	require.True(t, wc.IsComplete())
}

func TestWaitableCompletion_ResetRearms(t *testing.T) {
	ctx := context.Background()
	wc := newWaitableCompletion(false)
	wc.Signal()
	require.NoError(t, wc.Wait(ctx, 0))

	wc.Reset()
	err := wc.Wait(ctx, 0)
	require.ErrorIs(t, err, ndi.ErrFlushTimeout{Timeout: 0})

	wc.Signal()
	require.NoError(t, wc.Wait(ctx, 0))
}

func TestWaitableCompletion_WaitHonorsContext(t *testing.T) {
	ctx, cancelFn := context.WithCancel(context.Background())
	wc := newWaitableCompletion(false)

	errCh := make(chan error, 1)
	go func() {
		errCh <- wc.Wait(ctx, 5*time.Second)
	}()
	time.Sleep(10 * time.Millisecond)
	cancelFn()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancellation did not interrupt the wait")
	}
}
