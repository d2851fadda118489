// guard.go implements the scoped-release guard for engine-owned buffers.

package recv

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"github.com/GrantSparks/grafton-ndi/transport"
)

// releaseGuard owns exactly one engine buffer handle and returns it to
// the engine exactly once, however the owning view is disposed of. If
// the producing receiver was already destroyed the release is skipped:
// the engine has invalidated the handle itself and calling into a
// destroyed instance is not allowed.
type releaseGuard struct {
	receiver    *Receiver
	handle      transport.BufferHandle
	releaseOnce sync.Once
	released    atomic.Bool
}

func newReleaseGuard(
	receiver *Receiver,
	handle transport.BufferHandle,
) *releaseGuard {
	return &releaseGuard{
		receiver: receiver,
		handle:   handle,
	}
}

func (g *releaseGuard) release(ctx context.Context) {
	g.releaseOnce.Do(func() {
		g.released.Store(true)
		g.receiver.releaseHandle(ctx, g.handle)
	})
}

func (g *releaseGuard) isReleased() bool {
	return g.released.Load()
}
