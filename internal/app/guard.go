package app

import "sync/atomic"

// Guard is a single-flight flag. A caller that fails TryAcquire must skip its
// work instead of waiting.
type Guard struct {
	busy atomic.Bool
}

func (g *Guard) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

func (g *Guard) Release() {
	g.busy.Store(false)
}

// Busy reports whether a holder is currently running.
func (g *Guard) Busy() bool {
	return g.busy.Load()
}
