package recgen

import "sync/atomic"

// atomicBool is the pipeline's single shutdown flag: the only
// inter-goroutine shared variable writers touch from outside their
// own lock.
type atomicBool struct {
	v atomic.Bool
}

func (b *atomicBool) Store(v bool) { b.v.Store(v) }
func (b *atomicBool) Load() bool   { return b.v.Load() }
