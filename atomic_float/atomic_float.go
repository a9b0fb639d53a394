package atomic_float

import (
	"math"
	"sync/atomic"
)

// AtomicFloat64 is a float64 that can be read and written from several goroutines without
// locking. The driver writes training statistics through it while server handlers read them.
// The bits are stored in an atomic.Uint64, so the zero value holds 0.0 and is ready to use.
type AtomicFloat64 struct {
	bits atomic.Uint64
}

// NewAtomicFloat64 returns an AtomicFloat64 holding val.
func NewAtomicFloat64(val float64) *AtomicFloat64 {
	af := &AtomicFloat64{}
	af.bits.Store(math.Float64bits(val))
	return af
}

// AtomicRead returns the current value.
func (af *AtomicFloat64) AtomicRead() float64 {
	return math.Float64frombits(af.bits.Load())
}

// AtomicAdd adds addend and returns the new value. Concurrent adds are retried until they
// apply, so none are lost.
func (af *AtomicFloat64) AtomicAdd(addend float64) (newVal float64) {
	for {
		old := af.bits.Load()
		newVal = math.Float64frombits(old) + addend
		if af.bits.CompareAndSwap(old, math.Float64bits(newVal)) {
			return newVal
		}
	}
}

// TryAdd makes a single attempt to add addend, failing if another writer got in first.
func (af *AtomicFloat64) TryAdd(addend float64) (newVal float64, succeeded bool) {
	old := af.bits.Load()
	newVal = math.Float64frombits(old) + addend
	succeeded = af.bits.CompareAndSwap(old, math.Float64bits(newVal))
	return
}

// AtomicSet stores val.
func (af *AtomicFloat64) AtomicSet(val float64) {
	af.bits.Store(math.Float64bits(val))
}

// AtomicSwap stores val and returns the previous value.
func (af *AtomicFloat64) AtomicSwap(val float64) (old float64) {
	return math.Float64frombits(af.bits.Swap(math.Float64bits(val)))
}
