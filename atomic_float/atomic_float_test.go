package atomic_float

import (
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestAtomicAdd(t *testing.T) {
	Convey("When AtomicAdd is called", t, func() {
		Convey("When multiple writers add to the value concurrently", func() {
			af := NewAtomicFloat64(0)
			numOps := 2000
			numWriters := 100

			start := make(chan struct{})
			wg := sync.WaitGroup{}
			wg.Add(numWriters)
			adder := func() {
				defer wg.Done()
				<-start
				for i := 0; i < numOps; i++ {
					af.AtomicAdd(1.0)
				}
			}
			for i := 0; i < numWriters; i++ {
				go adder()
			}
			close(start)
			wg.Wait()
			So(af.AtomicRead(), ShouldEqual, float64(numOps*numWriters))
		})

		Convey("When writers increment and decrement concurrently", func() {
			af := NewAtomicFloat64(5)
			numOps := 2000
			numWriters := 100

			start := make(chan struct{})
			wg := sync.WaitGroup{}
			wg.Add(numWriters * 2)
			worker := func(addend float64) {
				defer wg.Done()
				<-start
				for i := 0; i < numOps; i++ {
					for _, succeeded := af.TryAdd(addend); !succeeded; _, succeeded = af.TryAdd(addend) {
					}
				}
			}
			for i := 0; i < numWriters; i++ {
				go worker(1)
				go worker(-1)
			}
			close(start)
			wg.Wait()
			So(af.AtomicRead(), ShouldEqual, 5.0)
		})
	})
}

func TestAtomicSet(t *testing.T) {
	Convey("Given a zero value", t, func() {
		var af AtomicFloat64
		So(af.AtomicRead(), ShouldEqual, 0.0)

		Convey("Set and swap replace the value", func() {
			af.AtomicSet(-2.5)
			So(af.AtomicRead(), ShouldEqual, -2.5)
			So(af.AtomicSwap(4), ShouldEqual, -2.5)
			So(af.AtomicRead(), ShouldEqual, 4.0)
		})
	})
}
