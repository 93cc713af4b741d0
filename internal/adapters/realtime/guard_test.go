package realtime_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/tapbattle/internal/adapters/realtime"
	. "github.com/smartystreets/goconvey/convey"
)

func TestGuard(t *testing.T) {
	Convey("Given an idle guard", t, func() {
		var resets atomic.Int32
		g := realtime.NewGuard(30*time.Millisecond, func() { resets.Add(1) })
		defer g.Stop()

		Convey("When an action acquires it", func() {
			tok, ok := g.TryAcquire()
			So(ok, ShouldBeTrue)

			Convey("Then a second action is rejected until release", func() {
				_, again := g.TryAcquire()
				So(again, ShouldBeFalse)
				So(g.Release(tok), ShouldBeTrue)
				_, after := g.TryAcquire()
				So(after, ShouldBeTrue)
			})
		})

		Convey("When the action hangs past the timeout", func() {
			stale, _ := g.TryAcquire()
			time.Sleep(80 * time.Millisecond)

			Convey("Then the watchdog clears the flag", func() {
				So(g.Busy(), ShouldBeFalse)
				So(resets.Load(), ShouldEqual, 1)
			})

			Convey("Then the late release does not clear a newer holder", func() {
				fresh, ok := g.TryAcquire()
				So(ok, ShouldBeTrue)
				So(g.Release(stale), ShouldBeFalse)
				So(g.Busy(), ShouldBeTrue)
				So(g.Release(fresh), ShouldBeTrue)
			})
		})

		Convey("When released in time", func() {
			tok, _ := g.TryAcquire()
			So(g.Release(tok), ShouldBeTrue)
			time.Sleep(60 * time.Millisecond)

			Convey("Then the watchdog never fires", func() {
				So(resets.Load(), ShouldEqual, 0)
				So(g.Release(tok), ShouldBeFalse)
			})
		})
	})
}
