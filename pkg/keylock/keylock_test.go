package keylock_test

import (
	"sync"
	"testing"

	"github.com/okian/tapbattle/pkg/keylock"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLocker(t *testing.T) {
	Convey("Given a keyed locker", t, func() {
		l := keylock.New()

		Convey("When many goroutines increment a counter under one key", func() {
			counter := 0
			var wg sync.WaitGroup
			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					unlock := l.Lock("player-1")
					counter++
					unlock()
				}()
			}
			wg.Wait()

			Convey("Then no update is lost and the entry is released", func() {
				So(counter, ShouldEqual, 100)
				So(l.Len(), ShouldEqual, 0)
			})
		})

		Convey("When overlapping key sets are locked in opposite order", func() {
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(2)
				go func() {
					defer wg.Done()
					l.LockAll("a", "b")()
				}()
				go func() {
					defer wg.Done()
					l.LockAll("b", "a", "a", "")()
				}()
			}
			wg.Wait()

			Convey("Then both complete without deadlock", func() {
				So(l.Len(), ShouldEqual, 0)
			})
		})
	})
}
