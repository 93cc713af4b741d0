package tasks_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/tapbattle/internal/domain/model"
	"github.com/okian/tapbattle/internal/domain/tasks"
	"github.com/okian/tapbattle/pkg/errs"
	"github.com/okian/tapbattle/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

var fixed = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func players() []*model.Player {
	return []*model.Player{
		{ID: "alice", Coins: 100, ReferralCode: "ALICE1"},
		{ID: "bob", Coins: 0, ReferralCode: "BOB1"},
		{ID: "carol", ReferralCode: "CAROL1", ReferredBy: "alice"},
	}
}

func TestComplete(t *testing.T) {
	ctx := context.Background()

	Convey("Given a task service", t, func() {
		store := newMemStore(players()...)
		svc := tasks.NewService(store, tasks.WithClock(func() time.Time { return fixed }))

		Convey("When a quiz task is completed", func() {
			req := tasks.CompleteRequest{
				PlayerID:     "alice",
				TaskID:       "quiz-1",
				Type:         model.TaskQuiz,
				RewardPoints: 250,
				Metadata:     model.TaskMetadata{Kind: model.TaskQuiz, Quiz: &model.QuizMeta{Score: 8, Answered: 10}},
			}
			res, err := svc.Complete(ctx, req)

			Convey("Then the reward is credited once", func() {
				So(err, ShouldBeNil)
				So(res.Credited, ShouldBeTrue)
				So(res.Progress.Completed, ShouldBeTrue)
				So(res.Progress.CompletedAt.Equal(fixed), ShouldBeTrue)
				So(store.player("alice").Coins, ShouldEqual, 350)
				So(store.task("alice", "quiz-1").Metadata.Quiz.Score, ShouldEqual, 8)

				again, err := svc.Complete(ctx, req)
				So(err, ShouldBeNil)
				So(again.Credited, ShouldBeFalse)
				So(store.player("alice").Coins, ShouldEqual, 350)
			})
		})

		Convey("When metadata of another kind is supplied", func() {
			_, err := svc.Complete(ctx, tasks.CompleteRequest{
				PlayerID: "alice",
				TaskID:   "quiz-2",
				Type:     model.TaskQuiz,
				Metadata: model.TaskMetadata{Kind: model.TaskCustom, Custom: &model.CustomMeta{Note: "x"}},
			})

			Convey("Then nothing is stored", func() {
				So(errs.Is(err, errs.ErrValidation), ShouldBeTrue)
				So(store.task("alice", "quiz-2"), ShouldBeNil)
			})
		})

		Convey("When the player does not exist", func() {
			_, err := svc.Complete(ctx, tasks.CompleteRequest{PlayerID: "ghost", TaskID: "t"})

			Convey("Then a not found error is returned", func() {
				So(errs.Is(err, errs.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When ids are missing", func() {
			_, err := svc.Complete(ctx, tasks.CompleteRequest{PlayerID: " "})

			Convey("Then a validation error is returned", func() {
				So(errs.Is(err, errs.ErrValidation), ShouldBeTrue)
			})
		})
	})
}

func TestProgress(t *testing.T) {
	ctx := context.Background()

	Convey("Given a watch task with a target of three", t, func() {
		store := newMemStore(players()...)
		svc := tasks.NewService(store)
		req := tasks.ProgressRequest{
			PlayerID:     "bob",
			TaskID:       "watch-1",
			Type:         model.TaskWatchAndEarn,
			Target:       3,
			Delta:        1,
			RewardPoints: 40,
		}

		Convey("When progress is reported below the target", func() {
			res, err := svc.Progress(ctx, req)

			Convey("Then nothing is credited", func() {
				So(err, ShouldBeNil)
				So(res.Credited, ShouldBeFalse)
				So(res.Progress.Progress, ShouldEqual, 1)
				So(store.player("bob").Coins, ShouldEqual, 0)
			})
		})

		Convey("When progress reaches the target", func() {
			req.Delta = 2
			_, _ = svc.Progress(ctx, req)
			req.Metadata = model.TaskMetadata{Kind: model.TaskWatchAndEarn, Watch: &model.WatchMeta{Seconds: 90}}
			res, err := svc.Progress(ctx, req)

			Convey("Then the task completes and pays", func() {
				So(err, ShouldBeNil)
				So(res.Credited, ShouldBeTrue)
				So(res.Progress.Progress, ShouldEqual, 4)
				So(res.Progress.Metadata.Watch.Seconds, ShouldEqual, 90)
				So(store.player("bob").Coins, ShouldEqual, 40)
			})
		})

		Convey("When delta is not positive", func() {
			req.Delta = 0
			_, err := svc.Progress(ctx, req)

			Convey("Then a validation error is returned", func() {
				So(errs.Is(err, errs.ErrValidation), ShouldBeTrue)
			})
		})
	})
}

func TestApplyReferral(t *testing.T) {
	ctx := context.Background()

	Convey("Given players with referral codes", t, func() {
		store := newMemStore(players()...)
		svc := tasks.NewService(store, tasks.WithReferralBonus(500), tasks.WithReferTask("refer", 1, 1000))

		Convey("When bob uses alice's code", func() {
			ref, err := svc.ApplyReferral(ctx, "bob", "ALICE1")

			Convey("Then alice earns the bonus and the refer task reward", func() {
				So(err, ShouldBeNil)
				So(ref.ID, ShouldEqual, "alice")
				So(store.player("bob").ReferredBy, ShouldEqual, "alice")
				alice := store.player("alice")
				So(alice.Coins, ShouldEqual, 100+500+1000)
				So(alice.ReferralEarnings, ShouldEqual, 500)
				tp := store.task("alice", "refer")
				So(tp.Completed, ShouldBeTrue)
				So(tp.Metadata.Refer.Referrals, ShouldEqual, 1)
			})
		})

		Convey("When a player uses their own code", func() {
			_, err := svc.ApplyReferral(ctx, "bob", "BOB1")

			Convey("Then it is rejected", func() {
				So(errs.Is(err, errs.ErrValidation), ShouldBeTrue)
			})
		})

		Convey("When an already referred player applies a code", func() {
			_, err := svc.ApplyReferral(ctx, "carol", "BOB1")

			Convey("Then a conflict is reported and nobody is paid", func() {
				So(errs.Is(err, errs.ErrStateConflict), ShouldBeTrue)
				So(store.player("bob").Coins, ShouldEqual, 0)
			})
		})

		Convey("When the code is unknown", func() {
			_, err := svc.ApplyReferral(ctx, "bob", "NOPE")

			Convey("Then a not found error is returned", func() {
				So(errs.Is(err, errs.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}
