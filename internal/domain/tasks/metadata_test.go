package tasks_test

import (
	"testing"

	"github.com/okian/tapbattle/internal/domain/model"
	"github.com/okian/tapbattle/internal/domain/tasks"
	"github.com/okian/tapbattle/pkg/errs"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetadata(t *testing.T) {
	Convey("ValidateMetadata", t, func() {
		So(tasks.ValidateMetadata(model.TaskMetadata{}), ShouldBeNil)
		So(tasks.ValidateMetadata(model.TaskMetadata{Kind: model.TaskCommunity}), ShouldBeNil)

		err := tasks.ValidateMetadata(model.TaskMetadata{Quiz: &model.QuizMeta{Score: 1}})
		So(errs.Is(err, errs.ErrValidation), ShouldBeTrue)

		err = tasks.ValidateMetadata(model.TaskMetadata{Kind: "poll"})
		So(errs.Is(err, errs.ErrValidation), ShouldBeTrue)

		err = tasks.ValidateMetadata(model.TaskMetadata{
			Kind:  model.TaskQuiz,
			Quiz:  &model.QuizMeta{},
			Watch: &model.WatchMeta{Seconds: 3},
		})
		So(errs.Is(err, errs.ErrValidation), ShouldBeTrue)
	})

	Convey("MergeMetadata", t, func() {
		cur := model.TaskMetadata{Kind: model.TaskQuiz, Quiz: &model.QuizMeta{Score: 3, Answered: 5}}

		Convey("Non-zero fields overwrite and zero fields are kept", func() {
			out, err := tasks.MergeMetadata(cur, model.TaskMetadata{Kind: model.TaskQuiz, Quiz: &model.QuizMeta{Score: 7}})
			So(err, ShouldBeNil)
			So(out.Quiz.Score, ShouldEqual, 7)
			So(out.Quiz.Answered, ShouldEqual, 5)
			So(cur.Quiz.Score, ShouldEqual, 3)
		})

		Convey("An empty update is a no-op", func() {
			out, err := tasks.MergeMetadata(cur, model.TaskMetadata{})
			So(err, ShouldBeNil)
			So(out, ShouldResemble, cur)
		})

		Convey("A kind mismatch is rejected", func() {
			_, err := tasks.MergeMetadata(cur, model.TaskMetadata{Kind: model.TaskJoinDiscord, Discord: &model.DiscordMeta{Handle: "h"}})
			So(errs.Is(err, errs.ErrValidation), ShouldBeTrue)
		})

		Convey("An untyped record adopts the update kind", func() {
			out, err := tasks.MergeMetadata(model.TaskMetadata{}, model.TaskMetadata{Kind: model.TaskCustom, Custom: &model.CustomMeta{Note: "n"}})
			So(err, ShouldBeNil)
			So(out.Kind, ShouldEqual, model.TaskCustom)
			So(out.Custom.Note, ShouldEqual, "n")
		})
	})
}
