package repository_test

import (
	"context"
	"sync"
	"testing"

	"github.com/okian/kitchenbeat/internal/adapters/repository"
	"github.com/okian/kitchenbeat/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	Convey("Given a store with three registered tracks", t, func() {
		s := repository.NewMemoryStore(repository.WithTracks("stove", "board", "bowl"))

		Convey("Then every track ranks first with a zero score", func() {
			So(s.Count(ctx), ShouldEqual, 3)
			top, err := s.TopN(ctx, 10)
			So(err, ShouldBeNil)
			So(top, ShouldHaveLength, 3)
			for _, st := range top {
				So(st.Rank, ShouldEqual, 1)
			}
			So(top[0].Track, ShouldEqual, "board")
		})

		Convey("When judgments are recorded", func() {
			So(s.Record(ctx, "stove", model.Perfect, 2), ShouldBeNil)
			So(s.Record(ctx, "stove", model.Good, 1), ShouldBeNil)
			So(s.Record(ctx, "board", model.Perfect, 2), ShouldBeNil)
			So(s.Record(ctx, "bowl", model.Miss, 0), ShouldBeNil)

			Convey("Then standings are ranked by score", func() {
				top, err := s.TopN(ctx, 3)
				So(err, ShouldBeNil)
				So(top[0].Track, ShouldEqual, "stove")
				So(top[0].Rank, ShouldEqual, 1)
				So(top[0].Score, ShouldEqual, 3)
				So(top[0].Accuracy, ShouldAlmostEqual, 0.75, 1e-9)
				So(top[1].Track, ShouldEqual, "board")
				So(top[1].Rank, ShouldEqual, 2)
				So(top[2].Track, ShouldEqual, "bowl")
				So(top[2].Miss, ShouldEqual, 1)
			})

			Convey("Then Rank returns one track", func() {
				st, err := s.Rank(ctx, "board")
				So(err, ShouldBeNil)
				So(st.Rank, ShouldEqual, 2)
				So(st.Perfect, ShouldEqual, 1)
			})

			Convey("Then ties share a rank", func() {
				So(s.Record(ctx, "board", model.Good, 1), ShouldBeNil)
				top, _ := s.TopN(ctx, 3)
				So(top[0].Rank, ShouldEqual, 1)
				So(top[1].Rank, ShouldEqual, 1)
				So(top[2].Rank, ShouldEqual, 2)
			})

			Convey("And the store is reset", func() {
				s.Reset(ctx)
				st, err := s.Rank(ctx, "stove")
				So(err, ShouldBeNil)
				So(st.Score, ShouldEqual, 0)
				So(st.Perfect, ShouldEqual, 0)
				So(s.Count(ctx), ShouldEqual, 3)
			})
		})

		Convey("When asking for an unknown track", func() {
			_, err := s.Rank(ctx, "oven")
			So(err, ShouldEqual, repository.ErrNotFound)
		})

		Convey("When the limit is not positive", func() {
			_, err := s.TopN(ctx, 0)
			So(err, ShouldEqual, repository.ErrInvalidLimit)
		})

		Convey("When the limit exceeds the board", func() {
			top, err := s.TopN(ctx, 100)
			So(err, ShouldBeNil)
			So(top, ShouldHaveLength, 3)
		})
	})

	Convey("Given concurrent writers and readers", t, func() {
		s := repository.NewMemoryStore(repository.WithPerfectPoints(300))
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for k := 0; k < 50; k++ {
					_ = s.Record(ctx, "stove", model.Perfect, 300)
					_, _ = s.TopN(ctx, 5)
				}
			}()
		}
		wg.Wait()
		st, err := s.Rank(ctx, "stove")
		So(err, ShouldBeNil)
		So(st.Perfect, ShouldEqual, 200)
		So(st.Accuracy, ShouldEqual, 1)
	})
}
