package scoring_test

import (
	"sync"
	"testing"

	"github.com/okian/kitchenbeat/internal/domain/model"
	"github.com/okian/kitchenbeat/internal/domain/scoring"
	"github.com/smartystreets/goconvey/convey"
)

func j(track string, g model.Grade) model.Judgment {
	return model.Judgment{Track: track, Grade: g}
}

func TestTally(t *testing.T) {
	convey.Convey("Given a tally with default weights", t, func() {
		tally := scoring.NewTally()

		convey.Convey("When judgments are added", func() {
			convey.So(tally.Add(j("board", model.Perfect)), convey.ShouldEqual, 2)
			convey.So(tally.Add(j("board", model.Good)), convey.ShouldEqual, 1)
			tally.Add(j("stove", model.Perfect))
			tally.Add(j("stove", model.Miss))
			tally.Add(j("bowl", model.Good))
			s := tally.Summary()

			convey.Convey("Then score, combo and counts follow", func() {
				convey.So(s.Score, convey.ShouldEqual, 6)
				convey.So(s.Combo, convey.ShouldEqual, 1)
				convey.So(s.MaxCombo, convey.ShouldEqual, 3)
				convey.So(s.Counts, convey.ShouldResemble, scoring.Counts{Perfect: 2, Good: 2, Miss: 1})
				convey.So(s.ByTrack["stove"], convey.ShouldResemble, scoring.Counts{Perfect: 1, Miss: 1})
				convey.So(s.Scores["board"], convey.ShouldEqual, 3)
				convey.So(s.Accuracy, convey.ShouldAlmostEqual, 0.6, 1e-9)
			})

			convey.Convey("And the tally is reset", func() {
				tally.Reset()

				convey.Convey("Then it is empty again", func() {
					s := tally.Summary()
					convey.So(s.Score, convey.ShouldEqual, 0)
					convey.So(s.Counts.Total(), convey.ShouldEqual, 0)
					convey.So(s.ByTrack, convey.ShouldBeEmpty)
				})
			})
		})
	})

	convey.Convey("Given custom weights", t, func() {
		tally := scoring.NewTally(scoring.WithWeights(scoring.Weights{Perfect: 300, Good: 100, Miss: -50}))
		tally.Add(j("a", model.Perfect))
		tally.Add(j("a", model.Miss))
		convey.So(tally.Summary().Score, convey.ShouldEqual, 250)
	})

	convey.Convey("Given concurrent readers", t, func() {
		tally := scoring.NewTally()
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for k := 0; k < 100; k++ {
					_ = tally.Summary()
				}
			}()
		}
		for k := 0; k < 100; k++ {
			tally.Add(j("a", model.Good))
		}
		wg.Wait()
		convey.So(tally.Summary().Counts.Good, convey.ShouldEqual, 100)
	})
}
