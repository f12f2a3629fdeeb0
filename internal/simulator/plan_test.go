package simulator

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/okian/kitchenbeat/internal/domain/chart"
	. "github.com/smartystreets/goconvey/convey"
)

const planChart = `
title: Plan
tracks:
  - id: board
    notes:
      - {time: 1000, action: chop}
      - {time: 2000, action: chop}
  - id: stove
    notes:
      - {time: 1500, action: low, type: sustained, duration: 400}
`

var planTopics = map[string]string{"board": "kitchen/cutting_board", "stove": "kitchen/pan"}

func mustChart() *chart.Chart {
	ch, err := chart.Parse(strings.NewReader(planChart))
	if err != nil {
		panic(err)
	}
	return ch
}

func TestPlan(t *testing.T) {
	Convey("Given a chart with strikes and a hold", t, func() {
		ch := mustChart()

		Convey("When planned with a perfect profile", func() {
			p := DefaultProfile()
			p.Spread = 0
			p.HoldInterval = 100 * time.Millisecond
			shots, err := Plan(ch, planTopics, p, 1)
			So(err, ShouldBeNil)

			Convey("Then strikes are single shots on the note time", func() {
				So(shots[0], ShouldResemble, Shot{At: time.Second, Track: "board", Topic: "kitchen/cutting_board", ActionID: "chop", Note: 0})
				So(shots[len(shots)-1].At, ShouldEqual, 2*time.Second)
			})

			Convey("Then the hold reports activity until its end", func() {
				var hold []time.Duration
				for _, s := range shots {
					if s.Track == "stove" {
						hold = append(hold, s.At)
					}
				}
				So(hold, ShouldResemble, []time.Duration{
					1500 * time.Millisecond, 1600 * time.Millisecond, 1700 * time.Millisecond,
					1800 * time.Millisecond, 1900 * time.Millisecond,
				})
			})

			Convey("Then shots are time ordered", func() {
				for i := 1; i < len(shots); i++ {
					So(shots[i].At, ShouldBeGreaterThanOrEqualTo, shots[i-1].At)
				}
			})
		})

		Convey("When planned twice with the same seed", func() {
			p := DefaultProfile()
			p.MissRate = 0.3
			a, err := Plan(ch, planTopics, p, 42)
			So(err, ShouldBeNil)
			b, _ := Plan(ch, planTopics, p, 42)

			Convey("Then the plans match", func() {
				So(a, ShouldResemble, b)
			})

			Convey("Then timing stays within the spread", func() {
				for _, s := range a {
					if s.Track == "board" {
						off := s.At - time.Duration(s.Note+1)*time.Second
						So(off, ShouldBeBetweenOrEqual, -p.Spread, p.Spread)
					}
				}
			})
		})

		Convey("When every note is missed", func() {
			p := DefaultProfile()
			p.MissRate = 1
			shots, err := Plan(ch, planTopics, p, 7)
			So(err, ShouldBeNil)
			So(shots, ShouldBeEmpty)
		})

		Convey("When a track has no topic", func() {
			_, err := Plan(ch, map[string]string{"board": "kitchen/cutting_board"}, DefaultProfile(), 1)
			So(errors.Is(err, ErrNoTopic), ShouldBeTrue)
		})

		Convey("When the profile is out of range", func() {
			p := DefaultProfile()
			p.HoldCoverage = 2
			_, err := Plan(ch, planTopics, p, 1)
			So(errors.Is(err, ErrInvalidProfile), ShouldBeTrue)
		})
	})
}
