package ws

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/kitchenbeat/internal/domain/dispatch"
	"github.com/okian/kitchenbeat/pkg/metrics"
)

func TestSlowClientDrops(t *testing.T) {
	Convey("Given a client whose send buffer holds one frame", t, func() {
		hub := NewHub()
		slow := &subscriber{id: "slow", send: make(chan []byte, 1)}
		So(hub.subscribe(slow), ShouldBeTrue)
		before := droppedFrames("playback")

		Convey("When three frames are broadcast and none are drained", func() {
			for i := 0; i < 3; i++ {
				So(hub.Playback(context.Background(), dispatch.PlaybackCommand{SoundID: "whisking", AtMS: int64(i)}), ShouldBeNil)
			}

			Convey("Then the first is queued and the rest are counted as dropped", func() {
				So(len(slow.send), ShouldEqual, 1)
				So(hub.Dropped(), ShouldEqual, 2)
				So(droppedFrames("playback")-before, ShouldEqual, 2)
			})
		})

		Reset(func() { _ = hub.Close() })
	})
}

func droppedFrames(channel string) float64 {
	families, err := metrics.GetRegistry().Gather()
	if err != nil {
		return 0
	}
	for _, f := range families {
		if f.GetName() != "kitchenbeat_game_ws_frames_dropped_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "channel" && l.GetValue() == channel {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
