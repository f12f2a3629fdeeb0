package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/kitchenbeat/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDecodeMessage(t *testing.T) {
	at := time.Unix(100, 0)

	Convey("Given a complete payload", t, func() {
		m, err := model.DecodeMessage([]byte(`{"node_id":"pan-1","topic":"kitchen/pan","action_id":"low","node_timestamp":1200}`), "ignored", at)
		So(err, ShouldBeNil)
		So(m, ShouldResemble, model.Message{NodeID: "pan-1", Topic: "kitchen/pan", ActionID: "low", NodeTimestamp: 1200, ReceivedAt: at})
	})

	Convey("Given a payload without topic", t, func() {
		m, err := model.DecodeMessage([]byte(`{"action_id":"chop","node_timestamp":5}`), "kitchen/cutting_board", at)
		So(err, ShouldBeNil)
		So(m.Topic, ShouldEqual, "kitchen/cutting_board")
		So(m.Node(), ShouldEqual, "kitchen/cutting_board")
	})

	Convey("Given a payload without timestamp", t, func() {
		m, err := model.DecodeMessage([]byte(`{"topic":"kitchen/pan","action_id":"low"}`), "", at)
		So(err, ShouldBeNil)
		So(m.NodeTimestamp, ShouldEqual, -1)
	})

	Convey("Given invalid JSON", t, func() {
		_, err := model.DecodeMessage([]byte(`{"action_id":`), "", at)
		So(errors.Is(err, model.ErrPayload), ShouldBeTrue)
	})

	Convey("Given a fractional timestamp", t, func() {
		_, err := model.DecodeMessage([]byte(`{"action_id":"x","node_timestamp":1.5}`), "", at)
		So(errors.Is(err, model.ErrPayload), ShouldBeTrue)
	})
}
