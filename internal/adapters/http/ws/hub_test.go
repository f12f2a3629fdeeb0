package ws_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/kitchenbeat/internal/adapters/http/ws"
	"github.com/okian/kitchenbeat/internal/domain/dispatch"
	. "github.com/smartystreets/goconvey/convey"
)

func waitClients(h *ws.Hub, n int) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.Clients() == n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestHub(t *testing.T) {
	ctx := context.Background()

	Convey("Given a hub behind a test server", t, func() {
		hub := ws.NewHub()
		srv := httptest.NewServer(hub)
		defer srv.Close()
		url := "ws" + strings.TrimPrefix(srv.URL, "http")

		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		So(err, ShouldBeNil)
		defer conn.Close()
		So(waitClients(hub, 1), ShouldBeTrue)
		So(hub.Name(), ShouldEqual, "websocket")

		Convey("When a playback command is broadcast", func() {
			So(hub.Playback(ctx, dispatch.PlaybackCommand{SoundID: "pan_sizzle", AtMS: 1500, Kind: dispatch.KindNote}), ShouldBeNil)

			Convey("Then the client receives it on the playback channel", func() {
				_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
				_, data, err := conn.ReadMessage()
				So(err, ShouldBeNil)
				var env struct {
					Channel string                   `json:"channel"`
					Data    dispatch.PlaybackCommand `json:"data"`
				}
				So(json.Unmarshal(data, &env), ShouldBeNil)
				So(env.Channel, ShouldEqual, "playback")
				So(env.Data.SoundID, ShouldEqual, "pan_sizzle")
				So(env.Data.AtMS, ShouldEqual, 1500)
			})
		})

		Convey("When a display update is broadcast", func() {
			So(hub.Display(ctx, dispatch.DisplayUpdate{Type: dispatch.TypeFrame, ClockMS: 42, State: "running"}), ShouldBeNil)

			Convey("Then the client receives it on the display channel", func() {
				_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
				_, data, err := conn.ReadMessage()
				So(err, ShouldBeNil)
				So(string(data), ShouldContainSubstring, `"channel":"display"`)
				So(string(data), ShouldContainSubstring, `"clock_ms":42`)
			})
		})

		Convey("When the client disconnects", func() {
			So(conn.Close(), ShouldBeNil)
			So(waitClients(hub, 0), ShouldBeTrue)
		})

		Convey("When the hub is closed", func() {
			So(hub.Close(), ShouldBeNil)
			So(hub.Clients(), ShouldEqual, 0)
			So(hub.Display(ctx, dispatch.DisplayUpdate{}), ShouldEqual, ws.ErrHubClosed)
		})
	})
}
