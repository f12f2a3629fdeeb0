package simulator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	service "github.com/okian/kitchenbeat/internal/app"
	"github.com/okian/kitchenbeat/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeHost struct {
	mu       sync.Mutex
	state    string
	sent     []model.WireMessage
	failSend bool
}

func (h *fakeHost) Send(_ context.Context, msg model.WireMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failSend {
		return errors.New("boom")
	}
	h.sent = append(h.sent, msg)
	if len(h.sent) == 2 {
		h.state = "ended"
	}
	return nil
}

func (h *fakeHost) Command(_ context.Context, cmd service.Command) (service.View, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = "running"
	return service.View{State: "countdown"}, nil
}

func (h *fakeHost) Session(_ context.Context) (service.View, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return service.View{State: h.state}, nil
}

func TestRunner(t *testing.T) {
	Convey("Given a host and two shots", t, func() {
		host := &fakeHost{state: "idle"}
		shots := []Shot{
			{At: 0, Track: "board", Topic: "kitchen/cutting_board", ActionID: "chop"},
			{At: 30 * time.Millisecond, Track: "stove", Topic: "kitchen/pan", ActionID: "low"},
		}
		r := NewRunner(host, WithPollInterval(time.Millisecond), WithNodeClock(5000))

		Convey("When the run completes", func() {
			rep, err := r.Run(context.Background(), shots, time.Second)

			Convey("Then every shot is sent with a rising node clock", func() {
				So(err, ShouldBeNil)
				So(rep.Planned, ShouldEqual, 2)
				So(rep.Sent, ShouldEqual, 2)
				So(rep.Final.State, ShouldEqual, "ended")
				So(host.sent[0].NodeID, ShouldEqual, "sim-board")
				So(*host.sent[0].NodeTimestamp, ShouldBeGreaterThanOrEqualTo, 5000)
				So(*host.sent[1].NodeTimestamp-*host.sent[0].NodeTimestamp, ShouldBeGreaterThanOrEqualTo, 10)
			})
		})

		Convey("When sends fail", func() {
			host.failSend = true
			rep, err := r.Run(context.Background(), shots, 50*time.Millisecond)

			Convey("Then failures are counted and the end wait times out", func() {
				So(rep.Failed, ShouldEqual, 2)
				So(errors.Is(err, ErrTimeout), ShouldBeTrue)
			})
		})
	})
}

func TestClient(t *testing.T) {
	Convey("Given a host API", t, func() {
		var got []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = append(got, r.Method+" "+r.URL.Path)
			switch r.URL.Path {
			case "/events":
				w.WriteHeader(http.StatusAccepted)
			case "/session/start", "/session":
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"state":"countdown","countdown":3}`))
			default:
				w.WriteHeader(http.StatusConflict)
			}
		}))
		defer srv.Close()
		c := NewClient(srv.URL+"/", time.Second)
		ctx := context.Background()

		Convey("Then messages and commands reach their routes", func() {
			ts := int64(10)
			So(c.Send(ctx, model.WireMessage{Topic: "kitchen/pan", ActionID: "low", NodeTimestamp: &ts}), ShouldBeNil)
			v, err := c.Command(ctx, service.CmdStart)
			So(err, ShouldBeNil)
			So(v.Countdown, ShouldEqual, 3)
			v, err = c.Session(ctx)
			So(err, ShouldBeNil)
			So(v.State, ShouldEqual, "countdown")
			So(got, ShouldResemble, []string{"POST /events", "POST /session/start", "GET /session"})
		})

		Convey("Then unexpected statuses surface as errors", func() {
			_, err := c.Command(ctx, service.CmdPause)
			var se *StatusError
			So(errors.As(err, &se), ShouldBeTrue)
			So(se.Status, ShouldEqual, http.StatusConflict)
		})
	})
}
