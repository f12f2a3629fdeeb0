package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/okian/kitchenbeat/internal/domain/dispatch"
	"github.com/okian/kitchenbeat/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type doneToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *doneToken {
	t := &doneToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeConn struct {
	mu         sync.Mutex
	opts       *paho.ClientOptions
	connectErr error
	filters    map[string]byte
	handler    paho.MessageHandler
	published  []published
	connected  bool
}

func (f *fakeConn) Connect() paho.Token {
	f.connected = f.connectErr == nil
	return newToken(f.connectErr)
}

func (f *fakeConn) Disconnect(uint) { f.connected = false }

func (f *fakeConn) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return newToken(nil)
}

func (f *fakeConn) SubscribeMultiple(filters map[string]byte, cb paho.MessageHandler) paho.Token {
	f.filters = filters
	f.handler = cb
	return newToken(nil)
}

func (f *fakeConn) IsConnected() bool { return f.connected }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type inbox struct{ msgs []model.Message }

func (i *inbox) Enqueue(_ context.Context, m model.Message) bool {
	i.msgs = append(i.msgs, m)
	return true
}

func TestClient(t *testing.T) {
	ctx := context.Background()
	at := time.Unix(50, 0)

	Convey("Given a client over a fake broker connection", t, func() {
		conn := &fakeConn{}
		in := &inbox{}
		c := New(Config{
			Broker:        "tcp://localhost:1883",
			QoS:           1,
			Topics:        []string{"kitchen/pan", "kitchen/cutting_board"},
			PlaybackTopic: "kitchenbeat/playback",
			DisplayTopic:  "kitchenbeat/display",
		}, in,
			WithNow(func() time.Time { return at }),
			withFactory(func(o *paho.ClientOptions) client {
				conn.opts = o
				return conn
			}))

		So(c.cfg.ClientID, ShouldStartWith, "kitchenbeat-")
		So(c.Connect(ctx), ShouldBeNil)
		So(conn.opts.Servers[0].Host, ShouldEqual, "localhost:1883")
		So(c.Topics(), ShouldResemble, []string{"kitchen/cutting_board", "kitchen/pan"})

		Convey("When subscriptions are issued", func() {
			So(c.subscribe(conn), ShouldBeNil)
			So(conn.filters, ShouldResemble, map[string]byte{"kitchen/pan": 1, "kitchen/cutting_board": 1})

			Convey("And an instrument publishes", func() {
				conn.handler(nil, fakeMessage{topic: "kitchen/pan", payload: []byte(`{"action_id":"low","node_timestamp":900}`)})
				conn.handler(nil, fakeMessage{topic: "kitchen/pan", payload: []byte(`not json`)})

				Convey("Then valid payloads reach the raw queue with the transport topic", func() {
					So(in.msgs, ShouldHaveLength, 1)
					So(in.msgs[0], ShouldResemble, model.Message{Topic: "kitchen/pan", ActionID: "low", NodeTimestamp: 900, ReceivedAt: at})
				})
			})
		})

		Convey("When playback and display are dispatched", func() {
			So(c.Playback(ctx, dispatch.PlaybackCommand{SoundID: "pan_sizzle", AtMS: 10, Kind: dispatch.KindNote}), ShouldBeNil)
			So(c.Display(ctx, dispatch.DisplayUpdate{Type: dispatch.TypeFrame, ClockMS: 20}), ShouldBeNil)

			Convey("Then both topics receive JSON", func() {
				So(conn.published, ShouldHaveLength, 2)
				So(conn.published[0].topic, ShouldEqual, "kitchenbeat/playback")
				So(conn.published[0].qos, ShouldEqual, 1)
				var cmd dispatch.PlaybackCommand
				So(json.Unmarshal(conn.published[0].payload, &cmd), ShouldBeNil)
				So(cmd.SoundID, ShouldEqual, "pan_sizzle")
				So(conn.published[1].topic, ShouldEqual, "kitchenbeat/display")
				So(conn.published[1].qos, ShouldEqual, 0)
			})
		})

		Convey("When closed", func() {
			So(c.Close(), ShouldBeNil)
			So(conn.connected, ShouldBeFalse)
		})
	})

	Convey("Given a broker that refuses the connection", t, func() {
		conn := &fakeConn{connectErr: errors.New("not authorized")}
		c := New(Config{Broker: "tcp://localhost:1883"}, &inbox{},
			withFactory(func(*paho.ClientOptions) client { return conn }))
		err := c.Connect(ctx)
		So(errors.Is(err, ErrConnect), ShouldBeTrue)
	})

	Convey("Given no broker", t, func() {
		c := New(Config{}, &inbox{})
		So(c.Connect(ctx), ShouldEqual, ErrNoBroker)
		So(c.Playback(ctx, dispatch.PlaybackCommand{}), ShouldBeNil)
	})
}
