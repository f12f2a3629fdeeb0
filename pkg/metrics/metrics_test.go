package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithRefreshInterval(time.Second),
				WithPrometheusRegistry(registry),
			)

			Convey("Then it is created with the options applied", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "test")
				So(manager.subsystem, ShouldEqual, "unit")
				So(manager.refreshInterval, ShouldEqual, time.Second)
			})

			Convey("Then metrics are registered on the custom registry", func() {
				manager.judgments.WithLabelValues("stove", "perfect").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := map[string]bool{}
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["test_unit_judgments_total"], ShouldBeTrue)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording judgments", func() {
			before := testutil.ToFloat64(globalManager.judgments.WithLabelValues("board", "good"))
			RecordJudgment("board", "good")
			RecordJudgment("board", "good")

			Convey("Then the labelled counter advances", func() {
				after := testutil.ToFloat64(globalManager.judgments.WithLabelValues("board", "good"))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When recording drops and overflow", func() {
			before := testutil.ToFloat64(globalManager.queueOverflow.WithLabelValues("inbox"))
			RecordQueueOverflow("inbox")
			RecordEventDropped("duplicate")

			Convey("Then the counters reflect it", func() {
				So(testutil.ToFloat64(globalManager.queueOverflow.WithLabelValues("inbox"))-before, ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.eventsDropped.WithLabelValues("duplicate")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When updating gauges", func() {
			UpdateSessionScore(42, 7)
			UpdateNodeHealth("stove-1", 3*time.Second, true, 12.5)
			UpdateMQTTConnected(true)

			Convey("Then gauges hold the latest values", func() {
				So(testutil.ToFloat64(globalManager.sessionScore), ShouldEqual, 42)
				So(testutil.ToFloat64(globalManager.sessionCombo), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.nodeSilent.WithLabelValues("stove-1")), ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.nodeLastSeenAge.WithLabelValues("stove-1")), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.mqttConnected), ShouldEqual, 1)
			})
		})

		Convey("When recording histograms", func() {
			So(func() {
				RecordJudgmentDelta(-30)
				RecordHoldCoverage(0.95)
				RecordWorkerProcessingLatency(0.2)
				RecordHTTPRequestDuration("/events", "POST", "202", 1.5)
			}, ShouldNotPanic)
		})
	})
}

func TestConfigure(t *testing.T) {
	Convey("Given the global manager configured with a namespace", t, func() {
		prevManager, prevRegistry := globalManager, customRegistry
		defer func() { globalManager, customRegistry = prevManager, prevRegistry }()

		Configure(WithNamespace("diner"), WithSubsystem("line"), WithRefreshInterval(time.Second))
		RecordJudgment("stove", "perfect")

		Convey("Then metrics are exposed under the new name on a fresh registry", func() {
			So(GetRegistry(), ShouldNotPointTo, prevRegistry)
			So(globalManager.refreshInterval, ShouldEqual, time.Second)
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			names := map[string]bool{}
			for _, f := range families {
				names[f.GetName()] = true
			}
			So(names["diner_line_judgments_total"], ShouldBeTrue)
			So(names["kitchenbeat_game_judgments_total"], ShouldBeFalse)
		})
	})
}

func TestSystemCollector(t *testing.T) {
	Convey("Given a manager with a short refresh interval", t, func() {
		m := NewManager(WithPrometheusRegistry(prometheus.NewRegistry()), WithRefreshInterval(10*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		So(m.StartSystemCollector(ctx), ShouldBeNil)

		Convey("Then a second start is rejected", func() {
			So(m.StartSystemCollector(ctx), ShouldEqual, ErrCollectorRunning)
		})

		Convey("Then goroutine count is sampled", func() {
			time.Sleep(30 * time.Millisecond)
			So(testutil.ToFloat64(m.systemGoroutineCount), ShouldBeGreaterThan, 0)
		})
	})
}
