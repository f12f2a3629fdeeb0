package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/kitchenbeat/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.PerfectToleranceMS, convey.ShouldEqual, 50)
			convey.So(cfg.GoodToleranceMS, convey.ShouldEqual, 150)
			convey.So(cfg.HoldGoodCoverage, convey.ShouldEqual, 0.9)
			convey.So(cfg.ScoreWeights, convey.ShouldResemble, config.ScoreWeights{Perfect: 2, Good: 1, Miss: 0})
			convey.So(cfg.Mapping.Topics["kitchen/pan"], convey.ShouldEqual, "stove")
			convey.So(cfg.MetricsNamespace, convey.ShouldEqual, "kitchenbeat")
			convey.So(cfg.MetricsRefreshMS, convey.ShouldEqual, 10000)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with bad values", t, func() {
		cases := map[string]func(*config.Config){
			"inverted tolerances": func(c *config.Config) { c.GoodToleranceMS = 10 },
			"zero late window":    func(c *config.Config) { c.LateWindowMS = 0 },
			"coverage above one":  func(c *config.Config) { c.HoldGoodCoverage = 1.5 },
			"bad qos":             func(c *config.Config) { c.MQTTQoS = 3 },
			"no topics":           func(c *config.Config) { c.Mapping.Topics = nil },
			"no workers":          func(c *config.Config) { c.WorkerCount = 0 },
			"no metrics refresh":  func(c *config.Config) { c.MetricsRefreshMS = 0 },
		}
		for name, mutate := range cases {
			convey.Convey("Then "+name+" is rejected", func() {
				cfg := config.New()
				mutate(cfg)
				err := cfg.Validate()
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 4096)
				convey.So(cfg.LateWindowMS, convey.ShouldEqual, 200)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("KITCHENBEAT_ADDR", ":8080")
			_ = os.Setenv("KITCHENBEAT_QUEUE_SIZE", "100")
			_ = os.Setenv("KITCHENBEAT_PERFECT_TOLERANCE_MS", "30")
			_ = os.Setenv("KITCHENBEAT_SCORE_WEIGHTS__PERFECT", "3")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 100)
				convey.So(cfg.PerfectToleranceMS, convey.ShouldEqual, 30)
				convey.So(cfg.ScoreWeights.Perfect, convey.ShouldEqual, 3)
				convey.So(cfg.ScoreWeights.Good, convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
good_tolerance_ms: 120
chart_path: "/tmp/song.yaml"
mapping:
  topics:
    node/a: drums
  actions:
    drums:
      hit:
        sound: snare
        category: strike
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("KITCHENBEAT_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.GoodToleranceMS, convey.ShouldEqual, 120)
				convey.So(cfg.ChartPath, convey.ShouldEqual, "/tmp/song.yaml")
			})

			convey.Convey("Then the file mapping replaces the defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Mapping.Topics, convey.ShouldResemble, map[string]string{"node/a": "drums"})
				convey.So(cfg.Mapping.Actions["drums"]["hit"].Sound, convey.ShouldEqual, "snare")
				convey.So(cfg.Mapping.Actions["stove"], convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
worker_count: 24
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("KITCHENBEAT_CONFIG", tmpFile)
			_ = os.Setenv("KITCHENBEAT_ADDR", ":8080")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 24)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("KITCHENBEAT_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("KITCHENBEAT_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("KITCHENBEAT_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "kitchenbeat-config-*.yaml")
	if err != nil {
		panic(err)
	}
	defer func() { _ = tmpFile.Close() }()
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}

func clearConfigEnvVars() {
	for _, k := range []string{
		"KITCHENBEAT_CONFIG",
		"KITCHENBEAT_ADDR",
		"KITCHENBEAT_QUEUE_SIZE",
		"KITCHENBEAT_PERFECT_TOLERANCE_MS",
		"KITCHENBEAT_SCORE_WEIGHTS__PERFECT",
	} {
		_ = os.Unsetenv(k)
	}
}
