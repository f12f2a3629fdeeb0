// Command kitchenbeat-sim plays a chart against a running kitchenbeat host
// by posting synthetic instrument messages.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	service "github.com/okian/kitchenbeat/internal/app"
	"github.com/okian/kitchenbeat/internal/config"
	"github.com/okian/kitchenbeat/internal/domain/chart"
	"github.com/okian/kitchenbeat/internal/domain/mapping"
	"github.com/okian/kitchenbeat/internal/simulator"
	"github.com/okian/kitchenbeat/pkg/logger"
)

var (
	app          = kingpin.New("kitchenbeat-sim", "Play a chart against a kitchenbeat host.")
	baseURL      = app.Flag("url", "Host base URL.").Default("http://localhost:9080").Short('u').String()
	chartPath    = app.Arg("chart", "Chart file to play.").Default("charts/demo.yaml").ExistingFile()
	seed         = app.Flag("seed", "Random seed.").Default("1").Uint64()
	missRate     = app.Flag("miss-rate", "Chance of skipping a note.").Default("0").Float64()
	spread       = app.Flag("spread", "Maximum timing error.").Default("30ms").Short('s').Duration()
	holdInterval = app.Flag("hold-interval", "Activity interval during held notes.").Default("80ms").Duration()
	holdCoverage = app.Flag("hold-coverage", "Fraction of each held note actually held.").Default("1").Float64()
	timeout      = app.Flag("timeout", "Wait limit for session state changes.").Default("30s").Duration()
	dryRun       = app.Flag("dry-run", "Print the plan without sending.").Bool()
)

func main() {
	app.Version("0.1.0")
	kingpin.MustParse(app.Parse(os.Args[1:]))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Named("sim")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal(ctx, "load config", logger.Error(err))
	}
	mapper, err := mapping.New(service.MappingTable(cfg.Mapping))
	if err != nil {
		log.Fatal(ctx, "build mapping", logger.Error(err))
	}
	ch, err := chart.LoadFile(*chartPath, chart.WithCatalog(mapper))
	if err != nil {
		log.Fatal(ctx, "load chart", logger.Error(err))
	}

	shots, err := simulator.Plan(ch, simulator.Topics(mapper), simulator.Profile{
		MissRate:     *missRate,
		Spread:       *spread,
		HoldInterval: *holdInterval,
		HoldCoverage: *holdCoverage,
	}, *seed)
	if err != nil {
		log.Fatal(ctx, "plan", logger.Error(err))
	}
	log.Info(ctx, "plan ready", logger.String("chart", ch.Title), logger.Int("shots", len(shots)))

	if *dryRun {
		for _, s := range shots {
			log.Info(ctx, "shot", logger.Duration("at", s.At), logger.String("topic", s.Topic), logger.String("action", s.ActionID))
		}
		return
	}

	client := simulator.NewClient(*baseURL, 5*time.Second)
	rep, err := simulator.NewRunner(client, simulator.WithLogger(log), simulator.WithNodeClock(time.Now().UnixMilli()%1_000_000)).
		Run(ctx, shots, *timeout)
	if err != nil {
		log.Error(ctx, "run failed", logger.Error(err), logger.Int("sent", rep.Sent), logger.Int("failed", rep.Failed))
		os.Exit(1)
	}
	sum := rep.Final.Summary
	log.Info(ctx, "run complete",
		logger.Int("sent", rep.Sent),
		logger.Int("failed", rep.Failed),
		logger.Float64("score", sum.Score),
		logger.Int("max_combo", sum.MaxCombo),
		logger.Float64("accuracy", sum.Accuracy))
}
