// Command kitchenbeat runs the kitchen rhythm game host: it ingests
// instrument messages over HTTP and MQTT, judges them against a chart and
// drives playback and the display page.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/okian/kitchenbeat/internal/adapters/http/api"
	"github.com/okian/kitchenbeat/internal/adapters/http/site"
	app "github.com/okian/kitchenbeat/internal/app"
	"github.com/okian/kitchenbeat/internal/config"
	"github.com/okian/kitchenbeat/pkg/logger"
	"github.com/okian/kitchenbeat/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// flags holds command line overrides. Empty values keep the loaded config.
type flags struct {
	config *string
	chart  *string
	addr   *string
	broker *string
}

func newApp() (*kingpin.Application, flags) {
	a := kingpin.New("kitchenbeat", "Kitchen rhythm game host.")
	a.Version("0.1.0")
	f := flags{
		config: a.Flag("config", "YAML config file (overrides KITCHENBEAT_CONFIG).").Short('c').String(),
		chart:  a.Flag("chart", "Chart file to load.").String(),
		addr:   a.Flag("addr", "HTTP listen address.").String(),
		broker: a.Flag("mqtt-broker", "MQTT broker URL, e.g. tcp://localhost:1883.").String(),
	}
	return a, f
}

// loadConfig layers flags over the koanf config.
func loadConfig(ctx context.Context, f flags) (*config.Config, error) {
	if *f.config != "" {
		if err := os.Setenv("KITCHENBEAT_CONFIG", *f.config); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	if *f.chart != "" {
		cfg.ChartPath = *f.chart
	}
	if *f.addr != "" {
		cfg.Addr = *f.addr
	}
	if *f.broker != "" {
		cfg.MQTTBroker = *f.broker
	}
	return cfg, nil
}

// newMux wires the API and the display page.
func newMux(ctx context.Context, svc api.Dependencies, maxLimit int) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(svc, maxLimit).Register(ctx, mux)
	site.Register(ctx, mux)
	return mux
}

func main() {
	a, f := newApp()
	kingpin.MustParse(a.Parse(os.Args[1:]))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, f)
	stop()
	if err != nil {
		os.Stderr.WriteString("kitchenbeat: " + err.Error() + "\n")
		os.Exit(1)
	}
}

// run serves until ctx is done. A non-nil error means the host could not
// start or its HTTP server failed.
func run(ctx context.Context, f flags) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := loadConfig(ctx, f)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.InitWithWriter(os.Stdout, cfg.LogFormat); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	metrics.Configure(
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithRefreshInterval(config.Millis(cfg.MetricsRefreshMS)),
	)
	if err := metrics.StartSystemCollector(ctx); err != nil {
		log.Warn(ctx, "system metrics collector not started", logger.Error(err))
	}

	svc := app.New(cfg, app.WithLogger(log.Named("service")))
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(stopCtx); err != nil {
			log.Error(stopCtx, "service shutdown failed", logger.Error(err))
		}
	}()

	// No write timeout: /ws connections are long lived.
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc, cfg.MaxScoreboardLimit),
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("http server: %w", err)
			cancel()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return <-serveErr
}
