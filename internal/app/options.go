package service

import (
	"time"

	"github.com/okian/kitchenbeat/internal/domain/chart"
	"github.com/okian/kitchenbeat/internal/domain/dispatch"
	"github.com/okian/kitchenbeat/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithChart uses an already loaded chart instead of the configured path.
func WithChart(c *chart.Chart) Option {
	return func(s *Service) {
		s.preset = c
	}
}

// WithSinks adds output sinks next to the websocket hub and MQTT.
func WithSinks(sinks ...dispatch.Sink) Option {
	return func(s *Service) {
		s.extra = append(s.extra, sinks...)
	}
}

// WithNow replaces the wall clock for every time-dependent component.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator replaces the run and judgment id source.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}
