package offload

import (
	"github.com/viant/offload/service/config"
	"github.com/viant/offload/service/governor"
	"github.com/viant/offload/service/limits"
	"github.com/viant/offload/service/pool"
	"github.com/viant/offload/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises the offload service.
type Option func(s *Service)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.config = cfg
		}
	}
}

// WithLimits pins adaptive limits instead of deriving them from the host.
func WithLimits(adaptive limits.AdaptiveLimits) Option {
	return func(s *Service) { s.limits = adaptive }
}

// WithWorkerBinary sets the worker executable and its arguments.
func WithWorkerBinary(binary string, args ...string) Option {
	return func(s *Service) {
		s.config.WorkerBinary = binary
		s.config.WorkerArgs = args
	}
}

// WithSpawner replaces process spawning entirely; tests use this to run the
// worker runtime in-process over pipes.
func WithSpawner(spawner pool.Spawner) Option {
	return func(s *Service) { s.spawner = spawner }
}

// WithPoolOptions appends options passed through to the pool manager.
func WithPoolOptions(options ...pool.Option) Option {
	return func(s *Service) { s.poolOptions = append(s.poolOptions, options...) }
}

// WithGovernorOptions appends options passed through to the governor.
func WithGovernorOptions(options ...governor.Option) Option {
	return func(s *Service) { s.governorOptions = append(s.governorOptions, options...) }
}

// WithTracing configures OpenTelemetry tracing for the service. If outputFile
// is empty the stdout exporter is used; otherwise traces are written to the
// supplied file path. The first successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom
// SpanExporter, enabling OTLP, Jaeger, Zipkin and alike. The first successful
// initialisation wins.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
