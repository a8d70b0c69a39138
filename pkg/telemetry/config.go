// Package telemetry provides logging, metrics, and tracing for the
// directive engine: a zerolog-backed structured logger, Prometheus
// collectors for executions and cache traffic, and OpenTelemetry spans
// around engine phases.
package telemetry

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	// Level is the minimum level emitted: trace, debug, info, warn, error.
	Level string `json:"level" yaml:"level"`

	// Format is "json" or "console".
	Format string `json:"format" yaml:"format"`

	// Output is "stdout", "stderr", or a file path.
	Output string `json:"output" yaml:"output"`

	// EnableCaller annotates entries with the call site.
	EnableCaller bool `json:"enable_caller" yaml:"enable_caller"`
}

// MetricsConfig controls the Prometheus collectors.
type MetricsConfig struct {
	// Enabled turns collection on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Namespace prefixes all metric names.
	Namespace string `json:"namespace" yaml:"namespace"`
}

// TracingConfig controls the OpenTelemetry tracer.
type TracingConfig struct {
	// Enabled turns span export on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// ServiceName identifies this process in exported spans.
	ServiceName string `json:"service_name" yaml:"service_name"`

	// PrettyPrint renders exported spans with indentation.
	PrettyPrint bool `json:"pretty_print" yaml:"pretty_print"`
}

// Config aggregates the telemetry settings.
type Config struct {
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// DefaultConfig returns JSON logging at info level to stderr, metrics
// under the "dirigent" namespace, and tracing disabled.
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "dirigent",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "dirigent",
		},
	}
}
