package telemetry

import "fmt"

// Config holds configuration for the tracer
type Config struct {
	// ServiceName is the name of the service
	ServiceName string `yaml:"service_name" toml:"service_name" json:"service_name"`

	// ServiceVersion is the version of the service
	ServiceVersion string `yaml:"-" toml:"-" json:"-"`

	// Enabled determines whether tracing is enabled
	// When false, a noop tracer is used
	Enabled bool `yaml:"enabled" toml:"enabled" json:"enabled"`

	// Endpoint is the OTLP/HTTP collector, host:port or a URL.
	// If empty, spans are recorded but not exported
	Endpoint string `yaml:"endpoint,omitempty" toml:"endpoint" json:"endpoint,omitempty"`

	// Insecure disables TLS towards Endpoint
	Insecure bool `yaml:"insecure,omitempty" toml:"insecure" json:"insecure,omitempty"`

	// SampleRate is the fraction of traces to sample (0.0 to 1.0)
	SampleRate float64 `yaml:"sample_rate" toml:"sample_rate" json:"sample_rate"`
}

// DefaultConfig returns the CLI default: tracing off
func DefaultConfig() Config {
	return Config{
		ServiceName:    "pipescope",
		ServiceVersion: "dev",
		SampleRate:     1.0,
	}
}

// Validate rejects sample rates outside [0, 1]
func (c Config) Validate() error {
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be in [0, 1], got %.2f", c.SampleRate)
	}
	if c.Enabled && c.ServiceName == "" {
		return fmt.Errorf("service_name is required when tracing is enabled")
	}
	return nil
}
