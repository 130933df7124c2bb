package telemetry

import "testing"

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.ServiceName != "pipescope" {
		t.Errorf("ServiceName = %q, want %q", config.ServiceName, "pipescope")
	}
	if config.Enabled {
		t.Error("Enabled should be false by default")
	}
	if config.Endpoint != "" {
		t.Error("Endpoint should be empty by default")
	}
	if config.SampleRate != 1.0 {
		t.Errorf("SampleRate = %v, want 1.0", config.SampleRate)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }, false},
		{"negative sample rate", func(c *Config) { c.SampleRate = -0.1 }, true},
		{"sample rate above one", func(c *Config) { c.SampleRate = 1.5 }, true},
		{"enabled without name", func(c *Config) { c.Enabled = true; c.ServiceName = "" }, true},
		{"disabled without name", func(c *Config) { c.ServiceName = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(&config)
			if err := config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
