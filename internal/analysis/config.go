package analysis

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/pipescope/internal/dag"
)

// Config holds the thresholds shared by all passes
type Config struct {
	// DefaultStepSecs is the duration assumed for steps without an estimate
	DefaultStepSecs float64 `yaml:"default_step_secs" toml:"default_step_secs" json:"default_step_secs"`

	LongJobSecs       float64 `yaml:"long_job_secs" toml:"long_job_secs" json:"long_job_secs"`
	LongJobShare      float64 `yaml:"long_job_share" toml:"long_job_share" json:"long_job_share"`
	SplitSavingsRatio float64 `yaml:"split_savings_ratio" toml:"split_savings_ratio" json:"split_savings_ratio"`
	MinSerialChain    int     `yaml:"min_serial_chain" toml:"min_serial_chain" json:"min_serial_chain"`

	CacheMediumSecs     float64 `yaml:"cache_medium_secs" toml:"cache_medium_secs" json:"cache_medium_secs"`
	DuplicateMediumSecs float64 `yaml:"duplicate_medium_secs" toml:"duplicate_medium_secs" json:"duplicate_medium_secs"`
}

// DefaultConfig returns the built-in thresholds
func DefaultConfig() Config {
	return Config{
		DefaultStepSecs:     0,
		LongJobSecs:         600,
		LongJobShare:        0.5,
		SplitSavingsRatio:   0.25,
		MinSerialChain:      3,
		CacheMediumSecs:     60,
		DuplicateMediumSecs: 60,
	}
}

// Validate rejects thresholds that would make passes misbehave
func (c Config) Validate() error {
	if c.DefaultStepSecs < 0 {
		return fmt.Errorf("default_step_secs must be >= 0, got %.1f", c.DefaultStepSecs)
	}
	if c.LongJobSecs <= 0 {
		return fmt.Errorf("long_job_secs must be > 0, got %.1f", c.LongJobSecs)
	}
	if c.LongJobShare <= 0 || c.LongJobShare > 1 {
		return fmt.Errorf("long_job_share must be in (0, 1], got %.2f", c.LongJobShare)
	}
	if c.SplitSavingsRatio < 0 || c.SplitSavingsRatio > 1 {
		return fmt.Errorf("split_savings_ratio must be in [0, 1], got %.2f", c.SplitSavingsRatio)
	}
	if c.MinSerialChain < 2 {
		return fmt.Errorf("min_serial_chain must be >= 2, got %d", c.MinSerialChain)
	}
	return nil
}

func (c Config) jobSecs(j dag.JobNode) float64 {
	return j.DurationSecs(c.DefaultStepSecs)
}

// timed reports whether a step contributes a known duration
func (c Config) timed(s dag.StepInfo) bool {
	return s.EstimatedDurationSecs != nil || c.DefaultStepSecs > 0
}

func (c Config) jobTimed(j dag.JobNode) bool {
	for _, s := range j.Steps {
		if c.timed(s) {
			return true
		}
	}
	return false
}

// formatSecs renders a duration like 4m30s
func formatSecs(secs float64) string {
	return time.Duration(secs * float64(time.Second)).Round(time.Second).String()
}
