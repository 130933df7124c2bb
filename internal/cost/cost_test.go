package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateFor(t *testing.T) {
	tests := []struct {
		runner string
		class  string
		rate   float64
	}{
		{"ubuntu-latest", "linux", RateLinux},
		{"windows-2022", "windows", RateWindows},
		{"macos-14", "macos", RateMacOS},
		{"ubuntu-24.04-arm", "arm", RateARM},
		{"linux-ARM64", "arm", RateARM},
		{"arm.medium", "arm", RateARM},
		{"self-hosted-aarch64", "arm", RateARM},
		{"pharma-runner", "linux", RateLinux},
		{"warm-pool", "linux", RateLinux},
		{"farm-builder-armv7x", "linux", RateLinux},
		{"gpu-t4-4-cores", "gpu", RateGPU},
		{"self-hosted", "linux", RateLinux},
		{"", "linux", RateLinux},
	}
	for _, tt := range tests {
		class, rate := RateFor(tt.runner)
		assert.Equal(t, tt.class, class, tt.runner)
		assert.Equal(t, tt.rate, rate, tt.runner)
	}
}

func TestEstimate(t *testing.T) {
	r := Estimate(Input{
		DurationSecs:          600,
		OptimizedDurationSecs: 240,
		RunsPerDay:            4,
		RunnerType:            "ubuntu-latest",
		DeveloperHourlyRate:   100,
		TeamSize:              5,
	})

	assert.InDelta(t, 440.0, r.RunsPerMonth, 1e-9)
	assert.InDelta(t, 0.08, r.CostPerRun, 1e-9)
	assert.InDelta(t, 35.2, r.MonthlyComputeCost, 1e-9)
	assert.InDelta(t, 0.6, r.WasteRatio, 1e-9)
	assert.InDelta(t, 44.0, r.MonthlyDeveloperHoursLost, 1e-9)
	assert.InDelta(t, 4400.0, r.MonthlyOpportunityCost, 1e-9)
	assert.InDelta(t, 21.12, r.MonthlyComputeSavings, 1e-9)
}

func TestWasteRatioEdges(t *testing.T) {
	assert.Equal(t, 0.0, WasteRatio(0, 0))
	assert.Equal(t, 0.0, WasteRatio(100, 150), "optimized above duration never goes negative")
	assert.Equal(t, 0.8, WasteRatio(100, 20))
}

func TestEstimateZeroTeam(t *testing.T) {
	r := Estimate(Input{DurationSecs: 60, TeamSize: 0, RunsPerDay: 3})
	assert.Zero(t, r.MonthlyComputeCost)
	assert.Zero(t, r.MonthlyDeveloperHoursLost)
	assert.InDelta(t, RateLinux, r.CostPerRun, 1e-9)
}
