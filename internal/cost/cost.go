// Package cost turns pipeline durations into compute and developer-time cost.
package cost

import (
	"regexp"
	"strings"
)

// Per-minute runner rates in USD, modelled on hosted-runner list prices
const (
	RateLinux   = 0.008
	RateWindows = 0.016
	RateMacOS   = 0.08
	RateARM     = 0.005
	RateGPU     = 0.07
)

// WorkingDaysPerMonth is used to turn daily run counts into monthly figures
const WorkingDaysPerMonth = 22

// Input describes one pipeline and the team running it
type Input struct {
	DurationSecs          float64 `json:"duration_secs"`
	OptimizedDurationSecs float64 `json:"optimized_duration_secs"`
	RunsPerDay            float64 `json:"runs_per_day"` // per developer
	RunnerType            string  `json:"runner_type"`
	DeveloperHourlyRate   float64 `json:"developer_hourly_rate"`
	TeamSize              int     `json:"team_size"`
}

// Result is the estimate for one Input
type Result struct {
	RunnerClass               string  `json:"runner_class"`
	RatePerMinute             float64 `json:"rate_per_minute"`
	RunsPerMonth              float64 `json:"runs_per_month"`
	CostPerRun                float64 `json:"cost_per_run"`
	OptimizedCostPerRun       float64 `json:"optimized_cost_per_run"`
	MonthlyComputeCost        float64 `json:"monthly_compute_cost"`
	MonthlyComputeSavings     float64 `json:"monthly_compute_savings"`
	MonthlyDeveloperHoursLost float64 `json:"monthly_developer_hours_lost"`
	MonthlyOpportunityCost    float64 `json:"monthly_opportunity_cost"`
	WasteRatio                float64 `json:"waste_ratio"`
}

// armToken matches arm, arm64 or aarch64 as a whole label segment
var armToken = regexp.MustCompile(`(^|[^a-z0-9])(arm|arm64|aarch64)([^a-z0-9]|$)`)

// RateFor picks a per-minute rate by matching the runner type. ARM needs a
// whole label segment so names like "warm-pool" stay Linux. Anything
// unrecognised is billed as Linux.
func RateFor(runnerType string) (string, float64) {
	rt := strings.ToLower(runnerType)
	switch {
	case strings.Contains(rt, "gpu"):
		return "gpu", RateGPU
	case strings.Contains(rt, "macos"), strings.Contains(rt, "darwin"), strings.Contains(rt, "osx"):
		return "macos", RateMacOS
	case strings.Contains(rt, "windows"):
		return "windows", RateWindows
	case armToken.MatchString(rt):
		return "arm", RateARM
	default:
		return "linux", RateLinux
	}
}

// WasteRatio is the removable fraction of duration, 0 when duration is 0
func WasteRatio(durationSecs, optimizedSecs float64) float64 {
	if durationSecs <= 0 {
		return 0
	}
	return max(durationSecs-optimizedSecs, 0) / durationSecs
}

// Estimate computes the cost figures for in
func Estimate(in Input) Result {
	class, rate := RateFor(in.RunnerType)
	runsPerMonth := in.RunsPerDay * float64(max(in.TeamSize, 0)) * WorkingDaysPerMonth
	excessHours := max(in.DurationSecs-in.OptimizedDurationSecs, 0) / 3600

	r := Result{
		RunnerClass:               class,
		RatePerMinute:             rate,
		RunsPerMonth:              runsPerMonth,
		CostPerRun:                in.DurationSecs / 60 * rate,
		OptimizedCostPerRun:       in.OptimizedDurationSecs / 60 * rate,
		MonthlyDeveloperHoursLost: excessHours * runsPerMonth,
		WasteRatio:                WasteRatio(in.DurationSecs, in.OptimizedDurationSecs),
	}
	r.MonthlyComputeCost = r.CostPerRun * runsPerMonth
	r.MonthlyComputeSavings = max(r.CostPerRun-r.OptimizedCostPerRun, 0) * runsPerMonth
	r.MonthlyOpportunityCost = r.MonthlyDeveloperHoursLost * in.DeveloperHourlyRate
	return r
}
