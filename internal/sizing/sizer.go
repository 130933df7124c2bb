// Package sizing recommends runner size classes from command-text pressure.
package sizing

import (
	"fmt"
	"regexp"

	"github.com/felixgeelhaar/pipescope/internal/dag"
	"github.com/felixgeelhaar/pipescope/internal/domain"
)

// Profile is the estimated resource pressure of one job
type Profile struct {
	CPU       float64  `json:"cpu"`
	Memory    float64  `json:"memory"`
	IO        float64  `json:"io"`
	Rationale []string `json:"rationale"`
}

// Peak returns the highest of the three pressures
func (p Profile) Peak() float64 {
	return max(p.CPU, p.Memory, p.IO)
}

// Recommendation compares a job's declared runner with the suggested class
type Recommendation struct {
	JobID       string
	Current     domain.SizeClass
	Recommended domain.SizeClass
	Profile     Profile
	Confidence  float64
}

// Direction is the way a recommendation moves a job's runner
type Direction int

const (
	Keep Direction = iota
	Upsize
	Downsize
)

func (d Direction) String() string {
	switch d {
	case Upsize:
		return "upsize"
	case Downsize:
		return "downsize"
	default:
		return "keep"
	}
}

// Direction compares the recommended class with the current one
func (r Recommendation) Direction() Direction {
	switch r.Recommended.Compare(r.Current) {
	case 1:
		return Upsize
	case -1:
		return Downsize
	default:
		return Keep
	}
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// Sizer scores jobs against a rules table
type Sizer struct {
	rules    Rules
	compiled []compiledRule
}

// New compiles a rules table
func New(rules Rules) (*Sizer, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	s := &Sizer{rules: rules}
	for _, r := range rules.Rules {
		s.compiled = append(s.compiled, compiledRule{Rule: r, re: regexp.MustCompile("(?i)" + r.Pattern)})
	}
	return s, nil
}

// Default returns a sizer over DefaultRules
func Default() *Sizer {
	s, err := New(DefaultRules())
	if err != nil {
		panic(fmt.Sprintf("default sizing rules invalid: %v", err))
	}
	return s
}

// Rules returns the table in use
func (s *Sizer) Rules() Rules {
	return s.rules
}

// Profile scores a job. Each rule counts at most once per job.
func (s *Sizer) Profile(job dag.JobNode, durationSecs float64) Profile {
	var p Profile
	for _, rule := range s.compiled {
		if !jobMatches(job, rule.re) {
			continue
		}
		p.CPU += rule.CPU
		p.Memory += rule.Memory
		p.IO += rule.IO
		p.Rationale = append(p.Rationale, rule.Signal)
	}

	if s.rules.LongJobSecs > 0 && durationSecs >= s.rules.LongJobSecs {
		p.CPU += s.rules.LongJobCPU
		p.Rationale = append(p.Rationale, fmt.Sprintf("runs for about %.0f minutes", durationSecs/60))
	}
	return p
}

func jobMatches(job dag.JobNode, re *regexp.Regexp) bool {
	for _, step := range job.Steps {
		if step.Run != "" && re.MatchString(step.Run) {
			return true
		}
		if step.Uses != "" && re.MatchString(step.Uses) {
			return true
		}
	}
	return false
}

// Classify maps a profile to a size class
func (s *Sizer) Classify(p Profile) domain.SizeClass {
	peak := p.Peak()
	t := s.rules.Thresholds
	switch {
	case peak >= t.XLarge:
		return domain.SizeXLarge
	case peak >= t.Large:
		return domain.SizeLarge
	case peak >= t.Medium:
		return domain.SizeMedium
	default:
		return domain.SizeSmall
	}
}

// Recommend profiles a job and compares the result with its declared runner.
// ok is false when the runner label does not map to a known class.
func (s *Sizer) Recommend(provider domain.Provider, job dag.JobNode, durationSecs float64) (Recommendation, bool) {
	current, ok := ParseRunnerClass(provider, job.RunsOn)
	if !ok {
		return Recommendation{}, false
	}

	p := s.Profile(job, durationSecs)
	return Recommendation{
		JobID:       job.ID,
		Current:     current,
		Recommended: s.Classify(p),
		Profile:     p,
		Confidence:  min(0.4+0.1*float64(len(p.Rationale)), 0.85),
	}, true
}
