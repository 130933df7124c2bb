package dag

import "strings"

// NodeIndex identifies a job inside one PipelineDag. Indices follow declared order.
type NodeIndex int

// StepInfo is one executable unit inside a job
type StepInfo struct {
	Name                  string            `json:"name,omitempty"`
	Uses                  string            `json:"uses,omitempty"` // reusable action, orb or plugin reference
	Run                   string            `json:"run,omitempty"`  // literal command text
	With                  map[string]string `json:"with,omitempty"`
	EstimatedDurationSecs *float64          `json:"estimated_duration_secs,omitempty"`
}

// DurationSecs returns the step estimate, or defaultSecs when none is known
func (s StepInfo) DurationSecs(defaultSecs float64) float64 {
	if s.EstimatedDurationSecs == nil {
		return defaultSecs
	}
	return *s.EstimatedDurationSecs
}

// Label is a short human-readable name for the step
func (s StepInfo) Label() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Run != "" {
		line, _, _ := strings.Cut(strings.TrimSpace(s.Run), "\n")
		return line
	}
	return s.Uses
}

// JobNode is one pipeline job. Analyzers treat it as read-only.
type JobNode struct {
	ID        string     `json:"id"`
	Name      string     `json:"name,omitempty"`
	Steps     []StepInfo `json:"steps"`
	RunsOn    string     `json:"runs_on,omitempty"`   // declared runner label, resource class or agent queue
	Condition string     `json:"condition,omitempty"` // if / when / rules text
	Stage     string     `json:"stage,omitempty"`
	Image     string     `json:"image,omitempty"`
	Caches    []string   `json:"caches,omitempty"`    // declared cache paths
	Artifacts []string   `json:"artifacts,omitempty"` // declared artifact paths
	Outputs   []string   `json:"outputs,omitempty"`   // declared output names
}

// DurationSecs sums step durations; steps without an estimate contribute defaultStepSecs
func (j JobNode) DurationSecs(defaultStepSecs float64) float64 {
	total := 0.0
	for _, s := range j.Steps {
		total += s.DurationSecs(defaultStepSecs)
	}
	return total
}

// DisplayName returns Name, falling back to ID
func (j JobNode) DisplayName() string {
	if j.Name != "" {
		return j.Name
	}
	return j.ID
}

// Float returns a pointer to v, for building StepInfo literals
func Float(v float64) *float64 {
	return &v
}
